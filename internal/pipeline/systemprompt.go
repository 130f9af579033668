package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashtagemy/guard/internal/model"
)

// promptInjectionFamilies is the closed set of malicious-instruction
// families scanned for in a session's system prompt. Grounded on
// original_source/norn/core/interceptor.py::_check_system_prompt.
var promptInjectionFamilies = []struct {
	name     string
	patterns []string
}{
	{"sensitive_file_access", []string{"/etc/passwd", "~/.ssh", ".aws/credentials", "id_rsa", "id_ed25519"}},
	{"recon_commands", []string{"whoami", "ifconfig", "netstat", "ps aux", "uname -a", "env | grep"}},
	{"exfiltration_markers", []string{"curl -d", "wget --post", "| curl", "exfiltrate", "send to http", "post this to"}},
	{"covert_instruction_phrases", []string{"ignore previous instructions", "ignore all previous", "disregard the above", "do not mention this", "secretly", "without telling the user"}},
}

// scanSystemPrompt counts how many distinct families match and
// returns the corresponding issue: two or more matching families is
// PROMPT_INJECTION (severity 9); exactly one is SUSPICIOUS_BEHAVIOR
// (severity 7); none produces no issue.
func scanSystemPrompt(prompt string) []model.QualityIssue {
	lower := strings.ToLower(prompt)
	matched := 0
	for _, fam := range promptInjectionFamilies {
		for _, p := range fam.patterns {
			if strings.Contains(lower, p) {
				matched++
				break
			}
		}
	}

	switch {
	case matched >= 2:
		return []model.QualityIssue{{
			IssueID:     uuid.NewString(),
			Timestamp:   time.Now().UTC(),
			IssueType:   model.IssuePromptInjection,
			Severity:    9,
			Description: "system prompt matches multiple malicious-instruction families",
		}}
	case matched == 1:
		return []model.QualityIssue{{
			IssueID:     uuid.NewString(),
			Timestamp:   time.Now().UTC(),
			IssueType:   model.IssueSuspiciousBehavior,
			Severity:    7,
			Description: "system prompt matches a malicious-instruction family",
		}}
	default:
		return nil
	}
}
