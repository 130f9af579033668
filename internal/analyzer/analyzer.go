// Package analyzer implements C2: a pure, bounded-memory rule engine
// that classifies each incoming step and emits quality issues.
// Grounded rule-for-rule on
// original_source/norn/core/step_analyzer.py.
package analyzer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashtagemy/guard/internal/model"
)

// Config is the subset of runtime engine config C2 needs.
type Config struct {
	LoopWindow    int
	LoopThreshold int
	MaxSameTool   int
}

// Analyzer holds per-session bounded-memory state, reset on every new
// session (spec.md §4.2 "State (all reset per session)").
type Analyzer struct {
	cfg Config

	recent     []string       // bounded FIFO of canonical call signatures, length <= LoopWindow
	uses       map[string]int // uses[tool_name]
	seenHashes map[string]bool
}

// New builds an Analyzer for one session.
func New(cfg Config) *Analyzer {
	if cfg.LoopWindow <= 0 {
		cfg.LoopWindow = 5
	}
	if cfg.LoopThreshold <= 0 {
		cfg.LoopThreshold = 3
	}
	if cfg.MaxSameTool <= 0 {
		cfg.MaxSameTool = 10
	}
	return &Analyzer{
		cfg:        cfg,
		uses:       make(map[string]int),
		seenHashes: make(map[string]bool),
	}
}

// Reset clears all per-session state (spec.md "analyzer state" reset on
// SessionStart).
func (a *Analyzer) Reset() {
	a.recent = nil
	a.uses = make(map[string]int)
	a.seenHashes = make(map[string]bool)
}

var sslVerifyFields = map[string]bool{
	"verify_ssl": true, "verify": true, "ssl_verify": true,
	"check_ssl": true, "ssl_check": true,
}

var shellFields = map[string]bool{
	"shell": true, "use_shell": true, "shell_mode": true,
}

var commandFields = map[string]bool{
	"command": true, "cmd": true, "shell_command": true, "script": true,
}

var shellMetacharacters = []string{"&&", "||", ";", "|", "`", "$(", ">", "<", "../", "..\\"}

var credentialMarkers = []string{
	"password", "secret", "token", "api_key", "apikey", "private_key",
	"access_key", "credential",
}

// Analyze classifies one step given (tool_name, tool_input,
// step_number). Returns the status this rule set would assign and any
// issues accumulated, following spec.md §4.2's numbered rule order:
// the first matching status-determining rule wins; issues otherwise
// accumulate independently.
func (a *Analyzer) Analyze(toolName string, toolInput map[string]any, stepNumber int) (model.StepStatus, []model.QualityIssue) {
	var issues []model.QualityIssue
	status := model.StepSuccess

	// Rule 1: security bypass patterns (deterministic).
	issues = append(issues, a.checkSecurityBypass(toolInput)...)

	// Rule 2: exact duplicate.
	sig := canonicalSignature(toolName, toolInput)
	if a.seenHashes[sig] {
		status = model.StepRedundant
		issues = append(issues, newIssue(model.IssueInefficiency, 3, "duplicate tool call with identical input"))
	} else {
		a.seenHashes[sig] = true
	}

	// Rule 3: per-tool overuse.
	a.uses[toolName]++
	if a.uses[toolName] == a.cfg.MaxSameTool {
		issues = append(issues, newIssue(model.IssueInfiniteLoop, 8,
			fmt.Sprintf("tool %q called %d times in this session", toolName, a.uses[toolName])))
	}

	// Rule 4: evasion loop — same tool_name >=3 times in the recent
	// window regardless of input equality.
	sameToolCount := 0
	for _, s := range a.recent {
		if strings.HasPrefix(s, toolName+":") {
			sameToolCount++
		}
	}
	if sameToolCount >= 2 { // plus this call makes 3
		issues = append(issues, newIssue(model.IssueSuspiciousBehavior, 7, "disguised loop — varying inputs"))
	}

	// Rule 5: pattern repetition within the sliding window.
	a.recent = append(a.recent, sig)
	if len(a.recent) > a.cfg.LoopWindow {
		a.recent = a.recent[len(a.recent)-a.cfg.LoopWindow:]
	}
	if len(a.recent) == a.cfg.LoopWindow {
		counts := make(map[string]int, len(a.recent))
		for _, s := range a.recent {
			counts[s]++
		}
		for _, c := range counts {
			if c >= a.cfg.LoopThreshold {
				issues = append(issues, newIssue(model.IssueInfiniteLoop, 9, "same tool call repeated within the loop window"))
				break
			}
		}
	}

	return status, issues
}

// CheckEfficiency is the post-session rule (spec.md §4.2 rule 6),
// called once at SessionEnd.
func (a *Analyzer) CheckEfficiency(totalSteps, maxExpected int) []model.QualityIssue {
	if maxExpected > 0 && float64(totalSteps) > 1.5*float64(maxExpected) {
		return []model.QualityIssue{newIssue(model.IssueInefficiency, 5,
			fmt.Sprintf("session took %d steps, more than 1.5x the expected %d", totalSteps, maxExpected))}
	}
	return nil
}

func (a *Analyzer) checkSecurityBypass(input map[string]any) []model.QualityIssue {
	var issues []model.QualityIssue

	for field := range sslVerifyFields {
		if v, ok := input[field]; ok {
			if b, ok := v.(bool); ok && !b {
				issues = append(issues, newIssue(model.IssueSecurityBypass, 8,
					fmt.Sprintf("%s=false disables TLS verification", field)))
			}
		}
	}
	for field := range shellFields {
		if v, ok := input[field]; ok {
			if b, ok := v.(bool); ok && b {
				issues = append(issues, newIssue(model.IssueSecurityBypass, 9,
					fmt.Sprintf("%s=true requests raw shell execution", field)))
			}
		}
	}
	for field := range commandFields {
		if v, ok := input[field]; ok {
			if s, ok := v.(string); ok {
				for _, meta := range shellMetacharacters {
					if strings.Contains(s, meta) {
						issues = append(issues, newIssue(model.IssueSecurityBypass, 8,
							fmt.Sprintf("%s contains shell metacharacter %q", field, meta)))
						break
					}
				}
			}
		}
	}
	for field, v := range input {
		lower := strings.ToLower(field)
		for _, marker := range credentialMarkers {
			if strings.Contains(lower, marker) {
				if s, ok := v.(string); ok && s != "" {
					issues = append(issues, newIssue(model.IssueSecurityBypass, 7,
						fmt.Sprintf("credential-shaped field %q passed as plain tool input", field)))
				}
				break
			}
		}
	}

	return issues
}

func newIssue(issueType model.IssueType, severity int, description string) model.QualityIssue {
	return model.QualityIssue{
		IssueID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		IssueType:   issueType,
		Severity:    severity,
		Description: description,
	}
}

// canonicalSignature is a stable textual encoding of (tool_name,
// tool_input) with keys sorted, matching
// original_source/norn/core/step_analyzer.py::_hash_input's
// f"{tool_name}:{sorted(tool_input.items())}" scheme.
func canonicalSignature(toolName string, input map[string]any) string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(toolName)
	b.WriteByte(':')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		v, _ := json.Marshal(input[k])
		b.Write(v)
	}
	return b.String()
}
