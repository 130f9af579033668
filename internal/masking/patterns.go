package masking

import "regexp"

// Pattern is a compiled content-level masking rule, adapted from
// tarsy's pkg/masking.CompiledPattern: a name plus a regexp whose
// matches are replaced wholesale. This is a supplemental layer over
// RedactToolInput — it scans free-text tool_result content that the
// structural key-based redaction never sees.
type Pattern struct {
	Name    string
	re      *regexp.Regexp
	replace string
}

// builtinPatterns mirrors the intent of tarsy's compileBuiltinPatterns:
// a small fixed set of high-confidence secret shapes.
func builtinPatterns() []Pattern {
	return []Pattern{
		{Name: "aws_access_key", re: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), replace: "[REDACTED:AWS_KEY]"},
		{Name: "bearer_token", re: regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-_.=]+`), replace: "[REDACTED:BEARER]"},
		{Name: "private_key_block", re: regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`), replace: "[REDACTED:PRIVATE_KEY]"},
		{Name: "credit_card_like", re: regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`), replace: "[REDACTED:CARD_NUMBER]"},
	}
}

// Masker mirrors tarsy's pkg/masking.Masker interface shape, kept so
// custom per-deployment maskers can be registered the same way tarsy
// registers per-MCP-server patterns.
type Masker interface {
	Name() string
	AppliesTo(data string) bool
	Mask(data string) string
}

// Service applies content-level masking to free-text tool results.
// Fail-closed, matching tarsy's MaskToolResult: any unexpected panic
// during masking must not leak the original content, so recovery
// substitutes a safe redaction sentinel rather than the raw string.
type Service struct {
	patterns []Pattern
	maskers  []Masker
}

// NewService builds a Service with the builtin patterns plus any
// custom maskers supplied by the caller.
func NewService(custom ...Masker) *Service {
	return &Service{patterns: builtinPatterns(), maskers: custom}
}

// MaskToolResult scans content for secret-shaped substrings and
// replaces them. Fail-closed: a panic during masking returns a
// redaction sentinel, never the original content.
func (s *Service) MaskToolResult(content string) (masked string) {
	defer func() {
		if recover() != nil {
			masked = "[REDACTED: data masking failure — tool result could not be safely processed]"
		}
	}()
	return s.apply(content)
}

func (s *Service) apply(content string) string {
	out := content
	for _, m := range s.maskers {
		if m.AppliesTo(out) {
			out = m.Mask(out)
		}
	}
	for _, p := range s.patterns {
		out = p.re.ReplaceAllString(out, p.replace)
	}
	return out
}
