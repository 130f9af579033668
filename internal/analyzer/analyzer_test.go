package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtagemy/guard/internal/model"
)

func TestAnalyzeFirstCallIsSuccess(t *testing.T) {
	a := New(Config{})
	status, issues := a.Analyze("get_pods", map[string]any{"namespace": "default"}, 1)
	assert.Equal(t, model.StepSuccess, status)
	assert.Empty(t, issues)
}

func TestAnalyzeExactDuplicateIsRedundant(t *testing.T) {
	a := New(Config{})
	input := map[string]any{"namespace": "default"}
	_, _ = a.Analyze("get_pods", input, 1)
	status, issues := a.Analyze("get_pods", input, 2)

	assert.Equal(t, model.StepRedundant, status)
	require.NotEmpty(t, issues)
	assert.Equal(t, model.IssueInefficiency, issues[0].IssueType)
}

func TestAnalyzeSslVerifyFalseIsSecurityBypass(t *testing.T) {
	a := New(Config{})
	_, issues := a.Analyze("http_get", map[string]any{"url": "https://x", "verify_ssl": false}, 1)

	require.NotEmpty(t, issues)
	assert.Equal(t, model.IssueSecurityBypass, issues[0].IssueType)
}

func TestAnalyzeShellTrueIsSecurityBypass(t *testing.T) {
	a := New(Config{})
	_, issues := a.Analyze("run_command", map[string]any{"cmd": "ls", "shell": true}, 1)

	found := false
	for _, iss := range issues {
		if iss.IssueType == model.IssueSecurityBypass {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyzeShellMetacharacterInCommand(t *testing.T) {
	a := New(Config{})
	_, issues := a.Analyze("run_command", map[string]any{"command": "ls; rm -rf /"}, 1)

	found := false
	for _, iss := range issues {
		if iss.IssueType == model.IssueSecurityBypass {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyzeCredentialShapedField(t *testing.T) {
	a := New(Config{})
	_, issues := a.Analyze("call_api", map[string]any{"api_key": "sk-123"}, 1)

	found := false
	for _, iss := range issues {
		if iss.IssueType == model.IssueSecurityBypass {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyzePerToolOveruseFlagsInfiniteLoop(t *testing.T) {
	a := New(Config{MaxSameTool: 3})
	for i := 0; i < 2; i++ {
		_, _ = a.Analyze("poll", map[string]any{"n": float64(i)}, i+1)
	}
	_, issues := a.Analyze("poll", map[string]any{"n": float64(99)}, 3)

	found := false
	for _, iss := range issues {
		if iss.IssueType == model.IssueInfiniteLoop {
			found = true
		}
	}
	assert.True(t, found, "hitting the MaxSameTool threshold must flag an infinite-loop issue")
}

func TestAnalyzeEvasionLoopVaryingInputs(t *testing.T) {
	a := New(Config{})
	_, _ = a.Analyze("poll", map[string]any{"n": float64(1)}, 1)
	_, _ = a.Analyze("poll", map[string]any{"n": float64(2)}, 2)
	_, issues := a.Analyze("poll", map[string]any{"n": float64(3)}, 3)

	found := false
	for _, iss := range issues {
		if iss.IssueType == model.IssueSuspiciousBehavior {
			found = true
		}
	}
	assert.True(t, found, "same tool with varying inputs three times in a row should look like a disguised loop")
}

func TestAnalyzeLoopWindowRepetition(t *testing.T) {
	a := New(Config{LoopWindow: 3, LoopThreshold: 2})
	input := map[string]any{"x": float64(1)}
	other := map[string]any{"x": float64(2)}

	_, _ = a.Analyze("t1", input, 1)
	_, _ = a.Analyze("t2", other, 2)
	_, issues := a.Analyze("t1", input, 3)

	found := false
	for _, iss := range issues {
		if iss.IssueType == model.IssueInfiniteLoop && iss.Severity == 9 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckEfficiencyFlagsOverlyLongSessions(t *testing.T) {
	a := New(Config{})
	issues := a.CheckEfficiency(20, 10)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueInefficiency, issues[0].IssueType)
}

func TestCheckEfficiencyIgnoresReasonableSessions(t *testing.T) {
	a := New(Config{})
	assert.Empty(t, a.CheckEfficiency(12, 10))
	assert.Empty(t, a.CheckEfficiency(5, 0), "maxExpected of 0 disables the check")
}

func TestResetClearsPerSessionState(t *testing.T) {
	a := New(Config{})
	input := map[string]any{"a": float64(1)}
	_, _ = a.Analyze("t1", input, 1)
	a.Reset()

	status, issues := a.Analyze("t1", input, 1)
	assert.Equal(t, model.StepSuccess, status, "after reset, a previously-seen call must not be flagged as a duplicate")
	assert.Empty(t, issues)
}
