package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONStripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"relevance_score\": 80}\n```"
	got := extractJSON(raw)
	assert.Equal(t, `{"relevance_score": 80}`, got)
}

func TestExtractJSONTrimsSurroundingText(t *testing.T) {
	raw := "Here is my answer: {\"a\": 1} — hope that helps"
	got := extractJSON(raw)
	assert.Equal(t, `{"a": 1}`, got)
}

func TestExtractJSONReturnsEmptyWithoutBraces(t *testing.T) {
	assert.Equal(t, "", extractJSON("no json here"))
}

func TestParseStepResponse(t *testing.T) {
	resp, ok := parseStepResponse(`{"relevance_score": 90, "security_score": 70, "reasoning": "looks fine"}`)
	require.True(t, ok)
	assert.Equal(t, 90, resp.RelevanceScore)
	assert.Equal(t, 70, resp.SecurityScore)
	assert.Equal(t, "looks fine", resp.Reasoning)
}

func TestParseStepResponseInvalidJSON(t *testing.T) {
	_, ok := parseStepResponse("not json")
	assert.False(t, ok)
}

func TestParseSessionResponse(t *testing.T) {
	raw := `{
		"task_completed": true,
		"completion_confidence": 95,
		"efficiency_score": 80,
		"security_score": 100,
		"overall_quality": "GOOD",
		"reasoning": "solid run",
		"recommendations": ["reduce redundant calls"]
	}`
	resp, ok := parseSessionResponse(raw)
	require.True(t, ok)
	require.NotNil(t, resp.TaskCompleted)
	assert.True(t, *resp.TaskCompleted)
	assert.Equal(t, 95, resp.CompletionConfidence)
	assert.Equal(t, "GOOD", resp.OverallQuality)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "reduce redundant calls", resp.Recommendations[0])
}

func TestParseSessionResponseMissingTaskCompletedIsNil(t *testing.T) {
	resp, ok := parseSessionResponse(`{"overall_quality": "POOR"}`)
	require.True(t, ok)
	assert.Nil(t, resp.TaskCompleted)
}

func TestStubClientReturnsCleanVerdict(t *testing.T) {
	c := StubClient{}
	ctx := t.Context()

	step, err := c.EvaluateStep(ctx, StepEvalRequest{})
	require.NoError(t, err)
	assert.Equal(t, 100, step.RelevanceScore)
	assert.Equal(t, 100, step.SecurityScore)

	session, err := c.EvaluateSession(ctx, SessionEvalRequest{})
	require.NoError(t, err)
	require.NotNil(t, session.TaskCompleted)
	assert.True(t, *session.TaskCompleted)
	assert.Equal(t, "EXCELLENT", session.OverallQuality)

	shadow, err := c.EvaluateShadow(ctx, ShadowVerifyRequest{})
	require.NoError(t, err)
	assert.True(t, shadow.Verified)
}
