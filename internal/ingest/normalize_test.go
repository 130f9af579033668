package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTaskAcceptsStringOrObject(t *testing.T) {
	out := Normalize(map[string]any{"session_id": "s1", "task": "restart the pods"})
	task := out["task"].(map[string]any)
	assert.Equal(t, "restart the pods", task["description"])

	out2 := Normalize(map[string]any{"session_id": "s1", "task": map[string]any{"description": "restart"}})
	task2 := out2["task"].(map[string]any)
	assert.Equal(t, "restart", task2["description"])
}

func TestNormalizeIssuesFillsDefaults(t *testing.T) {
	out := Normalize(map[string]any{
		"session_id": "s1",
		"issues":     []any{map[string]any{"issue_type": "INEFFICIENCY"}},
	})
	issues := out["issues"].([]any)
	require.Len(t, issues, 1)
	issue := issues[0].(map[string]any)
	assert.Equal(t, float64(0), issue["severity"])
	assert.Equal(t, false, issue["auto_resolved"])
	assert.Equal(t, []any{}, issue["affected_step_ids"])
}

func TestNormalizeStepsFillsDefaults(t *testing.T) {
	out := Normalize(map[string]any{
		"session_id": "s1",
		"steps":      []any{map[string]any{"step_id": "a"}},
	})
	steps := out["steps"].([]any)
	step := steps[0].(map[string]any)
	assert.Nil(t, step["relevance_score"])
	assert.Nil(t, step["security_score"])
	assert.Equal(t, map[string]any{}, step["metadata"])
}

func TestNormalizeStatusDefaultsToActive(t *testing.T) {
	out := Normalize(map[string]any{"session_id": "s1"})
	assert.Equal(t, "active", out["status"])
}

func TestNormalizeStatusForcesStaleActiveToTerminated(t *testing.T) {
	stale := time.Now().Add(-10 * time.Minute).UTC().Format(time.RFC3339)
	out := Normalize(map[string]any{
		"session_id": "s1",
		"status":     "active",
		"started_at": stale,
	})
	assert.Equal(t, "terminated", out["status"])
}

func TestNormalizeStatusLeavesRecentActiveAlone(t *testing.T) {
	recent := time.Now().Add(-1 * time.Minute).UTC().Format(time.RFC3339)
	out := Normalize(map[string]any{
		"session_id": "s1",
		"status":     "active",
		"started_at": recent,
	})
	assert.Equal(t, "active", out["status"])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	doc := map[string]any{
		"session_id": "s1",
		"task":       "do work",
		"issues":     []any{map[string]any{"issue_type": "X"}},
		"steps":      []any{map[string]any{"step_id": "a"}},
	}
	once := Normalize(doc)
	twice := Normalize(once)
	assert.Equal(t, once, twice)
}
