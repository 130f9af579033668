package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtagemy/guard/internal/store"
)

func newTestStoreForIngest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestResumeSessionFirstIngestIsNotResumed(t *testing.T) {
	s := newTestStoreForIngest(t)

	merged, priorCount, resumed, err := ResumeSession(s, "s1", map[string]any{
		"session_id": "s1",
		"status":     "active",
	})
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, 0, priorCount)
	assert.Equal(t, "active", merged["status"])
}

func TestResumeSessionForcesActiveAndClearsEndedAt(t *testing.T) {
	s := newTestStoreForIngest(t)

	_, err := s.PutSession(map[string]any{
		"session_id": "s1",
		"status":     "terminated",
		"ended_at":   "2026-01-01T00:00:00Z",
		"steps":      []any{map[string]any{"step_id": "a"}, map[string]any{"step_id": "b"}},
	})
	require.NoError(t, err)

	merged, priorCount, resumed, err := ResumeSession(s, "s1", map[string]any{
		"session_id": "s1",
		"task":       "resume work",
	})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, 2, priorCount)
	assert.Equal(t, "active", merged["status"])

	_, hasEndedAt := merged["ended_at"]
	assert.False(t, hasEndedAt)
	assert.Equal(t, "resume work", merged["task"])
}

func TestResumeSessionPropagatesNotFoundStoreErrorsOnly(t *testing.T) {
	s := newTestStoreForIngest(t)
	_, _, resumed, err := ResumeSession(s, "never-seen", map[string]any{"session_id": "never-seen"})
	require.NoError(t, err)
	assert.False(t, resumed)
}
