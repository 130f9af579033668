package store

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPutSessionNewRecord(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.PutSession(map[string]any{
		"session_id": "s1",
		"agent_name": "kube-agent",
		"steps":      []any{map[string]any{"step_id": "st1", "step_number": float64(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "kube-agent", doc["agent_name"])
	assert.Equal(t, float64(1), doc["total_steps"])

	got, err := s.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "kube-agent", got["agent_name"])
}

func TestPutSessionMergeNeverErasesWithEmpty(t *testing.T) {
	s := newTestStore(t)

	_, err := s.PutSession(map[string]any{
		"session_id": "s1",
		"agent_name": "kube-agent",
		"status":     "active",
	})
	require.NoError(t, err)

	merged, err := s.PutSession(map[string]any{
		"session_id": "s1",
		"agent_name": "",
		"status":     "completed",
	})
	require.NoError(t, err)

	assert.Equal(t, "kube-agent", merged["agent_name"], "empty string in incoming must not erase existing value")
	assert.Equal(t, "completed", merged["status"], "non-empty incoming value overwrites existing")
}

func TestPutSessionMergeStepsByID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.PutSession(map[string]any{
		"session_id": "s1",
		"steps": []any{
			map[string]any{"step_id": "a", "step_number": float64(1), "tool_name": "kubectl"},
		},
	})
	require.NoError(t, err)

	merged, err := s.PutSession(map[string]any{
		"session_id": "s1",
		"steps": []any{
			map[string]any{"step_id": "a", "status": "blocked"},
			map[string]any{"step_id": "b", "step_number": float64(2), "tool_name": "get_logs"},
		},
	})
	require.NoError(t, err)

	steps := merged["steps"].([]any)
	require.Len(t, steps, 2)

	first := steps[0].(map[string]any)
	assert.Equal(t, "kubectl", first["tool_name"], "field-level merge must preserve fields incoming omits")
	assert.Equal(t, "blocked", first["status"])

	second := steps[1].(map[string]any)
	assert.Equal(t, "get_logs", second["tool_name"])

	assert.Equal(t, float64(2), merged["total_steps"])
}

func TestForceFieldsOverwritesAndDeletes(t *testing.T) {
	s := newTestStore(t)

	_, err := s.PutSession(map[string]any{
		"session_id": "s1",
		"status":     "terminated",
		"ended_at":   "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	doc, err := s.ForceFields("s1", map[string]any{
		"status":   "active",
		"ended_at": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "active", doc["status"])
	_, hasEndedAt := doc["ended_at"]
	assert.False(t, hasEndedAt, "nil field value must delete the key")
}

func TestEnsureWorkspaceCreatesPerSessionDir(t *testing.T) {
	s := newTestStore(t)

	dir, err := s.EnsureWorkspace("s1")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	again, err := s.EnsureWorkspace("s1")
	require.NoError(t, err)
	assert.Equal(t, dir, again)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSessionIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.DeleteSession("never-existed"))

	_, err := s.PutSession(map[string]any{"session_id": "s1"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteSession("s1"))
	_, err = s.GetSession("s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteStep(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutSession(map[string]any{
		"session_id": "s1",
		"steps": []any{
			map[string]any{"step_id": "a"},
			map[string]any{"step_id": "b"},
		},
	})
	require.NoError(t, err)

	found, err := s.DeleteStep("s1", "a")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.DeleteStep("s1", "a")
	require.NoError(t, err)
	assert.False(t, found, "deleting an already-absent step reports not found")

	doc, err := s.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), doc["total_steps"])
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutSession(map[string]any{"session_id": "first"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.PutSession(map[string]any{"session_id": "second"})
	require.NoError(t, err)

	sessions, err := s.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "second", sessions[0]["session_id"])

	limited, err := s.ListSessions(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRegistryUpsertIsIdempotentByName(t *testing.T) {
	s := newTestStore(t)

	entry, err := s.UpsertRegistryEntry(map[string]any{"id": "id-1", "name": "kube-agent", "source": "hook"})
	require.NoError(t, err)
	assert.Equal(t, "kube-agent", entry["name"])

	_, err = s.UpsertRegistryEntry(map[string]any{"id": "id-2", "name": "kube-agent", "source": "git"})
	require.NoError(t, err)

	all, err := s.ListRegistry()
	require.NoError(t, err)
	require.Len(t, all, 1, "registering the same name twice must not duplicate the entry")
	assert.Equal(t, "git", all[0]["source"])

	require.NoError(t, s.DeleteRegistryEntry("id-2"))
	all, err = s.ListRegistry()
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, s.DeleteRegistryEntry("never-existed"), "deleting an absent id is not an error")
}

func TestPutRegistryReplacesWholeList(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutRegistry([]map[string]any{
		{"id": "id-1", "name": "agent-a"},
		{"id": "id-2", "name": "agent-b"},
	}))

	all, err := s.ListRegistry()
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.PutRegistry([]map[string]any{{"id": "id-3", "name": "agent-c"}}))
	all, err = s.ListRegistry()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "agent-c", all[0]["name"])
}

func TestPutIssueWritesOneFilePerIssue(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutIssue("iss-1", map[string]any{"issue_id": "iss-1", "issue_type": "INFINITE_LOOP"}))

	var doc map[string]any
	require.NoError(t, readJSON(s.issuePath("iss-1"), &doc))
	assert.Equal(t, "INFINITE_LOOP", doc["issue_type"])
}

func TestAppendAndReadStepLog(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendStepLog(map[string]any{"session_id": "s1", "step_id": "a"}))
	require.NoError(t, s.AppendStepLog(map[string]any{"session_id": "s1", "step_id": "b"}))

	now := time.Now().UTC()
	records, err := s.ReadStepLog(now.AddDate(0, 0, -1), now)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCleanupRemovesOldFiles(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutSession(map[string]any{"session_id": "s1"})
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(s.sessionPath("s1"), old, old))

	removed, err := s.Cleanup(1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.GetSession("s1")
	assert.ErrorIs(t, err, ErrNotFound)
}
