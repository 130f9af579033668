package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtagemy/guard/internal/model"
	"github.com/hashtagemy/guard/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	return New(s)
}

func TestRegisterCreatesNewEntry(t *testing.T) {
	r := newTestRegistry(t)

	entry, err := r.Register("kube-agent", model.SourceHook)
	require.NoError(t, err)
	assert.Equal(t, "kube-agent", entry.Name)
	assert.Equal(t, model.SourceHook, entry.Source)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, model.AgentRunning, entry.Status)
}

func TestRegisterIsIdempotentByName(t *testing.T) {
	r := newTestRegistry(t)

	first, err := r.Register("kube-agent", model.SourceHook)
	require.NoError(t, err)

	second, err := r.Register("kube-agent", model.SourceGit)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "registering the same name again must refresh, not create a new id")

	all, err := r.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	entry, err := r.Register("kube-agent", model.SourceHook)
	require.NoError(t, err)

	require.NoError(t, r.Delete(entry.ID))
	require.NoError(t, r.Delete(entry.ID), "deleting an already-absent entry must not error")

	all, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListReturnsAllRegisteredAgents(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register("agent-a", model.SourceHook)
	require.NoError(t, err)
	_, err = r.Register("agent-b", model.SourceZip)
	require.NoError(t, err)

	all, err := r.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
