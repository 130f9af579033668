package guardconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtagemy/guard/internal/model"
)

func TestLoadCreatesDefaultWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), s.Get())

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "Load must persist defaults to disk when the file is absent")
}

func TestLoadSeedsGuardModeFromEnvironmentOnFirstBootstrap(t *testing.T) {
	t.Setenv("GUARD_MODE", "intervene")
	path := filepath.Join(t.TempDir(), "config.json")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.ModeIntervene, s.Get().GuardMode)
}

func TestLoadIgnoresGuardModeEnvWhenFileExists(t *testing.T) {
	t.Setenv("GUARD_MODE", "intervene")
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"guard_mode":"monitor","max_steps":50}`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.ModeMonitor, s.Get().GuardMode, "a persisted config must win over the bootstrap env toggle")
}

func TestLoadReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"guard_mode":"intervene","max_steps":5}`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.ModeIntervene, s.Get().GuardMode)
	assert.Equal(t, 5, s.Get().MaxSteps)
}

func TestUpdateOnlyAppliesAllowlistedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	require.NoError(t, err)

	updated, err := s.Update(map[string]any{
		"max_steps":      75,
		"not_a_real_key": "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, 75, updated.MaxSteps)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75, reloaded.Get().MaxSteps, "update must persist to disk")
}

func TestUpdatePreservesUnpatchedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	require.NoError(t, err)

	before := s.Get()
	_, err = s.Update(map[string]any{"max_steps": 99})
	require.NoError(t, err)

	after := s.Get()
	assert.Equal(t, before.GuardMode, after.GuardMode)
	assert.Equal(t, before.LoopWindow, after.LoopWindow)
	assert.Equal(t, 99, after.MaxSteps)
}

func TestWatchPicksUpExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	require.NoError(t, err)
	s.Watch()
	defer s.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_ = data

	raw := `{"guard_mode":"intervene","max_steps":42,"enable_ai_eval":true,"loop_window":5,"loop_threshold":3,"max_same_tool":10,"security_score_threshold":70,"relevance_score_threshold":30,"log_retention_days":30}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Get().MaxSteps == 42 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 42, s.Get().MaxSteps)
}
