package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaults(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaults(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9090\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, defaults().LogRoot, cfg.LogRoot, "fields absent from the file fall back to defaults")
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("GUARD_API_KEY", "secret-123")
	path := filepath.Join(t.TempDir(), "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: \"${GUARD_API_KEY}\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-123", cfg.APIKey)
}

func TestLoadLeavesUnresolvedEnvReferenceAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: \"${GUARD_NEVER_SET_XYZ}\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${GUARD_NEVER_SET_XYZ}", cfg.APIKey)
}

func TestLoadEnvironmentOverridesWinOverFile(t *testing.T) {
	t.Setenv("GUARD_LOG_ROOT", "/var/lib/guard")
	t.Setenv("GUARD_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("GUARD_API_KEY", "from-env")
	t.Setenv("GUARD_DASHBOARD_URL", "https://dash.example")

	path := filepath.Join(t.TempDir(), "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_root: \"./from-file\"\napi_key: \"from-file\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/guard", cfg.LogRoot)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "https://dash.example", cfg.DashboardURL)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{not yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
