// Package config loads the static, process-level bootstrap
// configuration (listen address, log root, CORS origins, API key,
// dashboard URL, judge endpoint). Grounded on tarsy's
// pkg/config/loader.go: a YAML file with {{.VAR}}-style environment
// expansion, merged over built-in defaults with dario.cat/mergo.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the process-level bootstrap configuration.
type Config struct {
	ListenAddr    string   `yaml:"listen_addr"`
	LogRoot       string   `yaml:"log_root"`
	CORSOrigins   []string `yaml:"cors_origins"`
	APIKey        string   `yaml:"api_key"`
	DashboardURL  string   `yaml:"dashboard_url"`
	JudgeEndpoint string   `yaml:"judge_endpoint"`
	RetentionCron string   `yaml:"retention_cron"`
}

func defaults() Config {
	return Config{
		ListenAddr:    ":8080",
		LogRoot:       "guard_logs",
		CORSOrigins:   []string{"*"},
		DashboardURL:  "http://localhost:5173",
		RetentionCron: "0 3 * * *", // daily at 03:00, per adhocore/gronx cron syntax
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return match
	})
}

// Load reads path (if present), expands ${VAR} references against the
// environment, and merges the result over the built-in defaults.
// A missing file is not an error: the defaults apply as-is, matching
// tarsy's tolerant bootstrap behavior for local/dev runs.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		applyEnvOverrides(&cfg)
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var loaded Config
	if err := yaml.Unmarshal(expandEnv(raw), &loaded); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := mergo.Merge(&loaded, cfg); err != nil {
		return Config{}, fmt.Errorf("config: merge defaults: %w", err)
	}
	applyEnvOverrides(&loaded)
	return loaded, nil
}

// applyEnvOverrides lets the recognized GUARD_* environment variables
// win over both the file and the defaults, so a containerized deploy
// can run without any guard.yaml at all.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GUARD_LOG_ROOT"); v != "" {
		cfg.LogRoot = v
	}
	if v := os.Getenv("GUARD_CORS_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}
	if v := os.Getenv("GUARD_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("GUARD_DASHBOARD_URL"); v != "" {
		cfg.DashboardURL = v
	}
}
