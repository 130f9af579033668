// Package guardconfig is the runtime, dashboard-editable engine config
// (spec.md §6 "Configuration"), persisted as config.json with
// allowlisted-key PUT semantics. Grounded on
// original_source/norn/shared.py::DEFAULT_CONFIG and
// original_source/norn/routers/config.py.
package guardconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashtagemy/guard/internal/model"
)

// Config is the flat, fully-enumerated runtime engine config.
type Config struct {
	GuardMode               model.GuardMode `json:"guard_mode"`
	MaxSteps                int             `json:"max_steps"`
	EnableAIEval            bool            `json:"enable_ai_eval"`
	EnableShadowBrowser     bool            `json:"enable_shadow_browser"`
	LoopWindow              int             `json:"loop_window"`
	LoopThreshold           int             `json:"loop_threshold"`
	MaxSameTool             int             `json:"max_same_tool"`
	SecurityScoreThreshold  int             `json:"security_score_threshold"`
	RelevanceScoreThreshold int             `json:"relevance_score_threshold"`
	AutoInterveneOnLoop     bool            `json:"auto_intervene_on_loop"`
	LogRetentionDays        int             `json:"log_retention_days"`
}

// Default matches original_source/norn/shared.py::DEFAULT_CONFIG
// exactly.
func Default() Config {
	return Config{
		GuardMode:               model.ModeMonitor,
		MaxSteps:                50,
		EnableAIEval:            true,
		EnableShadowBrowser:     false,
		LoopWindow:              5,
		LoopThreshold:           3,
		MaxSameTool:             10,
		SecurityScoreThreshold:  70,
		RelevanceScoreThreshold: 30,
		AutoInterveneOnLoop:     false,
		LogRetentionDays:        30,
	}
}

// allowedKeys is the set PUT /config validates against — unknown keys
// are silently ignored (spec.md §6).
var allowedKeys = map[string]bool{
	"guard_mode": true, "max_steps": true, "enable_ai_eval": true,
	"enable_shadow_browser": true, "loop_window": true, "loop_threshold": true,
	"max_same_tool": true, "security_score_threshold": true,
	"relevance_score_threshold": true, "auto_intervene_on_loop": true,
	"log_retention_days": true,
}

// Store holds the live config in memory, persists it to config.json,
// and watches the file for external edits via fsnotify (domain-stack
// addition — SPEC_FULL.md ambient config section) so a human editing
// the file directly is picked up without a restart.
type Store struct {
	path string

	mu  sync.RWMutex
	cur Config

	watcher *fsnotify.Watcher
}

// Load reads config.json at path, creating it with defaults if absent.
// On first bootstrap (no file yet) the GUARD_MODE environment variable
// seeds guard_mode; once the file exists it is the single source of
// truth, so a PUT /config edit survives restarts.
func Load(path string) (*Store, error) {
	s := &Store{path: path, cur: Default()}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if mode := model.GuardMode(os.Getenv("GUARD_MODE")); mode == model.ModeMonitor || mode == model.ModeIntervene {
			s.cur.GuardMode = mode
		}
		if err := s.persist(); err != nil {
			return nil, err
		}
		return s, nil
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	s.cur = cfg
	return s, nil
}

// Get returns a copy of the current config.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies only the allowlisted keys present in patch, leaving
// everything else untouched, and persists atomically.
func (s *Store) Update(patch map[string]any) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(s.cur)
	if err != nil {
		return Config{}, err
	}
	var cur map[string]any
	if err := json.Unmarshal(raw, &cur); err != nil {
		return Config{}, err
	}

	for k, v := range patch {
		if allowedKeys[k] {
			cur[k] = v
		}
	}

	merged, err := json.Marshal(cur)
	if err != nil {
		return Config{}, err
	}
	var next Config
	if err := json.Unmarshal(merged, &next); err != nil {
		return Config{}, err
	}

	s.cur = next
	if err := s.persist(); err != nil {
		return Config{}, err
	}
	return s.cur, nil
}

func (s *Store) persist() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-config-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.cur); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Watch starts watching the config file for external edits, reloading
// Store's in-memory copy whenever it changes on disk. Best-effort: a
// watcher setup failure just means no hot-reload, never a fatal error.
func (s *Store) Watch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	s.watcher = w
	_ = w.Add(filepath.Dir(s.path))

	go func() {
		for event := range w.Events {
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(s.path)
			if err != nil {
				continue
			}
			var cfg Config
			if err := json.Unmarshal(data, &cfg); err != nil {
				continue
			}
			s.mu.Lock()
			s.cur = cfg
			s.mu.Unlock()
		}
	}()
}

// Close stops the watcher, if any.
func (s *Store) Close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}
