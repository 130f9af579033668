// Package registry is the agent registry: the list of agents the
// engine has ever seen, keyed by name. Grounded on
// original_source/norn/routers/agents_registry.py, whose register
// endpoint is idempotent by name — calling it twice for the same
// agent updates last_run in place rather than creating a second
// entry (spec.md §3 "Hook entries are idempotent by name").
package registry

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hashtagemy/guard/internal/model"
	"github.com/hashtagemy/guard/internal/store"
)

// Registry wraps the store's registry file with the idempotent
// register/list/delete operations spec.md §4.5 and §3 describe.
type Registry struct {
	store *store.Store
}

// New builds a Registry backed by s.
func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// Register idempotently creates or refreshes the entry for name: a
// first call creates it with a new id and created_at; every
// subsequent call (same name) updates status/last_run on the existing
// entry rather than minting a new id. Returns the canonical entry.
func (r *Registry) Register(name string, source model.AgentSource) (model.AgentRegistryEntry, error) {
	entries, err := r.store.ListRegistry()
	if err != nil {
		return model.AgentRegistryEntry{}, err
	}

	now := time.Now().UTC()
	for _, e := range entries {
		if n, _ := e["name"].(string); n == name {
			e["status"] = string(model.AgentRunning)
			e["last_run"] = now
			stored, err := r.store.UpsertRegistryEntry(e)
			if err != nil {
				return model.AgentRegistryEntry{}, err
			}
			return toEntry(stored), nil
		}
	}

	entry := model.AgentRegistryEntry{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    source,
		Status:    model.AgentRunning,
		CreatedAt: now,
		LastRun:   &now,
	}
	stored, err := r.store.UpsertRegistryEntry(toMap(entry))
	if err != nil {
		return model.AgentRegistryEntry{}, err
	}
	return toEntry(stored), nil
}

// List returns every registry entry.
func (r *Registry) List() ([]model.AgentRegistryEntry, error) {
	raw, err := r.store.ListRegistry()
	if err != nil {
		return nil, err
	}
	out := make([]model.AgentRegistryEntry, 0, len(raw))
	for _, e := range raw {
		out = append(out, toEntry(e))
	}
	return out, nil
}

// Delete removes an entry by id. Idempotent: deleting an already
// absent entry is not an error (SPEC_FULL.md §D.6).
func (r *Registry) Delete(id string) error {
	return r.store.DeleteRegistryEntry(id)
}

func toMap(e model.AgentRegistryEntry) map[string]any {
	raw, _ := json.Marshal(e)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func toEntry(m map[string]any) model.AgentRegistryEntry {
	raw, _ := json.Marshal(m)
	var out model.AgentRegistryEntry
	_ = json.Unmarshal(raw, &out)
	return out
}
