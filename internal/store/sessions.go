package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store is C1: durable, atomic, merge-aware persistence of sessions,
// issues, and the agent registry, plus a pure-append step log. One
// Store serves one log root directory (spec.md §6 persisted layout).
type Store struct {
	root          string
	sessionLocks  *keyedLock
	issueLocks    *keyedLock
	registryMu    sync.Mutex
	stepJournalMu sync.Mutex
}

// New creates a Store rooted at dir, creating the standard
// subdirectories if absent.
func New(dir string) (*Store, error) {
	s := &Store{
		root:         dir,
		sessionLocks: newKeyedLock(),
		issueLocks:   newKeyedLock(),
	}
	for _, sub := range []string{"sessions", "steps", "issues", "workspace"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", sub, err)
		}
	}
	return s, nil
}

func (s *Store) sessionPath(id string) string { return filepath.Join(s.root, "sessions", id+".json") }

// EnsureWorkspace creates (if needed) and returns the per-session
// working directory under workspace/.
func (s *Store) EnsureWorkspace(sessionID string) (string, error) {
	dir := filepath.Join(s.root, "workspace", sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create workspace: %w", err)
	}
	return dir, nil
}
func (s *Store) issuePath(id string) string { return filepath.Join(s.root, "issues", id+".json") }
func (s *Store) registryPath() string       { return filepath.Join(s.root, "agents_registry.json") }

// ErrNotFound is returned by read operations when the requested record
// is absent.
var ErrNotFound = fmt.Errorf("store: not found")

// PutSession atomically writes the session identified by
// incoming["session_id"], field-merging with any existing record
// (spec.md §4.1 put_session, invariant 6, testable property 2).
// Returns the merged, persisted document.
func (s *Store) PutSession(incoming map[string]any) (map[string]any, error) {
	id, _ := incoming["session_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("store: session_id is required")
	}

	unlock := s.sessionLocks.Lock(id)
	defer unlock()

	path := s.sessionPath(id)
	var existing map[string]any
	if err := readJSON(path, &existing); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		existing = nil
	}

	var merged map[string]any
	if existing == nil {
		merged = cloneMap(incoming)
	} else {
		merged = mergeTopLevel(existing, incoming)
		exSteps, _ := existing["steps"].([]any)
		inSteps, _ := incoming["steps"].([]any)
		if inSteps != nil || exSteps != nil {
			merged["steps"] = mergeSteps(exSteps, inSteps)
		}
	}
	// float64, matching the JSON-decoded representation of every other
	// numeric field in the document.
	if steps, ok := merged["steps"].([]any); ok {
		merged["total_steps"] = float64(len(steps))
	}

	if err := atomicWriteJSON(path, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// ForceFields overwrites specific top-level fields of a session
// document outside the normal non-empty-wins merge rule: a nil value
// deletes the key, any other value replaces it unconditionally. Used
// by the ingest resume path to clear ended_at and force status back
// to "active", which the generic merge in PutSession cannot express
// (spec.md §4.1 resume semantics).
func (s *Store) ForceFields(sessionID string, fields map[string]any) (map[string]any, error) {
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	path := s.sessionPath(sessionID)
	var doc map[string]any
	if err := readJSON(path, &doc); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		doc = map[string]any{"session_id": sessionID}
	}
	for k, v := range fields {
		if v == nil {
			delete(doc, k)
		} else {
			doc[k] = v
		}
	}
	if err := atomicWriteJSON(path, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetSession reads one session by id. Returns ErrNotFound if absent.
func (s *Store) GetSession(id string) (map[string]any, error) {
	var out map[string]any
	if err := readJSON(s.sessionPath(id), &out); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

// DeleteSession removes a session file. Idempotent: deleting an absent
// session is not an error.
func (s *Store) DeleteSession(id string) error {
	unlock := s.sessionLocks.Lock(id)
	defer unlock()
	err := os.Remove(s.sessionPath(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteStep removes one step (by step_id) from a session, reporting
// whether it was found.
func (s *Store) DeleteStep(sessionID, stepID string) (bool, error) {
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	path := s.sessionPath(sessionID)
	var doc map[string]any
	if err := readJSON(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return false, ErrNotFound
		}
		return false, err
	}
	steps, _ := doc["steps"].([]any)
	found := false
	filtered := make([]any, 0, len(steps))
	for _, raw := range steps {
		m, _ := raw.(map[string]any)
		if m != nil {
			if id, _ := m["step_id"].(string); id == stepID {
				found = true
				continue
			}
		}
		filtered = append(filtered, raw)
	}
	if !found {
		return false, nil
	}
	doc["steps"] = filtered
	doc["total_steps"] = float64(len(filtered))
	if err := atomicWriteJSON(path, doc); err != nil {
		return false, err
	}
	return true, nil
}

// ListSessions returns up to limit sessions, most recently modified
// first (limit<=0 means unbounded).
func (s *Store) ListSessions(limit int) ([]map[string]any, error) {
	dir := filepath.Join(s.root, "sessions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime int64
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(dir, e.Name()), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		var doc map[string]any
		if err := readJSON(f.path, &doc); err != nil {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// PutIssue atomically writes one issue file.
func (s *Store) PutIssue(id string, issue map[string]any) error {
	unlock := s.issueLocks.Lock(id)
	defer unlock()
	return atomicWriteJSON(s.issuePath(id), issue)
}

// PutRegistry atomically writes the whole registry array, serialized
// through the single process-wide registry lock (spec.md §5).
func (s *Store) PutRegistry(entries []map[string]any) error {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	return atomicWriteJSON(s.registryPath(), entries)
}

// ListRegistry reads the current registry, or an empty slice if none
// exists yet.
func (s *Store) ListRegistry() ([]map[string]any, error) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	var out []map[string]any
	if err := readJSON(s.registryPath(), &out); err != nil {
		if os.IsNotExist(err) {
			return []map[string]any{}, nil
		}
		return nil, err
	}
	return out, nil
}

// UpsertRegistryEntry adds or idempotently replaces (by name) one
// registry entry, then deletes by id, under the single registry lock
// so readers never see a torn intermediate state (spec.md §4.1,
// "idempotent by name" per original_source/norn/routers/
// agents_registry.py semantics).
func (s *Store) UpsertRegistryEntry(entry map[string]any) (map[string]any, error) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	var entries []map[string]any
	if err := readJSON(s.registryPath(), &entries); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	name, _ := entry["name"].(string)
	replaced := false
	for i, e := range entries {
		if n, _ := e["name"].(string); n == name {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	if err := atomicWriteJSON(s.registryPath(), entries); err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteRegistryEntry removes an entry by id. Idempotent.
func (s *Store) DeleteRegistryEntry(id string) error {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	var entries []map[string]any
	if err := readJSON(s.registryPath(), &entries); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if eid, _ := e["id"].(string); eid == id {
			continue
		}
		out = append(out, e)
	}
	return atomicWriteJSON(s.registryPath(), out)
}

func cloneMap(m map[string]any) map[string]any {
	raw, _ := json.Marshal(m)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

// mergeTopLevel applies spec.md invariant 6: non-empty fields of
// incoming overwrite existing; empty/absent fields of incoming never
// erase a present value in existing. "steps" is handled by the caller
// via mergeSteps and is skipped here.
func mergeTopLevel(existing, incoming map[string]any) map[string]any {
	result := cloneMap(existing)
	for k, v := range incoming {
		if k == "steps" {
			continue
		}
		if isEmptyValue(v) {
			continue
		}
		result[k] = v
	}
	return result
}

// mergeSteps merges two step-array JSON representations by step_id:
// existing steps are overwritten field-by-field only where the
// incoming value is non-empty, and genuinely new steps are appended.
// Grounded on original_source/norn/core/audit_logger.py::
// LocalFileStore.write_session.
func mergeSteps(existing, incoming []any) []any {
	result := make([]any, 0, len(existing))
	indexByID := make(map[string]int, len(existing))
	for _, raw := range existing {
		m, _ := raw.(map[string]any)
		if m == nil {
			continue
		}
		id, _ := m["step_id"].(string)
		indexByID[id] = len(result)
		result = append(result, cloneMap(m))
	}

	for _, raw := range incoming {
		m, _ := raw.(map[string]any)
		if m == nil {
			continue
		}
		id, _ := m["step_id"].(string)
		if idx, ok := indexByID[id]; ok && id != "" {
			current := result[idx].(map[string]any)
			for k, v := range m {
				if isEmptyValue(v) {
					continue
				}
				current[k] = v
			}
			result[idx] = current
		} else {
			result = append(result, cloneMap(m))
			indexByID[id] = len(result) - 1
		}
	}
	return result
}

// isEmptyValue implements the spec's notion of ⊥ for merge purposes:
// nil, empty string, empty array, or empty object. Numeric zero and
// boolean false are meaningful explicit values, not placeholders, and
// are never treated as empty.
func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}
