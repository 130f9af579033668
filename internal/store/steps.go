package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// AppendStepLog appends one record to the per-day journal, serialized
// through a single writer per store (spec.md §4.1 append_step_log).
// Grounded on original_source/norn/core/audit_logger.py::
// LocalFileStore.write_step.
func (s *Store) AppendStepLog(record map[string]any) error {
	s.stepJournalMu.Lock()
	defer s.stepJournalMu.Unlock()

	path := filepath.Join(s.root, "steps", time.Now().UTC().Format("20060102")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// ReadStepLog reads journal entries for dates in [from, to] (inclusive,
// both formatted YYYYMMDD), used by the audit-log view (SPEC_FULL.md
// §D.3, grounded on original_source/norn/routers/audit.py).
func (s *Store) ReadStepLog(from, to time.Time) ([]map[string]any, error) {
	dir := filepath.Join(s.root, "steps")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	fromKey := from.UTC().Format("20060102")
	toKey := to.UTC().Format("20060102")

	var out []map[string]any
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".jsonl" {
			continue
		}
		key := name[:len(name)-len(filepath.Ext(name))]
		if key < fromKey || key > toKey {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var rec map[string]any
			if err := dec.Decode(&rec); err != nil {
				break
			}
			out = append(out, rec)
		}
	}
	return out, nil
}
