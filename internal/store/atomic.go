// Package store implements C1, the durable, atomic, merge-aware
// session/issue/registry persistence layer and the per-day step
// journal. Grounded on original_source/norn/core/audit_logger.py and
// original_source/norn/shared.py::_atomic_write_json.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// atomicWriteJSON writes data to path via a temp file in the same
// directory followed by a rename, so a crash between the two never
// leaves a zero-length or half-written file at path (spec.md invariant
// 4 / testable property 4). Mirrors
// original_source/norn/shared.py::_atomic_write_json exactly: mkstemp
// in the target directory, write, close, rename over the destination,
// with cleanup of the temp file on any failure.
func atomicWriteJSON(path string, data any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// readJSON loads and unmarshals path into v. Returns os.ErrNotExist
// (wrapped) if the file does not exist, so callers can translate to a
// "not found" error kind without special-casing here.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
