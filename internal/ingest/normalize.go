package ingest

import (
	"encoding/json"
	"time"
)

// staleAfter is the age past which a still-"active" session with no
// ended_at is considered abandoned (spec.md §4.5 "active → terminated
// if started >5 min ago with no end time"; SPEC_FULL.md §E.2 pins the
// precedence between the stored status and this heuristic).
const staleAfter = 5 * time.Minute

// Normalize coerces a raw persisted session document into the single
// canonical shape the dashboard expects (spec.md §4.5 "Normalization",
// testable property 8 "normalize(normalize(s)) == normalize(s)").
// Every step here is already a fixed point once applied — adding a
// missing default, or recomputing status from fields that are
// themselves stable under a second pass — so idempotence falls out of
// the implementation rather than needing separate enforcement.
func Normalize(doc map[string]any) map[string]any {
	out := cloneMap(doc)
	normalizeTask(out)
	normalizeIssues(out)
	normalizeSteps(out)
	normalizeStatus(out)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	raw, _ := json.Marshal(m)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// normalizeTask accepts either a bare description string or an object
// carrying one, and always emits the object form (spec.md §4.5 "task
// may be either a string or an object carrying description").
func normalizeTask(doc map[string]any) {
	t, ok := doc["task"]
	if !ok || t == nil {
		return
	}
	switch v := t.(type) {
	case string:
		doc["task"] = map[string]any{"description": v}
	case map[string]any:
		if _, ok := v["description"]; !ok {
			v["description"] = ""
		}
		doc["task"] = v
	}
}

func normalizeIssues(doc map[string]any) {
	issues, _ := doc["issues"].([]any)
	out := make([]any, 0, len(issues))
	for _, raw := range issues {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := m["severity"]; !ok {
			m["severity"] = 0
		}
		if _, ok := m["auto_resolved"]; !ok {
			m["auto_resolved"] = false
		}
		if _, ok := m["affected_step_ids"]; !ok {
			m["affected_step_ids"] = []any{}
		}
		out = append(out, m)
	}
	doc["issues"] = out
}

func normalizeSteps(doc map[string]any) {
	steps, _ := doc["steps"].([]any)
	out := make([]any, 0, len(steps))
	for _, raw := range steps {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := m["relevance_score"]; !ok {
			m["relevance_score"] = nil
		}
		if _, ok := m["security_score"]; !ok {
			m["security_score"] = nil
		}
		if _, ok := m["metadata"]; !ok {
			m["metadata"] = map[string]any{}
		}
		out = append(out, m)
	}
	doc["steps"] = out
}

// normalizeStatus implements SPEC_FULL.md §E.2: the stored status
// wins, except a still-"active" session whose started_at is more than
// five minutes old with no ended_at is forced to "terminated"
// regardless of what is stored.
func normalizeStatus(doc map[string]any) {
	status, _ := doc["status"].(string)
	if status == "" {
		status = "active"
	}

	if status == "active" && doc["ended_at"] == nil {
		if startedAtStr, ok := doc["started_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, startedAtStr); err == nil {
				if time.Since(t) > staleAfter {
					status = "terminated"
				}
			}
		}
	}
	doc["status"] = status
}
