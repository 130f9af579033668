// Package masking redacts sensitive data from tool input before it is
// persisted or broadcast.
package masking

import (
	"strings"

	"github.com/hashtagemy/guard/internal/model"
)

// RedactToolInput walks m recursively and replaces any value whose key
// contains a sensitive marker (case-insensitive substring) with the
// redaction marker, at every nesting depth. Grounded on
// original_source/norn/core/interceptor.py::_mask_sensitive and
// spec.md invariant 5 / testable property 3.
func RedactToolInput(input map[string]any) map[string]any {
	return redactMap(input).(map[string]any)
}

func redactMap(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if isSensitiveKey(k) {
				out[k] = model.RedactionMarker
				continue
			}
			out[k] = redactMap(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = redactMap(val)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range model.SensitiveKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
