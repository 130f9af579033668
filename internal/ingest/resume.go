package ingest

import "github.com/hashtagemy/guard/internal/store"

// ResumeSession implements the POST /sessions/ingest resume contract
// (spec.md §4.1 "If session_id already exists..."): the incoming
// report is merged in as usual, then — only when a prior record
// existed — status is forced back to "active" and ended_at is
// cleared, since an ingest call always means the agent is running
// again. Swarm fields and task are backfilled for free by the
// generic merge (an empty incoming value never overwrites a present
// existing one).
func ResumeSession(s *store.Store, sessionID string, incoming map[string]any) (merged map[string]any, priorStepCount int, resumed bool, err error) {
	existing, getErr := s.GetSession(sessionID)
	if getErr != nil && getErr != store.ErrNotFound {
		return nil, 0, false, getErr
	}
	resumed = getErr == nil
	if resumed {
		if steps, ok := existing["steps"].([]any); ok {
			priorStepCount = len(steps)
		}
	}

	merged, err = s.PutSession(incoming)
	if err != nil {
		return nil, 0, false, err
	}

	if resumed {
		merged, err = s.ForceFields(sessionID, map[string]any{"status": "active", "ended_at": nil})
		if err != nil {
			return nil, 0, false, err
		}
	}
	return merged, priorStepCount, resumed, nil
}
