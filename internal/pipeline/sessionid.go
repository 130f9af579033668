package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// deriveSessionID builds a session_id when the caller did not supply
// one: swarm members share a common prefix so a dashboard can group
// them, while distinct runs of the same agent never collide (spec.md
// §4.3 "On SessionStart" / SPEC_FULL.md Open Question decisions).
func deriveSessionID(agentName string, swarmID *string) string {
	suffix := uuid.NewString()[:8]
	stamp := time.Now().UTC().Format("20060102T150405")
	if swarmID != nil && *swarmID != "" {
		return fmt.Sprintf("%s-%s-%s-%s", *swarmID, agentName, stamp, suffix)
	}
	return fmt.Sprintf("%s-%s-%s", agentName, stamp, suffix)
}
