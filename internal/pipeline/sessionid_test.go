package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSessionIDWithoutSwarm(t *testing.T) {
	id := deriveSessionID("kube-agent", nil)
	assert.True(t, strings.HasPrefix(id, "kube-agent-"))
}

func TestDeriveSessionIDWithSwarmIsPrefixedBySwarmID(t *testing.T) {
	swarm := "swarm-42"
	id := deriveSessionID("kube-agent", &swarm)
	assert.True(t, strings.HasPrefix(id, "swarm-42-kube-agent-"))
}

func TestDeriveSessionIDIsUnique(t *testing.T) {
	a := deriveSessionID("agent", nil)
	b := deriveSessionID("agent", nil)
	assert.NotEqual(t, a, b)
}
