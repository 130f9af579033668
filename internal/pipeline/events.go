// Package pipeline implements C3: a per-session state machine driven
// by five agent lifecycle events. Grounded on
// original_source/norn/core/interceptor.py (NornHook).
package pipeline

// SessionStartEvent carries the fields available when a session
// begins (spec.md §4.3 "On SessionStart").
type SessionStartEvent struct {
	AgentName       string
	Model           string
	CallerSessionID string // if non-empty, wins over derivation
	SwarmID         *string
	SwarmOrder      *int
	SystemPrompt    string
	// ExplicitTaskDescription, if non-empty, sets the task immediately
	// rather than waiting for the first user MessageAdded.
	ExplicitTaskDescription string
	MaxSteps                int
}

// MessageAddedEvent carries one new conversation message (spec.md §4.3
// "On MessageAdded").
type MessageAddedEvent struct {
	Role             string // "user" | "assistant"
	Text             string
	HasToolUseBlocks bool
}

// BeforeToolEvent carries the proposed tool call before it executes.
type BeforeToolEvent struct {
	ToolName  string
	ToolInput map[string]any
}

// BeforeToolResult tells the agent framework whether to cancel the
// call (spec.md §6 "the engine may set cancel_tool=true with a
// cancel_reason").
type BeforeToolResult struct {
	Cancel       bool
	CancelReason string
}

// AfterToolEvent carries the observed tool result.
type AfterToolEvent struct {
	ToolName  string
	ToolInput map[string]any
	Result    string
	IsError   bool
}
