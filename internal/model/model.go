// Package model defines the shared entities passed between the store,
// analyzer, pipeline, evaluator and ingest components.
package model

import "time"

// StepStatus is the lifecycle status of a single recorded step.
type StepStatus string

const (
	StepSuccess    StepStatus = "SUCCESS"
	StepFailed     StepStatus = "FAILED"
	StepIrrelevant StepStatus = "IRRELEVANT"
	StepRedundant  StepStatus = "REDUNDANT"
	StepBlocked    StepStatus = "BLOCKED"
)

// OverallQuality is the session-level verdict.
type OverallQuality string

const (
	QualityExcellent OverallQuality = "EXCELLENT"
	QualityGood      OverallQuality = "GOOD"
	QualityPoor      OverallQuality = "POOR"
	QualityFailed    OverallQuality = "FAILED"
	QualityStuck     OverallQuality = "STUCK"
	QualityPending   OverallQuality = "PENDING"
)

// IssueType is the closed set of quality and security issue kinds.
type IssueType string

const (
	IssueInfiniteLoop       IssueType = "INFINITE_LOOP"
	IssueTaskDrift          IssueType = "TASK_DRIFT"
	IssueInefficiency       IssueType = "INEFFICIENCY"
	IssueIncomplete         IssueType = "INCOMPLETE"
	IssueToolMisuse         IssueType = "TOOL_MISUSE"
	IssueErrorHandling      IssueType = "ERROR_HANDLING"
	IssueDataExfiltration   IssueType = "DATA_EXFILTRATION"
	IssuePromptInjection    IssueType = "PROMPT_INJECTION"
	IssueUnauthorizedAccess IssueType = "UNAUTHORIZED_ACCESS"
	IssueSuspiciousBehavior IssueType = "SUSPICIOUS_BEHAVIOR"
	IssueCredentialLeak     IssueType = "CREDENTIAL_LEAK"
	IssueSecurityBypass     IssueType = "SECURITY_BYPASS"
	IssueMissingConfig      IssueType = "MISSING_CONFIG"
)

// GuardMode selects whether the pipeline only observes or actively
// cancels offending tool calls. Fixed to two values per spec.md §6 —
// see SPEC_FULL.md Open Question decision #4.
type GuardMode string

const (
	ModeMonitor   GuardMode = "monitor"
	ModeIntervene GuardMode = "intervene"
)

// AgentSource is where an agent registry entry's code came from.
type AgentSource string

const (
	SourceGit  AgentSource = "git"
	SourceZip  AgentSource = "zip"
	SourceHook AgentSource = "hook"
)

// AgentStatus is the lifecycle status of a registered agent.
type AgentStatus string

const (
	AgentAnalyzing AgentStatus = "analyzing"
	AgentAnalyzed  AgentStatus = "analyzed"
	AgentReady     AgentStatus = "ready"
	AgentRunning   AgentStatus = "running"
)

// TaskDefinition describes what the agent is trying to accomplish.
// Immutable once created for a session.
type TaskDefinition struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	ExpectedTools   []string `json:"expected_tools,omitempty"`
	MaxSteps        int      `json:"max_steps"`
	SuccessCriteria string   `json:"success_criteria,omitempty"`
}

// StepRecord is one tool invocation (or pure-reasoning step) within a
// session.
type StepRecord struct {
	StepID         string         `json:"step_id"`
	StepNumber     int            `json:"step_number"`
	Timestamp      time.Time      `json:"timestamp"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`
	ToolResult     string         `json:"tool_result"`
	Status         StepStatus     `json:"status"`
	RelevanceScore *int           `json:"relevance_score"`
	SecurityScore  *int           `json:"security_score"`
	Reasoning      string         `json:"reasoning,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	// fullResult is the untruncated tool result, kept in memory for C4
	// only; never persisted or broadcast (spec.md §4.3 On AfterTool #2).
	fullResult string `json:"-"`
}

// SetFullResult stores the untruncated result for judge consumption.
func (s *StepRecord) SetFullResult(v string) { s.fullResult = v }

// FullResult returns the untruncated result, or ToolResult if none was set.
func (s *StepRecord) FullResult() string {
	if s.fullResult != "" {
		return s.fullResult
	}
	return s.ToolResult
}

// QualityIssue is one deterministic- or judge-detected problem.
type QualityIssue struct {
	IssueID         string    `json:"issue_id"`
	Timestamp       time.Time `json:"timestamp"`
	IssueType       IssueType `json:"issue_type"`
	Severity        int       `json:"severity"`
	Description     string    `json:"description"`
	AffectedStepIDs []string  `json:"affected_step_ids"`
	Recommendation  string    `json:"recommendation,omitempty"`
	AutoResolved    bool      `json:"auto_resolved"`
}

// SessionReport is the durable, broadcastable record for one session.
type SessionReport struct {
	SessionID string          `json:"session_id"`
	AgentName string          `json:"agent_name"`
	Model     string          `json:"model,omitempty"`
	Task      *TaskDefinition `json:"task"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`

	TotalSteps int                `json:"total_steps"`
	Counts     map[StepStatus]int `json:"counts,omitempty"`

	OverallQuality       OverallQuality `json:"overall_quality"`
	EfficiencyScore      *int           `json:"efficiency_score,omitempty"`
	SecurityScore        *int           `json:"security_score,omitempty"`
	TaskCompletion       *bool          `json:"task_completion,omitempty"`
	CompletionConfidence *int           `json:"completion_confidence,omitempty"`

	Issues []QualityIssue `json:"issues"`
	Steps  []StepRecord   `json:"steps"`

	TotalExecutionTimeMs int64 `json:"total_execution_time_ms"`

	JudgeSummary          string   `json:"judge_summary,omitempty"`
	ToolAnalysis          string   `json:"tool_analysis,omitempty"`
	DecisionObservations  string   `json:"decision_observations,omitempty"`
	EfficiencyExplanation string   `json:"efficiency_explanation,omitempty"`
	Recommendations       []string `json:"recommendations,omitempty"`

	SwarmID      *string `json:"swarm_id,omitempty"`
	SwarmOrder   *int    `json:"swarm_order,omitempty"`
	HandoffInput *string `json:"handoff_input,omitempty"`

	// Status is an externally-owned top-level field: the dashboard /
	// ingest caller may set it directly, and C1's merge preserves it
	// when a subsequent write omits it (spec.md §4.1 put_session).
	Status string `json:"status,omitempty"`
	// AgentID is likewise externally-owned and preserved across merges.
	AgentID string `json:"agent_id,omitempty"`

	LoopDetected           bool `json:"loop_detected,omitempty"`
	SecurityBreachDetected bool `json:"security_breach_detected,omitempty"`
}

// AgentRegistryEntry describes one known agent.
type AgentRegistryEntry struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Source               AgentSource `json:"source"`
	Status               AgentStatus `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	LastRun              *time.Time  `json:"last_run,omitempty"`
	CapabilityDescriptor string      `json:"capability_descriptor,omitempty"`
}

// SensitiveKeyMarkers is the closed, case-insensitive substring list
// used to redact tool_input at every depth (spec.md invariant 5).
var SensitiveKeyMarkers = []string{
	"password", "secret", "token", "api_key", "apikey", "private_key",
	"access_key", "auth", "credential", "passwd", "ssh_key",
}

// RedactionMarker replaces any value under a sensitive key.
const RedactionMarker = "[REDACTED]"

// IntPtr is a small helper for building StepRecord/SessionReport score fields.
func IntPtr(v int) *int { return &v }

// BoolPtr is a small helper for building SessionReport.TaskCompletion.
func BoolPtr(v bool) *bool { return &v }
