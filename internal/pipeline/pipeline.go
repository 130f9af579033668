package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashtagemy/guard/internal/analyzer"
	"github.com/hashtagemy/guard/internal/eval"
	"github.com/hashtagemy/guard/internal/guardconfig"
	"github.com/hashtagemy/guard/internal/ingest"
	"github.com/hashtagemy/guard/internal/judge"
	"github.com/hashtagemy/guard/internal/masking"
	"github.com/hashtagemy/guard/internal/metrics"
	"github.com/hashtagemy/guard/internal/model"
	"github.com/hashtagemy/guard/internal/registry"
	"github.com/hashtagemy/guard/internal/store"
)

type state int

const (
	stateIdle state = iota
	stateActive
	stateFinalizing
	stateDone
)

// Broadcaster pushes a "this session changed" notification to
// connected dashboards (C5). A func type, not an interface, so
// pipeline never imports the ingest HTTP/WebSocket layer directly.
type Broadcaster func(sessionID string)

// Pipeline is C3: one instance owns exactly one session's lifecycle,
// from SessionStart through the finalizer's last write. Grounded on
// original_source/norn/core/interceptor.py::NornHook, whose five
// _on_* methods this type's five exported methods mirror directly.
type Pipeline struct {
	store           *store.Store
	registry        *registry.Registry
	cfg             func() guardconfig.Config
	evaluator       *eval.Orchestrator
	broadcast       Broadcaster
	finalizeTimeout time.Duration

	mu    sync.Mutex
	state state

	sessionID  string
	agentName  string
	model      string
	swarmID    *string
	swarmOrder *int
	startedAt  time.Time

	task     *model.TaskDefinition
	steps    []*model.StepRecord
	issues   []model.QualityIssue
	analyzer *analyzer.Analyzer
	queue    *eval.Queue
	masker   *masking.Service

	stepCounter  int
	loopDetected bool
	toolCalled   bool // at least one tool call made this session — gates the pure-reasoning synthetic step
	blocked      bool // a BLOCKED step has been recorded; invariant 2: terminal for this attempt

	pendingStepNumber int
	pendingToolName   string
	pendingInputRaw   map[string]any
	pendingRedacted   map[string]any
	pendingStatus     model.StepStatus
}

// New builds a Pipeline. finalizeTimeout bounds the drain-then-judge
// window started by SessionEnd (spec.md §4.3 "bounded finalization
// window", default 120s).
func New(st *store.Store, cfg func() guardconfig.Config, evaluator *eval.Orchestrator, broadcast Broadcaster, finalizeTimeout time.Duration) *Pipeline {
	if finalizeTimeout <= 0 {
		finalizeTimeout = 120 * time.Second
	}
	return &Pipeline{
		store:           st,
		registry:        registry.New(st),
		cfg:             cfg,
		evaluator:       evaluator,
		broadcast:       broadcast,
		finalizeTimeout: finalizeTimeout,
		masker:          masking.NewService(),
		state:           stateIdle,
	}
}

// NewWithJudge builds a Pipeline wired to the configured judge
// endpoint: the JSON-over-HTTP client when judgeEndpoint is set, the
// deterministic stub otherwise. This is the constructor an embedding
// agent framework is expected to call.
func NewWithJudge(st *store.Store, cfg func() guardconfig.Config, judgeEndpoint string, broadcast Broadcaster, finalizeTimeout time.Duration) *Pipeline {
	evaluator := eval.New(judge.NewFromEndpoint(judgeEndpoint), cfg().EnableAIEval)
	return New(st, cfg, evaluator, broadcast, finalizeTimeout)
}

// SessionID returns the session this pipeline instance is currently
// driving (empty before SessionStart).
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// SessionStart resets all per-session state, derives or accepts the
// session_id, scans the system prompt, registers the agent, and
// ingests the fresh/resumed session record (spec.md §4.3 "On
// SessionStart").
func (p *Pipeline) SessionStart(ev SessionStartEvent) {
	p.mu.Lock()

	p.state = stateActive
	p.steps = nil
	p.issues = nil
	p.task = nil
	p.stepCounter = 0
	p.loopDetected = false
	p.toolCalled = false
	p.blocked = false

	cfg := p.cfg()
	maxSteps := ev.MaxSteps
	if maxSteps <= 0 {
		maxSteps = cfg.MaxSteps
	}
	p.analyzer = analyzer.New(analyzer.Config{
		LoopWindow:    cfg.LoopWindow,
		LoopThreshold: cfg.LoopThreshold,
		MaxSameTool:   cfg.MaxSameTool,
	})
	p.queue = &eval.Queue{}

	p.agentName = ev.AgentName
	p.model = ev.Model
	p.swarmID = ev.SwarmID
	p.swarmOrder = ev.SwarmOrder
	p.startedAt = time.Now().UTC()

	if ev.CallerSessionID != "" {
		p.sessionID = ev.CallerSessionID
	} else {
		p.sessionID = deriveSessionID(ev.AgentName, ev.SwarmID)
	}

	if ev.ExplicitTaskDescription != "" {
		p.task = &model.TaskDefinition{ID: uuid.NewString(), Description: ev.ExplicitTaskDescription, MaxSteps: maxSteps}
	}

	if ev.SystemPrompt != "" {
		p.issues = append(p.issues, scanSystemPrompt(ev.SystemPrompt)...)
	}

	sessionID := p.sessionID
	report := buildReport(p.sessionID, p.agentName, p.model, p.task, p.startedAt, p.steps, p.issues, p.swarmID, p.swarmOrder)
	p.mu.Unlock()

	_, _ = p.registry.Register(ev.AgentName, model.SourceHook)
	_, _ = p.store.EnsureWorkspace(sessionID)
	p.persistIssues(report.Issues)

	_, priorCount, resumed, err := ingest.ResumeSession(p.store, sessionID, reportToMap(report))
	if err == nil {
		if resumed {
			p.mu.Lock()
			p.stepCounter = priorCount
			p.mu.Unlock()
		}
		if p.broadcast != nil {
			p.broadcast(sessionID)
		}
	}
}

// MessageAdded records the task (from the first user message, if no
// explicit task was given) and, for a pure-reasoning assistant turn
// made before any tool has been called this session, synthesizes a
// clean SUCCESS step (spec.md §4.3 "On MessageAdded").
func (p *Pipeline) MessageAdded(ev MessageAddedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateActive {
		return
	}

	if p.task == nil && ev.Role == "user" && ev.Text != "" {
		p.task = &model.TaskDefinition{ID: uuid.NewString(), Description: truncateForDisplay(ev.Text), MaxSteps: p.cfg().MaxSteps}
	}

	if ev.Role == "assistant" && ev.Text != "" && !ev.HasToolUseBlocks && !p.toolCalled {
		p.stepCounter++
		step := &model.StepRecord{
			StepID:         uuid.NewString(),
			StepNumber:     p.stepCounter,
			Timestamp:      time.Now().UTC(),
			ToolName:       "ai_reasoning",
			ToolInput:      map[string]any{},
			ToolResult:     truncateForDisplay(ev.Text),
			Status:         model.StepSuccess,
			RelevanceScore: model.IntPtr(100),
			SecurityScore:  model.IntPtr(100),
		}
		p.appendStepAndPersistLocked(step)
	}
}

// BeforeTool runs C2's analyzer, accumulates any resulting issues, and
// decides whether to cancel the call: once a loop has been detected in
// intervene mode (or with auto_intervene_on_loop set), or
// unconditionally once step_counter exceeds max_steps. A cancelled
// call is recorded immediately as a terminal BLOCKED step (spec.md
// §4.3 "On BeforeTool", invariant 2).
func (p *Pipeline) BeforeTool(ev BeforeToolEvent) BeforeToolResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateActive || p.blocked {
		return BeforeToolResult{}
	}

	p.toolCalled = true
	p.stepCounter++

	status, issues := p.analyzer.Analyze(ev.ToolName, ev.ToolInput, p.stepCounter)
	p.issues = append(p.issues, issues...)
	p.persistIssues(issues)
	for _, iss := range issues {
		if iss.IssueType == model.IssueInfiniteLoop && iss.Severity >= 8 {
			p.loopDetected = true
		}
	}

	cfg := p.cfg()
	overStepLimit := cfg.MaxSteps > 0 && p.stepCounter > cfg.MaxSteps
	interveneOnLoop := (cfg.GuardMode == model.ModeIntervene || cfg.AutoInterveneOnLoop) && p.loopDetected

	redacted := masking.RedactToolInput(ev.ToolInput)

	if overStepLimit || interveneOnLoop {
		step := &model.StepRecord{
			StepID:     uuid.NewString(),
			StepNumber: p.stepCounter,
			Timestamp:  time.Now().UTC(),
			ToolName:   ev.ToolName,
			ToolInput:  redacted,
			Status:     model.StepBlocked,
		}
		p.appendStepAndPersistLocked(step)
		p.blocked = true
		metrics.RecordStepBlocked(string(cfg.GuardMode))

		reason := "guard: step limit exceeded"
		if interveneOnLoop {
			reason = "guard: loop detected, intervening"
		}
		return BeforeToolResult{Cancel: true, CancelReason: reason}
	}

	p.pendingStepNumber = p.stepCounter
	p.pendingToolName = ev.ToolName
	p.pendingInputRaw = ev.ToolInput
	p.pendingRedacted = redacted
	p.pendingStatus = status
	return BeforeToolResult{}
}

// AfterTool records the observed result against the step BeforeTool
// opened, enqueues it for C4 evaluation, and streams the update
// (spec.md §4.3 "On AfterTool"). A no-op once the attempt has already
// terminated with a BLOCKED step (invariant 2).
func (p *Pipeline) AfterTool(ev AfterToolEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateActive || p.blocked {
		return
	}

	finalStatus := p.pendingStatus
	if ev.IsError {
		finalStatus = model.StepFailed
	}

	masked := p.masker.MaskToolResult(ev.Result)
	step := &model.StepRecord{
		StepID:     uuid.NewString(),
		StepNumber: p.pendingStepNumber,
		Timestamp:  time.Now().UTC(),
		ToolName:   ev.ToolName,
		ToolInput:  p.pendingRedacted,
		ToolResult: truncateForDisplay(masked),
		Status:     finalStatus,
	}
	step.SetFullResult(ev.Result)
	p.appendStepAndPersistLocked(step)

	last := p.steps[len(p.steps)-1]
	p.queue.Enqueue(eval.TaskDescriptor{Step: last, FullResult: ev.Result, Mode: eval.ModeRelevance})
	if p.cfg().EnableShadowBrowser && isStateChanging(ev.ToolName) {
		p.queue.Enqueue(eval.TaskDescriptor{Step: last, FullResult: ev.Result, Mode: eval.ModeShadowVerify})
	}
	metrics.SetQueueDepth("step", p.queue.Len())
}

// isStateChanging is a coarse heuristic for which tools warrant a
// shadow-browser double-check: anything that is not a pure read.
func isStateChanging(toolName string) bool {
	switch toolName {
	case "read_file", "list_files", "search", "get", "fetch", "ai_reasoning":
		return false
	default:
		return true
	}
}

// SessionEnd drives the FINALIZING phase: it writes the heuristic
// report immediately, then drains the evaluation queue and runs the
// whole-session judge call under a bounded timeout, applies C3's
// deterministic overrides, and persists + broadcasts the final
// report (spec.md §4.3 "On SessionEnd", §4.4 "bounded finalization
// window").
func (p *Pipeline) SessionEnd(parentCtx context.Context) {
	p.mu.Lock()
	if p.state == stateDone {
		p.mu.Unlock()
		return
	}
	p.state = stateFinalizing
	sessionID := p.sessionID
	agentName := p.agentName
	modelName := p.model
	task := p.task
	steps := p.steps
	issues := append([]model.QualityIssue{}, p.issues...)
	startedAt := p.startedAt
	swarmID := p.swarmID
	swarmOrder := p.swarmOrder
	loopDetected := p.loopDetected
	analyzerRef := p.analyzer
	queue := p.queue
	p.mu.Unlock()

	maxSteps := p.cfg().MaxSteps
	if task != nil && task.MaxSteps > 0 {
		maxSteps = task.MaxSteps
	}
	issues = append(issues, analyzerRef.CheckEfficiency(len(steps), maxSteps)...)

	endedAt := time.Now().UTC()
	execMs := endedAt.Sub(startedAt).Milliseconds()

	report := buildReport(sessionID, agentName, modelName, task, startedAt, steps, issues, swarmID, swarmOrder)
	report.EfficiencyScore = model.IntPtr(heuristicEfficiency(len(steps), maxSteps))
	report.OverallQuality = model.QualityPending
	report.LoopDetected = loopDetected
	report.TotalExecutionTimeMs = execMs
	p.persistAndBroadcast(report)

	ctx, cancel := context.WithTimeout(context.Background(), p.finalizeTimeout)
	defer cancel()

	descriptors := queue.Drain()
	metrics.SetQueueDepth("step", 0)
	priorSummary := summarizeSteps(steps)
	taskDesc := ""
	if task != nil {
		taskDesc = task.Description
	}

	var securityBreach bool
	for _, d := range descriptors {
		outcome := p.evaluator.EvaluateStep(ctx, taskDesc, d.Step, d, priorSummary)
		issues = append(issues, outcome.Issues...)
		if outcome.SecurityBreachDetected {
			securityBreach = true
		}
	}

	finalSteps := dereferenceSteps(steps)
	report.Steps = finalSteps
	report.Issues = issues
	report.Counts = countByStatus(steps)
	report.SecurityBreachDetected = securityBreach

	verdict := p.evaluator.EvaluateSession(ctx, task, finalSteps, execMs)
	if verdict.JudgeUnavailable {
		slog.Warn("session judge unavailable, keeping heuristic scores", "session_id", sessionID, "error", verdict.JudgeError)
		issues = append(issues, model.QualityIssue{
			IssueID:      uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			IssueType:    model.IssueErrorHandling,
			Severity:     3,
			Description:  "session judge unavailable: " + verdict.JudgeError,
			AutoResolved: true,
		})
		report.Issues = issues
	}
	applyVerdict(report, verdict)
	applyOverrides(report, issues, loopDetected)
	p.persistIssues(issues)

	report.EndedAt = &endedAt
	p.persistAndBroadcast(report)

	metrics.RecordSessionProcessed(string(report.OverallQuality))
	for _, iss := range issues {
		metrics.RecordIssue(string(iss.IssueType))
	}

	p.mu.Lock()
	p.state = stateDone
	p.mu.Unlock()
}

// persistIssues writes each issue to its own file under issues/
// (spec.md §4.1 put_issue). Re-persisting an already-written issue id
// overwrites the same file, so calling this with the full accumulated
// list during finalization is safe.
func (p *Pipeline) persistIssues(issues []model.QualityIssue) {
	for _, iss := range issues {
		raw, _ := json.Marshal(iss)
		var doc map[string]any
		_ = json.Unmarshal(raw, &doc)
		doc["session_id"] = p.sessionID
		_ = p.store.PutIssue(iss.IssueID, doc)
	}
}

// appendStepAndPersistLocked appends step to the in-memory list,
// writes it to the append-only step journal, and persists + streams
// the updated session. Must be called with p.mu held.
func (p *Pipeline) appendStepAndPersistLocked(step *model.StepRecord) {
	p.steps = append(p.steps, step)

	raw, _ := json.Marshal(step)
	var journalEntry map[string]any
	_ = json.Unmarshal(raw, &journalEntry)
	journalEntry["session_id"] = p.sessionID
	_ = p.store.AppendStepLog(journalEntry)

	report := buildReport(p.sessionID, p.agentName, p.model, p.task, p.startedAt, p.steps, p.issues, p.swarmID, p.swarmOrder)
	p.persistAndBroadcastLocked(report)
}

func (p *Pipeline) persistAndBroadcastLocked(report *model.SessionReport) {
	if _, err := p.store.PutSession(reportToMap(report)); err == nil && p.broadcast != nil {
		p.broadcast(p.sessionID)
	}
}

// persistAndBroadcast is the unlocked variant used from SessionEnd,
// where the long judge calls happen outside the pipeline's own lock.
func (p *Pipeline) persistAndBroadcast(report *model.SessionReport) {
	if _, err := p.store.PutSession(reportToMap(report)); err == nil && p.broadcast != nil {
		p.broadcast(report.SessionID)
	}
}
