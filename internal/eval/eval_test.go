package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtagemy/guard/internal/judge"
	"github.com/hashtagemy/guard/internal/model"
)

type fakeJudge struct {
	stepResp    judge.StepEvalResponse
	stepErr     error
	sessionResp judge.SessionEvalResponse
	sessionErr  error
	shadowResp  judge.ShadowVerifyResponse
	shadowErr   error
}

func (f fakeJudge) EvaluateStep(_ context.Context, _ judge.StepEvalRequest) (judge.StepEvalResponse, error) {
	return f.stepResp, f.stepErr
}
func (f fakeJudge) EvaluateSession(_ context.Context, _ judge.SessionEvalRequest) (judge.SessionEvalResponse, error) {
	return f.sessionResp, f.sessionErr
}
func (f fakeJudge) EvaluateShadow(_ context.Context, _ judge.ShadowVerifyRequest) (judge.ShadowVerifyResponse, error) {
	return f.shadowResp, f.shadowErr
}

func TestQueueEnqueueDrainLen(t *testing.T) {
	q := &Queue{}
	assert.Equal(t, 0, q.Len())

	q.Enqueue(TaskDescriptor{Mode: ModeRelevance})
	q.Enqueue(TaskDescriptor{Mode: ModeShadowVerify})
	assert.Equal(t, 2, q.Len())

	drained := q.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestEvaluateStepDisabledIsNoop(t *testing.T) {
	o := New(fakeJudge{}, false)
	step := &model.StepRecord{StepID: "s1", ToolName: "get_pods"}
	outcome := o.EvaluateStep(t.Context(), "do the task", step, TaskDescriptor{}, "")
	assert.Empty(t, outcome.Issues)
	assert.False(t, outcome.SecurityBreachDetected)
	assert.Nil(t, step.RelevanceScore)
}

func TestEvaluateStepLowRelevanceFlagsTaskDrift(t *testing.T) {
	o := New(fakeJudge{stepResp: judge.StepEvalResponse{RelevanceScore: 10, SecurityScore: 90}}, true)
	step := &model.StepRecord{StepID: "s1", ToolName: "get_pods"}
	outcome := o.EvaluateStep(t.Context(), "task", step, TaskDescriptor{}, "")

	require.Len(t, outcome.Issues, 1)
	assert.Equal(t, model.IssueTaskDrift, outcome.Issues[0].IssueType)
	assert.Equal(t, model.StepIrrelevant, step.Status)
}

func TestEvaluateStepLowSecurityScoreFlagsBreach(t *testing.T) {
	o := New(fakeJudge{stepResp: judge.StepEvalResponse{RelevanceScore: 90, SecurityScore: 10, Reasoning: "ssl verify disabled, bypass detected"}}, true)
	step := &model.StepRecord{StepID: "s1", ToolName: "http_get"}
	outcome := o.EvaluateStep(t.Context(), "task", step, TaskDescriptor{}, "")

	require.Len(t, outcome.Issues, 1)
	assert.Equal(t, model.IssueSecurityBypass, outcome.Issues[0].IssueType)
	assert.Equal(t, 10, outcome.Issues[0].Severity, "security score below 20 escalates severity to 10")
	assert.True(t, outcome.SecurityBreachDetected)
}

func TestEvaluateStepMissingConfigMarksFailed(t *testing.T) {
	o := New(fakeJudge{stepResp: judge.StepEvalResponse{RelevanceScore: 90, SecurityScore: 90}}, true)
	step := &model.StepRecord{StepID: "s1", ToolName: "query_kb", Status: model.StepSuccess}
	outcome := o.EvaluateStep(t.Context(), "task", step, TaskDescriptor{FullResult: "error: No Knowledge Base ID configured"}, "")

	require.Len(t, outcome.Issues, 1)
	assert.Equal(t, model.IssueMissingConfig, outcome.Issues[0].IssueType)
	assert.Equal(t, model.StepFailed, step.Status)
}

func TestEvaluateStepJudgeFailurePreservesHeuristicState(t *testing.T) {
	o := New(fakeJudge{stepErr: assertError("judge unreachable")}, true)
	step := &model.StepRecord{StepID: "s1", ToolName: "get_pods", Status: model.StepSuccess}
	outcome := o.EvaluateStep(t.Context(), "task", step, TaskDescriptor{}, "")

	assert.Empty(t, outcome.Issues)
	assert.Equal(t, model.StepSuccess, step.Status, "a failed judge call must not overwrite the heuristic status")
	assert.Nil(t, step.RelevanceScore)
}

func TestEvaluateStepShadowVerifyDiscrepancyFlagsToolMisuse(t *testing.T) {
	o := New(fakeJudge{
		stepResp:   judge.StepEvalResponse{RelevanceScore: 90, SecurityScore: 90},
		shadowResp: judge.ShadowVerifyResponse{Verified: false, DiscrepancyNotes: "result claims success, UI shows error"},
	}, true)
	step := &model.StepRecord{StepID: "s1", ToolName: "click_button"}
	outcome := o.EvaluateStep(t.Context(), "task", step, TaskDescriptor{Mode: ModeShadowVerify}, "")

	require.Len(t, outcome.Issues, 1)
	assert.Equal(t, model.IssueToolMisuse, outcome.Issues[0].IssueType)
}

func TestEvaluateSessionNilTaskIsPending(t *testing.T) {
	o := New(fakeJudge{}, true)
	verdict := o.EvaluateSession(t.Context(), nil, nil, 0)
	assert.Equal(t, model.QualityPending, verdict.OverallQuality)
}

func TestEvaluateSessionPureReasoningSkipsJudge(t *testing.T) {
	o := New(fakeJudge{sessionErr: assertError("must not be called")}, true)
	task := &model.TaskDefinition{Description: "answer a question"}
	steps := []model.StepRecord{{ToolName: "ai_reasoning"}}

	verdict := o.EvaluateSession(t.Context(), task, steps, 100)
	assert.Equal(t, model.QualityGood, verdict.OverallQuality)
	require.NotNil(t, verdict.TaskCompleted)
	assert.True(t, *verdict.TaskCompleted)
}

func TestEvaluateSessionDisabledIsPending(t *testing.T) {
	o := New(fakeJudge{}, false)
	task := &model.TaskDefinition{Description: "do work"}
	steps := []model.StepRecord{{ToolName: "get_pods"}}

	verdict := o.EvaluateSession(t.Context(), task, steps, 100)
	assert.Equal(t, model.QualityPending, verdict.OverallQuality)
}

func TestEvaluateSessionReturnsJudgeVerdict(t *testing.T) {
	completed := true
	o := New(fakeJudge{sessionResp: judge.SessionEvalResponse{
		TaskCompleted:  &completed,
		OverallQuality: "GOOD",
		SecurityScore:  95,
	}}, true)
	task := &model.TaskDefinition{Description: "do work"}
	steps := []model.StepRecord{{ToolName: "get_pods"}}

	verdict := o.EvaluateSession(t.Context(), task, steps, 100)
	assert.Equal(t, model.QualityGood, verdict.OverallQuality)
	assert.Equal(t, 95, verdict.SecurityScore)
}

func TestEvaluateSessionJudgeFailureReturnsZeroVerdict(t *testing.T) {
	o := New(fakeJudge{sessionErr: assertError("down")}, true)
	task := &model.TaskDefinition{Description: "do work"}
	steps := []model.StepRecord{{ToolName: "get_pods"}}

	verdict := o.EvaluateSession(t.Context(), task, steps, 100)
	assert.Equal(t, model.OverallQuality(""), verdict.OverallQuality, "caller is responsible for leaving the heuristic quality in place on judge failure")
	assert.True(t, verdict.JudgeUnavailable)
	assert.Contains(t, verdict.JudgeError, "down")
}

type assertError string

func (e assertError) Error() string { return string(e) }
