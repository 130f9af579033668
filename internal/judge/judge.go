// Package judge defines the contract to the external LLM judge backend
// (spec.md §6 "Judge contract") and a JSON-over-HTTP implementation.
// The backend itself is an out-of-scope external collaborator; this
// package only ships the client side and a deterministic stub for
// tests. Grounded on original_source/norn/agents/quality_evaluator.py
// for prompt shape and response schema, and on
// github.com/tidwall/gjson (from r3e-network-service_layer) for the
// lenient response parsing spec.md §4.4 calls for.
package judge

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

// StepEvalRequest is the per-step evaluation request (spec.md §4.4).
type StepEvalRequest struct {
	TaskDescription   string
	ToolName          string
	ToolInputRedacted map[string]any
	ResultTruncated   string
	PriorStepsSummary string
}

// StepEvalResponse is the per-step judge response.
type StepEvalResponse struct {
	RelevanceScore int
	SecurityScore  int
	Reasoning      string
}

// SessionEvalRequest is the whole-session evaluation request.
type SessionEvalRequest struct {
	TaskDescription      string
	Steps                []StepSummary
	TotalExecutionTimeMs int64
}

// StepSummary is a condensed view of one step for session-level
// evaluation.
type StepSummary struct {
	ToolName string
	Status   string
}

// SessionEvalResponse is the whole-session judge response.
type SessionEvalResponse struct {
	TaskCompleted         *bool
	CompletionConfidence  int
	EfficiencyScore       int
	SecurityScore         int
	OverallQuality        string
	Reasoning             string
	PerToolAnalysis       string
	DecisionObservations  string
	EfficiencyExplanation string
	Recommendations       []string
}

// ShadowVerifyRequest is the optional shadow-browser verification
// request (SPEC_FULL.md §D.5).
type ShadowVerifyRequest struct {
	ToolName   string
	ToolInput  map[string]any
	ToolResult string
}

// ShadowVerifyResponse is the shadow-browser verification response.
type ShadowVerifyResponse struct {
	Verified         bool
	DiscrepancyNotes string
}

// Client is the judge contract. Implementations must never panic and
// must return a structured error on failure rather than crash (spec.md
// §6 "Failures return a structured error, never crash").
type Client interface {
	EvaluateStep(ctx context.Context, req StepEvalRequest) (StepEvalResponse, error)
	EvaluateSession(ctx context.Context, req SessionEvalRequest) (SessionEvalResponse, error)
	EvaluateShadow(ctx context.Context, req ShadowVerifyRequest) (ShadowVerifyResponse, error)
}

// extractJSON strips a markdown code fence (if present) and trims to
// the first balanced { ... } span, matching
// original_source/norn/agents/quality_evaluator.py::_parse_json_response.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		lines := strings.SplitN(raw, "\n", 2)
		if len(lines) == 2 {
			raw = lines[1]
		}
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return raw[start : end+1]
}

func parseStepResponse(raw string) (StepEvalResponse, bool) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" || !gjson.Valid(jsonStr) {
		return StepEvalResponse{}, false
	}
	parsed := gjson.Parse(jsonStr)
	return StepEvalResponse{
		RelevanceScore: int(parsed.Get("relevance_score").Int()),
		SecurityScore:  int(parsed.Get("security_score").Int()),
		Reasoning:      parsed.Get("reasoning").String(),
	}, true
}

func parseSessionResponse(raw string) (SessionEvalResponse, bool) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" || !gjson.Valid(jsonStr) {
		return SessionEvalResponse{}, false
	}
	parsed := gjson.Parse(jsonStr)

	var completed *bool
	if tc := parsed.Get("task_completed"); tc.Exists() {
		v := tc.Bool()
		completed = &v
	}

	var recs []string
	parsed.Get("recommendations").ForEach(func(_, v gjson.Result) bool {
		recs = append(recs, v.String())
		return true
	})

	return SessionEvalResponse{
		TaskCompleted:         completed,
		CompletionConfidence:  int(parsed.Get("completion_confidence").Int()),
		EfficiencyScore:       int(parsed.Get("efficiency_score").Int()),
		SecurityScore:         int(parsed.Get("security_score").Int()),
		OverallQuality:        parsed.Get("overall_quality").String(),
		Reasoning:             parsed.Get("reasoning").String(),
		PerToolAnalysis:       parsed.Get("per_tool_analysis").String(),
		DecisionObservations:  parsed.Get("decision_observations").String(),
		EfficiencyExplanation: parsed.Get("efficiency_explanation").String(),
		Recommendations:       recs,
	}, true
}
