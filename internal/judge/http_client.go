package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to an external judge backend over JSON/HTTP. The
// backend is expected to return a raw completion string under
// "completion" that may be markdown-fenced; this mirrors
// original_source/norn/agents/quality_evaluator.py, which talks to a
// Bedrock-backed strands.Agent and receives free-text that must be
// parsed the same lenient way.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient builds an HTTPClient with a sane request timeout.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

type completionEnvelope struct {
	Completion string `json:"completion"`
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("judge: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("judge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("judge: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("judge: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("judge: backend returned status %d: %s", resp.StatusCode, string(data))
	}

	var env completionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("judge: decode envelope: %w", err)
	}
	return env.Completion, nil
}

func (c *HTTPClient) EvaluateStep(ctx context.Context, req StepEvalRequest) (StepEvalResponse, error) {
	raw, err := c.post(ctx, "/evaluate/step", req)
	if err != nil {
		return StepEvalResponse{}, err
	}
	resp, ok := parseStepResponse(raw)
	if !ok {
		return StepEvalResponse{}, fmt.Errorf("judge: could not parse step evaluation response")
	}
	return resp, nil
}

func (c *HTTPClient) EvaluateSession(ctx context.Context, req SessionEvalRequest) (SessionEvalResponse, error) {
	raw, err := c.post(ctx, "/evaluate/session", req)
	if err != nil {
		return SessionEvalResponse{}, err
	}
	resp, ok := parseSessionResponse(raw)
	if !ok {
		return SessionEvalResponse{}, fmt.Errorf("judge: could not parse session evaluation response")
	}
	return resp, nil
}

func (c *HTTPClient) EvaluateShadow(ctx context.Context, req ShadowVerifyRequest) (ShadowVerifyResponse, error) {
	raw, err := c.post(ctx, "/evaluate/shadow", req)
	if err != nil {
		return ShadowVerifyResponse{}, err
	}
	jsonStr := extractJSON(raw)
	var out struct {
		Verified         bool   `json:"verified"`
		DiscrepancyNotes string `json:"discrepancy_notes"`
	}
	if jsonStr == "" {
		return ShadowVerifyResponse{}, fmt.Errorf("judge: could not parse shadow verification response")
	}
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return ShadowVerifyResponse{}, fmt.Errorf("judge: decode shadow response: %w", err)
	}
	return ShadowVerifyResponse{Verified: out.Verified, DiscrepancyNotes: out.DiscrepancyNotes}, nil
}
