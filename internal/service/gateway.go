package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegis-gate/aegis/internal/domain/audit"
	"github.com/aegis-gate/aegis/internal/domain/evaluator"
	"github.com/aegis-gate/aegis/internal/domain/policy"
	"github.com/aegis-gate/aegis/internal/domain/scanner"
	"github.com/aegis-gate/aegis/internal/domain/threat"
	"github.com/aegis-gate/aegis/internal/telemetry"
)

// ChatResult is what the Prompt Gateway returns for one chat-completion
// request. Exactly one of (Body, upstream failure) is meaningful,
// depending on Status.
type ChatResult struct {
	Status    int
	Body      []byte
	RequestID string
	ErrorTag  string
	Reason    string
}

// Gateway implements the prompt path: scan, optional remote evaluation,
// then forward upstream.
type Gateway struct {
	Policy    *policy.Policy
	Ledger    audit.Ledger
	Threats   *threat.Recorder
	Evaluator evaluator.Client
	Logger    *slog.Logger
	HTTP      *http.Client
	Metrics   *telemetry.Metrics
}

// NewGateway constructs a Gateway with sane defaults. Metrics defaults to
// a private registry so a Gateway built without config.Build (e.g. in
// tests) never nil-derefs on an instrument.
func NewGateway() *Gateway {
	return &Gateway{
		Logger:  slog.Default(),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
	}
}

// HandleChatCompletions implements the full flow for one inbound chat
// request body, given the inbound Authorization header to propagate.
func (g *Gateway) HandleChatCompletions(body []byte, authHeader string) ChatResult {
	_, span := telemetry.Tracer().Start(context.Background(), "gateway.handle_chat_completions")
	defer span.End()

	start := time.Now()
	res := g.handleChatCompletions(body, authHeader)

	outcome := "ok"
	if res.Status != 200 {
		if res.Reason != "" {
			outcome = res.Reason
		} else {
			outcome = res.ErrorTag
		}
	}
	g.Metrics.PromptRequestsTotal.WithLabelValues(outcome).Inc()
	g.Metrics.DecisionLatencySeconds.WithLabelValues("prompt").Observe(time.Since(start).Seconds())
	return res
}

func (g *Gateway) handleChatCompletions(body []byte, authHeader string) ChatResult {
	requestID := uuid.NewString()

	findings := scanner.Scan(string(body), g.Policy)

	g.Ledger.Append("prompt.scan", requestID, map[string]interface{}{"findings": findings})

	for _, f := range findings {
		var switchOn bool
		var reason string
		var severity threat.Severity
		switch f.Kind {
		case scanner.KindSecret:
			switchOn = g.Policy.BlockOnSecrets
			reason = "secrets_detected"
			severity = threat.SeverityHigh
		case scanner.KindPromptInjection:
			switchOn = g.Policy.BlockOnInjection
			reason = "prompt_injection"
			severity = threat.SeverityCritical
		case scanner.KindPii:
			switchOn = g.Policy.BlockOnPii
			reason = "pii_detected"
			severity = threat.SeverityMedium
		}
		if !switchOn {
			continue
		}

		g.Ledger.Append("prompt.deny", requestID, map[string]interface{}{"reason": reason, "pattern": f.PatternName})
		g.Threats.Record(severity, f.PatternName, "deny", reason)

		return ChatResult{
			Status:    403,
			RequestID: requestID,
			ErrorTag:  "denied",
			Reason:    reason,
			Body:      errorBody("denied", reason, requestID),
		}
	}

	if g.Evaluator != nil {
		input := map[string]interface{}{
			"kind":       "prompt",
			"request_id": requestID,
			"findings":   findings,
		}
		if err := g.Evaluator.Evaluate(input); err != nil {
			block := false
			if _, ok := evaluator.IsDenied(err); ok {
				block = true
			} else if _, ok := evaluator.IsHttp(err); ok {
				block = g.Policy.FailClosed
			}
			g.Ledger.Append("prompt.evaluator", requestID, map[string]interface{}{"error": err.Error(), "blocked": block})
			if block {
				return ChatResult{
					Status:    403,
					RequestID: requestID,
					ErrorTag:  "denied",
					Reason:    "policy_denied",
					Body:      errorBody("denied", "policy_denied", requestID),
				}
			}
		}
	}

	return g.forward(requestID, body, authHeader)
}

func (g *Gateway) forward(requestID string, body []byte, authHeader string) ChatResult {
	url := g.Policy.UpstreamBaseURL + "/v1/chat/completions"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		g.Ledger.Append("upstream.error", requestID, map[string]interface{}{"error": err.Error()})
		return ChatResult{Status: 502, RequestID: requestID, ErrorTag: "upstream_error", Body: errorBody("upstream_error", "", requestID)}
	}
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		g.Ledger.Append("upstream.error", requestID, map[string]interface{}{"error": err.Error()})
		return ChatResult{Status: 502, RequestID: requestID, ErrorTag: "upstream_error", Body: errorBody("upstream_error", "", requestID)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		g.Ledger.Append("upstream.error", requestID, map[string]interface{}{"error": err.Error()})
		return ChatResult{Status: 502, RequestID: requestID, ErrorTag: "upstream_error", Body: errorBody("upstream_error", "", requestID)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.Ledger.Append("upstream.error", requestID, map[string]interface{}{"status": resp.StatusCode, "body": string(raw)})
		return ChatResult{Status: 502, RequestID: requestID, ErrorTag: "upstream_error", Body: errorBody("upstream_error", "", requestID)}
	}

	return ChatResult{Status: 200, RequestID: requestID, Body: raw}
}

func errorBody(errorTag, reason, requestID string) []byte {
	doc := map[string]interface{}{"error": errorTag, "request_id": requestID}
	if reason != "" {
		doc["reason"] = reason
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":%q,"request_id":%q}`, errorTag, requestID))
	}
	return b
}
