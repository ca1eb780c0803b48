// Package service implements the orchestration layer: the Tool
// Coordinator's prepare/commit state machine and the Prompt Gateway's
// scan-then-forward pipeline, both built directly from the ports defined
// in internal/domain and internal/adapter.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegis-gate/aegis/internal/domain/approval"
	"github.com/aegis-gate/aegis/internal/domain/audit"
	"github.com/aegis-gate/aegis/internal/domain/evaluator"
	"github.com/aegis-gate/aegis/internal/domain/intent"
	"github.com/aegis-gate/aegis/internal/domain/policy"
	"github.com/aegis-gate/aegis/internal/domain/sandbox"
	"github.com/aegis-gate/aegis/internal/telemetry"
)

// Registry is the subset of the Tool Registry the Coordinator depends on.
type Registry interface {
	IsAllowlisted(it intent.Intent) bool
}

// PrepareResult is returned by Prepare and carries everything the HTTP
// transport needs to build its response, success or failure.
type PrepareResult struct {
	OK            bool
	Status        int
	RequestID     string
	PrepareDigest string
	IntentHash    string
	PolicyHash    string
	Error         string
	Reason        string
}

// CommitResult is returned by Commit.
type CommitResult struct {
	OK         bool
	Status     int
	RequestID  string
	ExitCode   int
	StdoutPath string
	StderrPath string
	Error      string
	Reason     string
}

// Coordinator implements the prepare/commit state machine, including the
// TOCTOU re-verification at commit time that binds an execution to the
// exact policy snapshot that admitted it.
type Coordinator struct {
	Policy     *policy.Policy
	PolicyPath string // re-read at commit to detect on-disk policy drift

	Ledger   audit.Ledger
	Registry Registry
	Verifier *approval.Verifier
	Sandbox  *sandbox.Runner
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics

	mu       sync.RWMutex
	prepared map[string]intent.PrepareRecord

	evalMu    sync.Mutex
	Evaluator evaluator.Client
}

// NewCoordinator constructs a Coordinator with an empty prepare table.
// Metrics defaults to a private registry so a Coordinator built without
// config.Build (e.g. in tests) never nil-derefs on an instrument.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		prepared: make(map[string]intent.PrepareRecord),
		Logger:   slog.Default(),
		Metrics:  telemetry.NewMetrics(prometheus.NewRegistry()),
	}
}

// Prepare admits an intent and issues the digest a later commit must
// present.
func (c *Coordinator) Prepare(it intent.Intent) PrepareResult {
	_, span := telemetry.Tracer().Start(context.Background(), "coordinator.prepare")
	defer span.End()
	start := time.Now()

	res := c.prepare(it)

	outcome := "ok"
	if !res.OK {
		if res.Reason != "" {
			outcome = res.Reason
		} else {
			outcome = res.Error
		}
	}
	c.Metrics.ToolPrepareTotal.WithLabelValues(outcome).Inc()
	c.Metrics.DecisionLatencySeconds.WithLabelValues("tool_prepare").Observe(time.Since(start).Seconds())
	return res
}

func (c *Coordinator) prepare(it intent.Intent) PrepareResult {
	if c.Policy.ToolPrepareAllowsExecution {
		return PrepareResult{OK: false, Status: 500, Error: "policy_invalid", Reason: "policy_invalid"}
	}

	requestID := uuid.NewString()
	policyHash := c.currentPolicyHash()

	intentHash, err := intent.Hash(it)
	if err != nil {
		return PrepareResult{OK: false, Status: 500, Error: "policy_invalid", Reason: "policy_invalid"}
	}

	createdAt := time.Now().Unix()
	prepareDigest, err := intent.PrepareDigest(intentHash, policyHash, it.Constraints, createdAt)
	if err != nil {
		return PrepareResult{OK: false, Status: 500, Error: "policy_invalid", Reason: "policy_invalid"}
	}

	allowlisted := c.Registry.IsAllowlisted(it)
	if c.Policy.FailClosed && !allowlisted {
		c.denyPrepare(requestID, "not_allowlisted")
		return PrepareResult{OK: false, Status: 403, RequestID: requestID, Error: "denied", Reason: "not_allowlisted"}
	}

	if c.Evaluator != nil {
		input := map[string]interface{}{
			"kind":       "tool_prepare",
			"request_id": requestID,
			"tool":       map[string]interface{}{"allowlisted": allowlisted},
			"intent":     it,
			"approval":   map[string]interface{}{"valid": false},
		}
		if err := c.evaluate(input); err != nil {
			c.denyPrepare(requestID, "policy_denied")
			return PrepareResult{OK: false, Status: 403, RequestID: requestID, Error: "denied", Reason: "policy_denied"}
		}
	}

	record := intent.PrepareRecord{
		RequestID:     requestID,
		PrepareDigest: prepareDigest,
		IntentHash:    intentHash,
		PolicyHash:    policyHash,
		Intent:        it,
		CreatedAt:     createdAt,
	}
	c.mu.Lock()
	c.prepared[requestID] = record
	c.mu.Unlock()

	c.Ledger.Append("tool.prepare", requestID, map[string]interface{}{
		"prepare_digest": prepareDigest,
		"intent_hash":    intentHash,
		"policy_hash":    policyHash,
		"allowlisted":    allowlisted,
	})
	c.writeDecisionArtifact(requestID, map[string]interface{}{
		"allowed": true,
		"phase":   "prepare",
		"tool_id": it.Params.ToolID,
		"args":    it.Params.Args,
	})

	return PrepareResult{
		OK:            true,
		Status:        200,
		RequestID:     requestID,
		PrepareDigest: prepareDigest,
		IntentHash:    intentHash,
		PolicyHash:    policyHash,
	}
}

// Commit re-verifies a prepared intent end to end and, if every check
// passes, hands it to the Sandbox Runner.
func (c *Coordinator) Commit(requestID, prepareDigest string, approvalToken *approval.Token) CommitResult {
	_, span := telemetry.Tracer().Start(context.Background(), "coordinator.commit")
	defer span.End()
	start := time.Now()

	res := c.commit(requestID, prepareDigest, approvalToken)

	outcome := "ok"
	if res.Status != 200 {
		if res.Reason != "" {
			outcome = res.Reason
		} else {
			outcome = res.Error
		}
	}
	c.Metrics.ToolCommitTotal.WithLabelValues(outcome).Inc()
	c.Metrics.DecisionLatencySeconds.WithLabelValues("tool_commit").Observe(time.Since(start).Seconds())
	return res
}

func (c *Coordinator) commit(requestID, prepareDigest string, approvalToken *approval.Token) CommitResult {
	c.mu.RLock()
	record, ok := c.prepared[requestID]
	c.mu.RUnlock()
	if !ok {
		return CommitResult{OK: false, Status: 400, RequestID: requestID, Error: "unknown_request", Reason: "unknown_request"}
	}

	if record.PrepareDigest != prepareDigest {
		c.denyCommit(requestID, "prepare_digest_mismatch")
		return CommitResult{OK: false, Status: 403, RequestID: requestID, Error: "denied", Reason: "prepare_digest_mismatch"}
	}

	// TOCTOU defense: recompute policy_hash and prepare_digest from the
	// current on-disk policy bytes. Any drift since prepare invalidates
	// the binding, regardless of how the PrepareRecord's own stored
	// digest still matches itself.
	currentPolicyHash := c.currentPolicyHash()
	recomputedDigest, err := intent.PrepareDigest(record.IntentHash, currentPolicyHash, record.Intent.Constraints, record.CreatedAt)
	if err != nil || recomputedDigest != prepareDigest {
		c.denyCommit(requestID, "intent_or_policy_changed")
		return CommitResult{OK: false, Status: 403, RequestID: requestID, Error: "denied", Reason: "intent_or_policy_changed"}
	}

	allowlisted := c.Registry.IsAllowlisted(record.Intent)
	if c.Policy.FailClosed && !allowlisted {
		c.denyCommit(requestID, "not_allowlisted")
		return CommitResult{OK: false, Status: 403, RequestID: requestID, Error: "denied", Reason: "not_allowlisted"}
	}

	needsApproval := record.Intent.Risk.Class == "high" ||
		record.Intent.Risk.MoneyUSD >= c.Policy.RiskMoneyThresholdUSD ||
		record.Intent.Risk.Destructive ||
		c.Policy.RiskHighRequiresApproval

	approvalValid := false
	if needsApproval {
		ok, reason := c.checkApproval(record, approvalToken)
		if !ok {
			c.denyCommit(requestID, reason)
			return CommitResult{OK: false, Status: 403, RequestID: requestID, Error: "denied", Reason: reason}
		}
		approvalValid = true
	}

	if c.Evaluator != nil {
		input := map[string]interface{}{
			"kind":       "tool_commit",
			"request_id": requestID,
			"tool":       map[string]interface{}{"allowlisted": allowlisted},
			"intent":     record.Intent,
			"approval":   map[string]interface{}{"valid": approvalValid},
		}
		if err := c.evaluate(input); err != nil {
			c.denyCommit(requestID, "policy_denied")
			return CommitResult{OK: false, Status: 403, RequestID: requestID, Error: "denied", Reason: "policy_denied"}
		}
	}

	spec, _ := c.Policy.ToolByID(record.Intent.Params.ToolID)
	if spec == nil {
		c.denyCommit(requestID, "not_allowlisted")
		return CommitResult{OK: false, Status: 403, RequestID: requestID, Error: "denied", Reason: "not_allowlisted"}
	}

	result, err := c.Sandbox.Run(requestID, record.Intent, *spec)
	if err != nil {
		c.Ledger.Append("tool.commit.error", requestID, map[string]interface{}{"error": err.Error()})
		return CommitResult{OK: false, Status: 500, RequestID: requestID, Error: "exec_failed", Reason: "exec_failed"}
	}

	c.Ledger.Append("tool.commit", requestID, map[string]interface{}{
		"exit_code":   result.ExitCode,
		"ok":          result.OK,
		"stdout_path": result.StdoutPath,
		"stderr_path": result.StderrPath,
	})

	return CommitResult{
		OK:         result.OK,
		Status:     200,
		RequestID:  requestID,
		ExitCode:   result.ExitCode,
		StdoutPath: result.StdoutPath,
		StderrPath: result.StderrPath,
	}
}

// PreparedCount reports how many PrepareRecords are currently resident.
// Records live for the process lifetime (no TTL sweep), so this is the
// number observability should watch for unbounded churn.
func (c *Coordinator) PreparedCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.prepared))
}

// checkApproval validates the approval token against record: scope,
// hashes, signature, and expiry must all agree.
func (c *Coordinator) checkApproval(record intent.PrepareRecord, tok *approval.Token) (bool, string) {
	if tok == nil {
		return false, "approval_required"
	}
	if tok.Payload.IntentHash != record.IntentHash || tok.Payload.PolicyHash != record.PolicyHash {
		return false, "approval_required"
	}
	if tok.Payload.Scope != record.Intent.Params.ToolID {
		return false, "approval_required"
	}
	verifyingKey := c.Policy.ApprovalVerifyingKeyB64
	ok, err := c.Verifier.Verify(*tok, verifyingKey)
	if err != nil || !ok {
		return false, "approval_required"
	}
	return true, ""
}

// currentPolicyHash re-reads the raw policy bytes from disk, rather than
// reusing a cached value, so an on-disk edit between prepare and commit is
// always observed — this is the defining security property of the binding
// check.
func (c *Coordinator) currentPolicyHash() string {
	raw, err := os.ReadFile(c.PolicyPath)
	if err != nil {
		// Missing/unreadable policy on re-check is treated as a changed
		// policy, not a pass-through: the hash simply won't match
		// anything previously recorded.
		c.Logger.Warn("coordinator: re-reading policy failed", "error", err)
		return ""
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum)
}

func (c *Coordinator) evaluate(input interface{}) error {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()
	return c.Evaluator.Evaluate(input)
}

func (c *Coordinator) denyPrepare(requestID, reason string) {
	c.Ledger.Append("tool.prepare.denied", requestID, map[string]interface{}{"reason": reason})
	c.writeDecisionArtifact(requestID, map[string]interface{}{"allowed": false, "phase": "prepare", "reason": reason})
}

func (c *Coordinator) denyCommit(requestID, reason string) {
	c.Ledger.Append("tool.commit.denied", requestID, map[string]interface{}{"reason": reason})
	c.writeDecisionArtifact(requestID, map[string]interface{}{"allowed": false, "phase": "commit", "reason": reason})
}

func (c *Coordinator) writeDecisionArtifact(requestID string, decision map[string]interface{}) {
	if c.Sandbox == nil {
		return
	}
	dir := c.Sandbox.ArtifactsDir + "/" + requestID
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.Logger.Warn("coordinator: mkdir for decision artifact failed", "error", err)
		return
	}
	b, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(dir+"/decision.json", b, 0o644); err != nil {
		c.Logger.Warn("coordinator: write decision artifact failed", "error", err)
	}
}
