package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aegis-gate/aegis/internal/domain/approval"
	"github.com/aegis-gate/aegis/internal/domain/intent"
	"github.com/aegis-gate/aegis/internal/domain/policy"
	"github.com/aegis-gate/aegis/internal/domain/sandbox"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "policy.json")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const testPolicyJSON = `{
  "upstream_base_url": "https://example.invalid",
  "fail_closed": true,
  "tool_prepare_allows_execution": false,
  "risk_money_threshold_usd": 100,
  "tools": [{"tool_id":"bash","platform":"linux","executable":"/bin/bash","allowed_arg_prefixes":["-lc"]}]
}`

func newTestCoordinator(t *testing.T, policyJSON string, allow bool) (*Coordinator, string) {
	t.Helper()
	path := writePolicyFile(t, policyJSON)
	loaded, err := policy.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	c := NewCoordinator()
	c.Policy = loaded.Policy
	c.PolicyPath = path
	c.Ledger = newFakeLedger()
	c.Registry = &fakeRegistry{allow: allow}
	c.Verifier = &approval.Verifier{}
	c.Sandbox = &sandbox.Runner{ArtifactsDir: t.TempDir()}
	return c, path
}

func happyIntent() intent.Intent {
	return intent.Intent{
		Action: "run_tool",
		Params: intent.ToolParams{ToolID: "bash", Args: []string{"-lc", "echo OK"}},
		Risk:   intent.Risk{Class: "low"},
	}
}

func TestPrepareCommit_HappyPath(t *testing.T) {
	c, _ := newTestCoordinator(t, testPolicyJSON, true)

	prep := c.Prepare(happyIntent())
	if !prep.OK || prep.Status != 200 {
		t.Fatalf("expected prepare to succeed, got %+v", prep)
	}

	commit := c.Commit(prep.RequestID, prep.PrepareDigest, nil)
	if !commit.OK || commit.Status != 200 {
		t.Fatalf("expected commit to succeed, got %+v", commit)
	}
	if commit.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", commit.ExitCode)
	}
	stdout, err := os.ReadFile(commit.StdoutPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(stdout) != "OK\n" {
		t.Fatalf("expected stdout OK, got %q", stdout)
	}
}

func TestPrepare_NotAllowlistedFailClosedDenies(t *testing.T) {
	c, _ := newTestCoordinator(t, testPolicyJSON, false)
	prep := c.Prepare(happyIntent())
	if prep.OK || prep.Status != 403 || prep.Reason != "not_allowlisted" {
		t.Fatalf("expected 403 not_allowlisted, got %+v", prep)
	}
}

func TestPrepare_ToolPrepareAllowsExecutionRefuses(t *testing.T) {
	badJSON := `{"upstream_base_url":"https://x","tool_prepare_allows_execution":false}`
	c, _ := newTestCoordinator(t, badJSON, true)
	c.Policy.ToolPrepareAllowsExecution = true // force the invalid-policy branch directly
	prep := c.Prepare(happyIntent())
	if prep.OK || prep.Status != 500 {
		t.Fatalf("expected 500 policy_invalid, got %+v", prep)
	}
}

func TestCommit_UnknownRequestID(t *testing.T) {
	c, _ := newTestCoordinator(t, testPolicyJSON, true)
	commit := c.Commit("does-not-exist", "digest", nil)
	if commit.OK || commit.Status != 400 {
		t.Fatalf("expected 400 for unknown request id, got %+v", commit)
	}
}

func TestCommit_DigestMismatch(t *testing.T) {
	c, _ := newTestCoordinator(t, testPolicyJSON, true)
	prep := c.Prepare(happyIntent())
	commit := c.Commit(prep.RequestID, "wrong-digest", nil)
	if commit.OK || commit.Status != 403 || commit.Reason != "prepare_digest_mismatch" {
		t.Fatalf("expected 403 prepare_digest_mismatch, got %+v", commit)
	}
}

func TestCommit_PolicyChangedBetweenPrepareAndCommit(t *testing.T) {
	c, path := newTestCoordinator(t, testPolicyJSON, true)
	prep := c.Prepare(happyIntent())
	if !prep.OK {
		t.Fatalf("prepare failed: %+v", prep)
	}

	// Simulate an operator edit to the policy file on disk.
	changed := `{
  "upstream_base_url": "https://example.invalid/changed",
  "fail_closed": true,
  "tool_prepare_allows_execution": false,
  "tools": [{"tool_id":"bash","platform":"linux","executable":"/bin/bash","allowed_arg_prefixes":["-lc"]}]
}`
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatal(err)
	}

	commit := c.Commit(prep.RequestID, prep.PrepareDigest, nil)
	if commit.OK || commit.Status != 403 || commit.Reason != "intent_or_policy_changed" {
		t.Fatalf("expected 403 intent_or_policy_changed, got %+v", commit)
	}
}

func TestCommit_HighRiskRequiresApproval(t *testing.T) {
	c, _ := newTestCoordinator(t, testPolicyJSON, true)
	it := happyIntent()
	it.Risk.Class = "high"
	prep := c.Prepare(it)
	if !prep.OK {
		t.Fatalf("prepare failed: %+v", prep)
	}

	commit := c.Commit(prep.RequestID, prep.PrepareDigest, nil)
	if commit.OK || commit.Status != 403 || commit.Reason != "approval_required" {
		t.Fatalf("expected 403 approval_required, got %+v", commit)
	}
}

func TestCommit_HighRiskWithValidApprovalSucceeds(t *testing.T) {
	c, _ := newTestCoordinator(t, testPolicyJSON, true)
	it := happyIntent()
	it.Risk.Class = "high"
	prep := c.Prepare(it)
	if !prep.OK {
		t.Fatalf("prepare failed: %+v", prep)
	}

	pub, sk := genKeypairForTest(t)
	c.Policy.ApprovalVerifyingKeyB64 = pub
	payload := approval.Payload{
		IntentHash:    prep.IntentHash,
		PolicyHash:    prep.PolicyHash,
		ExpiresAtUnix: unixFarFuture(),
		Scope:         "bash",
	}
	tok, err := approval.Sign(payload, sk)
	if err != nil {
		t.Fatal(err)
	}

	commit := c.Commit(prep.RequestID, prep.PrepareDigest, &tok)
	if !commit.OK || commit.Status != 200 {
		t.Fatalf("expected approved commit to succeed, got %+v", commit)
	}
}

func TestCommit_IdempotentReplay(t *testing.T) {
	c, _ := newTestCoordinator(t, testPolicyJSON, true)
	prep := c.Prepare(happyIntent())

	first := c.Commit(prep.RequestID, prep.PrepareDigest, nil)
	second := c.Commit(prep.RequestID, prep.PrepareDigest, nil)
	if !first.OK || !second.OK {
		t.Fatalf("expected both commits to succeed (idempotent replay), got %+v / %+v", first, second)
	}
}
