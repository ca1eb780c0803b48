package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aegis-gate/aegis/internal/config"
)

func newTestState(t *testing.T) *config.AppState {
	t.Helper()
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.json")
	policyJSON := `{
	  "upstream_base_url": "https://example.invalid",
	  "fail_closed": true,
	  "tool_prepare_allows_execution": false,
	  "tools": [{"tool_id":"bash","platform":"linux","executable":"/bin/bash","allowed_arg_prefixes":["-lc"]}]
	}`
	if err := os.WriteFile(policyPath, []byte(policyJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	settings := &config.Settings{
		PolicyPath:   policyPath,
		AuditPath:    filepath.Join(dir, "audit.jsonl"),
		ArtifactsDir: filepath.Join(dir, "artifacts"),
		LogLevel:     "error",
	}
	state, err := config.Build(settings)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { state.Ledger.Close() })
	return state
}

func TestHandlePrepareAndCommit_HappyPath(t *testing.T) {
	state := newTestState(t)
	mux := NewMux(state)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	prepBody := `{"intent":{"action":"run_tool","params":{"tool_id":"bash","args":["-lc","echo OK"]},"risk":{"class":"low","money_usd":0,"destructive":false}}}`
	resp, err := http.Post(srv.URL+"/v1/tools/prepare", "application/json", strings.NewReader(prepBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var prep map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&prep)

	commitBody, _ := json.Marshal(map[string]interface{}{
		"request_id":     prep["request_id"],
		"prepare_digest": prep["prepare_digest"],
	})
	resp2, err := http.Post(srv.URL+"/v1/tools/commit", "application/json", strings.NewReader(string(commitBody)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
	var commit map[string]interface{}
	json.NewDecoder(resp2.Body).Decode(&commit)
	if commit["ok"] != true {
		t.Fatalf("expected ok=true, got %+v", commit)
	}
}

func TestHandleExport_ReturnsAuditText(t *testing.T) {
	state := newTestState(t)
	mux := NewMux(state)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/aegis/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleSign_DisabledReturns404(t *testing.T) {
	state := newTestState(t)
	mux := NewMux(state)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/approvals/sign", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 when dev-signer disabled, got %d", resp.StatusCode)
	}
}

func TestHandleBundle_ReturnsZip(t *testing.T) {
	state := newTestState(t)
	mux := NewMux(state)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/aegis/bundle/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("expected application/zip, got %s", ct)
	}
}
