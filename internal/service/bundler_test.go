package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aegis-gate/aegis/internal/domain/policy"
	"github.com/aegis-gate/aegis/internal/domain/threat"
)

type fakeBundleLedger struct {
	full  string
	lines map[string][]string
}

func (f *fakeBundleLedger) ExportAll() (string, error) { return f.full, nil }
func (f *fakeBundleLedger) LinesForRequest(requestID string) ([]string, error) {
	return f.lines[requestID], nil
}

func zipEntry(t *testing.T, data []byte, name string) []byte {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			buf := new(bytes.Buffer)
			buf.ReadFrom(rc)
			return buf.Bytes()
		}
	}
	t.Fatalf("entry %s not found", name)
	return nil
}

func TestBuildFull_RedactsPolicyKeys(t *testing.T) {
	pol := &policy.Policy{
		UpstreamBaseURL:         "https://x",
		ApprovalVerifyingKeyB64: "super-secret-key-material",
	}
	b := NewBundler()
	b.Policy = pol
	b.Ledger = &fakeBundleLedger{full: ""}
	b.Threats = threat.NewRecorder()
	b.StartedAt = time.Now()

	data, err := b.BuildFull()
	if err != nil {
		t.Fatal(err)
	}

	snapshot := zipEntry(t, data, "policy_snapshot.json")
	var parsed map[string]interface{}
	if err := json.Unmarshal(snapshot, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["approval_verifying_key_b64"] != "[REDACTED]" {
		t.Fatalf("expected key field redacted, got %+v", parsed["approval_verifying_key_b64"])
	}
	if parsed["upstream_base_url"] != "https://x" {
		t.Fatalf("expected non-key field preserved, got %+v", parsed["upstream_base_url"])
	}
}

func TestBuildFull_RedactsAuthorizationInAudit(t *testing.T) {
	b := NewBundler()
	b.Policy = &policy.Policy{}
	b.Ledger = &fakeBundleLedger{full: `{"event_type":"upstream.error","payload":{"Authorization":"Bearer secret"}}` + "\n"}
	b.Threats = threat.NewRecorder()

	data, err := b.BuildFull()
	if err != nil {
		t.Fatal(err)
	}
	audit := zipEntry(t, data, "audit.jsonl")
	if strings.Contains(string(audit), "Authorization") {
		t.Fatalf("expected Authorization to be redacted, got %s", audit)
	}
	if !strings.Contains(string(audit), "[REDACTED]") {
		t.Fatalf("expected redaction marker present, got %s", audit)
	}
}

func TestBuildForRequest_FiltersAuditLines(t *testing.T) {
	b := NewBundler()
	b.Policy = &policy.Policy{}
	b.Ledger = &fakeBundleLedger{lines: map[string][]string{
		"req-1": {`{"request_id":"req-1"}`},
	}}
	b.Threats = threat.NewRecorder()

	data, err := b.BuildForRequest("req-1")
	if err != nil {
		t.Fatal(err)
	}
	audit := zipEntry(t, data, "audit.jsonl")
	if !strings.Contains(string(audit), "req-1") {
		t.Fatalf("expected req-1 line present, got %s", audit)
	}

	meta := zipEntry(t, data, "meta.json")
	var parsedMeta map[string]interface{}
	json.Unmarshal(meta, &parsedMeta)
	if parsedMeta["request_id"] != "req-1" {
		t.Fatalf("expected meta.request_id=req-1, got %+v", parsedMeta)
	}
}

func TestBuildFull_ContainsAllFourEntries(t *testing.T) {
	b := NewBundler()
	b.Policy = &policy.Policy{}
	b.Ledger = &fakeBundleLedger{full: ""}
	b.Threats = threat.NewRecorder()

	data, err := b.BuildFull()
	if err != nil {
		t.Fatal(err)
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"policy_snapshot.json": false, "audit.jsonl": false, "threats.json": false, "meta.json": false}
	for _, f := range r.File {
		want[f.Name] = true
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected entry %s in bundle", name)
		}
	}
}
