package evaluator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aegis-gate/aegis/internal/domain/evaluator"
)

func TestEvaluate_Allow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"allow": true},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "aegis/decision/result")
	if err := c.Evaluate(map[string]interface{}{"kind": "prompt", "request_id": "r1"}); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestEvaluate_Denied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"allow": false, "reason": "custom_reason"},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "aegis/decision/result")
	err := c.Evaluate(map[string]interface{}{"kind": "prompt", "request_id": "r2"})
	denied, ok := evaluator.IsDenied(err)
	if !ok {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != "custom_reason" {
		t.Fatalf("expected reason custom_reason, got %s", denied.Reason)
	}
}

func TestEvaluate_DeniedDefaultReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"allow": false},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "aegis/decision/result")
	err := c.Evaluate(map[string]interface{}{"kind": "prompt", "request_id": "r3"})
	denied, ok := evaluator.IsDenied(err)
	if !ok || denied.Reason != "policy_denied" {
		t.Fatalf("expected default reason policy_denied, got %v", err)
	}
}

func TestEvaluate_TransportError(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "aegis/decision/result")
	err := c.Evaluate(map[string]interface{}{"kind": "prompt", "request_id": "r4"})
	if _, ok := evaluator.IsHttp(err); !ok {
		t.Fatalf("expected HttpError, got %v", err)
	}
}

func TestEvaluate_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "aegis/decision/result")
	err := c.Evaluate(map[string]interface{}{"kind": "prompt", "request_id": "r5"})
	if _, ok := evaluator.IsHttp(err); !ok {
		t.Fatalf("expected HttpError, got %v", err)
	}
}

func TestEvaluate_CacheExcludesRequestID(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"allow": true},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "aegis/decision/result")
	_ = c.Evaluate(map[string]interface{}{"kind": "prompt", "request_id": "r1", "findings": []string{}})
	_ = c.Evaluate(map[string]interface{}{"kind": "prompt", "request_id": "r2", "findings": []string{}})

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 upstream call due to request_id-independent caching, got %d", got)
	}
}
