package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLoggerGeneratesID(t *testing.T) {
	var gotID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Context().Value(RequestIDKey).(string)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	withRequestLogger(slog.Default(), inner).ServeHTTP(w, req)

	if gotID == "" {
		t.Fatal("expected a generated request ID in context")
	}
	if w.Header().Get("X-Request-ID") != gotID {
		t.Fatalf("response header %q does not match context ID %q", w.Header().Get("X-Request-ID"), gotID)
	}
}

func TestWithRequestLoggerPreservesIncomingID(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	w := httptest.NewRecorder()
	withRequestLogger(slog.Default(), inner).ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Fatalf("expected incoming request ID to be preserved, got %q", got)
	}
}
