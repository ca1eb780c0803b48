// Package http is the minimal net/http transport: exactly the gateway's
// six contractual endpoints, no CORS, rate-limiting, or bearer-token
// auth middleware — those remain out-of-scope collaborators.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/aegis-gate/aegis/internal/config"
	"github.com/aegis-gate/aegis/internal/domain/approval"
	"github.com/aegis-gate/aegis/internal/domain/intent"
)

// NewMux builds the routing table for one AppState, wrapped with a
// request-ID/logger-enrichment middleware.
func NewMux(state *config.AppState) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", handleChat(state))
	mux.HandleFunc("/v1/tools/prepare", handlePrepare(state))
	mux.HandleFunc("/v1/tools/commit", handleCommit(state))
	mux.HandleFunc("/v1/aegis/export", handleExport(state))
	mux.HandleFunc("/v1/aegis/bundle/", handleBundle(state))
	mux.HandleFunc("/v1/approvals/sign", handleSign(state))
	return withRequestLogger(state.Logger, mux)
}

func handleChat(state *config.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		res := state.Gateway.HandleChatCompletions(body, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		w.Write(res.Body)
	}
}

type prepareRequest struct {
	Intent intent.Intent `json:"intent"`
}

func handlePrepare(state *config.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req prepareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "bad_request"})
			return
		}

		res := state.Coordinator.Prepare(req.Intent)
		if !res.OK {
			writeJSON(w, res.Status, map[string]interface{}{
				"error":      res.Error,
				"reason":     res.Reason,
				"request_id": res.RequestID,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"request_id":     res.RequestID,
			"prepare_digest": res.PrepareDigest,
			"intent_hash":    res.IntentHash,
			"policy_hash":    res.PolicyHash,
		})
	}
}

type commitRequest struct {
	RequestID     string          `json:"request_id"`
	PrepareDigest string          `json:"prepare_digest"`
	Approval      *approval.Token `json:"approval,omitempty"`
}

func handleCommit(state *config.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req commitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "bad_request"})
			return
		}

		res := state.Coordinator.Commit(req.RequestID, req.PrepareDigest, req.Approval)
		if res.Status != 200 {
			writeJSON(w, res.Status, map[string]interface{}{
				"error":      res.Error,
				"reason":     res.Reason,
				"request_id": res.RequestID,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":          res.OK,
			"request_id":  res.RequestID,
			"exit_code":   res.ExitCode,
			"stdout_path": res.StdoutPath,
			"stderr_path": res.StderrPath,
		})
	}
}

func handleExport(state *config.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := state.Ledger.ExportAll()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(text))
	}
}

func handleBundle(state *config.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.URL.Path[len("/v1/aegis/bundle/"):]
		var data []byte
		var err error
		if requestID == "" {
			data, err = state.Bundler.BuildFull()
		} else {
			data, err = state.Bundler.BuildForRequest(requestID)
		}
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(data)
	}
}

type signRequest struct {
	IntentHash string `json:"intent_hash"`
	PolicyHash string `json:"policy_hash"`
	Scope      string `json:"scope"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func handleSign(state *config.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !state.Settings.DevSigner {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req signRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "bad_request"})
			return
		}

		payload := approval.Payload{
			IntentHash:    req.IntentHash,
			PolicyHash:    req.PolicyHash,
			ExpiresAtUnix: time.Now().Add(time.Duration(req.TTLSeconds) * time.Second).Unix(),
			Scope:         req.Scope,
		}
		tok, err := approval.Sign(payload, state.Settings.OperatorSKB64)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "signing_failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"token": tok})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
