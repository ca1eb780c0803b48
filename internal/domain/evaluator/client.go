// Package evaluator implements the Policy Evaluator Client: a remote
// OPA-style allow/deny query. The client itself is a small interface so
// the Prompt Gateway and Tool Coordinator can be tested against a fake
// without a real evaluator process.
package evaluator

import "errors"

// Kind of error this client can return. Denied and Http are distinguished
// because the caller's fail-closed/fail-open policy applies only to Http
// (transport/parse failures) — a genuine Denied always blocks.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return "evaluator: denied: " + e.Reason }

type HttpError struct {
	Message string
}

func (e *HttpError) Error() string { return "evaluator: " + e.Message }

// IsDenied reports whether err is a *DeniedError.
func IsDenied(err error) (*DeniedError, bool) {
	var d *DeniedError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// IsHttp reports whether err is an *HttpError.
func IsHttp(err error) (*HttpError, bool) {
	var h *HttpError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}

// Client evaluates a structured input document against the remote
// decision. A nil error means allow.
type Client interface {
	Evaluate(input interface{}) error
}
