// Package audit defines the tamper-evident event log: an append-only
// hash-chained sequence where every event's hash is an input to the next,
// so a single alteration invalidates every later hash.
package audit

import "github.com/aegis-gate/aegis/internal/canon"

// Genesis is the prev_hash value for the first event in a chain.
const Genesis = "GENESIS"

// Event is one entry in the ledger.
type Event struct {
	EventType string      `json:"event_type"`
	RequestID string      `json:"request_id"`
	Payload   interface{} `json:"payload"`
	PrevHash  string      `json:"prev_hash"`
	Hash      string      `json:"hash"`
}

// ComputeHash returns hash = SHA256(canonical-JSON({event_type, request_id,
// payload, prev_hash})) — note hash itself is excluded from the digest
// input, since it is the output being computed.
func ComputeHash(eventType, requestID string, payload interface{}, prevHash string) (string, error) {
	doc := map[string]interface{}{
		"event_type": eventType,
		"request_id": requestID,
		"payload":    payload,
		"prev_hash":  prevHash,
	}
	return canon.Hash(doc)
}

// Ledger is the interface the rest of the system appends events through.
type Ledger interface {
	Append(eventType, requestID string, payload interface{}) (Event, error)
	ExportAll() (string, error)
}
