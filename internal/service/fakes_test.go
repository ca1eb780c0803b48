package service

import (
	"sync"

	"github.com/aegis-gate/aegis/internal/domain/audit"
	"github.com/aegis-gate/aegis/internal/domain/intent"
)

// fakeLedger is an in-memory audit.Ledger used by service-layer tests so
// they can assert on exactly which events were appended without touching
// disk.
type fakeLedger struct {
	mu       sync.Mutex
	events   []audit.Event
	lastHash string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{lastHash: audit.Genesis}
}

func (f *fakeLedger) Append(eventType, requestID string, payload interface{}) (audit.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, err := audit.ComputeHash(eventType, requestID, payload, f.lastHash)
	if err != nil {
		return audit.Event{}, err
	}
	e := audit.Event{EventType: eventType, RequestID: requestID, Payload: payload, PrevHash: f.lastHash, Hash: hash}
	f.lastHash = hash
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeLedger) ExportAll() (string, error) {
	return "", nil
}

func (f *fakeLedger) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.EventType
	}
	return out
}

// fakeRegistry lets tests control allowlisting directly.
type fakeRegistry struct {
	allow bool
}

func (r *fakeRegistry) IsAllowlisted(_ intent.Intent) bool {
	return r.allow
}
