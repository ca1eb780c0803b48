// Package threat implements the Threat Recorder: a bounded in-memory ring
// of recent deny events for the (out-of-scope) dashboard to read.
package threat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const capacity = 1000

// Severity classifies how serious a recorded threat is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Threat is one recorded deny event, kept for observability only.
type Threat struct {
	ID       string   `json:"id"`
	Ts       string   `json:"ts"`
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule"`
	SrcIP    string   `json:"src_ip"`
	DstIP    string   `json:"dst_ip"`
	Action   string   `json:"action"`
	Reason   string   `json:"reason"`
}

// Recorder is a fixed-capacity FIFO ring buffer guarded by a writer lock.
type Recorder struct {
	mu    sync.RWMutex
	items []Threat
	head  int
	size  int
}

// NewRecorder returns an empty Recorder at the fixed capacity.
func NewRecorder() *Recorder {
	return &Recorder{items: make([]Threat, capacity)}
}

// Record constructs a Threat and appends it, evicting the oldest entry
// once capacity is reached. src_ip/dst_ip are fixed to loopback: the HTTP
// layer that owns real peer information is an out-of-scope collaborator.
func (r *Recorder) Record(severity Severity, rule, action, reason string) Threat {
	t := Threat{
		ID:       uuid.NewString(),
		Ts:       time.Now().UTC().Format(time.RFC3339),
		Severity: severity,
		Rule:     rule,
		SrcIP:    "127.0.0.1",
		DstIP:    "127.0.0.1",
		Action:   action,
		Reason:   reason,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.size) % capacity
	r.items[idx] = t
	if r.size < capacity {
		r.size++
	} else {
		r.head = (r.head + 1) % capacity
	}

	return t
}

// Len reports how many threats are currently buffered.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Snapshot returns the current buffer contents, oldest first.
func (r *Recorder) Snapshot() []Threat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Threat, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%capacity]
	}
	return out
}
