package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aegis-gate/aegis/internal/domain/policy"
	"github.com/aegis-gate/aegis/internal/domain/threat"
)

// BundleLedger is the subset of ledger capability the bundler needs:
// the full export for whole-audit bundles, and the request-scoped slice
// for per-request bundles.
type BundleLedger interface {
	ExportAll() (string, error)
	LinesForRequest(requestID string) ([]string, error)
}

// redactedKeywords are matched case-insensitively against lowercased key
// names anywhere in the policy document; a matching field's value is
// replaced wholesale. This is coarse by design (see the Evidence
// redaction design note): it is defense-in-depth, not a guarantee that no
// secret-shaped value survives under an oddly named field.
var redactedKeywords = []string{"token", "key", "secret", "authorization"}

// Bundler assembles a deterministic ZIP archive of the policy snapshot,
// audit slice, threats, and request metadata.
type Bundler struct {
	Policy    *policy.Policy
	Ledger    BundleLedger
	Threats   *threat.Recorder
	StartedAt time.Time
	Logger    *slog.Logger

	// S3 archival, optional — nil disables it entirely.
	S3     *s3.Client
	Bucket string
}

// NewBundler constructs a Bundler; StartedAt should be set by the caller
// once at process startup, for the uptime_ms field.
func NewBundler() *Bundler {
	return &Bundler{Logger: slog.Default(), StartedAt: time.Now()}
}

// BuildFull produces the whole-ledger evidence bundle.
func (b *Bundler) BuildFull() ([]byte, error) {
	return b.build("", false)
}

// BuildForRequest produces a per-request bundle whose audit.jsonl is
// filtered to lines containing requestID as a substring.
func (b *Bundler) BuildForRequest(requestID string) ([]byte, error) {
	return b.build(requestID, true)
}

func (b *Bundler) build(requestID string, scoped bool) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	policySnapshot, err := b.redactedPolicySnapshot()
	if err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, "policy_snapshot.json", policySnapshot); err != nil {
		return nil, err
	}

	auditBytes, err := b.redactedAudit(requestID, scoped)
	if err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, "audit.jsonl", auditBytes); err != nil {
		return nil, err
	}

	threatsBytes, err := json.MarshalIndent(b.Threats.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundler: marshal threats: %w", err)
	}
	if err := writeZipEntry(zw, "threats.json", threatsBytes); err != nil {
		return nil, err
	}

	meta := map[string]interface{}{
		"request_id":   requestID,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"uptime_ms":    time.Since(b.StartedAt).Milliseconds(),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundler: marshal meta: %w", err)
	}
	if err := writeZipEntry(zw, "meta.json", metaBytes); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundler: close zip: %w", err)
	}

	out := buf.Bytes()
	if b.S3 != nil && b.Bucket != "" {
		b.archive(requestID, meta["generated_at"].(string), out)
	}

	return out, nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("bundler: create entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("bundler: write entry %s: %w", name, err)
	}
	return nil
}

func (b *Bundler) redactedPolicySnapshot() ([]byte, error) {
	raw, err := json.Marshal(b.Policy)
	if err != nil {
		return nil, fmt.Errorf("bundler: marshal policy: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("bundler: decode policy: %w", err)
	}
	redacted := redactRecursive(generic)
	return json.MarshalIndent(redacted, "", "  ")
}

func redactRecursive(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if isRedactedKey(k) {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = redactRecursive(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = redactRecursive(child)
		}
		return out
	default:
		return val
	}
}

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range redactedKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// redactedAudit returns the audit slice (full or per-request), with the
// literal Authorization header string redacted line by line.
func (b *Bundler) redactedAudit(requestID string, scoped bool) ([]byte, error) {
	var raw string
	var err error
	if scoped {
		lines, lerr := b.Ledger.LinesForRequest(requestID)
		if lerr != nil {
			return nil, fmt.Errorf("bundler: request slice: %w", lerr)
		}
		raw = strings.Join(lines, "\n")
		if len(lines) > 0 {
			raw += "\n"
		}
	} else {
		raw, err = b.Ledger.ExportAll()
		if err != nil {
			return nil, fmt.Errorf("bundler: export audit: %w", err)
		}
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.ReplaceAll(line, "Authorization", "[REDACTED]")
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// archive uploads the generated bundle to S3, best-effort. Failure is
// logged and never changes the caller's already-computed zip bytes.
func (b *Bundler) archive(requestID, generatedAt string, data []byte) {
	key := fmt.Sprintf("evidence/%s/%s.zip", orAll(requestID), generatedAt)
	_, err := b.S3.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		b.Logger.Warn("bundler: s3 archival failed", "error", err, "key", key)
	}
}

func orAll(requestID string) string {
	if requestID == "" {
		return "all"
	}
	return requestID
}
