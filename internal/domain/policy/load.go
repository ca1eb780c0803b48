package policy

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Loaded bundles a parsed Policy together with the exact bytes it was parsed
// from. policy_hash is defined over those raw bytes, not over a
// re-serialization of the parsed struct, so callers must keep Raw alongside
// Policy rather than regenerating it.
type Loaded struct {
	Policy *Policy
	Raw    []byte
	Hash   string
}

var validate = validator.New()

func init() {
	validate.RegisterStructValidation(policyStructLevelValidation, Policy{})
}

// policyStructLevelValidation enforces the invariants that a struct tag
// cannot express on its own, matching the RegisterCustomValidators pattern
// the rest of this codebase follows for multi-field rules.
func policyStructLevelValidation(sl validator.StructLevel) {
	p := sl.Current().Interface().(Policy)
	for i, t := range p.Tools {
		if t.Executable == "" {
			continue
		}
		if !strings.HasPrefix(t.Executable, "/") && !isWindowsAbs(t.Executable) {
			sl.ReportError(p.Tools, "Tools", "Tools", "absolute_executable", fmt.Sprintf("tools[%d]", i))
		}
	}
}

func isWindowsAbs(path string) bool {
	if len(path) < 3 {
		return false
	}
	return path[1] == ':' && (path[2] == '\\' || path[2] == '/')
}

// Load reads the policy document at path, unmarshals it with the raw bytes
// preserved verbatim, validates it, and computes policy_hash = SHA256(raw
// bytes). It intentionally bypasses Viper's merge/override machinery:
// "the raw bytes" must stay a well-defined concept, and Viper's layered
// config resolution has no notion of "the literal bytes that produced this
// value."
func Load(path string) (*Loaded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}

	var p Policy
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}

	if p.ToolPrepareAllowsExecution {
		return nil, fmt.Errorf("policy: tool_prepare_allows_execution must never be true")
	}

	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("policy: invalid: %w", formatValidationErrors(err))
	}

	sum := sha256.Sum256(raw)
	return &Loaded{
		Policy: &p,
		Raw:    raw,
		Hash:   fmt.Sprintf("%x", sum),
	}, nil
}

func formatValidationErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf(strings.Join(msgs, "; "))
}
