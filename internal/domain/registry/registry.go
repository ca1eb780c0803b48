// Package registry implements the Tool Registry: the sole authority on
// argument admissibility for a tool invocation. IsAllowlisted is a pure
// function of its inputs and the immutable policy — it never consults
// network state or mutable cache.
package registry

import (
	"runtime"
	"strings"

	"github.com/aegis-gate/aegis/internal/domain/intent"
	"github.com/aegis-gate/aegis/internal/domain/policy"
)

// hostPlatform abstracts runtime.GOOS for tests that want to pin a
// platform regardless of the machine actually running the suite.
var hostPlatform = func() string {
	if runtime.GOOS == "windows" {
		return "windows"
	}
	return "linux"
}

// Registry checks tool_id/args pairs against the policy's ToolSpec list,
// plus the optional CEL/JSON-Schema narrowing checks introduced for
// per-tool constraints.
type Registry struct {
	Policy *policy.Policy
	narrow *narrowing
}

// New builds a Registry and compiles any declared constraint_expr/
// constraints_schema up front, so a bad expression fails at load time
// rather than on the first request that exercises it.
func New(pol *policy.Policy) (*Registry, error) {
	n, err := newNarrowing(pol)
	if err != nil {
		return nil, err
	}
	return &Registry{Policy: pol, narrow: n}, nil
}

// IsAllowlisted applies the per-tool argument rules, then the optional
// narrowing checks: neither narrowing check can convert a base deny
// into an allow.
func (r *Registry) IsAllowlisted(it intent.Intent) bool {
	spec, ok := r.Policy.ToolByID(it.Params.ToolID)
	if !ok {
		return false
	}
	if spec.Platform != hostPlatform() {
		return false
	}

	var allowed bool
	switch spec.ToolID {
	case "bash":
		allowed = isBashAllowed(it.Params.Args)
	case "pwsh":
		allowed = isPwshAllowed(it.Params.Args, spec.AllowedArgPrefixes)
	default:
		allowed = isDefaultAllowed(it.Params.Args, spec.AllowedArgPrefixes)
	}
	if !allowed {
		return false
	}

	return r.narrow.check(*spec, it)
}

var bashAllowedCommands = map[string]bool{
	"echo OK":     true,
	"printf OK":   true,
	"printf 'OK'": true,
}

func isBashAllowed(args []string) bool {
	if len(args) != 2 || args[0] != "-lc" {
		return false
	}
	return bashAllowedCommands[strings.TrimSpace(args[1])]
}

func isPwshAllowed(args []string, prefixes []string) bool {
	if len(args) < 4 {
		return false
	}
	for _, a := range args[:len(args)-1] {
		if !hasAnyPrefix(a, prefixes) {
			return false
		}
	}
	return true
}

func isDefaultAllowed(args []string, prefixes []string) bool {
	for _, a := range args {
		if !hasAnyPrefix(a, prefixes) {
			return false
		}
	}
	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
