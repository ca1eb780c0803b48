package scanner

import "github.com/aegis-gate/aegis/internal/domain/policy"

// Scan runs the enabled rule families against text and returns one Finding
// per matching rule (first match only, in rule-declaration order). Which
// families run is controlled by the policy's block_on_* switches; a
// disabled family is not even evaluated.
func Scan(text string, pol *policy.Policy) []Finding {
	var findings []Finding

	if pol.BlockOnSecrets {
		findings = append(findings, matchFirst(secretRules, text)...)
	}
	if pol.BlockOnInjection {
		findings = append(findings, matchFirst(injectionRules, text)...)
	}
	if pol.BlockOnPii {
		findings = append(findings, matchFirst(piiRules, text)...)
	}

	return findings
}

func matchFirst(rules []rule, text string) []Finding {
	var out []Finding
	for _, r := range rules {
		loc := r.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		out = append(out, Finding{
			Kind:        r.kind,
			PatternName: r.name,
			Snippet:     text[loc[0]:loc[1]],
		})
	}
	return out
}
