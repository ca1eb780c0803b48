package scanner

import "regexp"

// rule is one deterministic detector: a compiled pattern, the kind it
// belongs to, and the name recorded on a Finding.
type rule struct {
	kind FindingKind
	name string
	re   *regexp.Regexp
}

// proximityPattern builds a regex that matches when any of the left terms
// occurs within maxDist characters of any of the right terms, in either
// order. "(?s)" lets "." cross newlines, since scanned text is a whole
// serialized request body.
func proximityPattern(left, right []string, maxDist int) *regexp.Regexp {
	l := alternation(left)
	r := alternation(right)
	pat := "(?is)(?:\\b(?:" + l + ")\\b.{0," + itoa(maxDist) + "}\\b(?:" + r + ")\\b" +
		"|\\b(?:" + r + ")\\b.{0," + itoa(maxDist) + "}\\b(?:" + l + ")\\b)"
	return regexp.MustCompile(pat)
}

func alternation(terms []string) string {
	out := ""
	for i, t := range terms {
		if i > 0 {
			out += "|"
		}
		out += regexp.QuoteMeta(t)
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

const proximityWindow = 200

var secretRules = []rule{
	{KindSecret, "openai_key", regexp.MustCompile(`(?i)\bsk-[A-Za-z0-9]{20,}\b`)},
	{KindSecret, "aws_access_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{KindSecret, "pem_private_key", regexp.MustCompile(`-----BEGIN (?:RSA|EC|OPENSSH|DSA|PRIVATE) KEY-----`)},
}

var injectionRules = []rule{
	{KindPromptInjection, "ignore_instructions", proximityPattern(
		[]string{"ignore", "disregard", "bypass", "override"},
		[]string{"instruction", "system", "policy", "rules"},
		proximityWindow,
	)},
	{KindPromptInjection, "reveal_system", proximityPattern(
		[]string{"reveal", "show", "print", "leak", "display"},
		[]string{"system prompt", "system message", "developer message", "hidden"},
		proximityWindow,
	)},
	{KindPromptInjection, "role_hijack", proximityPattern(
		[]string{"you are now"},
		[]string{"system", "developer"},
		proximityWindow,
	)},
	{KindPromptInjection, "do_anything_now", regexp.MustCompile(`(?i)\bDAN\b|do anything now`)},
}

var piiRules = []rule{
	{KindPii, "ssn_like", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
}
