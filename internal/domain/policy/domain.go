package policy

import (
	"strings"

	"github.com/gobwas/glob"
)

// MatchesAllowedDomain reports whether host matches one of policy's
// allowed_domains entries. Entries may be exact hostnames or glob
// patterns (e.g. "*.openai.com"); matching is case-insensitive.
//
// This check is informational today: the Prompt Gateway
// forwards to a single configured upstream_base_url and does not proxy
// arbitrary outbound hosts, so nothing in the request path calls this
// today. It is implemented and tested now so a future transport
// collaborator that does proxy per-request hosts has a ready-made,
// already-verified matcher rather than inventing one under deadline.
func (p *Policy) MatchesAllowedDomain(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, pattern := range p.AllowedDomains {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			continue
		}
		if g.Match(host) {
			return true
		}
	}
	return false
}
