// Package approval implements the Approval Verifier: Ed25519 signature
// checking over a fixed-field-order serialization of the ApprovalPayload.
//
// This serialization is deliberately NOT the general canonical-JSON sorter
// in internal/canon — the signer/verifier contract pins an explicit
// field order (intent_hash, policy_hash, expires_at_unix, scope)
// that is not alphabetical. Reusing the generic canonicalizer here would
// silently break every previously issued token the day someone "cleaned
// up" the duplication, so the two serializers are kept deliberately
// separate and never merged.
package approval

// Payload is the content an operator signs to authorize a high-risk
// commit. Scope must equal the tool_id being committed.
type Payload struct {
	IntentHash    string `json:"intent_hash"`
	PolicyHash    string `json:"policy_hash"`
	ExpiresAtUnix int64  `json:"expires_at_unix"`
	Scope         string `json:"scope"`
}

// Token is a signed Payload as presented by a client on commit.
type Token struct {
	Payload Payload `json:"payload"`
	SigB64  string  `json:"sig_b64"`
}
