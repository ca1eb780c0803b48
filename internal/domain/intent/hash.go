package intent

import "github.com/aegis-gate/aegis/internal/canon"

// Hash computes intent_hash = SHA256(canonical-JSON(intent)).
func Hash(i Intent) (string, error) {
	return canon.Hash(i)
}

// PrepareDigest computes
// prepare_digest = SHA256(canonical-JSON({intent_hash, policy_hash, constraints, created_at})).
// It is recomputed both at prepare (to populate the PrepareRecord) and at
// commit (to re-derive the binding from the current policy snapshot) — the
// two must use this exact same function for the TOCTOU defense to hold.
func PrepareDigest(intentHash, policyHash string, constraints map[string]interface{}, createdAt int64) (string, error) {
	doc := map[string]interface{}{
		"intent_hash": intentHash,
		"policy_hash": policyHash,
		"constraints": constraints,
		"created_at":  createdAt,
	}
	return canon.Hash(doc)
}
