package approval

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"
)

// Verifier checks ApprovalTokens against a policy-declared verifying key,
// falling back to an operator signing-key environment seed, and finally to
// an explicit dev-signer escape hatch used only in test/demo deployments.
type Verifier struct {
	// OperatorSKB64 is a base64-encoded 32-byte Ed25519 seed, used to
	// derive a public key when the policy carries no verifying key.
	OperatorSKB64 string
	// DevSignerEnabled mirrors AEGIS_DEV_SIGNER == "1". When true and no
	// key can be resolved by any other means, verification succeeds
	// unconditionally (besides the expiry check) — strictly a test-mode
	// affordance, never meant for a populated production policy.
	DevSignerEnabled bool
}

// Verify checks expiry, resolves the verifying key, base64-decodes the
// signature, then strict-verifies Ed25519 over the fixed-order signing
// bytes.
func (v *Verifier) Verify(tok Token, verifyingKeyB64 string) (bool, error) {
	if tok.Payload.ExpiresAtUnix < time.Now().Unix() {
		return false, nil
	}

	pub, devOK, err := v.resolveKey(verifyingKeyB64)
	if err != nil {
		return false, err
	}
	if pub == nil {
		return devOK, nil
	}

	sig, err := base64.StdEncoding.DecodeString(tok.SigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("approval: invalid signature encoding")
	}

	msg, err := SigningBytes(tok.Payload)
	if err != nil {
		return false, err
	}

	return ed25519.Verify(pub, msg, sig), nil
}

// resolveKey returns the public key to verify against, or nil with devOK
// set if verification must fall back to the dev-signer escape hatch.
func (v *Verifier) resolveKey(verifyingKeyB64 string) (ed25519.PublicKey, bool, error) {
	if verifyingKeyB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(verifyingKeyB64)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, false, fmt.Errorf("approval: invalid verifying_key_b64")
		}
		return ed25519.PublicKey(raw), false, nil
	}

	if v.OperatorSKB64 != "" {
		seed, err := base64.StdEncoding.DecodeString(v.OperatorSKB64)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, false, fmt.Errorf("approval: invalid operator signing key")
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return priv.Public().(ed25519.PublicKey), false, nil
	}

	return nil, v.DevSignerEnabled, nil
}

// Sign produces a Token for payload using the 32-byte Ed25519 seed skB64.
// Used by both the dev-signer HTTP endpoint and the `aegis sign` CLI.
func Sign(payload Payload, skB64 string) (Token, error) {
	seed, err := base64.StdEncoding.DecodeString(skB64)
	if err != nil || len(seed) != ed25519.SeedSize {
		return Token{}, fmt.Errorf("approval: invalid signing key seed")
	}
	priv := ed25519.NewKeyFromSeed(seed)

	msg, err := SigningBytes(payload)
	if err != nil {
		return Token{}, err
	}
	sig := ed25519.Sign(priv, msg)

	return Token{
		Payload: payload,
		SigB64:  base64.StdEncoding.EncodeToString(sig),
	}, nil
}
