package approval

import (
	"bytes"
	"encoding/json"
)

// SigningBytes serializes payload with keys in the exact fixed order the
// signer and verifier share: intent_hash, policy_hash, expires_at_unix,
// scope. This is the only byte representation either side may use — it is
// NOT produced by the general canonical-JSON key-sorter.
func SigningBytes(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	fields := []struct {
		key string
		val interface{}
	}{
		{"intent_hash", p.IntentHash},
		{"policy_hash", p.PolicyHash},
		{"expires_at_unix", p.ExpiresAtUnix},
		{"scope", p.Scope},
	}

	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := json.Marshal(f.val)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
