// Package secret provides constant-time shared-secret comparison, used by
// the bridge listener to check the gateway's X-Bridge-Secret header and by
// any HMAC-signed webhook callers the control plane accepts.
package secret

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Equal reports whether got matches want using a constant-time comparison,
// so a timing side channel can't be used to brute-force the secret one byte
// at a time.
func Equal(want, got string) bool {
	if want == "" {
		return false
	}
	return hmac.Equal([]byte(want), []byte(got))
}

// VerifySignature verifies an HMAC-SHA256 hex signature over payload using
// secret. If secret is empty, verification is skipped, matching the
// teacher's development/testing escape hatch.
func VerifySignature(secret string, payload []byte, signature string) error {
	if secret == "" {
		return nil
	}
	if signature == "" {
		return fmt.Errorf("signature missing")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
