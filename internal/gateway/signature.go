package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignBody computes the hex HMAC-SHA256 of a raw webhook body. MOMO signs
// its callbacks this way with the shared webhook secret.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature compares a presented signature against the expected HMAC in
// constant time.
func ValidSignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(SignBody(secret, body)), []byte(signature))
}

// ValidSecret does a constant-time comparison of PAYLINK's shared-secret
// webhook header.
func ValidSecret(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
