// Package signature computes and verifies HMAC-SHA256 signatures over
// outgoing webhook payloads. Receivers verify the X-Webhook-Signature
// header ("sha256=<hex>") using the shared secret issued at registration.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/hireloop/webhook-dispatch/internal/domain"
)

// Prefix is the scheme tag carried in the signature header.
const Prefix = "sha256="

// Sign computes the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) (string, error) {
	if secret == "" {
		return "", &domain.ValidationError{Field: "secret", Reason: "must not be empty"}
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Header returns the full header value for a payload, including the scheme
// prefix.
func Header(secret string, payload []byte) (string, error) {
	sig, err := Sign(secret, payload)
	if err != nil {
		return "", err
	}
	return Prefix + sig, nil
}

// Verify checks a hex signature (with or without the "sha256=" prefix)
// against the payload using a constant-time comparison.
func Verify(secret string, payload []byte, sig string) bool {
	sig = strings.TrimPrefix(sig, Prefix)

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}
