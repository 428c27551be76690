package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/hireloop/webhook-dispatch/internal/domain"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		secret  string
	}{
		{
			name:    "basic payload",
			payload: []byte(`{"event":"assessment.completed","data":{"id":"123"}}`),
			secret:  "my-secret-key",
		},
		{
			name:    "empty payload",
			payload: []byte(`{}`),
			secret:  "secret",
		},
		{
			name:    "unicode payload",
			payload: []byte(`{"name":"café","salary":"€10"}`),
			secret:  "unicode-key-日本語",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Sign(tt.secret, tt.payload)
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}

			decoded, err := hex.DecodeString(sig)
			if err != nil {
				t.Fatalf("signature is not valid hex: %v", err)
			}
			if len(decoded) != 32 {
				t.Fatalf("expected 32 bytes, got %d", len(decoded))
			}

			// Verify against standard library
			mac := hmac.New(sha256.New, []byte(tt.secret))
			mac.Write(tt.payload)
			expected := hex.EncodeToString(mac.Sum(nil))

			if sig != expected {
				t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", sig, expected)
			}
		})
	}
}

func TestSign_EmptySecret(t *testing.T) {
	_, err := Sign("", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error for empty secret")
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %T", err)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	payload := []byte(`{"event":"interview.scheduled"}`)
	secret := "test-secret"

	sig, err := Sign(secret, payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if !Verify(secret, payload, sig) {
		t.Error("signature should verify against original payload")
	}
	if !Verify(secret, payload, Prefix+sig) {
		t.Error("signature should verify with sha256= prefix")
	}
}

func TestVerify_RejectsMutations(t *testing.T) {
	payload := []byte(`{"candidate_id":"c-1"}`)
	secret := "test-secret"

	sig, _ := Sign(secret, payload)

	if Verify(secret, []byte(`{"candidate_id":"c-2"}`), sig) {
		t.Error("mutated payload should not verify")
	}
	if Verify("other-secret", payload, sig) {
		t.Error("wrong secret should not verify")
	}
	if Verify(secret, payload, "not-hex!") {
		t.Error("malformed signature should not verify")
	}
	if Verify(secret, payload, "") {
		t.Error("empty signature should not verify")
	}
}

func TestHeader(t *testing.T) {
	payload := []byte(`{"x":1}`)
	header, err := Header("secret", payload)
	if err != nil {
		t.Fatalf("Header failed: %v", err)
	}

	sig, _ := Sign("secret", payload)
	if header != Prefix+sig {
		t.Errorf("header = %q, want %q", header, Prefix+sig)
	}
}

func TestSign_Deterministic(t *testing.T) {
	payload := []byte(`{"event":"test"}`)
	secret := "test-secret"

	sig1, _ := Sign(secret, payload)
	sig2, _ := Sign(secret, payload)

	if sig1 != sig2 {
		t.Error("HMAC should be deterministic — same input should produce same output")
	}
}
