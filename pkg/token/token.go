package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const signatureSize = 16

// Expirer is implemented by payloads that carry their own deadline.
// ParseToken rejects such payloads once the deadline has passed.
type Expirer interface {
	ExpiresAt() time.Time
}

// GenerateToken JSON-encodes payload and appends a truncated HMAC-SHA256 signature.
func GenerateToken[T any](payload T, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(sign(data, secret)), nil
}

// ParseToken verifies the signature and decodes the payload.
// Payloads implementing Expirer are checked against the current time.
func ParseToken[T any](token string, secret string) (T, error) {
	var payload T
	if secret == "" {
		return payload, ErrMissingSecret
	}

	payloadEnc, sigEnc, ok := strings.Cut(token, ".")
	if !ok || payloadEnc == "" || sigEnc == "" || strings.Contains(sigEnc, ".") {
		return payload, ErrInvalidToken
	}

	data, err := base64.RawURLEncoding.DecodeString(payloadEnc)
	if err != nil {
		return payload, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigEnc)
	if err != nil {
		return payload, ErrInvalidToken
	}

	if subtle.ConstantTimeCompare(sig, sign(data, secret)) != 1 {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, ErrInvalidToken
	}

	if exp, ok := any(payload).(Expirer); ok && !exp.ExpiresAt().IsZero() && time.Now().After(exp.ExpiresAt()) {
		return payload, ErrTokenExpired
	}

	return payload, nil
}

func sign(data []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)[:signatureSize]
}
