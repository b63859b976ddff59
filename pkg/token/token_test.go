package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/token"
)

type testPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type expiringPayload struct {
	Value string    `json:"v"`
	Exp   time.Time `json:"e"`
}

func (p expiringPayload) ExpiresAt() time.Time { return p.Exp }

func TestGenerateAndParseToken(t *testing.T) {
	t.Parallel()

	tok, err := token.GenerateToken(testPayload{ID: 7, Name: "seven"}, "secret")
	require.NoError(t, err)
	assert.Len(t, strings.Split(tok, "."), 2)

	got, err := token.ParseToken[testPayload](tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, testPayload{ID: 7, Name: "seven"}, got)
}

func TestParseToken_Errors(t *testing.T) {
	t.Parallel()

	tok, err := token.GenerateToken(testPayload{ID: 1}, "secret")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := token.ParseToken[testPayload](tok, "other")
		assert.ErrorIs(t, err, token.ErrSignatureInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		forged, err := token.GenerateToken(testPayload{ID: 2}, "other")
		require.NoError(t, err)
		payload, _, _ := strings.Cut(forged, ".")
		_, sig, _ := strings.Cut(tok, ".")
		_, err = token.ParseToken[testPayload](payload+"."+sig, "secret")
		assert.ErrorIs(t, err, token.ErrSignatureInvalid)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, in := range []string{"", "abc", "a.b.c", ".sig", "payload.", "!!!.???"} {
			_, err := token.ParseToken[testPayload](in, "secret")
			assert.ErrorIs(t, err, token.ErrInvalidToken, in)
		}
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := token.GenerateToken(testPayload{}, "")
		assert.ErrorIs(t, err, token.ErrMissingSecret)
		_, err = token.ParseToken[testPayload](tok, "")
		assert.ErrorIs(t, err, token.ErrMissingSecret)
	})
}

func TestParseToken_Expiry(t *testing.T) {
	t.Parallel()

	live, err := token.GenerateToken(expiringPayload{Value: "x", Exp: time.Now().Add(time.Minute)}, "secret")
	require.NoError(t, err)
	got, err := token.ParseToken[expiringPayload](live, "secret")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Value)

	stale, err := token.GenerateToken(expiringPayload{Value: "x", Exp: time.Now().Add(-time.Second)}, "secret")
	require.NoError(t, err)
	_, err = token.ParseToken[expiringPayload](stale, "secret")
	assert.ErrorIs(t, err, token.ErrTokenExpired)
}
