package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/token"
)

// DefaultStateTTL bounds the browser round trip of a redirect flow.
const DefaultStateTTL = 10 * time.Minute

// oauthState travels through the provider as the OAuth2 state parameter.
// It is signed, so no server-side storage is needed.
type oauthState struct {
	Provider string    `json:"p"`
	ClientID string    `json:"c"`
	Nonce    string    `json:"n"`
	Exp      time.Time `json:"e"`
}

func (s oauthState) ExpiresAt() time.Time { return s.Exp }

// stateSecret derives the state key from the JWT secret so that rotating the
// secret also invalidates in-flight redirects.
func stateSecret(s *Snapshot) string {
	return "oauth-state:" + s.settings.JWTSecret
}

func newOAuthState(snap *Snapshot, provider, clientID string, now time.Time) (string, error) {
	return token.GenerateToken(oauthState{
		Provider: provider,
		ClientID: clientID,
		Nonce:    uuid.NewString(),
		Exp:      now.Add(DefaultStateTTL),
	}, stateSecret(snap))
}

// parseOAuthState verifies value and that it was minted for provider.
func parseOAuthState(snap *Snapshot, value, provider string) (oauthState, error) {
	st, err := token.ParseToken[oauthState](value, stateSecret(snap))
	if err != nil {
		return oauthState{}, errors.Join(ErrInvalidState, err)
	}
	if st.Provider != provider || st.ClientID == "" {
		return oauthState{}, ErrInvalidState
	}
	return st, nil
}
