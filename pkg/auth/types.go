package auth

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// MethodLocal is the sign-in method name for identifier/password logins.
// Federated methods are named after their provider.
const MethodLocal = "local"

// User is the single identity record shared by every sign-in method.
type User struct {
	ID           uuid.UUID                   `json:"id"`
	Email        string                      `json:"email"`
	PasswordHash []byte                      `json:"-"`
	Active       bool                        `json:"active"`
	IsVerified   bool                        `json:"isVerified"`
	Providers    map[string]ProviderIdentity `json:"providers,omitempty"`
	CreatedAt    time.Time                   `json:"createdAt"`
	UpdatedAt    time.Time                   `json:"updatedAt"`
}

func (u *User) HasPassword() bool {
	return len(u.PasswordHash) > 0
}

// Provider returns the identity linked under provider, if any.
func (u *User) Provider(provider string) (ProviderIdentity, bool) {
	id, ok := u.Providers[provider]
	return id, ok
}

// Clone returns a deep copy safe to hand across goroutines.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.PasswordHash != nil {
		c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	}
	if u.Providers != nil {
		c.Providers = maps.Clone(u.Providers)
	}
	return &c
}

// ProviderIdentity links a User to an account at a federated provider.
type ProviderIdentity struct {
	ProviderID   string    `json:"providerId"`
	Token        string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"tokenExpiry,omitzero"`
}

// TokenType distinguishes single-use workflow tokens.
type TokenType string

const (
	TokenVerification  TokenType = "verification"
	TokenPasswordReset TokenType = "password_reset"
)

// Token is a single-use workflow token. At most one lives per (Type, UserID).
type Token struct {
	Type      TokenType
	UserID    uuid.UUID
	Value     string
	CreatedAt time.Time
}

// Expired reports whether the token is older than ttl at now.
func (t Token) Expired(ttl time.Duration, now time.Time) bool {
	return !now.Before(t.CreatedAt.Add(ttl))
}

// AccessToken is the stored record behind a signed bearer token.
type AccessToken struct {
	UserID    uuid.UUID
	ClientID  string
	Token     string
	ExpiresAt time.Time
}

func (t AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RefreshToken is an opaque token that mints a new session without credentials.
type RefreshToken struct {
	UserID    uuid.UUID
	ClientID  string
	Token     string
	ExpiresAt time.Time
}

func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Session is the token pair returned to a client after login or renewal.
type Session struct {
	UserID                uuid.UUID `json:"userId"`
	ClientID              string    `json:"-"`
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// NormalizedProfile is a provider payload reduced to what identity resolution needs.
type NormalizedProfile struct {
	ID    string
	Email string
	Raw   map[string]any
}
