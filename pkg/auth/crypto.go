package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authkit/pkg/jwt"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	// Compare returns ErrInvalidCredentials on mismatch.
	Compare(hash []byte, password string) error
}

// TokenGenerator produces opaque random tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// TokenSigner signs and verifies access token claims.
type TokenSigner interface {
	Sign(claims AccessClaims) (string, error)
	Verify(token string) (*AccessClaims, error)
}

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt PasswordHasher. A cost outside bcrypt's
// range falls back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (h *bcryptHasher) Hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (h *bcryptHasher) Compare(hash []byte, password string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("failed to compare password hash: %w", err)
	}
}

type randomTokenGenerator struct {
	size int
}

// NewRandomTokenGenerator returns a generator of size random bytes encoded
// as unpadded base64url. Sizes below 16 are raised to 16.
func NewRandomTokenGenerator(size int) TokenGenerator {
	return &randomTokenGenerator{size: max(size, 16)}
}

func (g *randomTokenGenerator) Generate() (string, error) {
	b := make([]byte, g.size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID   string `json:"id"`
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

type jwtSigner struct {
	svc *jwt.Service
}

func newJWTSigner(secret string) (*jwtSigner, error) {
	svc, err := jwt.NewFromString(secret, jwt.WithLeeway(5*time.Second))
	if err != nil {
		return nil, err
	}
	return &jwtSigner{svc: svc}, nil
}

func (s *jwtSigner) Sign(claims AccessClaims) (string, error) {
	return s.svc.Generate(claims)
}

func (s *jwtSigner) Verify(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := s.svc.Parse(token, &claims); err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return &claims, nil
}
