package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Claims is any claims type golang-jwt can validate.
// Embed RegisteredClaims in custom structs.
type Claims = gojwt.Claims

// RegisteredClaims mirrors the RFC 7519 registered fields.
type RegisteredClaims = gojwt.RegisteredClaims

// NumericDate wraps a time for exp/iat/nbf claims.
func NumericDate(t time.Time) *gojwt.NumericDate {
	return gojwt.NewNumericDate(t)
}

// Service signs and verifies HS256 tokens with a single in-memory key.
type Service struct {
	signingKey []byte
	leeway     time.Duration
	issuer     string
}

// Option configures a Service.
type Option func(*Service)

// WithLeeway tolerates clock skew on exp/nbf checks.
func WithLeeway(d time.Duration) Option {
	return func(s *Service) { s.leeway = d }
}

// WithIssuer requires the iss claim to equal issuer on Parse.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// New creates a service with the provided signing key.
// Keys shorter than 32 bytes are accepted but weak for HMAC-SHA256.
func New(signingKey []byte, opts ...Option) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	s := &Service{signingKey: signingKey}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func NewFromString(signingKey string, opts ...Option) (*Service, error) {
	return New([]byte(signingKey), opts...)
}

// Generate signs claims with HS256.
func (s *Service) Generate(claims Claims) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and temporal claims of tokenString and
// decodes it into claims, which must be a pointer.
// Expired tokens return ErrExpiredToken, everything else ErrInvalidToken.
func (s *Service) Parse(tokenString string, claims Claims) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	if claims == nil {
		return ErrMissingClaims
	}

	parserOpts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuedAt(),
	}
	if s.leeway > 0 {
		parserOpts = append(parserOpts, gojwt.WithLeeway(s.leeway))
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, gojwt.WithIssuer(s.issuer))
	}

	token, err := gojwt.ParseWithClaims(tokenString, claims, func(*gojwt.Token) (any, error) {
		return s.signingKey, nil
	}, parserOpts...)
	switch {
	case errors.Is(err, gojwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, gojwt.ErrTokenSignatureInvalid):
		return errors.Join(ErrInvalidToken, ErrInvalidSignature)
	case err != nil:
		return errors.Join(ErrInvalidToken, err)
	case !token.Valid:
		return ErrInvalidToken
	}
	return nil
}
