package auth

import (
	"errors"

	"github.com/dmitrymomot/authkit/pkg/validator"
)

// Credential and account errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrEmailNotVerified   = errors.New("email address is not verified")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrAccountExists      = errors.New("account already exists")
	ErrPasswordReuse      = errors.New("cannot reuse previous password")
	ErrInvalidClientID    = errors.New("client id is required")
)

// Storage errors.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrTokenNotFound   = errors.New("token not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Workflow token errors.
var (
	ErrTokenExpired = errors.New("token expired")
)

// Provider and OAuth2 errors.
var (
	ErrUnknownProvider      = errors.New("unknown authentication provider")
	ErrProviderUnavailable  = errors.New("identity provider unavailable")
	ErrInvalidProviderToken = errors.New("identity provider rejected credentials")
	ErrProfileIncomplete    = errors.New("identity provider profile is missing id or email")
	ErrInvalidState         = errors.New("invalid or expired oauth state")
	ErrIDTokenUnsupported   = errors.New("identity provider does not accept id tokens")
)

// Registry errors.
var (
	ErrMethodDisabled    = errors.New("authentication method is disabled")
	ErrMissingDependency = errors.New("authentication method dependency is not configured")
	ErrInvalidSettings   = errors.New("invalid authentication settings")
)

// Kind classifies errors for the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindUserInput
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindBadGateway
)

func (k Kind) String() string {
	switch k {
	case KindUserInput:
		return "user_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBadGateway:
		return "bad_gateway"
	default:
		return "internal"
	}
}

// Checked in order; the first match wins.
var errorKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidSettings, KindUserInput},
	{ErrInvalidClientID, KindUserInput},
	{ErrIDTokenUnsupported, KindUserInput},
	{ErrInvalidCredentials, KindUnauthorized},
	{ErrUnauthorized, KindUnauthorized},
	{ErrAccountExists, KindUnauthorized},
	{ErrTokenExpired, KindUnauthorized},
	{ErrSessionNotFound, KindUnauthorized},
	{ErrInvalidProviderToken, KindUnauthorized},
	{ErrProfileIncomplete, KindUnauthorized},
	{ErrInvalidState, KindUnauthorized},
	{ErrUserInactive, KindForbidden},
	{ErrEmailNotVerified, KindForbidden},
	{ErrEmailAlreadyExists, KindForbidden},
	{ErrPasswordReuse, KindForbidden},
	{ErrMethodDisabled, KindForbidden},
	{ErrUserNotFound, KindNotFound},
	{ErrTokenNotFound, KindNotFound},
	{ErrUnknownProvider, KindNotFound},
	{ErrProviderUnavailable, KindBadGateway},
}

// KindOf maps err to its Kind. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if validator.IsValidationError(err) {
		return KindUserInput
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindInternal
}
