package auth

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Duration is a time.Duration that reads and writes as "15m", "720h" in
// YAML and JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

type LocalSettings struct {
	Enabled              bool `yaml:"enabled" json:"enabled"`
	VerificationRequired bool `yaml:"verificationRequired" json:"verificationRequired"`
	MinPasswordLength    int  `yaml:"minPasswordLength" json:"minPasswordLength"`
}

// ProviderSettings configures one federated provider.
type ProviderSettings struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	ClientID       string   `yaml:"clientId" json:"clientId"`
	ClientSecret   string   `yaml:"clientSecret" json:"clientSecret"`
	RedirectURL    string   `yaml:"redirectUrl" json:"redirectUrl"`
	Scopes         []string `yaml:"scopes" json:"scopes,omitempty"`
	AccountLinking bool     `yaml:"accountLinking" json:"accountLinking"`
}

// RateLimitSettings bounds requests per client IP on the authentication routes.
// MaxRequests of zero disables limiting.
type RateLimitSettings struct {
	MaxRequests int      `yaml:"maxRequests" json:"maxRequests"`
	Window      Duration `yaml:"window" json:"window"`
}

func (r RateLimitSettings) Enabled() bool {
	return r.MaxRequests > 0 && r.Window > 0
}

// Settings is the authentication configuration document managed through the
// admin contract. It is compiled into an immutable Snapshot by the Registry.
type Settings struct {
	Local                          LocalSettings               `yaml:"local" json:"local"`
	Providers                      map[string]ProviderSettings `yaml:"providers" json:"providers"`
	JWTSecret                      string                      `yaml:"jwtSecret" json:"jwtSecret"`
	TokenInvalidationPeriod        Duration                    `yaml:"tokenInvalidationPeriod" json:"tokenInvalidationPeriod"`
	RefreshTokenInvalidationPeriod Duration                    `yaml:"refreshTokenInvalidationPeriod" json:"refreshTokenInvalidationPeriod"`
	VerificationTokenTTL           Duration                    `yaml:"verificationTokenTTL" json:"verificationTokenTTL"`
	PasswordResetTokenTTL          Duration                    `yaml:"passwordResetTokenTTL" json:"passwordResetTokenTTL"`
	BaseURL                        string                      `yaml:"baseUrl" json:"baseUrl"`
	ResetPasswordURL               string                      `yaml:"resetPasswordUrl" json:"resetPasswordUrl"`
	RateLimit                      RateLimitSettings           `yaml:"rateLimit" json:"rateLimit"`
}

// Default lifetimes applied when a settings document leaves them at zero.
const (
	DefaultTokenInvalidationPeriod        = 15 * time.Minute
	DefaultRefreshTokenInvalidationPeriod = 30 * 24 * time.Hour
	DefaultVerificationTokenTTL           = 24 * time.Hour
	DefaultPasswordResetTokenTTL          = time.Hour
	DefaultMinPasswordLength              = 8
)

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	if s.Providers != nil {
		c.Providers = make(map[string]ProviderSettings, len(s.Providers))
		for name, p := range s.Providers {
			p.Scopes = slices.Clone(p.Scopes)
			c.Providers[name] = p
		}
	}
	return c
}

// Redacted returns a copy safe to expose: the JWT secret and provider
// client secrets are masked.
func (s Settings) Redacted() Settings {
	c := s.Clone()
	c.JWTSecret = redact(c.JWTSecret)
	for name, p := range c.Providers {
		p.ClientSecret = redact(p.ClientSecret)
		c.Providers[name] = p
	}
	return c
}

// ProviderNames lists configured providers in sorted order.
func (s Settings) ProviderNames() []string {
	return slices.Sorted(maps.Keys(s.Providers))
}

func (s Settings) withDefaults() Settings {
	c := s.Clone()
	if c.TokenInvalidationPeriod == 0 {
		c.TokenInvalidationPeriod = Duration(DefaultTokenInvalidationPeriod)
	}
	if c.RefreshTokenInvalidationPeriod == 0 {
		c.RefreshTokenInvalidationPeriod = Duration(DefaultRefreshTokenInvalidationPeriod)
	}
	if c.VerificationTokenTTL == 0 {
		c.VerificationTokenTTL = Duration(DefaultVerificationTokenTTL)
	}
	if c.PasswordResetTokenTTL == 0 {
		c.PasswordResetTokenTTL = Duration(DefaultPasswordResetTokenTTL)
	}
	if c.Local.MinPasswordLength == 0 {
		c.Local.MinPasswordLength = DefaultMinPasswordLength
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Providers == nil {
		c.Providers = map[string]ProviderSettings{}
	}
	return c
}

const redactedValue = "********"

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}

// mergeSecrets lets an admin PUT send back a redacted document without
// wiping secrets: masked values keep the current ones.
func (s Settings) mergeSecrets(current Settings) Settings {
	c := s.Clone()
	if c.JWTSecret == redactedValue {
		c.JWTSecret = current.JWTSecret
	}
	for name, p := range c.Providers {
		if p.ClientSecret == redactedValue {
			p.ClientSecret = current.Providers[name].ClientSecret
			c.Providers[name] = p
		}
	}
	return c
}

// Config is the environment-level bootstrap for Settings. A settings file,
// when present, is applied on top of it.
type Config struct {
	JWTSecret                      string        `env:"AUTH_JWT_SECRET"`
	TokenInvalidationPeriod        time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenInvalidationPeriod time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"720h"`
	VerificationTokenTTL           time.Duration `env:"AUTH_VERIFICATION_TOKEN_TTL" envDefault:"24h"`
	PasswordResetTokenTTL          time.Duration `env:"AUTH_PASSWORD_RESET_TOKEN_TTL" envDefault:"1h"`
	LocalEnabled                   bool          `env:"AUTH_LOCAL_ENABLED" envDefault:"true"`
	VerificationRequired           bool          `env:"AUTH_VERIFICATION_REQUIRED" envDefault:"true"`
	MinPasswordLength              int           `env:"AUTH_MIN_PASSWORD_LENGTH" envDefault:"8"`
	BaseURL                        string        `env:"AUTH_BASE_URL" envDefault:"http://localhost:8080"`
	ResetPasswordURL               string        `env:"AUTH_RESET_PASSWORD_URL" envDefault:"http://localhost:3000/reset-password"`
	RateLimitMaxRequests           int           `env:"AUTH_RATE_LIMIT_MAX_REQUESTS" envDefault:"0"`
	RateLimitWindow                time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" envDefault:"1m"`
	BcryptCost                     int           `env:"AUTH_BCRYPT_COST" envDefault:"10"`
}

// Settings builds the initial settings document from env values.
func (c Config) Settings() Settings {
	return Settings{
		Local: LocalSettings{
			Enabled:              c.LocalEnabled,
			VerificationRequired: c.VerificationRequired,
			MinPasswordLength:    c.MinPasswordLength,
		},
		Providers:                      map[string]ProviderSettings{},
		JWTSecret:                      c.JWTSecret,
		TokenInvalidationPeriod:        Duration(c.TokenInvalidationPeriod),
		RefreshTokenInvalidationPeriod: Duration(c.RefreshTokenInvalidationPeriod),
		VerificationTokenTTL:           Duration(c.VerificationTokenTTL),
		PasswordResetTokenTTL:          Duration(c.PasswordResetTokenTTL),
		BaseURL:                        c.BaseURL,
		ResetPasswordURL:               c.ResetPasswordURL,
		RateLimit: RateLimitSettings{
			MaxRequests: c.RateLimitMaxRequests,
			Window:      Duration(c.RateLimitWindow),
		},
	}
}
