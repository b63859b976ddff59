package auth

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/authkit/pkg/logger"
)

// SnapshotSource hands out the live configuration snapshot.
type SnapshotSource interface {
	Snapshot() *Snapshot
}

// Snapshot is an immutable, compiled view of Settings. Readers hold on to one
// snapshot for the whole request.
type Snapshot struct {
	version   uint64
	settings  Settings
	catalog   map[string]Provider
	providers map[string]ProviderAdapter
	signer    TokenSigner
}

func (s *Snapshot) Version() uint64 { return s.version }

// Settings returns a copy of the settings the snapshot was compiled from.
func (s *Snapshot) Settings() Settings { return s.settings.Clone() }

func (s *Snapshot) Signer() TokenSigner { return s.signer }

func (s *Snapshot) LocalSettings() LocalSettings { return s.settings.Local }

func (s *Snapshot) RateLimit() RateLimitSettings { return s.settings.RateLimit }

// MethodEnabled reports whether method ("local" or a provider name) is enabled.
func (s *Snapshot) MethodEnabled(method string) bool {
	if method == MethodLocal {
		return s.settings.Local.Enabled
	}
	_, ok := s.providers[method]
	return ok
}

// Provider returns the adapter for an enabled provider.
// Unregistered names yield ErrUnknownProvider, disabled ones ErrMethodDisabled.
func (s *Snapshot) Provider(name string) (ProviderAdapter, error) {
	if a, ok := s.providers[name]; ok {
		return a, nil
	}
	if _, ok := s.catalog[name]; !ok {
		return nil, ErrUnknownProvider
	}
	return nil, ErrMethodDisabled
}

// EnabledMethods lists enabled methods, local first, providers sorted.
func (s *Snapshot) EnabledMethods() []string {
	var methods []string
	if s.settings.Local.Enabled {
		methods = append(methods, MethodLocal)
	}
	return append(methods, slices.Sorted(maps.Keys(s.providers))...)
}

// Registry owns the provider catalog and publishes settings snapshots.
// Reads are lock-free; writers are serialized.
type Registry struct {
	mu         sync.Mutex
	current    atomic.Pointer[Snapshot]
	catalog    map[string]Provider
	mailer     Mailer
	httpClient *http.Client
	logger     *slog.Logger
	version    uint64
}

type RegistryOption func(*Registry)

// WithMailer supplies the email collaborator local sign-in depends on.
func WithMailer(m Mailer) RegistryOption {
	return func(r *Registry) { r.mailer = m }
}

// WithProviderHTTPClient sets the client used for provider calls.
func WithProviderHTTPClient(c *http.Client) RegistryOption {
	return func(r *Registry) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithProviders adds providers to the built-in catalog, replacing built-ins
// with the same name.
func WithProviders(providers ...Provider) RegistryOption {
	return func(r *Registry) {
		for _, p := range providers {
			r.catalog[p.Name] = p
		}
	}
}

func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry validates settings and publishes the first snapshot.
// It fails when an enabled method cannot run, for example local sign-in
// without a mailer.
func NewRegistry(settings Settings, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		catalog:    BuiltinProviders(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.publish(settings, r.catalog); err != nil {
		return nil, err
	}
	return r, nil
}

// Snapshot returns the live snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Mailer returns the configured mailer, or nil.
func (r *Registry) Mailer() Mailer {
	return r.mailer
}

// Update validates and publishes new settings. On error the previous
// snapshot stays live. Masked secrets keep their current values.
func (r *Registry) Update(settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	settings = settings.mergeSecrets(r.current.Load().settings)
	return r.publish(settings, r.catalog)
}

// Enable turns a method on. Enabling an enabled method is a no-op.
func (r *Registry) Enable(method string) error {
	return r.toggle(method, true)
}

// Disable turns a method off. Sessions already issued through it stay valid.
func (r *Registry) Disable(method string) error {
	return r.toggle(method, false)
}

func (r *Registry) toggle(method string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	settings := r.current.Load().Settings()
	if method == MethodLocal {
		if settings.Local.Enabled == enabled {
			return nil
		}
		settings.Local.Enabled = enabled
	} else {
		if _, ok := r.catalog[method]; !ok {
			return ErrUnknownProvider
		}
		ps := settings.Providers[method]
		if ps.Enabled == enabled {
			return nil
		}
		ps.Enabled = enabled
		if settings.Providers == nil {
			settings.Providers = map[string]ProviderSettings{}
		}
		settings.Providers[method] = ps
	}

	if err := r.publish(settings, r.catalog); err != nil {
		return err
	}
	r.logger.Info("authentication method toggled",
		logger.Method(method),
		slog.Bool("enabled", enabled),
		logger.Component("registry"),
	)
	return nil
}

// RegisterProvider adds or replaces a provider in the catalog and republishes
// the current settings against it.
func (r *Registry) RegisterProvider(p Provider) error {
	if err := p.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	catalog := maps.Clone(r.catalog)
	catalog[p.Name] = p
	if err := r.publish(r.current.Load().settings, catalog); err != nil {
		return err
	}
	r.catalog = catalog
	return nil
}

// publish compiles settings and swaps the snapshot. Callers other than
// NewRegistry must hold r.mu.
func (r *Registry) publish(settings Settings, catalog map[string]Provider) error {
	snap, err := r.compile(settings, catalog)
	if err != nil {
		return err
	}
	r.version++
	snap.version = r.version
	r.current.Store(snap)

	r.logger.Debug("authentication settings published",
		slog.Uint64("version", snap.version),
		slog.Any("methods", snap.EnabledMethods()),
		logger.Component("registry"),
	)
	return nil
}

func (r *Registry) compile(settings Settings, catalog map[string]Provider) (*Snapshot, error) {
	settings = settings.withDefaults()

	var errs []error
	if settings.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%w: jwtSecret is required", ErrInvalidSettings))
	}
	if settings.TokenInvalidationPeriod < 0 || settings.RefreshTokenInvalidationPeriod < 0 ||
		settings.VerificationTokenTTL < 0 || settings.PasswordResetTokenTTL < 0 {
		errs = append(errs, fmt.Errorf("%w: token lifetimes must be positive", ErrInvalidSettings))
	}
	if settings.RateLimit.MaxRequests < 0 || settings.RateLimit.Window < 0 {
		errs = append(errs, fmt.Errorf("%w: rateLimit values must not be negative", ErrInvalidSettings))
	}
	if settings.Local.MinPasswordLength < 0 || settings.Local.MinPasswordLength > MaxPasswordBytes {
		errs = append(errs, fmt.Errorf("%w: local.minPasswordLength must be between 0 and %d", ErrInvalidSettings, MaxPasswordBytes))
	}
	if settings.Local.Enabled && r.mailer == nil {
		errs = append(errs, fmt.Errorf("%w: %w: local sign-in requires an email sender", ErrInvalidSettings, ErrMissingDependency))
	}

	adapters := make(map[string]ProviderAdapter)
	for _, name := range settings.ProviderNames() {
		ps := settings.Providers[name]
		if !ps.Enabled {
			continue
		}
		p, ok := catalog[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %w: %q", ErrInvalidSettings, ErrUnknownProvider, name))
			continue
		}
		if ps.ClientID == "" || ps.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("%w: provider %q requires clientId and clientSecret", ErrInvalidSettings, name))
			continue
		}
		adapters[name] = NewAdapter(p, ps, r.httpClient)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	signer, err := newJWTSigner(settings.JWTSecret)
	if err != nil {
		return nil, errors.Join(ErrInvalidSettings, err)
	}

	return &Snapshot{
		settings:  settings,
		catalog:   maps.Clone(catalog),
		providers: adapters,
		signer:    signer,
	}, nil
}
