// Command authserver runs the authentication HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/authkit/modules/authentication"
	"github.com/dmitrymomot/authkit/pkg/auth"
	"github.com/dmitrymomot/authkit/pkg/clientip"
	"github.com/dmitrymomot/authkit/pkg/config"
	"github.com/dmitrymomot/authkit/pkg/email"
	"github.com/dmitrymomot/authkit/pkg/httpserver"
	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/metrics"
	"github.com/dmitrymomot/authkit/pkg/ratelimiter"
	"github.com/dmitrymomot/authkit/pkg/redis"
	"github.com/dmitrymomot/authkit/pkg/requestid"
)

type appConfig struct {
	Env            string        `env:"APP_ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL"`
	StoreDriver    string        `env:"AUTH_STORE" envDefault:"memory"`
	SettingsFile   string        `env:"AUTH_SETTINGS_FILE"`
	AdminMasterKey string        `env:"ADMIN_MASTER_KEY"`
	PurgeInterval  time.Duration `env:"AUTH_PURGE_INTERVAL" envDefault:"1h"`
	HealthTimeout  time.Duration `env:"HEALTHCHECK_TIMEOUT" envDefault:"3s"`
}

func main() {
	var app appConfig
	config.MustLoad(&app)

	log := logger.New(
		logger.WithEnvironment(app.Env, "authserver"),
		logger.WithLevelName(app.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor(), auth.ClientIDLogExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(context.Background(), app, log); err != nil {
		log.Error("authserver stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, app appConfig, log *slog.Logger) error {
	var (
		authCfg   auth.Config
		serverCfg httpserver.Config
		emailCfg  email.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&authCfg) },
		func() error { return config.Load(&serverCfg) },
		func() error { return config.Load(&emailCfg) },
	} {
		if err := load(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	var closers []func(context.Context) error

	store, storeClose, err := openStore(ctx, app.StoreDriver, log)
	if err != nil {
		return err
	}
	if storeClose != nil {
		closers = append(closers, storeClose)
	}

	settings, err := loadSettings(authCfg, app.SettingsFile)
	if err != nil {
		return err
	}

	mailer, err := newMailer(emailCfg, app.Env, log)
	if err != nil {
		return err
	}

	registryOpts := []auth.RegistryOption{auth.WithRegistryLogger(log)}
	if mailer != nil {
		registryOpts = append(registryOpts, auth.WithMailer(mailer))
	}
	registry, err := auth.NewRegistry(settings, registryOpts...)
	if err != nil {
		return fmt.Errorf("failed to build authentication settings: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(promRegistry)

	svc := auth.NewService(store, registry,
		auth.WithLogger(log),
		auth.WithHasher(auth.NewBcryptHasher(authCfg.BcryptCost)),
		auth.WithMetrics(recorder),
	)

	checks := []httpserver.Check{{Name: "store", Func: svc.Ping}}

	limiter, limiterClose, redisCheck, err := newRateLimiter(ctx, log)
	if err != nil {
		return err
	}
	closers = append(closers, limiterClose)
	if redisCheck != nil {
		checks = append(checks, *redisCheck)
	}

	module := authentication.New(svc, registry,
		authentication.WithLogger(log),
		authentication.WithRateLimiter(limiter),
		authentication.WithMasterKey(app.AdminMasterKey),
	)
	if app.AdminMasterKey == "" {
		log.Warn("ADMIN_MASTER_KEY is not set, admin endpoints are disabled")
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)
	r.Use(authentication.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(recorder.Middleware)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(promRegistry))
	r.Get("/health", httpserver.HealthCheckHandler(log, app.HealthTimeout, checks...))
	r.Mount("/", module.Handle())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if purger, ok := store.(auth.Purger); ok && app.PurgeInterval > 0 {
		go purgeLoop(runCtx, purger, registry, app.PurgeInterval, log)
	}

	server := httpserver.NewFromConfig(serverCfg,
		httpserver.WithLogger(log),
		httpserver.WithOnShutdown(func(ctx context.Context) error {
			cancel()
			var errs []error
			for _, c := range closers {
				errs = append(errs, c(ctx))
			}
			return errors.Join(errs...)
		}),
	)

	log.Info("starting authserver",
		slog.String("addr", serverCfg.Addr),
		slog.String("store", app.StoreDriver),
		slog.Any("methods", registry.Snapshot().EnabledMethods()),
	)
	return server.Run(runCtx, r)
}

// loadSettings builds the settings document from env and overlays the
// YAML settings file when one is configured.
func loadSettings(cfg auth.Config, path string) (auth.Settings, error) {
	settings := cfg.Settings()
	if path == "" {
		return settings, nil
	}
	if err := config.LoadFile(path, &settings); err != nil {
		return auth.Settings{}, fmt.Errorf("failed to load settings file %s: %w", path, err)
	}
	return settings, nil
}

// newMailer returns the Postmark mailer when it is configured. Outside
// development there is no fallback: a nil mailer makes the registry reject
// settings that enable local sign-in.
func newMailer(cfg email.Config, env string, log *slog.Logger) (auth.Mailer, error) {
	if cfg.UsePostmark() {
		sender, err := email.NewPostmarkClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create postmark client: %w", err)
		}
		return email.NewAuthMailer(sender, cfg.ProductName), nil
	}
	if !isDevelopment(env) {
		log.Warn("postmark is not configured, no email sender is available", slog.String("env", env))
		return nil, nil
	}
	log.Warn("postmark is not configured, emails are written to disk", slog.String("dir", cfg.DevOutputDir))
	return email.NewAuthMailer(email.NewDevSender(cfg.DevOutputDir), cfg.ProductName), nil
}

// isDevelopment mirrors logger.WithEnvironment: anything that is not
// production or staging is development.
func isDevelopment(env string) bool {
	switch env {
	case logger.EnvProduction, "prod", logger.EnvStaging, "stage":
		return false
	}
	return true
}

// newRateLimiter backs the limiter with Redis when REDIS_URL is set and
// with process memory otherwise.
func newRateLimiter(ctx context.Context, log *slog.Logger) (*ratelimiter.Limiter, func(context.Context) error, *httpserver.Check, error) {
	if os.Getenv("REDIS_URL") == "" {
		store := ratelimiter.NewMemoryStore()
		return ratelimiter.New(store), func(context.Context) error {
			store.Close()
			return nil
		}, nil, nil
	}

	var cfg redis.Config
	if err := config.Load(&cfg); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load redis config: %w", err)
	}
	client, err := redis.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("rate limiter uses redis")

	check := &httpserver.Check{Name: "redis", Func: redis.Healthcheck(client)}
	return ratelimiter.New(ratelimiter.NewRedisStore(client, cfg.KeyPrefix+"ratelimit:")),
		func(context.Context) error { return client.Close() },
		check, nil
}

// purgeLoop drops expired sessions and workflow tokens until ctx is done.
// Lifetimes are read from the live settings on every tick.
func purgeLoop(ctx context.Context, p auth.Purger, registry *auth.Registry, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			settings := registry.Snapshot().Settings()
			n, err := p.PurgeExpired(ctx, settings.VerificationTokenTTL.Std(), settings.PasswordResetTokenTTL.Std())
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.ErrorContext(ctx, "failed to purge expired records", logger.Error(err), logger.Component("janitor"))
				}
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "purged expired records", slog.Int64("count", n), logger.Component("janitor"))
			}
		}
	}
}
