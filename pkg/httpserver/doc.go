// Package httpserver runs an http.Handler with graceful shutdown.
//
// Run listens on the configured address and blocks until the context is
// cancelled, SIGINT/SIGTERM arrives, or the listener fails. Shutdown drains
// in-flight requests within the shutdown timeout and then runs the hooks
// registered with WithOnShutdown, which is where store connections are
// closed.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//		httpserver.WithLogger(log),
//		httpserver.WithOnShutdown(func(context.Context) error { pool.Close(); return nil }),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// HealthCheckHandler builds a readiness endpoint from named checks.
package httpserver
