// Package auth is an identity-and-session engine. It authenticates users with
// a local email/password method or federated OAuth2 providers and issues
// short-lived access tokens plus longer-lived refresh tokens bound to a
// calling client application.
//
// # Components
//
//   - Storage contracts (UserStorage, TokenStorage, SessionStorage) with an
//     in-memory implementation; Postgres and MongoDB live in subpackages.
//   - Registry compiles Settings into an immutable Snapshot published through
//     an atomic pointer. Handlers read one snapshot per request.
//   - Provider records and NewAdapter form the OAuth2 adapter framework.
//     Adding a provider is a Provider value with a Normalize function.
//   - IdentityResolver finds or creates users and applies account linking.
//   - SessionManager issues, renews, revokes and validates token pairs. At
//     most one pair lives per (user, client).
//   - Workflow handles verification and password reset tokens.
//   - Middleware gates protected routes on SessionManager.Validate.
//
// # Usage
//
//	store := auth.NewMemoryStorage()
//	registry, err := auth.NewRegistry(settings, auth.WithMailer(mailer))
//	if err != nil {
//		log.Fatal(err) // e.g. local sign-in enabled without a mailer
//	}
//	svc := auth.NewService(store, registry, auth.WithLogger(log))
//
//	sess, err := svc.Login(ctx, "alice@example.com", "secret123", "web")
//
//	r.With(auth.ClientID, auth.Middleware(svc)).Get("/me", handler)
//
// Errors are plain sentinels; KindOf classifies them for the transport layer.
package auth
