// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a pgxpool.Pool from a Config populated by caarlos0/env,
// retrying while the database comes up. Migrate runs goose migrations from an
// fs.FS against the same pool, so each storage package can embed its own
// schema:
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	sub, _ := fs.Sub(migrations, "migrations")
//	if err := pg.Migrate(ctx, pool, sub, cfg, log); err != nil {
//		return err
//	}
//
// IsDuplicateKeyError and IsNotFoundError classify driver errors so that
// callers can map them to their own sentinels.
package pg
