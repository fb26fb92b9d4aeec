// Package pg provides PostgreSQL connectivity for stores built on pgx:
// pooled connections with startup retries, goose migrations from disk or an
// embedded filesystem, a health probe, and error classification helpers.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//		return err
//	}
//
// Store packages that embed their migrations apply them with MigrateFS; see
// pkg/pgstore for the subscription store built on this package.
//
// # Error Handling
//
// IsNotFoundError, IsDuplicateKeyError, and IsForeignKeyViolationError
// classify driver errors so callers can map them onto domain sentinels
// without importing pgx themselves.
package pg
