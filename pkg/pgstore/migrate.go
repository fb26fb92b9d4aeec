package pgstore

import (
	"context"
	"embed"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the store's embedded schema migrations. Versions are
// tracked in billing_schema_migrations, separate from any migration table
// the host application runs.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return pg.MigrateFS(ctx, pool, migrationsFS, "migrations", "billing_schema_migrations", log)
}
