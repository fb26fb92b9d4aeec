package billingkit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type accountContextKey struct{}

// WithAccount stamps the account identifier into the context. The service
// does this at the start of every pass so hooks and log handlers can read
// it without threading the entity through.
func WithAccount(ctx context.Context, accountID uuid.UUID) context.Context {
	return context.WithValue(ctx, accountContextKey{}, accountID)
}

// AccountFromContext returns the account identifier stamped by WithAccount.
func AccountFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(accountContextKey{}).(uuid.UUID)
	return id, ok
}

// AccountLogAttr extracts the account identifier as a slog attribute. Its
// signature matches logger.ContextExtractor, so it can be passed directly
// to logger.WithContextExtractors.
func AccountLogAttr(ctx context.Context) (slog.Attr, bool) {
	id, ok := AccountFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.String("account_id", id.String()), true
}
