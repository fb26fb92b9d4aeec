// Package pgstore provides a PostgreSQL implementation of
// billingkit.SubscriptionStore on top of pgx, with its schema shipped as
// embedded goose migrations.
//
// # Usage
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pgstore.Migrate(ctx, pool, slog.Default()); err != nil {
//		return err
//	}
//
//	svc := billingkit.NewService(flow, pgstore.New(pool))
//
// One row per account, upserted on save. The transient pass inputs
// (CardToken, CouponCode, PrevPlanID) have no columns, so the store cannot
// violate the never-persisted rule. Provider subscription and customer IDs
// carry partial indexes for the webhook lookup paths.
package pgstore
