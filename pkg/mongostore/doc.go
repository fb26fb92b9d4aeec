// Package mongostore persists billingkit subscriptions in MongoDB.
//
// One document per account, keyed by the account ID, upserted on save.
// The document schema carries no fields for CardToken, CouponCode, or
// PrevPlanID, so transient pass inputs never reach storage.
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "billing")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	store := mongostore.New(db)
//	if err := store.EnsureIndexes(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	svc := billingkit.NewService(flow, store)
//
// EnsureIndexes creates partial indexes on the provider subscription and
// customer IDs, the lookups webhook handling performs.
package mongostore
