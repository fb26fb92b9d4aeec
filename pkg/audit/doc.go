// Package audit keeps a queryable trail of billing actions.
//
// Logger records events into a Storage backend; Reader queries them back.
// OpenSearchStorage is the production backend, MemoryStorage serves
// development and tests, and AsyncWriter decorates any batch-capable
// backend with buffered bulk writes. Recorder adapts the trail to
// billingkit.Hooks so every finalized lifecycle step and webhook callback
// lands in the index.
//
// # Usage
//
//	client, err := opensearch.New(ctx, osCfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	storage := audit.NewOpenSearchStorage(client)
//	if err := storage.EnsureIndex(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	writer, closeWriter := audit.NewAsyncWriter(storage, audit.AsyncOptions{})
//	defer closeWriter(context.Background())
//
//	trail := audit.NewLogger(writer)
//	flow, err := billingkit.NewOrchestrator(ctx, plans, provider,
//		billingkit.WithHooks(audit.NewRecorder(trail)),
//	)
//
// Reading the trail back:
//
//	reader := audit.NewReader(storage)
//	events, err := reader.Find(ctx, audit.Criteria{
//		AccountID: accountID.String(),
//		Action:    audit.ActionPaymentFailed,
//		Limit:     50,
//	})
//
// # Failure policy
//
// Recorder swallows audit write failures by default, logging them, so a
// broken trail backend cannot abort billing passes. WithStrictRecording
// inverts that for deployments where an unaudited action is worse than an
// aborted pass.
package audit
