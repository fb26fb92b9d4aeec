// Package opensearch provides OpenSearch connection management for the
// audit trail backend in pkg/audit.
//
// Beyond the underlying opensearch-go client, the package has three touch
// points: Config (environment-driven settings), New (client construction
// with an initial health check), and Healthcheck (a probe for health
// endpoints).
//
// # Usage
//
//	cfg := config.MustLoad[opensearch.Config]()
//	client, err := opensearch.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	storage := audit.NewOpenSearchStorage(client)
//
// # Error Handling
//
// ErrConnectionFailed and ErrHealthcheckFailed separate infrastructure
// problems from business errors; both work with errors.Is.
package opensearch
