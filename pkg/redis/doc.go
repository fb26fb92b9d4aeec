// Package redis provides Redis connection management for billingkit
// deployments that serialize billing passes across processes.
//
// The usual consumer is pkg/lock's RedisLocker:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	locker := lock.NewRedisLocker(client)
//	svc := billingkit.NewService(flow, store, billingkit.WithLocker(locker))
//
// Connect retries with ping validation until ConnectTimeout expires, and
// Healthcheck plugs into the probe shape health endpoints expect.
package redis
