// Package cache provides a generic, bounded LRU cache for hot-path
// lookups that must not grow without limit.
//
// The billing service uses it to suppress provider webhook replays: event
// IDs already applied are remembered in a fixed-size cache, so a
// redelivered notification is acknowledged without firing hooks twice,
// and memory stays bounded no matter how many events arrive.
//
// # Usage
//
//	seen := cache.NewLRU[string, time.Time](4096)
//
//	seen.Put("evt_1PqXa2", time.Now())
//	if _, ok := seen.Get("evt_1PqXa2"); ok {
//		// replayed delivery, skip
//	}
//
// An eviction callback covers entries that hold resources:
//
//	conns := cache.NewLRU(16, cache.WithOnEvict(func(host string, c *grpc.ClientConn) {
//		_ = c.Close()
//	}))
//
// All operations are safe for concurrent use.
package cache
