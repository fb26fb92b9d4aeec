// Package lock provides per-key mutual exclusion for serializing work on a
// single entity.
//
// KeyedMutex covers single-instance deployments with in-process mutexes.
// RedisLocker covers multi-instance deployments using SET NX with a TTL and
// an ownership token, so only the holder that acquired a lock can release
// it and a crashed holder is unblocked by expiry.
//
//	locker := lock.NewRedisLocker(client, lock.WithTTL(time.Minute))
//	release, err := locker.Acquire(ctx, accountID.String())
//	if err != nil {
//		return err
//	}
//	defer release()
package lock
