package lock

import (
	"context"
	"fmt"
	"sync"
)

// KeyedMutex serializes critical sections per key using in-process mutexes.
// It suits single-instance deployments and tests; multi-instance deployments
// should use RedisLocker instead.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (m *KeyedMutex) get(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	kl, ok := m.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (m *KeyedMutex) put(key string, kl *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(m.locks, key)
	}
}

// Acquire blocks until the key's lock is held or ctx is done. The returned
// release function is idempotent.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	kl := m.get(key)

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		m.put(key, kl)
		return nil, fmt.Errorf("lock: acquire %q: %w", key, ctx.Err())
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-kl.sem
			m.put(key, kl)
		})
	}
	return release, nil
}

// TryAcquire attempts to take the key's lock without blocking. It reports
// false when the lock is already held.
func (m *KeyedMutex) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	kl := m.get(key)

	select {
	case kl.sem <- struct{}{}:
	default:
		m.put(key, kl)
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-kl.sem
			m.put(key, kl)
		})
	}
	return release, true, nil
}
