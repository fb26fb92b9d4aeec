package cache

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRU is a fixed-capacity, thread-safe cache that evicts the least
// recently used entry once full. Recency is bumped by Get and Put, not
// by Peek.
type LRU[K comparable, V any] struct {
	capacity int
	entries  map[K]*list.Element
	order    *list.List // front = most recently used
	onEvict  func(K, V)
	mu       sync.Mutex
}

// Option configures an LRU.
type Option[K comparable, V any] func(*LRU[K, V])

// WithOnEvict registers a callback invoked for every entry dropped by
// capacity eviction, Remove, or Purge. Called outside hot-path locks is
// NOT guaranteed; keep it cheap.
func WithOnEvict[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRU[K, V]) { c.onEvict = fn }
}

// NewLRU creates a cache holding at most capacity entries.
// Panics if capacity is not positive.
func NewLRU[K comparable, V any](capacity int, opts ...Option[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}

	c := &LRU[K, V]{
		capacity: capacity,
		entries:  make(map[K]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Peek returns the value for key without touching recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		return elem.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores the value, replacing any previous entry for key. The oldest
// entry is evicted when the cache is full.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return
	}

	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.drop(oldest)
		}
	}
}

// Remove deletes the entry for key, reporting whether it existed.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if ok {
		c.drop(elem)
	}
	return ok
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every entry, invoking the eviction callback for each.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, elem := range c.entries {
		e := elem.Value.(*entry[K, V])
		if c.onEvict != nil {
			c.onEvict(e.key, e.value)
		}
	}
	c.entries = make(map[K]*list.Element)
	c.order.Init()
}

// drop removes elem; callers hold the lock.
func (c *LRU[K, V]) drop(elem *list.Element) {
	c.order.Remove(elem)
	e := elem.Value.(*entry[K, V])
	delete(c.entries, e.key)

	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}
