package audit

import "context"

// Storage persists and retrieves audit events.
type Storage interface {
	Store(ctx context.Context, event Event) error
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
}

// BatchStorage is implemented by backends with an efficient bulk write
// path. AsyncWriter requires it.
type BatchStorage interface {
	StoreBatch(ctx context.Context, events []Event) error
}

// StorageCounter is implemented by backends with a native count. Reader
// uses it instead of loading every matching event.
type StorageCounter interface {
	Count(ctx context.Context, criteria Criteria) (int64, error)
}
