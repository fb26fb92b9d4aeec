package audit

import "context"

// Reader retrieves audit events.
type Reader interface {
	Find(ctx context.Context, criteria Criteria) ([]Event, error)
	Count(ctx context.Context, criteria Criteria) (int64, error)
}

type reader struct {
	storage Storage
}

// NewReader creates a reader over the storage backend.
// Panics if storage is nil.
func NewReader(storage Storage) Reader {
	if storage == nil {
		panic("audit: storage is required")
	}
	return &reader{storage: storage}
}

func (r *reader) Find(ctx context.Context, criteria Criteria) ([]Event, error) {
	return r.storage.Query(ctx, criteria)
}

// Count uses the backend's native count when available and falls back to
// loading matching events otherwise.
func (r *reader) Count(ctx context.Context, criteria Criteria) (int64, error) {
	if counter, ok := r.storage.(StorageCounter); ok {
		return counter.Count(ctx, criteria)
	}

	criteria.Limit = 0
	criteria.Offset = 0
	events, err := r.storage.Query(ctx, criteria)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}
