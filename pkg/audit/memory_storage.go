package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage is an in-memory Storage for development and tests. Events
// are matched against Criteria the same way the OpenSearch backend matches
// them, newest first.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

var (
	_ Storage        = (*MemoryStorage)(nil)
	_ BatchStorage   = (*MemoryStorage)(nil)
	_ StorageCounter = (*MemoryStorage)(nil)
)

// NewMemoryStorage creates an empty in-memory audit storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStorage) StoreBatch(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *MemoryStorage) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	s.mu.RLock()
	matched := make([]Event, 0)
	for _, e := range s.events {
		if criteria.matches(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if criteria.Offset > 0 {
		if criteria.Offset >= len(matched) {
			return []Event{}, nil
		}
		matched = matched[criteria.Offset:]
	}
	if criteria.Limit > 0 && criteria.Limit < len(matched) {
		matched = matched[:criteria.Limit]
	}
	return matched, nil
}

func (s *MemoryStorage) Count(ctx context.Context, criteria Criteria) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if criteria.matches(e) {
			n++
		}
	}
	return n, nil
}

func (c Criteria) matches(e Event) bool {
	if c.AccountID != "" && e.AccountID != c.AccountID {
		return false
	}
	if c.Action != "" && e.Action != c.Action {
		return false
	}
	if c.Provider != "" && e.Provider != c.Provider {
		return false
	}
	if c.Result != "" && e.Result != c.Result {
		return false
	}
	if !c.From.IsZero() && e.CreatedAt.Before(c.From) {
		return false
	}
	if !c.To.IsZero() && e.CreatedAt.After(c.To) {
		return false
	}
	return true
}
