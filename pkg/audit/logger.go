package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger records audit events.
type Logger interface {
	// Log records a successful action.
	Log(ctx context.Context, action string, opts ...EventOption) error
	// LogError records a failed action with its error.
	LogError(ctx context.Context, action string, err error, opts ...EventOption) error
}

// contextExtractor pulls a string value out of a context, reporting
// whether it was present.
type contextExtractor func(context.Context) (string, bool)

type logger struct {
	storage            Storage
	accountIDExtractor contextExtractor
}

// Option configures a Logger.
type Option func(*logger)

// WithAccountIDExtractor populates Event.AccountID from the context on
// every Log/LogError call. billingkit.AccountFromContext adapts directly:
//
//	audit.WithAccountIDExtractor(func(ctx context.Context) (string, bool) {
//		id, ok := billingkit.AccountFromContext(ctx)
//		return id.String(), ok
//	})
func WithAccountIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *logger) {
		l.accountIDExtractor = fn
	}
}

// NewLogger creates an audit logger over the storage backend.
// Panics if storage is nil.
func NewLogger(storage Storage, opts ...Option) Logger {
	if storage == nil {
		panic("audit: storage is required")
	}

	l := &logger{storage: storage}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	event := l.newEvent(ctx, action)
	event.Result = ResultSuccess

	for _, opt := range opts {
		opt(&event)
	}
	if err := event.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}

func (l *logger) LogError(ctx context.Context, action string, actionErr error, opts ...EventOption) error {
	event := l.newEvent(ctx, action)
	event.Result = ResultError
	if actionErr != nil {
		event.Error = actionErr.Error()
	}

	for _, opt := range opts {
		opt(&event)
	}
	if err := event.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}

func (l *logger) newEvent(ctx context.Context, action string) Event {
	event := Event{
		ID:        uuid.New().String(),
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
	if l.accountIDExtractor != nil {
		if id, ok := l.accountIDExtractor(ctx); ok {
			event.AccountID = id
		}
	}
	return event
}
