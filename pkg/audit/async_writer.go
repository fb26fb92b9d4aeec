package audit

import (
	"context"
	"sync"
	"time"
)

// AsyncOptions tunes AsyncWriter buffering and batching.
type AsyncOptions struct {
	// BufferSize caps queued events; when full, writes go to the backend
	// synchronously instead of being dropped.
	BufferSize int
	// BatchSize is the target events per bulk write.
	BatchSize int
	// BatchTimeout bounds how long a partial batch waits before flushing.
	BatchTimeout time.Duration
	// StorageTimeout bounds each bulk write.
	StorageTimeout time.Duration
}

// AsyncWriter decorates a Storage with write batching: events accumulate
// in a background worker and reach the backend through its bulk path,
// while reads pass straight through. Store blocks until the event's batch
// has been flushed, so callers still observe storage errors.
type AsyncWriter struct {
	inner   Storage
	backend BatchStorage
	events  chan eventBatch
	done    chan struct{}
	wg      sync.WaitGroup
	options AsyncOptions
}

var _ Storage = (*AsyncWriter)(nil)

type eventBatch struct {
	events []Event
	result chan error
}

// NewAsyncWriter starts the background worker. The returned close function
// drains the buffer; call it during shutdown or queued events are lost.
// Panics if backend is nil or lacks a bulk write path.
func NewAsyncWriter(backend Storage, opts AsyncOptions) (*AsyncWriter, func(context.Context) error) {
	if backend == nil {
		panic("audit: storage is required")
	}
	bulk, ok := backend.(BatchStorage)
	if !ok {
		panic("audit: storage must implement BatchStorage for async writes")
	}

	if opts.BufferSize == 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout == 0 {
		opts.BatchTimeout = 100 * time.Millisecond
	}
	if opts.StorageTimeout == 0 {
		opts.StorageTimeout = 5 * time.Second
	}

	aw := &AsyncWriter{
		inner:   backend,
		backend: bulk,
		events:  make(chan eventBatch, opts.BufferSize),
		done:    make(chan struct{}),
		options: opts,
	}

	aw.wg.Add(1)
	go aw.worker()

	return aw, aw.Close
}

// Query delegates to the wrapped storage. Recently stored events may still
// be in the buffer and not yet visible.
func (aw *AsyncWriter) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	return aw.inner.Query(ctx, criteria)
}

// Store queues the event and waits for its batch to flush. A full buffer
// degrades to a synchronous write so no event is dropped.
func (aw *AsyncWriter) Store(ctx context.Context, event Event) error {
	result := make(chan error, 1)

	select {
	case aw.events <- eventBatch{events: []Event{event}, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-aw.done:
		return ErrStorageNotAvailable
	default:
		return aw.backend.StoreBatch(ctx, []Event{event})
	}
}

func (aw *AsyncWriter) worker() {
	defer aw.wg.Done()

	batch := make([]Event, 0, aw.options.BatchSize)
	pending := make([]chan error, 0, aw.options.BatchSize)
	ticker := time.NewTicker(aw.options.BatchTimeout)
	defer ticker.Stop()

	// Flushes run on a detached context: a caller that gave up must not
	// cancel the write for the rest of the batch.
	flush := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), aw.options.StorageTimeout)
		err := aw.backend.StoreBatch(ctx, batch)
		cancel()

		for _, result := range pending {
			select {
			case result <- err:
			default:
			}
		}

		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case eb := <-aw.events:
			batch = append(batch, eb.events...)
			pending = append(pending, eb.result)
			if len(batch) >= aw.options.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-aw.done:
			close(aw.events)
			for eb := range aw.events {
				batch = append(batch, eb.events...)
				pending = append(pending, eb.result)
			}
			flush()
			return
		}
	}
}

// Close stops the worker after draining queued events. The context bounds
// the drain; on expiry remaining events are lost.
func (aw *AsyncWriter) Close(ctx context.Context) error {
	close(aw.done)

	drained := make(chan struct{})
	go func() {
		aw.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
