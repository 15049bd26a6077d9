package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Closer stops a handler and flushes anything still queued.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// queued carries one record together with the handler that accepted it, so
// attrs and groups added via With survive the queue hop.
type queued struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler decouples logging from request handling: records go into a
// bounded queue drained by a single writer, which also keeps records in the
// order they were logged. When the queue is full the record is dropped and
// counted instead of blocking the caller.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan queued
	done    chan struct{}
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a queue of the given capacity.
func NewAsyncHandler(inner slog.Handler, capacity int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan queued, capacity),
		done:    make(chan struct{}),
		dropped: &atomic.Int64{},
	}
	go h.run()
	return h
}

func (h *AsyncHandler) run() {
	defer close(h.done)
	for item := range h.queue {
		_ = item.h.Handle(context.Background(), item.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // hugeParam: slog.Handler interface
	select {
	case h.queue <- queued{h: h.inner, rec: rec}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the queue whose records carry attrs.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), queue: h.queue, done: h.done, dropped: h.dropped}
}

// WithGroup returns a handler sharing the queue whose records carry the group.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), queue: h.queue, done: h.done, dropped: h.dropped}
}

// DroppedCount reports how many records were discarded on queue overflow.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and blocks until the queue is drained.
// Call it once, on the root handler.
func (h *AsyncHandler) Close() {
	close(h.queue)
	<-h.done
}
