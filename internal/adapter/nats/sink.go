package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/switchboardhq/switchboard/internal/port/errsink"
	"github.com/switchboardhq/switchboard/internal/port/messagequeue"
)

// publishTimeout bounds the background publish of one error event.
const publishTimeout = 2 * time.Second

// Sink publishes failure events to the error stream so external monitors
// can alert on degradation. Publishing happens off the caller's goroutine;
// a broken queue never slows down routing. Every event is also logged.
type Sink struct {
	queue messagequeue.Queue
}

var _ errsink.Sink = (*Sink)(nil)

// NewSink creates a queue-backed error sink.
func NewSink(queue messagequeue.Queue) *Sink {
	return &Sink{queue: queue}
}

// Report publishes the event to errors.storage or errors.dispatch.
func (s *Sink) Report(_ context.Context, ev errsink.Event) {
	errsink.LogSink{}.Report(context.Background(), ev)

	subject := messagequeue.SubjectErrorStorage
	if ev.Kind == errsink.KindDispatchFailure {
		subject = messagequeue.SubjectErrorDispatch
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal error event", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.queue.Publish(ctx, subject, data); err != nil {
			slog.Warn("error event not published", "subject", subject, "error", err)
		}
	}()
}
