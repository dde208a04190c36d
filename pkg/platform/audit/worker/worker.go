package worker

import (
	"context"
	"log/slog"

	audit "piiguard/pkg/platform/audit"
)

// Handler persists one event.
type Handler func(ctx context.Context, event audit.Event) error

// Worker consumes audit events from a channel and hands them to a Handler.
// Failures are logged and do not stop the worker.
type Worker struct {
	handle Handler
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(handle Handler, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{handle: handle, inbox: inbox, logger: logger}
}

// Run processes events until the inbox is closed, then returns nil. When ctx
// is cancelled it drains what is already buffered with a background context
// and returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.process(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.process(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, event audit.Event) {
	if err := w.handle(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "audit worker: failed to persist event",
			"action", event.Action,
			"session_id", event.SessionID.String(),
			"error", err,
		)
	}
}
