// Package publisher fans audit events out to a queryable store and to any
// number of external sinks.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"piiguard/pkg/domain"
	audit "piiguard/pkg/platform/audit"
	"piiguard/pkg/platform/audit/worker"
	"piiguard/pkg/platform/circuit"
)

// ErrBufferFull is returned by Emit in async mode when the queue is full.
var ErrBufferFull = errors.New("audit buffer full")

type sinkEntry struct {
	name    string
	sink    audit.Sink
	breaker *circuit.Breaker
}

// Publisher persists events to its store and forwards them to sinks. A sink
// that keeps failing trips its breaker and its events go to the fallback sink
// until it recovers.
type Publisher struct {
	store    audit.Store
	sinks    []sinkEntry
	fallback audit.Sink
	logger   *slog.Logger
	now      func() time.Time

	bufferSize int
	queue      chan audit.Event
	done       chan struct{}
	mu         sync.RWMutex
	closed     bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue events for a background worker.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

// WithSink forwards every event to sink, guarded by a circuit breaker.
func WithSink(name string, sink audit.Sink, opts ...circuit.Option) Option {
	return func(p *Publisher) {
		p.sinks = append(p.sinks, sinkEntry{name: name, sink: sink, breaker: circuit.New(name, opts...)})
	}
}

// WithFallback sets where events go while a sink's breaker is open.
func WithFallback(sink audit.Sink) Option {
	return func(p *Publisher) {
		p.fallback = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.queue = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(p.persist, p.queue, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit stamps and classifies event, then persists it. In async mode it only
// enqueues and returns ErrBufferFull when the queue is saturated.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.queue == nil {
		return p.persist(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.persist(ctx, event)
	}
	select {
	case p.queue <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"session_id", event.SessionID.String(),
		)
		return ErrBufferFull
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	for _, s := range p.sinks {
		p.forward(ctx, s, event)
	}
	return nil
}

func (p *Publisher) forward(ctx context.Context, s sinkEntry, event audit.Event) {
	err := s.sink.Append(ctx, event)
	if err == nil {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			p.logger.InfoContext(ctx, "audit sink recovered", "sink", s.name)
		}
		return
	}

	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		p.logger.WarnContext(ctx, "audit sink circuit opened", "sink", s.name, "error", err)
	}
	if !useFallback || p.fallback == nil {
		p.logger.ErrorContext(ctx, "audit sink append failed", "sink", s.name, "error", err)
		return
	}
	if ferr := p.fallback.Append(ctx, event); ferr != nil {
		p.logger.ErrorContext(ctx, "audit fallback append failed", "sink", s.name, "error", ferr)
	}
}

// List returns the stored events for a session.
func (p *Publisher) List(ctx context.Context, sessionID domain.SessionID) ([]audit.Event, error) {
	return p.store.ListBySession(ctx, sessionID)
}

// SinkState reports the breaker position of a named sink.
func (p *Publisher) SinkState(name string) (circuit.State, bool) {
	for _, s := range p.sinks {
		if s.name == name {
			return s.breaker.State(), true
		}
	}
	return "", false
}

// Close drains the async queue. Events emitted afterwards are persisted
// synchronously. It is safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed || p.queue == nil {
		p.closed = true
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
}
