package lifecycle

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives published events. Implementations: slog (default), NATS,
// postgres outbox.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Publisher fans events out to a sink, optionally through an async buffer so
// emitters never block on delivery.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	buffer chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue instead of delivering inline. The
// buffer is drained by a single worker and flushed on Close.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = make(chan Event, size)
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher constructs a Publisher over the given sink.
func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit publishes an event. In async mode a full buffer drops the event with
// a log line rather than blocking the caller; notification delivery is never
// required for correctness of the state machines.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p.buffer == nil {
		return p.deliver(ctx, event)
	}
	select {
	case p.buffer <- event:
	default:
		p.logger.Warn("lifecycle event dropped, buffer full",
			"kind", event.Kind,
			"participant_id", event.ParticipantID,
		)
	}
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		_ = p.deliver(context.Background(), event)
	}
}

func (p *Publisher) deliver(ctx context.Context, event Event) error {
	if err := p.sink.Deliver(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "lifecycle event delivery failed",
			"kind", event.Kind,
			"participant_id", event.ParticipantID,
			"error", err,
		)
		return err
	}
	return nil
}

// Close flushes buffered events and stops the worker.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}

// LogSink writes events to the structured log. Used when no broker is
// configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, event Event) error {
	s.Logger.InfoContext(ctx, "lifecycle event",
		"kind", event.Kind,
		"participant_id", event.ParticipantID,
		"envelope_id", event.EnvelopeID,
		"actor", event.Actor,
	)
	return nil
}

// MultiSink delivers to every sink, returning the first error after trying
// all of them.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Deliver(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
