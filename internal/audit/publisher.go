package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher is closed")

// Publisher appends activity-log events to a Store, either inline or from a
// bounded queue drained by one goroutine.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	queue   chan Event
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithBuffer queues up to size events and persists them in the background.
// A full queue drops the event rather than block the caller.
func WithBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.queue {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist activity event",
				"error", err,
				"action", string(event.Action),
				"subject", event.Subject,
			)
		}
	}
}

// Emit records event. Async publishers never block and never fail on a
// full queue; the drop is logged and counted.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.queue == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.queue <- event:
	default:
		p.dropped.Add(1)
		p.logger.WarnContext(ctx, "activity queue full, event dropped",
			"action", string(event.Action),
			"subject", event.Subject,
		)
	}
	return nil
}

// Dropped reports how many events a full queue has discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain. It is safe
// to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}

// List returns the subject's events in append order.
func (p *Publisher) List(ctx context.Context, subject string) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}
