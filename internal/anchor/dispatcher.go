package anchor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/circuit"
)

const (
	defaultQueueSize = 64
	defaultWorkers   = 4
	defaultTimeout   = 10 * time.Second
)

// Observer receives one callback per writer outcome. Metrics implement it.
type Observer interface {
	ObserveAnchor(chain string, success bool, duration time.Duration)
}

// Dispatcher runs anchoring out of band. Callers enqueue a request and wait on
// a reply channel, so the lifecycle never holds its own locks across the call.
type Dispatcher struct {
	writers  []Named
	breakers map[string]*circuit.Breaker
	requests chan request
	timeout  time.Duration
	workers  int
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	started sync.Once
}

type request struct {
	ctx         context.Context
	subject     domain.SubjectID
	fingerprint common.Hash
	reply       chan Results
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithTimeout bounds each dispatch across all writers.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithBreakerOptions applies opts to every writer's circuit breaker.
func WithBreakerOptions(opts ...circuit.Option) Option {
	return func(d *Dispatcher) {
		for _, w := range d.writers {
			d.breakers[w.Name] = circuit.New(w.Name, opts...)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher builds a dispatcher over writers. Call Start before use.
func NewDispatcher(writers []Named, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		writers:  writers,
		breakers: make(map[string]*circuit.Breaker, len(writers)),
		requests: make(chan request, defaultQueueSize),
		timeout:  defaultTimeout,
		workers:  defaultWorkers,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, w := range writers {
		d.breakers[w.Name] = circuit.New(w.Name)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Names lists writer names in call order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.writers))
	for i, w := range d.writers {
		names[i] = w.Name
	}
	return names
}

// Start launches the worker goroutines. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.started.Do(func() {
		for range d.workers {
			d.wg.Add(1)
			go d.work()
		}
	})
}

// Close stops accepting requests and waits for in-flight dispatches.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.requests)
	d.mu.Unlock()
	d.wg.Wait()
}

// Anchor dispatches fingerprint to every writer and waits for the receipts.
// If ctx ends first, every writer is reported as cancelled.
func (d *Dispatcher) Anchor(ctx context.Context, subject domain.SubjectID, fingerprint common.Hash) Results {
	if len(d.writers) == 0 {
		return Results{}
	}
	reply := make(chan Results, 1)
	if !d.enqueue(ctx, request{ctx: ctx, subject: subject, fingerprint: fingerprint, reply: reply}) {
		if ctx.Err() != nil {
			return d.allCancelled()
		}
		return d.allUnavailable("dispatcher closed")
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return d.allCancelled()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, req request) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.requests <- req:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for req := range d.requests {
		req.reply <- d.dispatch(req)
	}
}

func (d *Dispatcher) dispatch(req request) Results {
	ctx, cancel := context.WithTimeout(req.ctx, d.timeout)
	defer cancel()

	results := make([]Result, len(d.writers))
	var g errgroup.Group
	for i, w := range d.writers {
		g.Go(func() error {
			results[i] = d.call(ctx, req.ctx, w, req.subject, req.fingerprint)
			return nil
		})
	}
	_ = g.Wait()

	out := make(Results, len(results))
	for _, r := range results {
		out[r.Chain] = r
	}
	return out
}

func (d *Dispatcher) call(ctx, parent context.Context, w Named, subject domain.SubjectID, fingerprint common.Hash) Result {
	breaker := d.breakers[w.Name]
	if parent.Err() != nil {
		return cancelled(w.Name)
	}
	if !breaker.Allow() {
		return failed(w.Name, dErrors.CodeAnchorUnavailable, "circuit open")
	}

	start := d.now()
	txRef, err := w.Writer.Anchor(ctx, subject, fingerprint)
	if d.observer != nil {
		d.observer.ObserveAnchor(w.Name, err == nil, time.Since(start))
	}
	if err == nil {
		if change := breaker.RecordSuccess(); change.Closed() {
			d.logger.Info("anchor circuit closed", "chain", w.Name)
		}
		return succeeded(w.Name, txRef, d.now())
	}

	if parent.Err() != nil || errors.Is(err, context.Canceled) {
		breaker.Release()
		return cancelled(w.Name)
	}
	if change := breaker.RecordFailure(); change.Opened() {
		d.logger.Warn("anchor circuit opened", "chain", w.Name)
	}
	d.logger.Warn("anchor failed", "chain", w.Name, "subject", subject.String(), "error", err)
	code := dErrors.CodeAnchorFailure
	if errors.Is(err, ErrUnavailable) {
		code = dErrors.CodeAnchorUnavailable
	}
	return failed(w.Name, code, err.Error())
}

// IsAnchored asks every writer. Writer errors count as not anchored.
func (d *Dispatcher) IsAnchored(ctx context.Context, subject domain.SubjectID) map[string]bool {
	out := make(map[string]bool, len(d.writers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.writers {
		g.Go(func() error {
			ok, err := w.Writer.IsAnchored(gctx, subject)
			if err != nil {
				d.logger.Warn("anchor status lookup failed", "chain", w.Name, "error", err)
			}
			mu.Lock()
			out[w.Name] = err == nil && ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (d *Dispatcher) allCancelled() Results {
	out := make(Results, len(d.writers))
	for _, w := range d.writers {
		out[w.Name] = cancelled(w.Name)
	}
	return out
}

func (d *Dispatcher) allUnavailable(reason string) Results {
	out := make(Results, len(d.writers))
	for _, w := range d.writers {
		out[w.Name] = failed(w.Name, dErrors.CodeAnchorUnavailable, reason)
	}
	return out
}
