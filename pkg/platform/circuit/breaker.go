// Package circuit guards calls to external collaborators with a
// closed/open/half-open breaker.
package circuit

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	// StateHalfOpen admits one trial call after the cooldown.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Transition is the state change caused by one recorded outcome. From and
// To are equal when nothing changed.
type Transition struct {
	From, To State
}

func (t Transition) Opened() bool { return t.From != StateOpen && t.To == StateOpen }
func (t Transition) Closed() bool { return t.From != StateClosed && t.To == StateClosed }

// Breaker opens after a run of consecutive failures. Once the cooldown has
// passed it lets a single trial call through; the trial's outcome closes or
// re-opens the circuit.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

type Option func(*Breaker)

// WithFailureThreshold sets the consecutive failures that open the circuit.
// Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long an open circuit rejects calls. Default is 30s.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d >= 0 {
			b.cooldown = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: 5,
		cooldown:  30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open circuit past its
// cooldown moves to half-open and admits exactly one caller until that
// caller records an outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	default:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

func (b *Breaker) RecordSuccess() Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.probing = false
	return Transition{From: from, To: b.state}
}

func (b *Breaker) RecordFailure() Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.failures++
	b.probing = false
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.threshold) {
		b.state = StateOpen
		b.openedAt = b.now()
	}
	return Transition{From: from, To: b.state}
}

// Release gives back a half-open trial slot without recording an outcome,
// for calls abandoned by cancellation.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}
