// Package memory is an in-process chain writer for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/hashing"
	"racepass/pkg/domain"
)

// Entry is one anchored fingerprint.
type Entry struct {
	Fingerprint common.Hash
	TxRef       string
}

// Writer records fingerprints in a map. It can be told to fail or to delay.
type Writer struct {
	mu      sync.RWMutex
	entries map[domain.SubjectID]Entry
	fail    error
	delay   time.Duration
	calls   int
}

type Option func(*Writer)

// WithFailure makes every Anchor call return err.
func WithFailure(err error) Option {
	return func(w *Writer) { w.fail = err }
}

// WithDelay makes Anchor wait d or until ctx ends.
func WithDelay(d time.Duration) Option {
	return func(w *Writer) { w.delay = d }
}

func New(opts ...Option) *Writer {
	w := &Writer{entries: make(map[domain.SubjectID]Entry)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Anchor(ctx context.Context, subject domain.SubjectID, fingerprint common.Hash) (string, error) {
	w.mu.Lock()
	w.calls++
	fail, delay := w.fail, w.delay
	w.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail != nil {
		return "", fail
	}

	txRef := hashing.Keccak256(subject.Bytes(), fingerprint.Bytes()).Hex()
	w.mu.Lock()
	w.entries[subject] = Entry{Fingerprint: fingerprint, TxRef: txRef}
	w.mu.Unlock()
	return txRef, nil
}

func (w *Writer) IsAnchored(_ context.Context, subject domain.SubjectID) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.entries[subject]
	return ok, nil
}

// Lookup returns the anchored entry for subject.
func (w *Writer) Lookup(subject domain.SubjectID) (Entry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entries[subject]
	return e, ok
}

// Calls returns how many times Anchor was invoked.
func (w *Writer) Calls() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.calls
}

// SetFailure switches failure injection at runtime.
func (w *Writer) SetFailure(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}
