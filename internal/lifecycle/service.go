package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/audit"
	"racepass/internal/merkle"
	"racepass/internal/platform/tracer"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
	psync "racepass/pkg/platform/sync"
	"racepass/pkg/requestcontext"
)

// Service is the single owner of subject states, the QR-token index and the
// attendance Merkle log.
//
// Locking: a per-subject shard lock orders every transition on one subject,
// and registration additionally takes a per-event shard lock (subject first,
// then event) so capacity checks are exact. mu guards the Merkle log; a scan
// holds it across persistence and append so readers never see a root that
// disagrees with stored reputations. The anchor call in Submit holds only the
// subject lock.
type Service struct {
	core     *Core
	store    Store
	catalog  EventCatalog
	anchors  Anchors
	auditor  Auditor
	metrics  Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
	clock    func(context.Context) time.Time
	subjects *psync.ShardedMutex
	events   *psync.ShardedMutex

	mu  sync.RWMutex
	log *merkle.Log
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditor sets the activity log sink.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithAnchors sets the chain writer fan-out. Without it issuance records no anchors.
func WithAnchors(a Anchors) Option {
	return func(s *Service) { s.anchors = a }
}

func WithCatalog(c EventCatalog) Option {
	return func(s *Service) { s.catalog = c }
}

// WithClock overrides the request clock. By default the service reads
// requestcontext.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = func(context.Context) time.Time { return now() }
		}
	}
}

// New builds a lifecycle service. Call Restore to rebuild the Merkle log from
// a persistent store before serving.
func New(core *Core, store Store, opts ...Option) (*Service, error) {
	if core == nil {
		return nil, fmt.Errorf("core is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	s := &Service{
		core:     core,
		store:    store,
		metrics:  noopMetrics{},
		tracer:   tracer.NewNoop(),
		logger:   slog.Default(),
		clock:    requestcontext.Now,
		subjects: psync.NewShardedMutex(0),
		events:   psync.NewShardedMutex(0),
		log:      merkle.NewLog(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Restore rebuilds the attendance log from the store in scan order.
func (s *Service) Restore(ctx context.Context) error {
	records, err := s.store.ListAttendance(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attendance log")
	}
	leaves := make([]common.Hash, 0, len(records))
	for _, r := range records {
		leaves = append(leaves, r.Leaf)
	}

	s.mu.Lock()
	s.log = merkle.NewLog(leaves...)
	s.mu.Unlock()

	s.metrics.SetMerkleLeaves(len(leaves))
	s.logger.InfoContext(ctx, "attendance log restored", "leaves", len(leaves))
	return nil
}

func (s *Service) now(ctx context.Context) time.Time {
	return s.clock(ctx).UTC()
}

// lockSubject and lockEvent are always taken in that order.
func (s *Service) lockSubject(subject domain.SubjectID) func() {
	return s.subjects.Acquire(subject.Hex())
}

func (s *Service) lockEvent(eventID domain.EventID) func() {
	return s.events.Acquire(string(eventID))
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"error", err,
		)
	}
}

// wrapInternal wraps infrastructure failures that carry no domain code.
func wrapInternal(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

type noopMetrics struct{}

func (noopMetrics) IncIssued(string)              {}
func (noopMetrics) IncRevoked()                   {}
func (noopMetrics) IncRegistration(string)        {}
func (noopMetrics) IncScan(string)                {}
func (noopMetrics) IncRateLimited()               {}
func (noopMetrics) ObserveIssuance(time.Duration) {}
func (noopMetrics) SetMerkleLeaves(int)           {}
