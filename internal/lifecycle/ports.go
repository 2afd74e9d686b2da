package lifecycle

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/anchor"
	"racepass/internal/audit"
	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
)

// Store persists subject states, tickets, registrations and the attendance log.
// Error Contract:
//   - Find* return sentinel.ErrNotFound when nothing is stored
//   - RecordRegistration returns sentinel.ErrConflict when the subject is
//     already registered for the event
//   - RecordScan returns sentinel.ErrConflict when the ticket is already used
//   - other failures are wrapped infrastructure errors
type Store interface {
	FindSubject(ctx context.Context, subject domain.SubjectID) (*models.SubjectState, error)
	SaveSubject(ctx context.Context, state *models.SubjectState) error
	FindTicket(ctx context.Context, qrToken string) (*models.TicketRecord, error)
	FindRegistration(ctx context.Context, subject domain.SubjectID, eventID domain.EventID) (*models.Registration, error)
	CountRegistrations(ctx context.Context, eventID domain.EventID) (int, error)
	ListRegistrations(ctx context.Context, eventID domain.EventID) ([]models.Registration, error)
	RecordRegistration(ctx context.Context, reg models.Registration, ticket models.TicketRecord) error
	RecordScan(ctx context.Context, ticket models.TicketRecord, attendance models.AttendanceRecord, state *models.SubjectState) error
	ListAttendance(ctx context.Context) ([]models.AttendanceRecord, error)
}

// EventCatalog resolves event metadata kept alongside the core.
type EventCatalog interface {
	FindEvent(ctx context.Context, id domain.EventID) (*models.Event, error)
	UpsertEvent(ctx context.Context, event models.Event) error
	ListEvents(ctx context.Context) ([]models.Event, error)
}

// Anchors is the out-of-band chain writer fan-out.
type Anchors interface {
	Anchor(ctx context.Context, subject domain.SubjectID, fingerprint common.Hash) anchor.Results
	IsAnchored(ctx context.Context, subject domain.SubjectID) map[string]bool
}

// Auditor receives activity log entries.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Metrics is the observability hook for lifecycle outcomes.
type Metrics interface {
	IncIssued(ageCategory string)
	IncRevoked()
	IncRegistration(outcome string)
	IncScan(outcome string)
	IncRateLimited()
	ObserveIssuance(d time.Duration)
	SetMerkleLeaves(n int)
}
