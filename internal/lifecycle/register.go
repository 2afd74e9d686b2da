package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"racepass/internal/audit"
	"racepass/internal/eligibility"
	"racepass/internal/hashing"
	"racepass/internal/lifecycle/models"
	"racepass/internal/platform/tracer"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/sentinel"
)

const (
	qrPrefix      = "RP-"
	qrHexLength   = 24
	qrRandomBytes = 16
)

// Register issues a signed ticket for (subject, eventID). When req is nil the
// event catalog's requirements apply; the catalog also supplies capacity.
// Cancellation before the ticket is stored leaves no ticket and no activity entry.
func (s *Service) Register(ctx context.Context, subject domain.SubjectID, eventID domain.EventID, req *eligibility.Requirements) (receipt *models.RegistrationReceipt, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRegister,
		tracer.String(tracer.AttrSubject, subject.Hex()),
		tracer.String(tracer.AttrEventID, string(eventID)),
	)
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, registrationOutcome(err)))
		s.metrics.IncRegistration(registrationOutcome(err))
		span.End(err)
	}()

	if _, err := domain.ParseEventID(string(eventID)); err != nil {
		return nil, err
	}

	unlockSubject := s.lockSubject(subject)
	defer unlockSubject()
	unlockEvent := s.lockEvent(eventID)
	defer unlockEvent()

	now := s.now(ctx)
	state, err := s.loadState(ctx, subject)
	if err != nil {
		return nil, err
	}
	if err := activeError(state, now); err != nil {
		return nil, err
	}

	requirements, capacity, err := s.resolveEvent(ctx, eventID, req)
	if err != nil {
		return nil, err
	}

	if err := eligibility.CheckAge(state.Profile(), requirements); err != nil {
		s.denyRegistration(ctx, subject, eventID, now, models.ReasonAgeRestricted)
		return nil, err
	}

	if _, err := s.store.FindRegistration(ctx, subject, eventID); err == nil {
		return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "subject is already registered for this event")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapInternal(err, "failed to look up registration")
	}
	if capacity > 0 {
		count, err := s.store.CountRegistrations(ctx, eventID)
		if err != nil {
			return nil, wrapInternal(err, "failed to count registrations")
		}
		if count >= capacity {
			return nil, dErrors.New(dErrors.CodeEventFull, "event is at capacity")
		}
	}

	elig, err := s.core.Attestations.GenerateEligibility(subject, state.Profile(), requirements, uint64(now.UnixMilli()))
	if err != nil {
		return nil, err
	}
	t, err := s.core.Tickets.Sign(subject, eventID, "", now)
	if err != nil {
		return nil, err
	}
	qr, err := newQRToken(subject, eventID, now)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reg := models.Registration{
		Subject:      subject,
		EventID:      eventID,
		QRToken:      qr,
		TicketHash:   t.TicketHash,
		RegisteredAt: now,
	}
	if err := s.store.RecordRegistration(ctx, reg, models.TicketRecord{QRToken: qr, Ticket: t}); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "subject is already registered for this event")
		}
		return nil, wrapInternal(err, "failed to persist registration")
	}

	s.emit(ctx, audit.Event{
		Timestamp: now,
		Subject:   subject.Hex(),
		EventID:   string(eventID),
		Action:    audit.ActionRegistrationCreated,
		Decision:  audit.DecisionGranted,
	})
	s.logger.InfoContext(ctx, "registration created",
		"subject", subject.Hex(),
		"event_id", string(eventID),
	)

	proofs := make([]models.AttestationProof, 0, len(elig.Attestations))
	for _, a := range elig.Attestations {
		proofs = append(proofs, models.NewAttestationProof(a))
	}
	return &models.RegistrationReceipt{
		QRToken:     qr,
		EventID:     eventID,
		Disclosures: elig.Disclosures,
		CryptoProofs: models.RegistrationProofs{
			TicketHash:      t.TicketHash,
			TicketSignature: t.Signature,
			Attestations:    proofs,
			Commitments:     state.Commitments.Public(),
			Issuer:          t.Issuer,
		},
	}, nil
}

// resolveEvent merges explicit requirements with the catalog entry.
func (s *Service) resolveEvent(ctx context.Context, eventID domain.EventID, req *eligibility.Requirements) (eligibility.Requirements, int, error) {
	var (
		requirements eligibility.Requirements
		capacity     int
	)
	if s.catalog != nil {
		event, err := s.catalog.FindEvent(ctx, eventID)
		switch {
		case err == nil:
			requirements = event.Requirements
			capacity = event.Capacity
		case !errors.Is(err, sentinel.ErrNotFound):
			return eligibility.Requirements{}, 0, wrapInternal(err, "failed to load event")
		}
	}
	if req != nil {
		requirements = *req
	}
	if requirements.MinAge < 0 || requirements.MinAge > 255 {
		return eligibility.Requirements{}, 0, dErrors.New(dErrors.CodeInvalidAge, "minimum age must be between 0 and 255")
	}
	return requirements, capacity, nil
}

func (s *Service) denyRegistration(ctx context.Context, subject domain.SubjectID, eventID domain.EventID, now time.Time, reason string) {
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Subject:   subject.Hex(),
		EventID:   string(eventID),
		Action:    audit.ActionRegistrationDenied,
		Decision:  audit.DecisionDenied,
		Reason:    reason,
	})
	s.logger.InfoContext(ctx, "registration denied",
		"subject", subject.Hex(),
		"event_id", string(eventID),
		"reason", reason,
	)
}

// activeError maps an inactive state to Revoked or Expired.
func activeError(state *models.SubjectState, now time.Time) error {
	if state.Revoked {
		return dErrors.New(dErrors.CodeRevoked, "credential has been revoked")
	}
	if !now.Before(state.ExpiresAt) {
		return dErrors.New(dErrors.CodeExpired, "credential has expired")
	}
	return nil
}

// newQRToken is "RP-" plus the first 24 uppercase hex characters of
// sha256(subject || eventId || now || random).
func newQRToken(subject domain.SubjectID, eventID domain.EventID, now time.Time) (string, error) {
	random := make([]byte, qrRandomBytes)
	if _, err := rand.Read(random); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "draw qr randomness")
	}
	var b strings.Builder
	b.WriteString(subject.Hex())
	b.WriteString(string(eventID))
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteString(hex.EncodeToString(random))
	digest := hashing.SHA256([]byte(b.String()))
	return qrPrefix + strings.ToUpper(hex.EncodeToString(digest.Bytes()))[:qrHexLength], nil
}

func registrationOutcome(err error) string {
	if err == nil {
		return "created"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return string(dErrors.CodeOf(err))
}
