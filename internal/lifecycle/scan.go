package lifecycle

import (
	"context"
	"errors"
	"strings"

	"racepass/internal/audit"
	"racepass/internal/lifecycle/models"
	"racepass/internal/merkle"
	"racepass/internal/platform/tracer"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/sentinel"
)

// Scan consumes a ticket by QR token, appends the attendance leaf and bumps
// reputation. The leaf is appended to the log only after the store accepted
// the scan, so a failed scan never moves the root.
func (s *Service) Scan(ctx context.Context, qrToken string) (receipt *models.ScanReceipt, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanScan)
	defer func() {
		outcome := "scanned"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
		}
		s.metrics.IncScan(outcome)
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
		span.End(err)
	}()

	qrToken = strings.TrimSpace(qrToken)
	if qrToken == "" {
		return nil, dErrors.New(dErrors.CodeInvalidTicket, "unknown ticket")
	}
	rec, err := s.findTicket(ctx, qrToken)
	if err != nil {
		return nil, err
	}
	subject := rec.Ticket.Subject
	span.SetAttributes(
		tracer.String(tracer.AttrSubject, subject.Hex()),
		tracer.String(tracer.AttrEventID, string(rec.Ticket.EventID)),
	)

	unlock := s.lockSubject(subject)
	defer unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-read under the lock; a concurrent scan may have consumed it.
	rec, err = s.findTicket(ctx, qrToken)
	if err != nil {
		return nil, err
	}
	if rec.Ticket.Used() {
		return nil, dErrors.New(dErrors.CodeAlreadyUsed, "ticket has already been used")
	}
	ok, err := s.core.Tickets.Verify(rec.Ticket)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.WarnContext(ctx, "ticket signature mismatch",
			"subject", subject.Hex(),
			"event_id", string(rec.Ticket.EventID),
		)
		return nil, dErrors.New(dErrors.CodeSignatureMismatch, "ticket signature does not verify")
	}

	state, err := s.loadState(ctx, subject)
	if err != nil {
		return nil, err
	}

	now := s.now(ctx)
	eventID := rec.Ticket.EventID
	leaf := merkle.AttendanceLeaf(subject, eventID)
	state.Reputation.RecordAttendance(models.LeafRecord{Leaf: leaf, EventID: eventID, AttendedAt: now})
	used := now
	rec.Ticket.UsedAt = &used

	attendance := models.AttendanceRecord{Subject: subject, EventID: eventID, Leaf: leaf, AttendedAt: now}
	if err := s.store.RecordScan(ctx, *rec, attendance, state); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeAlreadyUsed, "ticket has already been used")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeInvalidTicket, "unknown ticket")
		}
		return nil, wrapInternal(err, "failed to persist scan")
	}
	root := s.log.Append(leaf)
	s.metrics.SetMerkleLeaves(s.log.Len())
	span.SetAttributes(tracer.Int64(tracer.AttrMerkleSize, int64(s.log.Len())))

	var event *models.Event
	if s.catalog != nil {
		if e, err := s.catalog.FindEvent(ctx, eventID); err == nil {
			event = e
		}
	}

	s.emit(ctx, audit.Event{
		Timestamp: now,
		Subject:   subject.Hex(),
		EventID:   string(eventID),
		Action:    audit.ActionTicketScanned,
		Decision:  audit.DecisionGranted,
	})
	s.logger.InfoContext(ctx, "ticket scanned",
		"subject", subject.Hex(),
		"event_id", string(eventID),
		"attendance", state.Reputation.Attendance,
	)

	return &models.ScanReceipt{
		TicketHash:        rec.Ticket.TicketHash,
		SignatureVerified: true,
		UsedAt:            used,
		Subject:           subject,
		EventID:           eventID,
		Event:             event,
		MerkleRoot:        root,
	}, nil
}

func (s *Service) findTicket(ctx context.Context, qrToken string) (*models.TicketRecord, error) {
	rec, err := s.store.FindTicket(ctx, qrToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidTicket, "unknown ticket")
		}
		return nil, wrapInternal(err, "failed to load ticket")
	}
	return rec, nil
}
