package lifecycle

import (
	"context"

	"racepass/internal/audit"
	"racepass/internal/lifecycle/models"
	"racepass/internal/platform/tracer"
	"racepass/pkg/domain"
)

// Revoke marks the subject's credential revoked. The record is retained.
// A second call is a no-op and keeps the original revocation time.
func (s *Service) Revoke(ctx context.Context, subject domain.SubjectID) (view *models.CredentialView, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRevoke, tracer.String(tracer.AttrSubject, subject.Hex()))
	defer func() { span.End(err) }()

	unlock := s.lockSubject(subject)
	defer unlock()

	state, err := s.loadState(ctx, subject)
	if err != nil {
		return nil, err
	}
	if state.Revoked {
		v := state.View()
		return &v, nil
	}

	now := s.now(ctx)
	state.Revoked = true
	state.RevokedAt = &now
	if err := s.store.SaveSubject(ctx, state); err != nil {
		return nil, wrapInternal(err, "failed to persist revocation")
	}

	s.metrics.IncRevoked()
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Subject:   subject.Hex(),
		Action:    audit.ActionCredentialRevoked,
	})
	s.logger.InfoContext(ctx, "credential revoked",
		"subject", subject.Hex(),
		"credential_id", state.Credential.ID,
	)

	v := state.View()
	return &v, nil
}
