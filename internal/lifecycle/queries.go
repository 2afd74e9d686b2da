package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/attestation"
	"racepass/internal/audit"
	"racepass/internal/lifecycle/models"
	"racepass/internal/merkle"
	"racepass/internal/platform/tracer"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/sentinel"
)

func (s *Service) loadState(ctx context.Context, subject domain.SubjectID) (*models.SubjectState, error) {
	state, err := s.store.FindSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoCredential, "no credential for subject")
		}
		return nil, wrapInternal(err, "failed to load subject state")
	}
	return state, nil
}

// Fetch returns the public view of a subject's state.
func (s *Service) Fetch(ctx context.Context, subject domain.SubjectID) (*models.CredentialView, error) {
	state, err := s.loadState(ctx, subject)
	if err != nil {
		return nil, err
	}
	v := state.View()
	return &v, nil
}

// Openings returns the commitment secrets. Only the subject may see these.
func (s *Service) Openings(ctx context.Context, subject domain.SubjectID) (*models.Openings, error) {
	state, err := s.loadState(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &models.Openings{
		Age: models.OpeningSecret{
			Commitment: state.Commitments.Age.Commitment,
			Secret:     state.Commitments.Age.Secret,
		},
		Identity: models.OpeningSecret{
			Commitment: state.Commitments.Identity.Commitment,
			Secret:     state.Commitments.Identity.Secret,
		},
	}, nil
}

// Reputation returns the stored record and a proof for the subject's most
// recent leaf against the current root.
func (s *Service) Reputation(ctx context.Context, subject domain.SubjectID) (view *models.ReputationView, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanReputation, tracer.String(tracer.AttrSubject, subject.Hex()))
	defer func() { span.End(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.loadState(ctx, subject)
	if err != nil {
		return nil, err
	}
	rep := state.Reputation

	events := make([]models.EventAttendance, 0, len(rep.Leaves))
	for _, l := range rep.Leaves {
		events = append(events, models.EventAttendance{EventID: l.EventID, AttendedAt: l.AttendedAt, LeafHash: l.Leaf})
	}

	mv := models.MerkleView{Root: s.log.Root(), Proof: []common.Hash{}}
	if n := len(rep.Leaves); n > 0 {
		leaf := rep.Leaves[n-1].Leaf
		proof, root, err := s.log.Prove(leaf)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "attendance leaf missing from log")
		}
		mv = models.MerkleView{Root: root, Proof: proof, Leaf: &leaf}
	}

	return &models.ReputationView{
		Score:      rep.Score,
		Attendance: rep.Attendance,
		Tier:       models.Tier(rep.Score),
		Events:     events,
		Merkle:     mv,
	}, nil
}

// Check answers a third-party eligibility question with a yes/no and a
// reason code. eventType is recorded in the activity log only.
func (s *Service) Check(ctx context.Context, subject domain.SubjectID, minAge int, eventType string) (*models.CheckResult, error) {
	if minAge < 0 || minAge > domain.MaxAge {
		return nil, dErrors.New(dErrors.CodeInvalidAge, "minimum age is out of range")
	}
	now := s.now(ctx)

	result := &models.CheckResult{Verified: true}
	state, err := s.store.FindSubject(ctx, subject)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		result = &models.CheckResult{Reason: models.ReasonNoCredential}
	case err != nil:
		return nil, wrapInternal(err, "failed to load subject state")
	case state.Revoked:
		result = &models.CheckResult{Reason: models.ReasonRevoked}
	case !now.Before(state.ExpiresAt):
		result = &models.CheckResult{Reason: models.ReasonExpired}
	case state.Age < minAge:
		result = &models.CheckResult{Reason: models.ReasonAgeRestricted}
	}

	decision := audit.DecisionGranted
	if !result.Verified {
		decision = audit.DecisionDenied
	}
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Subject:   subject.Hex(),
		EventID:   eventType,
		Action:    audit.ActionThirdPartyCheck,
		Decision:  decision,
		Reason:    result.Reason,
	})
	return result, nil
}

// SetScore overrides the reputation score. The score may be raised but
// never set below what attendance alone guarantees.
func (s *Service) SetScore(ctx context.Context, subject domain.SubjectID, score int) (*models.Reputation, error) {
	unlock := s.lockSubject(subject)
	defer unlock()

	state, err := s.loadState(ctx, subject)
	if err != nil {
		return nil, err
	}
	floor := models.ScoreFloor(state.Reputation.Attendance)
	if score < floor || score > models.MaxScore {
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("score must be between %d and %d", floor, models.MaxScore))
	}
	state.Reputation.Score = score
	if err := s.store.SaveSubject(ctx, state); err != nil {
		return nil, wrapInternal(err, "failed to persist score")
	}

	s.emit(ctx, audit.Event{
		Timestamp: s.now(ctx),
		Subject:   subject.Hex(),
		Action:    audit.ActionScoreOverridden,
		Decision:  audit.DecisionGranted,
	})
	rep := state.Reputation
	return &rep, nil
}

// IsAnchored asks every configured writer whether the subject is anchored.
func (s *Service) IsAnchored(ctx context.Context, subject domain.SubjectID) map[string]bool {
	if s.anchors == nil {
		return map[string]bool{}
	}
	return s.anchors.IsAnchored(ctx, subject)
}

// VerifyAttestation checks a presented attestation against the issuer key.
// Revocation is not consulted.
func (s *Service) VerifyAttestation(a attestation.Attestation) (bool, error) {
	return s.core.Attestations.Verify(a)
}

// VerifyProof checks an inclusion proof without consulting the log.
func (s *Service) VerifyProof(leaf common.Hash, proof []common.Hash, root common.Hash) bool {
	return merkle.Verify(leaf, proof, root)
}

// MerkleRoot returns the current attendance root and leaf count.
func (s *Service) MerkleRoot() (common.Hash, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Root(), s.log.Len()
}

// Registrations lists an event's registrations in registration order.
func (s *Service) Registrations(ctx context.Context, eventID domain.EventID) ([]models.Registration, error) {
	regs, err := s.store.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, wrapInternal(err, "failed to list registrations")
	}
	return regs, nil
}

// UpsertEvent creates or replaces a catalog entry.
func (s *Service) UpsertEvent(ctx context.Context, event models.Event) error {
	if s.catalog == nil {
		return dErrors.New(dErrors.CodeNotInitialized, "event catalog not configured")
	}
	id, err := domain.ParseEventID(string(event.ID))
	if err != nil {
		return err
	}
	event.ID = id
	if event.Requirements.MinAge < 0 || event.Requirements.MinAge > 255 {
		return dErrors.New(dErrors.CodeInvalidAge, "minimum age must be between 0 and 255")
	}
	if err := s.catalog.UpsertEvent(ctx, event); err != nil {
		if errors.Is(err, sentinel.ErrInvalidInput) {
			return dErrors.New(dErrors.CodeInvalidInput, "capacity must not be negative")
		}
		return wrapInternal(err, "failed to save event")
	}
	return nil
}

func (s *Service) ListEvents(ctx context.Context) ([]models.Event, error) {
	if s.catalog == nil {
		return []models.Event{}, nil
	}
	events, err := s.catalog.ListEvents(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to list events")
	}
	return events, nil
}
