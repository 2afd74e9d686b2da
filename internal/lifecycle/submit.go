package lifecycle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"racepass/internal/anchor"
	"racepass/internal/attestation"
	"racepass/internal/audit"
	"racepass/internal/commitment"
	"racepass/internal/credential"
	"racepass/internal/lifecycle/models"
	"racepass/internal/platform/tracer"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/sentinel"
)

const identityCommitmentValue = "verified"

// Submit issues a credential for a validated application.
//
// Order: validate, rate limit, duplicate check, build and sign, commit,
// pre-sign attestations, persist, anchor, record anchor results. Nothing is
// stored unless every cryptographic step succeeded. The subject lock is
// released while the writers run and reacquired to record their results.
// Anchor failures and cancellation are recorded in the receipt; they never
// fail issuance.
func (s *Service) Submit(ctx context.Context, app models.Application) (receipt *models.IssuanceReceipt, err error) {
	start := time.Now()
	now := s.now(ctx).Truncate(time.Millisecond)

	valid, err := validateApplication(app, s.core.DefaultCountry, now)
	if err != nil {
		return nil, err
	}
	subject := valid.subject

	ctx, span := s.tracer.Start(ctx, tracer.SpanSubmit, tracer.String(tracer.AttrSubject, subject.Hex()))
	defer func() { span.End(err) }()

	state, err := s.issue(ctx, subject, valid, now)
	if err != nil {
		return nil, err
	}

	state.Anchors = s.anchor(ctx, subject, state)
	if err := s.recordAnchors(context.WithoutCancel(ctx), state); err != nil {
		s.logger.ErrorContext(ctx, "failed to record anchor results",
			"subject", subject.Hex(),
			"error", err,
		)
	}

	s.metrics.IncIssued(state.AgeCategory)
	s.metrics.ObserveIssuance(time.Since(start))
	span.SetAttributes(tracer.String(tracer.AttrAgeCategory, state.AgeCategory))
	s.emit(ctx, audit.Event{
		Timestamp: now,
		Subject:   subject.Hex(),
		Action:    audit.ActionCredentialIssued,
		Decision:  audit.DecisionGranted,
	})
	s.logger.InfoContext(ctx, "credential issued",
		"subject", subject.Hex(),
		"credential_id", state.Credential.ID,
		"age_category", state.AgeCategory,
		"anchored", state.Anchors.AnySucceeded(),
	)

	issuerAddr, err := s.core.Keys.Address()
	if err != nil {
		return nil, err
	}
	return &models.IssuanceReceipt{
		CredentialID: state.Credential.ID,
		Fingerprint:  state.Fingerprint,
		IsAdult:      state.IsAdult,
		AgeCategory:  state.AgeCategory,
		ExpiresAt:    state.ExpiresAt,
		CryptoProofs: models.IssuanceProofs{
			Commitments:      state.Commitments.Public(),
			AttestationTypes: state.AttestationTypes(),
			Issuer:           issuerAddr,
		},
		Anchors: state.Anchors,
	}, nil
}

// issue runs the checks and signing steps under the subject lock and
// persists the new state without anchor results.
func (s *Service) issue(ctx context.Context, subject domain.SubjectID, valid validApplication, now time.Time) (*models.SubjectState, error) {
	unlock := s.lockSubject(subject)
	defer unlock()

	if err := s.checkRateLimit(ctx, subject, now); err != nil {
		return nil, err
	}

	existing, err := s.store.FindSubject(ctx, subject)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapInternal(err, "failed to load subject state")
	}
	if existing != nil && existing.Blocking(now) {
		return nil, dErrors.New(dErrors.CodeDuplicateSubject, "subject already holds an active credential")
	}

	state, err := s.buildState(subject, valid, now)
	if err != nil {
		return nil, err
	}
	state.Anchors = anchor.Results{}
	if err := s.store.SaveSubject(context.WithoutCancel(ctx), state); err != nil {
		return nil, wrapInternal(err, "failed to persist subject state")
	}
	return state, nil
}

// recordAnchors stores results on the credential they were produced for. A
// credential replaced while the lock was released keeps its own results.
func (s *Service) recordAnchors(ctx context.Context, issued *models.SubjectState) error {
	unlock := s.lockSubject(issued.Subject)
	defer unlock()

	current, err := s.store.FindSubject(ctx, issued.Subject)
	if err != nil {
		return err
	}
	if current.Fingerprint != issued.Fingerprint {
		return nil
	}
	current.Anchors = issued.Anchors
	return s.store.SaveSubject(ctx, current)
}

func (s *Service) checkRateLimit(ctx context.Context, subject domain.SubjectID, now time.Time) error {
	res, err := s.core.Limiter.Hit(ctx, subject.Hex(), now)
	if err != nil {
		return wrapInternal(err, "failed to check rate limit")
	}
	if res.Limited {
		s.metrics.IncRateLimited()
		s.logger.WarnContext(ctx, "issuance rate limited",
			"subject", subject.Hex(),
			"count", res.Count,
			"limit", res.Limit,
		)
		return dErrors.New(dErrors.CodeRateLimited, "too many issuance attempts, retry later")
	}
	return nil
}

// buildState runs every signing step of issuance and returns the fresh state.
func (s *Service) buildState(subject domain.SubjectID, valid validApplication, now time.Time) (*models.SubjectState, error) {
	cred, err := s.core.Credentials.Build(subject, now)
	if err != nil {
		return nil, err
	}
	cred, err = s.core.Credentials.Sign(cred, now)
	if err != nil {
		return nil, err
	}
	fp, err := credential.Fingerprint(cred)
	if err != nil {
		return nil, err
	}

	ageCommitment, err := commitment.Commit(strconv.Itoa(valid.age))
	if err != nil {
		return nil, err
	}
	identityCommitment, err := commitment.Commit(identityCommitmentValue)
	if err != nil {
		return nil, err
	}

	claims := []string{
		string(attestation.IdentityVerified()),
		string(attestation.CountryResident(valid.country)),
	}
	if valid.age >= 18 {
		claims = append(claims, string(attestation.AgeAbove(18)))
	}
	if valid.age >= 21 {
		claims = append(claims, string(attestation.AgeAbove(21)))
	}
	base := uint64(now.UnixMilli())
	attestations := make(map[attestation.Claim]attestation.Attestation, len(claims))
	for i, claim := range claims {
		a, err := s.core.Attestations.Sign(subject, claim, base+uint64(i))
		if err != nil {
			return nil, err
		}
		attestations[a.Claim] = a
	}

	return &models.SubjectState{
		Subject:      subject,
		Credential:   cred,
		Fingerprint:  fp,
		Attestations: attestations,
		Commitments: models.Commitments{
			Age:      secretOnly(ageCommitment),
			Identity: secretOnly(identityCommitment),
		},
		Age:         valid.age,
		AgeCategory: domain.AgeCategory(valid.age),
		IsAdult:     valid.age >= 18,
		Country:     valid.country,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.core.Credentials.TTL()),
		Reputation:  models.NewReputation(),
	}, nil
}

// secretOnly drops the committed value so it never reaches the store.
func secretOnly(c commitment.Commitment) commitment.Commitment {
	c.Value = ""
	return c
}

// anchor fans the fingerprint out to every configured writer. No lock is
// held here.
func (s *Service) anchor(ctx context.Context, subject domain.SubjectID, state *models.SubjectState) anchor.Results {
	if s.anchors == nil {
		return anchor.Results{}
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanAnchor, tracer.String(tracer.AttrSubject, subject.Hex()))
	results := s.anchors.Anchor(ctx, subject, state.Fingerprint)
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	span.SetAttributes(
		tracer.Int64(tracer.AttrAnchorCount, int64(len(results))),
		tracer.Int64(tracer.AttrAnchorOK, int64(ok)),
	)
	span.End(nil)
	if ok < len(results) {
		s.logger.WarnContext(ctx, "fingerprint not anchored on every writer",
			"subject", subject.Hex(),
			"writers", len(results),
			"succeeded", ok,
		)
	}
	return results
}
