package lifecycle_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"racepass/internal/anchor"
	"racepass/internal/anchor/memory"
	"racepass/internal/anchor/mocks"
	"racepass/internal/audit"
	"racepass/internal/commitment"
	"racepass/internal/credential"
	"racepass/internal/eligibility"
	"racepass/internal/issuer"
	"racepass/internal/lifecycle"
	"racepass/internal/lifecycle/models"
	"racepass/internal/lifecycle/store"
	"racepass/internal/merkle"
	"racepass/internal/platform/config"
	"racepass/internal/ratelimit"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/testutil"
)

var (
	asha  = testutil.TestSubjects.Asha
	bilal = testutil.TestSubjects.Bilal
	chen  = testutil.TestSubjects.Chen
	minor = testutil.TestSubjects.Minor
)

type pinnedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *pinnedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *pinnedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type LifecycleSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *pinnedClock
	keys     *issuer.KeyService
	store    *store.InMemoryStore
	catalog  *store.InMemoryEventCatalog
	activity *audit.InMemoryStore
	writer   *memory.Writer
	service  *lifecycle.Service
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &pinnedClock{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	s.keys = issuer.NewKeyService()
	s.Require().NoError(s.keys.InitializeDemo())
	s.store = store.NewInMemory()
	s.catalog = store.NewInMemoryEventCatalog()
	s.activity = audit.NewInMemoryStore()
	s.writer = memory.New()
	s.service = s.newService(anchor.Named{Name: "memory", Writer: s.writer})
}

func (s *LifecycleSuite) newService(writers ...anchor.Named) *lifecycle.Service {
	core, err := lifecycle.NewCore(config.Server{
		Credential: config.Credential{
			MACSecret: config.DefaultMACSecret,
			TTL:       credential.DefaultTTL,
		},
	}, s.keys, ratelimit.NewInMemoryLimiter(ratelimit.DefaultPolicy))
	s.Require().NoError(err)

	d := anchor.NewDispatcher(writers, anchor.WithTimeout(time.Second), anchor.WithClock(s.clock.Now))
	d.Start()
	s.T().Cleanup(d.Close)

	svc, err := lifecycle.New(core, s.store,
		lifecycle.WithClock(s.clock.Now),
		lifecycle.WithAnchors(d),
		lifecycle.WithCatalog(s.catalog),
		lifecycle.WithAuditor(audit.NewPublisher(s.activity)),
	)
	s.Require().NoError(err)
	return svc
}

func application(subject, dob string) models.Application {
	return testutil.NewApplication(subject).WithDOB(dob).Build()
}

func (s *LifecycleSuite) issue(subject, dob string) *models.IssuanceReceipt {
	receipt, err := s.service.Submit(s.ctx, application(subject, dob))
	s.Require().NoError(err)
	return receipt
}

func (s *LifecycleSuite) actions(subject string) []audit.Action {
	events, err := s.activity.ListBySubject(s.ctx, domain.MustSubjectID(subject).Hex())
	s.Require().NoError(err)
	out := make([]audit.Action, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *LifecycleSuite) TestIssuanceWithFailingAnchors() {
	ctrl := gomock.NewController(s.T())
	first := mocks.NewMockWriter(ctrl)
	second := mocks.NewMockWriter(ctrl)
	first.EXPECT().Anchor(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("rpc down"))
	second.EXPECT().Anchor(gomock.Any(), gomock.Any(), gomock.Any()).Return("", anchor.ErrUnavailable)
	svc := s.newService(anchor.Named{Name: "polygon", Writer: first}, anchor.Named{Name: "base", Writer: second})

	receipt, err := svc.Submit(s.ctx, application(asha, "2000-05-10"))
	s.Require().NoError(err)

	s.True(receipt.IsAdult)
	s.Equal("21+", receipt.AgeCategory)
	s.Equal(s.clock.Now().Add(credential.DefaultTTL), receipt.ExpiresAt)
	s.Equal([]string{"identityVerified", "countryResident:IN", "ageAbove:18", "ageAbove:21"}, receipt.CryptoProofs.AttestationTypes)
	s.NotEqual(receipt.CryptoProofs.Commitments.Age, receipt.CryptoProofs.Commitments.Identity)
	addr, err := s.keys.Address()
	s.Require().NoError(err)
	s.Equal(addr, receipt.CryptoProofs.Issuer)

	s.Require().Len(receipt.Anchors, 2)
	s.False(receipt.Anchors.AnySucceeded())
	s.Equal(dErrors.CodeAnchorFailure, receipt.Anchors["polygon"].Code)
	s.Equal(dErrors.CodeAnchorUnavailable, receipt.Anchors["base"].Code)

	view, err := svc.Fetch(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)
	s.Equal(models.NewReputation(), view.Reputation)
	s.Equal(receipt.Fingerprint, view.Fingerprint)
	s.Len(view.Attestations, 4)
	for _, a := range view.Attestations {
		ok, err := svc.VerifyAttestation(a)
		s.Require().NoError(err)
		s.True(ok, a.Claim)
	}
	fp, err := credential.Fingerprint(view.Credential)
	s.Require().NoError(err)
	s.Equal(view.Fingerprint, fp)
	s.Equal([]audit.Action{audit.ActionCredentialIssued}, s.actions(asha))
}

func (s *LifecycleSuite) TestIssuanceAgeCategories() {
	cases := []struct {
		subject  string
		dob      string
		adult    bool
		category string
		types    []string
	}{
		{subject: bilal, dob: "2006-01-15", adult: true, category: "18+", types: []string{"identityVerified", "countryResident:IN", "ageAbove:18"}},
		{subject: chen, dob: "2005-01-16", adult: true, category: "18+", types: []string{"identityVerified", "countryResident:IN", "ageAbove:18"}},
		{subject: minor, dob: "2008-06-01", adult: false, category: "minor", types: []string{"identityVerified", "countryResident:IN"}},
	}
	for _, tc := range cases {
		s.Run(tc.dob, func() {
			receipt := s.issue(tc.subject, tc.dob)
			s.Equal(tc.adult, receipt.IsAdult)
			s.Equal(tc.category, receipt.AgeCategory)
			s.Equal(tc.types, receipt.CryptoProofs.AttestationTypes)
		})
	}
}

func (s *LifecycleSuite) TestSubmitValidation() {
	cases := []struct {
		name string
		app  models.Application
		code dErrors.Code
	}{
		{name: "short subject", app: models.Application{Subject: "0x1234", Name: "A", DOB: "2000-01-01", NationalID: "123456789012"}, code: dErrors.CodeInvalidSubject},
		{name: "blank name", app: models.Application{Subject: asha, Name: "  ", DOB: "2000-01-01", NationalID: "123456789012"}, code: dErrors.CodeInvalidName},
		{name: "impossible date", app: models.Application{Subject: asha, Name: "A", DOB: "2001-02-30", NationalID: "123456789012"}, code: dErrors.CodeInvalidDob},
		{name: "future birth", app: models.Application{Subject: asha, Name: "A", DOB: "2030-01-01", NationalID: "123456789012"}, code: dErrors.CodeInvalidAge},
		{name: "too old", app: models.Application{Subject: asha, Name: "A", DOB: "1850-01-01", NationalID: "123456789012"}, code: dErrors.CodeInvalidAge},
		{name: "eleven digits", app: models.Application{Subject: asha, Name: "A", DOB: "2000-01-01", NationalID: "12345678901"}, code: dErrors.CodeInvalidID},
		{name: "letters in id", app: models.Application{Subject: asha, Name: "A", DOB: "2000-01-01", NationalID: "12345678901X"}, code: dErrors.CodeInvalidID},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Submit(s.ctx, tc.app)
			s.Require().Error(err)
			s.Equal(tc.code, dErrors.CodeOf(err))
			s.Equal(dErrors.KindValidation, dErrors.CodeOf(err).Kind())
		})
	}
	_, err := s.service.Fetch(s.ctx, domain.MustSubjectID(asha))
	s.True(dErrors.HasCode(err, dErrors.CodeNoCredential))
}

func (s *LifecycleSuite) TestDuplicateThenRevokeThenReissue() {
	first := s.issue(asha, "2000-05-10")

	_, err := s.service.Submit(s.ctx, application(asha, "2000-05-10"))
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateSubject))

	_, err = s.service.Revoke(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)

	third := s.issue(asha, "2000-05-10")
	s.NotEqual(first.CredentialID, third.CredentialID)
	s.NotEqual(first.Fingerprint, third.Fingerprint)
}

func (s *LifecycleSuite) TestExpiredCredentialCanBeReissued() {
	s.issue(asha, "2000-05-10")
	s.clock.Advance(credential.DefaultTTL)
	s.issue(asha, "2000-05-10")
}

func (s *LifecycleSuite) TestRevokeIsIdempotent() {
	s.issue(asha, "2000-05-10")
	subject := domain.MustSubjectID(asha)

	first, err := s.service.Revoke(s.ctx, subject)
	s.Require().NoError(err)
	s.Require().NotNil(first.RevokedAt)

	s.clock.Advance(time.Hour)
	second, err := s.service.Revoke(s.ctx, subject)
	s.Require().NoError(err)
	s.Equal(*first.RevokedAt, *second.RevokedAt)
	s.Equal(first.Credential, second.Credential)
	s.Equal([]audit.Action{audit.ActionCredentialIssued, audit.ActionCredentialRevoked}, s.actions(asha))

	_, err = s.service.Revoke(s.ctx, domain.MustSubjectID(bilal))
	s.True(dErrors.HasCode(err, dErrors.CodeNoCredential))
}

func (s *LifecycleSuite) TestRateLimitIsPerSubject() {
	for i := range 6 {
		subject := "0x" + strconv.Itoa(i+1) + "000000000000000000000000000000000000000"
		s.issue(subject, "2000-05-10")
	}

	subject := domain.MustSubjectID(asha)
	for range 5 {
		s.issue(asha, "2000-05-10")
		_, err := s.service.Revoke(s.ctx, subject)
		s.Require().NoError(err)
	}
	_, err := s.service.Submit(s.ctx, application(asha, "2000-05-10"))
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	s.clock.Advance(ratelimit.DefaultPolicy.Window)
	s.issue(asha, "2000-05-10")
}

func (s *LifecycleSuite) TestCancelledAnchorStillIssues() {
	slow := memory.New(memory.WithDelay(time.Minute))
	svc := s.newService(anchor.Named{Name: "slow", Writer: slow})

	ctx, cancel := context.WithCancel(s.ctx)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	receipt, err := svc.Submit(ctx, application(asha, "2000-05-10"))
	s.Require().NoError(err)
	s.False(receipt.Anchors["slow"].Success)
	s.Equal(anchor.ReasonCancelled, receipt.Anchors["slow"].Reason)

	view, err := svc.Fetch(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)
	s.Equal(receipt.CredentialID, view.Credential.ID)
	s.Equal(anchor.ReasonCancelled, view.Anchors["slow"].Reason)
}

func (s *LifecycleSuite) TestSubjectUnlockedWhileAnchoring() {
	ctrl := gomock.NewController(s.T())
	writer := mocks.NewMockWriter(ctrl)
	entered := make(chan struct{})
	release := make(chan struct{})
	writer.EXPECT().Anchor(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, domain.SubjectID, common.Hash) (string, error) {
			close(entered)
			<-release
			return "tx-1", nil
		})
	svc := s.newService(anchor.Named{Name: "gated", Writer: writer})

	done := make(chan *models.IssuanceReceipt, 1)
	go func() {
		receipt, err := svc.Submit(s.ctx, application(asha, "2000-05-10"))
		s.NoError(err)
		done <- receipt
	}()
	<-entered

	view, err := svc.Fetch(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)
	s.Empty(view.Anchors)

	_, err = svc.Submit(s.ctx, application(asha, "2000-05-10"))
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateSubject))

	close(release)
	receipt := <-done
	s.Require().NotNil(receipt)
	s.True(receipt.Anchors["gated"].Success)

	view, err = svc.Fetch(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)
	s.True(view.Anchors["gated"].Success)
	s.Equal(receipt.CredentialID, view.Credential.ID)
}

func (s *LifecycleSuite) TestAnchoredFingerprintMatchesReceipt() {
	receipt := s.issue(asha, "2000-05-10")
	s.True(receipt.Anchors["memory"].Success)

	entry, ok := s.writer.Lookup(domain.MustSubjectID(asha))
	s.Require().True(ok)
	s.Equal(receipt.Fingerprint, entry.Fingerprint)
	s.Equal(map[string]bool{"memory": true}, s.service.IsAnchored(s.ctx, domain.MustSubjectID(asha)))
}

func (s *LifecycleSuite) TestRegistrationBelowMinimumAge() {
	s.issue(minor, "2008-06-01")

	_, err := s.service.Register(s.ctx, domain.MustSubjectID(minor), "night-race",
		&eligibility.Requirements{MinAge: 18, RequireAge: true})
	s.True(dErrors.HasCode(err, dErrors.CodeAgeRestricted))

	regs, err := s.service.Registrations(s.ctx, "night-race")
	s.Require().NoError(err)
	s.Empty(regs)
	s.Equal([]audit.Action{audit.ActionCredentialIssued, audit.ActionRegistrationDenied}, s.actions(minor))
}

func (s *LifecycleSuite) TestRegistrationDisclosures() {
	s.issue(asha, "2000-05-10")
	subject := domain.MustSubjectID(asha)

	receipt, err := s.service.Register(s.ctx, subject, "grand-prix",
		&eligibility.Requirements{MinAge: 21, RequireAge: true, RequireIdentity: true, RequireCountry: true})
	s.Require().NoError(err)

	s.Regexp(`^RP-[0-9A-F]{24}$`, receipt.QRToken)
	s.Equal(eligibility.Disclosures{AgeAboveMin: true, IdentityVerified: true, CountryResident: true}, receipt.Disclosures)
	s.Require().Len(receipt.CryptoProofs.Attestations, 3)
	s.EqualValues("ageAbove:21", receipt.CryptoProofs.Attestations[0].Claim)
	s.EqualValues("identityVerified", receipt.CryptoProofs.Attestations[1].Claim)
	s.EqualValues("countryResident:IN", receipt.CryptoProofs.Attestations[2].Claim)
	base := receipt.CryptoProofs.Attestations[0].Nonce
	s.Equal(uint64(s.clock.Now().UnixMilli()), base)
	s.Equal(base+1, receipt.CryptoProofs.Attestations[1].Nonce)
	s.Len(receipt.CryptoProofs.TicketSignature, issuer.SignatureLength)

	_, err = s.service.Register(s.ctx, subject, "grand-prix", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRegistered))
}

func (s *LifecycleSuite) TestRegistrationRequiresActiveCredential() {
	_, err := s.service.Register(s.ctx, domain.MustSubjectID(asha), "grand-prix", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNoCredential))

	s.issue(asha, "2000-05-10")
	_, err = s.service.Revoke(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)
	_, err = s.service.Register(s.ctx, domain.MustSubjectID(asha), "grand-prix", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeRevoked))

	s.issue(bilal, "2000-05-10")
	s.clock.Advance(credential.DefaultTTL)
	_, err = s.service.Register(s.ctx, domain.MustSubjectID(bilal), "grand-prix", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))
}

func (s *LifecycleSuite) TestCatalogRequirementsAndCapacity() {
	s.Require().NoError(s.service.UpsertEvent(s.ctx, models.Event{
		ID:           "night-race",
		Name:         "Night Race",
		Capacity:     1,
		Requirements: eligibility.Requirements{MinAge: 18, RequireAge: true},
	}))
	s.issue(asha, "2000-05-10")
	s.issue(bilal, "2000-05-10")
	s.issue(minor, "2008-06-01")

	_, err := s.service.Register(s.ctx, domain.MustSubjectID(minor), "night-race", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeAgeRestricted))

	receipt, err := s.service.Register(s.ctx, domain.MustSubjectID(asha), "night-race", nil)
	s.Require().NoError(err)
	s.True(receipt.Disclosures.AgeAboveMin)

	_, err = s.service.Register(s.ctx, domain.MustSubjectID(bilal), "night-race", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeEventFull))

	events, err := s.service.ListEvents(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("Night Race", events[0].Name)

	err = s.service.UpsertEvent(s.ctx, models.Event{ID: "bad", Capacity: -1})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *LifecycleSuite) TestConcurrentRegistrationSucceedsOnce() {
	s.issue(asha, "2000-05-10")
	subject := domain.MustSubjectID(asha)

	result := testutil.RunConcurrent(8, func(int) error {
		_, err := s.service.Register(s.ctx, subject, "grand-prix", nil)
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(7), result.Conflicts)

	regs, err := s.service.Registrations(s.ctx, "grand-prix")
	s.Require().NoError(err)
	s.Len(regs, 1)
}

func (s *LifecycleSuite) TestConcurrentRegistrationRespectsCapacity() {
	s.Require().NoError(s.service.UpsertEvent(s.ctx, models.Event{ID: "sprint", Capacity: 2}))
	subjects := []string{asha, bilal, chen, "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"}
	for _, subj := range subjects {
		s.issue(subj, "2000-05-10")
	}

	result := testutil.RunConcurrent(len(subjects), func(i int) error {
		_, err := s.service.Register(s.ctx, domain.MustSubjectID(subjects[i]), "sprint", nil)
		return err
	})
	s.Equal(int32(2), result.Successes)
	s.Equal(int32(2), result.Conflicts)
}

func (s *LifecycleSuite) TestCancelledRegistrationLeavesNothing() {
	s.issue(asha, "2000-05-10")
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.service.Register(ctx, domain.MustSubjectID(asha), "grand-prix", nil)
	s.ErrorIs(err, context.Canceled)

	regs, err := s.service.Registrations(s.ctx, "grand-prix")
	s.Require().NoError(err)
	s.Empty(regs)
	s.Equal([]audit.Action{audit.ActionCredentialIssued}, s.actions(asha))
}

func (s *LifecycleSuite) TestTicketSingleUse() {
	s.issue(asha, "2000-05-10")
	s.Require().NoError(s.service.UpsertEvent(s.ctx, models.Event{ID: "grand-prix", Name: "Grand Prix"}))
	reg, err := s.service.Register(s.ctx, domain.MustSubjectID(asha), "grand-prix", nil)
	s.Require().NoError(err)

	scan, err := s.service.Scan(s.ctx, reg.QRToken)
	s.Require().NoError(err)
	s.True(scan.SignatureVerified)
	s.Equal(reg.CryptoProofs.TicketHash, scan.TicketHash)
	s.Equal(s.clock.Now(), scan.UsedAt)
	s.Require().NotNil(scan.Event)
	s.Equal("Grand Prix", scan.Event.Name)

	root, leaves := s.service.MerkleRoot()
	s.Equal(scan.MerkleRoot, root)
	s.Equal(1, leaves)

	_, err = s.service.Scan(s.ctx, reg.QRToken)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyUsed))
	after, leaves := s.service.MerkleRoot()
	s.Equal(root, after)
	s.Equal(1, leaves)

	_, err = s.service.Scan(s.ctx, "RP-000000000000000000000000")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTicket))
}

func (s *LifecycleSuite) TestConcurrentScanConsumesOnce() {
	s.issue(asha, "2000-05-10")
	reg, err := s.service.Register(s.ctx, domain.MustSubjectID(asha), "grand-prix", nil)
	s.Require().NoError(err)

	result := testutil.RunConcurrent(6, func(int) error {
		_, err := s.service.Scan(s.ctx, reg.QRToken)
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(5), result.Conflicts)

	rep, err := s.service.Reputation(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)
	s.Equal(1, rep.Attendance)
}

func (s *LifecycleSuite) TestAttendanceMerkleProofs() {
	subjects := []string{asha, bilal, chen}
	events := []domain.EventID{"round-1", "round-2", "round-3"}
	for _, subj := range subjects {
		s.issue(subj, "2000-05-10")
		for _, ev := range events {
			reg, err := s.service.Register(s.ctx, domain.MustSubjectID(subj), ev, nil)
			s.Require().NoError(err)
			_, err = s.service.Scan(s.ctx, reg.QRToken)
			s.Require().NoError(err)
		}
	}

	root, n := s.service.MerkleRoot()
	s.Require().Equal(9, n)

	for _, subj := range subjects {
		rep, err := s.service.Reputation(s.ctx, domain.MustSubjectID(subj))
		s.Require().NoError(err)
		s.Equal(3, rep.Attendance)
		s.Equal(65, rep.Score)
		s.Equal("Silver", rep.Tier)
		s.Equal(root, rep.Merkle.Root)
		s.Require().NotNil(rep.Merkle.Leaf)
		s.Equal(merkle.AttendanceLeaf(domain.MustSubjectID(subj), "round-3"), *rep.Merkle.Leaf)
		s.True(s.service.VerifyProof(*rep.Merkle.Leaf, rep.Merkle.Proof, root))

		for _, e := range rep.Events {
			s.Equal(merkle.AttendanceLeaf(domain.MustSubjectID(subj), e.EventID), e.LeafHash)
		}

		tampered := *rep.Merkle.Leaf
		tampered[0] ^= 0x01
		s.False(s.service.VerifyProof(tampered, rep.Merkle.Proof, root))
	}
}

func (s *LifecycleSuite) TestReputationWithoutAttendance() {
	s.issue(asha, "2000-05-10")
	rep, err := s.service.Reputation(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)
	s.Equal(50, rep.Score)
	s.Equal("Bronze", rep.Tier)
	s.Nil(rep.Merkle.Leaf)
	s.Empty(rep.Merkle.Proof)
	s.Empty(rep.Events)
}

func (s *LifecycleSuite) TestScoreOverride() {
	s.issue(asha, "2000-05-10")
	subject := domain.MustSubjectID(asha)
	reg, err := s.service.Register(s.ctx, subject, "grand-prix", nil)
	s.Require().NoError(err)
	_, err = s.service.Scan(s.ctx, reg.QRToken)
	s.Require().NoError(err)

	_, err = s.service.SetScore(s.ctx, subject, 54)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	_, err = s.service.SetScore(s.ctx, subject, 101)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	rep, err := s.service.SetScore(s.ctx, subject, 85)
	s.Require().NoError(err)
	s.Equal(85, rep.Score)
	s.Equal(1, rep.Attendance)

	view, err := s.service.Reputation(s.ctx, subject)
	s.Require().NoError(err)
	s.Equal("Gold", view.Tier)
}

func (s *LifecycleSuite) TestThirdPartyCheck() {
	s.issue(asha, "2000-05-10")
	s.issue(minor, "2008-06-01")
	s.issue(bilal, "2000-05-10")
	_, err := s.service.Revoke(s.ctx, domain.MustSubjectID(bilal))
	s.Require().NoError(err)

	cases := []struct {
		subject string
		minAge  int
		want    models.CheckResult
	}{
		{subject: asha, minAge: 21, want: models.CheckResult{Verified: true}},
		{subject: minor, minAge: 18, want: models.CheckResult{Reason: models.ReasonAgeRestricted}},
		{subject: minor, minAge: 0, want: models.CheckResult{Verified: true}},
		{subject: bilal, minAge: 18, want: models.CheckResult{Reason: models.ReasonRevoked}},
		{subject: chen, minAge: 18, want: models.CheckResult{Reason: models.ReasonNoCredential}},
	}
	for _, tc := range cases {
		got, err := s.service.Check(s.ctx, domain.MustSubjectID(tc.subject), tc.minAge, "motorsport")
		s.Require().NoError(err)
		s.Equal(tc.want, *got, tc.subject)
	}

	s.clock.Advance(credential.DefaultTTL)
	got, err := s.service.Check(s.ctx, domain.MustSubjectID(asha), 18, "motorsport")
	s.Require().NoError(err)
	s.Equal(models.ReasonExpired, got.Reason)
}

func (s *LifecycleSuite) TestOpeningsOpenCommitments() {
	receipt := s.issue(asha, "2000-05-10")
	openings, err := s.service.Openings(s.ctx, domain.MustSubjectID(asha))
	s.Require().NoError(err)

	s.Equal(receipt.CryptoProofs.Commitments.Age, openings.Age.Commitment)
	s.True(commitment.Open("25", openings.Age.Secret, openings.Age.Commitment))
	s.False(commitment.Open("24", openings.Age.Secret, openings.Age.Commitment))
	s.True(commitment.Open("verified", openings.Identity.Secret, openings.Identity.Commitment))
}

func (s *LifecycleSuite) TestRestoreRebuildsLog() {
	s.issue(asha, "2000-05-10")
	for _, ev := range []domain.EventID{"round-1", "round-2"} {
		reg, err := s.service.Register(s.ctx, domain.MustSubjectID(asha), ev, nil)
		s.Require().NoError(err)
		_, err = s.service.Scan(s.ctx, reg.QRToken)
		s.Require().NoError(err)
	}
	root, _ := s.service.MerkleRoot()

	restarted := s.newService()
	s.Require().NoError(restarted.Restore(s.ctx))
	restoredRoot, n := restarted.MerkleRoot()
	s.Equal(root, restoredRoot)
	s.Equal(2, n)
}
