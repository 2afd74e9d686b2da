package attestation

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"

	"racepass/internal/eligibility"
	"racepass/internal/hashing"
	"racepass/internal/issuer"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

// AttestationSuite tests that every produced attestation recovers to the issuer.
type AttestationSuite struct {
	suite.Suite
	keys    *issuer.KeyService
	svc     *Service
	subject domain.SubjectID
}

func TestAttestationSuite(t *testing.T) {
	suite.Run(t, new(AttestationSuite))
}

func (s *AttestationSuite) SetupTest() {
	s.keys = issuer.NewKeyService()
	s.Require().NoError(s.keys.InitializeDemo())
	s.svc = NewService(s.keys)
	s.subject = domain.MustSubjectID("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
}

func (s *AttestationSuite) TestSignRecoversToIssuer() {
	for _, claim := range []string{"identityVerified", "countryResident:IN", "ageAbove:18", "ageAbove:21"} {
		a, err := s.svc.Sign(s.subject, claim, 1717200000000)
		s.Require().NoError(err, claim)

		addr, err := s.keys.Address()
		s.Require().NoError(err)
		recovered, err := issuer.RecoverPersonal(a.MessageHash, a.Signature)
		s.Require().NoError(err)
		s.Equal(addr, recovered)
		s.Equal(addr, a.Issuer)

		ok, err := s.svc.Verify(a)
		s.Require().NoError(err)
		s.True(ok, claim)
	}
}

func (s *AttestationSuite) TestMessageHashLayout() {
	a, err := s.svc.Sign(s.subject, "identityVerified", 7)
	s.Require().NoError(err)

	s.Equal(hashing.Keccak256([]byte("identityVerified")), a.ClaimHash)
	nonce := make([]byte, 32)
	nonce[31] = 7
	s.Equal(hashing.Keccak256(s.subject.Bytes(), a.ClaimHash.Bytes(), nonce), a.MessageHash)
	s.Equal(a.Signature[64], a.V)
	s.Equal([]byte(a.Signature[:32]), a.R.Bytes())
}

func (s *AttestationSuite) TestVerifyRejectsTampering() {
	a, err := s.svc.Sign(s.subject, "ageAbove:18", 42)
	s.Require().NoError(err)

	cases := map[string]func(Attestation) Attestation{
		"claim":   func(x Attestation) Attestation { x.Claim = "ageAbove:21"; return x },
		"nonce":   func(x Attestation) Attestation { x.Nonce++; return x },
		"subject": func(x Attestation) Attestation { x.Subject[0] ^= 0xff; return x },
		"signature": func(x Attestation) Attestation {
			sig := append([]byte(nil), x.Signature...)
			sig[10] ^= 0x01
			x.Signature = sig
			return x
		},
		"unknown claim": func(x Attestation) Attestation { x.Claim = "isCool"; return x },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			ok, err := s.svc.Verify(mutate(a))
			s.Require().NoError(err)
			s.False(ok)
		})
	}

	s.Run("recorded issuer must match the configured issuer", func() {
		other, err := crypto.GenerateKey()
		s.Require().NoError(err)
		otherKeys := issuer.NewKeyService()
		s.Require().NoError(otherKeys.InitializeKey(other))
		ok, err := NewService(otherKeys).Verify(a)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *AttestationSuite) TestCapitalizationMatters() {
	_, err := s.svc.Sign(s.subject, "IdentityVerified", 1)
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownClaim))
}

func (s *AttestationSuite) TestNotInitialized() {
	s.keys.Teardown()
	_, err := s.svc.Sign(s.subject, "identityVerified", 1)
	s.True(dErrors.HasCode(err, dErrors.CodeNotInitialized))
}

func (s *AttestationSuite) TestGenerateEligibility() {
	profile := eligibility.Profile{Age: 24, Country: "IN"}
	req := eligibility.Requirements{MinAge: 18, RequireAge: true, RequireIdentity: true, RequireCountry: true}

	out, err := s.svc.GenerateEligibility(s.subject, profile, req, 100)
	s.Require().NoError(err)
	s.Require().Len(out.Attestations, 3)
	s.Equal(Claim("ageAbove:18"), out.Attestations[0].Claim)
	s.Equal(Claim("identityVerified"), out.Attestations[1].Claim)
	s.Equal(Claim("countryResident:IN"), out.Attestations[2].Claim)
	for i, a := range out.Attestations {
		s.Equal(uint64(100+i), a.Nonce)
	}
	s.True(out.Disclosures.AgeAboveMin)

	s.Run("underage is restricted", func() {
		_, err := s.svc.GenerateEligibility(s.subject, eligibility.Profile{Age: 17}, req, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeAgeRestricted))
	})
}

func (s *AttestationSuite) TestParseClaim() {
	valid := []string{"identityVerified", "countryResident:IN", "countryResident:US", "ageAbove:0", "ageAbove:255"}
	for _, c := range valid {
		_, err := ParseClaim(c)
		s.NoError(err, c)
	}
	invalid := []string{"", "identityverified", "countryResident:in", "countryResident:IND", "ageAbove:256", "ageAbove:-1", "ageAbove:018", "ageAbove:"}
	for _, c := range invalid {
		_, err := ParseClaim(c)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownClaim), c)
	}
	s.Equal(Claim("ageAbove:21"), AgeAbove(21))
	s.Equal(Claim("countryResident:IN"), CountryResident("IN"))
}
