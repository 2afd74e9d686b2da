package credential

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

// CredentialSuite tests build, MAC and fingerprint invariants.
type CredentialSuite struct {
	suite.Suite
	builder *Builder
	subject domain.SubjectID
	now     time.Time
}

func TestCredentialSuite(t *testing.T) {
	suite.Run(t, new(CredentialSuite))
}

func (s *CredentialSuite) SetupTest() {
	s.builder = NewBuilder([]byte("default-secret"), "did:racepass:issuer", 0)
	s.subject = domain.MustSubjectID("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *CredentialSuite) signed() Credential {
	c, err := s.builder.Build(s.subject, s.now)
	s.Require().NoError(err)
	c, err = s.builder.Sign(c, s.now)
	s.Require().NoError(err)
	return c
}

func (s *CredentialSuite) TestBuild() {
	c, err := s.builder.Build(s.subject, s.now)
	s.Require().NoError(err)

	s.True(strings.HasPrefix(c.ID, IDPrefix))
	s.Equal("2024-06-01T12:00:00.000Z", c.IssuanceDate)
	s.Equal("2025-06-01T12:00:00.000Z", c.ExpirationDate)
	s.Equal(Verification{Type: "KYC", Status: "verified"}, c.Verification)
	s.Nil(c.Proof)

	s.Run("ids are unique", func() {
		other, err := s.builder.Build(s.subject, s.now)
		s.Require().NoError(err)
		s.NotEqual(c.ID, other.ID)
	})

	s.Run("rejects nil subject", func() {
		_, err := s.builder.Build(domain.SubjectID{}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSubject))
	})
}

func (s *CredentialSuite) TestSerializedFormCarriesNoPersonalData() {
	raw, err := json.Marshal(s.signed())
	s.Require().NoError(err)

	var fields map[string]any
	s.Require().NoError(json.Unmarshal(raw, &fields))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	s.ElementsMatch([]string{"id", "subject", "issuer", "issuanceDate", "expirationDate", "verification", "proof"}, keys)
}

func (s *CredentialSuite) TestSignAndVerify() {
	c := s.signed()
	s.Equal(ProofType, c.Proof.Type)
	s.Len(c.Proof.Value, 64)
	s.True(s.builder.Verify(c))

	s.Run("tampered field fails verification", func() {
		tampered := c
		tampered.ExpirationDate = "2099-01-01T00:00:00.000Z"
		s.False(s.builder.Verify(tampered))
	})

	s.Run("different secret fails verification", func() {
		other := NewBuilder([]byte("other-secret"), "did:racepass:issuer", 0)
		s.False(other.Verify(c))
	})

	s.Run("unsigned credential fails verification", func() {
		unsigned := c
		unsigned.Proof = nil
		s.False(s.builder.Verify(unsigned))
	})

	s.Run("missing secret is not initialized", func() {
		empty := NewBuilder(nil, "x", 0)
		_, err := empty.Sign(c, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeNotInitialized))
	})
}

func (s *CredentialSuite) TestFingerprintRoundTrip() {
	c := s.signed()
	fp, err := Fingerprint(c)
	s.Require().NoError(err)

	raw, err := json.Marshal(c)
	s.Require().NoError(err)
	var decoded Credential
	s.Require().NoError(json.Unmarshal(raw, &decoded))

	again, err := Fingerprint(decoded)
	s.Require().NoError(err)
	s.Equal(fp, again)
	s.True(s.builder.Verify(decoded))

	s.Run("fingerprint ignores expiration and issuer", func() {
		changed := c
		changed.ExpirationDate = "2030-01-01T00:00:00.000Z"
		changed.Issuer = "someone-else"
		other, err := Fingerprint(changed)
		s.Require().NoError(err)
		s.Equal(fp, other)
	})

	s.Run("fingerprint binds the proof value", func() {
		changed := c
		changed.Proof = &Proof{Type: ProofType, Created: c.Proof.Created, Value: strings.Repeat("0", 64)}
		other, err := Fingerprint(changed)
		s.Require().NoError(err)
		s.NotEqual(fp, other)
	})
}

func (s *CredentialSuite) TestCanonical() {
	out, err := Canonical(map[string]any{"b": 1, "a": map[string]any{"d": "<x>", "c": 2.5}})
	s.Require().NoError(err)
	s.Equal(`{"a":{"c":2.5,"d":"<x>"},"b":1}`, string(out))
}
