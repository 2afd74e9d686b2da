// Package credential builds the PII-free KYC credential, its MAC proof and the
// 32-byte fingerprint that chain writers anchor.
package credential

import (
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"racepass/internal/hashing"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

const (
	IDPrefix           = "racepass:"
	VerificationType   = "KYC"
	VerificationStatus = "verified"
	ProofType          = "HmacSha256"

	// TimestampLayout renders UTC instants with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

	DefaultTTL = 365 * 24 * time.Hour
)

// Credential is the signed record bound to a subject. It never carries the
// applicant's name, date of birth or national ID.
type Credential struct {
	ID             string           `json:"id"`
	Subject        domain.SubjectID `json:"subject"`
	Issuer         string           `json:"issuer"`
	IssuanceDate   string           `json:"issuanceDate"`
	ExpirationDate string           `json:"expirationDate"`
	Verification   Verification     `json:"verification"`
	Proof          *Proof           `json:"proof,omitempty"`
}

type Verification struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type Proof struct {
	Type    string `json:"type"`
	Created string `json:"created"`
	Value   string `json:"value"`
}

// IssuedAt parses IssuanceDate.
func (c Credential) IssuedAt() (time.Time, error) {
	return time.Parse(TimestampLayout, c.IssuanceDate)
}

// ExpiresAt parses ExpirationDate.
func (c Credential) ExpiresAt() (time.Time, error) {
	return time.Parse(TimestampLayout, c.ExpirationDate)
}

// ProofValue returns the MAC hex or "" when unsigned.
func (c Credential) ProofValue() string {
	if c.Proof == nil {
		return ""
	}
	return c.Proof.Value
}

// FormatTime renders t in the credential timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Builder assembles and MACs credentials with the issuer's symmetric secret.
type Builder struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewBuilder returns a builder. A zero ttl selects DefaultTTL.
func NewBuilder(secret []byte, issuer string, ttl time.Duration) *Builder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Builder{secret: append([]byte(nil), secret...), issuer: issuer, ttl: ttl}
}

// TTL returns the credential lifetime.
func (b *Builder) TTL() time.Duration { return b.ttl }

// Issuer returns the issuer identifier stamped into credentials.
func (b *Builder) Issuer() string { return b.issuer }

// Build creates an unsigned credential for subject issued at now.
func (b *Builder) Build(subject domain.SubjectID, now time.Time) (Credential, error) {
	if subject.IsNil() {
		return Credential{}, dErrors.New(dErrors.CodeInvalidSubject, "subject is required")
	}
	return Credential{
		ID:             IDPrefix + uuid.NewString(),
		Subject:        subject,
		Issuer:         b.issuer,
		IssuanceDate:   FormatTime(now),
		ExpirationDate: FormatTime(now.Add(b.ttl)),
		Verification:   Verification{Type: VerificationType, Status: VerificationStatus},
	}, nil
}

// Sign returns a copy of c carrying an HmacSha256 proof created at now.
func (b *Builder) Sign(c Credential, now time.Time) (Credential, error) {
	value, err := b.mac(c)
	if err != nil {
		return Credential{}, err
	}
	c.Proof = &Proof{Type: ProofType, Created: FormatTime(now), Value: value}
	return c, nil
}

// Verify recomputes the proof and compares it in constant time.
func (b *Builder) Verify(c Credential) bool {
	if c.Proof == nil || c.Proof.Type != ProofType {
		return false
	}
	expected, err := b.mac(c)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(c.Proof.Value)) == 1
}

// mac is hex(sha256(canonical(credential without proof) || secret)).
func (b *Builder) mac(c Credential) (string, error) {
	if len(b.secret) == 0 {
		return "", dErrors.New(dErrors.CodeNotInitialized, "credential secret not configured")
	}
	c.Proof = nil
	body, err := Canonical(c)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "canonicalize credential")
	}
	digest := hashing.SHA256(append(body, b.secret...))
	return hex.EncodeToString(digest.Bytes()), nil
}

type fingerprintInput struct {
	ID           string           `json:"id"`
	Subject      domain.SubjectID `json:"subject"`
	IssuanceDate string           `json:"issuanceDate"`
	ProofValue   string           `json:"proofValue"`
}

// Fingerprint is keccak-256 over the canonical JSON of
// {id, issuanceDate, proofValue, subject}.
func Fingerprint(c Credential) (common.Hash, error) {
	if c.Proof == nil {
		return common.Hash{}, dErrors.New(dErrors.CodeInvalidInput, "credential is not signed")
	}
	body, err := Canonical(fingerprintInput{
		ID:           c.ID,
		Subject:      c.Subject,
		IssuanceDate: c.IssuanceDate,
		ProofValue:   c.Proof.Value,
	})
	if err != nil {
		return common.Hash{}, dErrors.Wrap(err, dErrors.CodeInternal, "canonicalize fingerprint input")
	}
	return hashing.Keccak256(body), nil
}
