// Package attestation pre-signs and verifies boolean claims bound to
// (subject, claim, nonce) for selective disclosure.
package attestation

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"racepass/internal/eligibility"
	"racepass/internal/hashing"
	"racepass/internal/issuer"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

// Signer produces personal-message signatures on behalf of the issuer.
type Signer interface {
	Address() (common.Address, error)
	PersonalSign(digest common.Hash) ([]byte, error)
}

// Attestation is an immutable signed claim.
type Attestation struct {
	Subject     domain.SubjectID `json:"subject"`
	Claim       Claim            `json:"claim"`
	Nonce       uint64           `json:"nonce"`
	ClaimHash   common.Hash      `json:"claimHash"`
	MessageHash common.Hash      `json:"messageHash"`
	Signature   hexutil.Bytes    `json:"signature"`
	V           uint8            `json:"v"`
	R           common.Hash      `json:"r"`
	S           common.Hash      `json:"s"`
	Issuer      common.Address   `json:"issuer"`
}

// Eligibility is the outcome of GenerateEligibility.
type Eligibility struct {
	Attestations []Attestation
	Disclosures  eligibility.Disclosures
}

// Service signs and verifies attestations with the configured issuer.
type Service struct {
	signer Signer
}

func NewService(signer Signer) *Service {
	return &Service{signer: signer}
}

// ClaimHash is keccak256 of the claim's UTF-8 bytes.
func ClaimHash(c Claim) common.Hash {
	return hashing.Keccak256([]byte(c))
}

// MessageHash is keccak256(pack(address subject, bytes32 claimHash, uint256 nonce)).
func MessageHash(subject domain.SubjectID, claimHash common.Hash, nonce uint64) (common.Hash, error) {
	return hashing.SolidityKeccak256(
		[]string{"address", "bytes32", "uint256"},
		[]any{subject, claimHash, nonce},
	)
}

// Sign validates claim and signs it for subject under nonce. Nonce reuse is
// not detected here.
func (s *Service) Sign(subject domain.SubjectID, claim string, nonce uint64) (Attestation, error) {
	c, err := ParseClaim(claim)
	if err != nil {
		return Attestation{}, err
	}
	claimHash := ClaimHash(c)
	msg, err := MessageHash(subject, claimHash, nonce)
	if err != nil {
		return Attestation{}, err
	}
	sig, err := s.signer.PersonalSign(msg)
	if err != nil {
		return Attestation{}, err
	}
	v, r, sv, err := issuer.SplitSignature(sig)
	if err != nil {
		return Attestation{}, err
	}
	addr, err := s.signer.Address()
	if err != nil {
		return Attestation{}, err
	}
	return Attestation{
		Subject:     subject,
		Claim:       c,
		Nonce:       nonce,
		ClaimHash:   claimHash,
		MessageHash: msg,
		Signature:   sig,
		V:           v,
		R:           r,
		S:           sv,
		Issuer:      addr,
	}, nil
}

// Verify recomputes the message hash from the attestation's own fields and
// checks that recovery yields both the recorded and the configured issuer.
// Revocation of the subject is the caller's concern.
func (s *Service) Verify(a Attestation) (bool, error) {
	configured, err := s.signer.Address()
	if err != nil {
		return false, err
	}
	if _, err := ParseClaim(string(a.Claim)); err != nil {
		return false, nil
	}
	claimHash := ClaimHash(a.Claim)
	if claimHash != a.ClaimHash {
		return false, nil
	}
	msg, err := MessageHash(a.Subject, claimHash, a.Nonce)
	if err != nil || msg != a.MessageHash {
		return false, nil
	}
	recovered, err := issuer.RecoverPersonal(msg, a.Signature)
	if err != nil {
		return false, nil
	}
	return recovered == a.Issuer && recovered == configured, nil
}

// GenerateEligibility evaluates requirements against profile and signs the
// selected claims with consecutive nonces starting at baseNonce.
func (s *Service) GenerateEligibility(subject domain.SubjectID, profile eligibility.Profile, req eligibility.Requirements, baseNonce uint64) (Eligibility, error) {
	decision, err := eligibility.Evaluate(profile, req)
	if err != nil {
		return Eligibility{}, err
	}
	out := Eligibility{Disclosures: decision.Disclosures}
	for i, claim := range decision.Claims {
		a, err := s.Sign(subject, claim, baseNonce+uint64(i))
		if err != nil {
			return Eligibility{}, dErrors.Wrap(err, dErrors.CodeInternal, "sign eligibility attestation")
		}
		out.Attestations = append(out.Attestations, a)
	}
	return out, nil
}
