package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"racepass/internal/anchor"
	"racepass/internal/attestation"
	"racepass/internal/credential"
	"racepass/internal/eligibility"
	"racepass/pkg/domain"
)

// IssuanceReceipt is returned by Submit. It carries no personal data.
type IssuanceReceipt struct {
	CredentialID string         `json:"credentialId"`
	Fingerprint  common.Hash    `json:"fingerprint"`
	IsAdult      bool           `json:"isAdult"`
	AgeCategory  string         `json:"ageCategory"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	CryptoProofs IssuanceProofs `json:"cryptoProofs"`
	Anchors      anchor.Results `json:"anchors"`
}

type IssuanceProofs struct {
	Commitments      PublicCommitments `json:"commitments"`
	AttestationTypes []string          `json:"attestationTypes"`
	Issuer           common.Address    `json:"issuer"`
}

// RegistrationReceipt is returned by Register.
type RegistrationReceipt struct {
	QRToken      string                  `json:"qrToken"`
	EventID      domain.EventID          `json:"eventId"`
	Disclosures  eligibility.Disclosures `json:"disclosures"`
	CryptoProofs RegistrationProofs      `json:"cryptoProofs"`
}

type RegistrationProofs struct {
	TicketHash      common.Hash        `json:"ticketHash"`
	TicketSignature hexutil.Bytes      `json:"ticketSignature"`
	Attestations    []AttestationProof `json:"attestations"`
	Commitments     PublicCommitments  `json:"commitments"`
	Issuer          common.Address     `json:"issuer"`
}

// AttestationProof is the disclosed form of an attestation.
type AttestationProof struct {
	Claim     attestation.Claim `json:"claim"`
	ClaimHash common.Hash       `json:"claimHash"`
	Nonce     uint64            `json:"nonce"`
	Signature hexutil.Bytes     `json:"signature"`
	V         uint8             `json:"v"`
	R         common.Hash       `json:"r"`
	S         common.Hash       `json:"s"`
}

func NewAttestationProof(a attestation.Attestation) AttestationProof {
	return AttestationProof{
		Claim:     a.Claim,
		ClaimHash: a.ClaimHash,
		Nonce:     a.Nonce,
		Signature: a.Signature,
		V:         a.V,
		R:         a.R,
		S:         a.S,
	}
}

// ScanReceipt is returned by Scan.
type ScanReceipt struct {
	TicketHash        common.Hash      `json:"ticketHash"`
	SignatureVerified bool             `json:"signatureVerified"`
	UsedAt            time.Time        `json:"usedAt"`
	Subject           domain.SubjectID `json:"subject"`
	EventID           domain.EventID   `json:"eventId"`
	Event             *Event           `json:"event,omitempty"`
	MerkleRoot        common.Hash      `json:"merkleRoot"`
}

// ReputationView is returned by Reputation.
type ReputationView struct {
	Score      int               `json:"score"`
	Attendance int               `json:"attendance"`
	Tier       string            `json:"tier"`
	Events     []EventAttendance `json:"events"`
	Merkle     MerkleView        `json:"merkle"`
}

type EventAttendance struct {
	EventID    domain.EventID `json:"eventId"`
	AttendedAt time.Time      `json:"attendedAt"`
	LeafHash   common.Hash    `json:"leafHash"`
}

// MerkleView proves the most recent attendance leaf. Leaf is nil when the
// subject has not attended anything yet.
type MerkleView struct {
	Root  common.Hash   `json:"root"`
	Proof []common.Hash `json:"proof"`
	Leaf  *common.Hash  `json:"leaf"`
}

// Check reasons.
const (
	ReasonNoCredential  = "no_credential"
	ReasonExpired       = "expired"
	ReasonRevoked       = "revoked"
	ReasonAgeRestricted = "age_restricted"
)

// CheckResult answers a third-party eligibility check without disclosing data.
type CheckResult struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// CredentialView is the fetchable subset of SubjectState: no commitment
// secrets and no raw age.
type CredentialView struct {
	Subject          domain.SubjectID          `json:"subject"`
	Credential       credential.Credential     `json:"credential"`
	Fingerprint      common.Hash               `json:"fingerprint"`
	AttestationTypes []string                  `json:"attestationTypes"`
	Attestations     []attestation.Attestation `json:"attestations"`
	Commitments      PublicCommitments         `json:"commitments"`
	IsAdult          bool                      `json:"isAdult"`
	AgeCategory      string                    `json:"ageCategory"`
	IssuedAt         time.Time                 `json:"issuedAt"`
	ExpiresAt        time.Time                 `json:"expiresAt"`
	Revoked          bool                      `json:"revoked"`
	RevokedAt        *time.Time                `json:"revokedAt,omitempty"`
	Reputation       Reputation                `json:"reputation"`
	Anchors          anchor.Results            `json:"anchors"`
}

// View builds the public view of s.
func (s *SubjectState) View() CredentialView {
	return CredentialView{
		Subject:          s.Subject,
		Credential:       s.Credential,
		Fingerprint:      s.Fingerprint,
		AttestationTypes: s.AttestationTypes(),
		Attestations:     s.sortedAttestations(),
		Commitments:      s.Commitments.Public(),
		IsAdult:          s.IsAdult,
		AgeCategory:      s.AgeCategory,
		IssuedAt:         s.IssuedAt,
		ExpiresAt:        s.ExpiresAt,
		Revoked:          s.Revoked,
		RevokedAt:        s.RevokedAt,
		Reputation:       s.Reputation,
		Anchors:          s.Anchors,
	}
}

// Openings returns the subject's commitment openings.
type Openings struct {
	Age      OpeningSecret `json:"age"`
	Identity OpeningSecret `json:"identity"`
}

type OpeningSecret struct {
	Commitment common.Hash `json:"commitment"`
	Secret     common.Hash `json:"secret"`
}
