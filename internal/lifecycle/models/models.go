package models

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/anchor"
	"racepass/internal/attestation"
	"racepass/internal/commitment"
	"racepass/internal/credential"
	"racepass/internal/eligibility"
	"racepass/internal/ticket"
	"racepass/pkg/domain"
)

const (
	InitialScore   = 50
	MaxScore       = 100
	ScorePerAttend = 5
)

// Application is the validated KYC output handed to Submit. Name, DOB and
// NationalID are consumed during validation and never stored.
type Application struct {
	Subject    string
	Name       string
	DOB        string
	NationalID string
	Country    string
}

// SubjectState is the per-subject record owned by the lifecycle.
type SubjectState struct {
	Subject      domain.SubjectID                              `json:"subject"`
	Credential   credential.Credential                         `json:"credential"`
	Fingerprint  common.Hash                                   `json:"fingerprint"`
	Attestations map[attestation.Claim]attestation.Attestation `json:"attestations"`
	Commitments  Commitments                                   `json:"commitments"`
	Age          int                                           `json:"age"`
	AgeCategory  string                                        `json:"ageCategory"`
	IsAdult      bool                                          `json:"isAdult"`
	Country      string                                        `json:"country"`
	IssuedAt     time.Time                                     `json:"issuedAt"`
	ExpiresAt    time.Time                                     `json:"expiresAt"`
	Revoked      bool                                          `json:"revoked"`
	RevokedAt    *time.Time                                    `json:"revokedAt,omitempty"`
	Reputation   Reputation                                    `json:"reputation"`
	Anchors      anchor.Results                                `json:"anchors"`
}

// Commitments holds both sides of each commitment; secrets are for the subject
// only and never leave through public views.
type Commitments struct {
	Age      commitment.Commitment `json:"age"`
	Identity commitment.Commitment `json:"identity"`
}

// Public strips secrets and values.
func (c Commitments) Public() PublicCommitments {
	return PublicCommitments{Age: c.Age.Commitment, Identity: c.Identity.Commitment}
}

type PublicCommitments struct {
	Age      common.Hash `json:"age"`
	Identity common.Hash `json:"identity"`
}

// Reputation is the attendance-derived standing of a subject.
type Reputation struct {
	Score      int          `json:"score"`
	Attendance int          `json:"attendance"`
	Leaves     []LeafRecord `json:"leaves"`
}

type LeafRecord struct {
	Leaf       common.Hash    `json:"leaf"`
	EventID    domain.EventID `json:"eventId"`
	AttendedAt time.Time      `json:"attendedAt"`
}

// NewReputation is the starting record for a fresh credential.
func NewReputation() Reputation {
	return Reputation{Score: InitialScore, Leaves: []LeafRecord{}}
}

// ScoreFloor is the lowest score attendance alone guarantees.
func ScoreFloor(attendance int) int {
	return min(MaxScore, InitialScore+ScorePerAttend*attendance)
}

// RecordAttendance appends a leaf and bumps the score.
func (r *Reputation) RecordAttendance(leaf LeafRecord) {
	r.Leaves = append(r.Leaves, leaf)
	r.Attendance = len(r.Leaves)
	r.Score = min(MaxScore, r.Score+ScorePerAttend)
}

// Tier buckets a score into Gold, Silver or Bronze.
func Tier(score int) string {
	switch {
	case score >= 80:
		return "Gold"
	case score >= 60:
		return "Silver"
	default:
		return "Bronze"
	}
}

// Active reports whether the credential can emit attestations and tickets at now.
func (s *SubjectState) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Blocking reports whether the state prevents a new issuance at now.
func (s *SubjectState) Blocking(now time.Time) bool {
	return s.Active(now)
}

// Profile is the non-identifying view used for eligibility.
func (s *SubjectState) Profile() eligibility.Profile {
	return eligibility.Profile{Age: s.Age, Country: s.Country}
}

// AttestationTypes lists stored claims in issuance order.
func (s *SubjectState) AttestationTypes() []string {
	order := make([]string, 0, len(s.Attestations))
	for _, a := range s.sortedAttestations() {
		order = append(order, string(a.Claim))
	}
	return order
}

func (s *SubjectState) sortedAttestations() []attestation.Attestation {
	out := make([]attestation.Attestation, 0, len(s.Attestations))
	for _, a := range s.Attestations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out
}

// Event is a catalog entry. Capacity zero means unlimited.
type Event struct {
	ID           domain.EventID           `json:"id"`
	Name         string                   `json:"name"`
	Capacity     int                      `json:"capacity"`
	Requirements eligibility.Requirements `json:"requirements"`
	StartsAt     *time.Time               `json:"startsAt,omitempty"`
}

// Registration links a subject to an event in registration order.
type Registration struct {
	Subject      domain.SubjectID `json:"subject"`
	EventID      domain.EventID   `json:"eventId"`
	QRToken      string           `json:"qrToken"`
	TicketHash   common.Hash      `json:"ticketHash"`
	RegisteredAt time.Time        `json:"registeredAt"`
}

// TicketRecord indexes a ticket by its QR token.
type TicketRecord struct {
	QRToken string        `json:"qrToken"`
	Ticket  ticket.Ticket `json:"ticket"`
}

// AttendanceRecord is one scan in global scan order.
type AttendanceRecord struct {
	Subject    domain.SubjectID `json:"subject"`
	EventID    domain.EventID   `json:"eventId"`
	Leaf       common.Hash      `json:"leaf"`
	AttendedAt time.Time        `json:"attendedAt"`
}
