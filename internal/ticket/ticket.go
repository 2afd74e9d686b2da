// Package ticket signs and verifies single-use event entry tickets.
package ticket

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"racepass/internal/attestation"
	"racepass/internal/hashing"
	"racepass/internal/issuer"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

const nonceBytes = 16

// Ticket is a signed entry permit. UsedAt is set by the lifecycle layer on scan.
type Ticket struct {
	Subject    domain.SubjectID `json:"subject"`
	EventID    domain.EventID   `json:"eventId"`
	Timestamp  uint64           `json:"timestamp"`
	Nonce      string           `json:"nonce"`
	TicketHash common.Hash      `json:"ticketHash"`
	Signature  hexutil.Bytes    `json:"signature"`
	V          uint8            `json:"v"`
	R          common.Hash      `json:"r"`
	S          common.Hash      `json:"s"`
	Issuer     common.Address   `json:"issuer"`
	UsedAt     *time.Time       `json:"usedAt,omitempty"`
}

// Used reports whether the ticket has been scanned.
func (t Ticket) Used() bool { return t.UsedAt != nil }

// Service signs tickets with the issuer key. It shares the Signer port with
// attestations so both verify the same way on chain.
type Service struct {
	signer attestation.Signer
}

func NewService(signer attestation.Signer) *Service {
	return &Service{signer: signer}
}

// Hash is keccak256(pack(address, string, uint256, string)).
func Hash(subject domain.SubjectID, eventID domain.EventID, timestamp uint64, nonce string) (common.Hash, error) {
	return hashing.SolidityKeccak256(
		[]string{"address", "string", "uint256", "string"},
		[]any{subject, string(eventID), timestamp, nonce},
	)
}

// Sign issues a ticket stamped with now truncated to seconds. An empty nonce
// is replaced with random hex.
func (s *Service) Sign(subject domain.SubjectID, eventID domain.EventID, nonce string, now time.Time) (Ticket, error) {
	if nonce == "" {
		n, err := randomNonce()
		if err != nil {
			return Ticket{}, err
		}
		nonce = n
	}
	ts := uint64(now.Unix())
	h, err := Hash(subject, eventID, ts, nonce)
	if err != nil {
		return Ticket{}, err
	}
	sig, err := s.signer.PersonalSign(h)
	if err != nil {
		return Ticket{}, err
	}
	v, r, sv, err := issuer.SplitSignature(sig)
	if err != nil {
		return Ticket{}, err
	}
	addr, err := s.signer.Address()
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{
		Subject:    subject,
		EventID:    eventID,
		Timestamp:  ts,
		Nonce:      nonce,
		TicketHash: h,
		Signature:  sig,
		V:          v,
		R:          r,
		S:          sv,
		Issuer:     addr,
	}, nil
}

// Verify recomputes the ticket hash and checks recovery against the recorded
// and configured issuer. Single-use is enforced by the lifecycle layer.
func (s *Service) Verify(t Ticket) (bool, error) {
	configured, err := s.signer.Address()
	if err != nil {
		return false, err
	}
	h, err := Hash(t.Subject, t.EventID, t.Timestamp, t.Nonce)
	if err != nil || h != t.TicketHash {
		return false, nil
	}
	recovered, err := issuer.RecoverPersonal(h, t.Signature)
	if err != nil {
		return false, nil
	}
	return recovered == t.Issuer && recovered == configured, nil
}

func randomNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "draw ticket nonce")
	}
	return hex.EncodeToString(b), nil
}
