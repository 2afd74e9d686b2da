package store

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"racepass/internal/credential"
	"racepass/internal/lifecycle/models"
	"racepass/internal/merkle"
	"racepass/internal/ticket"
	"racepass/pkg/domain"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newState(t *testing.T, subject domain.SubjectID) *models.SubjectState {
	t.Helper()
	b := credential.NewBuilder([]byte("store-secret"), "did:racepass:test", 0)
	c, err := b.Build(subject, fixedNow)
	require.NoError(t, err)
	c, err = b.Sign(c, fixedNow)
	require.NoError(t, err)
	fp, err := credential.Fingerprint(c)
	require.NoError(t, err)
	return &models.SubjectState{
		Subject:     subject,
		Credential:  c,
		Fingerprint: fp,
		Age:         30,
		AgeCategory: "21+",
		IsAdult:     true,
		Country:     "IN",
		IssuedAt:    fixedNow,
		ExpiresAt:   fixedNow.AddDate(1, 0, 0),
		Reputation:  models.NewReputation(),
	}
}

func newRegistration(subject domain.SubjectID, eventID domain.EventID, qr string) (models.Registration, models.TicketRecord) {
	tk := ticket.Ticket{
		Subject:    subject,
		EventID:    eventID,
		Timestamp:  uint64(fixedNow.Unix()),
		Nonce:      "nonce-" + qr,
		TicketHash: common.HexToHash("0x01"),
		Signature:  make([]byte, 65),
	}
	reg := models.Registration{
		Subject:      subject,
		EventID:      eventID,
		QRToken:      qr,
		TicketHash:   tk.TicketHash,
		RegisteredAt: fixedNow,
	}
	return reg, models.TicketRecord{QRToken: qr, Ticket: tk}
}

func usedCopy(rec models.TicketRecord, at time.Time) models.TicketRecord {
	rec.Ticket.UsedAt = &at
	return rec
}

func attendanceFor(subject domain.SubjectID, eventID domain.EventID) models.AttendanceRecord {
	return models.AttendanceRecord{
		Subject:    subject,
		EventID:    eventID,
		Leaf:       merkle.AttendanceLeaf(subject, eventID),
		AttendedAt: fixedNow,
	}
}
