package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/internal/credential"
	"racepass/pkg/domain"
	"racepass/pkg/platform/sentinel"
)

func signedState(t *testing.T) *SubjectState {
	t.Helper()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b := credential.NewBuilder([]byte("secret"), "did:racepass:test", 0)
	subject := domain.MustSubjectID("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	c, err := b.Build(subject, now)
	require.NoError(t, err)
	c, err = b.Sign(c, now)
	require.NoError(t, err)
	fp, err := credential.Fingerprint(c)
	require.NoError(t, err)
	return &SubjectState{
		Subject:     subject,
		Credential:  c,
		Fingerprint: fp,
		Age:         24,
		AgeCategory: "21+",
		IsAdult:     true,
		Country:     "IN",
		IssuedAt:    now,
		ExpiresAt:   now.AddDate(1, 0, 0),
		Reputation:  NewReputation(),
	}
}

func TestRecordRoundTrip(t *testing.T) {
	state := signedState(t)

	raw, err := MarshalRecord(state)
	require.NoError(t, err)

	decoded, err := UnmarshalRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, state.Fingerprint, decoded.Fingerprint)
	assert.Equal(t, state.Credential, decoded.Credential)
	assert.True(t, state.ExpiresAt.Equal(decoded.ExpiresAt))

	again, err := MarshalRecord(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(again), "canonical encoding is stable")
}

func TestRecordRejectsTampering(t *testing.T) {
	state := signedState(t)
	state.Fingerprint[0] ^= 0xff

	raw, err := MarshalRecord(state)
	require.NoError(t, err)
	_, err = UnmarshalRecord(raw)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestRecordRejectsUnknownVersion(t *testing.T) {
	_, err := UnmarshalRecord([]byte(`{"version":99,"state":{}}`))
	assert.ErrorIs(t, err, sentinel.ErrStaleVersion)
}
