package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReputation(t *testing.T) {
	t.Run("attendance bumps score up to the cap", func(t *testing.T) {
		r := NewReputation()
		for i := range 12 {
			r.RecordAttendance(LeafRecord{EventID: "e", AttendedAt: time.Now()})
			assert.Equal(t, i+1, r.Attendance)
			assert.Equal(t, ScoreFloor(i+1), r.Score)
		}
		assert.Equal(t, MaxScore, r.Score)
		assert.Len(t, r.Leaves, 12)
	})

	t.Run("tiers", func(t *testing.T) {
		assert.Equal(t, "Bronze", Tier(59))
		assert.Equal(t, "Silver", Tier(60))
		assert.Equal(t, "Silver", Tier(79))
		assert.Equal(t, "Gold", Tier(80))
	})
}

func TestSubjectState_Active(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := SubjectState{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, s.Active(now))
	assert.False(t, s.Active(now.Add(time.Hour)))

	s.Revoked = true
	assert.False(t, s.Active(now))
}
