package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "racepass/pkg/domain-errors"
)

func TestEvaluate(t *testing.T) {
	adult := Profile{Age: 24, Country: "IN"}

	t.Run("emits every required claim in order", func(t *testing.T) {
		d, err := Evaluate(adult, Requirements{MinAge: 21, RequireAge: true, RequireIdentity: true, RequireCountry: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"ageAbove:21", "identityVerified", "countryResident:IN"}, d.Claims)
		assert.Equal(t, Disclosures{AgeAboveMin: true, IdentityVerified: true, CountryResident: true}, d.Disclosures)
	})

	t.Run("underage subject is restricted", func(t *testing.T) {
		_, err := Evaluate(Profile{Age: 17, Country: "IN"}, Requirements{MinAge: 18, RequireAge: true})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAgeRestricted))
	})

	t.Run("min age without requireAge passes and discloses nothing", func(t *testing.T) {
		d, err := Evaluate(Profile{Age: 10}, Requirements{MinAge: 18})
		require.NoError(t, err)
		assert.Empty(t, d.Claims)
		assert.False(t, d.Disclosures.AgeAboveMin)
	})

	t.Run("requireAge with zero min age passes", func(t *testing.T) {
		d, err := Evaluate(Profile{Age: 10}, Requirements{RequireAge: true})
		require.NoError(t, err)
		assert.Empty(t, d.Claims)
	})

	t.Run("exact minimum passes", func(t *testing.T) {
		d, err := Evaluate(Profile{Age: 18}, Requirements{MinAge: 18, RequireAge: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"ageAbove:18"}, d.Claims)
	})

	t.Run("rejects out of range minimum", func(t *testing.T) {
		_, err := Evaluate(adult, Requirements{MinAge: 300, RequireAge: true})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAge))
	})
}
