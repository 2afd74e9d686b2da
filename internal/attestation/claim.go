package attestation

import (
	"strconv"
	"strings"

	dErrors "racepass/pkg/domain-errors"
)

const (
	claimIdentityVerified = "identityVerified"
	prefixCountryResident = "countryResident:"
	prefixAgeAbove        = "ageAbove:"
)

// Claim is a case-sensitive boolean statement about a subject.
type Claim string

func IdentityVerified() Claim { return claimIdentityVerified }

func CountryResident(country string) Claim { return Claim(prefixCountryResident + country) }

func AgeAbove(years uint8) Claim { return Claim(prefixAgeAbove + strconv.Itoa(int(years))) }

// ParseClaim accepts identityVerified, countryResident:<ISO alpha-2> and
// ageAbove:<0-255> in canonical decimal form.
func ParseClaim(s string) (Claim, error) {
	switch {
	case s == claimIdentityVerified:
		return Claim(s), nil
	case strings.HasPrefix(s, prefixCountryResident):
		if isAlpha2(strings.TrimPrefix(s, prefixCountryResident)) {
			return Claim(s), nil
		}
	case strings.HasPrefix(s, prefixAgeAbove):
		digits := strings.TrimPrefix(s, prefixAgeAbove)
		if _, err := strconv.ParseUint(digits, 10, 8); err == nil && canonicalDecimal(digits) {
			return Claim(s), nil
		}
	}
	return "", dErrors.New(dErrors.CodeUnknownClaim, "unsupported claim")
}

func (c Claim) String() string { return string(c) }

func isAlpha2(s string) bool {
	return len(s) == 2 && s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z'
}

func canonicalDecimal(s string) bool {
	return s != "" && (s == "0" || s[0] != '0')
}
