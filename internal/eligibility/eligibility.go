// Package eligibility decides which facts an event may learn about a subject.
package eligibility

import (
	"fmt"

	dErrors "racepass/pkg/domain-errors"
)

// Requirements are the disclosure demands of an event.
type Requirements struct {
	MinAge          int  `json:"minAge"`
	RequireIdentity bool `json:"requireIdentity"`
	RequireAge      bool `json:"requireAge"`
	RequireCountry  bool `json:"requireCountry"`
}

// Profile is the stored, non-identifying data eligibility is evaluated on.
type Profile struct {
	Age     int
	Country string
}

// Disclosures mirror what was provable for the event.
type Disclosures struct {
	AgeAboveMin      bool `json:"ageAboveMin"`
	IdentityVerified bool `json:"identityVerified"`
	CountryResident  bool `json:"countryResident"`
}

// Decision lists the claims to attest, in emission order.
type Decision struct {
	Claims      []string
	Disclosures Disclosures
}

// AgeGated reports whether r enforces a minimum age.
func (r Requirements) AgeGated() bool {
	return r.RequireAge && r.MinAge > 0
}

// CheckAge returns AgeRestricted when p is below an enforced minimum.
func CheckAge(p Profile, r Requirements) error {
	if r.AgeGated() && p.Age < r.MinAge {
		return dErrors.New(dErrors.CodeAgeRestricted, fmt.Sprintf("event requires age %d or above", r.MinAge))
	}
	return nil
}

// Evaluate selects the claims to emit. Order is age, identity, country.
func Evaluate(p Profile, r Requirements) (Decision, error) {
	if r.MinAge < 0 || r.MinAge > 255 {
		return Decision{}, dErrors.New(dErrors.CodeInvalidAge, "minimum age must be between 0 and 255")
	}
	if err := CheckAge(p, r); err != nil {
		return Decision{}, err
	}
	var d Decision
	if r.AgeGated() {
		d.Claims = append(d.Claims, fmt.Sprintf("ageAbove:%d", r.MinAge))
		d.Disclosures.AgeAboveMin = true
	}
	if r.RequireIdentity {
		d.Claims = append(d.Claims, "identityVerified")
		d.Disclosures.IdentityVerified = true
	}
	if r.RequireCountry {
		d.Claims = append(d.Claims, "countryResident:"+p.Country)
		d.Disclosures.CountryResident = true
	}
	return d, nil
}
