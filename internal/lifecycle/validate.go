package lifecycle

import (
	"strings"
	"time"

	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

const (
	dobLayout        = "2006-01-02"
	nationalIDDigits = 12
	maxNameLength    = 200
)

// validApplication is an Application after validation. Only the subject,
// derived age and country survive; name and id number are dropped here.
type validApplication struct {
	subject domain.SubjectID
	age     int
	country string
}

func validateApplication(app models.Application, defaultCountry string, now time.Time) (validApplication, error) {
	subject, err := domain.ParseSubjectID(app.Subject)
	if err != nil {
		return validApplication{}, err
	}

	name := strings.TrimSpace(app.Name)
	if name == "" {
		return validApplication{}, dErrors.New(dErrors.CodeInvalidName, "name is required")
	}
	if len(name) > maxNameLength {
		return validApplication{}, dErrors.New(dErrors.CodeInvalidName, "name is too long")
	}

	dob, err := time.Parse(dobLayout, strings.TrimSpace(app.DOB))
	if err != nil {
		return validApplication{}, dErrors.New(dErrors.CodeInvalidDob, "date of birth must be a real date in YYYY-MM-DD form")
	}
	age := domain.AgeAt(dob, now)
	if age < 0 || age > domain.MaxAge {
		return validApplication{}, dErrors.New(dErrors.CodeInvalidAge, "derived age is out of range")
	}

	if !isDigits(app.NationalID, nationalIDDigits) {
		return validApplication{}, dErrors.New(dErrors.CodeInvalidID, "national id must be exactly 12 digits")
	}

	country := strings.ToUpper(strings.TrimSpace(app.Country))
	if country == "" {
		country = defaultCountry
	}
	if !isAlpha2(country) {
		return validApplication{}, dErrors.New(dErrors.CodeInvalidInput, "country must be an ISO 3166-1 alpha-2 code")
	}

	return validApplication{subject: subject, age: age, country: country}, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAlpha2(s string) bool {
	return len(s) == 2 && s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z'
}
