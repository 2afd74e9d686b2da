package testutil

import (
	"time"

	"racepass/internal/lifecycle/models"
)

// TestSubjects provides fixed wallet addresses for tests.
var TestSubjects = struct {
	Asha  string
	Bilal string
	Chen  string
	Minor string
}{
	Asha:  "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	Bilal: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	Chen:  "0xcccccccccccccccccccccccccccccccccccccccc",
	Minor: "0xdddddddddddddddddddddddddddddddddddddddd",
}

// ApplicationBuilder provides a fluent interface for building applications.
type ApplicationBuilder struct {
	app models.Application
}

// NewApplication creates a builder with a valid adult application.
func NewApplication(subject string) *ApplicationBuilder {
	return &ApplicationBuilder{
		app: models.Application{
			Subject:    subject,
			Name:       "Asha",
			DOB:        "2000-05-10",
			NationalID: "123456789012",
		},
	}
}

func (b *ApplicationBuilder) WithName(name string) *ApplicationBuilder {
	b.app.Name = name
	return b
}

func (b *ApplicationBuilder) WithDOB(dob string) *ApplicationBuilder {
	b.app.DOB = dob
	return b
}

// BornYearsBefore sets a date of birth exactly years before now.
func (b *ApplicationBuilder) BornYearsBefore(now time.Time, years int) *ApplicationBuilder {
	b.app.DOB = now.AddDate(-years, 0, 0).Format(time.DateOnly)
	return b
}

func (b *ApplicationBuilder) WithNationalID(id string) *ApplicationBuilder {
	b.app.NationalID = id
	return b
}

func (b *ApplicationBuilder) WithCountry(country string) *ApplicationBuilder {
	b.app.Country = country
	return b
}

func (b *ApplicationBuilder) Build() models.Application {
	return b.app
}
