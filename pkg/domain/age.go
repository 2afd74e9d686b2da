package domain

import "time"

// MaxAge bounds ages derived from a date of birth.
const MaxAge = 150

// AgeAt returns the completed years between birthDate and now. Both are
// compared in UTC and a birthday counts from its first instant, so someone
// born on 29 February gains a year on 1 March in common years. A future
// birth date yields a negative age.
func AgeAt(birthDate, now time.Time) int {
	b, n := birthDate.UTC(), now.UTC()
	years := n.Year() - b.Year()
	if b.AddDate(years, 0, 0).After(n) {
		years--
	}
	return years
}

// AgeCategory buckets an age into "minor", "18+" or "21+".
func AgeCategory(age int) string {
	switch {
	case age >= 21:
		return "21+"
	case age >= 18:
		return "18+"
	default:
		return "minor"
	}
}
