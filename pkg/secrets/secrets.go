// Package secrets hashes and checks the admin bearer token.
package secrets

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "racepass/pkg/domain-errors"
)

// Cost is the bcrypt work factor for admin token hashes.
const Cost = bcrypt.DefaultCost

// maxSecretBytes is the longest input bcrypt accepts.
const maxSecretBytes = 72

// Hash returns a bcrypt hash of the admin token. Callers hash once at
// startup and keep only the hash.
func Hash(secret string) (string, error) {
	switch {
	case strings.TrimSpace(secret) == "":
		return "", dErrors.New(dErrors.CodeValidation, "admin token cannot be empty")
	case len(secret) > maxSecretBytes:
		return "", dErrors.New(dErrors.CodeValidation, "admin token exceeds 72 bytes")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), Cost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "hash admin token")
	}
	return string(hashed), nil
}

// Verify compares a presented token with a hash from Hash. A mismatch is
// CodeUnauthorized; a malformed hash is CodeInternal.
func Verify(secret, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return dErrors.New(dErrors.CodeUnauthorized, "admin token does not match")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "verify admin token")
	}
}
