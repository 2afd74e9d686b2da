// Package domain provides the identifiers shared by every bounded context.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "racepass/pkg/domain-errors"
)

// SubjectID is the canonical 20-byte account address of a credential bearer.
// Its string form is always lowercase; the checksummed form is display-only.
type SubjectID [common.AddressLength]byte

// EventID identifies an event. It is opaque to the core.
type EventID string

// ParseSubjectID accepts a 40-character hex address with or without the 0x
// prefix. All-lowercase and all-uppercase inputs are accepted as is; mixed-case
// input must carry a valid EIP-55 checksum.
func ParseSubjectID(s string) (SubjectID, error) {
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(body) != 2*common.AddressLength {
		return SubjectID{}, dErrors.New(dErrors.CodeInvalidSubject, "subject must be a 20-byte hex address")
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return SubjectID{}, dErrors.New(dErrors.CodeInvalidSubject, "subject must be hexadecimal")
	}
	var id SubjectID
	copy(id[:], raw)
	lower, upper := strings.ToLower(body), strings.ToUpper(body)
	if body != lower && body != upper && id.Checksum() != "0x"+body {
		return SubjectID{}, dErrors.New(dErrors.CodeInvalidSubject, "subject checksum mismatch")
	}
	return id, nil
}

// SubjectFromAddress converts a go-ethereum address.
func SubjectFromAddress(a common.Address) SubjectID {
	return SubjectID(a)
}

// MustSubjectID panics on malformed input. Intended for tests and fixtures.
func MustSubjectID(s string) SubjectID {
	id, err := ParseSubjectID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the 0x-prefixed lowercase form used as a map and store key.
func (id SubjectID) String() string { return "0x" + id.Hex() }

// Hex returns the 40-character lowercase form without prefix.
func (id SubjectID) Hex() string { return hex.EncodeToString(id[:]) }

// Address returns the go-ethereum representation.
func (id SubjectID) Address() common.Address { return common.Address(id) }

// Checksum returns the EIP-55 mixed-case form.
func (id SubjectID) Checksum() string { return common.Address(id).Hex() }

func (id SubjectID) Bytes() []byte { return append([]byte(nil), id[:]...) }

func (id SubjectID) IsNil() bool { return id == SubjectID{} }

func (id SubjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SubjectID) UnmarshalText(text []byte) error {
	parsed, err := ParseSubjectID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseEventID rejects empty and oversized identifiers.
func ParseEventID(s string) (EventID, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 128 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "event ID must be 1-128 characters")
	}
	return EventID(s), nil
}

func (id EventID) String() string { return string(id) }
