// Package validation holds the size limits enforced at the HTTP boundary.
package validation

import (
	"fmt"

	dErrors "racepass/pkg/domain-errors"
)

// MaxBodySize caps request bodies at 64 KiB.
const MaxBodySize = 64 * 1024

const (
	// MaxProofSteps bounds a presented Merkle proof; 64 levels covers any
	// log this service can hold.
	MaxProofSteps = 64

	MaxAnchorAdapters = 8
)

const (
	MaxEventIDLength   = 128
	MaxEventNameLength = 200
	MaxEventTypeLength = 64
	MaxQRTokenLength   = 64
)

// CheckSliceCount fails with CodeValidation when count exceeds max.
func CheckSliceCount(field string, count, max int) error {
	if count <= max {
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", field, max))
}

// CheckStringLength fails with CodeValidation when value is longer than max
// bytes.
func CheckStringLength(field, value string, max int) error {
	if len(value) <= max {
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", field, max))
}
