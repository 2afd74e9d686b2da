// Package commitment implements hiding commitments keccak256(value || secret)
// over solidity-packed (string, bytes32).
package commitment

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/hashing"
	dErrors "racepass/pkg/domain-errors"
)

// Commitment pairs the public commitment with the opening secret. Value is
// only populated on the call that created it.
type Commitment struct {
	Commitment common.Hash `json:"commitment"`
	Secret     common.Hash `json:"secret"`
	Value      string      `json:"value,omitempty"`
}

// Public returns a copy without the secret or value.
func (c Commitment) Public() Commitment {
	return Commitment{Commitment: c.Commitment}
}

// Commit draws a fresh 32-byte secret and commits to value.
func Commit(value string) (Commitment, error) {
	var secret common.Hash
	if _, err := rand.Read(secret[:]); err != nil {
		return Commitment{}, dErrors.Wrap(err, dErrors.CodeInternal, "draw commitment secret")
	}
	return CommitWithSecret(value, secret)
}

// CommitWithSecret commits to value under a caller-chosen secret.
func CommitWithSecret(value string, secret common.Hash) (Commitment, error) {
	c, err := compute(value, secret)
	if err != nil {
		return Commitment{}, err
	}
	return Commitment{Commitment: c, Secret: secret, Value: value}, nil
}

// Open reports whether value and secret open commitment.
func Open(value string, secret, commitment common.Hash) bool {
	c, err := compute(value, secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(c.Bytes(), commitment.Bytes()) == 1
}

// MustOpen is Open returning BadCommitment on mismatch.
func MustOpen(value string, secret, commitment common.Hash) error {
	if !Open(value, secret, commitment) {
		return dErrors.New(dErrors.CodeBadCommitment, "commitment does not open")
	}
	return nil
}

func compute(value string, secret common.Hash) (common.Hash, error) {
	return hashing.SolidityKeccak256([]string{"string", "bytes32"}, []any{value, secret})
}
