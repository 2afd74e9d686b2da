// Package merkle implements the sorted-pair keccak-256 Merkle tree over
// attendance leaves.
package merkle

import (
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"racepass/internal/hashing"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

// Tree is an immutable snapshot. Levels[0] holds the sorted leaves and the
// last level holds the root.
type Tree struct {
	Levels [][]common.Hash `json:"levels"`
	Root   common.Hash     `json:"root"`
}

// AttendanceLeaf is keccak256(pack(address subject, string eventId)).
func AttendanceLeaf(subject domain.SubjectID, eventID domain.EventID) common.Hash {
	return hashing.Keccak256(subject.Bytes(), []byte(eventID))
}

// Build sorts a copy of leaves and folds pairs upward. Each pair is ordered
// ascending before hashing; a trailing odd node is carried up unchanged. An
// empty input yields the zero root.
func Build(leaves []common.Hash) Tree {
	if len(leaves) == 0 {
		return Tree{}
	}
	level := slices.Clone(leaves)
	slices.SortFunc(level, compare)
	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return Tree{Levels: levels, Root: level[0]}
}

// Leaves returns the sorted leaf level.
func (t Tree) Leaves() []common.Hash {
	if len(t.Levels) == 0 {
		return nil
	}
	return t.Levels[0]
}

// IndexOf returns the position of leaf in the sorted leaf level, or -1.
func (t Tree) IndexOf(leaf common.Hash) int {
	return slices.Index(t.Leaves(), leaf)
}

// Proof returns the sibling hashes from leaf level to just below the root.
func (t Tree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= len(t.Leaves()) {
		return nil, dErrors.New(dErrors.CodeNotFound, "leaf index out of range")
	}
	var proof []common.Hash
	for _, level := range t.Levels[:len(t.Levels)-1] {
		if sibling := index ^ 1; sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		index >>= 1
	}
	return proof, nil
}

// ProofFor locates leaf and returns its proof.
func (t Tree) ProofFor(leaf common.Hash) ([]common.Hash, error) {
	idx := t.IndexOf(leaf)
	if idx < 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "leaf not in tree")
	}
	return t.Proof(idx)
}

// Verify folds proof into leaf, ordering each pair before hashing, and
// compares against root.
func Verify(leaf common.Hash, proof []common.Hash, root common.Hash) bool {
	acc := leaf
	for _, sibling := range proof {
		acc = hashPair(acc, sibling)
	}
	return acc == root
}

func hashPair(a, b common.Hash) common.Hash {
	if compare(a, b) > 0 {
		a, b = b, a
	}
	return hashing.Keccak256(a.Bytes(), b.Bytes())
}

func compare(a, b common.Hash) int {
	return bytes.Compare(a[:], b[:])
}
