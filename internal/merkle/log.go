package merkle

import (
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Log is the append-only attendance log. The tree is rebuilt from all leaves
// on every append, so Root always equals Build(leaves).Root.
type Log struct {
	mu     sync.RWMutex
	leaves []common.Hash
	tree   Tree
}

// Snapshot is a consistent view of the log.
type Snapshot struct {
	Leaves []common.Hash
	Tree   Tree
}

// NewLog seeds the log with leaves in insertion order.
func NewLog(leaves ...common.Hash) *Log {
	l := &Log{leaves: slices.Clone(leaves)}
	l.tree = Build(l.leaves)
	return l
}

// Append adds leaf and returns the new root.
func (l *Log) Append(leaf common.Hash) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leaves = append(l.leaves, leaf)
	l.tree = Build(l.leaves)
	return l.tree.Root
}

func (l *Log) Root() common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.Root
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.leaves)
}

// Snapshot returns the leaves in insertion order with the matching tree.
func (l *Log) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{Leaves: slices.Clone(l.leaves), Tree: l.tree}
}

// Prove returns the proof for leaf against the current root.
func (l *Log) Prove(leaf common.Hash) ([]common.Hash, common.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	proof, err := l.tree.ProofFor(leaf)
	if err != nil {
		return nil, common.Hash{}, err
	}
	return proof, l.tree.Root, nil
}
