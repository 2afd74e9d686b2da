package merkle

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/internal/hashing"
	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/testutil"
)

func leaves(n int) []common.Hash {
	out := make([]common.Hash, n)
	for i := range out {
		out[i] = hashing.Keccak256([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return out
}

func TestBuild(t *testing.T) {
	t.Run("empty input has zero root", func(t *testing.T) {
		tree := Build(nil)
		assert.Equal(t, common.Hash{}, tree.Root)
		assert.Empty(t, tree.Leaves())
	})

	t.Run("single leaf is its own root", func(t *testing.T) {
		l := leaves(1)
		tree := Build(l)
		assert.Equal(t, l[0], tree.Root)
		proof, err := tree.Proof(0)
		require.NoError(t, err)
		assert.Empty(t, proof)
		assert.True(t, Verify(l[0], proof, tree.Root))
	})

	t.Run("two leaves hash in ascending order", func(t *testing.T) {
		a, b := common.Hash{0x01}, common.Hash{0x02}
		expected := hashing.Keccak256(a.Bytes(), b.Bytes())
		assert.Equal(t, expected, Build([]common.Hash{b, a}).Root)
		assert.Equal(t, expected, Build([]common.Hash{a, b}).Root)
	})

	t.Run("odd node is promoted unchanged", func(t *testing.T) {
		a, b, c := common.Hash{0x01}, common.Hash{0x02}, common.Hash{0x03}
		tree := Build([]common.Hash{c, a, b})
		require.Len(t, tree.Levels, 3)
		assert.Equal(t, c, tree.Levels[1][1])
		ab := hashing.Keccak256(a.Bytes(), b.Bytes())
		expected := hashPair(ab, c)
		assert.Equal(t, expected, tree.Root)
	})

	t.Run("root is independent of insertion order", func(t *testing.T) {
		l := leaves(7)
		reversed := make([]common.Hash, len(l))
		for i := range l {
			reversed[len(l)-1-i] = l[i]
		}
		assert.Equal(t, Build(l).Root, Build(reversed).Root)
	})

	t.Run("input slice is not reordered", func(t *testing.T) {
		l := []common.Hash{{0x02}, {0x01}}
		Build(l)
		assert.Equal(t, common.Hash{0x02}, l[0])
	})
}

func TestProofs(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 8, 9, 13} {
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			tree := Build(leaves(n))
			for i, leaf := range tree.Leaves() {
				proof, err := tree.Proof(i)
				require.NoError(t, err)
				assert.True(t, Verify(leaf, proof, tree.Root), "leaf %d", i)

				for j := range tree.Leaves() {
					if j == i {
						continue
					}
					other, err := tree.Proof(j)
					require.NoError(t, err)
					if len(other) == len(proof) && fmt.Sprint(other) == fmt.Sprint(proof) {
						continue
					}
					assert.False(t, Verify(leaf, other, tree.Root), "leaf %d with proof %d", i, j)
				}
			}
		})
	}

	t.Run("out of range index", func(t *testing.T) {
		_, err := Build(leaves(3)).Proof(3)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("tampered leaf fails", func(t *testing.T) {
		tree := Build(leaves(9))
		leaf := tree.Leaves()[4]
		proof, err := tree.Proof(4)
		require.NoError(t, err)
		for i := range common.HashLength {
			tampered := leaf
			tampered[i] ^= 0x01
			assert.False(t, Verify(tampered, proof, tree.Root))
		}
	})
}

func TestAttendanceLeaf(t *testing.T) {
	subject := domain.MustSubjectID("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	leaf := AttendanceLeaf(subject, "marathon")
	packed, err := hashing.SolidityKeccak256([]string{"address", "string"}, []any{subject, "marathon"})
	require.NoError(t, err)
	assert.Equal(t, packed, leaf)
	assert.Equal(t, leaf, AttendanceLeaf(subject, "marathon"))
	assert.NotEqual(t, leaf, AttendanceLeaf(subject, "triathlon"))
}

func TestLog(t *testing.T) {
	t.Run("root always matches a rebuild", func(t *testing.T) {
		log := NewLog()
		var all []common.Hash
		for _, leaf := range leaves(6) {
			all = append(all, leaf)
			root := log.Append(leaf)
			assert.Equal(t, Build(all).Root, root)
		}
		snap := log.Snapshot()
		assert.Equal(t, all, snap.Leaves)
		assert.Equal(t, log.Root(), snap.Tree.Root)

		proof, root, err := log.Prove(all[2])
		require.NoError(t, err)
		assert.True(t, Verify(all[2], proof, root))
	})

	t.Run("unknown leaf has no proof", func(t *testing.T) {
		_, _, err := NewLog(leaves(2)...).Prove(common.Hash{0xff})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("concurrent appends are all recorded", func(t *testing.T) {
		log := NewLog()
		l := leaves(50)
		result := testutil.RunConcurrent(len(l), func(i int) error {
			log.Append(l[i])
			return nil
		})
		assert.Equal(t, int32(50), result.Successes)
		assert.Equal(t, 50, log.Len())
		assert.Equal(t, Build(l).Root, log.Root())
	})
}
