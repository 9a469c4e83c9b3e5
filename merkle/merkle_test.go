package merkle

import (
	"math/bits"
	"testing"

	"github.com/datacore/datacore/hash"
	"github.com/stretchr/testify/require"
)

func TestTreeThreeLeaves(t *testing.T) {
	tr := New()
	tr.Next(hash.Leaf([]byte("a")), 1)
	tr.Next(hash.Leaf([]byte("b")), 1)
	tr.Next(hash.Leaf([]byte("c")), 1)

	require.Equal(t, uint64(3), tr.Blocks())
	roots := tr.Roots()
	require.Len(t, roots, 2)
	require.Equal(t, uint64(1), roots[0].Index)
	require.Equal(t, uint64(4), roots[1].Index)
}

func TestTreeFourLeavesFullyMerged(t *testing.T) {
	tr := New()
	for _, s := range []string{"a", "b", "c", "d"} {
		tr.Next(hash.Leaf([]byte(s)), 1)
	}
	roots := tr.Roots()
	require.Len(t, roots, 1)
	require.Equal(t, uint64(3), roots[0].Index)
	require.Equal(t, uint64(4), roots[0].Length)
}

func TestTreePopcountInvariant(t *testing.T) {
	tr := New()
	for n := 1; n <= 32; n++ {
		tr.Next(hash.Leaf([]byte{byte(n)}), 1)
		require.Len(t, tr.Roots(), bits.OnesCount(uint(n)))
	}
}

func TestTreeDeterministic(t *testing.T) {
	build := func(words []string) hash.Hash {
		tr := New()
		for _, w := range words {
			tr.Next(hash.Leaf([]byte(w)), uint64(len(w)))
		}
		return tr.RootsHash()
	}
	h1 := build([]string{"hello", "world"})
	h2 := build([]string{"hello", "world"})
	require.Equal(t, h1, h2)

	h3 := build([]string{"hello", "mundo"})
	require.NotEqual(t, h1, h3)
}

func TestNodeRoundTrip(t *testing.T) {
	n := Node{Index: 11, Hash: hash.Leaf([]byte("x")), Length: 42}
	out, err := NodeFromBytes(n.Bytes())
	require.NoError(t, err)
	require.Equal(t, n, out)
}

func TestFromRootsRecoversBlocks(t *testing.T) {
	tr := New()
	for _, s := range []string{"a", "b", "c"} {
		tr.Next(hash.Leaf([]byte(s)), 1)
	}
	recovered := FromRoots(tr.Roots())
	require.Equal(t, tr.Blocks(), recovered.Blocks())
	require.Equal(t, tr.RootsHash(), recovered.RootsHash())
}

func TestCloneIndependence(t *testing.T) {
	tr := New()
	tr.Next(hash.Leaf([]byte("a")), 1)
	clone := tr.Clone()
	clone.Next(hash.Leaf([]byte("b")), 1)

	require.Equal(t, uint64(1), tr.Blocks())
	require.Equal(t, uint64(2), clone.Blocks())
}
