package merkle

import (
	"encoding/binary"
	"fmt"

	"github.com/datacore/datacore/hash"
)

// NodeSize is the fixed wire size of a serialized Node: u64 index,
// u64 length, 32-byte hash.
const NodeSize = 8 + 8 + 32

// Node is one node of the Merkle tree: its flat-tree index, its hash,
// and the sum of content byte-lengths covered by its subtree.
type Node struct {
	Index  uint64
	Hash   hash.Hash
	Length uint64
}

// Bytes serializes a Node as u64_le(index) || u64_le(length) || hash[32].
func (n Node) Bytes() []byte {
	buf := make([]byte, NodeSize)
	binary.LittleEndian.PutUint64(buf[0:8], n.Index)
	binary.LittleEndian.PutUint64(buf[8:16], n.Length)
	copy(buf[16:48], n.Hash[:])
	return buf
}

// NodeFromBytes deserializes a 48-byte record into a Node.
func NodeFromBytes(b []byte) (Node, error) {
	var n Node
	if len(b) != NodeSize {
		return n, fmt.Errorf("merkle: node from bytes: want %d bytes, got %d", NodeSize, len(b))
	}
	n.Index = binary.LittleEndian.Uint64(b[0:8])
	n.Length = binary.LittleEndian.Uint64(b[8:16])
	h, err := hash.FromBytes(b[16:48])
	if err != nil {
		return n, err
	}
	n.Hash = h
	return n, nil
}

// Tree is the incremental Merkle roots stream of spec §4.1: it folds
// appended leaves into a bounded ordered list of roots covering disjoint,
// contiguous leaf ranges.
type Tree struct {
	roots  []Node
	blocks uint64
}

// New creates an empty Tree.
func New() *Tree {
	return &Tree{}
}

// FromRoots reconstructs a Tree from a persisted root list (as read back
// from the state store). blocks is derived from the last root's span.
func FromRoots(roots []Node) *Tree {
	t := &Tree{roots: append([]Node(nil), roots...)}
	if len(roots) > 0 {
		last := roots[len(roots)-1]
		t.blocks = 1 + RightSpan(last.Index)/2
	}
	return t
}

// Clone returns a deep copy of the tree, used by core.Append to verify an
// externally supplied tree signature without mutating the live state
// until verification succeeds.
func (t *Tree) Clone() *Tree {
	return &Tree{roots: append([]Node(nil), t.roots...), blocks: t.blocks}
}

// Blocks returns the number of leaves folded into the tree so far.
func (t *Tree) Blocks() uint64 { return t.blocks }

// Roots returns the current ordered list of roots. The returned slice
// must not be mutated by the caller.
func (t *Tree) Roots() []Node { return t.roots }

// RootsHash computes the roots-commitment hash (spec §3) over the
// current root list.
func (t *Tree) RootsHash() hash.Hash {
	entries := make([]hash.RootEntry, len(t.roots))
	for i, r := range t.roots {
		entries[i] = hash.RootEntry{Hash: r.Hash, Length: r.Length}
	}
	return hash.Roots(entries)
}

// Next folds one new leaf (its hash and content length) into the tree:
// it pushes a depth-0 node at index 2*blocks, then repeatedly merges the
// last two roots while they share a flat-tree parent.
func (t *Tree) Next(leafHash hash.Hash, length uint64) {
	node := Node{Index: 2 * t.blocks, Hash: leafHash, Length: length}
	t.roots = append(t.roots, node)
	t.blocks++

	for len(t.roots) > 1 {
		last := t.roots[len(t.roots)-1]
		secondLast := t.roots[len(t.roots)-2]
		if Parent(last.Index) != Parent(secondLast.Index) {
			break
		}
		merged := Node{
			Index:  Parent(secondLast.Index),
			Hash:   hash.Parent(secondLast.Hash, last.Hash, secondLast.Length+last.Length),
			Length: secondLast.Length + last.Length,
		}
		t.roots = t.roots[:len(t.roots)-2]
		t.roots = append(t.roots, merged)
	}
}
