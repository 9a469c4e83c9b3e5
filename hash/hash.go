// Package hash provides the domain-tagged Blake3 hashes used to build and
// verify a datacore Merkle tree: leaf hashes over raw content, parent
// hashes over a pair of children, and a root-commitment hash over the
// current set of Merkle roots.
package hash

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the byte length of a Hash.
const Size = 32

const (
	leafTag   = 0x00
	parentTag = 0x01
	rootsTag  = 0x02
)

// Hash is a 32-byte Blake3 digest. The zero value is not a valid hash of
// anything; it only ever arises as a placeholder before FromBytes.
type Hash [Size]byte

// String renders the hash as lowercase hex, matching the teacher's
// convention for fixed-size digests in log fields.
func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// FromBytes deserializes a 32-byte slice into a Hash. It is the identity
// deserialization named in spec §3; the only validation is length.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("hash: from bytes: want %d bytes, got %d", Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Leaf computes leaf(data) = H(0x00 || u64_le(len(data)) || data).
func Leaf(data []byte) Hash {
	h := blake3.New(Size, nil)
	writeTagged(h, leafTag, uint64(len(data)), data)
	return sum(h)
}

// Parent computes parent(left, right, length) = H(0x01 || u64_le(length) || left || right).
func Parent(left, right Hash, length uint64) Hash {
	h := blake3.New(Size, nil)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], length)
	h.Write([]byte{parentTag})
	h.Write(lenBuf[:])
	h.Write(left[:])
	h.Write(right[:])
	return sum(h)
}

// RootEntry is one (hash, length) pair folded into a Roots commitment.
type RootEntry struct {
	Hash   Hash
	Length uint64
}

// Roots computes roots([(h_i,len_i)]) = H(0x02 || for each (len,h): u64_le(len) || h).
func Roots(entries []RootEntry) Hash {
	h := blake3.New(Size, nil)
	h.Write([]byte{rootsTag})
	var lenBuf [8]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint64(lenBuf[:], e.Length)
		h.Write(lenBuf[:])
		h.Write(e.Hash[:])
	}
	return sum(h)
}

// KeyedDiscovery computes a Blake3 keyed hash with the given 32-byte key
// over the supplied message. Used by the keys package to derive a core's
// discovery key from its public key (spec §3, §9 open question).
func KeyedDiscovery(key [Size]byte, message []byte) Hash {
	h := blake3.New(Size, key[:])
	h.Write(message)
	return sum(h)
}

// DeriveKey derives a 32-byte seed from a context name and input key
// material via Blake3's dedicated key-derivation function, used by the
// keys package for deterministic subkey derivation.
func DeriveKey(name string, material []byte) [Size]byte {
	return blake3.DeriveKey(name, material)
}

func writeTagged(h *blake3.Hasher, tag byte, length uint64, data []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], length)
	h.Write([]byte{tag})
	h.Write(lenBuf[:])
	h.Write(data)
}

func sum(h *blake3.Hasher) Hash {
	var out Hash
	h.Sum(out[:0])
	return out
}
