// Package block defines the fixed-width on-disk block record that the
// core writes alongside each appended piece of content (spec §3, §4.2).
package block

import (
	"encoding/binary"
	"fmt"
)

// DataSigSize and TreeSigSize are both one Ed25519 signature (64 bytes).
const (
	DataSigSize = 64
	TreeSigSize = 64
	// Length is the fixed wire size of a Block record:
	// 8 (offset) + 4 (length) + 64 (data sig) + 64 (tree sig).
	Length = 8 + 4 + DataSigSize + TreeSigSize
)

// Signature bundles the two Ed25519 signatures attached to an appended
// block: one over the content's leaf hash, one over the Merkle roots
// hash including this block's position.
type Signature struct {
	Data [DataSigSize]byte
	Tree [TreeSigSize]byte
}

// Block is one appended unit's on-disk metadata: where its content lives
// in the content store, how long it is, and its two signatures.
type Block struct {
	Offset    uint64
	Len       uint32
	Signature Signature
}

// Bytes serializes a Block as little-endian offset, little-endian length,
// the 64-byte data signature, then the 64-byte tree signature.
func (b Block) Bytes() []byte {
	buf := make([]byte, Length)
	binary.LittleEndian.PutUint64(buf[0:8], b.Offset)
	binary.LittleEndian.PutUint32(buf[8:12], b.Len)
	copy(buf[12:12+DataSigSize], b.Signature.Data[:])
	copy(buf[12+DataSigSize:12+DataSigSize+TreeSigSize], b.Signature.Tree[:])
	return buf
}

// FromBytes deserializes a Block record. It fails if buf is shorter than
// Length; a short input can never be a valid record.
func FromBytes(buf []byte) (Block, error) {
	var b Block
	if len(buf) < Length {
		return b, fmt.Errorf("block: from bytes: want at least %d bytes, got %d", Length, len(buf))
	}
	b.Offset = binary.LittleEndian.Uint64(buf[0:8])
	b.Len = binary.LittleEndian.Uint32(buf[8:12])
	copy(b.Signature.Data[:], buf[12:12+DataSigSize])
	copy(b.Signature.Tree[:], buf[12+DataSigSize:12+DataSigSize+TreeSigSize])
	return b, nil
}
