package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/datacore/datacore/block"
	"github.com/datacore/datacore/merkle"
)

// ContentStore writes and reads raw appended content, contiguous starting
// at offset 0 (spec §4.2, §6).
type ContentStore struct {
	backend RandomAccess
}

// NewContentStore wraps a backend as a content store.
func NewContentStore(backend RandomAccess) *ContentStore {
	return &ContentStore{backend: backend}
}

// Write writes content at the given byte offset.
func (s *ContentStore) Write(offset uint64, content []byte) error {
	return s.backend.WriteAt(offset, content)
}

// Read reads length bytes of content at the given byte offset.
func (s *ContentStore) Read(offset, length uint64) ([]byte, error) {
	return s.backend.ReadAt(offset, length)
}

// Close closes the underlying backend.
func (s *ContentStore) Close() error { return s.backend.Close() }

// BlockStore writes and reads fixed 140-byte block records at offset
// index*140 (spec §4.2, §6).
type BlockStore struct {
	backend RandomAccess
}

// NewBlockStore wraps a backend as a block-record store.
func NewBlockStore(backend RandomAccess) *BlockStore {
	return &BlockStore{backend: backend}
}

// Write writes the block record for the given index.
func (s *BlockStore) Write(index uint64, b block.Block) error {
	return s.backend.WriteAt(index*block.Length, b.Bytes())
}

// Read reads the block record at the given index.
func (s *BlockStore) Read(index uint64) (block.Block, error) {
	buf, err := s.backend.ReadAt(index*block.Length, block.Length)
	if err != nil {
		return block.Block{}, err
	}
	return block.FromBytes(buf)
}

// Close closes the underlying backend.
func (s *BlockStore) Close() error { return s.backend.Close() }

// StateStore serializes the Merkle root list as
// u32_le(count) || count*48-byte Node, always rewritten in full at
// offset 0 (spec §4.2, §6). A short or missing header is treated as "no
// persisted roots yet" rather than an error — the only recoverable read
// failure in the system.
type StateStore struct {
	backend RandomAccess
}

// NewStateStore wraps a backend as a state store.
func NewStateStore(backend RandomAccess) *StateStore {
	return &StateStore{backend: backend}
}

// Write serializes and persists the full root list, replacing whatever
// was there before.
func (s *StateStore) Write(roots []merkle.Node) error {
	buf := make([]byte, 4+len(roots)*merkle.NodeSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(roots)))
	for i, n := range roots {
		copy(buf[4+i*merkle.NodeSize:4+(i+1)*merkle.NodeSize], n.Bytes())
	}
	return s.backend.WriteAt(0, buf)
}

// Read recovers the persisted root list. If the 4-byte header cannot be
// read (nothing has ever been written), it returns an empty list rather
// than an error, per spec §4.2.
func (s *StateStore) Read() ([]merkle.Node, error) {
	header, err := s.backend.ReadAt(0, 4)
	if err != nil {
		if errors.Is(err, ErrShortRead) {
			return nil, nil
		}
		return nil, err
	}
	count := binary.LittleEndian.Uint32(header)
	if count == 0 {
		return nil, nil
	}

	body, err := s.backend.ReadAt(4, uint64(count)*merkle.NodeSize)
	if err != nil {
		return nil, fmt.Errorf("storage: state store: truncated root list: %w", err)
	}

	roots := make([]merkle.Node, count)
	for i := range roots {
		n, err := merkle.NodeFromBytes(body[i*merkle.NodeSize : (i+1)*merkle.NodeSize])
		if err != nil {
			return nil, err
		}
		roots[i] = n
	}
	return roots, nil
}

// Close closes the underlying backend.
func (s *StateStore) Close() error { return s.backend.Close() }
