// Package core implements the append-only log engine: signing, Merkle
// update, three-store write, and read-verify (spec §3, §4.3).
package core

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/datacore/datacore/block"
	"github.com/datacore/datacore/hash"
	"github.com/datacore/datacore/keys"
	applog "github.com/datacore/datacore/log"
	"github.com/datacore/datacore/merkle"
	"github.com/datacore/datacore/metrics"
	"github.com/datacore/datacore/storage"
)

var (
	blocksAppended = metrics.DefaultRegistry.Counter("core_blocks_appended")
	bytesAppended  = metrics.DefaultRegistry.Counter("core_bytes_appended")
	coreLength     = metrics.DefaultRegistry.Gauge("core_length")
)

// MaxCoreLength and MaxBlockSize are both capped at u32::MAX per spec §3.
const (
	MaxCoreLength = 1<<32 - 1
	MaxBlockSize  = 1<<32 - 1
)

var (
	// ErrOversize is returned when appended content exceeds MaxBlockSize
	// or the core has reached MaxCoreLength blocks.
	ErrOversize = errors.New("core: content or core length exceeds maximum")
	// ErrMissingSecretKey is returned when Append is called without a
	// signature and the core was opened without a secret key.
	ErrMissingSecretKey = errors.New("core: append without signature requires a secret key")
	// ErrSignatureInvalid is returned when an externally supplied
	// signature fails verification.
	ErrSignatureInvalid = errors.New("core: signature verification failed")
	// ErrAbsent is returned by Get/Head when the requested index does
	// not exist.
	ErrAbsent = errors.New("core: index absent")
)

var log = applog.Default().Module("core")

// Signature is an externally supplied pair of signatures to verify and
// append, mirroring block.Signature but expressed at the API boundary.
type Signature = block.Signature

// Core is a single append-only log identified by an Ed25519 public key.
type Core struct {
	public PublicKeyBytes
	secret SecretKeyBytes // nil if this core is read-only

	length     uint64
	byteLength uint64
	merkle     *merkle.Tree

	content *storage.ContentStore
	blocks  *storage.BlockStore
	state   *storage.StateStore
}

// PublicKeyBytes and SecretKeyBytes alias the keys package's Ed25519 key
// types for readability within this package.
type (
	PublicKeyBytes = keys.PublicKey
	SecretKeyBytes = keys.SecretKey
)

// Open opens a core over the three given storage backends. It recovers
// the Merkle state from the state store, then derives length and
// byte_length, reading the last block record only if length > 0.
func Open(contentBackend, blockBackend, stateBackend storage.RandomAccess, public PublicKeyBytes, secret SecretKeyBytes) (*Core, error) {
	content := storage.NewContentStore(contentBackend)
	blocks := storage.NewBlockStore(blockBackend)
	state := storage.NewStateStore(stateBackend)

	roots, err := state.Read()
	if err != nil {
		return nil, fmt.Errorf("core: open: recover state: %w", err)
	}
	tree := merkle.FromRoots(roots)

	c := &Core{
		public:  public,
		secret:  secret,
		length:  tree.Blocks(),
		merkle:  tree,
		content: content,
		blocks:  blocks,
		state:   state,
	}

	if c.length > 0 {
		last, err := blocks.Read(c.length - 1)
		if err != nil {
			return nil, fmt.Errorf("core: open: recover last block record: %w", err)
		}
		c.byteLength = last.Offset + uint64(last.Len)
	}

	log.Debug("opened core", "length", c.length, "byte_length", c.byteLength)
	return c, nil
}

// Len returns the number of appended blocks.
func (c *Core) Len() uint64 { return c.length }

// IsEmpty reports whether the core has zero appended blocks.
func (c *Core) IsEmpty() bool { return c.length == 0 }

// PublicKey returns the core's public key.
func (c *Core) PublicKey() PublicKeyBytes { return c.public }

// SecretKey returns the core's secret key, or nil if this core is
// read-only.
func (c *Core) SecretKey() SecretKeyBytes { return c.secret }

// Append appends content to the log. If signature is non-nil, it is
// verified against the public key rather than produced locally (the
// replication path); otherwise the core must hold a secret key and signs
// both hashes itself.
func (c *Core) Append(ctx context.Context, content []byte, signature *Signature) (block.Block, error) {
	if uint64(len(content)) > MaxBlockSize || c.length >= MaxCoreLength {
		return block.Block{}, ErrOversize
	}

	dataHash := hash.Leaf(content)

	var sig Signature
	if signature != nil {
		if err := keys.Verify(c.public, dataHash.Bytes(), signature.Data[:]); err != nil {
			return block.Block{}, fmt.Errorf("%w: data signature: %v", ErrSignatureInvalid, err)
		}

		clone := c.merkle.Clone()
		clone.Next(dataHash, uint64(len(content)))
		treeHash := clone.RootsHash()
		if err := keys.Verify(c.public, treeHash.Bytes(), signature.Tree[:]); err != nil {
			return block.Block{}, fmt.Errorf("%w: tree signature: %v", ErrSignatureInvalid, err)
		}

		c.merkle = clone
		sig = *signature
	} else {
		if c.secret == nil {
			return block.Block{}, ErrMissingSecretKey
		}
		c.merkle.Next(dataHash, uint64(len(content)))
		copy(sig.Data[:], keys.Sign(c.secret, dataHash.Bytes()))
		copy(sig.Tree[:], keys.Sign(c.secret, c.merkle.RootsHash().Bytes()))
	}

	offset := c.byteLength
	b := block.Block{Offset: offset, Len: uint32(len(content)), Signature: sig}

	var g errgroup.Group
	g.Go(func() error { return c.content.Write(offset, content) })
	g.Go(func() error { return c.blocks.Write(c.length, b) })
	if err := g.Wait(); err != nil {
		return block.Block{}, fmt.Errorf("core: append: write content/block: %w", err)
	}

	if err := c.state.Write(c.merkle.Roots()); err != nil {
		return block.Block{}, fmt.Errorf("core: append: write state: %w", err)
	}

	c.byteLength += uint64(len(content))
	c.length++

	blocksAppended.Inc()
	bytesAppended.Add(int64(len(content)))
	coreLength.Set(int64(c.length))

	log.Debug("appended block", "index", c.length-1, "offset", offset, "length", len(content))
	return b, nil
}

// Get reads the content and signature of the block at index. It returns
// ErrAbsent if index >= Len. No hash recomputation happens here; the
// returned signatures are for the caller to verify or forward.
func (c *Core) Get(index uint64) ([]byte, Signature, error) {
	if index >= c.length {
		return nil, Signature{}, ErrAbsent
	}

	rec, err := c.blocks.Read(index)
	if err != nil {
		return nil, Signature{}, fmt.Errorf("core: get: read block record: %w", err)
	}
	content, err := c.content.Read(rec.Offset, uint64(rec.Len))
	if err != nil {
		return nil, Signature{}, fmt.Errorf("core: get: read content: %w", err)
	}
	return content, rec.Signature, nil
}

// Head returns the most recently appended block, or ErrAbsent if empty.
func (c *Core) Head() ([]byte, Signature, error) {
	if c.length == 0 {
		return nil, Signature{}, ErrAbsent
	}
	return c.Get(c.length - 1)
}

// RootsHash returns the roots-commitment hash of the current Merkle
// state, exposed so a replica can independently compute a tree signature
// before appending via the signature-provided path.
func (c *Core) RootsHash() hash.Hash { return c.merkle.RootsHash() }

// DiscoveryKeyOf returns c's discovery key, derived from its public key.
func DiscoveryKeyOf(c *Core) hash.Hash {
	return keys.DiscoveryKey(c.public)
}
