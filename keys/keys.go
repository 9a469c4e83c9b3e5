// Package keys provides Ed25519 keypair generation, signing, verification,
// and deterministic subkey derivation for a datacore log (spec §3, §6).
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20"

	"github.com/datacore/datacore/hash"
)

// SignatureSize is the byte length of a single Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// PublicKey is a 32-byte Ed25519 public key.
type PublicKey = ed25519.PublicKey

// SecretKey is a 64-byte Ed25519 private key (seed || public key, the
// stdlib's expanded representation).
type SecretKey = ed25519.PrivateKey

// ErrVerifyFailed is returned when a signature does not match its message
// under the given public key.
var ErrVerifyFailed = errors.New("keys: signature verification failed")

// Generate creates a fresh random Ed25519 keypair.
func Generate() (PublicKey, SecretKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// Sign signs msg with the given secret key.
func Sign(secret SecretKey, msg []byte) []byte {
	return ed25519.Sign(secret, msg)
}

// Verify reports whether sig is a valid signature of msg under public.
// It returns ErrVerifyFailed rather than a bare bool so that callers can
// use errors.Is uniformly with the rest of the error taxonomy.
func Verify(public PublicKey, msg, sig []byte) error {
	if !ed25519.Verify(public, msg, sig) {
		return ErrVerifyFailed
	}
	return nil
}

// DiscoveryKey derives a core's discovery key from its public key:
// blake3_keyed_hash(key = public key bytes, data = "hypercore"). See
// SPEC_FULL.md §9 for why the public key is the keying material and the
// literal string is the hashed message, not the reverse.
func DiscoveryKey(public PublicKey) hash.Hash {
	var key [hash.Size]byte
	copy(key[:], public)
	return hash.KeyedDiscovery(key, []byte("hypercore"))
}

// csprng is a deterministic byte stream seeded from a 32-byte
// seed via ChaCha20, used to feed ed25519.GenerateKey with reproducible
// randomness. It implements io.Reader.
type csprng struct {
	cipher *chacha20.Cipher
}

func newCSPRNG(seed [32]byte) (*csprng, error) {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		return nil, err
	}
	return &csprng{cipher: c}, nil
}

func (c *csprng) Read(p []byte) (int, error) {
	zero := make([]byte, len(p))
	c.cipher.XORKeyStream(p, zero)
	return len(p), nil
}

var _ io.Reader = (*csprng)(nil)

// DeriveKeypair deterministically derives an Ed25519 keypair from a
// secret's raw bytes and a context name: derive_key(name, secret) yields
// a 32-byte seed, which feeds a ChaCha20-seeded CSPRNG that in turn feeds
// ed25519.GenerateKey. The same (secret, name) pair always yields the
// same keypair (spec §3, §8).
func DeriveKeypair(secret []byte, name string) (PublicKey, SecretKey, error) {
	seed := hash.DeriveKey(name, secret)
	rng, err := newCSPRNG(seed)
	if err != nil {
		return nil, nil, err
	}
	pub, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}
