// Package noise implements the Noise XX transport handshake that upgrades
// a raw wire.Conn into an encrypted, mutually authenticated one (spec
// §4.5, §4.6): both sides exchange three messages (e / e,ee,s,es / s,se),
// each revealing their long-term static key only once the growing
// session key can already encrypt it. The static key is each node's
// persistent Ed25519 identity, reinterpreted as a Curve25519 key via the
// standard birational map between Edwards25519 and Curve25519 (the same
// transform libsodium's crypto_sign_ed25519_sk_to_curve25519 performs),
// so a datacore node needs no second keypair to participate. Symmetric
// state handling (MixHash/MixKey/EncryptAndHash/DecryptAndHash, protocol
// name "Noise_XX_25519_ChaChaPoly_BLAKE2s") follows the Noise Protocol
// Framework specification directly, mirroring the teacher's ECIES
// handshake's shape — generate ephemeral keys, exchange messages over
// conn.WriteFrame/ReadFrame, derive symmetric frame keys from the
// completed exchange — while replacing P-256 ECIES with Curve25519/
// ChaCha20-Poly1305/BLAKE2s.
package noise

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/datacore/datacore/keys"
	"github.com/datacore/datacore/metrics"
	"github.com/datacore/datacore/wire"
)

const (
	xxProtocolName = "Noise_XX_25519_ChaChaPoly_BLAKE2s"

	// staticFieldSize is a 32-byte Curve25519 public key encrypted with
	// a 16-byte Poly1305 tag.
	staticFieldSize = curve25519.PointSize + chacha20poly1305.Overhead
	// payloadFieldSize is an empty payload encrypted with its tag alone.
	payloadFieldSize = chacha20poly1305.Overhead
)

var (
	// ErrInvalidMessage is returned when a handshake message has the
	// wrong size or fails to decrypt/derive correctly.
	ErrInvalidMessage = errors.New("noise: invalid handshake message")
	// ErrIdentityRequired is returned when Options.Enabled is true but no
	// identity keypair was supplied to derive a static key from.
	ErrIdentityRequired = errors.New("noise: identity required when noise is enabled")
)

// Options configures Handshake, mirroring the reference implementation's
// Options{is_initiator, noise} knob.
type Options struct {
	// Enabled runs the real Noise XX handshake when true. When false,
	// Handshake returns immediately without exchanging any messages or
	// installing ciphers: frames subsequently pass unencrypted and no
	// capability is ever generated or required (spec §4.5's "noise
	// disabled (test configuration)" mode).
	Enabled bool
	// Identity is this side's persistent Ed25519 keypair, reused as the
	// Noise XX static key. Required when Enabled is true.
	Identity keys.SecretKey
}

// DefaultOptions returns Options with noise enabled, using identity as
// the static key.
func DefaultOptions(identity keys.SecretKey) Options {
	return Options{Enabled: true, Identity: identity}
}

// Disabled returns Options with noise turned off entirely.
func Disabled() Options {
	return Options{}
}

// Result holds the outcome of Handshake: whether noise ran at all, and
// if so the transcript hash bound into capability tokens (see
// capability.go). The tx/rx stream ciphers, when noise is enabled, are
// already installed on the wire.Conn by the time Handshake returns.
type Result struct {
	Enabled       bool
	HandshakeHash [32]byte
}

// Handshake runs the Noise XX handshake over conn when opts.Enabled, or
// returns a disabled Result immediately otherwise.
func Handshake(conn *wire.Conn, initiator bool, opts Options) (Result, error) {
	if !opts.Enabled {
		return Result{}, nil
	}
	if opts.Identity == nil {
		return Result{}, ErrIdentityRequired
	}
	result, err := handshakeXX(conn, initiator, opts.Identity)
	if err != nil {
		metrics.HandshakesFailed.Inc()
		return result, err
	}
	metrics.HandshakesCompleted.Inc()
	return result, nil
}

func handshakeXX(conn *wire.Conn, initiator bool, identity keys.SecretKey) (Result, error) {
	sPriv, sPub, err := staticKeypair(identity)
	if err != nil {
		return Result{}, fmt.Errorf("noise: derive static key: %w", err)
	}
	ePriv, ePub, err := generateEphemeral()
	if err != nil {
		return Result{}, fmt.Errorf("noise: generate ephemeral key: %w", err)
	}

	ss := newSymmetricState(xxProtocolName)
	var reEph, rsStatic [32]byte

	if initiator {
		ss.mixHash(ePub)
		if err := conn.WriteFrame(cloneBytes(ePub)); err != nil {
			return Result{}, fmt.Errorf("noise: write message 1: %w", err)
		}

		msg2, err := conn.ReadFrame()
		if err != nil {
			return Result{}, fmt.Errorf("noise: read message 2: %w", err)
		}
		if len(msg2) != curve25519.PointSize+staticFieldSize+payloadFieldSize {
			return Result{}, ErrInvalidMessage
		}
		copy(reEph[:], msg2[:curve25519.PointSize])
		ss.mixHash(reEph[:])

		ee, err := curve25519.X25519(ePriv[:], reEph[:])
		if err != nil {
			return Result{}, fmt.Errorf("%w: ee: %v", ErrInvalidMessage, err)
		}
		ss.mixKey(ee)

		encS := msg2[curve25519.PointSize : curve25519.PointSize+staticFieldSize]
		rsPlain, err := ss.decryptAndHash(encS)
		if err != nil {
			return Result{}, fmt.Errorf("noise: decrypt remote static: %w", err)
		}
		copy(rsStatic[:], rsPlain)

		es, err := curve25519.X25519(ePriv[:], rsStatic[:])
		if err != nil {
			return Result{}, fmt.Errorf("%w: es: %v", ErrInvalidMessage, err)
		}
		ss.mixKey(es)

		if _, err := ss.decryptAndHash(msg2[curve25519.PointSize+staticFieldSize:]); err != nil {
			return Result{}, fmt.Errorf("noise: decrypt message 2 payload: %w", err)
		}

		encLocalS, err := ss.encryptAndHash(sPub[:])
		if err != nil {
			return Result{}, fmt.Errorf("noise: encrypt static key: %w", err)
		}
		se, err := curve25519.X25519(sPriv[:], reEph[:])
		if err != nil {
			return Result{}, fmt.Errorf("%w: se: %v", ErrInvalidMessage, err)
		}
		ss.mixKey(se)
		encPayload, err := ss.encryptAndHash(nil)
		if err != nil {
			return Result{}, fmt.Errorf("noise: encrypt message 3 payload: %w", err)
		}
		msg3 := append(append([]byte{}, encLocalS...), encPayload...)
		if err := conn.WriteFrame(msg3); err != nil {
			return Result{}, fmt.Errorf("noise: write message 3: %w", err)
		}
	} else {
		msg1, err := conn.ReadFrame()
		if err != nil {
			return Result{}, fmt.Errorf("noise: read message 1: %w", err)
		}
		if len(msg1) != curve25519.PointSize {
			return Result{}, ErrInvalidMessage
		}
		copy(reEph[:], msg1)
		ss.mixHash(reEph[:])

		ss.mixHash(ePub)
		ee, err := curve25519.X25519(ePriv[:], reEph[:])
		if err != nil {
			return Result{}, fmt.Errorf("%w: ee: %v", ErrInvalidMessage, err)
		}
		ss.mixKey(ee)

		encLocalS, err := ss.encryptAndHash(sPub[:])
		if err != nil {
			return Result{}, fmt.Errorf("noise: encrypt static key: %w", err)
		}
		es, err := curve25519.X25519(sPriv[:], reEph[:])
		if err != nil {
			return Result{}, fmt.Errorf("%w: es: %v", ErrInvalidMessage, err)
		}
		ss.mixKey(es)
		encPayload, err := ss.encryptAndHash(nil)
		if err != nil {
			return Result{}, fmt.Errorf("noise: encrypt message 2 payload: %w", err)
		}
		msg2 := append(append(append([]byte{}, ePub...), encLocalS...), encPayload...)
		if err := conn.WriteFrame(msg2); err != nil {
			return Result{}, fmt.Errorf("noise: write message 2: %w", err)
		}

		msg3, err := conn.ReadFrame()
		if err != nil {
			return Result{}, fmt.Errorf("noise: read message 3: %w", err)
		}
		if len(msg3) != staticFieldSize+payloadFieldSize {
			return Result{}, ErrInvalidMessage
		}
		rsPlain, err := ss.decryptAndHash(msg3[:staticFieldSize])
		if err != nil {
			return Result{}, fmt.Errorf("noise: decrypt remote static: %w", err)
		}
		copy(rsStatic[:], rsPlain)

		se, err := curve25519.X25519(ePriv[:], rsStatic[:])
		if err != nil {
			return Result{}, fmt.Errorf("%w: se: %v", ErrInvalidMessage, err)
		}
		ss.mixKey(se)
		if _, err := ss.decryptAndHash(msg3[staticFieldSize:]); err != nil {
			return Result{}, fmt.Errorf("noise: decrypt message 3 payload: %w", err)
		}
	}

	txKey, rxKey := ss.split()
	if !initiator {
		txKey, rxKey = rxKey, txKey
	}

	var zeroNonce [chacha20.NonceSize]byte
	tx, err := chacha20.NewUnauthenticatedCipher(txKey[:], zeroNonce[:])
	if err != nil {
		return Result{}, fmt.Errorf("noise: construct tx cipher: %w", err)
	}
	rx, err := chacha20.NewUnauthenticatedCipher(rxKey[:], zeroNonce[:])
	if err != nil {
		return Result{}, fmt.Errorf("noise: construct rx cipher: %w", err)
	}
	conn.SetCiphers(tx, rx)

	return Result{Enabled: true, HandshakeHash: ss.h}, nil
}

func cloneBytes(b []byte) []byte { return append([]byte{}, b...) }

// staticKeypair derives a Noise XX static keypair from identity: the
// clamped SHA-512 digest of the Ed25519 seed is exactly the scalar
// Ed25519 itself uses to compute the public point, so the resulting
// Curve25519 keypair is the birational image of the Ed25519 identity
// rather than an unrelated key.
func staticKeypair(identity keys.SecretKey) (priv, pub [32]byte, err error) {
	digest := sha512.Sum512(identity.Seed())
	copy(priv[:], digest[:32])
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], p)
	return priv, pub, nil
}

func generateEphemeral() (priv, pub [32]byte, err error) {
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return priv, pub, err
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], p)
	return priv, pub, nil
}

// symmetricState implements the Noise Protocol Framework's
// SymmetricState: a running handshake hash h, chaining key ck, and
// (once a DH output has been mixed in) an AEAD key used to encrypt and
// authenticate every subsequent field.
type symmetricState struct {
	ck     [32]byte
	h      [32]byte
	hasKey bool
	k      [32]byte
	n      uint64
}

func newSymmetricState(protocolName string) *symmetricState {
	ss := &symmetricState{}
	name := []byte(protocolName)
	if len(name) <= len(ss.h) {
		copy(ss.h[:], name)
	} else {
		ss.h = blake2s.Sum256(name)
	}
	ss.ck = ss.h
	return ss
}

func (ss *symmetricState) mixHash(data []byte) {
	buf := make([]byte, 0, len(ss.h)+len(data))
	buf = append(buf, ss.h[:]...)
	buf = append(buf, data...)
	ss.h = blake2s.Sum256(buf)
}

// mixKey runs the Noise HKDF over the current chaining key and ikm,
// installing the first output as the new chaining key and the second as
// a fresh AEAD key with its nonce counter reset.
func (ss *symmetricState) mixKey(ikm []byte) {
	var out [64]byte
	reader := hkdf.New(newBlake2sHash, ikm, ss.ck[:], nil)
	io.ReadFull(reader, out[:])
	copy(ss.ck[:], out[:32])
	copy(ss.k[:], out[32:])
	ss.hasKey = true
	ss.n = 0
}

func (ss *symmetricState) split() (c1, c2 [32]byte) {
	var out [64]byte
	reader := hkdf.New(newBlake2sHash, nil, ss.ck[:], nil)
	io.ReadFull(reader, out[:])
	copy(c1[:], out[:32])
	copy(c2[:], out[32:])
	return c1, c2
}

func (ss *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	if !ss.hasKey {
		ss.mixHash(plaintext)
		return append([]byte{}, plaintext...), nil
	}
	aead, err := chacha20poly1305.New(ss.k[:])
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, ss.nonce(), plaintext, ss.h[:])
	ss.n++
	ss.mixHash(ciphertext)
	return ciphertext, nil
}

func (ss *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	if !ss.hasKey {
		plaintext := append([]byte{}, ciphertext...)
		ss.mixHash(ciphertext)
		return plaintext, nil
	}
	aead, err := chacha20poly1305.New(ss.k[:])
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, ss.nonce(), ciphertext, ss.h[:])
	if err != nil {
		return nil, err
	}
	ss.n++
	ss.mixHash(ciphertext)
	return plaintext, nil
}

func (ss *symmetricState) nonce() []byte {
	var nonce [chacha20poly1305.NonceSize]byte
	for i := 0; i < 8; i++ {
		nonce[4+i] = byte(ss.n >> (8 * i))
	}
	return nonce[:]
}

func newBlake2sHash() hash.Hash {
	h, err := blake2s.New256(nil)
	if err != nil {
		// blake2s.New256 only fails for an oversized key, and we pass nil.
		panic(err)
	}
	return h
}
