package noise

import (
	"io"
	"sync"
	"testing"

	"github.com/datacore/datacore/hash"
	"github.com/datacore/datacore/keys"
	"github.com/datacore/datacore/wire"
	"github.com/stretchr/testify/require"
)

type loopback struct {
	io.Reader
	io.Writer
}

func (loopback) Close() error { return nil }

func pipePair() (a, b io.ReadWriteCloser) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return loopback{Reader: ar, Writer: aw}, loopback{Reader: br, Writer: bw}
}

func generateIdentity(t *testing.T) keys.SecretKey {
	t.Helper()
	_, secret, err := keys.Generate()
	require.NoError(t, err)
	return secret
}

func TestHandshakeDerivesMatchingTranscript(t *testing.T) {
	a, b := pipePair()
	ca := wire.NewConn(a, -1)
	cb := wire.NewConn(b, -1)
	defer ca.Close()
	defer cb.Close()

	idA, idB := generateIdentity(t), generateIdentity(t)

	var wg sync.WaitGroup
	var resA, resB Result
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); resA, errA = Handshake(ca, true, DefaultOptions(idA)) }()
	go func() { defer wg.Done(); resB, errB = Handshake(cb, false, DefaultOptions(idB)) }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.True(t, resA.Enabled)
	require.True(t, resB.Enabled)
	require.Equal(t, resA.HandshakeHash, resB.HandshakeHash)
}

func TestHandshakeEncryptsSubsequentFrames(t *testing.T) {
	a, b := pipePair()
	ca := wire.NewConn(a, -1)
	cb := wire.NewConn(b, -1)
	defer ca.Close()
	defer cb.Close()

	idA, idB := generateIdentity(t), generateIdentity(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = Handshake(ca, true, DefaultOptions(idA)) }()
	go func() { defer wg.Done(); _, _ = Handshake(cb, false, DefaultOptions(idB)) }()
	wg.Wait()

	done := make(chan error, 1)
	go func() { done <- ca.WriteFrame([]byte("post-handshake payload")) }()

	got, err := cb.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, []byte("post-handshake payload"), got)
}

func TestHandshakeDisabledSkipsExchangeAndLeavesFramesPlaintext(t *testing.T) {
	a, b := pipePair()
	ca := wire.NewConn(a, -1)
	cb := wire.NewConn(b, -1)
	defer ca.Close()
	defer cb.Close()

	resA, errA := Handshake(ca, true, Disabled())
	require.NoError(t, errA)
	require.False(t, resA.Enabled)

	done := make(chan error, 1)
	go func() { done <- ca.WriteFrame([]byte("plaintext payload")) }()

	got, err := cb.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, []byte("plaintext payload"), got)
}

func TestCapabilitySignAndVerify(t *testing.T) {
	var handshakeHash [32]byte
	copy(handshakeHash[:], []byte("session-transcript-hash-32-bytes"))
	dk := hash.Leaf([]byte("some discovery key material"))

	cap := Capability(handshakeHash, dk)
	require.NoError(t, VerifyCapability(handshakeHash, dk, cap))
}

func TestCapabilityRejectsWrongSession(t *testing.T) {
	var sessionA, sessionB [32]byte
	copy(sessionA[:], []byte("session-a-transcript-hash-32byte"))
	copy(sessionB[:], []byte("session-b-transcript-hash-32byte"))
	dk := hash.Leaf([]byte("discovery key"))

	cap := Capability(sessionA, dk)
	require.Error(t, VerifyCapability(sessionB, dk, cap))
}

func TestCapabilityRejectsWrongDiscoveryKey(t *testing.T) {
	var handshakeHash [32]byte
	copy(handshakeHash[:], []byte("session-transcript-hash-32-bytes"))
	dkA := hash.Leaf([]byte("discovery key a"))
	dkB := hash.Leaf([]byte("discovery key b"))

	cap := Capability(handshakeHash, dkA)
	require.Error(t, VerifyCapability(handshakeHash, dkB, cap))
}

func TestCapabilityComputableWithoutASecretKey(t *testing.T) {
	var handshakeHash [32]byte
	copy(handshakeHash[:], []byte("session-transcript-hash-32-bytes"))
	dk := hash.Leaf([]byte("discovery key"))

	// Any two parties that completed the same session can independently
	// compute the identical capability value — no secret key involved.
	writerSide := Capability(handshakeHash, dk)
	readerSide := Capability(handshakeHash, dk)
	require.Equal(t, writerSide, readerSide)
	require.NoError(t, VerifyCapability(handshakeHash, dk, readerSide))
}
