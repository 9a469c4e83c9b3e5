package protocol

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/datacore/datacore/keys"
	"github.com/datacore/datacore/noise"
	"github.com/datacore/datacore/schema"
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

func handshakenPair(t *testing.T) (*Protocol, *Protocol, func()) {
	t.Helper()
	a, b := pipePair()
	connA := wire.NewConn(a, -1)
	connB := wire.NewConn(b, -1)

	_, secretA, err := keys.Generate()
	require.NoError(t, err)
	_, secretB, err := keys.Generate()
	require.NoError(t, err)

	var wg sync.WaitGroup
	var resA, resB noise.Result
	wg.Add(2)
	go func() { defer wg.Done(); resA, _ = noise.Handshake(connA, true, noise.DefaultOptions(secretA)) }()
	go func() { defer wg.Done(); resB, _ = noise.Handshake(connB, false, noise.DefaultOptions(secretB)) }()
	wg.Wait()

	pa := New(connA, resA)
	pb := New(connB, resB)

	ctx, cancel := context.WithCancel(context.Background())
	go pa.Run(ctx)
	go pb.Run(ctx)

	return pa, pb, cancel
}

func waitEvent(t *testing.T, p *Protocol, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-p.Events():
			if !ok {
				t.Fatalf("events channel closed before %v observed, err=%v", kind, p.Err())
			}
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func TestOpenFromBothSidesEmitsOpenEvent(t *testing.T) {
	pa, pb, cancel := handshakenPair(t)
	defer cancel()

	public, secret, err := keys.Generate()
	require.NoError(t, err)

	require.NoError(t, pa.Open(public, secret))
	require.NoError(t, pb.Open(public, secret))

	waitEvent(t, pa, EventOpen, 2*time.Second)
	waitEvent(t, pb, EventOpen, 2*time.Second)
}

func TestOpenFromOneSideEmitsDiscoveryKey(t *testing.T) {
	pa, pb, cancel := handshakenPair(t)
	defer cancel()

	public, secret, err := keys.Generate()
	require.NoError(t, err)

	require.NoError(t, pa.Open(public, secret))
	waitEvent(t, pb, EventDiscoveryKey, 2*time.Second)
}

func TestRequestAndDataFlowOverOpenChannel(t *testing.T) {
	pa, pb, cancel := handshakenPair(t)
	defer cancel()

	public, secret, err := keys.Generate()
	require.NoError(t, err)
	dk := keys.DiscoveryKey(public)

	require.NoError(t, pa.Open(public, secret))
	require.NoError(t, pb.Open(public, secret))
	waitEvent(t, pa, EventOpen, 2*time.Second)
	waitEvent(t, pb, EventOpen, 2*time.Second)

	require.NoError(t, pa.Request(dk, schema.Request{Index: 5}))
	ev := waitEvent(t, pb, EventMessage, 2*time.Second)
	require.Equal(t, schema.TypeRequest, ev.Type)
	req, err := schema.UnmarshalRequest(ev.Payload)
	require.NoError(t, err)
	require.EqualValues(t, 5, req.Index)
}

func TestCloseTearsDownChannelBothSides(t *testing.T) {
	pa, pb, cancel := handshakenPair(t)
	defer cancel()

	public, secret, err := keys.Generate()
	require.NoError(t, err)
	dk := keys.DiscoveryKey(public)

	require.NoError(t, pa.Open(public, secret))
	require.NoError(t, pb.Open(public, secret))
	waitEvent(t, pa, EventOpen, 2*time.Second)
	waitEvent(t, pb, EventOpen, 2*time.Second)

	require.NoError(t, pa.Close(dk))
	waitEvent(t, pa, EventClose, 2*time.Second)
	waitEvent(t, pb, EventClose, 2*time.Second)
}
