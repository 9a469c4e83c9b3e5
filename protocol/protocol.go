// Package protocol multiplexes many per-core replication channels over
// one encrypted wire.Conn: opening/closing channels, verifying capability
// proofs, and dispatching inbound messages to outbound Go channels
// (spec §4.6, §4.7). Grounded on
// original_source/protocol/src/protocol/{mod,handshake,main}.rs's
// handshake-stage/main-stage type split and its Event enum, translated
// from a poll-based Stream into a goroutine pair reading/writing the
// connection and publishing onto a buffered events channel — the natural
// Go shape for what the original expresses as a hand-rolled future.
package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/datacore/datacore/channels"
	"github.com/datacore/datacore/hash"
	applog "github.com/datacore/datacore/log"
	"github.com/datacore/datacore/keys"
	"github.com/datacore/datacore/noise"
	"github.com/datacore/datacore/schema"
	"github.com/datacore/datacore/wire"
)

// streamChannelID is the reserved channel ID (0) for stream-level
// messages; it is never dispatched as a per-core channel message.
const streamChannelID = 0

// EventKind identifies the shape of an Event.
type EventKind uint8

const (
	// EventDiscoveryKey fires when the peer opens a channel this side
	// has not yet opened locally.
	EventDiscoveryKey EventKind = iota
	// EventOpen fires once a channel is open on both sides and its
	// capability proof (if any) has verified.
	EventOpen
	// EventClose fires when a channel is torn down, locally or remotely.
	EventClose
	// EventMessage fires for every Request/Data message on an open
	// channel.
	EventMessage
)

// Event is one item read from Protocol.Events().
type Event struct {
	Kind         EventKind
	DiscoveryKey hash.Hash
	Type         schema.Type // valid only for EventMessage
	Payload      []byte      // valid only for EventMessage; still encoded
}

var log = applog.Default().Module("protocol")

type outboundMessage struct {
	localID uint32
	typ     schema.Type
	payload []byte
}

// Protocol multiplexes replication channels over a single handshaken
// connection. Construct with New after noise.Handshake has already
// completed.
type Protocol struct {
	conn          *wire.Conn
	handshakeHash [32]byte
	noiseEnabled  bool

	mu       sync.Mutex
	channels *channels.Map

	events   chan Event
	outbound chan outboundMessage

	errMu sync.Mutex
	err   error
	done  chan struct{}
	once  sync.Once
}

// New constructs a Protocol over a connection that has already run
// noise.Handshake. When handshake.Enabled is false, capabilities are
// neither generated nor required and frames are assumed unencrypted
// (spec §4.5's noise-disabled test configuration).
func New(conn *wire.Conn, handshake noise.Result) *Protocol {
	return &Protocol{
		conn:          conn,
		handshakeHash: handshake.HandshakeHash,
		noiseEnabled:  handshake.Enabled,
		channels:      channels.New(),
		events:        make(chan Event, 64),
		outbound:      make(chan outboundMessage, 64),
		done:          make(chan struct{}),
	}
}

// Events returns the channel of inbound protocol events. It is closed
// once the connection's read loop exits (see Err for the reason).
func (p *Protocol) Events() <-chan Event { return p.events }

// Err returns the error that stopped the protocol's goroutines, if any.
// Safe to call after Events() has been observed closed.
func (p *Protocol) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Run launches the read and write loops and blocks until ctx is
// cancelled or either loop exits with an error.
func (p *Protocol) Run(ctx context.Context) error {
	readDone := make(chan error, 1)
	writeDone := make(chan error, 1)

	go func() { readDone <- p.readLoop() }()
	go func() { writeDone <- p.writeLoop(ctx) }()

	var err error
	readPending, writePending := true, true
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-readDone:
		readPending = false
	case err = <-writeDone:
		writePending = false
	}

	p.setErr(err)
	p.shutdown()
	if readPending {
		<-readDone
	}
	if writePending {
		<-writeDone
	}
	close(p.events)
	return err
}

func (p *Protocol) setErr(err error) {
	if err == nil {
		return
	}
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()
}

func (p *Protocol) shutdown() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// Open announces interest in core's public key to the peer. secret is not
// used: when noise is enabled a capability proof derived from the session's
// handshake hash is attached either way. If the peer already opened this
// discovery key, Open synchronously verifies its capability proof before
// returning and queues an EventOpen.
func (p *Protocol) Open(public keys.PublicKey, secret keys.SecretKey) error {
	p.mu.Lock()
	handle := p.channels.AttachLocal(public)
	dk := handle.DiscoveryKey
	isOpen := handle.IsOpen()
	var localID uint32
	if handle.Local != nil {
		localID = handle.Local.LocalID
	}
	p.mu.Unlock()

	if isOpen {
		if err := p.verifyChannel(handle); err != nil {
			return err
		}
		p.queueEvent(Event{Kind: EventOpen, DiscoveryKey: dk})
	}

	var capability []byte
	if p.noiseEnabled {
		capability = noise.Capability(p.handshakeHash, dk)
	}
	msg := schema.Open{DiscoveryKey: dk.Bytes(), Capability: capability}
	return p.enqueue(localID, schema.TypeOpen, msg.Marshal())
}

// Close requests that the channel for discoveryKey be torn down.
func (p *Protocol) Close(discoveryKey hash.Hash) error {
	p.mu.Lock()
	handle, ok := p.channels.Get(discoveryKey)
	p.mu.Unlock()
	if !ok || !handle.IsOpen() {
		return nil
	}
	msg := schema.Close{DiscoveryKey: discoveryKey.Bytes()}
	return p.enqueue(handle.Local.LocalID, schema.TypeClose, msg.Marshal())
}

// Request sends a Request message on discoveryKey's channel.
func (p *Protocol) Request(discoveryKey hash.Hash, msg schema.Request) error {
	return p.send(discoveryKey, schema.TypeRequest, msg.Marshal())
}

// Data sends a Data message on discoveryKey's channel.
func (p *Protocol) Data(discoveryKey hash.Hash, msg schema.Data) error {
	return p.send(discoveryKey, schema.TypeData, msg.Marshal())
}

func (p *Protocol) send(discoveryKey hash.Hash, typ schema.Type, payload []byte) error {
	p.mu.Lock()
	handle, ok := p.channels.Get(discoveryKey)
	p.mu.Unlock()
	if !ok || !handle.IsOpen() {
		return nil
	}
	return p.enqueue(handle.Local.LocalID, typ, payload)
}

func (p *Protocol) enqueue(localID uint32, typ schema.Type, payload []byte) error {
	select {
	case p.outbound <- outboundMessage{localID: localID, typ: typ, payload: payload}:
		return nil
	case <-p.done:
		return fmt.Errorf("protocol: connection closed")
	}
}

func (p *Protocol) queueEvent(e Event) {
	select {
	case p.events <- e:
	case <-p.done:
	}
}

func (p *Protocol) verifyChannel(handle *channels.Handle) error {
	if !p.noiseEnabled {
		return nil
	}
	remoteCapability, err := handle.PrepareToVerify()
	if err != nil {
		return err
	}
	if remoteCapability == nil {
		return nil
	}
	return noise.VerifyCapability(p.handshakeHash, handle.DiscoveryKey, remoteCapability)
}

func (p *Protocol) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case out := <-p.outbound:
			if out.typ == schema.TypeClose {
				p.closeLocal(out.localID)
			}
			frame := schema.EncodeChannelMessage(out.localID, out.typ, out.payload)
			if err := p.conn.WriteFrame(frame); err != nil {
				return fmt.Errorf("protocol: write frame: %w", err)
			}
		}
	}
}

func (p *Protocol) readLoop() error {
	for {
		frame, err := p.conn.ReadFrame()
		if err != nil {
			return fmt.Errorf("protocol: read frame: %w", err)
		}
		cm, err := schema.DecodeChannelMessage(frame)
		if err != nil {
			return fmt.Errorf("protocol: decode frame: %w", err)
		}
		if cm.ChannelID == streamChannelID {
			continue
		}
		if err := p.onInboundMessage(cm); err != nil {
			return err
		}
	}
}

func (p *Protocol) onInboundMessage(cm schema.ChannelMessage) error {
	switch cm.Type {
	case schema.TypeOpen:
		msg, err := schema.UnmarshalOpen(cm.Payload)
		if err != nil {
			return fmt.Errorf("protocol: decode open: %w", err)
		}
		return p.onOpen(cm.ChannelID, msg)
	case schema.TypeClose:
		msg, err := schema.UnmarshalClose(cm.Payload)
		if err != nil {
			return fmt.Errorf("protocol: decode close: %w", err)
		}
		p.onClose(cm.ChannelID, msg)
		return nil
	default:
		p.mu.Lock()
		handle, ok := p.channels.GetRemote(cm.ChannelID)
		p.mu.Unlock()
		if ok {
			p.queueEvent(Event{Kind: EventMessage, DiscoveryKey: handle.DiscoveryKey, Type: cm.Type, Payload: cm.Payload})
		}
		return nil
	}
}

func (p *Protocol) onOpen(remoteID uint32, msg schema.Open) error {
	dk, err := hash.FromBytes(msg.DiscoveryKey)
	if err != nil {
		return fmt.Errorf("protocol: open message: %w", err)
	}

	p.mu.Lock()
	handle := p.channels.AttachRemote(dk, remoteID, msg.Capability)
	isOpen := handle.IsOpen()
	p.mu.Unlock()

	if isOpen {
		if err := p.verifyChannel(handle); err != nil {
			log.Warn("capability verification failed", "discoveryKey", dk.String(), "error", err)
			return err
		}
		p.queueEvent(Event{Kind: EventOpen, DiscoveryKey: dk})
	} else {
		p.queueEvent(Event{Kind: EventDiscoveryKey, DiscoveryKey: dk})
	}
	return nil
}

func (p *Protocol) closeLocal(localID uint32) {
	p.mu.Lock()
	handle, ok := p.channels.GetLocal(localID)
	var dk hash.Hash
	if ok {
		dk = handle.DiscoveryKey
		p.channels.Remove(dk)
	}
	p.mu.Unlock()
	if ok {
		p.queueEvent(Event{Kind: EventClose, DiscoveryKey: dk})
	}
}

func (p *Protocol) onClose(remoteID uint32, msg schema.Close) {
	p.mu.Lock()
	handle, ok := p.channels.GetRemote(remoteID)
	var dk hash.Hash
	if ok {
		dk = handle.DiscoveryKey
		match := string(msg.DiscoveryKey) == string(dk.Bytes())
		if match {
			p.channels.Remove(dk)
		} else {
			ok = false
		}
	}
	p.mu.Unlock()
	if ok {
		p.queueEvent(Event{Kind: EventClose, DiscoveryKey: dk})
	}
}
