package replication

import (
	"context"
	"fmt"
	"time"

	"github.com/datacore/datacore/hash"
	"github.com/datacore/datacore/keys"
	applog "github.com/datacore/datacore/log"
	"github.com/datacore/datacore/metrics"
	"github.com/datacore/datacore/noise"
	"github.com/datacore/datacore/protocol"
	"github.com/datacore/datacore/schema"
	"github.com/datacore/datacore/wire"
)

var log = applog.Default().Module("replication")

// DiscoveryHook is called when the peer opens a channel that has not
// been registered locally via Handle.Open. The default behavior (passed
// as nil to Run) ignores it.
type DiscoveryHook func(ctx context.Context, discoveryKey hash.Hash) error

// Replication owns one protocol connection's multiplexing loop: it reads
// commands from a Handle and protocol events from the wire, routing both
// to registered Replica implementations.
type Replication struct {
	protocol *protocol.Protocol
	commands chan Command
	done     chan struct{}
	replicas map[hash.Hash]Replica

	// requestSentAt records when the last outstanding Request was sent
	// per discovery key, so a matching Data reply can report sync
	// latency. Only ever touched from Run's single goroutine.
	requestSentAt map[hash.Hash]time.Time
}

// New completes a noise handshake over conn (conn must not have been
// used for any application traffic yet), per opts, and returns a
// Replication ready to Run, plus a Handle for issuing commands to it.
// Pass noise.Disabled() for the noise-disabled test configuration (spec
// §4.5): no messages are exchanged, frames stay unencrypted, and no
// capability is ever generated or required.
func New(conn *wire.Conn, initiator bool, opts noise.Options) (*Replication, *Handle, error) {
	result, err := noise.Handshake(conn, initiator, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("replication: handshake: %w", err)
	}
	r := NewWithHandshake(conn, result)
	return r, r.Handle(), nil
}

// NewWithHandshake constructs a Replication over a connection that has
// already completed its noise handshake.
func NewWithHandshake(conn *wire.Conn, result noise.Result) *Replication {
	done := make(chan struct{})
	return &Replication{
		protocol:      protocol.New(conn, result),
		commands:      make(chan Command, 64),
		done:          done,
		replicas:      make(map[hash.Hash]Replica),
		requestSentAt: make(map[hash.Hash]time.Time),
	}
}

// Handle returns a Handle usable to issue commands to r once Run has
// started (or concurrently with it — the commands channel is buffered).
func (r *Replication) Handle() *Handle {
	return newHandle(r.commands, r.done)
}

// Run drives the event loop to completion: it launches the underlying
// protocol's read/write goroutines, then alternates between draining
// commands and protocol events until a QuitCommand is processed, ctx is
// cancelled, or the connection fails. onDiscovery may be nil.
func (r *Replication) Run(ctx context.Context, onDiscovery DiscoveryHook) error {
	defer close(r.done)

	protoErr := make(chan error, 1)
	go func() { protoErr <- r.protocol.Run(ctx) }()

	events := r.protocol.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-r.commands:
			cont, err := r.handleCommand(ctx, cmd)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}

		case ev, ok := <-events:
			if !ok {
				protoError := <-protoErr
				if err := r.closeAllReplicas(ctx); err != nil {
					log.Warn("replicas failed to close after protocol error", "error", err)
				}
				return protoError
			}
			if err := r.handleEvent(ctx, ev, onDiscovery); err != nil {
				return err
			}
		}
	}
}

// closeAllReplicas calls OnClose on every registered replica, logging and
// continuing on individual failures, and returns a single error if any
// of them failed to close cleanly. Called both when Quit is requested
// and when the underlying protocol connection itself fails (spec §4.7).
func (r *Replication) closeAllReplicas(ctx context.Context) error {
	failed := false
	for dk, replica := range r.replicas {
		if err := replica.OnClose(ctx); err != nil {
			log.Warn("replica failed to close cleanly", "discoveryKey", dk.String(), "error", err)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("replication: one or more replicas failed to close cleanly")
	}
	return nil
}

func (r *Replication) handleCommand(ctx context.Context, cmd Command) (bool, error) {
	switch c := cmd.(type) {
	case OpenCommand:
		dk := keys.DiscoveryKey(c.Public)
		r.replicas[dk] = c.Replica
		metrics.ReplicasOpen.Inc()
		return true, r.protocol.Open(c.Public, c.Secret)

	case ReopenCommand:
		return true, r.replicaOnOpen(ctx, c.DiscoveryKey)

	case CloseCommand:
		err := r.protocol.Close(c.DiscoveryKey)
		if _, ok := r.replicas[c.DiscoveryKey]; ok {
			metrics.ReplicasOpen.Dec()
		}
		delete(r.replicas, c.DiscoveryKey)
		delete(r.requestSentAt, c.DiscoveryKey)
		return true, err

	case QuitCommand:
		if err := r.closeAllReplicas(ctx); err != nil {
			return false, fmt.Errorf("replication: quit before replication finished: %w", err)
		}
		return false, nil

	default:
		return true, fmt.Errorf("replication: unknown command %T", cmd)
	}
}

func (r *Replication) handleEvent(ctx context.Context, ev protocol.Event, onDiscovery DiscoveryHook) error {
	switch ev.Kind {
	case protocol.EventDiscoveryKey:
		if onDiscovery != nil {
			return onDiscovery(ctx, ev.DiscoveryKey)
		}
		return nil

	case protocol.EventOpen:
		return r.replicaOnOpen(ctx, ev.DiscoveryKey)

	case protocol.EventClose:
		return r.replicaOnClose(ctx, ev.DiscoveryKey)

	case protocol.EventMessage:
		switch ev.Type {
		case schema.TypeRequest:
			req, err := schema.UnmarshalRequest(ev.Payload)
			if err != nil {
				return fmt.Errorf("replication: decode request: %w", err)
			}
			return r.replicaOnRequest(ctx, ev.DiscoveryKey, req)
		case schema.TypeData:
			data, err := schema.UnmarshalData(ev.Payload)
			if err != nil {
				return fmt.Errorf("replication: decode data: %w", err)
			}
			return r.replicaOnData(ctx, ev.DiscoveryKey, data)
		}
	}
	return nil
}

func (r *Replication) replicaOnOpen(ctx context.Context, dk hash.Hash) error {
	replica, ok := r.replicas[dk]
	if !ok {
		return nil
	}
	request, err := replica.OnOpen(ctx)
	if err != nil {
		return err
	}
	if request != nil {
		return r.sendRequest(dk, *request)
	}
	return nil
}

// sendRequest issues a Request to the peer for dk and records the send
// time so a matching Data reply can report sync latency.
func (r *Replication) sendRequest(dk hash.Hash, request schema.Request) error {
	r.requestSentAt[dk] = time.Now()
	return r.protocol.Request(dk, request)
}

func (r *Replication) replicaOnClose(ctx context.Context, dk hash.Hash) error {
	replica, ok := r.replicas[dk]
	if ok {
		if err := replica.OnClose(ctx); err != nil {
			log.Warn("replica reported unsynced close", "discoveryKey", dk.String(), "error", err)
		}
		metrics.ReplicasOpen.Dec()
	}
	delete(r.replicas, dk)
	delete(r.requestSentAt, dk)
	return nil
}

func (r *Replication) replicaOnRequest(ctx context.Context, dk hash.Hash, request schema.Request) error {
	replica, ok := r.replicas[dk]
	if !ok {
		return nil
	}
	outcome, err := replica.OnRequest(ctx, request)
	if err != nil {
		return err
	}
	switch {
	case outcome == nil:
		return nil
	case outcome.Data != nil:
		metrics.RequestsServed.Inc()
		return r.protocol.Data(dk, *outcome.Data)
	case outcome.Request != nil:
		metrics.RequestsRedirected.Inc()
		return r.sendRequest(dk, *outcome.Request)
	}
	return nil
}

func (r *Replication) replicaOnData(ctx context.Context, dk hash.Hash, data schema.Data) error {
	replica, ok := r.replicas[dk]
	if !ok {
		return nil
	}
	if sentAt, ok := r.requestSentAt[dk]; ok {
		metrics.SyncLatency.Observe(float64(time.Since(sentAt).Milliseconds()))
		delete(r.requestSentAt, dk)
	}
	request, err := replica.OnData(ctx, data)
	if err != nil {
		return err
	}
	if request != nil {
		return r.sendRequest(dk, *request)
	}
	return nil
}
