package replication

import (
	"context"
	"fmt"

	"github.com/datacore/datacore/hash"
	"github.com/datacore/datacore/keys"
)

// Command is one instruction sent to a running Replication loop via its
// Handle.
type Command interface {
	isCommand()
}

// OpenCommand opens a new replica for a core's public key, attaching
// replica as the synchronization logic for its channel.
type OpenCommand struct {
	Public  keys.PublicKey
	Secret  keys.SecretKey // may be nil; capability proofs do not use it
	Replica Replica
}

// ReopenCommand re-runs Replica.OnOpen for an already-registered
// discovery key, useful after a replica's state changes out-of-band
// (e.g. a local append) and it wants to re-announce its length.
type ReopenCommand struct {
	DiscoveryKey hash.Hash
}

// CloseCommand tears down the channel for a discovery key and forgets
// its replica.
type CloseCommand struct {
	DiscoveryKey hash.Hash
}

// QuitCommand asks Replication to call OnClose on every registered
// replica and stop the event loop.
type QuitCommand struct{}

func (OpenCommand) isCommand()   {}
func (ReopenCommand) isCommand() {}
func (CloseCommand) isCommand()  {}
func (QuitCommand) isCommand()   {}

// Handle lets callers outside the Replication event loop issue commands
// to it.
type Handle struct {
	commands chan<- Command
	done     <-chan struct{}
}

func newHandle(commands chan<- Command, done <-chan struct{}) *Handle {
	return &Handle{commands: commands, done: done}
}

func (h *Handle) send(ctx context.Context, cmd Command) error {
	select {
	case h.commands <- cmd:
		return nil
	case <-h.done:
		return fmt.Errorf("replication: handle closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open registers replica for public's discovery key and opens its
// channel over the protocol connection.
func (h *Handle) Open(ctx context.Context, public keys.PublicKey, secret keys.SecretKey, replica Replica) error {
	return h.send(ctx, OpenCommand{Public: public, Secret: secret, Replica: replica})
}

// Reopen re-triggers OnOpen for an already-open discovery key.
func (h *Handle) Reopen(ctx context.Context, discoveryKey hash.Hash) error {
	return h.send(ctx, ReopenCommand{DiscoveryKey: discoveryKey})
}

// Close tears down the channel for discoveryKey.
func (h *Handle) Close(ctx context.Context, discoveryKey hash.Hash) error {
	return h.send(ctx, CloseCommand{DiscoveryKey: discoveryKey})
}

// Quit stops the Replication loop after closing every replica.
func (h *Handle) Quit(ctx context.Context) error {
	return h.send(ctx, QuitCommand{})
}
