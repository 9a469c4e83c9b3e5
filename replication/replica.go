// Package replication drives one multiplexed protocol connection: it
// dispatches inbound protocol events to per-core Replica implementations
// and turns their responses back into outbound Request/Data messages,
// plus an external command channel for opening, closing, and quitting
// replicas (spec §4.8). Grounded on
// original_source/libdata/src/replication/{replica_trait,core_replica,replication,handle}.rs.
package replication

import (
	"context"

	"github.com/datacore/datacore/schema"
)

// Outcome is a Replica handler's optional reply: either a Data message,
// a Request message, or neither. At most one of the two fields is set.
type Outcome struct {
	Data    *schema.Data
	Request *schema.Request
}

// DataOutcome wraps a Data reply.
func DataOutcome(d schema.Data) *Outcome { return &Outcome{Data: &d} }

// RequestOutcome wraps a Request reply.
func RequestOutcome(r schema.Request) *Outcome { return &Outcome{Request: &r} }

// Replica implements the eager, sequential synchronization logic for one
// core's channel. Replication calls these methods from its single event
// loop goroutine; a Replica whose backing core is shared across multiple
// connections must synchronize its own access to that core (see
// CoreReplica).
type Replica interface {
	// OnOpen is called once a channel is open on both sides. It may
	// return a Request to kick off sync.
	OnOpen(ctx context.Context) (*schema.Request, error)
	// OnRequest is called on an inbound Request. It may return Data (if
	// the requested block is available), a Request (redirecting the
	// peer to this replica's own current length), or neither.
	OnRequest(ctx context.Context, request schema.Request) (*Outcome, error)
	// OnData is called on inbound Data. It may return a follow-up
	// Request to continue sequential sync.
	OnData(ctx context.Context, data schema.Data) (*schema.Request, error)
	// OnClose is called when the channel is torn down, locally or
	// remotely, or when Replication is asked to quit. A non-nil error
	// reports that this replica was not fully synced.
	OnClose(ctx context.Context) error
}
