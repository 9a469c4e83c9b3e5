package replication

import (
	"context"
	"fmt"
	"sync"

	"github.com/datacore/datacore/core"
	"github.com/datacore/datacore/schema"
)

// CoreReplica implements eager, full, sequential synchronization of one
// Core: on open, it asks the peer for everything from its own current
// length onward; on every inbound block it appends and immediately asks
// for the next one; on request, it serves whatever it already has, or
// redirects the peer to request what it's missing.
//
// The embedded mutex guards every access to the wrapped core, since the
// same *core.Core may be driven by more than one Replication loop at
// once (one per peer connection) — the Go analogue of the reference
// implementation's Arc<Mutex<Core>>.
type CoreReplica struct {
	mu          sync.Mutex
	core        *core.Core
	remoteIndex *uint32
}

// NewCoreReplica wraps c for eager sequential replication.
func NewCoreReplica(c *core.Core) *CoreReplica {
	return &CoreReplica{core: c}
}

func (r *CoreReplica) updateRemoteIndex(index uint32) {
	if r.remoteIndex != nil && index <= *r.remoteIndex {
		return
	}
	r.remoteIndex = &index
}

// OnOpen requests everything from this replica's current length onward.
func (r *CoreReplica) OnOpen(ctx context.Context) (*schema.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &schema.Request{Index: uint32(r.core.Len())}, nil
}

// OnRequest serves the requested block if already present, otherwise
// redirects the peer to this replica's own length so eager replication
// stays in lockstep.
func (r *CoreReplica) OnRequest(ctx context.Context, request schema.Request) (*Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updateRemoteIndex(request.Index)

	content, sig, err := r.core.Get(uint64(request.Index))
	if err != nil {
		if err == core.ErrAbsent {
			length := r.core.Len()
			remoteIndex := uint32(0)
			if r.remoteIndex != nil {
				remoteIndex = *r.remoteIndex
			}
			if length >= core.MaxCoreLength || uint64(remoteIndex) <= length {
				return nil, nil
			}
			return RequestOutcome(schema.Request{Index: uint32(length)}), nil
		}
		return nil, fmt.Errorf("replication: get block %d: %w", request.Index, err)
	}

	return DataOutcome(schema.Data{
		Index:         request.Index,
		Content:       content,
		DataSignature: sig.Data[:],
		TreeSignature: sig.Tree[:],
	}), nil
}

// OnData appends sequentially-arriving data and asks for the next block,
// or re-requests the current length if the peer sent data out of order.
func (r *CoreReplica) OnData(ctx context.Context, data schema.Data) (*schema.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	length := r.core.Len()
	if uint64(data.Index) != length {
		return &schema.Request{Index: uint32(length)}, nil
	}

	var sig core.Signature
	if len(data.DataSignature) != len(sig.Data) || len(data.TreeSignature) != len(sig.Tree) {
		return nil, fmt.Errorf("replication: malformed signature on block %d", data.Index)
	}
	copy(sig.Data[:], data.DataSignature)
	copy(sig.Tree[:], data.TreeSignature)

	if _, err := r.core.Append(ctx, data.Content, &sig); err != nil {
		return nil, fmt.Errorf("replication: append block %d: %w", data.Index, err)
	}

	if r.core.Len() >= core.MaxCoreLength {
		return nil, nil
	}
	return &schema.Request{Index: data.Index + 1}, nil
}

// OnClose reports whether this replica fully caught up to the last
// remote length it observed.
func (r *CoreReplica) OnClose(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.remoteIndex == nil {
		return nil
	}
	if r.core.Len() < uint64(*r.remoteIndex) {
		return fmt.Errorf("replication: not synced, remote has more data (have %d, remote has %d)", r.core.Len(), *r.remoteIndex)
	}
	return nil
}
