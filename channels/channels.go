// Package channels maintains the per-connection table of open
// replication channels, one per discovery key, keyed by both the local
// and the remote channel ID a peer uses to address it in a channel
// message header (spec §4.6). Grounded on
// original_source/protocol/src/channels.rs's ChannelMap/ChannelHandle.
package channels

import (
	"encoding/hex"
	"fmt"

	"github.com/datacore/datacore/hash"
	"github.com/datacore/datacore/keys"
)

// LocalState is the half of a channel's state owned by this side of the
// connection: the local channel ID it was assigned and the public key of
// the core it was opened for.
type LocalState struct {
	LocalID uint32
	Key     keys.PublicKey
}

// RemoteState is the half of a channel's state learned from the peer's
// Open message.
type RemoteState struct {
	RemoteID   uint32
	Capability []byte // nil if the peer proved no capability
}

// Handle is one entry in a ChannelMap: a discovery key together with
// whichever of the local/remote halves have been attached so far. A
// channel only becomes usable once both halves are present.
type Handle struct {
	DiscoveryKey hash.Hash
	Local        *LocalState
	Remote       *RemoteState
}

// IsOpen reports whether both the local and remote side of the channel
// have been attached.
func (h *Handle) IsOpen() bool { return h.Local != nil && h.Remote != nil }

// PrepareToVerify returns the peer's capability proof, ready for
// noise.VerifyCapability. It fails if the channel is not yet open on
// both sides.
func (h *Handle) PrepareToVerify() ([]byte, error) {
	if !h.IsOpen() {
		return nil, fmt.Errorf("channels: channel for %s is not open on both sides", h.DiscoveryKey)
	}
	return h.Remote.Capability, nil
}

// Map tracks every channel open on one connection, indexed by discovery
// key (the primary key) and by local/remote channel ID (dense slot
// arrays, for O(1) header-driven dispatch on message receipt). Index 0 of
// the local ID space is reserved for stream-level extensions and is never
// allocated to a channel (spec §4.6).
type Map struct {
	channels map[string]*Handle
	localID  []*string // slot 0 reserved, always nil
	remoteID []*string
}

// New creates an empty channel map.
func New() *Map {
	return &Map{
		channels: make(map[string]*Handle),
		localID:  []*string{nil},
	}
}

func discoveryKeyHex(dk hash.Hash) string { return hex.EncodeToString(dk.Bytes()) }

// AttachLocal opens (or completes) a channel for key's discovery key on
// the local side, allocating a fresh local channel ID, and returns the
// resulting handle.
func (m *Map) AttachLocal(public keys.PublicKey) *Handle {
	dk := keys.DiscoveryKey(public)
	dkHex := discoveryKeyHex(dk)
	localID := m.allocLocal()

	h, ok := m.channels[dkHex]
	if !ok {
		h = &Handle{DiscoveryKey: dk}
		m.channels[dkHex] = h
	}
	h.Local = &LocalState{LocalID: localID, Key: public}
	m.localID[localID] = &dkHex
	return h
}

// AttachRemote opens (or completes) a channel for discoveryKey on the
// remote side, recording the peer's chosen remote channel ID and
// whatever capability proof it supplied.
func (m *Map) AttachRemote(discoveryKey hash.Hash, remoteID uint32, capability []byte) *Handle {
	dkHex := discoveryKeyHex(discoveryKey)
	m.allocRemote(remoteID)

	h, ok := m.channels[dkHex]
	if !ok {
		h = &Handle{DiscoveryKey: discoveryKey}
		m.channels[dkHex] = h
	}
	h.Remote = &RemoteState{RemoteID: remoteID, Capability: capability}
	m.remoteID[remoteID] = &dkHex
	return h
}

// Get looks up a channel by discovery key.
func (m *Map) Get(discoveryKey hash.Hash) (*Handle, bool) {
	h, ok := m.channels[discoveryKeyHex(discoveryKey)]
	return h, ok
}

// GetLocal looks up a channel by its local channel ID.
func (m *Map) GetLocal(localID uint32) (*Handle, bool) {
	if int(localID) >= len(m.localID) || m.localID[localID] == nil {
		return nil, false
	}
	return m.channels[*m.localID[localID]], true
}

// GetRemote looks up a channel by the remote peer's channel ID.
func (m *Map) GetRemote(remoteID uint32) (*Handle, bool) {
	if int(remoteID) >= len(m.remoteID) || m.remoteID[remoteID] == nil {
		return nil, false
	}
	return m.channels[*m.remoteID[remoteID]], true
}

// Remove tears a channel down, freeing its local and remote ID slots for
// reuse.
func (m *Map) Remove(discoveryKey hash.Hash) {
	dkHex := discoveryKeyHex(discoveryKey)
	h, ok := m.channels[dkHex]
	if !ok {
		return
	}
	if h.Local != nil {
		m.localID[h.Local.LocalID] = nil
	}
	if h.Remote != nil && int(h.Remote.RemoteID) < len(m.remoteID) {
		m.remoteID[h.Remote.RemoteID] = nil
	}
	delete(m.channels, dkHex)
}

// Len returns the number of channels currently tracked.
func (m *Map) Len() int { return len(m.channels) }

func (m *Map) allocLocal() uint32 {
	for i := 1; i < len(m.localID); i++ {
		if m.localID[i] == nil {
			return uint32(i)
		}
	}
	m.localID = append(m.localID, nil)
	return uint32(len(m.localID) - 1)
}

func (m *Map) allocRemote(id uint32) {
	if int(id) < len(m.remoteID) {
		m.remoteID[id] = nil
		return
	}
	grown := make([]*string, id+1)
	copy(grown, m.remoteID)
	m.remoteID = grown
}
