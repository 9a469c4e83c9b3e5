// Package registry provides the dual-index core registry: a strong
// reference keyed by public key, and a weak reference keyed by discovery
// key, so that replication channels referencing a discovery key never
// keep a core alive on their own (spec §6, SPEC_FULL.md §4.9).
package registry

import (
	"encoding/hex"
	"sync"
	"weak"

	"golang.org/x/sync/singleflight"

	"github.com/datacore/datacore/core"
	"github.com/datacore/datacore/hash"
)

// Cores is a registry of open cores, indexed both by public key (strong)
// and by discovery key (weak).
type Cores struct {
	mu          sync.RWMutex
	byPublic    map[string]*core.Core
	byDiscovery map[string]weak.Pointer[core.Core]

	group singleflight.Group
}

// New creates an empty registry.
func New() *Cores {
	return &Cores{
		byPublic:    make(map[string]*core.Core),
		byDiscovery: make(map[string]weak.Pointer[core.Core]),
	}
}

func publicKeyString(c *core.Core) string {
	return hex.EncodeToString(c.PublicKey())
}

func discoveryKeyString(c *core.Core) string {
	return hex.EncodeToString(core.DiscoveryKeyOf(c).Bytes())
}

// Insert registers c under both its public key and its discovery key.
func (r *Cores) Insert(c *core.Core) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPublic[publicKeyString(c)] = c
	r.byDiscovery[discoveryKeyString(c)] = weak.Make(c)
}

// Put is an alias for Insert, matching the original's naming for
// re-registering an already-open core.
func (r *Cores) Put(c *core.Core) { r.Insert(c) }

// GetByPublic returns the core registered under the given public key.
func (r *Cores) GetByPublic(public []byte) (*core.Core, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byPublic[hex.EncodeToString(public)]
	return c, ok
}

// GetByDiscovery returns the core registered under the given discovery
// key, or false if no strong reference keeps it alive any more.
func (r *Cores) GetByDiscovery(dk hash.Hash) (*core.Core, bool) {
	r.mu.RLock()
	ptr, ok := r.byDiscovery[hex.EncodeToString(dk.Bytes())]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c := ptr.Value()
	return c, c != nil
}

// PublicKeys returns every registered public key.
func (r *Cores) PublicKeys() [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][]byte, 0, len(r.byPublic))
	for k := range r.byPublic {
		b, _ := hex.DecodeString(k)
		out = append(out, b)
	}
	return out
}

// DiscoveryKeys returns every discovery key with a still-live core.
func (r *Cores) DiscoveryKeys() []hash.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]hash.Hash, 0, len(r.byDiscovery))
	for k, ptr := range r.byDiscovery {
		if ptr.Value() == nil {
			continue
		}
		b, _ := hex.DecodeString(k)
		h, err := hash.FromBytes(b)
		if err != nil {
			continue
		}
		out = append(out, h)
	}
	return out
}

// Entries returns every core currently registered.
func (r *Cores) Entries() []*core.Core {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Core, 0, len(r.byPublic))
	for _, c := range r.byPublic {
		out = append(out, c)
	}
	return out
}

// Len returns the number of strongly-referenced cores.
func (r *Cores) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPublic)
}

// GetOrOpen returns the core already registered for public, or calls
// open to create one, de-duplicating concurrent callers for the same key
// via singleflight (grounded on the teacher's use of golang.org/x/sync).
func (r *Cores) GetOrOpen(public []byte, open func() (*core.Core, error)) (*core.Core, error) {
	if c, ok := r.GetByPublic(public); ok {
		return c, nil
	}
	v, err, _ := r.group.Do(hex.EncodeToString(public), func() (interface{}, error) {
		if c, ok := r.GetByPublic(public); ok {
			return c, nil
		}
		c, err := open()
		if err != nil {
			return nil, err
		}
		r.Insert(c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Core), nil
}
