package noise

import (
	"crypto/subtle"
	"fmt"

	"github.com/datacore/datacore/hash"
	"github.com/datacore/datacore/metrics"
)

// capabilityNamespace seeds the keyed hash binding a capability proof to
// one handshake session, mirroring the CAP_NS_BUF constant of the
// reference noise module.
const capabilityNamespace = "hypercore capability"

// CapabilityHash computes the per-session, per-core value an Open
// message's capability proof must equal: a Blake3 hash keyed by this
// connection's handshake transcript hash, over the namespace tag and the
// target discovery key. Keying by the handshake hash ties the proof to
// this one session, so a capability observed on the wire can never be
// replayed against a different connection.
func CapabilityHash(handshakeHash [32]byte, discoveryKey hash.Hash) hash.Hash {
	msg := make([]byte, 0, len(capabilityNamespace)+hash.Size)
	msg = append(msg, capabilityNamespace...)
	msg = append(msg, discoveryKey.Bytes()...)
	return hash.KeyedDiscovery(handshakeHash, msg)
}

// Capability returns the capability proof for discoveryKey on the
// session identified by handshakeHash (spec §4.5, §4.6 Open field). It
// is a symmetric value derivable by any party that completed this
// session's handshake and knows the target discovery key — not a
// signature — so a pure read-only replica with no secret key can attach
// one just as a writer can.
func Capability(handshakeHash [32]byte, discoveryKey hash.Hash) []byte {
	return CapabilityHash(handshakeHash, discoveryKey).Bytes()
}

// VerifyCapability checks a peer-supplied capability proof against the
// value this side independently computes for the same session and
// discovery key, in constant time.
func VerifyCapability(handshakeHash [32]byte, discoveryKey hash.Hash, capability []byte) error {
	want := CapabilityHash(handshakeHash, discoveryKey).Bytes()
	if len(capability) != len(want) || subtle.ConstantTimeCompare(want, capability) != 1 {
		metrics.CapabilityFailures.Inc()
		return fmt.Errorf("noise: capability verification failed")
	}
	return nil
}
