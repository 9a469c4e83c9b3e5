package metrics

// Pre-defined metrics for a datacore process. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around. The core package registers its own names
// (core_blocks_appended, core_bytes_appended, core_length) in
// DefaultRegistry when it is loaded; they are shared by every core in the
// process, not kept per core.

var (
	// ---- Wire transport metrics ----

	// FramesRead counts frames successfully decoded off the wire.
	FramesRead = DefaultRegistry.Counter("wire.frames_read")
	// FramesWritten counts frames successfully written to the wire.
	FramesWritten = DefaultRegistry.Counter("wire.frames_written")
	// KeepaliveTimeouts counts connections closed by the keepalive timer.
	KeepaliveTimeouts = DefaultRegistry.Counter("wire.keepalive_timeouts")

	// ---- Replication metrics ----

	// ReplicasOpen tracks the number of currently-open replica channels
	// across all connections.
	ReplicasOpen = DefaultRegistry.Gauge("replication.replicas_open")
	// RequestsServed counts Request messages answered with a Data reply.
	RequestsServed = DefaultRegistry.Counter("replication.requests_served")
	// RequestsRedirected counts Request messages answered with a
	// redirect Request (the local replica didn't have the block either).
	RequestsRedirected = DefaultRegistry.Counter("replication.requests_redirected")
	// SyncLatency records the time between a Request and its matching
	// Data reply, in milliseconds.
	SyncLatency = DefaultRegistry.Histogram("replication.sync_latency_ms")

	// ---- Handshake metrics ----

	// HandshakesCompleted counts successful noise handshakes.
	HandshakesCompleted = DefaultRegistry.Counter("noise.handshakes_completed")
	// HandshakesFailed counts handshakes that errored before completion.
	HandshakesFailed = DefaultRegistry.Counter("noise.handshakes_failed")
	// CapabilityFailures counts post-handshake capability verifications
	// that failed, which may indicate a misbehaving or malicious peer.
	CapabilityFailures = DefaultRegistry.Counter("noise.capability_failures")
)
