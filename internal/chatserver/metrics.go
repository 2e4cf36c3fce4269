package chatserver

import "sync/atomic"

// Metrics captures lightweight in-process counters for observability.
type Metrics struct {
	Requests         atomic.Uint64
	LoginAttempts    atomic.Uint64
	RegisterAttempts atomic.Uint64
	HealthChecks     atomic.Uint64
	ChannelSessions  atomic.Uint64
	ChannelRejects   atomic.Uint64
	MessagesRouted   atomic.Uint64
	ReadReceipts     atomic.Uint64
}
