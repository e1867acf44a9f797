package peertalk

// GlobalStats are the context-wide aggregate counters (spec §6
// GetGlobalStats).
type GlobalStats struct {
	PeersDiscovered   uint64
	PeersConnected    uint64
	PeersLost         uint64
	MessagesSent      uint64
	MessagesReceived  uint64
	BytesSent         uint64
	BytesReceived     uint64
	ProtocolErrors    uint64
	DiscoveryPacketsIn  uint64
	DiscoveryPacketsOut uint64
	QueueCoalesced    uint64
	QueueDropped      uint64
	PollCount         uint64
}
