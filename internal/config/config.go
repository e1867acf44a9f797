package config

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// FileConfig is the on-disk YAML shape. It mirrors peertalk.Config but
// keeps durations and transport lists as strings so the file stays
// human-editable; ToPeerTalkConfig parses them.
type FileConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Identity  IdentityConfig  `yaml:"identity"`
	Network   NetworkConfig   `yaml:"network"`
	Discovery DiscoveryConfig `yaml:"discovery,omitempty"`
	Queue     QueueConfig     `yaml:"queue,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// IdentityConfig names this node on the LAN (spec §6 local_name).
type IdentityConfig struct {
	LocalName string `yaml:"local_name"`
}

// NetworkConfig covers transports and ports (spec §6).
type NetworkConfig struct {
	// Transports lists which substrates to advertise and accept:
	// any of "tcp", "udp", "adsp". Empty means all.
	Transports    []string `yaml:"transports,omitempty"`
	DiscoveryPort uint16   `yaml:"discovery_port,omitempty"`
	TCPPort       uint16   `yaml:"tcp_port,omitempty"`
	UDPPort       uint16   `yaml:"udp_port,omitempty"`
	MaxPeers      int      `yaml:"max_peers,omitempty"`
	AutoAccept    bool     `yaml:"auto_accept,omitempty"`
	AutoCleanup   bool     `yaml:"auto_cleanup,omitempty"`
}

// DiscoveryConfig tunes the announce cadence and staleness window
// (spec §4.3, durations as Go duration strings e.g. "5s").
type DiscoveryConfig struct {
	Interval    string `yaml:"interval,omitempty"`
	PeerTimeout string `yaml:"peer_timeout,omitempty"`
}

// QueueConfig tunes message sizing and the send queue (spec §4.5, §4.6).
type QueueConfig struct {
	Capacity            int  `yaml:"capacity,omitempty"`
	MaxMessageSize      int  `yaml:"max_message_size,omitempty"`
	PreferredChunk      int  `yaml:"preferred_chunk,omitempty"`
	EnableFragmentation bool `yaml:"enable_fragmentation,omitempty"`
}

// LoggingConfig selects the minimum level and an optional log file
// (SPEC_FULL §A; wired to peertalk.NewSlogSink).
type LoggingConfig struct {
	Level    string `yaml:"level,omitempty"`
	Filename string `yaml:"filename,omitempty"`
}
