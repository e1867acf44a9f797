package peertalk

import (
	"fmt"
	"time"
)

// Default values per spec §6 ("0 = ..." column).
const (
	DefaultDiscoveryPort    = 7353
	DefaultTCPPort          = 7354
	DefaultUDPPort          = 7355
	DefaultMaxPeers         = 16
	MaxPeersCeiling         = 256
	DefaultDiscoveryInterval = 5000 * time.Millisecond
	DefaultPeerTimeout       = 15000 * time.Millisecond
	DefaultMaxMessageSize    = 8192
	DefaultPreferredChunk    = 1024
	MinimumFrameSize         = frameHeaderSize + crcSize // smallest legal frame: empty payload
	UpperMessageSizeLimit    = 1 << 20                    // 1 MiB hard ceiling

	defaultConnectTimeout = 30 * time.Second
	defaultCloseTimeout   = 10 * time.Second
	defaultIdleThreshold  = 30 * time.Second
)

// Config configures a Context. See spec §6 for the field table.
type Config struct {
	LocalName     string
	Transports    Transport // 0 = all
	DiscoveryPort uint16    // 0 = DefaultDiscoveryPort
	TCPPort       uint16    // 0 = DefaultTCPPort
	UDPPort       uint16    // 0 = DefaultUDPPort
	MaxPeers      int       // 0 = DefaultMaxPeers, ceiling MaxPeersCeiling

	RecvBufferSize int // 0 = platform auto
	SendBufferSize int // 0 = platform auto

	DiscoveryInterval time.Duration // 0 = DefaultDiscoveryInterval
	PeerTimeout       time.Duration // 0 = DefaultPeerTimeout

	AutoAccept  bool
	AutoCleanup bool

	LogLevel    LogLevel
	LogFilename string
	Log         LogSink // nil = log lines are discarded (nopSink)

	MaxMessageSize      int  // 0 = DefaultMaxMessageSize
	PreferredChunk      int  // 0 = DefaultPreferredChunk
	EnableFragmentation bool

	// QueueCapacity is the per-priority-FIFO-free send-queue ring size per
	// peer; must be a power of two. 0 = 64.
	QueueCapacity int

	// ConnectTimeout / CloseTimeout / IdleThreshold override the state
	// machine's default deadlines (spec §4.4 table); 0 picks the default.
	ConnectTimeout time.Duration
	CloseTimeout   time.Duration
	IdleThreshold  time.Duration
}

// withDefaults returns a copy of c with every zero-valued tunable
// replaced by its spec-mandated default, and validates the result.
// Fails with ErrInvalidSize / ErrBadParameter / ErrNotPowerOfTwo — all
// fatal per spec §7.
func (c Config) withDefaults() (Config, error) {
	if len(c.LocalName) > 31 {
		return c, fmt.Errorf("%w: local_name must be <= 31 bytes", ErrBadParameter)
	}
	if c.LocalName == "" {
		return c, fmt.Errorf("%w: local_name is required", ErrBadParameter)
	}
	if c.Transports == 0 {
		c.Transports = transportAll
	}
	if c.DiscoveryPort == 0 {
		c.DiscoveryPort = DefaultDiscoveryPort
	}
	if c.TCPPort == 0 {
		c.TCPPort = DefaultTCPPort
	}
	if c.UDPPort == 0 {
		c.UDPPort = DefaultUDPPort
	}
	if c.MaxPeers == 0 {
		c.MaxPeers = DefaultMaxPeers
	}
	if c.MaxPeers < 0 || c.MaxPeers > MaxPeersCeiling {
		return c, fmt.Errorf("%w: max_peers must be in (0, %d]", ErrInvalidSize, MaxPeersCeiling)
	}
	if c.DiscoveryInterval == 0 {
		c.DiscoveryInterval = DefaultDiscoveryInterval
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = DefaultPeerTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MaxMessageSize < MinimumFrameSize || c.MaxMessageSize > UpperMessageSizeLimit {
		return c, fmt.Errorf("%w: max_message_size must be in [%d, %d]", ErrInvalidSize, MinimumFrameSize, UpperMessageSizeLimit)
	}
	if c.PreferredChunk == 0 {
		c.PreferredChunk = DefaultPreferredChunk
	}
	if c.PreferredChunk > c.MaxMessageSize {
		return c, fmt.Errorf("%w: preferred_chunk must be <= max_message_size", ErrInvalidSize)
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 64
	}
	if c.QueueCapacity&(c.QueueCapacity-1) != 0 {
		return c, fmt.Errorf("%w: queue capacity %d", ErrNotPowerOfTwo, c.QueueCapacity)
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = defaultCloseTimeout
	}
	if c.IdleThreshold == 0 {
		c.IdleThreshold = defaultIdleThreshold
	}
	return c, nil
}
