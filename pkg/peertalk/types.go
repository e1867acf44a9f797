package peertalk

// PeerState is the peer-level lifecycle (spec §3).
type PeerState uint8

const (
	PeerUnused PeerState = iota
	PeerDiscovered
	PeerConnecting
	PeerConnected
	PeerDisconnecting
	PeerFailed
)

func (s PeerState) String() string {
	switch s {
	case PeerUnused:
		return "UNUSED"
	case PeerDiscovered:
		return "DISCOVERED"
	case PeerConnecting:
		return "CONNECTING"
	case PeerConnected:
		return "CONNECTED"
	case PeerDisconnecting:
		return "DISCONNECTING"
	case PeerFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StreamState is the per-stream (per-peer, and listener) connection
// lifecycle (spec §4.4).
type StreamState uint8

const (
	StreamUnused StreamState = iota
	StreamCreating
	StreamIdle
	StreamListening
	StreamConnecting
	StreamConnected
	StreamClosing
	StreamReleasing
)

func (s StreamState) String() string {
	switch s {
	case StreamUnused:
		return "UNUSED"
	case StreamCreating:
		return "CREATING"
	case StreamIdle:
		return "IDLE"
	case StreamListening:
		return "LISTENING"
	case StreamConnecting:
		return "CONNECTING"
	case StreamConnected:
		return "CONNECTED"
	case StreamClosing:
		return "CLOSING"
	case StreamReleasing:
		return "RELEASING"
	default:
		return "UNKNOWN"
	}
}

// Priority orders queued sends (spec §3, §4.6). Higher values drain first.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
	numPriorities = int(PriorityCritical) + 1
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Transport identifies a wire substrate. A bitmask of these values is
// used both in Config.Transports and in a peer's advertised/available
// transport set.
type Transport uint8

const (
	TransportTCP Transport = 1 << iota
	TransportUDP
	TransportADSP
	transportAll = TransportTCP | TransportUDP | TransportADSP
)

// SendFlags modify Send/SendEx/SendTracked behavior (spec §4.6).
type SendFlags uint8

const (
	FlagCoalescable SendFlags = 1 << iota
	FlagDropOnFull
	FlagTracked
)

// FrameType enumerates the message frame's 1-byte type field (spec §3, §4.5).
type FrameType uint8

const (
	FrameData FrameType = iota + 1
	FramePing
	FramePong
	FrameDisconnect
	FrameCapability
	FrameFragStart
	FrameFragCont
	FrameFragEnd
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FramePing:
		return "PING"
	case FramePong:
		return "PONG"
	case FrameDisconnect:
		return "DISCONNECT"
	case FrameCapability:
		return "CAPABILITY"
	case FrameFragStart:
		return "FRAG_START"
	case FrameFragCont:
		return "FRAG_CONT"
	case FrameFragEnd:
		return "FRAG_END"
	default:
		return "UNKNOWN"
	}
}

// DiscoveryType enumerates the discovery datagram's type field (spec §3).
type DiscoveryType uint8

const (
	DiscoveryAnnounce DiscoveryType = iota + 1
	DiscoveryQuery
	DiscoveryGoodbye
)

func (t DiscoveryType) String() string {
	switch t {
	case DiscoveryAnnounce:
		return "ANNOUNCE"
	case DiscoveryQuery:
		return "QUERY"
	case DiscoveryGoodbye:
		return "GOODBYE"
	default:
		return "UNKNOWN"
	}
}

// Capability TLV tags carried in an optional discovery packet TLV list
// (SPEC_FULL §C).
const (
	TLVTransportsAvailable uint8 = 1
	TLVListenPort          uint8 = 2
)

// LogLevel mirrors the fixed category set spec §7 requires error paths
// to log under.
type LogLevel uint8

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogProtocol
	LogErr
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogProtocol:
		return "PROTOCOL"
	case LogErr:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}

// Sentinel peer-table index meaning "no such peer".
const noIndex = -1

// PeerID identifies a peer for the lifetime it is known. 0 is reserved
// (spec §4.2).
type PeerID uint16

const invalidPeerID PeerID = 0

// MessageID is the monotonic, synchronously-returned handle for a
// tracked send (spec §9 "Send-tracked IDs").
type MessageID uint32
