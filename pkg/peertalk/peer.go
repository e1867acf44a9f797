package peertalk

import "time"

// peerMagic tags an allocated peer slot (spec §3 invariant 1).
const peerMagic = 0xFEEDFACE

// PeerAddress is one (address, port, transport) tuple a peer is known
// to be reachable at (spec §3 cold half, up to two per peer).
type PeerAddress struct {
	Address   string
	Port      uint16
	Transport Transport
}

// peerHot is the cache-line-sized, every-poll-touched half of a peer
// (spec §3). Go can't pin layout the way the spec's C-shaped design
// note describes, but the fields are kept narrow and physically
// separate from peerCold to preserve the hot-scan intent.
type peerHot struct {
	magic        uint32
	connSlot     int // index into the connStream table, noIndex if none
	id           PeerID
	state        PeerState
	flags        uint8 // advertised capability/flag bits
	transports   Transport
	preferred    Transport
	addrCount    uint8
	nameIdx      int
	sendSeq      uint32
	recvSeq      uint32
	rtt          time.Duration
	lastActivity time.Time
}

// peerCold is the rarely-touched half: names, addresses, stats,
// buffers. Indexed by the same position as the owning peerHot.
type peerCold struct {
	addresses    [2]PeerAddress
	stats        PeerStats
	rttSamples   [8]time.Duration
	rttSampleN   int
	rttSampleAt  int
	sendQ        *sendQueue
	reassembly   reassembler
	recvFrameBuf []byte
	effectiveMax int
	capSent      bool
	capRecv      bool
	pingSeq      uint32
	pingSentAt   time.Time
}

func (c *peerCold) recordRTT(d time.Duration) {
	c.rttSamples[c.rttSampleAt] = d
	c.rttSampleAt = (c.rttSampleAt + 1) % len(c.rttSamples)
	if c.rttSampleN < len(c.rttSamples) {
		c.rttSampleN++
	}
}

func (c *peerCold) averageRTT() time.Duration {
	if c.rttSampleN == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < c.rttSampleN; i++ {
		sum += c.rttSamples[i]
	}
	return sum / time.Duration(c.rttSampleN)
}

// PeerInfo is the read-only snapshot returned by GetPeer/GetPeers.
type PeerInfo struct {
	ID         PeerID
	Name       string
	State      PeerState
	Addresses  []PeerAddress
	RTT        time.Duration
	Transports Transport
	LastSeen   time.Time
}

// PeerStats are the per-peer counters GetPeerStats reports.
type PeerStats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	FramesDropped    uint64
	ProtocolErrors   uint64
	Pings            uint64
	Pongs            uint64
}
