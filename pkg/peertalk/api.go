package peertalk

import "fmt"

// GetPeers returns a snapshot of every known peer (spec §6).
func (ctx *Context) GetPeers() []PeerInfo {
	out := make([]PeerInfo, 0, ctx.pt.count())
	for i := range ctx.pt.hot {
		out = append(out, ctx.peerInfo(i))
	}
	return out
}

// GetPeersVersion returns a counter bumped on every peer-table
// mutation, letting callers cheaply detect "nothing changed since I
// last called GetPeers" (spec §6).
func (ctx *Context) GetPeersVersion() uint64 {
	return ctx.pt.version
}

// GetPeer and GetPeerByID are synonyms (spec §6 lists both forms);
// GetPeer is the canonical implementation.
func (ctx *Context) GetPeer(id PeerID) (PeerInfo, error) {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return PeerInfo{}, fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	return ctx.peerInfo(idx), nil
}

func (ctx *Context) GetPeerByID(id PeerID) (PeerInfo, error) {
	return ctx.GetPeer(id)
}

func (ctx *Context) GetPeerName(id PeerID) (string, error) {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return "", fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	return ctx.pt.names.get(ctx.pt.hot[idx].nameIdx), nil
}

func (ctx *Context) FindPeerByName(name string) (PeerInfo, error) {
	idx, ok := ctx.pt.indexByName(name)
	if !ok {
		return PeerInfo{}, fmt.Errorf("%w: name %q", ErrPeerNotFound, name)
	}
	return ctx.peerInfo(idx), nil
}

func (ctx *Context) FindPeerByAddress(address string, port uint16) (PeerInfo, error) {
	idx, ok := ctx.pt.indexByAddress(address, port)
	if !ok {
		return PeerInfo{}, fmt.Errorf("%w: address %s:%d", ErrPeerNotFound, address, port)
	}
	return ctx.peerInfo(idx), nil
}

func (ctx *Context) peerInfo(idx int) PeerInfo {
	h := &ctx.pt.hot[idx]
	c := &ctx.pt.cold[idx]
	info := PeerInfo{
		ID:         h.id,
		Name:       ctx.pt.names.get(h.nameIdx),
		State:      h.state,
		RTT:        h.rtt,
		Transports: h.transports,
		LastSeen:   h.lastActivity,
	}
	for a := uint8(0); a < h.addrCount; a++ {
		info.Addresses = append(info.Addresses, c.addresses[a])
	}
	return info
}

// Connect dials the peer's preferred address. Asynchronous: completion
// (or failure) is reported through OnPeerConnected/OnPeerDisconnected
// from a later Poll (spec §4.4).
func (ctx *Context) Connect(id PeerID) error {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	h := &ctx.pt.hot[idx]
	if h.state == PeerConnecting || h.state == PeerConnected {
		return fmt.Errorf("%w: peer already %s", ErrStateMismatch, h.state)
	}
	if h.addrCount == 0 {
		return fmt.Errorf("%w: peer has no known address", ErrBadParameter)
	}
	slot, err := ctx.allocConnSlot()
	if err != nil {
		return err
	}
	addr := ctx.pt.cold[idx].addresses[0]
	if err := ctx.adapter.StreamCreate(slot); err != nil {
		return fmt.Errorf("%w: %v", ErrPlatform, err)
	}
	if err := ctx.adapter.StreamConnect(slot, addr.Address, addr.Port, ctx.cfg.ConnectTimeout); err != nil {
		ctx.adapter.StreamRelease(slot)
		return fmt.Errorf("%w: %v", ErrPlatform, err)
	}
	ctx.conns[slot] = connStream{
		peerIdx:  idx,
		state:    StreamConnecting,
		deadline: ctx.now().Add(ctx.cfg.ConnectTimeout),
	}
	h.connSlot = slot
	h.state = PeerConnecting
	if ctx.pt.cold[idx].sendQ == nil {
		ctx.pt.cold[idx].sendQ = newSendQueue(ctx.cfg.QueueCapacity)
	}
	return nil
}

// Disconnect begins a graceful close: the stream moves to CLOSING and
// is torn down once the adapter reports completion or CloseTimeout
// elapses (spec §4.4).
func (ctx *Context) Disconnect(id PeerID) error {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	h := &ctx.pt.hot[idx]
	if h.connSlot == noIndex {
		return fmt.Errorf("%w: peer %d", ErrNotConnected, id)
	}
	slot := h.connSlot
	if err := ctx.adapter.StreamClose(slot, ctx.cfg.CloseTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrPlatform, err)
	}
	ctx.conns[slot].state = StreamClosing
	ctx.conns[slot].deadline = ctx.now().Add(ctx.cfg.CloseTimeout)
	ctx.conns[slot].reason = DisconnectLocal
	h.state = PeerDisconnecting
	return nil
}

// RejectConnection hard-aborts a peer's connection regardless of
// state — the general "I don't want this stream" escape hatch used
// either standalone or from inside OnPeerConnected when
// Config.AutoAccept let an unwanted inbound connection through.
func (ctx *Context) RejectConnection(id PeerID) error {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	slot := ctx.pt.hot[idx].connSlot
	if slot == noIndex {
		return fmt.Errorf("%w: peer %d", ErrNotConnected, id)
	}
	ctx.abortStream(slot, DisconnectLocal)
	return nil
}

// StartListening brings up the inbound listener on port (0 = the
// configured TCP port).
func (ctx *Context) StartListening(port uint16) error {
	if ctx.listener.state != StreamUnused {
		return fmt.Errorf("%w: already listening", ErrStateMismatch)
	}
	if port == 0 {
		port = ctx.cfg.TCPPort
	}
	slot := len(ctx.conns)
	if err := ctx.adapter.StreamCreate(slot); err != nil {
		return fmt.Errorf("%w: %v", ErrPlatform, err)
	}
	if err := ctx.adapter.StreamListen(slot, port); err != nil {
		ctx.adapter.StreamRelease(slot)
		return fmt.Errorf("%w: %v", ErrPlatform, err)
	}
	ctx.listener = connStream{peerIdx: noIndex, state: StreamListening}
	ctx.listenPort = port
	ctx.listening = true
	return nil
}

func (ctx *Context) StopListening() error {
	if !ctx.listening {
		return nil
	}
	ctx.adapter.StreamAbort(len(ctx.conns))
	ctx.listener.reset()
	ctx.listening = false
	ctx.listenPort = 0
	return nil
}

func (ctx *Context) IsListening() bool    { return ctx.listening }
func (ctx *Context) GetListenPort() uint16 { return ctx.listenPort }

// Send enqueues payload for id at the given priority, fragmenting it
// transparently if it exceeds the peer's effective max (Config.PreferredChunk
// until the CAPABILITY exchange completes) and fragmentation is enabled
// (spec §4.5, §4.6).
func (ctx *Context) Send(id PeerID, payload []byte, pri Priority) error {
	_, err := ctx.SendEx(id, payload, pri, 0, 0)
	return err
}

// SendEx is Send with explicit flags and an optional coalesce key.
func (ctx *Context) SendEx(id PeerID, payload []byte, pri Priority, flags SendFlags, coalesceKey uint16) (MessageID, error) {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return 0, fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	return ctx.sendPayload(idx, payload, pri, flags, coalesceKey)
}

// SendVia sends over a specific transport instead of the peer's
// preferred stream. UDP bypasses the send queue entirely and is fired
// immediately as a raw datagram (best-effort, no framing guarantees).
func (ctx *Context) SendVia(id PeerID, payload []byte, transport Transport, pri Priority) error {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	if transport == TransportUDP {
		c := &ctx.pt.cold[idx]
		h := &ctx.pt.hot[idx]
		if h.addrCount == 0 {
			return fmt.Errorf("%w: peer has no known address", ErrBadParameter)
		}
		return ctx.adapter.UDPSend(c.addresses[0].Address, c.addresses[0].Port, payload)
	}
	_, err := ctx.sendPayload(idx, payload, pri, 0, 0)
	return err
}

// SendTracked is Send with OnMessageSent guaranteed to fire once the
// frame is handed to the adapter (or fails to be).
func (ctx *Context) SendTracked(id PeerID, payload []byte, pri Priority) (MessageID, error) {
	return ctx.SendEx(id, payload, pri, FlagTracked, 0)
}

// Broadcast sends payload to every currently CONNECTED peer.
func (ctx *Context) Broadcast(payload []byte, pri Priority) {
	for i := range ctx.pt.hot {
		if ctx.pt.hot[i].state == PeerConnected {
			_, _ = ctx.sendPayload(i, payload, pri, 0, 0)
		}
	}
}

// SendUDP fires one raw datagram at an arbitrary address, bypassing
// the peer table entirely (spec §6 direct-datagram API).
func (ctx *Context) SendUDP(address string, port uint16, data []byte) error {
	return ctx.adapter.UDPSend(address, port, data)
}

// BroadcastUDP fires data to the local discovery-style broadcast
// address on Config.UDPPort.
func (ctx *Context) BroadcastUDP(data []byte) error {
	return ctx.adapter.UDPSend("", ctx.cfg.UDPPort, data)
}

func (ctx *Context) sendPayload(idx int, payload []byte, pri Priority, flags SendFlags, coalesceKey uint16) (MessageID, error) {
	if len(payload) > ctx.cfg.MaxMessageSize {
		return 0, fmt.Errorf("%w: payload exceeds max_message_size", ErrInvalidSize)
	}
	h := &ctx.pt.hot[idx]
	if h.connSlot == noIndex {
		return 0, fmt.Errorf("%w: peer %d", ErrNotConnected, h.id)
	}
	cold := &ctx.pt.cold[idx]
	effectiveMax := cold.effectiveMax
	if effectiveMax <= 0 {
		// CAPABILITY exchange hasn't completed yet; assume the
		// conservative local chunk hint until it does (spec §4.5).
		effectiveMax = ctx.cfg.PreferredChunk
	}
	if len(payload) <= effectiveMax {
		return ctx.enqueueFrame(idx, Frame{Type: FrameData, Payload: payload}, pri, coalesceKey, flags)
	}
	if !ctx.cfg.EnableFragmentation {
		return 0, fmt.Errorf("%w: payload exceeds effective max and fragmentation is disabled", ErrInvalidSize)
	}
	frames := fragmentPayload(payload, ctx.cfg.PreferredChunk, h.sendSeq)
	h.sendSeq += uint32(len(frames))
	var lastID MessageID
	for i, fr := range frames {
		entryFlags := SendFlags(0)
		entryKey := uint16(0)
		if i == len(frames)-1 {
			entryFlags, entryKey = flags, coalesceKey
		}
		id, err := ctx.enqueueFrame(idx, fr, pri, entryKey, entryFlags)
		if err != nil {
			return 0, err
		}
		lastID = id
	}
	return lastID, nil
}

func (ctx *Context) GetQueueStatus(id PeerID) (QueueStatus, error) {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return QueueStatus{}, fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	q := ctx.pt.cold[idx].sendQ
	if q == nil {
		return QueueStatus{Capacity: ctx.cfg.QueueCapacity}, nil
	}
	return q.status(), nil
}

func (ctx *Context) GetPeerStats(id PeerID) (PeerStats, error) {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return PeerStats{}, fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	return ctx.pt.cold[idx].stats, nil
}

func (ctx *Context) GetGlobalStats() GlobalStats {
	return ctx.stats
}

// ResetStats zeroes the global counters and every peer's counters,
// leaving table membership and connection state untouched.
func (ctx *Context) ResetStats() {
	ctx.stats = GlobalStats{}
	for i := range ctx.pt.cold {
		ctx.pt.cold[i].stats = PeerStats{}
	}
}

func (ctx *Context) SetFlags(id PeerID, flags uint8) error {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	ctx.pt.hot[idx].flags = flags
	return nil
}

func (ctx *Context) GetFlags(id PeerID) (uint8, error) {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return 0, fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	return ctx.pt.hot[idx].flags, nil
}

func (ctx *Context) ModifyFlags(id PeerID, set, clear uint8) error {
	idx, ok := ctx.pt.indexByID(id)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrPeerNotFound, id)
	}
	h := &ctx.pt.hot[idx]
	h.flags = (h.flags &^ clear) | set
	return nil
}

func (ctx *Context) GetAvailableTransports() Transport {
	return ctx.cfg.Transports
}
