package peertalk

import "encoding/binary"

// StartDiscovery activates the discovery engine: it sends an immediate
// QUERY to accelerate convergence, then broadcasts ANNOUNCE on
// Config.DiscoveryInterval from the next Poll onward (spec §4.3).
func (ctx *Context) StartDiscovery() error {
	if !ctx.initialized {
		return ErrNotInitialized
	}
	ctx.discoveryActive = true
	ctx.lastAnnounce = ctx.now()
	return ctx.sendDiscovery(DiscoveryQuery)
}

// StopDiscovery sends GOODBYE and deactivates the engine.
func (ctx *Context) StopDiscovery() error {
	if !ctx.discoveryActive {
		return nil
	}
	err := ctx.sendGoodbye()
	ctx.discoveryActive = false
	return err
}

func (ctx *Context) sendGoodbye() error {
	return ctx.sendDiscovery(DiscoveryGoodbye)
}

func (ctx *Context) sendDiscovery(typ DiscoveryType) error {
	pkt := DiscoveryPacket{
		Type:       typ,
		SenderPort: ctx.cfg.TCPPort,
		Name:       ctx.cfg.LocalName,
		TLVs: []CapabilityTLV{
			{Tag: TLVTransportsAvailable, Value: []byte{byte(ctx.cfg.Transports)}},
			{Tag: TLVListenPort, Value: be16(ctx.cfg.TCPPort)},
		},
	}
	data := pkt.Encode()
	if err := ctx.adapter.UDPSend("", ctx.cfg.DiscoveryPort, data); err != nil {
		ctx.log.Log(LogWarn, "DISCOVERY", "send failed", map[string]any{"type": typ.String(), "error": err.Error()})
		return err
	}
	ctx.stats.DiscoveryPacketsOut++
	return nil
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// drainDiscovery processes every buffered discovery datagram (spec
// §4.1 step 2).
func (ctx *Context) drainDiscovery() {
	for {
		from, _, data, ok := ctx.adapter.UDPRecv()
		if !ok {
			return
		}
		ctx.stats.DiscoveryPacketsIn++
		ctx.handleDiscoveryPacket(from, data)
	}
}

func (ctx *Context) handleDiscoveryPacket(from string, data []byte) {
	pkt, err := decodeDiscovery(data)
	if err != nil {
		ctx.log.Log(LogProtocol, "PROTOCOL", "malformed discovery packet", map[string]any{"from": from, "error": err.Error()})
		ctx.stats.ProtocolErrors++
		return
	}
	if pkt.Name == ctx.cfg.LocalName {
		return // self-loop
	}
	switch pkt.Type {
	case DiscoveryAnnounce:
		ctx.handleAnnounce(from, pkt)
	case DiscoveryQuery:
		if ctx.queryLimiter.Allow() {
			_ = ctx.sendDiscovery(DiscoveryAnnounce)
		}
	case DiscoveryGoodbye:
		ctx.handleGoodbye(pkt)
	default:
		ctx.log.Log(LogProtocol, "PROTOCOL", "unknown discovery type", map[string]any{"type": uint8(pkt.Type)})
	}
}

func (ctx *Context) handleAnnounce(from string, pkt DiscoveryPacket) {
	now := ctx.now()
	idx, ok := ctx.pt.indexByName(pkt.Name)
	if !ok {
		if ctx.pt.count() >= ctx.cfg.MaxPeers {
			return
		}
		var err error
		idx, _, err = ctx.pt.alloc(pkt.Name, now)
		if err != nil {
			return
		}
		ctx.stats.PeersDiscovered++
		ctx.deferred.push(deferredPeerDiscovered, int32(idx), 0)
		ctx.callbacks.fireDiscovered(ctx.pt.hot[idx].id)
	}

	h := &ctx.pt.hot[idx]
	h.lastActivity = now
	if h.state == PeerUnused {
		h.state = PeerDiscovered
	}

	var advertised Transport
	listenPort := pkt.SenderPort
	for _, t := range pkt.TLVs {
		switch t.Tag {
		case TLVTransportsAvailable:
			if len(t.Value) >= 1 {
				advertised = Transport(t.Value[0])
			}
		case TLVListenPort:
			if len(t.Value) >= 2 {
				listenPort = binary.BigEndian.Uint16(t.Value)
			}
		}
	}
	if advertised == 0 {
		advertised = TransportUDP
	}
	h.transports |= advertised
	ctx.pt.addAddress(idx, PeerAddress{Address: from, Port: listenPort, Transport: TransportTCP}, h.addrCount == 0)
}

func (ctx *Context) handleGoodbye(pkt DiscoveryPacket) {
	idx, ok := ctx.pt.indexByName(pkt.Name)
	if !ok {
		return
	}
	id := ctx.pt.hot[idx].id
	ctx.removePeerAt(idx, DisconnectRemote)
	ctx.stats.PeersLost++
	ctx.deferred.push(deferredPeerLost, int32(idx), 0)
	ctx.callbacks.fireLost(id)
}

// sweepPeers demotes stale DISCOVERED peers and pings idle CONNECTED
// ones (spec §4.1 step 6). Iterates back-to-front so swap-back removal
// during the scan never skips a slot.
func (ctx *Context) sweepPeers() {
	now := ctx.now()
	for idx := ctx.pt.count() - 1; idx >= 0; idx-- {
		h := &ctx.pt.hot[idx]
		switch h.state {
		case PeerDiscovered:
			if now.Sub(h.lastActivity) > ctx.cfg.PeerTimeout {
				id := h.id
				ctx.removePeerAt(idx, DisconnectTimeout)
				ctx.stats.PeersLost++
				ctx.callbacks.fireLost(id)
			}
		case PeerConnected:
			if now.Sub(h.lastActivity) > ctx.cfg.IdleThreshold {
				ctx.sendPing(idx)
			}
		}
	}
}

// removePeerAt tears down a peer's connection (if any) and its queue,
// then swap-back removes its table slot (spec §4.2, §4.4 edge case:
// queued entries on a removed peer are discarded and accounted).
func (ctx *Context) removePeerAt(idx int, reason DisconnectReason) {
	if idx < 0 || idx >= ctx.pt.count() {
		return
	}
	slot := ctx.pt.hot[idx].connSlot
	if slot != noIndex {
		ctx.abortStream(slot, reason)
	}
	if q := ctx.pt.cold[idx].sendQ; q != nil {
		dropped := q.discard()
		ctx.stats.QueueDropped += uint64(dropped)
	}
	_ = ctx.pt.remove(idx)
	if idx < ctx.pt.count() {
		if moved := ctx.pt.hot[idx].connSlot; moved != noIndex {
			ctx.conns[moved].peerIdx = idx
		}
	}
}
