package peertalk

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Poll advances the whole context by one tick (spec §4.1, §4.7). It is
// the only place callbacks fire and the only place adapter-reported
// flags are consumed. Ordering is fixed:
//  1. drain deferred log events recorded since the last Poll
//  2. let the adapter pump its own platform I/O
//  3. drain and dispatch buffered discovery datagrams
//  4. advance the listener stream (accept queue)
//  5. advance every connection stream (recv, dispatch, send)
//  6. fire a discovery announce if the interval elapsed
//  7. sweep the peer table for stale/idle entries
func (ctx *Context) Poll() error {
	if !ctx.initialized {
		return ErrNotInitialized
	}
	ctx.stats.PollCount++

	ctx.deferred.drain(ctx.log, ctx.peerNameByIndex)
	ctx.adapter.PollPlatform(ctx)
	ctx.drainDiscovery()
	ctx.advanceListener()
	ctx.advanceConnections()

	if ctx.discoveryActive && ctx.now().Sub(ctx.lastAnnounce) >= ctx.cfg.DiscoveryInterval {
		_ = ctx.sendDiscovery(DiscoveryAnnounce)
		ctx.lastAnnounce = ctx.now()
	}

	ctx.sweepPeers()
	ctx.syncMetrics()
	return nil
}

// allocConnSlot returns the index of a free connStream, or
// ErrResourceExhaust if every slot is in use (spec §4.4: MaxPeers bounds
// the connection table the same way it bounds the peer table).
func (ctx *Context) allocConnSlot() (int, error) {
	for i := range ctx.conns {
		if ctx.conns[i].state == StreamUnused {
			return i, nil
		}
	}
	return noIndex, ErrResourceExhaust
}

func (ctx *Context) advanceListener() {
	if ctx.listener.state != StreamListening || !ctx.cfg.AutoAccept {
		return
	}
	for {
		slot, err := ctx.allocConnSlot()
		if err != nil {
			return
		}
		addr, port, ok := ctx.adapter.StreamAccept(len(ctx.conns), slot)
		if !ok {
			return
		}
		ctx.handleAccept(slot, addr, port)
	}
}

// handleAccept binds a freshly accepted inbound stream to a peer-table
// slot, creating one if the remote address is unknown (spec §4.4 edge
// case: unsolicited connection from an address the discovery layer
// hasn't announced yet).
func (ctx *Context) handleAccept(slot int, addr string, port uint16) {
	now := ctx.now()
	idx, ok := ctx.pt.indexByAddress(addr, port)
	if !ok {
		if ctx.pt.count() >= ctx.cfg.MaxPeers {
			ctx.adapter.StreamAbort(slot)
			return
		}
		var err error
		idx, _, err = ctx.pt.alloc(fmt.Sprintf("peer@%s:%d", addr, port), now)
		if err != nil {
			ctx.adapter.StreamAbort(slot)
			return
		}
		ctx.pt.addAddress(idx, PeerAddress{Address: addr, Port: port, Transport: TransportTCP}, true)
		ctx.stats.PeersDiscovered++
		ctx.callbacks.fireDiscovered(ctx.pt.hot[idx].id)
	}

	h := &ctx.pt.hot[idx]
	if h.connSlot != noIndex {
		ctx.adapter.StreamAbort(slot) // already connected or connecting elsewhere
		return
	}
	h.connSlot = slot
	h.state = PeerConnected
	h.lastActivity = now
	ctx.conns[slot] = connStream{peerIdx: idx, state: StreamConnected}
	if ctx.pt.cold[idx].sendQ == nil {
		ctx.pt.cold[idx].sendQ = newSendQueue(ctx.cfg.QueueCapacity)
	}
	ctx.stats.PeersConnected++
	ctx.callbacks.fireConnected(h.id)
	ctx.sendCapability(idx)
}

func (ctx *Context) advanceConnections() {
	now := ctx.now()
	for i := range ctx.conns {
		switch ctx.conns[i].state {
		case StreamConnecting:
			ctx.advanceConnecting(i, now)
		case StreamConnected:
			ctx.advanceConnected(i, now)
		case StreamClosing:
			ctx.advanceClosing(i, now)
		}
	}
}

func (ctx *Context) advanceConnecting(i int, now time.Time) {
	c := &ctx.conns[i]
	flags, code := c.flags.drain()
	switch {
	case flags&FlagConnectComplete != 0:
		c.state = StreamConnected
		if c.peerIdx == noIndex {
			return
		}
		h := &ctx.pt.hot[c.peerIdx]
		h.state = PeerConnected
		h.lastActivity = now
		ctx.stats.PeersConnected++
		ctx.callbacks.fireConnected(h.id)
		ctx.sendCapability(c.peerIdx)
	case flags&FlagError != 0:
		ctx.log.Log(LogWarn, "TRANSPORT", "connect failed", map[string]any{
			"peer": ctx.peerNameByIndex(int32(c.peerIdx)), "code": code,
		})
		ctx.failConnecting(i, DisconnectNetwork)
	case c.expired(now):
		ctx.log.Log(LogWarn, "TRANSPORT", "connect timed out", map[string]any{
			"peer": ctx.peerNameByIndex(int32(c.peerIdx)),
		})
		ctx.failConnecting(i, DisconnectTimeout)
	}
}

func (ctx *Context) failConnecting(i int, reason DisconnectReason) {
	peerIdx := ctx.conns[i].peerIdx
	ctx.adapter.StreamAbort(i)
	ctx.conns[i].reset()
	if peerIdx == noIndex {
		return
	}
	h := &ctx.pt.hot[peerIdx]
	h.connSlot = noIndex
	if h.state != PeerUnused {
		h.state = PeerDiscovered
	}
	ctx.callbacks.fireDisconnected(h.id, reason)
}

func (ctx *Context) advanceConnected(i int, now time.Time) {
	c := &ctx.conns[i]
	flags, _ := c.flags.drain()
	if flags&FlagRemoteClose != 0 {
		ctx.abortStream(i, DisconnectRemote)
		return
	}
	if flags&FlagError != 0 {
		ctx.abortStream(i, DisconnectNetwork)
		return
	}
	peerIdx := c.peerIdx
	if peerIdx == noIndex {
		return
	}
	if !ctx.recvFrames(i, peerIdx, now) {
		return
	}
	ctx.flushSendQueue(i, peerIdx)
}

func (ctx *Context) recvFrames(i, peerIdx int, now time.Time) bool {
	cold := &ctx.pt.cold[peerIdx]
	var buf [4096]byte
	for {
		n, err := ctx.adapter.StreamRecv(i, buf[:])
		if n > 0 {
			cold.recvFrameBuf = append(cold.recvFrameBuf, buf[:n]...)
		}
		if err != nil || n < len(buf) {
			break
		}
	}
	for len(cold.recvFrameBuf) > 0 {
		res := decodeFrame(cold.recvFrameBuf)
		if res.Status == DecodePartial {
			break
		}
		if res.Status == DecodeErr {
			ctx.stats.ProtocolErrors++
			cold.stats.ProtocolErrors++
			ctx.log.Log(LogProtocol, "PROTOCOL", "frame decode failed", map[string]any{
				"peer": ctx.peerNameByIndex(int32(peerIdx)), "error": res.Err.Error(),
			})
			ctx.abortStream(i, DisconnectNetwork)
			return false
		}
		cold.recvFrameBuf = cold.recvFrameBuf[res.Consumed:]
		if !ctx.dispatchFrame(i, peerIdx, res.Frame, now) {
			return false
		}
	}
	return true
}

// dispatchFrame handles one decoded frame. It returns false if the
// stream was aborted while handling it.
func (ctx *Context) dispatchFrame(i, peerIdx int, f Frame, now time.Time) bool {
	hot := &ctx.pt.hot[peerIdx]
	cold := &ctx.pt.cold[peerIdx]
	hot.lastActivity = now

	switch f.Type {
	case FrameData:
		ctx.stats.MessagesReceived++
		ctx.stats.BytesReceived += uint64(len(f.Payload))
		cold.stats.MessagesReceived++
		cold.stats.BytesReceived += uint64(len(f.Payload))
		ctx.callbacks.fireMessage(hot.id, f.Payload)

	case FramePing:
		cold.stats.Pings++
		_, _ = ctx.enqueueFrame(peerIdx, Frame{Type: FramePong, Sequence: f.Sequence}, PriorityHigh, 0, 0)

	case FramePong:
		cold.stats.Pongs++
		if f.Sequence == cold.pingSeq && !cold.pingSentAt.IsZero() {
			cold.recordRTT(now.Sub(cold.pingSentAt))
			hot.rtt = cold.averageRTT()
			cold.pingSentAt = time.Time{}
		}

	case FrameDisconnect:
		ctx.abortStream(i, DisconnectRemote)
		return false

	case FrameCapability:
		cold.capRecv = true
		if len(f.Payload) >= capabilityPayloadSize {
			peerMax := int(binary.BigEndian.Uint32(f.Payload[1:5]))
			cold.effectiveMax = min(ctx.cfg.MaxMessageSize, peerMax)
		}

	case FrameFragStart, FrameFragCont, FrameFragEnd:
		payload, done, err := cold.reassembly.feed(f)
		if err != nil {
			ctx.stats.ProtocolErrors++
			cold.stats.ProtocolErrors++
			ctx.log.Log(LogProtocol, "PROTOCOL", "fragment reassembly failed", map[string]any{
				"peer": ctx.peerNameByIndex(int32(peerIdx)), "error": err.Error(),
			})
			ctx.abortStream(i, DisconnectNetwork)
			return false
		}
		if done {
			ctx.stats.MessagesReceived++
			ctx.stats.BytesReceived += uint64(len(payload))
			cold.stats.MessagesReceived++
			cold.stats.BytesReceived += uint64(len(payload))
			ctx.callbacks.fireMessage(hot.id, payload)
		}

	default:
		ctx.stats.ProtocolErrors++
		cold.stats.ProtocolErrors++
	}
	return true
}

func (ctx *Context) flushSendQueue(i, peerIdx int) {
	cold := &ctx.pt.cold[peerIdx]
	hot := &ctx.pt.hot[peerIdx]
	if cold.sendQ == nil {
		return
	}
	for _, e := range cold.sendQ.dequeueBatch(8) {
		if err := ctx.adapter.StreamSend(i, e.Buffer); err != nil {
			if e.Flags&FlagTracked != 0 {
				ctx.callbacks.fireSent(e.MessageID, hot.id, err)
			}
			ctx.abortStream(i, DisconnectNetwork)
			return
		}
		ctx.stats.MessagesSent++
		ctx.stats.BytesSent += uint64(len(e.Buffer))
		cold.stats.MessagesSent++
		cold.stats.BytesSent += uint64(len(e.Buffer))
		if e.Flags&FlagTracked != 0 {
			ctx.callbacks.fireSent(e.MessageID, hot.id, nil)
		}
	}
}

func (ctx *Context) advanceClosing(i int, now time.Time) {
	c := &ctx.conns[i]
	flags, _ := c.flags.drain()
	if flags&FlagCloseComplete != 0 || c.expired(now) {
		ctx.abortStream(i, c.reason)
	}
}

// abortStream is the hard teardown path: used for shutdown, timeouts,
// protocol errors, and as the second half of a graceful close once the
// adapter reports completion. Idempotent on an already-UNUSED slot.
func (ctx *Context) abortStream(slot int, reason DisconnectReason) {
	if slot < 0 || slot >= len(ctx.conns) {
		return
	}
	c := &ctx.conns[slot]
	if c.state == StreamUnused {
		return
	}
	peerIdx := c.peerIdx
	if ctx.adapter != nil {
		ctx.adapter.StreamAbort(slot)
	}
	c.reset()
	if peerIdx == noIndex || peerIdx >= len(ctx.pt.hot) {
		return
	}
	h := &ctx.pt.hot[peerIdx]
	wasConnected := h.state == PeerConnected
	h.connSlot = noIndex
	if h.state != PeerUnused {
		h.state = PeerDiscovered
	}
	if wasConnected {
		ctx.callbacks.fireDisconnected(h.id, reason)
	}
}

// sendPing enqueues a PING frame and timestamps it for the RTT sample
// taken when the matching PONG arrives (spec §4.7 idle keepalive).
func (ctx *Context) sendPing(idx int) {
	h := &ctx.pt.hot[idx]
	if h.connSlot == noIndex {
		return
	}
	cold := &ctx.pt.cold[idx]
	cold.pingSeq++
	cold.pingSentAt = ctx.now()
	_, _ = ctx.enqueueFrame(idx, Frame{Type: FramePing, Sequence: cold.pingSeq}, PriorityHigh, 0, 0)
}

// capabilityPayloadSize is the version byte plus two big-endian uint32
// fields: this side's MaxMessageSize and PreferredChunk (spec §4.5).
const capabilityPayloadSize = 1 + 4 + 4

// sendCapability announces protocol capabilities to a newly connected
// peer as the very first CRITICAL-priority send (SPEC_FULL §D, Open
// Question: CAPABILITY is synchronous with on_peer_connected). The
// payload carries this side's MaxMessageSize and PreferredChunk so the
// peer can compute the effective max (spec §4.5, glossary "Effective
// max").
func (ctx *Context) sendCapability(idx int) {
	cold := &ctx.pt.cold[idx]
	if cold.capSent {
		return
	}
	payload := make([]byte, capabilityPayloadSize)
	payload[0] = frameVersion
	binary.BigEndian.PutUint32(payload[1:5], uint32(ctx.cfg.MaxMessageSize))
	binary.BigEndian.PutUint32(payload[5:9], uint32(ctx.cfg.PreferredChunk))
	_, _ = ctx.enqueueFrame(idx, Frame{Type: FrameCapability, Payload: payload}, PriorityCritical, 0, FlagDropOnFull)
	cold.capSent = true
}

// enqueueFrame encodes f and places it on idx's send queue, returning
// the MessageID assigned for tracking (spec §9 "Send-tracked IDs").
func (ctx *Context) enqueueFrame(idx int, f Frame, pri Priority, coalesceKey uint16, flags SendFlags) (MessageID, error) {
	cold := &ctx.pt.cold[idx]
	if cold.sendQ == nil {
		cold.sendQ = newSendQueue(ctx.cfg.QueueCapacity)
	}
	ctx.nextMsgID++
	id := ctx.nextMsgID
	coalesced, dropped, err := cold.sendQ.enqueue(queueEntry{
		Priority:    pri,
		CoalesceKey: coalesceKey,
		Flags:       flags,
		Sequence:    f.Sequence,
		Buffer:      f.Encode(),
		MessageID:   id,
	})
	if err != nil {
		return 0, err
	}
	if coalesced {
		ctx.stats.QueueCoalesced++
	}
	if dropped {
		ctx.stats.QueueDropped++
	}
	return id, nil
}
