package peertalk

import "time"

// connStream is one connection's state, split hot/cold per spec §3
// ("Connection stream"). Slots are handed out first-free by
// allocConnSlot, so a slot's index is unrelated to its peer's table
// index: peerIdx links the two, and removePeerAt re-points it when
// swap-back removal moves a connected peer. The listener is a separate
// instance (Context.listener), addressed by the adapter as slot
// len(conns).
type connStream struct {
	peerIdx  int // noIndex for the listener stream
	state    StreamState
	flags    asrFlags
	deadline time.Time // connect/close deadline; zero = none
	reason   DisconnectReason
}

func (c *connStream) reset() {
	c.peerIdx = noIndex
	c.state = StreamUnused
	c.flags = asrFlags{}
	c.deadline = time.Time{}
	c.reason = DisconnectUnknown
}

func (c *connStream) expired(now time.Time) bool {
	return !c.deadline.IsZero() && now.After(c.deadline)
}
