package peertalk

// Callbacks are the application hooks fired only from within Poll
// (spec §5 "Callbacks fire only from within Poll"), never from
// interrupt/adapter context. Every field is nil-safe: Context checks
// before calling.
//
// The field set is fixed from the operations spec §4 and the
// end-to-end scenarios in §8 name but spec §6 leaves unenumerated
// (SPEC_FULL §C).
type Callbacks struct {
	OnPeerDiscovered   func(id PeerID)
	OnPeerLost         func(id PeerID)
	OnPeerConnected    func(id PeerID)
	OnPeerDisconnected func(id PeerID, reason DisconnectReason)
	OnMessageReceived  func(id PeerID, payload []byte)
	OnMessageSent      func(msgID MessageID, id PeerID, err error)
}

func (c *Callbacks) fireDiscovered(id PeerID) {
	if c != nil && c.OnPeerDiscovered != nil {
		c.OnPeerDiscovered(id)
	}
}

func (c *Callbacks) fireLost(id PeerID) {
	if c != nil && c.OnPeerLost != nil {
		c.OnPeerLost(id)
	}
}

func (c *Callbacks) fireConnected(id PeerID) {
	if c != nil && c.OnPeerConnected != nil {
		c.OnPeerConnected(id)
	}
}

func (c *Callbacks) fireDisconnected(id PeerID, reason DisconnectReason) {
	if c != nil && c.OnPeerDisconnected != nil {
		c.OnPeerDisconnected(id, reason)
	}
}

func (c *Callbacks) fireMessage(id PeerID, payload []byte) {
	if c != nil && c.OnMessageReceived != nil {
		c.OnMessageReceived(id, payload)
	}
}

func (c *Callbacks) fireSent(msgID MessageID, id PeerID, err error) {
	if c != nil && c.OnMessageSent != nil {
		c.OnMessageSent(msgID, id, err)
	}
}
