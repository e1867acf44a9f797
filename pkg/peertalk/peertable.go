package peertalk

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// normalizeName folds a peer-supplied display name to NFC so that
// visually identical names typed on different input methods collide in
// the name table instead of silently coexisting as distinct peers
// (SPEC_FULL §B, grounded on golang.org/x/text/unicode/norm).
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// nameTable is the fixed-size, indexed array of peer display names
// (spec §3 "Name table"). Keeping names out of peerHot is what lets the
// hot array stay cache-line sized.
type nameTable struct {
	names []string
	free  []int
}

func newNameTable(capacity int) *nameTable {
	nt := &nameTable{names: make([]string, capacity)}
	for i := capacity - 1; i >= 0; i-- {
		nt.free = append(nt.free, i)
	}
	return nt
}

func (nt *nameTable) alloc(name string) (int, error) {
	if len(nt.free) == 0 {
		return 0, ErrNoMemory
	}
	idx := nt.free[len(nt.free)-1]
	nt.free = nt.free[:len(nt.free)-1]
	nt.names[idx] = name
	return idx, nil
}

// release writes a null byte at offset zero, per spec §4.2: the slot's
// contents are cleared and returned to the free list.
func (nt *nameTable) release(idx int) {
	if idx < 0 || idx >= len(nt.names) {
		return
	}
	nt.names[idx] = ""
	nt.free = append(nt.free, idx)
}

func (nt *nameTable) get(idx int) string {
	if idx < 0 || idx >= len(nt.names) {
		return ""
	}
	return nt.names[idx]
}

// peerTable owns the peer-slot arrays and the O(1) ID->index lookup
// (spec §3, §4.2). The valid peer-ID space is 0..255: §3 describes the
// lookup table that way, and this repo resolves the apparent tension
// with §4.2's "wrapping within the 16-bit space" by reading that phrase
// as describing the generator's counter width, not the valid range.
// ID 0 is reserved.
type peerTable struct {
	hot       []peerHot
	cold      []peerCold
	capacity  int
	idToIndex [256]int32
	nextID    uint16 // allocation hint, wraps within 1..255
	names     *nameTable
	version   uint64 // bumped on every alloc/remove; backs GetPeersVersion
}

func newPeerTable(capacity int) *peerTable {
	pt := &peerTable{
		capacity: capacity,
		hot:      make([]peerHot, 0, capacity),
		cold:     make([]peerCold, 0, capacity),
		names:    newNameTable(capacity),
		nextID:   1,
	}
	for i := range pt.idToIndex {
		pt.idToIndex[i] = int32(noIndex)
	}
	return pt
}

func (pt *peerTable) count() int { return len(pt.hot) }

// allocID returns the next unused peer ID, skipping any ID already
// present in the lookup table and wrapping back to 1 after 255 (spec
// §4.2; ID 0 stays reserved).
func (pt *peerTable) allocID() (PeerID, error) {
	start := pt.nextID
	if start == 0 {
		start = 1
	}
	id := start
	for i := 0; i < 255; i++ {
		if pt.idToIndex[id] == int32(noIndex) {
			pt.nextID = id + 1
			if pt.nextID == 0 || pt.nextID > 255 {
				pt.nextID = 1
			}
			return PeerID(id), nil
		}
		id++
		if id == 0 || id > 255 {
			id = 1
		}
	}
	return 0, ErrResourceExhaust
}

// alloc appends a new peer slot (O(1)) and installs its ID->index
// mapping (spec §4.2).
func (pt *peerTable) alloc(name string, now time.Time) (index int, id PeerID, err error) {
	if len(pt.hot) >= pt.capacity {
		return 0, 0, ErrResourceExhaust
	}
	id, err = pt.allocID()
	if err != nil {
		return 0, 0, err
	}
	nameIdx, err := pt.names.alloc(normalizeName(name))
	if err != nil {
		return 0, 0, err
	}
	idx := len(pt.hot)
	pt.hot = append(pt.hot, peerHot{
		magic:        peerMagic,
		connSlot:     noIndex,
		id:           id,
		state:        PeerDiscovered,
		nameIdx:      nameIdx,
		lastActivity: now,
	})
	pt.cold = append(pt.cold, peerCold{})
	pt.idToIndex[id] = int32(idx)
	pt.version++
	return idx, id, nil
}

// remove is O(1) swap-back removal (spec §4.2, §9): the last live slot
// overwrites idx, and the moved peer's lookup entry is patched.
func (pt *peerTable) remove(idx int) error {
	if idx < 0 || idx >= len(pt.hot) {
		return ErrInternal
	}
	id := pt.hot[idx].id
	pt.names.release(pt.hot[idx].nameIdx)

	last := len(pt.hot) - 1
	if idx != last {
		pt.hot[idx] = pt.hot[last]
		pt.cold[idx] = pt.cold[last]
		pt.idToIndex[pt.hot[idx].id] = int32(idx)
	}
	pt.hot[last] = peerHot{}
	pt.cold[last] = peerCold{}
	pt.hot = pt.hot[:last]
	pt.cold = pt.cold[:last]
	pt.idToIndex[id] = int32(noIndex)
	pt.version++
	return nil
}

func (pt *peerTable) indexByID(id PeerID) (int, bool) {
	if id == 0 || int(id) >= len(pt.idToIndex) {
		return 0, false
	}
	idx := pt.idToIndex[id]
	if idx == int32(noIndex) {
		return 0, false
	}
	return int(idx), true
}

// indexByName is a linear scan: cold path per spec §4.2.
func (pt *peerTable) indexByName(name string) (int, bool) {
	normalized := normalizeName(name)
	for i := range pt.hot {
		if pt.names.get(pt.hot[i].nameIdx) == normalized {
			return i, true
		}
	}
	return 0, false
}

// indexByAddress is a linear scan: cold path per spec §4.2.
func (pt *peerTable) indexByAddress(address string, port uint16) (int, bool) {
	for i := range pt.cold {
		c := &pt.cold[i]
		for a := uint8(0); a < pt.hot[i].addrCount; a++ {
			if c.addresses[a].Address == address && c.addresses[a].Port == port {
				return i, true
			}
		}
	}
	return 0, false
}

// addAddress inserts or updates one of a peer's up to two address
// tuples, preserving invariant (3): addresses[0] is the preferred one.
func (pt *peerTable) addAddress(idx int, addr PeerAddress, preferred bool) {
	h := &pt.hot[idx]
	c := &pt.cold[idx]
	for a := uint8(0); a < h.addrCount; a++ {
		if c.addresses[a].Address == addr.Address && c.addresses[a].Port == addr.Port {
			c.addresses[a].Transport |= addr.Transport
			if preferred && a != 0 {
				c.addresses[0], c.addresses[a] = c.addresses[a], c.addresses[0]
			}
			return
		}
	}
	if h.addrCount >= uint8(len(c.addresses)) {
		return // at capacity; spec caps at 2 tuples
	}
	if preferred && h.addrCount > 0 {
		c.addresses[h.addrCount] = c.addresses[0]
		c.addresses[0] = addr
	} else {
		c.addresses[h.addrCount] = addr
	}
	h.addrCount++
}
