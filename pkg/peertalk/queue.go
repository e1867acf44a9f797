package peertalk

// queueEntry is one slot's payload in a peer's send queue (spec §3).
type queueEntry struct {
	Priority      Priority
	CoalesceKey   uint16
	Flags         SendFlags
	Sequence      uint32
	TransportHint Transport
	Buffer        []byte
	MessageID     MessageID
}

// QueueStatus reports a snapshot of one peer's send queue (spec §6
// GetQueueStatus, extended per SPEC_FULL §C with independently
// observable coalesce/drop counters).
type QueueStatus struct {
	Length          int
	Capacity        int
	CoalescedTotal  uint64
	DroppedTotal    uint64
	PerPriorityLen  [numPriorities]int
}

// sendQueue is a bounded ring of send-queue slots, kept as four FIFOs
// indexed by priority (spec §4.6). Capacity is the combined bound
// across all four FIFOs and must be a power of two (checked by
// Config.withDefaults before any sendQueue is built).
type sendQueue struct {
	capacity  int
	fifos     [numPriorities][]*queueEntry
	count     int
	coalesced uint64
	dropped   uint64
}

func newSendQueue(capacity int) *sendQueue {
	return &sendQueue{capacity: capacity}
}

// enqueue implements spec §4.6's three-step contract: coalesce-in-place,
// else append preserving priority order, else backpressure/drop. It
// reports whether the entry coalesced into an existing one or was
// dropped on a full queue so the caller can roll both into
// GlobalStats/Prometheus (SPEC_FULL §C), the same way removePeerAt
// rolls discard() into ctx.stats.QueueDropped.
func (q *sendQueue) enqueue(e queueEntry) (coalesced, dropped bool, err error) {
	if e.Flags&FlagCoalescable != 0 && e.CoalesceKey != 0 {
		for _, fifo := range q.fifos {
			for _, existing := range fifo {
				if existing.CoalesceKey == e.CoalesceKey {
					existing.Buffer = e.Buffer
					existing.Sequence = e.Sequence
					existing.MessageID = e.MessageID
					existing.Flags = e.Flags
					existing.TransportHint = e.TransportHint
					q.coalesced++
					return true, false, nil
				}
			}
		}
	}

	if q.count >= q.capacity {
		if e.Flags&FlagDropOnFull != 0 {
			q.dropped++
			return false, true, nil
		}
		return false, false, ErrBackpressure
	}

	entry := e
	q.fifos[e.Priority] = append(q.fifos[e.Priority], &entry)
	q.count++
	return false, false, nil
}

// dequeueBatch drains up to max entries, highest priority first, and
// in insertion order within a priority (spec §4.6, §4.7).
func (q *sendQueue) dequeueBatch(max int) []*queueEntry {
	var out []*queueEntry
	for p := int(PriorityCritical); p >= int(PriorityLow); p-- {
		fifo := q.fifos[p]
		for len(fifo) > 0 && len(out) < max {
			out = append(out, fifo[0])
			fifo = fifo[1:]
			q.count--
		}
		q.fifos[p] = fifo
		if len(out) >= max {
			break
		}
	}
	return out
}

// discard drops every queued entry, accounting each as dropped. Used
// when a peer is removed with a non-empty queue (spec §4.4 edge case).
func (q *sendQueue) discard() int {
	n := 0
	for p := range q.fifos {
		n += len(q.fifos[p])
		q.fifos[p] = nil
	}
	q.dropped += uint64(n)
	q.count = 0
	return n
}

func (q *sendQueue) status() QueueStatus {
	s := QueueStatus{
		Length:         q.count,
		Capacity:       q.capacity,
		CoalescedTotal: q.coalesced,
		DroppedTotal:   q.dropped,
	}
	for p := range q.fifos {
		s.PerPriorityLen[p] = len(q.fifos[p])
	}
	return s
}
