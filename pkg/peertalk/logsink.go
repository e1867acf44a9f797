package peertalk

// LogSink is the small interface the core writes to. The actual
// structured-logging facility (rotation, file/network sinks, format)
// is an external collaborator per spec §1 — the core only needs
// somewhere to hand a (level, category, message, fields) tuple.
type LogSink interface {
	Log(level LogLevel, category string, msg string, fields map[string]any)
	Close() error
}

// nopSink discards everything; used when Config.Log is nil and the
// caller never wired a real sink.
type nopSink struct{}

func (nopSink) Log(LogLevel, string, string, map[string]any) {}
func (nopSink) Close() error                                 { return nil }

// deferredLogKind tags a deferred log event cheaply (no string
// allocation) so it can be recorded from code that must not allocate
// or call into logging directly — see interrupt_marker.go. Only
// deferredLog.push may be called from such code; everything else
// about the event (message text) is filled in when it's drained.
type deferredLogKind uint8

const (
	deferredPeerDiscovered deferredLogKind = iota + 1
	deferredPeerLost
	deferredStreamError
	deferredProtocolError
	deferredAsyncComplete
)

// deferredEvent is one entry in the fixed-size, allocation-free ring a
// transport adapter's event-signalling code appends to. Draining and
// translating these into LogSink.Log calls happens only in Poll,
// before any new events are generated (spec §4.1 step 1, §5).
type deferredEvent struct {
	kind    deferredLogKind
	peerIdx int32
	code    uint16
}

const deferredEventCapacity = 256

// deferredLog is the fixed-capacity queue. head is advanced by
// push (the only interrupt-safe entry point); tail is
// advanced only by drain, which runs on the Poll thread.
type deferredLog struct {
	events [deferredEventCapacity]deferredEvent
	head   uint32
	tail   uint32
}

// push records one event. If the ring is full the event is dropped —
// there is no allocation-free way to signal that back to an interrupt
// caller, so overflow is silently lossy by design; it only happens
// under pathological event storms between two Poll calls.
func (d *deferredLog) push(kind deferredLogKind, peerIdx int32, code uint16) {
	next := d.head + 1
	if next-d.tail > deferredEventCapacity {
		return
	}
	d.events[d.head%deferredEventCapacity] = deferredEvent{kind: kind, peerIdx: peerIdx, code: code}
	d.head = next
}

// drain translates every queued event into a LogSink.Log call and
// clears the queue. Called once at the start of every Poll.
func (d *deferredLog) drain(sink LogSink, peerName func(int32) string) {
	for d.tail != d.head {
		e := d.events[d.tail%deferredEventCapacity]
		d.tail++
		name := ""
		if peerName != nil {
			name = peerName(e.peerIdx)
		}
		switch e.kind {
		case deferredPeerDiscovered:
			sink.Log(LogInfo, "DISCOVERY", "peer discovered", map[string]any{"peer": name})
		case deferredPeerLost:
			sink.Log(LogInfo, "DISCOVERY", "peer lost", map[string]any{"peer": name})
		case deferredStreamError:
			sink.Log(LogWarn, "TRANSPORT", "stream error", map[string]any{"peer": name, "code": e.code})
		case deferredProtocolError:
			sink.Log(LogProtocol, "PROTOCOL", "frame decode failed", map[string]any{"peer": name, "kind": e.code})
		case deferredAsyncComplete:
			sink.Log(LogDebug, "TRANSPORT", "async op complete", map[string]any{"peer": name, "result": e.code})
		}
	}
}
