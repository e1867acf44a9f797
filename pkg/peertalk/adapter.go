package peertalk

import (
	"sync/atomic"
	"time"
)

// AdapterFlag is one bit an adapter sets from interrupt (or
// interrupt-equivalent) context to signal work for the next Poll.
// Setting is required to be a single bitwise-OR store; the core reads
// and clears the whole word on the Poll thread (spec §4.8, §5).
type AdapterFlag uint32

const (
	FlagDataArrived AdapterFlag = 1 << iota
	FlagRemoteClose
	FlagSendComplete
	FlagListenComplete
	FlagConnectComplete
	FlagCloseComplete
	FlagError
)

// asrFlags is the one-writer (adapter) / one-reader (Poll) flag word
// backing a connStream's hot half. A plain byte is what spec §5
// describes for a real interrupt-driven target; atomic.Uint32 gives Go
// the same single-writer/single-reader discipline without a data race,
// since "a byte store cannot be torn" is not a guarantee Go's memory
// model makes to non-atomic field accesses.
type asrFlags struct {
	bits     atomic.Uint32
	errCode  atomic.Uint32
	bufOut   atomic.Bool
}

func (f *asrFlags) set(flag AdapterFlag)      { f.bits.Or(uint32(flag)) }
func (f *asrFlags) setError(code uint32)      { f.errCode.Store(code); f.bits.Or(uint32(FlagError)) }
func (f *asrFlags) drain() (AdapterFlag, uint32) {
	bits := f.bits.Swap(0)
	code := f.errCode.Load()
	return AdapterFlag(bits), code
}

// TransportAdapter is the small virtual table the core consumes (spec
// §4.8). Every method that can block (listen/connect/close) must be
// asynchronous: start the operation and return immediately, signalling
// completion later via the stream's AdapterFlag word. slot identifies
// which connStream (peer or listener) the call concerns; the adapter
// is free to map it to whatever native handle it manages.
type TransportAdapter interface {
	Init(ctx *Context) error
	Shutdown(ctx *Context)
	PollPlatform(ctx *Context)
	GetTicks() int64 // milliseconds; main-thread only, never from interrupt context

	UDPSend(address string, port uint16, data []byte) error
	UDPRecv() (from string, fromPort uint16, data []byte, ok bool)

	StreamCreate(slot int) error
	StreamRelease(slot int)
	StreamListen(slot int, port uint16) error
	// StreamAccept polls the listener bound to listenerSlot for one
	// queued inbound connection. If one is pending it is bound to dest
	// (as if StreamCreate had been called for it) and ok is true;
	// otherwise ok is false and dest is untouched. Non-blocking.
	StreamAccept(listenerSlot int, dest int) (address string, port uint16, ok bool)
	StreamConnect(slot int, address string, port uint16, timeout time.Duration) error
	StreamSend(slot int, data []byte) error
	StreamRecv(slot int, into []byte) (int, error)
	StreamClose(slot int, timeout time.Duration) error
	StreamAbort(slot int)
}

// ReportStreamFlag is the narrow, concurrency-safe entry point an
// adapter's background goroutines use to signal Poll — the Go stand-in
// for an interrupt handler setting a flag word (spec §4.8, §5). slot
// may be any connStream index, or len(conns) for the listener stream.
// Safe to call from any goroutine at any time.
func (ctx *Context) ReportStreamFlag(slot int, flag AdapterFlag) {
	if slot == len(ctx.conns) {
		ctx.listener.flags.set(flag)
		return
	}
	if slot < 0 || slot >= len(ctx.conns) {
		return
	}
	ctx.conns[slot].flags.set(flag)
}

// ReportStreamError is ReportStreamFlag plus an adapter-defined error
// code, surfaced to the log on the next Poll.
func (ctx *Context) ReportStreamError(slot int, code uint32) {
	if slot == len(ctx.conns) {
		ctx.listener.flags.setError(code)
		return
	}
	if slot < 0 || slot >= len(ctx.conns) {
		return
	}
	ctx.conns[slot].flags.setError(code)
}
