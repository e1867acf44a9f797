package peertalk

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Version is the library's semantic version (spec §6 Version).
const Version = "0.1.0"

// Context is the root object (spec §3). It owns every piece of state
// the core touches; Poll is the only operation that advances it. A
// Context is not safe for use from more than one goroutine at a time —
// spec §5 models a single logical flow of control, and so does this
// implementation: Poll and every other exported method assume a single
// caller.
type Context struct {
	cfg     Config
	adapter TransportAdapter
	log     LogSink
	metrics *Metrics

	deferred deferredLog
	pt       *peerTable
	conns    []connStream
	listener connStream

	listening       bool
	listenPort      uint16
	discoveryActive bool
	lastAnnounce    time.Time
	queryLimiter    *rate.Limiter

	nextMsgID   MessageID
	callbacks   Callbacks
	stats       GlobalStats
	metricsPrev GlobalStats

	initialized bool
	now         func() time.Time
}

// Init validates config, allocates every owned table, and calls the
// adapter's Init (spec §4.1). On any failure everything allocated so
// far is released and the error is returned; the context itself is not
// usable.
func Init(cfg Config, adapter TransportAdapter) (*Context, error) {
	if adapter == nil {
		return nil, fmt.Errorf("%w: adapter is required", ErrBadParameter)
	}
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	sink := resolved.Log
	if sink == nil {
		sink = nopSink{}
	}

	ctx := &Context{
		cfg:          resolved,
		adapter:      adapter,
		log:          sink,
		pt:           newPeerTable(resolved.MaxPeers),
		conns:        make([]connStream, 0, resolved.MaxPeers),
		listener:     connStream{peerIdx: noIndex, state: StreamUnused},
		queryLimiter: rate.NewLimiter(rate.Every(time.Second), 4),
		now:          time.Now,
	}
	for i := 0; i < resolved.MaxPeers; i++ {
		ctx.conns = append(ctx.conns, connStream{peerIdx: noIndex})
	}

	if err := adapter.Init(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlatform, err)
	}

	ctx.initialized = true
	ctx.log.Log(LogInfo, "INIT", "context initialized", map[string]any{
		"local_name": resolved.LocalName,
		"max_peers":  resolved.MaxPeers,
	})
	return ctx, nil
}

// SetCallbacks installs the application's event hooks (spec §6).
func (ctx *Context) SetCallbacks(cb Callbacks) {
	ctx.callbacks = cb
}

// SetMetrics attaches an optional Prometheus exporter (SPEC_FULL §B).
func (ctx *Context) SetMetrics(m *Metrics) {
	ctx.metrics = m
}

// Shutdown sends GOODBYE if discovery was active, aborts every
// non-UNUSED connection, drains deferred logs, calls the adapter's
// Shutdown, disposes the log sink, and marks the context uninitialized
// so Poll returns ErrNotInitialized. The peer table, queues and stats
// are not zeroed. Safe to call on a partially-initialized context and
// on nil.
func (ctx *Context) Shutdown() {
	if ctx == nil {
		return
	}
	if ctx.discoveryActive {
		ctx.sendGoodbye()
		ctx.discoveryActive = false
	}
	for i := range ctx.conns {
		if ctx.conns[i].state != StreamUnused {
			ctx.abortStream(i, DisconnectShutdown)
		}
	}
	if ctx.listener.state != StreamUnused {
		if ctx.adapter != nil {
			ctx.adapter.StreamAbort(len(ctx.conns))
		}
		ctx.listener.reset()
	}
	ctx.deferred.drain(ctx.log, ctx.peerNameByIndex)

	if ctx.adapter != nil && ctx.initialized {
		ctx.adapter.Shutdown(ctx)
	}
	if ctx.log != nil {
		ctx.log.Close()
	}
	ctx.initialized = false
}

// Config returns the resolved configuration (defaults applied). A
// TransportAdapter's Init uses this to learn its ports and sizing
// instead of duplicating them in adapter-specific config.
func (ctx *Context) Config() Config {
	return ctx.cfg
}

func (ctx *Context) peerNameByIndex(idx int32) string {
	if idx < 0 || int(idx) >= len(ctx.pt.hot) {
		return ""
	}
	return ctx.pt.names.get(ctx.pt.hot[idx].nameIdx)
}
