package peertalk

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors GlobalStats onto an isolated Prometheus
// registry, grounded on the teacher's pkg/p2pnet/metrics.go pattern:
// one registry per Metrics instance so a process embedding more than
// one Context never collides on collector names.
type Metrics struct {
	Registry *prometheus.Registry

	PeersDiscoveredTotal prometheus.Counter
	PeersConnectedTotal  prometheus.Counter
	PeersLostTotal       prometheus.Counter
	MessagesTotal        *prometheus.CounterVec
	BytesTotal           *prometheus.CounterVec
	ProtocolErrorsTotal  prometheus.Counter
	DiscoveryPacketsTotal *prometheus.CounterVec
	QueueCoalescedTotal  prometheus.Counter
	QueueDroppedTotal    prometheus.Counter
	ConnectedPeers       prometheus.GaugeFunc
	PollCounter          prometheus.Counter
}

// NewMetrics builds and registers every collector on a fresh registry.
// ctx is consulted only by the ConnectedPeers gauge function, which
// reads live peer-table state on each scrape.
func NewMetrics(ctx *Context) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		PeersDiscoveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peertalk_peers_discovered_total",
			Help: "Total peers discovered via the discovery engine.",
		}),
		PeersConnectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peertalk_peers_connected_total",
			Help: "Total successful peer connections (cumulative, not a gauge).",
		}),
		PeersLostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peertalk_peers_lost_total",
			Help: "Total peers removed from the table (timeout or GOODBYE).",
		}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peertalk_messages_total",
			Help: "Total application messages sent/received.",
		}, []string{"direction"}),
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peertalk_bytes_total",
			Help: "Total payload bytes sent/received.",
		}, []string{"direction"}),
		ProtocolErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peertalk_protocol_errors_total",
			Help: "Total frame/datagram decode failures.",
		}),
		DiscoveryPacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peertalk_discovery_packets_total",
			Help: "Total discovery datagrams sent/received.",
		}, []string{"direction"}),
		QueueCoalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peertalk_queue_coalesced_total",
			Help: "Total send-queue entries coalesced in place.",
		}),
		QueueDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peertalk_queue_dropped_total",
			Help: "Total send-queue entries dropped (full queue or peer removal).",
		}),
		PollCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peertalk_poll_total",
			Help: "Total Poll invocations.",
		}),
	}
	m.ConnectedPeers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "peertalk_connected_peers",
		Help: "Current number of CONNECTED peers.",
	}, func() float64 {
		return float64(ctx.countByState(PeerConnected))
	})

	reg.MustRegister(
		m.PeersDiscoveredTotal, m.PeersConnectedTotal, m.PeersLostTotal,
		m.MessagesTotal, m.BytesTotal, m.ProtocolErrorsTotal,
		m.DiscoveryPacketsTotal, m.QueueCoalescedTotal, m.QueueDroppedTotal,
		m.ConnectedPeers, m.PollCounter,
	)
	return m
}

// syncMetrics copies the current GlobalStats deltas onto the Prometheus
// counters. Called at the end of Poll when a Metrics is attached;
// Prometheus counters only move forward, so syncMetrics tracks the last
// values it observed and adds the difference.
func (ctx *Context) syncMetrics() {
	m := ctx.metrics
	if m == nil {
		return
	}
	s := ctx.stats
	addDelta(m.PeersDiscoveredTotal, &ctx.metricsPrev.PeersDiscovered, s.PeersDiscovered)
	addDelta(m.PeersConnectedTotal, &ctx.metricsPrev.PeersConnected, s.PeersConnected)
	addDelta(m.PeersLostTotal, &ctx.metricsPrev.PeersLost, s.PeersLost)
	addDeltaVec(m.MessagesTotal.WithLabelValues("sent"), &ctx.metricsPrev.MessagesSent, s.MessagesSent)
	addDeltaVec(m.MessagesTotal.WithLabelValues("received"), &ctx.metricsPrev.MessagesReceived, s.MessagesReceived)
	addDeltaVec(m.BytesTotal.WithLabelValues("sent"), &ctx.metricsPrev.BytesSent, s.BytesSent)
	addDeltaVec(m.BytesTotal.WithLabelValues("received"), &ctx.metricsPrev.BytesReceived, s.BytesReceived)
	addDelta(m.ProtocolErrorsTotal, &ctx.metricsPrev.ProtocolErrors, s.ProtocolErrors)
	addDeltaVec(m.DiscoveryPacketsTotal.WithLabelValues("in"), &ctx.metricsPrev.DiscoveryPacketsIn, s.DiscoveryPacketsIn)
	addDeltaVec(m.DiscoveryPacketsTotal.WithLabelValues("out"), &ctx.metricsPrev.DiscoveryPacketsOut, s.DiscoveryPacketsOut)
	addDelta(m.QueueCoalescedTotal, &ctx.metricsPrev.QueueCoalesced, s.QueueCoalesced)
	addDelta(m.QueueDroppedTotal, &ctx.metricsPrev.QueueDropped, s.QueueDropped)
	addDelta(m.PollCounter, &ctx.metricsPrev.PollCount, s.PollCount)
}

func addDelta(c prometheus.Counter, prev *uint64, cur uint64) {
	if cur > *prev {
		c.Add(float64(cur - *prev))
	}
	*prev = cur
}

func addDeltaVec(c prometheus.Counter, prev *uint64, cur uint64) {
	addDelta(c, prev, cur)
}

func (ctx *Context) countByState(state PeerState) int {
	n := 0
	for i := range ctx.pt.hot {
		if ctx.pt.hot[i].state == state {
			n++
		}
	}
	return n
}
