package peertalk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAdapter is a minimal, single-threaded TransportAdapter double: no
// goroutines, no sockets, just in-memory queues the test manipulates
// directly to drive Poll through its state machine.
type fakeAdapter struct {
	mu sync.Mutex

	initCalled     bool
	shutdownCalled bool
	ticks          int64

	udpOut  [][]byte
	udpIn   []fakeUDPPacket
	created map[int]bool
	closed  map[int]bool
	aborted map[int]bool

	pendingAccept *fakeAccept
	connectOK     bool
	sendOut       map[int][][]byte
	recvIn        map[int][][]byte
}

type fakeUDPPacket struct {
	from string
	port uint16
	data []byte
}

type fakeAccept struct {
	slot    int
	address string
	port    uint16
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		created:   make(map[int]bool),
		closed:    make(map[int]bool),
		aborted:   make(map[int]bool),
		connectOK: true,
		sendOut:   make(map[int][][]byte),
		recvIn:    make(map[int][][]byte),
	}
}

func (a *fakeAdapter) Init(ctx *Context) error { a.initCalled = true; return nil }
func (a *fakeAdapter) Shutdown(ctx *Context)    { a.shutdownCalled = true }
func (a *fakeAdapter) PollPlatform(ctx *Context) {}
func (a *fakeAdapter) GetTicks() int64 { a.ticks++; return a.ticks }

func (a *fakeAdapter) UDPSend(address string, port uint16, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.udpOut = append(a.udpOut, append([]byte(nil), data...))
	return nil
}

func (a *fakeAdapter) UDPRecv() (string, uint16, []byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.udpIn) == 0 {
		return "", 0, nil, false
	}
	p := a.udpIn[0]
	a.udpIn = a.udpIn[1:]
	return p.from, p.port, p.data, true
}

func (a *fakeAdapter) StreamCreate(slot int) error { a.created[slot] = true; return nil }
func (a *fakeAdapter) StreamRelease(slot int)      { delete(a.created, slot) }
func (a *fakeAdapter) StreamListen(slot int, port uint16) error { return nil }

func (a *fakeAdapter) StreamAccept(listenerSlot int, dest int) (string, uint16, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pendingAccept == nil {
		return "", 0, false
	}
	acc := a.pendingAccept
	a.pendingAccept = nil
	a.created[dest] = true
	return acc.address, acc.port, true
}

func (a *fakeAdapter) StreamConnect(slot int, address string, port uint16, timeout time.Duration) error {
	return nil
}

func (a *fakeAdapter) StreamSend(slot int, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sendOut[slot] = append(a.sendOut[slot], append([]byte(nil), data...))
	return nil
}

func (a *fakeAdapter) StreamRecv(slot int, into []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q := a.recvIn[slot]
	if len(q) == 0 {
		return 0, nil
	}
	chunk := q[0]
	a.recvIn[slot] = q[1:]
	n := copy(into, chunk)
	return n, nil
}

func (a *fakeAdapter) StreamClose(slot int, timeout time.Duration) error { a.closed[slot] = true; return nil }
func (a *fakeAdapter) StreamAbort(slot int)                              { a.aborted[slot] = true }

func testConfig(name string) Config {
	return Config{LocalName: name, MaxPeers: 4, AutoAccept: true}
}

func TestInitCallsAdapterInit(t *testing.T) {
	a := newFakeAdapter()
	ctx, err := Init(testConfig("alice"), a)
	require.NoError(t, err)
	require.True(t, a.initCalled)
	ctx.Shutdown()
	require.True(t, a.shutdownCalled)
}

func TestInitRejectsNilAdapter(t *testing.T) {
	_, err := Init(testConfig("alice"), nil)
	require.ErrorIs(t, err, ErrBadParameter)
}

func TestInitRejectsEmptyName(t *testing.T) {
	_, err := Init(Config{MaxPeers: 4}, newFakeAdapter())
	require.ErrorIs(t, err, ErrBadParameter)
}

func TestPollIsIdempotentWhenQuiescent(t *testing.T) {
	a := newFakeAdapter()
	ctx, err := Init(testConfig("alice"), a)
	require.NoError(t, err)
	defer ctx.Shutdown()

	for i := 0; i < 10; i++ {
		require.NoError(t, ctx.Poll())
	}
	require.Equal(t, 0, ctx.pt.count())
}

func TestPollAcceptsInboundConnection(t *testing.T) {
	a := newFakeAdapter()
	ctx, err := Init(testConfig("alice"), a)
	require.NoError(t, err)
	defer ctx.Shutdown()

	require.NoError(t, ctx.StartListening(0))

	var connected PeerID
	ctx.SetCallbacks(Callbacks{
		OnPeerConnected: func(id PeerID) { connected = id },
	})

	a.pendingAccept = &fakeAccept{address: "192.0.2.5", port: 1234}
	require.NoError(t, ctx.Poll())

	require.NotZero(t, connected)
	peers := ctx.GetPeers()
	require.Len(t, peers, 1)
	require.Equal(t, PeerConnected, peers[0].State)
}

func TestShutdownIsSafeOnNilContext(t *testing.T) {
	var ctx *Context
	ctx.Shutdown() // must not panic
}

func TestConfigGetterReturnsResolvedDefaults(t *testing.T) {
	a := newFakeAdapter()
	ctx, err := Init(testConfig("alice"), a)
	require.NoError(t, err)
	defer ctx.Shutdown()

	cfg := ctx.Config()
	require.Equal(t, DefaultDiscoveryPort, int(cfg.DiscoveryPort))
	require.Equal(t, DefaultMaxMessageSize, cfg.MaxMessageSize)
}

func TestGetPeersVersionChangesOnDiscovery(t *testing.T) {
	a := newFakeAdapter()
	ctx, err := Init(testConfig("alice"), a)
	require.NoError(t, err)
	defer ctx.Shutdown()

	v0 := ctx.GetPeersVersion()
	require.NoError(t, ctx.StartListening(0))
	a.pendingAccept = &fakeAccept{address: "192.0.2.9", port: 555}
	require.NoError(t, ctx.Poll())
	require.NotEqual(t, v0, ctx.GetPeersVersion())
}
