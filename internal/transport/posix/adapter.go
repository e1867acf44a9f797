// Package posix implements peertalk.TransportAdapter over the stdlib
// net package: TCP for connection streams, UDP for discovery and raw
// datagrams. It is a reference adapter — a real deployment is free to
// swap in something link-layer-specific, which is the whole point of
// the adapter seam (spec §4.8).
package posix

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/peertalk/peertalk/pkg/peertalk"
)

// udpPacket is one datagram queued by a background read pump for
// UDPRecv to pop (spec §4.8: UDPRecv is non-blocking).
type udpPacket struct {
	from string
	port uint16
	data []byte
}

// streamSlot is the live state behind one TransportAdapter slot index.
type streamSlot struct {
	mu      sync.Mutex
	conn    net.Conn
	recvBuf []byte
	closed  bool
}

type acceptedConn struct {
	conn net.Conn
	addr string
	port uint16
}

// Adapter is a peertalk.TransportAdapter backed by OS sockets.
type Adapter struct {
	ctx *peertalk.Context

	discoveryConn *net.UDPConn
	dataConn      *net.UDPConn

	udpMu    sync.Mutex
	udpQueue []udpPacket

	tcpListener  net.Listener
	listenerSlot int
	acceptMu     sync.Mutex
	acceptQueue  []acceptedConn

	streamsMu sync.Mutex
	streams   map[int]*streamSlot

	wg      sync.WaitGroup
	closing chan struct{}
}

// New returns an unstarted adapter; Init binds the sockets.
func New() *Adapter {
	return &Adapter{streams: make(map[int]*streamSlot)}
}

func (a *Adapter) Init(ctx *peertalk.Context) error {
	a.ctx = ctx
	a.closing = make(chan struct{})
	cfg := ctx.Config()

	discConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(cfg.DiscoveryPort)})
	if err != nil {
		return fmt.Errorf("posix: listen discovery udp: %w", err)
	}
	enableBroadcast(discConn)
	a.discoveryConn = discConn

	dataConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(cfg.UDPPort)})
	if err != nil {
		discConn.Close()
		return fmt.Errorf("posix: listen data udp: %w", err)
	}
	enableBroadcast(dataConn)
	a.dataConn = dataConn

	a.wg.Add(2)
	go a.pumpUDP(a.discoveryConn)
	go a.pumpUDP(a.dataConn)
	return nil
}

func (a *Adapter) Shutdown(ctx *peertalk.Context) {
	close(a.closing)
	if a.discoveryConn != nil {
		a.discoveryConn.Close()
	}
	if a.dataConn != nil {
		a.dataConn.Close()
	}
	if a.tcpListener != nil {
		a.tcpListener.Close()
	}
	a.streamsMu.Lock()
	for _, s := range a.streams {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	}
	a.streamsMu.Unlock()
	a.wg.Wait()
}

// PollPlatform is a no-op here: the background pumps already keep the
// queues fed, so there is nothing left to do on the Poll thread beyond
// what StreamRecv/UDPRecv/StreamAccept already surface.
func (a *Adapter) PollPlatform(ctx *peertalk.Context) {}

func (a *Adapter) GetTicks() int64 { return time.Now().UnixMilli() }

func (a *Adapter) pumpUDP(conn *net.UDPConn) {
	defer a.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-a.closing:
				return
			default:
				continue
			}
		}
		data := append([]byte(nil), buf[:n]...)
		a.udpMu.Lock()
		a.udpQueue = append(a.udpQueue, udpPacket{from: addr.IP.String(), port: uint16(addr.Port), data: data})
		a.udpMu.Unlock()
	}
}

func (a *Adapter) UDPSend(address string, port uint16, data []byte) error {
	var dst *net.UDPAddr
	if address == "" {
		dst = &net.UDPAddr{IP: net.IPv4bcast, Port: int(port)}
	} else {
		dst = &net.UDPAddr{IP: net.ParseIP(address), Port: int(port)}
	}
	_, err := a.dataConn.WriteToUDP(data, dst)
	return err
}

func (a *Adapter) UDPRecv() (from string, fromPort uint16, data []byte, ok bool) {
	a.udpMu.Lock()
	defer a.udpMu.Unlock()
	if len(a.udpQueue) == 0 {
		return "", 0, nil, false
	}
	p := a.udpQueue[0]
	a.udpQueue = a.udpQueue[1:]
	return p.from, p.port, p.data, true
}

func (a *Adapter) slot(i int) *streamSlot {
	a.streamsMu.Lock()
	defer a.streamsMu.Unlock()
	s, ok := a.streams[i]
	if !ok {
		s = &streamSlot{}
		a.streams[i] = s
	}
	return s
}

// StreamCreate is a no-op for outbound slots (the real socket is
// opened by StreamConnect); for the listener slot it just ensures
// bookkeeping exists.
func (a *Adapter) StreamCreate(slot int) error {
	a.slot(slot)
	return nil
}

func (a *Adapter) StreamRelease(slot int) {
	a.streamsMu.Lock()
	delete(a.streams, slot)
	a.streamsMu.Unlock()
}

func (a *Adapter) StreamListen(slot int, port uint16) error {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	a.tcpListener = ln
	a.listenerSlot = slot
	a.wg.Add(1)
	go a.pumpAccept(ln)
	return nil
}

func (a *Adapter) pumpAccept(ln net.Listener) {
	defer a.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-a.closing:
				return
			default:
				continue
			}
		}
		host, portStr, _ := net.SplitHostPort(conn.RemoteAddr().String())
		var port uint16
		fmt.Sscanf(portStr, "%d", &port)
		a.acceptMu.Lock()
		a.acceptQueue = append(a.acceptQueue, acceptedConn{conn: conn, addr: host, port: port})
		a.acceptMu.Unlock()
		if a.ctx != nil {
			a.ctx.ReportStreamFlag(a.listenerSlot, peertalk.FlagDataArrived)
		}
	}
}

func (a *Adapter) StreamAccept(listenerSlot int, dest int) (address string, port uint16, ok bool) {
	a.acceptMu.Lock()
	defer a.acceptMu.Unlock()
	if len(a.acceptQueue) == 0 {
		return "", 0, false
	}
	next := a.acceptQueue[0]
	a.acceptQueue = a.acceptQueue[1:]

	s := a.slot(dest)
	s.mu.Lock()
	s.conn = next.conn
	s.closed = false
	s.mu.Unlock()
	a.wg.Add(1)
	go a.pumpStream(dest, s)
	return next.addr, next.port, true
}

func (a *Adapter) StreamConnect(slot int, address string, port uint16, timeout time.Duration) error {
	go func() {
		conn, err := net.DialTimeout("tcp4", fmt.Sprintf("%s:%d", address, port), timeout)
		if err != nil {
			if a.ctx != nil {
				a.ctx.ReportStreamError(slot, 1)
			}
			return
		}
		s := a.slot(slot)
		s.mu.Lock()
		s.conn = conn
		s.closed = false
		s.mu.Unlock()
		a.wg.Add(1)
		go a.pumpStream(slot, s)
		if a.ctx != nil {
			a.ctx.ReportStreamFlag(slot, peertalk.FlagConnectComplete)
		}
	}()
	return nil
}

func (a *Adapter) pumpStream(slot int, s *streamSlot) {
	defer a.wg.Done()
	buf := make([]byte, 4096)
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.recvBuf = append(s.recvBuf, buf[:n]...)
			s.mu.Unlock()
			if a.ctx != nil {
				a.ctx.ReportStreamFlag(slot, peertalk.FlagDataArrived)
			}
		}
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if a.ctx != nil && !closed {
				a.ctx.ReportStreamFlag(slot, peertalk.FlagRemoteClose)
			}
			return
		}
	}
}

func (a *Adapter) StreamSend(slot int, data []byte) error {
	s := a.slot(slot)
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("posix: slot %d has no live connection", slot)
	}
	_, err := conn.Write(data)
	return err
}

func (a *Adapter) StreamRecv(slot int, into []byte) (int, error) {
	s := a.slot(slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recvBuf) == 0 {
		return 0, nil
	}
	n := copy(into, s.recvBuf)
	s.recvBuf = s.recvBuf[n:]
	return n, nil
}

func (a *Adapter) StreamClose(slot int, timeout time.Duration) error {
	s := a.slot(slot)
	s.mu.Lock()
	conn := s.conn
	s.closed = true
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	go func() {
		conn.Close()
		if a.ctx != nil {
			a.ctx.ReportStreamFlag(slot, peertalk.FlagCloseComplete)
		}
	}()
	return nil
}

func (a *Adapter) StreamAbort(slot int) {
	s := a.slot(slot)
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.closed = true
	s.recvBuf = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
