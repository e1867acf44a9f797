package posix

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBoundAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := New()
	a.closing = make(chan struct{})
	var err error
	a.discoveryConn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	a.dataConn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	a.wg.Add(2)
	go a.pumpUDP(a.discoveryConn)
	go a.pumpUDP(a.dataConn)
	t.Cleanup(func() {
		// Shutdown also closes stream connections, which the stream
		// pumps need before wg.Wait can return.
		a.Shutdown(nil)
	})
	return a
}

func TestUDPSendRecvLoopback(t *testing.T) {
	sender := newBoundAdapter(t)
	receiver := newBoundAdapter(t)

	port := uint16(receiver.dataConn.LocalAddr().(*net.UDPAddr).Port)
	require.NoError(t, sender.UDPSend("127.0.0.1", port, []byte("hello")))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		from, _, data, ok := receiver.UDPRecv()
		if ok {
			require.Equal(t, "hello", string(data))
			require.Equal(t, "127.0.0.1", from)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for datagram")
}

func TestStreamRoundTrip(t *testing.T) {
	server := newBoundAdapter(t)
	client := newBoundAdapter(t)

	require.NoError(t, server.StreamListen(0, 0))
	port := server.tcpListener.Addr().(*net.TCPAddr).Port

	require.NoError(t, client.StreamConnect(0, "127.0.0.1", uint16(port), 2*time.Second))

	var serverSlot int = 1
	deadline := time.Now().Add(2 * time.Second)
	accepted := false
	for time.Now().Before(deadline) {
		if _, _, ok := server.StreamAccept(0, serverSlot); ok {
			accepted = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, accepted, "server never accepted the inbound connection")

	// Wait for the client's connect to complete before sending.
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := client.StreamSend(0, []byte("ping")); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	deadline = time.Now().Add(2 * time.Second)
	buf := make([]byte, 64)
	for time.Now().Before(deadline) {
		n, err := server.StreamRecv(serverSlot, buf)
		require.NoError(t, err)
		if n > 0 {
			require.Equal(t, "ping", string(buf[:n]))
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for stream data")
}
