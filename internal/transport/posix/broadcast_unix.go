//go:build !windows

package posix

import (
	"net"

	"golang.org/x/sys/unix"
)

// enableBroadcast sets SO_BROADCAST so UDPSend can target the
// all-ones broadcast address (used for discovery ANNOUNCE/QUERY).
// Best-effort: failure just means broadcast sends will later fail,
// which is surfaced through the normal UDPSend error path.
func enableBroadcast(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
}
