//go:build windows

package posix

import "net"

// enableBroadcast is a no-op on Windows: winsock UDP sockets accept
// broadcast sends without SO_BROADCAST in the common case, and the
// golang.org/x/sys/windows setsockopt surface for it is awkward enough
// that it isn't worth the divergence for a reference adapter.
func enableBroadcast(conn *net.UDPConn) {}
