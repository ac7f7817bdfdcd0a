//go:build !windows

package wire

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneBuffers widens the socket's kernel send/receive buffers, falling back
// silently to the OS default if the platform or sandbox denies the
// setsockopt call — the engine is still correct, just more exposed to
// kernel-level drops under burst.
func tuneBuffers(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, SocketBufferSize)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, SocketBufferSize)
	})
}
