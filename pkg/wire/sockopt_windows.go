//go:build windows

package wire

import "net"

// tuneBuffers is a no-op on Windows; golang.org/x/sys/unix isn't available
// there and the OS default buffer sizing is left in place.
func tuneBuffers(conn *net.UDPConn) {}
