package wire

import (
	"fmt"
	"net"
)

// SocketBufferSize is the kernel send/receive buffer size requested on the
// bound socket. A hybrid channel carrying bursts of retransmits plus
// freshest-wins traffic wants more headroom than the OS default.
const SocketBufferSize = 256 * 1024

// Bind opens and binds a UDP socket on localAddr, ready to exchange
// datagrams with exactly one peer via WriteToUDP/ReadFromUDP.
func Bind(localAddr string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("wire: resolve local addr %q: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("wire: bind %q: %w", localAddr, err)
	}
	tuneBuffers(conn)
	return conn, nil
}
