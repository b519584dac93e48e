package transport

import (
	"net"
	"time"
)

// Source identifies the remote endpoint a datagram arrived from.
type Source struct {
	// Addr is the remote IPv4 address in dotted form.
	Addr string

	// Port is the remote UDP source port.
	Port uint16
}

// String returns the source as "addr:port".
func (s Source) String() string {
	return net.JoinHostPort(s.Addr, portString(s.Port))
}

// Conn is a connectionless datagram endpoint as the bridge protocol
// needs it. Implementations must be safe for concurrent use.
type Conn interface {
	// SendTo transmits one datagram to addr:port. The limited
	// broadcast address 255.255.255.255 is a valid destination.
	SendTo(data []byte, addr string, port uint16) error

	// Receive blocks until one datagram of at most maxLen bytes
	// arrives or the timeout elapses. A lapsed timeout is reported as
	// ErrReceiveTimeout; zero or negative timeouts block indefinitely.
	Receive(maxLen int, timeout time.Duration) ([]byte, Source, error)

	// LocalPort returns the UDP port the endpoint is bound to.
	LocalPort() uint16

	// Close releases the socket and unblocks a pending Receive.
	// It is safe to call multiple times.
	Close() error
}
