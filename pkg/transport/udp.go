package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/milight-protocol/milight-go/pkg/log"
)

const (
	// DefaultSendPacing is the mandatory delay after every outbound
	// frame. Bridges silently discard datagrams that arrive faster.
	DefaultSendPacing = 75 * time.Millisecond

	// MaxLogFrameDataSize is the maximum number of frame bytes copied
	// into a log event. Protocol frames are well below this.
	MaxLogFrameDataSize = 256
)

var (
	// ErrReceiveTimeout indicates that no datagram arrived within the
	// receive timeout.
	ErrReceiveTimeout = errors.New("receive timeout")

	// ErrClosed indicates an operation on a closed endpoint.
	ErrClosed = errors.New("endpoint closed")
)

// Config configures a UDP endpoint.
type Config struct {
	// LocalAddr is the local address to bind, e.g. "0.0.0.0:0".
	// Empty binds all IPv4 interfaces on an ephemeral port.
	LocalAddr string

	// SendPacing is the delay applied after every outbound datagram.
	// Zero selects DefaultSendPacing; a negative value disables
	// pacing entirely.
	SendPacing time.Duration

	// ConnectionID tags log events emitted by this endpoint.
	ConnectionID string

	// Logger receives transport frame events. Nil disables logging.
	Logger log.Logger

	// sleep substitutes the pacing delay in tests.
	sleep func(time.Duration)
}

// UDPConn is a Conn over an IPv4 UDP socket.
type UDPConn struct {
	conn   *net.UDPConn
	pacing time.Duration
	connID string
	logger log.Logger
	sleep  func(time.Duration)

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeCh   chan struct{}
}

var _ Conn = (*UDPConn)(nil)

// Open binds a UDP endpoint according to config.
func Open(config Config) (*UDPConn, error) {
	laddr := &net.UDPAddr{}
	if config.LocalAddr != "" {
		addr, err := net.ResolveUDPAddr("udp4", config.LocalAddr)
		if err != nil {
			return nil, fmt.Errorf("resolving local address %s: %w", config.LocalAddr, err)
		}
		laddr = addr
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("binding udp socket: %w", err)
	}

	pacing := config.SendPacing
	if pacing == 0 {
		pacing = DefaultSendPacing
	}

	sleep := config.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &UDPConn{
		conn:    conn,
		pacing:  pacing,
		connID:  config.ConnectionID,
		logger:  config.Logger,
		sleep:   sleep,
		closeCh: make(chan struct{}),
	}, nil
}

// SendTo transmits data as a single datagram to addr:port and then
// applies the inter-frame pacing delay.
func (c *UDPConn) SendTo(data []byte, addr string, port uint16) error {
	ip := net.ParseIP(addr)
	if ip == nil {
		resolved, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(addr, portString(port)))
		if err != nil {
			return fmt.Errorf("resolving %s: %w", addr, err)
		}
		return c.sendTo(data, resolved)
	}

	return c.sendTo(data, &net.UDPAddr{IP: ip, Port: int(port)})
}

func (c *UDPConn) sendTo(data []byte, dst *net.UDPAddr) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}

	if _, err := c.conn.WriteToUDP(data, dst); err != nil {
		return fmt.Errorf("sending to %s: %w", dst, err)
	}

	c.logFrame(data, log.DirectionOut, dst.String())

	if c.pacing > 0 {
		c.sleep(c.pacing)
	}

	return nil
}

// Receive blocks until a datagram arrives or the timeout elapses.
// The returned slice is freshly allocated and owned by the caller.
func (c *UDPConn) Receive(maxLen int, timeout time.Duration) ([]byte, Source, error) {
	select {
	case <-c.closeCh:
		return nil, Source{}, ErrClosed
	default:
	}

	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, Source{}, fmt.Errorf("setting read deadline: %w", err)
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, Source{}, fmt.Errorf("clearing read deadline: %w", err)
		}
	}

	buf := make([]byte, maxLen)
	n, remote, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, Source{}, ErrReceiveTimeout
		}
		select {
		case <-c.closeCh:
			return nil, Source{}, ErrClosed
		default:
		}
		return nil, Source{}, fmt.Errorf("receiving: %w", err)
	}

	data := buf[:n]
	source := Source{Addr: remote.IP.String(), Port: uint16(remote.Port)}
	c.logFrame(data, log.DirectionIn, source.String())

	return data, source, nil
}

// LocalPort returns the UDP port the endpoint is bound to.
func (c *UDPConn) LocalPort() uint16 {
	addr, ok := c.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0
	}
	return uint16(addr.Port)
}

// Close releases the socket and unblocks a pending Receive.
func (c *UDPConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *UDPConn) logFrame(data []byte, direction log.Direction, remote string) {
	if c.logger == nil {
		return
	}

	size := len(data)
	truncated := false
	if size > MaxLogFrameDataSize {
		data = data[:MaxLogFrameDataSize]
		truncated = true
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)

	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryFrame,
		RemoteAddr:   remote,
		Frame: &log.FrameEvent{
			Size:      size,
			Data:      frameData,
			Truncated: truncated,
		},
	})
}

func portString(port uint16) string {
	return strconv.Itoa(int(port))
}
