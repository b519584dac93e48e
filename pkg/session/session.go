package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/milight-protocol/milight-go/pkg/log"
	"github.com/milight-protocol/milight-go/pkg/transport"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

// Session defaults.
const (
	// DefaultReceiveTimeout bounds each wait for a handshake reply or
	// a command acknowledgment.
	DefaultReceiveTimeout = 2 * time.Second

	// DefaultRetries is the attempt budget for the handshake and for
	// each command send.
	DefaultRetries = 5

	// receiveBufferSize fits the largest bridge reply with headroom.
	receiveBufferSize = 128
)

// Session errors.
var (
	// ErrNotConnected indicates a command on a disconnected session.
	// Nothing was sent.
	ErrNotConnected = errors.New("session not connected")

	// ErrConnectTimeout indicates the handshake attempt budget was
	// exhausted without a usable reply.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrCommandTimeout indicates the command attempt budget was
	// exhausted without a matching acknowledgment. The bridge may or
	// may not have applied the command.
	ErrCommandTimeout = errors.New("command timeout")
)

// State represents the session state.
type State uint8

const (
	// StateDisconnected - no transport, session ids invalid.
	StateDisconnected State = iota

	// StateConnected - handshake complete, commands may be sent.
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Session.
type Config struct {
	// Addr is the bridge address. Defaults to wire.DefaultBridgeAddr.
	Addr string

	// Port is the bridge control port. Defaults to wire.DefaultPort.
	Port uint16

	// ReceiveTimeout bounds each wait for a reply. Defaults to
	// DefaultReceiveTimeout.
	ReceiveTimeout time.Duration

	// Retries is the attempt budget for the handshake and for each
	// command. Defaults to DefaultRetries.
	Retries int

	// StrictHandshake rejects session replies whose header deviates
	// from the expected bytes. The default accepts such replies after
	// logging a warning; bridge firmware in the field varies here.
	StrictHandshake bool

	// Logger receives session events. Nil disables logging.
	Logger log.Logger

	// OpenConn creates the session endpoint.
	// If nil, a UDP endpoint on an ephemeral port is used.
	// Set this in tests to inject scripted transports.
	OpenConn func(transport.Config) (transport.Conn, error)
}

// Session is a control session with one bridge.
type Session struct {
	config Config
	logger log.Logger
	connID string

	mu    sync.Mutex
	conn  transport.Conn
	state State
	id1   byte
	id2   byte
	seq   byte
}

// New creates a disconnected Session for the bridge at config.Addr,
// applying defaults for zero-valued config fields.
func New(config Config) *Session {
	if config.Addr == "" {
		config.Addr = wire.DefaultBridgeAddr
	}
	if config.Port == 0 {
		config.Port = wire.DefaultPort
	}
	if config.ReceiveTimeout == 0 {
		config.ReceiveTimeout = DefaultReceiveTimeout
	}
	if config.Retries == 0 {
		config.Retries = DefaultRetries
	}
	if config.OpenConn == nil {
		config.OpenConn = func(tc transport.Config) (transport.Conn, error) {
			return transport.Open(tc)
		}
	}

	return &Session{
		config: config,
		logger: log.OrNoop(config.Logger),
		connID: uuid.New().String(),
		state:  StateDisconnected,
	}
}

// Connect performs the session handshake. A connected session is torn
// down first, so Connect doubles as reconnect. On success the session
// holds fresh session ids and the command sequence restarts at zero.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected {
		s.closeLocked("reconnect")
	}

	conn, err := s.config.OpenConn(transport.Config{
		ConnectionID: s.connID,
		Logger:       s.config.Logger,
	})
	if err != nil {
		return fmt.Errorf("opening session endpoint: %w", err)
	}

	request := wire.EncodeSessionStart()
	var lastErr error

	for attempt := 1; attempt <= s.config.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			conn.Close()
			return err
		}
		if attempt > 1 {
			s.logRetry(attempt, nil, lastErr)
		}

		if err := conn.SendTo(request, s.config.Addr, s.config.Port); err != nil {
			conn.Close()
			return fmt.Errorf("sending session start: %w", err)
		}

		data, _, err := conn.Receive(receiveBufferSize, s.config.ReceiveTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrReceiveTimeout) {
				lastErr = err
				s.logTimeout("session start", attempt)
				continue
			}
			conn.Close()
			return fmt.Errorf("receiving session reply: %w", err)
		}

		reply, err := wire.DecodeSessionStartResponse(data)
		if err != nil {
			lastErr = err
			s.logWarning(err, "session reply dropped")
			continue
		}
		if !reply.HeaderOK {
			s.logWarning(wire.ErrFrameHeader, "session reply header mismatch")
			if s.config.StrictHandshake {
				lastErr = wire.ErrFrameHeader
				continue
			}
		}

		s.conn = conn
		s.id1 = reply.SessionID1
		s.id2 = reply.SessionID2
		s.seq = 0
		s.setStateLocked(StateConnected, "handshake complete")
		return nil
	}

	conn.Close()
	return fmt.Errorf("%w: %d attempts: %w", ErrConnectTimeout, s.config.Retries, lastErr)
}

// Disconnect tears the session down and releases the transport.
// Disconnecting a disconnected session is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return nil
	}
	s.closeLocked("disconnect requested")
	return nil
}

// Send wraps an 11-byte command into a sequenced frame, transmits it
// and waits for the bridge acknowledgment. The sequence number is
// claimed exactly once per call; every retry resends the identical
// frame. Exhausting the attempt budget returns ErrCommandTimeout, in
// which case the bridge may or may not have applied the command.
func (s *Session) Send(ctx context.Context, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return ErrNotConnected
	}

	frame, err := wire.EncodeCommandFrame(s.id1, s.id2, s.seq, body)
	if err != nil {
		return err
	}
	seq := s.seq
	s.seq++

	var lastErr error
	for attempt := 1; attempt <= s.config.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			s.logRetry(attempt, &seq, lastErr)
		}

		if err := s.conn.SendTo(frame, s.config.Addr, s.config.Port); err != nil {
			return fmt.Errorf("sending command: %w", err)
		}

		data, _, err := s.conn.Receive(receiveBufferSize, s.config.ReceiveTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrReceiveTimeout) {
				lastErr = err
				s.logTimeout("command ack", attempt)
				continue
			}
			return fmt.Errorf("receiving command ack: %w", err)
		}

		if err := wire.DecodeCommandAck(data, seq); err != nil {
			lastErr = err
			s.logWarning(err, "command ack dropped")
			continue
		}

		return nil
	}

	return fmt.Errorf("%w: sequence %d after %d attempts: %w", ErrCommandTimeout, seq, s.config.Retries, lastErr)
}

// IsConnected reports whether the handshake completed and the session
// ids are valid.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// SessionIDs returns the two session id bytes learned during the
// handshake. Only meaningful while connected.
func (s *Session) SessionIDs() (byte, byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id1, s.id2
}

// Sequence returns the sequence number the next Send will claim.
func (s *Session) Sequence() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// ConnectionID returns the UUID correlating this session's log events.
func (s *Session) ConnectionID() string {
	return s.connID
}

// RemoteAddr returns the bridge endpoint as "addr:port".
func (s *Session) RemoteAddr() string {
	return net.JoinHostPort(s.config.Addr, strconv.Itoa(int(s.config.Port)))
}

func (s *Session) closeLocked(reason string) {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.id1, s.id2 = 0, 0
	if s.state != StateDisconnected {
		s.setStateLocked(StateDisconnected, reason)
	}
}

func (s *Session) setStateLocked(state State, reason string) {
	old := s.state
	s.state = state
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		RemoteAddr:   s.RemoteAddr(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: state.String(),
			Reason:   reason,
		},
	})
}

func (s *Session) logRetry(attempt int, seq *byte, lastErr error) {
	reason := ""
	if lastErr != nil {
		reason = lastErr.Error()
	}
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryRetry,
		RemoteAddr:   s.RemoteAddr(),
		Retry: &log.RetryEvent{
			Attempt:  attempt,
			Max:      s.config.Retries,
			Sequence: seq,
			Reason:   reason,
		},
	})
}

func (s *Session) logTimeout(what string, attempt int) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryTimeout,
		RemoteAddr:   s.RemoteAddr(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: "receive timeout",
			Context: fmt.Sprintf("%s, attempt %d/%d", what, attempt, s.config.Retries),
		},
	})
}

func (s *Session) logWarning(err error, context string) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryWarning,
		RemoteAddr:   s.RemoteAddr(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: err.Error(),
			Context: context,
		},
	})
}
