package bridgesim

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/milight-protocol/milight-go/pkg/log"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

// DefaultHardwareAddr is the MAC the simulator advertises when none is
// configured.
var DefaultHardwareAddr = net.HardwareAddr{0xF0, 0xFE, 0x6B, 0x00, 0x11, 0x22}

// Default session identifiers handed out by the handshake.
const (
	DefaultSessionID1 byte = 0x7B
	DefaultSessionID2 byte = 0xCD
)

// Faults declares deviations from the happy path. Drop counters burn
// down as matching frames arrive; boolean faults apply to every reply.
type Faults struct {
	// DropDiscoveries ignores the first N discovery probes.
	DropDiscoveries int `yaml:"drop_discoveries,omitempty"`

	// DropHandshakes ignores the first N session-start frames.
	DropHandshakes int `yaml:"drop_handshakes,omitempty"`

	// DropCommands swallows the first N verified command frames
	// without acknowledging. The frames are still recorded.
	DropCommands int `yaml:"drop_commands,omitempty"`

	// ShortHandshake truncates session replies to half their length.
	ShortHandshake bool `yaml:"short_handshake,omitempty"`

	// CorruptHandshakeHeader flips a header byte in session replies.
	// The session identifiers stay readable.
	CorruptHandshakeHeader bool `yaml:"corrupt_handshake_header,omitempty"`

	// WrongAdvertisedPort embeds listen port+1 in discovery replies.
	WrongAdvertisedPort bool `yaml:"wrong_advertised_port,omitempty"`

	// WrongAckSequence acknowledges with sequence+1.
	WrongAckSequence bool `yaml:"wrong_ack_sequence,omitempty"`

	// ShortAck truncates acknowledgments to half their length.
	ShortAck bool `yaml:"short_ack,omitempty"`
}

// Config configures a Simulator.
type Config struct {
	// Addr is the UDP address to listen on. Empty selects
	// "127.0.0.1:0", an ephemeral loopback port.
	Addr string

	// HardwareAddr is the MAC advertised in discovery and session
	// replies. Nil selects DefaultHardwareAddr.
	HardwareAddr net.HardwareAddr

	// SessionID1 and SessionID2 are the identifiers the handshake
	// hands out. Both zero selects the defaults.
	SessionID1 byte
	SessionID2 byte

	// Faults declares protocol deviations. The zero value plays
	// everything straight.
	Faults Faults

	// Logger receives frame and warning events (optional).
	Logger log.Logger
}

// Command records one verified command frame.
type Command struct {
	// Frame holds the decoded command fields.
	Frame wire.CommandFrame

	// Acked reports whether the simulator acknowledged the frame.
	Acked bool

	// From is the client address the frame arrived from.
	From *net.UDPAddr
}

// Simulator is an in-process iBox2 bridge bound to a real UDP socket.
type Simulator struct {
	config Config
	mac    net.HardwareAddr
	id1    byte
	id2    byte
	logger log.Logger
	connID string

	conn    *net.UDPConn
	running atomic.Bool
	wg      sync.WaitGroup

	mu       sync.Mutex
	faults   Faults
	commands []Command
	answered struct {
		discoveries int
		handshakes  int
	}
	rejected int
}

// New creates a Simulator. Start binds the socket.
func New(config Config) *Simulator {
	mac := config.HardwareAddr
	if mac == nil {
		mac = DefaultHardwareAddr
	}
	id1, id2 := config.SessionID1, config.SessionID2
	if id1 == 0 && id2 == 0 {
		id1, id2 = DefaultSessionID1, DefaultSessionID2
	}
	return &Simulator{
		config: config,
		mac:    mac,
		id1:    id1,
		id2:    id2,
		logger: log.OrNoop(config.Logger),
		connID: uuid.New().String(),
		faults: config.Faults,
	}
}

// Start binds the UDP socket and begins serving datagrams.
func (s *Simulator) Start() error {
	if s.running.Load() {
		return fmt.Errorf("simulator already running")
	}
	addr := s.config.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("resolving listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("binding simulator socket: %w", err)
	}
	s.conn = conn
	s.running.Store(true)
	s.wg.Add(1)
	go s.serve()
	return nil
}

// Stop closes the socket and waits for the serve loop to exit. Stop is
// idempotent.
func (s *Simulator) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

// Addr returns the bound address ("127.0.0.1:PORT") once started.
func (s *Simulator) Addr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.LocalAddr().String()
}

// Port returns the bound UDP port once started.
func (s *Simulator) Port() uint16 {
	if s.conn == nil {
		return 0
	}
	return uint16(s.conn.LocalAddr().(*net.UDPAddr).Port)
}

// HardwareAddr returns the MAC the simulator advertises.
func (s *Simulator) HardwareAddr() net.HardwareAddr {
	return s.mac
}

// SessionIDs returns the identifiers the handshake hands out.
func (s *Simulator) SessionIDs() (byte, byte) {
	return s.id1, s.id2
}

// SetFaults replaces the active fault set.
func (s *Simulator) SetFaults(faults Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = faults
}

// Commands returns a snapshot of every verified command frame received,
// in arrival order. Retries of the same frame appear once per arrival.
func (s *Simulator) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// ClearCommands drops the recorded command history.
func (s *Simulator) ClearCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = s.commands[:0]
}

// Discoveries returns the number of discovery probes answered.
func (s *Simulator) Discoveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered.discoveries
}

// Handshakes returns the number of session starts answered.
func (s *Simulator) Handshakes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered.handshakes
}

// Rejected returns the number of command frames refused for bad
// framing, bad checksum, or wrong session identifiers.
func (s *Simulator) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

func (s *Simulator) serve() {
	defer s.wg.Done()
	buf := make([]byte, 256)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.logFrame(log.DirectionIn, data, raddr)
		s.handle(data, raddr)
	}
}

func (s *Simulator) handle(data []byte, raddr *net.UDPAddr) {
	switch {
	case wire.IsDiscoveryRequest(data):
		s.handleDiscovery(raddr)
	case wire.IsSessionStart(data):
		s.handleSessionStart(raddr)
	default:
		s.handleCommand(data, raddr)
	}
}

func (s *Simulator) handleDiscovery(raddr *net.UDPAddr) {
	s.mu.Lock()
	if s.faults.DropDiscoveries > 0 {
		s.faults.DropDiscoveries--
		s.mu.Unlock()
		s.logWarning(log.LayerDiscovery, "fault: discovery probe dropped", raddr)
		return
	}
	s.answered.discoveries++
	wrongPort := s.faults.WrongAdvertisedPort
	s.mu.Unlock()

	port := s.Port()
	if wrongPort {
		port++
	}
	reply, err := wire.EncodeDiscoveryResponse(s.mac, port)
	if err != nil {
		return
	}
	s.send(reply, raddr)
}

func (s *Simulator) handleSessionStart(raddr *net.UDPAddr) {
	s.mu.Lock()
	if s.faults.DropHandshakes > 0 {
		s.faults.DropHandshakes--
		s.mu.Unlock()
		s.logWarning(log.LayerSession, "fault: session start dropped", raddr)
		return
	}
	s.answered.handshakes++
	short := s.faults.ShortHandshake
	corrupt := s.faults.CorruptHandshakeHeader
	s.mu.Unlock()

	reply, err := wire.EncodeSessionStartResponse(s.mac, s.id1, s.id2)
	if err != nil {
		return
	}
	if corrupt {
		reply[1] = 0xFF
	}
	if short {
		reply = reply[:len(reply)/2]
	}
	s.send(reply, raddr)
}

func (s *Simulator) handleCommand(data []byte, raddr *net.UDPAddr) {
	frame, err := wire.DecodeCommandFrame(data)
	if err != nil {
		s.reject(fmt.Sprintf("refusing frame: %v", err), raddr)
		return
	}
	if frame.SessionID1 != s.id1 || frame.SessionID2 != s.id2 {
		s.reject(fmt.Sprintf("refusing frame: unknown session 0x%02X 0x%02X",
			frame.SessionID1, frame.SessionID2), raddr)
		return
	}

	s.mu.Lock()
	acked := true
	if s.faults.DropCommands > 0 {
		s.faults.DropCommands--
		acked = false
	}
	wrongSeq := s.faults.WrongAckSequence
	shortAck := s.faults.ShortAck
	s.commands = append(s.commands, Command{Frame: frame, Acked: acked, From: raddr})
	s.mu.Unlock()

	if !acked {
		s.logWarning(log.LayerCommand, fmt.Sprintf("fault: command seq %d dropped", frame.Seq), raddr)
		return
	}

	seq := frame.Seq
	if wrongSeq {
		seq++
	}
	ack := wire.EncodeCommandAck(seq)
	if shortAck {
		ack = ack[:len(ack)/2]
	}
	s.send(ack, raddr)
}

func (s *Simulator) reject(message string, raddr *net.UDPAddr) {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
	s.logWarning(log.LayerCommand, message, raddr)
}

func (s *Simulator) send(data []byte, raddr *net.UDPAddr) {
	if _, err := s.conn.WriteToUDP(data, raddr); err != nil {
		return
	}
	s.logFrame(log.DirectionOut, data, raddr)
}

func (s *Simulator) logFrame(direction log.Direction, data []byte, raddr *net.UDPAddr) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryFrame,
		RemoteAddr:   raddr.String(),
		BridgeID:     s.mac.String(),
		Frame: &log.FrameEvent{
			Size: len(data),
			Data: append([]byte(nil), data...),
		},
	})
}

func (s *Simulator) logWarning(layer log.Layer, message string, raddr *net.UDPAddr) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Direction:    log.DirectionIn,
		Layer:        layer,
		Category:     log.CategoryWarning,
		RemoteAddr:   raddr.String(),
		BridgeID:     s.mac.String(),
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: message,
		},
	})
}
