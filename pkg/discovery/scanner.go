package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/milight-protocol/milight-go/pkg/log"
	"github.com/milight-protocol/milight-go/pkg/transport"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

// Config configures a Scanner.
type Config struct {
	// BroadcastAddr is the probe destination. Defaults to the limited
	// broadcast address; a directed broadcast or a single bridge
	// address narrows the scan.
	BroadcastAddr string

	// Port is the control port probed. Defaults to wire.DefaultPort.
	Port uint16

	// ReceiveTimeout bounds the wait for each further response; the
	// scan completes after one full timeout without news. Defaults to
	// DefaultReceiveTimeout.
	ReceiveTimeout time.Duration

	// Filter drops unwanted bridges from the result. Nil keeps every
	// bridge that answers.
	Filter FilterFunc

	// Logger receives scan events. Nil disables logging.
	Logger log.Logger

	// OpenConn creates the scan endpoint.
	// If nil, a UDP endpoint on an ephemeral port is used.
	// Set this in tests to inject scripted transports.
	OpenConn func(transport.Config) (transport.Conn, error)
}

// Scanner locates bridges by broadcasting a discovery probe and
// collecting responses until they dry up.
type Scanner struct {
	config Config
	logger log.Logger
}

// NewScanner creates a Scanner, applying defaults for zero-valued
// config fields.
func NewScanner(config Config) *Scanner {
	if config.BroadcastAddr == "" {
		config.BroadcastAddr = DefaultBroadcastAddr
	}
	if config.Port == 0 {
		config.Port = wire.DefaultPort
	}
	if config.ReceiveTimeout == 0 {
		config.ReceiveTimeout = DefaultReceiveTimeout
	}
	if config.OpenConn == nil {
		config.OpenConn = func(tc transport.Config) (transport.Conn, error) {
			return transport.Open(tc)
		}
	}

	return &Scanner{
		config: config,
		logger: log.OrNoop(config.Logger),
	}
}

// Scan broadcasts one discovery probe and collects every bridge that
// answers before the receive timeout lapses. Duplicate responses are
// collapsed; a response advertising a port other than the one it was
// sent from is skipped without ending the scan. On context
// cancellation the bridges found so far are returned together with
// the context error.
func (s *Scanner) Scan(ctx context.Context) ([]Bridge, error) {
	scanID := uuid.New().String()

	conn, err := s.config.OpenConn(transport.Config{
		ConnectionID: scanID,
		Logger:       s.config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening scan endpoint: %w", err)
	}
	defer conn.Close()

	s.logStateChange(scanID, "IDLE", "SCANNING", "")

	if err := conn.SendTo(wire.EncodeDiscoveryRequest(), s.config.BroadcastAddr, s.config.Port); err != nil {
		s.logStateChange(scanID, "SCANNING", "FAILED", err.Error())
		return nil, fmt.Errorf("sending discovery request: %w", err)
	}

	var bridges []Bridge
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			s.logStateChange(scanID, "SCANNING", "CANCELLED", err.Error())
			return bridges, err
		}

		data, source, err := conn.Receive(receiveBufferSize, s.config.ReceiveTimeout)
		if errors.Is(err, transport.ErrReceiveTimeout) {
			break
		}
		if err != nil {
			s.logStateChange(scanID, "SCANNING", "FAILED", err.Error())
			return bridges, fmt.Errorf("receiving discovery response: %w", err)
		}

		mac, err := wire.DecodeDiscoveryResponse(data, source.Port)
		if err != nil {
			s.logWarning(scanID, source.String(), err)
			continue
		}

		bridge := Bridge{Addr: source.Addr, Port: source.Port, HardwareAddr: mac}
		key := bridge.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if s.config.Filter != nil && !s.config.Filter(bridge) {
			continue
		}

		bridges = append(bridges, bridge)
	}

	s.logStateChange(scanID, "SCANNING", "COMPLETE", fmt.Sprintf("%d bridge(s)", len(bridges)))

	return bridges, nil
}

func (s *Scanner) logStateChange(scanID, oldState, newState, reason string) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: scanID,
		Layer:        log.LayerDiscovery,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityScan,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (s *Scanner) logWarning(scanID, remoteAddr string, err error) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: scanID,
		Layer:        log.LayerDiscovery,
		Category:     log.CategoryWarning,
		RemoteAddr:   remoteAddr,
		Error: &log.ErrorEventData{
			Layer:   log.LayerDiscovery,
			Message: err.Error(),
			Context: "discovery response dropped",
		},
	})
}
