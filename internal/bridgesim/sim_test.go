package bridgesim

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/milight-protocol/milight-go/pkg/transport"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

const (
	replyWait   = 2 * time.Second
	silenceWait = 200 * time.Millisecond
)

func startTestSim(t *testing.T, config Config) *Simulator {
	t.Helper()
	sim := New(config)
	if err := sim.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if err := sim.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return sim
}

func openTestClient(t *testing.T) transport.Conn {
	t.Helper()
	conn, err := transport.Open(transport.Config{
		LocalAddr:  "127.0.0.1:0",
		SendPacing: -1,
	})
	if err != nil {
		t.Fatalf("transport.Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testCommandBody() []byte {
	return wire.ZoneCommand{
		Op:       wire.OpControl,
		LampType: wire.LampRGBWW,
		Sub:      wire.SubPower,
		Data:     [4]byte{wire.PowerOn},
		Zone:     1,
	}.Bytes()
}

func TestSimulatorAnswersDiscovery(t *testing.T) {
	sim := startTestSim(t, Config{})
	conn := openTestClient(t)

	if err := conn.SendTo(wire.EncodeDiscoveryRequest(), "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	data, source, err := conn.Receive(128, replyWait)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	mac, err := wire.DecodeDiscoveryResponse(data, source.Port)
	if err != nil {
		t.Fatalf("DecodeDiscoveryResponse() error = %v", err)
	}
	if !bytes.Equal(mac, sim.HardwareAddr()) {
		t.Errorf("mac = %s, want %s", mac, sim.HardwareAddr())
	}
	if got := sim.Discoveries(); got != 1 {
		t.Errorf("Discoveries() = %d, want 1", got)
	}
}

func TestSimulatorCustomIdentity(t *testing.T) {
	mac := net.HardwareAddr{0xAA, 0xBB, 0xCC, 0x00, 0x01, 0x02}
	sim := startTestSim(t, Config{
		HardwareAddr: mac,
		SessionID1:   0x11,
		SessionID2:   0x22,
	})
	conn := openTestClient(t)

	if err := conn.SendTo(wire.EncodeSessionStart(), "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	data, _, err := conn.Receive(128, replyWait)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	reply, err := wire.DecodeSessionStartResponse(data)
	if err != nil {
		t.Fatalf("DecodeSessionStartResponse() error = %v", err)
	}
	if !reply.HeaderOK {
		t.Error("HeaderOK = false, want true")
	}
	if reply.SessionID1 != 0x11 || reply.SessionID2 != 0x22 {
		t.Errorf("session ids = 0x%02X 0x%02X, want 0x11 0x22", reply.SessionID1, reply.SessionID2)
	}
	if !bytes.Equal(reply.HardwareAddr, mac) {
		t.Errorf("mac = %s, want %s", reply.HardwareAddr, mac)
	}
}

func TestSimulatorDefaultSessionIDs(t *testing.T) {
	sim := startTestSim(t, Config{})
	id1, id2 := sim.SessionIDs()
	if id1 != DefaultSessionID1 || id2 != DefaultSessionID2 {
		t.Errorf("SessionIDs() = 0x%02X 0x%02X, want defaults", id1, id2)
	}
}

func TestSimulatorDropsDiscoveries(t *testing.T) {
	sim := startTestSim(t, Config{Faults: Faults{DropDiscoveries: 1}})
	conn := openTestClient(t)

	if err := conn.SendTo(wire.EncodeDiscoveryRequest(), "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if _, _, err := conn.Receive(128, silenceWait); !errors.Is(err, transport.ErrReceiveTimeout) {
		t.Fatalf("Receive() error = %v, want ErrReceiveTimeout for dropped probe", err)
	}

	if err := conn.SendTo(wire.EncodeDiscoveryRequest(), "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	data, source, err := conn.Receive(128, replyWait)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if _, err := wire.DecodeDiscoveryResponse(data, source.Port); err != nil {
		t.Errorf("DecodeDiscoveryResponse() error = %v", err)
	}
	if got := sim.Discoveries(); got != 1 {
		t.Errorf("Discoveries() = %d, want 1 (dropped probe not counted)", got)
	}
}

func TestSimulatorWrongAdvertisedPort(t *testing.T) {
	sim := startTestSim(t, Config{Faults: Faults{WrongAdvertisedPort: true}})
	conn := openTestClient(t)

	if err := conn.SendTo(wire.EncodeDiscoveryRequest(), "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	data, source, err := conn.Receive(128, replyWait)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	if _, err := wire.DecodeDiscoveryResponse(data, source.Port); !errors.Is(err, wire.ErrPortMismatch) {
		t.Errorf("DecodeDiscoveryResponse() error = %v, want ErrPortMismatch", err)
	}
}

func TestSimulatorHandshakeFaults(t *testing.T) {
	t.Run("short reply", func(t *testing.T) {
		sim := startTestSim(t, Config{Faults: Faults{ShortHandshake: true}})
		conn := openTestClient(t)

		if err := conn.SendTo(wire.EncodeSessionStart(), "127.0.0.1", sim.Port()); err != nil {
			t.Fatalf("SendTo() error = %v", err)
		}
		data, _, err := conn.Receive(128, replyWait)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if _, err := wire.DecodeSessionStartResponse(data); !errors.Is(err, wire.ErrFrameLength) {
			t.Errorf("DecodeSessionStartResponse() error = %v, want ErrFrameLength", err)
		}
	})

	t.Run("corrupt header", func(t *testing.T) {
		sim := startTestSim(t, Config{Faults: Faults{CorruptHandshakeHeader: true}})
		conn := openTestClient(t)

		if err := conn.SendTo(wire.EncodeSessionStart(), "127.0.0.1", sim.Port()); err != nil {
			t.Fatalf("SendTo() error = %v", err)
		}
		data, _, err := conn.Receive(128, replyWait)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		reply, err := wire.DecodeSessionStartResponse(data)
		if err != nil {
			t.Fatalf("DecodeSessionStartResponse() error = %v", err)
		}
		if reply.HeaderOK {
			t.Error("HeaderOK = true, want false for corrupted header")
		}
		if reply.SessionID1 != DefaultSessionID1 || reply.SessionID2 != DefaultSessionID2 {
			t.Errorf("session ids = 0x%02X 0x%02X, want defaults despite corrupt header",
				reply.SessionID1, reply.SessionID2)
		}
	})

	t.Run("dropped", func(t *testing.T) {
		sim := startTestSim(t, Config{Faults: Faults{DropHandshakes: 1}})
		conn := openTestClient(t)

		if err := conn.SendTo(wire.EncodeSessionStart(), "127.0.0.1", sim.Port()); err != nil {
			t.Fatalf("SendTo() error = %v", err)
		}
		if _, _, err := conn.Receive(128, silenceWait); !errors.Is(err, transport.ErrReceiveTimeout) {
			t.Fatalf("Receive() error = %v, want ErrReceiveTimeout", err)
		}

		if err := conn.SendTo(wire.EncodeSessionStart(), "127.0.0.1", sim.Port()); err != nil {
			t.Fatalf("SendTo() error = %v", err)
		}
		if _, _, err := conn.Receive(128, replyWait); err != nil {
			t.Fatalf("Receive() after drop error = %v", err)
		}
		if got := sim.Handshakes(); got != 1 {
			t.Errorf("Handshakes() = %d, want 1", got)
		}
	})
}

func TestSimulatorAcksCommand(t *testing.T) {
	sim := startTestSim(t, Config{})
	conn := openTestClient(t)

	id1, id2 := sim.SessionIDs()
	frame, err := wire.EncodeCommandFrame(id1, id2, 0x05, testCommandBody())
	if err != nil {
		t.Fatalf("EncodeCommandFrame() error = %v", err)
	}
	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	ack, _, err := conn.Receive(128, replyWait)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if err := wire.DecodeCommandAck(ack, 0x05); err != nil {
		t.Errorf("DecodeCommandAck() error = %v", err)
	}

	commands := sim.Commands()
	if len(commands) != 1 {
		t.Fatalf("Commands() len = %d, want 1", len(commands))
	}
	got := commands[0]
	if !got.Acked {
		t.Error("Acked = false, want true")
	}
	if got.Frame.Seq != 0x05 {
		t.Errorf("Seq = %d, want 5", got.Frame.Seq)
	}
	if !bytes.Equal(got.Frame.Body[:], testCommandBody()) {
		t.Errorf("Body = % X, want % X", got.Frame.Body, testCommandBody())
	}
}

func TestSimulatorRejectsBadChecksum(t *testing.T) {
	sim := startTestSim(t, Config{})
	conn := openTestClient(t)

	id1, id2 := sim.SessionIDs()
	frame, err := wire.EncodeCommandFrame(id1, id2, 0x00, testCommandBody())
	if err != nil {
		t.Fatalf("EncodeCommandFrame() error = %v", err)
	}
	frame[10] ^= 0xFF // corrupt the body without fixing the checksum

	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if _, _, err := conn.Receive(128, silenceWait); !errors.Is(err, transport.ErrReceiveTimeout) {
		t.Fatalf("Receive() error = %v, want silence for rejected frame", err)
	}
	if got := sim.Rejected(); got != 1 {
		t.Errorf("Rejected() = %d, want 1", got)
	}
	if got := len(sim.Commands()); got != 0 {
		t.Errorf("Commands() len = %d, want 0", got)
	}
}

func TestSimulatorRejectsUnknownSession(t *testing.T) {
	sim := startTestSim(t, Config{})
	conn := openTestClient(t)

	id1, id2 := sim.SessionIDs()
	frame, err := wire.EncodeCommandFrame(id1+1, id2, 0x00, testCommandBody())
	if err != nil {
		t.Fatalf("EncodeCommandFrame() error = %v", err)
	}
	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if _, _, err := conn.Receive(128, silenceWait); !errors.Is(err, transport.ErrReceiveTimeout) {
		t.Fatalf("Receive() error = %v, want silence for unknown session", err)
	}
	if got := sim.Rejected(); got != 1 {
		t.Errorf("Rejected() = %d, want 1", got)
	}
}

func TestSimulatorDropsCommands(t *testing.T) {
	sim := startTestSim(t, Config{Faults: Faults{DropCommands: 1}})
	conn := openTestClient(t)

	id1, id2 := sim.SessionIDs()
	frame, err := wire.EncodeCommandFrame(id1, id2, 0x03, testCommandBody())
	if err != nil {
		t.Fatalf("EncodeCommandFrame() error = %v", err)
	}

	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if _, _, err := conn.Receive(128, silenceWait); !errors.Is(err, transport.ErrReceiveTimeout) {
		t.Fatalf("Receive() error = %v, want silence for dropped command", err)
	}

	// Retry of the same frame goes through.
	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	ack, _, err := conn.Receive(128, replyWait)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if err := wire.DecodeCommandAck(ack, 0x03); err != nil {
		t.Errorf("DecodeCommandAck() error = %v", err)
	}

	commands := sim.Commands()
	if len(commands) != 2 {
		t.Fatalf("Commands() len = %d, want 2 (both arrivals recorded)", len(commands))
	}
	if commands[0].Acked {
		t.Error("first arrival Acked = true, want false")
	}
	if !commands[1].Acked {
		t.Error("second arrival Acked = false, want true")
	}
}

func TestSimulatorWrongAckSequence(t *testing.T) {
	sim := startTestSim(t, Config{Faults: Faults{WrongAckSequence: true}})
	conn := openTestClient(t)

	id1, id2 := sim.SessionIDs()
	frame, err := wire.EncodeCommandFrame(id1, id2, 0x09, testCommandBody())
	if err != nil {
		t.Fatalf("EncodeCommandFrame() error = %v", err)
	}
	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	ack, _, err := conn.Receive(128, replyWait)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if err := wire.DecodeCommandAck(ack, 0x09); !errors.Is(err, wire.ErrSequenceMismatch) {
		t.Errorf("DecodeCommandAck() error = %v, want ErrSequenceMismatch", err)
	}
}

func TestSimulatorShortAck(t *testing.T) {
	sim := startTestSim(t, Config{Faults: Faults{ShortAck: true}})
	conn := openTestClient(t)

	id1, id2 := sim.SessionIDs()
	frame, err := wire.EncodeCommandFrame(id1, id2, 0x01, testCommandBody())
	if err != nil {
		t.Fatalf("EncodeCommandFrame() error = %v", err)
	}
	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	ack, _, err := conn.Receive(128, replyWait)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if err := wire.DecodeCommandAck(ack, 0x01); !errors.Is(err, wire.ErrFrameLength) {
		t.Errorf("DecodeCommandAck() error = %v, want ErrFrameLength", err)
	}
}

func TestSimulatorSetFaultsAndClearCommands(t *testing.T) {
	sim := startTestSim(t, Config{})
	conn := openTestClient(t)

	id1, id2 := sim.SessionIDs()
	frame, err := wire.EncodeCommandFrame(id1, id2, 0x00, testCommandBody())
	if err != nil {
		t.Fatalf("EncodeCommandFrame() error = %v", err)
	}
	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if _, _, err := conn.Receive(128, replyWait); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	sim.SetFaults(Faults{DropCommands: 1})
	if err := conn.SendTo(frame, "127.0.0.1", sim.Port()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if _, _, err := conn.Receive(128, silenceWait); !errors.Is(err, transport.ErrReceiveTimeout) {
		t.Fatalf("Receive() error = %v, want silence after SetFaults", err)
	}

	if got := len(sim.Commands()); got != 2 {
		t.Errorf("Commands() len = %d, want 2", got)
	}
	sim.ClearCommands()
	if got := len(sim.Commands()); got != 0 {
		t.Errorf("Commands() len after clear = %d, want 0", got)
	}
}

func TestSimulatorLifecycle(t *testing.T) {
	sim := New(Config{})
	if sim.Addr() != "" || sim.Port() != 0 {
		t.Error("Addr()/Port() non-empty before Start()")
	}
	if err := sim.Stop(); err != nil {
		t.Errorf("Stop() before Start() error = %v", err)
	}

	if err := sim.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sim.Port() == 0 {
		t.Error("Port() = 0 after Start()")
	}
	if err := sim.Start(); err == nil {
		t.Error("second Start() error = nil, want already-running error")
	}

	if err := sim.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := sim.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
