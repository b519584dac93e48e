package milight_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/milight-protocol/milight-go/internal/bridgesim"
	"github.com/milight-protocol/milight-go/pkg/connection"
	"github.com/milight-protocol/milight-go/pkg/control"
	"github.com/milight-protocol/milight-go/pkg/discovery"
	"github.com/milight-protocol/milight-go/pkg/session"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

// startSim starts a bridge simulator on a loopback port and registers
// its shutdown with the test.
func startSim(t *testing.T, config bridgesim.Config) *bridgesim.Simulator {
	t.Helper()

	sim := bridgesim.New(config)
	if err := sim.Start(); err != nil {
		t.Fatalf("Failed to start simulator: %v", err)
	}
	t.Cleanup(func() { sim.Stop() })
	return sim
}

// TestE2E_Discovery tests that a scan over loopback finds the simulated
// bridge and reports its identity.
func TestE2E_Discovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sim := startSim(t, bridgesim.Config{})

	scanner := discovery.NewScanner(discovery.Config{
		BroadcastAddr:  "127.0.0.1",
		Port:           sim.Port(),
		ReceiveTimeout: 200 * time.Millisecond,
	})

	bridges, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(bridges) != 1 {
		t.Fatalf("Expected 1 bridge, got %d", len(bridges))
	}

	b := bridges[0]
	if b.Addr != "127.0.0.1" {
		t.Errorf("Addr mismatch: expected 127.0.0.1, got %s", b.Addr)
	}
	if b.Port != sim.Port() {
		t.Errorf("Port mismatch: expected %d, got %d", sim.Port(), b.Port)
	}
	if b.HardwareAddr.String() != sim.HardwareAddr().String() {
		t.Errorf("MAC mismatch: expected %s, got %s", sim.HardwareAddr(), b.HardwareAddr)
	}

	if sim.Discoveries() != 1 {
		t.Errorf("Expected 1 answered discovery, got %d", sim.Discoveries())
	}
}

// TestE2E_DiscoveryPortMismatch tests that a response advertising a
// port other than its source port is discarded.
func TestE2E_DiscoveryPortMismatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sim := startSim(t, bridgesim.Config{
		Faults: bridgesim.Faults{WrongAdvertisedPort: true},
	})

	scanner := discovery.NewScanner(discovery.Config{
		BroadcastAddr:  "127.0.0.1",
		Port:           sim.Port(),
		ReceiveTimeout: 200 * time.Millisecond,
	})

	bridges, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(bridges) != 0 {
		t.Errorf("Expected 0 bridges for mismatched port, got %d", len(bridges))
	}
}

// TestE2E_SessionHandshake tests connecting to a simulated bridge and
// receiving its session identifiers.
func TestE2E_SessionHandshake(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sim := startSim(t, bridgesim.Config{SessionID1: 0x12, SessionID2: 0x34})

	sess := session.New(session.Config{
		Addr:           "127.0.0.1",
		Port:           sim.Port(),
		ReceiveTimeout: 500 * time.Millisecond,
	})

	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Disconnect()

	if !sess.IsConnected() {
		t.Error("Session should report connected")
	}

	id1, id2 := sess.SessionIDs()
	if id1 != 0x12 || id2 != 0x34 {
		t.Errorf("Session ID mismatch: expected 0x12 0x34, got 0x%02X 0x%02X", id1, id2)
	}

	if sim.Handshakes() != 1 {
		t.Errorf("Expected 1 answered handshake, got %d", sim.Handshakes())
	}

	if err := sess.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if sess.IsConnected() {
		t.Error("Session should report disconnected")
	}
}

// TestE2E_HandshakeRetry tests that a dropped session start is resent
// until the bridge answers.
func TestE2E_HandshakeRetry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sim := startSim(t, bridgesim.Config{
		Faults: bridgesim.Faults{DropHandshakes: 1},
	})

	sess := session.New(session.Config{
		Addr:           "127.0.0.1",
		Port:           sim.Port(),
		ReceiveTimeout: 100 * time.Millisecond,
		Retries:        3,
	})

	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed after dropped handshake: %v", err)
	}
	defer sess.Disconnect()

	if sim.Handshakes() != 1 {
		t.Errorf("Expected 1 answered handshake, got %d", sim.Handshakes())
	}

	t.Log("Handshake succeeded on retry after one dropped session start")
}

// TestE2E_LenientHandshake tests that a reply with a deviant header is
// accepted by default and rejected under StrictHandshake.
func TestE2E_LenientHandshake(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sim := startSim(t, bridgesim.Config{
		SessionID1: 0xAB,
		SessionID2: 0xCD,
		Faults:     bridgesim.Faults{CorruptHandshakeHeader: true},
	})

	// Lenient is the default: the identifiers are taken anyway.
	lenient := session.New(session.Config{
		Addr:           "127.0.0.1",
		Port:           sim.Port(),
		ReceiveTimeout: 500 * time.Millisecond,
	})
	if err := lenient.Connect(ctx); err != nil {
		t.Fatalf("Lenient connect failed: %v", err)
	}
	id1, id2 := lenient.SessionIDs()
	if id1 != 0xAB || id2 != 0xCD {
		t.Errorf("Session ID mismatch: expected 0xAB 0xCD, got 0x%02X 0x%02X", id1, id2)
	}
	lenient.Disconnect()

	// Strict mode refuses the same reply on every attempt.
	strict := session.New(session.Config{
		Addr:            "127.0.0.1",
		Port:            sim.Port(),
		ReceiveTimeout:  100 * time.Millisecond,
		Retries:         2,
		StrictHandshake: true,
	})
	err := strict.Connect(ctx)
	if err == nil {
		strict.Disconnect()
		t.Fatal("Strict connect should have failed on corrupted header")
	}
	if !errors.Is(err, session.ErrConnectTimeout) {
		t.Errorf("Expected ErrConnectTimeout, got %v", err)
	}
	if !errors.Is(err, wire.ErrFrameHeader) {
		t.Errorf("Expected wire.ErrFrameHeader in chain, got %v", err)
	}
}

// TestE2E_CommandDelivery tests that controller operations arrive at
// the bridge as correctly sequenced, checksummed command frames.
func TestE2E_CommandDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sim := startSim(t, bridgesim.Config{})

	sess := session.New(session.Config{
		Addr:           "127.0.0.1",
		Port:           sim.Port(),
		ReceiveTimeout: 500 * time.Millisecond,
	})
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Disconnect()

	ctrl := control.NewController(sess, control.Config{Zone: 2})

	if err := ctrl.LightOn(ctx); err != nil {
		t.Fatalf("LightOn failed: %v", err)
	}
	if err := ctrl.Brightness(ctx, 75); err != nil {
		t.Fatalf("Brightness failed: %v", err)
	}

	commands := sim.Commands()
	if len(commands) != 2 {
		t.Fatalf("Expected 2 commands at the bridge, got %d", len(commands))
	}

	simID1, simID2 := sim.SessionIDs()
	on, brightness := commands[0], commands[1]

	if on.Frame.SessionID1 != simID1 || on.Frame.SessionID2 != simID2 {
		t.Errorf("Command carries wrong session: got 0x%02X 0x%02X, want 0x%02X 0x%02X",
			on.Frame.SessionID1, on.Frame.SessionID2, simID1, simID2)
	}
	if brightness.Frame.Seq != on.Frame.Seq+1 {
		t.Errorf("Sequence should increment by 1: got %d then %d", on.Frame.Seq, brightness.Frame.Seq)
	}
	if !on.Acked || !brightness.Acked {
		t.Error("Both commands should be acknowledged")
	}

	// Power-on body: control op, power subcommand, on value, zone 2.
	if on.Frame.Body[0] != wire.OpControl {
		t.Errorf("Expected control op 0x%02X, got 0x%02X", wire.OpControl, on.Frame.Body[0])
	}
	if on.Frame.Body[3] != byte(wire.LampRGBWW) {
		t.Errorf("Expected default lamp type 0x%02X, got 0x%02X", byte(wire.LampRGBWW), on.Frame.Body[3])
	}
	if on.Frame.Body[4] != wire.SubPower || on.Frame.Body[5] != wire.PowerOn {
		t.Errorf("Expected power-on subcommand %02X %02X, got %02X %02X",
			wire.SubPower, wire.PowerOn, on.Frame.Body[4], on.Frame.Body[5])
	}
	if on.Frame.Body[9] != 2 {
		t.Errorf("Expected zone 2, got %d", on.Frame.Body[9])
	}

	if brightness.Frame.Body[4] != wire.SubBrightness || brightness.Frame.Body[5] != 75 {
		t.Errorf("Expected brightness subcommand %02X 75, got %02X %d",
			wire.SubBrightness, brightness.Frame.Body[4], brightness.Frame.Body[5])
	}

	t.Logf("Delivered 2 commands, sequences %d and %d, both acknowledged",
		on.Frame.Seq, brightness.Frame.Seq)
}

// TestE2E_CommandRetry tests that an unacknowledged command is resent
// byte-identically until the bridge acknowledges.
func TestE2E_CommandRetry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sim := startSim(t, bridgesim.Config{
		Faults: bridgesim.Faults{DropCommands: 1},
	})

	sess := session.New(session.Config{
		Addr:           "127.0.0.1",
		Port:           sim.Port(),
		ReceiveTimeout: 100 * time.Millisecond,
		Retries:        3,
	})
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Disconnect()

	ctrl := control.NewController(sess, control.Config{})
	if err := ctrl.LightOn(ctx); err != nil {
		t.Fatalf("LightOn failed despite retry budget: %v", err)
	}

	commands := sim.Commands()
	if len(commands) != 2 {
		t.Fatalf("Expected 2 frame arrivals (drop + retry), got %d", len(commands))
	}
	if commands[0].Acked {
		t.Error("First arrival should have been dropped unacknowledged")
	}
	if !commands[1].Acked {
		t.Error("Retry should have been acknowledged")
	}
	if commands[0].Frame.Seq != commands[1].Frame.Seq {
		t.Errorf("Retry must reuse the sequence number: got %d then %d",
			commands[0].Frame.Seq, commands[1].Frame.Seq)
	}
	if commands[0].Frame.Body != commands[1].Frame.Body {
		t.Error("Retry must resend an identical body")
	}
}

// TestE2E_CommandTimeout tests that exhausting the retry budget surfaces
// ErrCommandTimeout.
func TestE2E_CommandTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sim := startSim(t, bridgesim.Config{
		Faults: bridgesim.Faults{DropCommands: 8},
	})

	sess := session.New(session.Config{
		Addr:           "127.0.0.1",
		Port:           sim.Port(),
		ReceiveTimeout: 100 * time.Millisecond,
		Retries:        2,
	})
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Disconnect()

	ctrl := control.NewController(sess, control.Config{})
	err := ctrl.LightOn(ctx)
	if err == nil {
		t.Fatal("LightOn should have timed out")
	}
	if !errors.Is(err, session.ErrCommandTimeout) {
		t.Errorf("Expected ErrCommandTimeout, got %v", err)
	}

	if got := len(sim.Commands()); got != 2 {
		t.Errorf("Expected 2 frame arrivals (one per attempt), got %d", got)
	}
}

// TestE2E_SupervisorReconnect tests that the supervisor restores a
// session after the bridge goes away and comes back.
func TestE2E_SupervisorReconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sim := bridgesim.New(bridgesim.Config{})
	if err := sim.Start(); err != nil {
		t.Fatalf("Failed to start simulator: %v", err)
	}
	simAddr := sim.Addr()
	simPort := sim.Port()

	sess := session.New(session.Config{
		Addr:           "127.0.0.1",
		Port:           simPort,
		ReceiveTimeout: 100 * time.Millisecond,
		Retries:        2,
	})
	sup := connection.NewSupervisor(sess, connection.Config{
		Backoff: connection.NewBackoffWithConfig(connection.BackoffConfig{
			Initial: 50 * time.Millisecond,
			Max:     200 * time.Millisecond,
		}),
		ConnectionID: sess.ConnectionID(),
	})
	defer sup.Close()

	ctrl := control.NewController(sup, control.Config{})

	if err := sup.Connect(ctx); err != nil {
		t.Fatalf("Initial connect failed: %v", err)
	}
	if err := ctrl.LightOn(ctx); err != nil {
		t.Fatalf("Command before outage failed: %v", err)
	}

	t.Log("Initial connection verified, stopping simulator...")
	if err := sim.Stop(); err != nil {
		t.Fatalf("Failed to stop simulator: %v", err)
	}

	// With the bridge down both the command and the restore handshake
	// time out and the error surfaces.
	if err := ctrl.LightOff(ctx); err == nil {
		t.Fatal("Command during outage should have failed")
	}

	t.Log("Outage detected, restarting simulator on the same port...")
	sim2 := bridgesim.New(bridgesim.Config{Addr: simAddr})
	if err := sim2.Start(); err != nil {
		t.Fatalf("Failed to restart simulator: %v", err)
	}
	t.Cleanup(func() { sim2.Stop() })

	// The next send rides the supervisor's re-handshake.
	if err := ctrl.LightOn(ctx); err != nil {
		t.Fatalf("Command after restart failed: %v", err)
	}

	if sim2.Handshakes() == 0 {
		t.Error("Expected the supervisor to re-handshake with the restarted bridge")
	}
	commands := sim2.Commands()
	if len(commands) == 0 {
		t.Fatal("Expected the restarted bridge to receive the command")
	}
	last := commands[len(commands)-1]
	if !last.Acked {
		t.Error("Command after restart should be acknowledged")
	}

	t.Log("Reconnection test successful - session restored and command delivered")
}
