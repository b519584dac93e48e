package transport

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/milight-protocol/milight-go/pkg/log"
)

type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) snapshot() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func openTestConn(t *testing.T, config Config) *UDPConn {
	t.Helper()

	if config.LocalAddr == "" {
		config.LocalAddr = "127.0.0.1:0"
	}
	if config.SendPacing == 0 {
		config.SendPacing = -1
	}

	conn, err := Open(config)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestOpenLocalPort(t *testing.T) {
	conn := openTestConn(t, Config{})

	if conn.LocalPort() == 0 {
		t.Error("LocalPort() = 0, want ephemeral port")
	}
}

func TestOpenInvalidLocalAddr(t *testing.T) {
	_, err := Open(Config{LocalAddr: "not an address"})
	if err == nil {
		t.Fatal("Open() with invalid local address should fail")
	}
}

func TestSendReceive(t *testing.T) {
	sender := openTestConn(t, Config{})
	receiver := openTestConn(t, Config{})

	payload := []byte{0x13, 0x00, 0x00, 0x00, 0x0A}
	if err := sender.SendTo(payload, "127.0.0.1", receiver.LocalPort()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	data, source, err := receiver.Receive(1024, time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Receive() data = %X, want %X", data, payload)
	}
	if source.Addr != "127.0.0.1" {
		t.Errorf("source addr = %s, want 127.0.0.1", source.Addr)
	}
	if source.Port != sender.LocalPort() {
		t.Errorf("source port = %d, want %d", source.Port, sender.LocalPort())
	}
}

func TestSendToHostname(t *testing.T) {
	sender := openTestConn(t, Config{})
	receiver := openTestConn(t, Config{})

	if err := sender.SendTo([]byte{0x01}, "localhost", receiver.LocalPort()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	data, _, err := receiver.Receive(16, time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(data, []byte{0x01}) {
		t.Errorf("Receive() data = %X, want 01", data)
	}
}

func TestReceiveTimeout(t *testing.T) {
	conn := openTestConn(t, Config{})

	_, _, err := conn.Receive(64, 50*time.Millisecond)
	if !errors.Is(err, ErrReceiveTimeout) {
		t.Errorf("Receive() error = %v, want ErrReceiveTimeout", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	conn := openTestConn(t, Config{})

	if err := conn.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := conn.SendTo([]byte{0x01}, "127.0.0.1", 5987); !errors.Is(err, ErrClosed) {
		t.Errorf("SendTo() after close error = %v, want ErrClosed", err)
	}
	if _, _, err := conn.Receive(64, time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after close error = %v, want ErrClosed", err)
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	conn := openTestConn(t, Config{})

	done := make(chan error, 1)
	go func() {
		_, _, err := conn.Receive(64, 0)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	_ = conn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Receive() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive() did not unblock after Close()")
	}
}

func TestSendPacing(t *testing.T) {
	tests := []struct {
		name       string
		pacing     time.Duration
		wantSleeps []time.Duration
	}{
		{"default", DefaultSendPacing, []time.Duration{DefaultSendPacing}},
		{"custom", 10 * time.Millisecond, []time.Duration{10 * time.Millisecond}},
		{"disabled", -1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var slept []time.Duration
			conn := openTestConn(t, Config{
				SendPacing: tt.pacing,
				sleep:      func(d time.Duration) { slept = append(slept, d) },
			})
			receiver := openTestConn(t, Config{})

			if err := conn.SendTo([]byte{0x01}, "127.0.0.1", receiver.LocalPort()); err != nil {
				t.Fatalf("SendTo() error = %v", err)
			}

			if len(slept) != len(tt.wantSleeps) {
				t.Fatalf("sleep calls = %d, want %d", len(slept), len(tt.wantSleeps))
			}
			for i, want := range tt.wantSleeps {
				if slept[i] != want {
					t.Errorf("sleep[%d] = %v, want %v", i, slept[i], want)
				}
			}
		})
	}
}

func TestDefaultPacingApplied(t *testing.T) {
	var slept []time.Duration
	conn, err := Open(Config{
		LocalAddr: "127.0.0.1:0",
		sleep:     func(d time.Duration) { slept = append(slept, d) },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	receiver := openTestConn(t, Config{})
	if err := conn.SendTo([]byte{0x01}, "127.0.0.1", receiver.LocalPort()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	if len(slept) != 1 || slept[0] != DefaultSendPacing {
		t.Errorf("sleeps = %v, want one sleep of %v", slept, DefaultSendPacing)
	}
}

func TestFrameEventsLogged(t *testing.T) {
	senderLog := &capturingLogger{}
	receiverLog := &capturingLogger{}

	sender := openTestConn(t, Config{ConnectionID: "conn-a", Logger: senderLog})
	receiver := openTestConn(t, Config{ConnectionID: "conn-b", Logger: receiverLog})

	payload := []byte{0x80, 0x00, 0x00, 0x00, 0x11}
	if err := sender.SendTo(payload, "127.0.0.1", receiver.LocalPort()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if _, _, err := receiver.Receive(64, time.Second); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	outEvents := senderLog.snapshot()
	if len(outEvents) != 1 {
		t.Fatalf("sender events = %d, want 1", len(outEvents))
	}
	out := outEvents[0]
	if out.Direction != log.DirectionOut {
		t.Errorf("direction = %v, want OUT", out.Direction)
	}
	if out.Layer != log.LayerTransport {
		t.Errorf("layer = %v, want TRANSPORT", out.Layer)
	}
	if out.Category != log.CategoryFrame {
		t.Errorf("category = %v, want FRAME", out.Category)
	}
	if out.ConnectionID != "conn-a" {
		t.Errorf("connection id = %s, want conn-a", out.ConnectionID)
	}
	if out.Frame == nil {
		t.Fatal("frame payload missing")
	}
	if out.Frame.Size != len(payload) {
		t.Errorf("frame size = %d, want %d", out.Frame.Size, len(payload))
	}
	if !bytes.Equal(out.Frame.Data, payload) {
		t.Errorf("frame data = %X, want %X", out.Frame.Data, payload)
	}
	if out.Frame.Truncated {
		t.Error("frame should not be truncated")
	}

	inEvents := receiverLog.snapshot()
	if len(inEvents) != 1 {
		t.Fatalf("receiver events = %d, want 1", len(inEvents))
	}
	if inEvents[0].Direction != log.DirectionIn {
		t.Errorf("direction = %v, want IN", inEvents[0].Direction)
	}
	if inEvents[0].RemoteAddr == "" {
		t.Error("remote addr missing on inbound event")
	}
}

func TestFrameEventTruncation(t *testing.T) {
	logger := &capturingLogger{}
	sender := openTestConn(t, Config{Logger: logger})
	receiver := openTestConn(t, Config{})

	payload := make([]byte, MaxLogFrameDataSize+40)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := sender.SendTo(payload, "127.0.0.1", receiver.LocalPort()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	events := logger.snapshot()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	frame := events[0].Frame
	if frame == nil {
		t.Fatal("frame payload missing")
	}
	if !frame.Truncated {
		t.Error("frame should be truncated")
	}
	if len(frame.Data) != MaxLogFrameDataSize {
		t.Errorf("frame data length = %d, want %d", len(frame.Data), MaxLogFrameDataSize)
	}
	if frame.Size != len(payload) {
		t.Errorf("frame size = %d, want %d", frame.Size, len(payload))
	}
}
