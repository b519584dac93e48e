package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/milight-protocol/milight-go/pkg/log"
	"github.com/milight-protocol/milight-go/pkg/session"
)

// Supervisor errors.
var (
	// ErrSupervisorClosed indicates an operation on a closed
	// Supervisor.
	ErrSupervisorClosed = errors.New("supervisor closed")
)

// Client is the session surface the Supervisor drives. Implemented by
// session.Session.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Send(ctx context.Context, body []byte) error
}

// Config configures a Supervisor.
type Config struct {
	// Backoff paces re-handshake attempts. Nil selects NewBackoff().
	Backoff *Backoff

	// ConnectionID tags supervisor events; use the wrapped session's
	// connection id to keep the whole trace correlated.
	ConnectionID string

	// Logger receives reconnect events. Nil disables logging.
	Logger log.Logger
}

// Supervisor wraps a session Client and restores the session when a
// command fails session-fatally. It satisfies the control package's
// CommandSender, so a Controller can run on top of it unchanged.
// Operations are serialized; the Supervisor is safe for concurrent
// use.
type Supervisor struct {
	client  Client
	backoff *Backoff
	connID  string
	logger  log.Logger

	mu          sync.Mutex
	closed      bool
	nextAttempt time.Time
}

// NewSupervisor wraps client with transparent session restoration.
func NewSupervisor(client Client, config Config) *Supervisor {
	backoff := config.Backoff
	if backoff == nil {
		backoff = NewBackoff()
	}
	return &Supervisor{
		client:  client,
		backoff: backoff,
		connID:  config.ConnectionID,
		logger:  log.OrNoop(config.Logger),
	}
}

// Connect establishes the session. Repeated failures are paced by the
// backoff; a call arriving inside the pause waits it out (or returns
// early with the context error).
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSupervisorClosed
	}
	return s.connectLocked(ctx)
}

// Disconnect tears the session down without closing the Supervisor.
// The next Send re-establishes it transparently.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSupervisorClosed
	}
	return s.client.Disconnect()
}

// IsConnected reports the wrapped session state.
func (s *Supervisor) IsConnected() bool {
	return s.client.IsConnected()
}

// Send transmits one command body. A send on a dropped or timed-out
// session triggers exactly one re-handshake and one resend; whatever
// still fails surfaces to the caller. Note that a resend after a
// command timeout can apply the command twice.
func (s *Supervisor) Send(ctx context.Context, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSupervisorClosed
	}

	if !s.client.IsConnected() {
		if err := s.connectLocked(ctx); err != nil {
			return err
		}
		return s.client.Send(ctx, body)
	}

	err := s.client.Send(ctx, body)
	if err == nil || !sessionDropped(err) {
		return err
	}

	s.logRestore(err)
	if rerr := s.connectLocked(ctx); rerr != nil {
		return fmt.Errorf("session restore failed: %w (after %w)", rerr, err)
	}
	return s.client.Send(ctx, body)
}

// Close disconnects the session and permanently closes the
// Supervisor. Close is idempotent.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Disconnect()
}

// sessionDropped reports whether err means the session needs a fresh
// handshake rather than another command-level retry.
func sessionDropped(err error) bool {
	return errors.Is(err, session.ErrCommandTimeout) ||
		errors.Is(err, session.ErrNotConnected)
}

func (s *Supervisor) connectLocked(ctx context.Context) error {
	if wait := time.Until(s.nextAttempt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := s.client.Connect(ctx); err != nil {
		delay := s.backoff.Next()
		s.nextAttempt = time.Now().Add(delay)
		s.logBackoff(delay, err)
		return err
	}

	s.backoff.Reset()
	s.nextAttempt = time.Time{}
	return nil
}

func (s *Supervisor) logRestore(cause error) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryRetry,
		Retry: &log.RetryEvent{
			Attempt: s.backoff.Attempts() + 1,
			Reason:  "restoring session: " + cause.Error(),
		},
	})
}

func (s *Supervisor) logBackoff(delay time.Duration, err error) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerSession,
		Category:     log.CategoryWarning,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: err.Error(),
			Context: fmt.Sprintf("re-handshake failed, next attempt in %s", delay),
		},
	})
}
