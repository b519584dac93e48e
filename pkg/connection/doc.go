// Package connection keeps a bridge session alive across failures.
//
// The session layer fails a command after its fixed retry budget and
// leaves recovery to the caller. For long-running hosts the
// Supervisor takes that role: it wraps a session, and when a send
// fails because the session timed out or was never established it
// performs one re-handshake and resends once.
//
// # Reconnection Strategy
//
// Consecutive re-handshake failures are paced by exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Reset to 1s on a successful handshake
//
// # Jitter
//
// To prevent synchronized probing when several hosts lose the same
// bridge:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Delivery Caveat
//
// The protocol offers no exactly-once delivery. A command that timed
// out may still have been applied, and the resend after a re-handshake
// may apply it twice. The control operations tolerate this; hosts that
// do not should stay on the plain session layer.
package connection
