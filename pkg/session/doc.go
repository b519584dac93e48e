// Package session manages the command session with one bridge.
//
// A Session is a small state machine:
//
//	DISCONNECTED ──Connect──▶ CONNECTED ──Disconnect──▶ DISCONNECTED
//
// Connect sends the fixed session-start frame to the configured bridge
// and learns the two session id bytes from the 22-byte reply. Send
// wraps one 11-byte command into a sequenced, checksummed frame and
// waits for the matching acknowledgment.
//
// Both the handshake and every command run a bounded retry loop: a
// receive timeout, a malformed reply, or an acknowledgment carrying
// the wrong sequence number triggers the next attempt, and exhausting
// the budget surfaces ErrConnectTimeout or ErrCommandTimeout. A
// command claims its sequence number once; all retries resend the
// identical frame, so a duplicate delivery acknowledges the same
// command instead of consuming a fresh number.
//
// Connect, Disconnect and Send are serialized internally; a Session is
// safe for concurrent use but never interleaves exchanges on the wire.
package session
