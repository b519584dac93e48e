// Package wire implements the binary frame formats of the Milight
// iBox2 v6 control protocol.
//
// Every frame is a fixed-layout byte sequence. The literal bytes and
// field offsets are a compatibility contract with bridge hardware and
// must not change.
//
// # Frame Types
//
// There are three exchanges, each with a request and a reply:
//   - Discovery: a fixed 15-byte broadcast probe, answered by a 69-byte
//     report carrying the bridge MAC and its control port
//   - Session start: a fixed handshake frame, answered by a 22-byte
//     reply carrying the two session identifier bytes
//   - Command: a 22-byte frame wrapping an 11-byte zone command with a
//     sequence number and additive checksum, answered by an 8-byte
//     acknowledgment echoing the sequence number
//
// # Checksum
//
// Command frames end with a single checksum byte: the low byte of the
// sum of the 11 command-body bytes.
//
// # Zone Commands
//
// ZoneCommand carries one control primitive (power, brightness, color,
// color temperature, animation mode, link/unlink) addressed to zone 0
// (all zones) through 4. Both directions of every exchange are
// implemented so simulators and tests can act as the bridge peer.
package wire
