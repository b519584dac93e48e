package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Protocol constants.
const (
	// DefaultBridgeAddr is the factory IP of an iBox2 running as an
	// access point.
	DefaultBridgeAddr = "10.10.100.254"

	// DefaultPort is the well-known UDP control port.
	DefaultPort uint16 = 5987

	// DiscoveryResponseLength is the exact length of a discovery reply.
	DiscoveryResponseLength = 69

	// SessionResponseLength is the exact length of a session-start reply.
	SessionResponseLength = 22

	// CommandFrameLength is the exact length of an encoded command frame.
	CommandFrameLength = 22

	// AckLength is the exact length of a command acknowledgment.
	AckLength = 8

	// CommandLength is the exact length of a zone-command body.
	CommandLength = 11

	// HardwareAddrLength is the length of the bridge MAC carried in
	// discovery and session replies.
	HardwareAddrLength = 6
)

// discoveryResponseType is the first byte of a valid discovery reply.
const discoveryResponseType = 0x18

// Codec errors.
var (
	// ErrFrameLength indicates a frame with an unexpected length.
	ErrFrameLength = errors.New("unexpected frame length")

	// ErrFrameHeader indicates a frame whose fixed header bytes do not match.
	ErrFrameHeader = errors.New("unexpected frame header")

	// ErrPortMismatch indicates a discovery reply whose embedded port
	// differs from the UDP source port the datagram arrived from.
	ErrPortMismatch = errors.New("embedded port does not match source port")

	// ErrSequenceMismatch indicates an acknowledgment carrying a
	// different sequence number than the command it answers.
	ErrSequenceMismatch = errors.New("acknowledgment sequence mismatch")

	// ErrCommandLength indicates a zone-command body that is not exactly
	// CommandLength bytes.
	ErrCommandLength = errors.New("zone command body has wrong length")

	// ErrChecksum indicates a command frame whose trailing checksum byte
	// does not match its body.
	ErrChecksum = errors.New("command checksum mismatch")

	// ErrHardwareAddr indicates a MAC that is not exactly six bytes.
	ErrHardwareAddr = errors.New("hardware address must be 6 bytes")
)

// discoveryRequest is the fixed broadcast probe. Bridges answer with a
// discovery reply carrying their MAC and control port.
var discoveryRequest = []byte{
	0x13, 0x00, 0x00, 0x00, 0x0A, 0x03, 0x9B, 0x7F,
	0x11, 0xF0, 0xFE, 0x6B, 0x3B, 0xDD, 0xD4,
}

// sessionStartRequest asks the bridge to allocate a session. The reply
// carries the two session identifier bytes every command frame needs.
var sessionStartRequest = []byte{
	0x20, 0x00, 0x00, 0x00, 0x16, 0x02, 0x62, 0x3A,
	0xD5, 0xED, 0xA3, 0x01, 0xAE, 0x08, 0x2D, 0x46,
	0x61, 0x41, 0xA7, 0xF6, 0xDC, 0xAF, 0xD3, 0xE6,
	0x00, 0x00, 0x1E,
}

// sessionResponseHeader is the expected prefix of a session-start reply.
// Bridge firmware has been seen replying with other prefixes while the
// session identifiers are still usable; see DecodeSessionStartResponse.
var sessionResponseHeader = []byte{0x28, 0x00, 0x00, 0x00, 0x11, 0x00, 0x02}

// commandFrameHeader is the prefix of a command frame up to the session
// identifier bytes.
var commandFrameHeader = []byte{0x80, 0x00, 0x00, 0x00, 0x11}

// ackHeader is the expected prefix of a command acknowledgment.
var ackHeader = []byte{0x88, 0x00, 0x00, 0x00, 0x03, 0x00}

// Checksum returns the additive checksum of a command body: the low
// byte of the sum of all bytes.
func Checksum(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return sum
}

// EncodeDiscoveryRequest returns the fixed discovery probe frame.
func EncodeDiscoveryRequest() []byte {
	return append([]byte(nil), discoveryRequest...)
}

// DecodeDiscoveryResponse parses a discovery reply and returns the
// bridge MAC. srcPort is the UDP source port the datagram arrived from;
// the port embedded in the reply must match it, otherwise the reply is
// rejected with ErrPortMismatch.
func DecodeDiscoveryResponse(data []byte, srcPort uint16) (net.HardwareAddr, error) {
	if len(data) != DiscoveryResponseLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(data), DiscoveryResponseLength)
	}
	if data[0] != discoveryResponseType {
		return nil, fmt.Errorf("%w: type 0x%02X", ErrFrameHeader, data[0])
	}
	if embedded := binary.BigEndian.Uint16(data[49:51]); embedded != srcPort {
		return nil, fmt.Errorf("%w: embedded %d, source %d", ErrPortMismatch, embedded, srcPort)
	}
	mac := make(net.HardwareAddr, HardwareAddrLength)
	copy(mac, data[6:12])
	return mac, nil
}

// EncodeSessionStart returns the fixed session-start frame.
func EncodeSessionStart() []byte {
	return append([]byte(nil), sessionStartRequest...)
}

// SessionReply holds the decoded fields of a session-start response.
type SessionReply struct {
	// SessionID1 and SessionID2 must accompany every command frame sent
	// within this session.
	SessionID1 byte
	SessionID2 byte

	// HardwareAddr is the bridge MAC echoed in the reply.
	HardwareAddr net.HardwareAddr

	// HeaderOK reports whether the fixed 7-byte reply header matched.
	// When false the session identifiers were still decoded; the caller
	// decides whether to accept them (lenient) or retry (strict).
	HeaderOK bool
}

// DecodeSessionStartResponse parses a session-start reply. Replies of
// the wrong length are rejected with ErrFrameLength. A reply of the
// right length with a mismatched header is still decoded, with HeaderOK
// false, and the caller chooses.
func DecodeSessionStartResponse(data []byte) (SessionReply, error) {
	var reply SessionReply
	if len(data) != SessionResponseLength {
		return reply, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(data), SessionResponseLength)
	}
	reply.HeaderOK = bytes.Equal(data[:len(sessionResponseHeader)], sessionResponseHeader)
	reply.HardwareAddr = make(net.HardwareAddr, HardwareAddrLength)
	copy(reply.HardwareAddr, data[7:13])
	reply.SessionID1 = data[19]
	reply.SessionID2 = data[20]
	return reply, nil
}

// EncodeCommandFrame wraps an 11-byte zone command into a command frame
// for the given session identifiers and sequence number. The trailing
// byte is the additive checksum of the body.
func EncodeCommandFrame(id1, id2, seq byte, body []byte) ([]byte, error) {
	if len(body) != CommandLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCommandLength, len(body), CommandLength)
	}
	frame := make([]byte, 0, CommandFrameLength)
	frame = append(frame, commandFrameHeader...)
	frame = append(frame, id1, id2, 0x00, seq, 0x00)
	frame = append(frame, body...)
	frame = append(frame, Checksum(body))
	return frame, nil
}

// DecodeCommandAck validates a command acknowledgment against the
// sequence number the command was sent with.
func DecodeCommandAck(data []byte, expectedSeq byte) error {
	if len(data) != AckLength {
		return fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(data), AckLength)
	}
	if !bytes.Equal(data[:len(ackHeader)], ackHeader) {
		return fmt.Errorf("%w: % X", ErrFrameHeader, data[:len(ackHeader)])
	}
	if data[6] != expectedSeq {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceMismatch, data[6], expectedSeq)
	}
	return nil
}
