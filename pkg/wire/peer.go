package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// Bridge-side encoders and decoders. A real iBox2 implements this half
// of the protocol; simulators and tests use it to act as the peer.

// IsDiscoveryRequest reports whether data is the discovery probe.
func IsDiscoveryRequest(data []byte) bool {
	return bytes.Equal(data, discoveryRequest)
}

// IsSessionStart reports whether data is the session-start frame.
func IsSessionStart(data []byte) bool {
	return bytes.Equal(data, sessionStartRequest)
}

// EncodeDiscoveryResponse builds the 69-byte reply a bridge sends to a
// discovery probe. Only the fields the client reads are populated: the
// type byte, the MAC at offset 6, and the big-endian control port at
// offset 49.
func EncodeDiscoveryResponse(mac net.HardwareAddr, port uint16) ([]byte, error) {
	if len(mac) != HardwareAddrLength {
		return nil, fmt.Errorf("%w: got %d", ErrHardwareAddr, len(mac))
	}
	frame := make([]byte, DiscoveryResponseLength)
	frame[0] = discoveryResponseType
	copy(frame[6:12], mac)
	binary.BigEndian.PutUint16(frame[49:51], port)
	return frame, nil
}

// EncodeSessionStartResponse builds the 22-byte session-start reply
// carrying the allocated session identifiers.
func EncodeSessionStartResponse(mac net.HardwareAddr, id1, id2 byte) ([]byte, error) {
	if len(mac) != HardwareAddrLength {
		return nil, fmt.Errorf("%w: got %d", ErrHardwareAddr, len(mac))
	}
	frame := make([]byte, SessionResponseLength)
	copy(frame, sessionResponseHeader)
	copy(frame[7:13], mac)
	frame[19] = id1
	frame[20] = id2
	return frame, nil
}

// EncodeCommandAck builds the 8-byte acknowledgment echoing seq.
func EncodeCommandAck(seq byte) []byte {
	frame := make([]byte, AckLength)
	copy(frame, ackHeader)
	frame[6] = seq
	return frame
}

// CommandFrame holds the decoded fields of a command frame.
type CommandFrame struct {
	// SessionID1 and SessionID2 identify the session the command
	// belongs to.
	SessionID1 byte
	SessionID2 byte

	// Seq is the sequence number the acknowledgment must echo.
	Seq byte

	// Body is the 11-byte zone command.
	Body [CommandLength]byte
}

// DecodeCommandFrame parses a command frame as a bridge would,
// verifying length, header, and checksum.
func DecodeCommandFrame(data []byte) (CommandFrame, error) {
	var cf CommandFrame
	if len(data) != CommandFrameLength {
		return cf, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(data), CommandFrameLength)
	}
	if !bytes.Equal(data[:len(commandFrameHeader)], commandFrameHeader) || data[7] != 0x00 || data[9] != 0x00 {
		return cf, fmt.Errorf("%w: % X", ErrFrameHeader, data[:10])
	}
	body := data[10 : 10+CommandLength]
	if sum := Checksum(body); sum != data[CommandFrameLength-1] {
		return cf, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrChecksum, data[CommandFrameLength-1], sum)
	}
	cf.SessionID1 = data[5]
	cf.SessionID2 = data[6]
	cf.Seq = data[8]
	copy(cf.Body[:], body)
	return cf, nil
}
