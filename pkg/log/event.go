package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID correlates events belonging to one session or one
	// discovery scan (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates frame flow for frame events.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the bridge address (IP:port) when known.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// BridgeID is the bridge hardware address when known.
	BridgeID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // raw datagrams
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // session/scan lifecycle
	Retry       *RetryEvent       `cbor:"12,keyasint,omitempty"` // retry attempts
	Command     *CommandEvent     `cbor:"13,keyasint,omitempty"` // decoded control operations
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // warnings and errors
}

// Direction indicates the direction of frame flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming frame.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing frame.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the datagram layer (raw bytes on the socket).
	LayerTransport Layer = 0
	// LayerDiscovery is the broadcast scan layer.
	LayerDiscovery Layer = 1
	// LayerSession is the handshake/acknowledgment layer.
	LayerSession Layer = 2
	// LayerCommand is the control-operation layer.
	LayerCommand Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerDiscovery:
		return "DISCOVERY"
	case LayerSession:
		return "SESSION"
	case LayerCommand:
		return "COMMAND"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates a frame was sent or received.
	CategoryFrame Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryRetry indicates a retry attempt.
	CategoryRetry Category = 2
	// CategoryTimeout indicates a receive timeout.
	CategoryTimeout Category = 3
	// CategoryWarning indicates a recoverable protocol anomaly.
	CategoryWarning Category = 4
	// CategoryError indicates an error event.
	CategoryError Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryRetry:
		return "RETRY"
	case CategoryTimeout:
		return "TIMEOUT"
	case CategoryWarning:
		return "WARNING"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw datagram bytes at the transport layer.
type FrameEvent struct {
	// Size is the datagram size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated for large datagrams).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures session and scan lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a session state change.
	StateEntitySession StateEntity = 0
	// StateEntityScan indicates a discovery scan state change.
	StateEntityScan StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityScan:
		return "SCAN"
	default:
		return "UNKNOWN"
	}
}

// RetryEvent captures one attempt of a bounded retry loop.
type RetryEvent struct {
	// Attempt is the 1-based attempt number.
	Attempt int `cbor:"1,keyasint"`

	// Max is the configured attempt budget.
	Max int `cbor:"2,keyasint"`

	// Sequence is the command sequence number, where applicable.
	Sequence *uint8 `cbor:"3,keyasint,omitempty"`

	// Reason the previous attempt failed (empty on the first attempt).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// CommandEvent captures a decoded control operation at the command layer.
type CommandEvent struct {
	// Name is the operation name (e.g. "brightness").
	Name string `cbor:"1,keyasint"`

	// Zone addressed by the operation (0 = all zones).
	Zone uint8 `cbor:"2,keyasint"`

	// LampType byte addressed by the operation.
	LampType uint8 `cbor:"3,keyasint"`

	// Value is the operation parameter, where the operation has one.
	Value *int `cbor:"4,keyasint,omitempty"`

	// Sequence used for the command frame, once assigned.
	Sequence *uint8 `cbor:"5,keyasint,omitempty"`
}

// ErrorEventData captures warnings and errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
