package discovery

import (
	"bytes"
	"net"
	"strconv"
	"time"
)

// Scan timing constants.
const (
	// DefaultBroadcastAddr is the limited broadcast address a scan
	// probes when no narrower destination is configured.
	DefaultBroadcastAddr = "255.255.255.255"

	// DefaultReceiveTimeout is how long a scan waits for a further
	// response before it completes.
	DefaultReceiveTimeout = 1 * time.Second

	// receiveBufferSize fits a discovery response with headroom.
	receiveBufferSize = 128
)

// Bridge describes a bridge located by a scan.
type Bridge struct {
	// Addr is the bridge IPv4 address in dotted form.
	Addr string

	// Port is the bridge control port, taken from the source port of
	// its response and cross-checked against the port the response
	// advertises.
	Port uint16

	// HardwareAddr is the bridge MAC address.
	HardwareAddr net.HardwareAddr
}

// String returns the bridge as "mac at addr:port".
func (b Bridge) String() string {
	return b.HardwareAddr.String() + " at " + net.JoinHostPort(b.Addr, strconv.Itoa(int(b.Port)))
}

// Equal reports whether two bridges describe the same endpoint.
func (b Bridge) Equal(other Bridge) bool {
	return b.Addr == other.Addr &&
		b.Port == other.Port &&
		bytes.Equal(b.HardwareAddr, other.HardwareAddr)
}

// FilterFunc filters scan results. Returning false drops the bridge.
type FilterFunc func(Bridge) bool

// FilterByHardwareAddr returns a filter that matches one specific
// bridge by MAC address.
func FilterByHardwareAddr(addr net.HardwareAddr) FilterFunc {
	return func(b Bridge) bool {
		return bytes.Equal(b.HardwareAddr, addr)
	}
}

// FilterByAddr returns a filter that matches bridges by IP address.
func FilterByAddr(addr string) FilterFunc {
	return func(b Bridge) bool {
		return b.Addr == addr
	}
}
