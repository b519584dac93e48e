// Package discovery locates bridges on the local network.
//
// A scan broadcasts the fixed discovery request to the control port
// and collects responses until no bridge answers within the receive
// timeout. Each response carries the bridge hardware address and
// repeats the control port; a response advertising a port other than
// the one it was sent from is dropped with a warning, everything else
// becomes a Bridge.
//
//	scanner := discovery.NewScanner(discovery.Config{})
//	bridges, err := scanner.Scan(ctx)
//
// Filters narrow a scan to known hardware:
//
//	discovery.Config{Filter: discovery.FilterByHardwareAddr(mac)}
package discovery
