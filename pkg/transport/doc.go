// Package transport provides the UDP datagram endpoint the bridge
// protocol runs over.
//
//	┌───────────────────────────────────┐
//	│     Protocol frames (pkg/wire)    │
//	├───────────────────────────────────┤
//	│       One datagram per frame      │
//	├───────────────────────────────────┤
//	│             UDP/IPv4              │
//	└───────────────────────────────────┘
//
// # Contract
//
// A Conn supports targeted sends, limited-broadcast sends, and a
// blocking receive bounded by a per-call timeout. There is no framing
// layer: every protocol frame is exactly one datagram, and every
// datagram holds exactly one frame. Go sockets permit broadcast sends
// by default, so a single endpoint serves both discovery and session
// traffic.
//
// # Pacing
//
// Bridges drop datagrams that arrive back-to-back. Every send is
// therefore followed by a fixed inter-frame delay (default 75 ms),
// applied by the endpoint itself so that discovery probes and session
// commands are paced alike.
package transport
