// Package tcp implements the userspace TCP socket state machine:
// handshake, reliable in-order delivery via a per-socket holding queue,
// segmentation, and jittered retransmission (spec.md §4.8).
package tcp

import "fmt"

// State is a TCP socket's position in the (deliberately small) state
// machine spec.md §4.8 describes: no TIME_WAIT, no half-close, no
// simultaneous-open handling beyond what's listed here.
type State int

const (
	StateInit State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateClosed
)

// String renders the state for logging.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// connString builds the connection key from the local side's perspective,
// as spec.md §4.8 requires: "destIp:destPort -> srcIp:srcPort" when read
// off an inbound packet, which is exactly localIP:localPort -> remoteIP:
// remotePort once a socket owns the connection.
func connString(localIP fmt.Stringer, localPort uint16, remoteIP fmt.Stringer, remotePort uint16) string {
	return fmt.Sprintf("%s:%d -> %s:%d", localIP, localPort, remoteIP, remotePort)
}

// listenKey identifies a registered listener by the address/port it was
// bound to.
func listenKey(ip fmt.Stringer, port uint16) string {
	return fmt.Sprintf("%s:%d", ip, port)
}
