// Package udp implements UDP receive validation/dispatch-by-port and
// emit with the IPv4 pseudo-header checksum convention (spec.md §4.6).
package udp

import (
	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/network/ipv4"
	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/checksum"
	"github.com/pgbox/vnet/pkg/tcpip/header"
)

// Data is a decoded UDP datagram delivered to the listener registered
// for its destination port.
type Data struct {
	SrcAddr tcpip.IPv4Address
	DstAddr tcpip.IPv4Address
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

// Handler is the UDP layer. Listeners register per destination port
// (e.g. the router's DHCP server on port 67); a datagram for a port with
// no registered listener is logged and dropped.
type Handler struct {
	ipv4  *ipv4.Handler
	log   *logrus.Entry
	ports map[uint16]func(Data)
}

// New constructs a Handler bound to ip and registers it to receive IPv4
// packets carrying UDP.
func New(ip *ipv4.Handler) *Handler {
	h := &Handler{
		ipv4:  ip,
		log:   logrus.WithField("layer", "udp"),
		ports: make(map[uint16]func(Data)),
	}
	ip.OnReceiveFrame(h.handleFrame)
	return h
}

// OnPort registers f as the listener for datagrams addressed to port.
// Only one listener may be registered per port.
func (h *Handler) OnPort(port uint16, f func(Data)) {
	h.ports[port] = f
}

// Reset clears every registered port listener. Used during adapter
// teardown (spec.md §5's "tears down all protocol handlers, clearing
// their subscription lists recursively").
func (h *Handler) Reset() {
	h.ports = make(map[uint16]func(Data))
}

func (h *Handler) handleFrame(pkt []byte) bool {
	p := header.IPv4(pkt)
	if p.Protocol() != header.UDPProtocolNumber {
		return false
	}
	u := header.UDP(p.Payload())
	if len(u) < header.UDPMinimumSize {
		h.log.Warn("dropping short UDP datagram")
		return true
	}
	if int(u.Length()) != len(u) {
		h.log.WithField("length", u.Length()).Warn("dropping UDP datagram whose length field disagrees with the IP payload")
		return true
	}
	if u.Checksum() != 0 && !u.IsChecksumValid(p.SourceAddress(), p.DestinationAddress()) {
		h.log.Warn("dropping UDP datagram with an invalid checksum")
		return true
	}

	dstPort := u.DestinationPort()
	listener, ok := h.ports[dstPort]
	if !ok {
		h.log.WithField("port", dstPort).Debug("no listener for UDP port")
		return true
	}
	listener(Data{
		SrcAddr: p.SourceAddress(),
		DstAddr: p.DestinationAddress(),
		SrcPort: u.SourcePort(),
		DstPort: dstPort,
		Payload: u.Payload(),
	})
	return true
}

// Send builds a UDP datagram around payload, computes its pseudo-header
// checksum, and passes it to the IPv4 layer for emission. A checksum
// that folds to zero is replaced with the all-ones sentinel, per the
// IPv4 convention for disambiguating "no checksum" (spec.md §4.6).
func (h *Handler) Send(srcAddr, dstAddr tcpip.IPv4Address, srcPort, dstPort uint16, payload []byte) {
	length := uint16(header.UDPMinimumSize + len(payload))
	buf := make([]byte, length)
	u := header.UDP(buf)
	u.Encode(&header.UDPFields{SrcPort: srcPort, DstPort: dstPort, Length: length})
	copy(u.Payload(), payload)

	xsum := header.PseudoHeaderChecksum(header.UDPProtocolNumber, srcAddr, dstAddr, length)
	xsum = checksum.Fold(checksum.Checksum(buf, xsum))
	if xsum == 0 {
		xsum = 0xFFFF
	}
	u.SetChecksum(xsum)

	h.ipv4.Send(header.IPv4Fields{
		TTL:      64,
		Protocol: header.UDPProtocolNumber,
		SrcAddr:  srcAddr,
		DstAddr:  dstAddr,
	}, buf)
}
