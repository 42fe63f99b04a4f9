// Package ipv4 implements IPv4 receive validation/dispatch and emit with
// router-resolved next-hop MAC addressing (spec.md §4.4).
package ipv4

import (
	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/link/ethernet"
	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/header"
	"github.com/pgbox/vnet/router"
	"github.com/pgbox/vnet/stack"
)

// Handler is the IPv4 layer. Subprotocols (ICMP, UDP, TCP) register
// against it with OnReceiveFrame, receiving the raw IPv4 packet and
// deciding for themselves, from header.IPv4.Protocol, whether to
// consume it.
type Handler struct {
	stack.Dispatcher[[]byte]

	eth    *ethernet.Handler
	router *router.Router
	log    *logrus.Entry
}

// New constructs a Handler bound to eth and r and registers it with eth.
func New(eth *ethernet.Handler, r *router.Router) *Handler {
	h := &Handler{
		eth:    eth,
		router: r,
		log:    logrus.WithField("layer", "ipv4"),
	}
	eth.OnReceiveFrame(h.handleFrame)
	return h
}

func (h *Handler) handleFrame(frame []byte) bool {
	e := header.Ethernet(frame)
	if e.Type() != header.EtherTypeIPv4 {
		return false
	}
	p := header.IPv4(e.Payload())
	if !p.IsValid() {
		h.log.Warn("dropping IPv4 packet with options, fragmentation, or a bad version field")
		return true
	}
	if !p.IsChecksumValid() {
		h.log.Warn("dropping IPv4 packet with an invalid header checksum")
		return true
	}
	if !h.Dispatch([]byte(p)) {
		h.log.WithField("protocol", p.Protocol()).Debug("no subprotocol consumed IPv4 packet")
	}
	return true
}

// Send builds an IPv4 header with a fixed 20-byte length and zero
// identification around payload, resolves the destination MAC via the
// router, and sends the packet. fields.TotalLength is overwritten.
//
// An unresolved destination is an invariant violation, not an ordinary
// drop: this stack only ever addresses devices the router already knows
// about, so failing to resolve one means a caller passed a destination
// it never should have (spec.md §4.4).
func (h *Handler) Send(fields header.IPv4Fields, payload []byte) {
	fields.TotalLength = uint16(header.IPv4MinimumSize + len(payload))

	buf := make([]byte, fields.TotalLength)
	p := header.IPv4(buf)
	p.Encode(&fields)
	copy(p.Payload(), payload)
	p.SetChecksum(p.CalculateChecksum())

	dstMAC := tcpip.BroadcastMac
	if !fields.DstAddr.IsBroadcast() {
		device, ok := h.router.GetDeviceByIP(fields.DstAddr)
		if !ok {
			h.log.WithField("dst", fields.DstAddr).Panic("no device known for IPv4 destination")
		}
		dstMAC = device.MAC
	}

	h.eth.SendFrame(header.EthernetFields{
		SrcAddr: h.router.MAC(),
		DstAddr: dstMAC,
		Type:    header.EtherTypeIPv4,
	}, buf)
}
