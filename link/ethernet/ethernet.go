// Package ethernet implements the link layer: frame validation, VLAN-tag
// dropping, and dispatch to the subprotocols registered against it
// (spec.md §4.2).
package ethernet

import (
	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/pkg/tcpip/header"
	"github.com/pgbox/vnet/stack"
)

// Handler is the Ethernet layer. Subprotocols (ARP, IPv4) register
// themselves with OnReceiveFrame; each hook receives the full raw frame
// and decides for itself, from header.Ethernet.Type, whether to consume
// it. The first hook to report consumed=true stops dispatch at this
// layer, per the stack package's composition rule.
type Handler struct {
	stack.Dispatcher[[]byte]

	send stack.Sender[[]byte]
	log  *logrus.Entry
}

// New constructs a Handler that sends outbound frames with send (typically
// the adapter's wire/bus sender).
func New(send stack.Sender[[]byte]) *Handler {
	return &Handler{
		send: send,
		log:  logrus.WithField("layer", "ethernet"),
	}
}

// HandleFrame parses frame only far enough to check its length and
// ethertype, then offers it to registered subprotocols. No frame is ever
// dropped for being short past the Ethernet header; readers read what
// they need (spec.md §4.2).
func (h *Handler) HandleFrame(frame []byte) {
	if len(frame) < header.EthernetMinimumSize {
		h.log.WithField("len", len(frame)).Warn("dropping frame shorter than an ethernet header")
		return
	}
	eth := header.Ethernet(frame)
	if eth.Type().IsVLANTag() {
		h.log.WithField("tpid", eth.Type()).Debug("dropping VLAN-tagged frame")
		return
	}
	if !h.Dispatch(frame) {
		h.log.WithField("ethertype", eth.Type()).Debug("no subprotocol consumed frame")
	}
}

// SendFrame encodes an Ethernet header around payload and sends it
// downward. Subprotocols call this rather than constructing frames
// themselves.
func (h *Handler) SendFrame(fields header.EthernetFields, payload []byte) {
	buf := make([]byte, header.EthernetMinimumSize+len(payload))
	eth := header.Ethernet(buf)
	eth.Encode(&fields)
	copy(eth.Payload(), payload)
	h.send.SendFrame(buf)
}
