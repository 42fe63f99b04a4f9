// Package arp implements the ARP client decoder and the router's ARP
// responder (spec.md §4.3). Both register against the Ethernet layer as
// sibling subprotocols: the responder first, so it can claim and answer
// frames on the router's behalf before the ordinary decoder ever sees
// them (spec.md §4.1's "responder subprotocol" composition).
package arp

import (
	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/link/ethernet"
	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/header"
	"github.com/pgbox/vnet/router"
	"github.com/pgbox/vnet/stack"
)

// Data is the decoded contents of an ARP request or reply, delivered
// upward to subscribers.
type Data struct {
	Op             header.ARPOp
	SenderHardware tcpip.MacAddress
	SenderProtocol tcpip.IPv4Address
	TargetHardware tcpip.MacAddress
	TargetProtocol tcpip.IPv4Address
}

// Handler is the ordinary ARP client decoder: it recognizes EtherTypeARP
// frames, validates and decodes them, and publishes the result upward.
// It always consumes ARP-typed frames, valid or not.
type Handler struct {
	stack.Publisher[Data]

	log *logrus.Entry
}

// New constructs a Handler and registers it with eth.
func New(eth *ethernet.Handler) *Handler {
	h := &Handler{log: logrus.WithField("layer", "arp")}
	eth.OnReceiveFrame(h.handleFrame)
	return h
}

func (h *Handler) handleFrame(frame []byte) bool {
	e := header.Ethernet(frame)
	if e.Type() != header.EtherTypeARP {
		return false
	}
	a := header.ARP(e.Payload())
	if !a.IsValid() {
		h.log.Warn("dropping malformed ARP packet")
		return true
	}
	h.Publish(Data{
		Op:             a.Op(),
		SenderHardware: a.SenderHardwareAddress(),
		SenderProtocol: a.SenderProtocolAddress(),
		TargetHardware: a.TargetHardwareAddress(),
		TargetProtocol: a.TargetProtocolAddress(),
	})
	return true
}

// Responder is the router's ARP responder (spec.md §4.3). It must be
// registered with the Ethernet layer before the ordinary Handler so it
// can claim frames first.
type Responder struct {
	router *router.Router
	eth    *ethernet.Handler
	log    *logrus.Entry
}

// NewResponder constructs a Responder bound to r and registers it with
// eth. Hooks run in registration order, so it runs ahead of any ARP
// decoder registered after it.
func NewResponder(r *router.Router, eth *ethernet.Handler) *Responder {
	resp := &Responder{
		router: r,
		eth:    eth,
		log:    logrus.WithField("layer", "arp-responder"),
	}
	eth.OnReceiveFrame(resp.handleFrame)
	return resp
}

func (r *Responder) handleFrame(frame []byte) bool {
	e := header.Ethernet(frame)
	if e.Type() != header.EtherTypeARP {
		return false
	}
	a := header.ARP(e.Payload())
	if !a.IsValid() {
		return false // let the ordinary decoder log and consume it
	}

	if e.SourceAddress() == r.router.MAC() {
		return true // loopback suppression
	}
	dst := e.DestinationAddress()
	if dst != r.router.MAC() && !dst.IsBroadcast() {
		return false // not addressed to us; not our concern
	}

	queried := a.TargetProtocolAddress()
	device, ok := r.router.GetDeviceByIP(queried)
	if !ok {
		r.log.WithField("ip", queried).Debug("who-has for unknown device, ignoring")
		return true
	}

	reply := make([]byte, header.ARPSize)
	header.ARP(reply).Encode(&header.ARPFields{
		Op:             header.ARPReply,
		SenderHardware: device.MAC,
		SenderProtocol: queried,
		TargetHardware: a.SenderHardwareAddress(),
		TargetProtocol: a.SenderProtocolAddress(),
	})
	r.eth.SendFrame(header.EthernetFields{
		SrcAddr: r.router.MAC(),
		DstAddr: e.SourceAddress(),
		Type:    header.EtherTypeARP,
	}, reply)
	return true
}
