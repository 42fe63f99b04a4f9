// Package icmp implements ICMP echo request/reply: a ping server bound to
// a configured address, and an outbound ping() that resolves a future
// when the matching reply arrives (spec.md §4.5).
package icmp

import (
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/network/ipv4"
	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/header"
	"github.com/pgbox/vnet/stack"
)

// Data is a decoded ICMP message delivered upward: every echo message
// that isn't a ping-server request and isn't the resolution of an
// outstanding ping.
type Data struct {
	SrcAddr  tcpip.IPv4Address
	DstAddr  tcpip.IPv4Address
	Type     header.ICMPv4Type
	Code     byte
	Ident    uint16
	Sequence uint16
	Payload  []byte
}

// Handler is the ICMP layer.
type Handler struct {
	stack.Publisher[Data]

	ipv4         *ipv4.Handler
	pingServerIP tcpip.IPv4Address
	log          *logrus.Entry

	mu      sync.Mutex
	waiters map[uint32]chan []byte
}

// New constructs a Handler bound to ip and registers it to receive IPv4
// packets carrying ICMP. pingServerIP is the address echo requests must
// target to be answered by the synthetic ping server (spec.md §4.5).
func New(ip *ipv4.Handler, pingServerIP tcpip.IPv4Address) *Handler {
	h := &Handler{
		ipv4:         ip,
		pingServerIP: pingServerIP,
		log:          logrus.WithField("layer", "icmp"),
		waiters:      make(map[uint32]chan []byte),
	}
	ip.OnReceiveFrame(h.handleFrame)
	return h
}

func (h *Handler) handleFrame(pkt []byte) bool {
	p := header.IPv4(pkt)
	if p.Protocol() != header.ICMPv4ProtocolNumber {
		return false
	}
	icmp := header.ICMPv4(p.Payload())
	if len(icmp) < header.ICMPv4MinimumSize {
		h.log.Warn("dropping short ICMP message")
		return true
	}
	if header.ICMPv4Checksum(icmp) != icmp.Checksum() {
		h.log.Warn("dropping ICMP message with an invalid checksum")
		return true
	}

	switch icmp.Type() {
	case header.ICMPv4Echo:
		if p.DestinationAddress() == h.pingServerIP {
			h.reply(p.SourceAddress(), p.DestinationAddress(), icmp)
			return true
		}
	case header.ICMPv4EchoReply:
		key := uint32(icmp.Ident())<<16 | uint32(icmp.Sequence())
		h.mu.Lock()
		waiter, ok := h.waiters[key]
		if ok {
			delete(h.waiters, key)
		}
		h.mu.Unlock()
		if ok {
			waiter <- append([]byte(nil), icmp.Payload()...)
			close(waiter)
			return true
		}
	}

	h.Publish(Data{
		SrcAddr:  p.SourceAddress(),
		DstAddr:  p.DestinationAddress(),
		Type:     icmp.Type(),
		Code:     icmp.Code(),
		Ident:    icmp.Ident(),
		Sequence: icmp.Sequence(),
		Payload:  icmp.Payload(),
	})
	return true
}

// reply synthesizes an echo reply to a ping-server request, carrying the
// same identifier, sequence, and payload as the request.
func (h *Handler) reply(requesterIP, serverIP tcpip.IPv4Address, req header.ICMPv4) {
	payload := req.Payload()
	buf := make([]byte, header.ICMPv4MinimumSize+len(payload))
	msg := header.ICMPv4(buf)
	msg.Encode(&header.ICMPv4Fields{
		Type:     header.ICMPv4EchoReply,
		Code:     0,
		Ident:    req.Ident(),
		Sequence: req.Sequence(),
	})
	copy(msg.Payload(), payload)
	msg.SetChecksum(header.ICMPv4Checksum(msg))

	h.ipv4.Send(header.IPv4Fields{
		TTL:      64,
		Protocol: header.ICMPv4ProtocolNumber,
		SrcAddr:  serverIP,
		DstAddr:  requesterIP,
	}, buf)
}

// Ping sends an echo request from srcIP to destIP and returns a channel
// that receives the reply payload once the matching echo reply arrives.
// The channel is closed after delivering its one value.
func (h *Handler) Ping(srcIP, destIP tcpip.IPv4Address, payload []byte) <-chan []byte {
	key := rand.Uint32()
	ident := uint16(key >> 16)
	sequence := uint16(key)

	ch := make(chan []byte, 1)
	h.mu.Lock()
	h.waiters[key] = ch
	h.mu.Unlock()

	buf := make([]byte, header.ICMPv4MinimumSize+len(payload))
	msg := header.ICMPv4(buf)
	msg.Encode(&header.ICMPv4Fields{
		Type:     header.ICMPv4Echo,
		Code:     0,
		Ident:    ident,
		Sequence: sequence,
	})
	copy(msg.Payload(), payload)
	msg.SetChecksum(header.ICMPv4Checksum(msg))

	h.ipv4.Send(header.IPv4Fields{
		TTL:      64,
		Protocol: header.ICMPv4ProtocolNumber,
		SrcAddr:  srcIP,
		DstAddr:  destIP,
	}, buf)

	return ch
}
