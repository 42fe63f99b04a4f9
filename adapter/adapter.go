// Package adapter wires the byte bus (the emulator's virtual NIC) to the
// constructed protocol tree — Ethernet, ARP, IPv4, ICMP, UDP/DHCP, TCP —
// and owns the stack's single-threaded event loop, lifecycle, and packet
// capture (spec.md §4.10).
package adapter

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/internal/scheduler"
	"github.com/pgbox/vnet/link/ethernet"
	"github.com/pgbox/vnet/network/arp"
	"github.com/pgbox/vnet/network/icmp"
	"github.com/pgbox/vnet/network/ipv4"
	"github.com/pgbox/vnet/network/udp"
	"github.com/pgbox/vnet/pkg/dhcp"
	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/header"
	"github.com/pgbox/vnet/router"
	"github.com/pgbox/vnet/stack"
	"github.com/pgbox/vnet/transport/tcp"
)

// Config is the adapter's fixed network identity (spec.md §4.10).
type Config struct {
	RouterMAC    tcpip.MacAddress
	RouterIP     tcpip.IPv4Address
	SubnetMask   tcpip.IPv4Address
	PingServerIP tcpip.IPv4Address
}

// DefaultConfig returns the fixed configuration spec.md §4.10 specifies:
// router MAC 00:0C:13:37:42:69, router IP 192.168.13.37, subnet
// 255.255.0.0, ICMP ping-server 192.168.13.37.
func DefaultConfig() Config {
	routerIP, _ := tcpip.ParseIPv4("192.168.13.37")
	mask, _ := tcpip.ParseIPv4("255.255.0.0")
	return Config{
		RouterMAC:    tcpip.MacAddress{0x00, 0x0C, 0x13, 0x37, 0x42, 0x69},
		RouterIP:     routerIP,
		SubnetMask:   mask,
		PingServerIP: routerIP,
	}
}

// Bus is the host-provided byte bus the adapter is wired to (spec.md §6):
// RegisterSend subscribes handler to every frame the emulator's NIC
// transmits ("net0-send"), and Send injects a frame for the emulator's
// NIC to receive ("net0-receive"). A real emulator NIC and a test double
// both satisfy it without the adapter knowing which it has.
type Bus interface {
	RegisterSend(handler func(frame []byte))
	Send(frame []byte)
}

// Adapter is the top-level object owning the bus handle and the
// constructed protocol tree (glossary's "Adapter"). HandleInbound, the
// upward socket API, and the Run event loop must all be driven from the
// same goroutine: scheduling is single-threaded cooperative, and crossing
// goroutines within one adapter is undefined (spec.md §5).
type Adapter struct {
	cfg Config

	Router   *router.Router
	Ethernet *ethernet.Handler
	IPv4     *ipv4.Handler
	ICMP     *icmp.Handler
	UDP      *udp.Handler
	TCP      *tcp.Manager

	arpHandler *arp.Handler
	dhcpServer *dhcp.Server
	scheduler  *scheduler.Scheduler

	bus     Bus
	capture *pcapRecorder

	destroyed bool
	log       *logrus.Entry
}

// New constructs the full protocol tree wired per cfg, registers itself
// with bus, and starts the scheduler daemon.
func New(cfg Config, bus Bus) *Adapter {
	a := &Adapter{
		cfg:       cfg,
		Router:    router.New(cfg.RouterMAC, cfg.RouterIP, cfg.SubnetMask),
		scheduler: scheduler.New(),
		bus:       bus,
		log:       logrus.WithField("component", "adapter"),
	}

	a.Ethernet = ethernet.New(stack.SenderFunc[[]byte](a.sendOutbound))
	a.Ethernet.OnReceiveFrame(a.captureFrame)
	a.Ethernet.OnReceiveFrame(blackholeIPv6)

	arp.NewResponder(a.Router, a.Ethernet)
	a.arpHandler = arp.New(a.Ethernet)

	a.IPv4 = ipv4.New(a.Ethernet, a.Router)
	a.ICMP = icmp.New(a.IPv4, cfg.PingServerIP)
	a.UDP = udp.New(a.IPv4)
	a.dhcpServer = dhcp.NewServer(cfg.RouterMAC, cfg.RouterIP, cfg.SubnetMask, a.Router.AsDHCPRegistry())
	a.UDP.OnPort(dhcp.ServerPort, a.handleDHCP)
	a.TCP = tcp.New(a.IPv4, a.scheduler)

	bus.RegisterSend(a.HandleInbound)
	return a
}

// HandleInbound delivers bytes the bus received on "net0-send" — frames
// the emulator's NIC transmitted — to the top-level frame dispatcher
// (spec.md §4.10, §6).
func (a *Adapter) HandleInbound(frame []byte) {
	if a.destroyed {
		return
	}
	a.Ethernet.HandleFrame(frame)
}

// sendOutbound is the Ethernet layer's downward Sender. Every frame this
// stack emits is written to the bus *and* looped back into the local
// dispatcher, so local clients (the TCP manager, the ping server) observe
// their own emissions the same way bus-arrived traffic is observed
// (spec.md §4.10).
func (a *Adapter) sendOutbound(frame []byte) {
	if a.bus != nil {
		a.bus.Send(frame)
	}
	a.Ethernet.HandleFrame(frame)
}

// handleDHCP answers a DHCP request arriving on UDP port 67 and broadcasts
// any OFFER/ACK reply, per spec.md §4.7's "returns the reply message to
// broadcast".
func (a *Adapter) handleDHCP(d udp.Data) {
	reply := a.dhcpServer.Handle(dhcp.Message(d.Payload))
	if reply == nil {
		return
	}
	a.UDP.Send(a.cfg.RouterIP, tcpip.IPv4Broadcast, dhcp.ServerPort, dhcp.ClientPort, reply)
}

// blackholeIPv6 silently consumes every IPv6 frame; this stack implements
// only IPv4 (spec.md §4.10).
func blackholeIPv6(frame []byte) bool {
	return header.Ethernet(frame).Type() == header.EtherTypeIPv6
}

// Run drains the scheduler's due callbacks — TCP retransmissions and
// deferred onEstablished fires — until ctx is cancelled. It must run on
// the same goroutine that calls HandleInbound and every upward socket
// operation (spec.md §5).
func (a *Adapter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-a.scheduler.Run():
			f()
		}
	}
}

// Destroy tears down every protocol handler's subscription list,
// recursively, clears the inbound callback list, and releases the bus
// reference. HandleInbound becomes a no-op; any other subsequent
// operation on the adapter is a programmer error (spec.md §5).
func (a *Adapter) Destroy() {
	if a.destroyed {
		return
	}
	a.destroyed = true
	a.scheduler.Stop()
	a.bus = nil
	a.capture = nil

	a.IPv4.Reset()
	a.arpHandler.Reset()
	a.ICMP.Reset()
	a.UDP.Reset()
	a.TCP.Reset()
	a.Ethernet.Reset()
}
