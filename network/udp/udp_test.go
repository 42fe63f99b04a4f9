package udp

import (
	"testing"

	"github.com/pgbox/vnet/link/ethernet"
	"github.com/pgbox/vnet/network/ipv4"
	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/header"
	"github.com/pgbox/vnet/router"
	"github.com/pgbox/vnet/stack"
)

func testSetup(t *testing.T) (*router.Router, *ethernet.Handler, *ipv4.Handler, *Handler, *[]byte) {
	t.Helper()
	routerMAC := tcpip.MacAddress{0x00, 0x0c, 0x13, 0x37, 0x42, 0x69}
	routerIP, _ := tcpip.ParseIPv4("192.168.13.37")
	mask, _ := tcpip.ParseIPv4("255.255.0.0")
	r := router.New(routerMAC, routerIP, mask)

	var sent []byte
	eth := ethernet.New(stack.SenderFunc[[]byte](func(f []byte) { sent = f }))
	ip := ipv4.New(eth, r)
	u := New(ip)
	return r, eth, ip, u, &sent
}

// udpFrame builds a complete frame with checksum 0, an RFC-768-legal "no
// checksum" datagram that Handler.handleFrame treats as trivially valid.
func udpFrame(t *testing.T, srcMAC, dstMAC tcpip.MacAddress, srcIP, dstIP tcpip.IPv4Address, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	length := uint16(header.UDPMinimumSize + len(payload))
	udpBuf := make([]byte, length)
	u := header.UDP(udpBuf)
	u.Encode(&header.UDPFields{SrcPort: srcPort, DstPort: dstPort, Length: length})
	copy(u.Payload(), payload)

	ipBuf := make([]byte, header.IPv4MinimumSize+len(udpBuf))
	p := header.IPv4(ipBuf)
	p.Encode(&header.IPv4Fields{TTL: 64, Protocol: header.UDPProtocolNumber, SrcAddr: srcIP, DstAddr: dstIP})
	copy(p.Payload(), udpBuf)
	p.SetChecksum(p.CalculateChecksum())

	buf := make([]byte, header.EthernetMinimumSize+len(ipBuf))
	eth := header.Ethernet(buf)
	eth.Encode(&header.EthernetFields{SrcAddr: srcMAC, DstAddr: dstMAC, Type: header.EtherTypeIPv4})
	copy(eth.Payload(), ipBuf)
	return buf
}

func TestHandleFrameDispatchesToRegisteredPort(t *testing.T) {
	r, eth, _, u, _ := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peerIP, _ := tcpip.ParseIPv4("192.168.0.5")

	var got Data
	var count int
	u.OnPort(67, func(d Data) { got = d; count++ })

	frame := udpFrame(t, peerMAC, r.MAC(), peerIP, r.IP(), 68, 67, []byte("dhcp-ish"))
	eth.HandleFrame(frame)

	if count != 1 {
		t.Fatalf("port 67 listener invoked %d times, want 1", count)
	}
	if got.SrcPort != 68 || got.DstPort != 67 || string(got.Payload) != "dhcp-ish" {
		t.Errorf("dispatched data = %+v", got)
	}
}

func TestHandleFrameDropsUnregisteredPort(t *testing.T) {
	r, eth, _, u, _ := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peerIP, _ := tcpip.ParseIPv4("192.168.0.5")

	called := false
	u.OnPort(67, func(Data) { called = true })

	frame := udpFrame(t, peerMAC, r.MAC(), peerIP, r.IP(), 68, 9999, []byte("x"))
	eth.HandleFrame(frame)

	if called {
		t.Errorf("listener for port 67 was invoked for a port-9999 datagram")
	}
}

func TestSendProducesValidChecksum(t *testing.T) {
	r, _, _, u, sent := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peer, _ := r.RegisterDevice(peerMAC)

	u.Send(r.IP(), peer.IP, 12345, 53, []byte("query"))
	if *sent == nil {
		t.Fatalf("Send did not emit a frame")
	}

	ip := header.IPv4(header.Ethernet(*sent).Payload())
	datagram := header.UDP(ip.Payload())
	if !datagram.IsChecksumValid(ip.SourceAddress(), ip.DestinationAddress()) {
		t.Errorf("Send produced a UDP datagram with an invalid checksum")
	}
	if string(datagram.Payload()) != "query" {
		t.Errorf("Payload() = %q, want %q", datagram.Payload(), "query")
	}
}
