package tcp

import (
	"testing"
	"time"

	"github.com/pgbox/vnet/link/ethernet"
	"github.com/pgbox/vnet/network/ipv4"
	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/header"
	"github.com/pgbox/vnet/router"
	"github.com/pgbox/vnet/stack"
)

// fakeTask/fakeScheduler replace the real timer queue in tests so
// retransmission and deferred-callback behavior can be exercised without
// waiting on real wall-clock timeouts.
type fakeTask struct{ cancelled bool }

func (t *fakeTask) Cancel() { t.cancelled = true }

type pendingCall struct {
	f    func()
	task *fakeTask
}

type fakeScheduler struct {
	queue []*pendingCall
}

func (s *fakeScheduler) After(d time.Duration, f func()) retransmitTask {
	t := &fakeTask{}
	s.queue = append(s.queue, &pendingCall{f: f, task: t})
	return t
}

// fireAll runs every queued call in FIFO order, including calls newly
// queued by callbacks that run during this pass (retransmission
// reschedules itself), stopping once the queue is empty.
func (s *fakeScheduler) fireAll() {
	for len(s.queue) > 0 {
		c := s.queue[0]
		s.queue = s.queue[1:]
		if !c.task.cancelled {
			c.f()
		}
	}
}

func testSetup(t *testing.T) (*router.Router, *ethernet.Handler, *Manager, *fakeScheduler, *[][]byte) {
	t.Helper()
	routerMAC := tcpip.MacAddress{0x00, 0x0c, 0x13, 0x37, 0x42, 0x69}
	routerIP, _ := tcpip.ParseIPv4("192.168.13.37")
	mask, _ := tcpip.ParseIPv4("255.255.0.0")
	r := router.New(routerMAC, routerIP, mask)

	var sent [][]byte
	eth := ethernet.New(stack.SenderFunc[[]byte](func(f []byte) { sent = append(sent, f) }))
	ip := ipv4.New(eth, r)

	sched := &fakeScheduler{}
	m := New(ip, nil)
	m.scheduler = sched
	return r, eth, m, sched, &sent
}

func segmentFrame(t *testing.T, srcMAC, dstMAC tcpip.MacAddress, srcIP, dstIP tcpip.IPv4Address, srcPort, dstPort uint16, seq, ack uint32, flags header.TCPFlags, payload []byte) []byte {
	t.Helper()
	totalLen := uint16(header.TCPMinimumSize + len(payload))
	tcpBuf := make([]byte, totalLen)
	tcpHdr := header.TCP(tcpBuf)
	tcpHdr.Encode(&header.TCPFields{
		SrcPort:    srcPort,
		DstPort:    dstPort,
		SeqNum:     seq,
		AckNum:     ack,
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: tcpWindowSize,
	})
	copy(tcpHdr.Payload(), payload)
	tcpHdr.SetChecksum(tcpHdr.CalculateChecksum(srcIP, dstIP, totalLen))

	ipBuf := make([]byte, header.IPv4MinimumSize+len(tcpBuf))
	p := header.IPv4(ipBuf)
	p.Encode(&header.IPv4Fields{TTL: 64, Protocol: header.TCPProtocolNumber, SrcAddr: srcIP, DstAddr: dstIP})
	copy(p.Payload(), tcpBuf)
	p.SetChecksum(p.CalculateChecksum())

	buf := make([]byte, header.EthernetMinimumSize+len(ipBuf))
	e := header.Ethernet(buf)
	e.Encode(&header.EthernetFields{SrcAddr: srcMAC, DstAddr: dstMAC, Type: header.EtherTypeIPv4})
	copy(e.Payload(), ipBuf)
	return buf
}

func decodeSegment(frame []byte) (header.IPv4, header.TCP) {
	p := header.IPv4(header.Ethernet(frame).Payload())
	return p, header.TCP(p.Payload())
}

func last(frames [][]byte) []byte {
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

func TestHandshakeAndData(t *testing.T) {
	r, eth, m, sched, sent := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peer, _ := r.RegisterDevice(peerMAC)

	sock, err := m.Connect(r.IP(), peer.IP, 12345, 5432)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("Connect sent %d frames, want 1", len(*sent))
	}
	_, synHdr := decodeSegment(last(*sent))
	if !synHdr.Flags().Contains(header.TCPFlagSyn) || synHdr.Flags().Contains(header.TCPFlagAck) {
		t.Fatalf("initial segment flags = %v, want SYN only", synHdr.Flags())
	}
	clientISN := synHdr.SequenceNumber()

	var established bool
	var delivered []byte
	sock.OnEstablished(func() { established = true })
	sock.OnData(func(b []byte) { delivered = append(delivered, b...) })

	serverISN := uint32(9000)
	synAck := segmentFrame(t, peerMAC, r.MAC(), peer.IP, r.IP(), 5432, 12345, serverISN, clientISN+1, header.TCPFlagSyn|header.TCPFlagAck, nil)
	eth.HandleFrame(synAck)

	_, ackHdr := decodeSegment(last(*sent))
	if ackHdr.Flags() != header.TCPFlagAck {
		t.Fatalf("post-SYNACK segment flags = %v, want bare ACK", ackHdr.Flags())
	}
	sched.fireAll() // drain the deferred onEstablished tick
	if !established {
		t.Fatalf("onEstablished callback did not fire")
	}
	if sock.State() != StateEstablished {
		t.Fatalf("state = %v, want ESTABLISHED", sock.State())
	}

	if err := sock.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	_, dataHdr := decodeSegment(last(*sent))
	if !dataHdr.Flags().Contains(header.TCPFlagAck) {
		t.Errorf("data segment flags = %v, want ACK set", dataHdr.Flags())
	}
	if string(dataHdr.Payload()) != "hello" {
		t.Errorf("data segment payload = %q, want %q", dataHdr.Payload(), "hello")
	}

	// Peer ACKs the data; no further retransmission should be pending.
	dataSeq := dataHdr.SequenceNumber()
	coveringAck := segmentFrame(t, peerMAC, r.MAC(), peer.IP, r.IP(), 5432, 12345, serverISN, dataSeq+uint32(len("hello")), header.TCPFlagAck, nil)
	eth.HandleFrame(coveringAck)

	if len(sock.unacked) != 0 {
		t.Errorf("unacked list not empty after a covering ACK")
	}

	// Peer sends data back; it should be delivered in order and ACKed.
	// Their SYN consumed serverISN, so their first data byte starts at
	// serverISN+1, matching the ack this socket already advanced to.
	peerData := segmentFrame(t, peerMAC, r.MAC(), peer.IP, r.IP(), 5432, 12345, serverISN+1, clientISN+1, header.TCPFlagAck, []byte("world"))
	eth.HandleFrame(peerData)
	if string(delivered) != "world" {
		t.Errorf("delivered = %q, want %q", delivered, "world")
	}
}

func TestSegmentationSplitsAt1200Bytes(t *testing.T) {
	r, eth, m, sched, sent := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peer, _ := r.RegisterDevice(peerMAC)

	sock, _ := m.Connect(r.IP(), peer.IP, 1, 2)
	_, synHdr := decodeSegment(last(*sent))
	clientISN := synHdr.SequenceNumber()

	synAck := segmentFrame(t, peerMAC, r.MAC(), peer.IP, r.IP(), 2, 1, 9000, clientISN+1, header.TCPFlagSyn|header.TCPFlagAck, nil)
	eth.HandleFrame(synAck)
	sched.fireAll()

	before := len(*sent)
	payload := make([]byte, 2500)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := sock.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	segments := (*sent)[before:]

	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	wantLens := []int{1200, 1200, 100}
	var prevSeq uint32
	for i, frame := range segments {
		_, hdr := decodeSegment(frame)
		if len(hdr.Payload()) != wantLens[i] {
			t.Errorf("segment %d payload length = %d, want %d", i, len(hdr.Payload()), wantLens[i])
		}
		if i > 0 && hdr.SequenceNumber()-prevSeq != uint32(wantLens[i-1]) {
			t.Errorf("segment %d seq delta = %d, want %d", i, hdr.SequenceNumber()-prevSeq, wantLens[i-1])
		}
		prevSeq = hdr.SequenceNumber()
	}
}

func TestRetransmissionGivesUpAfterTenAttempts(t *testing.T) {
	r, _, m, sched, sent := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peer, _ := r.RegisterDevice(peerMAC)

	sock, _ := m.Connect(r.IP(), peer.IP, 1, 2)
	if len(*sent) != 1 {
		t.Fatalf("Connect sent %d frames, want 1", len(*sent))
	}

	var closed bool
	sock.OnClose(func() { closed = true })

	sched.fireAll()

	// The initial send plus 10 retransmissions.
	if len(*sent) != 11 {
		t.Errorf("total SYN transmissions = %d, want 11 (1 initial + 10 retries)", len(*sent))
	}
	if sock.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after exhausting retransmissions", sock.State())
	}
	if !closed {
		t.Errorf("onClose callback did not fire")
	}
}

func TestIdempotentAckOnReplayedSegment(t *testing.T) {
	r, eth, m, sched, sent := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peer, _ := r.RegisterDevice(peerMAC)

	sock, _ := m.Connect(r.IP(), peer.IP, 1, 2)
	_, synHdr := decodeSegment(last(*sent))
	clientISN := synHdr.SequenceNumber()
	synAck := segmentFrame(t, peerMAC, r.MAC(), peer.IP, r.IP(), 2, 1, 9000, clientISN+1, header.TCPFlagSyn|header.TCPFlagAck, nil)
	eth.HandleFrame(synAck)
	sched.fireAll()

	var deliveries int
	sock.OnData(func([]byte) { deliveries++ })

	// The peer's SYN consumed seq 9000, so its first data byte is at 9001.
	frame := segmentFrame(t, peerMAC, r.MAC(), peer.IP, r.IP(), 2, 1, 9001, clientISN+1, header.TCPFlagAck, []byte("x"))
	eth.HandleFrame(frame)
	eth.HandleFrame(frame) // replay

	if deliveries != 1 {
		t.Errorf("onData invoked %d times for a replayed segment, want 1", deliveries)
	}
}

func TestListenAcceptsAndSocketKeyMatchesInboundPackets(t *testing.T) {
	r, eth, m, _, sent := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peer, _ := r.RegisterDevice(peerMAC)

	var accepted *Socket
	if err := m.Listen(r.IP(), 5432, func(s *Socket) { accepted = s }); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	syn := segmentFrame(t, peerMAC, r.MAC(), peer.IP, r.IP(), 4000, 5432, 500, 0, header.TCPFlagSyn, nil)
	eth.HandleFrame(syn)

	if accepted == nil {
		t.Fatalf("listener was not invoked for inbound SYN")
	}
	if accepted.State() != StateSynReceived {
		t.Fatalf("accepted socket state = %v, want SYN_RECEIVED", accepted.State())
	}
	wantKey := connString(r.IP(), uint16(5432), peer.IP, uint16(4000))
	if accepted.ConnectionString() != wantKey {
		t.Errorf("ConnectionString() = %q, want %q", accepted.ConnectionString(), wantKey)
	}
	if m.sockets[wantKey] != accepted {
		t.Errorf("socket registry key %q does not map to the accepted socket", wantKey)
	}
	if len(*sent) != 1 {
		t.Fatalf("accepting the SYN sent %d frames, want 1 (SYN+ACK)", len(*sent))
	}

	if err := m.Listen(r.IP(), 5432, func(*Socket) {}); err == nil {
		t.Errorf("second Listen on the same address/port did not error")
	}
}

func TestConnectDuplicateConnectionErrors(t *testing.T) {
	r, _, m, _, _ := testSetup(t)
	peerMAC := tcpip.MacAddress{1, 2, 3, 4, 5, 6}
	peer, _ := r.RegisterDevice(peerMAC)

	if _, err := m.Connect(r.IP(), peer.IP, 1, 2); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	if _, err := m.Connect(r.IP(), peer.IP, 1, 2); err != tcpip.ErrDuplicateConnection {
		t.Errorf("second Connect() error = %v, want ErrDuplicateConnection", err)
	}
}
