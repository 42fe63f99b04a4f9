package tcp

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"time"

	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/header"
)

const (
	// maxSegmentPayload is the largest payload carried by a single
	// data-bearing segment; writes larger than this are split
	// (spec.md §4.8's "payloads larger than 1200 bytes are split").
	maxSegmentPayload = 1200

	// maxRetransmitAttempts is the number of retransmissions attempted
	// before a socket gives up and transitions to CLOSED.
	maxRetransmitAttempts = 10

	// initialRetransmitTimeout is the wait before the first
	// retransmission of an unacknowledged segment.
	initialRetransmitTimeout = 3000 * time.Millisecond

	// retransmitJitterSpan bounds the multiplicative jitter applied to
	// the retransmit timeout on every attempt: 1+random(0, 0.6).
	retransmitJitterSpan = 0.6

	tcpWindowSize = 65535
)

// pendingSegment is an inbound ESTABLISHED-state segment waiting in the
// holding queue for its turn to be delivered in sequence order.
type pendingSegment struct {
	seq  uint32
	data []byte
}

// outstandingSegment is a sent SYN, SYN+ACK, or data segment awaiting
// acknowledgment, tracked by a monotonically increasing id rather than
// object identity (spec.md §9's recommendation for a systems port).
type outstandingSegment struct {
	id      uint64
	seq     uint32
	flags   header.TCPFlags
	data    []byte
	attempt int
	timeout time.Duration
	task    retransmitTask
}

// retransmitTask is the subset of *scheduler.Task a socket needs; it lets
// socket.go stay decoupled from the concrete scheduler type in tests that
// fake it out.
type retransmitTask interface {
	Cancel()
}

// retransmitScheduler is the subset of *scheduler.Scheduler a socket
// needs to schedule retransmissions and the deferred established
// callback, named to avoid colliding with the imported scheduler package
// in manager.go.
type retransmitScheduler interface {
	After(d time.Duration, f func()) retransmitTask
}

// Socket is one TCP connection: a client socket created by Connect, or a
// server socket created by Manager upon accepting an inbound SYN.
type Socket struct {
	manager *Manager
	key     string

	localIP    tcpip.IPv4Address
	localPort  uint16
	remoteIP   tcpip.IPv4Address
	remotePort uint16

	state State
	seq   uint32 // next sequence number this socket will send
	ack   uint32 // next sequence number expected from the peer

	holding              []pendingSegment
	preEstablishedWrites [][]byte
	unacked              []*outstandingSegment
	nextSegID            uint64

	onEstablishedCbs []func()
	onDataCbs        []func([]byte)
	onCloseCbs       []func()
}

// ConnectionString returns the 4-tuple key this socket is registered
// under (spec.md's "connectionString").
func (s *Socket) ConnectionString() string { return s.key }

// IsClosed reports whether the socket has reached CLOSED.
func (s *Socket) IsClosed() bool { return s.state == StateClosed }

// State returns the socket's current state.
func (s *Socket) State() State { return s.state }

// OnEstablished registers f to run once the handshake completes. Per
// spec.md §9, this fires deferred by one scheduler tick so callers have a
// chance to register onData/onClose between accept/connect resolving and
// the first delivery.
func (s *Socket) OnEstablished(f func()) { s.onEstablishedCbs = append(s.onEstablishedCbs, f) }

// OnData registers f to receive each in-order payload delivered on this
// connection.
func (s *Socket) OnData(f func([]byte)) { s.onDataCbs = append(s.onDataCbs, f) }

// OnClose registers f to run when the socket transitions to CLOSED,
// whether from a peer FIN or from retransmission exhaustion.
func (s *Socket) OnClose(f func()) { s.onCloseCbs = append(s.onCloseCbs, f) }

// Write sends data once ESTABLISHED, splitting it into
// maxSegmentPayload-byte segments; before ESTABLISHED it is buffered and
// flushed in order once the handshake completes (spec.md §4.8 "Egress").
func (s *Socket) Write(data []byte) error {
	if s.state == StateClosed {
		return tcpip.ErrInvalidEndpointState
	}
	if s.state != StateEstablished {
		s.preEstablishedWrites = append(s.preEstablishedWrites, data)
		return nil
	}
	if len(s.preEstablishedWrites) != 0 {
		return tcpip.ErrWriteQueueInvariant
	}
	s.sendData(data)
	return nil
}

// Close transitions the socket straight to CLOSED without emitting FIN,
// per spec.md §9's resolved quirk (Non-goals exclude the four-way
// handshake, so this is kept rather than fixed).
func (s *Socket) Close() {
	s.transitionClosed()
}

func (s *Socket) sendData(data []byte) {
	for len(data) > 0 {
		n := len(data)
		if n > maxSegmentPayload {
			n = maxSegmentPayload
		}
		chunk := data[:n]
		data = data[n:]

		seq := s.seq
		s.seq += uint32(n)
		s.sendAndTrack(header.TCPFlagAck, seq, chunk)
	}
}

func (s *Socket) sendSyn() {
	seq := s.seq
	s.seq++
	s.sendAndTrack(header.TCPFlagSyn, seq, nil)
}

func (s *Socket) sendSynAck() {
	seq := s.seq
	s.seq++
	s.sendAndTrack(header.TCPFlagSyn|header.TCPFlagAck, seq, nil)
}

// sendBareAck sends a pure ACK once; spec.md §4.8 is explicit that pure
// ACKs are never retransmitted.
func (s *Socket) sendBareAck() {
	s.manager.sendSegment(s.localIP, s.remoteIP, s.localPort, s.remotePort, s.seq, s.ack, header.TCPFlagAck, nil)
}

func (s *Socket) sendAndTrack(flags header.TCPFlags, seq uint32, payload []byte) {
	out := &outstandingSegment{
		id:      s.nextSegID,
		seq:     seq,
		flags:   flags,
		data:    payload,
		timeout: initialRetransmitTimeout,
	}
	s.nextSegID++
	s.unacked = append(s.unacked, out)

	s.manager.sendSegment(s.localIP, s.remoteIP, s.localPort, s.remotePort, seq, s.ack, flags, payload)
	s.scheduleRetransmit(out)
}

func (s *Socket) scheduleRetransmit(out *outstandingSegment) {
	if out.attempt >= maxRetransmitAttempts {
		s.transitionClosed()
		return
	}
	out.task = s.manager.scheduler.After(out.timeout, func() {
		if s.state == StateClosed || !s.isOutstanding(out.id) {
			return
		}
		out.attempt++
		out.timeout = time.Duration(float64(out.timeout) * (1 + mrand.Float64()*retransmitJitterSpan))
		s.manager.sendSegment(s.localIP, s.remoteIP, s.localPort, s.remotePort, out.seq, s.ack, out.flags, out.data)
		s.scheduleRetransmit(out)
	})
}

func (s *Socket) isOutstanding(id uint64) bool {
	for _, out := range s.unacked {
		if out.id == id {
			return true
		}
	}
	return false
}

// retireUpTo drops every outstanding segment a cumulative peer ack of
// peerAck fully covers. A SYN or FIN consumes one sequence number beyond
// its payload length, matching the seq/ack bookkeeping used when sending
// and receiving them (spec.md §4.8's "cumulative ACK retires all earlier
// segments").
func (s *Socket) retireUpTo(peerAck uint32) {
	kept := s.unacked[:0]
	for _, out := range s.unacked {
		length := uint32(len(out.data))
		if out.flags.Contains(header.TCPFlagSyn) || out.flags.Contains(header.TCPFlagFin) {
			length++
		}
		if peerAck >= out.seq+length {
			out.task.Cancel()
			continue
		}
		kept = append(kept, out)
	}
	s.unacked = kept
}

// handleSegment advances the state machine for one inbound segment
// (spec.md §4.8's transition table).
func (s *Socket) handleSegment(pkt header.TCP) {
	flags := pkt.Flags()

	// "Any state + FIN -> CLOSED immediately" (no four-way handshake).
	if flags.Contains(header.TCPFlagFin) {
		s.transitionClosed()
		return
	}

	switch s.state {
	case StateListen:
		// Hardened per spec.md §9's own recommendation: require SYN set
		// and ACK unset before accepting.
		if flags.Contains(header.TCPFlagSyn) && !flags.Contains(header.TCPFlagAck) {
			s.ack = pkt.SequenceNumber() + 1
			s.state = StateSynReceived
			s.sendSynAck()
		}

	case StateSynSent:
		if flags.Contains(header.TCPFlagSyn) && flags.Contains(header.TCPFlagAck) {
			s.retireUpTo(pkt.AckNumber())
			s.ack = pkt.SequenceNumber() + 1
			s.state = StateEstablished
			s.sendBareAck()
			s.fireEstablished()
		}

	case StateSynReceived:
		if flags.Contains(header.TCPFlagAck) {
			s.retireUpTo(pkt.AckNumber())
			s.state = StateEstablished
			s.fireEstablished()
		}

	case StateEstablished:
		if flags.Contains(header.TCPFlagAck) {
			s.retireUpTo(pkt.AckNumber())
		}
		s.ingest(pkt.SequenceNumber(), pkt.Payload())
	}
}

// ingest appends a segment to the holding queue and drains everything now
// deliverable (spec.md §4.8's "Reliable ingress").
func (s *Socket) ingest(seq uint32, data []byte) {
	s.holding = append(s.holding, pendingSegment{seq: seq, data: append([]byte(nil), data...)})
	s.drainHolding()
}

func (s *Socket) drainHolding() {
	drainedAny := false
	for {
		idx := -1
		for i, p := range s.holding {
			if p.seq > s.ack {
				continue
			}
			if idx == -1 || p.seq < s.holding[idx].seq {
				idx = i
			}
		}
		if idx == -1 {
			break
		}
		next := s.holding[idx]
		s.holding = append(s.holding[:idx], s.holding[idx+1:]...)
		drainedAny = true

		if next.seq < s.ack {
			// Retransmission: already accounted for, no redelivery.
			continue
		}
		s.ack += uint32(len(next.data))
		if len(next.data) > 0 {
			for _, cb := range s.onDataCbs {
				cb(next.data)
			}
		}
	}
	if drainedAny {
		s.sendBareAck()
	}
}

func (s *Socket) fireEstablished() {
	s.manager.scheduler.After(0, func() {
		for _, cb := range s.onEstablishedCbs {
			cb()
		}
		writes := s.preEstablishedWrites
		s.preEstablishedWrites = nil
		for _, data := range writes {
			s.sendData(data)
		}
	})
}

func (s *Socket) transitionClosed() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	for _, out := range s.unacked {
		out.task.Cancel()
	}
	s.unacked = nil
	for _, cb := range s.onCloseCbs {
		cb()
	}
}

// initialSequenceNumber draws a 30-bit cryptographic random value,
// floor-rounded to the nearest 100 to aid human debugging (spec.md
// §4.8's "Initial sequence number").
func initialSequenceNumber() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	v := binary.BigEndian.Uint32(b[:]) & 0x3FFFFFFF
	return v - v%100
}
