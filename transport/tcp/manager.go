package tcp

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/internal/scheduler"
	"github.com/pgbox/vnet/network/ipv4"
	"github.com/pgbox/vnet/pkg/tcpip"
	"github.com/pgbox/vnet/pkg/tcpip/header"
)

// schedulerAdapter narrows *scheduler.Scheduler to retransmitScheduler so
// sockets depend on an interface rather than the concrete timer queue.
type schedulerAdapter struct {
	sched *scheduler.Scheduler
}

func (a schedulerAdapter) After(d time.Duration, f func()) retransmitTask {
	return a.sched.After(d, f)
}

// Manager is the TCP layer: the connection registry and listener table
// described in spec.md §4.8's "Registration and dispatch", plus the
// upward connect/listen/listenExact API of spec.md §6.
type Manager struct {
	ipv4      *ipv4.Handler
	scheduler retransmitScheduler
	log       *logrus.Entry

	sockets   map[string]*Socket
	listeners map[string]func(*Socket)
}

// New constructs a Manager bound to ip and registers it to receive IPv4
// packets carrying TCP. sched backs retransmission timers and the
// deferred onEstablished callback.
func New(ip *ipv4.Handler, sched *scheduler.Scheduler) *Manager {
	m := &Manager{
		ipv4:      ip,
		scheduler: schedulerAdapter{sched: sched},
		log:       logrus.WithField("layer", "tcp"),
		sockets:   make(map[string]*Socket),
		listeners: make(map[string]func(*Socket)),
	}
	ip.OnReceiveFrame(m.handleFrame)
	return m
}

func (m *Manager) newSocket(localIP tcpip.IPv4Address, localPort uint16, remoteIP tcpip.IPv4Address, remotePort uint16) *Socket {
	return &Socket{
		manager:    m,
		key:        connString(localIP, localPort, remoteIP, remotePort),
		localIP:    localIP,
		localPort:  localPort,
		remoteIP:   remoteIP,
		remotePort: remotePort,
		seq:        initialSequenceNumber(),
	}
}

// Connect creates a client socket, registers it, and emits the initial
// SYN (INIT → SYN_SENT, spec.md §4.8).
func (m *Manager) Connect(srcIP, destIP tcpip.IPv4Address, srcPort, destPort uint16) (*Socket, error) {
	key := connString(srcIP, srcPort, destIP, destPort)
	if _, exists := m.sockets[key]; exists {
		return nil, tcpip.ErrDuplicateConnection
	}
	sock := m.newSocket(srcIP, srcPort, destIP, destPort)
	m.sockets[key] = sock
	sock.state = StateSynSent
	sock.sendSyn()
	return sock, nil
}

// Listen registers accept to be invoked, with a freshly created LISTEN
// socket, whenever an inbound SYN arrives for ip:port with no existing
// matching connection. At most one listener may be registered per
// address/port (spec.md §6).
func (m *Manager) Listen(ip tcpip.IPv4Address, port uint16, accept func(*Socket)) error {
	lk := listenKey(ip, port)
	if _, exists := m.listeners[lk]; exists {
		return tcpip.ErrDuplicateListener
	}
	m.listeners[lk] = accept
	return nil
}

// ListenExact pre-registers a server socket for one specific peer,
// bypassing the general listener table (spec.md §6's "listenExact").
func (m *Manager) ListenExact(serverIP, clientIP tcpip.IPv4Address, serverPort, clientPort uint16) (*Socket, error) {
	key := connString(serverIP, serverPort, clientIP, clientPort)
	if _, exists := m.sockets[key]; exists {
		return nil, tcpip.ErrDuplicateConnection
	}
	sock := m.newSocket(serverIP, serverPort, clientIP, clientPort)
	sock.state = StateListen
	m.sockets[key] = sock
	return sock, nil
}

func (m *Manager) handleFrame(pkt []byte) bool {
	p := header.IPv4(pkt)
	if p.Protocol() != header.TCPProtocolNumber {
		return false
	}
	t := header.TCP(p.Payload())
	if len(t) < header.TCPMinimumSize || int(t.DataOffset()) > len(t) {
		m.log.Warn("dropping short TCP segment")
		return true
	}
	if !t.IsChecksumValid(p.SourceAddress(), p.DestinationAddress(), uint16(len(t))) {
		m.log.Warn("dropping TCP segment with an invalid checksum")
		return true
	}

	localIP, localPort := p.DestinationAddress(), t.DestinationPort()
	remoteIP, remotePort := p.SourceAddress(), t.SourcePort()
	key := connString(localIP, localPort, remoteIP, remotePort)

	sock, ok := m.sockets[key]
	if !ok || sock.IsClosed() {
		accept, ok := m.listeners[listenKey(localIP, localPort)]
		if !ok {
			m.log.WithFields(logrus.Fields{"local": key}).Debug("no socket or listener for inbound TCP segment")
			return true
		}
		sock = m.newSocket(localIP, localPort, remoteIP, remotePort)
		sock.state = StateListen
		m.sockets[key] = sock
		accept(sock)
	}
	sock.handleSegment(t)
	return true
}

// Reset clears the connection registry and listener table. Used during
// adapter teardown (spec.md §5's "tears down all protocol handlers,
// clearing their subscription lists recursively").
func (m *Manager) Reset() {
	m.sockets = make(map[string]*Socket)
	m.listeners = make(map[string]func(*Socket))
}

func (m *Manager) sendSegment(localIP, remoteIP tcpip.IPv4Address, localPort, remotePort uint16, seq, ack uint32, flags header.TCPFlags, payload []byte) {
	totalLen := uint16(header.TCPMinimumSize + len(payload))
	buf := make([]byte, totalLen)
	t := header.TCP(buf)
	t.Encode(&header.TCPFields{
		SrcPort:    localPort,
		DstPort:    remotePort,
		SeqNum:     seq,
		AckNum:     ack,
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: tcpWindowSize,
	})
	copy(t.Payload(), payload)
	t.SetChecksum(t.CalculateChecksum(localIP, remoteIP, totalLen))

	m.ipv4.Send(header.IPv4Fields{
		TTL:      64,
		Protocol: header.TCPProtocolNumber,
		SrcAddr:  localIP,
		DstAddr:  remoteIP,
	}, buf)
}
