// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dhcp implements the wire format and router-side server logic of
// DHCP as described in RFC 2131. Only the server role is in scope (spec.md
// §4.7); there is no client/lease-renewal path here.
package dhcp

import (
	"bytes"
	"fmt"

	"github.com/pgbox/vnet/pkg/tcpip"
)

const (
	// ServerPort is the well-known UDP port number for a DHCP server.
	ServerPort = 67
	// ClientPort is the well-known UDP port number for a DHCP client.
	ClientPort = 68
)

var magicCookie = []byte{0x63, 0x82, 0x53, 0x63}

// Op is the DHCP "op" field: BOOTREQUEST or BOOTREPLY.
type Op byte

// Op values.
const (
	OpRequest Op = 0x01
	OpReply   Op = 0x02
)

// MsgType is the DHCP Message Type option value, RFC 1533 §9.4.
type MsgType byte

// MsgType values this stack produces or accepts.
const (
	Discover MsgType = 1
	Offer    MsgType = 2
	Request  MsgType = 3
	Decline  MsgType = 4
	ACK      MsgType = 5
	NAK      MsgType = 6
	Release  MsgType = 7
)

// Message is a DHCP packet stored in a byte slice: a fixed 236-byte header,
// a 4-byte magic cookie, then a TLV option list.
type Message []byte

const (
	headerBaseSize = 240 // fixed header (236 bytes) + magic cookie (4 bytes)

	offOp     = 0
	offHType  = 1
	offHLen   = 2
	offHops   = 3
	offXid    = 4
	offSecs   = 8
	offFlags  = 10
	offCiaddr = 12
	offYiaddr = 16
	offSiaddr = 20
	offGiaddr = 24
	offChaddr = 28
	offSname  = 44
	offFile   = 108
	offCookie = 236
)

// MinSize is the smallest possible Message: the fixed header plus a single
// 'end' option byte.
const MinSize = headerBaseSize + 1

// NewMessage allocates a zeroed Message of size n (at least MinSize),
// with the fixed htype/hlen/magic-cookie fields already filled in.
func NewMessage(n int) Message {
	if n < MinSize {
		n = MinSize
	}
	m := Message(make([]byte, n))
	m[offHType] = 1 // Ethernet
	m[offHLen] = tcpip.MacAddressSize
	copy(m[offCookie:offCookie+4], magicCookie)
	return m
}

// IsValid reports whether m is large enough to hold the fixed header and
// carries the expected op/htype/hlen/magic-cookie values (spec.md §3:
// "hardware type/size (must be 1/6)... a magic cookie 0x63825363 must
// separate the fixed header from options").
func (m Message) IsValid() bool {
	if len(m) < headerBaseSize {
		return false
	}
	op := Op(m[offOp])
	if op != OpRequest && op != OpReply {
		return false
	}
	if m[offHType] != 1 || m[offHLen] != tcpip.MacAddressSize {
		return false
	}
	return bytes.Equal(m[offCookie:offCookie+4], magicCookie)
}

// Op returns the "op" field.
func (m Message) Op() Op { return Op(m[offOp]) }

// SetOp sets the "op" field.
func (m Message) SetOp(o Op) { m[offOp] = byte(o) }

// Xid returns the transaction ID.
func (m Message) Xid() uint32 {
	return uint32(m[4])<<24 | uint32(m[5])<<16 | uint32(m[6])<<8 | uint32(m[7])
}

// SetXid sets the transaction ID.
func (m Message) SetXid(xid uint32) {
	m[4], m[5], m[6], m[7] = byte(xid>>24), byte(xid>>16), byte(xid>>8), byte(xid)
}

// Secs returns the "seconds elapsed" field.
func (m Message) Secs() uint16 { return uint16(m[offSecs])<<8 | uint16(m[offSecs+1]) }

// SetSecs sets the "seconds elapsed" field.
func (m Message) SetSecs(secs uint16) {
	m[offSecs], m[offSecs+1] = byte(secs>>8), byte(secs)
}

// Broadcast reports whether the client requested a broadcast reply.
func (m Message) Broadcast() bool { return m[offFlags]&0x80 != 0 }

// SetBroadcast sets or clears the broadcast flag.
func (m Message) SetBroadcast(b bool) {
	if b {
		m[offFlags] = 0x80
	} else {
		m[offFlags] = 0
	}
	m[offFlags+1] = 0
}

func ipv4View(m Message, off int) tcpip.IPv4Address {
	var addr tcpip.IPv4Address
	copy(addr[:], m[off:off+tcpip.IPv4AddressSize])
	return addr
}

func setIPv4(m Message, off int, addr tcpip.IPv4Address) {
	copy(m[off:off+tcpip.IPv4AddressSize], addr[:])
}

// ClientAddr returns the "ciaddr" field.
func (m Message) ClientAddr() tcpip.IPv4Address { return ipv4View(m, offCiaddr) }

// SetClientAddr sets the "ciaddr" field.
func (m Message) SetClientAddr(a tcpip.IPv4Address) { setIPv4(m, offCiaddr, a) }

// YourAddr returns the "yiaddr" field — the IP offered/assigned to the
// client.
func (m Message) YourAddr() tcpip.IPv4Address { return ipv4View(m, offYiaddr) }

// SetYourAddr sets the "yiaddr" field.
func (m Message) SetYourAddr(a tcpip.IPv4Address) { setIPv4(m, offYiaddr, a) }

// ServerAddr returns the "siaddr" field.
func (m Message) ServerAddr() tcpip.IPv4Address { return ipv4View(m, offSiaddr) }

// SetServerAddr sets the "siaddr" field.
func (m Message) SetServerAddr(a tcpip.IPv4Address) { setIPv4(m, offSiaddr, a) }

// GatewayAddr returns the "giaddr" field.
func (m Message) GatewayAddr() tcpip.IPv4Address { return ipv4View(m, offGiaddr) }

// SetGatewayAddr sets the "giaddr" field.
func (m Message) SetGatewayAddr(a tcpip.IPv4Address) { setIPv4(m, offGiaddr, a) }

// ClientHardwareAddr returns the "chaddr" field.
func (m Message) ClientHardwareAddr() tcpip.MacAddress {
	var addr tcpip.MacAddress
	copy(addr[:], m[offChaddr:offChaddr+tcpip.MacAddressSize])
	return addr
}

// SetClientHardwareAddr sets the "chaddr" field.
func (m Message) SetClientHardwareAddr(a tcpip.MacAddress) {
	copy(m[offChaddr:offChaddr+tcpip.MacAddressSize], a[:])
}

// ServerName returns the fixed-length "sname" text field, trimmed of
// trailing NUL bytes.
func (m Message) ServerName() string {
	return trimNUL(m[offSname:offFile])
}

// SetServerName sets the "sname" field, truncating or zero-padding to fit.
func (m Message) SetServerName(s string) { setFixedText(m[offSname:offFile], s) }

// BootFile returns the fixed-length "file" text field, trimmed of trailing
// NUL bytes.
func (m Message) BootFile() string {
	return trimNUL(m[offFile:offCookie])
}

// SetBootFile sets the "file" field, truncating or zero-padding to fit.
func (m Message) SetBootFile(s string) { setFixedText(m[offFile:offCookie], s) }

func trimNUL(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return string(b)
	}
	return string(b[:i])
}

func setFixedText(b []byte, s string) {
	for i := range b {
		b[i] = 0
	}
	copy(b, s)
}

// Option is a single (code, body) TLV option.
type Option struct {
	Code OptionCode
	Body []byte
}

// OptionCode identifies a DHCP option, RFC 1533.
type OptionCode byte

// Option codes used by the router's DHCP server (spec.md §4.7).
const (
	OptSubnetMask    OptionCode = 1
	OptRouter        OptionCode = 3
	OptDNS           OptionCode = 6
	OptHostName      OptionCode = 12
	OptDomainName    OptionCode = 15
	OptBroadcastAddr OptionCode = 28
	OptReqIPAddr     OptionCode = 50
	OptLeaseTime     OptionCode = 51
	OptMsgType       OptionCode = 53
	OptServerID      OptionCode = 54
	OptParamReqList  OptionCode = 55
)

// Options decodes the TLV option list following the magic cookie.
func (m Message) Options() ([]Option, error) {
	var opts []Option
	i := headerBaseSize
	for i < len(m) {
		switch m[i] {
		case 0: // pad
			i++
			continue
		case 255: // end
			return opts, nil
		}
		if i+1 >= len(m) {
			return nil, fmt.Errorf("dhcp: option at %d missing length byte", i)
		}
		l := int(m[i+1])
		if i+2+l > len(m) {
			return nil, fmt.Errorf("dhcp: option %d at %d overruns message (len %d)", m[i], i, l)
		}
		opts = append(opts, Option{Code: OptionCode(m[i]), Body: m[i+2 : i+2+l]})
		i += 2 + l
	}
	return opts, nil
}

// SetOptions encodes opts into the TLV region following the magic cookie,
// terminated with an end option, zero-padding the remainder of m. It
// returns an error if opts do not fit in len(m)-headerBaseSize bytes.
func (m Message) SetOptions(opts []Option) error {
	i := headerBaseSize
	for _, opt := range opts {
		if i+2+len(opt.Body)+1 > len(m) {
			return fmt.Errorf("dhcp: options do not fit in a %d-byte message", len(m))
		}
		m[i] = byte(opt.Code)
		m[i+1] = byte(len(opt.Body))
		copy(m[i+2:i+2+len(opt.Body)], opt.Body)
		i += 2 + len(opt.Body)
	}
	m[i] = 255
	i++
	for ; i < len(m); i++ {
		m[i] = 0
	}
	return nil
}

// OptionsSize returns the number of bytes opts occupies once encoded,
// including the trailing end-option byte — used to size a fresh Message.
func OptionsSize(opts []Option) int {
	n := 1 // end option
	for _, opt := range opts {
		n += 2 + len(opt.Body)
	}
	return n
}

// MsgTypeOf extracts the DHCP message type option, if present.
func MsgTypeOf(opts []Option) (MsgType, bool) {
	for _, opt := range opts {
		if opt.Code == OptMsgType && len(opt.Body) == 1 {
			return MsgType(opt.Body[0]), true
		}
	}
	return 0, false
}

// RequestedAddr extracts the "requested IP address" option, if present.
func RequestedAddr(opts []Option) (tcpip.IPv4Address, bool) {
	for _, opt := range opts {
		if opt.Code == OptReqIPAddr && len(opt.Body) == tcpip.IPv4AddressSize {
			var addr tcpip.IPv4Address
			copy(addr[:], opt.Body)
			return addr, true
		}
	}
	return tcpip.IPv4Address{}, false
}
