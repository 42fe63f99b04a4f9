// Copyright 2018 Google Inc.
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

package header

import "github.com/pgbox/vnet/pkg/tcpip"

const (
	// ARPSize is the size of an IPv4-over-Ethernet ARP packet. This stack
	// only ever produces or accepts this combination (spec.md §4.3).
	ARPSize = 2 + 2 + 1 + 1 + 2 + 2*tcpip.MacAddressSize + 2*tcpip.IPv4AddressSize

	arpHardwareEthernet = 1
	arpProtocolIPv4     = uint16(EtherTypeIPv4)
	arpHardwareSize     = tcpip.MacAddressSize
	arpProtocolSize     = tcpip.IPv4AddressSize
)

// ARPOp is an ARP opcode, per RFC 826.
type ARPOp uint16

// ARP opcodes in scope for this stack.
const (
	ARPRequest ARPOp = 1
	ARPReply   ARPOp = 2
)

// ARP is an ARP-over-Ethernet packet stored in a byte slice.
type ARP []byte

func (a ARP) hardwareAddressSpace() uint16 { return uint16(a[0])<<8 | uint16(a[1]) }
func (a ARP) protocolAddressSpace() uint16 { return uint16(a[2])<<8 | uint16(a[3]) }
func (a ARP) hardwareAddressSize() int     { return int(a[4]) }
func (a ARP) protocolAddressSize() int     { return int(a[5]) }

// Op is the ARP opcode.
func (a ARP) Op() ARPOp { return ARPOp(a[6])<<8 | ARPOp(a[7]) }

// SetOp sets the ARP opcode.
func (a ARP) SetOp(op ARPOp) {
	a[6] = uint8(op >> 8)
	a[7] = uint8(op)
}

// setIPv4OverEthernet fills in the hardware/protocol type and size fields.
func (a ARP) setIPv4OverEthernet() {
	a[0], a[1] = 0, arpHardwareEthernet
	a[2], a[3] = byte(arpProtocolIPv4>>8), byte(arpProtocolIPv4&0xff)
	a[4] = arpHardwareSize
	a[5] = arpProtocolSize
}

func (a ARP) hardwareAddressSenderView() []byte {
	const s = 8
	return a[s : s+arpHardwareSize]
}

func (a ARP) protocolAddressSenderView() []byte {
	const s = 8 + arpHardwareSize
	return a[s : s+arpProtocolSize]
}

func (a ARP) hardwareAddressTargetView() []byte {
	const s = 8 + arpHardwareSize + arpProtocolSize
	return a[s : s+arpHardwareSize]
}

func (a ARP) protocolAddressTargetView() []byte {
	const s = 8 + 2*arpHardwareSize + arpProtocolSize
	return a[s : s+arpProtocolSize]
}

// IsValid reports whether a is a well-formed IPv4-over-Ethernet ARP
// packet. Anything else is logged and dropped, never an error return
// (spec.md §4.3).
func (a ARP) IsValid() bool {
	if len(a) < ARPSize {
		return false
	}
	return a.hardwareAddressSpace() == arpHardwareEthernet &&
		a.protocolAddressSpace() == arpProtocolIPv4 &&
		a.hardwareAddressSize() == arpHardwareSize &&
		a.protocolAddressSize() == arpProtocolSize
}

// SenderHardwareAddress returns the sender hardware (MAC) address.
func (a ARP) SenderHardwareAddress() tcpip.MacAddress {
	var addr tcpip.MacAddress
	copy(addr[:], a.hardwareAddressSenderView())
	return addr
}

// SenderProtocolAddress returns the sender protocol (IPv4) address.
func (a ARP) SenderProtocolAddress() tcpip.IPv4Address {
	var addr tcpip.IPv4Address
	copy(addr[:], a.protocolAddressSenderView())
	return addr
}

// TargetHardwareAddress returns the target hardware (MAC) address. It is
// the zero address on a request.
func (a ARP) TargetHardwareAddress() tcpip.MacAddress {
	var addr tcpip.MacAddress
	copy(addr[:], a.hardwareAddressTargetView())
	return addr
}

// TargetProtocolAddress returns the target protocol (IPv4) address — the
// address being queried on a request, or confirmed on a reply.
func (a ARP) TargetProtocolAddress() tcpip.IPv4Address {
	var addr tcpip.IPv4Address
	copy(addr[:], a.protocolAddressTargetView())
	return addr
}

// ARPFields describes an ARP packet to be encoded.
type ARPFields struct {
	Op             ARPOp
	SenderHardware tcpip.MacAddress
	SenderProtocol tcpip.IPv4Address
	TargetHardware tcpip.MacAddress
	TargetProtocol tcpip.IPv4Address
}

// Encode fills in all the fields of an ARP packet.
func (a ARP) Encode(f *ARPFields) {
	a.setIPv4OverEthernet()
	a.SetOp(f.Op)
	copy(a.hardwareAddressSenderView(), f.SenderHardware[:])
	copy(a.protocolAddressSenderView(), f.SenderProtocol[:])
	copy(a.hardwareAddressTargetView(), f.TargetHardware[:])
	copy(a.protocolAddressTargetView(), f.TargetProtocol[:])
}
