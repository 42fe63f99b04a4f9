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

package header

import (
	"encoding/binary"

	"github.com/pgbox/vnet/pkg/tcpip"
)

const (
	dstMAC  = 0
	srcMAC  = 6
	ethType = 12
)

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType uint16

// EtherType values in scope for this stack. IPv6 is recognized only so it
// can be blackholed by the layer above rather than misparsed as something
// else.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD
	EtherTypeVLAN EtherType = 0x8100
	EtherTypeQinQ EtherType = 0x88A8
)

// IsVLANTag reports whether t is one of the tag protocol identifiers used
// to introduce an 802.1Q/802.1ad VLAN tag rather than an ordinary
// EtherType. VLAN tags are logged and dropped (spec.md §4.2); this stack
// never parses one.
func (t EtherType) IsVLANTag() bool {
	return t == EtherTypeVLAN || t == EtherTypeQinQ
}

// EthernetFields contains the fields of an Ethernet frame header, used to
// describe a frame that needs to be encoded.
type EthernetFields struct {
	// SrcAddr is the "MAC source" field of an ethernet frame header.
	SrcAddr tcpip.MacAddress

	// DstAddr is the "MAC destination" field of an ethernet frame header.
	DstAddr tcpip.MacAddress

	// Type is the "ethertype" field of an ethernet frame header.
	Type EtherType
}

// Ethernet represents an Ethernet frame header stored in a byte slice.
type Ethernet []byte

const (
	// EthernetMinimumSize is the minimum size of a valid ethernet frame
	// header (destination, source, ethertype — no VLAN tag).
	EthernetMinimumSize = 14

	// EthernetAddressSize is the size, in bytes, of an ethernet address.
	EthernetAddressSize = 6
)

// SourceAddress returns the "MAC source" field of the ethernet frame header.
func (b Ethernet) SourceAddress() tcpip.MacAddress {
	var addr tcpip.MacAddress
	copy(addr[:], b[srcMAC:][:EthernetAddressSize])
	return addr
}

// DestinationAddress returns the "MAC destination" field of the ethernet
// frame header.
func (b Ethernet) DestinationAddress() tcpip.MacAddress {
	var addr tcpip.MacAddress
	copy(addr[:], b[dstMAC:][:EthernetAddressSize])
	return addr
}

// Type returns the "ethertype" field of the ethernet frame header (or, if
// the frame carries a VLAN tag, the tag protocol identifier — callers must
// check IsVLANTag before trusting this as a payload type).
func (b Ethernet) Type() EtherType {
	return EtherType(binary.BigEndian.Uint16(b[ethType:]))
}

// Payload returns the bytes following the ethertype field.
func (b Ethernet) Payload() []byte {
	return b[EthernetMinimumSize:]
}

// Encode encodes all the fields of the ethernet frame header.
func (b Ethernet) Encode(e *EthernetFields) {
	binary.BigEndian.PutUint16(b[ethType:], uint16(e.Type))
	copy(b[srcMAC:][:EthernetAddressSize], e.SrcAddr[:])
	copy(b[dstMAC:][:EthernetAddressSize], e.DstAddr[:])
}
