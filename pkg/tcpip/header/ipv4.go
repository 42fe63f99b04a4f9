// Copyright 2018 The gVisor Authors.
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
	"github.com/pgbox/vnet/pkg/tcpip/checksum"
)

const (
	versIHL      = 0
	dscpECN      = 1
	totalLength  = 2
	ipv4ID       = 4
	flagsFO      = 6
	ttl          = 8
	protocol     = 9
	ipv4Checksum = 10
	srcAddr      = 12
	dstAddr      = 16

	// IPv4Version is the only IP version this stack accepts.
	IPv4Version = 4

	// IPv4MinimumSize is the size of an IPv4 header with no options, which
	// is the only kind this stack ever produces or accepts (spec.md §4.4).
	IPv4MinimumSize = 20

	// IPv4MaximumHeaderSize matches IPv4MinimumSize; options are never
	// emitted and a packet carrying them is logged and dropped.
	IPv4MaximumHeaderSize = IPv4MinimumSize

	// IPv4ProtocolNumber is the EtherType used to recognize IPv4 framing.
	IPv4ProtocolNumber = uint16(EtherTypeIPv4)

	flagDontFragment  = 1 << 1
	flagMoreFragments = 1 << 0
)

// IPv4Fields contains the fields of an IPv4 packet, used to describe a
// packet that needs to be encoded.
type IPv4Fields struct {
	DSCP         uint8
	ECN          uint8
	TotalLength  uint16
	TTL          uint8
	Protocol     uint8
	DontFragment bool
	SrcAddr      tcpip.IPv4Address
	DstAddr      tcpip.IPv4Address
}

// IPv4 represents an IPv4 header stored in a byte slice.
type IPv4 []byte

// HeaderLength returns the "internet header length" field, in bytes. This
// stack never emits options, so it is always IPv4MinimumSize, but the
// field is still read so a peer carrying options can be rejected rather
// than misparsed.
func (b IPv4) HeaderLength() int {
	return int(b[versIHL]&0xf) * 4
}

// Version returns the IP version field.
func (b IPv4) Version() int {
	return int(b[versIHL] >> 4)
}

// DSCP returns the Differentiated Services Code Point field.
func (b IPv4) DSCP() uint8 {
	return b[dscpECN] >> 2
}

// ECN returns the Explicit Congestion Notification field.
func (b IPv4) ECN() uint8 {
	return b[dscpECN] & 0x3
}

// TotalLength returns the "total length" field: the header plus payload.
func (b IPv4) TotalLength() uint16 {
	return binary.BigEndian.Uint16(b[totalLength:])
}

// ID returns the "identification" field.
func (b IPv4) ID() uint16 {
	return binary.BigEndian.Uint16(b[ipv4ID:])
}

// Flags returns the raw 3-bit flags field (top 3 bits of flagsFO).
func (b IPv4) Flags() uint8 {
	return uint8(binary.BigEndian.Uint16(b[flagsFO:]) >> 13)
}

// DontFragment reports whether the DF flag is set.
func (b IPv4) DontFragment() bool {
	return b.Flags()&flagDontFragment != 0
}

// MoreFragments reports whether the MF flag is set.
func (b IPv4) MoreFragments() bool {
	return b.Flags()&flagMoreFragments != 0
}

// FragmentOffset returns the 13-bit fragment offset field, in 8-byte units.
func (b IPv4) FragmentOffset() uint16 {
	return binary.BigEndian.Uint16(b[flagsFO:]) & 0x1fff
}

// TTL returns the "time to live" field.
func (b IPv4) TTL() uint8 {
	return b[ttl]
}

// Protocol returns the upper-layer protocol number.
func (b IPv4) Protocol() uint8 {
	return b[protocol]
}

// Checksum returns the header checksum field.
func (b IPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[ipv4Checksum:])
}

// SourceAddress returns the source IPv4 address.
func (b IPv4) SourceAddress() tcpip.IPv4Address {
	var addr tcpip.IPv4Address
	copy(addr[:], b[srcAddr:][:tcpip.IPv4AddressSize])
	return addr
}

// DestinationAddress returns the destination IPv4 address.
func (b IPv4) DestinationAddress() tcpip.IPv4Address {
	var addr tcpip.IPv4Address
	copy(addr[:], b[dstAddr:][:tcpip.IPv4AddressSize])
	return addr
}

// Payload returns the bytes following the header.
func (b IPv4) Payload() []byte {
	return b[b.HeaderLength():]
}

// IsValid reports whether b is a well-formed, no-option, unfragmented IPv4
// header this stack is willing to process (spec.md §4.4): version 4, a
// 20-byte header, and MF=0/offset=0.
func (b IPv4) IsValid() bool {
	if len(b) < IPv4MinimumSize {
		return false
	}
	if b.Version() != IPv4Version {
		return false
	}
	if b.HeaderLength() != IPv4MinimumSize {
		return false
	}
	if b.MoreFragments() || b.FragmentOffset() != 0 {
		return false
	}
	return true
}

// IsChecksumValid reports whether the header's Internet checksum folds to
// the all-ones sentinel over the header bytes as received.
func (b IPv4) IsChecksumValid() bool {
	return checksum.VerifyZero(checksum.Checksum(b[:b.HeaderLength()], 0))
}

// SetChecksum sets the header checksum field.
func (b IPv4) SetChecksum(xsum uint16) {
	checksum.Put(b[ipv4Checksum:], xsum)
}

// Encode fills in all the fields of the IPv4 header except the checksum,
// which is zeroed; the caller must follow with
// SetChecksum(CalculateChecksum(b)).
func (b IPv4) Encode(f *IPv4Fields) {
	b[versIHL] = (IPv4Version << 4) | (IPv4MinimumSize / 4)
	b[dscpECN] = (f.DSCP << 2) | (f.ECN & 0x3)
	binary.BigEndian.PutUint16(b[totalLength:], f.TotalLength)
	binary.BigEndian.PutUint16(b[ipv4ID:], 0)
	flags := uint16(0)
	if f.DontFragment {
		flags = flagDontFragment << 13
	}
	binary.BigEndian.PutUint16(b[flagsFO:], flags)
	b[ttl] = f.TTL
	b[protocol] = f.Protocol
	b.SetChecksum(0)
	copy(b[srcAddr:][:tcpip.IPv4AddressSize], f.SrcAddr[:])
	copy(b[dstAddr:][:tcpip.IPv4AddressSize], f.DstAddr[:])
}

// CalculateChecksum computes the header checksum: the bitwise-NOT of the
// ones'-complement sum over the header bytes with the checksum field set
// to zero (spec.md §4.4).
func (b IPv4) CalculateChecksum() uint16 {
	stored := b.Checksum()
	b.SetChecksum(0)
	xsum := checksum.Fold(checksum.Checksum(b[:b.HeaderLength()], 0))
	b.SetChecksum(stored)
	return xsum
}
