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
	udpSrcPort  = 0
	udpDstPort  = 2
	udpLength   = 4
	udpChecksum = 6

	// UDPProtocolNumber is UDP's IPv4 protocol number.
	UDPProtocolNumber = 17

	// UDPMinimumSize is the size of a UDP header.
	UDPMinimumSize = 8
)

// UDPFields contains the fields of a UDP packet, used to describe a packet
// that needs to be encoded.
type UDPFields struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// UDP represents a UDP datagram header stored in a byte slice.
type UDP []byte

// SourcePort returns the "source port" field of the UDP header.
func (b UDP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(b[udpSrcPort:])
}

// DestinationPort returns the "destination port" field of the UDP header.
func (b UDP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(b[udpDstPort:])
}

// Length returns the "length" field of the UDP header, which covers the
// header plus payload.
func (b UDP) Length() uint16 {
	return binary.BigEndian.Uint16(b[udpLength:])
}

// Payload returns the data contained in the UDP datagram.
func (b UDP) Payload() []byte {
	return b[UDPMinimumSize:]
}

// Checksum returns the "checksum" field of the UDP header.
func (b UDP) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[udpChecksum:])
}

// SetSourcePort sets the "source port" field of the UDP header.
func (b UDP) SetSourcePort(port uint16) {
	binary.BigEndian.PutUint16(b[udpSrcPort:], port)
}

// SetDestinationPort sets the "destination port" field of the UDP header.
func (b UDP) SetDestinationPort(port uint16) {
	binary.BigEndian.PutUint16(b[udpDstPort:], port)
}

// SetChecksum sets the "checksum" field of the UDP header.
func (b UDP) SetChecksum(xsum uint16) {
	checksum.Put(b[udpChecksum:], xsum)
}

// SetLength sets the "length" field of the UDP header.
func (b UDP) SetLength(length uint16) {
	binary.BigEndian.PutUint16(b[udpLength:], length)
}

// Encode fills in the fields of the UDP header, leaving the checksum
// field as given (the caller computes it over the full pseudo-header plus
// datagram via PseudoHeaderChecksum and checksum.Checksum).
func (b UDP) Encode(u *UDPFields) {
	b.SetSourcePort(u.SrcPort)
	b.SetDestinationPort(u.DstPort)
	b.SetLength(u.Length)
	b.SetChecksum(u.Checksum)
}

// PseudoHeaderChecksum computes the IPv4 pseudo-header checksum used as the
// seed for a UDP (or TCP) checksum, per RFC 768 / RFC 793: source address,
// destination address, zero byte, protocol number, and segment length.
func PseudoHeaderChecksum(protocol uint8, srcAddr, dstAddr tcpip.IPv4Address, totalLen uint16) uint16 {
	xsum := checksum.Checksum(srcAddr[:], 0)
	xsum = checksum.Checksum(dstAddr[:], xsum)
	xsum = checksum.Checksum([]byte{0, protocol}, xsum)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], totalLen)
	return checksum.Checksum(lenBuf[:], xsum)
}

// IsChecksumValid reports whether the UDP header's checksum correctly
// covers the pseudo-header and datagram. A zero checksum field means the
// sender omitted the checksum, which RFC 768 permits over IPv4; the caller
// is expected to treat that as trivially valid.
func (b UDP) IsChecksumValid(src, dst tcpip.IPv4Address) bool {
	xsum := PseudoHeaderChecksum(UDPProtocolNumber, src, dst, b.Length())
	xsum = checksum.Checksum(b, xsum)
	return checksum.VerifyZero(xsum)
}
