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
	tcpSrcPort    = 0
	tcpDstPort    = 2
	tcpSeqNum     = 4
	tcpAckNum     = 8
	tcpDataOffset = 12
	tcpFlags      = 13
	tcpWinSize    = 14
	tcpChecksum   = 16
	tcpUrgentPtr  = 18

	// TCPMinimumSize is the size of a TCP header with no options.
	TCPMinimumSize = 20

	// TCPProtocolNumber is TCP's IPv4 protocol number.
	TCPProtocolNumber = 6
)

// TCPFlags are the independent bits of the TCP flags byte (and the NS bit
// folded out of the data-offset byte), per spec.md §3.
type TCPFlags uint16

// TCP flag bits. NS is the low bit of the data-offset byte on the wire, so
// it is carried as bit 8 of this type, above the flags byte.
const (
	TCPFlagFin TCPFlags = 1 << iota
	TCPFlagSyn
	TCPFlagRst
	TCPFlagPsh
	TCPFlagAck
	TCPFlagUrg
	TCPFlagEce
	TCPFlagCwr
	TCPFlagNs
)

// Contains reports whether all bits of want are set in f.
func (f TCPFlags) Contains(want TCPFlags) bool {
	return f&want == want
}

// TCPFields contains the fields of a TCP packet, used to describe a packet
// that needs to be encoded.
type TCPFields struct {
	SrcPort       uint16
	DstPort       uint16
	SeqNum        uint32
	AckNum        uint32
	DataOffset    uint8
	Flags         TCPFlags
	WindowSize    uint16
	Checksum      uint16
	UrgentPointer uint16
}

// TCP represents a TCP header stored in a byte slice.
type TCP []byte

// SourcePort returns the "source port" field.
func (b TCP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(b[tcpSrcPort:])
}

// DestinationPort returns the "destination port" field.
func (b TCP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(b[tcpDstPort:])
}

// SequenceNumber returns the "sequence number" field.
func (b TCP) SequenceNumber() uint32 {
	return binary.BigEndian.Uint32(b[tcpSeqNum:])
}

// AckNumber returns the "acknowledgement number" field.
func (b TCP) AckNumber() uint32 {
	return binary.BigEndian.Uint32(b[tcpAckNum:])
}

// DataOffset returns the size of the TCP header in bytes, including options.
func (b TCP) DataOffset() uint8 {
	return (b[tcpDataOffset] >> 4) * 4
}

// Flags returns the full set of TCP flag bits, including NS.
func (b TCP) Flags() TCPFlags {
	f := TCPFlags(b[tcpFlags])
	if b[tcpDataOffset]&0x1 != 0 {
		f |= TCPFlagNs
	}
	return f
}

// WindowSize returns the "window size" field.
func (b TCP) WindowSize() uint16 {
	return binary.BigEndian.Uint16(b[tcpWinSize:])
}

// Checksum returns the "checksum" field.
func (b TCP) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[tcpChecksum:])
}

// UrgentPointer returns the "urgent pointer" field.
func (b TCP) UrgentPointer() uint16 {
	return binary.BigEndian.Uint16(b[tcpUrgentPtr:])
}

// Options returns the option bytes following the fixed header.
func (b TCP) Options() []byte {
	return b[TCPMinimumSize:b.DataOffset()]
}

// Payload returns the data following the header and options.
func (b TCP) Payload() []byte {
	return b[b.DataOffset():]
}

// SetChecksum sets the "checksum" field.
func (b TCP) SetChecksum(xsum uint16) {
	checksum.Put(b[tcpChecksum:], xsum)
}

// Encode fills in the fields of the TCP header, with no options, leaving
// the checksum zeroed; the caller follows with
// SetChecksum(CalculateChecksum(...)).
func (b TCP) Encode(f *TCPFields) {
	binary.BigEndian.PutUint16(b[tcpSrcPort:], f.SrcPort)
	binary.BigEndian.PutUint16(b[tcpDstPort:], f.DstPort)
	binary.BigEndian.PutUint32(b[tcpSeqNum:], f.SeqNum)
	binary.BigEndian.PutUint32(b[tcpAckNum:], f.AckNum)

	offsetByte := (f.DataOffset / 4) << 4
	if f.Flags&TCPFlagNs != 0 {
		offsetByte |= 0x1
	}
	b[tcpDataOffset] = offsetByte
	b[tcpFlags] = byte(f.Flags & 0xff)

	binary.BigEndian.PutUint16(b[tcpWinSize:], f.WindowSize)
	b.SetChecksum(0)
	binary.BigEndian.PutUint16(b[tcpUrgentPtr:], f.UrgentPointer)
}

// CalculateChecksum computes the TCP checksum over the IPv4 pseudo-header
// plus the TCP header and payload (spec.md's "checksum over the IPv4
// pseudo-header").
func (b TCP) CalculateChecksum(src, dst tcpip.IPv4Address, totalLen uint16) uint16 {
	xsum := PseudoHeaderChecksum(TCPProtocolNumber, src, dst, totalLen)
	xsum = checksum.Checksum(b, xsum)
	return checksum.Fold(xsum)
}

// IsChecksumValid reports whether the TCP segment's checksum is correct.
func (b TCP) IsChecksumValid(src, dst tcpip.IPv4Address, totalLen uint16) bool {
	xsum := PseudoHeaderChecksum(TCPProtocolNumber, src, dst, totalLen)
	xsum = checksum.Checksum(b, xsum)
	return checksum.VerifyZero(xsum)
}
