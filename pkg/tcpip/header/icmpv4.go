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

	"github.com/pgbox/vnet/pkg/tcpip/checksum"
)

// ICMPv4 represents an ICMPv4 header stored in a byte slice. Only the echo
// request/reply pair is in scope for this stack (spec.md §4.5): the
// accessors read every message with the echo layout (identifier and
// sequence after the checksum), whatever its type.
type ICMPv4 []byte

const (
	// ICMPv4PayloadOffset is the offset of the ICMP payload, following the
	// type, code, checksum, ident and sequence fields.
	ICMPv4PayloadOffset = 8

	// ICMPv4MinimumSize is the minimum size of a valid ICMP echo message.
	ICMPv4MinimumSize = 8

	// ICMPv4ProtocolNumber is the IPv4 protocol number for ICMP.
	ICMPv4ProtocolNumber = 1

	icmpv4ChecksumOffset = 2
	icmpv4IdentOffset    = 4
	icmpv4SequenceOffset = 6
)

// ICMPv4Type is the ICMP type field described in RFC 792.
type ICMPv4Type byte

// The only two ICMPv4Type values this stack ever sends or accepts.
const (
	ICMPv4EchoReply ICMPv4Type = 0
	ICMPv4Echo      ICMPv4Type = 8
)

// Type is the ICMP type field.
func (b ICMPv4) Type() ICMPv4Type { return ICMPv4Type(b[0]) }

// SetType sets the ICMP type field.
func (b ICMPv4) SetType(t ICMPv4Type) { b[0] = byte(t) }

// Code is the ICMP code field.
func (b ICMPv4) Code() byte { return b[1] }

// SetCode sets the ICMP code field.
func (b ICMPv4) SetCode(c byte) { b[1] = c }

// Checksum is the ICMP checksum field.
func (b ICMPv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[icmpv4ChecksumOffset:])
}

// SetChecksum sets the ICMP checksum field.
func (b ICMPv4) SetChecksum(xsum uint16) {
	binary.BigEndian.PutUint16(b[icmpv4ChecksumOffset:], xsum)
}

// Ident retrieves the identifier field of an echo request/reply.
func (b ICMPv4) Ident() uint16 {
	return binary.BigEndian.Uint16(b[icmpv4IdentOffset:])
}

// SetIdent sets the identifier field of an echo request/reply.
func (b ICMPv4) SetIdent(ident uint16) {
	binary.BigEndian.PutUint16(b[icmpv4IdentOffset:], ident)
}

// Sequence retrieves the sequence number field of an echo request/reply.
func (b ICMPv4) Sequence() uint16 {
	return binary.BigEndian.Uint16(b[icmpv4SequenceOffset:])
}

// SetSequence sets the sequence number field of an echo request/reply.
func (b ICMPv4) SetSequence(sequence uint16) {
	binary.BigEndian.PutUint16(b[icmpv4SequenceOffset:], sequence)
}

// Payload returns the bytes following the sequence field.
func (b ICMPv4) Payload() []byte {
	return b[ICMPv4PayloadOffset:]
}

// ICMPv4Checksum computes the checksum of an ICMPv4 header plus payload.
// Unlike UDP/TCP, ICMP has no pseudo-header; the checksum covers only the
// ICMP message itself.
func ICMPv4Checksum(h ICMPv4) uint16 {
	h2, h3 := h[2], h[3]
	h[2], h[3] = 0, 0
	xsum := checksum.Fold(checksum.Checksum(h, 0))
	h[2], h[3] = h2, h3
	return xsum
}

// ICMPv4Fields describes an echo request/reply message to be encoded.
type ICMPv4Fields struct {
	Type     ICMPv4Type
	Code     byte
	Ident    uint16
	Sequence uint16
}

// Encode fills in the fixed fields of an echo request/reply message,
// leaving the checksum zeroed; the caller fills the payload and then calls
// SetChecksum(ICMPv4Checksum(b)).
func (b ICMPv4) Encode(f *ICMPv4Fields) {
	b.SetType(f.Type)
	b.SetCode(f.Code)
	b.SetChecksum(0)
	b.SetIdent(f.Ident)
	b.SetSequence(f.Sequence)
}
