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
	"testing"

	"github.com/pgbox/vnet/pkg/tcpip"
)

func TestIPv4EncodeDecode(t *testing.T) {
	src, _ := tcpip.ParseIPv4("192.168.1.2")
	dst, _ := tcpip.ParseIPv4("192.168.13.37")
	payload := []byte("payload")

	buf := make([]byte, IPv4MinimumSize+len(payload))
	b := IPv4(buf)
	b.Encode(&IPv4Fields{
		DSCP:         0,
		ECN:          0,
		TotalLength:  uint16(len(buf)),
		TTL:          64,
		Protocol:     UDPProtocolNumber,
		DontFragment: true,
		SrcAddr:      src,
		DstAddr:      dst,
	})
	copy(b.Payload(), payload)
	b.SetChecksum(b.CalculateChecksum())

	if !b.IsValid() {
		t.Fatalf("IsValid() = false, want true")
	}
	if got := b.Version(); got != IPv4Version {
		t.Errorf("Version() = %d, want %d", got, IPv4Version)
	}
	if got := b.HeaderLength(); got != IPv4MinimumSize {
		t.Errorf("HeaderLength() = %d, want %d", got, IPv4MinimumSize)
	}
	if got := b.SourceAddress(); got != src {
		t.Errorf("SourceAddress() = %v, want %v", got, src)
	}
	if got := b.DestinationAddress(); got != dst {
		t.Errorf("DestinationAddress() = %v, want %v", got, dst)
	}
	if !b.DontFragment() {
		t.Errorf("DontFragment() = false, want true")
	}
	if b.MoreFragments() || b.FragmentOffset() != 0 {
		t.Errorf("packet should never carry fragmentation state")
	}
	if got := b.Protocol(); got != UDPProtocolNumber {
		t.Errorf("Protocol() = %d, want %d", got, UDPProtocolNumber)
	}
	if !b.IsChecksumValid() {
		t.Errorf("IsChecksumValid() = false after encoding a valid checksum")
	}
	if got := string(b.Payload()); got != "payload" {
		t.Errorf("Payload() = %q, want %q", got, "payload")
	}
}

func TestIPv4IsValidRejectsOptionsAndFragments(t *testing.T) {
	buf := make([]byte, IPv4MinimumSize)
	b := IPv4(buf)
	b.Encode(&IPv4Fields{TotalLength: IPv4MinimumSize, TTL: 64})

	if !b.IsValid() {
		t.Fatalf("well-formed header reported invalid")
	}

	withOptions := append([]byte{}, buf...)
	withOptions[versIHL] = (IPv4Version << 4) | 6 // 24-byte header claims options
	if IPv4(withOptions).IsValid() {
		t.Errorf("header claiming IP options reported valid")
	}

	fragmented := append([]byte{}, buf...)
	fragmented[flagsFO] = 0x00
	fragmented[flagsFO+1] = 0x01 // fragment offset = 1
	if IPv4(fragmented).IsValid() {
		t.Errorf("header with nonzero fragment offset reported valid")
	}

	tooShort := buf[:IPv4MinimumSize-1]
	if IPv4(tooShort).IsValid() {
		t.Errorf("truncated header reported valid")
	}
}

func TestIPv4ChecksumDetectsCorruption(t *testing.T) {
	buf := make([]byte, IPv4MinimumSize)
	b := IPv4(buf)
	b.Encode(&IPv4Fields{TotalLength: IPv4MinimumSize, TTL: 64, Protocol: UDPProtocolNumber})
	b.SetChecksum(b.CalculateChecksum())

	if !b.IsChecksumValid() {
		t.Fatalf("IsChecksumValid() = false immediately after encoding")
	}

	buf[ttl] = 63
	if b.IsChecksumValid() {
		t.Errorf("IsChecksumValid() = true after corrupting the TTL field")
	}
}
