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

func TestTCPEncodeDecode(t *testing.T) {
	src, _ := tcpip.ParseIPv4("192.168.1.2")
	dst, _ := tcpip.ParseIPv4("192.168.13.37")
	payload := []byte("hello")

	buf := make([]byte, TCPMinimumSize+len(payload))
	b := TCP(buf)
	b.Encode(&TCPFields{
		SrcPort:    5432,
		DstPort:    54321,
		SeqNum:     1000,
		AckNum:     2000,
		DataOffset: TCPMinimumSize,
		Flags:      TCPFlagSyn | TCPFlagAck,
		WindowSize: 65535,
	})
	copy(b.Payload(), payload)
	b.SetChecksum(b.CalculateChecksum(src, dst, uint16(len(buf))))

	if got := b.SourcePort(); got != 5432 {
		t.Errorf("SourcePort() = %d, want 5432", got)
	}
	if got := b.DestinationPort(); got != 54321 {
		t.Errorf("DestinationPort() = %d, want 54321", got)
	}
	if got := b.SequenceNumber(); got != 1000 {
		t.Errorf("SequenceNumber() = %d, want 1000", got)
	}
	if got := b.AckNumber(); got != 2000 {
		t.Errorf("AckNumber() = %d, want 2000", got)
	}
	if got := b.DataOffset(); got != TCPMinimumSize {
		t.Errorf("DataOffset() = %d, want %d", got, TCPMinimumSize)
	}
	if !b.Flags().Contains(TCPFlagSyn | TCPFlagAck) {
		t.Errorf("Flags() = %b, want SYN|ACK set", b.Flags())
	}
	if b.Flags().Contains(TCPFlagFin) {
		t.Errorf("Flags() unexpectedly contains FIN")
	}
	if got := string(b.Payload()); got != "hello" {
		t.Errorf("Payload() = %q, want %q", got, "hello")
	}
	if !b.IsChecksumValid(src, dst, uint16(len(buf))) {
		t.Errorf("IsChecksumValid() = false after encoding a valid checksum")
	}
}

func TestTCPFlagsIndependentBits(t *testing.T) {
	buf := make([]byte, TCPMinimumSize)
	b := TCP(buf)
	b.Encode(&TCPFields{DataOffset: TCPMinimumSize, Flags: TCPFlagNs | TCPFlagFin})

	got := b.Flags()
	if !got.Contains(TCPFlagNs) {
		t.Errorf("Flags() missing NS bit")
	}
	if !got.Contains(TCPFlagFin) {
		t.Errorf("Flags() missing FIN bit")
	}
	if got.Contains(TCPFlagSyn) || got.Contains(TCPFlagAck) {
		t.Errorf("Flags() = %b, unexpected bits set", got)
	}
}

func TestTCPChecksumDetectsCorruption(t *testing.T) {
	src, _ := tcpip.ParseIPv4("10.0.0.1")
	dst, _ := tcpip.ParseIPv4("10.0.0.2")

	buf := make([]byte, TCPMinimumSize)
	b := TCP(buf)
	b.Encode(&TCPFields{SrcPort: 1, DstPort: 2, DataOffset: TCPMinimumSize, Flags: TCPFlagAck})
	b.SetChecksum(b.CalculateChecksum(src, dst, uint16(len(buf))))

	if !b.IsChecksumValid(src, dst, uint16(len(buf))) {
		t.Fatalf("IsChecksumValid() = false immediately after encoding")
	}

	buf[tcpWinSize] ^= 0xFF
	if b.IsChecksumValid(src, dst, uint16(len(buf))) {
		t.Errorf("IsChecksumValid() = true after corrupting the window field")
	}
}
