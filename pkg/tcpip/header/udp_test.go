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
	"github.com/pgbox/vnet/pkg/tcpip/checksum"
)

func TestUDPEncodeDecode(t *testing.T) {
	payload := []byte("hello")
	buf := make([]byte, UDPMinimumSize+len(payload))
	u := UDP(buf)
	u.Encode(&UDPFields{SrcPort: 68, DstPort: 67, Length: uint16(len(buf))})
	copy(u.Payload(), payload)

	if got := u.SourcePort(); got != 68 {
		t.Errorf("SourcePort() = %d, want 68", got)
	}
	if got := u.DestinationPort(); got != 67 {
		t.Errorf("DestinationPort() = %d, want 67", got)
	}
	if got := u.Length(); int(got) != len(buf) {
		t.Errorf("Length() = %d, want %d", got, len(buf))
	}
	if got := string(u.Payload()); got != "hello" {
		t.Errorf("Payload() = %q, want %q", got, "hello")
	}
}

func TestUDPChecksumRoundTrip(t *testing.T) {
	src, _ := tcpip.ParseIPv4("192.168.1.2")
	dst, _ := tcpip.ParseIPv4("192.168.13.37")

	payload := []byte("DISCOVER")
	buf := make([]byte, UDPMinimumSize+len(payload))
	u := UDP(buf)
	u.Encode(&UDPFields{SrcPort: 68, DstPort: 67, Length: uint16(len(buf))})
	copy(u.Payload(), payload)

	xsum := PseudoHeaderChecksum(UDPProtocolNumber, src, dst, u.Length())
	xsum = checksum.Checksum(u, xsum)
	u.SetChecksum(checksum.Fold(xsum))

	if !u.IsChecksumValid(src, dst) {
		t.Errorf("IsChecksumValid() = false after encoding a valid checksum")
	}

	buf[len(buf)-1] ^= 0xFF
	if u.IsChecksumValid(src, dst) {
		t.Errorf("IsChecksumValid() = true after corrupting the payload")
	}
}
