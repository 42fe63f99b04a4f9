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

package checksum

import "testing"

func TestChecksumKnownValue(t *testing.T) {
	// RFC 1071 §3 worked example.
	buf := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	got := Fold(Checksum(buf, 0))
	want := uint16(0x220d)
	if got != want {
		t.Errorf("Fold(Checksum(buf)) = %#04x, want %#04x", got, want)
	}
}

func TestChecksumOddLength(t *testing.T) {
	even := Checksum([]byte{0x01, 0x02, 0x03, 0x00}, 0)
	odd := Checksum([]byte{0x01, 0x02, 0x03}, 0)
	if even != odd {
		t.Errorf("odd-length buffer should be treated as zero-padded: got %#04x, want %#04x", odd, even)
	}
}

func TestVerifyZeroRoundTrip(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	xsum := Fold(Checksum(buf, 0))
	full := append(append([]byte{}, buf...), byte(xsum>>8), byte(xsum))
	if !VerifyZero(Checksum(full, 0)) {
		t.Errorf("Checksum(B || complement(Checksum(B))) did not fold to 0xFFFF")
	}
}

func TestChecksumerMatchesChecksum(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7}
	want := Checksum(buf, 0)

	var c Checksumer
	c.Add(buf[:3])
	c.Add(buf[3:])
	if got := c.Checksum(); got != want {
		t.Errorf("Checksumer split across Add calls = %#04x, want %#04x", got, want)
	}
}

func TestCombine(t *testing.T) {
	whole := Checksum([]byte{1, 2, 3, 4, 5, 6}, 0)
	parts := Combine(Checksum([]byte{1, 2, 3, 4}, 0), Checksum([]byte{5, 6}, 0))
	if whole != parts {
		t.Errorf("Combine of independently checksummed halves = %#04x, want %#04x", parts, whole)
	}
}

func TestPut(t *testing.T) {
	b := make([]byte, 2)
	Put(b, 0xABCD)
	if b[0] != 0xAB || b[1] != 0xCD {
		t.Errorf("Put wrote %x, want ABCD", b)
	}
}
