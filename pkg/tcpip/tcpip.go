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

// Package tcpip provides the address primitives and error space shared by
// every layer of the virtual network stack: IPv4Address, MacAddress, and
// the Error type used for programmer-misuse and assertion-class failures.
package tcpip

import (
	"fmt"
	"strconv"
	"strings"
)

// IPv4AddressSize is the number of bytes in an IPv4 address.
const IPv4AddressSize = 4

// MacAddressSize is the number of bytes in an Ethernet MAC address.
const MacAddressSize = 6

// IPv4Address is a four-octet IPv4 address. The zero value is 0.0.0.0.
type IPv4Address [IPv4AddressSize]byte

// IPv4Broadcast is the limited broadcast address.
var IPv4Broadcast = IPv4Address{255, 255, 255, 255}

// ParseIPv4 parses a dotted-decimal string ("192.168.0.1") into an
// IPv4Address.
func ParseIPv4(s string) (IPv4Address, error) {
	var addr IPv4Address
	parts := strings.Split(s, ".")
	if len(parts) != IPv4AddressSize {
		return addr, fmt.Errorf("tcpip: invalid IPv4 address %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return addr, fmt.Errorf("tcpip: invalid IPv4 address %q: %w", s, err)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}

// IPv4AddressFromBytes constructs an IPv4Address from a byte slice of
// length IPv4AddressSize.
func IPv4AddressFromBytes(b []byte) (IPv4Address, error) {
	var addr IPv4Address
	if len(b) != IPv4AddressSize {
		return addr, fmt.Errorf("tcpip: invalid IPv4 address length %d", len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// IPv4AddressFromUint32 converts a 32-bit unsigned integer in network byte
// order into an IPv4Address.
func IPv4AddressFromUint32(v uint32) IPv4Address {
	return IPv4Address{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// Uint32 losslessly converts a to its 32-bit unsigned integer form.
func (a IPv4Address) Uint32() uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

// String returns the dotted-decimal representation of a.
func (a IPv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// Equal reports whether a and b are the same address.
func (a IPv4Address) Equal(b IPv4Address) bool {
	return a == b
}

// IsBroadcast reports whether a is the limited broadcast address
// 255.255.255.255.
func (a IPv4Address) IsBroadcast() bool {
	return a == IPv4Broadcast
}

// And returns the bitwise AND of a and b.
func (a IPv4Address) And(b IPv4Address) IPv4Address {
	return IPv4AddressFromUint32(a.Uint32() & b.Uint32())
}

// Or returns the bitwise OR of a and b.
func (a IPv4Address) Or(b IPv4Address) IPv4Address {
	return IPv4AddressFromUint32(a.Uint32() | b.Uint32())
}

// Xor returns the bitwise XOR of a and b.
func (a IPv4Address) Xor(b IPv4Address) IPv4Address {
	return IPv4AddressFromUint32(a.Uint32() ^ b.Uint32())
}

// Not returns the bitwise complement of a.
func (a IPv4Address) Not() IPv4Address {
	return IPv4AddressFromUint32(^a.Uint32())
}

// MacAddress is a six-octet Ethernet hardware address.
type MacAddress [MacAddressSize]byte

// BroadcastMac is the Ethernet broadcast address.
var BroadcastMac = MacAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMac parses a colon-hex string ("aa:bb:cc:dd:ee:ff") into a
// MacAddress.
func ParseMac(s string) (MacAddress, error) {
	var addr MacAddress
	parts := strings.Split(s, ":")
	if len(parts) != MacAddressSize {
		return addr, fmt.Errorf("tcpip: invalid MAC address %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("tcpip: invalid MAC address %q: %w", s, err)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}

// MacAddressFromBytes constructs a MacAddress from a byte slice of length
// MacAddressSize.
func MacAddressFromBytes(b []byte) (MacAddress, error) {
	var addr MacAddress
	if len(b) != MacAddressSize {
		return addr, fmt.Errorf("tcpip: invalid MAC address length %d", len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// String returns the colon-hex representation of a.
func (a MacAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Equal reports whether a and b are the same address.
func (a MacAddress) Equal(b MacAddress) bool {
	return a == b
}

// IsBroadcast reports whether a is the Ethernet broadcast address.
func (a MacAddress) IsBroadcast() bool {
	return a == BroadcastMac
}
