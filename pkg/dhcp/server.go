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

package dhcp

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/pkg/tcpip"
)

// leaseTime is the fixed lease duration the router's DHCP server always
// advertises (spec.md §4.7).
const leaseTime = 86400 * time.Second

const hostName = "emulatorhost"

// Server answers DHCP DISCOVER/REQUEST messages on behalf of a router. It
// holds the router's fixed identity and subnet mask needed to fill in
// OFFER/ACK options; the device table itself lives in Registry.
type Server struct {
	RouterMAC  tcpip.MacAddress
	RouterIP   tcpip.IPv4Address
	SubnetMask tcpip.IPv4Address
	Registry   Registry

	log *logrus.Entry
}

// Registry is the device-table surface the server needs: allocate-or-find
// a device for a client's MAC, and mark one confirmed on REQUEST.
// *router.Router implements this via router.Router.AsDHCPRegistry.
type Registry interface {
	GetOrRegisterDevice(mac tcpip.MacAddress) (Device, bool)
	ConfirmDevice(mac tcpip.MacAddress)
}

// Device is the allocation result the server needs from the registry: just
// the assigned IP.
type Device struct {
	IP tcpip.IPv4Address
}

// NewServer constructs a Server bound to the given fixed router identity
// and device registry.
func NewServer(routerMAC tcpip.MacAddress, routerIP, subnetMask tcpip.IPv4Address, registry Registry) *Server {
	return &Server{
		RouterMAC:  routerMAC,
		RouterIP:   routerIP,
		SubnetMask: subnetMask,
		Registry:   registry,
		log:        logrus.WithField("layer", "dhcp"),
	}
}

// Handle processes an inbound client message and returns the reply message
// to broadcast, or nil if the request is malformed, from the router
// itself, or the subnet is exhausted — all of which are logged and
// dropped, never an error return (spec.md §4.7).
func (s *Server) Handle(req Message) Message {
	if !req.IsValid() {
		s.log.Warn("dropping malformed DHCP message")
		return nil
	}
	if req.Op() != OpRequest {
		return nil
	}
	clientMAC := req.ClientHardwareAddr()
	if clientMAC == s.RouterMAC {
		return nil // loopback suppression: never answer our own broadcasts
	}

	opts, err := req.Options()
	if err != nil {
		s.log.WithError(err).Warn("dropping DHCP message with malformed options")
		return nil
	}
	msgType, ok := MsgTypeOf(opts)
	if !ok {
		s.log.Warn("dropping DHCP message with no message-type option")
		return nil
	}

	device, ok := s.Registry.GetOrRegisterDevice(clientMAC)
	if !ok {
		s.log.WithField("mac", clientMAC).Warn("subnet exhausted, dropping DHCP request")
		return nil
	}

	switch msgType {
	case Discover:
		return s.reply(req, device.IP, Offer)
	case Request:
		s.Registry.ConfirmDevice(clientMAC)
		return s.reply(req, device.IP, ACK)
	default:
		return nil
	}
}

func (s *Server) reply(req Message, assigned tcpip.IPv4Address, msgType MsgType) Message {
	opts := []Option{
		{Code: OptMsgType, Body: []byte{byte(msgType)}},
		{Code: OptSubnetMask, Body: append([]byte{}, s.SubnetMask[:]...)},
		{Code: OptRouter, Body: append([]byte{}, s.RouterIP[:]...)},
		{Code: OptDNS, Body: append([]byte{}, s.RouterIP[:]...)},
		{Code: OptHostName, Body: []byte(hostName)},
		{Code: OptDomainName, Body: []byte(hostName)},
		{Code: OptBroadcastAddr, Body: append([]byte{}, tcpip.IPv4Broadcast[:]...)},
		{Code: OptLeaseTime, Body: encodeUint32(uint32(leaseTime / time.Second))},
		{Code: OptServerID, Body: append([]byte{}, s.RouterIP[:]...)},
	}

	resp := NewMessage(headerBaseSize + OptionsSize(opts))
	resp.SetOp(OpReply)
	resp.SetXid(req.Xid())
	resp.SetYourAddr(assigned)
	resp.SetServerAddr(s.RouterIP)
	resp.SetClientHardwareAddr(req.ClientHardwareAddr())
	resp.SetServerName(hostName)
	if err := resp.SetOptions(opts); err != nil {
		s.log.WithError(err).Warn("dropping reply: options did not fit")
		return nil
	}
	return resp
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
