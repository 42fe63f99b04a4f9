// Package router implements the device table, ARP/DHCP address
// allocation, and the fixed router identity shared by the ARP responder
// and DHCP server (spec.md §4.9).
package router

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pgbox/vnet/pkg/dhcp"
	"github.com/pgbox/vnet/pkg/tcpip"
)

// Device is a router-known peer: a MAC, an assigned IPv4 address, and
// whether a DHCP REQUEST has confirmed the assignment (spec.md §3).
type Device struct {
	MAC       tcpip.MacAddress
	IP        tcpip.IPv4Address
	Confirmed bool
}

// Router owns the device table: a fixed identity (MAC, IP, subnet mask)
// plus the ip→mac and mac→Device maps spec.md §3 requires stay mutually
// consistent. The router itself is always registered as the first,
// permanently confirmed device.
type Router struct {
	mac    tcpip.MacAddress
	ip     tcpip.IPv4Address
	subnet tcpip.IPv4Address // mask

	log *logrus.Entry

	mu    sync.Mutex
	byMAC map[tcpip.MacAddress]*Device
	byIP  map[tcpip.IPv4Address]*Device
}

// New constructs a Router with the given fixed identity and registers
// itself as the first, confirmed device.
func New(mac tcpip.MacAddress, ip, subnetMask tcpip.IPv4Address) *Router {
	r := &Router{
		mac:    mac,
		ip:     ip,
		subnet: subnetMask,
		log:    logrus.WithField("layer", "router"),
		byMAC:  make(map[tcpip.MacAddress]*Device),
		byIP:   make(map[tcpip.IPv4Address]*Device),
	}
	self := &Device{MAC: mac, IP: ip, Confirmed: true}
	r.byMAC[mac] = self
	r.byIP[ip] = self
	return r
}

// MAC returns the router's own MAC address.
func (r *Router) MAC() tcpip.MacAddress { return r.mac }

// IP returns the router's own IPv4 address.
func (r *Router) IP() tcpip.IPv4Address { return r.ip }

// SubnetMask returns the subnet mask devices are allocated within.
func (r *Router) SubnetMask() tcpip.IPv4Address { return r.subnet }

// networkAddress is the all-zeros-in-host-bits address of the subnet.
func (r *Router) networkAddress() tcpip.IPv4Address {
	return r.ip.And(r.subnet)
}

// broadcastAddress is the all-ones-in-host-bits address of the subnet.
func (r *Router) broadcastAddress() tcpip.IPv4Address {
	return r.networkAddress().Or(r.subnet.Not())
}

// GetDeviceByMAC returns the device registered under mac, if any.
func (r *Router) GetDeviceByMAC(mac tcpip.MacAddress) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byMAC[mac]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// GetDeviceByIP returns the device holding ip, if any.
func (r *Router) GetDeviceByIP(ip tcpip.IPv4Address) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byIP[ip]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// RegisterDevice allocates the first free in-subnet IP, scanning the
// subnet linearly from its first host address (skipping the network and
// broadcast addresses, and any already-assigned IP), for mac and returns
// the new, unconfirmed Device. It returns false if the subnet is
// exhausted (spec.md §4.9).
func (r *Router) RegisterDevice(mac tcpip.MacAddress) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerDeviceLocked(mac)
}

func (r *Router) registerDeviceLocked(mac tcpip.MacAddress) (Device, bool) {
	if d, ok := r.byMAC[mac]; ok {
		return *d, true
	}

	network := r.networkAddress().Uint32()
	broadcast := r.broadcastAddress().Uint32()
	span := broadcast - network
	if span < 2 {
		return Device{}, false
	}

	for offset := uint32(0); offset < span-1; offset++ {
		candidate := tcpip.IPv4AddressFromUint32(network + 1 + offset)
		if _, taken := r.byIP[candidate]; taken {
			continue
		}
		d := &Device{MAC: mac, IP: candidate}
		r.byMAC[mac] = d
		r.byIP[candidate] = d
		r.log.WithFields(logrus.Fields{"mac": mac, "ip": candidate}).Info("registered device")
		return *d, true
	}
	r.log.WithField("mac", mac).Warn("subnet exhausted, cannot register device")
	return Device{}, false
}

// GetOrRegisterDevice returns the device for mac, registering a new one if
// none exists yet (spec.md §4.9's "getOrRegisterDevice is idempotent").
func (r *Router) GetOrRegisterDevice(mac tcpip.MacAddress) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byMAC[mac]; ok {
		return *d, true
	}
	return r.registerDeviceLocked(mac)
}

// ConfirmDevice marks the device owning mac as confirmed (a DHCP REQUEST
// has been seen for it). It is a no-op if mac is unknown.
func (r *Router) ConfirmDevice(mac tcpip.MacAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byMAC[mac]; ok {
		d.Confirmed = true
	}
}

// dhcpRegistry adapts a Router to dhcp.Registry without dhcp needing to
// know about package router.
type dhcpRegistry struct{ r *Router }

func (d dhcpRegistry) GetOrRegisterDevice(mac tcpip.MacAddress) (dhcp.Device, bool) {
	dev, ok := d.r.GetOrRegisterDevice(mac)
	return dhcp.Device{IP: dev.IP}, ok
}

func (d dhcpRegistry) ConfirmDevice(mac tcpip.MacAddress) { d.r.ConfirmDevice(mac) }

// AsDHCPRegistry adapts r to dhcp.Registry, for use constructing a
// dhcp.Server bound to this router's device table.
func (r *Router) AsDHCPRegistry() dhcp.Registry {
	return dhcpRegistry{r: r}
}

// Snapshot returns a point-in-time copy of every registered device,
// including the router itself. Supplemental to spec.md — useful for
// diagnostics and tests without exposing the router's internal maps.
func (r *Router) Snapshot() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Device, 0, len(r.byMAC))
	for _, d := range r.byMAC {
		out = append(out, *d)
	}
	return out
}
