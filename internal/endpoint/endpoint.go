// Package endpoint defines the fixed-capacity, address-family-tagged socket
// address record used throughout keepalived, and the address-bits-only
// comparator that decides peer identity.
package endpoint

import "net/netip"

// Family identifies the address family carried by an Endpoint.
type Family uint8

const (
	// FamilyUnknown is the zero value; endpoints of this family never match
	// anything, including themselves.
	FamilyUnknown Family = iota
	FamilyInet
	FamilyInet6
)

// Endpoint is a socket address: an address family, the address bits, and a
// port. Identity for authorization purposes is the address bits only;
// the port is carried for bind/connect but is never compared.
type Endpoint struct {
	Family Family
	Addr   netip.Addr
	Port   uint16
}

// NewEndpoint builds an Endpoint from a netip.Addr and port, inferring the
// family. A 4-in-6 mapped address is unmapped to plain v4; an address that
// is neither v4 nor v6 (the zero netip.Addr) yields a FamilyUnknown endpoint.
func NewEndpoint(addr netip.Addr, port uint16) Endpoint {
	a := addr.Unmap()
	fam := FamilyUnknown
	switch {
	case a.Is4():
		fam = FamilyInet
	case a.Is6():
		fam = FamilyInet6
	}
	return Endpoint{Family: fam, Addr: a, Port: port}
}

// AddrPort returns the standard library representation for dialing/binding.
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr, e.Port)
}

// Equal reports whether one and two identify the same peer: same family and
// byte-equal address bits. The port is deliberately ignored — clients send
// from an ephemeral UDP port, so authorization is by source address alone.
// Endpoints of FamilyUnknown never match anything, including themselves.
func Equal(one, two Endpoint) bool {
	if one.Family == FamilyUnknown || two.Family == FamilyUnknown {
		return false
	}
	if one.Family != two.Family {
		return false
	}
	return one.Addr == two.Addr
}
