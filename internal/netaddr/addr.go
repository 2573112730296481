// Package netaddr implements fixed-width IP address and CIDR arithmetic for
// the range directory. Addresses are held as 128-bit values so masking and
// bit indexing behave identically for both families.
package netaddr

import (
	"net/netip"

	"github.com/prefixd/prefixd/errs"
)

// Family identifies an IP address family.
type Family uint8

const (
	// FamilyIPv4 marks 32-bit addresses.
	FamilyIPv4 Family = 4
	// FamilyIPv6 marks 128-bit addresses.
	FamilyIPv6 Family = 6
)

// String returns the conventional family label.
func (f Family) String() string {
	if f == FamilyIPv4 {
		return "ipv4"
	}
	return "ipv6"
}

// Addr is an immutable IP address held as a fixed-width integer.
// IPv4 addresses occupy the low 32 bits with hi always zero.
type Addr struct {
	hi     uint64
	lo     uint64
	family Family
}

// ParseAddr parses an IPv4 or IPv6 literal. IPv6 literals may use the
// :: zero-run compression. Zoned literals are rejected.
func ParseAddr(text string) (Addr, error) {
	parsed, err := netip.ParseAddr(text)
	if err != nil {
		return Addr{}, errs.New("netaddr", errs.CodeMalformedAddress,
			errs.WithMessage("invalid address literal: "+text), errs.WithCause(err))
	}
	if parsed.Zone() != "" {
		return Addr{}, errs.New("netaddr", errs.CodeMalformedAddress,
			errs.WithMessage("zoned address not supported: "+text))
	}
	return fromNetip(parsed), nil
}

func fromNetip(parsed netip.Addr) Addr {
	if parsed.Is4() {
		b := parsed.As4()
		lo := uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
		return Addr{hi: 0, lo: lo, family: FamilyIPv4}
	}
	b := parsed.As16()
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
		lo = lo<<8 | uint64(b[i+8])
	}
	return Addr{hi: hi, lo: lo, family: FamilyIPv6}
}

// Family reports the address family.
func (a Addr) Family() Family { return a.family }

// BitLen returns the address width in bits for the family.
func (a Addr) BitLen() int {
	if a.family == FamilyIPv4 {
		return 32
	}
	return 128
}

// Bit returns the i-th most significant bit of the address, with i counted
// from zero. Callers must keep i within [0, BitLen).
func (a Addr) Bit(i int) byte {
	if a.family == FamilyIPv4 {
		return byte(a.lo >> (31 - i) & 1)
	}
	if i < 64 {
		return byte(a.hi >> (63 - i) & 1)
	}
	return byte(a.lo >> (127 - i) & 1)
}

// String renders the canonical textual form of the address.
func (a Addr) String() string {
	return a.toNetip().String()
}

func (a Addr) toNetip() netip.Addr {
	if a.family == FamilyIPv4 {
		return netip.AddrFrom4([4]byte{
			byte(a.lo >> 24), byte(a.lo >> 16), byte(a.lo >> 8), byte(a.lo),
		})
	}
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(a.hi >> (56 - 8*i))
		b[i+8] = byte(a.lo >> (56 - 8*i))
	}
	return netip.AddrFrom16(b)
}
