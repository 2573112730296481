package netaddr

import (
	"strconv"
	"strings"

	"github.com/prefixd/prefixd/errs"
)

// Prefix is an immutable CIDR block: a base address plus a prefix length.
type Prefix struct {
	addr Addr
	bits int
}

// ParseCIDR parses CIDR notation such as "10.0.0.0/8" or "2600:1f18::/32".
// The prefix length must lie within the family's range: 0-32 for IPv4 and
// 0-128 for IPv6. Host bits in the base address are preserved as written.
func ParseCIDR(text string) (Prefix, error) {
	slash := strings.LastIndexByte(text, '/')
	if slash < 0 {
		return Prefix{}, errs.New("netaddr", errs.CodeMalformedCIDR,
			errs.WithMessage("missing prefix length: "+text))
	}
	addr, err := ParseAddr(text[:slash])
	if err != nil {
		return Prefix{}, errs.New("netaddr", errs.CodeMalformedCIDR,
			errs.WithMessage("invalid base address: "+text), errs.WithCause(err))
	}
	bits, err := strconv.Atoi(text[slash+1:])
	if err != nil {
		return Prefix{}, errs.New("netaddr", errs.CodeMalformedCIDR,
			errs.WithMessage("invalid prefix length: "+text), errs.WithCause(err))
	}
	if bits < 0 || bits > addr.BitLen() {
		return Prefix{}, errs.New("netaddr", errs.CodeMalformedCIDR,
			errs.WithMessage("prefix length out of range: "+text))
	}
	return Prefix{addr: addr, bits: bits}, nil
}

// Addr returns the base address of the block.
func (p Prefix) Addr() Addr { return p.addr }

// Bits returns the prefix length.
func (p Prefix) Bits() int { return p.bits }

// Family reports the block's address family.
func (p Prefix) Family() Family { return p.addr.family }

// Contains reports whether addr falls inside the block: the address and the
// block's base share the top Bits() bits compared as fixed-width integers.
// Addresses of a different family never match. Partial-byte prefix lengths
// mask only the relevant bits.
func (p Prefix) Contains(addr Addr) bool {
	if addr.family != p.addr.family {
		return false
	}
	if p.addr.family == FamilyIPv4 {
		return (p.addr.lo^addr.lo)>>(32-p.bits) == 0
	}
	if p.bits <= 64 {
		return (p.addr.hi^addr.hi)>>(64-p.bits) == 0
	}
	return p.addr.hi == addr.hi && (p.addr.lo^addr.lo)>>(128-p.bits) == 0
}

// String renders the block in CIDR notation with the base address in its
// canonical textual form.
func (p Prefix) String() string {
	return p.addr.String() + "/" + strconv.Itoa(p.bits)
}
