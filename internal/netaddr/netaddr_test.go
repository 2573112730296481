package netaddr

import (
	"testing"

	"github.com/prefixd/prefixd/errs"
)

func TestParseAddrIPv4(t *testing.T) {
	addr, err := ParseAddr("192.168.1.10")
	if err != nil {
		t.Fatalf("ParseAddr() error = %v", err)
	}
	if addr.Family() != FamilyIPv4 {
		t.Errorf("Family() = %v, want FamilyIPv4", addr.Family())
	}
	if got := addr.String(); got != "192.168.1.10" {
		t.Errorf("String() = %q, want %q", got, "192.168.1.10")
	}
}

func TestParseAddrIPv6Compression(t *testing.T) {
	addr, err := ParseAddr("2600:1f18::ff:1")
	if err != nil {
		t.Fatalf("ParseAddr() error = %v", err)
	}
	if addr.Family() != FamilyIPv6 {
		t.Errorf("Family() = %v, want FamilyIPv6", addr.Family())
	}
	if got := addr.String(); got != "2600:1f18::ff:1" {
		t.Errorf("String() = %q, want %q", got, "2600:1f18::ff:1")
	}
}

func TestParseAddrRejectsMalformed(t *testing.T) {
	for _, text := range []string{"", "1.2.3", "1.2.3.4.5", "256.1.1.1", "2600::1::2", "fe80::1%eth0", "hostname"} {
		_, err := ParseAddr(text)
		if err == nil {
			t.Errorf("ParseAddr(%q) expected error", text)
			continue
		}
		if !errs.Is(err, errs.CodeMalformedAddress) {
			t.Errorf("ParseAddr(%q) code = %v, want malformed_address", text, errs.CodeOf(err))
		}
	}
}

func TestParseCIDR(t *testing.T) {
	prefix, err := ParseCIDR("10.40.0.0/13")
	if err != nil {
		t.Fatalf("ParseCIDR() error = %v", err)
	}
	if prefix.Bits() != 13 {
		t.Errorf("Bits() = %d, want 13", prefix.Bits())
	}
	if prefix.Family() != FamilyIPv4 {
		t.Errorf("Family() = %v, want FamilyIPv4", prefix.Family())
	}
}

func TestParseCIDRRejectsMalformed(t *testing.T) {
	cases := []string{
		"10.0.0.0",      // no slash
		"10.0.0.0/33",   // out of range for IPv4
		"10.0.0.0/-1",   // negative
		"10.0.0.0/x",    // not a number
		"2600::/129",    // out of range for IPv6
		"not-an-ip/8",   // bad base address
		"1.2.3.4/08/24", // trailing garbage in length
	}
	for _, text := range cases {
		_, err := ParseCIDR(text)
		if err == nil {
			t.Errorf("ParseCIDR(%q) expected error", text)
			continue
		}
		if !errs.Is(err, errs.CodeMalformedCIDR) {
			t.Errorf("ParseCIDR(%q) code = %v, want malformed_cidr", text, errs.CodeOf(err))
		}
	}
}

func TestParseCIDRBoundaryLengths(t *testing.T) {
	for _, text := range []string{"0.0.0.0/0", "1.2.3.4/32", "::/0", "2600::1/128"} {
		if _, err := ParseCIDR(text); err != nil {
			t.Errorf("ParseCIDR(%q) error = %v", text, err)
		}
	}
}

func TestContainsIPv4(t *testing.T) {
	cases := []struct {
		cidr string
		addr string
		want bool
	}{
		{"1.2.3.0/24", "1.2.3.5", true},
		{"1.2.3.0/24", "1.2.4.5", false},
		{"0.0.0.0/0", "255.255.255.255", true},
		{"10.0.0.0/8", "10.255.0.1", true},
		{"10.0.0.0/8", "11.0.0.1", false},
		{"1.2.3.4/32", "1.2.3.4", true},
		{"1.2.3.4/32", "1.2.3.5", false},
		// Non-octet-aligned lengths must mask only the covered bits.
		{"10.40.0.0/13", "10.47.255.255", true},
		{"10.40.0.0/13", "10.48.0.0", false},
		{"192.168.0.0/31", "192.168.0.1", true},
		{"192.168.0.0/31", "192.168.0.2", false},
	}
	for _, tc := range cases {
		prefix, err := ParseCIDR(tc.cidr)
		if err != nil {
			t.Fatalf("ParseCIDR(%q) error = %v", tc.cidr, err)
		}
		addr, err := ParseAddr(tc.addr)
		if err != nil {
			t.Fatalf("ParseAddr(%q) error = %v", tc.addr, err)
		}
		if got := prefix.Contains(addr); got != tc.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tc.cidr, tc.addr, got, tc.want)
		}
	}
}

func TestContainsIPv6(t *testing.T) {
	cases := []struct {
		cidr string
		addr string
		want bool
	}{
		{"2600:1f18::/32", "2600:1f18:ffff::1", true},
		{"2600:1f18::/32", "2600:1f19::1", false},
		{"::/0", "ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff", true},
		{"2600::1/128", "2600::1", true},
		{"2600::1/128", "2600::2", false},
		// Splits below the 64-bit boundary.
		{"2600:1f18::/65", "2600:1f18:0:0:7fff::1", true},
		{"2600:1f18::/65", "2600:1f18:0:0:8000::1", false},
		// Non-nibble-aligned split.
		{"2600:1f18:8000::/33", "2600:1f18:8abc::1", true},
		{"2600:1f18:8000::/33", "2600:1f18:7abc::1", false},
	}
	for _, tc := range cases {
		prefix, err := ParseCIDR(tc.cidr)
		if err != nil {
			t.Fatalf("ParseCIDR(%q) error = %v", tc.cidr, err)
		}
		addr, err := ParseAddr(tc.addr)
		if err != nil {
			t.Fatalf("ParseAddr(%q) error = %v", tc.addr, err)
		}
		if got := prefix.Contains(addr); got != tc.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tc.cidr, tc.addr, got, tc.want)
		}
	}
}

func TestContainsCrossFamilyNeverMatches(t *testing.T) {
	v4block, _ := ParseCIDR("0.0.0.0/0")
	v6block, _ := ParseCIDR("::/0")
	v4addr, _ := ParseAddr("1.2.3.4")
	v6addr, _ := ParseAddr("::1")

	if v4block.Contains(v6addr) {
		t.Error("IPv4 block must not contain an IPv6 address")
	}
	if v6block.Contains(v4addr) {
		t.Error("IPv6 block must not contain an IPv4 address")
	}
}

func TestContainsIgnoresHostBits(t *testing.T) {
	// Blocks written with arbitrary host bits behave identically to their
	// canonical form: only the covered bits participate in the comparison.
	canonical, _ := ParseCIDR("1.2.3.0/24")
	dirty, _ := ParseCIDR("1.2.3.77/24")

	for _, text := range []string{"1.2.3.0", "1.2.3.5", "1.2.3.255", "1.2.4.0", "9.9.9.9"} {
		addr, _ := ParseAddr(text)
		if canonical.Contains(addr) != dirty.Contains(addr) {
			t.Errorf("host bits changed Contains result for %q", text)
		}
	}
}

func TestAddrBit(t *testing.T) {
	addr, _ := ParseAddr("128.0.0.1")
	if addr.Bit(0) != 1 {
		t.Error("Bit(0) of 128.0.0.1 should be 1")
	}
	if addr.Bit(1) != 0 {
		t.Error("Bit(1) of 128.0.0.1 should be 0")
	}
	if addr.Bit(31) != 1 {
		t.Error("Bit(31) of 128.0.0.1 should be 1")
	}

	v6, _ := ParseAddr("8000::1")
	if v6.Bit(0) != 1 {
		t.Error("Bit(0) of 8000::1 should be 1")
	}
	if v6.Bit(64) != 0 {
		t.Error("Bit(64) of 8000::1 should be 0")
	}
	if v6.Bit(127) != 1 {
		t.Error("Bit(127) of 8000::1 should be 1")
	}
}
