// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package route defines the route entries handled by the controller:
// prefixes, BGP attributes, best-path ordering and a compact binary
// encoding used to move large sets of routes between actors.
package route

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

// DefaultPreference is the local preference given to routes without
// an explicit one.
const DefaultPreference = 100

// ParsePrefix parses a prefix in CIDR notation. The returned prefix
// is normalized (host bits are cleared).
func ParsePrefix(input string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(input))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix %q: %w", input, err)
	}
	return prefix.Masked(), nil
}

// MustParsePrefix parses a prefix and panics on error. It should only
// be used for constants and in tests.
func MustParsePrefix(input string) netip.Prefix {
	prefix, err := ParsePrefix(input)
	if err != nil {
		panic(err)
	}
	return prefix
}

// Contains tells if outer is a supernet of (or equal to) inner.
func Contains(outer, inner netip.Prefix) bool {
	if outer.Addr().Is4() != inner.Addr().Is4() {
		return false
	}
	return outer.Bits() <= inner.Bits() && outer.Contains(inner.Addr())
}

// ComparePrefixes orders prefixes: IPv4 first, then by address, then
// by length.
func ComparePrefixes(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}

// Family returns the address family of a prefix.
func Family(prefix netip.Prefix) bgp.RouteFamily {
	if prefix.Addr().Is4() {
		return bgp.RF_IPv4_UC
	}
	return bgp.RF_IPv6_UC
}
