// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package filter

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/kentik/patricia"
	tree "github.com/kentik/patricia/generics_tree"

	"bgpsdn/route"
)

// Prefix matches routes whose prefix fits one of the provided
// patterns. Patterns follow the BIRD syntax:
//
//	prefix           exact match
//	prefix+          the prefix and all its subnets
//	prefix-          the prefix and all its supernets
//	prefix{low,high} the prefix, its subnets and its supernets with a
//	                 length between low and high
//
// Each node of the tries holds a mask of accepted prefix lengths. A
// route matches when one of the nodes covering it accepts its length.
// The masks for the default routes are kept outside the tries.
type Prefix struct {
	ruleBase
	patterns []string
	v4       *tree.TreeV4[*bitset.BitSet]
	v6       *tree.TreeV6[*bitset.BitSet]
	root4    *bitset.BitSet
	root6    *bitset.BitSet
}

// martians are the prefixes that should never appear in the global
// routing table.
var martians = []string{
	"0.0.0.0/8+",         // "this" network
	"10.0.0.0/8+",        // private-use network
	"100.64.0.0/10+",     // carrier-grade NAT
	"127.0.0.0/8+",       // loopback
	"169.254.0.0/16+",    // link local
	"172.16.0.0/12+",     // private-use network
	"192.0.0.0/24+",      // IETF protocol assignments
	"192.0.2.0/24+",      // TEST-NET-1
	"192.168.0.0/16+",    // private-use network
	"198.18.0.0/15+",     // network equipment testing
	"198.51.100.0/24+",   // TEST-NET-2
	"203.0.113.0/24+",    // TEST-NET-3
	"224.0.0.0/4+",       // multicast
	"240.0.0.0/4+",       // future use
	"255.255.255.255/32", // limited broadcast
	"::1/128",            // loopback
	"::/128",             // unspecified
	"::ffff:0:0/96+",     // IPv4-mapped addresses
	"100::/64+",          // discard-only
	"2001::/23+",         // IANA protocol assignments
	"2001:10::/28+",      // ORCHID
	"2001:db8::/32+",     // documentation
	"2002::/16+",         // 6to4
	"fc00::/7+",          // unique local addresses
	"fe80::/10+",         // link local unicast
	"ff00::/8+",          // multicast
}

// NewMartians creates a prefix rule matching martians.
func NewMartians(onMatch Verdict) *Prefix {
	r, err := NewPrefix(martians, onMatch)
	if err != nil {
		panic(err)
	}
	return r
}

// NewPrefix creates a rule matching the provided prefix patterns.
func NewPrefix(patterns []string, onMatch Verdict) (*Prefix, error) {
	r := &Prefix{
		ruleBase: newRuleBase(onMatch),
		patterns: patterns,
		v4:       tree.NewTreeV4[*bitset.BitSet](),
		v6:       tree.NewTreeV6[*bitset.BitSet](),
		root4:    bitset.New(33),
		root6:    bitset.New(129),
	}
	masks := map[netip.Prefix]*bitset.BitSet{}
	accept := func(p netip.Prefix, lo, hi int) {
		mask, ok := masks[p]
		if p.Bits() == 0 {
			mask = r.root(p)
		} else if !ok {
			mask = bitset.New(129)
			masks[p] = mask
		}
		for l := lo; l <= hi; l++ {
			mask.Set(uint(l))
		}
	}
	for _, pattern := range patterns {
		prefix, lo, hi, err := parsePattern(pattern)
		if err != nil {
			return nil, err
		}
		plen := prefix.Bits()
		// Supernets only accept their own length.
		for l := lo; l <= min(plen-1, hi); l++ {
			supernet, _ := prefix.Addr().Prefix(l)
			accept(supernet, l, l)
		}
		// The prefix itself accepts itself and the subnets in range.
		if plen <= hi {
			accept(prefix, max(lo, plen), hi)
		}
	}
	for p, mask := range masks {
		r.set(p, mask)
	}
	return r, nil
}

func (r *Prefix) root(p netip.Prefix) *bitset.BitSet {
	if p.Addr().Is4() {
		return r.root4
	}
	return r.root6
}

func (r *Prefix) set(p netip.Prefix, mask *bitset.BitSet) {
	if p.Addr().Is4() {
		r.v4.Set(patricia.NewIPv4AddressFromBytes(p.Addr().AsSlice(), uint(p.Bits())), mask)
	} else {
		r.v6.Set(patricia.NewIPv6Address(p.Addr().AsSlice(), uint(p.Bits())), mask)
	}
}

// parsePattern parses a prefix pattern and returns the prefix with
// the range of accepted lengths.
func parsePattern(pattern string) (netip.Prefix, int, int, error) {
	pattern = strings.TrimSpace(pattern)
	var lo, hi int
	var prefix netip.Prefix
	var err error
	switch {
	case strings.HasSuffix(pattern, "+"):
		prefix, err = route.ParsePrefix(pattern[:len(pattern)-1])
		lo, hi = prefix.Bits(), prefix.Addr().BitLen()
	case strings.HasSuffix(pattern, "-"):
		prefix, err = route.ParsePrefix(pattern[:len(pattern)-1])
		lo, hi = 0, prefix.Bits()
	case strings.HasSuffix(pattern, "}"):
		idx := strings.Index(pattern, "{")
		if idx < 0 {
			return netip.Prefix{}, 0, 0, fmt.Errorf("invalid prefix pattern %q", pattern)
		}
		prefix, err = route.ParsePrefix(pattern[:idx])
		if err != nil {
			break
		}
		low, high, ok := strings.Cut(pattern[idx+1:len(pattern)-1], ",")
		if !ok {
			return netip.Prefix{}, 0, 0, fmt.Errorf("invalid range in prefix pattern %q", pattern)
		}
		lo, err = strconv.Atoi(strings.TrimSpace(low))
		if err == nil {
			hi, err = strconv.Atoi(strings.TrimSpace(high))
		}
		if err == nil && (lo < 0 || hi < lo || hi > prefix.Addr().BitLen()) {
			err = fmt.Errorf("range out of bounds")
		}
		if err != nil {
			return netip.Prefix{}, 0, 0, fmt.Errorf("invalid range in prefix pattern %q: %w", pattern, err)
		}
	default:
		prefix, err = route.ParsePrefix(pattern)
		lo, hi = prefix.Bits(), prefix.Bits()
	}
	if err != nil {
		return netip.Prefix{}, 0, 0, err
	}
	return prefix, lo, hi, nil
}

// Match checks if the route prefix is accepted by one of the patterns.
func (r *Prefix) Match(e route.Entry) Verdict {
	p := e.Prefix
	l := p.Bits()
	if r.root(p).Test(uint(l)) {
		return r.onMatch
	}
	if l == 0 {
		return NoVerdict
	}
	var masks []*bitset.BitSet
	if p.Addr().Is4() {
		masks = r.v4.FindTags(patricia.NewIPv4AddressFromBytes(p.Addr().AsSlice(), uint(l)))
	} else {
		masks = r.v6.FindTags(patricia.NewIPv6Address(p.Addr().AsSlice(), uint(l)))
	}
	for _, mask := range masks {
		if mask.Test(uint(l)) {
			return r.onMatch
		}
	}
	return NoVerdict
}

func (r *Prefix) String() string {
	if len(r.patterns) == len(martians) && r.patterns[0] == martians[0] {
		return fmt.Sprintf("Martians(onmatch=%s)", r.onMatch)
	}
	return fmt.Sprintf("Prefix(onmatch=%s, prefixes=[%s])", r.onMatch, strings.Join(r.patterns, ","))
}
