// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package route

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// Entry is one candidate path to a prefix. The AS set and the
// communities are kept sorted and without duplicates when modified
// through methods.
type Entry struct {
	Origin      Origin
	Peer        uint32
	Prefix      netip.Prefix
	NextHop     string
	ASPath      []uint32
	ASSet       []uint32
	Communities []Community
	Preference  uint32
}

// NewEntry creates a new route entry. The AS set and the communities
// are normalized.
func NewEntry(origin Origin, peer uint32, prefix netip.Prefix, nextHop string,
	asPath []uint32, asSet []uint32, communities []Community, preference uint32) Entry {
	e := Entry{
		Origin:     origin,
		Peer:       peer,
		Prefix:     prefix.Masked(),
		NextHop:    nextHop,
		ASPath:     slices.Clone(asPath),
		Preference: preference,
	}
	e.AddASSet(asSet...)
	e.AddCommunities(communities...)
	return e
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	e.ASPath = slices.Clone(e.ASPath)
	e.ASSet = slices.Clone(e.ASSet)
	e.Communities = slices.Clone(e.Communities)
	return e
}

// AddASSet adds ASNs to the AS set. ASNs already present in the AS
// path or in the AS set are ignored.
func (e *Entry) AddASSet(asns ...uint32) {
	for _, asn := range asns {
		if slices.Contains(e.ASPath, asn) {
			continue
		}
		idx, found := slices.BinarySearch(e.ASSet, asn)
		if found {
			continue
		}
		e.ASSet = slices.Insert(e.ASSet, idx, asn)
	}
}

// PrependASPath prepends the provided ASNs to the AS path.
func (e *Entry) PrependASPath(asns ...uint32) {
	e.ASPath = append(slices.Clone(asns), e.ASPath...)
}

// HasASN tells if the ASN is in the AS path or in the AS set.
func (e *Entry) HasASN(asn uint32) bool {
	return slices.Contains(e.ASPath, asn) || slices.Contains(e.ASSet, asn)
}

// HasCommunity tells if the route carries the provided community.
func (e *Entry) HasCommunity(c Community) bool {
	_, found := slices.BinarySearchFunc(e.Communities, c, Community.Compare)
	return found
}

// AddCommunities adds communities to the route.
func (e *Entry) AddCommunities(communities ...Community) {
	for _, c := range communities {
		idx, found := slices.BinarySearchFunc(e.Communities, c, Community.Compare)
		if found {
			continue
		}
		e.Communities = slices.Insert(e.Communities, idx, c)
	}
}

// RemoveCommunities removes communities from the route.
func (e *Entry) RemoveCommunities(communities ...Community) {
	e.Communities = slices.DeleteFunc(e.Communities, func(c Community) bool {
		return slices.Contains(communities, c)
	})
}

// Key returns a string identifying the route with all its attributes.
// Two routes with the same key are considered identical.
func (e Entry) Key() string {
	if !slices.IsSorted(e.ASSet) || !slices.IsSortedFunc(e.Communities, Community.Compare) {
		e = e.Clone()
		slices.Sort(e.ASSet)
		slices.SortFunc(e.Communities, Community.Compare)
	}
	buf := make([]byte, e.EncodedLen())
	e.Encode(buf)
	return string(buf)
}

// String returns a short textual representation of the route.
func (e Entry) String() string {
	var path strings.Builder
	path.WriteString("[")
	for i, asn := range e.ASPath {
		if i > 0 {
			path.WriteString(" ")
		}
		fmt.Fprintf(&path, "%d", asn)
	}
	if len(e.ASSet) > 0 {
		path.WriteString(" {")
		for i, asn := range e.ASSet {
			if i > 0 {
				path.WriteString(" ")
			}
			fmt.Fprintf(&path, "%d", asn)
		}
		path.WriteString("}")
	}
	path.WriteString("]")
	return fmt.Sprintf("%s peer %d (nexthop: %s %s)", e.Prefix, e.Peer, e.NextHop, path.String())
}

// Compare defines the best-path ordering between two routes. A
// negative result means a is preferred over b. Routes are compared
// by:
//
//  1. local preference (highest first)
//  2. AS path length (shortest first)
//  3. origin (lowest first)
//  4. peer ASN (lowest first)
//  5. next-hop (lexicographic)
//  6. AS path (lexicographic)
//  7. AS set (empty first, then lexicographic on sorted ASNs)
//  8. communities (same as AS set)
func Compare(a, b Entry) int {
	if c := cmp.Compare(b.Preference, a.Preference); c != 0 {
		return c
	}
	if c := cmp.Compare(len(a.ASPath), len(b.ASPath)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Origin, b.Origin); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Peer, b.Peer); c != 0 {
		return c
	}
	if c := strings.Compare(a.NextHop, b.NextHop); c != 0 {
		return c
	}
	if c := slices.Compare(a.ASPath, b.ASPath); c != 0 {
		return c
	}
	if c := compareSets(a.ASSet, b.ASSet, cmp.Compare[uint32]); c != 0 {
		return c
	}
	return compareSets(a.Communities, b.Communities, Community.Compare)
}

// compareSets compares two sets: an empty set sorts first, otherwise
// sorted elements are compared lexicographically.
func compareSets[T any](a, b []T, compare func(T, T) int) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return -1
	case len(b) == 0:
		return 1
	}
	if !slices.IsSortedFunc(a, compare) {
		a = slices.SortedFunc(slices.Values(a), compare)
	}
	if !slices.IsSortedFunc(b, compare) {
		b = slices.SortedFunc(slices.Values(b), compare)
	}
	return slices.CompareFunc(a, b, compare)
}
