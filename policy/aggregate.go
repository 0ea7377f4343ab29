// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package policy

import (
	"maps"
	"net/netip"
	"slices"

	"bgpsdn/route"
)

// Aggregate replaces routes covered by one of the aggregates with a
// single route for the aggregate. A prefix covered by several
// aggregates contributes to each of them. Prefixes covered by no
// aggregate are kept as is.
func Aggregate(aggregates []netip.Prefix, routes map[netip.Prefix][]route.Entry) map[netip.Prefix][]route.Entry {
	result := make(map[netip.Prefix][]route.Entry, len(routes))
	prefixes := slices.SortedFunc(maps.Keys(routes), route.ComparePrefixes)
	for _, prefix := range prefixes {
		candidates := slices.SortedFunc(slices.Values(routes[prefix]), route.Compare)
		covered := false
		for _, aggregate := range aggregates {
			if !route.Contains(aggregate, prefix) {
				continue
			}
			covered = true
			for _, candidate := range candidates {
				if existing, ok := result[aggregate]; ok {
					merge(&existing[0], candidate)
					continue
				}
				result[aggregate] = []route.Entry{newAggregate(aggregate, candidate)}
			}
		}
		if !covered {
			result[prefix] = append(result[prefix], candidates...)
		}
	}
	return result
}

// newAggregate creates the aggregate route from its first
// contributor.
func newAggregate(aggregate netip.Prefix, first route.Entry) route.Entry {
	return route.NewEntry(first.Origin, 0, aggregate, first.NextHop,
		first.ASPath, first.ASSet, first.Communities, route.DefaultPreference)
}

// merge adds a contributor to an aggregate route. The AS path is cut
// to the longest common prefix and every ASN beyond it goes to the
// AS set.
func merge(aggregate *route.Entry, contributor route.Entry) {
	common := 0
	for common < len(aggregate.ASPath) && common < len(contributor.ASPath) &&
		aggregate.ASPath[common] == contributor.ASPath[common] {
		common++
	}
	removed := aggregate.ASPath[common:]
	if common == 0 {
		aggregate.ASPath = nil
	} else {
		aggregate.ASPath = slices.Clone(aggregate.ASPath[:common])
	}
	aggregate.AddASSet(removed...)
	aggregate.AddASSet(contributor.ASPath[common:]...)
	aggregate.AddASSet(contributor.ASSet...)
	aggregate.AddCommunities(contributor.Communities...)
}
