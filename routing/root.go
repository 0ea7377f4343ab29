// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package routing selects, for each prefix, the routes a peer should
// receive among all the candidates.
package routing

import (
	"net/netip"
	"slices"

	"bgpsdn/route"
	"bgpsdn/topology"
)

// Strategy selects the best routes for each prefix. Next-hops of the
// provided routes are router identifiers, not yet resolved through
// the topology. The input may be reordered but is not modified
// otherwise.
type Strategy interface {
	Apply(routes map[netip.Prefix][]route.Entry, topo *topology.Topology) map[netip.Prefix][]route.Entry
	String() string
}

// Default is the usual BGP best-path selection: one route per prefix,
// the most preferred one having a next-hop.
type Default struct{}

// Apply implements Strategy.
func (Default) Apply(routes map[netip.Prefix][]route.Entry, _ *topology.Topology) map[netip.Prefix][]route.Entry {
	result := make(map[netip.Prefix][]route.Entry, len(routes))
	for prefix, candidates := range routes {
		slices.SortFunc(candidates, route.Compare)
		for _, candidate := range candidates {
			if candidate.NextHop == "" {
				continue
			}
			result[prefix] = []route.Entry{candidate}
			break
		}
	}
	return result
}

func (Default) String() string {
	return "default"
}

// LowestCost keeps all the routes whose next-hop is at the lowest
// topology cost from the source router. It is used for SDN peers
// which can spread traffic over several equal-cost paths.
type LowestCost struct {
	Source string
}

// Apply implements Strategy.
func (s LowestCost) Apply(routes map[netip.Prefix][]route.Entry, topo *topology.Topology) map[netip.Prefix][]route.Entry {
	if topo == nil {
		return routes
	}
	result := make(map[netip.Prefix][]route.Entry, len(routes))
	for prefix, candidates := range routes {
		best := -1
		costs := make([]int, len(candidates))
		for i, candidate := range candidates {
			cost, ok := topo.PathCost(s.Source, candidate.NextHop)
			if !ok {
				costs[i] = -1
				continue
			}
			costs[i] = cost
			if best == -1 || cost < best {
				best = cost
			}
		}
		if best == -1 {
			// No route with a known cost: keep them all.
			result[prefix] = candidates
			continue
		}
		selected := make([]route.Entry, 0, 1)
		for i, candidate := range candidates {
			if costs[i] == best {
				selected = append(selected, candidate)
			}
		}
		result[prefix] = selected
	}
	return result
}

func (s LowestCost) String() string {
	return "lowest-cost(" + s.Source + ")"
}
