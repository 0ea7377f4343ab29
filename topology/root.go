// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package topology keeps the link-state view of the network and
// computes, for each pair of routers, the shortest path between them.
// Next-hops announced by peers are router identifiers. They are
// resolved to the address of the first link toward them.
package topology

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

var (
	// ErrUnknownNode is returned when a link points to a router
	// without links of its own.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDisconnected is returned when a router cannot reach another
	// one.
	ErrDisconnected = errors.New("disconnected graph")
)

// Link is a directed link from a router to one of its neighbors.
type Link struct {
	Destination string `json:"destination"`
	Cost        int    `json:"cost"`
	Address     string `json:"address"`
}

// Network is the set of links known to the controller. It is not
// safe for concurrent use. It is owned by the network manager.
type Network struct {
	links   map[string][]Link
	current *Topology
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		links:   map[string][]Link{},
		current: &Topology{},
	}
}

// AddLinks adds links originating from the provided router. A link to
// an already known destination replaces the previous one.
func (n *Network) AddLinks(source string, links ...Link) {
	current := n.links[source]
	for _, link := range links {
		idx := slices.IndexFunc(current, func(l Link) bool {
			return l.Destination == link.Destination
		})
		if idx >= 0 {
			current[idx] = link
			continue
		}
		current = append(current, link)
	}
	n.links[source] = current
}

// Reset removes all links.
func (n *Network) Reset() {
	n.links = map[string][]Link{}
}

// Links returns a copy of the current link set.
func (n *Network) Links() map[string][]Link {
	result := make(map[string][]Link, len(n.links))
	for source, links := range n.links {
		result[source] = slices.Clone(links)
	}
	return result
}

// Equal tells if the link set is the same as the provided one. The
// order of the links is not significant.
func (n *Network) Equal(other map[string][]Link) bool {
	if len(n.links) != len(other) {
		return false
	}
	for source, links := range n.links {
		otherLinks, ok := other[source]
		if !ok || len(links) != len(otherLinks) {
			return false
		}
		for _, link := range links {
			if !slices.Contains(otherLinks, link) {
				return false
			}
		}
	}
	return true
}

// Current returns the last computed topology.
func (n *Network) Current() *Topology {
	return n.current
}

// Update computes the shortest paths between all pairs of routers.
// When the link set is inconsistent, the current topology becomes
// empty and an error is returned alongside it.
func (n *Network) Update() (*Topology, error) {
	topology, err := compute(n.links)
	if err != nil {
		n.current = &Topology{}
		return n.current, err
	}
	n.current = topology
	return topology, nil
}

// compute builds the weighted graph of the links and runs
// Floyd-Warshall over it twice: once with link costs and once counting
// hops.
func compute(links map[string][]Link) (*Topology, error) {
	nodes := slices.Sorted(maps.Keys(links))
	index := make(map[string]int64, len(nodes))
	for i, node := range nodes {
		index[node] = int64(i)
	}
	weighted := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	hops := simple.NewDirectedGraph()
	for i := range nodes {
		weighted.AddNode(simple.Node(i))
		hops.AddNode(simple.Node(i))
	}
	for _, source := range nodes {
		i := index[source]
		for _, link := range links[source] {
			j, ok := index[link.Destination]
			if !ok {
				return nil, fmt.Errorf("link from %s to %s: %w", source, link.Destination, ErrUnknownNode)
			}
			if link.Cost < 0 {
				return nil, fmt.Errorf("link from %s to %s has negative cost %d", source, link.Destination, link.Cost)
			}
			if i == j {
				continue
			}
			weighted.SetWeightedEdge(weighted.NewWeightedEdge(simple.Node(i), simple.Node(j), float64(link.Cost)))
			hops.SetEdge(hops.NewEdge(simple.Node(i), simple.Node(j)))
		}
	}
	costPaths, _ := path.FloydWarshall(weighted)
	hopPaths, _ := path.FloydWarshall(hops)
	for i := range nodes {
		for j := range nodes {
			if math.IsInf(costPaths.Weight(int64(i), int64(j)), 1) {
				return nil, fmt.Errorf("no path from %s to %s: %w", nodes[i], nodes[j], ErrDisconnected)
			}
		}
	}

	graph := make(map[string][]Link, len(nodes))
	for source, l := range links {
		graph[source] = slices.Clone(l)
		slices.SortFunc(graph[source], func(a, b Link) int {
			return strings.Compare(a.Destination, b.Destination)
		})
	}
	return &Topology{
		nodes: nodes,
		index: index,
		costs: costPaths,
		hops:  hopPaths,
		graph: graph,
	}, nil
}
