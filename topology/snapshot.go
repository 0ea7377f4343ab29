// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package topology

import (
	"slices"

	"gonum.org/v1/gonum/graph/path"
)

// Topology is an immutable snapshot of the shortest paths between
// routers. The zero value is an empty topology where nothing is
// reachable. It can be shared between goroutines.
type Topology struct {
	nodes []string
	index map[string]int64
	costs path.AllShortest
	hops  path.AllShortest
	graph map[string][]Link
}

// Nodes returns the sorted list of known routers.
func (t *Topology) Nodes() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.nodes)
}

// Empty tells if the topology does not know any router.
func (t *Topology) Empty() bool {
	return t == nil || len(t.nodes) == 0
}

// lookup returns the identifiers of both routers.
func (t *Topology) lookup(source, destination string) (int64, int64, bool) {
	if t == nil {
		return 0, 0, false
	}
	i, ok1 := t.index[source]
	j, ok2 := t.index[destination]
	return i, j, ok1 && ok2
}

// next returns the first link of a shortest path from source to
// destination according to the provided distances. Links are sorted
// by destination: among equivalent paths, the first neighbor in
// lexicographic order wins.
func (t *Topology) next(distances path.AllShortest, source string, destination int64, cost func(Link) float64) (Link, bool) {
	from := t.index[source]
	total := distances.Weight(from, destination)
	for _, link := range t.graph[source] {
		if link.Destination == source {
			continue
		}
		neighbor := t.index[link.Destination]
		if cost(link)+distances.Weight(neighbor, destination) == total {
			return link, true
		}
	}
	return Link{}, false
}

func linkCost(l Link) float64 { return float64(l.Cost) }
func hopCost(Link) float64    { return 1 }

// NextHop returns the address of the first link on the shortest path
// from source to destination.
func (t *Topology) NextHop(source, destination string) (string, bool) {
	i, j, ok := t.lookup(source, destination)
	if !ok || i == j {
		return "", false
	}
	link, ok := t.next(t.costs, source, j, linkCost)
	if !ok {
		return "", false
	}
	return link.Address, true
}

// PathCost returns the cost of the shortest path from source to
// destination. The cost from a router to itself is 0.
func (t *Topology) PathCost(source, destination string) (int, bool) {
	i, j, ok := t.lookup(source, destination)
	if !ok {
		return 0, false
	}
	return int(t.costs.Weight(i, j)), true
}

// Segments returns the link addresses along the path with the fewest
// hops from source to destination, listed from the destination back
// to the source. Among paths of the same length, neighbors are
// explored in lexicographic order.
func (t *Topology) Segments(source, destination string) ([]string, bool) {
	i, j, ok := t.lookup(source, destination)
	if !ok || i == j {
		return nil, false
	}
	segments := []string{}
	for current := source; current != destination; {
		link, ok := t.next(t.hops, current, j, hopCost)
		if !ok {
			return nil, false
		}
		segments = append(segments, link.Address)
		current = link.Destination
	}
	slices.Reverse(segments)
	return segments, true
}
