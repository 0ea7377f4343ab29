// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package policy implements what route tables and peers have in
// common: import and export filter chains with a default verdict,
// route aggregation and the transfer of route sets between actors.
package policy

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bgpsdn/common/reporter"
	"bgpsdn/filter"
	"bgpsdn/route"
)

// Configuration describes the policy of a table or of a peer.
type Configuration struct {
	DefaultImport bool
	DefaultExport bool
	ImportFilters []*filter.Filter
	ExportFilters []*filter.Filter
	Aggregates    []netip.Prefix
}

// DefaultConfiguration accepts everything.
func DefaultConfiguration() Configuration {
	return Configuration{
		DefaultImport: true,
		DefaultExport: true,
	}
}

// Policy applies filters and aggregation on behalf of a named object.
type Policy struct {
	name   string
	config Configuration

	exportFilterDuration prometheus.Observer
}

// New creates a new policy for the named object.
func New(r *reporter.Reporter, name string, config Configuration) *Policy {
	return &Policy{
		name:   name,
		config: config,
		exportFilterDuration: r.HistogramVec(
			reporter.HistogramOpts{
				Name: "export_filter_duration_seconds",
				Help: "Time spent filtering routes for export.",
			},
			[]string{"object"},
		).WithLabelValues(name),
	}
}

// Name returns the name of the object owning the policy.
func (p *Policy) Name() string {
	return p.name
}

func (p *Policy) String() string {
	return fmt.Sprintf("Policy(%s, import:%v (%d filters) / export:%v (%d filters))",
		p.name, p.config.DefaultImport, len(p.config.ImportFilters),
		p.config.DefaultExport, len(p.config.ExportFilters))
}

// FilterImportRoute runs the import filter chain over a route. It
// returns false when the route is rejected. When clone is true, the
// returned route never shares memory with the provided one.
func (p *Policy) FilterImportRoute(e route.Entry, clone bool) (route.Entry, bool) {
	return filterRoute(p.config.ImportFilters, e, p.config.DefaultImport, clone)
}

// FilterExportRoute runs the export filter chain over a route.
func (p *Policy) FilterExportRoute(e route.Entry, clone bool) (route.Entry, bool) {
	return filterRoute(p.config.ExportFilters, e, p.config.DefaultExport, clone)
}

// filterRoute stops at the first filter with a verdict. When no
// filter has an opinion, the default verdict is used.
func filterRoute(filters []*filter.Filter, e route.Entry, accept, clone bool) (route.Entry, bool) {
	for _, f := range filters {
		switch f.Match(e) {
		case filter.Accept:
			return f.Apply(e, clone), true
		case filter.Reject:
			return route.Entry{}, false
		}
	}
	if !accept {
		return route.Entry{}, false
	}
	if clone {
		return e.Clone(), true
	}
	return e, true
}

// FilterExportRoutes runs export filters over a set of routes and
// groups the accepted ones by prefix. Duplicate routes are removed.
// When aggregates are configured, covered prefixes are replaced by
// their aggregate.
func (p *Policy) FilterExportRoutes(routes []route.Entry, clone bool) map[netip.Prefix][]route.Entry {
	start := time.Now()
	defer func() {
		p.exportFilterDuration.Observe(time.Since(start).Seconds())
	}()

	filtered := map[netip.Prefix][]route.Entry{}
	seen := map[string]struct{}{}
	for _, e := range routes {
		accepted, ok := p.FilterExportRoute(e, clone)
		if !ok {
			continue
		}
		key := accepted.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		filtered[accepted.Prefix] = append(filtered[accepted.Prefix], accepted)
	}
	if len(p.config.Aggregates) > 0 {
		filtered = Aggregate(p.config.Aggregates, filtered)
	}
	return filtered
}

// Flatten turns routes grouped by prefix into a list sorted by
// prefix. Routes for the same prefix keep their order.
func Flatten(routes map[netip.Prefix][]route.Entry) []route.Entry {
	prefixes := slices.SortedFunc(maps.Keys(routes), route.ComparePrefixes)
	result := []route.Entry{}
	for _, prefix := range prefixes {
		result = append(result, routes[prefix]...)
	}
	return result
}
