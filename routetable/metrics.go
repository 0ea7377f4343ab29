// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routetable

import (
	"github.com/prometheus/client_golang/prometheus"

	"bgpsdn/common/reporter"
)

type metrics struct {
	processUpdateDuration prometheus.Observer
	updatePeerDuration    *prometheus.HistogramVec
	routes                reporter.Gauge
	sources               reporter.Gauge
	errors                reporter.Counter
}

func (t *Table) initMetrics() {
	t.metrics.processUpdateDuration = t.r.HistogramVec(
		reporter.HistogramOpts{
			Name: "process_update_duration_seconds",
			Help: "Time spent processing an update from a source.",
		},
		[]string{"table"},
	).WithLabelValues(t.name)
	t.metrics.updatePeerDuration = t.r.HistogramVec(
		reporter.HistogramOpts{
			Name: "update_peer_duration_seconds",
			Help: "Time spent sending routes to a peer.",
		},
		[]string{"table", "peer"},
	)
	t.metrics.routes = t.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "routes_current",
			Help: "Number of routes in the table.",
		},
		[]string{"table"},
	).WithLabelValues(t.name)
	t.metrics.sources = t.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "sources_current",
			Help: "Number of sources contributing routes to the table.",
		},
		[]string{"table"},
	).WithLabelValues(t.name)
	t.metrics.errors = t.r.CounterVec(
		reporter.CounterOpts{
			Name: "update_errors_total",
			Help: "Number of updates which could not be decoded.",
		},
		[]string{"table"},
	).WithLabelValues(t.name)
}
