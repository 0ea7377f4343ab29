// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"bgpsdn/common/reporter"
)

type metrics struct {
	updates        reporter.Counter
	errors         *reporter.CounterVec
	nodes          reporter.Gauge
	updateDuration reporter.Histogram
}

func (m *Manager) initMetrics() {
	m.metrics.updates = m.r.Counter(
		reporter.CounterOpts{
			Name: "topology_updates_total",
			Help: "Number of topology computations.",
		},
	)
	m.metrics.errors = m.r.CounterVec(
		reporter.CounterOpts{
			Name: "topology_errors_total",
			Help: "Number of errors while building the topology.",
		},
		[]string{"error"},
	)
	m.metrics.nodes = m.r.Gauge(
		reporter.GaugeOpts{
			Name: "topology_nodes",
			Help: "Number of nodes in the current topology.",
		},
	)
	m.metrics.updateDuration = m.r.Histogram(
		reporter.HistogramOpts{
			Name: "topology_update_duration_seconds",
			Help: "Time spent computing shortest paths.",
		},
	)
}
