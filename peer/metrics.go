// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package peer

import (
	"github.com/prometheus/client_golang/prometheus"

	"bgpsdn/common/reporter"
)

type metrics struct {
	prefixesReceived reporter.Gauge
	prefixesAccepted reporter.Gauge
	prefixesExported reporter.Gauge
	adjRIBsInRoutes  reporter.Gauge
	state            reporter.Gauge
	stateLastChange  reporter.Gauge
	lastUpdate       reporter.Gauge

	processBGPUpdateDuration   prometheus.Observer
	processTableUpdateDuration prometheus.Observer
	updateTablesDuration       prometheus.Observer
}

func (p *Peer) initMetrics() {
	gauge := func(name, help string) reporter.Gauge {
		return p.r.GaugeVec(
			reporter.GaugeOpts{Name: name, Help: help},
			[]string{"peer"},
		).WithLabelValues(p.config.Name)
	}
	histogram := func(name, help string) prometheus.Observer {
		return p.r.HistogramVec(
			reporter.HistogramOpts{Name: name, Help: help},
			[]string{"peer"},
		).WithLabelValues(p.config.Name)
	}
	p.metrics.prefixesReceived = gauge("prefixes_received",
		"Number of prefixes received from the neighbor.")
	p.metrics.prefixesAccepted = gauge("prefixes_accepted",
		"Number of prefixes accepted by import filters.")
	p.metrics.prefixesExported = gauge("prefixes_exported",
		"Number of routes announced to the neighbor.")
	p.metrics.adjRIBsInRoutes = gauge("adj_ribs_in_routes",
		"Number of routes received from tables.")
	p.metrics.state = gauge("state",
		"Session state (1 when up).")
	p.metrics.stateLastChange = gauge("state_last_change_timestamp_seconds",
		"Last time the session state changed.")
	p.metrics.lastUpdate = gauge("last_update_timestamp_seconds",
		"Last time an update was received from the neighbor.")
	p.metrics.processBGPUpdateDuration = histogram("process_bgp_update_duration_seconds",
		"Time spent processing an update from the neighbor.")
	p.metrics.processTableUpdateDuration = histogram("process_table_update_duration_seconds",
		"Time spent processing an update from a table.")
	p.metrics.updateTablesDuration = histogram("update_tables_duration_seconds",
		"Time spent sending routes to the tables.")
}
