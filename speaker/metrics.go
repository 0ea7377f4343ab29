// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package speaker

import (
	"bgpsdn/common/reporter"
)

type metrics struct {
	up              reporter.Gauge
	connections     reporter.Counter
	events          *reporter.CounterVec
	errors          *reporter.CounterVec
	commandsSent    reporter.Counter
	commandsDropped reporter.Counter
}

func (c *Component) initMetrics() {
	c.metrics.up = c.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "up",
			Help: "Speaker state (1 when up).",
		},
		[]string{"speaker"},
	).WithLabelValues(c.name)
	c.metrics.connections = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "connections_total",
			Help: "Number of connections established with the speaker.",
		},
		[]string{"speaker"},
	).WithLabelValues(c.name)
	c.metrics.events = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "events_total",
			Help: "Number of events received from the speaker.",
		},
		[]string{"speaker", "type"},
	).MustCurryWith(map[string]string{"speaker": c.name})
	c.metrics.errors = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "errors_total",
			Help: "Number of errors while talking to the speaker.",
		},
		[]string{"speaker", "error"},
	).MustCurryWith(map[string]string{"speaker": c.name})
	c.metrics.commandsSent = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "commands_sent_total",
			Help: "Number of commands sent to the speaker.",
		},
		[]string{"speaker"},
	).WithLabelValues(c.name)
	c.metrics.commandsDropped = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "commands_dropped_total",
			Help: "Number of commands dropped while disconnected.",
		},
		[]string{"speaker"},
	).WithLabelValues(c.name)
}
