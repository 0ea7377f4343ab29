// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package controller

import "bgpsdn/common/reporter"

type metrics struct {
	messages *reporter.CounterVec
	dropped  *reporter.CounterVec
	degraded reporter.Gauge
}

func (c *Component) initMetrics() {
	c.metrics.messages = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "messages_total",
			Help: "Number of messages dispatched by the controller.",
		},
		[]string{"kind"},
	)
	c.metrics.dropped = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "dropped_messages_total",
			Help: "Number of messages dropped by the controller.",
		},
		[]string{"reason"},
	)
	c.metrics.degraded = c.r.Gauge(
		reporter.GaugeOpts{
			Name: "degraded",
			Help: "Number of peers and speakers down.",
		},
	)
}
