// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package peer

import (
	"maps"
	"slices"
	"time"

	"bgpsdn/common/actor"
	"bgpsdn/message"
	"bgpsdn/policy"
	"bgpsdn/route"
)

func (p *Peer) exportCallback() actor.Callback {
	return actor.Callback{Key: "export", Run: func() { p.export(false) }}
}

// processTableUpdate accumulates routes from a table. Once complete,
// they replace the previous ones from this table and an export is
// scheduled.
func (p *Peer) processTableUpdate(update message.Update) []actor.Callback {
	start := time.Now()
	defer func() {
		p.metrics.processTableUpdateDuration.Observe(time.Since(start).Seconds())
	}()
	routes, done, err := p.pending.Add(update, func(e route.Entry) (route.Entry, bool) {
		return e, p.canImport(e.Prefix)
	})
	if err != nil {
		p.log.Err(err).Str("table", update.Source).Msg("unable to decode update")
		return nil
	}
	if !done {
		return nil
	}
	if len(routes) == 0 {
		delete(p.adjRIBsIn, update.Source)
	} else {
		p.adjRIBsIn[update.Source] = routes
	}
	p.log.Debug().Str("table", update.Source).Int("routes", len(routes)).Msg("routes received from table")
	p.updateMetrics()
	return []actor.Callback{p.exportCallback()}
}

// export computes the routes to announce to the neighbor and sends the
// difference with what was previously exported. With refresh, all
// routes are announced again.
func (p *Peer) export(refresh bool) {
	if !p.active || p.topology == nil || len(p.families) == 0 {
		p.log.Debug().
			Bool("active", p.active).
			Bool("topology", p.topology != nil).
			Msg("not exporting routes")
		return
	}
	all := []route.Entry{}
	for _, source := range slices.Sorted(maps.Keys(p.adjRIBsIn)) {
		all = append(all, p.adjRIBsIn[source]...)
	}
	selected := p.strategy.Apply(p.policy.FilterExportRoutes(all, true), p.topology)

	next := map[string]route.Entry{}
	for _, e := range policy.Flatten(selected) {
		if nextHop, ok := p.topology.NextHop(p.config.Address, e.NextHop); ok {
			e.NextHop = nextHop
		}
		if p.degraded != 0 {
			e.AddCommunities(route.Community{ASN: p.config.LocalASN, Value: p.degraded})
		}
		next[e.Key()] = e
	}

	withdrawn, announced := 0, 0
	for _, key := range slices.Sorted(maps.Keys(p.exported)) {
		if _, ok := next[key]; !ok {
			p.output.Withdraw(p.exported[key])
			withdrawn++
		}
	}
	for _, key := range slices.Sorted(maps.Keys(next)) {
		if _, ok := p.exported[key]; ok && !refresh {
			continue
		}
		p.output.Announce(next[key])
		announced++
	}
	p.exported = next
	p.updateMetrics()
	if withdrawn > 0 || announced > 0 {
		p.log.Info().Int("withdrawn", withdrawn).Int("announced", announced).Msg("routes exported")
	}
}

// withdrawAll withdraws all exported routes.
func (p *Peer) withdrawAll() {
	if len(p.exported) == 0 {
		return
	}
	p.log.Info().Int("withdrawn", len(p.exported)).Msg("withdrawing all routes")
	for _, key := range slices.Sorted(maps.Keys(p.exported)) {
		p.output.Withdraw(p.exported[key])
	}
	clear(p.exported)
	p.updateMetrics()
}

// updateTables sends the accepted routes to the export tables.
func (p *Peer) updateTables() {
	if len(p.exportTables) == 0 {
		return
	}
	start := time.Now()
	routes := make([]route.Entry, 0, p.received.Size())
	for _, e := range p.received.All() {
		routes = append(routes, e)
	}
	slices.SortFunc(routes, func(a, b route.Entry) int {
		return route.ComparePrefixes(a.Prefix, b.Prefix)
	})
	mailboxes := make([]*message.Mailbox, 0, len(p.exportTables))
	for _, table := range p.exportTables {
		mailboxes = append(mailboxes, table.Mailbox)
	}
	policy.SendRoutes(message.Update{
		Source:  p.config.Name,
		ASN:     p.config.ASN,
		Address: p.config.Address,
	}, routes, mailboxes...)
	p.metrics.updateTablesDuration.Observe(time.Since(start).Seconds())
	p.log.Debug().Int("routes", len(routes)).Msg("routes sent to tables")
}

func (p *Peer) updateMetrics() {
	p.metrics.prefixesReceived.Set(float64(p.raw.Size()))
	p.metrics.prefixesAccepted.Set(float64(p.received.Size()))
	p.metrics.prefixesExported.Set(float64(len(p.exported)))
	total := 0
	for _, routes := range p.adjRIBsIn {
		total += len(routes)
	}
	p.metrics.adjRIBsInRoutes.Set(float64(total))
	p.publish()
}
