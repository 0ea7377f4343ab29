// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package peer

import (
	"net/netip"
	"time"

	"github.com/gaissmai/bart"
	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"bgpsdn/common/actor"
	"bgpsdn/exabgp"
	"bgpsdn/policy"
	"bgpsdn/route"
)

// processBGP handles an event from the speaker.
func (p *Peer) processBGP(event exabgp.Event) []actor.Callback {
	neighbor := event.Neighbor
	if neighbor.Address.Peer != p.config.Address || neighbor.ASN.Peer != p.config.ASN {
		p.log.Warn().
			Str("address", neighbor.Address.Peer).
			Uint32("asn", neighbor.ASN.Peer).
			Msg("event for another neighbor")
		return nil
	}
	switch event.Type {
	case exabgp.EventState:
		switch neighbor.State {
		case exabgp.StateUp:
			p.setActive(true)
			if len(p.adjRIBsIn) > 0 {
				return []actor.Callback{p.exportCallback()}
			}
		case exabgp.StateDown:
			p.sessionDown()
		default:
			p.log.Debug().Str("state", neighbor.State).Msg("session state")
		}
	case exabgp.EventOpen:
		if neighbor.Open == nil || neighbor.Direction == "send" {
			return nil
		}
		if !neighbor.Open.GracefulRestart() {
			// Without graceful restart, the neighbor will not
			// signal the end of its initial RIB.
			p.seenEOR = true
		}
	case exabgp.EventNegotiated:
		if neighbor.Negotiated == nil {
			return nil
		}
		families := map[bgp.RouteFamily]struct{}{}
		for _, name := range neighbor.Negotiated.Families {
			family, err := exabgp.ParseFamily(name)
			if err != nil {
				p.log.Warn().Err(err).Msg("ignoring negotiated family")
				continue
			}
			families[family] = struct{}{}
		}
		p.families = families
		p.reloadFromTables()
	case exabgp.EventUpdate:
		if neighbor.Message == nil {
			return nil
		}
		start := time.Now()
		changed := p.processUpdate(neighbor.Message)
		p.metrics.processBGPUpdateDuration.Observe(time.Since(start).Seconds())
		p.metrics.lastUpdate.Set(float64(p.d.Clock.Now().Unix()))
		if changed && p.seenEOR {
			return []actor.Callback{{Key: "update-tables", Run: p.updateTables}}
		}
	case exabgp.EventRefresh:
		p.export(true)
	case exabgp.EventNotification:
		p.log.Warn().Msg("notification received from neighbor")
	case exabgp.EventKeepalive:
	default:
		p.log.Warn().Str("type", event.Type).Msg("ignoring unknown event")
	}
	return nil
}

// sessionDown forgets everything learned from the neighbor and tells
// the tables it has no more routes.
func (p *Peer) sessionDown() {
	p.setActive(false)
	p.families = nil
	p.seenEOR = false
	p.raw = &bart.Table[route.Entry]{}
	p.received = &bart.Table[route.Entry]{}
	p.pending = policy.NewPending()
	clear(p.adjRIBsIn)
	clear(p.exported)
	p.updateMetrics()
	p.updateTables()
}

// processUpdate processes an update from the neighbor. It returns
// true when the received routes changed.
func (p *Peer) processUpdate(msg *exabgp.Message) bool {
	changed := false
	if msg.EOR != nil {
		p.log.Debug().Str("afi", msg.EOR.AFI).Str("safi", msg.EOR.SAFI).Msg("end of RIB received")
		p.seenEOR = true
		changed = true
	}
	update := msg.Update
	if update == nil {
		return changed
	}

	for _, nlris := range update.Withdraw {
		for _, nlri := range nlris {
			prefix, err := route.ParsePrefix(nlri.NLRI)
			if err != nil {
				p.log.Warn().Err(err).Msg("ignoring withdrawn prefix")
				continue
			}
			if p.withdraw(prefix) {
				changed = true
			}
		}
	}

	var (
		origin      = route.OriginEGP
		path, set   []uint32
		communities []route.Community
	)
	if attr := update.Attribute; attr != nil {
		if attr.Origin != "" {
			if err := origin.UnmarshalText([]byte(attr.Origin)); err != nil {
				p.log.Debug().Err(err).Msg("unknown origin, using EGP")
				origin = route.OriginEGP
			}
		}
		path = attr.ASPath.Sequence
		set = append(append(set, attr.ASPath.Set...), attr.ASSet...)
		for _, c := range attr.Community {
			communities = append(communities, route.Community{ASN: c[0], Value: c[1]})
		}
	}
	for familyName, announcements := range update.Announce {
		family, err := exabgp.ParseFamily(familyName)
		if err != nil {
			p.log.Warn().Err(err).Msg("ignoring announces")
			continue
		}
		if announcements.EOR {
			p.seenEOR = true
			changed = true
		}
		if _, ok := p.families[family]; !ok {
			if len(announcements.NextHops) > 0 {
				p.log.Warn().Str("family", familyName).Msg("ignoring announces for non-negotiated family")
			}
			continue
		}
		for nextHop, nlris := range announcements.NextHops {
			for _, nlri := range nlris {
				prefix, err := route.ParsePrefix(nlri.NLRI)
				if err != nil {
					p.log.Warn().Err(err).Msg("ignoring announced prefix")
					continue
				}
				p.announce(route.NewEntry(origin, p.config.ASN, prefix, nextHop,
					path, set, communities, p.config.Preference))
				changed = true
			}
		}
	}
	p.updateMetrics()
	return changed
}

// announce stores a route from the neighbor and runs it through the
// import filters.
func (p *Peer) announce(e route.Entry) {
	p.raw.Insert(e.Prefix, e)
	if accepted, ok := p.policy.FilterImportRoute(e, true); ok {
		p.received.Insert(e.Prefix, accepted)
	} else {
		p.received.Delete(e.Prefix)
	}
}

// withdraw removes the prefix and all its subnets. It returns true if
// something was removed.
func (p *Peer) withdraw(prefix netip.Prefix) bool {
	var prefixes []netip.Prefix
	for subnet := range p.raw.Subnets(prefix) {
		prefixes = append(prefixes, subnet)
	}
	for _, subnet := range prefixes {
		p.raw.Delete(subnet)
		p.received.Delete(subnet)
	}
	return len(prefixes) > 0
}

// reloadImportFilters runs import filters again on all the routes
// received from the neighbor.
func (p *Peer) reloadImportFilters() {
	p.log.Info().Msg("reloading import filters")
	p.received = &bart.Table[route.Entry]{}
	for prefix, e := range p.raw.All() {
		if accepted, ok := p.policy.FilterImportRoute(e, true); ok {
			p.received.Insert(prefix, accepted)
		}
	}
	p.updateMetrics()
	if p.seenEOR {
		p.updateTables()
	}
}
