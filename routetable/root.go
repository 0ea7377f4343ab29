// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package routetable implements route tables. A route table collects
// the complete route sets of its sources (peers, local routes) and
// sends to each of its export peers the routes from the other
// sources.
package routetable

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"bgpsdn/common/actor"
	"bgpsdn/common/daemon"
	"bgpsdn/common/reporter"
	"bgpsdn/message"
	"bgpsdn/policy"
	"bgpsdn/route"
)

// Configuration describes a route table.
type Configuration struct {
	Policy policy.Configuration
	Loop   actor.Configuration
}

// Dependencies define the dependencies of a route table.
type Dependencies struct {
	Daemon daemon.Component
	Clock  clock.Clock
}

// Table is a route table actor.
type Table struct {
	r       *reporter.Reporter
	d       *Dependencies
	t       tomb.Tomb
	config  Configuration
	log     zerolog.Logger
	name    string
	metrics metrics

	policy  *policy.Policy
	mailbox *message.Mailbox
	loop    *actor.Loop[message.Message]

	exportPeers   []message.Endpoint
	routes        map[string][]route.Entry
	pending       *policy.Pending
	updateSources map[string]struct{}

	summaryLock sync.RWMutex
	summary     map[string]int
}

// New creates a new route table.
func New(r *reporter.Reporter, name string, config Configuration, dependencies Dependencies) (*Table, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	t := Table{
		r:      r,
		d:      &dependencies,
		config: config,
		log:    r.With().Str("table", name).Logger(),
		name:   name,

		policy:        policy.New(r, name, config.Policy),
		mailbox:       message.NewMailbox(),
		routes:        map[string][]route.Entry{},
		pending:       policy.NewPending(),
		updateSources: map[string]struct{}{},
		summary:       map[string]int{},
	}
	t.loop = actor.NewLoop(config.Loop, t.d.Clock, t.mailbox, t.handle)
	t.initMetrics()
	t.d.Daemon.Track(&t.t, "routetable/"+name)
	return &t, nil
}

// Name returns the name of the table.
func (t *Table) Name() string {
	return t.name
}

// Endpoint returns the endpoint to send messages to the table.
func (t *Table) Endpoint() message.Endpoint {
	return message.Endpoint{Name: t.name, Mailbox: t.mailbox}
}

// AddExportPeers registers peers receiving routes from this table.
// This should be done before starting the table.
func (t *Table) AddExportPeers(peers ...message.Endpoint) {
	t.exportPeers = append(t.exportPeers, peers...)
}

// ExportPeers returns the names of the export peers.
func (t *Table) ExportPeers() []string {
	names := make([]string, 0, len(t.exportPeers))
	for _, peer := range t.exportPeers {
		names = append(names, peer.Name)
	}
	return names
}

// Routes returns the number of routes of each source.
func (t *Table) Routes() map[string]int {
	t.summaryLock.RLock()
	defer t.summaryLock.RUnlock()
	return maps.Clone(t.summary)
}

// Start starts the route table.
func (t *Table) Start() error {
	t.log.Info().Msg("starting route table")
	t.t.Go(func() error {
		return t.loop.Run(&t.t)
	})
	return nil
}

// Stop stops the route table.
func (t *Table) Stop() error {
	defer t.log.Info().Msg("route table stopped")
	t.log.Info().Msg("stopping route table")
	t.t.Kill(nil)
	return t.t.Wait()
}

func (t *Table) handle(msg message.Message) []actor.Callback {
	switch msg := msg.(type) {
	case message.Update:
		return t.processUpdate(msg)
	case message.Reload:
		idx := slices.IndexFunc(t.exportPeers, func(peer message.Endpoint) bool {
			return peer.Name == msg.Source
		})
		if idx < 0 {
			t.log.Warn().Str("peer", msg.Source).Msg("reload requested by unknown peer")
			return nil
		}
		t.updatePeer(t.exportPeers[idx])
	case message.Control:
		switch msg.Action {
		case message.ActionReload, message.ActionRefresh:
			for _, peer := range t.exportPeers {
				t.updatePeer(peer)
			}
		default:
			t.log.Warn().Str("action", string(msg.Action)).Msg("ignoring unknown action")
		}
	default:
		t.log.Warn().Stringer("kind", msg.Kind()).Msg("ignoring unknown message")
	}
	return nil
}

// processUpdate accumulates routes from a source. Once the set is
// complete, it replaces the previous one and an update of the peers
// is scheduled.
func (t *Table) processUpdate(update message.Update) []actor.Callback {
	start := time.Now()
	defer func() {
		t.metrics.processUpdateDuration.Observe(time.Since(start).Seconds())
	}()
	routes, done, err := t.pending.Add(update, func(e route.Entry) (route.Entry, bool) {
		return t.policy.FilterImportRoute(e, false)
	})
	if err != nil {
		t.log.Err(err).Str("source", update.Source).Msg("unable to decode update")
		t.metrics.errors.Inc()
		return nil
	}
	if !done {
		return nil
	}
	filtered := policy.Flatten(t.policy.FilterExportRoutes(routes, false))
	if len(filtered) == 0 {
		delete(t.routes, update.Source)
	} else {
		t.routes[update.Source] = filtered
	}
	t.updateSources[update.Source] = struct{}{}
	t.updateSummary()
	t.log.Debug().Str("source", update.Source).Int("routes", len(filtered)).Msg("routes updated")
	return []actor.Callback{{Key: "update-peers", Run: t.updatePeers}}
}

// updatePeers sends the routes to every export peer. A peer being the
// only source of the latest changes is skipped as nothing changed
// for it.
func (t *Table) updatePeers() {
	for _, peer := range t.exportPeers {
		if _, ok := t.updateSources[peer.Name]; ok && len(t.updateSources) == 1 {
			continue
		}
		t.updatePeer(peer)
	}
	clear(t.updateSources)
}

// updatePeer sends to a peer the routes from all other sources. Routes
// already going through the peer's AS are not sent. An empty update
// is sent when nothing is left so the peer withdraws what it had.
func (t *Table) updatePeer(peer message.Endpoint) {
	start := time.Now()
	combined := []route.Entry{}
	for _, source := range slices.Sorted(maps.Keys(t.routes)) {
		if source == peer.Name {
			continue
		}
		for _, e := range t.routes[source] {
			if e.HasASN(peer.ASN) {
				continue
			}
			combined = append(combined, e)
		}
	}
	policy.SendRoutes(message.Update{Source: t.name}, combined, peer.Mailbox)
	t.metrics.updatePeerDuration.WithLabelValues(t.name, peer.Name).Observe(time.Since(start).Seconds())
	t.log.Debug().Str("peer", peer.Name).Int("routes", len(combined)).Msg("routes sent to peer")
}

func (t *Table) updateSummary() {
	total := 0
	summary := make(map[string]int, len(t.routes))
	for source, routes := range t.routes {
		summary[source] = len(routes)
		total += len(routes)
	}
	t.summaryLock.Lock()
	t.summary = summary
	t.summaryLock.Unlock()
	t.metrics.routes.Set(float64(total))
	t.metrics.sources.Set(float64(len(summary)))
}
