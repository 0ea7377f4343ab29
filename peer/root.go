// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package peer implements peers. A peer receives routes from its
// neighbor, sends the accepted ones to its export tables, receives the
// routes of its import tables and announces the best ones to its
// neighbor.
package peer

import (
	"errors"
	"maps"
	"net/netip"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gaissmai/bart"
	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"bgpsdn/common/actor"
	"bgpsdn/common/daemon"
	"bgpsdn/common/reporter"
	"bgpsdn/exabgp"
	"bgpsdn/message"
	"bgpsdn/policy"
	"bgpsdn/route"
	"bgpsdn/routing"
	"bgpsdn/topology"
)

// ErrMissingCommander is returned when a BGP peer has no speaker.
var ErrMissingCommander = errors.New("BGP peer without speaker")

// Configuration describes a peer.
type Configuration struct {
	Name string
	Kind Kind
	// LocalASN is the ASN of the controller. It is used for the
	// degraded community.
	LocalASN   uint32
	ASN        uint32
	Address    string
	Preference uint32
	Policy     policy.Configuration
	Loop       actor.Configuration
}

// Dependencies define the dependencies of a peer.
type Dependencies struct {
	Daemon daemon.Component
	Clock  clock.Clock
	// Controller receives status changes.
	Controller *message.Mailbox
	// Speaker receives the commands of BGP peers.
	Speaker Commander
}

// Peer is a peer actor.
type Peer struct {
	r       *reporter.Reporter
	d       *Dependencies
	t       tomb.Tomb
	config  Configuration
	log     zerolog.Logger
	metrics metrics

	policy   *policy.Policy
	strategy routing.Strategy
	output   Output
	mailbox  *message.Mailbox
	loop     *actor.Loop[message.Message]

	exportTables []message.Endpoint
	importTables []message.Endpoint

	active   bool
	families map[bgp.RouteFamily]struct{}
	seenEOR  bool
	degraded uint32
	topology *topology.Topology

	// raw holds all the routes announced by the neighbor, received
	// only those accepted by import filters.
	raw       *bart.Table[route.Entry]
	received  *bart.Table[route.Entry]
	pending   *policy.Pending
	adjRIBsIn map[string][]route.Entry
	exported  map[string]route.Entry

	statusLock sync.RWMutex
	status     Status
}

// New creates a new peer.
func New(r *reporter.Reporter, config Configuration, dependencies Dependencies) (*Peer, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if config.Preference == 0 {
		config.Preference = route.DefaultPreference
	}
	p := Peer{
		r:      r,
		d:      &dependencies,
		config: config,
		log:    r.With().Str("peer", config.Name).Logger(),

		policy:   policy.New(r, config.Name, config.Policy),
		strategy: config.Kind.strategy(config.Address),
		mailbox:  message.NewMailbox(),

		raw:       &bart.Table[route.Entry]{},
		received:  &bart.Table[route.Entry]{},
		pending:   policy.NewPending(),
		adjRIBsIn: map[string][]route.Entry{},
		exported:  map[string]route.Entry{},
	}
	switch config.Kind {
	case KindBGP:
		if dependencies.Speaker == nil {
			return nil, ErrMissingCommander
		}
		p.output = commandOutput{neighbor: config.Address, commander: dependencies.Speaker}
	case KindSDN:
		p.output = logOutput{log: p.log}
	}
	p.loop = actor.NewLoop(config.Loop, p.d.Clock, p.mailbox, p.handle)
	p.initMetrics()
	p.publish()
	p.d.Daemon.Track(&p.t, "peer/"+config.Name)
	return &p, nil
}

// Name returns the name of the peer.
func (p *Peer) Name() string {
	return p.config.Name
}

// Endpoint returns the endpoint to send messages to the peer.
func (p *Peer) Endpoint() message.Endpoint {
	return message.Endpoint{
		Name:    p.config.Name,
		ASN:     p.config.ASN,
		Address: p.config.Address,
		Mailbox: p.mailbox,
	}
}

// AddExportTables registers the tables receiving the routes of the
// peer. This should be done before starting the peer.
func (p *Peer) AddExportTables(tables ...message.Endpoint) {
	p.exportTables = append(p.exportTables, tables...)
}

// AddImportTables registers the tables sending routes to the peer.
// This should be done before starting the peer.
func (p *Peer) AddImportTables(tables ...message.Endpoint) {
	p.importTables = append(p.importTables, tables...)
}

// Start starts the peer.
func (p *Peer) Start() error {
	p.log.Info().Msg("starting peer")
	if p.config.Kind == KindSDN {
		// No session for SDN peers: they are up as soon as the
		// controller runs and they accept every family.
		p.seenEOR = true
		p.families = map[bgp.RouteFamily]struct{}{
			bgp.RF_IPv4_UC: {},
			bgp.RF_IPv6_UC: {},
		}
		p.setActive(true)
		p.publish()
	}
	p.t.Go(func() error {
		return p.loop.Run(&p.t)
	})
	return nil
}

// Stop stops the peer.
func (p *Peer) Stop() error {
	defer p.log.Info().Msg("peer stopped")
	p.log.Info().Msg("stopping peer")
	p.t.Kill(nil)
	return p.t.Wait()
}

func (p *Peer) handle(msg message.Message) []actor.Callback {
	defer p.publish()
	switch msg := msg.(type) {
	case message.BGP:
		return p.processBGP(msg.Event)
	case message.Update:
		return p.processTableUpdate(msg)
	case message.Topology:
		return p.processTopology(msg.Topology)
	case message.Degraded:
		p.log.Debug().Uint32("degraded", msg.Count).Msg("degraded status changed")
		p.degraded = msg.Count
		if len(p.exported) > 0 {
			return []actor.Callback{p.exportCallback()}
		}
	case message.Control:
		switch msg.Action {
		case message.ActionReload:
			p.reloadImportFilters()
		case message.ActionRefresh:
			p.export(true)
		default:
			p.log.Warn().Str("action", string(msg.Action)).Msg("ignoring unknown action")
		}
	default:
		p.log.Warn().Stringer("kind", msg.Kind()).Msg("ignoring unknown message")
	}
	return nil
}

// processTopology records a new topology. A nil topology is unknown:
// everything exported is withdrawn.
func (p *Peer) processTopology(topo *topology.Topology) []actor.Callback {
	p.log.Debug().Msg("topology update received")
	p.topology = topo
	if topo == nil {
		p.withdrawAll()
		return nil
	}
	if len(p.adjRIBsIn) > 0 {
		return []actor.Callback{p.exportCallback()}
	}
	return nil
}

// setActive records the state of the session and tells the
// controller when it changed.
func (p *Peer) setActive(active bool) {
	if p.active == active {
		return
	}
	p.active = active
	if active {
		p.metrics.state.Set(1)
	} else {
		p.metrics.state.Set(0)
	}
	p.metrics.stateLastChange.Set(float64(p.d.Clock.Now().Unix()))
	p.log.Info().Bool("active", active).Msg("peer state changed")
	if p.d.Controller != nil {
		p.d.Controller.Put(message.PeerStatus{
			ASN:     p.config.ASN,
			Address: p.config.Address,
			Up:      active,
		})
	}
}

// reloadFromTables asks the import tables to send their routes again.
func (p *Peer) reloadFromTables() {
	reload := message.Reload{
		Source:  p.config.Name,
		ASN:     p.config.ASN,
		Address: p.config.Address,
	}
	for _, table := range p.importTables {
		table.Mailbox.Put(reload)
	}
}

// canImport tells if routes for the prefix can be sent to the peer.
func (p *Peer) canImport(prefix netip.Prefix) bool {
	_, ok := p.families[route.Family(prefix)]
	return ok
}

// Status is a summary of the state of a peer.
type Status struct {
	Name     string   `json:"name"`
	Kind     Kind     `json:"type"`
	ASN      uint32   `json:"asn"`
	Address  string   `json:"address"`
	Active   bool     `json:"active"`
	SeenEOR  bool     `json:"eor"`
	Families []string `json:"families"`
	Received int      `json:"received"`
	Accepted int      `json:"accepted"`
	Exported int      `json:"exported"`
}

// Status returns a summary of the state of the peer.
func (p *Peer) Status() Status {
	p.statusLock.RLock()
	defer p.statusLock.RUnlock()
	return p.status
}

func (p *Peer) publish() {
	families := []string{}
	for _, family := range slices.Sorted(maps.Keys(p.families)) {
		families = append(families, exabgp.FamilyName(family))
	}
	status := Status{
		Name:     p.config.Name,
		Kind:     p.config.Kind,
		ASN:      p.config.ASN,
		Address:  p.config.Address,
		Active:   p.active,
		SeenEOR:  p.seenEOR,
		Families: families,
		Received: p.raw.Size(),
		Accepted: p.received.Size(),
		Exported: len(p.exported),
	}
	p.statusLock.Lock()
	p.status = status
	p.statusLock.Unlock()
}
