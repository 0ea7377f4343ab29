// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package controller builds the route tables, the peers, the speakers
// and the network manager from the configuration and wires them
// together. It then dispatches BGP events to peers, tracks the state
// of peers and speakers and forwards administrative actions.
package controller

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"net/netip"
	"os"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"bgpsdn/common/actor"
	"bgpsdn/common/daemon"
	"bgpsdn/common/httpserver"
	"bgpsdn/common/reporter"
	"bgpsdn/filter"
	"bgpsdn/message"
	"bgpsdn/network"
	"bgpsdn/peer"
	"bgpsdn/policy"
	"bgpsdn/route"
	"bgpsdn/routetable"
	"bgpsdn/speaker"
)

var (
	// ErrUnknownReference is returned when the configuration references
	// an unknown filter, table or peer.
	ErrUnknownReference = errors.New("unknown reference")
	// ErrDuplicateName is returned when two peers, or a peer and a
	// table, share the same name or when two peers share the same
	// ASN and address.
	ErrDuplicateName = errors.New("duplicate name")
)

// Component represents the controller.
type Component struct {
	r       *reporter.Reporter
	d       *Dependencies
	t       tomb.Tomb
	config  Configuration
	log     zerolog.Logger
	metrics metrics

	mailbox *message.Mailbox
	loop    *actor.Loop[message.Message]

	network     *network.Manager
	speakers    []*speaker.Component
	tables      []*routetable.Table
	tableByName map[string]*routetable.Table
	peers       []*peer.Peer
	peerByName  map[string]*peer.Peer
	peerByKey   map[peerKey]*peer.Peer
	localRoutes []route.Entry

	statusLock sync.RWMutex
	status     map[string]bool
	degraded   uint32
}

// Dependencies define the dependencies of the controller.
type Dependencies struct {
	Daemon daemon.Component
	Clock  clock.Clock
	HTTP   *httpserver.Component
	// Stdin and Stdout are given to speakers without a TCP address.
	Stdin  io.Reader
	Stdout io.Writer
}

// peerKey identifies a peer in BGP events.
type peerKey struct {
	asn     uint32
	address string
}

// New creates the controller and all the components it manages.
func New(r *reporter.Reporter, config Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	c := Component{
		r:      r,
		d:      &dependencies,
		config: config,
		log:    r.With().Str("actor", "controller").Logger(),

		mailbox:     message.NewMailbox(),
		tableByName: map[string]*routetable.Table{},
		peerByName:  map[string]*peer.Peer{},
		peerByKey:   map[peerKey]*peer.Peer{},
		status:      map[string]bool{},
	}

	filters, err := filter.Build(config.Filters, config.ASN)
	if err != nil {
		return nil, fmt.Errorf("unable to build filters: %w", err)
	}

	c.network, err = network.New(r, network.Configuration{
		Sources: config.LocalTopology,
		Loop:    config.Mailbox,
	}, network.Dependencies{
		Daemon: c.d.Daemon,
		Clock:  c.d.Clock,
		HTTP:   c.d.HTTP,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to initialize network manager: %w", err)
	}

	for _, name := range slices.Sorted(maps.Keys(config.Tables)) {
		tableConfig := config.Tables[name]
		policyConfig, err := buildPolicy(filters, tableConfig.DefaultImport, tableConfig.DefaultExport,
			tableConfig.AggregatePrefix, tableConfig.Filters)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		table, err := routetable.New(r, name, routetable.Configuration{
			Policy: policyConfig,
			Loop:   config.Mailbox,
		}, routetable.Dependencies{
			Daemon: c.d.Daemon,
			Clock:  c.d.Clock,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to initialize table %q: %w", name, err)
		}
		c.tables = append(c.tables, table)
		c.tableByName[name] = table
	}

	for _, speakerName := range slices.Sorted(maps.Keys(config.BGPSpeakers)) {
		speakerConfig := config.BGPSpeakers[speakerName]
		s, err := speaker.New(r, speakerName, speakerConfig.speakerConfiguration(), speaker.Dependencies{
			Daemon:     c.d.Daemon,
			Clock:      c.d.Clock,
			Controller: c.mailbox,
			Stdin:      c.d.Stdin,
			Stdout:     c.d.Stdout,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to initialize speaker %q: %w", speakerName, err)
		}
		c.speakers = append(c.speakers, s)
		c.status[speakerStatusKey(speakerName)] = false
		for _, peerName := range slices.Sorted(maps.Keys(speakerConfig.Peers)) {
			if err := c.addPeer(peerName, speakerConfig.Peers[peerName], s, filters); err != nil {
				return nil, fmt.Errorf("peer %q: %w", peerName, err)
			}
		}
	}

	// Export peers of tables can be peers or other tables.
	for _, table := range c.tables {
		for _, name := range config.Tables[table.Name()].ExportPeers {
			if p, ok := c.peerByName[name]; ok {
				table.AddExportPeers(p.Endpoint())
				p.AddImportTables(table.Endpoint())
			} else if other, ok := c.tableByName[name]; ok {
				table.AddExportPeers(other.Endpoint())
			} else {
				return nil, fmt.Errorf("table %q: %w: export peer %q", table.Name(), ErrUnknownReference, name)
			}
		}
	}

	endpoints := make([]message.Endpoint, 0, len(c.peers))
	for _, p := range c.peers {
		endpoints = append(endpoints, p.Endpoint())
	}
	c.network.AddPeers(endpoints...)

	if config.LocalRoutes != "" {
		c.localRoutes, err = loadLocalRoutes(config.LocalRoutes, config.ASN)
		if errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Str("file", config.LocalRoutes).Msg("local routes file does not exist")
		} else if err != nil {
			return nil, err
		}
	}

	c.loop = actor.NewLoop(config.Mailbox, c.d.Clock, c.mailbox, c.handle)
	c.initMetrics()
	// Everything starts down.
	c.degraded = uint32(len(c.status))
	c.metrics.degraded.Set(float64(c.degraded))
	if c.d.HTTP != nil {
		c.d.HTTP.GinRouter.GET("/api/v0/controller/peers", c.peersHandlerFunc)
		c.d.HTTP.GinRouter.GET("/api/v0/controller/tables", c.tablesHandlerFunc)
		c.d.HTTP.GinRouter.POST("/api/v0/controller/control", c.controlHandlerFunc)
	}
	c.d.Daemon.Track(&c.t, "controller")
	return &c, nil
}

// addPeer builds a peer reached through the provided speaker.
func (c *Component) addPeer(name string, config PeerConfiguration, s *speaker.Component, filters map[string]*filter.Filter) error {
	if _, ok := c.peerByName[name]; ok {
		return ErrDuplicateName
	}
	if _, ok := c.tableByName[name]; ok {
		return fmt.Errorf("%w: a table has the same name", ErrDuplicateName)
	}
	asn, err := filter.ParseASN(config.ASN, c.config.ASN)
	if err != nil {
		return err
	}
	key := peerKey{asn: asn, address: config.Address}
	if other, ok := c.peerByKey[key]; ok {
		return fmt.Errorf("%w: same ASN and address as %q", ErrDuplicateName, other.Name())
	}
	policyConfig, err := buildPolicy(filters, config.DefaultImport, config.DefaultExport,
		config.AggregatePrefix, config.Filters)
	if err != nil {
		return err
	}
	p, err := peer.New(c.r, peer.Configuration{
		Name:       name,
		Kind:       config.Type,
		LocalASN:   c.config.ASN,
		ASN:        asn,
		Address:    config.Address,
		Preference: config.Preference,
		Policy:     policyConfig,
		Loop:       c.config.Mailbox,
	}, peer.Dependencies{
		Daemon:     c.d.Daemon,
		Clock:      c.d.Clock,
		Controller: c.mailbox,
		Speaker:    s,
	})
	if err != nil {
		return err
	}
	for _, tableName := range config.Tables {
		table, ok := c.tableByName[tableName]
		if !ok {
			return fmt.Errorf("%w: table %q", ErrUnknownReference, tableName)
		}
		p.AddExportTables(table.Endpoint())
	}
	c.peers = append(c.peers, p)
	c.peerByName[name] = p
	c.peerByKey[key] = p
	c.status[peerStatusKey(name)] = false
	return nil
}

// buildPolicy resolves filter names into a policy configuration.
func buildPolicy(filters map[string]*filter.Filter, defaultImport, defaultExport bool,
	aggregates []netip.Prefix, names FiltersConfiguration) (policy.Configuration, error) {
	config := policy.Configuration{
		DefaultImport: defaultImport,
		DefaultExport: defaultExport,
	}
	for _, aggregate := range aggregates {
		config.Aggregates = append(config.Aggregates, aggregate.Masked())
	}
	for _, name := range names.Import {
		f, ok := filters[name]
		if !ok {
			return policy.Configuration{}, fmt.Errorf("%w: import filter %q", ErrUnknownReference, name)
		}
		config.ImportFilters = append(config.ImportFilters, f)
	}
	for _, name := range names.Export {
		f, ok := filters[name]
		if !ok {
			return policy.Configuration{}, fmt.Errorf("%w: export filter %q", ErrUnknownReference, name)
		}
		config.ExportFilters = append(config.ExportFilters, f)
	}
	return config, nil
}

// Components returns the managed components in the order they should
// be started, the controller being the last one.
func (c *Component) Components() []any {
	components := []any{}
	for _, s := range c.speakers {
		components = append(components, s)
	}
	components = append(components, c.network)
	for _, table := range c.tables {
		components = append(components, table)
	}
	for _, p := range c.peers {
		components = append(components, p)
	}
	return append(components, c)
}

// Start starts the controller loop and sends the local routes to the
// tables.
func (c *Component) Start() error {
	c.log.Info().Msg("starting controller")
	if len(c.localRoutes) > 0 {
		mailboxes := make([]*message.Mailbox, 0, len(c.tables))
		for _, table := range c.tables {
			mailboxes = append(mailboxes, table.Endpoint().Mailbox)
		}
		policy.SendRoutes(message.Update{Source: localSource, ASN: c.config.ASN},
			c.localRoutes, mailboxes...)
		c.log.Info().Int("routes", len(c.localRoutes)).Msg("local routes sent to tables")
	}
	c.t.Go(func() error {
		return c.loop.Run(&c.t)
	})
	return nil
}

// Stop stops the controller loop.
func (c *Component) Stop() error {
	defer c.log.Info().Msg("controller stopped")
	c.log.Info().Msg("stopping controller")
	c.t.Kill(nil)
	return c.t.Wait()
}

func (c *Component) handle(msg message.Message) []actor.Callback {
	c.metrics.messages.WithLabelValues(msg.Kind().String()).Inc()
	switch msg := msg.(type) {
	case message.BGP:
		neighbor := msg.Event.Neighbor
		p, ok := c.peerByKey[peerKey{asn: neighbor.ASN.Peer, address: neighbor.Address.Peer}]
		if !ok {
			c.log.Warn().
				Str("speaker", msg.Speaker).
				Uint32("asn", neighbor.ASN.Peer).
				Str("address", neighbor.Address.Peer).
				Msg("ignoring message from unknown peer")
			c.metrics.dropped.WithLabelValues("unknown-peer").Inc()
			return nil
		}
		p.Endpoint().Mailbox.Put(msg)
	case message.PeerStatus:
		p, ok := c.peerByKey[peerKey{asn: msg.ASN, address: msg.Address}]
		if !ok {
			c.log.Warn().Uint32("asn", msg.ASN).Str("address", msg.Address).Msg("ignoring status of unknown peer")
			c.metrics.dropped.WithLabelValues("unknown-peer").Inc()
			return nil
		}
		c.updateStatus(peerStatusKey(p.Name()), msg.Up)
	case message.SpeakerStatus:
		if _, ok := c.status[speakerStatusKey(msg.Speaker)]; !ok {
			c.log.Warn().Str("speaker", msg.Speaker).Msg("ignoring status of unknown speaker")
			c.metrics.dropped.WithLabelValues("unknown-speaker").Inc()
			return nil
		}
		c.updateStatus(speakerStatusKey(msg.Speaker), msg.Up)
	case message.Control:
		endpoint, ok := c.controlTarget(msg)
		if !ok {
			c.log.Warn().
				Str("table", msg.Table).
				Uint32("asn", msg.ASN).
				Str("address", msg.Address).
				Msg("ignoring action for unknown target")
			c.metrics.dropped.WithLabelValues("unknown-target").Inc()
			return nil
		}
		endpoint.Mailbox.Put(msg)
	default:
		c.log.Warn().Stringer("kind", msg.Kind()).Msg("ignoring unknown message")
		c.metrics.dropped.WithLabelValues("unknown-kind").Inc()
	}
	return nil
}

// controlTarget returns the table or the peer targeted by an action.
func (c *Component) controlTarget(msg message.Control) (message.Endpoint, bool) {
	if msg.Table != "" {
		table, ok := c.tableByName[msg.Table]
		if !ok {
			return message.Endpoint{}, false
		}
		return table.Endpoint(), true
	}
	p, ok := c.peerByKey[peerKey{asn: msg.ASN, address: msg.Address}]
	if !ok {
		return message.Endpoint{}, false
	}
	return p.Endpoint(), true
}

// updateStatus records the state of a peer or a speaker. When the
// number of peers and speakers down changes, peers are told.
func (c *Component) updateStatus(key string, up bool) {
	c.statusLock.Lock()
	if c.status[key] == up {
		c.statusLock.Unlock()
		return
	}
	c.status[key] = up
	degraded := uint32(0)
	for _, up := range c.status {
		if !up {
			degraded++
		}
	}
	changed := degraded != c.degraded
	c.degraded = degraded
	c.statusLock.Unlock()

	c.log.Debug().Str("object", key).Bool("up", up).Uint32("degraded", degraded).Msg("status changed")
	c.metrics.degraded.Set(float64(degraded))
	if !changed {
		return
	}
	for _, p := range c.peers {
		p.Endpoint().Mailbox.Put(message.Degraded{Count: degraded})
	}
}

// Degraded returns the number of peers and speakers currently down.
func (c *Component) Degraded() uint32 {
	c.statusLock.RLock()
	defer c.statusLock.RUnlock()
	return c.degraded
}

func peerStatusKey(name string) string {
	return "peer/" + name
}

func speakerStatusKey(name string) string {
	return "speaker/" + name
}
