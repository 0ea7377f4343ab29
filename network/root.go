// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package network implements the network manager. It builds the
// topology from static files and from links fed through the API, and
// pushes it to peers each time it changes.
package network

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"bgpsdn/common/actor"
	"bgpsdn/common/daemon"
	"bgpsdn/common/httpserver"
	"bgpsdn/common/reporter"
	"bgpsdn/message"
	"bgpsdn/topology"
)

// Manager is the network manager actor.
type Manager struct {
	r       *reporter.Reporter
	d       *Dependencies
	t       tomb.Tomb
	config  Configuration
	log     zerolog.Logger
	metrics metrics

	mailbox *message.Mailbox
	loop    *actor.Loop[message.Message]
	peers   []message.Endpoint

	network *topology.Network
	built   bool
	// feed are the links received through the API.
	feed map[string][]topology.Link

	snapshotLock sync.RWMutex
	snapshot     Snapshot
}

// Dependencies define the dependencies of the network manager.
type Dependencies struct {
	Daemon daemon.Component
	Clock  clock.Clock
	HTTP   *httpserver.Component
}

// Snapshot is the state of the network exposed through the API.
type Snapshot struct {
	Consistent bool                       `json:"consistent"`
	Nodes      []string                   `json:"nodes"`
	Links      map[string][]topology.Link `json:"links"`
}

// New creates a new network manager.
func New(r *reporter.Reporter, config Configuration, dependencies Dependencies) (*Manager, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	for i, source := range config.Sources {
		if source.StaticFile != "" {
			config.Sources[i].StaticFile = filepath.Clean(source.StaticFile)
		}
	}
	m := Manager{
		r:       r,
		d:       &dependencies,
		config:  config,
		log:     r.With().Str("actor", "network").Logger(),
		mailbox: message.NewMailbox(),
		network: topology.NewNetwork(),
		feed:    map[string][]topology.Link{},
		snapshot: Snapshot{
			Nodes: []string{},
			Links: map[string][]topology.Link{},
		},
	}
	m.loop = actor.NewLoop(config.Loop, m.d.Clock, m.mailbox, m.handle)
	m.initMetrics()
	if m.d.HTTP != nil {
		m.d.HTTP.GinRouter.GET("/api/v0/controller/topology", m.getTopologyHandlerFunc)
		m.d.HTTP.GinRouter.POST("/api/v0/controller/topology", m.postTopologyHandlerFunc)
	}
	m.d.Daemon.Track(&m.t, "network")
	return &m, nil
}

// Endpoint returns the endpoint to send messages to the manager.
func (m *Manager) Endpoint() message.Endpoint {
	return message.Endpoint{Name: "network", Mailbox: m.mailbox}
}

// AddPeers registers peers receiving the topology. This should be done
// before starting the manager.
func (m *Manager) AddPeers(peers ...message.Endpoint) {
	m.peers = append(m.peers, peers...)
}

// Snapshot returns the current state of the network.
func (m *Manager) Snapshot() Snapshot {
	m.snapshotLock.RLock()
	defer m.snapshotLock.RUnlock()
	return m.snapshot
}

// Start starts the network manager.
func (m *Manager) Start() error {
	m.log.Info().Msg("starting network manager")
	m.mailbox.Put(message.BuildTopology{})
	m.t.Go(func() error {
		return m.loop.Run(&m.t)
	})

	files := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, source := range m.config.Sources {
		if source.StaticFile != "" {
			files[source.StaticFile] = struct{}{}
			dirs[filepath.Dir(source.StaticFile)] = struct{}{}
		}
	}
	if len(dirs) == 0 {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.log.Err(err).Msg("cannot setup watcher for topology files")
		return fmt.Errorf("cannot setup watcher: %w", err)
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			m.log.Err(err).Msg("cannot watch topology directory")
			return fmt.Errorf("cannot watch topology directory: %w", err)
		}
	}
	m.t.Go(func() error {
		errLogger := m.log.Sample(reporter.BurstSampler(10*time.Second, 1))
		defer watcher.Close()
		for {
			select {
			case <-m.t.Dying():
				return nil
			case err, ok := <-watcher.Errors:
				if !ok {
					return errors.New("file watcher died")
				}
				errLogger.Err(err).Msg("error from watcher")
			case event, ok := <-watcher.Events:
				if !ok {
					return errors.New("file watcher died")
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if _, ok := files[filepath.Clean(event.Name)]; !ok {
					continue
				}
				m.log.Debug().Msgf("event %s on file %s", event, event.Name)
				m.mailbox.Put(message.BuildTopology{})
			}
		}
	})
	return nil
}

// Stop stops the network manager.
func (m *Manager) Stop() error {
	defer m.log.Info().Msg("network manager stopped")
	m.log.Info().Msg("stopping network manager")
	m.t.Kill(nil)
	return m.t.Wait()
}

func (m *Manager) handle(msg message.Message) []actor.Callback {
	switch msg := msg.(type) {
	case message.BuildTopology:
		if msg.Links != nil {
			m.feed = msg.Links
		}
		return []actor.Callback{{Key: "build", Run: m.build}}
	default:
		m.log.Warn().Stringer("kind", msg.Kind()).Msg("ignoring unknown message")
	}
	return nil
}

// build assembles the links from all sources. When they differ from
// the previous ones, the topology is computed again and sent to
// peers. An inconsistent topology is sent as an unknown one.
func (m *Manager) build() {
	candidate := topology.NewNetwork()
	for _, source := range m.config.Sources {
		if source.StaticFile == "" {
			continue
		}
		links, err := topology.LoadStaticFile(source.StaticFile)
		if err != nil {
			m.log.Err(err).Str("file", source.StaticFile).Msg("unable to load topology file")
			m.metrics.errors.WithLabelValues("load").Inc()
			return
		}
		for _, link := range links {
			candidate.AddLinks(link.Source, link.Link)
		}
	}
	for source, links := range m.feed {
		candidate.AddLinks(source, links...)
	}
	if m.built && m.network.Equal(candidate.Links()) {
		m.log.Debug().Msg("topology unchanged")
		return
	}
	m.network = candidate
	m.built = true

	start := time.Now()
	topo, err := m.network.Update()
	m.metrics.updateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.log.Err(err).Msg("inconsistent topology")
		m.metrics.errors.WithLabelValues("compute").Inc()
		topo = nil
	} else {
		m.log.Info().Int("nodes", len(topo.Nodes())).Msg("topology updated")
	}
	m.metrics.updates.Inc()
	for _, peer := range m.peers {
		peer.Mailbox.Put(message.Topology{Topology: topo})
	}

	snapshot := Snapshot{
		Consistent: topo != nil,
		Nodes:      topo.Nodes(),
		Links:      m.network.Links(),
	}
	if snapshot.Nodes == nil {
		snapshot.Nodes = []string{}
	}
	m.metrics.nodes.Set(float64(len(snapshot.Nodes)))
	m.snapshotLock.Lock()
	m.snapshot = snapshot
	m.snapshotLock.Unlock()
}
