// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package controller

import (
	"net/netip"
	"path/filepath"
	"time"

	"bgpsdn/common/actor"
	"bgpsdn/common/helpers"
	"bgpsdn/filter"
	"bgpsdn/network"
	"bgpsdn/peer"
	"bgpsdn/route"
	"bgpsdn/speaker"
)

// Configuration describes the controller.
type Configuration struct {
	// ASN is the AS number of the controller. It replaces "self.asn"
	// in peers and filters.
	ASN uint32 `validate:"required"`
	// LocalTopology lists where the links of the local network come
	// from.
	LocalTopology []network.Source `validate:"dive"`
	// LocalRoutes is a file of "node,prefix" lines announced to every
	// table.
	LocalRoutes string
	// BGPSpeakers are the ExaBGP processes and their peers.
	BGPSpeakers map[string]SpeakerConfiguration `validate:"dive"`
	// Tables are the route tables.
	Tables map[string]TableConfiguration `validate:"dive"`
	// Filters are the filters peers and tables can reference.
	Filters []filter.Configuration `validate:"dive"`
	// Mailbox sets the timings of every actor loop.
	Mailbox actor.Configuration
}

// SpeakerConfiguration describes an ExaBGP speaker and its peers.
type SpeakerConfiguration struct {
	// Address is the local address used by the speaker.
	Address string `validate:"omitempty,ip"`
	// Connect is the address of the ExaBGP TCP API. When empty,
	// ExaBGP is reached through standard input and output.
	Connect          string        `validate:"omitempty,hostname_port"`
	ConnectTimeout   time.Duration `validate:"min=100ms"`
	MaxBackoff       time.Duration `validate:"min=10ms"`
	KeepaliveTimeout time.Duration `validate:"min=1s"`
	// Peers are the neighbors reached through the speaker.
	Peers map[string]PeerConfiguration `validate:"dive"`
}

// FiltersConfiguration references filters by name.
type FiltersConfiguration struct {
	Import []string
	Export []string
}

// PeerConfiguration describes a peer.
type PeerConfiguration struct {
	// ASN is the AS number of the peer, or "self.asn".
	ASN           string `validate:"required,asn"`
	Type          peer.Kind
	Address       string `validate:"required,ip"`
	Preference    uint32
	DefaultImport bool
	DefaultExport bool
	// Tables receive the routes of the peer.
	Tables          []string
	AggregatePrefix []netip.Prefix
	Filters         FiltersConfiguration
}

// TableConfiguration describes a route table.
type TableConfiguration struct {
	DefaultImport   bool
	DefaultExport   bool
	AggregatePrefix []netip.Prefix
	// ExportPeers are the peers (or tables) receiving the routes of
	// the table.
	ExportPeers []string
	Filters     FiltersConfiguration
}

// DefaultConfiguration represents the default configuration for the
// controller.
func DefaultConfiguration() Configuration {
	return Configuration{
		BGPSpeakers: map[string]SpeakerConfiguration{},
		Tables:      map[string]TableConfiguration{},
		Mailbox:     actor.DefaultConfiguration(),
	}
}

// DefaultSpeakerConfiguration is the default configuration of a
// speaker.
func DefaultSpeakerConfiguration() SpeakerConfiguration {
	defaults := speaker.DefaultConfiguration()
	return SpeakerConfiguration{
		ConnectTimeout:   defaults.ConnectTimeout,
		MaxBackoff:       defaults.MaxBackoff,
		KeepaliveTimeout: defaults.KeepaliveTimeout,
	}
}

func (c SpeakerConfiguration) speakerConfiguration() speaker.Configuration {
	return speaker.Configuration{
		Connect:          c.Connect,
		ConnectTimeout:   c.ConnectTimeout,
		MaxBackoff:       c.MaxBackoff,
		KeepaliveTimeout: c.KeepaliveTimeout,
	}
}

// DefaultPeerConfiguration is the default configuration of a peer.
func DefaultPeerConfiguration() PeerConfiguration {
	return PeerConfiguration{
		Preference:    route.DefaultPreference,
		DefaultImport: true,
		DefaultExport: true,
	}
}

// DefaultTableConfiguration is the default configuration of a table.
func DefaultTableConfiguration() TableConfiguration {
	return TableConfiguration{
		DefaultImport: true,
		DefaultExport: true,
	}
}

// ResolvePaths makes relative paths relative to the provided
// directory.
func (c *Configuration) ResolvePaths(dir string) {
	resolve := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(dir, path)
	}
	c.LocalRoutes = resolve(c.LocalRoutes)
	for i := range c.LocalTopology {
		c.LocalTopology[i].StaticFile = resolve(c.LocalTopology[i].StaticFile)
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(helpers.DefaultValuesUnmarshallerHook(DefaultSpeakerConfiguration()))
	helpers.RegisterMapstructureUnmarshallerHook(helpers.DefaultValuesUnmarshallerHook(DefaultPeerConfiguration()))
	helpers.RegisterMapstructureUnmarshallerHook(helpers.DefaultValuesUnmarshallerHook(DefaultTableConfiguration()))
}
