// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package message defines the messages exchanged between actors. A
// message is one of the types of this package. Receivers switch on
// the concrete type and ignore (with a warning) what they do not
// handle.
package message

import (
	"fmt"

	"bgpsdn/common/actor"
	"bgpsdn/common/helpers/bimap"
	"bgpsdn/exabgp"
	"bgpsdn/topology"
)

// Kind identifies the type of a message.
type Kind uint8

const (
	// KindUpdate is for Update messages.
	KindUpdate Kind = iota + 1
	// KindReload is for Reload messages.
	KindReload
	// KindTopology is for Topology messages.
	KindTopology
	// KindPeerStatus is for PeerStatus messages.
	KindPeerStatus
	// KindSpeakerStatus is for SpeakerStatus messages.
	KindSpeakerStatus
	// KindDegraded is for Degraded messages.
	KindDegraded
	// KindBGP is for BGP messages.
	KindBGP
	// KindControl is for Control messages.
	KindControl
	// KindBuildTopology is for BuildTopology messages.
	KindBuildTopology
)

var kindMap = bimap.New(map[Kind]string{
	KindUpdate:        "update",
	KindReload:        "reload",
	KindTopology:      "topology",
	KindPeerStatus:    "peer-status",
	KindSpeakerStatus: "speaker-status",
	KindDegraded:      "degraded",
	KindBGP:           "bgp",
	KindControl:       "control",
	KindBuildTopology: "build-topology",
})

func (k Kind) String() string {
	if s, ok := kindMap.LoadValue(k); ok {
		return s
	}
	return fmt.Sprintf("kind-%d", k)
}

// Message is a message sent to an actor.
type Message interface {
	Kind() Kind
}

// Mailbox is the mailbox of an actor.
type Mailbox = actor.Mailbox[Message]

// NewMailbox creates a new mailbox.
func NewMailbox() *Mailbox {
	return actor.NewMailbox[Message]()
}

// Endpoint describes a peer or a table to the actors sending it
// messages.
type Endpoint struct {
	Name    string
	ASN     uint32
	Address string
	Mailbox *Mailbox
}

// Update carries a (possibly partial) set of routes from a source.
// Routes are encoded with route.EncodeBatches. The set is complete
// once a message with Done arrives. It then replaces everything the
// source sent before.
type Update struct {
	Source  string
	ASN     uint32
	Address string
	Routes  []byte
	Done    bool
}

// Reload asks a table to send again its routes to the peer.
type Reload struct {
	Source  string
	ASN     uint32
	Address string
}

// Topology carries a new topology snapshot. A nil snapshot means the
// topology is unknown.
type Topology struct {
	Topology *topology.Topology
}

// PeerStatus tells the controller the session with a peer went up or
// down.
type PeerStatus struct {
	ASN     uint32
	Address string
	Up      bool
}

// SpeakerStatus tells the controller a speaker became silent or came
// back.
type SpeakerStatus struct {
	Speaker string
	Up      bool
}

// Degraded tells peers how many peers or speakers are down.
type Degraded struct {
	Count uint32
}

// BGP carries an event received from a speaker.
type BGP struct {
	Speaker string
	Event   exabgp.Event
}

// Action is an administrative action.
type Action string

const (
	// ActionReload runs again import filters and pushes the result.
	ActionReload Action = "reload"
	// ActionRefresh announces again everything exported to a peer.
	ActionRefresh Action = "refresh"
)

// Control is an administrative action targeting a peer (by ASN and
// address) or a table (by name).
type Control struct {
	Action  Action
	Table   string
	ASN     uint32
	Address string
}

// BuildTopology carries links received from an external source,
// keyed by router identifier.
type BuildTopology struct {
	Links map[string][]topology.Link
}

// Kind implements Message.
func (Update) Kind() Kind { return KindUpdate }

// Kind implements Message.
func (Reload) Kind() Kind { return KindReload }

// Kind implements Message.
func (Topology) Kind() Kind { return KindTopology }

// Kind implements Message.
func (PeerStatus) Kind() Kind { return KindPeerStatus }

// Kind implements Message.
func (SpeakerStatus) Kind() Kind { return KindSpeakerStatus }

// Kind implements Message.
func (Degraded) Kind() Kind { return KindDegraded }

// Kind implements Message.
func (BGP) Kind() Kind { return KindBGP }

// Kind implements Message.
func (Control) Kind() Kind { return KindControl }

// Kind implements Message.
func (BuildTopology) Kind() Kind { return KindBuildTopology }
