// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package exabgp handles the boundary with an ExaBGP speaker: JSON
// events received from it and text commands sent to it.
package exabgp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

// Event types sent by ExaBGP.
const (
	EventState        = "state"
	EventOpen         = "open"
	EventNegotiated   = "negotiated"
	EventUpdate       = "update"
	EventRefresh      = "refresh"
	EventNotification = "notification"
	EventKeepalive    = "keepalive"
)

// Session states found in state events.
const (
	StateUp        = "up"
	StateDown      = "down"
	StateConnected = "connected"
)

// ErrInvalidEvent is returned when an event cannot be decoded.
var ErrInvalidEvent = errors.New("invalid ExaBGP event")

// Event is one JSON event received from ExaBGP.
type Event struct {
	Type     string   `json:"type"`
	Neighbor Neighbor `json:"neighbor"`
}

// Neighbor is the envelope of an event. Depending on the event type,
// only some fields are present.
type Neighbor struct {
	Address struct {
		Local string `json:"local,omitempty"`
		Peer  string `json:"peer"`
	} `json:"address"`
	ASN struct {
		Local uint32 `json:"local,omitempty"`
		Peer  uint32 `json:"peer"`
	} `json:"asn"`
	Direction  string      `json:"direction,omitempty"`
	State      string      `json:"state,omitempty"`
	Open       *Open       `json:"open,omitempty"`
	Negotiated *Negotiated `json:"negotiated,omitempty"`
	Message    *Message    `json:"message,omitempty"`
}

// Open is the content of an OPEN message.
type Open struct {
	Version      int                        `json:"version,omitempty"`
	ASN          uint32                     `json:"asn,omitempty"`
	HoldTime     int                        `json:"hold_time,omitempty"`
	RouterID     string                     `json:"router_id,omitempty"`
	Capabilities map[string]json.RawMessage `json:"capabilities"`
}

// GracefulRestart tells if the graceful restart capability has been
// advertised.
func (o *Open) GracefulRestart() bool {
	_, ok := o.Capabilities[strconv.Itoa(int(bgp.BGP_CAP_GRACEFUL_RESTART))]
	return ok
}

// Negotiated is the result of the capability negotiation.
type Negotiated struct {
	Families []string `json:"families"`
}

// Message is the content of an UPDATE message.
type Message struct {
	Update *Update `json:"update,omitempty"`
	EOR    *EOR    `json:"eor,omitempty"`
}

// EOR is an End-of-RIB marker.
type EOR struct {
	AFI  string `json:"afi"`
	SAFI string `json:"safi"`
}

// Update holds announced and withdrawn prefixes, per family.
type Update struct {
	Attribute *Attribute               `json:"attribute,omitempty"`
	Announce  map[string]Announcements `json:"announce,omitempty"`
	Withdraw  map[string][]NLRI        `json:"withdraw,omitempty"`
}

// NLRI is one announced or withdrawn prefix.
type NLRI struct {
	NLRI string `json:"nlri"`
}

// Announcements are the prefixes announced for one family, grouped
// by next-hop. ExaBGP also signals End-of-RIB with a "null" next-hop.
type Announcements struct {
	NextHops map[string][]NLRI
	EOR      bool
}

// UnmarshalJSON decodes announcements.
func (a *Announcements) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.NextHops = map[string][]NLRI{}
	for nh, content := range raw {
		if nh == "null" {
			var eor map[string]json.RawMessage
			if err := json.Unmarshal(content, &eor); err == nil {
				if _, ok := eor["eor"]; ok {
					a.EOR = true
					continue
				}
			}
		}
		var nlris []NLRI
		if err := json.Unmarshal(content, &nlris); err != nil {
			return fmt.Errorf("next-hop %s: %w", nh, err)
		}
		a.NextHops[nh] = nlris
	}
	return nil
}

// MarshalJSON encodes announcements.
func (a Announcements) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for nh, nlris := range a.NextHops {
		out[nh] = nlris
	}
	if a.EOR {
		out["null"] = map[string]any{"eor": map[string]any{}}
	}
	return json.Marshal(out)
}

// Attribute contains the path attributes shared by all the prefixes
// of an update.
type Attribute struct {
	Origin          string      `json:"origin,omitempty"`
	ASPath          ASPath      `json:"as-path,omitempty"`
	ASSet           []uint32    `json:"as-set,omitempty"`
	Community       [][2]uint32 `json:"community,omitempty"`
	LocalPreference uint32      `json:"local-preference,omitempty"`
	MED             uint32      `json:"med,omitempty"`
}

// ASPath is an AS path as sent by ExaBGP. Nested lists are AS sets.
type ASPath struct {
	Sequence []uint32
	Set      []uint32
}

// UnmarshalJSON decodes an AS path.
func (p *ASPath) UnmarshalJSON(data []byte) error {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return fmt.Errorf("%w: as-path: %w", ErrInvalidEvent, err)
	}
	for _, element := range elements {
		var asn uint32
		if err := json.Unmarshal(element, &asn); err == nil {
			p.Sequence = append(p.Sequence, asn)
			continue
		}
		var set []uint32
		if err := json.Unmarshal(element, &set); err != nil {
			return fmt.Errorf("%w: as-path element %s", ErrInvalidEvent, element)
		}
		p.Set = append(p.Set, set...)
	}
	return nil
}

// MarshalJSON encodes an AS path.
func (p ASPath) MarshalJSON() ([]byte, error) {
	elements := make([]any, 0, len(p.Sequence)+1)
	for _, asn := range p.Sequence {
		elements = append(elements, asn)
	}
	if len(p.Set) > 0 {
		elements = append(elements, p.Set)
	}
	return json.Marshal(elements)
}

// Decode decodes one line received from ExaBGP.
func Decode(line []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(line, &event); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return event, nil
}

// Encode encodes an event as a JSON line (without the final newline).
func Encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// ParseFamily converts an ExaBGP family name ("ipv4 unicast") to a
// route family.
func ParseFamily(name string) (bgp.RouteFamily, error) {
	afiName, safiName, ok := strings.Cut(strings.TrimSpace(name), " ")
	if !ok {
		return 0, fmt.Errorf("invalid family %q", name)
	}
	var afi uint16
	switch afiName {
	case "ipv4":
		afi = bgp.AFI_IP
	case "ipv6":
		afi = bgp.AFI_IP6
	default:
		return 0, fmt.Errorf("unknown AFI in family %q", name)
	}
	var safi uint8
	switch safiName {
	case "unicast":
		safi = bgp.SAFI_UNICAST
	case "multicast":
		safi = bgp.SAFI_MULTICAST
	case "nlri-mpls":
		safi = bgp.SAFI_MPLS_LABEL
	case "mpls-vpn":
		safi = bgp.SAFI_MPLS_VPN
	default:
		return 0, fmt.Errorf("unknown SAFI in family %q", name)
	}
	return bgp.AfiSafiToRouteFamily(afi, safi), nil
}

// FamilyName converts a route family to its ExaBGP name.
func FamilyName(family bgp.RouteFamily) string {
	afi, safi := bgp.RouteFamilyToAfiSafi(family)
	var name string
	switch afi {
	case bgp.AFI_IP:
		name = "ipv4"
	case bgp.AFI_IP6:
		name = "ipv6"
	default:
		name = strconv.Itoa(int(afi))
	}
	switch safi {
	case bgp.SAFI_UNICAST:
		return name + " unicast"
	case bgp.SAFI_MULTICAST:
		return name + " multicast"
	case bgp.SAFI_MPLS_LABEL:
		return name + " nlri-mpls"
	case bgp.SAFI_MPLS_VPN:
		return name + " mpls-vpn"
	}
	return fmt.Sprintf("%s %d", name, safi)
}
