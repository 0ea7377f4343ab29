// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package peer

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"bgpsdn/common/helpers/bimap"
	"bgpsdn/exabgp"
	"bgpsdn/route"
	"bgpsdn/routing"
)

// Kind is the kind of peer.
type Kind uint8

const (
	// KindBGP is a BGP neighbor reached through an ExaBGP speaker.
	KindBGP Kind = iota
	// KindSDN is a node of the local network programmed by the
	// controller.
	KindSDN
)

var kindMap = bimap.New(map[Kind]string{
	KindBGP: "bgp",
	KindSDN: "sdn",
})

func (k Kind) String() string {
	if s, ok := kindMap.LoadValue(k); ok {
		return s
	}
	return fmt.Sprintf("kind-%d", k)
}

// MarshalText turns a kind into text.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind.
func (k *Kind) UnmarshalText(input []byte) error {
	kind, ok := kindMap.LoadKey(strings.ToLower(string(input)))
	if !ok {
		return fmt.Errorf("unknown peer type %q", string(input))
	}
	*k = kind
	return nil
}

// strategy returns the routing strategy used by the peer kind. For
// SDN peers, source is the router ID of the node.
func (k Kind) strategy(source string) routing.Strategy {
	if k == KindSDN {
		return routing.LowestCost{Source: source}
	}
	return routing.Default{}
}

// Commander accepts commands for an ExaBGP speaker.
type Commander interface {
	Command(cmd string)
}

// Output receives the routes announced to or withdrawn from a peer.
type Output interface {
	Announce(e route.Entry)
	Withdraw(e route.Entry)
}

// commandOutput turns announces and withdraws into ExaBGP commands.
type commandOutput struct {
	neighbor  string
	commander Commander
}

func (o commandOutput) Announce(e route.Entry) {
	o.commander.Command(exabgp.AnnounceCommand(o.neighbor, e))
}

func (o commandOutput) Withdraw(e route.Entry) {
	o.commander.Command(exabgp.WithdrawCommand(o.neighbor, e))
}

// logOutput only logs announces and withdraws.
type logOutput struct {
	log zerolog.Logger
}

func (o logOutput) Announce(e route.Entry) {
	o.log.Debug().Stringer("route", e).Msg("announce")
}

func (o logOutput) Withdraw(e route.Entry) {
	o.log.Debug().Stringer("route", e).Msg("withdraw")
}
