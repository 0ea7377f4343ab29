// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package peer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bgpsdn/common/actor"
	"bgpsdn/common/daemon"
	"bgpsdn/common/helpers"
	"bgpsdn/common/reporter"
	"bgpsdn/exabgp"
	"bgpsdn/filter"
	"bgpsdn/message"
	"bgpsdn/policy"
	"bgpsdn/route"
	"bgpsdn/topology"
)

const (
	neighborAddress = "10.0.0.1"
	neighborASN     = 65001
)

type commands struct {
	lines []string
}

func (c *commands) Command(cmd string) {
	c.lines = append(c.lines, cmd)
}

// take returns the commands received since the last call.
func (c *commands) take() []string {
	lines := c.lines
	c.lines = nil
	return lines
}

type testPeer struct {
	*Peer
	commands   *commands
	table      message.Endpoint
	controller *message.Mailbox
}

func newPeer(t *testing.T, config policy.Configuration) testPeer {
	t.Helper()
	r := reporter.NewMock(t)
	tp := testPeer{
		commands:   &commands{},
		table:      message.Endpoint{Name: "table1", Mailbox: message.NewMailbox()},
		controller: message.NewMailbox(),
	}
	p, err := New(r, Configuration{
		Name:     "peer1",
		Kind:     KindBGP,
		LocalASN: 65000,
		ASN:      neighborASN,
		Address:  neighborAddress,
		Policy:   config,
		Loop:     actor.DefaultConfiguration(),
	}, Dependencies{
		Daemon:     daemon.NewMock(t),
		Controller: tp.controller,
		Speaker:    tp.commands,
	})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	p.AddExportTables(tp.table)
	p.AddImportTables(tp.table)
	tp.Peer = p
	return tp
}

func event(kind string, fn func(n *exabgp.Neighbor)) message.BGP {
	var n exabgp.Neighbor
	n.Address.Peer = neighborAddress
	n.ASN.Peer = neighborASN
	if fn != nil {
		fn(&n)
	}
	return message.BGP{Speaker: "speaker1", Event: exabgp.Event{Type: kind, Neighbor: n}}
}

// establish brings the session up. With gracefulRestart, the
// neighbor is expected to send an End-of-RIB marker.
func (tp testPeer) establish(gracefulRestart bool) {
	capabilities := map[string]json.RawMessage{}
	if gracefulRestart {
		capabilities["64"] = json.RawMessage(`{}`)
	}
	tp.handle(event(exabgp.EventOpen, func(n *exabgp.Neighbor) {
		n.Direction = "receive"
		n.Open = &exabgp.Open{ASN: neighborASN, Capabilities: capabilities}
	}))
	tp.handle(event(exabgp.EventNegotiated, func(n *exabgp.Neighbor) {
		n.Negotiated = &exabgp.Negotiated{Families: []string{"ipv4 unicast"}}
	}))
	tp.handle(event(exabgp.EventState, func(n *exabgp.Neighbor) {
		n.State = exabgp.StateUp
	}))
}

func announce(nextHop string, path []uint32, prefixes ...string) message.BGP {
	nlris := []exabgp.NLRI{}
	for _, prefix := range prefixes {
		nlris = append(nlris, exabgp.NLRI{NLRI: prefix})
	}
	return event(exabgp.EventUpdate, func(n *exabgp.Neighbor) {
		n.Message = &exabgp.Message{Update: &exabgp.Update{
			Attribute: &exabgp.Attribute{Origin: "igp", ASPath: exabgp.ASPath{Sequence: path}},
			Announce: map[string]exabgp.Announcements{
				"ipv4 unicast": {NextHops: map[string][]exabgp.NLRI{nextHop: nlris}},
			},
		}}
	})
}

func withdraw(prefixes ...string) message.BGP {
	nlris := []exabgp.NLRI{}
	for _, prefix := range prefixes {
		nlris = append(nlris, exabgp.NLRI{NLRI: prefix})
	}
	return event(exabgp.EventUpdate, func(n *exabgp.Neighbor) {
		n.Message = &exabgp.Message{Update: &exabgp.Update{
			Withdraw: map[string][]exabgp.NLRI{"ipv4 unicast": nlris},
		}}
	})
}

func eor() message.BGP {
	return event(exabgp.EventUpdate, func(n *exabgp.Neighbor) {
		n.Message = &exabgp.Message{EOR: &exabgp.EOR{AFI: "ipv4", SAFI: "unicast"}}
	})
}

func run(callbacks []actor.Callback) {
	for _, cb := range callbacks {
		cb.Run()
	}
}

// deliver processes the messages waiting in the mailbox of the peer
// and runs the resulting callbacks.
func (tp testPeer) deliver() {
	callbacks := []actor.Callback{}
	for {
		msg, ok := tp.mailbox.TryGet()
		if !ok {
			break
		}
		callbacks = append(callbacks, tp.handle(msg)...)
	}
	run(callbacks)
}

// fromTable sends a complete set of routes from the table to the peer.
func (tp testPeer) fromTable(routes ...route.Entry) {
	policy.SendRoutes(message.Update{Source: "table1"}, routes, tp.mailbox)
	tp.deliver()
}

// tableRoutes returns the last complete set of routes sent to the
// table, or nil if nothing was sent. Reload requests are ignored.
func (tp testPeer) tableRoutes(t *testing.T) []route.Entry {
	t.Helper()
	var result []route.Entry
	pending := policy.NewPending()
	for {
		msg, ok := tp.table.Mailbox.TryGet()
		if !ok {
			return result
		}
		update, ok := msg.(message.Update)
		if !ok {
			continue
		}
		if update.Source != "peer1" || update.ASN != neighborASN {
			t.Errorf("update from %q/%d, expected peer1/%d", update.Source, update.ASN, neighborASN)
		}
		routes, done, err := pending.Add(update, func(e route.Entry) (route.Entry, bool) { return e, true })
		if err != nil {
			t.Fatalf("Add() error:\n%+v", err)
		}
		if done {
			result = routes
		}
	}
}

func entry(prefix, nextHop string, path ...uint32) route.Entry {
	return route.NewEntry(route.OriginIGP, neighborASN, route.MustParsePrefix(prefix),
		nextHop, path, nil, nil, route.DefaultPreference)
}

func squareTopology(t *testing.T) *topology.Topology {
	t.Helper()
	network := topology.NewNetwork()
	network.AddLinks("10.0.0.1", topology.Link{Destination: "10.0.0.2", Cost: 1, Address: "172.16.0.2"})
	network.AddLinks("10.0.0.2", topology.Link{Destination: "10.0.0.1", Cost: 1, Address: "172.16.0.1"})
	topo, err := network.Update()
	if err != nil {
		t.Fatalf("Update() error:\n%+v", err)
	}
	return topo
}

func TestKind(t *testing.T) {
	var kind Kind
	if err := kind.UnmarshalText([]byte("SDN")); err != nil {
		t.Fatalf("UnmarshalText() error:\n%+v", err)
	}
	if kind != KindSDN || kind.String() != "sdn" {
		t.Errorf("UnmarshalText() == %s, expected sdn", kind)
	}
	if err := kind.UnmarshalText([]byte("ospf")); err == nil {
		t.Error("UnmarshalText(ospf) did not error")
	}
	if got := kind.strategy("peer1").String(); got == "" {
		t.Error("strategy() has no name")
	}
}

func TestMissingSpeaker(t *testing.T) {
	_, err := New(reporter.NewMock(t), Configuration{Name: "peer1", Kind: KindBGP},
		Dependencies{Daemon: daemon.NewMock(t)})
	if !errors.Is(err, ErrMissingCommander) {
		t.Errorf("New() error == %v, expected ErrMissingCommander", err)
	}
}

func TestSupernetWithdrawal(t *testing.T) {
	tp := newPeer(t, policy.DefaultConfiguration())
	tp.establish(false)
	run(tp.handle(announce("192.0.2.1", []uint32{65001}, "10.0.0.0/24", "10.0.1.0/24", "10.1.0.0/24")))
	if diff := helpers.Diff(tp.tableRoutes(t), []route.Entry{
		entry("10.0.0.0/24", "192.0.2.1", 65001),
		entry("10.0.1.0/24", "192.0.2.1", 65001),
		entry("10.1.0.0/24", "192.0.2.1", 65001),
	}); diff != "" {
		t.Errorf("tableRoutes() (-got, +want):\n%s", diff)
	}

	// 10.0.0.0/16 was never announced.
	run(tp.handle(withdraw("10.0.0.0/16")))
	if diff := helpers.Diff(tp.tableRoutes(t), []route.Entry{
		entry("10.1.0.0/24", "192.0.2.1", 65001),
	}); diff != "" {
		t.Errorf("tableRoutes() (-got, +want):\n%s", diff)
	}
	if diff := helpers.Diff(tp.Status().Received, 1); diff != "" {
		t.Errorf("Status().Received (-got, +want):\n%s", diff)
	}

	// Nothing to withdraw: no update.
	if callbacks := tp.handle(withdraw("192.168.0.0/16")); len(callbacks) != 0 {
		t.Errorf("handle() returned %d callbacks, expected none", len(callbacks))
	}
}

func TestEndOfRIBGating(t *testing.T) {
	tp := newPeer(t, policy.DefaultConfiguration())
	tp.establish(true)
	callbacks := tp.handle(announce("192.0.2.1", []uint32{65001}, "203.0.113.0/24"))
	if len(callbacks) != 0 {
		t.Fatalf("handle() before EoR returned %d callbacks, expected none", len(callbacks))
	}
	if got := tp.tableRoutes(t); got != nil {
		t.Fatalf("tableRoutes() before EoR == %v", got)
	}

	callbacks = tp.handle(eor())
	if len(callbacks) != 1 || callbacks[0].Key != "update-tables" {
		t.Fatalf("handle(EoR) returned %v, expected update-tables", callbacks)
	}
	run(callbacks)
	if diff := helpers.Diff(tp.tableRoutes(t), []route.Entry{
		entry("203.0.113.0/24", "192.0.2.1", 65001),
	}); diff != "" {
		t.Errorf("tableRoutes() (-got, +want):\n%s", diff)
	}
}

func TestImportFilters(t *testing.T) {
	noTen, err := filter.NewPrefix([]string{"10.0.0.0/8+"}, filter.Accept)
	if err != nil {
		t.Fatalf("NewPrefix() error:\n%+v", err)
	}
	config := policy.DefaultConfiguration()
	config.ImportFilters = []*filter.Filter{filter.New("no ten", filter.Reject).AddRule(noTen)}
	tp := newPeer(t, config)
	tp.establish(false)
	run(tp.handle(announce("192.0.2.1", []uint32{65001}, "10.0.0.0/24", "203.0.113.0/24")))
	if diff := helpers.Diff(tp.tableRoutes(t), []route.Entry{
		entry("203.0.113.0/24", "192.0.2.1", 65001),
	}); diff != "" {
		t.Errorf("tableRoutes() (-got, +want):\n%s", diff)
	}
	status := tp.Status()
	if status.Received != 2 || status.Accepted != 1 {
		t.Errorf("Status() == %+v, expected 2 received, 1 accepted", status)
	}

	// Reloading filters without any change sends the same routes.
	tp.handle(message.Control{Action: message.ActionReload})
	if diff := helpers.Diff(tp.tableRoutes(t), []route.Entry{
		entry("203.0.113.0/24", "192.0.2.1", 65001),
	}); diff != "" {
		t.Errorf("tableRoutes() after reload (-got, +want):\n%s", diff)
	}
}

func TestNonNegotiatedFamily(t *testing.T) {
	tp := newPeer(t, policy.DefaultConfiguration())
	tp.establish(false)
	msg := event(exabgp.EventUpdate, func(n *exabgp.Neighbor) {
		n.Message = &exabgp.Message{Update: &exabgp.Update{
			Announce: map[string]exabgp.Announcements{
				"ipv6 unicast": {NextHops: map[string][]exabgp.NLRI{
					"2001:db8::1": {{NLRI: "2001:db8:1::/48"}},
				}},
			},
		}}
	})
	if callbacks := tp.handle(msg); len(callbacks) != 0 {
		t.Errorf("handle() returned %d callbacks, expected none", len(callbacks))
	}
	if got := tp.Status().Received; got != 0 {
		t.Errorf("Status().Received == %d, expected 0", got)
	}
}

func TestSessionDown(t *testing.T) {
	tp := newPeer(t, policy.DefaultConfiguration())
	tp.establish(false)
	run(tp.handle(announce("192.0.2.1", []uint32{65001}, "203.0.113.0/24", "198.51.100.0/24")))
	tp.handle(message.Topology{Topology: squareTopology(t)})
	tp.fromTable(entry("192.0.2.0/24", "10.0.0.2", 65002))
	tp.tableRoutes(t)
	tp.commands.take()

	tp.handle(event(exabgp.EventState, func(n *exabgp.Neighbor) {
		n.State = exabgp.StateDown
	}))
	if got := tp.tableRoutes(t); got == nil || len(got) != 0 {
		t.Errorf("tableRoutes() after session down == %v, expected an empty set", got)
	}
	expectedStatus := Status{
		Name:     "peer1",
		Kind:     KindBGP,
		ASN:      neighborASN,
		Address:  neighborAddress,
		Families: []string{},
	}
	if diff := helpers.Diff(tp.Status(), expectedStatus); diff != "" {
		t.Errorf("Status() (-got, +want):\n%s", diff)
	}
	// The session is gone: no withdraw.
	if got := tp.commands.take(); len(got) != 0 {
		t.Errorf("commands after session down: %v", got)
	}

	statuses := []message.PeerStatus{}
	for {
		msg, ok := tp.controller.TryGet()
		if !ok {
			break
		}
		statuses = append(statuses, msg.(message.PeerStatus))
	}
	if diff := helpers.Diff(statuses, []message.PeerStatus{
		{ASN: neighborASN, Address: neighborAddress, Up: true},
		{ASN: neighborASN, Address: neighborAddress, Up: false},
	}); diff != "" {
		t.Errorf("controller received (-got, +want):\n%s", diff)
	}

	// Exporting while down does nothing.
	tp.export(false)
	if got := tp.commands.take(); len(got) != 0 {
		t.Errorf("commands while down: %v", got)
	}
}

func TestExport(t *testing.T) {
	tp := newPeer(t, policy.DefaultConfiguration())
	tp.establish(false)
	fromTable := entry("192.0.2.0/24", "10.0.0.2", 65002)

	// No topology yet: nothing is exported.
	tp.fromTable(fromTable)
	if got := tp.commands.take(); len(got) != 0 {
		t.Fatalf("commands without topology: %v", got)
	}

	// With a topology, the next-hop is resolved.
	tp.handle(message.Topology{Topology: squareTopology(t)})
	tp.export(false)
	resolved := entry("192.0.2.0/24", "172.16.0.2", 65002)
	if diff := helpers.Diff(tp.commands.take(), []string{
		exabgp.AnnounceCommand(neighborAddress, resolved),
	}); diff != "" {
		t.Fatalf("commands (-got, +want):\n%s", diff)
	}

	// Exporting again changes nothing.
	tp.export(false)
	if got := tp.commands.take(); len(got) != 0 {
		t.Errorf("commands on second export: %v", got)
	}

	// Refresh announces everything again.
	tp.handle(message.Control{Action: message.ActionRefresh})
	if diff := helpers.Diff(tp.commands.take(), []string{
		exabgp.AnnounceCommand(neighborAddress, resolved),
	}); diff != "" {
		t.Errorf("commands after refresh (-got, +want):\n%s", diff)
	}

	// A new best route replaces the previous one.
	better := entry("192.0.2.0/24", "10.0.0.1")
	tp.fromTable(fromTable, better)
	if diff := helpers.Diff(tp.commands.take(), []string{
		exabgp.WithdrawCommand(neighborAddress, resolved),
		exabgp.AnnounceCommand(neighborAddress, better),
	}); diff != "" {
		t.Errorf("commands after change (-got, +want):\n%s", diff)
	}

	// Unknown topology withdraws everything.
	tp.handle(message.Topology{Topology: nil})
	if diff := helpers.Diff(tp.commands.take(), []string{
		exabgp.WithdrawCommand(neighborAddress, better),
	}); diff != "" {
		t.Errorf("commands after topology loss (-got, +want):\n%s", diff)
	}

	gotMetrics := tp.r.GetMetrics("bgpsdn_peer_", "prefixes_exported", "adj_ribs_in_routes", "state{")
	expectedMetrics := map[string]string{
		`prefixes_exported{peer="peer1"}`:  "0",
		`adj_ribs_in_routes{peer="peer1"}`: "2",
		`state{peer="peer1"}`:              "1",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Errorf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestDegraded(t *testing.T) {
	tp := newPeer(t, policy.DefaultConfiguration())
	tp.establish(false)
	tp.handle(message.Topology{Topology: squareTopology(t)})
	original := entry("192.0.2.0/24", "192.0.2.254", 65002)
	tp.fromTable(original)
	tp.commands.take()

	// The community carries the controller ASN, not the neighbor one.
	run(tp.handle(message.Degraded{Count: 2}))
	degraded := route.NewEntry(route.OriginIGP, neighborASN, route.MustParsePrefix("192.0.2.0/24"),
		"192.0.2.254", []uint32{65002}, nil, []route.Community{{ASN: 65000, Value: 2}}, route.DefaultPreference)
	if diff := helpers.Diff(tp.commands.take(), []string{
		exabgp.WithdrawCommand(neighborAddress, original),
		exabgp.AnnounceCommand(neighborAddress, degraded),
	}); diff != "" {
		t.Errorf("commands (-got, +want):\n%s", diff)
	}
	// Routes from tables are left untouched.
	if diff := helpers.Diff(tp.adjRIBsIn["table1"], []route.Entry{original}); diff != "" {
		t.Errorf("adjRIBsIn (-got, +want):\n%s", diff)
	}
}

func TestTableRoutesFilteredByFamily(t *testing.T) {
	tp := newPeer(t, policy.DefaultConfiguration())
	// Not negotiated yet: nothing is kept.
	tp.fromTable(entry("192.0.2.0/24", "10.0.0.2", 65002))
	if len(tp.adjRIBsIn) != 0 {
		t.Errorf("adjRIBsIn == %v, expected nothing", tp.adjRIBsIn)
	}
	tp.establish(false)
	// The table is asked to send its routes again.
	msg, ok := tp.table.Mailbox.TryGet()
	if !ok {
		t.Fatal("no reload sent to table")
	}
	if diff := helpers.Diff(msg, message.Reload{Source: "peer1", ASN: neighborASN, Address: neighborAddress}); diff != "" {
		t.Errorf("reload (-got, +want):\n%s", diff)
	}
	v6 := route.NewEntry(route.OriginIGP, 65002, route.MustParsePrefix("2001:db8::/32"),
		"10.0.0.2", []uint32{65002}, nil, nil, route.DefaultPreference)
	v4 := entry("192.0.2.0/24", "10.0.0.2", 65002)
	tp.fromTable(v4, v6)
	if diff := helpers.Diff(tp.adjRIBsIn["table1"], []route.Entry{v4}); diff != "" {
		t.Errorf("adjRIBsIn (-got, +want):\n%s", diff)
	}
}

func TestOtherNeighbor(t *testing.T) {
	tp := newPeer(t, policy.DefaultConfiguration())
	msg := event(exabgp.EventState, func(n *exabgp.Neighbor) {
		n.Address.Peer = "10.0.0.99"
		n.State = exabgp.StateUp
	})
	tp.handle(msg)
	if tp.Status().Active {
		t.Error("event for another neighbor changed the state")
	}
	// Unknown messages are ignored.
	tp.handle(message.BuildTopology{})
}

func TestSDNPeer(t *testing.T) {
	r := reporter.NewMock(t)
	controller := message.NewMailbox()
	p, err := New(r, Configuration{
		Name:    "node1",
		Kind:    KindSDN,
		ASN:     65000,
		Address: "10.0.0.1",
		Loop:    actor.Configuration{IdleTimeout: 10 * time.Millisecond, MaxDelay: time.Second},
		Policy:  policy.DefaultConfiguration(),
	}, Dependencies{
		Daemon:     daemon.NewMock(t),
		Controller: controller,
	})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	helpers.StartStop(t, p)

	msg, ok := controller.TryGet()
	if !ok {
		t.Fatal("no status sent to controller")
	}
	if diff := helpers.Diff(msg, message.PeerStatus{ASN: 65000, Address: "10.0.0.1", Up: true}); diff != "" {
		t.Errorf("status (-got, +want):\n%s", diff)
	}

	mailbox := p.Endpoint().Mailbox
	mailbox.Put(message.Topology{Topology: squareTopology(t)})
	policy.SendRoutes(message.Update{Source: "table1"}, []route.Entry{
		entry("192.0.2.0/24", "10.0.0.2", 65002),
		entry("2001:db8::/32", "10.0.0.2", 65002),
	}, mailbox)
	deadline := time.After(5 * time.Second)
	for p.Status().Exported != 2 {
		select {
		case <-deadline:
			t.Fatalf("Status() == %+v, expected 2 exported routes", p.Status())
		case <-time.After(10 * time.Millisecond):
		}
	}
	status := p.Status()
	if !status.Active || !status.SeenEOR {
		t.Errorf("Status() == %+v, expected active with EoR", status)
	}
}
