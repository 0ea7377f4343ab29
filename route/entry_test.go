// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package route

import (
	"slices"
	"testing"

	"bgpsdn/common/helpers"
)

func TestNewEntryNormalizes(t *testing.T) {
	e := NewEntry(OriginIGP, 65000, MustParsePrefix("10.0.0.0/24"), "192.0.2.1",
		[]uint32{65000, 65001}, []uint32{65003, 65001, 65002, 65003},
		[]Community{{2, 1}, {1, 2}, {2, 1}}, 100)
	if diff := helpers.Diff(e.ASSet, []uint32{65002, 65003}); diff != "" {
		t.Errorf("ASSet (-got, +want):\n%s", diff)
	}
	if diff := helpers.Diff(e.Communities, []Community{{1, 2}, {2, 1}}); diff != "" {
		t.Errorf("Communities (-got, +want):\n%s", diff)
	}
}

func TestCloneIsDeep(t *testing.T) {
	e := NewEntry(OriginIGP, 65000, MustParsePrefix("10.0.0.0/24"), "192.0.2.1",
		[]uint32{65000}, nil, []Community{{1, 1}}, 100)
	c := e.Clone()
	c.PrependASPath(64512)
	c.AddCommunities(Community{2, 2})
	c.ASPath[1] = 1
	if diff := helpers.Diff(e.ASPath, []uint32{65000}); diff != "" {
		t.Errorf("original ASPath (-got, +want):\n%s", diff)
	}
	if diff := helpers.Diff(e.Communities, []Community{{1, 1}}); diff != "" {
		t.Errorf("original Communities (-got, +want):\n%s", diff)
	}
}

func TestCommunitiesManipulation(t *testing.T) {
	var e Entry
	e.AddCommunities(Community{3, 3}, Community{1, 1}, Community{2, 2}, Community{1, 1})
	if !e.HasCommunity(Community{2, 2}) {
		t.Error("HasCommunity(2:2) == false")
	}
	e.RemoveCommunities(Community{2, 2}, Community{4, 4})
	if e.HasCommunity(Community{2, 2}) {
		t.Error("HasCommunity(2:2) == true after removal")
	}
	if diff := helpers.Diff(e.Communities, []Community{{1, 1}, {3, 3}}); diff != "" {
		t.Errorf("Communities (-got, +want):\n%s", diff)
	}
}

func TestHasASN(t *testing.T) {
	e := Entry{ASPath: []uint32{1, 2}, ASSet: []uint32{5}}
	for _, asn := range []uint32{1, 2, 5} {
		if !e.HasASN(asn) {
			t.Errorf("HasASN(%d) == false", asn)
		}
	}
	if e.HasASN(3) {
		t.Error("HasASN(3) == true")
	}
}

func TestKey(t *testing.T) {
	a := NewEntry(OriginIGP, 65000, MustParsePrefix("10.0.0.0/24"), "192.0.2.1",
		[]uint32{65000}, []uint32{2, 1}, []Community{{1, 1}}, 100)
	b := a.Clone()
	if a.Key() != b.Key() {
		t.Error("Key() differs for clones")
	}
	// Unsorted sets still produce the same key.
	b.ASSet = []uint32{2, 1}
	if a.Key() != b.Key() {
		t.Error("Key() differs for unsorted AS set")
	}
	b.NextHop = "192.0.2.2"
	if a.Key() == b.Key() {
		t.Error("Key() does not depend on next-hop")
	}
	c := a.Clone()
	c.Preference = 200
	if a.Key() == c.Key() {
		t.Error("Key() does not depend on preference")
	}
}

func TestCompare(t *testing.T) {
	base := func() Entry {
		return NewEntry(OriginIGP, 65000, MustParsePrefix("10.0.0.0/24"), "192.0.2.1",
			[]uint32{65000, 65001}, nil, nil, 100)
	}
	cases := []struct {
		Pos    helpers.Pos
		Better func(*Entry)
		Worse  func(*Entry)
	}{
		{helpers.Mark(), func(e *Entry) { e.Preference = 200 }, func(*Entry) {}},
		{helpers.Mark(), func(e *Entry) { e.ASPath = []uint32{65000} }, func(*Entry) {}},
		{helpers.Mark(), func(*Entry) {}, func(e *Entry) { e.Origin = OriginIncomplete }},
		{helpers.Mark(), func(e *Entry) { e.Peer = 1 }, func(*Entry) {}},
		{helpers.Mark(), func(*Entry) {}, func(e *Entry) { e.NextHop = "192.0.2.2" }},
		{helpers.Mark(), func(*Entry) {}, func(e *Entry) { e.ASPath = []uint32{65000, 65002} }},
		{helpers.Mark(), func(*Entry) {}, func(e *Entry) { e.AddASSet(1) }},
		{helpers.Mark(), func(e *Entry) { e.AddASSet(1) }, func(e *Entry) { e.AddASSet(2) }},
		{helpers.Mark(), func(*Entry) {}, func(e *Entry) { e.AddCommunities(Community{1, 1}) }},
	}
	for _, tc := range cases {
		better, worse := base(), base()
		tc.Better(&better)
		tc.Worse(&worse)
		if got := Compare(better, worse); got >= 0 {
			t.Errorf("%sCompare(better, worse) == %d", tc.Pos, got)
		}
		if got := Compare(worse, better); got <= 0 {
			t.Errorf("%sCompare(worse, better) == %d", tc.Pos, got)
		}
	}
	if got := Compare(base(), base()); got != 0 {
		t.Errorf("Compare(same, same) == %d", got)
	}
}

func TestCompareIsDeterministic(t *testing.T) {
	p := MustParsePrefix("10.0.0.0/24")
	routes := []Entry{
		NewEntry(OriginIGP, 3, p, "c", []uint32{3}, nil, nil, 100),
		NewEntry(OriginIGP, 1, p, "a", []uint32{1}, nil, nil, 100),
		NewEntry(OriginIGP, 2, p, "b", []uint32{2, 2}, nil, nil, 100),
		NewEntry(OriginIGP, 4, p, "d", []uint32{4, 4}, nil, nil, 150),
	}
	got := slices.SortedFunc(slices.Values(routes), Compare)
	reversed := slices.Clone(routes)
	slices.Reverse(reversed)
	slices.SortFunc(reversed, Compare)
	if diff := helpers.Diff(got, reversed); diff != "" {
		t.Errorf("SortFunc() depends on input order (-got, +want):\n%s", diff)
	}
	peers := []uint32{}
	for _, r := range got {
		peers = append(peers, r.Peer)
	}
	if diff := helpers.Diff(peers, []uint32{4, 1, 3, 2}); diff != "" {
		t.Errorf("SortFunc() (-got, +want):\n%s", diff)
	}
}

func TestString(t *testing.T) {
	e := NewEntry(OriginIGP, 65000, MustParsePrefix("10.0.0.0/24"), "192.0.2.1",
		[]uint32{65000, 65001}, []uint32{3, 4}, nil, 100)
	expected := "10.0.0.0/24 peer 65000 (nexthop: 192.0.2.1 [65000 65001 {3 4}])"
	if got := e.String(); got != expected {
		t.Errorf("String() == %q, expected %q", got, expected)
	}
}
