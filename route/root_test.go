// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package route

import (
	"net/netip"
	"testing"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"bgpsdn/common/helpers"
)

func TestParsePrefix(t *testing.T) {
	cases := []struct {
		Pos      helpers.Pos
		Input    string
		Expected netip.Prefix
		Error    bool
	}{
		{helpers.Mark(), "10.0.0.0/8", netip.MustParsePrefix("10.0.0.0/8"), false},
		{helpers.Mark(), "10.1.2.3/8", netip.MustParsePrefix("10.0.0.0/8"), false},
		{helpers.Mark(), " 2001:db8::1/32 ", netip.MustParsePrefix("2001:db8::/32"), false},
		{helpers.Mark(), "10.0.0.0/33", netip.Prefix{}, true},
		{helpers.Mark(), "10.0.0.0", netip.Prefix{}, true},
		{helpers.Mark(), "hello", netip.Prefix{}, true},
	}
	for _, tc := range cases {
		got, err := ParsePrefix(tc.Input)
		if err != nil && !tc.Error {
			t.Errorf("%sParsePrefix(%q) error:\n%+v", tc.Pos, tc.Input, err)
			continue
		}
		if err == nil && tc.Error {
			t.Errorf("%sParsePrefix(%q) did not error", tc.Pos, tc.Input)
			continue
		}
		if diff := helpers.Diff(got, tc.Expected); diff != "" {
			t.Errorf("%sParsePrefix(%q) (-got, +want):\n%s", tc.Pos, tc.Input, diff)
		}
	}
}

func TestContains(t *testing.T) {
	cases := []struct {
		Pos      helpers.Pos
		Outer    string
		Inner    string
		Expected bool
	}{
		{helpers.Mark(), "10.0.0.0/16", "10.0.1.0/24", true},
		{helpers.Mark(), "10.0.0.0/16", "10.0.0.0/16", true},
		{helpers.Mark(), "10.0.1.0/24", "10.0.0.0/16", false},
		{helpers.Mark(), "10.0.0.0/16", "10.1.0.0/24", false},
		{helpers.Mark(), "0.0.0.0/0", "192.0.2.0/24", true},
		{helpers.Mark(), "::/0", "192.0.2.0/24", false},
		{helpers.Mark(), "2001:db8::/32", "2001:db8:1::/48", true},
	}
	for _, tc := range cases {
		got := Contains(MustParsePrefix(tc.Outer), MustParsePrefix(tc.Inner))
		if got != tc.Expected {
			t.Errorf("%sContains(%s, %s) == %v, expected %v", tc.Pos, tc.Outer, tc.Inner, got, tc.Expected)
		}
	}
}

func TestFamily(t *testing.T) {
	if got := Family(MustParsePrefix("192.0.2.0/24")); got != bgp.RF_IPv4_UC {
		t.Errorf("Family(v4) == %s", got)
	}
	if got := Family(MustParsePrefix("2001:db8::/32")); got != bgp.RF_IPv6_UC {
		t.Errorf("Family(v6) == %s", got)
	}
}

func TestOriginText(t *testing.T) {
	originMap.TestMarshalUnmarshal(t)
	var o Origin
	if err := o.UnmarshalText([]byte("?")); err != nil || o != OriginIncomplete {
		t.Errorf("UnmarshalText(?) == %v, %v", o, err)
	}
	if err := o.UnmarshalText([]byte("bgp")); err == nil {
		t.Error("UnmarshalText(bgp) did not error")
	}
}
