// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package filter

import (
	"testing"

	"bgpsdn/common/helpers"
	"bgpsdn/route"
)

func TestPrefixPatterns(t *testing.T) {
	cases := []struct {
		Pos      helpers.Pos
		Patterns []string
		Accepted []string
		Rejected []string
	}{
		{
			Pos:      helpers.Mark(),
			Patterns: []string{"10.1.2.0/24"},
			Accepted: []string{"10.1.2.0/24"},
			Rejected: []string{"10.1.2.0/25", "10.1.0.0/16", "10.1.3.0/24", "0.0.0.0/0"},
		}, {
			Pos:      helpers.Mark(),
			Patterns: []string{"10.1.2.0/24+"},
			Accepted: []string{"10.1.2.0/24", "10.1.2.128/25", "10.1.2.1/32"},
			Rejected: []string{"10.1.0.0/16", "10.1.3.0/24", "10.1.3.0/25"},
		}, {
			Pos:      helpers.Mark(),
			Patterns: []string{"10.1.2.0/24-"},
			Accepted: []string{"10.1.2.0/24", "10.1.0.0/16", "10.0.0.0/8", "0.0.0.0/0"},
			Rejected: []string{"10.1.2.0/25", "10.2.0.0/16", "11.0.0.0/8"},
		}, {
			Pos:      helpers.Mark(),
			Patterns: []string{"10.0.0.0/8{16,24}"},
			Accepted: []string{"10.1.0.0/16", "10.1.2.0/24", "10.200.0.0/20"},
			Rejected: []string{"10.0.0.0/8", "10.1.2.0/25", "11.1.0.0/16"},
		}, {
			Pos:      helpers.Mark(),
			Patterns: []string{"10.1.2.0/24{8,16}"},
			Accepted: []string{"10.0.0.0/8", "10.1.0.0/16", "10.0.0.0/12"},
			Rejected: []string{"10.1.2.0/24", "10.2.0.0/16", "0.0.0.0/0", "10.1.2.0/17"},
		}, {
			Pos:      helpers.Mark(),
			Patterns: []string{"10.0.0.0/8+", "10.1.2.0/24-"},
			Accepted: []string{"10.0.0.0/8", "10.1.2.0/25", "0.0.0.0/0", "8.0.0.0/6"},
			Rejected: []string{"11.0.0.0/8", "12.0.0.0/6"},
		}, {
			Pos:      helpers.Mark(),
			Patterns: []string{"0.0.0.0/0+"},
			Accepted: []string{"0.0.0.0/0", "1.0.0.0/8", "203.0.113.0/24"},
			Rejected: []string{"::/0", "2001:db8::/32"},
		}, {
			Pos:      helpers.Mark(),
			Patterns: []string{"2001:db8::/32+"},
			Accepted: []string{"2001:db8::/32", "2001:db8:1::/48"},
			Rejected: []string{"2001:db9::/32", "2001::/16", "10.0.0.0/8"},
		},
	}
	for _, tc := range cases {
		rule, err := NewPrefix(tc.Patterns, Accept)
		if err != nil {
			t.Fatalf("%sNewPrefix(%v) error:\n%+v", tc.Pos, tc.Patterns, err)
		}
		for _, p := range tc.Accepted {
			if got := rule.Match(entry(p)); got != Accept {
				t.Errorf("%sMatch(%s) with %v == %s, expected accept", tc.Pos, p, tc.Patterns, got)
			}
		}
		for _, p := range tc.Rejected {
			if got := rule.Match(entry(p)); got != NoVerdict {
				t.Errorf("%sMatch(%s) with %v == %s, expected none", tc.Pos, p, tc.Patterns, got)
			}
		}
	}
}

func TestPrefixPatternErrors(t *testing.T) {
	for _, pattern := range []string{
		"10.0.0.0/33", "hello+", "10.0.0.0/8{16}", "10.0.0.0/8{24,16}", "10.0.0.0/8{1,33}", "10.0.0.0/8}",
	} {
		if _, err := NewPrefix([]string{pattern}, Accept); err == nil {
			t.Errorf("NewPrefix(%q) did not error", pattern)
		}
	}
}

func TestPrefixLength(t *testing.T) {
	cases := []struct {
		Pattern  string
		Prefix   string
		Expected Verdict
	}{
		{"24", "10.0.0.0/24", Accept},
		{"24", "10.0.0.0/25", NoVerdict},
		{"24+", "10.0.0.0/25", Accept},
		{"24+", "10.0.0.0/23", NoVerdict},
		{"24-", "10.0.0.0/23", Accept},
		{"24-", "10.0.0.0/25", NoVerdict},
	}
	for _, tc := range cases {
		rule, err := NewPrefixLength(tc.Pattern, Accept)
		if err != nil {
			t.Fatalf("NewPrefixLength(%q) error:\n%+v", tc.Pattern, err)
		}
		if got := rule.Match(entry(tc.Prefix)); got != tc.Expected {
			t.Errorf("PrefixLength(%s).Match(%s) == %s, expected %s", tc.Pattern, tc.Prefix, got, tc.Expected)
		}
	}
	for _, pattern := range []string{"", "a", "129", "-1"} {
		if _, err := NewPrefixLength(pattern, Accept); err == nil {
			t.Errorf("NewPrefixLength(%q) did not error", pattern)
		}
	}
}

func TestInvert(t *testing.T) {
	inner := mustPrefix(t, []string{"10.0.0.0/8+"}, Reject)
	rule := NewInvert(inner)
	if got := rule.Match(entry("10.1.0.0/16")); got != NoVerdict {
		t.Errorf("Match(10.1.0.0/16) == %s, expected none", got)
	}
	if got := rule.Match(entry("11.1.0.0/16")); got != Reject {
		t.Errorf("Match(11.1.0.0/16) == %s, expected reject", got)
	}
}

func TestCommunityPeerOrigin(t *testing.T) {
	e := entry("203.0.113.0/24")
	e.AddCommunities(route.Community{ASN: 65001, Value: 10})

	if got := NewCommunity([]route.Community{{ASN: 65001, Value: 10}}, Accept).Match(e); got != Accept {
		t.Errorf("Community.Match() == %s", got)
	}
	if got := NewCommunity([]route.Community{{ASN: 65001, Value: 11}}, Accept).Match(e); got != NoVerdict {
		t.Errorf("Community.Match() == %s", got)
	}
	if got := NewNoExport(Reject).Match(e); got != NoVerdict {
		t.Errorf("NoExport.Match() == %s", got)
	}
	for _, c := range []route.Community{route.CommunityNoExport, route.CommunityNoAdvertise, route.CommunityNoExportSubconfed} {
		withNoExport := e.Clone()
		withNoExport.AddCommunities(c)
		if got := NewNoExport(Reject).Match(withNoExport); got != Reject {
			t.Errorf("NoExport.Match(%s) == %s", c, got)
		}
	}
	if got := NewPeer([]uint32{65000, 65001}, Accept).Match(e); got != Accept {
		t.Errorf("Peer.Match() == %s", got)
	}
	if got := NewPeer([]uint32{65000}, Accept).Match(e); got != NoVerdict {
		t.Errorf("Peer.Match() == %s", got)
	}
	if got := NewOrigin([]route.Origin{route.OriginIGP}, Accept).Match(e); got != Accept {
		t.Errorf("Origin.Match() == %s", got)
	}
	if got := NewOrigin([]route.Origin{route.OriginEGP}, Accept).Match(e); got != NoVerdict {
		t.Errorf("Origin.Match() == %s", got)
	}
}

func TestVerdictText(t *testing.T) {
	verdictMap.TestMarshalUnmarshal(t)
	for input, expected := range map[string]Verdict{
		"true": Accept, "TRUE": Accept, "Accept": Accept,
		"false": Reject, "REJECT": Reject,
	} {
		var got Verdict
		if err := got.UnmarshalText([]byte(input)); err != nil {
			t.Errorf("UnmarshalText(%q) error:\n%+v", input, err)
		} else if got != expected {
			t.Errorf("UnmarshalText(%q) == %s, expected %s", input, got, expected)
		}
	}
	var v Verdict
	if err := v.UnmarshalText([]byte("maybe")); err == nil {
		t.Error("UnmarshalText(maybe) did not error")
	}
}
