// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package filter

import (
	"testing"

	"bgpsdn/common/helpers"
	"bgpsdn/route"
)

func entry(prefix string) route.Entry {
	return route.NewEntry(route.OriginIGP, 65001, route.MustParsePrefix(prefix),
		"192.0.2.1", []uint32{65001}, nil, nil, route.DefaultPreference)
}

func mustPrefix(t *testing.T, patterns []string, onMatch Verdict) *Prefix {
	t.Helper()
	r, err := NewPrefix(patterns, onMatch)
	if err != nil {
		t.Fatalf("NewPrefix(%v) error:\n%+v", patterns, err)
	}
	return r
}

func TestFilterOrder(t *testing.T) {
	rejectTen := mustPrefix(t, []string{"10.0.0.0/8+"}, Reject)
	always := NewAlwaysMatch(Accept)

	f := New("order", Accept).AddRule(rejectTen).AddRule(always)
	if got := f.Match(entry("10.1.2.0/24")); got != Reject {
		t.Errorf("Match(10.1.2.0/24) == %s, expected reject", got)
	}
	if got := f.Match(entry("11.1.2.0/24")); got != Accept {
		t.Errorf("Match(11.1.2.0/24) == %s, expected accept", got)
	}

	// Swapping rules changes the outcome.
	swapped := New("swapped", Accept).AddRule(always).AddRule(rejectTen)
	if got := swapped.Match(entry("10.1.2.0/24")); got != Accept {
		t.Errorf("Match(10.1.2.0/24) == %s, expected accept", got)
	}
}

func TestFilterOnMatch(t *testing.T) {
	f := New("reject ten", Reject).AddRule(mustPrefix(t, []string{"10.0.0.0/8+"}, Accept))
	if got := f.Match(entry("10.1.2.0/24")); got != Reject {
		t.Errorf("Match(10.1.2.0/24) == %s, expected reject", got)
	}
	if got := f.Match(entry("11.1.2.0/24")); got != NoVerdict {
		t.Errorf("Match(11.1.2.0/24) == %s, expected none", got)
	}
	if got := New("empty", NoVerdict).Match(entry("11.1.2.0/24")); got != NoVerdict {
		t.Errorf("Match() on empty filter == %s, expected none", got)
	}
	if got := New("default", NoVerdict).OnMatch(); got != Accept {
		t.Errorf("OnMatch() == %s, expected accept", got)
	}
}

func TestMartiansFirst(t *testing.T) {
	f := New("martians", Accept).
		AddRule(NewMartians(Reject)).
		AddRule(NewAlwaysMatch(Accept))
	for _, prefix := range []string{
		"127.0.0.0/8", "127.0.0.1/32", "10.0.0.0/8", "192.168.1.0/24",
		"100.64.0.0/10", "255.255.255.255/32", "::1/128", "::/128", "2001:db8::/48",
		"fe80::/64", "::ffff:0:0/96",
	} {
		if got := f.Match(entry(prefix)); got != Reject {
			t.Errorf("Match(%s) == %s, expected reject", prefix, got)
		}
	}
	for _, prefix := range []string{
		"1.1.1.0/24", "8.0.0.0/8", "0.0.0.0/0", "223.255.255.0/24", "2001:db9::/32", "::/0", "::2/128",
	} {
		if got := f.Match(entry(prefix)); got != Accept {
			t.Errorf("Match(%s) == %s, expected accept", prefix, got)
		}
	}
}

func TestFilterApply(t *testing.T) {
	f := New("actions", Accept).
		AddAction(NewAddCommunity(route.Community{ASN: 64512, Value: 1}, route.Community{ASN: 64512, Value: 2})).
		AddAction(NewRemoveCommunity(route.Community{ASN: 64512, Value: 2})).
		AddAction(NewPrependASPath(64512, 64512))
	original := entry("203.0.113.0/24")
	got := f.Apply(original, true)
	expected := original.Clone()
	expected.ASPath = []uint32{64512, 64512, 65001}
	expected.Communities = []route.Community{{ASN: 64512, Value: 1}}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Errorf("Apply() (-got, +want):\n%s", diff)
	}
	if diff := helpers.Diff(original, entry("203.0.113.0/24")); diff != "" {
		t.Errorf("Apply() modified original (-got, +want):\n%s", diff)
	}
	inPlace := f.Apply(original, false)
	if diff := helpers.Diff(inPlace, expected); diff != "" {
		t.Errorf("Apply(no copy) (-got, +want):\n%s", diff)
	}
}
