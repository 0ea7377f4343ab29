// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package filter

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"bgpsdn/route"
)

// Rule matches routes. When a rule matches, it returns its on-match
// verdict. Otherwise, it returns NoVerdict.
type Rule interface {
	Match(route.Entry) Verdict
	OnMatch() Verdict
	String() string
}

// ruleBase holds the on-match verdict shared by all rules.
type ruleBase struct {
	onMatch Verdict
}

func newRuleBase(onMatch Verdict) ruleBase {
	return ruleBase{onMatch: onMatch.or(Accept)}
}

// OnMatch returns the verdict returned when the rule matches.
func (r ruleBase) OnMatch() Verdict {
	return r.onMatch
}

func (r ruleBase) when(matched bool) Verdict {
	if matched {
		return r.onMatch
	}
	return NoVerdict
}

// AlwaysMatch matches every route.
type AlwaysMatch struct {
	ruleBase
}

// NewAlwaysMatch creates a rule matching every route.
func NewAlwaysMatch(onMatch Verdict) *AlwaysMatch {
	return &AlwaysMatch{newRuleBase(onMatch)}
}

// Match returns the on-match verdict.
func (r *AlwaysMatch) Match(route.Entry) Verdict {
	return r.onMatch
}

func (r *AlwaysMatch) String() string {
	return fmt.Sprintf("AlwaysMatch(onmatch=%s)", r.onMatch)
}

// Invert matches when the wrapped rule does not.
type Invert struct {
	inner Rule
}

// NewInvert creates a rule inverting another one.
func NewInvert(inner Rule) *Invert {
	return &Invert{inner: inner}
}

// Match returns the on-match verdict of the wrapped rule when it did
// not match.
func (r *Invert) Match(e route.Entry) Verdict {
	if r.inner.Match(e) == NoVerdict {
		return r.inner.OnMatch()
	}
	return NoVerdict
}

// OnMatch returns the on-match verdict of the wrapped rule.
func (r *Invert) OnMatch() Verdict {
	return r.inner.OnMatch()
}

func (r *Invert) String() string {
	return fmt.Sprintf("Invert(%s)", r.inner)
}

// lengthModifier tells how a prefix length is compared.
type lengthModifier uint8

const (
	lengthExact lengthModifier = iota
	lengthOrShorter
	lengthOrLonger
)

// PrefixLength matches on the prefix length. With a "+" suffix, it
// also matches longer prefixes. With a "-" suffix, it also matches
// shorter prefixes.
type PrefixLength struct {
	ruleBase
	length   int
	modifier lengthModifier
}

// NewPrefixLength creates a rule matching prefix lengths.
func NewPrefixLength(pattern string, onMatch Verdict) (*PrefixLength, error) {
	r := &PrefixLength{ruleBase: newRuleBase(onMatch)}
	pattern = strings.TrimSpace(pattern)
	switch {
	case strings.HasSuffix(pattern, "+"):
		r.modifier = lengthOrLonger
		pattern = pattern[:len(pattern)-1]
	case strings.HasSuffix(pattern, "-"):
		r.modifier = lengthOrShorter
		pattern = pattern[:len(pattern)-1]
	}
	length, err := strconv.ParseUint(pattern, 10, 8)
	if err != nil || length > 128 {
		return nil, fmt.Errorf("invalid prefix length %q", pattern)
	}
	r.length = int(length)
	return r, nil
}

// Match checks the route prefix length.
func (r *PrefixLength) Match(e route.Entry) Verdict {
	bits := e.Prefix.Bits()
	switch r.modifier {
	case lengthOrLonger:
		return r.when(bits >= r.length)
	case lengthOrShorter:
		return r.when(bits <= r.length)
	}
	return r.when(bits == r.length)
}

func (r *PrefixLength) String() string {
	suffix := map[lengthModifier]string{lengthExact: "", lengthOrShorter: "-", lengthOrLonger: "+"}[r.modifier]
	return fmt.Sprintf("PrefixLength(onmatch=%s, length=%d%s)", r.onMatch, r.length, suffix)
}

// Community matches routes carrying any of the provided communities.
type Community struct {
	ruleBase
	communities []route.Community
}

// NewCommunity creates a rule matching communities.
func NewCommunity(communities []route.Community, onMatch Verdict) *Community {
	return &Community{
		ruleBase:    newRuleBase(onMatch),
		communities: slices.Clone(communities),
	}
}

// NewNoExport creates a rule matching the well-known communities
// preventing export (NO_EXPORT, NO_ADVERTISE, NO_EXPORT_SUBCONFED).
func NewNoExport(onMatch Verdict) *Community {
	return NewCommunity([]route.Community{
		route.CommunityNoExport,
		route.CommunityNoAdvertise,
		route.CommunityNoExportSubconfed,
	}, onMatch)
}

// Match checks the route communities.
func (r *Community) Match(e route.Entry) Verdict {
	for _, c := range r.communities {
		if e.HasCommunity(c) {
			return r.onMatch
		}
	}
	return NoVerdict
}

func (r *Community) String() string {
	parts := make([]string, 0, len(r.communities))
	for _, c := range r.communities {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("Community(onmatch=%s, communities=[%s])", r.onMatch, strings.Join(parts, ","))
}

// Peer matches routes received from one of the provided ASNs.
type Peer struct {
	ruleBase
	asns []uint32
}

// NewPeer creates a rule matching peer ASNs.
func NewPeer(asns []uint32, onMatch Verdict) *Peer {
	return &Peer{
		ruleBase: newRuleBase(onMatch),
		asns:     slices.Clone(asns),
	}
}

// Match checks the route peer.
func (r *Peer) Match(e route.Entry) Verdict {
	return r.when(slices.Contains(r.asns, e.Peer))
}

func (r *Peer) String() string {
	return fmt.Sprintf("Peer(onmatch=%s, peers=%v)", r.onMatch, r.asns)
}

// Origin matches routes with one of the provided origins.
type Origin struct {
	ruleBase
	origins []route.Origin
}

// NewOrigin creates a rule matching origins.
func NewOrigin(origins []route.Origin, onMatch Verdict) *Origin {
	return &Origin{
		ruleBase: newRuleBase(onMatch),
		origins:  slices.Clone(origins),
	}
}

// Match checks the route origin.
func (r *Origin) Match(e route.Entry) Verdict {
	return r.when(slices.Contains(r.origins, e.Origin))
}

func (r *Origin) String() string {
	return fmt.Sprintf("Origin(onmatch=%s, origins=%v)", r.onMatch, r.origins)
}
