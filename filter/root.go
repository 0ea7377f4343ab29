// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package filter implements route filters. A filter is an ordered list
// of rules and a list of actions. Rules are evaluated in order and the
// first one returning a verdict decides. When the route is accepted,
// actions may modify it.
package filter

import (
	"fmt"
	"slices"

	"bgpsdn/route"
)

// Filter is a named list of rules and actions.
type Filter struct {
	Name    string
	onMatch Verdict
	rules   []Rule
	actions []Action
}

// New creates a new empty filter. When a rule accepts a route, the
// filter returns the provided on-match verdict.
func New(name string, onMatch Verdict) *Filter {
	return &Filter{
		Name:    name,
		onMatch: onMatch.or(Accept),
	}
}

// OnMatch returns the verdict of the filter when a rule accepts a route.
func (f *Filter) OnMatch() Verdict {
	return f.onMatch
}

// AddRule appends a rule to the filter.
func (f *Filter) AddRule(rule Rule) *Filter {
	f.rules = append(f.rules, rule)
	return f
}

// AddAction appends an action to the filter.
func (f *Filter) AddAction(action Action) *Filter {
	f.actions = append(f.actions, action)
	return f
}

// Match runs the route through the rules, in order. The first rule
// with a verdict decides: if it accepts the route, the filter returns
// its on-match verdict. If it rejects it, the filter rejects it. When
// no rule matches, NoVerdict is returned.
func (f *Filter) Match(e route.Entry) Verdict {
	for _, rule := range f.rules {
		switch rule.Match(e) {
		case Accept:
			return f.onMatch
		case Reject:
			return Reject
		}
	}
	return NoVerdict
}

// Apply runs all the actions on the route. When clone is true, the
// returned route is a copy, even without actions, and the original is
// left untouched.
func (f *Filter) Apply(e route.Entry, clone bool) route.Entry {
	if clone {
		e = e.Clone()
	}
	for _, action := range f.actions {
		action.apply(&e)
	}
	return e
}

func (f *Filter) String() string {
	return fmt.Sprintf("Filter(%s, onmatch=%s, %d rules, %d actions)",
		f.Name, f.onMatch, len(f.rules), len(f.actions))
}

// ActionKind is the kind of modification done by an action.
type ActionKind uint8

const (
	// AddCommunity adds communities to the route.
	AddCommunity ActionKind = iota
	// RemoveCommunity removes communities from the route.
	RemoveCommunity
	// PrependASPath prepends ASNs to the AS path.
	PrependASPath
)

// Action is a modification applied to accepted routes.
type Action struct {
	Kind        ActionKind
	Communities []route.Community
	ASNs        []uint32
}

func (a Action) apply(e *route.Entry) {
	switch a.Kind {
	case AddCommunity:
		e.AddCommunities(a.Communities...)
	case RemoveCommunity:
		e.RemoveCommunities(a.Communities...)
	case PrependASPath:
		e.PrependASPath(a.ASNs...)
	}
}

// NewAddCommunity returns an action adding communities.
func NewAddCommunity(communities ...route.Community) Action {
	return Action{Kind: AddCommunity, Communities: slices.Clone(communities)}
}

// NewRemoveCommunity returns an action removing communities.
func NewRemoveCommunity(communities ...route.Community) Action {
	return Action{Kind: RemoveCommunity, Communities: slices.Clone(communities)}
}

// NewPrependASPath returns an action prepending ASNs to the AS path.
func NewPrependASPath(asns ...uint32) Action {
	return Action{Kind: PrependASPath, ASNs: slices.Clone(asns)}
}
