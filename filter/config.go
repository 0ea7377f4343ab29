// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"bgpsdn/common/helpers"
	"bgpsdn/route"
)

// Configuration describes one filter.
type Configuration struct {
	// Name is the name used to reference the filter from peers and tables
	Name string `validate:"required"`
	// OnMatch is the verdict when a rule accepts a route (default: accept)
	OnMatch Verdict
	// Rules are evaluated in order
	Rules []RuleConfiguration `validate:"dive"`
	// Actions are applied to accepted routes
	Actions []ActionConfiguration `validate:"dive"`
}

// RuleConfiguration describes one rule of a filter. The expected
// content of Match depends on the type of rule.
type RuleConfiguration struct {
	Type    string `validate:"required"`
	Match   any
	OnMatch Verdict
}

// ActionConfiguration describes one action of a filter.
type ActionConfiguration struct {
	Action string `validate:"required"`
	Value  any
}

var (
	// ErrDuplicateFilter is returned when two filters share the same name.
	ErrDuplicateFilter = errors.New("duplicate filter")
	// ErrInvalidRule is returned when a rule cannot be built.
	ErrInvalidRule = errors.New("invalid filter rule")
	// ErrInvalidAction is returned when an action cannot be built.
	ErrInvalidAction = errors.New("invalid filter action")
)

// Build builds the filters from their configuration. The "self.asn"
// keyword is replaced by the provided ASN.
func Build(configs []Configuration, selfASN uint32) (map[string]*Filter, error) {
	filters := make(map[string]*Filter, len(configs))
	for _, config := range configs {
		if _, ok := filters[config.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFilter, config.Name)
		}
		f := New(config.Name, config.OnMatch)
		for idx, ruleConfig := range config.Rules {
			rule, err := buildRule(ruleConfig, selfASN)
			if err != nil {
				return nil, fmt.Errorf("filter %q, rule %d: %w", config.Name, idx+1, err)
			}
			f.AddRule(rule)
		}
		for idx, actionConfig := range config.Actions {
			action, err := buildAction(actionConfig, selfASN)
			if err != nil {
				return nil, fmt.Errorf("filter %q, action %d: %w", config.Name, idx+1, err)
			}
			f.AddAction(action)
		}
		filters[config.Name] = f
	}
	return filters, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(name))
}

func buildRule(config RuleConfiguration, selfASN uint32) (Rule, error) {
	kind := normalizeName(config.Type)
	needMatch := kind != "alwaysmatch" && kind != "martiansfilter" && kind != "noexportfilter"
	if needMatch && config.Match == nil {
		return nil, fmt.Errorf("%w: %s requires a match value", ErrInvalidRule, config.Type)
	}
	switch kind {
	case "alwaysmatch":
		return NewAlwaysMatch(config.OnMatch), nil
	case "martiansfilter":
		return NewMartians(config.OnMatch), nil
	case "noexportfilter":
		return NewNoExport(config.OnMatch), nil
	case "invertfilter":
		var inner RuleConfiguration
		decoder, err := mapstructure.NewDecoder(helpers.GetMapStructureDecoderConfig(&inner))
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(config.Match); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRule, config.Type, err)
		}
		rule, err := buildRule(inner, selfASN)
		if err != nil {
			return nil, err
		}
		return NewInvert(rule), nil
	case "matchprefixlength":
		rule, err := NewPrefixLength(fmt.Sprint(config.Match), config.OnMatch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		return rule, nil
	case "prefixfilter":
		items := asList(config.Match)
		patterns := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: prefix pattern %v is not a string", ErrInvalidRule, item)
			}
			patterns = append(patterns, s)
		}
		rule, err := NewPrefix(patterns, config.OnMatch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		return rule, nil
	case "communityfilter":
		communities, err := route.ParseCommunities(config.Match, selfASN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		return NewCommunity(communities, config.OnMatch), nil
	case "peerfilter":
		asns, err := parseASNs(config.Match, selfASN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		return NewPeer(asns, config.OnMatch), nil
	case "originfilter":
		items := asList(config.Match)
		origins := make([]route.Origin, 0, len(items))
		for _, item := range items {
			var origin route.Origin
			if n, err := strconv.ParseUint(fmt.Sprint(item), 10, 8); err == nil {
				origin = route.Origin(n)
			} else if err := origin.UnmarshalText([]byte(fmt.Sprint(item))); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRule, err)
			}
			origins = append(origins, origin)
		}
		return NewOrigin(origins, config.OnMatch), nil
	}
	return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, config.Type)
}

func buildAction(config ActionConfiguration, selfASN uint32) (Action, error) {
	if config.Value == nil {
		return Action{}, fmt.Errorf("%w: %s requires a value", ErrInvalidAction, config.Action)
	}
	switch normalizeName(config.Action) {
	case "addcommunity", "removecommunity":
		communities, err := route.ParseCommunities(config.Value, selfASN)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
		if normalizeName(config.Action) == "addcommunity" {
			return NewAddCommunity(communities...), nil
		}
		return NewRemoveCommunity(communities...), nil
	case "prependaspath":
		asns, err := parseASNs(config.Value, selfASN)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
		return NewPrependASPath(asns...), nil
	}
	return Action{}, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, config.Action)
}

// asList turns a single value into a list.
func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		result := make([]any, 0, len(l))
		for _, s := range l {
			result = append(result, s)
		}
		return result
	}
	return []any{v}
}

// ParseASN parses an ASN. "self.asn" is replaced by the provided ASN.
func ParseASN(v any, selfASN uint32) (uint32, error) {
	s := strings.TrimSpace(fmt.Sprint(v))
	if strings.EqualFold(s, route.SelfASN) {
		return selfASN, nil
	}
	asn, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ASN %q", s)
	}
	return uint32(asn), nil
}

func parseASNs(v any, selfASN uint32) ([]uint32, error) {
	items := asList(v)
	asns := make([]uint32, 0, len(items))
	for _, item := range items {
		asn, err := ParseASN(item, selfASN)
		if err != nil {
			return nil, err
		}
		asns = append(asns, asn)
	}
	return asns, nil
}
