// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package route

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

// SelfASN is the keyword replaced by the local ASN in configuration.
const SelfASN = "self.asn"

// Community is a BGP community, as a (ASN, value) pair.
type Community struct {
	ASN   uint32
	Value uint32
}

var (
	// CommunityNoExport is the NO_EXPORT well-known community.
	CommunityNoExport = CommunityFromUint32(uint32(bgp.COMMUNITY_NO_EXPORT))
	// CommunityNoAdvertise is the NO_ADVERTISE well-known community.
	CommunityNoAdvertise = CommunityFromUint32(uint32(bgp.COMMUNITY_NO_ADVERTISE))
	// CommunityNoExportSubconfed is the NO_EXPORT_SUBCONFED well-known community.
	CommunityNoExportSubconfed = CommunityFromUint32(uint32(bgp.COMMUNITY_NO_EXPORT_SUBCONFED))
)

// CommunityFromUint32 splits a standard 32-bit community.
func CommunityFromUint32(c uint32) Community {
	return Community{ASN: c >> 16, Value: c & 0xffff}
}

func (c Community) String() string {
	return fmt.Sprintf("%d:%d", c.ASN, c.Value)
}

// Compare orders communities by ASN, then by value.
func (c Community) Compare(other Community) int {
	if r := cmp.Compare(c.ASN, other.ASN); r != 0 {
		return r
	}
	return cmp.Compare(c.Value, other.Value)
}

// MarshalText turns a community into text.
func (c Community) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a community in the "A:B" format.
func (c *Community) UnmarshalText(input []byte) error {
	parsed, err := parseCommunityString(string(input), 0)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

var errInvalidCommunity = errors.New("invalid community")

func parseCommunityNumber(v any, selfASN uint32) (uint32, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", errInvalidCommunity, n)
		}
		return uint32(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d", errInvalidCommunity, n)
		}
		return uint32(n), nil
	case uint32:
		return n, nil
	case uint64:
		return uint32(n), nil
	case float64:
		return uint32(n), nil
	case string:
		s := strings.TrimSpace(n)
		if strings.EqualFold(s, SelfASN) {
			return selfASN, nil
		}
		parsed, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", errInvalidCommunity, s)
		}
		return uint32(parsed), nil
	}
	return 0, fmt.Errorf("%w: unknown type %T", errInvalidCommunity, v)
}

func parseCommunityString(input string, selfASN uint32) (Community, error) {
	asn, value, ok := strings.Cut(input, ":")
	if !ok || strings.Contains(value, ":") {
		return Community{}, fmt.Errorf("%w: %q should be NUMBER:NUMBER", errInvalidCommunity, input)
	}
	a, err := parseCommunityNumber(asn, selfASN)
	if err != nil {
		return Community{}, err
	}
	b, err := parseCommunityNumber(value, selfASN)
	if err != nil {
		return Community{}, err
	}
	return Community{a, b}, nil
}

func parseOneCommunity(v any, selfASN uint32) (Community, error) {
	switch c := v.(type) {
	case Community:
		return c, nil
	case string:
		return parseCommunityString(c, selfASN)
	case []any:
		if len(c) != 2 {
			return Community{}, fmt.Errorf("%w: %v should have 2 items", errInvalidCommunity, c)
		}
		a, err := parseCommunityNumber(c[0], selfASN)
		if err != nil {
			return Community{}, err
		}
		b, err := parseCommunityNumber(c[1], selfASN)
		if err != nil {
			return Community{}, err
		}
		return Community{a, b}, nil
	}
	return Community{}, fmt.Errorf("%w: unknown type %T", errInvalidCommunity, v)
}

// ParseCommunities parses communities as found in configuration. It
// accepts a single community ("A:B" or [A, B]) or a list of them.
// "self.asn" is replaced by the provided ASN.
func ParseCommunities(v any, selfASN uint32) ([]Community, error) {
	switch c := v.(type) {
	case []Community:
		return c, nil
	case []string:
		result := make([]Community, 0, len(c))
		for _, s := range c {
			parsed, err := parseCommunityString(s, selfASN)
			if err != nil {
				return nil, err
			}
			result = append(result, parsed)
		}
		return result, nil
	case []any:
		if len(c) == 0 {
			return nil, nil
		}
		switch c[0].(type) {
		case string, []any, Community:
			if _, isString := c[0].(string); isString && len(c) == 2 && !strings.Contains(c[0].(string), ":") {
				// ["self.asn", 10]
				break
			}
			result := make([]Community, 0, len(c))
			for _, item := range c {
				parsed, err := parseOneCommunity(item, selfASN)
				if err != nil {
					return nil, err
				}
				result = append(result, parsed)
			}
			return result, nil
		}
	}
	parsed, err := parseOneCommunity(v, selfASN)
	if err != nil {
		return nil, err
	}
	return []Community{parsed}, nil
}
