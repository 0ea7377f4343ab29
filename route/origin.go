// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package route

import (
	"fmt"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"bgpsdn/common/helpers/bimap"
)

// Origin is the BGP origin attribute of a route.
type Origin uint8

const (
	// OriginIGP is for routes originated inside the AS
	OriginIGP Origin = Origin(bgp.BGP_ORIGIN_ATTR_TYPE_IGP)
	// OriginEGP is for routes learned from an EGP
	OriginEGP Origin = Origin(bgp.BGP_ORIGIN_ATTR_TYPE_EGP)
	// OriginIncomplete is for routes of unknown origin
	OriginIncomplete Origin = Origin(bgp.BGP_ORIGIN_ATTR_TYPE_INCOMPLETE)
)

var originMap = bimap.New(map[Origin]string{
	OriginIGP:        "igp",
	OriginEGP:        "egp",
	OriginIncomplete: "incomplete",
})

func (o Origin) String() string {
	if s, ok := originMap.LoadValue(o); ok {
		return s
	}
	return fmt.Sprintf("origin(%d)", uint8(o))
}

// MarshalText turns an origin into text.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an origin from text.
func (o *Origin) UnmarshalText(input []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(input)))
	if s == "?" {
		s = "incomplete"
	}
	got, ok := originMap.LoadKey(s)
	if !ok {
		return fmt.Errorf("unknown origin %q", input)
	}
	*o = got
	return nil
}
