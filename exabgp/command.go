// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package exabgp

import (
	"strconv"
	"strings"

	"bgpsdn/route"
)

// AnnounceCommand returns the command announcing a route to a neighbor.
func AnnounceCommand(neighbor string, e route.Entry) string {
	var b strings.Builder
	b.WriteString("neighbor ")
	b.WriteString(neighbor)
	b.WriteString(" announce route ")
	b.WriteString(e.Prefix.String())
	b.WriteString(" next-hop ")
	b.WriteString(nextHop(e))
	b.WriteString(" origin ")
	b.WriteString(e.Origin.String())
	b.WriteString(" as-path [")
	for i, asn := range e.ASPath {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatUint(uint64(asn), 10))
	}
	if len(e.ASSet) > 0 {
		if len(e.ASPath) > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("(")
		for _, asn := range e.ASSet {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatUint(uint64(asn), 10))
		}
		b.WriteString(" )")
	}
	b.WriteString("]")
	if len(e.Communities) > 0 {
		b.WriteString(" community [")
		for i, c := range e.Communities {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(c.String())
		}
		b.WriteString("]")
	}
	return b.String()
}

// WithdrawCommand returns the command withdrawing a route from a neighbor.
func WithdrawCommand(neighbor string, e route.Entry) string {
	return "neighbor " + neighbor + " withdraw route " + e.Prefix.String() +
		" next-hop " + nextHop(e)
}

func nextHop(e route.Entry) string {
	if e.NextHop == "" {
		return "self"
	}
	return e.NextHop
}
