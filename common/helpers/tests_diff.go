// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !release

package helpers

import (
	"net/netip"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// diffCmpOptions are applied to every Diff(). Prefixes and addresses
// appear in most route tests and are compared by value.
var diffCmpOptions = cmp.Options{
	cmpopts.EquateComparable(netip.Addr{}, netip.Prefix{}),
	cmpopts.EquateErrors(),
}

// RegisterCmpOption adds an option used by every later call to Diff().
func RegisterCmpOption(option cmp.Option) {
	diffCmpOptions = append(diffCmpOptions, option)
}

// Diff returns a diff of got and want, or an empty string when they are
// equal.
func Diff(got, want any, options ...cmp.Option) string {
	return cmp.Diff(got, want, append(options, diffCmpOptions...)...)
}
