// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package bimap exposes a bidirectional map structure. It is used for
// enumerations with a textual form.
package bimap

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// Bimap is a bidirectional map.
type Bimap[K cmp.Ordered, V comparable] struct {
	forward map[K]V
	inverse map[V]K
}

// New returns a new bimap from an existing map.
func New[K cmp.Ordered, V comparable](input map[K]V) *Bimap[K, V] {
	output := &Bimap[K, V]{
		forward: make(map[K]V, len(input)),
		inverse: make(map[V]K, len(input)),
	}
	for key, value := range input {
		output.forward[key] = value
		output.inverse[value] = key
	}
	return output
}

// LoadValue returns the value stored in the bimap for a key.
func (bi *Bimap[K, V]) LoadValue(k K) (V, bool) {
	v, ok := bi.forward[k]
	return v, ok
}

// LoadKey returns the key stored in the bimap for a value.
func (bi *Bimap[K, V]) LoadKey(v V) (K, bool) {
	k, ok := bi.inverse[v]
	return k, ok
}

// Keys returns the sorted keys of the bimap.
func (bi *Bimap[K, V]) Keys() []K {
	return slices.Sorted(maps.Keys(bi.forward))
}

// String returns a string representation of the bimap.
func (bi *Bimap[K, V]) String() string {
	return fmt.Sprintf("Bi%v", bi.forward)
}
