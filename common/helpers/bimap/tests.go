// SPDX-FileCopyrightText: 2024 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !release

package bimap

import (
	"encoding"
	"fmt"
	"testing"
)

// TestMarshalUnmarshal is an helper to test String(), MarshalText() and
// UnmarshalText() functions for an enumeration backed by a bimap.
func (bi *Bimap[K, V]) TestMarshalUnmarshal(t *testing.T) {
	t.Helper()
	for _, k := range bi.Keys() {
		v, _ := bi.LoadValue(k)
		expected := fmt.Sprint(v)
		if k, ok := any(k).(fmt.Stringer); !ok {
			t.Fatalf("key should implement Stringer")
		} else if k.String() != expected {
			t.Errorf("%v.String() == %s, expected %s", k, k.String(), expected)
		}
		if k, ok := any(k).(encoding.TextMarshaler); !ok {
			t.Fatalf("key should implement TextMarshaler")
		} else if m, err := k.MarshalText(); err != nil {
			t.Errorf("%v.MarshalText() error:\n%+v", k, err)
		} else if string(m) != expected {
			t.Errorf("%v.MarshalText() == %s, expected %s", k, string(m), expected)
		}
		var u K
		if u2, ok := any(&u).(encoding.TextUnmarshaler); !ok {
			t.Fatalf("key should implement TextUnmarshaler")
		} else if err := u2.UnmarshalText([]byte(expected)); err != nil {
			t.Errorf("UnmarshalText(%q) error:\n%+v", expected, err)
		} else if u != k {
			t.Errorf("UnmarshalText(%q) == %v, expected %v", expected, u, k)
		}
	}
}
