// SPDX-FileCopyrightText: 2023 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package yaml_test

import (
	"testing"
	"testing/fstest"

	"bgpsdn/common/helpers"
	"bgpsdn/common/helpers/yaml"
)

func TestUnmarshalWithInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"base.yaml": &fstest.MapFile{Data: []byte(`
.anchors: &anchor
  type: bgp
asn: 65000
filters: !include "filters.yaml"
peers:
  r1: *anchor
`)},
		"filters.yaml": &fstest.MapFile{Data: []byte(`
- name: martians
  onmatch: reject
`)},
	}
	var got any
	if err := yaml.UnmarshalWithInclude(fsys, "base.yaml", &got); err != nil {
		t.Fatalf("UnmarshalWithInclude() error:\n%+v", err)
	}
	expected := map[string]any{
		"asn": 65000,
		"filters": []any{
			map[string]any{"name": "martians", "onmatch": "reject"},
		},
		"peers": map[string]any{
			"r1": map[string]any{"type": "bgp"},
		},
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("UnmarshalWithInclude() (-got, +want):\n%s", diff)
	}
}

func TestUnmarshalMissingInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"base.yaml": &fstest.MapFile{Data: []byte(`filters: !include "nothing.yaml"`)},
	}
	var got any
	if err := yaml.UnmarshalWithInclude(fsys, "base.yaml", &got); err == nil {
		t.Fatal("UnmarshalWithInclude() did not error")
	}
}

func TestUnmarshalHiddenKeys(t *testing.T) {
	fsys := fstest.MapFS{
		"base.yaml": &fstest.MapFile{Data: []byte(`
asn: 65000
.defaults: &defaults
  preference: 50
local-routes: local.csv
.more: 1
peers:
  r1: *defaults
`)},
	}
	var got any
	if err := yaml.UnmarshalWithInclude(fsys, "base.yaml", &got); err != nil {
		t.Fatalf("UnmarshalWithInclude() error:\n%+v", err)
	}
	expected := map[string]any{
		"asn":          65000,
		"local-routes": "local.csv",
		"peers": map[string]any{
			"r1": map[string]any{"preference": 50},
		},
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("UnmarshalWithInclude() (-got, +want):\n%s", diff)
	}
}

func TestUnmarshalEmptyKey(t *testing.T) {
	fsys := fstest.MapFS{
		"base.yaml": &fstest.MapFile{Data: []byte(`
.anchors: &r
  asn: 65001
"": [*r]
`)},
	}
	var got any
	if err := yaml.UnmarshalWithInclude(fsys, "base.yaml", &got); err != nil {
		t.Fatalf("UnmarshalWithInclude() error:\n%+v", err)
	}
	if diff := helpers.Diff(got, []any{map[string]any{"asn": 65001}}); diff != "" {
		t.Fatalf("UnmarshalWithInclude() (-got, +want):\n%s", diff)
	}
}
