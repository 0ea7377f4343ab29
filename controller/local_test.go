// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package controller

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bgpsdn/common/helpers"
	"bgpsdn/route"
)

func TestParseLocalRoutes(t *testing.T) {
	got, err := parseLocalRoutes(strings.NewReader(`# node,prefix
10.0.0.1,203.0.113.0/24
10.0.0.2, 2001:db8::/32

10.0.0.2,198.51.100.0/24
`), 65000)
	if err != nil {
		t.Fatalf("parseLocalRoutes() error:\n%+v", err)
	}
	expected := []route.Entry{
		route.NewEntry(route.OriginIGP, 65000, route.MustParsePrefix("203.0.113.0/24"),
			"10.0.0.1", nil, nil, nil, route.DefaultPreference),
		route.NewEntry(route.OriginIGP, 65000, route.MustParsePrefix("2001:db8::/32"),
			"10.0.0.2", nil, nil, nil, route.DefaultPreference),
		route.NewEntry(route.OriginIGP, 65000, route.MustParsePrefix("198.51.100.0/24"),
			"10.0.0.2", nil, nil, nil, route.DefaultPreference),
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Errorf("parseLocalRoutes() (-got, +want):\n%s", diff)
	}
}

func TestParseLocalRoutesErrors(t *testing.T) {
	cases := []struct {
		Pos   helpers.Pos
		Input string
	}{
		{helpers.Mark(), "10.0.0.1\n"},
		{helpers.Mark(), "10.0.0.1,203.0.113.0/24,extra\n"},
		{helpers.Mark(), ",203.0.113.0/24\n"},
		{helpers.Mark(), "10.0.0.1,203.0.113.0\n"},
		{helpers.Mark(), "10.0.0.1,203.0.113.0/24\n10.0.0.1,not-a-prefix\n"},
	}
	for _, tc := range cases {
		_, err := parseLocalRoutes(strings.NewReader(tc.Input), 65000)
		if !errors.Is(err, ErrInvalidLocalRoute) {
			t.Errorf("%sparseLocalRoutes(%q) error == %v, expected ErrInvalidLocalRoute",
				tc.Pos, tc.Input, err)
		}
	}
}

func TestLoadLocalRoutes(t *testing.T) {
	dir := t.TempDir()
	if _, err := loadLocalRoutes(filepath.Join(dir, "missing.csv"), 65000); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("loadLocalRoutes() error == %v, expected os.ErrNotExist", err)
	}

	path := filepath.Join(dir, "local.csv")
	if err := os.WriteFile(path, []byte("10.0.0.1,203.0.113.0/24\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error:\n%+v", err)
	}
	got, err := loadLocalRoutes(path, 65000)
	if err != nil {
		t.Fatalf("loadLocalRoutes() error:\n%+v", err)
	}
	if len(got) != 1 || got[0].NextHop != "10.0.0.1" || got[0].Peer != 65000 {
		t.Errorf("loadLocalRoutes() == %v", got)
	}
}
