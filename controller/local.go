// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package controller

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bgpsdn/route"
)

// localSource is the name of the source of local routes in tables.
const localSource = "local"

// ErrInvalidLocalRoute is returned when a line of the local routes file
// cannot be parsed.
var ErrInvalidLocalRoute = errors.New("invalid local route")

// loadLocalRoutes reads the local routes file.
func loadLocalRoutes(path string, asn uint32) ([]route.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open local routes: %w", err)
	}
	defer f.Close()
	routes, err := parseLocalRoutes(f, asn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return routes, nil
}

// parseLocalRoutes parses "node,prefix" lines. Each line becomes an
// IGP route originated by the provided ASN with the node as next-hop.
func parseLocalRoutes(in io.Reader, asn uint32) ([]route.Entry, error) {
	reader := csv.NewReader(in)
	reader.Comment = '#'
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true
	routes := []route.Entry{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLocalRoute, err)
		}
		line, _ := reader.FieldPos(0)
		node := strings.TrimSpace(record[0])
		if node == "" {
			return nil, fmt.Errorf("%w: line %d: empty node", ErrInvalidLocalRoute, line)
		}
		prefix, err := route.ParsePrefix(record[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidLocalRoute, line, err)
		}
		routes = append(routes, route.NewEntry(route.OriginIGP, asn, prefix, node,
			nil, nil, nil, route.DefaultPreference))
	}
	return routes, nil
}
