// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package topology

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// StaticLink is one line of a static topology file.
type StaticLink struct {
	Source string
	Link
}

// LoadStaticFile reads a topology file. Each line is
// "source,destination,cost,address". Lines starting with "#" are
// ignored.
func LoadStaticFile(path string) ([]StaticLink, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open topology file: %w", err)
	}
	defer f.Close()
	links, err := ParseStatic(f)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return links, nil
}

// ParseStatic parses the content of a static topology file.
func ParseStatic(in io.Reader) ([]StaticLink, error) {
	reader := csv.NewReader(in)
	reader.Comment = '#'
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true
	links := []StaticLink{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		cost, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid cost %q", line, record[2])
		}
		links = append(links, StaticLink{
			Source: strings.TrimSpace(record[0]),
			Link: Link{
				Destination: strings.TrimSpace(record[1]),
				Cost:        cost,
				Address:     strings.TrimSpace(record[3]),
			},
		})
	}
	return links, nil
}
