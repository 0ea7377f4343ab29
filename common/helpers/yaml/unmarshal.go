// SPDX-FileCopyrightText: 2023 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package yaml wraps gopkg.in/yaml.v3 for configuration files. Files
// can pull other files with the "!include" tag and hide helper keys
// (anchors) behind a leading dot.
package yaml

import (
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// includeTag replaces a node with the content of the named file.
const includeTag = "!include"

// Unmarshal decodes the first document of in into out.
func Unmarshal(in []byte, out any) error {
	return yaml.Unmarshal(in, out)
}

// UnmarshalWithInclude decodes the named file from fsys into out,
// resolving "!include" tags relative to fsys.
func UnmarshalWithInclude(fsys fs.FS, name string, out any) error {
	root, err := load(fsys, name)
	if err != nil {
		return err
	}
	return root.Decode(out)
}

// load reads a file into a node tree with includes resolved.
func load(fsys fs.FS, name string) (*yaml.Node, error) {
	in, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", name, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(in, &doc); err != nil {
		return nil, fmt.Errorf("in %s: %w", name, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == yaml.MappingNode {
		root.Content = dropHidden(root.Content)
		// A map with a single empty key stands for its value.
		if len(root.Content) == 2 && isString(root.Content[0]) && root.Content[0].Value == "" {
			root = root.Content[1]
		}
	}

	pending := []*yaml.Node{root}
	for len(pending) > 0 {
		node := pending[0]
		pending = pending[1:]
		if node.Tag != includeTag {
			pending = append(pending, node.Content...)
			continue
		}
		switch {
		case node.Alias != nil:
			return nil, fmt.Errorf("at line %d of %s, no alias is allowed for %s", node.Line, name, includeTag)
		case len(node.Content) > 0:
			return nil, fmt.Errorf("at line %d of %s, no content is allowed for %s", node.Line, name, includeTag)
		}
		included, err := load(fsys, node.Value)
		if err != nil {
			return nil, fmt.Errorf("at line %d of %s: %w", node.Line, name, err)
		}
		*node = *included
	}
	return root, nil
}

// dropHidden removes the key/value pairs of a mapping whose key starts
// with a dot.
func dropHidden(content []*yaml.Node) []*yaml.Node {
	for i := 0; i+1 < len(content); {
		if key := content[i]; isString(key) && strings.HasPrefix(key.Value, ".") {
			content = slices.Delete(content, i, i+2)
			continue
		}
		i += 2
	}
	return content
}

func isString(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!str"
}
