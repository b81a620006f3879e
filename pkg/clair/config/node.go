package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Helpers for the untyped configuration tree. The textual transforms
// (imports, interpolation, overrides, inheritance) run on yaml.Node trees
// because mapping nodes preserve document order, which the interpolation
// semantics depend on.

// cloneNode returns a deep copy of a node.
func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Content = make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		out.Content[i] = cloneNode(c)
	}
	return &out
}

// mappingGet returns the value node for key in a mapping node.
func mappingGet(m *yaml.Node, key string) (*yaml.Node, bool) {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1], true
		}
	}
	return nil, false
}

// mappingSet replaces the value for key, appending the pair if absent.
func mappingSet(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	m.Content = append(m.Content, k, value)
}

// mappingDelete removes a key and its value from a mapping node.
func mappingDelete(m *yaml.Node, key string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}

// lookupPath navigates a dotted key path from a mapping node.
func lookupPath(root *yaml.Node, path string) (*yaml.Node, bool) {
	node := root
	for _, key := range strings.Split(path, ".") {
		next, ok := mappingGet(node, key)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

// mergeNodes deep-merges src into dst. Mappings merge recursively with src
// winning on conflicts; every other kind, including sequences, is replaced
// wholesale by a copy of the src value.
func mergeNodes(dst, src *yaml.Node) {
	if dst.Kind != yaml.MappingNode || src.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(src.Content); i += 2 {
		key := src.Content[i].Value
		srcVal := src.Content[i+1]
		dstVal, ok := mappingGet(dst, key)
		if ok && dstVal.Kind == yaml.MappingNode && srcVal.Kind == yaml.MappingNode {
			mergeNodes(dstVal, srcVal)
			continue
		}
		mappingSet(dst, key, cloneNode(srcVal))
	}
}

// boolToken reports whether s is one of the boolean-like tokens used by
// overrides and JSON configs, and its value.
func boolToken(s string) (value, ok bool) {
	switch s {
	case "true", "on", "yes":
		return true, true
	case "false", "off", "no":
		return false, true
	}
	return false, false
}

// coerceBooleanStrings converts boolean-like string scalars to booleans in
// place. This makes JSON configs behave like their YAML equivalents.
func coerceBooleanStrings(n *yaml.Node) {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			coerceBooleanStrings(n.Content[i+1])
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			coerceBooleanStrings(c)
		}
	case yaml.ScalarNode:
		if n.Tag != "!!str" {
			return
		}
		if v, ok := boolToken(n.Value); ok {
			n.Tag = "!!bool"
			n.Style = 0
			if v {
				n.Value = "true"
			} else {
				n.Value = "false"
			}
		}
	}
}
