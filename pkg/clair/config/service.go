package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// Service reads configuration files and applies the textual transforms in
// a fixed order: imports, interpolation, overrides, inheritance. The result
// is an untyped tree that Bind converts into typed records.
type Service struct {
	overrides []string
}

// NewService creates a Service with key.path=value overrides to apply to
// every file it reads.
func NewService(overrides []string) *Service {
	return &Service{overrides: overrides}
}

// ReadFile loads a yaml or json config file and returns the transformed
// mapping node.
func (s *Service) ReadFile(path string) (*yaml.Node, error) {
	root, err := readTree(path, nil)
	if err != nil {
		return nil, err
	}
	if err := interpolate(root); err != nil {
		return nil, err
	}
	if err := applyOverrides(root, s.overrides); err != nil {
		return nil, err
	}
	if err := resolveInheritance(root, root); err != nil {
		return nil, err
	}
	return root, nil
}

// Bind decodes the transformed tree into typed records. Unknown fields are
// rejected and every violation is reported at once.
func (s *Service) Bind(root *yaml.Node) (*Config, error) {
	data, err := yaml.Marshal(root)
	if err != nil {
		return nil, internalerr.Wrap(internalerr.KindConfig, err, "encoding config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	conf := &Config{}
	if err := dec.Decode(conf); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return nil, internalerr.Config("invalid configuration:\n  %s",
				strings.Join(typeErr.Errors, "\n  "))
		}
		return nil, internalerr.Wrap(internalerr.KindConfig, err, "invalid configuration")
	}
	return conf, nil
}

// readTree parses a file and resolves its imports, without the other
// transforms. The seen list guards against import cycles.
func readTree(path string, seen []string) (*yaml.Node, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, internalerr.Wrap(internalerr.KindConfig, err, "resolving config path %s", path)
	}
	for _, p := range seen {
		if p == abs {
			return nil, internalerr.Config("circular import of %s", path)
		}
	}
	seen = append(seen, abs)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, internalerr.Wrap(internalerr.KindConfig, err, "reading config file")
	}
	isJSON := false
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
	case ".json":
		isJSON = true
	default:
		return nil, internalerr.Config("unknown config file extension on %s", path)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, internalerr.Wrap(internalerr.KindConfig, err, "parsing %s", path)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, internalerr.Config("config file %s is not a mapping", path)
	}
	root := doc.Content[0]
	if isJSON {
		coerceBooleanStrings(root)
	}

	importsNode, ok := mappingGet(root, "imports")
	if !ok {
		return root, nil
	}
	mappingDelete(root, "imports")
	var imports []string
	switch importsNode.Kind {
	case yaml.ScalarNode:
		imports = []string{importsNode.Value}
	case yaml.SequenceNode:
		for _, c := range importsNode.Content {
			imports = append(imports, c.Value)
		}
	default:
		return nil, internalerr.Config("imports in %s must be a path or list of paths", path)
	}

	// Imported documents are merged in order, then the local document on
	// top so its keys win.
	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	dir := filepath.Dir(path)
	for _, imp := range imports {
		if !filepath.IsAbs(imp) {
			imp = filepath.Join(dir, imp)
		}
		sub, err := readTree(imp, seen)
		if err != nil {
			return nil, err
		}
		mergeNodes(merged, sub)
	}
	mergeNodes(merged, root)
	return merged, nil
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_][A-Za-z0-9_.]*)\}`)

// interpolate substitutes {dotted.path} placeholders in string values. The
// pass runs once in document order and a placeholder only sees values that
// appear before it, so forward references are unresolved and reported.
// Scalars nested inside sequences are substituted but never recorded as
// sources; list elements have no stable dotted path.
func interpolate(root *yaml.Node) error {
	resolved := map[string]string{}
	var missing []string

	var walk func(n *yaml.Node, path string, inSeq bool)
	walk = func(n *yaml.Node, path string, inSeq bool) {
		switch n.Kind {
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				child := path + "." + n.Content[i].Value
				if path == "" {
					child = n.Content[i].Value
				}
				walk(n.Content[i+1], child, inSeq)
			}
		case yaml.SequenceNode:
			for _, c := range n.Content {
				walk(c, "", true)
			}
		case yaml.ScalarNode:
			if n.Tag == "!!str" && strings.Contains(n.Value, "{") {
				value, ok := substitute(n.Value, resolved)
				if ok {
					n.Value = value
				} else {
					missing = append(missing, n.Value)
				}
			}
			if path != "" && !inSeq {
				resolved[path] = n.Value
			}
		}
	}
	walk(root, "", false)

	if len(missing) > 0 {
		return internalerr.Config("Missing interpolations in config: %s",
			strings.Join(missing, ", "))
	}
	return nil
}

// substitute replaces every placeholder in value, or reports failure if
// any of them is not in the resolved map.
func substitute(value string, resolved map[string]string) (string, bool) {
	ok := true
	out := placeholderRe.ReplaceAllStringFunc(value, func(m string) string {
		key := m[1 : len(m)-1]
		v, found := resolved[key]
		if !found {
			ok = false
			return m
		}
		return v
	})
	if !ok {
		return value, false
	}
	return out, true
}

// applyOverrides sets key.path=value pairs on existing leaves.
func applyOverrides(root *yaml.Node, overrides []string) error {
	for _, override := range overrides {
		key, value, found := strings.Cut(override, "=")
		if !found {
			return internalerr.Config("Invalid override %s, expected key=value", override)
		}
		node, ok := lookupPath(root, key)
		if !ok || node.Kind != yaml.ScalarNode {
			return internalerr.Config("Unknown override parameter %s", key)
		}
		node.Tag, node.Value = scalarFor(value)
		node.Style = 0
	}
	return nil
}

// scalarFor infers the yaml tag for an override value. Boolean tokens and
// numbers keep their natural type so the typed bind accepts them.
func scalarFor(value string) (tag, out string) {
	if v, ok := boolToken(value); ok {
		if v {
			return "!!bool", "true"
		}
		return "!!bool", "false"
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "!!int", value
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return "!!float", value
	}
	return "!!str", value
}

// resolveInheritance replaces sections carrying an inherit key with a deep
// copy of the named parent section merged with the local keys. Local keys
// win and lists are replaced, not concatenated. Parents must be defined
// before the sections that inherit from them.
func resolveInheritance(root, n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	if parentNode, ok := mappingGet(n, "inherit"); ok {
		parentPath := parentNode.Value
		parent, found := lookupPath(root, parentPath)
		if !found {
			return internalerr.Config("Cannot inherit from %s as it does not exist", parentPath)
		}
		mappingDelete(n, "inherit")
		merged := cloneNode(parent)
		mergeNodes(merged, n)
		n.Content = merged.Content
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := resolveInheritance(root, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes a typed config as yaml or json, by extension.
func WriteFile(path string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if data, err = json.MarshalIndent(tree, "", "  "); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		data = append(data, '\n')
	}
	return os.WriteFile(path, data, 0o644)
}
