package tracker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record maps field names to values. Structured records hold nested
// map[string]any / []any values; flat records hold strings only.
type Record map[string]any

// IsEmpty reports whether the record carries no fields.
func (r Record) IsEmpty() bool {
	return len(r) == 0
}

// nodeValue converts a decoded YAML node into map[string]any / []any values.
// Non-null scalars keep their literal text: every leaf in a tracker is text,
// so 02134, 10.30 or a 20 digit number must not pass through int or float.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return nil, nil
		}
		return n.Value, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := nodeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind == yaml.AliasNode {
				key = key.Alias
			}
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping key is not a scalar", key.Line)
			}
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[key.Value] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// parseValue reads a default or example string. Flow-style YAML/JSON
// collections are decoded; anything else is returned as the plain string.
func parseValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '[' && trimmed[0] != '{') {
		return s
	}
	var v any
	if err := yaml.Unmarshal([]byte(trimmed), &v); err != nil {
		return s
	}
	return v
}

// parseList reads a comma separated or flow-style list.
func parseList(s string) []any {
	switch v := parseValue(s).(type) {
	case []any:
		return v
	case string:
		out := []any{}
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return []any{}
	}
}

// scalarString renders a scalar as text. ok is false for collections.
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case string:
		return val, true
	case bool, int, int64, float64, float32, uint64, json.Number:
		return fmt.Sprint(val), true
	}
	return "", false
}

// mapKeys returns the keys of m in field order, then any remaining keys sorted.
func mapKeys(m map[string]any, fields []Field) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]struct{}, len(m))
	for _, f := range fields {
		if _, ok := m[f.Name]; ok {
			keys = append(keys, f.Name)
			seen[f.Name] = struct{}{}
		}
	}
	rest := make([]string, 0, len(m)-len(keys))
	for k := range m {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
