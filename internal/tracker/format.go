package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how records are shaped and written into prompts.
type Format string

const (
	// FormatStructured keeps nested objects and lists; readable text is JSON.
	FormatStructured Format = "structured"
	// FormatFlat renders every top-level value as text; prompt text is key: value lines.
	FormatFlat Format = "flat"
)

// ParseFormat converts a config string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "structured", "json":
		return FormatStructured, nil
	case "flat", "yaml", "":
		return FormatFlat, nil
	}
	return "", fmt.Errorf("unknown tracker format: %q", s)
}

// Codec converts records between their in-memory shape, prompt text and the
// YAML text carried inside <tracker> blocks. fields is the active field list
// and drives key order and value shape.
type Codec interface {
	Format() Format
	// Shape converts a canonical (structured) record into this format's shape.
	Shape(r Record, fields []Field) Record
	// PromptText renders a record as readable text outside a <tracker> block.
	PromptText(r Record, fields []Field) (string, error)
	// WireText renders a record as the body of a <tracker> block.
	WireText(r Record, fields []Field) (string, error)
	// FromWireText parses the body of a <tracker> block.
	FromWireText(text string, fields []Field) (Record, error)
}

// CodecFor returns the codec for a format. Unknown formats fall back to flat.
func CodecFor(f Format) Codec {
	if f == FormatStructured {
		return structuredCodec{}
	}
	return flatCodec{}
}

type structuredCodec struct{}

func (structuredCodec) Format() Format { return FormatStructured }

func (structuredCodec) Shape(r Record, _ []Field) Record { return r }

func (structuredCodec) PromptText(r Record, fields []Field) (string, error) {
	data, err := json.MarshalIndent(orderRecord(r, fields), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode tracker JSON: %w", err)
	}
	return string(data), nil
}

func (structuredCodec) WireText(r Record, fields []Field) (string, error) {
	return yamlText(orderRecord(r, fields))
}

func (structuredCodec) FromWireText(text string, _ []Field) (Record, error) {
	return decodeWire(text)
}

type flatCodec struct{}

func (flatCodec) Format() Format { return FormatFlat }

func (flatCodec) Shape(r Record, fields []Field) Record {
	out := make(Record, len(r))
	for k, v := range r {
		f, ok := fieldByName(fields, k)
		if !ok {
			f = Field{Name: k, Type: TypeString}
		}
		out[k] = flatten(v, f)
	}
	return out
}

func (c flatCodec) PromptText(r Record, fields []Field) (string, error) {
	return yamlText(orderRecord(c.Shape(r, fields), fields))
}

func (c flatCodec) WireText(r Record, fields []Field) (string, error) {
	return c.PromptText(r, fields)
}

func (c flatCodec) FromWireText(text string, fields []Field) (Record, error) {
	rec, err := decodeWire(text)
	if err != nil {
		return nil, err
	}
	return c.Shape(rec, fields), nil
}

// decodeWire parses YAML (or JSON, which YAML accepts) into a record whose
// scalars are the text written in the payload.
func decodeWire(text string) (Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty tracker payload")
	}
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		return nil, fmt.Errorf("invalid tracker YAML: %w", err)
	}
	doc, err := nodeValue(&node)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker YAML: %w", err)
	}
	rec, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tracker payload is %T, want a mapping", doc)
	}
	return Record(rec), nil
}

func yamlText(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode tracker YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode tracker YAML: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// flatten renders a top-level value as one line of text.
func flatten(v any, f Field) string {
	if s, ok := scalarString(v); ok {
		return s
	}
	switch val := v.(type) {
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, flattenInner(item, f.Fields))
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		if f.Type != TypeForEachObject && f.Type != TypeForEachArray {
			return flattenInner(val, f.Fields)
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+" ("+flattenInner(val[k], f.Fields)+")")
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Sprint(v)
}

func flattenInner(v any, fields []Field) string {
	if s, ok := scalarString(v); ok {
		return s
	}
	switch val := v.(type) {
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, flattenInner(item, nil))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, k := range mapKeys(val, fields) {
			var sub []Field
			if f, ok := fieldByName(fields, k); ok {
				sub = f.Fields
			}
			parts = append(parts, k+": "+flattenInner(val[k], sub))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

func fieldByName(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// orderedMap marshals its entries in a fixed key order for both JSON and YAML.
type orderedMap struct {
	keys []string
	vals map[string]any
}

func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m orderedMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		var val yaml.Node
		if err := val.Encode(m.vals[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val,
		)
	}
	return node, nil
}

// orderRecord orders r by fields, recursing into nested objects.
func orderRecord(r map[string]any, fields []Field) orderedMap {
	keys := mapKeys(r, fields)
	vals := make(map[string]any, len(keys))
	for _, k := range keys {
		if f, ok := fieldByName(fields, k); ok {
			vals[k] = orderValue(r[k], f)
		} else {
			vals[k] = r[k]
		}
	}
	return orderedMap{keys: keys, vals: vals}
}

func orderValue(v any, f Field) any {
	switch f.Type {
	case TypeObject:
		if m, ok := v.(map[string]any); ok {
			return orderRecord(m, f.Fields)
		}
	case TypeForEachObject:
		if m, ok := v.(map[string]any); ok {
			keys := mapKeys(m, nil)
			vals := make(map[string]any, len(m))
			for _, k := range keys {
				if sub, ok := m[k].(map[string]any); ok {
					vals[k] = orderRecord(sub, f.Fields)
				} else {
					vals[k] = m[k]
				}
			}
			return orderedMap{keys: keys, vals: vals}
		}
	case TypeForEachArray:
		if m, ok := v.(map[string]any); ok {
			return orderedMap{keys: mapKeys(m, nil), vals: m}
		}
	case TypeArrayObject:
		if items, ok := v.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				if sub, ok := item.(map[string]any); ok {
					out[i] = orderRecord(sub, f.Fields)
				} else {
					out[i] = item
				}
			}
			return out
		}
	}
	return v
}
