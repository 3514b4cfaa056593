package tracker

import (
	"fmt"
	"strings"
)

// DefaultRecord returns each included field at its declared default, shaped
// per format.
func DefaultRecord(def Definition, filter Filter, format Format) Record {
	fields := def.Included(filter, false)
	rec := make(Record, len(fields))
	for _, f := range fields {
		rec[f.Name] = defaultValue(f)
	}
	return CodecFor(format).Shape(rec, fields)
}

func defaultValue(f Field) any {
	switch f.Type {
	case TypeArray:
		return parseList(f.Default)
	case TypeObject:
		return nestedDefaults(f.Fields)
	case TypeForEachObject, TypeForEachArray:
		if v, ok := parseValue(f.Default).(map[string]any); ok {
			return v
		}
		out := map[string]any{}
		for _, key := range parseList(f.Default) {
			name, _ := scalarString(key)
			if f.Type == TypeForEachObject {
				out[name] = nestedDefaults(f.Fields)
			} else {
				out[name] = []any{}
			}
		}
		return out
	case TypeArrayObject:
		if v, ok := parseValue(f.Default).([]any); ok {
			return v
		}
		return []any{}
	default:
		return f.Default
	}
}

func nestedDefaults(fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = defaultValue(f)
	}
	return out
}

// FieldPrompt describes each included field for the model: name, shape and
// description, with nested fields indented beneath their parent.
func FieldPrompt(def Definition, filter Filter, format Format) string {
	var b strings.Builder
	writeFieldPrompt(&b, def.Included(filter, false), format, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeFieldPrompt(b *strings.Builder, fields []Field, format Format, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		fmt.Fprintf(b, "%s- %s (%s)", indent, f.Name, shapeLabel(f, format, depth))
		if p := strings.TrimSpace(f.Prompt); p != "" {
			fmt.Fprintf(b, ": %s", p)
		}
		b.WriteByte('\n')
		if len(f.Fields) > 0 {
			writeFieldPrompt(b, f.Fields, FormatStructured, depth+1)
		}
	}
}

func shapeLabel(f Field, format Format, depth int) string {
	if format == FormatFlat && depth == 0 && f.Type != TypeString {
		return "text summarising " + typeLabel(f.Type)
	}
	return typeLabel(f.Type)
}

func typeLabel(t FieldType) string {
	switch t {
	case TypeArray:
		return "list of strings"
	case TypeObject:
		return "object"
	case TypeForEachObject:
		return "object per character, keyed by name"
	case TypeForEachArray:
		return "list per character, keyed by name"
	case TypeArrayObject:
		return "list of objects"
	default:
		return "string"
	}
}

// ExampleRecords returns few-shot records. The count is the longest examples
// list among included fields (nested fields included); fields without an
// example at a position fall back to their default.
func ExampleRecords(def Definition, filter Filter, format Format) []Record {
	fields := def.Included(filter, false)
	n := exampleCount(fields)
	codec := CodecFor(format)

	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		rec := make(Record, len(fields))
		for _, f := range fields {
			rec[f.Name] = exampleValue(f, i)
		}
		out = append(out, codec.Shape(rec, fields))
	}
	return out
}

func exampleCount(fields []Field) int {
	n := 0
	for _, f := range fields {
		if len(f.Examples) > n {
			n = len(f.Examples)
		}
		if c := exampleCount(f.Fields); c > n {
			n = c
		}
	}
	return n
}

func exampleValue(f Field, i int) any {
	raw, ok := "", false
	if i < len(f.Examples) {
		raw, ok = f.Examples[i], true
	}

	switch f.Type {
	case TypeString:
		if ok {
			return raw
		}
		return f.Default
	case TypeArray:
		if ok {
			return parseList(raw)
		}
		return parseList(f.Default)
	case TypeObject:
		if ok {
			if m, isMap := parseValue(raw).(map[string]any); isMap {
				return m
			}
		}
		return nestedExamples(f.Fields, i)
	case TypeForEachObject, TypeForEachArray:
		src := f.Default
		if ok {
			src = raw
		}
		if m, isMap := parseValue(src).(map[string]any); isMap {
			return m
		}
		out := map[string]any{}
		for _, key := range parseList(src) {
			name, _ := scalarString(key)
			if f.Type == TypeForEachObject {
				out[name] = nestedExamples(f.Fields, i)
			} else {
				out[name] = []any{}
			}
		}
		return out
	case TypeArrayObject:
		if ok {
			if items, isList := parseValue(raw).([]any); isList {
				return items
			}
		}
		return []any{nestedExamples(f.Fields, i)}
	}
	return f.Default
}

func nestedExamples(fields []Field, i int) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = exampleValue(f, i)
	}
	return out
}

// Render filters a stored record to the selected fields, shapes it per format
// and returns its wire text, ready to sit inside a <tracker> block next to the
// examples and the expected reply. historical drops ephemeral fields, which
// only describe the message they were generated for.
func Render(rec Record, def Definition, filter Filter, historical bool, format Format) (string, error) {
	fields := def.Included(filter, historical)
	codec := CodecFor(format)
	return codec.WireText(codec.Shape(Select(rec, fields), fields), fields)
}

// Select returns the entries of rec named by fields.
func Select(rec Record, fields []Field) Record {
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := rec[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

// Conform drops fields outside the filter and coerces scalars where the
// definition expects text, so a record parsed from model output matches the
// definition's shape as closely as its content allows.
func Conform(rec Record, def Definition, filter Filter, format Format) Record {
	fields := def.Included(filter, false)
	out := make(Record, len(fields))
	for _, f := range fields {
		v, ok := rec[f.Name]
		if !ok {
			continue
		}
		if format == FormatFlat {
			out[f.Name] = flatten(v, f)
			continue
		}
		out[f.Name] = conformValue(v, f)
	}
	return out
}

func conformValue(v any, f Field) any {
	switch f.Type {
	case TypeString:
		if s, ok := scalarString(v); ok {
			return s
		}
	case TypeArray:
		if v == nil {
			return []any{}
		}
		if s, ok := scalarString(v); ok {
			return []any{s}
		}
		return conformList(v)
	case TypeObject:
		if m, ok := v.(map[string]any); ok {
			return conformObject(m, f.Fields)
		}
	case TypeForEachObject:
		if m, ok := v.(map[string]any); ok {
			out := make(map[string]any, len(m))
			for k, sub := range m {
				if sm, ok := sub.(map[string]any); ok {
					out[k] = conformObject(sm, f.Fields)
				} else {
					out[k] = sub
				}
			}
			return out
		}
	case TypeForEachArray:
		if m, ok := v.(map[string]any); ok {
			out := make(map[string]any, len(m))
			for k, sub := range m {
				out[k] = conformList(sub)
			}
			return out
		}
	case TypeArrayObject:
		if items, ok := v.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				if sm, ok := item.(map[string]any); ok {
					out[i] = conformObject(sm, f.Fields)
				} else {
					out[i] = item
				}
			}
			return out
		}
	}
	return v
}

func conformObject(m map[string]any, fields []Field) map[string]any {
	out := make(map[string]any, len(m))
	for _, f := range fields {
		if v, ok := m[f.Name]; ok {
			out[f.Name] = conformValue(v, f)
		}
	}
	return out
}

func conformList(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(items))
	for i, item := range items {
		if s, ok := scalarString(item); ok {
			out[i] = s
		} else {
			out[i] = item
		}
	}
	return out
}
