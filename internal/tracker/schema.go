package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema compiles a JSON Schema describing records under the given filter
// and format. Fields are optional; the model may omit any of them.
func Schema(def Definition, filter Filter, format Format) (*jsonschema.Schema, error) {
	fields := def.Included(filter, false)

	var root map[string]any
	if format == FormatFlat {
		props := make(map[string]any, len(fields))
		for _, f := range fields {
			props[f.Name] = map[string]any{"type": "string"}
		}
		root = map[string]any{"type": "object", "properties": props}
	} else {
		root = objectSchema(fields)
	}

	raw, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize tracker schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tracker.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load tracker schema: %w", err)
	}
	schema, err := compiler.Compile("tracker.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile tracker schema: %w", err)
	}
	return schema, nil
}

// Validate checks rec against a schema built by Schema.
func Validate(schema *jsonschema.Schema, rec Record) error {
	if err := schema.Validate(map[string]any(rec)); err != nil {
		return fmt.Errorf("tracker does not match definition: %w", err)
	}
	return nil
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
	}
	return map[string]any{"type": "object", "properties": props}
}

func fieldSchema(f Field) map[string]any {
	stringList := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	switch f.Type {
	case TypeArray:
		return stringList
	case TypeObject:
		return objectSchema(f.Fields)
	case TypeForEachObject:
		return map[string]any{"type": "object", "additionalProperties": objectSchema(f.Fields)}
	case TypeForEachArray:
		return map[string]any{"type": "object", "additionalProperties": stringList}
	case TypeArrayObject:
		return map[string]any{"type": "array", "items": objectSchema(f.Fields)}
	default:
		return map[string]any{"type": "string"}
	}
}
