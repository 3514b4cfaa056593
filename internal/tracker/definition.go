// Package tracker defines the tracker schema (fields, presence, filters),
// the record shape produced from it, and the codecs that move records in and
// out of prompt and wire text.
package tracker

import (
	"errors"
	"fmt"
)

// ErrInvalidDefinition is returned by Definition.Validate.
var ErrInvalidDefinition = errors.New("invalid tracker definition")

// FieldType is the value shape of a field.
type FieldType string

const (
	TypeString        FieldType = "string"
	TypeArray         FieldType = "array"
	TypeObject        FieldType = "object"
	TypeForEachObject FieldType = "for_each_object"
	TypeForEachArray  FieldType = "for_each_array"
	TypeArrayObject   FieldType = "array_object"
)

// Presence controls which filter a field belongs to.
type Presence string

const (
	PresenceDynamic   Presence = "dynamic"
	PresenceStatic    Presence = "static"
	PresenceEphemeral Presence = "ephemeral" // regenerated each message, never carried as history
)

// Field describes one tracker field.
type Field struct {
	Name     string    `mapstructure:"name" yaml:"name" json:"name"`
	Type     FieldType `mapstructure:"type" yaml:"type" json:"type"`
	Presence Presence  `mapstructure:"presence" yaml:"presence,omitempty" json:"presence,omitempty"`
	Prompt   string    `mapstructure:"prompt" yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Default  string    `mapstructure:"default" yaml:"default,omitempty" json:"default,omitempty"`
	Examples []string  `mapstructure:"examples" yaml:"examples,omitempty" json:"examples,omitempty"`
	Fields   []Field   `mapstructure:"fields" yaml:"fields,omitempty" json:"fields,omitempty"`
}

// nested reports whether the field's values are built from Fields.
func (f Field) nested() bool {
	switch f.Type {
	case TypeObject, TypeForEachObject, TypeArrayObject:
		return true
	}
	return false
}

func (f Field) presence() Presence {
	if f.Presence == "" {
		return PresenceDynamic
	}
	return f.Presence
}

// Definition is the ordered tracker schema.
type Definition struct {
	Fields []Field `mapstructure:"fields" yaml:"fields" json:"fields"`
}

// Filter selects the subset of top-level fields used in a prompt or record.
type Filter string

const (
	FilterDynamic Filter = "dynamic" // dynamic and ephemeral fields
	FilterStatic  Filter = "static"
	FilterAll     Filter = "all"
)

// ParseFilter converts a config string to a Filter.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case FilterDynamic, FilterStatic, FilterAll:
		return Filter(s), nil
	case "":
		return FilterDynamic, nil
	}
	return "", fmt.Errorf("unknown field filter: %q", s)
}

// Includes reports whether f participates under the filter.
func (fl Filter) Includes(f Field) bool {
	switch fl {
	case FilterAll:
		return true
	case FilterStatic:
		return f.presence() == PresenceStatic
	default:
		return f.presence() != PresenceStatic
	}
}

// Included returns the top-level fields selected by filter, in order.
// Ephemeral fields are dropped when historical is set.
func (d Definition) Included(filter Filter, historical bool) []Field {
	out := make([]Field, 0, len(d.Fields))
	for _, f := range d.Fields {
		if !filter.Includes(f) {
			continue
		}
		if historical && f.presence() == PresenceEphemeral {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Names returns the top-level field names in order.
func (d Definition) Names() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks for empty or duplicate names, unknown types and presences.
// Callers validate once when the definition is loaded.
func (d Definition) Validate() error {
	if len(d.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidDefinition)
	}
	return validateFields(d.Fields, "")
}

func validateFields(fields []Field, parent string) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		path := f.Name
		if parent != "" {
			path = parent + "." + f.Name
		}
		if f.Name == "" {
			return fmt.Errorf("%w: empty field name under %q", ErrInvalidDefinition, parent)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidDefinition, path)
		}
		seen[f.Name] = struct{}{}

		switch f.Type {
		case TypeString, TypeArray, TypeForEachArray:
			if len(f.Fields) > 0 {
				return fmt.Errorf("%w: field %q of type %s cannot have nested fields", ErrInvalidDefinition, path, f.Type)
			}
		case TypeObject, TypeForEachObject, TypeArrayObject:
			if len(f.Fields) == 0 {
				return fmt.Errorf("%w: field %q of type %s needs nested fields", ErrInvalidDefinition, path, f.Type)
			}
			if err := validateFields(f.Fields, path); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidDefinition, path, f.Type)
		}

		switch f.Presence {
		case "", PresenceDynamic, PresenceStatic, PresenceEphemeral:
		default:
			return fmt.Errorf("%w: field %q has unknown presence %q", ErrInvalidDefinition, path, f.Presence)
		}
	}
	return nil
}
