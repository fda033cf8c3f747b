// Package extract provides schema-driven structured extraction from web
// pages via an OpenAI-compatible model.
package extract

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags a scalar field type.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "boolean"
	KindURL    Kind = "url"
)

// Schema describes the shape the model must return. Exactly one of the
// three variants is set: a scalar kind, a list element schema, or an
// object of named fields.
type Schema struct {
	scalar Kind
	elem   *Schema
	fields map[string]Schema
}

// Scalar returns a schema for a single tagged value.
func Scalar(kind Kind) Schema {
	return Schema{scalar: kind}
}

// List returns a schema for a homogeneous list of elem.
func List(elem Schema) Schema {
	return Schema{elem: &elem}
}

// Object returns a schema for a map of field name to field schema.
func Object(fields map[string]Schema) Schema {
	return Schema{fields: fields}
}

// MarshalJSON renders the schema in the loose notation the extraction
// prompt embeds: scalars as tag strings, lists as single-element arrays,
// objects as JSON objects with sorted keys.
func (s Schema) MarshalJSON() ([]byte, error) {
	switch {
	case s.fields != nil:
		names := make([]string, 0, len(s.fields))
		for name := range s.fields {
			names = append(names, name)
		}
		sort.Strings(names)
		buf := []byte{'{'}
		for i, name := range names {
			if i > 0 {
				buf = append(buf, ',')
			}
			key, err := json.Marshal(name)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(s.fields[name])
			if err != nil {
				return nil, err
			}
			buf = append(buf, key...)
			buf = append(buf, ':')
			buf = append(buf, val...)
		}
		return append(buf, '}'), nil
	case s.elem != nil:
		elem, err := json.Marshal(*s.elem)
		if err != nil {
			return nil, err
		}
		buf := append([]byte{'['}, elem...)
		return append(buf, ']'), nil
	case s.scalar != "":
		return json.Marshal(string(s.scalar))
	default:
		return nil, fmt.Errorf("empty schema")
	}
}

// TollFacilitySchema is the default extraction target for a toll
// facility page.
func TollFacilitySchema() Schema {
	return Object(map[string]Schema{
		"name":           Scalar(KindString),
		"Operation_Hour": Scalar(KindString),
		"Is_Reversible":  Scalar(KindBool),
		"Toll_Rate":      Scalar(KindURL),
		"Vehicle_Type":   Scalar(KindString),
	})
}
