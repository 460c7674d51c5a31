// Package registry defines the typed data model for registry snapshots:
// the declared field schema, raw records, and the canonical value
// comparison used by change detection.
package registry

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/regdelta/regdelta/pkg/errors"
)

//go:embed schema.yaml
var defaultSchemaYAML []byte

// FieldKind declares how a field's values are canonicalized and compared.
type FieldKind string

const (
	// FieldString is compared after Unicode NFC normalization and trimming.
	FieldString FieldKind = "string"
	// FieldNumber is compared by parsed numeric value.
	FieldNumber FieldKind = "number"
	// FieldDate is compared as an ISO-8601 calendar date.
	FieldDate FieldKind = "date"
)

// Field is one declared column of the registry dataset.
type Field struct {
	Name string    `yaml:"name"`
	Kind FieldKind `yaml:"kind"`

	// Key marks the unique identifier used to align records between
	// snapshots. Exactly one field per schema carries it.
	Key bool `yaml:"key,omitempty"`

	// Metadata marks fields stamped by ingestion (snapshot date,
	// timestamp). Metadata fields are never diffed.
	Metadata bool `yaml:"metadata,omitempty"`
}

// Schema is the declared, ordered field set of a registry dataset.
type Schema struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`

	key    string
	byName map[string]Field
}

// ParseSchema parses and validates a YAML schema definition.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.WrapParse("yaml", "schema", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchema reads a schema definition from a YAML file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read schema", path, err)
	}
	return ParseSchema(data)
}

// DefaultSchema returns the embedded company-registry schema.
func DefaultSchema() *Schema {
	s, err := ParseSchema(defaultSchemaYAML)
	if err != nil {
		// The embedded schema is validated by tests; failing here means
		// a broken build, not a runtime condition.
		panic(fmt.Sprintf("embedded schema invalid: %v", err))
	}
	return s
}

// validate checks field names, kinds, and the single-key constraint,
// and builds the internal lookup structures.
func (s *Schema) validate() error {
	if len(s.Fields) == 0 {
		return errors.NewValidationError("fields", nil, "schema declares no fields")
	}

	s.byName = make(map[string]Field, len(s.Fields))
	s.key = ""

	for _, f := range s.Fields {
		if f.Name == "" {
			return errors.NewValidationError("name", f.Name, "field name must not be empty")
		}
		if _, dup := s.byName[f.Name]; dup {
			return errors.NewValidationError("name", f.Name, "field declared twice")
		}
		switch f.Kind {
		case FieldString, FieldNumber, FieldDate:
		case "":
			return errors.NewValidationError("kind", f.Kind, fmt.Sprintf("field %s has no kind", f.Name))
		default:
			return errors.NewValidationError("kind", f.Kind, fmt.Sprintf("field %s has unknown kind", f.Name))
		}
		if f.Key {
			if s.key != "" {
				return errors.NewValidationError("key", f.Name, "schema declares more than one key field")
			}
			if f.Metadata {
				return errors.NewValidationError("key", f.Name, "key field cannot be metadata")
			}
			s.key = f.Name
		}
		s.byName[f.Name] = f
	}

	if s.key == "" {
		return errors.NewValidationError("key", nil, "schema declares no key field")
	}

	return nil
}

// KeyField returns the name of the unique key field.
func (s *Schema) KeyField() string {
	return s.key
}

// Field looks up a declared field by name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Columns returns all field names in declaration order.
func (s *Schema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}

// DiffFields returns the fields subject to change detection: every
// declared field except the key and metadata fields, in schema order.
func (s *Schema) DiffFields() []Field {
	fields := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Key || f.Metadata {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}
