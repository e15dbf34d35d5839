// Package schema describes the canonical parcel attribute set: each field's
// type, the export column it is renamed from and the derivation that
// computes it. A Schema is immutable once loaded and is shared by the tabular
// loader, the join engine and the target store.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/types"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultSchemaYAML []byte

// Type is a canonical field type.
type Type string

// Field types.
const (
	TypeText      Type = "text"
	TypeNumber    Type = "number"
	TypeInteger   Type = "integer"
	TypeTimestamp Type = "timestamp"
)

// Derivation names the computation that fills a derived field.
type Derivation string

// Derivations.
const (
	DerivePIN           Derivation = "pin"
	DeriveBSAURL        Derivation = "bsaurl"
	DeriveAcresRecorded Derivation = "acresrecorded"
	DeriveAcres         Derivation = "acres"
	DeriveDataExport    Derivation = "dataexport"
	DeriveRevision      Derivation = "revision"
)

var validTypes = map[Type]bool{TypeText: true, TypeNumber: true, TypeInteger: true, TypeTimestamp: true}

var validDerivations = map[Derivation]bool{
	DerivePIN: true, DeriveBSAURL: true, DeriveAcresRecorded: true,
	DeriveAcres: true, DeriveDataExport: true, DeriveRevision: true,
}

// Field is one canonical attribute.
type Field struct {
	Name   string     `yaml:"name"`
	Type   Type       `yaml:"type"`
	Column string     `yaml:"column,omitempty"`
	Derive Derivation `yaml:"derive,omitempty"`
}

// Spatial names the attributes read from the spatial source.
type Spatial struct {
	Key      string `yaml:"key"`
	Revision string `yaml:"revision"`
	TaxCode  string `yaml:"tax_code"`
}

type document struct {
	Version int     `yaml:"version"`
	Spatial Spatial `yaml:"spatial"`
	Fields  []Field `yaml:"fields"`
}

// Schema is a validated, read-only schema description.
type Schema struct {
	version  int
	spatial  Spatial
	fields   []Field
	byName   map[string]int
	byColumn map[string]string
}

// Default returns the embedded schema.
func Default() *Schema {
	s, err := Parse(defaultSchemaYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded schema: %v", err))
	}
	return s
}

// Load reads a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a YAML schema description.
func Parse(data []byte) (*Schema, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	s := &Schema{
		version:  doc.Version,
		spatial:  doc.Spatial,
		byName:   make(map[string]int, len(doc.Fields)),
		byColumn: make(map[string]string),
	}
	if s.spatial.Key == "" {
		return nil, pserrors.NewConfigError("spatial.key", "must be set")
	}
	if s.spatial.Revision == "" {
		return nil, pserrors.NewConfigError("spatial.revision", "must be set")
	}

	for i, f := range doc.Fields {
		if f.Name == "" {
			return nil, pserrors.NewConfigError(fmt.Sprintf("fields[%d].name", i), "must be set")
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, pserrors.NewConfigError("fields", "duplicate field "+f.Name)
		}
		if !validTypes[f.Type] {
			return nil, pserrors.NewConfigError(f.Name, fmt.Sprintf("unknown type %q", f.Type))
		}
		if f.Derive != "" && !validDerivations[f.Derive] {
			return nil, pserrors.NewConfigError(f.Name, fmt.Sprintf("unknown derivation %q", f.Derive))
		}
		if f.Derive != "" && f.Column != "" {
			return nil, pserrors.NewConfigError(f.Name, "a field is either renamed or derived, not both")
		}
		if f.Column != "" {
			key := columnKey(f.Column)
			if other, dup := s.byColumn[key]; dup {
				return nil, pserrors.NewConfigError(f.Name, "column "+f.Column+" already mapped to "+other)
			}
			s.byColumn[key] = f.Name
		}
		s.byName[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	for _, required := range []string{types.FieldPIN, types.FieldPnum, types.FieldRevisionDate} {
		if _, ok := s.byName[required]; !ok {
			return nil, pserrors.NewConfigError("fields", "missing required field "+required)
		}
	}
	return s, nil
}

// Version returns the schema version.
func (s *Schema) Version() int { return s.version }

// Spatial returns the spatial source attribute names.
func (s *Schema) Spatial() Spatial { return s.spatial }

// WithSpatial returns a copy of s reading the spatial attributes named by sp.
// Blank names keep the current ones.
func (s *Schema) WithSpatial(sp Spatial) *Schema {
	out := *s
	if sp.Key != "" {
		out.spatial.Key = sp.Key
	}
	if sp.Revision != "" {
		out.spatial.Revision = sp.Revision
	}
	if sp.TaxCode != "" {
		out.spatial.TaxCode = sp.TaxCode
	}
	return &out
}

// Fields returns a copy of the field list in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field by canonical name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Tabular returns the fields filled from export columns.
func (s *Schema) Tabular() []Field {
	var out []Field
	for _, f := range s.fields {
		if f.Column != "" {
			out = append(out, f)
		}
	}
	return out
}

// Columns returns the attribute column names stored in the target, in
// declaration order. PIN and REVISIONDATE are excluded since the store keys
// on them separately.
func (s *Schema) Columns() []string {
	var out []string
	for _, f := range s.fields {
		if f.Name == types.FieldPIN || f.Name == types.FieldRevisionDate {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// Rename maps an export row to canonical field names. Unmapped export
// columns are dropped. Column names match case-insensitively.
func (s *Schema) Rename(raw types.Row) types.Row {
	out := make(types.Row, len(s.byColumn))
	for col, v := range raw {
		if name, ok := s.byColumn[columnKey(col)]; ok {
			out[name] = v
		}
	}
	return out
}

// Convert parses a raw text value into the field's type. Blank input is a
// null. Unparseable input returns a DataShapeError.
func (s *Schema) Convert(name, raw string) (any, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, fmt.Errorf("unknown field %s", name)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	switch f.Type {
	case TypeText:
		return raw, nil
	case TypeNumber:
		v, err := strconv.ParseFloat(cleanNumber(raw), 64)
		if err != nil {
			return nil, pserrors.NewDataShapeError("schema", "", name, raw, err)
		}
		return v, nil
	case TypeInteger:
		n := cleanNumber(raw)
		if v, err := strconv.ParseInt(n, 10, 64); err == nil {
			return v, nil
		}
		fv, err := strconv.ParseFloat(n, 64)
		if err != nil || fv != float64(int64(fv)) {
			return nil, pserrors.NewDataShapeError("schema", "", name, raw, err)
		}
		return int64(fv), nil
	case TypeTimestamp:
		r := types.ParseRevision(raw)
		if !r.Valid {
			return nil, pserrors.NewDataShapeError("schema", "", name, raw, nil)
		}
		return r.Time, nil
	}
	return nil, fmt.Errorf("field %s: unsupported type %s", name, f.Type)
}

func cleanNumber(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	return strings.TrimSpace(s)
}

func columnKey(col string) string {
	return strings.ToLower(strings.TrimSpace(col))
}
