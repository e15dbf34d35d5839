// Package source reads parcel features from the spatial source, restricted
// to the configured tax codes.
package source

import (
	"context"
	"regexp"
	"strings"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/types"
)

// Source fetches a parcel snapshot matching a filter.
type Source interface {
	Fetch(ctx context.Context, f Filter) (types.FeatureSet, error)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Filter is an equality or IN predicate over one attribute. No values
// selects everything.
type Filter struct {
	Field  string
	Values []string
}

// NewFilter trims values and drops blanks and repeats.
func NewFilter(field string, values ...string) Filter {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return Filter{Field: strings.TrimSpace(field), Values: out}
}

// Validate checks the field is a plain identifier.
func (f Filter) Validate() error {
	if len(f.Values) == 0 {
		return nil
	}
	if !identifier.MatchString(f.Field) {
		return pserrors.NewConfigError("source.tax_code_field", "invalid field name "+f.Field)
	}
	return nil
}

// Where renders the filter as a SQL where clause:
//
//	1=1
//	CVTTAXCODE = '70'
//	CVTTAXCODE IN ('70', '68')
func (f Filter) Where() string {
	switch len(f.Values) {
	case 0:
		return "1=1"
	case 1:
		return f.Field + " = " + quote(f.Values[0])
	}
	quoted := make([]string, len(f.Values))
	for i, v := range f.Values {
		quoted[i] = quote(v)
	}
	return f.Field + " IN (" + strings.Join(quoted, ", ") + ")"
}

// String returns Where.
func (f Filter) String() string { return f.Where() }

// Match evaluates the filter against raw attributes. Field names match
// case-insensitively; values are compared trimmed.
func (f Filter) Match(attrs map[string]string) bool {
	if len(f.Values) == 0 {
		return true
	}
	v, ok := attrs[f.Field]
	if !ok {
		for k, val := range attrs {
			if strings.EqualFold(k, f.Field) {
				v, ok = val, true
				break
			}
		}
	}
	if !ok {
		return false
	}
	v = strings.TrimSpace(v)
	for _, want := range f.Values {
		if v == want {
			return true
		}
	}
	return false
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
