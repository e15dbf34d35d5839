package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchema(t *testing.T) {
	s := Default()

	assert.Equal(t, 3, s.Version())
	assert.Equal(t, Spatial{Key: "PIN", Revision: "REVISIONDA", TaxCode: "CVTTAXCODE"}, s.Spatial())
	assert.Len(t, s.Fields(), 25)

	f, ok := s.Field("classcode")
	require.True(t, ok)
	assert.Equal(t, TypeInteger, f.Type)
	assert.Equal(t, "Class Code", f.Column)

	f, ok = s.Field("bsaurl")
	require.True(t, ok)
	assert.Equal(t, DeriveBSAURL, f.Derive)

	cols := s.Columns()
	assert.NotContains(t, cols, types.FieldPIN)
	assert.NotContains(t, cols, types.FieldRevisionDate)
	assert.Contains(t, cols, "acres")
	assert.Len(t, s.Tabular(), 19)
}

func TestWithSpatial(t *testing.T) {
	s := Default()
	o := s.WithSpatial(Spatial{Key: "PARCEL_ID", TaxCode: "TAXCODE"})

	assert.Equal(t, Spatial{Key: "PARCEL_ID", Revision: "REVISIONDA", TaxCode: "TAXCODE"}, o.Spatial())
	assert.Equal(t, "PIN", s.Spatial().Key)
	assert.Equal(t, s.Fields(), o.Fields())
}

func TestRename(t *testing.T) {
	s := Default()
	row := s.Rename(types.Row{
		"Parcel Number":          "70-15-17-600123",
		" related parcel number": "",
		"Owner Name 1":           "SMITH JOHN",
		"Unmapped Column":        "x",
	})

	assert.Equal(t, types.Row{
		"pnum":        "70-15-17-600123",
		"relatedpnum": "",
		"ownername1":  "SMITH JOHN",
	}, row)
}

func TestConvert(t *testing.T) {
	s := Default()

	tests := []struct {
		name    string
		field   string
		raw     string
		want    any
		wantErr bool
	}{
		{name: "text trimmed", field: "ownername1", raw: " SMITH ", want: "SMITH"},
		{name: "blank is null", field: "ownername1", raw: "  ", want: nil},
		{name: "number with commas", field: "propaddrnum", raw: "1,204", want: 1204.0},
		{name: "integer", field: "classcode", raw: "401", want: int64(401)},
		{name: "integral float as integer", field: "schooltaxcode", raw: "7010.0", want: int64(7010)},
		{name: "fractional integer rejected", field: "classcode", raw: "401.5", wantErr: true},
		{name: "bad number", field: "propaddrnum", raw: "12B", wantErr: true},
		{name: "timestamp", field: "dataexport", raw: "2024-01-15", want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{name: "bad timestamp", field: "REVISIONDATE", raw: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Convert(tt.field, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pserrors.IsDataShape(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := s.Convert("nope", "1")
	assert.Error(t, err)
}

func TestParseValidation(t *testing.T) {
	base := "version: 1\nspatial: {key: PIN, revision: REV}\n"
	required := "  - {name: PIN, type: text, derive: pin}\n  - {name: pnum, type: text, column: P}\n  - {name: REVISIONDATE, type: timestamp, derive: revision}\n"

	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing key", yaml: "version: 1\nspatial: {revision: REV}\nfields:\n" + required},
		{name: "unknown type", yaml: base + "fields:\n" + required + "  - {name: x, type: blob}\n"},
		{name: "unknown derivation", yaml: base + "fields:\n" + required + "  - {name: x, type: text, derive: magic}\n"},
		{name: "duplicate field", yaml: base + "fields:\n" + required + "  - {name: pnum, type: text}\n"},
		{name: "duplicate column", yaml: base + "fields:\n" + required + "  - {name: x, type: text, column: p}\n"},
		{name: "renamed and derived", yaml: base + "fields:\n" + required + "  - {name: x, type: text, column: X, derive: pin}\n"},
		{name: "missing pnum", yaml: base + "fields:\n  - {name: PIN, type: text}\n  - {name: REVISIONDATE, type: timestamp}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, pserrors.ErrInvalidConfig)
		})
	}

	s, err := Parse([]byte(base + "fields:\n" + required))
	require.NoError(t, err)
	assert.Equal(t, []string{"pnum"}, s.Columns())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, defaultSchemaYAML, 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Fields(), s.Fields())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
