// Package types holds the records that flow through one sync run.
package types

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Canonical attribute names shared by the schema, the join engine and the
// target store.
const (
	FieldPIN           = "PIN"
	FieldPnum          = "pnum"
	FieldRelatedPnum   = "relatedpnum"
	FieldLegalDesc     = "legaldesc"
	FieldAcresRecorded = "acresrecorded"
	FieldAcres         = "acres"
	FieldBSAURL        = "bsaurl"
	FieldDataExport    = "dataexport"
	FieldRevisionDate  = "REVISIONDATE"
	FieldGlobalID      = "GlobalID"
)

// UnknownCRS is the CRS identifier of a dataset whose reference system could
// not be determined.
const UnknownCRS = "unknown"

// ParcelFeature is one parcel read from the spatial source. Attributes hold
// the raw source values keyed by source field name.
type ParcelFeature struct {
	Geometry   orb.Geometry
	Attributes map[string]string
}

// FeatureSet is an ordered parcel snapshot sharing one CRS.
type FeatureSet struct {
	CRS      string
	Features []ParcelFeature
}

// Row is one tabular export record. Keys are export column names before
// renaming and canonical field names after.
type Row map[string]string

// Get returns the trimmed value of key and whether it is present and non-empty.
// Empty and missing are the same thing.
func (r Row) Get(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Attributes holds typed canonical values: string, float64, int64 or
// time.Time. A nil value is a null.
type Attributes map[string]any

// String returns the text value of key, or "" when null or not text.
func (a Attributes) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Record is a parcel after the join: geometry, canonical attributes and the
// two fields the reconciliation depends on.
type Record struct {
	PIN        string
	Revision   Revision
	Geometry   orb.Geometry
	Attributes Attributes
}

// TargetRecord is one row of the target store snapshot.
type TargetRecord struct {
	PIN      string
	Revision Revision
	GlobalID string
}

// DatasetMeta describes a joined dataset.
type DatasetMeta struct {
	CRS        string
	ExportedAt time.Time
}

// JoinedSet is the output of the join and enrichment stages.
type JoinedSet struct {
	DatasetMeta
	Records []Record
}
