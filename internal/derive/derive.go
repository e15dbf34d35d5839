// Package derive computes the parcel identifier and the derived attributes
// (bsaurl, acresrecorded, acres, dataexport). Everything here is pure: no
// I/O and no mutation of the inputs.
package derive

import (
	"time"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/reproject"
	"parcelsync/internal/types"
)

// Deriver holds the immutable inputs of one enrichment run.
type Deriver struct {
	rule       PINRule
	urls       URLBuilder
	exportedAt time.Time
}

// New creates a Deriver. exportedAt is stamped on every record of the run.
func New(rule PINRule, urls URLBuilder, exportedAt time.Time) *Deriver {
	return &Deriver{rule: rule, urls: urls, exportedAt: exportedAt.UTC()}
}

// ExportedAt returns the run's dataexport timestamp.
func (d *Deriver) ExportedAt() time.Time {
	return d.exportedAt
}

// RowPIN derives the PIN of a tabular row already renamed to canonical
// field names.
func (d *Deriver) RowPIN(row types.Row) (string, bool) {
	return d.rule.PIN(row[types.FieldPnum], row[types.FieldRelatedPnum])
}

// Enrich returns a copy of rec with the derived attributes filled in. unit
// is the linear unit of rec's geometry. A LookupError for the deep link is
// returned alongside the record, which keeps its other attributes.
func (d *Deriver) Enrich(rec types.Record, unit reproject.Unit) (types.Record, []error) {
	var issues []error

	attrs := make(types.Attributes, len(rec.Attributes)+5)
	for k, v := range rec.Attributes {
		attrs[k] = v
	}

	if rec.PIN != "" {
		attrs[types.FieldPIN] = rec.PIN
	} else {
		attrs[types.FieldPIN] = nil
	}

	attrs[types.FieldBSAURL] = nil
	if pnum := attrs.String(types.FieldPnum); pnum != "" {
		link, err := d.urls.Build(pnum)
		if err != nil {
			var le *pserrors.LookupError
			if pserrors.As(err, &le) {
				le.PIN = rec.PIN
			}
			issues = append(issues, err)
		} else {
			attrs[types.FieldBSAURL] = link
		}
	}

	attrs[types.FieldAcresRecorded] = nil
	if legal := attrs.String(types.FieldLegalDesc); legal != "" {
		if v, ok := AcresRecorded(legal); ok {
			attrs[types.FieldAcresRecorded] = v
		}
	}

	attrs[types.FieldAcres] = nil
	if rec.Geometry != nil {
		attrs[types.FieldAcres] = GeometryAcres(rec.Geometry, unit)
	}

	attrs[types.FieldDataExport] = d.exportedAt

	rec.Attributes = attrs
	return rec, issues
}
