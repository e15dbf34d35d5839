// Package join left-joins spatial parcels to tabular export rows on the
// derived PIN.
package join

import (
	"context"
	"strings"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
	"parcelsync/internal/schema"
	"parcelsync/internal/types"
)

// KeyFunc derives the join key of a renamed tabular row.
type KeyFunc func(row types.Row) (string, bool)

// Collision records tabular rows that share a PIN. Kept is the index of the
// row used for the join, Dropped the index of the row ignored.
type Collision struct {
	PIN     string
	Kept    int
	Dropped int
}

// Result is the output of one join.
type Result struct {
	Set        types.JoinedSet
	Matched    int
	Unmatched  int
	Collisions []Collision
	Issues     []error
}

// Engine joins a feature set to export rows.
type Engine struct {
	schema *schema.Schema
	key    KeyFunc
}

// New creates an Engine.
func New(s *schema.Schema, key KeyFunc) *Engine {
	return &Engine{schema: s, key: key}
}

// Join returns one record per feature, in feature order. Features with no
// matching row get null tabular attributes. Rows with no matching feature
// are dropped.
func (e *Engine) Join(ctx context.Context, set types.FeatureSet, rows []types.Row) Result {
	log := logging.FromContext(ctx)
	spatial := e.schema.Spatial()
	tabular := e.schema.Tabular()

	res := Result{Set: types.JoinedSet{DatasetMeta: types.DatasetMeta{CRS: set.CRS}}}

	byPIN := make(map[string]int, len(rows))
	for i, row := range rows {
		pin, ok := e.key(row)
		if !ok {
			res.Issues = append(res.Issues, pserrors.NewDataShapeError("join", "", types.FieldPnum, row[types.FieldPnum], nil))
			log.Warn().Str("stage", "join").Int("row", i).Str("pnum", row[types.FieldPnum]).Msg("export row has no PIN")
			continue
		}
		if kept, dup := byPIN[pin]; dup {
			res.Collisions = append(res.Collisions, Collision{PIN: pin, Kept: kept, Dropped: i})
			log.Warn().Str("stage", "join").Str("pin", pin).Int("kept", kept).Int("dropped", i).Msg("duplicate export rows for PIN")
			continue
		}
		byPIN[pin] = i
	}

	res.Set.Records = make([]types.Record, 0, len(set.Features))
	for _, feat := range set.Features {
		pin := strings.TrimSpace(feat.Attributes[spatial.Key])
		rawRev := strings.TrimSpace(feat.Attributes[spatial.Revision])
		rev := types.ParseRevision(rawRev)
		if rawRev != "" && !rev.Valid {
			res.Issues = append(res.Issues, pserrors.NewDataShapeError("join", pin, types.FieldRevisionDate, rawRev, nil))
		}

		rec := types.Record{
			PIN:        pin,
			Revision:   rev,
			Geometry:   feat.Geometry,
			Attributes: make(types.Attributes, len(tabular)+1),
		}
		if rev.Valid {
			rec.Attributes[types.FieldRevisionDate] = rev.Time
		} else {
			rec.Attributes[types.FieldRevisionDate] = nil
		}

		idx, matched := -1, false
		if pin != "" {
			idx, matched = byPIN[pin]
		}
		for _, f := range tabular {
			rec.Attributes[f.Name] = nil
			if !matched {
				continue
			}
			v, err := e.schema.Convert(f.Name, rows[idx][f.Name])
			if err != nil {
				var dse *pserrors.DataShapeError
				if pserrors.As(err, &dse) {
					dse.Stage, dse.PIN = "join", pin
				}
				res.Issues = append(res.Issues, err)
				continue
			}
			rec.Attributes[f.Name] = v
		}

		if matched {
			res.Matched++
		} else {
			res.Unmatched++
		}
		res.Set.Records = append(res.Set.Records, rec)
	}

	log.Info().Str("stage", "join").
		Int("features", len(set.Features)).
		Int("rows", len(rows)).
		Int("matched", res.Matched).
		Int("unmatched", res.Unmatched).
		Int("collisions", len(res.Collisions)).
		Msg("join complete")
	return res
}
