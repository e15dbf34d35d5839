package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
	"parcelsync/internal/reproject"
	"parcelsync/internal/types"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// DefaultGeometryColumn holds the parcel shape as WKT.
const DefaultGeometryColumn = "SHAPE"

// Database reads parcels from a SQL table whose geometry column holds WKT.
type Database struct {
	db             *sql.DB
	table          string
	geometryColumn string
	crs            string
}

// NewDatabase creates a database source. An empty geometryColumn means
// SHAPE.
func NewDatabase(db *sql.DB, table, geometryColumn, crs string) (*Database, error) {
	if !identifier.MatchString(table) {
		return nil, pserrors.NewConfigError("source.table", "invalid table name "+table)
	}
	if geometryColumn == "" {
		geometryColumn = DefaultGeometryColumn
	}
	if !identifier.MatchString(geometryColumn) {
		return nil, pserrors.NewConfigError("source.geometry_column", "invalid column name "+geometryColumn)
	}
	return &Database{db: db, table: table, geometryColumn: geometryColumn, crs: reproject.Normalize(crs)}, nil
}

// Fetch selects the rows matching f.
func (d *Database) Fetch(ctx context.Context, f Filter) (types.FeatureSet, error) {
	if err := f.Validate(); err != nil {
		return types.FeatureSet{}, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", d.table, f.Where())
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return types.FeatureSet{}, pserrors.NewTransportError("source", "query "+d.table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return types.FeatureSet{}, pserrors.NewTransportError("source", "columns "+d.table, err)
	}

	set := types.FeatureSet{CRS: d.crs}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return types.FeatureSet{}, pserrors.NewTransportError("source", "scan "+d.table, err)
		}

		feat := types.ParcelFeature{Attributes: make(map[string]string, len(cols))}
		for i, c := range cols {
			text := textValue(values[i])
			if strings.EqualFold(c, d.geometryColumn) {
				if text == "" {
					continue
				}
				g, err := wkt.Unmarshal(text)
				if err != nil {
					logging.FromContext(ctx).Warn().Err(err).Str("stage", "source").Msg("unreadable geometry")
					continue
				}
				feat.Geometry = polygonal(g)
				continue
			}
			feat.Attributes[c] = text
		}
		set.Features = append(set.Features, feat)
	}
	if err := rows.Err(); err != nil {
		return types.FeatureSet{}, pserrors.NewTransportError("source", "read "+d.table, err)
	}
	return set, nil
}

func polygonal(g orb.Geometry) orb.Geometry {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return g
	}
	return nil
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(t)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
