package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
	"parcelsync/internal/reproject"
	"parcelsync/internal/types"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// Shapefile reads parcels from an ESRI shapefile. The .prj sidecar, when
// present, decides the CRS; CRSOverride wins over it. The .dbf sidecar must
// exist and carry every Required attribute.
type Shapefile struct {
	Path        string
	CRSOverride string
	Required    []string
}

// NewShapefile creates a shapefile source.
func NewShapefile(path string) *Shapefile {
	return &Shapefile{Path: path}
}

// Fetch reads every polygon record matching f.
func (s *Shapefile) Fetch(ctx context.Context, f Filter) (types.FeatureSet, error) {
	log := logging.FromContext(ctx)

	dbf := s.sidecar(".dbf")
	if _, err := os.Stat(dbf); err != nil {
		return types.FeatureSet{}, pserrors.NewTransportError("source", "open "+dbf, err)
	}

	r, err := shp.Open(s.Path)
	if err != nil {
		return types.FeatureSet{}, pserrors.NewTransportError("source", "open "+s.Path, err)
	}
	defer r.Close()

	fields := r.Fields()
	required := s.Required
	if len(f.Values) > 0 {
		required = append(required[:len(required):len(required)], f.Field)
	}
	if err := checkFields(fields, required); err != nil {
		return types.FeatureSet{}, pserrors.NewTransportError("source", "read "+dbf, err)
	}

	set := types.FeatureSet{CRS: s.crs()}

	skipped := 0
	for n := 0; r.Next(); n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return types.FeatureSet{}, err
			}
		}

		idx, shape := r.Shape()
		attrs := make(map[string]string, len(fields))
		for i, fld := range fields {
			attrs[fld.String()] = strings.TrimSpace(strings.Trim(r.ReadAttribute(idx, i), "\x00"))
		}
		if !f.Match(attrs) {
			continue
		}

		var g orb.Geometry
		switch p := shape.(type) {
		case *shp.Polygon:
			g = polygonGeometry(p.Parts, p.Points)
		case *shp.PolygonZ:
			g = polygonGeometry(p.Parts, p.Points)
		case *shp.PolygonM:
			g = polygonGeometry(p.Parts, p.Points)
		case *shp.Null, nil:
		default:
			// Skip non-polygon geometries (shouldn't exist in a parcel layer)
			skipped++
			continue
		}
		set.Features = append(set.Features, types.ParcelFeature{Geometry: g, Attributes: attrs})
	}
	if err := r.Err(); err != nil {
		return types.FeatureSet{}, pserrors.NewTransportError("source", "read "+s.Path, err)
	}

	ev := log.Debug()
	if skipped > 0 {
		ev = log.Warn().Int("skipped", skipped)
	}
	ev.Str("path", s.Path).Str("crs", set.CRS).Int("features", len(set.Features)).Str("filter", f.Where()).Msg("shapefile read")
	return set, nil
}

func (s *Shapefile) sidecar(ext string) string {
	return strings.TrimSuffix(s.Path, filepath.Ext(s.Path)) + ext
}

// checkFields fails when the table has no columns or lacks a required one.
func checkFields(fields []shp.Field, required []string) error {
	if len(fields) == 0 {
		return errors.New("no attribute fields")
	}
	for _, name := range required {
		if name == "" {
			continue
		}
		found := false
		for _, fld := range fields {
			if strings.EqualFold(fld.String(), name) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("missing field %s", name)
		}
	}
	return nil
}

func (s *Shapefile) crs() string {
	if s.CRSOverride != "" {
		return reproject.Normalize(s.CRSOverride)
	}
	prj := s.sidecar(".prj")
	data, err := os.ReadFile(prj)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Default().Warn().Err(err).Str("path", prj).Msg("read projection")
		}
		return types.UnknownCRS
	}
	return reproject.FromPRJ(string(data))
}

// polygonGeometry splits the flat points slice into rings. Clockwise rings
// start a new polygon and counter-clockwise rings are holes of the polygon
// before them. A single outer ring gives an orb.Polygon, several give an
// orb.MultiPolygon.
func polygonGeometry(parts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start >= end || end > len(points) {
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}

		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}
