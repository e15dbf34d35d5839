package reproject

import (
	"context"
	"fmt"

	"parcelsync/internal/logging"
	"parcelsync/internal/types"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Decision is the outcome of comparing a dataset's CRS with the target.
type Decision int

// Decisions.
const (
	SkipUnknown Decision = iota
	SkipSame
	Reproject
)

func (d Decision) String() string {
	switch d {
	case SkipUnknown:
		return "skip-unknown"
	case SkipSame:
		return "skip-same"
	default:
		return "reproject"
	}
}

// Decide compares the input and target CRS identifiers.
func Decide(from, to string) Decision {
	from, to = Normalize(from), Normalize(to)
	switch {
	case from == types.UnknownCRS:
		return SkipUnknown
	case from == to, to == types.UnknownCRS:
		// No target configured counts as already there.
		return SkipSame
	default:
		return Reproject
	}
}

// Transform returns the point projection from one CRS to another through
// WGS84.
func Transform(from, to string) (orb.Projection, error) {
	src, ok := Lookup(from)
	if !ok {
		return nil, fmt.Errorf("unsupported source CRS %s", from)
	}
	dst, ok := Lookup(to)
	if !ok {
		return nil, fmt.Errorf("unsupported target CRS %s", to)
	}
	return func(p orb.Point) orb.Point {
		return dst.FromWGS84(src.ToWGS84(p))
	}, nil
}

// Adapter normalises joined datasets to a configured target CRS.
type Adapter struct {
	target string
}

// NewAdapter creates an Adapter for the target CRS identifier.
func NewAdapter(target string) *Adapter {
	return &Adapter{target: Normalize(target)}
}

// Target returns the normalised target CRS.
func (a *Adapter) Target() string {
	return a.target
}

// Apply returns set with every geometry in the target CRS. An unknown input
// CRS is logged and left alone since no safe transform exists. The input
// set is not modified.
func (a *Adapter) Apply(ctx context.Context, set types.JoinedSet) (types.JoinedSet, Decision, error) {
	log := logging.FromContext(ctx)

	d := Decide(set.CRS, a.target)
	switch d {
	case SkipUnknown:
		log.Warn().Str("target_crs", a.target).Msg("dataset CRS unknown, skipping reprojection")
		return set, d, nil
	case SkipSame:
		log.Debug().Str("crs", a.target).Msg("dataset already in target CRS")
		return set, d, nil
	}

	proj, err := Transform(set.CRS, a.target)
	if err != nil {
		return set, d, err
	}

	out := types.JoinedSet{DatasetMeta: set.DatasetMeta, Records: make([]types.Record, len(set.Records))}
	out.CRS = a.target
	for i, rec := range set.Records {
		if rec.Geometry != nil {
			rec.Geometry = project.Geometry(orb.Clone(rec.Geometry), proj)
		}
		out.Records[i] = rec
	}

	log.Info().
		Str("from", Normalize(set.CRS)).
		Str("to", a.target).
		Int("records", len(out.Records)).
		Msg("reprojected dataset")
	return out, d, nil
}
