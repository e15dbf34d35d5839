package derive

import (
	"regexp"
	"strconv"
	"strings"

	"parcelsync/internal/reproject"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Area conversion constants.
const (
	SquareFeetPerAcre   = 43560.0
	SquareMetresPerAcre = 4046.8564224
	usFootPerMetre      = 3937.0 / 1200.0
	footPerMetre        = 1 / 0.3048
)

// acreToken matches a number directly followed by the word A. The leading
// group keeps the number from starting mid-token; the trailing word boundary
// rejects APT, ALL, ALSO, AND and AS.
var acreToken = regexp.MustCompile(`(?:^|[^\w./])((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?|\.\d+)\s*A\b`)

// precedingExclusions disqualify a number when they are the token before it.
var precedingExclusions = map[string]bool{"BLDG": true, "NO": true, "NO.": true, "SEC": true}

// directions follow EXC in exception clauses ("EXC N 10 A").
var directions = map[string]bool{
	"N": true, "S": true, "E": true, "W": true,
	"NE": true, "NW": true, "SE": true, "SW": true,
	"NLY": true, "SLY": true, "ELY": true, "WLY": true,
	"NORTH": true, "SOUTH": true, "EAST": true, "WEST": true,
}

// AcresRecorded extracts the recorded acreage from a legal description: the
// last number immediately before the word A that is not a building, lot
// number, section or exception distance. ok is false when nothing matches.
func AcresRecorded(legal string) (acres float64, ok bool) {
	matches := acreToken.FindAllStringSubmatchIndex(legal, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		numStart, numEnd := m[2], m[3]
		if excludedBefore(legal[:numStart]) {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(legal[numStart:numEnd], ",", ""), 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}

func excludedBefore(prefix string) bool {
	tokens := strings.Fields(strings.ToUpper(prefix))
	if len(tokens) == 0 {
		return false
	}
	last := strings.TrimRight(tokens[len(tokens)-1], ",;")
	if precedingExclusions[last] {
		return true
	}
	if len(tokens) >= 2 && directions[strings.TrimSuffix(last, ".")] {
		return strings.TrimRight(tokens[len(tokens)-2], ".,") == "EXC"
	}
	return false
}

// AreaUnit selects the unit Area reports in.
type AreaUnit int

// Area units.
const (
	SquareFeet AreaUnit = iota
	SquareMetres
	Acres
)

// Area returns the area of g, whose coordinates are in the given linear
// unit, converted to out. Geographic coordinates use the geodesic area.
func Area(g orb.Geometry, unit reproject.Unit, out AreaUnit) float64 {
	var sqm float64
	switch unit {
	case reproject.UnitDegree:
		sqm = geo.Area(g)
	case reproject.UnitMetre:
		sqm = planar.Area(g)
	case reproject.UnitUSFoot:
		sqm = planar.Area(g) / (usFootPerMetre * usFootPerMetre)
	default:
		sqm = planar.Area(g) / (footPerMetre * footPerMetre)
	}

	switch out {
	case SquareMetres:
		return sqm
	case Acres:
		return sqm / SquareMetresPerAcre
	default:
		return sqm * footPerMetre * footPerMetre
	}
}

// PlanarAcres is the planar area of g divided by the square feet in an acre.
// Coordinates must be in feet.
func PlanarAcres(g orb.Geometry) float64 {
	return planar.Area(g) / SquareFeetPerAcre
}

// GeometryAcres picks the acreage calculation for the CRS unit: PlanarAcres
// for feet (and for unknown units), the unit-aware Area otherwise.
func GeometryAcres(g orb.Geometry, unit reproject.Unit) float64 {
	switch unit {
	case reproject.UnitMetre, reproject.UnitDegree:
		return Area(g, unit, Acres)
	default:
		return PlanarAcres(g)
	}
}
