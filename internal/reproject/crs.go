// Package reproject decides whether a joined dataset must be reprojected to
// the target CRS and applies the transform through orb.
package reproject

import (
	"regexp"
	"strings"

	"parcelsync/internal/types"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Unit is the linear unit of a CRS's coordinates.
type Unit string

// Units.
const (
	UnitUnknown Unit = ""
	UnitUSFoot  Unit = "us-ft"
	UnitFoot    Unit = "ft"
	UnitMetre   Unit = "m"
	UnitDegree  Unit = "degree"
)

// CRS is a supported coordinate reference system.
type CRS struct {
	Code      string
	Name      string
	Unit      Unit
	ToWGS84   orb.Projection
	FromWGS84 orb.Projection
	prjNames  []string
}

func identity(p orb.Point) orb.Point { return p }

func lccCRS(code, name string, unit Unit, l *LCC, prjNames ...string) CRS {
	return CRS{
		Code: code,
		Name: name,
		Unit: unit,
		ToWGS84: func(p orb.Point) orb.Point {
			lon, lat := l.Inverse(p[0], p[1])
			return orb.Point{lon, lat}
		},
		FromWGS84: func(p orb.Point) orb.Point {
			x, y := l.Forward(p[0], p[1])
			return orb.Point{x, y}
		},
		prjNames: prjNames,
	}
}

var registry = map[string]CRS{
	"EPSG:4326": {
		Code: "EPSG:4326", Name: "WGS 84", Unit: UnitDegree,
		ToWGS84: identity, FromWGS84: identity,
		prjNames: []string{"GCS_WGS_1984", "WGS 84"},
	},
	"EPSG:3857": {
		Code: "EPSG:3857", Name: "WGS 84 / Pseudo-Mercator", Unit: UnitMetre,
		ToWGS84: project.Mercator.ToWGS84, FromWGS84: project.WGS84.ToMercator,
		prjNames: []string{"WGS_1984_Web_Mercator_Auxiliary_Sphere", "WGS 84 / Pseudo-Mercator"},
	},
	"EPSG:2276": lccCRS("EPSG:2276", "NAD83 / Texas North Central (ftUS)", UnitUSFoot, texasNorthCentral,
		"NAD_1983_StatePlane_Texas_North_Central_FIPS_4202_Feet", "NAD83 / Texas North Central (ftUS)"),
	"EPSG:2253": lccCRS("EPSG:2253", "NAD83 / Michigan South (ft)", UnitFoot, michiganSouth,
		"NAD_1983_StatePlane_Michigan_South_FIPS_2113_Feet_Intl", "NAD83 / Michigan South (ft)"),
}

// Normalize canonicalises a CRS identifier: "epsg:2276" and "2276" become
// "EPSG:2276". Blank input and "unknown" become types.UnknownCRS.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, types.UnknownCRS) {
		return types.UnknownCRS
	}
	upper := strings.ToUpper(code)
	if strings.HasPrefix(upper, "EPSG:") {
		return upper
	}
	if isNumeric(upper) {
		return "EPSG:" + upper
	}
	return upper
}

// Lookup returns a registered CRS.
func Lookup(code string) (CRS, bool) {
	c, ok := registry[Normalize(code)]
	return c, ok
}

// UnitOf returns the linear unit of code, or UnitUnknown.
func UnitOf(code string) Unit {
	if c, ok := Lookup(code); ok {
		return c.Unit
	}
	return UnitUnknown
}

var (
	authorityRe = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]`)
	projcsRe    = regexp.MustCompile(`^\s*PROJCS\["([^"]+)"`)
	geogcsRe    = regexp.MustCompile(`^\s*GEOGCS\["([^"]+)"`)
)

// FromPRJ identifies the CRS described by a .prj WKT string. It returns
// types.UnknownCRS when the description is empty or not recognised.
func FromPRJ(wkt string) string {
	if strings.TrimSpace(wkt) == "" {
		return types.UnknownCRS
	}

	// The outermost AUTHORITY is the last one in the document.
	if m := authorityRe.FindAllStringSubmatch(wkt, -1); len(m) > 0 {
		code := "EPSG:" + m[len(m)-1][1]
		if _, ok := registry[code]; ok {
			return code
		}
	}

	name := ""
	if m := projcsRe.FindStringSubmatch(wkt); m != nil {
		name = m[1]
	} else if m := geogcsRe.FindStringSubmatch(wkt); m != nil {
		name = m[1]
	}
	if name == "" {
		return types.UnknownCRS
	}
	for code, c := range registry {
		for _, n := range c.prjNames {
			if strings.EqualFold(n, name) {
				return code
			}
		}
	}
	return types.UnknownCRS
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
