package reproject

// Lambert Conformal Conic (2SP) on the GRS80 ellipsoid, used by the NAD83
// state plane zones. Forward maps degrees to projected units, Inverse back.

import "math"

const (
	semiMajorM = 6378137.0        // GRS80 semi-major axis (metres)
	e2         = 0.00669438002290 // GRS80 eccentricity squared

	usFtPerMetre   = 3937.0 / 1200.0 // US survey foot
	intlFtPerMetre = 1 / 0.3048
)

// LCCParams are the defining constants of a zone. False easting and
// northing are in the zone's projected unit.
type LCCParams struct {
	Lat0, Lat1, Lat2, Lon0      float64 // degrees
	FalseEasting, FalseNorthing float64
	UnitsPerMetre               float64
}

// LCC is a prepared projection for one zone.
type LCC struct {
	p    LCCParams
	e    float64
	n    float64
	aF   float64 // semi-major axis in zone units times F
	rho0 float64
	lam0 float64
}

// NewLCC precomputes the zone constants.
func NewLCC(p LCCParams) *LCC {
	phi1 := p.Lat1 * math.Pi / 180
	phi2 := p.Lat2 * math.Pi / 180
	phi0 := p.Lat0 * math.Pi / 180

	l := &LCC{p: p, e: math.Sqrt(e2), lam0: p.Lon0 * math.Pi / 180}

	m1, m2 := l.m(phi1), l.m(phi2)
	t1, t2, t0 := l.t(phi1), l.t(phi2), l.t(phi0)

	if p.Lat1 == p.Lat2 {
		l.n = math.Sin(phi1)
	} else {
		l.n = math.Log(m1/m2) / math.Log(t1/t2)
	}

	a := semiMajorM * p.UnitsPerMetre
	l.aF = a * m1 / (l.n * math.Pow(t1, l.n))
	l.rho0 = l.aF * math.Pow(t0, l.n)
	return l
}

func (l *LCC) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-e2*s*s)
}

func (l *LCC) t(phi float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-l.e*s)/(1+l.e*s), l.e/2)
}

// Forward converts longitude/latitude in degrees to easting/northing.
func (l *LCC) Forward(lonDeg, latDeg float64) (easting, northing float64) {
	phi := latDeg * math.Pi / 180
	lambda := lonDeg * math.Pi / 180

	rho := l.aF * math.Pow(l.t(phi), l.n)
	theta := l.n * (lambda - l.lam0)

	easting = rho*math.Sin(theta) + l.p.FalseEasting
	northing = l.rho0 - rho*math.Cos(theta) + l.p.FalseNorthing
	return
}

// Inverse converts easting/northing back to longitude/latitude in degrees.
func (l *LCC) Inverse(easting, northing float64) (lonDeg, latDeg float64) {
	x := easting - l.p.FalseEasting
	y := l.rho0 - (northing - l.p.FalseNorthing)

	rho := math.Hypot(x, y)
	theta := math.Atan2(x, y)
	if l.n < 0 {
		rho = -rho
		theta = math.Atan2(-x, -y)
	}

	t := math.Pow(rho/l.aF, 1/l.n)
	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		s := math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-l.e*s)/(1+l.e*s), l.e/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}

	lonDeg = (theta/l.n + l.lam0) * 180 / math.Pi
	latDeg = phi * 180 / math.Pi
	return
}

// Texas North Central, US survey feet (EPSG:2276).
var texasNorthCentral = NewLCC(LCCParams{
	Lat0:          31.66666666666667,
	Lat1:          32.13333333333333,
	Lat2:          33.96666666666667,
	Lon0:          -98.5,
	FalseEasting:  1968500.0,
	FalseNorthing: 6561666.666666666,
	UnitsPerMetre: usFtPerMetre,
})

// Michigan South, international feet (EPSG:2253).
var michiganSouth = NewLCC(LCCParams{
	Lat0:          41.5,
	Lat1:          42.1,
	Lat2:          43.66666666666666,
	Lon0:          -84.36666666666666,
	FalseEasting:  13123359.58005249,
	FalseNorthing: 0,
	UnitsPerMetre: intlFtPerMetre,
})
