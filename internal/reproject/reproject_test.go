package reproject

import (
	"context"
	"testing"

	"parcelsync/internal/types"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLCCOrigin(t *testing.T) {
	x, y := texasNorthCentral.Forward(-98.5, 31.66666666666667)
	assert.InDelta(t, 1968500.0, x, 1e-6)
	assert.InDelta(t, 6561666.666666666, y, 1e-6)
}

func TestLCCForwardFortWorth(t *testing.T) {
	x, y := texasNorthCentral.Forward(-97.319828, 32.760089)
	assert.InDelta(t, 2331272.9, x, 1.0)
	assert.InDelta(t, 6961503.7, y, 1.0)
}

func TestLCCRoundTrip(t *testing.T) {
	zones := map[string]*LCC{"texas": texasNorthCentral, "michigan": michiganSouth}
	points := map[string][][2]float64{
		"texas":    {{-97.319828, 32.760089}, {-98.5, 31.7}, {-96.1, 33.9}},
		"michigan": {{-84.55, 42.73}, {-83.05, 42.33}, {-86.2, 41.9}},
	}

	for name, l := range zones {
		for _, p := range points[name] {
			x, y := l.Forward(p[0], p[1])
			lon, lat := l.Inverse(x, y)
			assert.InDelta(t, p[0], lon, 1e-9, "%s lon", name)
			assert.InDelta(t, p[1], lat, 1e-9, "%s lat", name)
		}
	}
}

func TestNormalizeAndLookup(t *testing.T) {
	assert.Equal(t, "EPSG:2276", Normalize("epsg:2276"))
	assert.Equal(t, "EPSG:2276", Normalize(" 2276 "))
	assert.Equal(t, types.UnknownCRS, Normalize(""))
	assert.Equal(t, types.UnknownCRS, Normalize("UNKNOWN"))

	c, ok := Lookup("3857")
	require.True(t, ok)
	assert.Equal(t, UnitMetre, c.Unit)

	assert.Equal(t, UnitUSFoot, UnitOf("EPSG:2276"))
	assert.Equal(t, UnitUnknown, UnitOf("EPSG:9999"))
}

func TestFromPRJ(t *testing.T) {
	tests := []struct {
		name string
		wkt  string
		want string
	}{
		{name: "empty", wkt: "", want: types.UnknownCRS},
		{
			name: "esri texas",
			wkt:  `PROJCS["NAD_1983_StatePlane_Texas_North_Central_FIPS_4202_Feet",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Lambert_Conformal_Conic"],UNIT["Foot_US",0.3048006096012192]]`,
			want: "EPSG:2276",
		},
		{
			name: "authority wins",
			wkt:  `PROJCS["custom",GEOGCS["NAD83",AUTHORITY["EPSG","4269"]],AUTHORITY["EPSG","2253"]]`,
			want: "EPSG:2253",
		},
		{name: "geographic", wkt: `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984"]]`, want: "EPSG:4326"},
		{name: "web mercator", wkt: `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984"]]`, want: "EPSG:3857"},
		{name: "unrecognised", wkt: `PROJCS["NAD_1983_UTM_Zone_14N"]`, want: types.UnknownCRS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromPRJ(tt.wkt))
		})
	}
}

func TestDecide(t *testing.T) {
	assert.Equal(t, SkipUnknown, Decide("unknown", "EPSG:2276"))
	assert.Equal(t, SkipUnknown, Decide("", "EPSG:2276"))
	assert.Equal(t, SkipSame, Decide("epsg:2276", "EPSG:2276"))
	assert.Equal(t, SkipSame, Decide("EPSG:2276", ""))
	assert.Equal(t, Reproject, Decide("EPSG:4326", "EPSG:2276"))
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, y}, {x, y + size}, {x + size, y + size}, {x + size, y}, {x, y}}}
}

func TestAdapterApply(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter("EPSG:2276")

	input := types.JoinedSet{
		DatasetMeta: types.DatasetMeta{CRS: "EPSG:4326"},
		Records: []types.Record{
			{PIN: "1", Geometry: square(-97.32, 32.76, 0.001)},
			{PIN: "2"},
		},
	}

	out, d, err := a.Apply(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, Reproject, d)
	assert.Equal(t, "EPSG:2276", out.CRS)
	require.Len(t, out.Records, 2)
	assert.Nil(t, out.Records[1].Geometry)

	first := out.Records[0].Geometry.(orb.Polygon)[0][0]
	assert.Greater(t, first[0], 2_000_000.0)
	assert.Greater(t, first[1], 6_000_000.0)

	orig := input.Records[0].Geometry.(orb.Polygon)[0][0]
	assert.Equal(t, orb.Point{-97.32, 32.76}, orig, "input geometry must not be modified")

	t.Run("unknown input skipped", func(t *testing.T) {
		set := types.JoinedSet{DatasetMeta: types.DatasetMeta{CRS: types.UnknownCRS}, Records: input.Records}
		out, d, err := a.Apply(ctx, set)
		require.NoError(t, err)
		assert.Equal(t, SkipUnknown, d)
		assert.Equal(t, set, out)
	})

	t.Run("same CRS skipped", func(t *testing.T) {
		set := types.JoinedSet{DatasetMeta: types.DatasetMeta{CRS: "2276"}}
		_, d, err := a.Apply(ctx, set)
		require.NoError(t, err)
		assert.Equal(t, SkipSame, d)
	})

	t.Run("unsupported source", func(t *testing.T) {
		set := types.JoinedSet{DatasetMeta: types.DatasetMeta{CRS: "EPSG:32614"}}
		_, _, err := a.Apply(ctx, set)
		assert.Error(t, err)
	})
}

func TestTransformWebMercatorRoundTrip(t *testing.T) {
	to, err := Transform("EPSG:2276", "EPSG:3857")
	require.NoError(t, err)
	back, err := Transform("EPSG:3857", "EPSG:2276")
	require.NoError(t, err)

	p := orb.Point{2331272.9, 6961503.7}
	got := back(to(p))
	assert.InDelta(t, p[0], got[0], 1e-3)
	assert.InDelta(t, p[1], got[1], 1e-3)
}
