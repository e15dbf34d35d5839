package join

import (
	"context"
	"testing"
	"time"

	"parcelsync/internal/derive"
	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/schema"
	"parcelsync/internal/types"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feature(pin, rev string) types.ParcelFeature {
	return types.ParcelFeature{
		Geometry:   orb.Polygon{orb.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}},
		Attributes: map[string]string{"PIN": pin, "REVISIONDA": rev, "CVTTAXCODE": "70"},
	}
}

func newEngine() *Engine {
	rule := derive.DefaultPINRule()
	return New(schema.Default(), func(row types.Row) (string, bool) {
		return rule.PIN(row[types.FieldPnum], row[types.FieldRelatedPnum])
	})
}

func TestJoinLeftComplete(t *testing.T) {
	set := types.FeatureSet{CRS: "EPSG:2276", Features: []types.ParcelFeature{
		feature("15-17-600123", "2024-01-15"),
		feature("99-99-999", "2024-01-15"),
		feature("00-00-999", "2024-02-01"),
		feature("", ""),
	}}
	rows := []types.Row{
		{"pnum": "70-15-17-600123", "ownername1": "SMITH JOHN", "classcode": "401"},
		{"pnum": "68-01-02-003", "relatedpnum": "99-00-00-999", "ownername1": "DOE JANE"},
		{"pnum": "70-88-88-888", "ownername1": "NO GEOMETRY"},
	}

	res := newEngine().Join(context.Background(), set, rows)

	require.Len(t, res.Set.Records, len(set.Features))
	assert.Equal(t, "EPSG:2276", res.Set.CRS)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 2, res.Unmatched)
	assert.Empty(t, res.Collisions)
	assert.Empty(t, res.Issues)

	first := res.Set.Records[0]
	assert.Equal(t, "15-17-600123", first.PIN)
	assert.Equal(t, "SMITH JOHN", first.Attributes["ownername1"])
	assert.Equal(t, int64(401), first.Attributes["classcode"])
	assert.True(t, first.Revision.Valid)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), first.Attributes[types.FieldRevisionDate])
	assert.NotNil(t, first.Geometry)

	unmatched := res.Set.Records[1]
	assert.Equal(t, "99-99-999", unmatched.PIN)
	assert.Contains(t, unmatched.Attributes, "ownername1")
	assert.Nil(t, unmatched.Attributes["ownername1"])

	assert.Equal(t, "DOE JANE", res.Set.Records[2].Attributes["ownername1"])
	assert.Equal(t, "", res.Set.Records[3].PIN)

	for _, r := range res.Set.Records {
		assert.NotEqual(t, "NO GEOMETRY", r.Attributes["ownername1"])
	}
}

func TestJoinCollisionFirstWins(t *testing.T) {
	set := types.FeatureSet{Features: []types.ParcelFeature{feature("15-17-600123", "2024-01-15")}}
	rows := []types.Row{
		{"pnum": "70-15-17-600123", "ownername1": "FIRST"},
		{"pnum": "10-15-17-600123", "ownername1": "SECOND"},
	}

	res := newEngine().Join(context.Background(), set, rows)

	require.Len(t, res.Set.Records, 1, "a parcel is never duplicated")
	assert.Equal(t, "FIRST", res.Set.Records[0].Attributes["ownername1"])
	assert.Equal(t, []Collision{{PIN: "15-17-600123", Kept: 0, Dropped: 1}}, res.Collisions)
}

func TestJoinIssues(t *testing.T) {
	set := types.FeatureSet{Features: []types.ParcelFeature{feature("15-17-600123", "someday")}}
	rows := []types.Row{
		{"pnum": "70-15-17-600123", "classcode": "4O1"},
		{"pnum": "NOHYPHEN"},
	}

	res := newEngine().Join(context.Background(), set, rows)
	require.Len(t, res.Set.Records, 1)

	rec := res.Set.Records[0]
	assert.False(t, rec.Revision.Valid)
	assert.Nil(t, rec.Attributes[types.FieldRevisionDate])
	assert.Nil(t, rec.Attributes["classcode"])

	require.Len(t, res.Issues, 3)
	for _, err := range res.Issues {
		assert.True(t, pserrors.IsDataShape(err), err.Error())
	}
	var dse *pserrors.DataShapeError
	require.ErrorAs(t, res.Issues[2], &dse)
	assert.Equal(t, "join", dse.Stage)
	assert.Equal(t, "15-17-600123", dse.PIN)
	assert.Equal(t, "classcode", dse.Field)
}

func TestJoinEmpty(t *testing.T) {
	res := newEngine().Join(context.Background(), types.FeatureSet{CRS: types.UnknownCRS}, nil)
	assert.Empty(t, res.Set.Records)
	assert.Equal(t, types.UnknownCRS, res.Set.CRS)
}
