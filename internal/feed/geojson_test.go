package feed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undergis/spatialid/internal/geometry"
	"github.com/undergis/spatialid/internal/model"
)

const ndjsonInput = `{"type":"Feature","id":"tin-1","geometry":{"type":"MultiPolygon","coordinates":[[[[139.0,35.0,10],[139.001,35.0,10],[139.0,35.001,12],[139.0,35.0,10]]]]},"properties":{"name":"roof"}}

{"type":"Feature","id":"bldg-1","geometry":{"type":"Polygon","coordinates":[[[139.0,35.0,0],[139.001,35.0,0],[139.001,35.001,0],[139.0,35.001,0],[139.0,35.0,0]]]},"properties":{"depth":3.5,"owner":"city"}}
{"type":"Feature","id":"pipe-1","geometry":{"type":"LineString","coordinates":[[139.0,35.0,-4],[139.001,35.0,-4]]},"properties":{"radius":0.25}}
{"type":"Feature","id":"duct-1","geometry":{"type":"LineString","coordinates":[[139.0,35.0,-4],[139.001,35.0,-4]]},"properties":{"width":0.8,"height":0.6}}
{"type":"Feature","id":"bare-1","geometry":{"type":"LineString","coordinates":[[139.0,35.0,0],[139.001,35.0,0]]},"properties":{}}
not json at all
`

func readAll(t *testing.T, src Source) []model.FeatureRecord {
	t.Helper()
	var recs []model.FeatureRecord
	for {
		rec, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			return recs
		}
		recs = append(recs, rec)
	}
}

func TestGeoJSONSource(t *testing.T) {
	src := NewGeoJSON(strings.NewReader(ndjsonInput), 4326)
	recs := readAll(t, src)
	require.NoError(t, src.Close())
	require.Len(t, recs, 6)

	tin := recs[0]
	assert.Equal(t, "tin-1", tin.ID)
	assert.Equal(t, "roof", tin.Attrs["name"])
	require.NotNil(t, tin.Geometry)
	assert.Equal(t, geometry.Surface, tin.Geometry.Kind)
	assert.Len(t, tin.Geometry.Triangles, 1, "TIN triangles pass through")

	bldg := recs[1]
	require.NotNil(t, bldg.Geometry)
	assert.Equal(t, geometry.Solid, bldg.Geometry.Kind)
	assert.Equal(t, "3.5", bldg.Attrs["depth"])
	assert.Equal(t, "city", bldg.Attrs["owner"])
	min, _, ok := bldg.Geometry.Bounds()
	require.True(t, ok)
	assert.InDelta(t, -3.5, min.Alt, 1e-12)

	pipe := recs[2]
	require.NotNil(t, pipe.Geometry)
	assert.Equal(t, geometry.Solid, pipe.Geometry.Kind)

	duct := recs[3]
	require.NotNil(t, duct.Geometry)
	assert.Len(t, duct.Geometry.Triangles, 12, "single-segment duct")

	assert.Nil(t, recs[4].Geometry, "linestring without dimensions")
	assert.Equal(t, "bare-1", recs[4].ID)

	assert.Nil(t, recs[5].Geometry, "unparseable line")
	assert.Equal(t, "line-7", recs[5].ID, "synthetic id carries the line number")
}

func TestGeoJSONSurfacePolygonWithoutDepth(t *testing.T) {
	const line = `{"type":"Feature","id":"p1","geometry":{"type":"Polygon","coordinates":[[[139.0,35.0,2],[139.001,35.0,2],[139.001,35.001,2],[139.0,35.0,2]]]},"properties":{}}`
	src := NewGeoJSON(strings.NewReader(line), 4326)
	recs := readAll(t, src)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Geometry)
	assert.Equal(t, geometry.Surface, recs[0].Geometry.Kind)
}

func TestGeoJSONGeneratedID(t *testing.T) {
	const line = `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[139.0,35.0,0],[139.001,35.0,0]]},"properties":{"radius":0.1}}`
	src := NewGeoJSON(strings.NewReader(line), 4326)
	recs := readAll(t, src)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID)
}

func TestGeoJSONPerFeatureCRS(t *testing.T) {
	const line = `{"type":"Feature","id":"j1","geometry":{"type":"LineString","coordinates":[[139.0,35.0,0],[139.001,35.0,0]]},"properties":{"radius":0.1,"crs":6668}}`
	src := NewGeoJSON(strings.NewReader(line), 4326)
	recs := readAll(t, src)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Geometry)
	assert.Equal(t, 6668, recs[0].Geometry.CRS)
}

func TestDrain(t *testing.T) {
	src := NewGeoJSON(strings.NewReader(ndjsonInput), 4326)
	out := make(chan model.FeatureRecord)

	done := make(chan error, 1)
	go func() { done <- Drain(context.Background(), src, out) }()

	var ids []string
	for rec := range out {
		ids = append(ids, rec.ID)
	}
	require.NoError(t, <-done)
	assert.Equal(t, []string{"tin-1", "bldg-1", "pipe-1", "duct-1", "bare-1", "line-7"}, ids)
}

func TestDrainCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewGeoJSON(strings.NewReader(ndjsonInput), 4326)
	out := make(chan model.FeatureRecord) // no reader

	err := Drain(ctx, src, out)
	assert.ErrorIs(t, err, context.Canceled)
}
