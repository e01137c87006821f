package projection

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCRS(t *testing.T) {
	tests := []struct {
		name string
		epsg int
		ok   bool
	}{
		{name: "WGS 84", epsg: 4326, ok: true},
		{name: "JGD2011", epsg: 6668, ok: true},
		{name: "JGD2000", epsg: 4612, ok: true},
		{name: "WGS 84 3D", epsg: 4979, ok: true},
		{name: "JGD2011 with vertical", epsg: 6697, ok: true},
		{name: "Web Mercator is projected, not geodetic", epsg: 3857, ok: false},
		{name: "Japan plane rectangular IX", epsg: 6677, ok: false},
		{name: "zero", epsg: 0, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCRS(tt.epsg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrUnsupportedCRS))
			}
		})
	}
}

func TestProjectKnownPoints(t *testing.T) {
	g := NewGrid(1)

	tests := []struct {
		name string
		p    Point
		want Unit
	}{
		{name: "null island", p: Point{Lon: 0, Lat: 0, Alt: 0}, want: Unit{X: 1, Y: 1, F: 0}},
		{name: "west edge", p: Point{Lon: -180, Lat: 0, Alt: 0}, want: Unit{X: 0, Y: 1, F: 0}},
		{name: "mercator top", p: Point{Lon: 0, Lat: MaxLatitude, Alt: 0}, want: Unit{X: 1, Y: 0, F: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Project(tt.p)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.InDelta(t, tt.want.F, got.F, 1e-9)
		})
	}
}

func TestVerticalAnchor(t *testing.T) {
	// Cells are 1 m tall at zoom 25, so 32 m at zoom 20 and 0.5 m at zoom 26.
	assert.InDelta(t, 1.0, NewGrid(25).CellHeight(), 1e-12)
	assert.InDelta(t, 32.0, NewGrid(20).CellHeight(), 1e-12)
	assert.InDelta(t, 0.5, NewGrid(26).CellHeight(), 1e-12)

	u, err := NewGrid(25).Project(Point{Lon: 139.7, Lat: 35.6, Alt: -12.3})
	require.NoError(t, err)
	assert.InDelta(t, -12.3, u.F, 1e-9)
}

func TestProjectOutOfRange(t *testing.T) {
	g := NewGrid(10)

	tests := []struct {
		name string
		p    Point
	}{
		{name: "longitude past antimeridian", p: Point{Lon: 180.0001, Lat: 0}},
		{name: "latitude beyond mercator bound", p: Point{Lon: 0, Lat: 85.06}},
		{name: "south pole", p: Point{Lon: 0, Lat: -90}},
		{name: "NaN altitude", p: Point{Lon: 0, Lat: 0, Alt: math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Project(tt.p)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrOutOfRange))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	points := []Point{
		{Lon: 139.74135, Lat: 35.65809, Alt: 3.2},
		{Lon: -0.1276, Lat: 51.5072, Alt: -40},
		{Lon: 179.999999, Lat: -84.9, Alt: 1234.5},
		{Lon: -179.999999, Lat: 84.9, Alt: -2.25},
		{Lon: 0, Lat: 0, Alt: 0},
	}

	for _, zoom := range []uint8{0, 10, 15, 20, 25, 30} {
		g := NewGrid(zoom)
		// Above zoom 20 a tile unit is so small that a few ulps of the
		// trigonometric chain exceed 1e-9; the double-precision floor is
		// still far below a thousandth of a cell.
		delta := 1e-9
		if zoom > 20 {
			delta = 1e-6
		}
		for _, p := range points {
			u, err := g.Project(p)
			require.NoError(t, err)

			back, err := g.Project(g.Unproject(u))
			require.NoError(t, err)

			assert.InDelta(t, u.X, back.X, delta, "x at zoom %d", zoom)
			assert.InDelta(t, u.Y, back.Y, delta, "y at zoom %d", zoom)
			assert.InDelta(t, u.F, back.F, delta, "f at zoom %d", zoom)
		}
	}
}
