package geometry

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tri(ax, ay, az, bx, by, bz, cx, cy, cz float64) Triangle {
	return Triangle{
		{Lon: ax, Lat: ay, Alt: az},
		{Lon: bx, Lat: by, Alt: bz},
		{Lon: cx, Lat: cy, Alt: cz},
	}
}

func TestValidate(t *testing.T) {
	valid := tri(139.0, 35.0, 0, 139.001, 35.0, 0, 139.0, 35.001, 5)

	tests := []struct {
		name  string
		mesh  *Mesh
		exact bool
		ok    bool
	}{
		{
			name: "valid surface",
			mesh: &Mesh{Kind: Surface, CRS: 4326, Triangles: []Triangle{valid}},
			ok:   true,
		},
		{
			name: "nil mesh",
			mesh: nil,
		},
		{
			name: "empty mesh",
			mesh: &Mesh{Kind: Surface, CRS: 4326},
		},
		{
			name: "zero-area triangle from coincident vertices",
			mesh: &Mesh{Kind: Surface, CRS: 4326, Triangles: []Triangle{
				tri(139, 35, 0, 139, 35, 0, 139.001, 35.001, 0),
			}},
		},
		{
			name: "longitude out of range",
			mesh: &Mesh{Kind: Surface, CRS: 4326, Triangles: []Triangle{
				tri(200, 35, 0, 139.001, 35, 0, 139, 35.001, 0),
			}},
		},
		{
			name: "latitude beyond mercator bound",
			mesh: &Mesh{Kind: Surface, CRS: 4326, Triangles: []Triangle{
				tri(139, 89, 0, 139.001, 89, 0, 139, 89.001, 0),
			}},
		},
		{
			name: "open solid rejected when exact",
			mesh: &Mesh{Kind: Solid, CRS: 4326, Triangles: []Triangle{
				valid,
			}},
			exact: true,
		},
		{
			name: "open solid accepted when bounding",
			mesh: &Mesh{Kind: Solid, CRS: 4326, Triangles: []Triangle{
				valid,
			}},
			ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mesh.Validate(tt.exact)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrInvalidGeometry))
			}
		})
	}
}

func TestValidateUnsupportedCRS(t *testing.T) {
	mesh := &Mesh{Kind: Surface, CRS: 3857, Triangles: []Triangle{
		tri(139, 35, 0, 139.001, 35, 0, 139, 35.001, 0),
	}}
	err := mesh.Validate(false)
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrInvalidGeometry), "CRS failure has its own kind")
}

func TestBounds(t *testing.T) {
	mesh := &Mesh{Kind: Surface, CRS: 4326, Triangles: []Triangle{
		tri(139, 35, -3, 140, 36, 7, 139.5, 35.5, 0),
	}}
	min, max, ok := mesh.Bounds()
	require.True(t, ok)
	assert.Equal(t, Point{Lon: 139, Lat: 35, Alt: -3}, min)
	assert.Equal(t, Point{Lon: 140, Lat: 36, Alt: 7}, max)

	_, _, ok = (&Mesh{}).Bounds()
	assert.False(t, ok)
}
