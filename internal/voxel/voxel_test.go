package voxel

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boxTris returns the 12 boundary triangles of an axis-aligned box.
func boxTris(min, max Vec) []Triangle {
	p := func(x, y, f float64) Vec { return Vec{X: x, Y: y, F: f} }
	v000 := p(min.X, min.Y, min.F)
	v100 := p(max.X, min.Y, min.F)
	v010 := p(min.X, max.Y, min.F)
	v110 := p(max.X, max.Y, min.F)
	v001 := p(min.X, min.Y, max.F)
	v101 := p(max.X, min.Y, max.F)
	v011 := p(min.X, max.Y, max.F)
	v111 := p(max.X, max.Y, max.F)

	return []Triangle{
		{v000, v110, v100}, {v000, v010, v110}, // bottom
		{v001, v101, v111}, {v001, v111, v011}, // top
		{v000, v100, v101}, {v000, v101, v001}, // south
		{v010, v111, v110}, {v010, v011, v111}, // north
		{v000, v001, v011}, {v000, v011, v010}, // west
		{v100, v110, v111}, {v100, v111, v101}, // east
	}
}

func TestVoxelizeUnitCubeSolid(t *testing.T) {
	// A cube aligned exactly with cell boundaries occupies exactly the one
	// cell it fills; neighbours sharing only a face stay empty.
	tris := boxTris(Vec{0, 0, 0}, Vec{1, 1, 1})

	set, err := New(1<<20).Voxelize(tris, true)
	require.NoError(t, err)
	assert.Equal(t, []Cell{{X: 0, Y: 0, F: 0}}, set.Cells())
}

func TestVoxelizeAlignedBlockSolid(t *testing.T) {
	tris := boxTris(Vec{0, 0, 0}, Vec{2, 2, 2})

	set, err := New(1<<20).Voxelize(tris, true)
	require.NoError(t, err)
	require.Len(t, set, 8)
	for x := int64(0); x < 2; x++ {
		for y := int64(0); y < 2; y++ {
			for f := int64(0); f < 2; f++ {
				assert.Contains(t, set, Cell{X: x, Y: y, F: f})
			}
		}
	}
}

func TestVoxelizeSubCellSolid(t *testing.T) {
	tris := boxTris(Vec{0.25, 0.25, 0.25}, Vec{0.75, 0.75, 0.75})

	set, err := New(1<<20).Voxelize(tris, true)
	require.NoError(t, err)
	assert.Equal(t, []Cell{{X: 0, Y: 0, F: 0}}, set.Cells())
}

func TestVoxelizeStraddlingSolid(t *testing.T) {
	// Centered on a cell corner, the cube genuinely overlaps all 8
	// surrounding cells including negative vertical indexes.
	tris := boxTris(Vec{-0.5, -0.5, -0.5}, Vec{0.5, 0.5, 0.5})

	set, err := New(1<<20).Voxelize(tris, true)
	require.NoError(t, err)
	require.Len(t, set, 8)
	assert.Contains(t, set, Cell{X: -1, Y: -1, F: -1})
	assert.Contains(t, set, Cell{X: 0, Y: 0, F: 0})
}

func TestVoxelizeSurfaceBoundaryPlane(t *testing.T) {
	tests := []struct {
		name string
		tri  Triangle
		want []Cell
	}{
		{
			name: "horizontal triangle on a vertical cell plane goes to the cell below",
			tri:  Triangle{{0.2, 0.2, 2}, {0.8, 0.2, 2}, {0.2, 0.8, 2}},
			want: []Cell{{X: 0, Y: 0, F: 1}},
		},
		{
			name: "vertical triangle on an x plane goes to the lower x cell",
			tri:  Triangle{{1, 0.2, 0.2}, {1, 0.8, 0.2}, {1, 0.2, 0.8}},
			want: []Cell{{X: 0, Y: 0, F: 0}},
		},
		{
			name: "triangle below ground",
			tri:  Triangle{{0.2, 0.2, -0.5}, {0.8, 0.2, -0.5}, {0.2, 0.8, -0.5}},
			want: []Cell{{X: 0, Y: 0, F: -1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := New(1<<20).Voxelize([]Triangle{tt.tri}, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.Cells())
		})
	}
}

func TestVoxelizeSurfaceSlanted(t *testing.T) {
	// Right triangle in a horizontal plane spanning a 3x3 block of cells;
	// the far corner cell lies strictly beyond the hypotenuse.
	tri := Triangle{{0.5, 0.5, 0.5}, {2.5, 0.5, 0.5}, {0.5, 2.5, 0.5}}

	set, err := New(1<<20).Voxelize([]Triangle{tri}, false)
	require.NoError(t, err)

	assert.NotContains(t, set, Cell{X: 2, Y: 2, F: 0})
	assert.Contains(t, set, Cell{X: 0, Y: 0, F: 0})
	assert.Contains(t, set, Cell{X: 2, Y: 0, F: 0})
	assert.Contains(t, set, Cell{X: 0, Y: 2, F: 0})
	assert.Len(t, set, 8)
}

func TestVoxelizeOrderIndependent(t *testing.T) {
	tris := boxTris(Vec{0.1, 0.2, -0.7}, Vec{2.6, 1.9, 1.3})

	forward, err := New(1<<20).Voxelize(tris, true)
	require.NoError(t, err)

	reversed := make([]Triangle, len(tris))
	for i, tr := range tris {
		reversed[len(tris)-1-i] = tr
	}
	backward, err := New(1<<20).Voxelize(reversed, true)
	require.NoError(t, err)

	assert.Equal(t, forward.Cells(), backward.Cells())
}

func TestVoxelizeOverlappingSolidShells(t *testing.T) {
	// Two closed cuboids overlapping between f=2 and f=3, the shape a sweep
	// produces at a bend. The overlap must stay occupied; pairing the four
	// sorted crossings two by two would leave a hole there.
	tris := append(boxTris(Vec{0, 0, 0}, Vec{1, 1, 3}), boxTris(Vec{0, 0, 2}, Vec{1, 1, 5})...)

	set, err := New(1<<20).Voxelize(tris, true)
	require.NoError(t, err)
	require.Len(t, set, 5)
	for f := int64(0); f < 5; f++ {
		assert.Contains(t, set, Cell{X: 0, Y: 0, F: f})
	}
}

func TestVoxelizeSolidIncludesBoundaryCells(t *testing.T) {
	// An off-grid solid must cover its boundary cells even where the
	// column sample ray misses the slab, via the strict surface pass.
	tris := boxTris(Vec{0.1, 0.1, 0.1}, Vec{1.9, 1.9, 0.4})

	set, err := New(1<<20).Voxelize(tris, true)
	require.NoError(t, err)
	require.Len(t, set, 4)
	assert.Contains(t, set, Cell{X: 1, Y: 1, F: 0})
}

func TestVoxelizeResolutionTooFine(t *testing.T) {
	tris := boxTris(Vec{0, 0, 0}, Vec{100, 100, 100})

	_, err := New(1000).Voxelize(tris, true)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrResolutionTooFine))
}

func TestVoxelizeEmpty(t *testing.T) {
	set, err := New(10).Voxelize(nil, false)
	require.NoError(t, err)
	assert.Empty(t, set)
}
