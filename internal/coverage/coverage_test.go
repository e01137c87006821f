package coverage

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/sid"
	"github.com/undergis/spatialid/internal/voxel"
)

func cellOf(id sid.ID) voxel.Cell {
	return voxel.Cell{X: int64(id.X), Y: int64(id.Y), F: id.F}
}

// descend materializes the full occupied-by-zoom stack for the subtree under
// root, down to zoom.
func descend(t *testing.T, root sid.ID, zoom uint8) map[uint8]voxel.Set {
	t.Helper()
	byZoom := make(map[uint8]voxel.Set)
	level := []sid.ID{root}
	for z := root.Z; ; z++ {
		set := make(voxel.Set, len(level))
		for _, id := range level {
			set[cellOf(id)] = struct{}{}
		}
		byZoom[z] = set
		if z == zoom {
			return byZoom
		}
		var next []sid.ID
		for _, id := range level {
			ch, err := id.Children()
			require.NoError(t, err)
			next = append(next, ch[:]...)
		}
		level = next
	}
}

func TestOptimizeFullBlockMergesExact(t *testing.T) {
	root := sid.ID{Z: 8, F: 3, X: 40, Y: 41}
	byZoom := descend(t, root, 10)

	got, err := Optimize(byZoom, 10, 5, model.PolicyExact)
	require.NoError(t, err)
	assert.Equal(t, []sid.ID{root}, got, "64 grandchildren collapse across two levels")
}

func TestOptimizeMergeFloor(t *testing.T) {
	root := sid.ID{Z: 8, F: 3, X: 40, Y: 41}
	byZoom := descend(t, root, 10)

	got, err := Optimize(byZoom, 10, 9, model.PolicyExact)
	require.NoError(t, err)
	require.Len(t, got, 8, "merging stops at the floor zoom")
	for _, id := range got {
		assert.Equal(t, uint8(9), id.Z)
	}
}

func TestOptimizeIncompleteSiblingsStayExact(t *testing.T) {
	root := sid.ID{Z: 8, F: 0, X: 10, Y: 11}
	children, err := root.Children()
	require.NoError(t, err)

	set := make(voxel.Set)
	for _, c := range children[:7] {
		set[cellOf(c)] = struct{}{}
	}
	byZoom := map[uint8]voxel.Set{
		9: set,
		8: {cellOf(root): {}},
	}

	got, err := Optimize(byZoom, 9, 5, model.PolicyExact)
	require.NoError(t, err)
	require.Len(t, got, 7, "a missing sibling blocks the exact merge")
	for _, id := range got {
		assert.Equal(t, uint8(9), id.Z)
	}
}

func TestOptimizeBoundingPromotesPartialColumns(t *testing.T) {
	// One child per horizontal quadrant, alternating vertical layers: exact
	// must keep all four, bounding may promote to the parent superset.
	root := sid.ID{Z: 8, F: 0, X: 10, Y: 11}
	children, err := root.Children()
	require.NoError(t, err)

	set := make(voxel.Set)
	for i, c := range children {
		if i%2 == 0 {
			set[cellOf(c)] = struct{}{}
		}
	}
	// Lower layer holds quadrants (0,0) and (0,1); upper the other two.
	set[cellOf(children[5])] = struct{}{}
	set[cellOf(children[7])] = struct{}{}
	delete(set, cellOf(children[2]))

	byZoom := map[uint8]voxel.Set{
		9: set,
		8: {cellOf(root): {}},
	}

	exact, err := Optimize(byZoom, 9, 5, model.PolicyExact)
	require.NoError(t, err)
	assert.Len(t, exact, len(set))

	bounding, err := Optimize(byZoom, 9, 5, model.PolicyBounding)
	require.NoError(t, err)
	assert.Equal(t, []sid.ID{root}, bounding)
}

// expandTo materializes every descendant cell of ids at zoom.
func expandTo(t *testing.T, ids []sid.ID, zoom uint8) voxel.Set {
	t.Helper()
	set := make(voxel.Set)
	for _, id := range ids {
		level := []sid.ID{id}
		for z := id.Z; z < zoom; z++ {
			var next []sid.ID
			for _, cur := range level {
				ch, err := cur.Children()
				require.NoError(t, err)
				next = append(next, ch[:]...)
			}
			level = next
		}
		for _, cur := range level {
			set[cellOf(cur)] = struct{}{}
		}
	}
	return set
}

func TestOptimizeIdempotentExact(t *testing.T) {
	// Expanding the optimized set back to the finest zoom and optimizing
	// again must reproduce it exactly; a merged parent gains no new
	// mergeable siblings on the second pass.
	root := sid.ID{Z: 8, F: 0, X: 10, Y: 11}
	byZoom := descend(t, root, 10)
	straggler := sid.ID{Z: 10, F: 0, X: 100, Y: 100}
	byZoom[10][cellOf(straggler)] = struct{}{}

	first, err := Optimize(byZoom, 10, 5, model.PolicyExact)
	require.NoError(t, err)
	require.Equal(t, []sid.ID{root, straggler}, first)

	byZoom[10] = expandTo(t, first, 10)
	second, err := Optimize(byZoom, 10, 5, model.PolicyExact)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOptimizeBoundingMonotonicAndIdempotent(t *testing.T) {
	// Five children covering all four horizontal quadrants. Lowering the
	// merge floor can only grow the covered volume, and re-optimizing the
	// promoted parent's expansion is a fixed point.
	root := sid.ID{Z: 8, F: 0, X: 10, Y: 11}
	children, err := root.Children()
	require.NoError(t, err)

	set := make(voxel.Set)
	for _, c := range []sid.ID{children[0], children[1], children[4], children[6], children[7]} {
		set[cellOf(c)] = struct{}{}
	}
	byZoom := map[uint8]voxel.Set{9: set}

	flat, err := Optimize(byZoom, 9, 9, model.PolicyBounding)
	require.NoError(t, err)
	require.Len(t, flat, 5)

	merged, err := Optimize(byZoom, 9, 8, model.PolicyBounding)
	require.NoError(t, err)
	require.Equal(t, []sid.ID{root}, merged)

	// Coarsening the floor never drops volume: everything the flat run
	// covers lies inside the merged run's cells.
	mergedCells := expandTo(t, merged, 9)
	for c := range expandTo(t, flat, 9) {
		assert.Contains(t, mergedCells, c)
	}

	byZoom[9] = mergedCells
	again, err := Optimize(byZoom, 9, 8, model.PolicyBounding)
	require.NoError(t, err)
	assert.Equal(t, merged, again)
}

func TestOptimizeNoAncestorPairs(t *testing.T) {
	// A full block next to a lone straggler: the block merges, the straggler
	// stays, and the result must not contain both a cell and its ancestor.
	root := sid.ID{Z: 8, F: 0, X: 10, Y: 11}
	byZoom := descend(t, root, 9)
	straggler := sid.ID{Z: 9, F: 0, X: 30, Y: 30}
	byZoom[9][cellOf(straggler)] = struct{}{}

	got, err := Optimize(byZoom, 9, 5, model.PolicyExact)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, a := range got {
		for j, b := range got {
			if i != j {
				assert.False(t, a.Contains(b), "%v contains %v", a, b)
			}
		}
	}
	assert.True(t, sid.Less(got[0], got[1]), "output sorted")
}

func TestOptimizeEmpty(t *testing.T) {
	got, err := Optimize(map[uint8]voxel.Set{26: {}}, 26, 10, model.PolicyExact)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOptimizeRejectsNegativeCells(t *testing.T) {
	byZoom := map[uint8]voxel.Set{
		10: {voxel.Cell{X: -1, Y: 0, F: 0}: {}},
	}
	_, err := Optimize(byZoom, 10, 5, model.PolicyExact)
	require.Error(t, err)
	assert.True(t, eris.Is(err, sid.ErrOutOfRange))
}

func TestOptimizeVerticalDomain(t *testing.T) {
	byZoom := map[uint8]voxel.Set{
		10: {voxel.Cell{X: 0, Y: 0, F: 1 << 10}: {}},
	}
	_, err := Optimize(byZoom, 10, 5, model.PolicyExact)
	require.Error(t, err)
	assert.True(t, eris.Is(err, sid.ErrOutOfRange))
}
