// Package coverage minimizes occupied-cell sets into hierarchical spatial ID
// coverage. Merging walks bottom-up from the working zoom: eight sibling
// cells collapse into their parent until the merge floor or the policy stops
// the climb.
package coverage

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/sid"
	"github.com/undergis/spatialid/internal/voxel"
)

// Optimize reduces the occupied cells at zoom into a minimal coverage set.
// byZoom holds the occupied-cell sets per zoom level, finest first; coarser
// levels, when present, gate exact merges so a parent is only emitted when
// the coarser voxelization confirms it. The result is sorted by
// (z, f, x, y) and contains no ancestor/descendant pairs.
func Optimize(byZoom map[uint8]voxel.Set, zoom, minMergeZoom uint8, policy model.Policy) ([]sid.ID, error) {
	cur, err := toIDs(byZoom[zoom], zoom)
	if err != nil {
		return nil, err
	}

	var done []sid.ID
	for z := zoom; z > minMergeZoom; z-- {
		groups := make(map[sid.ID][]sid.ID)
		for _, id := range cur {
			p, err := id.Parent()
			if err != nil {
				return nil, err
			}
			groups[p] = append(groups[p], id)
		}

		cur = cur[:0]
		for p, children := range groups {
			if mergeable(p, children, byZoom[z-1], policy) {
				cur = append(cur, p)
			} else {
				done = append(done, children...)
			}
		}
	}
	done = append(done, cur...)

	sort.Slice(done, func(i, j int) bool { return sid.Less(done[i], done[j]) })
	return done, nil
}

// mergeable decides whether the children collapse into parent p.
//
// Exact merges need the full set of eight children, so the parent volume is
// covered with no slack; when the coarser voxelization is available the
// parent must also appear there. Bounding merges accept slack on the
// vertical axis only: it is enough that every horizontal quadrant is
// occupied in at least one of the two child layers, which keeps the result
// a superset of the true coverage without inflating the footprint.
func mergeable(p sid.ID, children []sid.ID, coarser voxel.Set, policy model.Policy) bool {
	if coarser != nil {
		if _, ok := coarser[voxel.Cell{X: int64(p.X), Y: int64(p.Y), F: p.F}]; !ok {
			return false
		}
	}

	if policy == model.PolicyExact {
		return len(children) == 8
	}

	var quadrants [4]bool
	for _, c := range children {
		dx := c.X & 1
		dy := c.Y & 1
		quadrants[dy<<1|dx] = true
	}
	return quadrants[0] && quadrants[1] && quadrants[2] && quadrants[3]
}

func toIDs(set voxel.Set, zoom uint8) ([]sid.ID, error) {
	out := make([]sid.ID, 0, len(set))
	for c := range set {
		if c.X < 0 || c.Y < 0 {
			return nil, eris.Wrapf(sid.ErrOutOfRange, "cell x=%d y=%d is negative", c.X, c.Y)
		}
		id, err := sid.New(zoom, c.F, uint64(c.X), uint64(c.Y))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
