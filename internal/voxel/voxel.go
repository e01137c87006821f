// Package voxel intersects triangulated geometry, already projected into
// tile units, against the cell grid at one zoom level. It is a pure
// transform: the same triangles always produce the same cell set,
// independent of input order.
package voxel

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// ErrResolutionTooFine signals that the candidate cell count for the
// geometry's bounding box exceeds the configured ceiling; the caller should
// retry at a coarser zoom.
var ErrResolutionTooFine = eris.New("voxel: resolution too fine")

// Vec is a continuous coordinate in tile units.
type Vec struct {
	X float64
	Y float64
	F float64
}

// Triangle is a mesh face in tile units.
type Triangle [3]Vec

// Cell is a grid cell index at the working zoom. Indexes are kept as raw
// int64 here; domain validation happens when cells become spatial IDs.
type Cell struct {
	X int64
	Y int64
	F int64
}

// Set is an occupied-cell set at one zoom level.
type Set map[Cell]struct{}

// Cells returns the set sorted by (f, y, x) for deterministic output.
func (s Set) Cells() []Cell {
	out := make([]Cell, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.F != b.F {
			return a.F < b.F
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return out
}

// Voxelizer enumerates occupied cells for triangle meshes.
type Voxelizer struct {
	maxCandidates int
}

// New returns a Voxelizer that refuses geometries whose bounding box spans
// more than maxCandidates cells.
func New(maxCandidates int) Voxelizer {
	return Voxelizer{maxCandidates: maxCandidates}
}

// Voxelize computes the occupied cell set for the triangles.
//
// Surfaces admit every cell the triangles touch; a triangle lying exactly
// in a cell-boundary plane is assigned to the lower-indexed cell so shared
// boundaries are never double counted. Solids admit only cells sharing
// positive volume with the solid: boundary faces are tested against open
// cell boxes and enclosed cells are recovered by a vertical winding fill
// per grid column.
func (v Voxelizer) Voxelize(tris []Triangle, solid bool) (Set, error) {
	if len(tris) == 0 {
		return Set{}, nil
	}
	if err := v.checkBudget(tris); err != nil {
		return nil, err
	}

	set := make(Set)
	for _, t := range tris {
		markTriangle(set, t, solid)
	}
	if solid {
		fillInterior(set, tris)
	}
	return set, nil
}

// checkBudget rejects the run before enumeration when the overall bounding
// box at this zoom spans more cells than the configured ceiling.
func (v Voxelizer) checkBudget(tris []Triangle) error {
	min, max := tris[0][0], tris[0][0]
	for _, t := range tris {
		for _, p := range t {
			min.X = math.Min(min.X, p.X)
			min.Y = math.Min(min.Y, p.Y)
			min.F = math.Min(min.F, p.F)
			max.X = math.Max(max.X, p.X)
			max.Y = math.Max(max.Y, p.Y)
			max.F = math.Max(max.F, p.F)
		}
	}
	nx := math.Floor(max.X) - math.Floor(min.X) + 1
	ny := math.Floor(max.Y) - math.Floor(min.Y) + 1
	nf := math.Floor(max.F) - math.Floor(min.F) + 1
	if nx*ny*nf > float64(v.maxCandidates) {
		return eris.Wrapf(ErrResolutionTooFine,
			"bounding box spans %.0f candidate cells, ceiling %d", nx*ny*nf, v.maxCandidates)
	}
	return nil
}

// markTriangle adds every cell the triangle occupies to the set.
func markTriangle(set Set, t Triangle, strict bool) {
	x0, x1 := axisRange(t[0].X, t[1].X, t[2].X, strict)
	y0, y1 := axisRange(t[0].Y, t[1].Y, t[2].Y, strict)
	f0, f1 := axisRange(t[0].F, t[1].F, t[2].F, strict)

	for fx := f0; fx <= f1; fx++ {
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				c := Cell{X: x, Y: y, F: fx}
				if triBoxOverlap(c, t, strict) {
					set[c] = struct{}{}
				}
			}
		}
	}
}

// axisRange returns the candidate cell index range for one axis of the
// triangle's bounding interval. In non-strict (surface) mode a boundary
// touch at an exact cell plane is trimmed so the plane belongs to the
// lower-indexed cell; a triangle entirely in a plane keeps only that lower
// cell. In strict (solid boundary) mode exact-plane extents own no cell at
// all on that side.
func axisRange(a, b, c float64, strict bool) (int64, int64) {
	lo := math.Min(a, math.Min(b, c))
	hi := math.Max(a, math.Max(b, c))

	if lo == hi && lo == math.Floor(lo) {
		if strict {
			return 1, 0 // empty range; the interior fill owns plane faces
		}
		i := int64(lo)
		return i - 1, i - 1
	}

	iLo := int64(math.Floor(lo))
	iHi := int64(math.Floor(hi))
	if hi == math.Floor(hi) && hi > lo {
		iHi--
	}
	return iLo, iHi
}

// triBoxOverlap is the separating-axis test between a triangle and the unit
// cell box. strict treats touching contact as separation (open box).
func triBoxOverlap(c Cell, t Triangle, strict bool) bool {
	const h = 0.5

	cx := float64(c.X) + h
	cy := float64(c.Y) + h
	cf := float64(c.F) + h

	var v [3][3]float64
	for i, p := range t {
		v[i] = [3]float64{p.X - cx, p.Y - cy, p.F - cf}
	}

	sep := func(lo, hi, r float64) bool {
		if strict {
			return lo >= r || hi <= -r
		}
		return lo > r || hi < -r
	}

	// Box face normals.
	for axis := 0; axis < 3; axis++ {
		lo := math.Min(v[0][axis], math.Min(v[1][axis], v[2][axis]))
		hi := math.Max(v[0][axis], math.Max(v[1][axis], v[2][axis]))
		if sep(lo, hi, h) {
			return false
		}
	}

	// Triangle plane.
	e0 := sub3(v[1], v[0])
	e1 := sub3(v[2], v[1])
	e2 := sub3(v[0], v[2])
	n := cross3(e0, e1)
	d := dot3(n, v[0])
	r := h * (math.Abs(n[0]) + math.Abs(n[1]) + math.Abs(n[2]))
	if strict {
		if d >= r || d <= -r {
			return false
		}
	} else if d > r || d < -r {
		return false
	}

	// Nine edge cross-product axes.
	for _, e := range [3][3]float64{e0, e1, e2} {
		for axis := 0; axis < 3; axis++ {
			var a [3]float64
			switch axis {
			case 0:
				a = [3]float64{0, -e[2], e[1]}
			case 1:
				a = [3]float64{e[2], 0, -e[0]}
			default:
				a = [3]float64{-e[1], e[0], 0}
			}
			ra := h * (math.Abs(a[0]) + math.Abs(a[1]) + math.Abs(a[2]))
			if ra == 0 {
				continue
			}
			p0 := dot3(a, v[0])
			p1 := dot3(a, v[1])
			p2 := dot3(a, v[2])
			lo := math.Min(p0, math.Min(p1, p2))
			hi := math.Max(p0, math.Max(p1, p2))
			if sep(lo, hi, ra) {
				return false
			}
		}
	}
	return true
}

// Column sample points are nudged off exact cell centers so rays never run
// along shared triangle edges or vertices; the offsets are far below any
// meaningful geometric tolerance.
const (
	sampleOffsetX = 1.0e-7
	sampleOffsetY = 2.3e-7
)

// crossing is one boundary intersection along a column's vertical ray. up
// is the face orientation; faces must be oriented coherently within each
// closed shell, which every mesh builder upholds.
type crossing struct {
	f  float64
	up bool
}

// fillInterior marks cells enclosed by the solid. For every grid column in
// the footprint it casts a vertical ray through the column's sample point,
// sorts the boundary crossings, and tracks a winding count: down-facing
// faces enter the solid, up-facing faces leave it. Cells between crossings
// with a nonzero count are inside. The count stays correct when closed
// shells overlap, as the sweep builders produce at every bend, where
// even-odd pairing of the merged crossing list would cancel the overlap out.
func fillInterior(set Set, tris []Triangle) {
	type column struct{ x, y int64 }
	crossings := make(map[column][]crossing)

	for _, t := range tris {
		xLo := int64(math.Floor(math.Min(t[0].X, math.Min(t[1].X, t[2].X))))
		xHi := int64(math.Floor(math.Max(t[0].X, math.Max(t[1].X, t[2].X))))
		yLo := int64(math.Floor(math.Min(t[0].Y, math.Min(t[1].Y, t[2].Y))))
		yHi := int64(math.Floor(math.Max(t[0].Y, math.Max(t[1].Y, t[2].Y))))

		for y := yLo; y <= yHi; y++ {
			for x := xLo; x <= xHi; x++ {
				px := float64(x) + 0.5 + sampleOffsetX
				py := float64(y) + 0.5 + sampleOffsetY
				f, up, ok := verticalIntersection(t, px, py)
				if !ok {
					continue
				}
				col := column{x, y}
				crossings[col] = append(crossings[col], crossing{f: f, up: up})
			}
		}
	}

	for col, cs := range crossings {
		sort.Slice(cs, func(i, j int) bool { return cs[i].f < cs[j].f })
		winding := 0
		for i := 0; i+1 < len(cs); i++ {
			if cs[i].up {
				winding--
			} else {
				winding++
			}
			if winding == 0 {
				continue
			}
			lo, hi := cs[i].f, cs[i+1].f
			fLo := int64(math.Floor(lo))
			fHi := int64(math.Floor(hi))
			if hi == math.Floor(hi) {
				fHi--
			}
			for f := fLo; f <= fHi; f++ {
				set[Cell{X: col.x, Y: col.y, F: f}] = struct{}{}
			}
		}
	}
}

// verticalIntersection returns the height at which the vertical line
// through (px,py) pierces the triangle and whether the face points up.
// Triangles whose XY projection is degenerate (vertical walls) never
// register a crossing.
func verticalIntersection(t Triangle, px, py float64) (float64, bool, bool) {
	d1x, d1y := t[1].X-t[0].X, t[1].Y-t[0].Y
	d2x, d2y := t[2].X-t[0].X, t[2].Y-t[0].Y
	det := d1x*d2y - d2x*d1y
	if det == 0 {
		return 0, false, false
	}
	rx, ry := px-t[0].X, py-t[0].Y
	u := (rx*d2y - ry*d2x) / det
	w := (d1x*ry - d1y*rx) / det
	if u < 0 || w < 0 || u+w > 1 {
		return 0, false, false
	}
	return t[0].F + u*(t[1].F-t[0].F) + w*(t[2].F-t[0].F), det > 0, true
}

func sub3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
