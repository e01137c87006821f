package geometry

import (
	"github.com/rotisserie/eris"
)

// ring2 is a closed ring in 2D parameter space (lon/lat), without the
// repeated closing vertex.
type ring2 struct {
	xs, ys []float64
}

func (r ring2) len() int { return len(r.xs) }

// signedArea is positive for counter-clockwise rings.
func (r ring2) signedArea() float64 {
	area := 0.0
	n := r.len()
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += r.xs[i]*r.ys[j] - r.xs[j]*r.ys[i]
	}
	return area / 2
}

// earClip triangulates a simple ring by ear clipping, returning index
// triples into the ring. The ring may wind either way.
func earClip(r ring2) ([][3]int, error) {
	n := r.len()
	if n < 3 {
		return nil, eris.Wrapf(ErrInvalidGeometry, "ring has %d vertices", n)
	}

	ccw := r.signedArea() > 0
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	var tris [][3]int
	guard := 0
	for len(idx) > 3 {
		clipped := false
		for i := 0; i < len(idx); i++ {
			prev := idx[(i+len(idx)-1)%len(idx)]
			curr := idx[i]
			next := idx[(i+1)%len(idx)]
			if !isEar(r, ccw, prev, curr, next, idx) {
				continue
			}
			tris = append(tris, [3]int{prev, curr, next})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			// Self-touching or degenerate ring: no ear found.
			return nil, eris.Wrap(ErrInvalidGeometry, "ring cannot be triangulated")
		}
		if guard++; guard > n {
			return nil, eris.Wrap(ErrInvalidGeometry, "ring cannot be triangulated")
		}
	}
	tris = append(tris, [3]int{idx[0], idx[1], idx[2]})
	return tris, nil
}

func isEar(r ring2, ccw bool, a, b, c int, remaining []int) bool {
	cross := (r.xs[b]-r.xs[a])*(r.ys[c]-r.ys[a]) - (r.ys[b]-r.ys[a])*(r.xs[c]-r.xs[a])
	if ccw {
		if cross <= 0 {
			return false
		}
	} else if cross >= 0 {
		return false
	}
	for _, p := range remaining {
		if p == a || p == b || p == c {
			continue
		}
		if pointInTri(r.xs[p], r.ys[p], r.xs[a], r.ys[a], r.xs[b], r.ys[b], r.xs[c], r.ys[c]) {
			return false
		}
	}
	return true
}

// pointInTri reports strict containment of (px,py) in the triangle.
func pointInTri(px, py, ax, ay, bx, by, cx, cy float64) bool {
	d1 := (px-bx)*(ay-by) - (ax-bx)*(py-by)
	d2 := (px-cx)*(by-cy) - (bx-cx)*(py-cy)
	d3 := (px-ax)*(cy-ay) - (cx-ax)*(py-ay)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}
