package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// metersPerDegLat is the meridian arc length of one degree on the WGS84
// sphere. Longitudinal scale shrinks with cos(lat); the builders use a
// local tangent-plane approximation, which is accurate at the feature
// scales (pipes, ducts, building footprints) this engine indexes.
const metersPerDegLat = 111319.49079327358

// frame converts between geodetic degrees and local meters around an
// anchor latitude.
type frame struct {
	cosLat float64
}

func newFrame(lat float64) frame {
	c := math.Cos(lat * math.Pi / 180)
	if c < 1e-6 {
		c = 1e-6
	}
	return frame{cosLat: c}
}

func (f frame) lonPerMeter() float64 { return 1 / (metersPerDegLat * f.cosLat) }
func (f frame) latPerMeter() float64 { return 1 / metersPerDegLat }

// vec3 is a direction in local meters (east, north, up).
type vec3 struct{ x, y, z float64 }

func (v vec3) sub(o vec3) vec3      { return vec3{v.x - o.x, v.y - o.y, v.z - o.z} }
func (v vec3) scale(s float64) vec3 { return vec3{v.x * s, v.y * s, v.z * s} }
func (v vec3) add(o vec3) vec3      { return vec3{v.x + o.x, v.y + o.y, v.z + o.z} }
func (v vec3) norm() float64        { return math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z) }

func cross(a, b vec3) vec3 {
	return vec3{a.y*b.z - a.z*b.y, a.z*b.x - a.x*b.z, a.x*b.y - a.y*b.x}
}

func (f frame) toLocal(origin, p Point) vec3 {
	return vec3{
		x: (p.Lon - origin.Lon) / f.lonPerMeter(),
		y: (p.Lat - origin.Lat) / f.latPerMeter(),
		z: p.Alt - origin.Alt,
	}
}

func (f frame) fromLocal(origin Point, v vec3) Point {
	return Point{
		Lon: origin.Lon + v.x*f.lonPerMeter(),
		Lat: origin.Lat + v.y*f.latPerMeter(),
		Alt: origin.Alt + v.z,
	}
}

// ExtrudePolygon builds a closed solid by extruding a polygon footprint
// downward by depth meters. Vertex altitudes come from the ring's Z
// ordinate when present, else zero; the footprint becomes the top face,
// mirroring how buried structures are modeled from surveyed surface
// outlines. Holes are not supported.
func ExtrudePolygon(poly *geom.Polygon, depth float64, crs int) (*Mesh, error) {
	if poly == nil || poly.NumLinearRings() == 0 {
		return nil, eris.Wrap(ErrInvalidGeometry, "empty polygon")
	}
	if poly.NumLinearRings() > 1 {
		return nil, eris.Wrap(ErrInvalidGeometry, "polygon holes are not supported")
	}
	if depth <= 0 {
		return nil, eris.Wrapf(ErrInvalidGeometry, "depth %v must be positive", depth)
	}

	top := ringPoints(poly.LinearRing(0))
	if len(top) < 3 {
		return nil, eris.Wrapf(ErrInvalidGeometry, "ring has %d distinct vertices", len(top))
	}

	r := ring2{xs: make([]float64, len(top)), ys: make([]float64, len(top))}
	for i, p := range top {
		r.xs[i] = p.Lon
		r.ys[i] = p.Lat
	}
	tris, err := earClip(r)
	if err != nil {
		return nil, err
	}

	bottom := make([]Point, len(top))
	for i, p := range top {
		bottom[i] = Point{Lon: p.Lon, Lat: p.Lat, Alt: p.Alt - depth}
	}

	mesh := &Mesh{Kind: Solid, CRS: crs}
	for _, t := range tris {
		mesh.Triangles = append(mesh.Triangles,
			Triangle{top[t[0]], top[t[1]], top[t[2]]},
			Triangle{bottom[t[0]], bottom[t[2]], bottom[t[1]]},
		)
	}
	for i := range top {
		j := (i + 1) % len(top)
		mesh.Triangles = append(mesh.Triangles,
			Triangle{top[i], top[j], bottom[j]},
			Triangle{top[i], bottom[j], bottom[i]},
		)
	}
	return mesh, nil
}

// SweepDuct builds a closed solid for a rectangular duct of the given outer
// width and height (meters) swept along a 3D centerline. Each segment
// contributes an independent closed cuboid, so the union stays closed at
// bends without joint fans.
func SweepDuct(line *geom.LineString, width, height float64, crs int) (*Mesh, error) {
	if width <= 0 || height <= 0 {
		return nil, eris.Wrapf(ErrInvalidGeometry, "duct size %vx%v must be positive", width, height)
	}
	return sweep(line, crs, func(side, up vec3) []vec3 {
		hw, hh := width/2, height/2
		return []vec3{
			side.scale(-hw).add(up.scale(-hh)),
			side.scale(hw).add(up.scale(-hh)),
			side.scale(hw).add(up.scale(hh)),
			side.scale(-hw).add(up.scale(hh)),
		}
	})
}

// SweepCylinder builds a closed solid for a pipe of the given radius
// (meters) swept along a 3D centerline, approximating the circular section
// with the given number of flat faces.
func SweepCylinder(line *geom.LineString, radius float64, segments, crs int) (*Mesh, error) {
	if radius <= 0 {
		return nil, eris.Wrapf(ErrInvalidGeometry, "radius %v must be positive", radius)
	}
	if segments < 3 {
		return nil, eris.Wrapf(ErrInvalidGeometry, "need at least 3 segments, got %d", segments)
	}
	return sweep(line, crs, func(side, up vec3) []vec3 {
		profile := make([]vec3, segments)
		for i := 0; i < segments; i++ {
			theta := 2 * math.Pi * float64(i) / float64(segments)
			profile[i] = side.scale(radius * math.Cos(theta)).add(up.scale(radius * math.Sin(theta)))
		}
		return profile
	})
}

// sweep extrudes a cross-section profile along each centerline segment.
// The profile callback receives the segment's unit side and up vectors in
// local meters and returns the section corners around the segment axis.
func sweep(line *geom.LineString, crs int, profile func(side, up vec3) []vec3) (*Mesh, error) {
	if line == nil || line.NumCoords() < 2 {
		return nil, eris.Wrap(ErrInvalidGeometry, "centerline needs at least 2 points")
	}

	pts := dedupeCoords(line)
	if len(pts) < 2 {
		return nil, eris.Wrap(ErrInvalidGeometry, "centerline collapses to a point")
	}

	f := newFrame(pts[0].Lat)
	origin := pts[0]

	mesh := &Mesh{Kind: Solid, CRS: crs}
	for i := 0; i+1 < len(pts); i++ {
		p1 := f.toLocal(origin, pts[i])
		p2 := f.toLocal(origin, pts[i+1])
		dir := p2.sub(p1)
		n := dir.norm()
		if n == 0 {
			continue
		}
		dir = dir.scale(1 / n)

		// Reference up flips to east for near-vertical runs (risers).
		up := vec3{0, 0, 1}
		if math.Abs(dir.z) >= 0.99 {
			up = vec3{1, 0, 0}
		}
		side := cross(dir, up)
		side = side.scale(1 / side.norm())
		up = cross(side, dir)

		section := profile(side, up)
		k := len(section)
		start := make([]Point, k)
		end := make([]Point, k)
		for j, off := range section {
			start[j] = f.fromLocal(origin, p1.add(off))
			end[j] = f.fromLocal(origin, p2.add(off))
		}

		// Side walls.
		for j := 0; j < k; j++ {
			jn := (j + 1) % k
			mesh.Triangles = append(mesh.Triangles,
				Triangle{start[j], start[jn], end[jn]},
				Triangle{start[j], end[jn], end[j]},
			)
		}
		// Caps as fans; each segment's cuboid/prism is independently closed.
		for j := 1; j+1 < k; j++ {
			mesh.Triangles = append(mesh.Triangles,
				Triangle{start[0], start[j+1], start[j]},
				Triangle{end[0], end[j], end[j+1]},
			)
		}
	}
	if len(mesh.Triangles) == 0 {
		return nil, eris.Wrap(ErrInvalidGeometry, "centerline produced no segments")
	}
	return mesh, nil
}

// SurfaceFromPolygons triangulates the exterior rings of a multipolygon
// into a surface mesh. TIN inputs arrive with one triangle per polygon and
// pass through unchanged; larger rings are ear-clipped. Vertex altitudes
// come from the Z ordinate. Holes are not supported.
func SurfaceFromPolygons(mp *geom.MultiPolygon, crs int) (*Mesh, error) {
	if mp == nil || mp.NumPolygons() == 0 {
		return nil, eris.Wrap(ErrInvalidGeometry, "empty multipolygon")
	}

	mesh := &Mesh{Kind: Surface, CRS: crs}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if poly.NumLinearRings() > 1 {
			return nil, eris.Wrapf(ErrInvalidGeometry, "polygon %d has holes", i)
		}
		pts := ringPoints(poly.LinearRing(0))
		if len(pts) < 3 {
			return nil, eris.Wrapf(ErrInvalidGeometry, "polygon %d ring has %d distinct vertices", i, len(pts))
		}
		r := ring2{xs: make([]float64, len(pts)), ys: make([]float64, len(pts))}
		for j, p := range pts {
			r.xs[j] = p.Lon
			r.ys[j] = p.Lat
		}
		tris, err := earClip(r)
		if err != nil {
			return nil, eris.Wrapf(err, "polygon %d", i)
		}
		for _, t := range tris {
			mesh.Triangles = append(mesh.Triangles, Triangle{pts[t[0]], pts[t[1]], pts[t[2]]})
		}
	}
	if len(mesh.Triangles) == 0 {
		return nil, eris.Wrap(ErrInvalidGeometry, "multipolygon has no rings")
	}
	return mesh, nil
}

// ringPoints extracts ring vertices, dropping the closing vertex and any
// consecutive duplicates.
func ringPoints(ring *geom.LinearRing) []Point {
	n := ring.NumCoords()
	pts := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		c := ring.Coord(i)
		p := Point{Lon: c.X(), Lat: c.Y()}
		if len(c) > 2 {
			p.Alt = c[2]
		}
		if len(pts) > 0 && pts[len(pts)-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	return pts
}

func dedupeCoords(line *geom.LineString) []Point {
	n := line.NumCoords()
	pts := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		c := line.Coord(i)
		p := Point{Lon: c.X(), Lat: c.Y()}
		if len(c) > 2 {
			p.Alt = c[2]
		}
		if len(pts) > 0 && pts[len(pts)-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	return pts
}
