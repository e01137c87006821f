package geometry

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/undergis/spatialid/internal/projection"
)

// ErrInvalidGeometry marks geometry rejected before voxelization.
var ErrInvalidGeometry = eris.New("geometry: invalid geometry")

// Validate rejects degenerate or unrepresentable geometry before it reaches
// the voxelizer. When exact is true, solid meshes must additionally carry a
// closed, edge-manifold boundary: every undirected edge shared by an even
// number of faces. An open or pinched boundary would make the interior fill
// unsound under the exact policy.
func (m *Mesh) Validate(exact bool) error {
	if m == nil || len(m.Triangles) == 0 {
		return eris.Wrap(ErrInvalidGeometry, "empty geometry")
	}
	if err := projection.CheckCRS(m.CRS); err != nil {
		return err
	}

	for i, tri := range m.Triangles {
		for _, v := range tri {
			if math.IsNaN(v.Lon) || math.IsNaN(v.Lat) || math.IsNaN(v.Alt) ||
				math.IsInf(v.Lon, 0) || math.IsInf(v.Lat, 0) || math.IsInf(v.Alt, 0) {
				return eris.Wrapf(ErrInvalidGeometry, "triangle %d: non-finite coordinate", i)
			}
			if v.Lon < -180 || v.Lon > 180 {
				return eris.Wrapf(ErrInvalidGeometry, "triangle %d: longitude %v outside [-180,180]", i, v.Lon)
			}
			if v.Lat < -projection.MaxLatitude || v.Lat > projection.MaxLatitude {
				return eris.Wrapf(ErrInvalidGeometry, "triangle %d: latitude %v outside representable range", i, v.Lat)
			}
		}
		if degenerate(tri) {
			return eris.Wrapf(ErrInvalidGeometry, "triangle %d: zero area", i)
		}
	}

	if exact && m.Kind == Solid {
		if err := m.checkClosed(); err != nil {
			return err
		}
	}
	return nil
}

// degenerate reports whether the triangle has zero area: coincident or
// collinear vertices. Altitude is scaled so a vertical wall of meters-tall
// extent does not read as flat in degree units.
func degenerate(tri Triangle) bool {
	const metersPerDegree = 111319.49079327358

	ax := tri[1].Lon - tri[0].Lon
	ay := tri[1].Lat - tri[0].Lat
	az := (tri[1].Alt - tri[0].Alt) / metersPerDegree
	bx := tri[2].Lon - tri[0].Lon
	by := tri[2].Lat - tri[0].Lat
	bz := (tri[2].Alt - tri[0].Alt) / metersPerDegree

	cx := ay*bz - az*by
	cy := az*bx - ax*bz
	cz := ax*by - ay*bx
	return cx*cx+cy*cy+cz*cz == 0
}

type edgeKey struct {
	a, b Point
}

// checkClosed verifies the solid boundary has no open edges: each
// undirected edge (keyed by exact vertex coordinates) must be used an even
// number of times.
func (m *Mesh) checkClosed() error {
	edges := make(map[edgeKey]int, len(m.Triangles)*3)
	for _, tri := range m.Triangles {
		for e := 0; e < 3; e++ {
			a, b := tri[e], tri[(e+1)%3]
			if pointLess(b, a) {
				a, b = b, a
			}
			edges[edgeKey{a, b}]++
		}
	}
	for k, count := range edges {
		if count%2 != 0 {
			return eris.Wrapf(ErrInvalidGeometry,
				"solid boundary is open at edge (%v,%v,%v)-(%v,%v,%v)",
				k.a.Lon, k.a.Lat, k.a.Alt, k.b.Lon, k.b.Lat, k.b.Alt)
		}
	}
	return nil
}

func pointLess(a, b Point) bool {
	if a.Lon != b.Lon {
		return a.Lon < b.Lon
	}
	if a.Lat != b.Lat {
		return a.Lat < b.Lat
	}
	return a.Alt < b.Alt
}
