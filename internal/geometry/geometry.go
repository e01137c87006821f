// Package geometry defines the triangulated geometry model the engine
// consumes: surface or solid meshes in geodetic coordinates, plus the
// builders that produce closed solids from 2D source features.
package geometry

import (
	"github.com/undergis/spatialid/internal/projection"
)

// Kind is the closed set of geometry variants.
type Kind uint8

const (
	// Surface is an open triangulated surface; only intersected cells are
	// occupied.
	Surface Kind = iota
	// Solid is a closed boundary representation; enclosed cells are
	// occupied in addition to boundary cells.
	Solid
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	if k == Solid {
		return "solid"
	}
	return "surface"
}

// Point is a geodetic vertex: longitude/latitude in degrees, ellipsoidal
// height in meters.
type Point = projection.Point

// Triangle is one face of a mesh. Vertex order fixes the face orientation
// but the engine never relies on winding.
type Triangle [3]Point

// Mesh is an ordered collection of triangles tagged with its variant and
// the CRS its coordinates are expressed in.
type Mesh struct {
	Kind      Kind       `json:"kind"`
	CRS       int        `json:"crs"`
	Triangles []Triangle `json:"triangles"`
}

// Bounds returns the axis-aligned geodetic bounding box of the mesh.
// ok is false for an empty mesh.
func (m *Mesh) Bounds() (min, max Point, ok bool) {
	if m == nil || len(m.Triangles) == 0 {
		return Point{}, Point{}, false
	}
	min = m.Triangles[0][0]
	max = min
	for _, tri := range m.Triangles {
		for _, v := range tri {
			if v.Lon < min.Lon {
				min.Lon = v.Lon
			}
			if v.Lat < min.Lat {
				min.Lat = v.Lat
			}
			if v.Alt < min.Alt {
				min.Alt = v.Alt
			}
			if v.Lon > max.Lon {
				max.Lon = v.Lon
			}
			if v.Lat > max.Lat {
				max.Lat = v.Lat
			}
			if v.Alt > max.Alt {
				max.Alt = v.Alt
			}
		}
	}
	return min, max, true
}
