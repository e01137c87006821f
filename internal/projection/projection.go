// Package projection converts geodetic coordinates to and from the
// normalized unit-tile space used by the spatial-ID grid. All functions are
// pure; the grid is fully determined by its zoom level.
package projection

import (
	"math"

	"github.com/rotisserie/eris"
)

// Projection domain errors.
var (
	ErrUnsupportedCRS = eris.New("projection: unsupported CRS")
	ErrOutOfRange     = eris.New("projection: coordinate out of range")
)

// MaxLatitude is the Web Mercator latitude bound in degrees.
const MaxLatitude = 85.05112877980659

// verticalRefZoom anchors the vertical axis: cells are exactly 1 m tall at
// this zoom, 2^(verticalRefZoom-z) m at zoom z.
const verticalRefZoom = 25

// supportedCRS lists the WGS84-class geodetic systems the grid accepts.
// Datum differences between them are at most centimeters and are handled
// upstream by the datum-correction collaborator, so the grid treats them as
// interchangeable.
var supportedCRS = map[int]string{
	4326: "WGS 84",
	4612: "JGD2000",
	4979: "WGS 84 (3D)",
	6668: "JGD2011",
	6697: "JGD2011 (vertical)",
}

// SupportedCRS reports whether the EPSG code is one the engine recognizes.
func SupportedCRS(epsg int) bool {
	_, ok := supportedCRS[epsg]
	return ok
}

// CheckCRS returns ErrUnsupportedCRS for any EPSG code outside the
// recognized geodetic set.
func CheckCRS(epsg int) error {
	if !SupportedCRS(epsg) {
		return eris.Wrapf(ErrUnsupportedCRS, "EPSG:%d", epsg)
	}
	return nil
}

// Point is a geodetic coordinate: longitude and latitude in degrees,
// ellipsoidal height in meters.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
	Alt float64 `json:"alt"`
}

// Unit is a continuous coordinate in tile units at a fixed zoom: the cell
// with indexes (x, y, f) spans [x,x+1) x [y,y+1) x [f,f+1).
type Unit struct {
	X float64
	Y float64
	F float64
}

// Grid projects between geodetic points and tile units at one zoom level.
type Grid struct {
	zoom uint8
	n    float64 // 2^zoom
	vert float64 // 2^(zoom-verticalRefZoom), vertical cells per meter
}

// NewGrid builds the projection grid for a zoom level.
func NewGrid(zoom uint8) Grid {
	return Grid{
		zoom: zoom,
		n:    math.Exp2(float64(zoom)),
		vert: math.Exp2(float64(zoom) - verticalRefZoom),
	}
}

// Zoom returns the grid's zoom level.
func (g Grid) Zoom() uint8 { return g.zoom }

// CellHeight returns the vertical cell size in meters.
func (g Grid) CellHeight() float64 { return 1 / g.vert }

// Project maps a geodetic point into tile units. Longitude wraps at the
// antimeridian; latitude beyond the Mercator bound is rejected.
func (g Grid) Project(p Point) (Unit, error) {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsNaN(p.Alt) {
		return Unit{}, eris.Wrap(ErrOutOfRange, "NaN coordinate")
	}
	if p.Lon < -180 || p.Lon > 180 {
		return Unit{}, eris.Wrapf(ErrOutOfRange, "longitude %v", p.Lon)
	}
	if p.Lat < -MaxLatitude || p.Lat > MaxLatitude {
		return Unit{}, eris.Wrapf(ErrOutOfRange, "latitude %v", p.Lat)
	}
	latRad := p.Lat * math.Pi / 180
	return Unit{
		X: g.n * (p.Lon + 180) / 360,
		Y: g.n * (1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2,
		F: p.Alt * g.vert,
	}, nil
}

// Unproject maps tile units back to a geodetic point. It is the numeric
// inverse of Project: round-trip error stays below 1e-9 tile units.
func (g Grid) Unproject(u Unit) Point {
	return Point{
		Lon: u.X/g.n*360 - 180,
		Lat: math.Atan(math.Sinh(math.Pi*(1-2*u.Y/g.n))) * 180 / math.Pi,
		Alt: u.F / g.vert,
	}
}
