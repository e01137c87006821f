package feed

import (
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/undergis/spatialid/internal/geometry"
	"github.com/undergis/spatialid/internal/model"
)

// ShapefileSource streams features from an ESRI shapefile. PolyLineZ shapes
// become swept ducts or cylinders using the WIDTH/HEIGHT/RADIUS attributes;
// PolygonZ shapes with a DEPTH attribute become downward extrusions. DBF
// attribute values are carried through as feature attrs.
type ShapefileSource struct {
	r        *shp.Reader
	crs      int
	fieldIdx map[string]int
	names    []string
	seq      int
}

// OpenShapefile opens a shapefile whose coordinates are in the given CRS.
func OpenShapefile(path string, crs int) (*ShapefileSource, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: open shapefile %s", path)
	}

	fields := r.Fields()
	idx := make(map[string]int, len(fields))
	names := make([]string, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		idx[strings.ToLower(name)] = i
		names[i] = name
	}
	return &ShapefileSource{r: r, crs: crs, fieldIdx: idx, names: names}, nil
}

// Next returns the next feature record. Shapes that cannot be turned into a
// mesh come back with nil geometry so the failure surfaces per-feature.
func (s *ShapefileSource) Next() (model.FeatureRecord, bool, error) {
	if !s.r.Next() {
		if err := s.r.Err(); err != nil && err != io.EOF {
			return model.FeatureRecord{}, false, eris.Wrap(err, "feed: read shapefile")
		}
		return model.FeatureRecord{}, false, nil
	}
	s.seq++
	_, shape := s.r.Shape()

	attrs := make(map[string]string, len(s.names))
	for i, name := range s.names {
		val := strings.TrimSpace(strings.TrimRight(s.r.Attribute(i), "\x00"))
		if val != "" {
			attrs[name] = val
		}
	}

	rec := model.FeatureRecord{ID: s.recordID(attrs), Attrs: attrs}
	mesh, err := s.meshFromShape(shape, attrs)
	if err != nil {
		zap.L().Warn("feed: shapefile record has no usable geometry",
			zap.String("feature_id", rec.ID), zap.Int("record", s.seq), zap.Error(err))
		return rec, true, nil
	}
	rec.Geometry = mesh
	return rec, true, nil
}

// Close releases the shapefile handles.
func (s *ShapefileSource) Close() error {
	return s.r.Close()
}

func (s *ShapefileSource) recordID(attrs map[string]string) string {
	for _, key := range []string{"id", "ID", "Id"} {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func (s *ShapefileSource) meshFromShape(shape shp.Shape, attrs map[string]string) (*geometry.Mesh, error) {
	props := make(map[string]any, len(attrs))
	for k, v := range attrs {
		props[strings.ToLower(k)] = v
	}

	switch sh := shape.(type) {
	case *shp.PolyLineZ:
		return s.sweepParts(partsZ(sh.NumParts, sh.Parts, sh.Points, sh.ZArray), props)

	case *shp.PolyLine:
		return s.sweepParts(partsZ(sh.NumParts, sh.Parts, sh.Points, nil), props)

	case *shp.PolygonZ:
		return s.extrudeFirstPart(partsZ(sh.NumParts, sh.Parts, sh.Points, sh.ZArray), props)

	case *shp.Polygon:
		return s.extrudeFirstPart(partsZ(sh.NumParts, sh.Parts, sh.Points, nil), props)

	case nil:
		return nil, eris.Wrap(geometry.ErrInvalidGeometry, "record has no shape")

	default:
		return nil, eris.Wrapf(geometry.ErrInvalidGeometry, "unsupported shape type %T", sh)
	}
}

// sweepParts sweeps every polyline part with the record's section dimensions
// and merges the parts into one solid.
func (s *ShapefileSource) sweepParts(parts [][]geom.Coord, props map[string]any) (*geometry.Mesh, error) {
	radius := numProp(props, propRadius)
	width := numProp(props, propWidth)
	height := numProp(props, propHeight)
	if radius <= 0 && (width <= 0 || height <= 0) {
		return nil, eris.Wrap(geometry.ErrInvalidGeometry,
			"polyline needs a radius or width and height attribute")
	}

	merged := &geometry.Mesh{Kind: geometry.Solid, CRS: s.crs}
	for _, part := range parts {
		if len(part) < 2 {
			continue
		}
		line := geom.NewLineString(geom.XYZ)
		if _, err := line.SetCoords(part); err != nil {
			return nil, eris.Wrap(geometry.ErrInvalidGeometry, err.Error())
		}

		var mesh *geometry.Mesh
		var err error
		if radius > 0 {
			mesh, err = geometry.SweepCylinder(line, radius, cylinderSegments, s.crs)
		} else {
			mesh, err = geometry.SweepDuct(line, width, height, s.crs)
		}
		if err != nil {
			return nil, err
		}
		merged.Triangles = append(merged.Triangles, mesh.Triangles...)
	}
	if len(merged.Triangles) == 0 {
		return nil, eris.Wrap(geometry.ErrInvalidGeometry, "polyline has no usable parts")
	}
	return merged, nil
}

func (s *ShapefileSource) extrudeFirstPart(parts [][]geom.Coord, props map[string]any) (*geometry.Mesh, error) {
	depth := numProp(props, propDepth)
	if depth <= 0 {
		return nil, eris.Wrap(geometry.ErrInvalidGeometry, "polygon needs a depth attribute")
	}
	if len(parts) == 0 {
		return nil, eris.Wrap(geometry.ErrInvalidGeometry, "polygon has no rings")
	}

	poly := geom.NewPolygon(geom.XYZ)
	ring := geom.NewLinearRing(geom.XYZ)
	if _, err := ring.SetCoords(parts[0]); err != nil {
		return nil, eris.Wrap(geometry.ErrInvalidGeometry, err.Error())
	}
	if err := poly.Push(ring); err != nil {
		return nil, eris.Wrap(geometry.ErrInvalidGeometry, err.Error())
	}
	return geometry.ExtrudePolygon(poly, depth, s.crs)
}

// partsZ slices the flat shapefile point array into per-part XYZ coords.
// A nil zs means a 2D shape; altitudes default to zero.
func partsZ(numParts int32, parts []int32, points []shp.Point, zs []float64) [][]geom.Coord {
	if numParts == 0 && len(points) > 0 {
		parts = []int32{0}
		numParts = 1
	}
	out := make([][]geom.Coord, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := parts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = parts[i+1]
		}
		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			z := 0.0
			if zs != nil && int(j) < len(zs) {
				z = zs[j]
			}
			coords = append(coords, geom.Coord{points[j].X, points[j].Y, z})
		}
		out = append(out, coords)
	}
	return out
}
