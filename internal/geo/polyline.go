package geo

import (
	"fmt"

	"github.com/OCAP2/transport/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Polyline builds an XYZ line string through the given positions.
func Polyline(points []core.Position) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("polyline must have at least 2 points, got %d", len(points))
	}

	flat := make([]float64, 0, len(points)*3)
	for i, p := range points {
		if !p.IsFinite() {
			return geom.LineString{}, fmt.Errorf("point %d: %w", i, ErrInvalidCoordinates)
		}
		flat = append(flat, p.X, p.Y, p.Z)
	}

	seq := geom.NewSequence(flat, geom.DimXYZ)
	return geom.NewLineString(seq), nil
}

// MultiPolyline builds one line string per run, skipping runs that are too
// short to draw.
func MultiPolyline(runs [][]core.Position) (geom.MultiLineString, error) {
	lines := make([]geom.LineString, 0, len(runs))
	for i, run := range runs {
		if len(run) < 2 {
			continue
		}
		ls, err := Polyline(run)
		if err != nil {
			return geom.MultiLineString{}, fmt.Errorf("run %d: %w", i, err)
		}
		lines = append(lines, ls)
	}
	return geom.NewMultiLineString(lines), nil
}

// GeoJSON renders a geometry as a GeoJSON geometry object.
func GeoJSON(g geom.Geometry) ([]byte, error) {
	b, err := g.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geojson: %w", err)
	}
	return b, nil
}
