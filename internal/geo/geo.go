package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/OCAP2/transport/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// World coordinates are game yards on a flat plane. Points are stored as
// XYZ geometries so both sqlite and postgres can scan them from WKB.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PositionFromString parses "x,y", "x,y,z" or "x,y,z,o" into a core.Position.
func PositionFromString(coords string) (core.Position, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 4 {
		return core.Position{}, ErrInvalidCoordinates
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return core.Position{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	pos := core.Position{X: vals[0], Y: vals[1], Z: vals[2], O: NormalizeOrientation(vals[3])}
	if !pos.IsFinite() {
		return core.Position{}, ErrInvalidCoordinates
	}
	return pos, nil
}

// PointFromPosition converts a position into an XYZ point. Heading is dropped.
func PointFromPosition(p core.Position) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Y},
		Z:    p.Z,
		Type: geom.DimXYZ,
	})
}

// PositionFromPoint is the inverse of PointFromPosition. Empty points
// return ErrInvalidCoordinates.
func PositionFromPoint(pt geom.Point) (core.Position, error) {
	c, ok := pt.Coordinates()
	if !ok {
		return core.Position{}, ErrInvalidCoordinates
	}
	return core.Position{X: c.X, Y: c.Y, Z: c.Z}, nil
}
