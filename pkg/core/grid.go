package core

import "math"

const (
	// MaxGrids is the number of grids along one world axis.
	MaxGrids = 64
	// GridSize is the edge length of one grid in yards.
	GridSize = 533.3333
	// MapHalfSize is the distance from the world center to its edge.
	MapHalfSize = GridSize * MaxGrids / 2

	centerGrid = MaxGrids / 2
)

// GridCoord addresses one spatial partition of a map.
type GridCoord struct {
	X int
	Y int
}

// GridCoordFor returns the grid containing the world point (x, y).
func GridCoordFor(x, y float64) GridCoord {
	gx := int(centerGrid - x/GridSize)
	gy := int(centerGrid - y/GridSize)
	return GridCoord{X: clampGrid(gx), Y: clampGrid(gy)}
}

func clampGrid(v int) int {
	if v < 0 {
		return 0
	}
	if v >= MaxGrids {
		return MaxGrids - 1
	}
	return v
}

// IsValidMapCoord reports whether the position lies inside the world bounds.
func IsValidMapCoord(p Position) bool {
	if !p.IsFinite() {
		return false
	}
	return math.Abs(p.X) <= MapHalfSize-0.5 && math.Abs(p.Y) <= MapHalfSize-0.5
}
