// Package path turns raw waypoint lists into timed, spline-backed
// transport paths.
package path

import (
	"github.com/OCAP2/transport/internal/spline"
	"github.com/OCAP2/transport/pkg/core"
)

// KeyFrame is one retained waypoint with its distance and timing data.
// Distances are in yards, TimeFrom/TimeTo in seconds, PathTime and
// DepartureTime in milliseconds from the start of the loop.
type KeyFrame struct {
	Node core.WaypointNode

	// Spline covers the run this frame belongs to. Index is the spline
	// segment that departs this frame.
	Spline *spline.Spline
	Index  int

	DistFromPrev  float64
	DistSinceStop float64
	DistUntilStop float64
	// StretchLength is the stop-to-stop distance of the stretch the
	// segment departing this frame belongs to.
	StretchLength float64

	TimeFrom float64
	TimeTo   float64

	// Teleport marks the last frame before a map change or a hard jump.
	Teleport bool

	PathTime      uint32
	DepartureTime uint32
}

// IsStop reports whether the transport waits at this frame.
func (k *KeyFrame) IsStop() bool {
	return k.Node.Action == core.ActionStop
}

// MapID returns the map the frame's node lies on.
func (k *KeyFrame) MapID() uint32 {
	return k.Node.MapID
}

// Position returns the node position.
func (k *KeyFrame) Position() core.Position {
	return k.Node.Position()
}

// Template is the immutable precomputed path of one transport kind. It is
// shared by every live instance.
type Template struct {
	Info      core.TransportInfo
	KeyFrames []KeyFrame
	MapsUsed  []uint32

	Cyclic   bool
	HasStops bool

	AccelTime float64
	AccelDist float64

	// Period is the loop duration in milliseconds.
	Period uint32
}

// Len returns the number of key frames.
func (t *Template) Len() int {
	return len(t.KeyFrames)
}

// Degenerate reports whether the path cannot be travelled.
func (t *Template) Degenerate() bool {
	return len(t.KeyFrames) < 2 || t.Period == 0
}

// Next returns the index following i, wrapping at the end of the loop.
func (t *Template) Next(i int) int {
	return (i + 1) % len(t.KeyFrames)
}

// Start returns the first key frame.
func (t *Template) Start() *KeyFrame {
	return &t.KeyFrames[0]
}

// UsesMap reports whether any frame lies on the map.
func (t *Template) UsesMap(mapID uint32) bool {
	for _, m := range t.MapsUsed {
		if m == mapID {
			return true
		}
	}
	return false
}

// Runs samples every spline of the template into polylines, steps points
// per segment. Used for map overlays.
func (t *Template) Runs(steps int) [][]core.Position {
	if steps < 1 {
		steps = 1
	}
	var runs [][]core.Position
	var last *spline.Spline
	for i := range t.KeyFrames {
		sp := t.KeyFrames[i].Spline
		if sp == nil || sp == last {
			continue
		}
		last = sp
		run := make([]core.Position, 0, sp.Segments()*steps+1)
		for seg := 0; seg < sp.Segments(); seg++ {
			for s := 0; s < steps; s++ {
				v := sp.Evaluate(seg, float64(s)/float64(steps))
				run = append(run, core.Position{X: v.X(), Y: v.Y(), Z: v.Z()})
			}
		}
		end := sp.Evaluate(sp.Segments()-1, 1)
		run = append(run, core.Position{X: end.X(), Y: end.Y(), Z: end.Z()})
		runs = append(runs, run)
	}
	return runs
}
