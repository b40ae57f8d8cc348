package path

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/OCAP2/transport/internal/spline"
	"github.com/OCAP2/transport/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrTooFewNodes       = errors.New("path has no usable nodes")
	ErrInvalidKinematics = errors.New("speed and acceleration must be positive")
)

// Generate builds the template for one transport kind from its raw path.
// The first and last node are sentinels and never become key frames.
func Generate(info core.TransportInfo, nodes []core.WaypointNode) (*Template, error) {
	if !(info.Speed > 0) || !(info.Accel > 0) {
		return nil, fmt.Errorf("transport %d: %w", info.Entry, ErrInvalidKinematics)
	}

	t := &Template{
		Info:      info,
		AccelTime: info.Speed / info.Accel,
		AccelDist: 0.5 * info.Speed * info.Speed / info.Accel,
	}
	if err := t.filter(nodes); err != nil {
		return nil, fmt.Errorf("transport %d path %d: %w", info.Entry, info.PathID, err)
	}
	if err := t.fitSplines(); err != nil {
		return nil, fmt.Errorf("transport %d path %d: %w", info.Entry, info.PathID, err)
	}
	t.computeDistances()
	t.computeTimes()
	t.computePathTimes()
	return t, nil
}

// filter keeps the travelled nodes. A teleport marker or a map change
// drops the marker node, skips the node after it and flags the previous
// frame as a teleport frame.
func (t *Template) filter(nodes []core.WaypointNode) error {
	cyclic := true
	skip := false
	maps := make(map[uint32]struct{})

	for i := 1; i < len(nodes)-1; i++ {
		if skip {
			skip = false
			continue
		}
		n := nodes[i]
		if n.Action == core.ActionTeleport || n.MapID != nodes[i+1].MapID {
			cyclic = false
			skip = true
			if len(t.KeyFrames) > 0 {
				t.KeyFrames[len(t.KeyFrames)-1].Teleport = true
			}
			continue
		}
		t.KeyFrames = append(t.KeyFrames, KeyFrame{Node: n})
		maps[n.MapID] = struct{}{}
	}

	if len(t.KeyFrames) == 0 {
		return ErrTooFewNodes
	}
	// A closed curve needs at least three points.
	if len(t.KeyFrames) < 3 {
		cyclic = false
	}
	if !cyclic {
		t.KeyFrames[len(t.KeyFrames)-1].Teleport = true
	}
	t.Cyclic = cyclic

	for m := range maps {
		t.MapsUsed = append(t.MapsUsed, m)
	}
	sort.Slice(t.MapsUsed, func(i, j int) bool { return t.MapsUsed[i] < t.MapsUsed[j] })

	for i := range t.KeyFrames {
		if t.KeyFrames[i].IsStop() {
			t.HasStops = true
			break
		}
	}
	return nil
}

func controls(frames []KeyFrame) []mgl64.Vec3 {
	pts := make([]mgl64.Vec3, len(frames))
	for i := range frames {
		pts[i] = mgl64.Vec3{frames[i].Node.X, frames[i].Node.Y, frames[i].Node.Z}
	}
	return pts
}

func (t *Template) fitSplines() error {
	frames := t.KeyFrames
	n := len(frames)

	if t.Cyclic {
		sp, err := spline.New(controls(frames), true)
		if err != nil {
			return err
		}
		for i := range frames {
			frames[i].Spline = sp
			frames[i].Index = i
			frames[i].DistFromPrev = sp.SegmentLength((i - 1 + n) % n)
		}
		return nil
	}

	start := 0
	for i := range frames {
		if !frames[i].Teleport && i != n-1 {
			continue
		}
		sp, err := spline.New(controls(frames[start:i+1]), false)
		if err != nil {
			return err
		}
		for j := start; j <= i; j++ {
			frames[j].Spline = sp
			frames[j].Index = j - start
			if j > start {
				frames[j].DistFromPrev = sp.SegmentLength(j - start - 1)
			}
		}
		start = i + 1
	}
	return nil
}

func (t *Template) computeDistances() {
	frames := t.KeyFrames
	n := len(frames)

	if !t.HasStops {
		var total float64
		for i := range frames {
			total += frames[i].DistFromPrev
		}
		var since float64
		for i := range frames {
			if i > 0 {
				since += frames[i].DistFromPrev
			}
			frames[i].DistSinceStop = since
			frames[i].DistUntilStop = total - since
			frames[i].StretchLength = total
		}
		return
	}

	first, last := -1, -1
	for i := range frames {
		if frames[i].IsStop() {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	// Forward from the last stop so every frame sees its previous stop.
	var acc float64
	for k := 0; k < n; k++ {
		j := (last + k) % n
		if frames[j].IsStop() {
			acc = 0
		} else {
			acc += frames[j].DistFromPrev
		}
		frames[j].DistSinceStop = acc
	}

	// Backward from the first stop so every frame sees its next stop.
	acc = 0
	for k := n - 1; k >= 0; k-- {
		j := (first + k) % n
		acc += frames[(j+1)%n].DistFromPrev
		if frames[j].IsStop() {
			frames[j].DistUntilStop = 0
			frames[j].StretchLength = acc
			acc = 0
			continue
		}
		frames[j].DistUntilStop = acc
		frames[j].StretchLength = frames[j].DistSinceStop + acc
	}
}

func (t *Template) computeTimes() {
	frames := t.KeyFrames
	n := len(frames)
	speed, accel := t.Info.Speed, t.Info.Accel

	if !t.HasStops {
		for i := range frames {
			frames[i].TimeTo = frames[i].DistUntilStop / speed
			frames[i].TimeFrom = frames[i].DistSinceStop / speed
		}
		return
	}

	last := 0
	for i := range frames {
		frames[i].TimeTo = TimeToStop(frames[i].StretchLength, frames[i].DistSinceStop, speed, accel)
		if frames[i].IsStop() {
			last = i
		}
	}

	var stretchTime float64
	for k := 0; k < n; k++ {
		j := (last + k) % n
		if frames[j].IsStop() {
			stretchTime = frames[j].TimeTo
		}
		frames[j].TimeFrom = math.Max(stretchTime-frames[j].TimeTo, 0)
	}
}

func (t *Template) computePathTimes() {
	frames := t.KeyFrames
	var cur float64
	for i := range frames {
		if i > 0 {
			cur += t.SegmentTime(i - 1)
		}
		frames[i].PathTime = toMillis(cur)
		if frames[i].IsStop() {
			cur += float64(frames[i].Node.Delay)
		}
		frames[i].DepartureTime = toMillis(cur)
	}
	t.Period = toMillis(cur + t.SegmentTime(len(frames)-1))
}

func toMillis(sec float64) uint32 {
	return uint32(math.Round(sec * 1000))
}

// SegmentTime returns the seconds spent travelling from frame i to the
// frame after it. Departing a teleport frame takes no time.
func (t *Template) SegmentTime(i int) float64 {
	if len(t.KeyFrames) < 2 {
		return 0
	}
	cur := &t.KeyFrames[i]
	if cur.Teleport {
		return 0
	}
	next := &t.KeyFrames[t.Next(i)]
	if !t.HasStops {
		return next.DistFromPrev / t.Info.Speed
	}
	if next.IsStop() {
		return math.Max(cur.TimeTo, 0)
	}
	return math.Max(cur.TimeTo-next.TimeTo, 0)
}

// SegmentProgress returns the spline parameter in [0, 1] of a transport
// that departed frame i elapsed seconds ago.
func (t *Template) SegmentProgress(i int, elapsed float64) float64 {
	cur := &t.KeyFrames[i]
	next := &t.KeyFrames[t.Next(i)]
	if next.DistFromPrev <= 0 {
		return 0
	}

	var pos float64
	if !t.HasStops {
		pos = elapsed * t.Info.Speed
	} else {
		speed, accel := t.Info.Speed, t.Info.Accel
		since := cur.TimeFrom + elapsed
		until := cur.TimeTo - elapsed
		if since < until {
			pos = Travelled(since, speed, accel) - cur.DistSinceStop
		} else {
			pos = (cur.StretchLength - cur.DistSinceStop) - Travelled(until, speed, accel)
		}
	}

	p := pos / next.DistFromPrev
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
