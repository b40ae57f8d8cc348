// Package spline implements uniform Catmull-Rom curves used to smooth
// transport paths between waypoints.
package spline

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

// stepsPerSegment is the number of chords used to approximate the arc
// length of one segment.
const stepsPerSegment = 24

var ErrNoPoints = errors.New("spline needs at least one control point")

// Spline is an immutable Catmull-Rom curve. Segment i runs from control
// point i to control point i+1; a cyclic spline has one extra segment
// closing the loop from the last point back to the first.
type Spline struct {
	points  []mgl64.Vec3 // control points padded with one virtual point on each side
	count   int          // real control points
	cyclic  bool
	lengths []float64 // cumulative arc length, lengths[i] = length of segments [0, i)
}

// New fits a spline through the given control points. A single point is
// widened to a degenerate two-point spline of zero length.
func New(controls []mgl64.Vec3, cyclic bool) (*Spline, error) {
	if len(controls) == 0 {
		return nil, ErrNoPoints
	}
	if len(controls) == 1 {
		controls = []mgl64.Vec3{controls[0], controls[0]}
		cyclic = false
	}
	if len(controls) == 2 {
		cyclic = false
	}

	n := len(controls)
	s := &Spline{count: n, cyclic: cyclic}
	s.points = make([]mgl64.Vec3, 0, n+3)
	if cyclic {
		s.points = append(s.points, controls[n-1])
		s.points = append(s.points, controls...)
		s.points = append(s.points, controls[0], controls[1])
	} else {
		s.points = append(s.points, mirror(controls[0], controls[1]))
		s.points = append(s.points, controls...)
		s.points = append(s.points, mirror(controls[n-1], controls[n-2]))
	}

	segs := s.Segments()
	s.lengths = make([]float64, segs+1)
	for i := 0; i < segs; i++ {
		s.lengths[i+1] = s.lengths[i] + s.segmentLength(i)
	}
	return s, nil
}

// mirror reflects q through p.
func mirror(p, q mgl64.Vec3) mgl64.Vec3 {
	return p.Mul(2).Sub(q)
}

// Segments returns the number of drawable segments.
func (s *Spline) Segments() int {
	if s.cyclic {
		return s.count
	}
	return s.count - 1
}

// Cyclic reports whether the curve closes on itself.
func (s *Spline) Cyclic() bool { return s.cyclic }

// Points returns the number of real control points.
func (s *Spline) Points() int { return s.count }

// SegmentLength returns the arc length of segment i, or 0 when i is out
// of range.
func (s *Spline) SegmentLength(i int) float64 {
	if i < 0 || i >= s.Segments() {
		return 0
	}
	return s.lengths[i+1] - s.lengths[i]
}

// Length returns the arc length of segments [from, to).
func (s *Spline) Length(from, to int) float64 {
	from = s.clampIndex(from)
	to = s.clampIndex(to)
	if to <= from {
		return 0
	}
	return s.lengths[to] - s.lengths[from]
}

// TotalLength returns the arc length of the whole curve.
func (s *Spline) TotalLength() float64 {
	return s.lengths[len(s.lengths)-1]
}

func (s *Spline) clampIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i > s.Segments() {
		return s.Segments()
	}
	return i
}

// Evaluate returns the point on segment i at parameter t in [0, 1].
func (s *Spline) Evaluate(i int, t float64) mgl64.Vec3 {
	i, t = s.clampParam(i, t)
	p0, p1, p2, p3 := s.window(i)
	t2 := t * t
	t3 := t2 * t

	a := p1.Mul(2)
	b := p2.Sub(p0).Mul(t)
	c := p0.Mul(2).Sub(p1.Mul(5)).Add(p2.Mul(4)).Sub(p3).Mul(t2)
	d := p1.Mul(3).Sub(p0).Sub(p2.Mul(3)).Add(p3).Mul(t3)
	return a.Add(b).Add(c).Add(d).Mul(0.5)
}

// Derivative returns the tangent of segment i at parameter t.
func (s *Spline) Derivative(i int, t float64) mgl64.Vec3 {
	i, t = s.clampParam(i, t)
	p0, p1, p2, p3 := s.window(i)
	t2 := t * t

	b := p2.Sub(p0)
	c := p0.Mul(2).Sub(p1.Mul(5)).Add(p2.Mul(4)).Sub(p3).Mul(2 * t)
	d := p1.Mul(3).Sub(p0).Sub(p2.Mul(3)).Add(p3).Mul(3 * t2)
	return b.Add(c).Add(d).Mul(0.5)
}

func (s *Spline) clampParam(i int, t float64) (int, float64) {
	last := s.Segments() - 1
	switch {
	case i < 0:
		return 0, 0
	case i > last:
		return last, 1
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return i, t
}

// window returns the four control points that shape segment i.
func (s *Spline) window(i int) (p0, p1, p2, p3 mgl64.Vec3) {
	return s.points[i], s.points[i+1], s.points[i+2], s.points[i+3]
}

func (s *Spline) segmentLength(i int) float64 {
	var length float64
	prev := s.Evaluate(i, 0)
	for step := 1; step <= stepsPerSegment; step++ {
		next := s.Evaluate(i, float64(step)/stepsPerSegment)
		length += next.Sub(prev).Len()
		prev = next
	}
	return length
}
