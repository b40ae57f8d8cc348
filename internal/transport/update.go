package transport

import (
	"errors"
	"time"

	"github.com/OCAP2/transport/internal/dispatcher"
	"github.com/OCAP2/transport/internal/geo"
	"github.com/OCAP2/transport/internal/path"
	"github.com/OCAP2/transport/pkg/core"
)

// Update advances the transport by diff milliseconds.
func (t *Transport) Update(diff uint32) {
	if t.tmpl.Degenerate() {
		return
	}
	start := time.Now()
	defer func() {
		t.publish()
		t.metrics.ObserveTick(t.tmpl.Info.Entry, time.Since(start))
	}()

	if t.enabled {
		t.clock += uint64(diff)
	}
	t.sinceUpdate += diff

	advanced := t.advance()
	if !t.enabled {
		return
	}

	switch {
	case t.state == StateStopped && advanced:
		t.sinceUpdate = 0
		t.updatePosition(t.framePosition())
	case t.state == StateMoving && (advanced || t.sinceUpdate >= t.interval):
		t.sinceUpdate = 0
		t.updatePosition(t.pathPosition())
	}
}

// advance runs the frame state machine until the clock falls inside a
// stop or a segment. It reports whether the frame or state changed.
func (t *Transport) advance() bool {
	frames := t.tmpl.KeyFrames
	period := uint64(t.tmpl.Period)
	changed := false

	// A stalled server skips whole loops instead of replaying them.
	if behind := t.clock - t.loopStart; behind >= 2*period {
		t.loopStart += (behind/period - 1) * period
	}

	for {
		cur := &frames[t.current]

		if !t.arrivalFired && t.clock >= t.loopStart+uint64(cur.PathTime) {
			t.arrivalFired = true
			t.fire(cur, dispatcher.Arrival)
		}

		if t.clock < t.loopStart+uint64(cur.DepartureTime) {
			if t.state != StateStopped {
				t.state = StateStopped
				changed = true
			}
			return changed
		}

		if !t.departureFired {
			t.departureFired = true
			t.fire(cur, dispatcher.Departure)
		}
		if t.state != StateMoving {
			t.state = StateMoving
			changed = true
		}

		if t.clock < t.nextArrival() {
			return changed
		}

		departed := t.current
		t.current = t.next
		t.next = t.tmpl.Next(t.next)
		if t.current == 0 {
			t.loopStart += period
		}
		t.arrivalFired = false
		t.departureFired = false
		changed = true

		if frames[departed].Teleport {
			dest := &frames[t.current]
			if !t.teleport(dest.MapID(), dest.Position()) {
				// The destination map continues the path on its own turn.
				return changed
			}
		}
	}
}

func (t *Transport) nextArrival() uint64 {
	if t.next == 0 {
		return t.loopStart + uint64(t.tmpl.Period)
	}
	return t.loopStart + uint64(t.tmpl.KeyFrames[t.next].PathTime)
}

// framePosition is the pose of a transport waiting at its current frame.
func (t *Transport) framePosition() core.Position {
	pos := t.tmpl.KeyFrames[t.current].Position()
	pos.O = t.pos.O
	return pos
}

// pathPosition evaluates the spline of the current segment at the
// present clock.
func (t *Transport) pathPosition() core.Position {
	cur := &t.tmpl.KeyFrames[t.current]
	if cur.Spline == nil {
		return t.framePosition()
	}
	var elapsed float64
	if dep := t.loopStart + uint64(cur.DepartureTime); t.clock > dep {
		elapsed = float64(t.clock-dep) / 1000
	}
	u := t.tmpl.SegmentProgress(t.current, elapsed)

	p := cur.Spline.Evaluate(cur.Index, u)
	pos := core.Position{X: p.X(), Y: p.Y(), Z: p.Z(), O: t.pos.O}
	if d := cur.Spline.Derivative(cur.Index, u); d.Vec2().Len() > 1e-9 {
		pos.O = geo.Heading(d)
	}
	return pos
}

func (t *Transport) fire(frame *path.KeyFrame, kind dispatcher.Kind) {
	id := frame.Node.ArrivalEventID
	if kind == dispatcher.Departure {
		id = frame.Node.DepartureEventID
	}
	if id == 0 {
		return
	}
	t.metrics.EventFired(kind.String())
	if t.events == nil {
		return
	}

	t.logger.Debug("path event", "event", id, "kind", kind.String(), "node", frame.Node.Index)
	_, err := t.events.Dispatch(dispatcher.Event{
		ID:        id,
		Kind:      kind,
		Transport: t.guid,
		Entry:     t.tmpl.Info.Entry,
		MapID:     t.MapID(),
		Position:  t.pos,
		Timestamp: time.Now(),
	})
	switch {
	case errors.Is(err, dispatcher.ErrNoHandler):
		t.logger.Debug("no script for path event", "event", id)
	case err != nil:
		t.logger.Error("path event failed", "event", id, "error", err)
	}
}
