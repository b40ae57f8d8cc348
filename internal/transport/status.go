package transport

import (
	"log/slog"

	"github.com/OCAP2/transport/pkg/core"
)

// Status is a snapshot of a transport published at the end of each tick.
// It is safe to read from any goroutine.
type Status struct {
	GUID       core.GUID
	Entry      uint32
	Name       string
	MapID      uint32
	InstanceID uint32
	Position   core.Position
	State      State
	Frame      int
	Timer      uint32
	Period     uint32
	Dynamic    int
	Static     int
}

func (t *Transport) publish() {
	s := &Status{
		GUID:     t.guid,
		Entry:    t.tmpl.Info.Entry,
		Name:     t.tmpl.Info.Name,
		MapID:    t.MapID(),
		Position: t.pos,
		State:    t.state,
		Frame:    t.current,
		Timer:    t.CurrentTimer(),
		Period:   t.tmpl.Period,
		Dynamic:  t.count(Dynamic),
		Static:   t.count(Static),
	}
	if t.region != nil {
		s.InstanceID = t.region.InstanceID()
	}
	t.status.Store(s)
}

// Status returns the last published snapshot.
func (t *Transport) Status() Status {
	if s := t.status.Load(); s != nil {
		return *s
	}
	return Status{GUID: t.guid, Entry: t.tmpl.Info.Entry, Name: t.tmpl.Info.Name}
}

// logContext tags log records with the map the transport is on, or is
// travelling to, when the record is written. It runs on the owning map's
// turn.
func (t *Transport) logContext() []slog.Attr {
	if t.region == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.Uint64("map", uint64(t.region.ID())),
		slog.Uint64("instance", uint64(t.region.InstanceID())),
	}
	if t.inTransit {
		attrs = append(attrs, slog.Bool("inTransit", true))
	}
	return attrs
}
