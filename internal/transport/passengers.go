package transport

import (
	"github.com/OCAP2/transport/internal/geo"
	"github.com/OCAP2/transport/pkg/core"
)

// Membership tells how a passenger came aboard.
type Membership uint8

const (
	// Dynamic passengers boarded explicitly and stay for the transport's lifetime.
	Dynamic Membership = iota
	// Static passengers come from template data and live only while the
	// transport's grid is active.
	Static
)

func (m Membership) String() string {
	if m == Static {
		return "static"
	}
	return "dynamic"
}

type passenger struct {
	entity     Passenger
	offset     core.Position
	membership Membership
}

// PassengerInfo is a read-only view of one passenger.
type PassengerInfo struct {
	GUID       core.GUID
	Type       core.TypeID
	Offset     core.Position
	Membership Membership
}

// Board adds an entity as a dynamic passenger at the given local offset.
// Boarding an existing passenger updates its offset and makes it dynamic.
func (t *Transport) Board(p Passenger, offset core.Position) error {
	if p == nil {
		return ErrNilPassenger
	}
	if p.GUID() == t.guid {
		return ErrBoardSelf
	}
	if other := p.Transport(); other != nil && other != t {
		other.Unboard(p)
	}

	offset.O = geo.NormalizeOrientation(offset.O)
	if existing, ok := t.passengers[p.GUID()]; ok {
		existing.offset = offset
		existing.membership = Dynamic
	} else {
		t.passengers[p.GUID()] = &passenger{entity: p, offset: offset, membership: Dynamic}
	}
	p.SetTransport(t)
	t.reportPassengers()
	return nil
}

// BoardAt boards an entity keeping its current world pose.
func (t *Transport) BoardAt(p Passenger) error {
	if p == nil {
		return ErrNilPassenger
	}
	return t.Board(p, t.WorldToLocal(p.Position()))
}

// Unboard removes a passenger. Calling it for an entity that is not aboard
// does nothing.
func (t *Transport) Unboard(p Passenger) {
	if p == nil {
		return
	}
	if t.RemovePassenger(p.GUID()) && p.Transport() == t {
		p.SetTransport(nil)
	}
}

// RemovePassenger drops a passenger from the table and reports whether it
// was aboard. Map teardown calls it for passengers it destroys.
func (t *Transport) RemovePassenger(guid core.GUID) bool {
	p, ok := t.passengers[guid]
	if !ok {
		return false
	}
	delete(t.passengers, guid)
	if p.membership == Static && t.count(Static) == 0 {
		t.staticsLoaded = false
	}
	t.reportPassengers()
	return true
}

// IsPassenger reports whether the entity is aboard.
func (t *Transport) IsPassenger(guid core.GUID) bool {
	_, ok := t.passengers[guid]
	return ok
}

// PassengerOffset returns the stored local offset of a passenger.
func (t *Transport) PassengerOffset(guid core.GUID) (core.Position, bool) {
	p, ok := t.passengers[guid]
	if !ok {
		return core.Position{}, false
	}
	return p.offset, true
}

// Passengers returns a snapshot of the passenger table.
func (t *Transport) Passengers() []PassengerInfo {
	out := make([]PassengerInfo, 0, len(t.passengers))
	for guid, p := range t.passengers {
		out = append(out, PassengerInfo{GUID: guid, Type: p.entity.TypeID(), Offset: p.offset, Membership: p.membership})
	}
	return out
}

// PassengerCount returns the number of passengers with the membership.
func (t *Transport) PassengerCount(m Membership) int {
	return t.count(m)
}

func (t *Transport) count(m Membership) int {
	n := 0
	for _, p := range t.passengers {
		if p.membership == m {
			n++
		}
	}
	return n
}

func (t *Transport) reportPassengers() {
	t.metrics.PassengersChanged(t.tmpl.Info.Entry, t.count(Dynamic), t.count(Static))
}

// updatePosition moves the transport, resynchronizes its passengers and
// loads or unloads static passengers when it crosses grid activity.
func (t *Transport) updatePosition(pos core.Position) {
	if t.inTransit || t.region == nil {
		t.pos = pos
		return
	}
	if !core.IsValidMapCoord(pos) {
		t.logger.Warn("invalid transport position, keeping last pose", "x", pos.X, "y", pos.Y, "z", pos.Z)
		return
	}

	oldGrid := core.GridCoordFor(t.pos.X, t.pos.Y)
	newActive := t.region.IsGridLoaded(pos.X, pos.Y)

	if err := t.region.Relocate(t, pos); err != nil {
		t.logger.Warn("failed to relocate transport", "error", err)
		return
	}
	t.pos = pos

	t.syncPositions(Dynamic)

	switch {
	case !t.staticsLoaded && newActive:
		t.loadStaticPassengers()
	case t.staticsLoaded && !newActive && oldGrid != core.GridCoordFor(pos.X, pos.Y):
		t.unloadStaticPassengers()
	default:
		t.syncPositions(Static)
	}
}

// syncPositions reprojects every passenger of the membership that shares
// the transport's map. Riders of nested vehicles follow their vehicle.
func (t *Transport) syncPositions(m Membership) {
	mapID := t.MapID()
	for _, p := range t.passengers {
		if p.membership != m {
			continue
		}
		e := p.entity
		if e.MapID() != mapID {
			continue
		}
		if r, ok := e.(Rider); ok && r.OnVehicle() {
			continue
		}
		if err := t.region.Relocate(e, geo.LocalToWorld(p.offset, t.pos)); err != nil {
			t.logger.Debug("failed to relocate passenger", "passenger", e.GUID().String(), "error", err)
			continue
		}
		if c, ok := e.(Carrier); ok {
			c.RelocateRiders()
		}
	}
}

func (t *Transport) loadStaticPassengers() {
	t.staticsLoaded = true
	mapID := t.tmpl.Info.PassengerMapID
	if mapID == 0 || t.spawns == nil {
		return
	}

	spawns, err := t.spawns.StaticPassengers(mapID, t.region.Difficulty())
	if err != nil {
		t.logger.Error("failed to load static passengers", "passengerMap", mapID, "error", err)
		return
	}

	for _, s := range spawns {
		p, err := t.region.SpawnStatic(s, geo.LocalToWorld(s.Offset, t.pos))
		if err != nil {
			t.logger.Warn("failed to spawn static passenger", "spawn", s.GUID, "entry", s.Entry, "error", err)
			continue
		}
		p.SetTransport(t)
		t.passengers[p.GUID()] = &passenger{entity: p, offset: s.Offset, membership: Static}
	}
	t.logger.Debug("static passengers loaded", "count", t.count(Static))
	t.reportPassengers()
}

func (t *Transport) unloadStaticPassengers() {
	for guid, p := range t.passengers {
		if p.membership != Static {
			continue
		}
		delete(t.passengers, guid)
		p.entity.SetTransport(nil)
		if t.region != nil {
			t.region.Destroy(p.entity)
		}
	}
	t.staticsLoaded = false
	t.reportPassengers()
}
