package world

import (
	"errors"
	"sort"
	"sync"

	"github.com/OCAP2/transport/internal/geo"
	"github.com/OCAP2/transport/internal/transport"
	"github.com/OCAP2/transport/pkg/core"
)

var ErrVehicleSelf = errors.New("object cannot ride itself")

// Object is a generic world object: a player, a creature or a game object.
// Its pose is written by the map that owns it and may be read from any
// goroutine.
type Object struct {
	mu        sync.RWMutex
	guid      core.GUID
	entry     uint32
	mapID     uint32
	pos       core.Position
	owner     core.GUID
	static    bool
	transport *transport.Transport

	vehicle *Object
	seat    core.Position
	riders  map[core.GUID]*Object
}

// NewObject creates an object that is not on any map yet.
func NewObject(guid core.GUID, entry uint32, pos core.Position) *Object {
	return &Object{guid: guid, entry: entry, pos: pos}
}

func (o *Object) GUID() core.GUID     { return o.guid }
func (o *Object) TypeID() core.TypeID { return o.guid.Type() }
func (o *Object) Entry() uint32       { return o.entry }

func (o *Object) MapID() uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mapID
}

func (o *Object) Position() core.Position {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pos
}

func (o *Object) Transport() *transport.Transport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transport
}

func (o *Object) SetTransport(t *transport.Transport) {
	o.mu.Lock()
	o.transport = t
	o.mu.Unlock()
}

// OwnerGUID returns the player that summoned the object, if any.
func (o *Object) OwnerGUID() core.GUID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

func (o *Object) SetOwner(owner core.GUID) {
	o.mu.Lock()
	o.owner = owner
	o.mu.Unlock()
}

// Static reports whether the object was spawned from template data.
func (o *Object) Static() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.static
}

// OnVehicle reports whether the object sits on another object.
func (o *Object) OnVehicle() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.vehicle != nil
}

// EnterVehicle seats the object on v at a seat offset relative to v.
func (o *Object) EnterVehicle(v *Object, seat core.Position) error {
	if v == nil || v == o {
		return ErrVehicleSelf
	}
	o.ExitVehicle()

	v.mu.Lock()
	if v.riders == nil {
		v.riders = make(map[core.GUID]*Object)
	}
	v.riders[o.guid] = o
	vpos := v.pos
	v.mu.Unlock()

	o.mu.Lock()
	o.vehicle = v
	o.seat = seat
	o.pos = geo.LocalToWorld(seat, vpos)
	o.mu.Unlock()
	return nil
}

// ExitVehicle leaves the current vehicle. It does nothing when the object
// is not seated.
func (o *Object) ExitVehicle() {
	o.mu.Lock()
	v := o.vehicle
	o.vehicle = nil
	o.mu.Unlock()
	if v == nil {
		return
	}
	v.mu.Lock()
	delete(v.riders, o.guid)
	v.mu.Unlock()
}

// Riders returns the objects seated on this one.
func (o *Object) Riders() []*Object {
	o.mu.RLock()
	out := make([]*Object, 0, len(o.riders))
	for _, r := range o.riders {
		out = append(out, r)
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].guid < out[j].guid })
	return out
}

// RelocateRiders moves every rider to its seat on the object's current pose.
func (o *Object) RelocateRiders() {
	pos := o.Position()
	for _, r := range o.Riders() {
		r.mu.Lock()
		r.pos = geo.LocalToWorld(r.seat, pos)
		r.mu.Unlock()
		r.RelocateRiders()
	}
}

func (o *Object) setMap(id uint32) {
	o.mu.Lock()
	o.mapID = id
	o.mu.Unlock()
}

func (o *Object) setPosition(pos core.Position) {
	o.mu.Lock()
	o.pos = pos
	o.mu.Unlock()
}
