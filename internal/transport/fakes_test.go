package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/transport/internal/dispatcher"
	"github.com/OCAP2/transport/internal/path"
	"github.com/OCAP2/transport/pkg/core"
)

type fakeEntity struct {
	guid      core.GUID
	typ       core.TypeID
	mapID     uint32
	pos       core.Position
	transport *Transport
	owner     core.GUID
}

func newEntity(typ core.TypeID, low uint64, mapID uint32) *fakeEntity {
	return &fakeEntity{guid: core.MakeGUID(typ, low), typ: typ, mapID: mapID}
}

func (e *fakeEntity) GUID() core.GUID           { return e.guid }
func (e *fakeEntity) TypeID() core.TypeID       { return e.typ }
func (e *fakeEntity) MapID() uint32             { return e.mapID }
func (e *fakeEntity) Position() core.Position   { return e.pos }
func (e *fakeEntity) Transport() *Transport     { return e.transport }
func (e *fakeEntity) SetTransport(t *Transport) { e.transport = t }
func (e *fakeEntity) OwnerGUID() core.GUID      { return e.owner }

type fakeRegion struct {
	id           uint32
	instance     uint32
	instanceable bool
	difficulty   uint8
	gridsLoaded  bool

	entities   map[core.GUID]Entity
	updatables map[core.GUID]Updatable
	tasks      []func()

	destroyed  []core.GUID
	created    []core.GUID
	outOfRange []core.GUID
	teleported []core.GUID
	loadedAt   []core.GridCoord
}

func newRegion(id uint32) *fakeRegion {
	return &fakeRegion{
		id:          id,
		gridsLoaded: true,
		entities:    make(map[core.GUID]Entity),
		updatables:  make(map[core.GUID]Updatable),
	}
}

func (r *fakeRegion) ID() uint32                     { return r.id }
func (r *fakeRegion) InstanceID() uint32             { return r.instance }
func (r *fakeRegion) Instanceable() bool             { return r.instanceable }
func (r *fakeRegion) Difficulty() uint8              { return r.difficulty }
func (r *fakeRegion) IsGridLoaded(_, _ float64) bool { return r.gridsLoaded }

func (r *fakeRegion) LoadGrid(x, y float64) {
	r.loadedAt = append(r.loadedAt, core.GridCoordFor(x, y))
}

func (r *fakeRegion) Add(e Entity) error {
	if _, ok := r.entities[e.GUID()]; ok {
		return fmt.Errorf("%s already on map %d", e.GUID(), r.id)
	}
	r.entities[e.GUID()] = e
	if fe, ok := e.(*fakeEntity); ok {
		fe.mapID = r.id
	}
	return nil
}

func (r *fakeRegion) Remove(e Entity) {
	delete(r.entities, e.GUID())
}

func (r *fakeRegion) Destroy(e Entity) {
	delete(r.entities, e.GUID())
	r.destroyed = append(r.destroyed, e.GUID())
}

func (r *fakeRegion) Relocate(e Entity, pos core.Position) error {
	if _, ok := r.entities[e.GUID()]; !ok {
		return fmt.Errorf("%s not on map %d", e.GUID(), r.id)
	}
	if fe, ok := e.(*fakeEntity); ok {
		fe.pos = pos
	}
	return nil
}

func (r *fakeRegion) SpawnStatic(s core.StaticSpawn, pos core.Position) (Passenger, error) {
	e := newEntity(s.Type, s.GUID, r.id)
	e.pos = pos
	if err := r.Add(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *fakeRegion) BroadcastOutOfRange(subject Entity, _ func(core.GUID) bool) {
	r.outOfRange = append(r.outOfRange, subject.GUID())
}

func (r *fakeRegion) BroadcastCreate(subject Entity, _ func(core.GUID) bool) {
	r.created = append(r.created, subject.GUID())
}

func (r *fakeRegion) NotifyTeleport(player Entity, _ core.Position) {
	r.teleported = append(r.teleported, player.GUID())
}

func (r *fakeRegion) AddUpdatable(u Updatable)    { r.updatables[u.GUID()] = u }
func (r *fakeRegion) RemoveUpdatable(u Updatable) { delete(r.updatables, u.GUID()) }
func (r *fakeRegion) Enqueue(task func())         { r.tasks = append(r.tasks, task) }

func (r *fakeRegion) drain() {
	tasks := r.tasks
	r.tasks = nil
	for _, task := range tasks {
		task()
	}
}

func (r *fakeRegion) hasStatic() int {
	n := 0
	for guid := range r.entities {
		if guid.Type() == core.TypeCreature && guid.Counter() >= 1000 {
			n++
		}
	}
	return n
}

type fakeRegions struct {
	maps      map[uint32]*fakeRegion
	transfers []core.GUID
}

func newRegions(rs ...*fakeRegion) *fakeRegions {
	f := &fakeRegions{maps: make(map[uint32]*fakeRegion)}
	for _, r := range rs {
		f.maps[r.id] = r
	}
	return f
}

func (f *fakeRegions) BaseRegion(mapID uint32) (Region, error) {
	r, ok := f.maps[mapID]
	if !ok {
		return nil, fmt.Errorf("map %d not found", mapID)
	}
	return r, nil
}

func (f *fakeRegions) TransferPlayer(player Passenger, to Region, pos core.Position) error {
	old, ok := f.maps[player.MapID()]
	if !ok {
		return errors.New("player is nowhere")
	}
	dest := to.(*fakeRegion)
	f.transfers = append(f.transfers, player.GUID())

	move := []Entity{player}
	for _, e := range old.entities {
		if o, ok := e.(Owned); ok && o.OwnerGUID() == player.GUID() {
			move = append(move, e)
		}
	}
	for _, e := range move {
		old.Remove(e)
		if err := dest.Add(e); err != nil {
			return err
		}
	}
	return dest.Relocate(player, pos)
}

type fakeSpawns struct {
	spawns map[uint32][]core.StaticSpawn
	calls  int
}

func (f *fakeSpawns) StaticPassengers(mapID uint32, _ uint8) ([]core.StaticSpawn, error) {
	f.calls++
	return f.spawns[mapID], nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []dispatcher.Event
}

func (f *fakeEvents) Dispatch(e dispatcher.Event) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil, nil
}

func (f *fakeEvents) count(id uint32, kind dispatcher.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.ID == id && e.Kind == kind {
			n++
		}
	}
	return n
}

type fakeMetrics struct {
	ticks       int
	fired       map[string]int
	cross, same int
}

func newMetrics() *fakeMetrics { return &fakeMetrics{fired: make(map[string]int)} }

func (m *fakeMetrics) ObserveTick(uint32, time.Duration) { m.ticks++ }
func (m *fakeMetrics) EventFired(kind string)            { m.fired[kind]++ }
func (m *fakeMetrics) RegionTransition(cross bool) {
	if cross {
		m.cross++
	} else {
		m.same++
	}
}
func (m *fakeMetrics) PassengersChanged(uint32, int, int) {}

type fakeSource struct {
	infos []core.TransportInfo
	nodes map[uint32][]core.WaypointNode
	saved map[uint32]uint32
}

func (f *fakeSource) TransportTemplates(_ context.Context) ([]core.TransportInfo, error) {
	return f.infos, nil
}

func (f *fakeSource) PathNodes(_ context.Context, pathID uint32) ([]core.WaypointNode, error) {
	return f.nodes[pathID], nil
}

func (f *fakeSource) SavePeriod(_ context.Context, entry uint32, period uint32) error {
	if f.saved == nil {
		f.saved = make(map[uint32]uint32)
	}
	f.saved[entry] = period
	return nil
}

type node struct {
	mapID     uint32
	x, y      float64
	action    core.NodeAction
	delay     uint32
	arrival   uint32
	departure uint32
}

// pathNodes wraps the nodes in the sentinel nodes every stored path
// carries.
func pathNodes(pathID uint32, ns ...node) []core.WaypointNode {
	first, last := ns[0], ns[len(ns)-1]
	out := []core.WaypointNode{{PathID: pathID, MapID: first.mapID, X: first.x - 1, Y: first.y}}
	for i, n := range ns {
		out = append(out, core.WaypointNode{
			PathID:           pathID,
			Index:            uint32(i + 1),
			MapID:            n.mapID,
			X:                n.x,
			Y:                n.y,
			Action:           n.action,
			Delay:            n.delay,
			ArrivalEventID:   n.arrival,
			DepartureEventID: n.departure,
		})
	}
	return append(out, core.WaypointNode{PathID: pathID, MapID: last.mapID, X: last.x + 1, Y: last.y})
}

func square(mapID uint32, size float64) []node {
	return []node{
		{mapID: mapID, x: 0, y: 0},
		{mapID: mapID, x: size, y: 0},
		{mapID: mapID, x: size, y: size},
		{mapID: mapID, x: 0, y: size},
	}
}

func mustTemplate(info core.TransportInfo, nodes []core.WaypointNode) *path.Template {
	tmpl, err := path.Generate(info, nodes)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// tick advances the transport in fixed steps for total milliseconds.
func tick(t *Transport, step, total uint32) {
	for total > 0 {
		d := step
		if d > total {
			d = total
		}
		t.Update(d)
		total -= d
	}
}
