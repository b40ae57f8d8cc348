// Package world keeps the in-memory maps transports travel through. Each
// map owns its objects and runs its updatables and queued tasks on its
// own turn.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/transport/internal/queue"
	"github.com/OCAP2/transport/internal/transport"
	"github.com/OCAP2/transport/pkg/core"
)

var (
	ErrDuplicateObject = errors.New("object already on map")
	ErrNotOnMap        = errors.New("object not on map")
	ErrInvalidPosition = errors.New("position outside map bounds")
)

// Map is one map instance.
type Map struct {
	id           uint32
	instanceID   uint32
	instanceable bool
	difficulty   uint8
	logger       *slog.Logger
	observer     Observer

	mu         sync.RWMutex
	objects    map[core.GUID]transport.Entity
	grids      map[core.GridCoord]struct{}
	updatables map[core.GUID]transport.Updatable

	tasks    *queue.Queue[func()]
	closing  atomic.Bool
	done     atomic.Bool
	finalize sync.Once
}

func newMap(id, instanceID uint32, instanceable bool, difficulty uint8, logger *slog.Logger, observer Observer) *Map {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Map{
		id:           id,
		instanceID:   instanceID,
		instanceable: instanceable,
		difficulty:   difficulty,
		logger:       logger.With("map", id, "instance", instanceID),
		observer:     observer,
		objects:      make(map[core.GUID]transport.Entity),
		grids:        make(map[core.GridCoord]struct{}),
		updatables:   make(map[core.GUID]transport.Updatable),
		tasks:        queue.New[func()](),
	}
}

func (m *Map) ID() uint32         { return m.id }
func (m *Map) InstanceID() uint32 { return m.instanceID }
func (m *Map) Instanceable() bool { return m.instanceable }
func (m *Map) Difficulty() uint8  { return m.difficulty }

func (m *Map) String() string {
	return fmt.Sprintf("map %d/%d", m.id, m.instanceID)
}

// IsGridLoaded reports whether the grid containing (x, y) is active.
func (m *Map) IsGridLoaded(x, y float64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grids[core.GridCoordFor(x, y)]
	return ok
}

// LoadGrid activates the grid containing (x, y).
func (m *Map) LoadGrid(x, y float64) {
	g := core.GridCoordFor(x, y)
	m.mu.Lock()
	_, ok := m.grids[g]
	m.grids[g] = struct{}{}
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("grid loaded", "gridX", g.X, "gridY", g.Y)
	}
}

// LoadedGrids returns the active grids.
func (m *Map) LoadedGrids() []core.GridCoord {
	m.mu.RLock()
	out := make([]core.GridCoord, 0, len(m.grids))
	for g := range m.grids {
		out = append(out, g)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

// UnloadGrid deactivates the grid containing (x, y) and destroys the
// creatures and game objects inside it. Passengers are taken off their
// transport first. Players and transports are kept. It returns the number
// of destroyed objects and must run on the map's turn.
func (m *Map) UnloadGrid(x, y float64) int {
	g := core.GridCoordFor(x, y)

	m.mu.Lock()
	delete(m.grids, g)
	var victims []transport.Entity
	for _, e := range m.objects {
		switch e.TypeID() {
		case core.TypePlayer, core.TypeTransport:
			continue
		}
		p := e.Position()
		if core.GridCoordFor(p.X, p.Y) == g {
			victims = append(victims, e)
		}
	}
	m.mu.Unlock()

	for _, e := range victims {
		m.Destroy(e)
	}
	m.logger.Debug("grid unloaded", "gridX", g.X, "gridY", g.Y, "destroyed", len(victims))
	return len(victims)
}

// Add places an entity on the map. Players activate the grid they stand in.
func (m *Map) Add(e transport.Entity) error {
	m.mu.Lock()
	if _, ok := m.objects[e.GUID()]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%s on %s: %w", e.GUID(), m, ErrDuplicateObject)
	}
	m.objects[e.GUID()] = e
	if e.TypeID() == core.TypePlayer {
		p := e.Position()
		m.grids[core.GridCoordFor(p.X, p.Y)] = struct{}{}
	}
	m.mu.Unlock()

	if o, ok := e.(*Object); ok {
		o.setMap(m.id)
	}
	return nil
}

// Remove detaches an entity without destroying it.
func (m *Map) Remove(e transport.Entity) {
	m.mu.Lock()
	delete(m.objects, e.GUID())
	m.mu.Unlock()
}

// Destroy removes an entity for good. A destroyed passenger leaves its
// transport.
func (m *Map) Destroy(e transport.Entity) {
	m.Remove(e)
	if p, ok := e.(transport.Passenger); ok {
		if t := p.Transport(); t != nil {
			t.RemovePassenger(e.GUID())
			p.SetTransport(nil)
		}
	}
	if o, ok := e.(*Object); ok {
		o.ExitVehicle()
	}
}

// Relocate moves an entity without movement side effects.
func (m *Map) Relocate(e transport.Entity, pos core.Position) error {
	if !core.IsValidMapCoord(pos) {
		return fmt.Errorf("%s to (%.2f, %.2f): %w", e.GUID(), pos.X, pos.Y, ErrInvalidPosition)
	}
	m.mu.RLock()
	_, ok := m.objects[e.GUID()]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s on %s: %w", e.GUID(), m, ErrNotOnMap)
	}
	if o, ok := e.(*Object); ok {
		o.setPosition(pos)
	}
	m.observer.Moved(m.id, e.GUID(), pos)
	return nil
}

// SpawnStatic creates a template-bound passenger at pos.
func (m *Map) SpawnStatic(spawn core.StaticSpawn, pos core.Position) (transport.Passenger, error) {
	typ := spawn.Type
	if typ == core.TypeNone {
		typ = core.TypeCreature
	}
	o := NewObject(core.MakeGUID(typ, spawn.GUID), spawn.Entry, pos)
	o.static = true
	if err := m.Add(o); err != nil {
		return nil, err
	}
	return o, nil
}

// Object looks up an entity by GUID.
func (m *Map) Object(guid core.GUID) (transport.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.objects[guid]
	return e, ok
}

// Objects returns every entity on the map ordered by GUID.
func (m *Map) Objects() []transport.Entity {
	m.mu.RLock()
	out := make([]transport.Entity, 0, len(m.objects))
	for _, e := range m.objects {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].GUID() < out[j].GUID() })
	return out
}

// Players returns the players on the map ordered by GUID.
func (m *Map) Players() []transport.Entity {
	var out []transport.Entity
	for _, e := range m.Objects() {
		if e.TypeID() == core.TypePlayer {
			out = append(out, e)
		}
	}
	return out
}

// BroadcastOutOfRange tells every player but the skipped ones that the
// subject left their view.
func (m *Map) BroadcastOutOfRange(subject transport.Entity, skip func(core.GUID) bool) {
	for _, p := range m.Players() {
		if p.GUID() == subject.GUID() || (skip != nil && skip(p.GUID())) {
			continue
		}
		m.observer.OutOfRange(m.id, p.GUID(), subject.GUID())
	}
}

// BroadcastCreate tells every player but the skipped ones about the subject.
func (m *Map) BroadcastCreate(subject transport.Entity, skip func(core.GUID) bool) {
	for _, p := range m.Players() {
		if p.GUID() == subject.GUID() || (skip != nil && skip(p.GUID())) {
			continue
		}
		m.observer.Created(m.id, p.GUID(), subject)
	}
}

// NotifyTeleport sends a near teleport to a player.
func (m *Map) NotifyTeleport(player transport.Entity, pos core.Position) {
	m.observer.Teleported(m.id, player.GUID(), pos)
}

func (m *Map) AddUpdatable(u transport.Updatable) {
	m.mu.Lock()
	m.updatables[u.GUID()] = u
	m.mu.Unlock()
}

func (m *Map) RemoveUpdatable(u transport.Updatable) {
	m.mu.Lock()
	delete(m.updatables, u.GUID())
	m.mu.Unlock()
}

// Updatables returns the ticked objects ordered by GUID.
func (m *Map) Updatables() []transport.Updatable {
	m.mu.RLock()
	out := make([]transport.Updatable, 0, len(m.updatables))
	for _, u := range m.updatables {
		out = append(out, u)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].GUID() < out[j].GUID() })
	return out
}

// Enqueue runs the task on the map's next turn. Safe from any goroutine.
func (m *Map) Enqueue(task func()) {
	m.tasks.Push(task)
}

// PendingTasks returns the number of queued tasks.
func (m *Map) PendingTasks() int {
	return m.tasks.Len()
}

// Tick advances every updatable by diff milliseconds.
func (m *Map) Tick(diff uint32) {
	for _, u := range m.Updatables() {
		u.Update(diff)
	}
}

// RunTasks runs the tasks queued before the call and returns how many ran.
func (m *Map) RunTasks() int {
	tasks := m.tasks.Drain()
	for _, task := range tasks {
		task()
	}
	return len(tasks)
}

// Update is one full turn of the map.
func (m *Map) Update(diff uint32) {
	m.Tick(diff)
	m.RunTasks()
}

// Closing reports whether the map is scheduled for unload.
func (m *Map) Closing() bool {
	return m.closing.Load()
}

// unload runs the unload hooks and empties the map. It runs once, on the
// map's last turn.
func (m *Map) unload(hooks []func(*Map)) {
	m.finalize.Do(func() {
		for _, fn := range hooks {
			fn(m)
		}
		m.RunTasks()

		destroyed := 0
		for _, e := range m.Objects() {
			if e.TypeID() == core.TypePlayer {
				m.Remove(e)
				continue
			}
			m.Destroy(e)
			destroyed++
		}
		m.mu.Lock()
		m.updatables = make(map[core.GUID]transport.Updatable)
		m.grids = make(map[core.GridCoord]struct{})
		m.mu.Unlock()

		m.done.Store(true)
		m.logger.Info("map unloaded", "destroyed", destroyed)
	})
}
