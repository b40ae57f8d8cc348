package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OCAP2/transport/internal/transport"
	"github.com/OCAP2/transport/pkg/core"
)

var (
	ErrMapNotFound     = errors.New("map not found")
	ErrInstanceable    = errors.New("map is instanceable and has no base instance")
	ErrNotInstanceable = errors.New("map cannot be instanced")
	ErrForeignRegion   = errors.New("region is not managed by this world")
)

type mapKey struct {
	id       uint32
	instance uint32
}

// Options configures a Manager.
type Options struct {
	Logger   *slog.Logger
	Observer Observer
	// InstanceableMaps lists the maps that only exist as instances.
	InstanceableMaps []uint32
	// Concurrency is the number of maps ticked in parallel by Update.
	// Zero or one ticks them one after another in id order.
	Concurrency int
}

// Manager owns every map and implements transport.Regions.
type Manager struct {
	logger       *slog.Logger
	observer     Observer
	instanceable map[uint32]bool
	concurrency  int

	mu           sync.RWMutex
	maps         map[mapKey]*Map
	pending      []*Map
	nextInstance uint32
	onCreate     []func(*Map)
	onUnload     []func(*Map)
}

// NewManager creates an empty world.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	inst := make(map[uint32]bool, len(opts.InstanceableMaps))
	for _, id := range opts.InstanceableMaps {
		inst[id] = true
	}
	return &Manager{
		logger:       logger,
		observer:     observer,
		instanceable: inst,
		concurrency:  opts.Concurrency,
		maps:         make(map[mapKey]*Map),
	}
}

// OnInstanceCreated registers a hook that runs on the first turn of every
// new instance.
func (w *Manager) OnInstanceCreated(fn func(*Map)) {
	w.mu.Lock()
	w.onCreate = append(w.onCreate, fn)
	w.mu.Unlock()
}

// OnUnload registers a hook that runs on the last turn of a map.
func (w *Manager) OnUnload(fn func(*Map)) {
	w.mu.Lock()
	w.onUnload = append(w.onUnload, fn)
	w.mu.Unlock()
}

// IsInstanceable reports whether the map only exists as instances.
func (w *Manager) IsInstanceable(mapID uint32) bool {
	return w.instanceable[mapID]
}

// Base returns the shared instance of a map, creating it on first use.
func (w *Manager) Base(mapID uint32) (*Map, error) {
	if w.instanceable[mapID] {
		return nil, fmt.Errorf("map %d: %w", mapID, ErrInstanceable)
	}
	key := mapKey{id: mapID}

	w.mu.RLock()
	m, ok := w.maps[key]
	w.mu.RUnlock()
	if ok {
		return m, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if m, ok := w.maps[key]; ok {
		return m, nil
	}
	m = newMap(mapID, 0, false, 0, w.logger, w.observer)
	w.maps[key] = m
	w.logger.Info("map created", "map", mapID)
	return m, nil
}

// BaseRegion implements transport.Regions.
func (w *Manager) BaseRegion(mapID uint32) (transport.Region, error) {
	m, err := w.Base(mapID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateInstance creates a new instance of an instanceable map. The
// instance creation hooks run on its first turn.
func (w *Manager) CreateInstance(mapID uint32, difficulty uint8) (*Map, error) {
	if !w.instanceable[mapID] {
		return nil, fmt.Errorf("map %d: %w", mapID, ErrNotInstanceable)
	}

	w.mu.Lock()
	w.nextInstance++
	m := newMap(mapID, w.nextInstance, true, difficulty, w.logger, w.observer)
	w.maps[mapKey{id: mapID, instance: m.instanceID}] = m
	hooks := append([]func(*Map){}, w.onCreate...)
	w.mu.Unlock()

	m.Enqueue(func() {
		for _, fn := range hooks {
			fn(m)
		}
	})
	w.logger.Info("instance created", "map", mapID, "instance", m.instanceID, "difficulty", difficulty)
	return m, nil
}

// Map returns a loaded map instance.
func (w *Manager) Map(mapID, instanceID uint32) (*Map, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.maps[mapKey{id: mapID, instance: instanceID}]
	return m, ok
}

// Maps returns every loaded map ordered by id and instance.
func (w *Manager) Maps() []*Map {
	w.mu.RLock()
	out := make([]*Map, 0, len(w.maps))
	for _, m := range w.maps {
		out = append(out, m)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].id != out[j].id {
			return out[i].id < out[j].id
		}
		return out[i].instanceID < out[j].instanceID
	})
	return out
}

// UnloadInstance schedules an instance for unload. It is emptied on its
// next turn.
func (w *Manager) UnloadInstance(mapID, instanceID uint32) error {
	key := mapKey{id: mapID, instance: instanceID}
	w.mu.Lock()
	m, ok := w.maps[key]
	if ok {
		delete(w.maps, key)
		w.pending = append(w.pending, m)
	}
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("map %d instance %d: %w", mapID, instanceID, ErrMapNotFound)
	}
	m.closing.Store(true)
	return nil
}

// TransferPlayer moves a player and the pets it owns into another map.
func (w *Manager) TransferPlayer(player transport.Passenger, to transport.Region, pos core.Position) error {
	dest, ok := to.(*Map)
	if !ok {
		return ErrForeignRegion
	}
	from := w.locate(player.GUID())
	if from == nil {
		return fmt.Errorf("player %s: %w", player.GUID(), ErrNotOnMap)
	}

	movers := []transport.Entity{player}
	if from != dest {
		for _, e := range from.Objects() {
			if o, ok := e.(transport.Owned); ok && o.OwnerGUID() == player.GUID() {
				movers = append(movers, e)
			}
		}
		for _, e := range movers {
			from.Remove(e)
			if err := dest.Add(e); err != nil {
				return err
			}
		}
	}
	for _, e := range movers {
		if err := dest.Relocate(e, pos); err != nil {
			return err
		}
	}
	dest.LoadGrid(pos.X, pos.Y)

	w.observer.Transferred(player.GUID(), from.id, dest.id, pos)
	w.logger.Debug("player transferred", "player", player.GUID().String(), "from", from.id, "to", dest.id, "pets", len(movers)-1)
	return nil
}

func (w *Manager) locate(guid core.GUID) *Map {
	for _, m := range w.Maps() {
		if _, ok := m.Object(guid); ok {
			return m
		}
	}
	return nil
}

// Update runs one turn of every map: ticks first, then queued tasks, so a
// handoff queued by one map is picked up in the same round.
func (w *Manager) Update(diff uint32) {
	maps := w.Maps()

	w.each(maps, func(m *Map) { m.Tick(diff) })
	w.each(maps, func(m *Map) { m.RunTasks() })
	w.reap(nil)
}

func (w *Manager) each(maps []*Map, fn func(*Map)) {
	if w.concurrency <= 1 {
		for _, m := range maps {
			fn(m)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, m := range maps {
		g.Go(func() error {
			fn(m)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Manager) unloadHooks() []func(*Map) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]func(*Map){}, w.onUnload...)
}

// reap unloads the pending maps that no goroutine is running.
func (w *Manager) reap(running map[*Map]bool) {
	w.mu.Lock()
	var keep, now []*Map
	for _, m := range w.pending {
		switch {
		case m.done.Load():
		case running[m]:
			keep = append(keep, m)
		default:
			now = append(now, m)
		}
	}
	w.pending = keep
	w.mu.Unlock()

	for _, m := range now {
		m.unload(w.unloadHooks())
	}
}

// Run ticks every map on its own goroutine until ctx is canceled. Maps
// created while running are picked up on the next tick.
func (w *Manager) Run(ctx context.Context, tick time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	running := make(map[*Map]bool)

	launch := func() {
		for _, m := range w.Maps() {
			if running[m] {
				continue
			}
			running[m] = true
			g.Go(func() error { return w.runMap(ctx, m, tick) })
		}
	}

	launch()
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case <-t.C:
			launch()
			w.reap(running)
		}
	}
}

func (w *Manager) runMap(ctx context.Context, m *Map, tick time.Duration) error {
	t := time.NewTicker(tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			diff := now.Sub(last) / time.Millisecond
			last = last.Add(diff * time.Millisecond)
			m.Update(uint32(diff))
			if m.Closing() {
				m.unload(w.unloadHooks())
				return nil
			}
		}
	}
}
