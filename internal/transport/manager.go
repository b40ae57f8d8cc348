package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/transport/internal/cache"
	"github.com/OCAP2/transport/internal/path"
	"github.com/OCAP2/transport/pkg/core"
)

// TemplateSource loads raw template data.
type TemplateSource interface {
	TransportTemplates(ctx context.Context) ([]core.TransportInfo, error)
	PathNodes(ctx context.Context, pathID uint32) ([]core.WaypointNode, error)
	SavePeriod(ctx context.Context, entry uint32, period uint32) error
}

// Dependencies holds the collaborators of a Manager.
type Dependencies struct {
	Templates              TemplateSource
	Spawns                 SpawnSource
	Regions                Regions
	Events                 EventDispatcher
	Metrics                Metrics
	Logger                 *slog.Logger
	PositionUpdateInterval uint32
}

// Manager owns the template repository and every live transport.
type Manager struct {
	deps      Dependencies
	logger    *slog.Logger
	templates *cache.TemplateCache
	instances *cache.InstanceIndex

	mu       sync.Mutex
	live     map[core.GUID]*Transport
	nextGUID atomic.Uint64
}

// NewManager creates a manager with an empty template repository.
func NewManager(deps Dependencies) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Manager{
		deps:      deps,
		logger:    logger,
		templates: cache.NewTemplateCache(),
		instances: cache.NewInstanceIndex(),
		live:      make(map[core.GUID]*Transport),
	}
}

// LoadTemplates generates the template of every transport kind. Broken
// templates are logged and skipped.
func (m *Manager) LoadTemplates(ctx context.Context) error {
	infos, err := m.deps.Templates.TransportTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load transport templates: %w", err)
	}

	m.templates.Reset()
	m.instances.Reset()

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		tmpl, err := m.loadTemplate(ctx, info)
		if err != nil {
			m.logger.Error("skipping transport template", "entry", info.Entry, "name", info.Name, "error", err)
			continue
		}
		m.AddTemplate(tmpl)

		if tmpl.Period != info.Period {
			if err := m.deps.Templates.SavePeriod(ctx, info.Entry, tmpl.Period); err != nil {
				m.logger.Warn("failed to save transport period", "entry", info.Entry, "error", err)
			}
		}
	}

	m.logger.Info("loaded transport templates", "count", m.templates.Len(), "total", len(infos))
	return nil
}

func (m *Manager) loadTemplate(ctx context.Context, info core.TransportInfo) (*path.Template, error) {
	nodes, err := m.deps.Templates.PathNodes(ctx, info.PathID)
	if err != nil {
		return nil, fmt.Errorf("path %d: %w", info.PathID, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("path %d: %w", info.PathID, path.ErrTooFewNodes)
	}
	return path.Generate(info, nodes)
}

// AddTemplate registers a generated template.
func (m *Manager) AddTemplate(tmpl *path.Template) {
	m.templates.Add(tmpl)
	if tmpl.Info.InInstance && tmpl.Len() > 0 {
		m.instances.Add(tmpl.Start().MapID(), tmpl.Info.Entry)
	}
}

// Template returns the template of a transport kind.
func (m *Manager) Template(entry uint32) (*path.Template, bool) {
	return m.templates.Get(entry)
}

// Templates returns every loaded template ordered by entry.
func (m *Manager) Templates() []*path.Template {
	return m.templates.All()
}

// CreateTransport instantiates a transport. A nil region places it on the
// base map of its first frame.
func (m *Manager) CreateTransport(entry uint32, region Region) (*Transport, error) {
	tmpl, ok := m.templates.Get(entry)
	if !ok {
		m.logger.Error("transport template not found", "entry", entry)
		return nil, fmt.Errorf("entry %d: %w", entry, ErrTemplateNotFound)
	}
	if tmpl.Len() == 0 {
		return nil, fmt.Errorf("entry %d: %w", entry, path.ErrTooFewNodes)
	}

	start := tmpl.Start()
	startPos := start.Position()
	if !core.IsValidMapCoord(startPos) {
		m.logger.Error("transport has invalid start position", "entry", entry, "x", startPos.X, "y", startPos.Y)
		return nil, fmt.Errorf("entry %d: %w", entry, ErrInvalidPosition)
	}

	if region == nil {
		if m.deps.Regions == nil {
			return nil, fmt.Errorf("entry %d: no region manager", entry)
		}
		r, err := m.deps.Regions.BaseRegion(start.MapID())
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", entry, err)
		}
		region = r
	}
	if region.Instanceable() != tmpl.Info.InInstance {
		m.logger.Error("transport instancing does not match map", "entry", entry, "map", region.ID())
		return nil, fmt.Errorf("entry %d map %d: %w", entry, region.ID(), ErrInstanceMismatch)
	}

	guid := core.MakeGUID(core.TypeTransport, m.nextGUID.Add(1))
	t := New(guid, tmpl, Options{
		PositionUpdateInterval: m.deps.PositionUpdateInterval,
		Logger:                 m.logger,
		Regions:                m.deps.Regions,
		Spawns:                 m.deps.Spawns,
		Events:                 m.deps.Events,
		Metrics:                m.deps.Metrics,
	})

	region.LoadGrid(startPos.X, startPos.Y)
	if err := t.attach(region); err != nil {
		return nil, fmt.Errorf("entry %d: %w", entry, err)
	}
	t.updatePosition(t.pos)
	t.publish()
	region.AddUpdatable(t)

	m.mu.Lock()
	m.live[guid] = t
	m.mu.Unlock()

	m.logger.Debug("transport created", "entry", entry, "name", tmpl.Info.Name, "map", region.ID(), "period", tmpl.Period)
	return t, nil
}

// SpawnContinentTransports creates every transport that does not belong to
// an instance and returns how many were created.
func (m *Manager) SpawnContinentTransports() int {
	count := 0
	for _, tmpl := range m.templates.All() {
		if tmpl.Info.InInstance {
			continue
		}
		if _, err := m.CreateTransport(tmpl.Info.Entry, nil); err != nil {
			continue
		}
		count++
	}
	m.logger.Info("spawned continent transports", "count", count)
	return count
}

// CreateInstanceTransports creates the transports registered for an
// instanced map.
func (m *Manager) CreateInstanceTransports(region Region) int {
	count := 0
	for _, entry := range m.instances.Get(region.ID()) {
		if _, err := m.CreateTransport(entry, region); err != nil {
			continue
		}
		count++
	}
	return count
}

// Transports returns the live transports ordered by GUID.
func (m *Manager) Transports() []*Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Transport, 0, len(m.live))
	for _, t := range m.live {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].guid < out[j].guid })
	return out
}

// Statuses returns the last published snapshot of every live transport
// ordered by GUID. Safe from any goroutine.
func (m *Manager) Statuses() []Status {
	live := m.Transports()
	out := make([]Status, len(live))
	for i, t := range live {
		out[i] = t.Status()
	}
	return out
}

// Remove destroys a live transport.
func (m *Manager) Remove(t *Transport) {
	m.mu.Lock()
	_, ok := m.live[t.guid]
	delete(m.live, t.guid)
	m.mu.Unlock()
	if ok {
		t.Cleanup()
	}
}

// RemoveRegion destroys every transport on the given map instance. It
// must run on that map's turn.
func (m *Manager) RemoveRegion(r Region) int {
	var doomed []*Transport
	m.mu.Lock()
	for guid, t := range m.live {
		st := t.Status()
		if st.MapID == r.ID() && st.InstanceID == r.InstanceID() {
			doomed = append(doomed, t)
			delete(m.live, guid)
		}
	}
	m.mu.Unlock()

	for _, t := range doomed {
		t.Cleanup()
	}
	return len(doomed)
}
