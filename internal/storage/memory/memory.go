// internal/storage/memory/memory.go
package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/OCAP2/transport/internal/config"
	"github.com/OCAP2/transport/pkg/core"
)

// ErrTemplateNotFound is returned when a period is saved for an unknown entry.
var ErrTemplateNotFound = errors.New("transport template not found")

// TemplateRecord groups a template with the nodes of its path
type TemplateRecord struct {
	Info  core.TransportInfo
	Nodes []core.WaypointNode
}

// RunRecord is one daemon session
type RunRecord struct {
	SessionID  string
	StartedAt  time.Time
	EndedAt    time.Time
	Templates  int
	Transports int
}

// Backend keeps templates in memory and persists them as a JSON dataset
type Backend struct {
	cfg config.MemoryConfig

	templates map[uint32]*TemplateRecord // keyed by entry
	spawns    map[uint32][]core.StaticSpawn
	runs      []RunRecord
	dirty     bool

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:       cfg,
		templates: make(map[uint32]*TemplateRecord),
		spawns:    make(map[uint32][]core.StaticSpawn),
	}
}

// Init loads the dataset file when one is configured. A missing file is
// only accepted with write-back, where Close creates it.
func (b *Backend) Init() error {
	if b.cfg.File == "" {
		return nil
	}
	err := b.LoadFile(b.cfg.File)
	if b.cfg.WriteBack && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Close writes the dataset back when write-back is enabled and something changed
func (b *Backend) Close() error {
	b.mu.RLock()
	dirty := b.dirty
	b.mu.RUnlock()
	if !dirty || !b.cfg.WriteBack || b.cfg.File == "" {
		return nil
	}
	return b.SaveFile(b.cfg.File)
}

// TransportTemplates returns every template ordered by entry
func (b *Backend) TransportTemplates(ctx context.Context) ([]core.TransportInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.TransportInfo, 0, len(b.templates))
	for _, r := range b.templates {
		out = append(out, r.Info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	return out, nil
}

// PathNodes returns a copy of the nodes of a path
func (b *Backend) PathNodes(ctx context.Context, pathID uint32) ([]core.WaypointNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, r := range b.templates {
		if r.Info.PathID == pathID {
			return append([]core.WaypointNode(nil), r.Nodes...), nil
		}
	}
	return nil, nil
}

// SavePeriod updates the cached loop duration of a template
func (b *Backend) SavePeriod(_ context.Context, entry uint32, period uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.templates[entry]
	if !ok {
		return fmt.Errorf("save period of %d: %w", entry, ErrTemplateNotFound)
	}
	if r.Info.Period != period {
		r.Info.Period = period
		b.dirty = true
	}
	return nil
}

// StaticPassengers returns the spawns of a passenger map for the
// difficulty. Spawns with difficulty 0 match every difficulty.
func (b *Backend) StaticPassengers(mapID uint32, difficulty uint8) ([]core.StaticSpawn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.StaticSpawn
	for _, s := range b.spawns[mapID] {
		if s.Difficulty == 0 || s.Difficulty == difficulty {
			out = append(out, s)
		}
	}
	return out, nil
}

// PutTemplate registers or replaces a template
func (b *Backend) PutTemplate(_ context.Context, info core.TransportInfo, nodes []core.WaypointNode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putTemplate(info, nodes)
	return nil
}

func (b *Backend) putTemplate(info core.TransportInfo, nodes []core.WaypointNode) {
	cp := make([]core.WaypointNode, len(nodes))
	for i, n := range nodes {
		n.PathID = info.PathID
		cp[i] = n
	}
	b.templates[info.Entry] = &TemplateRecord{Info: info, Nodes: cp}
	b.dirty = true
}

// PutStaticSpawns registers or replaces spawns by GUID
func (b *Backend) PutStaticSpawns(_ context.Context, spawns []core.StaticSpawn) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putStaticSpawns(spawns)
	return nil
}

func (b *Backend) putStaticSpawns(spawns []core.StaticSpawn) {
	if len(spawns) == 0 {
		return
	}
	byGUID := make(map[uint64]core.StaticSpawn)
	for _, list := range b.spawns {
		for _, s := range list {
			byGUID[s.GUID] = s
		}
	}
	for _, s := range spawns {
		byGUID[s.GUID] = s
	}

	b.spawns = make(map[uint32][]core.StaticSpawn)
	for _, s := range byGUID {
		b.spawns[s.MapID] = append(b.spawns[s.MapID], s)
	}
	for _, list := range b.spawns {
		sort.Slice(list, func(i, j int) bool { return list[i].GUID < list[j].GUID })
	}
	b.dirty = true
}

// StartRun records the start of a daemon session
func (b *Backend) StartRun(_ context.Context, sessionID string, templates int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs = append(b.runs, RunRecord{SessionID: sessionID, StartedAt: time.Now(), Templates: templates})
	return nil
}

// EndRun stamps the end of a daemon session
func (b *Backend) EndRun(_ context.Context, sessionID string, transports int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.runs {
		if b.runs[i].SessionID == sessionID {
			b.runs[i].EndedAt = time.Now()
			b.runs[i].Transports = transports
		}
	}
	return nil
}

// Runs returns the recorded sessions
func (b *Backend) Runs() []RunRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]RunRecord(nil), b.runs...)
}
