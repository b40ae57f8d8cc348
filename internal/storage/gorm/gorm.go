// Package gormstorage implements storage.Backend on top of GORM. It works
// against both postgres and sqlite connections opened by internal/database.
// Static spawns are cached in memory on Init so map turns never hit the
// database.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/OCAP2/transport/internal/model"
	"github.com/OCAP2/transport/internal/model/convert"
	"github.com/OCAP2/transport/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTemplateNotFound is returned when a period is saved for an unknown entry.
var ErrTemplateNotFound = errors.New("transport template not found")

// Dependencies holds the collaborators of a Backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend reads and writes transport templates through GORM.
type Backend struct {
	db     *gorm.DB
	logger *slog.Logger

	mu     sync.RWMutex
	spawns map[uint32][]core.StaticSpawn // keyed by passenger map
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		db:     deps.DB,
		logger: logger.With("storage", "gorm"),
		spawns: make(map[uint32][]core.StaticSpawn),
	}
}

// Init loads the static spawn cache.
func (b *Backend) Init() error {
	return b.reloadSpawns(context.Background())
}

// Close is a no-op. The connection belongs to the database manager.
func (b *Backend) Close() error {
	return nil
}

// TransportTemplates returns every template ordered by entry.
func (b *Backend) TransportTemplates(ctx context.Context) ([]core.TransportInfo, error) {
	var rows []model.TransportTemplate
	if err := b.db.WithContext(ctx).Order("entry").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query transport templates: %w", err)
	}
	out := make([]core.TransportInfo, len(rows))
	for i, r := range rows {
		out[i] = convert.TransportTemplateToCore(r)
	}
	return out, nil
}

// PathNodes returns the nodes of a path ordered by index.
func (b *Backend) PathNodes(ctx context.Context, pathID uint32) ([]core.WaypointNode, error) {
	var rows []model.PathNode
	err := b.db.WithContext(ctx).
		Where("path_id = ?", pathID).
		Order("node_index").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query path %d: %w", pathID, err)
	}
	out := make([]core.WaypointNode, len(rows))
	for i, r := range rows {
		out[i] = convert.PathNodeToCore(r)
	}
	return out, nil
}

// SavePeriod writes the generated loop duration back to the template row.
func (b *Backend) SavePeriod(ctx context.Context, entry uint32, period uint32) error {
	res := b.db.WithContext(ctx).
		Model(&model.TransportTemplate{}).
		Where("entry = ?", entry).
		Update("period", period)
	if res.Error != nil {
		return fmt.Errorf("save period of %d: %w", entry, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("save period of %d: %w", entry, ErrTemplateNotFound)
	}
	return nil
}

// StaticPassengers returns the cached spawns of a passenger map for the
// difficulty, ordered by GUID. Spawns with difficulty 0 match every
// difficulty.
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

// PutTemplate upserts a template and replaces the nodes of its path.
func (b *Backend) PutTemplate(ctx context.Context, info core.TransportInfo, nodes []core.WaypointNode) error {
	row := convert.CoreToTransportTemplate(info)
	rows := make([]model.PathNode, len(nodes))
	for i, n := range nodes {
		n.PathID = info.PathID
		rows[i] = convert.CoreToPathNode(n)
	}

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("path_id = ?", info.PathID).Delete(&model.PathNode{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("put template %d: %w", info.Entry, err)
	}
	b.logger.Debug("template stored", "entry", info.Entry, "path", info.PathID, "nodes", len(nodes))
	return nil
}

// PutStaticSpawns upserts spawns and refreshes the cache.
func (b *Backend) PutStaticSpawns(ctx context.Context, spawns []core.StaticSpawn) error {
	if len(spawns) == 0 {
		return nil
	}
	rows := make([]model.StaticSpawn, len(spawns))
	for i, s := range spawns {
		rows[i] = convert.CoreToStaticSpawn(s)
	}
	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("put static spawns: %w", err)
	}
	return b.reloadSpawns(ctx)
}

func (b *Backend) reloadSpawns(ctx context.Context) error {
	var rows []model.StaticSpawn
	if err := b.db.WithContext(ctx).Order("guid").Find(&rows).Error; err != nil {
		return fmt.Errorf("query static spawns: %w", err)
	}
	spawns := make(map[uint32][]core.StaticSpawn)
	for _, r := range rows {
		s := convert.StaticSpawnToCore(r)
		spawns[s.MapID] = append(spawns[s.MapID], s)
	}
	for _, list := range spawns {
		sort.Slice(list, func(i, j int) bool { return list[i].GUID < list[j].GUID })
	}

	b.mu.Lock()
	b.spawns = spawns
	b.mu.Unlock()
	b.logger.Debug("static spawns cached", "spawns", len(rows), "maps", len(spawns))
	return nil
}

// StartRun records the start of a daemon session.
func (b *Backend) StartRun(ctx context.Context, sessionID string, templates int) error {
	run := model.SimulationRun{
		SessionID: sessionID,
		StartedAt: time.Now(),
		Templates: templates,
	}
	if err := b.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("start run %s: %w", sessionID, err)
	}
	return nil
}

// EndRun stamps the end of a daemon session.
func (b *Backend) EndRun(ctx context.Context, sessionID string, transports int) error {
	err := b.db.WithContext(ctx).
		Model(&model.SimulationRun{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{"ended_at": time.Now(), "transports": transports}).Error
	if err != nil {
		return fmt.Errorf("end run %s: %w", sessionID, err)
	}
	return nil
}
