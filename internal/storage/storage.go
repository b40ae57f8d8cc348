// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/OCAP2/transport/pkg/core"
)

// Backend is the interface all template stores must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Template reads, consumed by transport.Manager
	TransportTemplates(ctx context.Context) ([]core.TransportInfo, error)
	PathNodes(ctx context.Context, pathID uint32) ([]core.WaypointNode, error)
	SavePeriod(ctx context.Context, entry uint32, period uint32) error

	// StaticPassengers runs on map turns and is served from memory.
	StaticPassengers(mapID uint32, difficulty uint8) ([]core.StaticSpawn, error)

	// Seeding
	PutTemplate(ctx context.Context, info core.TransportInfo, nodes []core.WaypointNode) error
	PutStaticSpawns(ctx context.Context, spawns []core.StaticSpawn) error

	// Session bookkeeping
	StartRun(ctx context.Context, sessionID string, templates int) error
	EndRun(ctx context.Context, sessionID string, transports int) error
}
