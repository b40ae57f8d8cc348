package transport

import (
	"time"

	"github.com/OCAP2/transport/internal/dispatcher"
	"github.com/OCAP2/transport/pkg/core"
)

// Entity is a world object known to a map.
type Entity interface {
	GUID() core.GUID
	TypeID() core.TypeID
	MapID() uint32
	Position() core.Position
}

// Passenger is an entity that can ride a transport.
type Passenger interface {
	Entity
	Transport() *Transport
	SetTransport(t *Transport)
}

// Rider is implemented by passengers that can sit on a nested vehicle.
type Rider interface {
	OnVehicle() bool
}

// Carrier is implemented by passengers that carry riders of their own.
// The transport calls it after relocating the carrier.
type Carrier interface {
	RelocateRiders()
}

// Owned is implemented by pets and other summoned entities.
type Owned interface {
	OwnerGUID() core.GUID
}

// Updatable is ticked by its map.
type Updatable interface {
	GUID() core.GUID
	Update(diff uint32)
}

// Region is one map instance as seen from a transport. All calls happen
// on the region's own turn except where noted.
type Region interface {
	ID() uint32
	InstanceID() uint32
	Instanceable() bool
	Difficulty() uint8

	IsGridLoaded(x, y float64) bool
	LoadGrid(x, y float64)

	Add(e Entity) error
	// Remove detaches an entity without destroying it.
	Remove(e Entity)
	// Destroy removes an entity for good.
	Destroy(e Entity)
	// Relocate moves an entity without movement side effects.
	Relocate(e Entity, pos core.Position) error

	SpawnStatic(spawn core.StaticSpawn, pos core.Position) (Passenger, error)

	BroadcastOutOfRange(subject Entity, skip func(core.GUID) bool)
	BroadcastCreate(subject Entity, skip func(core.GUID) bool)
	NotifyTeleport(player Entity, pos core.Position)

	AddUpdatable(u Updatable)
	RemoveUpdatable(u Updatable)
	// Enqueue runs the task on the region's next turn. Safe from any goroutine.
	Enqueue(task func())
}

// Regions resolves maps and moves players between them.
type Regions interface {
	BaseRegion(mapID uint32) (Region, error)
	// TransferPlayer relocates a player and its pets into another map.
	TransferPlayer(player Passenger, to Region, pos core.Position) error
}

// SpawnSource returns the static passengers bound to a passenger map.
type SpawnSource interface {
	StaticPassengers(mapID uint32, difficulty uint8) ([]core.StaticSpawn, error)
}

// EventDispatcher receives arrival and departure events.
type EventDispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Metrics receives simulation counters.
type Metrics interface {
	ObserveTick(entry uint32, d time.Duration)
	EventFired(kind string)
	RegionTransition(cross bool)
	PassengersChanged(entry uint32, dynamic, static int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTick(uint32, time.Duration)  {}
func (nopMetrics) EventFired(string)                  {}
func (nopMetrics) RegionTransition(bool)              {}
func (nopMetrics) PassengersChanged(uint32, int, int) {}
