// pkg/core/transport.go
package core

// NodeAction is the action flag carried by a waypoint node.
type NodeAction uint8

const (
	ActionNone     NodeAction = 0
	ActionTeleport NodeAction = 1
	ActionStop     NodeAction = 2
)

// WaypointNode is one raw node of a transport path as stored in the
// template store. Delay is in seconds.
type WaypointNode struct {
	PathID           uint32
	Index            uint32
	MapID            uint32
	X                float64
	Y                float64
	Z                float64
	Action           NodeAction
	Delay            uint32
	ArrivalEventID   uint32
	DepartureEventID uint32
}

// Position returns the node location with a zero heading.
func (n WaypointNode) Position() Position {
	return Position{X: n.X, Y: n.Y, Z: n.Z}
}

// TransportInfo describes one transport kind.
// Speed is in yards per second, Accel in yards per second squared.
// PassengerMapID selects the static spawns that ride the transport; zero
// means the transport carries none. Period caches the loop duration in ms.
// Meta carries free-form display properties forwarded to stream clients.
type TransportInfo struct {
	Entry          uint32
	Name           string
	PathID         uint32
	Speed          float64
	Accel          float64
	InInstance     bool
	PassengerMapID uint32
	Period         uint32
	Meta           map[string]string
}

// StaticSpawn is a template-bound passenger. Offset is relative to the
// transport that carries it.
type StaticSpawn struct {
	GUID       uint64
	Entry      uint32
	Type       TypeID
	MapID      uint32
	Difficulty uint8
	Offset     Position
}
