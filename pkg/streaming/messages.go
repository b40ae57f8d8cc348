package streaming

import (
	"encoding/json"

	"github.com/OCAP2/transport/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello      = "hello"
	TypeGoodbye    = "goodbye"
	TypeCreate     = "create_object"
	TypeOutOfRange = "out_of_range"
	TypeTeleport   = "teleport"
	TypeTransfer   = "transfer"
	TypePosition   = "position"
	TypePathEvent  = "path_event"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload opens a session. It is replayed after a reconnect.
type HelloPayload struct {
	SessionID string `json:"sessionId"`
	Version   string `json:"version"`
}

// Pose is a world position on a map.
type Pose struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	O float64 `json:"o"`
}

// PoseOf converts a core position.
func PoseOf(p core.Position) Pose {
	return Pose{X: p.X, Y: p.Y, Z: p.Z, O: p.O}
}

// CreatePayload tells a viewer that an object came into view.
type CreatePayload struct {
	MapID   uint32            `json:"map"`
	Viewer  string            `json:"viewer"`
	Subject string            `json:"subject"`
	Kind    string            `json:"kind"`
	Entry   uint32            `json:"entry,omitempty"`
	Name    string            `json:"name,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
	Pose    Pose              `json:"pose"`
}

// OutOfRangePayload tells a viewer that an object left its view.
type OutOfRangePayload struct {
	MapID   uint32 `json:"map"`
	Viewer  string `json:"viewer"`
	Subject string `json:"subject"`
}

// TeleportPayload is a near teleport of a player on the same map.
type TeleportPayload struct {
	MapID  uint32 `json:"map"`
	Player string `json:"player"`
	Pose   Pose   `json:"pose"`
}

// TransferPayload is a player moving to another map.
type TransferPayload struct {
	Player string `json:"player"`
	From   uint32 `json:"from"`
	To     uint32 `json:"to"`
	Pose   Pose   `json:"pose"`
}

// PositionPayload is a transport pose update.
type PositionPayload struct {
	MapID   uint32 `json:"map"`
	Subject string `json:"subject"`
	Pose    Pose   `json:"pose"`
}

// PathEventPayload is an arrival or departure event fired by a transport.
type PathEventPayload struct {
	EventID   uint32 `json:"eventId"`
	Kind      string `json:"kind"`
	Transport string `json:"transport"`
	Entry     uint32 `json:"entry"`
	MapID     uint32 `json:"map"`
	Pose      Pose   `json:"pose"`
	Timestamp int64  `json:"ts"` // unix ms
}
