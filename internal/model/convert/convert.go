// Package convert provides functions to convert GORM models to core models
package convert

import (
	"encoding/json"

	"github.com/OCAP2/transport/internal/model"
	"github.com/OCAP2/transport/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToPosition converts a geom.Point to a core.Position with a zero heading
func pointToPosition(p geom.Point) core.Position {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Position{}
	}
	return core.Position{X: coord.XY.X, Y: coord.XY.Y, Z: coord.Z}
}

// TransportTemplateToCore converts a GORM TransportTemplate to a core.TransportInfo.
// Extra keys whose values are not strings are dropped.
func TransportTemplateToCore(t model.TransportTemplate) core.TransportInfo {
	var meta map[string]string
	if len(t.Extra) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(t.Extra, &raw); err == nil {
			for k, v := range raw {
				s, ok := v.(string)
				if !ok {
					continue
				}
				if meta == nil {
					meta = make(map[string]string, len(raw))
				}
				meta[k] = s
			}
		}
	}

	return core.TransportInfo{
		Entry:          t.Entry,
		Name:           t.Name,
		PathID:         t.PathID,
		Speed:          t.Speed,
		Accel:          t.Accel,
		InInstance:     t.InInstance,
		PassengerMapID: t.PassengerMapID,
		Period:         t.Period,
		Meta:           meta,
	}
}

// PathNodeToCore converts a GORM PathNode to a core.WaypointNode
func PathNodeToCore(n model.PathNode) core.WaypointNode {
	pos := pointToPosition(n.Location)
	return core.WaypointNode{
		PathID:           n.PathID,
		Index:            n.NodeIndex,
		MapID:            n.MapID,
		X:                pos.X,
		Y:                pos.Y,
		Z:                pos.Z,
		Action:           core.NodeAction(n.Action),
		Delay:            n.Delay,
		ArrivalEventID:   n.ArrivalEventID,
		DepartureEventID: n.DepartureEventID,
	}
}

// StaticSpawnToCore converts a GORM StaticSpawn to a core.StaticSpawn
func StaticSpawnToCore(s model.StaticSpawn) core.StaticSpawn {
	return core.StaticSpawn{
		GUID:       s.GUID,
		Entry:      s.Entry,
		Type:       core.TypeID(s.TypeID),
		MapID:      s.MapID,
		Difficulty: s.Difficulty,
		Offset:     core.Position{X: s.OffsetX, Y: s.OffsetY, Z: s.OffsetZ, O: s.OffsetO},
	}
}
