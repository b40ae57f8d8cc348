// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	"github.com/OCAP2/transport/internal/model"
	"github.com/OCAP2/transport/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// positionToPoint converts a core.Position to an XYZ geom.Point
func positionToPoint(p core.Position) geom.Point {
	coords := geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Z: p.Z, Type: geom.DimXYZ}
	return geom.NewPoint(coords)
}

// metaToJSON converts display properties to datatypes.JSON for DB storage.
func metaToJSON(meta map[string]string) datatypes.JSON {
	if len(meta) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(meta)
	return datatypes.JSON(data)
}

// CoreToTransportTemplate converts a core.TransportInfo to a GORM model.TransportTemplate
func CoreToTransportTemplate(info core.TransportInfo) model.TransportTemplate {
	return model.TransportTemplate{
		Entry:          info.Entry,
		Name:           info.Name,
		PathID:         info.PathID,
		Speed:          info.Speed,
		Accel:          info.Accel,
		InInstance:     info.InInstance,
		PassengerMapID: info.PassengerMapID,
		Period:         info.Period,
		Extra:          metaToJSON(info.Meta),
	}
}

// CoreToPathNode converts a core.WaypointNode to a GORM model.PathNode
func CoreToPathNode(n core.WaypointNode) model.PathNode {
	return model.PathNode{
		PathID:           n.PathID,
		NodeIndex:        n.Index,
		MapID:            n.MapID,
		Location:         positionToPoint(n.Position()),
		Action:           uint8(n.Action),
		Delay:            n.Delay,
		ArrivalEventID:   n.ArrivalEventID,
		DepartureEventID: n.DepartureEventID,
	}
}

// CoreToStaticSpawn converts a core.StaticSpawn to a GORM model.StaticSpawn
func CoreToStaticSpawn(s core.StaticSpawn) model.StaticSpawn {
	return model.StaticSpawn{
		GUID:       s.GUID,
		Entry:      s.Entry,
		TypeID:     uint8(s.Type),
		MapID:      s.MapID,
		Difficulty: s.Difficulty,
		OffsetX:    s.Offset.X,
		OffsetY:    s.Offset.Y,
		OffsetZ:    s.Offset.Z,
		OffsetO:    s.Offset.O,
	}
}
