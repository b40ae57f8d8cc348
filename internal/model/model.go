package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&TransportTemplate{},
	&PathNode{},
	&StaticSpawn{},
	&SimulationRun{},
}

// TransportTemplate is one transport kind. Period is written back by the
// simulator once the path has been generated.
type TransportTemplate struct {
	Entry          uint32         `json:"entry" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	Name           string         `json:"name" gorm:"size:128"`
	PathID         uint32         `json:"pathId" gorm:"index"`
	Speed          float64        `json:"speed"`
	Accel          float64        `json:"accel"`
	InInstance     bool           `json:"inInstance" gorm:"default:false"`
	PassengerMapID uint32         `json:"passengerMapId" gorm:"default:0"`
	Period         uint32         `json:"period" gorm:"default:0"`
	Extra          datatypes.JSON `json:"extra"` // display properties, string values only
}

func (*TransportTemplate) TableName() string {
	return "transport_templates"
}

// PathNode is one raw waypoint. The first and last node of a path are
// sentinels and never become key frames.
type PathNode struct {
	PathID           uint32     `json:"pathId" gorm:"primaryKey;autoIncrement:false"`
	NodeIndex        uint32     `json:"nodeIndex" gorm:"primaryKey;autoIncrement:false"`
	MapID            uint32     `json:"mapId" gorm:"index"`
	Location         geom.Point `json:"location"` // XYZ in world yards
	Action           uint8      `json:"action" gorm:"default:0"`
	Delay            uint32     `json:"delay" gorm:"default:0"` // seconds
	ArrivalEventID   uint32     `json:"arrivalEventId" gorm:"default:0"`
	DepartureEventID uint32     `json:"departureEventId" gorm:"default:0"`
}

func (*PathNode) TableName() string {
	return "path_nodes"
}

// StaticSpawn is a template-bound passenger of a passenger map.
type StaticSpawn struct {
	GUID       uint64  `json:"guid" gorm:"primaryKey;autoIncrement:false"`
	Entry      uint32  `json:"entry"`
	TypeID     uint8   `json:"typeId" gorm:"default:2"`
	MapID      uint32  `json:"mapId" gorm:"index:idx_spawn_map"`
	Difficulty uint8   `json:"difficulty" gorm:"index:idx_spawn_map;default:0"` // 0 spawns on every difficulty
	OffsetX    float64 `json:"offsetX"`
	OffsetY    float64 `json:"offsetY"`
	OffsetZ    float64 `json:"offsetZ"`
	OffsetO    float64 `json:"offsetO"`
}

func (*StaticSpawn) TableName() string {
	return "static_spawns"
}

// SimulationRun records one daemon session.
type SimulationRun struct {
	ID         uint         `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID  string       `json:"sessionId" gorm:"size:36;uniqueIndex"`
	StartedAt  time.Time    `json:"startedAt" gorm:"not null"`
	EndedAt    sql.NullTime `json:"endedAt"`
	Templates  int          `json:"templates"`
	Transports int          `json:"transports"`
}

func (*SimulationRun) TableName() string {
	return "simulation_runs"
}
