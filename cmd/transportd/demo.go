package main

import (
	"context"
	"fmt"

	"github.com/OCAP2/transport/internal/storage"
	"github.com/OCAP2/transport/pkg/core"
)

// demoTransport is one seeded transport kind.
type demoTransport struct {
	Info  core.TransportInfo
	Nodes []core.WaypointNode
}

type demoNode struct {
	mapID     uint32
	x, y, z   float64
	action    core.NodeAction
	delay     uint32
	arrival   uint32
	departure uint32
}

func demoPath(pathID uint32, nodes ...demoNode) []core.WaypointNode {
	out := make([]core.WaypointNode, len(nodes))
	for i, n := range nodes {
		out[i] = core.WaypointNode{
			PathID:           pathID,
			Index:            uint32(i),
			MapID:            n.mapID,
			X:                n.x,
			Y:                n.y,
			Z:                n.z,
			Action:           n.action,
			Delay:            n.delay,
			ArrivalEventID:   n.arrival,
			DepartureEventID: n.departure,
		}
	}
	return out
}

// Demo ids.
const (
	demoFerry        = 20808
	demoZeppelin     = 176495
	demoLift         = 3001
	demoCrewMap      = 590
	demoInstancedMap = 600
)

// demoDataset returns a small world: a ferry looping on map 1, a zeppelin
// flying between map 0 and map 1, and a lift inside an instanced map.
func demoDataset() ([]demoTransport, []core.StaticSpawn) {
	transports := []demoTransport{
		{
			Info: core.TransportInfo{
				Entry: demoFerry, Name: "Ferry", PathID: 1, Speed: 30, Accel: 2,
				PassengerMapID: demoCrewMap,
				Meta:           map[string]string{"model": "ferry", "faction": "neutral"},
			},
			Nodes: demoPath(1,
				demoNode{mapID: 1, x: 1000, y: 1300},
				demoNode{mapID: 1, x: 1000, y: 1000, action: core.ActionStop, delay: 10, arrival: 1001, departure: 1002},
				demoNode{mapID: 1, x: 1600, y: 1000},
				demoNode{mapID: 1, x: 1600, y: 1600, action: core.ActionStop, delay: 10, arrival: 1003, departure: 1004},
				demoNode{mapID: 1, x: 1000, y: 1600},
				demoNode{mapID: 1, x: 1000, y: 1300},
			),
		},
		{
			Info: core.TransportInfo{
				Entry: demoZeppelin, Name: "Zeppelin", PathID: 2, Speed: 40, Accel: 1,
				Meta: map[string]string{"model": "zeppelin"},
			},
			Nodes: demoPath(2,
				demoNode{mapID: 0, x: -200, y: 0, z: 120},
				demoNode{mapID: 0, x: 0, y: 0, z: 120, action: core.ActionStop, delay: 20, departure: 2001},
				demoNode{mapID: 0, x: 600, y: 100, z: 140},
				demoNode{mapID: 0, x: 1200, y: 0, z: 160},
				demoNode{mapID: 0, x: 1300, y: 0, z: 160},
				demoNode{mapID: 1, x: -1300, y: 0, z: 160},
				demoNode{mapID: 1, x: -1200, y: 0, z: 160},
				demoNode{mapID: 1, x: -600, y: 100, z: 140},
				demoNode{mapID: 1, x: 0, y: 0, z: 120, action: core.ActionStop, delay: 20, arrival: 2002},
				demoNode{mapID: 1, x: 100, y: 0, z: 120, action: core.ActionTeleport},
				demoNode{mapID: 1, x: 200, y: 0, z: 120},
				demoNode{mapID: 1, x: 300, y: 0, z: 120},
			),
		},
		{
			Info: core.TransportInfo{
				Entry: demoLift, Name: "Lift", PathID: 3, Speed: 8, Accel: 4,
				InInstance: true,
			},
			Nodes: demoPath(3,
				demoNode{mapID: demoInstancedMap, x: 100, y: 100, z: 0},
				demoNode{mapID: demoInstancedMap, x: 100, y: 100, z: 0, action: core.ActionStop, delay: 5},
				demoNode{mapID: demoInstancedMap, x: 110, y: 100, z: 30},
				demoNode{mapID: demoInstancedMap, x: 100, y: 110, z: 60, action: core.ActionStop, delay: 5},
				demoNode{mapID: demoInstancedMap, x: 100, y: 100, z: 0},
			),
		},
	}

	spawns := []core.StaticSpawn{
		{GUID: 900001, Entry: 34567, Type: core.TypeCreature, MapID: demoCrewMap, Offset: core.Position{X: 2, Y: -1, Z: 6}},
		{GUID: 900002, Entry: 34568, Type: core.TypeCreature, MapID: demoCrewMap, Offset: core.Position{X: -4, Y: 0, Z: 6, O: 3.14}},
		{GUID: 900003, Entry: 185000, Type: core.TypeGameObject, MapID: demoCrewMap, Difficulty: 2, Offset: core.Position{Z: 4}},
	}
	return transports, spawns
}

// seedDemo writes the demo dataset into a store.
func seedDemo(ctx context.Context, b storage.Backend) error {
	transports, spawns := demoDataset()
	for _, t := range transports {
		if err := b.PutTemplate(ctx, t.Info, t.Nodes); err != nil {
			return fmt.Errorf("failed to seed transport %d: %w", t.Info.Entry, err)
		}
	}
	if err := b.PutStaticSpawns(ctx, spawns); err != nil {
		return fmt.Errorf("failed to seed static spawns: %w", err)
	}
	return nil
}

func generate(ctx context.Context) error {
	st, err := openStorage()
	if err != nil {
		return err
	}
	if err := seedDemo(ctx, st); err != nil {
		st.Close()
		return err
	}
	transports, spawns := demoDataset()
	Logger.Info("Demo data seeded", "transports", len(transports), "spawns", len(spawns),
		"instancedMap", demoInstancedMap)
	return st.Close()
}
