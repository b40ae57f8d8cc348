package transport

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/transport/internal/geo"
	"github.com/OCAP2/transport/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoMapNodes runs along map 1, jumps to map 2 and runs along it.
func twoMapNodes() []core.WaypointNode {
	return pathNodes(1,
		node{mapID: 1, x: 0},
		node{mapID: 1, x: 100},
		node{mapID: 1, x: 200},
		node{mapID: 1, x: 300},
		node{mapID: 2, x: 5000},
		node{mapID: 2, x: 5100},
		node{mapID: 2, x: 5200},
		node{mapID: 2, x: 5300},
	)
}

func twoMapInfo() core.TransportInfo {
	return core.TransportInfo{Entry: 1, Name: "boat", PathID: 1, Speed: 10, Accel: 1}
}

func TestTransport_CrossRegionTransition(t *testing.T) {
	r1, r2 := newRegion(1), newRegion(2)
	regions := newRegions(r1, r2)
	metrics := newMetrics()
	tr := spawnTransport(t, Dependencies{Regions: regions, Metrics: metrics}, twoMapInfo(), twoMapNodes(), nil)
	require.Same(t, r1, tr.Region())

	player := newEntity(core.TypePlayer, 1, 1)
	pet := newEntity(core.TypeCreature, 2, 1)
	pet.owner = player.GUID()
	crate := newEntity(core.TypeGameObject, 3, 1)
	bystander := newEntity(core.TypePlayer, 4, 1)
	for _, e := range []*fakeEntity{player, pet, crate, bystander} {
		require.NoError(t, r1.Add(e))
	}
	offsets := map[core.GUID]core.Position{
		player.GUID(): {X: 1},
		pet.GUID():    {X: -1},
		crate.GUID():  {Y: 2},
	}
	for _, e := range []*fakeEntity{player, pet, crate} {
		require.NoError(t, tr.Board(e, offsets[e.GUID()]))
	}

	tick(tr, 500, 20000)

	// Detached from the old map, not yet on the new one.
	assert.Same(t, r2, tr.Region())
	assert.Equal(t, uint32(2), tr.MapID())
	assert.NotContains(t, r1.entities, tr.GUID())
	assert.NotContains(t, r1.updatables, tr.GUID())
	assert.Equal(t, []core.GUID{tr.GUID()}, r1.outOfRange)
	assert.NotContains(t, r2.entities, tr.GUID())
	assert.Len(t, r2.tasks, 1)
	assert.Equal(t, 1, metrics.cross)
	assert.Equal(t, uint32(1), player.MapID())

	r2.drain()

	assert.Contains(t, r2.entities, tr.GUID())
	assert.Contains(t, r2.updatables, tr.GUID())
	assert.Equal(t, []core.GUID{tr.GUID()}, r2.created)
	assert.Equal(t, []core.GUID{player.GUID()}, regions.transfers)
	assert.InDelta(t, 5100, tr.Position().X, 1e-6)

	for _, e := range []*fakeEntity{player, pet, crate} {
		assert.Equal(t, uint32(2), e.MapID(), "%s", e.GUID())
		assert.True(t, tr.IsPassenger(e.GUID()))
		assertPose(t, geo.LocalToWorld(offsets[e.GUID()], tr.Position()), e.Position(), 1e-9)
	}
	assert.Equal(t, uint32(1), bystander.MapID())
	assert.Contains(t, r1.entities, bystander.GUID())

	before := tr.Position()
	tick(tr, 500, 5000)
	assert.Greater(t, tr.Position().X, before.X)
	assertPose(t, geo.LocalToWorld(offsets[crate.GUID()], tr.Position()), crate.Position(), 1e-9)
}

func TestTransport_UnresolvedDestinationStopsMovement(t *testing.T) {
	r1 := newRegion(1)
	tr := spawnTransport(t, Dependencies{Regions: newRegions(r1)}, twoMapInfo(), twoMapNodes(), nil)

	tick(tr, 500, 20000)
	assert.False(t, tr.MovementEnabled())
	assert.Same(t, r1, tr.Region())
	assert.Contains(t, r1.entities, tr.GUID())

	pos := tr.Position()
	assert.Less(t, pos.X, 300.0)
	tick(tr, 500, 5000)
	assert.Equal(t, pos, tr.Position())
}

func TestTransport_TeleportWithinRegion(t *testing.T) {
	r := newRegion(0)
	metrics := newMetrics()
	nodes := pathNodes(1,
		node{x: 0},
		node{x: 100},
		node{x: 200},
		node{x: 250, action: core.ActionTeleport},
		node{x: 1000},
		node{x: 1100},
		node{x: 1200},
	)
	info := core.TransportInfo{Entry: 1, Name: "portal", PathID: 1, Speed: 10, Accel: 1}
	tr := spawnTransport(t, Dependencies{Regions: newRegions(r), Metrics: metrics}, info, nodes, r)

	player := newEntity(core.TypePlayer, 1, 0)
	require.NoError(t, r.Add(player))
	offset := core.Position{X: 1, Y: 1}
	require.NoError(t, tr.Board(player, offset))

	tick(tr, 500, 20000)
	assert.Same(t, r, tr.Region())
	assert.InDelta(t, 1100, tr.Position().X, 1e-6)
	assert.Equal(t, []core.GUID{player.GUID()}, r.teleported)
	assert.Equal(t, 1, metrics.same)
	assert.Equal(t, 0, metrics.cross)
	assertPose(t, geo.LocalToWorld(offset, tr.Position()), player.Position(), 1e-9)

	// The open path jumps back to its first frame after the last one.
	tick(tr, 500, tr.CurrentPeriod()-20000)
	assert.Equal(t, 0, tr.CurrentFrame())
	assert.InDelta(t, 0, tr.Position().X, 1e-6)
	assert.Equal(t, 2, metrics.same)
}

func TestTransport_CrossRegionUnloadsStatics(t *testing.T) {
	r1, r2 := newRegion(1), newRegion(2)
	spawns := &fakeSpawns{spawns: map[uint32][]core.StaticSpawn{
		99: {
			{GUID: 1001, Entry: 5, Type: core.TypeCreature, MapID: 99, Offset: core.Position{X: 1}},
			{GUID: 1002, Entry: 6, Type: core.TypeCreature, MapID: 99, Offset: core.Position{Y: -1}},
		},
	}}
	info := twoMapInfo()
	info.PassengerMapID = 99
	tr := spawnTransport(t, Dependencies{Regions: newRegions(r1, r2), Spawns: spawns}, info, twoMapNodes(), nil)
	require.Equal(t, 2, tr.PassengerCount(Static))
	require.Equal(t, 2, r1.hasStatic())

	tick(tr, 500, 20000)
	require.True(t, tr.inTransit)

	assert.Equal(t, 0, tr.PassengerCount(Static))
	assert.Equal(t, 0, r1.hasStatic())
	assert.Len(t, r1.destroyed, 2)
	for _, guid := range r1.destroyed {
		assert.False(t, tr.IsPassenger(guid))
	}
	assert.Equal(t, 0, r2.hasStatic())

	r2.drain()

	assert.Equal(t, 2, tr.PassengerCount(Static))
	assert.Equal(t, 2, r2.hasStatic())
	assert.Equal(t, 0, r1.hasStatic())
	assert.Equal(t, 2, spawns.calls)
	for _, p := range tr.Passengers() {
		e := r2.entities[p.GUID].(*fakeEntity)
		assert.Same(t, tr, e.Transport())
		assertPose(t, geo.LocalToWorld(p.Offset, tr.Position()), e.Position(), 1e-9)
	}
}

func TestTransport_ArrivalCreditsTransitTime(t *testing.T) {
	r1, r2 := newRegion(1), newRegion(2)
	tr := spawnTransport(t, Dependencies{Regions: newRegions(r1, r2)}, twoMapInfo(), twoMapNodes(), nil)
	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }

	for i := 0; i < 1000 && !tr.inTransit; i++ {
		tr.Update(100)
	}
	require.True(t, tr.inTransit)
	clock := tr.clock

	now = now.Add(750 * time.Millisecond)
	r2.drain()
	assert.False(t, tr.inTransit)
	assert.Equal(t, clock+750, tr.clock)
}

func TestTransport_PausedArrivalKeepsClock(t *testing.T) {
	r1, r2 := newRegion(1), newRegion(2)
	tr := spawnTransport(t, Dependencies{Regions: newRegions(r1, r2)}, twoMapInfo(), twoMapNodes(), nil)
	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }

	for i := 0; i < 1000 && !tr.inTransit; i++ {
		tr.Update(100)
	}
	require.True(t, tr.inTransit)
	tr.SetMovementEnabled(false)
	clock := tr.clock

	now = now.Add(750 * time.Millisecond)
	r2.drain()
	assert.Equal(t, clock, tr.clock)
}

func TestTransport_LogsCarryCurrentMap(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r1, r2 := newRegion(1), newRegion(2)
	r2.instance = 7
	tr := spawnTransport(t, Dependencies{Regions: newRegions(r1, r2), Logger: logger}, twoMapInfo(), twoMapNodes(), nil)

	records := func() []map[string]any {
		var out []map[string]any
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if line == "" {
				continue
			}
			var rec map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &rec))
			out = append(out, rec)
		}
		buf.Reset()
		return out
	}

	tick(tr, 500, 20000)
	var changing map[string]any
	for _, rec := range records() {
		if rec["msg"] == "transport changing map" {
			changing = rec
		}
	}
	require.NotNil(t, changing)
	assert.Equal(t, float64(1), changing["map"])
	assert.Equal(t, tr.GUID().String(), changing["transport"])

	// Records written in transit and after arrival name the new map.
	r2.drain()
	tr.logger.Info("after arrival")
	recs := records()
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	assert.Equal(t, float64(2), last["map"])
	assert.Equal(t, float64(7), last["instance"])
	assert.Nil(t, last["inTransit"])
}
