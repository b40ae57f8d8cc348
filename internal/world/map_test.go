package world

import (
	"log/slog"
	"testing"

	"github.com/OCAP2/transport/internal/path"
	"github.com/OCAP2/transport/internal/transport"
	"github.com/OCAP2/transport/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMap(obs Observer) *Map {
	return newMap(1, 0, false, 0, slog.Default(), obs)
}

func TestMap_AddRemove(t *testing.T) {
	m := testMap(nil)
	c := creature(1, core.Position{X: 10, Y: 10})

	require.NoError(t, m.Add(c))
	assert.ErrorIs(t, m.Add(c), ErrDuplicateObject)
	assert.Equal(t, uint32(1), c.MapID())

	got, ok := m.Object(c.GUID())
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.False(t, m.IsGridLoaded(10, 10))

	m.Remove(c)
	_, ok = m.Object(c.GUID())
	assert.False(t, ok)
	m.Remove(c)
}

func TestMap_PlayersActivateTheirGrid(t *testing.T) {
	m := testMap(nil)
	require.NoError(t, m.Add(player(1, core.Position{X: 1000, Y: -1000})))
	assert.True(t, m.IsGridLoaded(1000, -1000))
	assert.False(t, m.IsGridLoaded(0, 0))
	assert.Equal(t, []core.GridCoord{core.GridCoordFor(1000, -1000)}, m.LoadedGrids())
}

func TestMap_Relocate(t *testing.T) {
	rec := &recorder{}
	m := testMap(rec)
	c := creature(1, core.Position{})

	assert.ErrorIs(t, m.Relocate(c, core.Position{X: 5}), ErrNotOnMap)
	require.NoError(t, m.Add(c))
	assert.ErrorIs(t, m.Relocate(c, core.Position{X: 1e6}), ErrInvalidPosition)

	require.NoError(t, m.Relocate(c, core.Position{X: 5, Y: 6, Z: 7, O: 1}))
	assert.Equal(t, core.Position{X: 5, Y: 6, Z: 7, O: 1}, c.Position())
	assert.Equal(t, 1, rec.moves)
}

func TestMap_SpawnStatic(t *testing.T) {
	m := testMap(nil)
	p, err := m.SpawnStatic(core.StaticSpawn{GUID: 9, Entry: 77}, core.Position{X: 3})
	require.NoError(t, err)

	o := p.(*Object)
	assert.Equal(t, core.TypeCreature, o.TypeID())
	assert.Equal(t, uint64(9), o.GUID().Counter())
	assert.Equal(t, uint32(77), o.Entry())
	assert.True(t, o.Static())
	assert.Equal(t, 3.0, o.Position().X)

	_, err = m.SpawnStatic(core.StaticSpawn{GUID: 9, Type: core.TypeCreature}, core.Position{})
	assert.ErrorIs(t, err, ErrDuplicateObject)

	p, err = m.SpawnStatic(core.StaticSpawn{GUID: 9, Type: core.TypeGameObject}, core.Position{})
	require.NoError(t, err)
	assert.Equal(t, core.TypeGameObject, p.TypeID())
}

func TestMap_Broadcasts(t *testing.T) {
	rec := &recorder{}
	m := testMap(rec)
	p1, p2 := player(1, core.Position{}), player(2, core.Position{})
	subject := creature(3, core.Position{})
	for _, o := range []*Object{p1, p2, subject} {
		require.NoError(t, m.Add(o))
	}

	skip := func(g core.GUID) bool { return g == p2.GUID() }
	m.BroadcastOutOfRange(subject, skip)
	m.BroadcastCreate(subject, nil)
	m.BroadcastCreate(p1, nil)
	m.NotifyTeleport(p1, core.Position{X: 1})

	assert.Equal(t, []notice{{kind: "out", mapID: 1, viewer: p1.GUID(), subject: subject.GUID()}}, rec.of("out"))
	assert.Equal(t, []notice{
		{kind: "create", mapID: 1, viewer: p1.GUID(), subject: subject.GUID()},
		{kind: "create", mapID: 1, viewer: p2.GUID(), subject: subject.GUID()},
		{kind: "create", mapID: 1, viewer: p2.GUID(), subject: p1.GUID()},
	}, rec.of("create"))
	assert.Len(t, rec.of("teleport"), 1)
}

func TestMap_TickThenTasks(t *testing.T) {
	m := testMap(nil)
	c := &counter{guid: core.MakeGUID(core.TypeTransport, 1)}
	m.AddUpdatable(c)

	var order []string
	m.Enqueue(func() {
		order = append(order, "task")
		m.Enqueue(func() { order = append(order, "later") })
	})
	m.Update(100)
	assert.Equal(t, []string{"task"}, order)
	assert.Equal(t, uint32(100), c.total)
	assert.Equal(t, 1, m.PendingTasks())

	m.RemoveUpdatable(c)
	m.Update(100)
	assert.Equal(t, []string{"task", "later"}, order)
	assert.Equal(t, 1, c.ticks)
}

type spawnTable map[uint32][]core.StaticSpawn

func (s spawnTable) StaticPassengers(mapID uint32, _ uint8) ([]core.StaticSpawn, error) {
	return s[mapID], nil
}

func TestMap_UnloadGridReleasesStaticPassengers(t *testing.T) {
	w := NewManager(Options{})
	spawns := spawnTable{99: {
		{GUID: 1, Entry: 5, Offset: core.Position{X: 1}},
		{GUID: 2, Entry: 6, Type: core.TypeGameObject, Offset: core.Position{X: -1, Y: 1}},
	}}
	tm := transport.NewManager(transport.Dependencies{Regions: w, Spawns: spawns})

	info := core.TransportInfo{Entry: 1, Name: "zeppelin", PathID: 1, Speed: 5, Accel: 1, PassengerMapID: 99}
	tmpl, err := path.Generate(info, waypoints(1, wp{x: 100, y: 100}, wp{x: 200, y: 100}, wp{x: 200, y: 200}, wp{x: 100, y: 200}))
	require.NoError(t, err)
	tm.AddTemplate(tmpl)

	tr, err := tm.CreateTransport(1, nil)
	require.NoError(t, err)
	m, ok := w.Map(0, 0)
	require.True(t, ok)
	require.Equal(t, 2, tr.PassengerCount(transport.Static))

	watcher := player(1, core.Position{X: -5000, Y: -5000})
	require.NoError(t, m.Add(watcher))

	assert.Equal(t, 2, m.UnloadGrid(100, 100))
	assert.Equal(t, 0, tr.PassengerCount(transport.Static))
	assert.False(t, m.IsGridLoaded(100, 100))
	_, ok = m.Object(tr.GUID())
	assert.True(t, ok)
	_, ok = m.Object(watcher.GUID())
	assert.True(t, ok)
	assert.Len(t, m.Objects(), 2)

	w.Update(500)
	assert.Equal(t, 0, tr.PassengerCount(transport.Static))

	m.LoadGrid(tr.Position().X, tr.Position().Y)
	w.Update(500)
	assert.Equal(t, 2, tr.PassengerCount(transport.Static))
}

func TestObject_Vehicle(t *testing.T) {
	v := creature(1, core.Position{X: 10, Y: 10, O: 0})
	r := player(2, core.Position{})

	assert.ErrorIs(t, v.EnterVehicle(v, core.Position{}), ErrVehicleSelf)
	require.NoError(t, r.EnterVehicle(v, core.Position{X: 1}))
	assert.True(t, r.OnVehicle())
	assert.Equal(t, 11.0, r.Position().X)
	assert.Equal(t, []*Object{r}, v.Riders())

	v.setPosition(core.Position{X: 20, Y: 20})
	v.RelocateRiders()
	assert.Equal(t, core.Position{X: 21, Y: 20}, r.Position())

	r.ExitVehicle()
	r.ExitVehicle()
	assert.False(t, r.OnVehicle())
	assert.Empty(t, v.Riders())
}
