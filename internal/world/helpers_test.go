package world

import (
	"sync"

	"github.com/OCAP2/transport/internal/transport"
	"github.com/OCAP2/transport/pkg/core"
)

type notice struct {
	kind    string
	mapID   uint32
	viewer  core.GUID
	subject core.GUID
}

type recorder struct {
	mu      sync.Mutex
	notices []notice
	moves   int
}

func (r *recorder) add(n notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) Created(mapID uint32, viewer core.GUID, subject transport.Entity) {
	r.add(notice{kind: "create", mapID: mapID, viewer: viewer, subject: subject.GUID()})
}

func (r *recorder) OutOfRange(mapID uint32, viewer, subject core.GUID) {
	r.add(notice{kind: "out", mapID: mapID, viewer: viewer, subject: subject})
}

func (r *recorder) Teleported(mapID uint32, player core.GUID, _ core.Position) {
	r.add(notice{kind: "teleport", mapID: mapID, viewer: player, subject: player})
}

func (r *recorder) Transferred(player core.GUID, _, to uint32, _ core.Position) {
	r.add(notice{kind: "transfer", mapID: to, viewer: player, subject: player})
}

func (r *recorder) Moved(uint32, core.GUID, core.Position) {
	r.mu.Lock()
	r.moves++
	r.mu.Unlock()
}

func (r *recorder) of(kind string) []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notice
	for _, n := range r.notices {
		if n.kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type counter struct {
	guid  core.GUID
	mu    sync.Mutex
	total uint32
	ticks int
}

func (c *counter) GUID() core.GUID { return c.guid }

func (c *counter) Update(diff uint32) {
	c.mu.Lock()
	c.total += diff
	c.ticks++
	c.mu.Unlock()
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

func player(low uint64, pos core.Position) *Object {
	return NewObject(core.MakeGUID(core.TypePlayer, low), 0, pos)
}

func creature(low uint64, pos core.Position) *Object {
	return NewObject(core.MakeGUID(core.TypeCreature, low), 100, pos)
}

type wp struct {
	mapID uint32
	x, y  float64
}

func waypoints(pathID uint32, ps ...wp) []core.WaypointNode {
	first, last := ps[0], ps[len(ps)-1]
	out := []core.WaypointNode{{PathID: pathID, MapID: first.mapID, X: first.x - 1, Y: first.y}}
	for i, p := range ps {
		out = append(out, core.WaypointNode{PathID: pathID, Index: uint32(i + 1), MapID: p.mapID, X: p.x, Y: p.y})
	}
	return append(out, core.WaypointNode{PathID: pathID, MapID: last.mapID, X: last.x + 1, Y: last.y})
}
