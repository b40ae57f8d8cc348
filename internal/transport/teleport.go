package transport

import (
	"github.com/OCAP2/transport/internal/geo"
	"github.com/OCAP2/transport/pkg/core"
)

// teleport moves the transport to pos on mapID after departing a teleport
// frame. It reports whether the caller may keep advancing on this turn.
func (t *Transport) teleport(mapID uint32, pos core.Position) bool {
	pos.O = t.pos.O
	if t.region == nil || t.inTransit {
		t.pos = pos
		return false
	}
	if mapID == t.region.ID() {
		t.teleportWithinRegion(pos)
		return true
	}

	if t.regions == nil {
		t.logger.Error("no region manager for map change", "destination", mapID)
		t.enabled = false
		return false
	}
	dest, err := t.regions.BaseRegion(mapID)
	if err != nil {
		t.logger.Error("failed to resolve destination map, stopping transport", "destination", mapID, "error", err)
		t.enabled = false
		return false
	}
	t.teleportToRegion(dest, pos)
	return false
}

func (t *Transport) teleportWithinRegion(pos core.Position) {
	t.sinceUpdate = 0
	t.updatePosition(pos)
	for _, p := range t.passengers {
		if p.entity.TypeID() == core.TypePlayer && p.entity.MapID() == t.region.ID() {
			t.region.NotifyTeleport(p.entity, geo.LocalToWorld(p.offset, t.pos))
		}
	}
	t.metrics.RegionTransition(false)
}

// teleportToRegion detaches the transport on the source map's turn and
// queues its arrival on the destination map.
func (t *Transport) teleportToRegion(dest Region, pos core.Position) {
	old := t.region
	t.logger.Info("transport changing map", "from", old.ID(), "to", dest.ID())

	old.BroadcastOutOfRange(t, t.IsPassenger)
	t.unloadStaticPassengers()
	old.RemoveUpdatable(t)
	old.Remove(t)

	movers := make([]*passenger, 0, len(t.passengers))
	for _, p := range t.passengers {
		if p.entity.MapID() == old.ID() {
			movers = append(movers, p)
		}
	}

	t.region = dest
	t.pos = pos
	t.inTransit = true
	t.departed = t.now()
	dest.Enqueue(func() { t.arrive(old, dest, movers) })
	t.metrics.RegionTransition(true)
}

// arrive runs on the destination map's turn.
func (t *Transport) arrive(old, dest Region, movers []*passenger) {
	if err := dest.Add(t); err != nil {
		t.logger.Error("failed to add transport to map", "destination", dest.ID(), "error", err)
	}
	dest.BroadcastCreate(t, t.IsPassenger)

	// No map ticks the transport between the source map's last turn and
	// this one.
	if t.enabled {
		t.clock += uint64(t.now().Sub(t.departed).Milliseconds())
	}

	for _, p := range movers {
		if !t.IsPassenger(p.entity.GUID()) {
			continue
		}
		pos := geo.LocalToWorld(p.offset, t.pos)
		switch {
		case p.entity.TypeID() == core.TypePlayer:
			if err := t.regions.TransferPlayer(p.entity, dest, pos); err != nil {
				t.logger.Warn("failed to transfer passenger", "passenger", p.entity.GUID().String(), "error", err)
			}
		case t.ownerAboard(p.entity):
			// Pets follow their owner's transfer.
		default:
			old.Remove(p.entity)
			if err := dest.Add(p.entity); err != nil {
				t.logger.Warn("failed to move passenger", "passenger", p.entity.GUID().String(), "error", err)
				continue
			}
			if err := dest.Relocate(p.entity, pos); err != nil {
				t.logger.Debug("failed to relocate passenger", "passenger", p.entity.GUID().String(), "error", err)
			}
		}
	}

	t.inTransit = false
	t.sinceUpdate = 0
	t.updatePosition(t.pos)
	t.publish()
	dest.AddUpdatable(t)
}

func (t *Transport) ownerAboard(e Entity) bool {
	o, ok := e.(Owned)
	if !ok {
		return false
	}
	owner := o.OwnerGUID()
	if owner == 0 {
		return false
	}
	p, ok := t.passengers[owner]
	return ok && p.entity.TypeID() == core.TypePlayer
}
