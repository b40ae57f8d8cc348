package world

import (
	"github.com/OCAP2/transport/internal/transport"
	"github.com/OCAP2/transport/pkg/core"
)

// Observer receives the visibility changes a map would send to its
// players. The stream package forwards them to live viewers.
type Observer interface {
	Created(mapID uint32, viewer core.GUID, subject transport.Entity)
	OutOfRange(mapID uint32, viewer core.GUID, subject core.GUID)
	Teleported(mapID uint32, player core.GUID, pos core.Position)
	Transferred(player core.GUID, from, to uint32, pos core.Position)
	Moved(mapID uint32, subject core.GUID, pos core.Position)
}

// NopObserver discards every notification.
type NopObserver struct{}

func (NopObserver) Created(uint32, core.GUID, transport.Entity)          {}
func (NopObserver) OutOfRange(uint32, core.GUID, core.GUID)              {}
func (NopObserver) Teleported(uint32, core.GUID, core.Position)          {}
func (NopObserver) Transferred(core.GUID, uint32, uint32, core.Position) {}
func (NopObserver) Moved(uint32, core.GUID, core.Position)               {}

// Observers fans every notification out to each observer in order.
type Observers []Observer

func (o Observers) Created(mapID uint32, viewer core.GUID, subject transport.Entity) {
	for _, ob := range o {
		ob.Created(mapID, viewer, subject)
	}
}

func (o Observers) OutOfRange(mapID uint32, viewer, subject core.GUID) {
	for _, ob := range o {
		ob.OutOfRange(mapID, viewer, subject)
	}
}

func (o Observers) Teleported(mapID uint32, player core.GUID, pos core.Position) {
	for _, ob := range o {
		ob.Teleported(mapID, player, pos)
	}
}

func (o Observers) Transferred(player core.GUID, from, to uint32, pos core.Position) {
	for _, ob := range o {
		ob.Transferred(player, from, to, pos)
	}
}

func (o Observers) Moved(mapID uint32, subject core.GUID, pos core.Position) {
	for _, ob := range o {
		ob.Moved(mapID, subject, pos)
	}
}
