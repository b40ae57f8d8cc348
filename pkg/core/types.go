// pkg/core/types.go
package core

import (
	"fmt"
	"math"
)

// Position is a world or transport-local pose. O is the heading in radians.
type Position struct {
	X float64
	Y float64
	Z float64
	O float64
}

// TypeID identifies the kind of a world object.
type TypeID uint8

const (
	TypeNone TypeID = iota
	TypePlayer
	TypeCreature
	TypeGameObject
	TypeTransport
)

func (t TypeID) String() string {
	switch t {
	case TypePlayer:
		return "player"
	case TypeCreature:
		return "creature"
	case TypeGameObject:
		return "gameobject"
	case TypeTransport:
		return "transport"
	default:
		return "none"
	}
}

// GUID is a world-unique object id. The high byte carries the TypeID.
type GUID uint64

// MakeGUID combines a type and a low counter into a GUID.
func MakeGUID(t TypeID, low uint64) GUID {
	return GUID(uint64(t)<<56 | low&0x00FFFFFFFFFFFFFF)
}

// Type returns the TypeID encoded in the GUID.
func (g GUID) Type() TypeID {
	return TypeID(uint64(g) >> 56)
}

// Counter returns the low part of the GUID.
func (g GUID) Counter() uint64 {
	return uint64(g) & 0x00FFFFFFFFFFFFFF
}

func (g GUID) String() string {
	return fmt.Sprintf("%s:%d", g.Type(), g.Counter())
}

// IsFinite reports whether every coordinate of the position is a real number.
func (p Position) IsFinite() bool {
	for _, v := range []float64{p.X, p.Y, p.Z, p.O} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
