package geo

import (
	"math"

	"github.com/OCAP2/transport/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

const twoPi = 2 * math.Pi

// NormalizeOrientation maps an angle into [0, 2π).
func NormalizeOrientation(o float64) float64 {
	o = math.Mod(o, twoPi)
	if o < 0 {
		o += twoPi
	}
	if o >= twoPi {
		return 0
	}
	return o
}

// LocalToWorld places a transport-local pose into the world using the
// carrier's current pose.
func LocalToWorld(local, carrier core.Position) core.Position {
	off := mgl64.Rotate2D(carrier.O).Mul2x1(mgl64.Vec2{local.X, local.Y})
	return core.Position{
		X: carrier.X + off.X(),
		Y: carrier.Y + off.Y(),
		Z: carrier.Z + local.Z,
		O: NormalizeOrientation(carrier.O + local.O),
	}
}

// WorldToLocal is the inverse of LocalToWorld.
func WorldToLocal(world, carrier core.Position) core.Position {
	rel := mgl64.Rotate2D(-carrier.O).Mul2x1(mgl64.Vec2{world.X - carrier.X, world.Y - carrier.Y})
	return core.Position{
		X: rel.X(),
		Y: rel.Y(),
		Z: world.Z - carrier.Z,
		O: NormalizeOrientation(world.O - carrier.O),
	}
}

// Heading returns the yaw of a direction vector.
func Heading(dir mgl64.Vec3) float64 {
	return NormalizeOrientation(math.Atan2(dir.Y(), dir.X()))
}

// Distance2D is the planar distance between two positions.
func Distance2D(a, b core.Position) float64 {
	return mgl64.Vec2{a.X - b.X, a.Y - b.Y}.Len()
}
