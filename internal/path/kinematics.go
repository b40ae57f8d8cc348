package path

import "math"

// TimeToStop returns the seconds left until the next stop for a transport
// that has covered since yards of a stretch of total yards. Velocity
// follows a symmetric trapezoid: accelerate at accel up to speed, cruise,
// decelerate at accel. Stretches shorter than two acceleration distances
// never reach cruise speed.
func TimeToStop(total, since, speed, accel float64) float64 {
	until := math.Max(total-since, 0)
	accelDist := 0.5 * speed * speed / accel

	switch {
	case total < 2*accelDist:
		if since < until {
			return 2*math.Sqrt(total/accel) - math.Sqrt(2*since/accel)
		}
		return math.Sqrt(2 * until / accel)
	case since < accelDist:
		return total/speed + speed/accel - math.Sqrt(2*since/accel)
	case until < accelDist:
		return math.Sqrt(2 * until / accel)
	default:
		return until/speed + 0.5*speed/accel
	}
}

// StretchDuration returns the seconds needed to travel a whole stretch
// from standstill to standstill.
func StretchDuration(total, speed, accel float64) float64 {
	return TimeToStop(total, 0, speed, accel)
}

// Travelled returns the yards covered t seconds after leaving a stop.
// The same curve read backwards gives the distance still to go t seconds
// before arriving at one.
func Travelled(t, speed, accel float64) float64 {
	if t <= 0 {
		return 0
	}
	accelTime := speed / accel
	if t < accelTime {
		return 0.5 * accel * t * t
	}
	return 0.5*speed*accelTime + (t-accelTime)*speed
}
