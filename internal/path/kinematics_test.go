package path

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// simulate integrates a trapezoidal velocity profile over a stretch and
// records when each mark is passed. Velocity is piecewise linear, so each
// step moves by the mean of its start and end velocity. The transport
// brakes as soon as accelerating or cruising for one more step would leave
// it unable to stop before the end.
func simulate(total, speed, accel float64, marks []float64) ([]float64, float64) {
	const dt = 1e-4
	times := make([]float64, len(marks))
	var x, v, tm float64
	idx := 0
	pass := func(dx, step float64) {
		for idx < len(marks) && x+dx >= marks[idx] {
			times[idx] = tm + step*(marks[idx]-x)/dx
			idx++
		}
	}

	for {
		vn := math.Min(v+accel*dt, speed)
		if dx := 0.5 * (v + vn) * dt; x+dx+vn*vn/(2*accel) > total {
			vn = v - accel*dt
		}
		if vn <= 0 {
			// Stops within this step.
			step := v / accel
			dx := math.Max(total-x, 0)
			if dx > 0 {
				pass(dx, step)
			}
			tm += step
			break
		}
		dx := 0.5 * (v + vn) * dt
		if x+dx >= total {
			step := dt * (total - x) / dx
			pass(total-x, step)
			tm += step
			break
		}
		pass(dx, dt)
		x += dx
		v = vn
		tm += dt
	}
	for ; idx < len(marks); idx++ {
		times[idx] = tm
	}
	return times, tm
}

func TestTimeToStop_MatchesIntegratedProfile(t *testing.T) {
	tests := []struct {
		name         string
		total        float64
		speed, accel float64
	}{
		{"short stretch never cruises", 10, 5, 1},
		{"two stops in a row", 3, 8, 2},
		{"long stretch", 300, 10, 2},
		{"exactly two accel distances", 25, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fractions := []float64{0.01, 0.1, 0.3, 0.5, 0.7, 0.95}
			marks := make([]float64, len(fractions))
			for i, f := range fractions {
				marks[i] = f * tt.total
			}
			times, duration := simulate(tt.total, tt.speed, tt.accel, marks)

			assert.InDelta(t, duration, StretchDuration(tt.total, tt.speed, tt.accel), 0.05)
			for i, since := range marks {
				got := TimeToStop(tt.total, since, tt.speed, tt.accel)
				assert.InDelta(t, duration-times[i], got, 0.05, "since=%v", since)
			}
		})
	}
}

func TestTravelled_InvertsTimeToStop(t *testing.T) {
	const total, speed, accel = 120.0, 6.0, 1.5
	duration := StretchDuration(total, speed, accel)

	for _, since := range []float64{0, 5, 12, 40, 80, 110, 119} {
		elapsed := duration - TimeToStop(total, since, speed, accel)
		remaining := duration - elapsed
		var got float64
		if elapsed < remaining {
			got = Travelled(elapsed, speed, accel)
		} else {
			got = total - Travelled(remaining, speed, accel)
		}
		assert.InDelta(t, since, got, 1e-6, "since=%v", since)
	}
}

func TestTravelled(t *testing.T) {
	assert.Equal(t, 0.0, Travelled(-1, 5, 1))
	assert.InDelta(t, 2.0, Travelled(2, 5, 1), 1e-12)
	assert.InDelta(t, 12.5, Travelled(5, 5, 1), 1e-12)
	assert.InDelta(t, 22.5, Travelled(7, 5, 1), 1e-12)
}
