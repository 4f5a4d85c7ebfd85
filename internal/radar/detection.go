// Package radar turns raw forward ranging returns into a single in-lane
// obstacle estimate.
package radar

import (
	"fmt"
	"math"
)

// Detection is one radar return in the sensor frame.
// Azimuth and Altitude are radians; Velocity is the radial velocity in m/s,
// negative when the target is closing.
type Detection struct {
	Depth    float64 `json:"depth"`
	Azimuth  float64 `json:"azimuth"`
	Altitude float64 `json:"altitude"`
	Velocity float64 `json:"velocity"`
}

// Lateral is the signed offset of the return from the sensor boresight.
func (d Detection) Lateral() float64 {
	return d.Depth * math.Sin(d.Azimuth)
}

func (d Detection) String() string {
	return fmt.Sprintf("depth=%.2fm az=%.3frad v=%.2fm/s", d.Depth, d.Azimuth, d.Velocity)
}

// Batch is all returns reported in a single sensor frame.
type Batch []Detection

// Obstacle is the filtered estimate of the nearest in-lane object.
// A clear road is reported as Distance == +Inf with zero velocity.
type Obstacle struct {
	Distance         float64 `json:"distance"`
	RelativeVelocity float64 `json:"relative_velocity"`
}

// ClearObstacle is the value reported when nothing qualifies.
func ClearObstacle() Obstacle {
	return Obstacle{Distance: math.Inf(1)}
}

// Clear reports whether no obstacle is present.
func (o Obstacle) Clear() bool {
	return math.IsInf(o.Distance, 1)
}

func (o Obstacle) String() string {
	if o.Clear() {
		return "clear"
	}
	return fmt.Sprintf("%.2fm @ %.2fm/s", o.Distance, o.RelativeVelocity)
}
