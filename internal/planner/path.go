package planner

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/lanepilot/internal/roadway"
)

// LaneOffsetPath walks the lane forward from wp in steps of step metres
// until length is covered or the lane ends, shifting each sample
// perpendicular to its heading by offset (left positive). The first point
// is wp itself, shifted.
func LaneOffsetPath(wp roadway.Waypoint, offset, length, step float64) Trajectory {
	if wp == nil || !(step > 0) || math.IsNaN(length) {
		return nil
	}
	traj := Trajectory{shifted(wp, offset)}
	for covered := step; covered <= length+1e-9; covered += step {
		wp = wp.Forward(step)
		if wp == nil {
			break
		}
		traj = append(traj, shifted(wp, offset))
	}
	return traj
}

func shifted(wp roadway.Waypoint, offset float64) r2.Point {
	s, c := math.Sincos(wp.Yaw())
	left := r2.Point{X: -s, Y: c}
	return roadway.Planar(wp).Add(left.Mul(offset))
}
