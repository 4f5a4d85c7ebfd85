// Package planner builds the short trajectories the pursuit controller
// follows: a smooth lane-change curve and a lane-offset path sampled from
// the road map.
package planner

import (
	"github.com/golang/geo/r2"

	"github.com/banshee-data/lanepilot/internal/geom"
)

// Trajectory is an ordered list of finite points. Before ToWorld the
// points are in the maneuver frame: X is forward progress, Y is lateral
// offset (left positive).
type Trajectory []r2.Point

// ToWorld rotates the trajectory by yaw and translates it to origin.
func (t Trajectory) ToWorld(origin r2.Point, yaw float64) Trajectory {
	out := make(Trajectory, len(t))
	for i, p := range t {
		out[i] = geom.Rotate(p, yaw).Add(origin)
	}
	return out
}

// Last returns the final point and false when the trajectory is empty.
func (t Trajectory) Last() (r2.Point, bool) {
	if len(t) == 0 {
		return r2.Point{}, false
	}
	return t[len(t)-1], true
}

// Length is the summed polyline length.
func (t Trajectory) Length() float64 {
	var total float64
	for i := 1; i < len(t); i++ {
		total += t[i].Sub(t[i-1]).Norm()
	}
	return total
}

// Finite reports whether every point is finite.
func (t Trajectory) Finite() bool {
	for _, p := range t {
		if !geom.Finite(p) {
			return false
		}
	}
	return true
}
