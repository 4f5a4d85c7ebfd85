// Package roadway defines the read-only road topology the agent queries.
// Implementations live elsewhere (the simulator, or a map service adapter).
package roadway

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// LaneType classifies a lane. Only Driving lanes are valid targets for a
// lane change.
type LaneType int

const (
	Unknown LaneType = iota
	Driving
	Shoulder
	Sidewalk
	Parking
	Bidirectional
)

func (t LaneType) String() string {
	switch t {
	case Driving:
		return "driving"
	case Shoulder:
		return "shoulder"
	case Sidewalk:
		return "sidewalk"
	case Parking:
		return "parking"
	case Bidirectional:
		return "bidirectional"
	default:
		return "unknown"
	}
}

// Drivable reports whether the lane type may be entered by the agent.
func (t LaneType) Drivable() bool { return t == Driving }

// Waypoint is a sample on a lane centreline.
type Waypoint interface {
	Position() r3.Vector
	Yaw() float64
	LaneID() int
	LaneType() LaneType
	// Forward returns the waypoint d metres further along the lane, or nil
	// if the lane ends before that.
	Forward(d float64) Waypoint
	// Left and Right return the same-station waypoint on the neighbouring
	// lane, or nil if there is none.
	Left() Waypoint
	Right() Waypoint
}

// Map resolves world positions to lane waypoints.
type Map interface {
	// WaypointAt projects p onto the nearest lane centreline, or returns
	// nil when p is off-road.
	WaypointAt(p r3.Vector) Waypoint
}

// Planar drops the altitude of a waypoint position.
func Planar(wp Waypoint) r2.Point {
	p := wp.Position()
	return r2.Point{X: p.X, Y: p.Y}
}

// DrivableNeighbour returns the neighbour on the requested side if it
// exists and is drivable. left selects the left neighbour.
func DrivableNeighbour(wp Waypoint, left bool) Waypoint {
	if wp == nil {
		return nil
	}
	var n Waypoint
	if left {
		n = wp.Left()
	} else {
		n = wp.Right()
	}
	if n == nil || !n.LaneType().Drivable() {
		return nil
	}
	return n
}
