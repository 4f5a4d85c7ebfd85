// Package sim is a small kinematic world used for development runs and
// end-to-end tests: a straight multi-lane road, a bicycle-model ego
// vehicle, obstacle actors and a forward ranging sensor.
package sim

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/lanepilot/internal/roadway"
)

// LaneSpec describes one lane of a StraightRoad. Start and End bound the
// stations (metres along the road) where the lane exists; End <= Start
// means the lane never ends.
type LaneSpec struct {
	Type  roadway.LaneType
	Start float64
	End   float64
}

func (l LaneSpec) contains(s float64) bool {
	if s < l.Start {
		return false
	}
	return l.End <= l.Start || s <= l.End
}

// StraightRoad is a straight road starting at Origin and heading along
// Heading. Lane 0 is the rightmost lane and its centreline passes through
// Origin; lane i is i·LaneWidth to the left.
type StraightRoad struct {
	Origin    r2.Point
	Heading   float64
	LaneWidth float64
	Lanes     []LaneSpec
}

// NewStraightRoad builds an unbounded road along +x with the given lane types.
func NewStraightRoad(laneWidth float64, types ...roadway.LaneType) *StraightRoad {
	r := &StraightRoad{LaneWidth: laneWidth}
	for _, t := range types {
		r.Lanes = append(r.Lanes, LaneSpec{Type: t})
	}
	return r
}

// TwoLaneRoad is the default development road: the ego lane with a
// drivable lane to its left and a shoulder to its right.
func TwoLaneRoad() *StraightRoad {
	return NewStraightRoad(3.5, roadway.Shoulder, roadway.Driving, roadway.Driving)
}

func (r *StraightRoad) axes() (fwd, left r2.Point) {
	s, c := math.Sincos(r.Heading)
	return r2.Point{X: c, Y: s}, r2.Point{X: -s, Y: c}
}

// Frenet returns the station and lateral offset of p from the lane 0
// centreline.
func (r *StraightRoad) Frenet(p r2.Point) (station, lateral float64) {
	fwd, left := r.axes()
	d := p.Sub(r.Origin)
	return d.Dot(fwd), d.Dot(left)
}

// Point is the inverse of Frenet.
func (r *StraightRoad) Point(station, lateral float64) r2.Point {
	fwd, left := r.axes()
	return r.Origin.Add(fwd.Mul(station)).Add(left.Mul(lateral))
}

// LaneCentre is the lateral offset of lane i.
func (r *StraightRoad) LaneCentre(lane int) float64 {
	return float64(lane) * r.LaneWidth
}

// WaypointAt implements roadway.Map.
func (r *StraightRoad) WaypointAt(p r3.Vector) roadway.Waypoint {
	s, l := r.Frenet(r2.Point{X: p.X, Y: p.Y})
	lane := int(math.Round(l / r.LaneWidth))
	if math.IsNaN(s) || lane < 0 || lane >= len(r.Lanes) || !r.Lanes[lane].contains(s) {
		return nil
	}
	return &waypoint{road: r, lane: lane, station: s}
}

type waypoint struct {
	road    *StraightRoad
	lane    int
	station float64
}

func (w *waypoint) Position() r3.Vector {
	return toR3(w.road.Point(w.station, w.road.LaneCentre(w.lane)))
}

func (w *waypoint) Yaw() float64               { return w.road.Heading }
func (w *waypoint) LaneID() int                { return w.lane }
func (w *waypoint) LaneType() roadway.LaneType { return w.road.Lanes[w.lane].Type }
func (w *waypoint) Station() float64           { return w.station }

func (w *waypoint) Forward(d float64) roadway.Waypoint {
	s := w.station + d
	if !w.road.Lanes[w.lane].contains(s) {
		return nil
	}
	return &waypoint{road: w.road, lane: w.lane, station: s}
}

func (w *waypoint) Left() roadway.Waypoint  { return w.neighbour(w.lane + 1) }
func (w *waypoint) Right() roadway.Waypoint { return w.neighbour(w.lane - 1) }

func (w *waypoint) neighbour(lane int) roadway.Waypoint {
	if lane < 0 || lane >= len(w.road.Lanes) || !w.road.Lanes[lane].contains(w.station) {
		return nil
	}
	return &waypoint{road: w.road, lane: lane, station: w.station}
}

func toR3(p r2.Point) r3.Vector { return r3.Vector{X: p.X, Y: p.Y} }
