package sim

import (
	"math"
	"sync"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/lanepilot/internal/command"
	"github.com/banshee-data/lanepilot/internal/geom"
	"github.com/banshee-data/lanepilot/internal/radar"
	"github.com/banshee-data/lanepilot/internal/roadway"
)

// Actor is another road user. Actors move in a straight line at constant
// speed along Heading.
type Actor struct {
	ID       int
	Position r2.Point // centre
	Heading  float64
	Speed    float64
	Length   float64
	Width    float64
	Height   float64
}

// Velocity is the world-frame velocity.
func (a Actor) Velocity() r2.Point {
	s, c := math.Sincos(a.Heading)
	return r2.Point{X: c * a.Speed, Y: s * a.Speed}
}

// rearFace returns n points spread across the back of the actor.
func (a Actor) rearFace(n int) []r2.Point {
	s, c := math.Sincos(a.Heading)
	fwd := r2.Point{X: c, Y: s}
	left := fwd.Ortho()
	back := a.Position.Sub(fwd.Mul(a.Length / 2))
	if n <= 1 {
		return []r2.Point{back}
	}
	pts := make([]r2.Point, n)
	half := 0.4 * a.Width
	for i := range pts {
		off := -half + 2*half*float64(i)/float64(n-1)
		pts[i] = back.Add(left.Mul(off))
	}
	return pts
}

// WorldConfig bounds the actor population.
type WorldConfig struct {
	MaxActors     int
	CleanupBehind float64 // actors this far behind the ego are removed
}

// DefaultWorldConfig keeps at most two obstacles and drops them once they
// are 15 m behind.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{MaxActors: 2, CleanupBehind: 15}
}

// World ties the road, the ego vehicle, other actors and the sensor model
// together. Methods are safe for concurrent use.
type World struct {
	Road  *StraightRoad
	Ego   *Vehicle
	Radar RadarConfig
	cfg   WorldConfig

	mu     sync.Mutex
	actors []Actor
	nextID int
}

// NewWorld builds a world with the ego vehicle placed at station on lane.
func NewWorld(cfg WorldConfig, road *StraightRoad, vcfg VehicleConfig, lane int, station, speed float64) *World {
	p := road.Point(station, road.LaneCentre(lane))
	ego := NewVehicle(vcfg, geom.Pose{Position: toR3(p), Yaw: road.Heading}, speed)
	return &World{
		Road:   road,
		Ego:    ego,
		Radar:  DefaultRadarConfig(),
		cfg:    cfg,
		nextID: 1,
	}
}

// Map exposes the road as a roadway.Map.
func (w *World) Map() roadway.Map { return w.Road }

// AddActor inserts a at the given station and lane, ignoring MaxActors.
func (w *World) AddActor(station float64, lane int, speed float64) Actor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addLocked(station, w.Road.LaneCentre(lane), speed)
}

func (w *World) addLocked(station, lateral, speed float64) Actor {
	a := Actor{
		ID:       w.nextID,
		Position: w.Road.Point(station, lateral),
		Heading:  w.Road.Heading,
		Speed:    speed,
		Length:   4.8,
		Width:    2.0,
		Height:   1.8,
	}
	w.nextID++
	w.actors = append(w.actors, a)
	return a
}

// SpawnAhead places an obstacle distance metres ahead of the ego on the
// ego's current lane. It returns false when the actor limit is reached or
// the spawn point is off-road.
func (w *World) SpawnAhead(distance, speed float64) (Actor, bool) {
	wp := w.Road.WaypointAt(w.Ego.Pose().Position)
	if wp == nil {
		return Actor{}, false
	}
	ahead := wp.Forward(distance)
	if ahead == nil {
		return Actor{}, false
	}
	s, l := w.Road.Frenet(roadway.Planar(ahead))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cfg.MaxActors > 0 && len(w.actors) >= w.cfg.MaxActors {
		return Actor{}, false
	}
	return w.addLocked(s, l, speed), true
}

// Actors returns a snapshot of the current actors.
func (w *World) Actors() []Actor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Actor(nil), w.actors...)
}

// Step advances the ego by ctl and every actor by dt, then drops actors
// that have fallen behind. It returns the number removed.
func (w *World) Step(ctl command.Control, dt float64) int {
	w.Ego.Step(ctl, dt)
	ego := w.Ego.Pose()

	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.actors[:0]
	removed := 0
	for _, a := range w.actors {
		a.Position = a.Position.Add(a.Velocity().Mul(dt))
		if geom.ToLocal(ego, a.Position).X < -w.cfg.CleanupBehind {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	w.actors = kept
	return removed
}

// Sense runs the sensor model against the current state.
func (w *World) Sense() radar.Batch {
	v := w.Ego.Velocity()
	return w.Radar.Sense(w.Ego.Pose(), r2.Point{X: v.X, Y: v.Y}, w.Actors())
}

// Gap is the longitudinal clearance from the ego front bumper to the
// nearest actor rear in the ego's lane band, +Inf if none.
func (w *World) Gap(halfWidth float64) float64 {
	ego := w.Ego.Pose()
	gap := math.Inf(1)
	for _, a := range w.Actors() {
		local := geom.ToLocal(ego, a.Position)
		if local.X <= 0 || math.Abs(local.Y) > halfWidth+a.Width/2 {
			continue
		}
		gap = math.Min(gap, local.X-a.Length/2-w.Radar.MountForward)
	}
	return gap
}
