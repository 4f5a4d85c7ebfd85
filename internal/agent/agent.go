// Package agent is the per-tick orchestrator: it reads the vehicle state
// and the latest detections, decides a behavior, plans and tracks lane
// changes, and composes the actuator command.
package agent

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/lanepilot/internal/command"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/geom"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/planner"
	"github.com/banshee-data/lanepilot/internal/pursuit"
	"github.com/banshee-data/lanepilot/internal/radar"
	"github.com/banshee-data/lanepilot/internal/roadway"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// lanePathStep is the sample spacing of lane-centre maneuver paths (m).
const lanePathStep = 2.5

// VehicleState is the ego vehicle as seen by the agent.
type VehicleState interface {
	Pose() geom.Pose
	Velocity() r3.Vector
}

// DetectionSource yields the most recent detection batch. ok is false when
// nothing new has arrived since the previous call. It must not block.
type DetectionSource interface {
	Latest() (radar.Batch, bool)
}

// Deps are the collaborators the agent reads each tick.
type Deps struct {
	Vehicle  VehicleState
	Road     roadway.Map
	Sensor   DetectionSource
	Clock    timeutil.Clock
	Observer Observer
}

// maneuver is an in-flight lane change.
type maneuver struct {
	side       decision.Side
	targetLane int
	startedAt  time.Time
}

// State is all memory the agent carries between ticks.
type State struct {
	filter   *radar.Filter
	pursuit  *pursuit.Controller
	behavior decision.Behavior

	cooldownUntil time.Time
	maneuver      *maneuver

	obstacle   radar.Obstacle
	sensorSeen bool
	ttc        float64
	ticks      uint64
}

// Agent drives one vehicle. Tick must be called from a single goroutine;
// State, TTC and Snapshot may be called concurrently with it.
type Agent struct {
	cfg  Config
	deps Deps
	logf func(format string, v ...interface{})

	st State

	mu          sync.RWMutex
	last        TickRecord
	status      Status
	filterStats radar.FilterStats
}

// New constructs an agent in the Cruise state. A nil Clock uses the wall
// clock.
func New(cfg Config, deps Deps) *Agent {
	if deps.Clock == nil {
		deps.Clock = &timeutil.RealClock{}
	}
	a := &Agent{
		cfg:  cfg,
		deps: deps,
		logf: monitoring.Prefixed("agent"),
		st: State{
			filter:   radar.NewFilter(cfg.Filter),
			pursuit:  pursuit.NewController(cfg.Pursuit),
			behavior: decision.Of(decision.Cruise),
			obstacle: radar.ClearObstacle(),
			ttc:      math.Inf(1),
		},
	}
	a.status = Status{Behavior: a.st.behavior.String(), Raw: decision.Cruise.String(), LaneID: -1}
	return a
}

// Tick runs one control step and returns the command to apply. It never
// fails; if ctx is already done the vehicle is told to stop.
func (a *Agent) Tick(ctx context.Context) command.Control {
	if ctx.Err() != nil {
		return command.Control{Brake: 1, Steer: a.st.pursuit.Hold()}
	}
	st := &a.st
	st.ticks++
	now := a.deps.Clock.Now()

	pose := a.deps.Vehicle.Pose()
	speed := a.deps.Vehicle.Velocity().Norm()

	obs := a.pollObstacle()
	raw, ttc := decision.Evaluate(a.cfg.Thresholds, obs)
	st.ttc = ttc

	wp := a.waypoint(pose)
	prev := st.behavior

	var steer float64
	switch {
	case wp == nil:
		a.endManeuver(now, "off-road")
		steer = st.pursuit.Straight()
		st.behavior = decision.Of(raw)

	case raw == decision.Emergency:
		a.endManeuver(now, "emergency")
		steer, _ = st.pursuit.TrackRoad(pose, speed, wp)
		st.behavior = decision.Of(decision.Emergency)

	case st.maneuver != nil:
		steer = a.continueManeuver(now, pose, speed, wp)

	default:
		steer = a.laneKeepOrAvoid(now, pose, speed, wp, obs, raw)
	}

	lead := 0.0
	if obs != nil && !obs.Clear() {
		lead = math.Max(speed+obs.RelativeVelocity, 0)
	}
	ctl := command.Compose(a.cfg.Command, st.behavior.Kind, ttc, speed, lead, steer)

	if st.behavior != prev {
		a.logf("state %s -> %s dist=%s ttc=%.1f", prev, st.behavior, distString(obs), ttc)
	}

	rec := TickRecord{
		Tick:     st.ticks,
		Time:     now,
		Pose:     pose,
		Speed:    speed,
		Known:    obs != nil,
		Distance: math.Inf(1),
		TTC:      ttc,
		Raw:      raw,
		Behavior: st.behavior,
		Control:  ctl,
		LaneID:   -1,
		OnPath:   st.pursuit.HasPath(),
		Cooldown: now.Before(st.cooldownUntil),
	}
	if obs != nil {
		rec.Distance, rec.RelVel = obs.Distance, obs.RelativeVelocity
	}
	if wp != nil {
		rec.LaneID = wp.LaneID()
	}
	a.publish(rec)
	return ctl
}

// pollObstacle returns nil until the first batch has been seen. Without a
// new batch the previous filter output is held.
func (a *Agent) pollObstacle() *radar.Obstacle {
	st := &a.st
	if a.deps.Sensor != nil {
		if batch, ok := a.deps.Sensor.Latest(); ok {
			st.obstacle = st.filter.Process(batch)
			st.sensorSeen = true
		}
	}
	if !st.sensorSeen {
		return nil
	}
	o := st.obstacle
	return &o
}

func (a *Agent) waypoint(pose geom.Pose) roadway.Waypoint {
	if a.deps.Road == nil {
		return nil
	}
	return a.deps.Road.WaypointAt(pose.Position)
}

// continueManeuver tracks the active lane change, ending it on completion,
// timeout or loss of the target lane.
func (a *Agent) continueManeuver(now time.Time, pose geom.Pose, speed float64, wp roadway.Waypoint) float64 {
	st := &a.st
	m := st.maneuver

	if a.cfg.MaxManeuverTime > 0 && now.Sub(m.startedAt) > a.cfg.MaxManeuverTime {
		a.endManeuver(now, "timeout")
		st.behavior = decision.Of(decision.Cruise)
		steer, _ := st.pursuit.TrackRoad(pose, speed, wp)
		return steer
	}

	if !targetLaneValid(wp, m) {
		a.endManeuver(now, "target lane lost")
		st.behavior = decision.Of(decision.Cruise)
		steer, _ := st.pursuit.TrackRoad(pose, speed, wp)
		return steer
	}

	steer, active := st.pursuit.TrackPath(pose, speed)
	if !active {
		a.endManeuver(now, "complete")
		st.behavior = decision.Of(decision.Cruise)
		steer, _ = st.pursuit.TrackRoad(pose, speed, wp)
	}
	return steer
}

// targetLaneValid holds while the vehicle is either already on the target
// lane or the neighbour on the maneuver side is the drivable target lane.
func targetLaneValid(wp roadway.Waypoint, m *maneuver) bool {
	if wp.LaneID() == m.targetLane {
		return true
	}
	n := roadway.DrivableNeighbour(wp, m.side == decision.SideLeft)
	return n != nil && n.LaneID() == m.targetLane
}

// laneKeepOrAvoid is the steady state: start a lane change when an
// obstacle is inside the avoidance horizon, otherwise follow the lane.
func (a *Agent) laneKeepOrAvoid(now time.Time, pose geom.Pose, speed float64, wp roadway.Waypoint, obs *radar.Obstacle, raw decision.Kind) float64 {
	st := &a.st

	if !a.cfg.Thresholds.Threatening(obs) {
		st.behavior = decision.Of(raw)
		steer, _ := st.pursuit.TrackRoad(pose, speed, wp)
		return steer
	}

	if !now.Before(st.cooldownUntil) {
		if steer, ok := a.startManeuver(now, pose, speed, wp); ok {
			return steer
		}
	}

	// No lane to move into: stay behind the obstacle.
	if raw == decision.Cruise {
		st.behavior = decision.Of(decision.Follow)
	} else {
		st.behavior = decision.Of(raw)
	}
	steer, _ := st.pursuit.TrackRoad(pose, speed, wp)
	return steer
}

// startManeuver plans a lane change to the left drivable lane, or the
// right one if the left is unavailable.
func (a *Agent) startManeuver(now time.Time, pose geom.Pose, speed float64, wp roadway.Waypoint) (float64, bool) {
	st := &a.st
	side := decision.SideLeft
	target := roadway.DrivableNeighbour(wp, true)
	if target == nil {
		side = decision.SideRight
		target = roadway.DrivableNeighbour(wp, false)
	}
	if target == nil {
		return 0, false
	}

	laneYaw := wp.Yaw()
	lateral := geom.ToLocal(geom.Pose{Position: pose.Position, Yaw: laneYaw}, roadway.Planar(target)).Y
	extent := planner.ManeuverExtent(speed, a.cfg.ManeuverSeconds, a.cfg.ManeuverMinExtent, a.cfg.ManeuverMaxExtent)
	var traj planner.Trajectory
	if a.cfg.ManeuverPath == config.ManeuverPathLane {
		traj = planner.LaneOffsetPath(target, 0, extent, lanePathStep)
	} else {
		traj = planner.LaneChange(a.cfg.Curve, pose, laneYaw, lateral, extent)
	}

	st.pursuit.SetPath(traj)
	steer, active := st.pursuit.TrackPath(pose, speed)
	if !active {
		st.pursuit.ClearPath()
		return 0, false
	}

	st.maneuver = &maneuver{side: side, targetLane: target.LaneID(), startedAt: now}
	st.behavior = decision.ChangeLane(side)
	monitoring.Debugf("lane change %s: lateral=%.2f extent=%.1f points=%d", side, lateral, extent, len(traj))
	return steer, true
}

// endManeuver discards any active lane change and starts the cooldown.
func (a *Agent) endManeuver(now time.Time, reason string) {
	st := &a.st
	if st.maneuver == nil {
		return
	}
	a.logf("lane change %s ended: %s", st.maneuver.side, reason)
	st.maneuver = nil
	st.pursuit.ClearPath()
	st.cooldownUntil = now.Add(a.cfg.Cooldown)
}

func (a *Agent) publish(rec TickRecord) {
	a.mu.Lock()
	a.last = rec
	a.status = StatusFromRecord(rec)
	a.filterStats = a.st.filter.Stats()
	a.mu.Unlock()

	if a.deps.Observer != nil {
		a.deps.Observer.OnTick(rec)
	}
}

// State returns the behavior chosen on the last tick.
func (a *Agent) State() decision.Behavior {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last.Tick == 0 {
		return decision.Of(decision.Cruise)
	}
	return a.last.Behavior
}

// TTC returns the time-to-collision computed on the last tick.
func (a *Agent) TTC() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last.Tick == 0 {
		return math.Inf(1)
	}
	return a.last.TTC
}

// Last returns the most recent tick record.
func (a *Agent) Last() TickRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Snapshot returns the JSON view of the last tick.
func (a *Agent) Snapshot() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// FilterStats returns the obstacle filter counters as of the last tick.
func (a *Agent) FilterStats() radar.FilterStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.filterStats
}

func distString(o *radar.Obstacle) string {
	if o == nil {
		return "unknown"
	}
	return o.String()
}
