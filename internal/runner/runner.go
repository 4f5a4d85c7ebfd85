// Package runner drives the agent and the simulated world at a fixed
// timestep.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/lanepilot/internal/command"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/radar"
	"github.com/banshee-data/lanepilot/internal/sensorfeed"
	"github.com/banshee-data/lanepilot/internal/sim"
	"github.com/banshee-data/lanepilot/internal/timeutil"
	"github.com/banshee-data/lanepilot/internal/units"
)

// Controller is the part of the agent the loop needs.
type Controller interface {
	Tick(ctx context.Context) command.Control
	State() decision.Behavior
}

// Config controls the loop and the obstacle schedule.
type Config struct {
	FixedDelta time.Duration
	// Duration stops the run after this much clock time; zero runs until
	// the context is done.
	Duration time.Duration

	InitialSpawn    float64 // metres ahead of the ego for the first obstacle; <= 0 disables
	RespawnEvery    time.Duration
	RespawnDistance float64
	ObstacleSpeed   float64

	StatusEvery time.Duration
}

// DefaultConfig mirrors the interactive driving demo: one obstacle at
// 150 m, then another 80 m ahead every 20 s.
func DefaultConfig() Config {
	return Config{
		FixedDelta:      33 * time.Millisecond,
		InitialSpawn:    150,
		RespawnEvery:    20 * time.Second,
		RespawnDistance: 80,
		StatusEvery:     time.Second,
	}
}

// ConfigFromControl takes the timestep from the control config.
func ConfigFromControl(cfg *config.ControlConfig) Config {
	c := DefaultConfig()
	c.FixedDelta = cfg.GetFixedDelta()
	return c
}

// Deps are the collaborators of a run. Detections, when set, receives a
// simulated sensor frame every tick; leave it nil when a real sensor feeds
// the agent.
type Deps struct {
	World      *sim.World
	Agent      Controller
	Clock      timeutil.Clock
	Detections *sensorfeed.Slot[radar.Batch]
}

// Summary describes a finished run.
type Summary struct {
	Ticks       int
	Elapsed     time.Duration
	Spawned     int
	Removed     int
	Transitions int
	Final       decision.Behavior
}

// stepper is implemented by clocks that advance only when told to.
type stepper interface {
	Step() time.Time
}

// Runner owns the loop. It is not safe for concurrent use.
type Runner struct {
	cfg  Config
	deps Deps
	logf func(string, ...interface{})

	start     time.Time
	lastSpawn time.Time
	summary   Summary

	statusAt     time.Time
	statusFrames int
}

// New validates deps and returns a runner. A nil Clock uses the wall clock.
func New(cfg Config, deps Deps) (*Runner, error) {
	if deps.World == nil || deps.Agent == nil {
		return nil, errors.New("runner needs a world and an agent")
	}
	if cfg.FixedDelta <= 0 {
		return nil, errors.New("fixed delta must be positive")
	}
	if deps.Clock == nil {
		deps.Clock = &timeutil.RealClock{}
	}
	return &Runner{cfg: cfg, deps: deps, logf: monitoring.Prefixed("runner")}, nil
}

// Run loops until ctx is done or the configured duration has elapsed. A
// stepped clock is advanced once per tick without sleeping; any other clock
// paces the loop with a ticker. On cancellation the vehicle gets one final
// braking step. Cancellation is not an error.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	clock := r.deps.Clock
	r.start = clock.Now()
	r.lastSpawn = r.start
	r.statusAt = r.start

	if r.cfg.InitialSpawn > 0 {
		r.spawn(r.cfg.InitialSpawn)
	}

	step, stepped := clock.(stepper)
	var ticker timeutil.Ticker
	if !stepped {
		ticker = clock.NewTicker(r.cfg.FixedDelta)
		defer ticker.Stop()
	}

	for {
		if ctx.Err() != nil {
			r.stop(ctx)
			return r.finish(), nil
		}
		if r.cfg.Duration > 0 && clock.Since(r.start) >= r.cfg.Duration {
			return r.finish(), nil
		}

		r.tick(ctx)

		if stepped {
			step.Step()
			continue
		}
		select {
		case <-ctx.Done():
		case <-ticker.C():
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	w := r.deps.World
	now := r.deps.Clock.Now()

	if r.deps.Detections != nil {
		r.deps.Detections.Put(w.Sense())
	}

	prev := r.deps.Agent.State()
	ctl := r.deps.Agent.Tick(ctx)
	if r.deps.Agent.State() != prev {
		r.summary.Transitions++
	}
	r.summary.Removed += w.Step(ctl, r.cfg.FixedDelta.Seconds())
	r.summary.Ticks++

	if r.cfg.RespawnEvery > 0 && now.Sub(r.lastSpawn) >= r.cfg.RespawnEvery {
		r.spawn(r.cfg.RespawnDistance)
		r.lastSpawn = now
	}

	r.statusFrames++
	if r.cfg.StatusEvery > 0 {
		if elapsed := now.Sub(r.statusAt); elapsed >= r.cfg.StatusEvery {
			fps := float64(r.statusFrames) / elapsed.Seconds()
			kmh := units.ConvertSpeed(w.Ego.Speed(), units.KPH)
			r.logf("FPS: %.1f | Spd: %.1f km/h | State: %s", fps, kmh, r.deps.Agent.State())
			r.statusAt = now
			r.statusFrames = 0
		}
	}
}

func (r *Runner) spawn(distance float64) {
	a, ok := r.deps.World.SpawnAhead(distance, r.cfg.ObstacleSpeed)
	if !ok {
		monitoring.Debugf("runner: spawn %.0fm ahead skipped", distance)
		return
	}
	r.summary.Spawned++
	r.logf("spawned obstacle %d %.0fm ahead", a.ID, distance)
}

// stop applies the agent's shutdown command once so the vehicle is left
// braking.
func (r *Runner) stop(ctx context.Context) {
	ctl := r.deps.Agent.Tick(ctx)
	r.deps.World.Step(ctl, r.cfg.FixedDelta.Seconds())
}

func (r *Runner) finish() Summary {
	r.summary.Elapsed = r.deps.Clock.Since(r.start)
	r.summary.Final = r.deps.Agent.State()
	return r.summary
}
