// Package pursuit implements a pure-pursuit steering controller with a
// speed-dependent lookahead and a per-tick steering slew limit.
package pursuit

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/geom"
	"github.com/banshee-data/lanepilot/internal/planner"
	"github.com/banshee-data/lanepilot/internal/roadway"
)

// minForward is the smallest forward offset (metres) at which a target is
// considered ahead of the vehicle. Targets at or behind it hold steering.
const minForward = 1e-3

// laneFollowLadder lists the fallback lookahead distances tried when the
// lane ends before the dynamic lookahead.
var laneFollowLadder = []float64{10, 5, 3}

// Config holds the pursuit tunables.
type Config struct {
	LookaheadBase  float64
	LookaheadGain  float64 // seconds
	LookaheadMin   float64
	LookaheadMax   float64
	SteerLimit     float64
	SlewLimit      float64
	CompleteRadius float64
}

// DefaultConfig returns the stock pursuit tunables.
func DefaultConfig() Config {
	return ConfigFromControl(config.EmptyControlConfig())
}

// ConfigFromControl extracts the pursuit tunables from a control config.
func ConfigFromControl(cfg *config.ControlConfig) Config {
	return Config{
		LookaheadBase:  cfg.GetLookaheadBase(),
		LookaheadGain:  cfg.GetLookaheadGain(),
		LookaheadMin:   cfg.GetLookaheadMin(),
		LookaheadMax:   cfg.GetLookaheadMax(),
		SteerLimit:     cfg.GetSteerLimit(),
		SlewLimit:      cfg.GetSlewLimit(),
		CompleteRadius: cfg.GetCompleteRadius(),
	}
}

// Lookahead is clamp(base + gain·speed, min, max) with speed in m/s.
func Lookahead(cfg Config, speed float64) float64 {
	if math.IsNaN(speed) {
		speed = 0
	}
	return lo.Clamp(cfg.LookaheadBase+cfg.LookaheadGain*speed, cfg.LookaheadMin, cfg.LookaheadMax)
}

// Controller tracks either an installed trajectory or the current lane.
// It owns the steering history, so the slew limit holds across path
// changes and mode switches. Not safe for concurrent use.
type Controller struct {
	cfg    Config
	path   planner.Trajectory
	cursor int
	prev   float64
}

// NewController returns a controller with no path and zero steering.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// SetPath installs t and resets the cursor. The steering history is kept.
func (c *Controller) SetPath(t planner.Trajectory) {
	c.path = t
	c.cursor = 0
}

// ClearPath discards the active path.
func (c *Controller) ClearPath() {
	c.path = nil
	c.cursor = 0
}

// HasPath reports whether a path is being tracked.
func (c *Controller) HasPath() bool { return len(c.path) > 0 }

// Path returns the active path, nil if none.
func (c *Controller) Path() planner.Trajectory { return c.path }

// Cursor is the index of the current target point.
func (c *Controller) Cursor() int { return c.cursor }

// Previous is the last steering output.
func (c *Controller) Previous() float64 { return c.prev }

// TrackPath steers along the active path. It returns active == false once
// the path end is within CompleteRadius (the path is then cleared) or if no
// path is installed; in both cases the previous steering is returned.
func (c *Controller) TrackPath(pose geom.Pose, speed float64) (steer float64, active bool) {
	if !c.HasPath() {
		return c.prev, false
	}
	l := Lookahead(c.cfg, speed)
	pos := pose.Planar()

	for c.cursor < len(c.path) && c.path[c.cursor].Sub(pos).Norm() <= l {
		c.cursor++
	}
	if c.cursor >= len(c.path) {
		last := c.path[len(c.path)-1]
		if last.Sub(pos).Norm() < c.cfg.CompleteRadius {
			c.ClearPath()
			return c.prev, false
		}
		c.cursor = len(c.path) - 1
	}
	return c.steerToward(pose, c.path[c.cursor], l), true
}

// TrackRoad follows the lane that wp lies on. The target is the lane point
// one lookahead ahead, falling back to 10, 5 and 3 m when the lane ends
// sooner, and finally to straight ahead.
func (c *Controller) TrackRoad(pose geom.Pose, speed float64, wp roadway.Waypoint) (float64, bool) {
	l := Lookahead(c.cfg, speed)
	if wp != nil {
		for _, d := range append([]float64{l}, laneFollowLadder...) {
			if next := wp.Forward(d); next != nil {
				return c.steerToward(pose, roadway.Planar(next), l), true
			}
		}
	}
	return c.Straight(), true
}

// Straight slews the steering toward zero.
func (c *Controller) Straight() float64 {
	return c.slew(0)
}

// Hold returns the previous steering unchanged.
func (c *Controller) Hold() float64 { return c.prev }

func (c *Controller) steerToward(pose geom.Pose, target r2.Point, l float64) float64 {
	local := geom.ToLocal(pose, target)
	if local.X <= minForward {
		return c.prev
	}
	curvature := 2 * local.Y / (l * l)
	return c.slew(lo.Clamp(curvature, -c.cfg.SteerLimit, c.cfg.SteerLimit))
}

func (c *Controller) slew(target float64) float64 {
	if math.IsNaN(target) {
		return c.prev
	}
	delta := lo.Clamp(target-c.prev, -c.cfg.SlewLimit, c.cfg.SlewLimit)
	c.prev = lo.Clamp(c.prev+delta, -c.cfg.SteerLimit, c.cfg.SteerLimit)
	return c.prev
}
