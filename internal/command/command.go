// Package command turns a behavior and a steering value into the actuator
// command sent to the vehicle.
package command

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/decision"
)

// Control is the actuator command. Throttle and Brake are in [0, 1],
// Steer is in [-1, 1] with positive turning left.
type Control struct {
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	Steer    float64 `json:"steer"`
}

// Validate reports the first out-of-range or non-finite field.
func (c Control) Validate() error {
	for _, f := range []struct {
		name   string
		v      float64
		lo, hi float64
	}{
		{"throttle", c.Throttle, 0, 1},
		{"brake", c.Brake, 0, 1},
		{"steer", c.Steer, -1, 1},
	} {
		if math.IsNaN(f.v) || f.v < f.lo || f.v > f.hi {
			return fmt.Errorf("%s %v outside [%v, %v]", f.name, f.v, f.lo, f.hi)
		}
	}
	return nil
}

func (c Control) String() string {
	return fmt.Sprintf("thr=%.2f brk=%.2f str=%+.3f", c.Throttle, c.Brake, c.Steer)
}

// Config holds the longitudinal controller tunables. Speeds are m/s.
type Config struct {
	CruiseThrottle   float64
	LaunchThrottle   float64
	TargetSpeed      float64
	LaunchFraction   float64
	BrakeGain        float64
	BrakeMin         float64
	FollowSpeedRatio float64
	FollowGain       float64
	FollowBrakeMax   float64
	TTCFloor         float64
}

// DefaultConfig returns the stock longitudinal tunables.
func DefaultConfig() Config {
	return ConfigFromControl(config.EmptyControlConfig())
}

// ConfigFromControl extracts the composer tunables from a control config.
func ConfigFromControl(cfg *config.ControlConfig) Config {
	return Config{
		CruiseThrottle:   cfg.GetCruiseThrottle(),
		LaunchThrottle:   cfg.GetLaunchThrottle(),
		TargetSpeed:      cfg.GetTargetSpeedMps(),
		LaunchFraction:   cfg.GetLaunchFraction(),
		BrakeGain:        cfg.GetBrakeGain(),
		BrakeMin:         cfg.GetBrakeMin(),
		FollowSpeedRatio: cfg.GetFollowSpeedRatio(),
		FollowGain:       cfg.GetFollowGain(),
		FollowBrakeMax:   cfg.GetFollowBrakeMax(),
		TTCFloor:         0.1,
	}
}

// Compose builds the actuator command for behavior. leadSpeed is the
// absolute speed of the obstacle ahead and is only read in Follow.
func Compose(cfg Config, behavior decision.Kind, ttc, speed, leadSpeed, steer float64) Control {
	ctl := Control{Steer: clamp(steer, -1, 1)}

	switch behavior {
	case decision.Emergency:
		ctl.Throttle, ctl.Brake = 0, 1
		return ctl

	case decision.Brake:
		t := math.Max(ttc, cfg.TTCFloor)
		if math.IsNaN(t) {
			t = cfg.TTCFloor
		}
		ctl.Brake = clamp(cfg.BrakeGain/t, cfg.BrakeMin, 1)

	case decision.Follow:
		target := cfg.FollowSpeedRatio * math.Max(leadSpeed, 0)
		if speed < target {
			ctl.Throttle = clamp(cfg.FollowGain*(target-speed), 0, cfg.CruiseThrottle)
		} else {
			ctl.Brake = clamp(cfg.FollowGain*(speed-target), 0, cfg.FollowBrakeMax)
		}

	default:
		ctl.Throttle = cruiseThrottle(cfg, speed)
	}

	ctl.Throttle = clamp(ctl.Throttle, 0, 1)
	ctl.Brake = clamp(ctl.Brake, 0, 1)
	return ctl
}

// cruiseThrottle is a banded speed controller: full launch throttle well
// below target, cruise throttle near it, coast at or above it.
func cruiseThrottle(cfg Config, speed float64) float64 {
	switch {
	case speed < cfg.LaunchFraction*cfg.TargetSpeed:
		return cfg.LaunchThrottle
	case speed < cfg.TargetSpeed:
		return cfg.CruiseThrottle
	default:
		return 0
	}
}

// clamp is lo.Clamp with NaN mapped to lo.
func clamp(v, lower, upper float64) float64 {
	if math.IsNaN(v) {
		return lower
	}
	return lo.Clamp(v, lower, upper)
}
