package agent

import (
	"time"

	"github.com/banshee-data/lanepilot/internal/command"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/planner"
	"github.com/banshee-data/lanepilot/internal/pursuit"
	"github.com/banshee-data/lanepilot/internal/radar"
)

// Config gathers the per-package tunables the agent wires together.
type Config struct {
	Filter     radar.FilterConfig
	Thresholds decision.Thresholds
	Curve      planner.CurveConfig
	Pursuit    pursuit.Config
	Command    command.Config

	// Lane change extent is clamp(speed·ManeuverSeconds, min, max).
	ManeuverSeconds   float64
	ManeuverMinExtent float64
	ManeuverMaxExtent float64

	// Cooldown suppresses a new lane change after one ends or aborts.
	Cooldown time.Duration
	// MaxManeuverTime aborts a lane change that has not completed.
	MaxManeuverTime time.Duration
	// ManeuverPath selects the lane change trajectory: config.ManeuverPathCurve
	// fits a curve from the vehicle, config.ManeuverPathLane follows the target
	// lane centre.
	ManeuverPath string
}

// DefaultConfig returns the stock agent configuration.
func DefaultConfig() Config {
	return ConfigFromControl(config.EmptyControlConfig())
}

// ConfigFromControl builds the agent configuration from a control config.
func ConfigFromControl(cfg *config.ControlConfig) Config {
	return Config{
		Filter:            radar.FilterConfigFromControl(cfg),
		Thresholds:        decision.ThresholdsFromControl(cfg),
		Curve:             planner.CurveConfigFromControl(cfg),
		Pursuit:           pursuit.ConfigFromControl(cfg),
		Command:           command.ConfigFromControl(cfg),
		ManeuverSeconds:   cfg.GetManeuverSeconds(),
		ManeuverMinExtent: cfg.GetManeuverMinExtent(),
		ManeuverMaxExtent: cfg.GetManeuverMaxExtent(),
		Cooldown:          cfg.GetLaneChangeCooldown(),
		MaxManeuverTime:   cfg.GetMaxManeuverTime(),
		ManeuverPath:      cfg.GetManeuverPath(),
	}
}
