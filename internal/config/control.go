package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical control defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/control.defaults.json"

// ControlConfig represents the root configuration for the control core.
// Every field is optional: fields omitted from the JSON document fall back
// to the defaults returned by the Get* accessors, so partial configs are
// safe. The same schema is served read-only by the monitor at /api/config.
type ControlConfig struct {
	// Obstacle filter
	MinDetectionDepth *float64 `json:"min_detection_depth,omitempty"` // self-detection exclusion radius (m)
	LaneHalfWidth     *float64 `json:"lane_half_width,omitempty"`     // in-lane lateral band (m)
	SmoothingAlpha    *float64 `json:"smoothing_alpha,omitempty"`     // EMA weight of the newest sample

	// Decision thresholds
	EmergencyDistance *float64 `json:"emergency_distance,omitempty"`
	BrakeDistance     *float64 `json:"brake_distance,omitempty"`
	AvoidDistance     *float64 `json:"avoid_distance,omitempty"`
	ClosingEpsilon    *float64 `json:"closing_epsilon,omitempty"` // m/s floor for TTC

	// Pure pursuit
	LookaheadBase  *float64 `json:"lookahead_base,omitempty"`
	LookaheadGain  *float64 `json:"lookahead_gain,omitempty"` // seconds; multiplied by speed in m/s
	LookaheadMin   *float64 `json:"lookahead_min,omitempty"`
	LookaheadMax   *float64 `json:"lookahead_max,omitempty"`
	SteerLimit     *float64 `json:"steer_limit,omitempty"`
	SlewLimit      *float64 `json:"slew_limit,omitempty"` // max steer change per tick
	CompleteRadius *float64 `json:"complete_radius,omitempty"`

	// Maneuver curve
	CurveEntryFraction *float64 `json:"curve_entry_fraction,omitempty"`
	CurveExitFraction  *float64 `json:"curve_exit_fraction,omitempty"`
	CurveSamples       *int     `json:"curve_samples,omitempty"`

	// Maneuver scheduling
	ManeuverSeconds    *float64 `json:"maneuver_seconds,omitempty"`
	ManeuverMinExtent  *float64 `json:"maneuver_min_extent,omitempty"`
	ManeuverMaxExtent  *float64 `json:"maneuver_max_extent,omitempty"`
	LaneChangeCooldown *string  `json:"lane_change_cooldown,omitempty"` // duration string like "5s"
	MaxManeuverTime    *string  `json:"max_maneuver_time,omitempty"`    // duration string like "10s"
	ManeuverPath       *string  `json:"maneuver_path,omitempty"`        // "curve" or "lane"

	// Longitudinal command
	TargetSpeedMps   *float64 `json:"target_speed_mps,omitempty"`
	CruiseThrottle   *float64 `json:"cruise_throttle,omitempty"`
	LaunchThrottle   *float64 `json:"launch_throttle,omitempty"`
	LaunchFraction   *float64 `json:"launch_fraction,omitempty"`
	BrakeGain        *float64 `json:"brake_gain,omitempty"`
	BrakeMin         *float64 `json:"brake_min,omitempty"`
	FollowSpeedRatio *float64 `json:"follow_speed_ratio,omitempty"`
	FollowGain       *float64 `json:"follow_gain,omitempty"`
	FollowBrakeMax   *float64 `json:"follow_brake_max,omitempty"`

	// Run loop
	FixedDelta *string `json:"fixed_delta,omitempty"` // duration string like "33ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyControlConfig returns a ControlConfig with all fields set to nil.
func EmptyControlConfig() *ControlConfig {
	return &ControlConfig{}
}

// DefaultControlConfig returns a ControlConfig with every field populated
// from the built-in defaults. It is what the binary runs with when no
// -config flag is given.
func DefaultControlConfig() *ControlConfig {
	return EmptyControlConfig().Resolved()
}

// Resolved returns a copy with every unset field filled from its default,
// so the result serialises the values actually in effect.
func (c *ControlConfig) Resolved() *ControlConfig {
	return &ControlConfig{
		MinDetectionDepth:  ptrFloat64(c.GetMinDetectionDepth()),
		LaneHalfWidth:      ptrFloat64(c.GetLaneHalfWidth()),
		SmoothingAlpha:     ptrFloat64(c.GetSmoothingAlpha()),
		EmergencyDistance:  ptrFloat64(c.GetEmergencyDistance()),
		BrakeDistance:      ptrFloat64(c.GetBrakeDistance()),
		AvoidDistance:      ptrFloat64(c.GetAvoidDistance()),
		ClosingEpsilon:     ptrFloat64(c.GetClosingEpsilon()),
		LookaheadBase:      ptrFloat64(c.GetLookaheadBase()),
		LookaheadGain:      ptrFloat64(c.GetLookaheadGain()),
		LookaheadMin:       ptrFloat64(c.GetLookaheadMin()),
		LookaheadMax:       ptrFloat64(c.GetLookaheadMax()),
		SteerLimit:         ptrFloat64(c.GetSteerLimit()),
		SlewLimit:          ptrFloat64(c.GetSlewLimit()),
		CompleteRadius:     ptrFloat64(c.GetCompleteRadius()),
		CurveEntryFraction: ptrFloat64(c.GetCurveEntryFraction()),
		CurveExitFraction:  ptrFloat64(c.GetCurveExitFraction()),
		CurveSamples:       ptrInt(c.GetCurveSamples()),
		ManeuverSeconds:    ptrFloat64(c.GetManeuverSeconds()),
		ManeuverMinExtent:  ptrFloat64(c.GetManeuverMinExtent()),
		ManeuverMaxExtent:  ptrFloat64(c.GetManeuverMaxExtent()),
		LaneChangeCooldown: ptrString(c.GetLaneChangeCooldown().String()),
		MaxManeuverTime:    ptrString(c.GetMaxManeuverTime().String()),
		ManeuverPath:       ptrString(c.GetManeuverPath()),
		TargetSpeedMps:     ptrFloat64(c.GetTargetSpeedMps()),
		CruiseThrottle:     ptrFloat64(c.GetCruiseThrottle()),
		LaunchThrottle:     ptrFloat64(c.GetLaunchThrottle()),
		LaunchFraction:     ptrFloat64(c.GetLaunchFraction()),
		BrakeGain:          ptrFloat64(c.GetBrakeGain()),
		BrakeMin:           ptrFloat64(c.GetBrakeMin()),
		FollowSpeedRatio:   ptrFloat64(c.GetFollowSpeedRatio()),
		FollowGain:         ptrFloat64(c.GetFollowGain()),
		FollowBrakeMax:     ptrFloat64(c.GetFollowBrakeMax()),
		FixedDelta:         ptrString(c.GetFixedDelta().String()),
	}
}

// LoadControlConfig loads a ControlConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadControlConfig(path string) (*ControlConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyControlConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ControlConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/tools/trace-plot/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadControlConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Only fields that
// are set are checked individually; cross-field orderings are checked on the
// effective (defaulted) values.
func (c *ControlConfig) Validate() error {
	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *c.SmoothingAlpha)
		}
	}

	for name, v := range map[string]*float64{
		"min_detection_depth": c.MinDetectionDepth,
		"lane_half_width":     c.LaneHalfWidth,
		"closing_epsilon":     c.ClosingEpsilon,
		"lookahead_gain":      c.LookaheadGain,
		"maneuver_seconds":    c.ManeuverSeconds,
		"target_speed_mps":    c.TargetSpeedMps,
		"brake_gain":          c.BrakeGain,
		"follow_gain":         c.FollowGain,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	for name, v := range map[string]*float64{
		"steer_limit":      c.SteerLimit,
		"slew_limit":       c.SlewLimit,
		"cruise_throttle":  c.CruiseThrottle,
		"launch_throttle":  c.LaunchThrottle,
		"launch_fraction":  c.LaunchFraction,
		"brake_min":        c.BrakeMin,
		"follow_brake_max": c.FollowBrakeMax,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.ManeuverPath != nil {
		switch *c.ManeuverPath {
		case ManeuverPathCurve, ManeuverPathLane:
		default:
			return fmt.Errorf("maneuver_path must be %q or %q, got %q", ManeuverPathCurve, ManeuverPathLane, *c.ManeuverPath)
		}
	}

	if c.CurveSamples != nil && *c.CurveSamples < 2 {
		return fmt.Errorf("curve_samples must be at least 2, got %d", *c.CurveSamples)
	}

	for name, v := range map[string]*string{
		"lane_change_cooldown": c.LaneChangeCooldown,
		"max_maneuver_time":    c.MaxManeuverTime,
		"fixed_delta":          c.FixedDelta,
	} {
		if v != nil && *v != "" {
			d, err := time.ParseDuration(*v)
			if err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
			if d < 0 {
				return fmt.Errorf("%s must be non-negative, got %s", name, *v)
			}
		}
	}

	if e, b := c.GetEmergencyDistance(), c.GetBrakeDistance(); e < 0 || e > b {
		return fmt.Errorf("emergency_distance (%.2f) must be in [0, brake_distance (%.2f)]", e, b)
	}
	if b, a := c.GetBrakeDistance(), c.GetAvoidDistance(); a < b {
		return fmt.Errorf("avoid_distance (%.2f) must not be below brake_distance (%.2f)", a, b)
	}
	if lo, hi := c.GetLookaheadMin(), c.GetLookaheadMax(); lo <= 0 || lo > hi {
		return fmt.Errorf("lookahead range [%.2f, %.2f] is invalid", lo, hi)
	}
	if entry, exit := c.GetCurveEntryFraction(), c.GetCurveExitFraction(); entry <= 0 || entry >= exit || exit >= 1 {
		return fmt.Errorf("curve fractions must satisfy 0 < entry (%.2f) < exit (%.2f) < 1", entry, exit)
	}
	if lo, hi := c.GetManeuverMinExtent(), c.GetManeuverMaxExtent(); lo <= 0 || lo > hi {
		return fmt.Errorf("maneuver extent range [%.2f, %.2f] is invalid", lo, hi)
	}
	if c.GetFixedDelta() <= 0 {
		return fmt.Errorf("fixed_delta must be positive")
	}

	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// GetMinDetectionDepth returns the min_detection_depth value or the default.
func (c *ControlConfig) GetMinDetectionDepth() float64 { return floatOr(c.MinDetectionDepth, 3.0) }

// GetLaneHalfWidth returns the lane_half_width value or the default.
func (c *ControlConfig) GetLaneHalfWidth() float64 { return floatOr(c.LaneHalfWidth, 2.5) }

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *ControlConfig) GetSmoothingAlpha() float64 { return floatOr(c.SmoothingAlpha, 0.3) }

// GetEmergencyDistance returns the emergency_distance value or the default.
func (c *ControlConfig) GetEmergencyDistance() float64 { return floatOr(c.EmergencyDistance, 8.0) }

// GetBrakeDistance returns the brake_distance value or the default.
func (c *ControlConfig) GetBrakeDistance() float64 { return floatOr(c.BrakeDistance, 15.0) }

// GetAvoidDistance returns the avoid_distance value or the default.
func (c *ControlConfig) GetAvoidDistance() float64 { return floatOr(c.AvoidDistance, 45.0) }

// GetClosingEpsilon returns the closing_epsilon value or the default.
func (c *ControlConfig) GetClosingEpsilon() float64 { return floatOr(c.ClosingEpsilon, 0.1) }

// GetLookaheadBase returns the lookahead_base value or the default.
func (c *ControlConfig) GetLookaheadBase() float64 { return floatOr(c.LookaheadBase, 8.0) }

// GetLookaheadGain returns the lookahead_gain value or the default.
func (c *ControlConfig) GetLookaheadGain() float64 { return floatOr(c.LookaheadGain, 0.3) }

// GetLookaheadMin returns the lookahead_min value or the default.
func (c *ControlConfig) GetLookaheadMin() float64 { return floatOr(c.LookaheadMin, 5.0) }

// GetLookaheadMax returns the lookahead_max value or the default.
func (c *ControlConfig) GetLookaheadMax() float64 { return floatOr(c.LookaheadMax, 15.0) }

// GetSteerLimit returns the steer_limit value or the default.
func (c *ControlConfig) GetSteerLimit() float64 { return floatOr(c.SteerLimit, 0.7) }

// GetSlewLimit returns the slew_limit value or the default.
func (c *ControlConfig) GetSlewLimit() float64 { return floatOr(c.SlewLimit, 0.05) }

// GetCompleteRadius returns the complete_radius value or the default.
func (c *ControlConfig) GetCompleteRadius() float64 { return floatOr(c.CompleteRadius, 3.0) }

// GetCurveEntryFraction returns the curve_entry_fraction value or the default.
func (c *ControlConfig) GetCurveEntryFraction() float64 { return floatOr(c.CurveEntryFraction, 0.3) }

// GetCurveExitFraction returns the curve_exit_fraction value or the default.
func (c *ControlConfig) GetCurveExitFraction() float64 { return floatOr(c.CurveExitFraction, 0.7) }

// GetCurveSamples returns the curve_samples value or the default.
func (c *ControlConfig) GetCurveSamples() int {
	if c.CurveSamples == nil {
		return 30
	}
	return *c.CurveSamples
}

// GetManeuverSeconds returns the maneuver_seconds value or the default.
func (c *ControlConfig) GetManeuverSeconds() float64 { return floatOr(c.ManeuverSeconds, 4.0) }

// GetManeuverMinExtent returns the maneuver_min_extent value or the default.
func (c *ControlConfig) GetManeuverMinExtent() float64 { return floatOr(c.ManeuverMinExtent, 25.0) }

// GetManeuverMaxExtent returns the maneuver_max_extent value or the default.
func (c *ControlConfig) GetManeuverMaxExtent() float64 { return floatOr(c.ManeuverMaxExtent, 70.0) }

// GetLaneChangeCooldown parses and returns the lane_change_cooldown duration.
func (c *ControlConfig) GetLaneChangeCooldown() time.Duration {
	return durationOr(c.LaneChangeCooldown, 5*time.Second)
}

// GetMaxManeuverTime parses and returns the max_maneuver_time duration.
func (c *ControlConfig) GetMaxManeuverTime() time.Duration {
	return durationOr(c.MaxManeuverTime, 10*time.Second)
}

// GetTargetSpeedMps returns the target_speed_mps value or the default.
func (c *ControlConfig) GetTargetSpeedMps() float64 { return floatOr(c.TargetSpeedMps, 8.0) }

// GetCruiseThrottle returns the cruise_throttle value or the default.
func (c *ControlConfig) GetCruiseThrottle() float64 { return floatOr(c.CruiseThrottle, 0.4) }

// GetLaunchThrottle returns the launch_throttle value or the default.
func (c *ControlConfig) GetLaunchThrottle() float64 { return floatOr(c.LaunchThrottle, 0.7) }

// GetLaunchFraction returns the launch_fraction value or the default.
func (c *ControlConfig) GetLaunchFraction() float64 { return floatOr(c.LaunchFraction, 0.8) }

// GetBrakeGain returns the brake_gain value or the default.
func (c *ControlConfig) GetBrakeGain() float64 { return floatOr(c.BrakeGain, 3.0) }

// GetBrakeMin returns the brake_min value or the default.
func (c *ControlConfig) GetBrakeMin() float64 { return floatOr(c.BrakeMin, 0.2) }

// GetFollowSpeedRatio returns the follow_speed_ratio value or the default.
func (c *ControlConfig) GetFollowSpeedRatio() float64 { return floatOr(c.FollowSpeedRatio, 0.9) }

// GetFollowGain returns the follow_gain value or the default.
func (c *ControlConfig) GetFollowGain() float64 { return floatOr(c.FollowGain, 0.5) }

// GetFollowBrakeMax returns the follow_brake_max value or the default.
func (c *ControlConfig) GetFollowBrakeMax() float64 { return floatOr(c.FollowBrakeMax, 0.5) }

// Lane change trajectory sources.
const (
	ManeuverPathCurve = "curve" // fitted curve from the vehicle to the target lane
	ManeuverPathLane  = "lane"  // samples along the target lane centre
)

// GetManeuverPath returns the maneuver_path value or "curve".
func (c *ControlConfig) GetManeuverPath() string {
	if c.ManeuverPath == nil || *c.ManeuverPath == "" {
		return ManeuverPathCurve
	}
	return *c.ManeuverPath
}

// GetFixedDelta parses and returns the fixed simulation timestep.
func (c *ControlConfig) GetFixedDelta() time.Duration {
	return durationOr(c.FixedDelta, 33*time.Millisecond)
}
