package decision

import (
	"math"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/radar"
)

// Thresholds are the distance bands (metres) that select a behavior.
type Thresholds struct {
	Emergency      float64
	Brake          float64
	Avoid          float64
	ClosingEpsilon float64 // m/s floor applied to the closing speed
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return ThresholdsFromControl(config.EmptyControlConfig())
}

// ThresholdsFromControl extracts the thresholds from a control config.
func ThresholdsFromControl(cfg *config.ControlConfig) Thresholds {
	return Thresholds{
		Emergency:      cfg.GetEmergencyDistance(),
		Brake:          cfg.GetBrakeDistance(),
		Avoid:          cfg.GetAvoidDistance(),
		ClosingEpsilon: cfg.GetClosingEpsilon(),
	}
}

// TimeToCollision is distance over closing speed. The closing speed is
// floored at eps so that a receding or stationary target still yields a
// finite (large) value. A clear or unknown distance gives +Inf.
func TimeToCollision(distance, relVel, eps float64) float64 {
	if math.IsInf(distance, 1) || math.IsNaN(distance) {
		return math.Inf(1)
	}
	closing := math.Max(-relVel, eps)
	return distance / closing
}

// Evaluate returns the raw behavior for the given obstacle and its
// time-to-collision. A nil obstacle means no sensor data has been seen.
// Bands are half-open: d < Emergency, Emergency <= d < Brake, else Cruise.
func Evaluate(t Thresholds, obs *radar.Obstacle) (Kind, float64) {
	if obs == nil {
		return Cruise, math.Inf(1)
	}
	ttc := TimeToCollision(obs.Distance, obs.RelativeVelocity, t.ClosingEpsilon)
	switch d := obs.Distance; {
	case d < t.Emergency:
		return Emergency, ttc
	case d < t.Brake:
		return Brake, ttc
	default:
		return Cruise, ttc
	}
}

// Threatening reports whether obs is inside the avoidance horizon.
func (t Thresholds) Threatening(obs *radar.Obstacle) bool {
	return obs != nil && obs.Distance < t.Avoid
}
