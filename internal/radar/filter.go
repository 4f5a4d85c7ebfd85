package radar

import (
	"math"

	"github.com/banshee-data/lanepilot/internal/config"
)

// FilterConfig holds the obstacle filter tunables.
type FilterConfig struct {
	// MinDepth excludes returns closer than this (metres); these are
	// reflections off the ego vehicle itself.
	MinDepth float64
	// LaneHalfWidth is the half width of the lateral band considered in-lane.
	// The test is strict: |lateral| < LaneHalfWidth.
	LaneHalfWidth float64
	// Alpha is the EMA weight of the newest sample, in (0, 1].
	Alpha float64
}

// DefaultFilterConfig returns the stock filter tunables.
func DefaultFilterConfig() FilterConfig {
	return FilterConfigFromControl(config.EmptyControlConfig())
}

// FilterConfigFromControl extracts the filter tunables from a control config.
func FilterConfigFromControl(cfg *config.ControlConfig) FilterConfig {
	return FilterConfig{
		MinDepth:      cfg.GetMinDetectionDepth(),
		LaneHalfWidth: cfg.GetLaneHalfWidth(),
		Alpha:         cfg.GetSmoothingAlpha(),
	}
}

// FilterStats counts how returns were classified since construction.
type FilterStats struct {
	Batches     int64
	Processed   int64
	TooClose    int64
	OutOfLane   int64
	NonFinite   int64
	Qualified   int64
	ClearFrames int64
}

// Filter reduces a batch of detections to the nearest in-lane obstacle and
// smooths its distance with an exponential moving average. The smoother is
// reset whenever a batch yields no qualifying return, and the first sample
// after a reset is taken as-is so that re-acquisition does not lag.
//
// A Filter is not safe for concurrent use; the agent owns exactly one.
type Filter struct {
	cfg      FilterConfig
	smoothed float64
	last     Obstacle
	stats    FilterStats
}

// NewFilter constructs a filter in the cleared state.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{
		cfg:      cfg,
		smoothed: math.Inf(1),
		last:     ClearObstacle(),
	}
}

// Process consumes one batch and returns the current estimate.
func (f *Filter) Process(batch Batch) Obstacle {
	f.stats.Batches++

	nearest := -1
	for i, d := range batch {
		f.stats.Processed++
		if math.IsNaN(d.Depth) || math.IsInf(d.Depth, 0) || math.IsNaN(d.Azimuth) {
			f.stats.NonFinite++
			continue
		}
		if d.Depth < f.cfg.MinDepth {
			f.stats.TooClose++
			continue
		}
		if math.Abs(d.Lateral()) >= f.cfg.LaneHalfWidth {
			f.stats.OutOfLane++
			continue
		}
		f.stats.Qualified++
		if nearest < 0 || d.Depth < batch[nearest].Depth {
			nearest = i
		}
	}

	if nearest < 0 {
		f.stats.ClearFrames++
		f.smoothed = math.Inf(1)
		f.last = ClearObstacle()
		return f.last
	}

	raw := batch[nearest]
	if math.IsInf(f.smoothed, 1) {
		f.smoothed = raw.Depth
	} else {
		f.smoothed = f.cfg.Alpha*raw.Depth + (1-f.cfg.Alpha)*f.smoothed
	}

	vel := raw.Velocity
	if math.IsNaN(vel) || math.IsInf(vel, 0) {
		vel = 0
	}
	f.last = Obstacle{Distance: f.smoothed, RelativeVelocity: vel}
	return f.last
}

// Last returns the most recent estimate without consuming input.
func (f *Filter) Last() Obstacle { return f.last }

// Reset returns the filter to the cleared state.
func (f *Filter) Reset() {
	f.smoothed = math.Inf(1)
	f.last = ClearObstacle()
}

// Stats returns a copy of the classification counters.
func (f *Filter) Stats() FilterStats { return f.stats }
