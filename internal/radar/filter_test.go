package radar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ahead(depth, vel float64) Detection {
	return Detection{Depth: depth, Velocity: vel}
}

func TestFilter_Process(t *testing.T) {
	tests := []struct {
		name     string
		batches  []Batch
		wantDist float64
		wantVel  float64
	}{
		{
			name:     "empty batch is clear",
			batches:  []Batch{{}},
			wantDist: math.Inf(1),
		},
		{
			name:     "self detection excluded",
			batches:  []Batch{{ahead(2.9, -1)}},
			wantDist: math.Inf(1),
		},
		{
			name:     "min depth boundary is kept",
			batches:  []Batch{{ahead(3.0, -1)}},
			wantDist: 3.0,
			wantVel:  -1,
		},
		{
			name:     "beside the lane",
			batches:  []Batch{{{Depth: 5, Azimuth: math.Pi / 2, Velocity: -2}}},
			wantDist: math.Inf(1),
		},
		{
			name:     "slightly off boresight still in lane",
			batches:  []Batch{{{Depth: 10, Azimuth: 0.24, Velocity: -2}}},
			wantDist: 10,
			wantVel:  -2,
		},
		{
			name:     "nearest qualifying wins",
			batches:  []Batch{{ahead(40, -3), ahead(25, -5), {Depth: 10, Azimuth: 1.2}}},
			wantDist: 25,
			wantVel:  -5,
		},
		{
			name:     "first acquisition is not smoothed",
			batches:  []Batch{{}, {ahead(30, -2)}},
			wantDist: 30,
			wantVel:  -2,
		},
		{
			name:     "second sample is smoothed",
			batches:  []Batch{{ahead(30, -2)}, {ahead(20, -4)}},
			wantDist: 0.3*20 + 0.7*30,
			wantVel:  -4,
		},
		{
			name:     "clear batch resets smoother",
			batches:  []Batch{{ahead(30, -2)}, {}, {ahead(10, -1)}},
			wantDist: 10,
			wantVel:  -1,
		},
		{
			name:     "non-finite depth ignored",
			batches:  []Batch{{{Depth: math.NaN()}, {Depth: math.Inf(1)}, ahead(12, 0)}},
			wantDist: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := NewFilter(DefaultFilterConfig())
			var got Obstacle
			for _, b := range tt.batches {
				got = f.Process(b)
			}
			if math.IsInf(tt.wantDist, 1) {
				assert.True(t, got.Clear(), "expected clear, got %v", got)
				assert.Equal(t, 0.0, got.RelativeVelocity)
			} else {
				assert.InDelta(t, tt.wantDist, got.Distance, 1e-9)
				assert.InDelta(t, tt.wantVel, got.RelativeVelocity, 1e-9)
			}
			assert.Equal(t, got, f.Last())
		})
	}
}

func TestFilter_LateralBandIsStrict(t *testing.T) {
	t.Parallel()
	d := Detection{Depth: 10, Azimuth: 0.3, Velocity: -1}
	cfg := DefaultFilterConfig()
	cfg.LaneHalfWidth = math.Abs(d.Lateral())

	f := NewFilter(cfg)
	assert.True(t, f.Process(Batch{d}).Clear())

	cfg.LaneHalfWidth = math.Nextafter(cfg.LaneHalfWidth, math.Inf(1))
	f = NewFilter(cfg)
	assert.Equal(t, 10.0, f.Process(Batch{d}).Distance)
}

func TestFilter_RepeatedClearDoesNotDrift(t *testing.T) {
	t.Parallel()
	f := NewFilter(DefaultFilterConfig())
	f.Process(Batch{ahead(20, -1)})
	for range 50 {
		got := f.Process(nil)
		require.True(t, got.Clear())
	}
	assert.Equal(t, 20.0, f.Process(Batch{ahead(20, -1)}).Distance)
}

func TestFilter_ConvergesOnSteadyTarget(t *testing.T) {
	t.Parallel()
	f := NewFilter(DefaultFilterConfig())
	f.Process(Batch{ahead(40, 0)})
	var got Obstacle
	for range 60 {
		got = f.Process(Batch{ahead(20, 0)})
	}
	assert.InDelta(t, 20.0, got.Distance, 1e-6)
}

func TestFilter_ResetAndStats(t *testing.T) {
	t.Parallel()
	f := NewFilter(DefaultFilterConfig())
	f.Process(Batch{ahead(1, 0), ahead(30, 0), {Depth: 20, Azimuth: math.Pi / 2}})
	f.Reset()
	assert.True(t, f.Last().Clear())

	s := f.Stats()
	assert.Equal(t, int64(1), s.Batches)
	assert.Equal(t, int64(3), s.Processed)
	assert.Equal(t, int64(1), s.TooClose)
	assert.Equal(t, int64(1), s.OutOfLane)
	assert.Equal(t, int64(1), s.Qualified)

	// after reset the next sample is taken raw
	assert.Equal(t, 50.0, f.Process(Batch{ahead(50, 0)}).Distance)
}

func TestObstacleString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "clear", ClearObstacle().String())
	assert.Equal(t, "12.00m @ -3.00m/s", Obstacle{Distance: 12, RelativeVelocity: -3}.String())
}
