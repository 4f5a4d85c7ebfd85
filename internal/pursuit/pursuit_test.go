package pursuit

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/geom"
	"github.com/banshee-data/lanepilot/internal/planner"
	"github.com/banshee-data/lanepilot/internal/roadway"
	"github.com/banshee-data/lanepilot/internal/sim"
)

func TestLookahead(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		speed float64
		want  float64
	}{
		{speed: 0, want: 8},
		{speed: 10, want: 11},
		{speed: 30, want: 15},
		{speed: -20, want: 5},
		{speed: math.NaN(), want: 8},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Lookahead(cfg, tt.speed), 1e-9, "speed %v", tt.speed)
	}
}

func straightPath(n int, step, lateral float64) planner.Trajectory {
	t := make(planner.Trajectory, n)
	for i := range t {
		t[i] = r2.Point{X: float64(i+1) * step, Y: lateral}
	}
	return t
}

func TestTrackPath_SlewAndLimit(t *testing.T) {
	t.Parallel()
	c := NewController(DefaultConfig())
	c.SetPath(straightPath(40, 2, 30))

	pose := geom.Pose{}
	prev := 0.0
	for range 30 {
		steer, active := c.TrackPath(pose, 0)
		require.True(t, active)
		assert.LessOrEqual(t, math.Abs(steer-prev), 0.05+1e-12)
		assert.LessOrEqual(t, math.Abs(steer), 0.7+1e-12)
		prev = steer
	}
	assert.InDelta(t, 0.7, prev, 1e-9, "large lateral error saturates at the steer limit")
}

func TestTrackPath_CursorAdvancesPastLookahead(t *testing.T) {
	t.Parallel()
	c := NewController(DefaultConfig())
	c.SetPath(straightPath(20, 1, 0))
	_, active := c.TrackPath(geom.Pose{}, 0)
	require.True(t, active)
	// lookahead 8 at rest, points at x=1..8 are within it
	assert.Equal(t, 8, c.Cursor())

	// cursor never moves backwards
	_, _ = c.TrackPath(geom.Pose{Position: r3.Vector{X: -20}}, 0)
	assert.Equal(t, 8, c.Cursor())
}

func TestTrackPath_Completion(t *testing.T) {
	t.Parallel()
	c := NewController(DefaultConfig())
	c.SetPath(straightPath(5, 1, 0.5))

	// whole path inside the lookahead but the end is 7 m away: target the
	// last point and stay active
	steer, active := c.TrackPath(geom.Pose{Position: r3.Vector{X: -2}}, 0)
	require.True(t, active)
	assert.Equal(t, 4, c.Cursor())
	assert.Greater(t, steer, 0.0)

	// within the completion radius: cleared, previous steer returned
	got, active := c.TrackPath(geom.Pose{Position: r3.Vector{X: 3}}, 0)
	assert.False(t, active)
	assert.Equal(t, steer, got)
	assert.False(t, c.HasPath())

	_, active = c.TrackPath(geom.Pose{}, 0)
	assert.False(t, active)
}

func TestTrackPath_TargetBehindHoldsSteer(t *testing.T) {
	t.Parallel()
	c := NewController(DefaultConfig())
	c.SetPath(straightPath(3, 1, 4))
	first, _ := c.TrackPath(geom.Pose{Position: r3.Vector{X: 10}, Yaw: math.Pi}, 0)
	assert.InDelta(t, 0.05, math.Abs(first), 1e-9)

	// same path seen from beyond its end while facing away
	c.SetPath(straightPath(3, 1, 4))
	got, active := c.TrackPath(geom.Pose{Position: r3.Vector{X: 20}}, 0)
	assert.True(t, active)
	assert.Equal(t, first, got)
}

func TestTrackRoad(t *testing.T) {
	t.Parallel()
	road := sim.TwoLaneRoad()

	t.Run("centred in lane drives straight", func(t *testing.T) {
		c := NewController(DefaultConfig())
		pose := geom.Pose{Position: r3.Vector{X: 10, Y: 3.5}}
		steer, active := c.TrackRoad(pose, 8, road.WaypointAt(pose.Position))
		assert.True(t, active)
		assert.InDelta(t, 0, steer, 1e-9)
	})

	t.Run("right of centre steers left", func(t *testing.T) {
		c := NewController(DefaultConfig())
		pose := geom.Pose{Position: r3.Vector{X: 10, Y: 2.5}}
		steer, _ := c.TrackRoad(pose, 8, road.WaypointAt(pose.Position))
		assert.Greater(t, steer, 0.0)
	})

	t.Run("short lane falls back along the ladder", func(t *testing.T) {
		short := &sim.StraightRoad{LaneWidth: 3.5, Lanes: []sim.LaneSpec{{Type: roadway.Driving, End: 16}}}
		c := NewController(DefaultConfig())
		pose := geom.Pose{Position: r3.Vector{X: 10, Y: -1}}
		steer, active := c.TrackRoad(pose, 10, short.WaypointAt(pose.Position))
		assert.True(t, active)
		assert.Greater(t, steer, 0.0)
	})

	t.Run("no waypoint returns toward zero", func(t *testing.T) {
		c := NewController(DefaultConfig())
		c.prev = 0.3
		steer, active := c.TrackRoad(geom.Pose{}, 5, nil)
		assert.True(t, active)
		assert.InDelta(t, 0.25, steer, 1e-9)
	})
}

func TestSteeringHistorySurvivesPathChange(t *testing.T) {
	t.Parallel()
	c := NewController(DefaultConfig())
	c.SetPath(straightPath(40, 2, 10))
	for range 5 {
		c.TrackPath(geom.Pose{}, 0)
	}
	before := c.Previous()
	c.SetPath(straightPath(40, 2, -10))
	after, _ := c.TrackPath(geom.Pose{}, 0)
	assert.InDelta(t, before-0.05, after, 1e-9)
	assert.Equal(t, after, c.Hold())
}
