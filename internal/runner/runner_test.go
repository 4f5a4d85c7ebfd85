package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/agent"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/radar"
	"github.com/banshee-data/lanepilot/internal/sensorfeed"
	"github.com/banshee-data/lanepilot/internal/sim"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type logLines struct {
	mu    sync.Mutex
	lines []string
}

func (l *logLines) logf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *logLines) matching(sub string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, s := range l.lines {
		if strings.Contains(s, sub) {
			out = append(out, s)
		}
	}
	return out
}

func captureLogs(t *testing.T) *logLines {
	t.Helper()
	l := &logLines{}
	monitoring.SetLogger(l.logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	return l
}

func newRun(t *testing.T, cfg Config, clock timeutil.Clock, speed float64) (*Runner, *sim.World) {
	t.Helper()
	w := sim.NewWorld(sim.DefaultWorldConfig(), sim.TwoLaneRoad(), sim.DefaultVehicleConfig(), 1, 10, speed)
	slot := sensorfeed.NewSlot[radar.Batch]()
	a := agent.New(agent.DefaultConfig(), agent.Deps{
		Vehicle: w.Ego,
		Road:    w.Map(),
		Sensor:  slot,
		Clock:   clock,
	})
	r, err := New(cfg, Deps{World: w, Agent: a, Clock: clock, Detections: slot})
	require.NoError(t, err)
	return r, w
}

func TestNew_Validation(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)

	w := sim.NewWorld(sim.DefaultWorldConfig(), sim.TwoLaneRoad(), sim.DefaultVehicleConfig(), 1, 0, 0)
	a := agent.New(agent.DefaultConfig(), agent.Deps{Vehicle: w.Ego, Road: w.Map(), Sensor: sensorfeed.NewSlot[radar.Batch]()})
	cfg := DefaultConfig()
	cfg.FixedDelta = 0
	_, err = New(cfg, Deps{World: w, Agent: a})
	assert.Error(t, err)
}

func TestRun_SteppedDuration(t *testing.T) {
	logs := captureLogs(t)
	clock := timeutil.NewStepClock(epoch, 33*time.Millisecond)
	cfg := DefaultConfig()
	cfg.Duration = 5 * time.Second
	r, w := newRun(t, cfg, clock, 0)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 152, sum.Ticks)
	assert.Equal(t, 152*33*time.Millisecond, sum.Elapsed)
	assert.Equal(t, 1, sum.Spawned)
	assert.Equal(t, decision.Of(decision.Cruise), sum.Final)
	assert.Equal(t, 0, sum.Transitions)
	assert.Len(t, w.Actors(), 1)
	assert.Greater(t, w.Ego.Speed(), 1.0, "ego launched")

	status := logs.matching("FPS:")
	require.Len(t, status, 4, "one status line per simulated second")
	assert.Contains(t, status[0], "State: CRUISE")
	assert.Len(t, logs.matching("spawned obstacle"), 1)
}

func TestRun_Respawn(t *testing.T) {
	captureLogs(t)
	clock := timeutil.NewStepClock(epoch, 100*time.Millisecond)
	cfg := DefaultConfig()
	cfg.FixedDelta = 100 * time.Millisecond
	cfg.Duration = 5 * time.Second
	cfg.InitialSpawn = 0
	cfg.RespawnEvery = 2 * time.Second
	r, w := newRun(t, cfg, clock, 0)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, sum.Ticks)
	assert.Equal(t, 2, sum.Spawned)
	assert.Len(t, w.Actors(), 2)
}

func TestRun_RespawnRespectsActorLimit(t *testing.T) {
	captureLogs(t)
	clock := timeutil.NewStepClock(epoch, 100*time.Millisecond)
	cfg := DefaultConfig()
	cfg.FixedDelta = 100 * time.Millisecond
	cfg.Duration = 7 * time.Second
	cfg.InitialSpawn = 150
	cfg.RespawnEvery = 2 * time.Second
	r, w := newRun(t, cfg, clock, 0)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Spawned)
	assert.Len(t, w.Actors(), 2)
}

func TestRun_CancelledBrakes(t *testing.T) {
	captureLogs(t)
	clock := timeutil.NewStepClock(epoch, 33*time.Millisecond)
	cfg := DefaultConfig()
	cfg.InitialSpawn = 0
	r, w := newRun(t, cfg, clock, 6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Ticks)
	assert.Equal(t, 1.0, w.Ego.LastControl().Brake)
	assert.Less(t, w.Ego.Speed(), 6.0)
}

func TestRun_RealClock(t *testing.T) {
	captureLogs(t)
	cfg := DefaultConfig()
	cfg.FixedDelta = 5 * time.Millisecond
	cfg.Duration = 60 * time.Millisecond
	cfg.StatusEvery = 0
	r, _ := newRun(t, cfg, &timeutil.RealClock{}, 0)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, sum.Ticks)
	assert.GreaterOrEqual(t, sum.Elapsed, cfg.Duration)
}
