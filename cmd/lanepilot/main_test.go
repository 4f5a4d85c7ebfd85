package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/radar"
	"github.com/banshee-data/lanepilot/internal/runner"
	"github.com/banshee-data/lanepilot/internal/sensorfeed"
	"github.com/banshee-data/lanepilot/internal/telemetry"
	"github.com/banshee-data/lanepilot/internal/testutil"
)

func muteLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.False(t, *devMode)
	assert.Equal(t, sensorfeed.DefaultBaudRate, *radarBaud)
	assert.Zero(t, *duration)
	assert.Equal(t, options{
		RadarPort: "/dev/ttyUSB0",
		RadarBaud: sensorfeed.DefaultBaudRate,
		Listen:    ":8080",
	}, optionsFromFlags())
}

func TestRun_DevRecordsTelemetry(t *testing.T) {
	muteLogs(t)
	db := filepath.Join(t.TempDir(), "telemetry.db")

	sum, err := run(context.Background(), options{
		Dev:      true,
		Fast:     true,
		Duration: 3 * time.Second,
		DBPath:   db,
	})
	require.NoError(t, err)
	assert.Equal(t, 91, sum.Ticks)
	assert.Equal(t, 1, sum.Spawned)
	assert.Equal(t, decision.Of(decision.Cruise), sum.Final)

	store, err := telemetry.Open(db)
	require.NoError(t, err)
	defer store.Close()
	last, err := store.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev", last.Mode)
	assert.Equal(t, int64(91), last.Ticks)
	assert.Zero(t, last.Dropped)
	assert.NotNil(t, last.EndedAt)
	assert.Contains(t, last.ConfigJSON, `"avoid_distance":45`)
}

func TestRun_ConfigFile(t *testing.T) {
	muteLogs(t)
	path := testutil.WriteFile(t, "control.json", `{"fixed_delta": "100ms"}`)
	sum, err := run(context.Background(), options{Dev: true, Fast: true, Duration: time.Second, ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, 10, sum.Ticks)

	_, err = run(context.Background(), options{Dev: true, Fast: true, ConfigPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestRun_SerialFeed(t *testing.T) {
	muteLogs(t)
	port := sensorfeed.NewTestablePort()
	for i := range 5 {
		line, err := sensorfeed.EncodeFrame(uint64(i+1), radar.Batch{{Depth: 90, Velocity: -1}})
		require.NoError(t, err)
		port.AddReadData(line)
	}

	orig := openSensor
	t.Cleanup(func() { openSensor = orig })
	var opened string
	openSensor = func(path string, opts sensorfeed.PortOptions) (sensorPort, error) {
		opened = path
		return port, nil
	}

	sum, err := run(context.Background(), options{RadarPort: "/dev/fake", Fast: true, Duration: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "/dev/fake", opened)
	assert.Equal(t, 31, sum.Ticks)
	assert.True(t, port.Closed)
}

func TestRun_SerialErrors(t *testing.T) {
	muteLogs(t)
	_, err := run(context.Background(), options{RadarPort: "", Fast: true})
	assert.Error(t, err)

	orig := openSensor
	t.Cleanup(func() { openSensor = orig })
	openSensor = func(string, sensorfeed.PortOptions) (sensorPort, error) {
		return nil, errors.New("no such device")
	}
	_, err = run(context.Background(), options{RadarPort: "/dev/none", Fast: true})
	assert.ErrorContains(t, err, "no such device")
}

func TestRun_SetupFailureStartsNoGoroutines(t *testing.T) {
	muteLogs(t)
	port := sensorfeed.NewTestablePort()
	port.AddReadData([]byte("{\"seq\":1,\"detections\":[]}\n"))

	origOpen, origRunner := openSensor, newRunner
	t.Cleanup(func() { openSensor, newRunner = origOpen, origRunner })
	openSensor = func(string, sensorfeed.PortOptions) (sensorPort, error) { return port, nil }
	newRunner = func(runner.Config, runner.Deps) (*runner.Runner, error) {
		return nil, errors.New("runner unavailable")
	}

	dbPath := filepath.Join(t.TempDir(), "telemetry.db")
	_, err := run(context.Background(), options{
		RadarPort: "/dev/fake",
		DBPath:    dbPath,
		Listen:    "127.0.0.1:0",
		Fast:      true,
		Duration:  time.Second,
	})
	require.ErrorContains(t, err, "runner unavailable")

	assert.Zero(t, port.ReadCalls, "feed monitor never started")
	assert.True(t, port.Closed)

	store, err := telemetry.Open(dbPath)
	require.NoError(t, err, "store was closed cleanly")
	defer store.Close()
	latest, err := store.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Zero(t, latest.Ticks)
}

func TestRun_Cancelled(t *testing.T) {
	muteLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := run(ctx, options{Dev: true, Fast: true})
	require.NoError(t, err)
	assert.Zero(t, sum.Ticks)
}
