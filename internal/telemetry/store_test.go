package telemetry

import (
	"compress/gzip"
	"context"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/agent"
	"github.com/banshee-data/lanepilot/internal/command"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/geom"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tickAt(i int, b decision.Behavior, dist float64) agent.TickRecord {
	return agent.TickRecord{
		Tick:     uint64(i),
		Time:     epoch.Add(time.Duration(i) * 33 * time.Millisecond),
		Pose:     geom.Pose{Position: r3.Vector{X: float64(i), Y: 3.5}, Yaw: 0.01},
		Speed:    8,
		Known:    true,
		Distance: dist,
		RelVel:   -8,
		TTC:      dist / 8,
		Raw:      b.Kind,
		Behavior: b,
		Control:  command.Control{Throttle: 0.4, Steer: 0.02},
		LaneID:   1,
		OnPath:   b.Kind == decision.LaneChange,
	}
}

func TestOpen_Migrates(t *testing.T) {
	s := openTestStore(t)
	v, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateUp(), "second MigrateUp is a no-op")

	require.NoError(t, s.MigrateDown())
	v, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartRun(ctx, epoch, "dev", "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	recs := []agent.TickRecord{
		tickAt(1, decision.Of(decision.Cruise), 60),
		tickAt(2, decision.ChangeLane(decision.SideLeft), 44),
		tickAt(3, decision.Of(decision.Cruise), math.Inf(1)),
	}
	recs[2].Known = false
	recs[2].TTC = math.Inf(1)
	require.NoError(t, s.InsertTicks(ctx, id, recs))
	require.NoError(t, s.InsertTicks(ctx, id, nil))

	rows, err := s.Ticks(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(2), rows[1].Tick)
	assert.True(t, rows[1].Time.Equal(recs[1].Time))
	assert.Equal(t, "LANE_CHANGE(LEFT)", rows[1].Behavior)
	assert.Equal(t, "LANE_CHANGE", rows[1].Raw)
	assert.Equal(t, 44.0, rows[1].Distance)
	assert.Equal(t, -8.0, rows[1].RelVelocity)
	assert.Equal(t, 5.5, rows[1].TTC)
	assert.True(t, rows[1].OnPath)
	assert.Equal(t, 1, rows[1].LaneID)
	assert.Equal(t, 3.5, rows[1].Y)

	assert.True(t, math.IsNaN(rows[2].Distance), "infinite distance stored as NULL")
	assert.True(t, math.IsNaN(rows[2].TTC))
	assert.True(t, math.IsNaN(rows[2].RelVelocity))

	counts, err := s.BehaviorCounts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"CRUISE": 2, "LANE_CHANGE(LEFT)": 1}, counts)

	require.NoError(t, s.FinishRun(ctx, id, epoch.Add(time.Minute), 4))
	run, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "dev", run.Mode)
	assert.Equal(t, "{}", run.ConfigJSON)
	assert.Equal(t, int64(3), run.Ticks)
	assert.Equal(t, int64(4), run.Dropped)
	require.NotNil(t, run.EndedAt)
	assert.True(t, run.EndedAt.Equal(epoch.Add(time.Minute)))
}

func TestStore_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, "missing", epoch, 0), ErrRunNotFound)

	err = s.InsertTicks(ctx, "missing", []agent.TickRecord{tickAt(1, decision.Of(decision.Cruise), 10)})
	assert.Error(t, err, "foreign key rejects ticks without a run")
}

func TestRuns_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, err := s.StartRun(ctx, epoch, "dev", "{}")
	require.NoError(t, err)
	b, err := s.StartRun(ctx, epoch.Add(time.Hour), "serial", `{"fixed_delta":"33ms"}`)
	require.NoError(t, err)

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, b, runs[0].ID)
	assert.Equal(t, a, runs[1].ID)
	assert.Nil(t, runs[1].EndedAt)
}

func TestAttachAdminRoutes(t *testing.T) {
	s := openTestStore(t)
	id, err := s.StartRun(context.Background(), epoch, "dev", "{}")
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	t.Run("runs", func(t *testing.T) {
		rec := testutil.Serve(mux, testutil.DebugRequest(http.MethodGet, "/debug/runs", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var runs []Run
		testutil.DecodeJSON(t, rec, &runs)
		require.Len(t, runs, 1)
		assert.Equal(t, id, runs[0].ID)
	})

	t.Run("backup", func(t *testing.T) {
		rec := testutil.Serve(mux, testutil.DebugRequest(http.MethodGet, "/debug/backup", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "telemetry-backup-")

		gz, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		data, err := io.ReadAll(gz)
		require.NoError(t, err)
		assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
	})
}
