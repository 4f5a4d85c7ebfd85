// Package telemetry records runs and per-tick agent state in sqlite.
package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lanepilot/internal/agent"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store is the telemetry database.
type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and brings the
// schema up to date.
func Open(path string) (*Store, error) {
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path is the file the store was opened from.
func (s *Store) Path() string { return s.path }

// Run is one execution of the control loop.
type Run struct {
	ID         string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Mode       string     `json:"mode"`
	ConfigJSON string     `json:"config"`
	Ticks      int64      `json:"ticks"`
	Dropped    int64      `json:"dropped"`
}

// StartRun inserts a new run and returns its id.
func (s *Store) StartRun(ctx context.Context, started time.Time, mode, configJSON string) (string, error) {
	if configJSON == "" {
		configJSON = "{}"
	}
	id := uuid.NewString()
	_, err := s.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_unix_nanos, mode, config_json) VALUES (?, ?, ?, ?)`,
		id, started.UnixNano(), mode, configJSON,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the end time and the number of ticks dropped by the
// recorder. The tick count is derived from the stored rows.
func (s *Store) FinishRun(ctx context.Context, runID string, ended time.Time, dropped int64) error {
	res, err := s.ExecContext(ctx, `
		UPDATE runs
		SET ended_unix_nanos = ?,
			dropped = ?,
			ticks = (SELECT COUNT(*) FROM ticks WHERE ticks.run_id = runs.run_id)
		WHERE run_id = ?`,
		ended.UnixNano(), dropped, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// InsertTicks writes records for runID in one transaction.
func (s *Store) InsertTicks(ctx context.Context, runID string, recs []agent.TickRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO ticks (
			run_id, tick, unix_nanos, x, y, yaw, speed, distance, rel_velocity, ttc,
			raw, behavior, throttle, brake, steer, lane_id, on_path, cooldown
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tick insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		var relVel sql.NullFloat64
		if r.Known && finite(r.Distance) {
			relVel = nullable(r.RelVel)
		}
		_, err := stmt.ExecContext(ctx,
			runID, int64(r.Tick), r.Time.UnixNano(),
			r.Pose.Position.X, r.Pose.Position.Y, r.Pose.Yaw, r.Speed,
			nullable(r.Distance), relVel, nullable(r.TTC),
			r.Raw.String(), r.Behavior.String(),
			r.Control.Throttle, r.Control.Brake, r.Control.Steer,
			r.LaneID, r.OnPath, r.Cooldown,
		)
		if err != nil {
			return fmt.Errorf("failed to insert tick %d: %w", r.Tick, err)
		}
	}
	return tx.Commit()
}

// Runs lists runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.QueryContext(ctx, `
		SELECT run_id, started_unix_nanos, ended_unix_nanos, mode, config_json, ticks, dropped
		FROM runs ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &started, &ended, &r.Mode, &r.ConfigJSON, &r.Ticks, &r.Dropped); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			r.EndedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrRunNotFound
	}
	return runs[0], nil
}

// TickRow is a stored tick. Distance, RelVelocity and TTC are NaN when the
// stored value was absent or infinite.
type TickRow struct {
	Tick        int64     `json:"tick"`
	Time        time.Time `json:"time"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Yaw         float64   `json:"yaw"`
	Speed       float64   `json:"speed"`
	Distance    float64   `json:"-"`
	RelVelocity float64   `json:"-"`
	TTC         float64   `json:"-"`
	Raw         string    `json:"raw"`
	Behavior    string    `json:"behavior"`
	Throttle    float64   `json:"throttle"`
	Brake       float64   `json:"brake"`
	Steer       float64   `json:"steer"`
	LaneID      int       `json:"lane_id"`
	OnPath      bool      `json:"on_path"`
	Cooldown    bool      `json:"cooldown"`
}

// Ticks returns the ticks of runID in order.
func (s *Store) Ticks(ctx context.Context, runID string) ([]TickRow, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT tick, unix_nanos, x, y, yaw, speed, distance, rel_velocity, ttc,
			raw, behavior, throttle, brake, steer, lane_id, on_path, cooldown
		FROM ticks WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRow
	for rows.Next() {
		var (
			t              TickRow
			ns             int64
			dist, rel, ttc sql.NullFloat64
		)
		if err := rows.Scan(&t.Tick, &ns, &t.X, &t.Y, &t.Yaw, &t.Speed, &dist, &rel, &ttc,
			&t.Raw, &t.Behavior, &t.Throttle, &t.Brake, &t.Steer, &t.LaneID, &t.OnPath, &t.Cooldown); err != nil {
			return nil, err
		}
		t.Time = time.Unix(0, ns).UTC()
		t.Distance, t.RelVelocity, t.TTC = orNaN(dist), orNaN(rel), orNaN(ttc)
		out = append(out, t)
	}
	return out, rows.Err()
}

// BehaviorCounts returns the number of ticks spent in each behavior.
func (s *Store) BehaviorCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT behavior, COUNT(*) FROM ticks WHERE run_id = ? GROUP BY behavior`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var b string
		var n int
		if err := rows.Scan(&b, &n); err != nil {
			return nil, err
		}
		counts[b] = n
	}
	return counts, rows.Err()
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func nullable(v float64) sql.NullFloat64 {
	if !finite(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
