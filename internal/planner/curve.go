package planner

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/geom"
)

// CurveConfig shapes the lane-change curve.
type CurveConfig struct {
	// EntryFraction and ExitFraction place the two interior control points
	// along the maneuver extent. The path stays in the current lane until
	// EntryFraction and reaches the target lateral offset at ExitFraction.
	EntryFraction float64
	ExitFraction  float64
	// Samples is the number of output points, at least 2.
	Samples int
	// DuplicateTolerance merges control points closer than this (metres).
	DuplicateTolerance float64
}

// DefaultCurveConfig returns the stock curve shape.
func DefaultCurveConfig() CurveConfig {
	return CurveConfigFromControl(config.EmptyControlConfig())
}

// CurveConfigFromControl extracts the curve tunables from a control config.
func CurveConfigFromControl(cfg *config.ControlConfig) CurveConfig {
	return CurveConfig{
		EntryFraction:      cfg.GetCurveEntryFraction(),
		ExitFraction:       cfg.GetCurveExitFraction(),
		Samples:            cfg.GetCurveSamples(),
		DuplicateTolerance: 1e-3,
	}
}

// LaneChangeCurve samples a smooth curve from (0,0) to (extent, lateral)
// in the maneuver frame.
func LaneChangeCurve(cfg CurveConfig, lateral, extent float64) Trajectory {
	controls := []r2.Point{
		{X: 0, Y: 0},
		{X: cfg.EntryFraction * extent, Y: 0},
		{X: cfg.ExitFraction * extent, Y: lateral},
		{X: extent, Y: lateral},
	}
	return FitCurve(cfg, controls)
}

// LaneChange is LaneChangeCurve anchored at the start position and aligned
// with the lane heading rather than the vehicle yaw, so a vehicle that is
// slightly crabbed in its lane still ends up on the target centreline.
func LaneChange(cfg CurveConfig, start geom.Pose, laneYaw, lateral, extent float64) Trajectory {
	return LaneChangeCurve(cfg, lateral, extent).ToWorld(start.Planar(), laneYaw)
}

// ManeuverExtent is the forward length of a lane change at speed.
func ManeuverExtent(speed, seconds, minExtent, maxExtent float64) float64 {
	d := speed * seconds
	if math.IsNaN(d) {
		return minExtent
	}
	return math.Min(math.Max(d, minExtent), maxExtent)
}

// FitCurve fits an interpolating parametric curve through controls and
// samples it evenly in the chord-length parameter.
//
// Four or more distinct points use a not-a-knot cubic spline per axis,
// which for exactly four points is the single cubic through all of them.
// Three points give the exact quadratic, two a straight line and one a
// single-point trajectory. A fit that fails or yields non-finite samples
// falls back to the next lower degree. FitCurve never panics.
func FitCurve(cfg CurveConfig, controls []r2.Point) Trajectory {
	pts := dedupe(controls, cfg.DuplicateTolerance)
	switch len(pts) {
	case 0:
		return nil
	case 1:
		return Trajectory{pts[0]}
	}

	samples := max(cfg.Samples, 2)
	us := chordParams(pts)
	grid := floats.Span(make([]float64, samples), 0, 1)
	grid[samples-1] = 1

	for _, fit := range fitters(len(pts)) {
		traj, err := sampleFit(fit, us, pts, grid)
		if err == nil && traj.Finite() {
			return traj
		}
	}
	return Trajectory{pts[0], pts[len(pts)-1]}
}

type fitFunc func(us, vs []float64) (interp.Predictor, error)

// fitters lists the fits to try for n distinct points, highest degree first.
func fitters(n int) []fitFunc {
	var fs []fitFunc
	if n >= 4 {
		fs = append(fs, fitNotAKnot)
	}
	if n >= 3 {
		fs = append(fs, fitQuadratic)
	}
	return append(fs, fitLinear)
}

func sampleFit(fit fitFunc, us []float64, pts []r2.Point, grid []float64) (traj Trajectory, err error) {
	defer func() {
		if r := recover(); r != nil {
			traj, err = nil, fmt.Errorf("curve fit panicked: %v", r)
		}
	}()

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	fx, err := fit(us, xs)
	if err != nil {
		return nil, err
	}
	fy, err := fit(us, ys)
	if err != nil {
		return nil, err
	}

	traj = make(Trajectory, len(grid))
	for i, u := range grid {
		traj[i] = r2.Point{X: fx.Predict(u), Y: fy.Predict(u)}
	}
	return traj, nil
}

func fitNotAKnot(us, vs []float64) (interp.Predictor, error) {
	var nak interp.NotAKnotCubic
	if err := nak.Fit(us, vs); err != nil {
		return nil, err
	}
	return &nak, nil
}

func fitLinear(us, vs []float64) (interp.Predictor, error) {
	n := len(us)
	var pl interp.PiecewiseLinear
	if err := pl.Fit([]float64{us[0], us[n-1]}, []float64{vs[0], vs[n-1]}); err != nil {
		return nil, err
	}
	return &pl, nil
}

// quadratic is c0 + c1·u + c2·u².
type quadratic [3]float64

func (q quadratic) Predict(u float64) float64 {
	return q[0] + (q[1]+q[2]*u)*u
}

// fitQuadratic solves the Vandermonde system through the first, middle and
// last samples.
func fitQuadratic(us, vs []float64) (interp.Predictor, error) {
	n := len(us)
	idx := [3]int{0, n / 2, n - 1}
	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for row, i := range idx {
		a.Set(row, 0, 1)
		a.Set(row, 1, us[i])
		a.Set(row, 2, us[i]*us[i])
		b.SetVec(row, vs[i])
	}
	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("quadratic fit: %w", err)
	}
	return quadratic{c.AtVec(0), c.AtVec(1), c.AtVec(2)}, nil
}

// dedupe drops non-finite points and any point within tol of the last kept
// one.
func dedupe(controls []r2.Point, tol float64) []r2.Point {
	out := make([]r2.Point, 0, len(controls))
	for _, p := range controls {
		if !geom.Finite(p) {
			continue
		}
		if len(out) > 0 && p.Sub(out[len(out)-1]).Norm() < tol {
			continue
		}
		out = append(out, p)
	}
	return out
}

// chordParams returns cumulative chord length normalised to [0, 1].
// Input points must be distinct so the result is strictly increasing.
func chordParams(pts []r2.Point) []float64 {
	us := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		us[i] = us[i-1] + pts[i].Sub(pts[i-1]).Norm()
	}
	total := us[len(us)-1]
	for i := range us {
		us[i] /= total
	}
	us[len(us)-1] = 1
	return us
}
