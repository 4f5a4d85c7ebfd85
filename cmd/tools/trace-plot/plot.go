package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lanepilot/internal/security"
	"github.com/banshee-data/lanepilot/internal/telemetry"
)

func writePlots(rows []telemetry.TickRow, runID, outDir string) ([]string, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("run %s has no ticks", runID)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	name := security.SanitizeFilename(runID)

	pathFile := filepath.Join(outDir, name+"-path.png")
	controlsFile := filepath.Join(outDir, name+"-controls.png")
	for _, f := range []string{pathFile, controlsFile} {
		if err := security.ValidatePathWithinDirectory(f, outDir); err != nil {
			return nil, err
		}
	}

	p, err := pathPlot(rows, runID)
	if err != nil {
		return nil, err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, pathFile); err != nil {
		return nil, fmt.Errorf("save path plot: %w", err)
	}

	c, err := controlsPlot(rows, runID)
	if err != nil {
		return nil, err
	}
	if err := c.Save(14*vg.Inch, 6*vg.Inch, controlsFile); err != nil {
		return nil, fmt.Errorf("save controls plot: %w", err)
	}
	return []string{pathFile, controlsFile}, nil
}

func pathPlot(rows []telemetry.TickRow, runID string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s: path", runID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	byBehavior := make(map[string]plotter.XYs)
	for _, r := range rows {
		if !finite(r.X) || !finite(r.Y) {
			continue
		}
		byBehavior[r.Behavior] = append(byBehavior[r.Behavior], plotter.XY{X: r.X, Y: r.Y})
	}
	// Legend follows first appearance in the run.
	order := lo.Uniq(lo.Map(rows, func(r telemetry.TickRow, _ int) string { return r.Behavior }))
	for i, b := range order {
		pts := byBehavior[b]
		if len(pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(s)
		p.Legend.Add(b, s)
	}
	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func controlsPlot(rows []telemetry.TickRow, runID string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s: controls", runID)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Command / TTC (s, capped at 10)"

	t0 := rows[0].Time
	series := []struct {
		label string
		value func(telemetry.TickRow) float64
	}{
		{"steer", func(r telemetry.TickRow) float64 { return r.Steer }},
		{"throttle", func(r telemetry.TickRow) float64 { return r.Throttle }},
		{"brake", func(r telemetry.TickRow) float64 { return r.Brake }},
		{"ttc", func(r telemetry.TickRow) float64 { return math.Min(r.TTC, 10) }},
	}
	p.Add(plotter.NewGrid())
	for i, s := range series {
		pts := make(plotter.XYs, 0, len(rows))
		for _, r := range rows {
			v := s.value(r)
			if !finite(v) {
				continue
			}
			pts = append(pts, plotter.XY{X: r.Time.Sub(t0).Seconds(), Y: v})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}
	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
