package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lanepilot/internal/agent"
	"github.com/banshee-data/lanepilot/internal/httputil"
	"github.com/banshee-data/lanepilot/internal/units"
)

// lineData maps non-finite values to "-", which echarts draws as a gap.
func lineData(recs []agent.TickRecord, f func(agent.TickRecord) float64) []opts.LineData {
	out := make([]opts.LineData, len(recs))
	for i, r := range recs {
		v := f(r)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = opts.LineData{Value: "-"}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}

func newLine(title, subtitle, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
	)
	return line
}

// renderCharts builds the tick dashboard: obstacle distance and ttc, speed,
// and the control outputs.
func renderCharts(recs []agent.TickRecord) (*bytes.Buffer, error) {
	x := make([]string, len(recs))
	var t0 float64
	if len(recs) > 0 {
		t0 = float64(recs[0].Time.UnixNano()) / 1e9
	}
	for i, r := range recs {
		x[i] = strconv.FormatFloat(float64(r.Time.UnixNano())/1e9-t0, 'f', 2, 64)
	}
	sub := fmt.Sprintf("%d ticks", len(recs))

	obstacle := newLine("Obstacle", sub, "m / s")
	obstacle.SetXAxis(x).
		AddSeries("distance (m)", lineData(recs, func(r agent.TickRecord) float64 { return r.Distance })).
		AddSeries("ttc (s)", lineData(recs, func(r agent.TickRecord) float64 { return r.TTC }))

	speed := newLine("Speed", sub, "km/h")
	speed.SetXAxis(x).
		AddSeries("speed", lineData(recs, func(r agent.TickRecord) float64 {
			return units.ConvertSpeed(r.Speed, units.KPH)
		}))

	control := newLine("Control", sub, "")
	control.SetXAxis(x).
		AddSeries("throttle", lineData(recs, func(r agent.TickRecord) float64 { return r.Control.Throttle })).
		AddSeries("brake", lineData(recs, func(r agent.TickRecord) float64 { return r.Control.Brake })).
		AddSeries("steer", lineData(recs, func(r agent.TickRecord) float64 { return r.Control.Steer }))

	page := components.NewPage()
	page.AddCharts(obstacle, speed, control)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	n := 900
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "n must be a positive integer")
			return
		}
		n = parsed
	}
	buf, err := renderCharts(s.history.Recent(n))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
