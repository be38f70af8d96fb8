package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/linger.watch/internal/httputil"
)

// handleAlertsChart renders a bar chart (HTML) of alert counts per camera
// using go-echarts. Debugging-only endpoint, no auth.
// Query params:
//   - since_hours (optional; default 24)
func (ws *WebServer) handleAlertsChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no alert database configured")
		return
	}

	sinceHours := 24
	if h := r.URL.Query().Get("since_hours"); h != "" {
		if v, err := strconv.Atoi(h); err == nil && v > 0 {
			sinceHours = v
		}
	}
	since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)

	counts, err := ws.db.AlertCountsByCamera(since)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to get counts: %v", err))
		return
	}

	x := make([]string, 0, len(counts))
	y := make([]opts.BarData, 0, len(counts))
	for _, c := range counts {
		x = append(x, c.Camera)
		y = append(y, opts.BarData{Value: c.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Linger Alerts", Theme: "dark", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Linger Alerts by Camera", Subtitle: fmt.Sprintf("last %dh", sinceHours)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("alerts", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleMotionChart renders the recent motion score history per camera as a
// line chart (HTML).
// Query params:
//   - camera (optional; all cameras when empty)
func (ws *WebServer) handleMotionChart(w http.ResponseWriter, r *http.Request) {
	if ws.supervisor == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no supervisor configured")
		return
	}
	wanted := r.URL.Query().Get("camera")

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Motion Scores", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Motion Score Timeline", Subtitle: "largest connected motion area per frame"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	type cameraSeries struct {
		name string
		data []opts.LineData
	}
	maxLen := 0
	var series []cameraSeries
	for _, wk := range ws.supervisor.Workers() {
		if wanted != "" && wk.Name() != wanted {
			continue
		}
		scores := wk.Gate().Scores()
		if len(scores) > maxLen {
			maxLen = len(scores)
		}
		data := make([]opts.LineData, 0, len(scores))
		for _, s := range scores {
			data = append(data, opts.LineData{Value: s})
		}
		series = append(series, cameraSeries{name: wk.Name(), data: data})
	}
	if len(series) == 0 {
		httputil.NotFound(w, "no matching camera")
		return
	}

	x := make([]string, maxLen)
	for i := range x {
		x[i] = strconv.Itoa(i)
	}
	line.SetXAxis(x)
	for _, s := range series {
		line.AddSeries(s.name, s.data)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
