package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/linger.watch/internal/httputil"
)

// handleMotionPNG renders the recent motion score history as a PNG line
// plot, one line per camera.
// Query params:
//   - camera (optional; all cameras when empty)
func (ws *WebServer) handleMotionPNG(w http.ResponseWriter, r *http.Request) {
	if ws.supervisor == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no supervisor configured")
		return
	}
	wanted := r.URL.Query().Get("camera")

	p := plot.New()
	p.Title.Text = "Motion Score History"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Largest motion area (px)"

	workers := ws.supervisor.Workers()
	colors := generateColors(len(workers))
	plotted := 0
	for i, wk := range workers {
		if wanted != "" && wk.Name() != wanted {
			continue
		}
		scores := wk.Gate().Scores()
		if len(scores) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(scores))
		for j, s := range scores {
			pts[j] = plotter.XY{X: float64(j), Y: s}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("build line: %v", err))
			return
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(wk.Name(), line)
		plotted++
	}
	if plotted == 0 {
		httputil.NotFound(w, "no motion history available")
		return
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	img := vgimg.New(14*vg.Inch, 6*vg.Inch)
	dc := draw.New(img)
	p.Draw(dc)

	var buf bytes.Buffer
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("encode plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// generateColors creates a palette of distinct colors for camera lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
