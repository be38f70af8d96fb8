package vision

import (
	"image"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// MotionConfig holds configuration parameters for the motion gate.
type MotionConfig struct {
	Threshold     uint8  // Per-pixel absolute difference threshold
	BlurKernel    int    // Box blur kernel size in pixels (odd, >= 1)
	MinArea       int    // Minimum connected motion area in pixels
	SkipFrames    uint64 // Keep detecting for this many cycles after a detection
	ForceInterval uint64 // Force a detection every N frames regardless of motion
}

// DefaultMotionConfig returns default motion gate configuration.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		Threshold:     25,
		BlurKernel:    21,
		MinArea:       5000,
		SkipFrames:    5,
		ForceInterval: 25,
	}
}

// MotionScore summarises the motion measured on one frame.
type MotionScore struct {
	ChangedPixels int // Pixels above the diff threshold
	LargestArea   int // Largest connected motion component in pixels
	Forced        bool
}

// MotionStats is a summary of recent motion scores.
type MotionStats struct {
	Samples int
	Mean    float64
	StdDev  float64
	P50     float64
	P95     float64
}

// MaxScoreHistory bounds the number of motion scores kept for statistics.
const MaxScoreHistory = 300

// MotionGate decides per frame whether detection should run this cycle.
// It compares the current frame against a rolling blurred grayscale
// reference; frames with insufficient pixel-level change skip the expensive
// detection call, subject to a forced periodic override. The gate is owned
// by one camera worker; only Stats is safe to call from other goroutines.
type MotionGate struct {
	cfg MotionConfig

	prev          *image.Gray // Blurred grayscale reference
	lastDetectSeq uint64
	haveDetected  bool

	histMu  sync.Mutex
	history []float64
}

// NewMotionGate creates a motion gate with the given configuration.
// Invalid kernel sizes are rounded up to the nearest odd value.
func NewMotionGate(cfg MotionConfig) *MotionGate {
	if cfg.BlurKernel < 1 {
		cfg.BlurKernel = 1
	}
	if cfg.BlurKernel%2 == 0 {
		cfg.BlurKernel++
	}
	if cfg.ForceInterval == 0 {
		cfg.ForceInterval = DefaultMotionConfig().ForceInterval
	}
	return &MotionGate{cfg: cfg}
}

// ShouldDetect reports whether detection should run for this frame and the
// motion score measured against the rolling reference. Side effect: the
// reference frame is updated. The first frame seeds the reference and
// reports no motion; the forced interval still applies to it.
func (g *MotionGate) ShouldDetect(frame Frame) (bool, MotionScore) {
	cur := blurGray(toGray(frame.Image), g.cfg.BlurKernel)

	var score MotionScore
	if g.prev != nil && sameSize(g.prev, cur) {
		mask, changed := diffMask(g.prev, cur, g.cfg.Threshold)
		score.ChangedPixels = changed
		score.LargestArea = largestComponent(mask, cur.Rect.Dx(), cur.Rect.Dy())
	}
	g.prev = cur

	g.recordScore(float64(score.LargestArea))

	trigger := score.LargestArea >= g.cfg.MinArea
	if frame.Seq%g.cfg.ForceInterval == 0 {
		trigger = true
		score.Forced = true
	}
	if trigger {
		g.lastDetectSeq = frame.Seq
		g.haveDetected = true
		return true, score
	}
	// Keep the detector warm for a few cycles after the last triggered
	// detection so the tracker is fed while an object slows down below the
	// motion floor. Warm cycles do not extend the window.
	if g.haveDetected && frame.Seq-g.lastDetectSeq < g.cfg.SkipFrames {
		return true, score
	}
	return false, score
}

// Reset discards the rolling reference and detection history. Used when the
// camera worker drops tracking state after a long outage.
func (g *MotionGate) Reset() {
	g.prev = nil
	g.lastDetectSeq = 0
	g.haveDetected = false
}

func (g *MotionGate) recordScore(s float64) {
	g.histMu.Lock()
	defer g.histMu.Unlock()
	g.history = append(g.history, s)
	if len(g.history) > MaxScoreHistory {
		g.history = g.history[len(g.history)-MaxScoreHistory:]
	}
}

// Stats summarises the recent motion score history. Safe for concurrent use.
func (g *MotionGate) Stats() MotionStats {
	g.histMu.Lock()
	scores := make([]float64, len(g.history))
	copy(scores, g.history)
	g.histMu.Unlock()

	if len(scores) == 0 {
		return MotionStats{}
	}
	mean, std := stat.MeanStdDev(scores, nil)
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	st := MotionStats{
		Samples: len(scores),
		Mean:    mean,
		P50:     stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
	if len(scores) > 1 {
		st.StdDev = std
	}
	return st
}

// Scores returns a copy of the recent motion score history, oldest first.
func (g *MotionGate) Scores() []float64 {
	g.histMu.Lock()
	defer g.histMu.Unlock()
	out := make([]float64, len(g.history))
	copy(out, g.history)
	return out
}

// toGray converts an arbitrary image to grayscale using the standard luma
// conversion. *image.Gray inputs are returned as-is.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// blurGray applies a separable box blur with the given odd kernel size.
// kernel == 1 returns a copy of the input.
func blurGray(src *image.Gray, kernel int) *image.Gray {
	if kernel <= 1 {
		out := image.NewGray(src.Rect)
		copy(out.Pix, src.Pix)
		return out
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	r := kernel / 2

	// Horizontal pass with a running sum per row.
	tmp := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		var sum int
		count := 0
		for x := -r; x <= r; x++ {
			if x >= 0 && x < w {
				sum += int(row[x])
				count++
			}
		}
		for x := 0; x < w; x++ {
			tmp[y*w+x] = uint16(sum / count)
			if lead := x + r + 1; lead < w {
				sum += int(row[lead])
				count++
			}
			if trail := x - r; trail >= 0 {
				sum -= int(row[trail])
				count--
			}
		}
	}

	// Vertical pass.
	out := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		var sum int
		count := 0
		for y := -r; y <= r; y++ {
			if y >= 0 && y < h {
				sum += int(tmp[y*w+x])
				count++
			}
		}
		for y := 0; y < h; y++ {
			out.Pix[y*out.Stride+x] = uint8(sum / count)
			if lead := y + r + 1; lead < h {
				sum += int(tmp[lead*w+x])
				count++
			}
			if trail := y - r; trail >= 0 {
				sum -= int(tmp[trail*w+x])
				count--
			}
		}
	}
	return out
}

func sameSize(a, b *image.Gray) bool {
	return a.Rect.Dx() == b.Rect.Dx() && a.Rect.Dy() == b.Rect.Dy()
}

// diffMask thresholds the absolute difference of two equally sized gray
// images into a binary mask, returning the mask and the changed pixel count.
func diffMask(prev, cur *image.Gray, threshold uint8) ([]bool, int) {
	w, h := cur.Rect.Dx(), cur.Rect.Dy()
	mask := make([]bool, w*h)
	changed := 0
	for y := 0; y < h; y++ {
		prow := prev.Pix[y*prev.Stride : y*prev.Stride+w]
		crow := cur.Pix[y*cur.Stride : y*cur.Stride+w]
		for x := 0; x < w; x++ {
			d := int(prow[x]) - int(crow[x])
			if d < 0 {
				d = -d
			}
			if d >= int(threshold) {
				mask[y*w+x] = true
				changed++
			}
		}
	}
	return mask, changed
}

// largestComponent returns the area of the largest 4-connected component in
// the mask, the equivalent of the contour-area test in the motion literature.
func largestComponent(mask []bool, w, h int) int {
	if w == 0 || h == 0 {
		return 0
	}
	visited := make([]bool, len(mask))
	var stack []int
	best := 0
	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		area := 0
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			x := idx % w
			for _, n := range [4]int{idx - 1, idx + 1, idx - w, idx + w} {
				if n < 0 || n >= len(mask) || !mask[n] || visited[n] {
					continue
				}
				// Reject horizontal wraparound at row edges.
				if (n == idx-1 || n == idx+1) && absInt(n%w-x) != 1 {
					continue
				}
				visited[n] = true
				stack = append(stack, n)
			}
		}
		if area > best {
			best = area
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
