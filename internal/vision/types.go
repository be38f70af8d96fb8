// Package vision implements the per-camera frame pipeline: motion gating,
// multi-object tracking and linger detection. All types in this package are
// owned by a single camera worker; nothing here is shared across cameras.
package vision

import (
	"fmt"
	"image"
	"time"
)

// Frame is a single decoded video frame. The pixel buffer is owned by the
// pipeline stage currently processing it and must not be retained past the
// cycle unless explicitly snapshotted.
type Frame struct {
	Camera string
	Seq    uint64 // Monotonically increasing per camera, starts at 1
	Time   time.Time
	Image  image.Image
}

// BBox is an axis-aligned bounding box in frame coordinates.
type BBox struct {
	X1, Y1, X2, Y2 int
}

// Centroid returns the integer centre of the box.
func (b BBox) Centroid() (int, int) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Width returns the box width in pixels.
func (b BBox) Width() int { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b BBox) Height() int { return b.Y2 - b.Y1 }

// Area returns the box area in pixels.
func (b BBox) Area() int {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IOU returns the intersection-over-union of two boxes in [0, 1].
func (b BBox) IOU(o BBox) float64 {
	ix1 := max(b.X1, o.X1)
	iy1 := max(b.Y1, o.Y1)
	ix2 := min(b.X2, o.X2)
	iy2 := min(b.Y2, o.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func (b BBox) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}

// ROI is a configured region of interest inside the frame where dwell time
// is measured.
type ROI struct {
	X1, Y1, X2, Y2 int
}

// Contains reports whether the point (cx, cy) lies inside the region.
// Boundary pixels count as inside.
func (r ROI) Contains(cx, cy int) bool {
	return cx >= r.X1 && cx <= r.X2 && cy >= r.Y1 && cy <= r.Y2
}

func (r ROI) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// Detection is a single model detection for one frame. Detections are
// ephemeral; they are produced fresh each detection cycle and consumed by
// the tracker.
type Detection struct {
	Box        BBox
	Label      string
	Confidence float64 // [0, 1]
}

// TrackedObject is a persistent identity maintained by the Tracker across
// frames. The ID is stable until the track expires and is never reassigned.
type TrackedObject struct {
	ID          int64
	Box         BBox
	CX, CY      int // Current centroid
	Label       string
	Confidence  float64
	LastSeenSeq uint64
	Missing     int // Consecutive detection cycles without a match
	FirstSeen   time.Time
}

// AlertEvent is emitted when a tracked identity has lingered inside the ROI
// past the configured threshold. Events are immutable once emitted; at most
// one fires per identity per cooldown window.
type AlertEvent struct {
	ID           string // UUID
	Camera       string
	TrackID      int64
	Label        string
	Box          BBox
	ROI          ROI
	Dwell        time.Duration
	SnapshotPath string
	Time         time.Time
}
