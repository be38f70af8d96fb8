// Package render draws tracking overlays onto frames and writes alert
// snapshots to disk.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/banshee-data/linger.watch/internal/security"
	"github.com/banshee-data/linger.watch/internal/vision"
)

var (
	roiColor   = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	trackColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	alertColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

const boxStroke = 2

// Overlay draws the ROI, tracked bounding boxes and per-track ID labels on a
// copy of the frame. It satisfies vision.Renderer.
type Overlay struct{}

// NewOverlay creates an overlay renderer.
func NewOverlay() *Overlay { return &Overlay{} }

// Render returns an annotated copy of the frame image. The frame image is
// never modified.
func (o *Overlay) Render(frame vision.Frame, tracked []vision.TrackedObject, roi vision.ROI) (image.Image, error) {
	if frame.Image == nil {
		return nil, fmt.Errorf("frame %d has no image", frame.Seq)
	}
	bounds := frame.Image.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame.Image, bounds.Min, draw.Src)

	drawRect(out, roi.X1, roi.Y1, roi.X2, roi.Y2, roiColor)

	for _, obj := range tracked {
		c := trackColor
		if roi.Contains(obj.CX, obj.CY) {
			c = alertColor
		}
		drawRect(out, obj.Box.X1, obj.Box.Y1, obj.Box.X2, obj.Box.Y2, c)
		drawLabel(out, fmt.Sprintf("ID%d %s", obj.ID, obj.Label), obj.Box.X1, obj.Box.Y1-4, c)
	}
	return out, nil
}

// drawRect strokes an axis-aligned rectangle, clipped to the image bounds.
func drawRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	for s := 0; s < boxStroke; s++ {
		for x := x1; x <= x2; x++ {
			setClipped(img, x, y1+s, c)
			setClipped(img, x, y2-s, c)
		}
		for y := y1; y <= y2; y++ {
			setClipped(img, x1+s, y, c)
			setClipped(img, x2-s, y, c)
		}
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func drawLabel(img *image.RGBA, text string, x, y int, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// SnapshotDir saves alert snapshots as JPEG files under a base directory.
// It satisfies vision.SnapshotSaver.
type SnapshotDir struct {
	base    string
	quality int
}

// NewSnapshotDir creates a snapshot saver rooted at base.
func NewSnapshotDir(base string) *SnapshotDir {
	return &SnapshotDir{base: base, quality: 85}
}

// Save writes the annotated image as
// <base>/<camera>_linger_<unix-timestamp>.jpg and returns the written path.
// The camera name is sanitized before it becomes part of the filename.
func (s *SnapshotDir) Save(img image.Image, camera string, event vision.AlertEvent) (string, error) {
	if err := os.MkdirAll(s.base, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	name := fmt.Sprintf("%s_linger_%d.jpg", security.SanitizeFilename(camera), event.Time.Unix())
	path := filepath.Join(s.base, name)
	if err := security.ValidatePathWithinDirectory(path, s.base); err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: s.quality}); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return path, nil
}
