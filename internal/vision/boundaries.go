package vision

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Detector is the object-detection boundary. Implementations run a model
// over the frame and return detections filtered to the allowed classes and
// minimum confidence. Detect must be deterministic given identical inputs
// and model version. Implementations are not assumed safe for concurrent
// use; wrap with SerializeDetector when one instance is shared between
// camera workers.
type Detector interface {
	Detect(ctx context.Context, frame Frame, classes map[string]bool, minConfidence float64) ([]Detection, error)
}

// FrameSource supplies frames for one camera. Next blocks until a frame is
// available, the context is cancelled, or the source fails. End of stream is
// reported as io.EOF. Transport failures are reported as *AcquisitionError.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Notifier delivers alert events. Failures must be tolerated by callers;
// cooldown has already been applied upstream so implementations need not
// deduplicate.
type Notifier interface {
	Notify(ctx context.Context, event AlertEvent) error
}

// Renderer draws tracked objects and the ROI onto a copy of the frame for
// snapshots. Render failures are never fatal to the pipeline.
type Renderer interface {
	Render(frame Frame, tracked []TrackedObject, roi ROI) (image.Image, error)
}

// SnapshotSaver persists an annotated frame to disk and returns the path it
// was written to.
type SnapshotSaver interface {
	Save(img image.Image, camera string, event AlertEvent) (string, error)
}

// AcquisitionError reports a frame source failure. Transient errors trigger
// reconnect backoff inside the camera worker; fatal errors surface to the
// supervisor and mark the camera degraded.
type AcquisitionError struct {
	Transient bool
	Err       error
}

func (e *AcquisitionError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("acquisition (%s): %v", kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// DetectionError reports a failed detection call. The worker skips the cycle
// and keeps the previous tracked set unmodified.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string { return fmt.Sprintf("detection: %v", e.Err) }

func (e *DetectionError) Unwrap() error { return e.Err }

// serializedDetector wraps a Detector with a mutex so a single model
// instance can be shared by multiple camera workers.
type serializedDetector struct {
	mu    sync.Mutex
	inner Detector
}

// SerializeDetector returns a Detector that serialises calls into inner.
// Use this when one model instance is reused across cameras and the
// implementation does not document itself as reentrant-safe.
func SerializeDetector(inner Detector) Detector {
	return &serializedDetector{inner: inner}
}

func (d *serializedDetector) Detect(ctx context.Context, frame Frame, classes map[string]bool, minConfidence float64) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.Detect(ctx, frame, classes, minConfidence)
}
