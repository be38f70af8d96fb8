// Package camera owns the per-camera processing loop and the supervisor
// that manages the set of camera workers. Each worker runs one camera's
// pipeline (motion gate, detector call, tracker, linger monitor) with
// private state; nothing frame-level is shared between cameras.
package camera

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/linger.watch/internal/vision"
)

// WorkerState is the lifecycle state of a camera worker, modelled as an
// explicit tagged state so the supervisor can query and test transitions.
type WorkerState string

const (
	StateStarting     WorkerState = "starting"
	StateRunning      WorkerState = "running"
	StateReconnecting WorkerState = "reconnecting"
	StateStopped      WorkerState = "stopped"
)

// AlertStore persists emitted alert events. Store failures are logged and
// never propagate into pipeline state.
type AlertStore interface {
	RecordAlert(event vision.AlertEvent) error
}

// WorkerConfig wires one camera's pipeline together.
type WorkerConfig struct {
	Camera   string
	Source   vision.FrameSource
	Detector vision.Detector
	Gate     *vision.MotionGate
	Tracker  *vision.Tracker
	// Linger may be nil for cameras that only track without alerting.
	Linger *vision.LingerMonitor

	// Optional collaborators; nil disables the corresponding step.
	Notifier  vision.Notifier
	Renderer  vision.Renderer
	Snapshots vision.SnapshotSaver
	Store     AlertStore

	Classes       map[string]bool
	MinConfidence float64

	// ReconnectBackoff is the initial retry interval after a transient
	// acquisition failure; it doubles per attempt up to ReconnectMax.
	ReconnectBackoff time.Duration
	ReconnectMax     time.Duration
	// StateGrace is how long an outage may last before tracking state is
	// discarded. Zero means state is dropped on any reconnect.
	StateGrace time.Duration
	// DetectTimeout bounds each detection call so shutdown never waits on
	// an in-flight model invocation indefinitely.
	DetectTimeout time.Duration
	// NotifyTimeout bounds each notification delivery.
	NotifyTimeout time.Duration

	// Logger is optional; if nil, uses log.Default()
	Logger *log.Logger
}

// Worker runs one camera's frame loop: pull a frame, gate it, conditionally
// detect, track, evaluate linger, and hand events to the downstream
// collaborators. It owns all per-camera pipeline state.
type Worker struct {
	cfg   WorkerConfig
	stats *Stats

	mu    sync.RWMutex
	state WorkerState

	logger *log.Logger
}

// NewWorker creates a camera worker. The config's Source, Detector, Gate
// and Tracker fields are required.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = 10 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &Worker{
		cfg:    cfg,
		stats:  NewStats(),
		state:  StateStarting,
		logger: logger,
	}
}

// Name returns the camera name this worker serves.
func (w *Worker) Name() string { return w.cfg.Camera }

// State returns the worker's current lifecycle state.
func (w *Worker) State() WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Stats returns the worker's counters.
func (w *Worker) Stats() *Stats { return w.stats }

// Gate exposes the motion gate for monitoring endpoints.
func (w *Worker) Gate() *vision.MotionGate { return w.cfg.Gate }

// Tracker exposes the tracker for monitoring endpoints.
func (w *Worker) Tracker() *vision.Tracker { return w.cfg.Tracker }

// Linger exposes the linger monitor, nil when alerting is disabled for this
// camera.
func (w *Worker) Linger() *vision.LingerMonitor { return w.cfg.Linger }

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Run executes the frame loop until the context is cancelled, the source
// reports end of stream, or a fatal acquisition error occurs. Cancellation
// is observed at the top of every cycle and inside blocking acquisition
// calls; the worker finishes its current cycle, releases the source and
// returns. A nil return means cooperative stop or end of stream; a non-nil
// return is a crash the supervisor may restart.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer func() {
		// The source is released on cooperative stop. On a crash return it
		// stays open so a supervisor restart can retry it.
		if err == nil {
			if cerr := w.cfg.Source.Close(); cerr != nil {
				w.logger.Printf("[%s] source close: %v", w.cfg.Camera, cerr)
			}
		}
		w.setState(StateStopped)
	}()

	w.setState(StateRunning)
	w.logger.Printf("[%s] worker running", w.cfg.Camera)

	for {
		if ctx.Err() != nil {
			w.logger.Printf("[%s] stop requested", w.cfg.Camera)
			return nil
		}

		frame, err := w.cfg.Source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				w.logger.Printf("[%s] end of stream", w.cfg.Camera)
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			}
			var aq *vision.AcquisitionError
			if errors.As(err, &aq) && !aq.Transient {
				w.logger.Printf("[%s] fatal acquisition error: %v", w.cfg.Camera, err)
				return err
			}
			var ok bool
			frame, ok, err = w.reconnect(ctx, err)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}

		w.processFrame(ctx, frame)
	}
}

// reconnect retries the source with exponential backoff until a frame is
// acquired, the context is cancelled, or the source fails fatally. Tracking
// state is preserved across outages shorter than StateGrace and discarded
// otherwise, since old identities are stale after a long gap. The ok result
// is false when the worker should stop without processing a frame.
func (w *Worker) reconnect(ctx context.Context, cause error) (vision.Frame, bool, error) {
	w.setState(StateReconnecting)
	w.stats.AddReconnect()
	w.logger.Printf("[%s] reconnecting after acquisition error: %v", w.cfg.Camera, cause)

	start := time.Now()
	backoff := w.cfg.ReconnectBackoff
	for {
		select {
		case <-ctx.Done():
			return vision.Frame{}, false, nil
		case <-time.After(backoff):
		}

		frame, err := w.cfg.Source.Next(ctx)
		if err == nil {
			outage := time.Since(start)
			if outage > w.cfg.StateGrace {
				w.logger.Printf("[%s] outage %v exceeded grace %v, discarding tracking state",
					w.cfg.Camera, outage.Round(time.Millisecond), w.cfg.StateGrace)
				w.resetPipeline()
			}
			w.setState(StateRunning)
			w.logger.Printf("[%s] reconnected after %v", w.cfg.Camera, outage.Round(time.Millisecond))
			return frame, true, nil
		}
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return vision.Frame{}, false, nil
		}
		var aq *vision.AcquisitionError
		if errors.As(err, &aq) && !aq.Transient {
			w.logger.Printf("[%s] fatal acquisition error during reconnect: %v", w.cfg.Camera, err)
			return vision.Frame{}, false, err
		}

		backoff *= 2
		if backoff > w.cfg.ReconnectMax {
			backoff = w.cfg.ReconnectMax
		}
	}
}

func (w *Worker) resetPipeline() {
	w.cfg.Gate.Reset()
	w.cfg.Tracker.Reset()
	if w.cfg.Linger != nil {
		w.cfg.Linger.Reset()
	}
}

// processFrame runs one pipeline cycle. No error from the downstream
// collaborators (store, notifier, renderer) escapes into tracker or linger
// state.
func (w *Worker) processFrame(ctx context.Context, frame vision.Frame) {
	w.stats.AddFrame()

	var tracked []vision.TrackedObject
	should, _ := w.cfg.Gate.ShouldDetect(frame)
	if should {
		dctx, cancel := context.WithTimeout(ctx, w.cfg.DetectTimeout)
		detections, err := w.cfg.Detector.Detect(dctx, frame, w.cfg.Classes, w.cfg.MinConfidence)
		cancel()
		if err != nil {
			// Skip the cycle: the prior tracked set is retained unmodified.
			w.stats.AddDetectionError()
			w.logger.Printf("[%s] %v", w.cfg.Camera, &vision.DetectionError{Err: err})
			tracked = w.cfg.Tracker.Active()
		} else {
			w.stats.AddDetection(len(detections))
			tracked = w.cfg.Tracker.Update(detections, frame.Seq)
		}
	} else {
		// Motion-gated skip: reuse the previous cycle's tracked set.
		tracked = w.cfg.Tracker.Active()
	}

	if w.cfg.Linger == nil {
		return
	}
	events := w.cfg.Linger.Evaluate(tracked, frame.Time)
	for _, event := range events {
		w.stats.AddAlert()
		w.emit(ctx, frame, tracked, event)
	}
}

// emit forwards one alert event to the snapshot, store and notifier
// collaborators. All failures are logged and swallowed.
func (w *Worker) emit(ctx context.Context, frame vision.Frame, tracked []vision.TrackedObject, event vision.AlertEvent) {
	w.logger.Printf("[%s] linger alert: track %d (%s) dwelled %v in %v",
		w.cfg.Camera, event.TrackID, event.Label, event.Dwell.Round(time.Millisecond), event.ROI)

	if w.cfg.Renderer != nil && w.cfg.Snapshots != nil {
		annotated, err := w.cfg.Renderer.Render(frame, tracked, event.ROI)
		if err != nil {
			w.logger.Printf("[%s] render: %v", w.cfg.Camera, err)
		} else if path, err := w.cfg.Snapshots.Save(annotated, w.cfg.Camera, event); err != nil {
			w.logger.Printf("[%s] snapshot: %v", w.cfg.Camera, err)
		} else {
			event.SnapshotPath = path
		}
	}

	if w.cfg.Store != nil {
		if err := w.cfg.Store.RecordAlert(event); err != nil {
			w.logger.Printf("[%s] alert store: %v", w.cfg.Camera, err)
		}
	}

	if w.cfg.Notifier != nil {
		nctx, cancel := context.WithTimeout(ctx, w.cfg.NotifyTimeout)
		if err := w.cfg.Notifier.Notify(nctx, event); err != nil {
			w.logger.Printf("[%s] notify: %v", w.cfg.Camera, err)
		}
		cancel()
	}
}
