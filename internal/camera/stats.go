package camera

import (
	"sync"
	"time"
)

// Stats tracks per-worker pipeline counters with thread-safe operations.
type Stats struct {
	mu              sync.Mutex
	frames          int64
	detectionCalls  int64
	detections      int64
	detectionErrors int64
	alerts          int64
	reconnects      int64
	started         time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

// AddFrame increments the processed frame count.
func (s *Stats) AddFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
}

// AddDetection records a successful detection call and its result size.
func (s *Stats) AddDetection(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectionCalls++
	s.detections += int64(count)
}

// AddDetectionError increments the failed detection call count.
func (s *Stats) AddDetectionError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectionCalls++
	s.detectionErrors++
}

// AddAlert increments the emitted alert count.
func (s *Stats) AddAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts++
}

// AddReconnect increments the reconnect count.
func (s *Stats) AddReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Frames          int64         `json:"frames"`
	DetectionCalls  int64         `json:"detection_calls"`
	Detections      int64         `json:"detections"`
	DetectionErrors int64         `json:"detection_errors"`
	Alerts          int64         `json:"alerts"`
	Reconnects      int64         `json:"reconnects"`
	Uptime          time.Duration `json:"uptime_ns"`
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Frames:          s.frames,
		DetectionCalls:  s.detectionCalls,
		Detections:      s.detections,
		DetectionErrors: s.detectionErrors,
		Alerts:          s.alerts,
		Reconnects:      s.reconnects,
		Uptime:          time.Since(s.started),
	}
}
