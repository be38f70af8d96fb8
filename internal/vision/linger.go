package vision

import (
	"time"

	"github.com/google/uuid"
)

// LingerConfig holds configuration parameters for the linger monitor.
type LingerConfig struct {
	ROI        ROI
	LingerTime time.Duration // Continuous dwell required before alerting
	Cooldown   time.Duration // Minimum interval between alerts per identity
}

// DefaultLingerConfig returns default linger monitor configuration.
func DefaultLingerConfig() LingerConfig {
	return LingerConfig{
		LingerTime: 5 * time.Second,
		Cooldown:   60 * time.Second,
	}
}

// lingerRecord is the per-identity dwell state. A zero enteredAt means the
// identity is currently outside the ROI.
type lingerRecord struct {
	enteredAt   time.Time
	alerted     bool
	lastAlertAt time.Time
}

// LingerMonitor maintains per-identity dwell state inside the ROI and emits
// alert events under the cooldown policy. State machine per identity:
// Outside → Entering → Lingering → Exiting. A brief occlusion does not reset
// the timer: the tracker keeps reporting occluded objects until expiry, and
// presence is judged on whatever the tracker reports. Exit or track expiry
// resets to Outside; re-entry restarts the dwell timer from zero.
type LingerMonitor struct {
	cfg     LingerConfig
	camera  string
	records map[int64]*lingerRecord
}

// NewLingerMonitor creates a linger monitor for one camera.
func NewLingerMonitor(camera string, cfg LingerConfig) *LingerMonitor {
	return &LingerMonitor{
		cfg:     cfg,
		camera:  camera,
		records: make(map[int64]*lingerRecord),
	}
}

// Evaluate advances the dwell state machine for every tracked identity and
// returns the alert events that fired this cycle. Dwell is measured on the
// wall clock, never on frame counts, so detection gaps neither reset nor
// falsely advance the timer. One call may emit zero, one, or several events,
// one per qualifying identity.
func (m *LingerMonitor) Evaluate(tracked []TrackedObject, now time.Time) []AlertEvent {
	var events []AlertEvent

	seen := make(map[int64]bool, len(tracked))
	for _, obj := range tracked {
		seen[obj.ID] = true

		if !m.cfg.ROI.Contains(obj.CX, obj.CY) {
			// Exiting: discard dwell state so re-entry starts from zero.
			delete(m.records, obj.ID)
			continue
		}

		rec, ok := m.records[obj.ID]
		if !ok {
			// Entering.
			m.records[obj.ID] = &lingerRecord{enteredAt: now}
			continue
		}

		dwell := now.Sub(rec.enteredAt)
		if dwell < m.cfg.LingerTime {
			continue
		}
		if rec.alerted && now.Sub(rec.lastAlertAt) < m.cfg.Cooldown {
			continue
		}

		rec.alerted = true
		rec.lastAlertAt = now
		events = append(events, AlertEvent{
			ID:      uuid.NewString(),
			Camera:  m.camera,
			TrackID: obj.ID,
			Label:   obj.Label,
			Box:     obj.Box,
			ROI:     m.cfg.ROI,
			Dwell:   dwell,
			Time:    now,
		})
	}

	// Identities the tracker no longer reports have expired; drop their
	// records so a recycled appearance starts a fresh dwell.
	for id := range m.records {
		if !seen[id] {
			delete(m.records, id)
		}
	}

	return events
}

// InROI returns the number of identities currently inside the ROI.
func (m *LingerMonitor) InROI() int {
	return len(m.records)
}

// ROI returns the configured region of interest.
func (m *LingerMonitor) ROI() ROI {
	return m.cfg.ROI
}

// Reset discards all dwell state. Used when tracking state is dropped after
// a long camera outage.
func (m *LingerMonitor) Reset() {
	m.records = make(map[int64]*lingerRecord)
}
