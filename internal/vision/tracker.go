package vision

import (
	"math"
	"sort"
	"sync"
	"time"
)

// AssignmentMode selects the detection-to-track association algorithm.
type AssignmentMode string

const (
	// AssignGreedy matches pairs greedily in ascending cost order. This is
	// the default and matches the original system's behaviour.
	AssignGreedy AssignmentMode = "greedy"
	// AssignHungarian solves the assignment optimally. Preferable under high
	// object density; preserves the same tie-break determinism.
	AssignHungarian AssignmentMode = "hungarian"
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	DistanceThreshold float64        // Max centroid distance in pixels for a match
	MaxMissing        int            // Consecutive missed cycles before expiry
	Assignment        AssignmentMode // Association algorithm, defaults to greedy
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		DistanceThreshold: 75.0,
		MaxMissing:        5,
		Assignment:        AssignGreedy,
	}
}

// Tracker assigns persistent identities to per-frame detection sets. It is
// owned by one camera worker; Active may also be called from the monitor
// goroutine, hence the mutex. Identities are allocated from a monotonically
// increasing counter and never reassigned.
type Tracker struct {
	mu     sync.RWMutex
	cfg    TrackerConfig
	tracks map[int64]*TrackedObject
	nextID int64
	clock  func() time.Time
}

// NewTracker creates a tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Assignment == "" {
		cfg.Assignment = AssignGreedy
	}
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int64]*TrackedObject),
		nextID: 1,
		clock:  time.Now,
	}
}

// candidate is one gated detection/track pairing considered for assignment.
type candidate struct {
	detIdx  int
	trackID int64
	cost    float64
}

// Update associates a detection set with the existing tracks and returns the
// resulting tracked objects ordered by identity. It must only be called on
// frames where detection actually ran: Missing advances per detection cycle,
// not per frame, so motion-gated frame skipping never expires a track.
func (t *Tracker) Update(detections []Detection, seq uint64) []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Stable order of existing tracks for deterministic tie-breaks.
	ids := t.sortedIDs()

	candidates := make([]candidate, 0, len(detections)*len(ids))
	for di, det := range detections {
		dcx, dcy := det.Box.Centroid()
		for _, id := range ids {
			tr := t.tracks[id]
			if tr.Label != det.Label {
				continue
			}
			dist := math.Hypot(float64(dcx-tr.CX), float64(dcy-tr.CY))
			if dist > t.cfg.DistanceThreshold {
				continue // Unmatchable, treated as distinct entities
			}
			candidates = append(candidates, candidate{
				detIdx:  di,
				trackID: id,
				cost:    pairCost(dist, det.Box.IOU(tr.Box)),
			})
		}
	}

	var detToTrack []int64
	switch t.cfg.Assignment {
	case AssignHungarian:
		detToTrack = t.assignOptimal(detections, ids, candidates)
	default:
		detToTrack = assignGreedy(len(detections), candidates)
	}

	matched := make(map[int64]bool, len(detections))
	for di, id := range detToTrack {
		if id == 0 {
			continue
		}
		tr := t.tracks[id]
		det := detections[di]
		tr.Box = det.Box
		tr.CX, tr.CY = det.Box.Centroid()
		tr.Confidence = det.Confidence
		tr.Missing = 0
		tr.LastSeenSeq = seq
		matched[id] = true
	}

	// Unmatched existing tracks miss this cycle; expire past the bound.
	for _, id := range ids {
		if matched[id] {
			continue
		}
		tr := t.tracks[id]
		tr.Missing++
		if tr.Missing > t.cfg.MaxMissing {
			delete(t.tracks, id)
		}
	}

	// Unmatched detections become new tracks.
	for di, det := range detections {
		if detToTrack[di] != 0 {
			continue
		}
		cx, cy := det.Box.Centroid()
		id := t.nextID
		t.nextID++
		t.tracks[id] = &TrackedObject{
			ID:          id,
			Box:         det.Box,
			CX:          cx,
			CY:          cy,
			Label:       det.Label,
			Confidence:  det.Confidence,
			LastSeenSeq: seq,
			FirstSeen:   t.clock(),
		}
	}

	return t.snapshotLocked()
}

// pairCost combines centroid distance with box overlap. Overlap discounts
// the distance so overlapping boxes win over mere proximity; with zero
// overlap the cost is the plain centroid distance.
func pairCost(dist, iou float64) float64 {
	return dist * (1.0 - iou)
}

// assignGreedy matches candidates in ascending cost order. Ties break on
// detection insertion order, then track identity, so a given detection set
// always produces the same assignment.
func assignGreedy(numDets int, candidates []candidate) []int64 {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		if a.detIdx != b.detIdx {
			return a.detIdx < b.detIdx
		}
		return a.trackID < b.trackID
	})

	detToTrack := make([]int64, numDets)
	trackUsed := make(map[int64]bool)
	for _, c := range candidates {
		if detToTrack[c.detIdx] != 0 || trackUsed[c.trackID] {
			continue
		}
		detToTrack[c.detIdx] = c.trackID
		trackUsed[c.trackID] = true
	}
	return detToTrack
}

// assignOptimal builds a gated cost matrix and solves it exactly.
func (t *Tracker) assignOptimal(detections []Detection, ids []int64, candidates []candidate) []int64 {
	detToTrack := make([]int64, len(detections))
	if len(detections) == 0 || len(ids) == 0 {
		return detToTrack
	}

	colOf := make(map[int64]int, len(ids))
	for col, id := range ids {
		colOf[id] = col
	}
	cost := make([][]float64, len(detections))
	for i := range cost {
		cost[i] = make([]float64, len(ids))
		for j := range cost[i] {
			cost[i][j] = forbiddenCost
		}
	}
	for _, c := range candidates {
		cost[c.detIdx][colOf[c.trackID]] = c.cost
	}

	for di, col := range solveAssignment(cost) {
		if col >= 0 {
			detToTrack[di] = ids[col]
		}
	}
	return detToTrack
}

// Active returns the current tracked objects ordered by identity, including
// briefly occluded tracks that have not yet expired. Used on motion-gated
// frames where detection is skipped and the previous set is reused
// unmodified (positions are not extrapolated).
func (t *Tracker) Active() []TrackedObject {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Count returns the number of active tracks.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// Reset discards all tracking state. The identity counter is preserved so
// identities from before a reset are never reused.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[int64]*TrackedObject)
}

func (t *Tracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) snapshotLocked() []TrackedObject {
	out := make([]TrackedObject, 0, len(t.tracks))
	for _, id := range t.sortedIDs() {
		out = append(out, *t.tracks[id])
	}
	return out
}
