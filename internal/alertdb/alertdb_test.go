package alertdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/linger.watch/internal/vision"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent(camera string, trackID int64, at time.Time) vision.AlertEvent {
	return vision.AlertEvent{
		ID:      uuid.NewString(),
		Camera:  camera,
		TrackID: trackID,
		Label:   "person",
		Box:     vision.BBox{X1: 10, Y1: 20, X2: 110, Y2: 220},
		ROI:     vision.ROI{X1: 0, Y1: 0, X2: 640, Y2: 480},
		Dwell:   7 * time.Second,
		Time:    at,
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// Reopening an already-migrated database is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestRecordAndRecentAlerts(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	first := testEvent("front-door", 1, base)
	first.SnapshotPath = "/detections/front-door_linger_1.jpg"
	second := testEvent("front-door", 2, base.Add(time.Minute))
	require.NoError(t, db.RecordAlert(first))
	require.NoError(t, db.RecordAlert(second))

	events, err := db.RecentAlerts("front-door", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Most recent first.
	assert.Equal(t, second.ID, events[0].ID)
	assert.Equal(t, first.ID, events[1].ID)

	got := events[1]
	assert.Equal(t, "front-door", got.Camera)
	assert.Equal(t, int64(1), got.TrackID)
	assert.Equal(t, "person", got.Label)
	assert.Equal(t, first.Box, got.Box)
	assert.Equal(t, first.ROI, got.ROI)
	assert.Equal(t, 7*time.Second, got.Dwell)
	assert.Equal(t, first.SnapshotPath, got.SnapshotPath)
	assert.True(t, got.Time.Equal(base))
}

func TestRecentAlertsFiltersAndLimits(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordAlert(testEvent("cam-a", int64(i), base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, db.RecordAlert(testEvent("cam-b", 99, base)))

	events, err := db.RecentAlerts("cam-a", 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "cam-a", e.Camera)
	}

	all, err := db.RecentAlerts("", 100)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestAlertCountsByCamera(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordAlert(testEvent("cam-a", 1, base.Add(-2*time.Hour))))
	require.NoError(t, db.RecordAlert(testEvent("cam-a", 2, base)))
	require.NoError(t, db.RecordAlert(testEvent("cam-b", 3, base)))

	counts, err := db.AlertCountsByCamera(time.Time{})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, CameraCount{Camera: "cam-a", Count: 2}, counts[0])
	assert.Equal(t, CameraCount{Camera: "cam-b", Count: 1}, counts[1])

	recent, err := db.AlertCountsByCamera(base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(1), recent[0].Count)
}

func TestMigrateDownDropsSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MigrateDown())

	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	err = db.RecordAlert(testEvent("cam", 1, time.Now()))
	assert.Error(t, err)
}
