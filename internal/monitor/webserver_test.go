package monitor

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/linger.watch/internal/alertdb"
	"github.com/banshee-data/linger.watch/internal/camera"
	"github.com/banshee-data/linger.watch/internal/vision"
)

type idleSource struct{}

func (idleSource) Next(ctx context.Context) (vision.Frame, error) {
	<-ctx.Done()
	return vision.Frame{}, ctx.Err()
}

func (idleSource) Close() error { return nil }

type emptyDetector struct{}

func (emptyDetector) Detect(context.Context, vision.Frame, map[string]bool, float64) ([]vision.Detection, error) {
	return nil, nil
}

func testWorker(name string) *camera.Worker {
	return camera.NewWorker(camera.WorkerConfig{
		Camera:   name,
		Source:   idleSource{},
		Detector: emptyDetector{},
		Gate:     vision.NewMotionGate(vision.DefaultMotionConfig()),
		Tracker:  vision.NewTracker(vision.DefaultTrackerConfig()),
		Linger: vision.NewLingerMonitor(name, vision.LingerConfig{
			ROI:        vision.ROI{X1: 0, Y1: 0, X2: 100, Y2: 100},
			LingerTime: time.Second,
		}),
		Logger: log.New(io.Discard, "", 0),
	})
}

func testServer(t *testing.T) (*WebServer, *alertdb.DB) {
	t.Helper()
	db, err := alertdb.Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sup := camera.NewSupervisor(camera.SupervisorConfig{
		Logger: log.New(io.Discard, "", 0),
	}, []*camera.Worker{testWorker("front-door"), testWorker("garage")})

	return NewWebServer(WebServerConfig{Address: ":0", Supervisor: sup, DB: db}), db
}

func get(t *testing.T, ws *WebServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	ws, _ := testServer(t)
	rec := get(t, ws, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHandleStatus(t *testing.T) {
	ws, _ := testServer(t)
	rec := get(t, ws, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cameras map[string]CameraStatus `json:"cameras"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Cameras, 2)
	assert.Equal(t, camera.StateStarting, body.Cameras["front-door"].State)
	assert.Equal(t, camera.StateStarting, body.Cameras["garage"].State)
}

func TestHandleStatus_MethodNotAllowed(t *testing.T) {
	ws, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleAlerts(t *testing.T) {
	ws, db := testServer(t)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.RecordAlert(vision.AlertEvent{
		ID: "evt-1", Camera: "front-door", TrackID: 1, Label: "person",
		Dwell: 5 * time.Second, Time: base,
	}))
	require.NoError(t, db.RecordAlert(vision.AlertEvent{
		ID: "evt-2", Camera: "garage", TrackID: 2, Label: "person",
		Dwell: 6 * time.Second, Time: base.Add(time.Minute),
	}))

	rec := get(t, ws, "/api/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []vision.AlertEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "evt-2", events[0].ID)

	rec = get(t, ws, "/api/alerts?camera=front-door")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "front-door", events[0].Camera)
}

func TestHandleAlerts_EmptyIsJSONArray(t *testing.T) {
	ws, _ := testServer(t)
	rec := get(t, ws, "/api/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHandleAlertCounts(t *testing.T) {
	ws, db := testServer(t)
	now := time.Now().UTC()
	require.NoError(t, db.RecordAlert(vision.AlertEvent{ID: "a", Camera: "front-door", Time: now}))
	require.NoError(t, db.RecordAlert(vision.AlertEvent{ID: "b", Camera: "front-door", Time: now}))

	rec := get(t, ws, "/api/alerts/counts")
	require.Equal(t, http.StatusOK, rec.Code)
	var counts []alertdb.CameraCount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	require.Len(t, counts, 1)
	assert.Equal(t, int64(2), counts[0].Count)
}

func TestHandleAlertsChart(t *testing.T) {
	ws, db := testServer(t)
	require.NoError(t, db.RecordAlert(vision.AlertEvent{ID: "a", Camera: "front-door", Time: time.Now().UTC()}))

	rec := get(t, ws, "/debug/charts/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Linger Alerts by Camera")
}

func feedFrames(t *testing.T, ws *WebServer, n int) {
	t.Helper()
	for _, wk := range ws.supervisor.Workers() {
		for i := 0; i < n; i++ {
			wk.Gate().ShouldDetect(vision.Frame{
				Camera: wk.Name(),
				Seq:    uint64(i + 1),
				Image:  image.NewGray(image.Rect(0, 0, 32, 24)),
			})
		}
	}
}

func TestHandleMotionChart(t *testing.T) {
	ws, _ := testServer(t)
	feedFrames(t, ws, 5)

	rec := get(t, ws, "/debug/charts/motion")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Motion Score Timeline")

	rec = get(t, ws, "/debug/charts/motion?camera=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMotionPNG(t *testing.T) {
	ws, _ := testServer(t)
	feedFrames(t, ws, 5)

	rec := get(t, ws, "/debug/motion.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	// PNG signature.
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}

func TestAdminRoutesMounted(t *testing.T) {
	ws, _ := testServer(t)
	rec := get(t, ws, "/debug/")
	// tsweb's debugger index responds on /debug/.
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}
