// Package monitor exposes the HTTP interface for the surveillance pipeline:
// health, per-camera status, recent alerts, and the debug chart endpoints.
package monitor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/linger.watch/internal/alertdb"
	"github.com/banshee-data/linger.watch/internal/camera"
	"github.com/banshee-data/linger.watch/internal/httputil"
	"github.com/banshee-data/linger.watch/internal/version"
	"github.com/banshee-data/linger.watch/internal/vision"
)

// WebServer handles the HTTP interface for monitoring the camera pipeline.
// It provides endpoints for health checks and real-time status information.
type WebServer struct {
	address    string
	supervisor *camera.Supervisor
	db         *alertdb.DB
	server     *http.Server
	started    time.Time
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address    string
	Supervisor *camera.Supervisor
	DB         *alertdb.DB
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:    config.Address,
		supervisor: config.Supervisor,
		db:         config.DB,
		started:    time.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
// when the context is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("[monitor] starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[monitor] shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[monitor] HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("[monitor] HTTP server force close error: %v", err)
		}
	}

	log.Printf("[monitor] HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/alerts", ws.handleAlerts)
	mux.HandleFunc("/api/alerts/counts", ws.handleAlertCounts)
	mux.HandleFunc("/debug/charts/alerts", ws.handleAlertsChart)
	mux.HandleFunc("/debug/charts/motion", ws.handleMotionChart)
	mux.HandleFunc("/debug/motion.png", ws.handleMotionPNG)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// CameraStatus is one camera's entry in the /api/status response.
type CameraStatus struct {
	State  camera.WorkerState   `json:"state"`
	Stats  camera.StatsSnapshot `json:"stats"`
	Motion vision.MotionStats   `json:"motion"`
	Tracks int                  `json:"active_tracks"`
}

// handleStatus returns the lifecycle state, pipeline counters and motion
// statistics for every camera.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.supervisor == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no supervisor configured")
		return
	}

	status := make(map[string]CameraStatus)
	for _, wk := range ws.supervisor.Workers() {
		status[wk.Name()] = CameraStatus{
			State:  wk.State(),
			Stats:  wk.Stats().Snapshot(),
			Motion: wk.Gate().Stats(),
			Tracks: wk.Tracker().Count(),
		}
	}

	httputil.WriteJSONOK(w, map[string]any{
		"uptime_seconds": int(time.Since(ws.started).Seconds()),
		"cameras":        status,
	})
}

// handleAlerts returns recent alert events, newest first.
// Query params:
//
//	camera (optional; all cameras when empty)
//	limit (optional, default 100)
func (ws *WebServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no alert database configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	events, err := ws.db.RecentAlerts(r.URL.Query().Get("camera"), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("get alerts: %v", err))
		return
	}
	if events == nil {
		events = []vision.AlertEvent{}
	}

	httputil.WriteJSONOK(w, events)
}

// handleAlertCounts returns per-camera alert totals.
// Query params:
//
//	since_hours (optional; all time when absent)
func (ws *WebServer) handleAlertCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no alert database configured")
		return
	}

	var since time.Time
	if h := r.URL.Query().Get("since_hours"); h != "" {
		if v, err := strconv.Atoi(h); err == nil && v > 0 {
			since = time.Now().Add(-time.Duration(v) * time.Hour)
		}
	}
	counts, err := ws.db.AlertCountsByCamera(since)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("get counts: %v", err))
		return
	}
	if counts == nil {
		counts = []alertdb.CameraCount{}
	}

	httputil.WriteJSONOK(w, counts)
}
