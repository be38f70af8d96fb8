// Package alertdb persists linger alert events in sqlite and exposes the
// admin debug routes for live inspection and backup.
package alertdb

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/linger.watch/internal/vision"
)

type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the alert database at path and applies all
// pending migrations.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqldb, path: path}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// RecordAlert inserts one alert event.
func (db *DB) RecordAlert(event vision.AlertEvent) error {
	_, err := db.Exec(
		`INSERT INTO alert_events (
			id, camera, track_id, label,
			x1, y1, x2, y2,
			roi_x1, roi_y1, roi_x2, roi_y2,
			dwell_ms, snapshot_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Camera, event.TrackID, event.Label,
		event.Box.X1, event.Box.Y1, event.Box.X2, event.Box.Y2,
		event.ROI.X1, event.ROI.Y1, event.ROI.X2, event.ROI.Y2,
		event.Dwell.Milliseconds(), event.SnapshotPath, event.Time.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// RecentAlerts returns the newest alert events, most recent first, up to
// limit. An empty camera matches all cameras.
func (db *DB) RecentAlerts(camera string, limit int) ([]vision.AlertEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, camera, track_id, label,
			x1, y1, x2, y2, roi_x1, roi_y1, roi_x2, roi_y2,
			dwell_ms, snapshot_path, created_at
		FROM alert_events`
	args := []any{}
	if camera != "" {
		query += " WHERE camera = ?"
		args = append(args, camera)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []vision.AlertEvent
	for rows.Next() {
		var e vision.AlertEvent
		var dwellMs int64
		var snapshot sql.NullString
		if err := rows.Scan(
			&e.ID, &e.Camera, &e.TrackID, &e.Label,
			&e.Box.X1, &e.Box.Y1, &e.Box.X2, &e.Box.Y2,
			&e.ROI.X1, &e.ROI.Y1, &e.ROI.X2, &e.ROI.Y2,
			&dwellMs, &snapshot, &e.Time,
		); err != nil {
			return nil, err
		}
		e.Dwell = time.Duration(dwellMs) * time.Millisecond
		e.SnapshotPath = snapshot.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CameraCount is the number of alerts recorded for one camera.
type CameraCount struct {
	Camera string `json:"camera"`
	Count  int64  `json:"count"`
}

// AlertCountsByCamera returns per-camera alert totals since the given time,
// ordered by camera name. A zero since counts everything.
func (db *DB) AlertCountsByCamera(since time.Time) ([]CameraCount, error) {
	rows, err := db.Query(
		`SELECT camera, COUNT(*) FROM alert_events
		 WHERE created_at >= ?
		 GROUP BY camera ORDER BY camera`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []CameraCount
	for rows.Next() {
		var c CameraCount
		if err := rows.Scan(&c.Camera, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// AttachAdminRoutes mounts the SQL debug console and the backup endpoint on
// the monitor mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Alert DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
