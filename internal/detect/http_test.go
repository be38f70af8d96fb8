package detect

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/linger.watch/internal/vision"
)

func frame() vision.Frame {
	return vision.Frame{
		Camera: "cam",
		Seq:    1,
		Time:   time.Unix(1000, 0),
		Image:  image.NewGray(image.Rect(0, 0, 64, 48)),
	}
}

func detectionServer(t *testing.T, dets []wireDetection) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("content type = %q", ct)
		}
		json.NewEncoder(w).Encode(dets)
	}))
}

func TestHTTPDetector_DecodesDetections(t *testing.T) {
	srv := detectionServer(t, []wireDetection{
		{Box: [4]int{10, 20, 110, 220}, Label: "person", Confidence: 0.91},
		{Box: [4]int{300, 40, 380, 160}, Label: "dog", Confidence: 0.75},
	})
	defer srv.Close()

	d := NewHTTP(srv.URL, "yolov8n.pt", srv.Client())
	dets, err := d.Detect(context.Background(), frame(), nil, 0.5)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(dets))
	}
	want := vision.Detection{
		Box: vision.BBox{X1: 10, Y1: 20, X2: 110, Y2: 220}, Label: "person", Confidence: 0.91,
	}
	if dets[0] != want {
		t.Errorf("detection = %+v, want %+v", dets[0], want)
	}
}

func TestHTTPDetector_FiltersClassesAndConfidence(t *testing.T) {
	srv := detectionServer(t, []wireDetection{
		{Box: [4]int{0, 0, 10, 10}, Label: "person", Confidence: 0.9},
		{Box: [4]int{0, 0, 10, 10}, Label: "cat", Confidence: 0.95},
		{Box: [4]int{0, 0, 10, 10}, Label: "person", Confidence: 0.3},
	})
	defer srv.Close()

	d := NewHTTP(srv.URL, "yolov8n.pt", srv.Client())
	dets, err := d.Detect(context.Background(), frame(), map[string]bool{"person": true}, 0.5)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(dets) != 1 || dets[0].Confidence != 0.9 {
		t.Errorf("expected only the confident person detection, got %+v", dets)
	}
}

func TestHTTPDetector_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTP(srv.URL, "yolov8n.pt", srv.Client())
	if _, err := d.Detect(context.Background(), frame(), nil, 0.5); err == nil {
		t.Error("expected error on 5xx response")
	}
}

func TestHTTPDetector_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	d := NewHTTP(srv.URL, "yolov8n.pt", srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Detect(ctx, frame(), nil, 0.5); err == nil {
		t.Error("expected error on context deadline")
	}
}

func TestHTTPDetector_NilImage(t *testing.T) {
	d := NewHTTP("http://localhost:1", "m", nil)
	if _, err := d.Detect(context.Background(), vision.Frame{Seq: 2}, nil, 0.5); err == nil {
		t.Error("expected error for frame without image")
	}
}
