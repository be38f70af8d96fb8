// Package detect provides the object detection boundary. The HTTP client
// talks to an external inference server (the model runs out of process),
// posting JPEG frames and decoding JSON detections.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/http"
	"net/url"

	"github.com/banshee-data/linger.watch/internal/vision"
)

// wireDetection is one detection as the inference server reports it.
type wireDetection struct {
	Box        [4]int  `json:"box"` // [x1, y1, x2, y2]
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// HTTPDetector calls an inference server's /detect endpoint. It satisfies
// vision.Detector and is safe for concurrent use when the server is; wrap
// it with vision.SerializeDetector to share one model instance.
type HTTPDetector struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTP creates a detector client. A nil client uses http.DefaultClient;
// per-call deadlines come from the caller's context.
func NewHTTP(baseURL, model string, client *http.Client) *HTTPDetector {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDetector{baseURL: baseURL, model: model, client: client}
}

// Detect posts the frame and returns the detections that pass the class
// allow-list and confidence floor. An empty class set allows every label.
func (d *HTTPDetector) Detect(ctx context.Context, frame vision.Frame, classes map[string]bool, minConfidence float64) ([]vision.Detection, error) {
	if frame.Image == nil {
		return nil, fmt.Errorf("frame %d has no image", frame.Seq)
	}

	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame.Image, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}

	detectURL := fmt.Sprintf("%s/detect?model=%s&conf=%g",
		d.baseURL, url.QueryEscape(d.model), minConfidence)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, detectURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection server returned %s", resp.Status)
	}

	var wire []wireDetection
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding detections: %w", err)
	}

	out := make([]vision.Detection, 0, len(wire))
	for _, w := range wire {
		if len(classes) > 0 && !classes[w.Label] {
			continue
		}
		if w.Confidence < minConfidence {
			continue
		}
		out = append(out, vision.Detection{
			Box:        vision.BBox{X1: w.Box[0], Y1: w.Box[1], X2: w.Box[2], Y2: w.Box[3]},
			Label:      w.Label,
			Confidence: w.Confidence,
		})
	}
	return out, nil
}
