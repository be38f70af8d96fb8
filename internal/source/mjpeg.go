// Package source provides frame acquisition from camera streams. The MJPEG
// source reads multipart JPEG streams, the common export format of IP
// cameras and restreamers.
package source

import (
	"context"
	"fmt"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/linger.watch/internal/vision"
)

// MJPEGSource pulls frames from an HTTP multipart/x-mixed-replace JPEG
// stream. It satisfies vision.FrameSource. Next dials lazily on first use
// and after stream failures, so worker reconnect logic drives retries.
type MJPEGSource struct {
	camera string
	url    string
	client *http.Client

	mu     sync.Mutex
	reader *multipart.Reader
	body   interface{ Close() error }
	seq    uint64
	closed bool
}

// NewMJPEG creates an MJPEG frame source for one camera URL. A nil client
// uses a default with no overall timeout (the stream is long-lived).
func NewMJPEG(camera, url string, client *http.Client) *MJPEGSource {
	if client == nil {
		client = &http.Client{}
	}
	return &MJPEGSource{camera: camera, url: url, client: client}
}

// Next returns the next frame from the stream. Connection and decode
// failures are transient acquisition errors; a rejected URL or an
// unexpected content type is fatal.
func (s *MJPEGSource) Next(ctx context.Context) (vision.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vision.Frame{}, &vision.AcquisitionError{Transient: false, Err: fmt.Errorf("source closed")}
	}
	if s.reader == nil {
		if err := s.connectLocked(ctx); err != nil {
			return vision.Frame{}, err
		}
	}

	part, err := s.reader.NextPart()
	if err != nil {
		s.dropLocked()
		return vision.Frame{}, &vision.AcquisitionError{Transient: true, Err: fmt.Errorf("reading stream part: %w", err)}
	}
	img, err := jpeg.Decode(part)
	part.Close()
	if err != nil {
		s.dropLocked()
		return vision.Frame{}, &vision.AcquisitionError{Transient: true, Err: fmt.Errorf("decoding frame: %w", err)}
	}

	s.seq++
	return vision.Frame{
		Camera: s.camera,
		Seq:    s.seq,
		Time:   time.Now(),
		Image:  img,
	}, nil
}

func (s *MJPEGSource) connectLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return &vision.AcquisitionError{Transient: false, Err: fmt.Errorf("bad stream url: %w", err)}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return &vision.AcquisitionError{Transient: true, Err: fmt.Errorf("connecting to stream: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		// Auth and not-found rejections will not heal by retrying.
		transient := resp.StatusCode >= 500
		return &vision.AcquisitionError{Transient: transient, Err: fmt.Errorf("stream returned %s", resp.Status)}
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		return &vision.AcquisitionError{Transient: false,
			Err: fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))}
	}

	s.reader = multipart.NewReader(resp.Body, params["boundary"])
	s.body = resp.Body
	return nil
}

func (s *MJPEGSource) dropLocked() {
	if s.body != nil {
		s.body.Close()
	}
	s.reader = nil
	s.body = nil
}

// Close releases the stream connection.
func (s *MJPEGSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.dropLocked()
	return nil
}
