package notify

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/linger.watch/internal/config"
	"github.com/banshee-data/linger.watch/internal/vision"
)

var discard = log.New(io.Discard, "", 0)

type fakeHandler struct {
	name  string
	err   error
	calls int
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) Send(ctx context.Context, event vision.AlertEvent) error {
	f.calls++
	return f.err
}

func event() vision.AlertEvent {
	return vision.AlertEvent{
		ID:      "evt-1",
		Camera:  "front-door",
		TrackID: 7,
		Label:   "person",
		ROI:     vision.ROI{X1: 100, Y1: 100, X2: 500, Y2: 400},
		Dwell:   6 * time.Second,
	}
}

func TestManager_FansOutToAllHandlers(t *testing.T) {
	a := &fakeHandler{name: "a"}
	b := &fakeHandler{name: "b"}
	m := NewManagerWithHandlers(discard, a, b)

	if err := m.Notify(context.Background(), event()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("expected both handlers called once, got %d/%d", a.calls, b.calls)
	}
}

func TestManager_PartialFailureIsNotFatal(t *testing.T) {
	bad := &fakeHandler{name: "bad", err: errors.New("smtp down")}
	good := &fakeHandler{name: "good"}
	m := NewManagerWithHandlers(discard, bad, good)

	if err := m.Notify(context.Background(), event()); err != nil {
		t.Errorf("one surviving handler should suppress the error, got %v", err)
	}
	if good.calls != 1 {
		t.Error("healthy handler skipped after sibling failure")
	}
}

func TestManager_AllFailedReturnsError(t *testing.T) {
	bad1 := &fakeHandler{name: "bad1", err: errors.New("down")}
	bad2 := &fakeHandler{name: "bad2", err: errors.New("down")}
	m := NewManagerWithHandlers(discard, bad1, bad2)

	if err := m.Notify(context.Background(), event()); err == nil {
		t.Error("expected error when every handler fails")
	}
}

func TestNewManager_NoopWhenNothingEnabled(t *testing.T) {
	m := NewManager(config.AlertingSection{}, discard)
	if err := m.Notify(context.Background(), event()); err != nil {
		t.Errorf("noop manager should accept alerts, got %v", err)
	}
}

func TestEmailHandler_BuildsMessage(t *testing.T) {
	h := NewEmailHandler(config.EmailSection{
		Enabled:        true,
		SMTPServer:     "smtp.example.com",
		SMTPPort:       587,
		SenderEmail:    "alerts@example.com",
		RecipientEmail: "ops@example.com",
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	h.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	e := event()
	e.SnapshotPath = "/detections/front-door_linger_1.jpg"
	if err := h.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "alerts@example.com" || len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Errorf("envelope = %q -> %v", gotFrom, gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: front-door linger\r\n") {
		t.Errorf("missing subject in %q", msg)
	}
	if !strings.Contains(msg, "track 7") || !strings.Contains(msg, e.SnapshotPath) {
		t.Errorf("missing body details in %q", msg)
	}
}

func TestEmailHandler_CancelledContext(t *testing.T) {
	h := NewEmailHandler(config.EmailSection{})
	h.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send must not run with a cancelled context")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Send(ctx, event()); err == nil {
		t.Error("expected context error")
	}
}

func TestSoundServerHandler_PostsClip(t *testing.T) {
	var gotMethod, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
	}))
	defer srv.Close()

	h := NewSoundServerHandler(config.SoundServerSection{
		Enabled:    true,
		URL:        srv.URL + "/",
		DeviceName: "Living Room",
	}, srv.Client())

	if err := h.Send(context.Background(), event()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/play" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if !strings.Contains(gotQuery, "clip=person") || !strings.Contains(gotQuery, "device=Living+Room") {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestSoundServerHandler_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such clip", http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewSoundServerHandler(config.SoundServerSection{URL: srv.URL}, srv.Client())
	if err := h.Send(context.Background(), event()); err == nil {
		t.Error("expected error on non-2xx response")
	}
}
