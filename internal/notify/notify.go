// Package notify delivers alert events to the configured channels. The
// manager fans out to every enabled handler; delivery failures are collected
// and logged, never fatal to the pipeline.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/banshee-data/linger.watch/internal/config"
	"github.com/banshee-data/linger.watch/internal/vision"
)

// Handler delivers one alert to a single channel.
type Handler interface {
	Name() string
	Send(ctx context.Context, event vision.AlertEvent) error
}

// Manager fans alerts out to its handlers. It satisfies vision.Notifier.
type Manager struct {
	handlers []Handler
	logger   *log.Logger
}

// NewManager builds a manager from the alerting configuration. With no
// channel enabled the manager carries a single noop handler.
func NewManager(cfg config.AlertingSection, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	var handlers []Handler
	if cfg.Email.Enabled {
		handlers = append(handlers, NewEmailHandler(cfg.Email))
	}
	if cfg.SoundServer.Enabled {
		handlers = append(handlers, NewSoundServerHandler(cfg.SoundServer, nil))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, NoopHandler{})
	}
	return &Manager{handlers: handlers, logger: logger}
}

// NewManagerWithHandlers builds a manager over explicit handlers.
func NewManagerWithHandlers(logger *log.Logger, handlers ...Handler) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	if len(handlers) == 0 {
		handlers = []Handler{NoopHandler{}}
	}
	return &Manager{handlers: handlers, logger: logger}
}

// Notify sends the event through every handler. Each handler's failure is
// logged; the returned error is non-nil only when every handler failed.
func (m *Manager) Notify(ctx context.Context, event vision.AlertEvent) error {
	failed := 0
	for _, h := range m.handlers {
		if err := h.Send(ctx, event); err != nil {
			failed++
			m.logger.Printf("[notify] %s: %v", h.Name(), err)
		}
	}
	if failed == len(m.handlers) {
		return fmt.Errorf("all %d notification handlers failed", failed)
	}
	return nil
}

// NoopHandler accepts every alert and does nothing.
type NoopHandler struct{}

func (NoopHandler) Name() string { return "noop" }

func (NoopHandler) Send(context.Context, vision.AlertEvent) error { return nil }

// EmailHandler sends alert emails over SMTP with STARTTLS.
type EmailHandler struct {
	cfg config.EmailSection
	// send is replaceable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailHandler creates an email handler from the email configuration.
func NewEmailHandler(cfg config.EmailSection) *EmailHandler {
	return &EmailHandler{cfg: cfg, send: smtp.SendMail}
}

func (h *EmailHandler) Name() string { return "email" }

func (h *EmailHandler) Send(ctx context.Context, event vision.AlertEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", h.cfg.SMTPServer, h.cfg.SMTPPort)
	auth := smtp.PlainAuth("", h.cfg.SenderEmail, h.cfg.SenderPassword, h.cfg.SMTPServer)
	msg := h.buildMessage(event)
	if err := h.send(addr, auth, h.cfg.SenderEmail, []string{h.cfg.RecipientEmail}, msg); err != nil {
		return fmt.Errorf("sending alert email: %w", err)
	}
	return nil
}

func (h *EmailHandler) buildMessage(event vision.AlertEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", h.cfg.SenderEmail)
	fmt.Fprintf(&b, "To: %s\r\n", h.cfg.RecipientEmail)
	fmt.Fprintf(&b, "Subject: %s linger\r\n", event.Camera)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Camera: %s\r\n", event.Camera)
	fmt.Fprintf(&b, "Alert: %s (track %d) lingered %v in %v\r\n",
		event.Label, event.TrackID, event.Dwell, event.ROI)
	if event.SnapshotPath != "" {
		fmt.Fprintf(&b, "Snapshot: %s\r\n", event.SnapshotPath)
	}
	return []byte(b.String())
}

// SoundServerHandler asks an HTTP sound server to play the clip matching the
// detected label.
type SoundServerHandler struct {
	cfg    config.SoundServerSection
	client *http.Client
}

// NewSoundServerHandler creates a sound-server handler. A nil client uses
// http.DefaultClient.
func NewSoundServerHandler(cfg config.SoundServerSection, client *http.Client) *SoundServerHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &SoundServerHandler{cfg: cfg, client: client}
}

func (h *SoundServerHandler) Name() string { return "sound-server" }

func (h *SoundServerHandler) Send(ctx context.Context, event vision.AlertEvent) error {
	playURL := fmt.Sprintf("%s/play?clip=%s&device=%s",
		strings.TrimRight(h.cfg.URL, "/"),
		url.QueryEscape(strings.ToLower(event.Label)),
		url.QueryEscape(h.cfg.DeviceName))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, playURL, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("sound server request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sound server returned %s", resp.Status)
	}
	return nil
}
