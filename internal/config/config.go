// Package config loads and validates the YAML deployment configuration:
// global detection and alerting defaults, the monitor listener, and the
// per-camera sections that inherit from the global ones.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/linger.watch/internal/monitoring"
)

// DefaultConfigPath is the path probed when no -config flag is given.
const DefaultConfigPath = "config.yaml"

// ConfigError reports a problem loading or validating the configuration.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return "config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// MotionSection configures the motion gate. Zero values fall back to the
// pipeline defaults.
type MotionSection struct {
	Enabled    bool `yaml:"enabled"`
	MinArea    int  `yaml:"min_area"`
	Threshold  int  `yaml:"threshold"`
	BlurKernel int  `yaml:"blur_kernel"`
}

// DetectionSection holds the global detection defaults cameras inherit from.
type DetectionSection struct {
	Model               string        `yaml:"model"`
	ClassesToDetect     []string      `yaml:"classes_to_detect"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	MotionDetection     MotionSection `yaml:"motion_detection"`
	SkipFrames          int           `yaml:"skip_frames"`
	ForceInterval       int           `yaml:"force_interval"`
	// Assignment selects the tracker's matcher: "greedy" (default) or
	// "hungarian".
	Assignment string `yaml:"assignment"`
	// PerCameraInstances runs one detector instance per camera instead of
	// serialising all cameras through a shared one.
	PerCameraInstances bool `yaml:"per_camera_instances"`
}

// EmailSection configures the SMTP alert handler.
type EmailSection struct {
	Enabled        bool   `yaml:"enabled"`
	SMTPServer     string `yaml:"smtp_server"`
	SMTPPort       int    `yaml:"smtp_port"`
	SenderEmail    string `yaml:"sender_email"`
	SenderPassword string `yaml:"sender_password"`
	RecipientEmail string `yaml:"recipient_email"`
}

// SoundServerSection configures the sound-server alert handler.
type SoundServerSection struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	DeviceName string `yaml:"device_name"`
}

// AlertingSection holds the global alerting defaults.
type AlertingSection struct {
	CooldownSeconds float64            `yaml:"cooldown_seconds"`
	SaveDirectory   string             `yaml:"save_directory"`
	Email           EmailSection       `yaml:"email"`
	SoundServer     SoundServerSection `yaml:"sound_server"`
}

// MonitorSection configures the HTTP monitor server and the alert database.
type MonitorSection struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
}

// LingerSection configures dwell detection for one camera.
type LingerSection struct {
	Enabled                   bool    `yaml:"enabled"`
	ROI                       []int   `yaml:"roi"` // [x1, y1, x2, y2]
	LingerTimeSeconds         float64 `yaml:"linger_time_seconds"`
	TrackingDistanceThreshold float64 `yaml:"tracking_distance_threshold"`
	MaxMissingFrames          int     `yaml:"max_missing_frames"`
}

// ReconnectSection configures acquisition retry behaviour. Durations are
// strings like "1s"; empty means the worker default.
type ReconnectSection struct {
	Initial    string `yaml:"initial"`
	Max        string `yaml:"max"`
	StateGrace string `yaml:"state_grace"`
}

// GetInitial parses and returns the initial backoff or the default.
func (r ReconnectSection) GetInitial() time.Duration {
	return parseDurationOr(r.Initial, time.Second)
}

// GetMax parses and returns the backoff cap or the default.
func (r ReconnectSection) GetMax() time.Duration {
	return parseDurationOr(r.Max, 30*time.Second)
}

// GetStateGrace parses and returns the tracking-state grace window. The
// default is zero: any outage discards tracking state.
func (r ReconnectSection) GetStateGrace() time.Duration {
	return parseDurationOr(r.StateGrace, 0)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// CameraSection is one camera's entry. Pointer fields are overrides; nil
// inherits the corresponding global detection/alerting value.
type CameraSection struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	ConfidenceThreshold  *float64       `yaml:"confidence_threshold"`
	ClassesToDetect      []string       `yaml:"classes_to_detect"`
	MotionDetection      *MotionSection `yaml:"motion_detection"`
	LingerDetection      LingerSection  `yaml:"linger_detection"`
	AlertCooldownSeconds *float64       `yaml:"alert_cooldown_seconds"`
	SaveDirectory        string         `yaml:"save_directory"`

	Reconnect ReconnectSection `yaml:"reconnect"`
}

// Config is the root of the loaded configuration. Cameras contains only the
// entries that passed validation.
type Config struct {
	Detection DetectionSection `yaml:"detection"`
	Alerting  AlertingSection  `yaml:"alerting"`
	Monitor   MonitorSection   `yaml:"monitor"`
	Cameras   []CameraSection  `yaml:"cameras"`
}

// Camera is a camera entry with all inheritance from the global sections
// resolved.
type Camera struct {
	Name string
	URL  string

	ConfidenceThreshold float64
	ClassesToDetect     []string
	MotionDetection     MotionSection
	LingerDetection     LingerSection
	CooldownSeconds     float64
	SaveDirectory       string
	Reconnect           ReconnectSection
}

// Load reads, parses and validates the configuration at path. Invalid camera
// entries are logged and dropped; Load fails only when the file is unreadable,
// the YAML is malformed, a global section is invalid, or no valid camera
// remains.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("reading %q", cleanPath), Err: err}
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Msg: "parsing YAML", Err: err}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := &c.Detection
	if d.Model == "" {
		d.Model = "yolov8n.pt"
	}
	if len(d.ClassesToDetect) == 0 {
		d.ClassesToDetect = []string{"person"}
	}
	if d.ConfidenceThreshold == 0 {
		d.ConfidenceThreshold = 0.5
	}
	if d.SkipFrames == 0 {
		d.SkipFrames = 5
	}
	if d.ForceInterval == 0 {
		d.ForceInterval = 25
	}
	if d.Assignment == "" {
		d.Assignment = "greedy"
	}
	applyMotionDefaults(&d.MotionDetection)

	a := &c.Alerting
	if a.CooldownSeconds == 0 {
		a.CooldownSeconds = 60
	}
	if a.SaveDirectory == "" {
		a.SaveDirectory = "./detections"
	}

	m := &c.Monitor
	if m.ListenAddr == "" {
		m.ListenAddr = ":8080"
	}
	if m.DBPath == "" {
		m.DBPath = "linger.db"
	}
}

func applyMotionDefaults(m *MotionSection) {
	if m.MinArea == 0 {
		m.MinArea = 5000
	}
	if m.Threshold == 0 {
		m.Threshold = 25
	}
	if m.BlurKernel == 0 {
		m.BlurKernel = 21
	}
}

// validate checks the global sections, then filters the camera list down to
// the valid entries. Zero valid cameras is fatal.
func (c *Config) validate() error {
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return &ConfigError{Msg: fmt.Sprintf(
			"detection.confidence_threshold must be in [0,1], got %v", c.Detection.ConfidenceThreshold)}
	}
	switch c.Detection.Assignment {
	case "greedy", "hungarian":
	default:
		return &ConfigError{Msg: fmt.Sprintf(
			"detection.assignment must be \"greedy\" or \"hungarian\", got %q", c.Detection.Assignment)}
	}
	if c.Detection.SkipFrames < 0 {
		return &ConfigError{Msg: fmt.Sprintf(
			"detection.skip_frames must be non-negative, got %d", c.Detection.SkipFrames)}
	}
	if c.Detection.ForceInterval < 1 {
		return &ConfigError{Msg: fmt.Sprintf(
			"detection.force_interval must be positive, got %d", c.Detection.ForceInterval)}
	}
	// Thresholds compare against 8-bit grayscale pixel differences.
	if v := c.Detection.MotionDetection.Threshold; v < 0 || v > 255 {
		return &ConfigError{Msg: fmt.Sprintf(
			"detection.motion_detection.threshold must be in [0,255], got %d", v)}
	}
	if c.Alerting.CooldownSeconds < 0 {
		return &ConfigError{Msg: "alerting.cooldown_seconds must be non-negative"}
	}

	valid := c.Cameras[:0]
	for i, cam := range c.Cameras {
		if err := validateCamera(cam); err != nil {
			monitoring.Logf("[config] skipping camera %d (%q): %v", i, cam.Name, err)
			continue
		}
		valid = append(valid, cam)
	}
	c.Cameras = valid

	if len(c.Cameras) == 0 {
		return &ConfigError{Msg: "no valid cameras configured"}
	}
	return nil
}

func validateCamera(cam CameraSection) error {
	if cam.Name == "" {
		return fmt.Errorf("missing name")
	}
	if cam.URL == "" {
		return fmt.Errorf("missing url")
	}
	if cam.ConfidenceThreshold != nil {
		if v := *cam.ConfidenceThreshold; v < 0 || v > 1 {
			return fmt.Errorf("confidence_threshold must be in [0,1], got %v", v)
		}
	}
	if cam.AlertCooldownSeconds != nil && *cam.AlertCooldownSeconds < 0 {
		return fmt.Errorf("alert_cooldown_seconds must be non-negative")
	}
	if cam.MotionDetection != nil {
		if v := cam.MotionDetection.Threshold; v < 0 || v > 255 {
			return fmt.Errorf("motion_detection.threshold must be in [0,255], got %d", v)
		}
	}
	if cam.LingerDetection.Enabled {
		roi := cam.LingerDetection.ROI
		if len(roi) != 4 {
			return fmt.Errorf("linger_detection.roi must have 4 values, got %d", len(roi))
		}
		if roi[0] >= roi[2] || roi[1] >= roi[3] {
			return fmt.Errorf("linger_detection.roi %v is not a well-formed rectangle", roi)
		}
		if cam.LingerDetection.LingerTimeSeconds <= 0 {
			return fmt.Errorf("linger_detection.linger_time_seconds must be positive")
		}
	}
	for _, field := range []struct{ name, val string }{
		{"reconnect.initial", cam.Reconnect.Initial},
		{"reconnect.max", cam.Reconnect.Max},
		{"reconnect.state_grace", cam.Reconnect.StateGrace},
	} {
		if field.val == "" {
			continue
		}
		if _, err := time.ParseDuration(field.val); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, field.val, err)
		}
	}
	return nil
}

// ResolveCamera returns the camera entry with global defaults applied to
// every field the entry leaves unset.
func (c *Config) ResolveCamera(cam CameraSection) Camera {
	out := Camera{
		Name:                cam.Name,
		URL:                 cam.URL,
		ConfidenceThreshold: c.Detection.ConfidenceThreshold,
		ClassesToDetect:     c.Detection.ClassesToDetect,
		MotionDetection:     c.Detection.MotionDetection,
		LingerDetection:     cam.LingerDetection,
		CooldownSeconds:     c.Alerting.CooldownSeconds,
		SaveDirectory:       c.Alerting.SaveDirectory,
		Reconnect:           cam.Reconnect,
	}
	if cam.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = *cam.ConfidenceThreshold
	}
	if len(cam.ClassesToDetect) > 0 {
		out.ClassesToDetect = cam.ClassesToDetect
	}
	if cam.MotionDetection != nil {
		m := *cam.MotionDetection
		applyMotionDefaults(&m)
		out.MotionDetection = m
	}
	if cam.AlertCooldownSeconds != nil {
		out.CooldownSeconds = *cam.AlertCooldownSeconds
	}
	if cam.SaveDirectory != "" {
		out.SaveDirectory = cam.SaveDirectory
	}
	if out.LingerDetection.TrackingDistanceThreshold == 0 {
		out.LingerDetection.TrackingDistanceThreshold = 75
	}
	if out.LingerDetection.MaxMissingFrames == 0 {
		out.LingerDetection.MaxMissingFrames = 5
	}
	return out
}

// ResolvedCameras returns every valid camera with inheritance applied.
func (c *Config) ResolvedCameras() []Camera {
	out := make([]Camera, 0, len(c.Cameras))
	for _, cam := range c.Cameras {
		out = append(out, c.ResolveCamera(cam))
	}
	return out
}
