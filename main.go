package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/linger.watch/internal/alertdb"
	"github.com/banshee-data/linger.watch/internal/camera"
	"github.com/banshee-data/linger.watch/internal/config"
	"github.com/banshee-data/linger.watch/internal/detect"
	"github.com/banshee-data/linger.watch/internal/monitor"
	"github.com/banshee-data/linger.watch/internal/notify"
	"github.com/banshee-data/linger.watch/internal/render"
	"github.com/banshee-data/linger.watch/internal/source"
	"github.com/banshee-data/linger.watch/internal/version"
	"github.com/banshee-data/linger.watch/internal/vision"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to YAML configuration")
	listen      = flag.String("listen", "", "Monitor listen address (overrides config)")
	detectorURL = flag.String("detector", "http://127.0.0.1:8571", "Inference server base URL")
)

// buildWorker assembles one camera's pipeline from its resolved configuration.
func buildWorker(cam config.Camera, detector vision.Detector, notifier vision.Notifier, store *alertdb.DB, defaults config.DetectionSection) *camera.Worker {
	classes := make(map[string]bool, len(cam.ClassesToDetect))
	for _, c := range cam.ClassesToDetect {
		classes[c] = true
	}

	motionCfg := vision.MotionConfig{
		Threshold:     uint8(cam.MotionDetection.Threshold),
		BlurKernel:    cam.MotionDetection.BlurKernel,
		MinArea:       cam.MotionDetection.MinArea,
		SkipFrames:    uint64(defaults.SkipFrames),
		ForceInterval: uint64(defaults.ForceInterval),
	}
	if !cam.MotionDetection.Enabled {
		// No motion gating: run the detector on every frame.
		motionCfg.SkipFrames = 0
		motionCfg.ForceInterval = 1
	}
	gate := vision.NewMotionGate(motionCfg)

	assignment := vision.AssignGreedy
	if defaults.Assignment == "hungarian" {
		assignment = vision.AssignHungarian
	}
	tracker := vision.NewTracker(vision.TrackerConfig{
		DistanceThreshold: cam.LingerDetection.TrackingDistanceThreshold,
		MaxMissing:        cam.LingerDetection.MaxMissingFrames,
		Assignment:        assignment,
	})

	var linger *vision.LingerMonitor
	if cam.LingerDetection.Enabled {
		roi := vision.ROI{}
		if r := cam.LingerDetection.ROI; len(r) == 4 {
			roi = vision.ROI{X1: r[0], Y1: r[1], X2: r[2], Y2: r[3]}
		}
		linger = vision.NewLingerMonitor(cam.Name, vision.LingerConfig{
			ROI:        roi,
			LingerTime: time.Duration(cam.LingerDetection.LingerTimeSeconds * float64(time.Second)),
			Cooldown:   time.Duration(cam.CooldownSeconds * float64(time.Second)),
		})
	}

	return camera.NewWorker(camera.WorkerConfig{
		Camera:   cam.Name,
		Source:   source.NewMJPEG(cam.Name, cam.URL, nil),
		Detector: detector,
		Gate:     gate,
		Tracker:  tracker,
		Linger:   linger,

		Notifier:  notifier,
		Renderer:  render.NewOverlay(),
		Snapshots: render.NewSnapshotDir(cam.SaveDirectory),
		Store:     store,

		Classes:       classes,
		MinConfidence: cam.ConfidenceThreshold,

		ReconnectBackoff: cam.Reconnect.GetInitial(),
		ReconnectMax:     cam.Reconnect.GetMax(),
		StateGrace:       cam.Reconnect.GetStateGrace(),
	})
}

func main() {
	flag.Parse()
	log.Printf("linger.watch %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	addr := cfg.Monitor.ListenAddr
	if *listen != "" {
		addr = *listen
	}

	store, err := alertdb.Open(cfg.Monitor.DBPath)
	if err != nil {
		log.Fatalf("failed to open alert database: %v", err)
	}
	defer store.Close()

	notifier := notify.NewManager(cfg.Alerting, nil)

	// One detector client shared across cameras; calls serialise through a
	// mutex unless per-camera instances are configured.
	var workers []*camera.Worker
	shared := vision.SerializeDetector(
		detect.NewHTTP(*detectorURL, cfg.Detection.Model, nil))
	for _, cam := range cfg.ResolvedCameras() {
		detector := shared
		if cfg.Detection.PerCameraInstances {
			detector = detect.NewHTTP(*detectorURL, cfg.Detection.Model, nil)
		}
		workers = append(workers, buildWorker(cam, detector, notifier, store, cfg.Detection))
	}

	supervisor := camera.NewSupervisor(camera.DefaultSupervisorConfig(), workers)
	if err := supervisor.Start(); err != nil {
		log.Fatalf("failed to start camera supervisor: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP monitor goroutine; Start blocks until the context is cancelled.
	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:    addr,
		Supervisor: supervisor,
		DB:         store,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("monitor server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown requested")

	if err := supervisor.Stop(); err != nil {
		log.Printf("supervisor shutdown: %v", err)
	}
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
