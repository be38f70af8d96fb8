package camera

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// SupervisorConfig contains configuration for the camera supervisor.
type SupervisorConfig struct {
	// RestartBackoff is the initial delay before restarting a crashed
	// worker; it doubles per consecutive crash up to RestartMax.
	RestartBackoff time.Duration
	RestartMax     time.Duration
	// ShutdownTimeout bounds how long Stop waits for workers to finish
	// their current cycle before abandoning them.
	ShutdownTimeout time.Duration
	// Logger is optional; if nil, uses log.Default()
	Logger *log.Logger
}

// DefaultSupervisorConfig returns default supervisor configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		RestartBackoff:  time.Second,
		RestartMax:      time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Supervisor launches one worker per configured camera, restarts crashed
// workers with backoff, and aggregates shutdown. A camera stuck reconnecting
// never halts the others; total shutdown happens only via Stop.
type Supervisor struct {
	cfg     SupervisorConfig
	workers []*Worker
	logger  *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewSupervisor creates a supervisor over the given workers.
func NewSupervisor(cfg SupervisorConfig, workers []*Worker) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = time.Second
	}
	if cfg.RestartMax <= 0 {
		cfg.RestartMax = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	return &Supervisor{cfg: cfg, workers: workers, logger: logger}
}

// Start launches every worker in its own goroutine. It is an error to call
// Start twice.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("supervisor already started")
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, w := range s.workers {
		s.wg.Add(1)
		go s.runWorker(ctx, w)
	}
	s.logger.Printf("[supervisor] started %d camera workers", len(s.workers))
	return nil
}

// runWorker runs one worker, restarting it with doubling backoff when it
// crashes. A nil return from Run is a cooperative stop or end of stream and
// is not restarted.
func (s *Supervisor) runWorker(ctx context.Context, w *Worker) {
	defer s.wg.Done()

	backoff := s.cfg.RestartBackoff
	for {
		err := w.Run(ctx)
		if ctx.Err() != nil || err == nil {
			return
		}

		s.logger.Printf("[supervisor] worker %s crashed: %v (restarting in %v)", w.Name(), err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.RestartMax {
			backoff = s.cfg.RestartMax
		}
	}
}

// Stop signals all workers to stop and waits for them to acknowledge,
// bounded by the shutdown timeout. Workers still running past the deadline
// are logged and abandoned; the returned error names them.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.started || s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Printf("[supervisor] all workers stopped")
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		var stuck []string
		for _, w := range s.workers {
			if w.State() != StateStopped {
				stuck = append(stuck, w.Name())
			}
		}
		s.logger.Printf("[supervisor] shutdown timeout after %v, abandoning workers: %s",
			s.cfg.ShutdownTimeout, strings.Join(stuck, ", "))
		return fmt.Errorf("shutdown timeout: workers not stopped: %s", strings.Join(stuck, ", "))
	}
}

// States returns a snapshot of every worker's lifecycle state by camera.
func (s *Supervisor) States() map[string]WorkerState {
	out := make(map[string]WorkerState, len(s.workers))
	for _, w := range s.workers {
		out[w.Name()] = w.State()
	}
	return out
}

// Workers returns the supervised workers.
func (s *Supervisor) Workers() []*Worker {
	return s.workers
}
