package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/dmi-observation-cache/internal/reconciler"
)

// DefaultInterval is the time between reconciliation passes.
const DefaultInterval = time.Hour

var (
	errAlreadyStarted = errors.New("scheduler already started")
	errStopped        = errors.New("scheduler stopped")
)

// Runner is the job the scheduler drives.
type Runner interface {
	Enabled() bool
	RunPass(ctx context.Context) reconciler.PassResult
}

// Scheduler runs the reconciler once on start and then on a fixed interval
// until Stop is called or the parent context ends. A Scheduler is single-use:
// Start fails once it has been stopped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
	done    chan struct{}
}

// New creates a new Scheduler.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic pass and starts the underlying scheduler. The
// first pass runs immediately. Passes never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.runner.Enabled() {
		s.logger.Info("scheduler: no start date configured; background caching disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errStopped
	}
	if s.started {
		return errAlreadyStarted
	}

	jobCtx, cancel := context.WithCancel(ctx)

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if jobCtx.Err() != nil {
			return
		}
		s.logger.Info("scheduler: running reconciliation pass")
		res := s.runner.RunPass(jobCtx)
		if res.StorageFailures > 0 {
			s.logger.Error("scheduler: cache directory is not accepting writes",
				"run_id", res.RunID, "storage_failures", res.StorageFailures)
		}
		s.logger.Info("scheduler: completed reconciliation pass", "run_id", res.RunID)
	})
	if err != nil {
		cancel()
		return err
	}

	s.cancel = cancel
	s.started = true
	s.done = make(chan struct{})
	s.scheduler.StartAsync()

	// Stop with the parent context as well as through Stop.
	go func(done chan struct{}) {
		select {
		case <-jobCtx.Done():
			s.Stop()
		case <-done:
		}
	}(s.done)

	return nil
}

// Stop cancels an in-flight pass and stops future runs. It is safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.stopped = true
	s.cancel()
	close(s.done)
	s.scheduler.Stop()
	s.scheduler.Clear()
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
