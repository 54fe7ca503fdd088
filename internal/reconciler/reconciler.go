// Package reconciler fills the gaps in the day store for the configured window.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/i474232898/dmi-observation-cache/internal/observations"
)

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	RunID      string                 `json:"runId"`
	Disabled   bool                   `json:"disabled"`
	Window     observations.DateRange `json:"window"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`

	Fetched            int `json:"fetched"`
	Skipped            int `json:"skipped"`
	TransportFailures  int `json:"transportFailures"`
	UpstreamRejections int `json:"upstreamRejections"`
	MalformedResponses int `json:"malformedResponses"`
	StorageFailures    int `json:"storageFailures"`
	// Deferred counts missing days left for the next pass because the
	// circuit breaker was open. No request was sent for them.
	Deferred int `json:"deferred"`

	Cancelled   bool `json:"cancelled"`
	CircuitOpen bool `json:"circuitOpen"`
}

// Failed is the number of days that were attempted but not stored.
func (r PassResult) Failed() int {
	return r.TransportFailures + r.UpstreamRejections + r.MalformedResponses + r.StorageFailures
}

// Attempted is the number of upstream fetches issued.
func (r PassResult) Attempted() int {
	return r.Fetched + r.Failed()
}

// Options tune a Reconciler. The zero value fetches one day at a time with no
// rate limit.
type Options struct {
	// Concurrency is the number of days fetched in parallel. Values below 2
	// visit days strictly in ascending order.
	Concurrency int
	// RequestsPerMinute caps upstream calls. Zero means unlimited.
	RequestsPerMinute int
}

// Stats are lifetime counters readable while passes run.
type Stats struct {
	Passes   int64       `json:"passes"`
	LastPass *PassResult `json:"lastPass,omitempty"`
}

// Reconciler keeps the day store populated for [start, today].
type Reconciler struct {
	store   observations.DayStore
	fetcher observations.Fetcher
	clock   clockwork.Clock
	start   observations.Date
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger

	passes atomic.Int64

	mu   sync.Mutex
	last *PassResult
}

// New creates a Reconciler. start may be the zero Date, in which case every
// pass is a no-op.
func New(store observations.DayStore, fetcher observations.Fetcher, clock clockwork.Clock, start observations.Date, opts Options, logger *slog.Logger) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	r := &Reconciler{
		store:   store,
		fetcher: fetcher,
		clock:   clock,
		start:   start,
		opts:    opts,
		logger:  logger,
	}
	if opts.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}
	return r
}

// Enabled reports whether a start date is configured.
func (r *Reconciler) Enabled() bool {
	return !r.start.IsZero()
}

// tally accumulates outcomes from concurrent day workers.
type tally struct {
	fetched, skipped, deferred              atomic.Int64
	transport, rejected, malformed, storage atomic.Int64
	cancelled, circuitOpen                  atomic.Bool
}

// RunPass performs one reconciliation pass. It never returns an error: per-day
// failures are counted in the result and the day is retried on the next pass.
func (r *Reconciler) RunPass(ctx context.Context) PassResult {
	res := PassResult{
		RunID:     uuid.NewString(),
		StartedAt: r.clock.Now().UTC(),
	}

	window, ok := observations.Window(r.start, observations.Today(r.clock))
	if !ok {
		res.Disabled = true
		res.FinishedAt = r.clock.Now().UTC()
		return res
	}
	res.Window = window

	log := r.logger.With("run_id", res.RunID)
	log.Info("reconciler: pass started", "from", window.From.String(), "to", window.To.String(), "days", window.Days())

	var t tally
	dates := window.Dates()

	if r.opts.Concurrency == 1 {
		for _, d := range dates {
			if ctx.Err() != nil {
				t.cancelled.Store(true)
				break
			}
			r.reconcileDay(ctx, log, d, &t)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Concurrency)
		for _, d := range dates {
			if gctx.Err() != nil {
				t.cancelled.Store(true)
				break
			}
			g.Go(func() error {
				r.reconcileDay(gctx, log, d, &t)
				return nil
			})
		}
		_ = g.Wait()
	}

	res.Fetched = int(t.fetched.Load())
	res.Skipped = int(t.skipped.Load())
	res.TransportFailures = int(t.transport.Load())
	res.UpstreamRejections = int(t.rejected.Load())
	res.MalformedResponses = int(t.malformed.Load())
	res.StorageFailures = int(t.storage.Load())
	res.Deferred = int(t.deferred.Load())
	res.Cancelled = t.cancelled.Load()
	res.CircuitOpen = t.circuitOpen.Load()
	res.FinishedAt = r.clock.Now().UTC()

	r.passes.Inc()
	r.mu.Lock()
	last := res
	r.last = &last
	r.mu.Unlock()

	log.Info("reconciler: pass finished",
		"fetched", res.Fetched,
		"skipped", res.Skipped,
		"failed", res.Failed(),
		"storage_failures", res.StorageFailures,
		"deferred", res.Deferred,
		"cancelled", res.Cancelled,
	)
	return res
}

func (r *Reconciler) reconcileDay(ctx context.Context, log *slog.Logger, date observations.Date, t *tally) {
	if r.store.Exists(date) {
		t.skipped.Inc()
		return
	}
	if t.circuitOpen.Load() {
		t.deferred.Inc()
		return
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			// Only cancellation or a deadline gets here.
			t.cancelled.Store(true)
			return
		}
	}

	payload, err := r.fetcher.Fetch(ctx, date)
	if err != nil {
		if ctx.Err() != nil {
			t.cancelled.Store(true)
			return
		}
		switch {
		case errors.Is(err, observations.ErrCircuitOpen):
			if !t.circuitOpen.Swap(true) {
				log.Warn("reconciler: upstream circuit open, deferring remaining days", "date", date.String())
			}
			t.deferred.Inc()
			return
		case errors.Is(err, observations.ErrUpstreamRejected):
			t.rejected.Inc()
		case errors.Is(err, observations.ErrMalformedResponse):
			t.malformed.Inc()
		default:
			t.transport.Inc()
		}
		log.Warn("reconciler: fetch failed", "date", date.String(), "source", r.fetcher.Name(), "error", err)
		return
	}

	if err := r.store.Write(date, payload); err != nil {
		t.storage.Inc()
		log.Error("reconciler: storing day failed", "date", date.String(), "error", err)
		return
	}
	t.fetched.Inc()
	log.Debug("reconciler: cached day", "date", date.String(), "bytes", len(payload))
}

// Stats returns lifetime counters and the last completed pass.
func (r *Reconciler) Stats() Stats {
	s := Stats{Passes: r.passes.Load()}
	r.mu.Lock()
	if r.last != nil {
		last := *r.last
		s.LastPass = &last
	}
	r.mu.Unlock()
	return s
}
