// Package jobs runs the engine's periodic maintenance: score snapshots, grace
// resets, task expiry, event retention and weekly digests.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
)

// Job is one periodic unit of work. It runs once per calendar period, on the
// first tick after the period starts.
type Job struct {
	Name string
	// Period is timewindow.Daily, Weekly or Monthly.
	Period string
	// RunOnStart runs the job on the first tick even if the process started
	// mid-period. Only idempotent jobs should set it.
	RunOnStart bool
	// Run receives the start of the period that just began.
	Run func(ctx context.Context, periodStart time.Time) error
}

// Scheduler ticks on a fixed interval and fires every job whose period
// changed since its last run. Run state is kept in memory; jobs are written
// to be safe to repeat after a restart.
type Scheduler struct {
	interval time.Duration
	window   timewindow.Window
	jobs     []Job

	mu      sync.Mutex
	lastRun map[string]time.Time

	nowFn func() time.Time
}

// NewScheduler creates a scheduler for jobs.
func NewScheduler(interval time.Duration, window timewindow.Window, jobs []Job) *Scheduler {
	return &Scheduler{
		interval: interval,
		window:   window,
		jobs:     jobs,
		lastRun:  make(map[string]time.Time),
		nowFn:    time.Now,
	}
}

// Start runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting job scheduler",
		"interval", s.interval,
		"jobs", len(s.jobs),
		"timezone", s.window.Location().String())

	s.seed(s.nowFn())
	s.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}

// seed marks the current period of jobs that do not run on start as done.
func (s *Scheduler) seed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.RunOnStart {
			continue
		}
		start, _, err := s.window.Period(j.Period, now)
		if err != nil {
			continue
		}
		s.lastRun[j.Name] = start
	}
}

// Tick runs every due job once, sequentially. A failed job is retried on
// the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.nowFn()
	for _, j := range s.jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start, _, err := s.window.Period(j.Period, now)
		if err != nil {
			slog.Error("[Scheduler] Invalid job period", "job", j.Name, "period", j.Period, "error", err)
			continue
		}

		s.mu.Lock()
		last, ok := s.lastRun[j.Name]
		s.mu.Unlock()
		if ok && !start.After(last) {
			continue
		}

		began := time.Now()
		if err := j.Run(ctx, start); err != nil {
			slog.Error("[Scheduler] Job failed",
				"job", j.Name,
				"period_start", start,
				"error", err)
			continue
		}

		s.mu.Lock()
		s.lastRun[j.Name] = start
		s.mu.Unlock()

		slog.Info("[Scheduler] Job complete",
			"job", j.Name,
			"period_start", start,
			"duration", time.Since(began))
	}
}
