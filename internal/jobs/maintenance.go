package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
	"github.com/aevon-lab/scoreboard/internal/notify"
	"github.com/aevon-lab/scoreboard/internal/streak"
	"github.com/aevon-lab/scoreboard/internal/tasks"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRetention  = 90 * 24 * time.Hour
	defaultDigestSize = 10
	defaultWorkers    = 4
)

// ProfileViewSource counts profile views per viewed user in [since, until).
type ProfileViewSource interface {
	ProfileViews(ctx context.Context, since, until time.Time) (map[string]int, error)
}

// Notifier delivers one notice. *notify.Emitter satisfies it.
type Notifier interface {
	Send(ctx context.Context, n notify.Notice) error
}

// Options tune the maintenance jobs.
type Options struct {
	EventRetention time.Duration
	DigestSize     int
	Workers        int
}

func (o Options) normalized() Options {
	n := o
	if n.EventRetention <= 0 {
		n.EventRetention = defaultRetention
	}
	if n.DigestSize <= 0 {
		n.DigestSize = defaultDigestSize
	}
	if n.Workers <= 0 {
		n.Workers = defaultWorkers
	}
	return n
}

// Maintenance owns the engine's periodic jobs.
type Maintenance struct {
	snapshots storage.SnapshotStore
	events    storage.EventLog
	streaks   *streak.Tracker
	tasks     *tasks.Tracker
	notifier  Notifier
	views     ProfileViewSource
	window    timewindow.Window
	opts      Options

	nowFn func() time.Time
}

// NewMaintenance wires the jobs. views may be nil, which disables the
// profile view digest.
func NewMaintenance(
	snapshots storage.SnapshotStore,
	events storage.EventLog,
	streaks *streak.Tracker,
	taskTracker *tasks.Tracker,
	notifier Notifier,
	views ProfileViewSource,
	window timewindow.Window,
	opts Options,
) *Maintenance {
	return &Maintenance{
		snapshots: snapshots,
		events:    events,
		streaks:   streaks,
		tasks:     taskTracker,
		notifier:  notifier,
		views:     views,
		window:    window,
		opts:      opts.normalized(),
		nowFn:     time.Now,
	}
}

// Jobs returns the job list in execution order. Snapshots come before the
// digests that read them.
func (m *Maintenance) Jobs() []Job {
	var out []Job
	for _, period := range []string{timewindow.Daily, timewindow.Weekly, timewindow.Monthly} {
		period := period
		out = append(out, Job{
			Name:       "snapshot_" + period,
			Period:     period,
			RunOnStart: true,
			Run: func(ctx context.Context, start time.Time) error {
				_, err := m.Snapshot(ctx, period, start)
				return err
			},
		})
	}
	for _, period := range []string{timewindow.Daily, timewindow.Weekly, timewindow.Monthly} {
		period := period
		out = append(out, Job{
			Name:       "expire_" + period + "_tasks",
			Period:     period,
			RunOnStart: true,
			Run: func(ctx context.Context, _ time.Time) error {
				_, err := m.tasks.ExpireOldTasks(ctx, period, m.nowFn())
				return err
			},
		})
	}
	out = append(out,
		Job{
			Name:   "reset_streak_grace",
			Period: timewindow.Weekly,
			Run: func(ctx context.Context, _ time.Time) error {
				_, err := m.streaks.ResetWeeklyGrace(ctx)
				return err
			},
		},
		Job{
			Name:       "cleanup_events",
			Period:     timewindow.Daily,
			RunOnStart: true,
			Run: func(ctx context.Context, _ time.Time) error {
				_, err := m.CleanupEvents(ctx)
				return err
			},
		},
	)
	if m.notifier != nil {
		out = append(out, Job{
			Name:   "weekly_ranking_digest",
			Period: timewindow.Weekly,
			Run: func(ctx context.Context, start time.Time) error {
				_, err := m.WeeklyRanking(ctx, start)
				return err
			},
		})
		if m.views != nil {
			out = append(out, Job{
				Name:   "profile_views_digest",
				Period: timewindow.Weekly,
				Run: func(ctx context.Context, start time.Time) error {
					_, err := m.ProfileViewDigest(ctx, start)
					return err
				},
			})
		}
	}
	return out
}

// Snapshot freezes scores for the period that ended at periodStart.
func (m *Maintenance) Snapshot(ctx context.Context, period string, periodStart time.Time) (int64, error) {
	prev, err := m.window.PreviousPeriodStart(period, periodStart)
	if err != nil {
		return 0, err
	}
	n, err := m.snapshots.CreateSnapshots(ctx, period, prev, periodStart, m.nowFn())
	if err != nil {
		return 0, fmt.Errorf("snapshot %s scores: %w", period, err)
	}
	slog.Info("[Maintenance] Score snapshots created",
		"period", period,
		"period_start", prev,
		"count", n)
	return n, nil
}

// CleanupEvents removes event log rows older than the retention window.
func (m *Maintenance) CleanupEvents(ctx context.Context) (int64, error) {
	cutoff := m.nowFn().Add(-m.opts.EventRetention)
	n, err := m.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup events: %w", err)
	}
	if n > 0 {
		slog.Info("[Maintenance] Old events removed", "before", cutoff, "count", n)
	}
	return n, nil
}

// WeeklyRanking notifies the top users of the week that ended at weekStart.
// It reads the weekly snapshots, so it must run after them.
func (m *Maintenance) WeeklyRanking(ctx context.Context, weekStart time.Time) (int, error) {
	prev, err := m.window.PreviousPeriodStart(timewindow.Weekly, weekStart)
	if err != nil {
		return 0, err
	}
	top, err := m.snapshots.ListSnapshots(ctx, timewindow.Weekly, prev, m.opts.DigestSize)
	if err != nil {
		return 0, fmt.Errorf("list weekly snapshots: %w", err)
	}

	var notices []notify.Notice
	for i, snap := range top {
		if snap.PeriodScore <= 0 {
			break
		}
		notices = append(notices, notify.Notice{
			UserID: snap.UserID,
			Type:   notify.TypeWeeklyRanking,
			Params: map[string]string{
				"rank":  strconv.Itoa(i + 1),
				"score": strconv.Itoa(snap.PeriodScore),
			},
		})
	}
	return m.fanOut(ctx, "weekly_ranking", notices)
}

// ProfileViewDigest tells every viewed user how often their profile was
// viewed in the week that ended at weekStart.
func (m *Maintenance) ProfileViewDigest(ctx context.Context, weekStart time.Time) (int, error) {
	prev, err := m.window.PreviousPeriodStart(timewindow.Weekly, weekStart)
	if err != nil {
		return 0, err
	}
	views, err := m.views.ProfileViews(ctx, prev, weekStart)
	if err != nil {
		return 0, fmt.Errorf("count profile views: %w", err)
	}

	notices := make([]notify.Notice, 0, len(views))
	for userID, n := range views {
		if n <= 0 {
			continue
		}
		notices = append(notices, notify.Notice{
			UserID: userID,
			Type:   notify.TypeProfileViewsDigest,
			Params: map[string]string{"views": strconv.Itoa(n)},
		})
	}
	return m.fanOut(ctx, "profile_views", notices)
}

// fanOut sends notices on a bounded pool. Every notice is attempted; the
// first failure is returned after all sends finish.
func (m *Maintenance) fanOut(ctx context.Context, digest string, notices []notify.Notice) (int, error) {
	var g errgroup.Group
	g.SetLimit(m.opts.Workers)

	sent := make([]bool, len(notices))
	for i, n := range notices {
		i, n := i, n
		g.Go(func() error {
			if err := m.notifier.Send(ctx, n); err != nil {
				return fmt.Errorf("send %s to %s: %w", n.Type, n.UserID, err)
			}
			sent[i] = true
			return nil
		})
	}
	err := g.Wait()

	count := 0
	for _, ok := range sent {
		if ok {
			count++
		}
	}
	slog.Info("[Maintenance] Digest sent",
		"digest", digest,
		"recipients", len(notices),
		"sent", count)
	return count, err
}
