// Package tasks tracks progress on time-boxed objectives and pays out their
// completion rewards.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/idempotency"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
	"github.com/aevon-lab/scoreboard/internal/scoring"
)

// ErrStaticTask is returned when a dynamic definition would shadow a static one.
var ErrStaticTask = errors.New("static task definitions are immutable")

// ErrInvalidTask is returned when a dynamic definition fails validation.
var ErrInvalidTask = errors.New("invalid task definition")

var (
	lifetimeStart = time.Unix(0, 0).UTC()
	lifetimeEnd   = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// BadgeContributor applies a task's badge contribution. It returns the badge
// when the contribution completed it.
type BadgeContributor interface {
	Contribute(ctx context.Context, userID, badgeSlug string, percent int, at time.Time) (*v1.BadgeInfo, error)
}

// Update is one progress instance changed by an event.
type Update struct {
	Definition    rules.TaskDefinition
	Progress      storage.TaskProgress
	JustCompleted bool
	RewardPoints  int
	Badge         *v1.BadgeInfo
}

// Info converts the update into its wire form.
func (u Update) Info() v1.TaskInfo {
	return v1.TaskInfo{
		Slug:          u.Definition.Slug,
		Title:         u.Definition.Title,
		TaskType:      u.Definition.TaskType,
		CurrentValue:  u.Progress.CurrentValue,
		TargetValue:   u.Progress.TargetValue,
		IsCompleted:   u.Progress.IsCompleted,
		JustCompleted: u.JustCompleted,
		RewardPoints:  u.RewardPoints,
		PeriodStart:   u.Progress.PeriodStart,
		PeriodEnd:     u.Progress.PeriodEnd,
		CompletedAt:   u.Progress.CompletedAt,
	}
}

// Tracker is the TaskProgressTracker. Circle tasks are counted per circle by
// the circle package and are skipped here.
type Tracker struct {
	store  storage.TaskStore
	rules  *rules.Store
	scores *scoring.Service
	keyer  idempotency.Keyer
	window timewindow.Window
	badges BadgeContributor
}

// NewTracker builds a Tracker. badges may be nil.
func NewTracker(store storage.TaskStore, ruleStore *rules.Store, scores *scoring.Service, keyer idempotency.Keyer, window timewindow.Window, badges BadgeContributor) *Tracker {
	return &Tracker{
		store:  store,
		rules:  ruleStore,
		scores: scores,
		keyer:  keyer,
		window: window,
		badges: badges,
	}
}

// Definitions returns every static and stored definition, active or not.
func (t *Tracker) Definitions(ctx context.Context) ([]rules.TaskDefinition, error) {
	static := t.rules.StaticTasks()
	dynamic, err := t.store.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list task definitions: %w", err)
	}

	defs := make([]rules.TaskDefinition, 0, len(static)+len(dynamic))
	defs = append(defs, static...)
	for _, d := range dynamic {
		if _, ok := t.rules.StaticTask(d.Slug); ok {
			continue
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Matching returns the active definitions advanced by eventType.
func (t *Tracker) Matching(ctx context.Context, eventType string) ([]rules.TaskDefinition, error) {
	defs, err := t.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	var out []rules.TaskDefinition
	for _, d := range defs {
		if d.IsActive && d.Matches(eventType) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Period returns the instance bounds of def containing at.
func (t *Tracker) Period(def rules.TaskDefinition, at time.Time) (time.Time, time.Time, error) {
	pt := def.PeriodType()
	if pt == rules.PeriodLifetime {
		return lifetimeStart, lifetimeEnd, nil
	}
	return t.window.Period(pt, at)
}

// ProcessEvent advances every matching user task and completes the ones that
// reached their target. Failures on one task do not stop the others; they are
// joined into the returned error next to the updates that did succeed.
func (t *Tracker) ProcessEvent(ctx context.Context, userID, eventType string, evCtx map[string]interface{}, circleID string, at time.Time) ([]Update, error) {
	defs, err := t.Matching(ctx, eventType)
	if err != nil {
		return nil, err
	}

	var (
		updates []Update
		errs    []error
	)
	for _, def := range defs {
		if def.TaskType == rules.TaskCircle {
			continue
		}
		u, ok, err := t.advance(ctx, def, userID, evCtx, circleID, at)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", def.Slug, err))
			continue
		}
		if ok {
			updates = append(updates, u)
		}
	}
	return updates, errors.Join(errs...)
}

func (t *Tracker) advance(ctx context.Context, def rules.TaskDefinition, userID string, evCtx map[string]interface{}, circleID string, at time.Time) (Update, bool, error) {
	delta := def.Delta(evCtx)
	if delta <= 0 {
		return Update{}, false, nil
	}
	start, end, err := t.Period(def, at)
	if err != nil {
		return Update{}, false, err
	}

	p, changed, err := t.store.IncrementProgress(ctx, storage.TaskProgress{
		UserID:      userID,
		TaskSlug:    def.Slug,
		PeriodStart: start,
		PeriodEnd:   end,
		TargetValue: def.TargetValue,
		Status:      storage.TaskStatusActive,
	}, delta, at)
	if err != nil {
		return Update{}, false, err
	}
	if !changed {
		return Update{}, false, nil
	}

	u := Update{Definition: def, Progress: p}
	if p.IsCompleted || p.CurrentValue < p.TargetValue {
		return u, true, nil
	}

	err = t.store.MarkCompleted(ctx, userID, def.Slug, start, at)
	if errors.Is(err, storage.ErrDuplicate) {
		return u, true, nil
	}
	if err != nil {
		return u, true, fmt.Errorf("mark completed: %w", err)
	}

	completedAt := at
	u.JustCompleted = true
	u.Progress.IsCompleted = true
	u.Progress.CompletedAt = &completedAt
	u.Progress.Status = storage.TaskStatusCompleted

	slog.Info("[TaskTracker] Task completed",
		"user_id", userID,
		"task", def.Slug,
		"period_start", start)

	if def.RewardScore > 0 {
		key := t.keyer.TaskCompleted(userID, def.Slug, start)
		out, err := t.scores.AwardBonus(ctx, userID, rules.EventTaskCompleted, key, def.RewardScore, circleID, at)
		if err != nil {
			return u, true, fmt.Errorf("reward: %w", err)
		}
		if out.Awarded {
			u.RewardPoints = out.Points
		}
	}

	if def.RewardBadgeID != "" && t.badges != nil {
		percent := def.BadgeProgressContribution
		if percent == 0 {
			percent = 100
		}
		badge, err := t.badges.Contribute(ctx, userID, def.RewardBadgeID, percent, at)
		if err != nil {
			return u, true, fmt.Errorf("badge contribution: %w", err)
		}
		u.Badge = badge
	}
	return u, true, nil
}

// Progress returns the user's task instances open at at.
func (t *Tracker) Progress(ctx context.Context, userID string, at time.Time) ([]storage.TaskProgress, error) {
	return t.store.ListProgress(ctx, userID, at)
}

// ExpireOldTasks closes unfinished instances of periodType tasks whose period
// has ended. Lifetime tasks never expire.
func (t *Tracker) ExpireOldTasks(ctx context.Context, periodType string, now time.Time) (int64, error) {
	defs, err := t.Definitions(ctx)
	if err != nil {
		return 0, err
	}
	var slugs []string
	for _, d := range defs {
		if d.TaskType != rules.TaskCircle && d.PeriodType() == periodType {
			slugs = append(slugs, d.Slug)
		}
	}

	n, err := t.store.ExpireTasks(ctx, slugs, now)
	if err != nil {
		return 0, fmt.Errorf("expire %s tasks: %w", periodType, err)
	}
	if n > 0 {
		slog.Info("[TaskTracker] Expired task instances", "period", periodType, "count", n)
	}
	return n, nil
}

// SaveDefinition creates or replaces a dynamic definition.
func (t *Tracker) SaveDefinition(ctx context.Context, def rules.TaskDefinition) error {
	if _, ok := t.rules.StaticTask(def.Slug); ok {
		return fmt.Errorf("%w: %s", ErrStaticTask, def.Slug)
	}
	def.Source = rules.SourceDynamic
	if err := def.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if err := t.rules.CheckRewardBadge(def); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if err := t.store.SaveDefinition(ctx, def); err != nil {
		return fmt.Errorf("save task definition %s: %w", def.Slug, err)
	}
	return nil
}
