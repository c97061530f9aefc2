// Package badges evaluates declarative badge conditions against a user's
// history and awards each badge at most once.
package badges

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
)

// StreakReader reports a user's current streak.
type StreakReader interface {
	Current(ctx context.Context, userID, streakType string) (int, error)
}

// Engine is the BadgeRuleEngine.
type Engine struct {
	events  storage.EventLog
	badges  storage.BadgeStore
	circles storage.CircleStore
	streaks StreakReader
	rules   *rules.Store
	window  timewindow.Window
}

// NewEngine builds an Engine.
func NewEngine(events storage.EventLog, badgeStore storage.BadgeStore, circles storage.CircleStore, streaks StreakReader, ruleStore *rules.Store, window timewindow.Window) *Engine {
	return &Engine{
		events:  events,
		badges:  badgeStore,
		circles: circles,
		streaks: streaks,
		rules:   ruleStore,
		window:  window,
	}
}

// ProcessEvent evaluates every badge the user has not earned yet whose
// condition can be affected by one of eventTypes, and returns the badges
// earned by this call. A failing badge is logged and skipped.
func (e *Engine) ProcessEvent(ctx context.Context, userID string, eventTypes []string, at time.Time) ([]v1.BadgeInfo, error) {
	owned, err := e.badges.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user badges: %w", err)
	}
	earned := make(map[string]bool, len(owned))
	for _, b := range owned {
		if b.Earned {
			earned[b.BadgeSlug] = true
		}
	}

	var (
		out  []v1.BadgeInfo
		errs []error
	)
	for _, def := range e.rules.Badges() {
		if earned[def.Slug] || def.ContributionOnly() || !triggeredBy(def.Condition.Condition, eventTypes) {
			continue
		}
		info, err := e.evaluate(ctx, def, userID, at)
		if err != nil {
			errs = append(errs, fmt.Errorf("badge %s: %w", def.Slug, err))
			continue
		}
		if info != nil {
			out = append(out, *info)
		}
	}
	return out, errors.Join(errs...)
}

func triggeredBy(cond rules.Condition, eventTypes []string) bool {
	triggers := cond.Triggers()
	if len(triggers) == 0 {
		return true
	}
	for _, t := range triggers {
		for _, et := range eventTypes {
			if t == et {
				return true
			}
		}
	}
	return false
}

func (e *Engine) evaluate(ctx context.Context, def rules.BadgeDefinition, userID string, at time.Time) (*v1.BadgeInfo, error) {
	cond := def.Condition.Condition
	ev, ok := Evaluators[cond.Type()]
	if !ok {
		return nil, fmt.Errorf("no evaluator for %s", cond.Type())
	}

	p, err := ev.Evaluate(ctx, e, userID, cond, at)
	if err != nil {
		return nil, err
	}

	if scaled := p.Scaled(def.MaxProgress); scaled > 0 {
		if _, err := e.badges.RaiseBadgeProgress(ctx, userID, def.Slug, scaled, at); err != nil {
			return nil, fmt.Errorf("raise progress: %w", err)
		}
	}
	if !p.Satisfied() {
		return nil, nil
	}
	return e.earn(ctx, def, userID, at)
}

func (e *Engine) earn(ctx context.Context, def rules.BadgeDefinition, userID string, at time.Time) (*v1.BadgeInfo, error) {
	err := e.badges.EarnBadge(ctx, userID, def.Slug, def.MaxProgress, at)
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("earn: %w", err)
	}

	slog.Info("[BadgeEngine] Badge earned",
		"user_id", userID,
		"badge", def.Slug,
		"condition", def.Condition.Type())

	return &v1.BadgeInfo{
		Slug:     def.Slug,
		Title:    def.Title,
		Category: def.Category,
		Tier:     def.Tier,
		EarnedAt: at,
	}, nil
}

// Contribute adds percent of a badge's max progress, as task rewards do, and
// earns the badge when progress is full.
func (e *Engine) Contribute(ctx context.Context, userID, badgeSlug string, percent int, at time.Time) (*v1.BadgeInfo, error) {
	def, ok := e.rules.Badge(badgeSlug)
	if !ok {
		return nil, fmt.Errorf("unknown badge %q", badgeSlug)
	}

	delta := percent * def.MaxProgress / 100
	if delta < 1 {
		delta = 1
	}
	b, err := e.badges.AddBadgeProgress(ctx, userID, badgeSlug, delta, def.MaxProgress, at)
	if err != nil {
		return nil, fmt.Errorf("add badge progress: %w", err)
	}
	if b.Earned || b.Progress < def.MaxProgress {
		return nil, nil
	}
	return e.earn(ctx, def, userID, at)
}

// UserBadges returns the user's badge states.
func (e *Engine) UserBadges(ctx context.Context, userID string) ([]storage.UserBadge, error) {
	return e.badges.ListUserBadges(ctx, userID)
}
