package badges

import (
	"context"
	"fmt"
	"sort"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/shopspring/decimal"
)

// Progress is how far a user is toward a condition's target.
type Progress struct {
	Value  int
	Target int
}

// Satisfied reports whether the target is reached.
func (p Progress) Satisfied() bool {
	return p.Target > 0 && p.Value >= p.Target
}

// Scaled maps the progress onto a badge's 0..max progress bar.
func (p Progress) Scaled(maxProgress int) int {
	if p.Target <= 0 || p.Value <= 0 {
		return 0
	}
	if p.Value >= p.Target {
		return maxProgress
	}
	return p.Value * maxProgress / p.Target
}

// Evaluator measures one condition type against a user's history.
// To add a condition: implement Evaluator and register it in Evaluators.
type Evaluator interface {
	Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, at time.Time) (Progress, error)
}

// Evaluators is the registry of condition evaluators.
var Evaluators = map[rules.ConditionType]Evaluator{
	rules.CondCount:              countEval{},
	rules.CondCountUniqueDays:    uniqueDaysEval{},
	rules.CondStreak:             streakEval{},
	rules.CondConsecutiveWeeks:   consecutiveWeeksEval{},
	rules.CondCountInPeriod:      countInPeriodEval{},
	rules.CondComeback:           comebackEval{},
	rules.CondCircleContribution: circleContributionEval{},
	rules.CondCircleHero:         circleHeroEval{},
	rules.CondCountUniqueUsers:   uniqueUsersEval{},
}

// history returns the user's accepted events of the given types in [since, until).
func (e *Engine) history(ctx context.Context, userID string, types []string, since, until time.Time) ([]*v1.Event, error) {
	events, err := e.events.ListEvents(ctx, storage.EventQuery{
		UserID: userID,
		Types:  types,
		Since:  since,
		Until:  until,
		Status: v1.StatusAccepted,
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (e *Engine) count(ctx context.Context, userID string, types []string, since, until time.Time) (int, error) {
	n, err := e.events.CountEvents(ctx, storage.EventQuery{
		UserID: userID,
		Types:  types,
		Since:  since,
		Until:  until,
		Status: v1.StatusAccepted,
	})
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// activeDays returns the distinct local days events were dispatched on, ascending.
func (e *Engine) activeDays(events []*v1.Event) []time.Time {
	seen := make(map[string]bool)
	var days []time.Time
	for _, ev := range events {
		key := e.window.DayKey(ev.LoggedAt)
		if seen[key] {
			continue
		}
		seen[key] = true
		days = append(days, e.window.DayStart(ev.LoggedAt))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

type countEval struct{}

func (countEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, _ time.Time) (Progress, error) {
	c := cond.(rules.CountCondition)
	n, err := e.count(ctx, userID, c.EventTypes, time.Time{}, time.Time{})
	return Progress{Value: n, Target: c.Target}, err
}

type uniqueDaysEval struct{}

func (uniqueDaysEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, _ time.Time) (Progress, error) {
	c := cond.(rules.UniqueDaysCondition)
	events, err := e.history(ctx, userID, c.EventTypes, time.Time{}, time.Time{})
	if err != nil {
		return Progress{}, err
	}
	return Progress{Value: len(e.activeDays(events)), Target: c.Target}, nil
}

type streakEval struct{}

func (streakEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, _ time.Time) (Progress, error) {
	c := cond.(rules.StreakCondition)
	n, err := e.streaks.Current(ctx, userID, c.StreakType)
	if err != nil {
		return Progress{}, fmt.Errorf("read %s streak: %w", c.StreakType, err)
	}
	return Progress{Value: n, Target: c.Target}, nil
}

// consecutiveWeeksEval counts the run of qualifying weeks ending with the
// current week, or with the previous one while the current week is still open.
type consecutiveWeeksEval struct{}

func (consecutiveWeeksEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, at time.Time) (Progress, error) {
	c := cond.(rules.ConsecutiveWeeksCondition)
	minPerWeek := c.MinPerWeek
	if minPerWeek <= 0 {
		minPerWeek = 1
	}

	thisWeek := e.window.WeekStart(at)
	since := thisWeek.AddDate(0, 0, -7*c.Target)
	events, err := e.history(ctx, userID, c.EventTypes, since, time.Time{})
	if err != nil {
		return Progress{}, err
	}

	perWeek := make(map[string]int)
	for _, ev := range events {
		perWeek[e.window.DayKey(e.window.WeekStart(ev.LoggedAt))]++
	}

	week := thisWeek
	if perWeek[e.window.DayKey(week)] < minPerWeek {
		week = week.AddDate(0, 0, -7)
	}
	run := 0
	for perWeek[e.window.DayKey(week)] >= minPerWeek && run < c.Target {
		run++
		week = week.AddDate(0, 0, -7)
	}
	return Progress{Value: run, Target: c.Target}, nil
}

type countInPeriodEval struct{}

func (countInPeriodEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, at time.Time) (Progress, error) {
	c := cond.(rules.CountInPeriodCondition)
	start, end, err := e.window.Period(c.Period, at)
	if err != nil {
		return Progress{}, err
	}
	n, err := e.count(ctx, userID, c.EventTypes, start, end)
	return Progress{Value: n, Target: c.Target}, err
}

// comebackEval looks at the run of consecutive active days ending today and
// the idle stretch right before it.
type comebackEval struct{}

func (comebackEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, at time.Time) (Progress, error) {
	c := cond.(rules.ComebackCondition)
	target := Progress{Target: c.ActiveDaysAfter}

	events, err := e.history(ctx, userID, c.EventTypes, time.Time{}, time.Time{})
	if err != nil {
		return target, err
	}
	days := e.activeDays(events)
	if len(days) < 2 {
		return target, nil
	}

	last := len(days) - 1
	if e.window.DaysBetween(days[last], at) != 0 {
		return target, nil
	}
	run := 1
	i := last
	for i > 0 && e.window.DaysBetween(days[i-1], days[i]) == 1 {
		run++
		i--
	}
	if i == 0 {
		return target, nil
	}
	if gap := e.window.DaysBetween(days[i-1], days[i]) - 1; gap < c.MinGapDays {
		return target, nil
	}
	target.Value = run
	return target, nil
}

// sharePercent returns part/total as a percentage.
func sharePercent(part, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(total)))
}

type circleContributionEval struct{}

func (circleContributionEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, _ time.Time) (Progress, error) {
	c := cond.(rules.CircleContributionCondition)
	shares, err := e.circles.UserCircleTasks(ctx, userID)
	if err != nil {
		return Progress{}, fmt.Errorf("user circle tasks: %w", err)
	}

	minShare := decimal.NewFromFloat(c.MinContributionPercent)
	n := 0
	for _, s := range shares {
		if s.Completion == nil {
			continue
		}
		if sharePercent(s.UserAmount, s.TotalAmount).GreaterThanOrEqual(minShare) {
			n++
		}
	}
	return Progress{Value: n, Target: c.UniqueTasks}, nil
}

type circleHeroEval struct{}

func (circleHeroEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, _ time.Time) (Progress, error) {
	c := cond.(rules.CircleHeroCondition)
	shares, err := e.circles.UserCircleTasks(ctx, userID)
	if err != nil {
		return Progress{}, fmt.Errorf("user circle tasks: %w", err)
	}

	window := time.Duration(c.CompletionWindowHours) * time.Hour
	minShare := decimal.NewFromFloat(c.MinContributionPercent)
	for _, s := range shares {
		done := s.Completion
		if done == nil || done.CompletedBy != userID {
			continue
		}
		if done.CompletedAt.Sub(s.PeriodStart) > window {
			continue
		}
		if sharePercent(s.UserAmount, s.TotalAmount).GreaterThanOrEqual(minShare) {
			return Progress{Value: 1, Target: 1}, nil
		}
	}
	return Progress{Target: 1}, nil
}

type uniqueUsersEval struct{}

func (uniqueUsersEval) Evaluate(ctx context.Context, e *Engine, userID string, cond rules.Condition, _ time.Time) (Progress, error) {
	c := cond.(rules.UniqueUsersCondition)
	events, err := e.history(ctx, userID, c.EventTypes, time.Time{}, time.Time{})
	if err != nil {
		return Progress{}, err
	}

	seen := make(map[string]bool)
	for _, ev := range events {
		other := v1.ContextString(ev.Context, c.KeyFor(ev.Type))
		if other != "" && other != userID {
			seen[other] = true
		}
	}
	return Progress{Value: len(seen), Target: c.Target}, nil
}
