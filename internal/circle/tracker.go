// Package circle aggregates member contributions toward shared circle tasks.
package circle

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
	"github.com/aevon-lab/scoreboard/internal/scoring"
	"github.com/aevon-lab/scoreboard/internal/tasks"
)

// ContributingEvents are the event types that feed circle tasks.
var ContributingEvents = map[string]bool{
	rules.EventExerciseCompleted: true,
	rules.EventStepsLogged:       true,
}

// Progress is a circle task instance after one contribution.
type Progress struct {
	Definition    rules.TaskDefinition
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Total         int
	JustCompleted bool
	// RewardPoints is what the contributing user received on completion.
	RewardPoints int
	Rewarded     []string
}

// Info converts the progress into its wire form.
func (p Progress) Info() v1.TaskInfo {
	info := v1.TaskInfo{
		Slug:          p.Definition.Slug,
		Title:         p.Definition.Title,
		TaskType:      p.Definition.TaskType,
		CurrentValue:  p.Total,
		TargetValue:   p.Definition.TargetValue,
		IsCompleted:   p.Total >= p.Definition.TargetValue,
		JustCompleted: p.JustCompleted,
		RewardPoints:  p.RewardPoints,
		PeriodStart:   p.PeriodStart,
		PeriodEnd:     p.PeriodEnd,
	}
	if info.CurrentValue > info.TargetValue {
		info.CurrentValue = info.TargetValue
	}
	return info
}

// Tracker is the CircleContributionTracker.
type Tracker struct {
	store  storage.CircleStore
	tasks  *tasks.Tracker
	scores *scoring.Service
	keyer  idempotency.Keyer
}

// NewTracker builds a Tracker over the task definitions known to taskTracker.
func NewTracker(store storage.CircleStore, taskTracker *tasks.Tracker, scores *scoring.Service, keyer idempotency.Keyer) *Tracker {
	return &Tracker{store: store, tasks: taskTracker, scores: scores, keyer: keyer}
}

// Contribute adds one unit from userID to every active circle task of
// circleID that eventType advances. The contribution that reaches the
// target completes the instance, once, and pays reward_score to every
// member who contributed.
func (t *Tracker) Contribute(ctx context.Context, userID, circleID, eventType string, at time.Time) ([]Progress, error) {
	if circleID == "" || !ContributingEvents[eventType] {
		return nil, nil
	}
	defs, err := t.tasks.Matching(ctx, eventType)
	if err != nil {
		return nil, err
	}

	var (
		out  []Progress
		errs []error
	)
	for _, def := range defs {
		if def.TaskType != rules.TaskCircle {
			continue
		}
		p, err := t.contribute(ctx, def, userID, circleID, at)
		if err != nil {
			errs = append(errs, fmt.Errorf("circle task %s: %w", def.Slug, err))
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

func (t *Tracker) contribute(ctx context.Context, def rules.TaskDefinition, userID, circleID string, at time.Time) (Progress, error) {
	start, end, err := t.tasks.Period(def, at)
	if err != nil {
		return Progress{}, err
	}

	total, err := t.store.AddContribution(ctx, storage.CircleContribution{
		CircleID:    circleID,
		UserID:      userID,
		TaskSlug:    def.Slug,
		PeriodStart: start,
		Amount:      1,
		CreatedAt:   at,
	})
	if err != nil {
		return Progress{}, err
	}

	p := Progress{Definition: def, PeriodStart: start, PeriodEnd: end, Total: total}
	if total < def.TargetValue {
		return p, nil
	}

	err = t.store.CompleteCircleTask(ctx, storage.CircleTaskCompletion{
		CircleID:    circleID,
		TaskSlug:    def.Slug,
		PeriodStart: start,
		CompletedBy: userID,
		CompletedAt: at,
		Total:       total,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("complete: %w", err)
	}
	p.JustCompleted = true

	slog.Info("[CircleTracker] Circle task completed",
		"circle_id", circleID,
		"task", def.Slug,
		"completed_by", userID,
		"total", total)

	if def.RewardScore <= 0 {
		return p, nil
	}
	shares, err := t.store.ContributionShares(ctx, circleID, def.Slug, start)
	if err != nil {
		return p, fmt.Errorf("contribution shares: %w", err)
	}
	for _, s := range shares {
		if s.Amount <= 0 {
			continue
		}
		key := t.keyer.CircleTaskReward(circleID, s.UserID, def.Slug, start)
		out, err := t.scores.AwardBonus(ctx, s.UserID, rules.EventCircleTaskCompleted, key, def.RewardScore, circleID, at)
		if err != nil {
			return p, fmt.Errorf("reward %s: %w", s.UserID, err)
		}
		if !out.Awarded {
			continue
		}
		p.Rewarded = append(p.Rewarded, s.UserID)
		if s.UserID == userID {
			p.RewardPoints = out.Points
		}
	}
	return p, nil
}
