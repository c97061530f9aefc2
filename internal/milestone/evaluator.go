// Package milestone awards one-time bonuses when a cumulative counter crosses
// a configured threshold.
package milestone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
)

// Award is a newly recorded threshold.
type Award struct {
	Type           string
	TargetEntityID string
	Value          int
	Points         int
}

// Evaluator is the MilestoneEvaluator.
type Evaluator struct {
	store storage.MilestoneStore
	rules *rules.Store
}

// NewEvaluator builds an Evaluator.
func NewEvaluator(store storage.MilestoneStore, ruleStore *rules.Store) *Evaluator {
	return &Evaluator{store: store, rules: ruleStore}
}

// CheckAndAward records the highest threshold at or below currentValue when
// it is above every threshold already recorded for (user, type, target).
// Skipped lower thresholds are never awarded. Returns nil when nothing new
// was crossed or another caller recorded the threshold first.
func (e *Evaluator) CheckAndAward(ctx context.Context, userID, milestoneType, targetEntityID string, currentValue int, at time.Time) (*Award, error) {
	schedule, ok := e.rules.Milestone(milestoneType)
	if !ok {
		return nil, fmt.Errorf("unknown milestone type %q", milestoneType)
	}

	th, ok := schedule.HighestAtOrBelow(currentValue)
	if !ok {
		return nil, nil
	}

	highest, err := e.store.HighestMilestone(ctx, userID, milestoneType, targetEntityID)
	if err != nil {
		return nil, fmt.Errorf("read highest %s milestone: %w", milestoneType, err)
	}
	if th.Value <= highest {
		return nil, nil
	}

	err = e.store.RecordMilestone(ctx, storage.MilestoneRecord{
		UserID:         userID,
		MilestoneType:  milestoneType,
		TargetEntityID: targetEntityID,
		Value:          th.Value,
		Points:         th.Points,
		AwardedAt:      at,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record %s milestone: %w", milestoneType, err)
	}

	slog.Info("[MilestoneEvaluator] Milestone reached",
		"user_id", userID,
		"type", milestoneType,
		"target_entity_id", targetEntityID,
		"value", th.Value,
		"points", th.Points)

	return &Award{
		Type:           milestoneType,
		TargetEntityID: targetEntityID,
		Value:          th.Value,
		Points:         th.Points,
	}, nil
}
