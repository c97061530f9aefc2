// Package streak tracks consecutive-day activity per user and streak type.
package streak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
)

// Activity is the outcome of RecordActivity.
type Activity struct {
	State storage.StreakState
	// Repeated is true when activity was already recorded today.
	Repeated  bool
	GraceUsed bool
	// Bonus is the bonus threshold this activity crossed, if any.
	Bonus *rules.Threshold
}

// Tracker is the StreakTracker.
type Tracker struct {
	store  storage.StreakStore
	rules  *rules.Store
	window timewindow.Window
}

// NewTracker builds a Tracker.
func NewTracker(store storage.StreakStore, ruleStore *rules.Store, window timewindow.Window) *Tracker {
	return &Tracker{
		store:  store,
		rules:  ruleStore,
		window: window,
	}
}

// RecordActivity advances the streak for activity at the given time. Within a
// day it is idempotent. A single missed day is bridged when grace remains;
// any longer gap restarts the streak at 1.
func (t *Tracker) RecordActivity(ctx context.Context, userID, streakType string, at time.Time) (Activity, error) {
	var act Activity
	today := t.window.DayKey(at)

	state, err := t.store.UpdateStreak(ctx, userID, streakType, t.weeklyGrace(), func(s *storage.StreakState) (bool, error) {
		act = Activity{}
		if s.LastActivity == today {
			act.Repeated = true
			return false, nil
		}

		prev := s.Current
		switch gap := t.gapDays(s.LastActivity, at); {
		case s.LastActivity == "":
			s.Current = 1
		case gap == 1:
			s.Current++
		case gap == 2 && s.GraceRemaining > 0:
			s.GraceRemaining--
			s.Current++
			act.GraceUsed = true
		case gap <= 0:
			// Activity older than the last recorded day never rewinds a streak.
			act.Repeated = true
			return false, nil
		default:
			s.Current = 1
		}

		if s.Current > s.Longest {
			s.Longest = s.Current
		}
		s.LastActivity = today
		s.UpdatedAt = at
		act.Bonus = t.crossedBonus(prev, s.Current)
		return true, nil
	})
	if err != nil {
		return Activity{}, fmt.Errorf("record %s streak activity: %w", streakType, err)
	}
	act.State = state

	if act.Bonus != nil {
		slog.Info("[StreakTracker] Bonus threshold crossed",
			"user_id", userID,
			"streak_type", streakType,
			"streak", state.Current,
			"threshold", act.Bonus.Value)
	}
	return act, nil
}

func (t *Tracker) gapDays(lastKey string, at time.Time) int {
	if lastKey == "" {
		return 0
	}
	last, err := t.window.ParseDay(lastKey)
	if err != nil {
		return 0
	}
	return t.window.DaysBetween(last, at)
}

// crossedBonus returns the highest bonus threshold in (prev, cur].
func (t *Tracker) crossedBonus(prev, cur int) *rules.Threshold {
	var crossed *rules.Threshold
	for _, th := range t.rules.StreakBonuses() {
		if prev < th.Value && th.Value <= cur {
			th := th
			crossed = &th
		}
	}
	return crossed
}

func (t *Tracker) weeklyGrace() int {
	return t.rules.Setting(rules.SettingWeeklyGraceDays)
}

// Current returns the current streak length, 0 for a streak that never started.
func (t *Tracker) Current(ctx context.Context, userID, streakType string) (int, error) {
	state, err := t.store.GetStreak(ctx, userID, streakType)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return state.Current, nil
}

// State returns the stored streak, with a zero state for one that never started.
func (t *Tracker) State(ctx context.Context, userID, streakType string) (storage.StreakState, error) {
	state, err := t.store.GetStreak(ctx, userID, streakType)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.StreakState{UserID: userID, StreakType: streakType}, nil
	}
	return state, err
}

// ResetWeeklyGrace restores every streak's grace allotment.
func (t *Tracker) ResetWeeklyGrace(ctx context.Context) (int64, error) {
	n, err := t.store.ResetGrace(ctx, t.weeklyGrace())
	if err != nil {
		return 0, fmt.Errorf("reset weekly grace: %w", err)
	}
	slog.Info("[StreakTracker] Weekly grace reset", "streaks", n, "grace", t.weeklyGrace())
	return n, nil
}
