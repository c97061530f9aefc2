// Package scoring decides whether an event may earn points, how many, and
// applies awards to the ledger and score aggregates.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/content"
	"github.com/aevon-lab/scoreboard/internal/core/idempotency"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
)

// RewardLookup resolves the point value of a "dynamic" rule from the entity
// itself. ok=false means the entity carries no reward.
type RewardLookup func(ctx context.Context, entityType, entityID string) (points int, ok bool, err error)

// ContentRewards resolves dynamic points from content entities.
func ContentRewards(lookup content.Lookup) RewardLookup {
	return func(ctx context.Context, entityType, entityID string) (int, bool, error) {
		e, err := lookup.Entity(ctx, entityType, entityID)
		if errors.Is(err, content.ErrNotFound) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return e.RewardPoints, e.RewardPoints > 0, nil
	}
}

// Request is one (user, event) pair being scored.
type Request struct {
	UserID     string
	EventType  string
	EntityType string
	EntityID   string
	Context    map[string]interface{}
	At         time.Time
}

// Eligibility is the outcome of CanEarn. Key is the idempotency key the award
// must be written under when Allowed.
type Eligibility struct {
	Allowed bool
	Reason  Reason
	Detail  string
	Key     idempotency.Key
}

func deny(r Reason, detail string) Eligibility {
	return Eligibility{Reason: r, Detail: detail}
}

// Outcome is the result of an award attempt.
type Outcome struct {
	Awarded bool
	// Denied is set when the award lost an idempotency race.
	Denied  Reason
	Points  int
	Score   storage.Score
	Level   int
	LevelUp bool
}

// Service is the ScoreService.
type Service struct {
	ledger  storage.Ledger
	rules   *rules.Store
	keyer   idempotency.Keyer
	window  timewindow.Window
	rewards RewardLookup
}

// NewService builds a ScoreService. rewards may be nil, in which case dynamic
// rules always use their fallback.
func NewService(ledger storage.Ledger, ruleStore *rules.Store, keyer idempotency.Keyer, window timewindow.Window, rewards RewardLookup) *Service {
	return &Service{
		ledger:  ledger,
		rules:   ruleStore,
		keyer:   keyer,
		window:  window,
		rewards: rewards,
	}
}

// Rules returns the rule table the service scores against.
func (s *Service) Rules() *rules.Store {
	return s.rules
}

// Calculate resolves the point value of the event.
func (s *Service) Calculate(ctx context.Context, rule rules.ScoringRule, req Request) (int, error) {
	switch rule.Points.Kind {
	case rules.PointsFixed:
		return rule.Points.Fixed, nil
	case rules.PointsSelect:
		return rule.Points.Select(v1.ContextString(req.Context, rule.Points.SelectBy)), nil
	case rules.PointsDynamic:
		if s.rewards == nil || req.EntityID == "" {
			return rule.Points.Fallback, nil
		}
		points, ok, err := s.rewards(ctx, req.EntityType, req.EntityID)
		if err != nil {
			return 0, fmt.Errorf("resolve dynamic points for %s/%s: %w", req.EntityType, req.EntityID, err)
		}
		if !ok {
			return rule.Points.Fallback, nil
		}
		return points, nil
	default:
		return 0, nil
	}
}

// CanEarn runs the eligibility checks in precedence order: per-entity,
// daily count, daily pair, global daily cap, then feature flag.
func (s *Service) CanEarn(ctx context.Context, rule rules.ScoringRule, req Request, points int) (Eligibility, error) {
	key, err := s.keyer.Derive(rule, req.UserID, req.EntityType, req.EntityID, req.Context, req.At)
	if err != nil {
		return deny(ReasonInvalidInput, err.Error()), nil
	}

	if rule.PerEntityLimit > 0 {
		exists, err := s.ledger.HasEntry(ctx, key.Value)
		if err != nil {
			return Eligibility{}, err
		}
		if exists {
			return deny(ReasonAlreadyEarned, ""), nil
		}
	}

	if rule.DailyLimit > 0 {
		n, err := s.ledger.CountEntriesSince(ctx, req.UserID, rule.EventType, s.window.DayStart(req.At))
		if err != nil {
			return Eligibility{}, err
		}
		if n >= rule.DailyLimit {
			return deny(ReasonDailyLimit, ""), nil
		}
		switch key.Scope {
		case idempotency.ScopeDaily:
			key = s.keyer.DailySlot(rule.EventType, req.UserID, req.At, n+1)
		case idempotency.ScopeEntity, idempotency.ScopePair:
			key = s.keyer.WithDailySlot(key, rule.EventType, req.UserID, req.At, n+1)
		}
	}

	if rule.DailyPairLimit > 0 {
		exists, err := s.ledger.HasEntry(ctx, key.Value)
		if err != nil {
			return Eligibility{}, err
		}
		if exists {
			return deny(ReasonAlreadySentToday, ""), nil
		}
	}

	if s.rules.FlagEnabled(rules.FlagDailyScoreCap) && points > 0 {
		limit := s.rules.Setting(rules.SettingDailyScoreCap)
		score, err := s.ledger.Score(ctx, req.UserID, s.window.DayKey(req.At))
		if err != nil {
			return Eligibility{}, err
		}
		if limit > 0 && score.DailyScore+points > limit {
			return deny(ReasonDailyCap, ""), nil
		}
	}

	if rule.FeatureFlag != "" && !s.rules.FlagEnabled(rule.FeatureFlag) {
		return deny(ReasonFeatureDisabled, rule.FeatureFlag), nil
	}

	return Eligibility{Allowed: true, Key: key}, nil
}

// Award writes points under the eligibility key. A daily slot that was taken
// concurrently is retried on the next free slot up to the rule's limit.
func (s *Service) Award(ctx context.Context, rule rules.ScoringRule, req Request, key idempotency.Key, points int, circleID string) (Outcome, error) {
	for {
		out, err := s.write(ctx, storage.LedgerEntry{
			IdempotencyKey: key.Value,
			SlotKey:        key.DailySlot,
			UserID:         req.UserID,
			EventType:      rule.EventType,
			Points:         points,
			EntityType:     req.EntityType,
			EntityID:       req.EntityID,
			CircleID:       circleID,
			CreatedAt:      req.At,
		})
		switch {
		case errors.Is(err, storage.ErrSlotTaken):
			if key.Slot >= rule.DailyLimit {
				return Outcome{Denied: ReasonDailyLimit}, nil
			}
			key = s.keyer.WithDailySlot(key, rule.EventType, req.UserID, req.At, key.Slot+1)
			continue
		case !errors.Is(err, storage.ErrDuplicate):
			return out, err
		}

		switch key.Scope {
		case idempotency.ScopeDaily:
			if key.Slot >= rule.DailyLimit {
				return Outcome{Denied: ReasonDailyLimit}, nil
			}
			key = s.keyer.DailySlot(rule.EventType, req.UserID, req.At, key.Slot+1)
		case idempotency.ScopePair:
			return Outcome{Denied: ReasonAlreadySentToday}, nil
		default:
			return Outcome{Denied: ReasonAlreadyEarned}, nil
		}
	}
}

// AwardBonus writes an engine-generated award (streak bonus, milestone, task
// reward) under a deterministic key. A key that already exists is a no-op.
// With the daily score cap on, the bonus is trimmed to what is left of the
// day's allowance and skipped when nothing is left.
func (s *Service) AwardBonus(ctx context.Context, userID, eventType, key string, points int, circleID string, at time.Time) (Outcome, error) {
	points, ok, err := s.capBonus(ctx, userID, points, at)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Denied: ReasonDailyCap}, nil
	}

	out, err := s.write(ctx, storage.LedgerEntry{
		IdempotencyKey: key,
		UserID:         userID,
		EventType:      eventType,
		Points:         points,
		CircleID:       circleID,
		CreatedAt:      at,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return Outcome{Denied: ReasonAlreadyEarned}, nil
	}
	return out, err
}

// capBonus returns the part of points that fits under the daily cap.
// ok=false means the cap is already reached.
func (s *Service) capBonus(ctx context.Context, userID string, points int, at time.Time) (int, bool, error) {
	if points <= 0 || !s.rules.FlagEnabled(rules.FlagDailyScoreCap) {
		return points, true, nil
	}
	limit := s.rules.Setting(rules.SettingDailyScoreCap)
	if limit <= 0 {
		return points, true, nil
	}
	score, err := s.ledger.Score(ctx, userID, s.window.DayKey(at))
	if err != nil {
		return 0, false, err
	}
	left := limit - score.DailyScore
	if left <= 0 {
		slog.Debug("[ScoreService] Bonus skipped at daily cap", "user_id", userID, "daily_score", score.DailyScore)
		return 0, false, nil
	}
	return min(points, left), true, nil
}

func (s *Service) write(ctx context.Context, entry storage.LedgerEntry) (Outcome, error) {
	score, err := s.ledger.Award(ctx, entry, s.window.DayKey(entry.CreatedAt))
	if errors.Is(err, storage.ErrDuplicate) || errors.Is(err, storage.ErrSlotTaken) {
		return Outcome{}, err
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("award %s to %s: %w", entry.EventType, entry.UserID, err)
	}

	level := LevelFor(s.rules.Levels(), score.TotalScore)
	out := Outcome{
		Awarded: true,
		Points:  entry.Points,
		Score:   score,
		Level:   level,
		LevelUp: level > LevelFor(s.rules.Levels(), score.TotalScore-entry.Points),
	}

	slog.Debug("[ScoreService] Points awarded",
		"user_id", entry.UserID,
		"event_type", entry.EventType,
		"points", entry.Points,
		"total_score", score.TotalScore)
	return out, nil
}

// Score returns the user's current aggregate.
func (s *Service) Score(ctx context.Context, userID string, at time.Time) (storage.Score, error) {
	return s.ledger.Score(ctx, userID, s.window.DayKey(at))
}

// LevelFor returns the 1-based level of a total score on an ascending
// threshold curve whose first entry is 0.
func LevelFor(levels []int, total int) int {
	if len(levels) == 0 {
		return 0
	}
	return sort.Search(len(levels), func(i int) bool { return levels[i] > total })
}
