// Package projection is the read side: user summaries and leaderboards.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/badges"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
	"github.com/aevon-lab/scoreboard/internal/scoring"
	"github.com/aevon-lab/scoreboard/internal/streak"
	"github.com/aevon-lab/scoreboard/internal/tasks"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid query")

// Service implements the projection/query layer.
type Service struct {
	ledger    storage.Ledger
	snapshots storage.SnapshotStore
	streaks   *streak.Tracker
	badges    *badges.Engine
	tasks     *tasks.Tracker
	rules     *rules.Store
	window    timewindow.Window
	nowFn     func() time.Time
}

// NewService creates a new projection service.
func NewService(
	ledger storage.Ledger,
	snapshots storage.SnapshotStore,
	streaks *streak.Tracker,
	badgeEngine *badges.Engine,
	taskTracker *tasks.Tracker,
	ruleStore *rules.Store,
	window timewindow.Window,
) *Service {
	return &Service{
		ledger:    ledger,
		snapshots: snapshots,
		streaks:   streaks,
		badges:    badgeEngine,
		tasks:     taskTracker,
		rules:     ruleStore,
		window:    window,
		nowFn:     time.Now,
	}
}

// Summary returns the user's score, level, streaks, current tasks and badges.
func (s *Service) Summary(ctx context.Context, userID string) (*UserSummary, error) {
	if userID == "" {
		return nil, invalidQueryf("user_id is required")
	}
	now := s.nowFn()

	score, err := s.ledger.Score(ctx, userID, s.window.DayKey(now))
	if err != nil {
		return nil, fmt.Errorf("read score: %w", err)
	}
	levels := s.rules.Levels()
	level := scoring.LevelFor(levels, score.TotalScore)
	out := &UserSummary{
		UserID:     userID,
		TotalScore: score.TotalScore,
		DailyScore: score.DailyScore,
		Level:      level,
		Streaks:    []v1.StreakInfo{},
		Tasks:      []v1.TaskInfo{},
		Badges:     []BadgeProgress{},
	}
	if level < len(levels) {
		out.NextLevelAt = levels[level]
	}

	for _, st := range s.rules.StreakTypes() {
		state, err := s.streaks.State(ctx, userID, st)
		if err != nil {
			return nil, fmt.Errorf("read %s streak: %w", st, err)
		}
		out.Streaks = append(out.Streaks, v1.StreakInfo{Type: st, Current: state.Current, Longest: state.Longest})
	}

	if out.Tasks, err = s.taskInfos(ctx, userID, now); err != nil {
		return nil, err
	}
	if out.Badges, err = s.badgeProgress(ctx, userID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) taskInfos(ctx context.Context, userID string, now time.Time) ([]v1.TaskInfo, error) {
	defs, err := s.tasks.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]rules.TaskDefinition, len(defs))
	for _, d := range defs {
		bySlug[d.Slug] = d
	}

	progress, err := s.tasks.Progress(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("read task progress: %w", err)
	}
	out := make([]v1.TaskInfo, 0, len(progress))
	for _, p := range progress {
		def, ok := bySlug[p.TaskSlug]
		if !ok {
			continue
		}
		out = append(out, tasks.Update{Definition: def, Progress: p}.Info())
	}
	return out, nil
}

func (s *Service) badgeProgress(ctx context.Context, userID string) ([]BadgeProgress, error) {
	owned, err := s.badges.UserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read badges: %w", err)
	}
	state := make(map[string]storage.UserBadge, len(owned))
	for _, b := range owned {
		state[b.BadgeSlug] = b
	}

	defs := s.rules.Badges()
	out := make([]BadgeProgress, 0, len(defs))
	for _, def := range defs {
		ub := state[def.Slug]
		out = append(out, BadgeProgress{
			Slug:        def.Slug,
			Title:       def.Title,
			Category:    def.Category,
			Tier:        def.Tier,
			Progress:    ub.Progress,
			MaxProgress: def.MaxProgress,
			Earned:      ub.Earned,
			EarnedAt:    ub.EarnedAt,
		})
	}
	return out, nil
}

// Leaderboard ranks users. The all-time board reads live totals; daily,
// weekly and monthly boards read the snapshots of the last completed period.
func (s *Service) Leaderboard(ctx context.Context, q LeaderboardQuery) (*Leaderboard, error) {
	q, err := normalizeLeaderboard(q)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	levels := s.rules.Levels()
	out := &Leaderboard{Period: q.Period, Entries: []LeaderboardEntry{}}

	if q.Period == PeriodAllTime {
		top, err := s.ledger.TopScores(ctx, s.window.DayKey(now), q.Limit)
		if err != nil {
			return nil, fmt.Errorf("read top scores: %w", err)
		}
		for i, sc := range top {
			out.Entries = append(out.Entries, LeaderboardEntry{
				Rank:   i + 1,
				UserID: sc.UserID,
				Score:  sc.TotalScore,
				Level:  scoring.LevelFor(levels, sc.TotalScore),
			})
		}
		return out, nil
	}

	start, err := s.window.PreviousPeriodStart(q.Period, now)
	if err != nil {
		return nil, invalidQueryf("%v", err)
	}
	out.PeriodStart = &start
	snaps, err := s.snapshots.ListSnapshots(ctx, q.Period, start, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("read %s snapshots: %w", q.Period, err)
	}
	for i, snap := range snaps {
		out.Entries = append(out.Entries, LeaderboardEntry{
			Rank:   i + 1,
			UserID: snap.UserID,
			Score:  snap.PeriodScore,
			Level:  scoring.LevelFor(levels, snap.TotalScore),
		})
	}
	return out, nil
}

func normalizeLeaderboard(q LeaderboardQuery) (LeaderboardQuery, error) {
	if q.Period == "" {
		q.Period = PeriodAllTime
	}
	switch q.Period {
	case PeriodAllTime, PeriodDaily, PeriodWeekly, PeriodMonthly:
	default:
		return q, invalidQueryf("unsupported period %q", q.Period)
	}
	if q.Limit == 0 {
		q.Limit = defaultLeaderboardLimit
	}
	if q.Limit < 0 || q.Limit > maxLeaderboardLimit {
		return q, invalidQueryf("limit must be between 1 and %d", maxLeaderboardLimit)
	}
	return q, nil
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
