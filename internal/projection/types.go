package projection

import (
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
)

// Leaderboard periods.
const (
	PeriodAllTime = "all_time"
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// BadgeProgress is one badge as seen by its user.
type BadgeProgress struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Tier        string     `json:"tier"`
	Progress    int        `json:"progress"`
	MaxProgress int        `json:"max_progress"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

// UserSummary is a user's full standing.
type UserSummary struct {
	UserID     string `json:"user_id"`
	TotalScore int    `json:"total_score"`
	DailyScore int    `json:"daily_score"`
	Level      int    `json:"level"`
	// NextLevelAt is the total needed for the next level; 0 at the top level.
	NextLevelAt int `json:"next_level_at,omitempty"`

	Streaks []v1.StreakInfo `json:"streaks"`
	Tasks   []v1.TaskInfo   `json:"tasks"`
	Badges  []BadgeProgress `json:"badges"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
	Level  int    `json:"level"`
}

// LeaderboardQuery selects a leaderboard.
type LeaderboardQuery struct {
	Period string `form:"period"`
	Limit  int    `form:"limit"`
}

// Leaderboard is a ranked list. Period boards rank the last completed period
// from its snapshots.
type Leaderboard struct {
	Period      string             `json:"period"`
	PeriodStart *time.Time         `json:"period_start,omitempty"`
	Entries     []LeaderboardEntry `json:"entries"`
}
