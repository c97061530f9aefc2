package v1

import "time"

// Flags describing a soft eligibility denial. A flagged result is still a success.
const (
	FlagAlreadyEarned     = "already_earned"
	FlagDailyLimitReached = "daily_limit_reached"
	FlagAlreadySentToday  = "already_sent_today"
	FlagDailyCapReached   = "daily_cap_reached"
	FlagProUser           = "pro_user"
)

// Result is the structured outcome of one dispatch.
type Result struct {
	Success   bool   `json:"success"`
	EventType string `json:"event_type"`
	Label     string `json:"label,omitempty"`

	// PointsEarned is the event points plus any streak or milestone bonus.
	PointsEarned int  `json:"points_earned"`
	TotalScore   int  `json:"total_score"`
	DailyScore   int  `json:"daily_score"`
	Level        int  `json:"level,omitempty"`
	LevelUp      bool `json:"level_up,omitempty"`

	Streak    *StreakInfo    `json:"streak,omitempty"`
	Milestone *MilestoneInfo `json:"milestone,omitempty"`
	Tasks     []TaskInfo     `json:"tasks,omitempty"`
	Badge     *BadgeInfo     `json:"badge,omitempty"`
	Badges    []BadgeInfo    `json:"badges,omitempty"`

	// Participants is set for two-recipient events (follow_accepted).
	Participants []ParticipantResult `json:"participants,omitempty"`

	// Flag names the soft denial, if any. Reason carries the raw denial reason.
	Flag    string `json:"flag,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// StreakInfo describes the streak state after a recorded activity.
type StreakInfo struct {
	Type           string `json:"type"`
	Current        int    `json:"current"`
	Longest        int    `json:"longest"`
	GraceUsed      bool   `json:"grace_used,omitempty"`
	IsNewMilestone bool   `json:"is_new_milestone,omitempty"`
	Milestone      int    `json:"milestone,omitempty"`
	BonusPoints    int    `json:"bonus_points,omitempty"`
}

// MilestoneInfo describes a newly crossed cumulative-counter threshold.
type MilestoneInfo struct {
	Type           string `json:"type"`
	TargetEntityID string `json:"target_entity_id"`
	Value          int    `json:"value"`
	Points         int    `json:"points"`
	RecipientID    string `json:"recipient_id"`
}

// TaskInfo is a task progress entry changed by the dispatch.
type TaskInfo struct {
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	TaskType      string     `json:"task_type"`
	CurrentValue  int        `json:"current_value"`
	TargetValue   int        `json:"target_value"`
	IsCompleted   bool       `json:"is_completed"`
	JustCompleted bool       `json:"just_completed,omitempty"`
	RewardPoints  int        `json:"reward_points,omitempty"`
	PeriodStart   time.Time  `json:"period_start"`
	PeriodEnd     time.Time  `json:"period_end"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// BadgeInfo describes a newly earned badge.
type BadgeInfo struct {
	Slug     string    `json:"slug"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Tier     string    `json:"tier"`
	EarnedAt time.Time `json:"earned_at"`
}

// ParticipantResult is the per-recipient outcome of a two-recipient event.
type ParticipantResult struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	PointsEarned int    `json:"points_earned"`
	TotalScore   int    `json:"total_score"`
	DailyScore   int    `json:"daily_score"`
	Flag         string `json:"flag,omitempty"`
	// Reason is set when the participant was rejected outright.
	Reason string `json:"reason,omitempty"`
}
