package rules

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
	"gopkg.in/yaml.v3"
)

// Well-known event types the engine branches on.
const (
	EventDailyLogin           = "daily_login"
	EventFollowAccepted       = "follow_accepted"
	EventCommentLiked         = "comment_liked"
	EventCommentCreated       = "comment_created"
	EventHighfiveSent         = "highfive_sent"
	EventExerciseCompleted    = "exercise_completed"
	EventDietCompleted        = "diet_completed"
	EventStepsLogged          = "steps_logged"
	EventBlogPointsClaimed    = "blog_points_claimed"
	EventCircleJoined         = "circle_joined"
	EventRatingSubmitted      = "rating_submitted"
	EventStreakMilestone      = "streak_milestone"
	EventCommentLikeMilestone = "comment_like_milestone"
	EventTaskCompleted        = "task_completed"
	EventCircleTaskCompleted  = "circle_task_completed"
)

// Feature flag and setting names read by the engine.
const (
	FlagDailyScoreCap = "enable_daily_score_cap"

	SettingDailyScoreCap   = "daily_score_cap_value"
	SettingWeeklyGraceDays = "weekly_grace_days"
)

// MilestoneCommentLikes is the milestone type for cumulative likes on one comment.
const MilestoneCommentLikes = "comment_likes"

// Task types.
const (
	TaskDaily   = "daily"
	TaskWeekly  = "weekly"
	TaskMonthly = "monthly"
	TaskCircle  = "circle"
	TaskMentor  = "mentor"
)

// PeriodLifetime is the period of tasks that never roll over (mentor tasks).
const PeriodLifetime = "lifetime"

// Task definition sources.
const (
	SourceStatic  = "static"
	SourceDynamic = "dynamic"
)

// ScoringRule is the declarative scoring entry for one event type.
type ScoringRule struct {
	EventType string `yaml:"-"`
	Label     string `yaml:"label"`

	Points PointsSpec `yaml:"points"`

	// PerEntityLimit > 0 makes the award idempotent per (user, entity).
	PerEntityLimit int `yaml:"per_entity_limit"`
	// DailyLimit caps awards per user per local day.
	DailyLimit int `yaml:"daily_limit"`
	// DailyPairLimit caps awards per (sender, receiver) per local day.
	DailyPairLimit int `yaml:"daily_pair_limit"`
	// PairKey is the context key naming the receiver of a pair-limited event.
	PairKey string `yaml:"pair_key"`

	FeatureFlag    string `yaml:"feature_flag"`
	RequiresStreak bool   `yaml:"requires_streak"`
	StreakType     string `yaml:"streak_type"`

	// Synthetic rules are emitted by the engine itself and cannot be dispatched.
	Synthetic bool `yaml:"synthetic"`

	Fingerprint string `yaml:"-"`
}

func (r ScoringRule) validate() error {
	if err := r.Points.validate(); err != nil {
		return err
	}
	if r.PerEntityLimit < 0 || r.DailyLimit < 0 || r.DailyPairLimit < 0 {
		return fmt.Errorf("limits must be >= 0")
	}
	if r.RequiresStreak && r.StreakType == "" {
		return fmt.Errorf("requires_streak needs streak_type")
	}
	return nil
}

// BadgeDefinition is one achievement and the condition that earns it.
type BadgeDefinition struct {
	Slug        string        `yaml:"-"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Category    string        `yaml:"category"`
	Tier        string        `yaml:"tier"`
	MaxProgress int           `yaml:"max_progress"`
	Condition   ConditionSpec `yaml:"condition"`
}

// ContributionOnly reports whether the badge advances only through task
// contributions and is never evaluated against event history.
func (b BadgeDefinition) ContributionOnly() bool {
	return b.Condition.Condition != nil && b.Condition.Type() == CondTaskRewards
}

func (b BadgeDefinition) validate() error {
	if b.Title == "" {
		return fmt.Errorf("title is required")
	}
	if b.MaxProgress <= 0 {
		return fmt.Errorf("max_progress must be > 0")
	}
	if b.Condition.Condition == nil {
		return fmt.Errorf("condition is required")
	}
	if err := b.Condition.validate(); err != nil {
		return fmt.Errorf("condition %s: %w", b.Condition.Type(), err)
	}
	return nil
}

// TaskDefinition is a time-boxed objective. Static definitions come from rule
// files, dynamic ones are created at runtime and stored.
type TaskDefinition struct {
	Slug                      string   `yaml:"-" json:"slug"`
	Title                     string   `yaml:"title" json:"title"`
	TaskType                  string   `yaml:"task_type" json:"task_type"`
	TargetValue               int      `yaml:"target_value" json:"target_value"`
	ScoringEventTypes         []string `yaml:"scoring_event_types" json:"scoring_event_types"`
	RewardScore               int      `yaml:"reward_score" json:"reward_score"`
	BadgeProgressContribution int      `yaml:"badge_progress_contribution" json:"badge_progress_contribution,omitempty"`
	RewardBadgeID             string   `yaml:"reward_badge_id" json:"reward_badge_id,omitempty"`
	IsActive                  bool     `yaml:"is_active" json:"is_active"`

	// ProgressField names a context key whose numeric value is added instead of +1.
	ProgressField string `yaml:"progress_field" json:"progress_field,omitempty"`
	// Period is the window of circle tasks; defaults to weekly.
	Period string `yaml:"period" json:"period,omitempty"`

	Source string `yaml:"-" json:"source"`
}

// UnmarshalYAML defaults is_active to true.
func (t *TaskDefinition) UnmarshalYAML(value *yaml.Node) error {
	type plain TaskDefinition
	raw := plain{IsActive: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*t = TaskDefinition(raw)
	return nil
}

// Validate checks a task definition in isolation.
func (t TaskDefinition) Validate() error {
	if t.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if t.Title == "" {
		return fmt.Errorf("task %q: title is required", t.Slug)
	}
	switch t.TaskType {
	case TaskDaily, TaskWeekly, TaskMonthly, TaskMentor:
	case TaskCircle:
		switch t.Period {
		case "", timewindow.Daily, timewindow.Weekly, timewindow.Monthly:
		default:
			return fmt.Errorf("task %q: unsupported circle period %q", t.Slug, t.Period)
		}
	default:
		return fmt.Errorf("task %q: unsupported task_type %q", t.Slug, t.TaskType)
	}
	if t.TargetValue <= 0 {
		return fmt.Errorf("task %q: target_value must be > 0", t.Slug)
	}
	if len(t.ScoringEventTypes) == 0 {
		return fmt.Errorf("task %q: scoring_event_types must not be empty", t.Slug)
	}
	if t.RewardScore < 0 {
		return fmt.Errorf("task %q: reward_score must be >= 0", t.Slug)
	}
	if t.BadgeProgressContribution < 0 || t.BadgeProgressContribution > 100 {
		return fmt.Errorf("task %q: badge_progress_contribution must be within 0-100", t.Slug)
	}
	if t.BadgeProgressContribution > 0 && t.RewardBadgeID == "" {
		return fmt.Errorf("task %q: badge_progress_contribution needs reward_badge_id", t.Slug)
	}
	return nil
}

// Matches reports whether eventType advances the task.
func (t TaskDefinition) Matches(eventType string) bool {
	for _, et := range t.ScoringEventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// PeriodType returns the calendar period a progress instance spans.
func (t TaskDefinition) PeriodType() string {
	switch t.TaskType {
	case TaskDaily:
		return timewindow.Daily
	case TaskWeekly:
		return timewindow.Weekly
	case TaskMonthly:
		return timewindow.Monthly
	case TaskCircle:
		if t.Period == "" {
			return timewindow.Weekly
		}
		return t.Period
	default:
		return PeriodLifetime
	}
}

// NotificationTemplate renders a notification of one type. Placeholders are
// written as {name} and filled from the notification params.
type NotificationTemplate struct {
	Type  string `yaml:"-"`
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// Render fills the template placeholders. Unknown placeholders are left as-is.
func (n NotificationTemplate) Render(params map[string]string) (string, string) {
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(n.Title), r.Replace(n.Body)
}

// Threshold pairs a counter value with the bonus awarded for reaching it.
type Threshold struct {
	Value  int `yaml:"value"`
	Points int `yaml:"points"`
}

// MilestoneSchedule is an ascending threshold table, optionally extended past
// its last entry by one threshold every Step units worth StepPoints.
type MilestoneSchedule struct {
	Thresholds []Threshold `yaml:"thresholds"`
	Step       int         `yaml:"step"`
	StepPoints int         `yaml:"step_points"`
}

// HighestAtOrBelow returns the largest threshold whose value is <= v.
func (m MilestoneSchedule) HighestAtOrBelow(v int) (Threshold, bool) {
	var (
		best  Threshold
		found bool
	)
	for _, th := range m.Thresholds {
		if th.Value > v {
			break
		}
		best, found = th, true
	}
	if !found || m.Step <= 0 || len(m.Thresholds) == 0 {
		return best, found
	}
	last := m.Thresholds[len(m.Thresholds)-1]
	if v < last.Value+m.Step {
		return best, found
	}
	steps := (v - last.Value) / m.Step
	return Threshold{Value: last.Value + steps*m.Step, Points: m.StepPoints}, true
}

func validateAscending(ths []Threshold) error {
	prev := 0
	for i, th := range ths {
		if th.Value <= 0 || th.Points < 0 {
			return fmt.Errorf("threshold %d: value must be > 0 and points >= 0", i)
		}
		if th.Value <= prev {
			return fmt.Errorf("threshold %d: values must be strictly ascending", i)
		}
		prev = th.Value
	}
	return nil
}

func (m MilestoneSchedule) validate() error {
	if len(m.Thresholds) == 0 {
		return fmt.Errorf("thresholds must not be empty")
	}
	if m.Step < 0 || m.StepPoints < 0 {
		return fmt.Errorf("step and step_points must be >= 0")
	}
	return validateAscending(m.Thresholds)
}
