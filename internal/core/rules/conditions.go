package rules

import (
	"fmt"

	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
	"gopkg.in/yaml.v3"
)

// ConditionType tags a badge condition.
type ConditionType string

const (
	CondCount              ConditionType = "COUNT"
	CondCountUniqueDays    ConditionType = "COUNT_UNIQUE_DAYS"
	CondStreak             ConditionType = "STREAK"
	CondConsecutiveWeeks   ConditionType = "CONSECUTIVE_WEEKS"
	CondCountInPeriod      ConditionType = "COUNT_IN_PERIOD"
	CondComeback           ConditionType = "COMEBACK"
	CondCircleContribution ConditionType = "CIRCLE_CONTRIBUTION"
	CondCircleHero         ConditionType = "CIRCLE_HERO"
	CondCountUniqueUsers   ConditionType = "COUNT_UNIQUE_USERS"
	CondTaskRewards        ConditionType = "TASK_REWARDS"
)

// Condition is one variant of the badge condition union. The concrete types
// below are the only implementations.
type Condition interface {
	Type() ConditionType
	// EventTypes lists the event types whose dispatch can change the outcome.
	// An empty list means the condition is evaluated on every dispatch.
	Triggers() []string
	validate() error
}

// CountCondition: number of matching events >= Target.
type CountCondition struct {
	EventTypes []string `yaml:"event_types"`
	Target     int      `yaml:"target"`
}

// UniqueDaysCondition: number of distinct local days with a matching event >= Target.
type UniqueDaysCondition struct {
	EventTypes []string `yaml:"event_types"`
	Target     int      `yaml:"target"`
}

// StreakCondition: current streak of StreakType >= Target.
type StreakCondition struct {
	StreakType string `yaml:"streak_type"`
	Target     int    `yaml:"target"`
}

// ConsecutiveWeeksCondition: Target consecutive weeks, ending with the current
// or the previous week, each holding at least MinPerWeek matching events.
type ConsecutiveWeeksCondition struct {
	EventTypes []string `yaml:"event_types"`
	Target     int      `yaml:"target"`
	MinPerWeek int      `yaml:"min_per_week"`
}

// CountInPeriodCondition: matching events inside the current Period >= Target.
type CountInPeriodCondition struct {
	EventTypes []string `yaml:"event_types"`
	Target     int      `yaml:"target"`
	Period     string   `yaml:"period"`
}

// ComebackCondition: a gap of at least MinGapDays without matching events,
// followed by ActiveDaysAfter consecutive active days ending today.
type ComebackCondition struct {
	EventTypes      []string `yaml:"event_types"`
	MinGapDays      int      `yaml:"min_gap_days"`
	ActiveDaysAfter int      `yaml:"active_days_after"`
}

// CircleContributionCondition: at least MinContributionPercent share of at
// least UniqueTasks distinct circle task instances.
type CircleContributionCondition struct {
	MinContributionPercent float64 `yaml:"min_contribution_percent"`
	UniqueTasks            int     `yaml:"unique_tasks"`
}

// CircleHeroCondition: the user's contribution completed a circle task within
// CompletionWindowHours of the task window opening, holding at least
// MinContributionPercent of the total.
type CircleHeroCondition struct {
	CompletionWindowHours  int     `yaml:"completion_window_hours"`
	MinContributionPercent float64 `yaml:"min_contribution_percent"`
}

// UniqueUsersCondition: distinct counterpart users across EventTypes >= Target.
// The counterpart is read from the context key CounterpartKeys[eventType],
// defaulting to CounterpartKey.
type UniqueUsersCondition struct {
	EventTypes      []string          `yaml:"event_types"`
	Target          int               `yaml:"target"`
	CounterpartKey  string            `yaml:"counterpart_key"`
	CounterpartKeys map[string]string `yaml:"counterpart_keys"`
}

// KeyFor returns the context key holding the counterpart for eventType.
func (c UniqueUsersCondition) KeyFor(eventType string) string {
	if k, ok := c.CounterpartKeys[eventType]; ok && k != "" {
		return k
	}
	if c.CounterpartKey != "" {
		return c.CounterpartKey
	}
	return "counterpart_id"
}

// TaskRewardsCondition marks a badge whose progress comes only from the
// badge_progress_contribution of tasks naming it in reward_badge_id.
type TaskRewardsCondition struct{}

func (CountCondition) Type() ConditionType              { return CondCount }
func (UniqueDaysCondition) Type() ConditionType         { return CondCountUniqueDays }
func (StreakCondition) Type() ConditionType             { return CondStreak }
func (ConsecutiveWeeksCondition) Type() ConditionType   { return CondConsecutiveWeeks }
func (CountInPeriodCondition) Type() ConditionType      { return CondCountInPeriod }
func (ComebackCondition) Type() ConditionType           { return CondComeback }
func (CircleContributionCondition) Type() ConditionType { return CondCircleContribution }
func (CircleHeroCondition) Type() ConditionType         { return CondCircleHero }
func (UniqueUsersCondition) Type() ConditionType        { return CondCountUniqueUsers }
func (TaskRewardsCondition) Type() ConditionType        { return CondTaskRewards }

func (c CountCondition) Triggers() []string            { return c.EventTypes }
func (c UniqueDaysCondition) Triggers() []string       { return c.EventTypes }
func (StreakCondition) Triggers() []string             { return nil }
func (c ConsecutiveWeeksCondition) Triggers() []string { return c.EventTypes }
func (c CountInPeriodCondition) Triggers() []string    { return c.EventTypes }
func (c ComebackCondition) Triggers() []string         { return c.EventTypes }
func (CircleContributionCondition) Triggers() []string { return nil }
func (CircleHeroCondition) Triggers() []string         { return nil }
func (c UniqueUsersCondition) Triggers() []string      { return c.EventTypes }
func (TaskRewardsCondition) Triggers() []string        { return nil }

func (c CountCondition) validate() error {
	return requireEventsAndTarget(c.EventTypes, c.Target)
}

func (c UniqueDaysCondition) validate() error {
	return requireEventsAndTarget(c.EventTypes, c.Target)
}

func (c StreakCondition) validate() error {
	if c.StreakType == "" {
		return fmt.Errorf("streak_type is required")
	}
	if c.Target <= 0 {
		return fmt.Errorf("target must be > 0")
	}
	return nil
}

func (c ConsecutiveWeeksCondition) validate() error {
	if c.MinPerWeek < 0 {
		return fmt.Errorf("min_per_week must be >= 0")
	}
	return requireEventsAndTarget(c.EventTypes, c.Target)
}

func (c CountInPeriodCondition) validate() error {
	switch c.Period {
	case timewindow.Daily, timewindow.Weekly, timewindow.Monthly:
	default:
		return fmt.Errorf("unsupported period %q", c.Period)
	}
	return requireEventsAndTarget(c.EventTypes, c.Target)
}

func (c ComebackCondition) validate() error {
	if len(c.EventTypes) == 0 {
		return fmt.Errorf("event_types must not be empty")
	}
	if c.MinGapDays <= 0 {
		return fmt.Errorf("min_gap_days must be > 0")
	}
	if c.ActiveDaysAfter <= 0 {
		return fmt.Errorf("active_days_after must be > 0")
	}
	return nil
}

func (c CircleContributionCondition) validate() error {
	if err := validPercent(c.MinContributionPercent); err != nil {
		return err
	}
	if c.UniqueTasks <= 0 {
		return fmt.Errorf("unique_tasks must be > 0")
	}
	return nil
}

func (c CircleHeroCondition) validate() error {
	if c.CompletionWindowHours <= 0 {
		return fmt.Errorf("completion_window_hours must be > 0")
	}
	return validPercent(c.MinContributionPercent)
}

func (c UniqueUsersCondition) validate() error {
	return requireEventsAndTarget(c.EventTypes, c.Target)
}

func (TaskRewardsCondition) validate() error { return nil }

func requireEventsAndTarget(eventTypes []string, target int) error {
	if len(eventTypes) == 0 {
		return fmt.Errorf("event_types must not be empty")
	}
	if target <= 0 {
		return fmt.Errorf("target must be > 0")
	}
	return nil
}

func validPercent(p float64) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("min_contribution_percent must be within 0-100, got %v", p)
	}
	return nil
}

// ConditionSpec wraps a Condition for YAML decoding. The "type" key picks the
// concrete variant; the remaining keys decode into it.
type ConditionSpec struct {
	Condition
}

// UnmarshalYAML decodes the tagged condition.
func (s *ConditionSpec) UnmarshalYAML(value *yaml.Node) error {
	var tag struct {
		Type ConditionType `yaml:"type"`
	}
	if err := value.Decode(&tag); err != nil {
		return fmt.Errorf("condition: %w", err)
	}

	var (
		cond Condition
		err  error
	)
	switch tag.Type {
	case CondCount:
		var c CountCondition
		err, cond = value.Decode(&c), &c
	case CondCountUniqueDays:
		var c UniqueDaysCondition
		err, cond = value.Decode(&c), &c
	case CondStreak:
		var c StreakCondition
		err, cond = value.Decode(&c), &c
	case CondConsecutiveWeeks:
		var c ConsecutiveWeeksCondition
		err, cond = value.Decode(&c), &c
	case CondCountInPeriod:
		var c CountInPeriodCondition
		err, cond = value.Decode(&c), &c
	case CondComeback:
		var c ComebackCondition
		err, cond = value.Decode(&c), &c
	case CondCircleContribution:
		var c CircleContributionCondition
		err, cond = value.Decode(&c), &c
	case CondCircleHero:
		var c CircleHeroCondition
		err, cond = value.Decode(&c), &c
	case CondCountUniqueUsers:
		var c UniqueUsersCondition
		err, cond = value.Decode(&c), &c
	case CondTaskRewards:
		cond = TaskRewardsCondition{}
	default:
		return fmt.Errorf("condition: unknown type %q", tag.Type)
	}
	if err != nil {
		return fmt.Errorf("condition %s: %w", tag.Type, err)
	}

	s.Condition = deref(cond)
	return nil
}

// deref stores conditions by value so evaluators can type-switch on the
// plain struct types.
func deref(c Condition) Condition {
	switch v := c.(type) {
	case *CountCondition:
		return *v
	case *UniqueDaysCondition:
		return *v
	case *StreakCondition:
		return *v
	case *ConsecutiveWeeksCondition:
		return *v
	case *CountInPeriodCondition:
		return *v
	case *ComebackCondition:
		return *v
	case *CircleContributionCondition:
		return *v
	case *CircleHeroCondition:
		return *v
	case *UniqueUsersCondition:
		return *v
	}
	return c
}
