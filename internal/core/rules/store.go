package rules

import (
	"fmt"
	"sort"
)

// Store is the immutable, validated rule table. It is safe for concurrent use.
type Store struct {
	rules         map[string]ScoringRule
	badges        map[string]BadgeDefinition
	badgeOrder    []string
	tasks         map[string]TaskDefinition
	taskOrder     []string
	templates     map[string]NotificationTemplate
	flags         map[string]bool
	settings      map[string]int
	streakBonuses []Threshold
	milestones    map[string]MilestoneSchedule
	levels        []int
	fingerprint   string
}

// NewStore validates an in-memory Document and builds a Store from it.
// Map keys name the entries, as they do in rule files.
func NewStore(doc Document) (*Store, error) {
	merged, err := mergeFiles(Document{}, []sourceFile{{name: "inline", doc: doc}})
	if err != nil {
		return nil, err
	}
	return newStore(merged, "inline")
}

func newStore(doc Document, fingerprint string) (*Store, error) {
	for k, r := range doc.ScoringRules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("scoring rule %q: %w", k, err)
		}
	}
	for k, b := range doc.Badges {
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("badge %q: %w", k, err)
		}
	}
	for _, t := range doc.Tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if err := checkRewardBadge(t, doc.Badges); err != nil {
			return nil, err
		}
	}
	for k, n := range doc.Notifications {
		if n.Title == "" {
			return nil, fmt.Errorf("notification %q: title is required", k)
		}
	}
	for k, m := range doc.Milestones {
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("milestone %q: %w", k, err)
		}
	}
	if err := validateAscending(doc.StreakBonuses); err != nil {
		return nil, fmt.Errorf("streak_bonuses: %w", err)
	}
	for i, lvl := range doc.Levels {
		if i == 0 && lvl != 0 {
			return nil, fmt.Errorf("levels: first threshold must be 0")
		}
		if i > 0 && lvl <= doc.Levels[i-1] {
			return nil, fmt.Errorf("levels: thresholds must be strictly ascending")
		}
	}

	s := &Store{
		rules:         doc.ScoringRules,
		badges:        doc.Badges,
		tasks:         doc.Tasks,
		templates:     doc.Notifications,
		flags:         doc.Flags,
		settings:      doc.Settings,
		streakBonuses: doc.StreakBonuses,
		milestones:    doc.Milestones,
		levels:        doc.Levels,
		fingerprint:   fingerprint,
	}
	for slug := range s.badges {
		s.badgeOrder = append(s.badgeOrder, slug)
	}
	sort.Strings(s.badgeOrder)
	for slug := range s.tasks {
		s.taskOrder = append(s.taskOrder, slug)
	}
	sort.Strings(s.taskOrder)
	return s, nil
}

// Rule returns the scoring rule for eventType.
func (s *Store) Rule(eventType string) (ScoringRule, bool) {
	r, ok := s.rules[eventType]
	return r, ok
}

// Label returns the display label of eventType, falling back to the raw type.
func (s *Store) Label(eventType string) string {
	if r, ok := s.rules[eventType]; ok && r.Label != "" {
		return r.Label
	}
	return eventType
}

// Badges returns every badge definition ordered by slug.
func (s *Store) Badges() []BadgeDefinition {
	out := make([]BadgeDefinition, 0, len(s.badgeOrder))
	for _, slug := range s.badgeOrder {
		out = append(out, s.badges[slug])
	}
	return out
}

// Badge returns one badge definition.
func (s *Store) Badge(slug string) (BadgeDefinition, bool) {
	b, ok := s.badges[slug]
	return b, ok
}

// CheckRewardBadge verifies that the task's reward_badge_id, if any, names a
// badge driven only by task contributions.
func (s *Store) CheckRewardBadge(t TaskDefinition) error {
	return checkRewardBadge(t, s.badges)
}

func checkRewardBadge(t TaskDefinition, badges map[string]BadgeDefinition) error {
	if t.RewardBadgeID == "" {
		return nil
	}
	badge, ok := badges[t.RewardBadgeID]
	if !ok {
		return fmt.Errorf("task %q: unknown reward_badge_id %q", t.Slug, t.RewardBadgeID)
	}
	if !badge.ContributionOnly() {
		return fmt.Errorf("task %q: reward_badge_id %q must use a %s condition", t.Slug, t.RewardBadgeID, CondTaskRewards)
	}
	return nil
}

// StaticTasks returns the file-defined task definitions ordered by slug.
func (s *Store) StaticTasks() []TaskDefinition {
	out := make([]TaskDefinition, 0, len(s.taskOrder))
	for _, slug := range s.taskOrder {
		out = append(out, s.tasks[slug])
	}
	return out
}

// StaticTask returns one file-defined task definition.
func (s *Store) StaticTask(slug string) (TaskDefinition, bool) {
	t, ok := s.tasks[slug]
	return t, ok
}

// Template returns the notification template for a notification type.
func (s *Store) Template(notificationType string) (NotificationTemplate, bool) {
	t, ok := s.templates[notificationType]
	return t, ok
}

// FlagEnabled reports whether a feature flag is on. Unknown flags are off.
func (s *Store) FlagEnabled(name string) bool {
	return s.flags[name]
}

// Setting returns an integer setting, or 0 when unset.
func (s *Store) Setting(name string) int {
	return s.settings[name]
}

// WithFlagOverrides returns a copy of the store whose flags are overlaid with
// overrides. The receiver is not modified.
func (s *Store) WithFlagOverrides(overrides map[string]bool) *Store {
	if len(overrides) == 0 {
		return s
	}
	cp := *s
	cp.flags = make(map[string]bool, len(s.flags)+len(overrides))
	for k, v := range s.flags {
		cp.flags[k] = v
	}
	for k, v := range overrides {
		cp.flags[k] = v
	}
	return &cp
}

// StreakBonuses returns the ascending streak bonus schedule.
func (s *Store) StreakBonuses() []Threshold {
	return s.streakBonuses
}

// Milestone returns the threshold schedule of a milestone type.
func (s *Store) Milestone(milestoneType string) (MilestoneSchedule, bool) {
	m, ok := s.milestones[milestoneType]
	return m, ok
}

// Levels returns the ascending total-score thresholds; index i is level i+1.
func (s *Store) Levels() []int {
	return s.levels
}

// Fingerprint identifies the exact set of rule files the store was built from.
func (s *Store) Fingerprint() string {
	return s.fingerprint
}

// StreakTypes returns the distinct streak types rules maintain, sorted.
func (s *Store) StreakTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.rules {
		if r.RequiresStreak && !seen[r.StreakType] {
			seen[r.StreakType] = true
			out = append(out, r.StreakType)
		}
	}
	sort.Strings(out)
	return out
}
