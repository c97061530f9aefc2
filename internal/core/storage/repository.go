package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
)

// ErrDuplicate is returned when a write hits a uniqueness guard: an existing
// idempotency key, an already recorded milestone, or a completion that has
// already happened.
var ErrDuplicate = errors.New("record already exists")

// ErrSlotTaken is returned by Ledger.Award when the entry's SlotKey is
// already held by another award.
var ErrSlotTaken = errors.New("slot already taken")

// ErrNotFound is returned by single-row reads with no match.
var ErrNotFound = errors.New("record not found")

// LedgerEntry is one point-earning transaction. SlotKey, when set, is a
// second uniqueness key reserved in the same transaction as the entry.
type LedgerEntry struct {
	ID             string
	IdempotencyKey string
	SlotKey        string
	UserID         string
	EventType      string
	Points         int
	EntityType     string
	EntityID       string
	CircleID       string
	CreatedAt      time.Time
}

// Score is a user's aggregate. DailyScore is already resolved for the day it
// was read or written for.
type Score struct {
	UserID     string
	TotalScore int
	DailyScore int
	CircleID   string
	UpdatedAt  time.Time
}

// Ledger is the authoritative award record and the score aggregate it drives.
type Ledger interface {
	// Award appends entry and applies its points to the user's score, and to
	// the circle score when entry.CircleID is set, atomically. day is the
	// local day key of the award; daily_score restarts when it changes.
	// Returns ErrDuplicate, with nothing applied, when the key already exists.
	Award(ctx context.Context, entry LedgerEntry, day string) (Score, error)

	// HasEntry reports whether an entry with the idempotency key exists.
	HasEntry(ctx context.Context, idempotencyKey string) (bool, error)

	// CountEntriesSince counts the user's entries of eventType created at or after since.
	CountEntriesSince(ctx context.Context, userID, eventType string, since time.Time) (int, error)

	// Score returns the user's aggregate as of day. Unknown users have a zero score.
	Score(ctx context.Context, userID, day string) (Score, error)

	// TopScores returns the highest totals, best first.
	TopScores(ctx context.Context, day string, limit int) ([]Score, error)

	// CircleScore returns a circle's cumulative score.
	CircleScore(ctx context.Context, circleID string) (int, error)
}

// EventQuery filters the event log. Zero fields do not filter. Since and Until
// bound LoggedAt, the dispatch time; OccurredAt is client-supplied and never
// used for windowing.
type EventQuery struct {
	UserID string
	Types  []string
	Since  time.Time
	Until  time.Time
	Status string
}

// EventLog is the append-only record of every dispatched event.
type EventLog interface {
	AppendEvent(ctx context.Context, event *v1.Event) error
	CountEvents(ctx context.Context, q EventQuery) (int, error)
	// ListEvents returns matching events ordered by logged_at ascending.
	ListEvents(ctx context.Context, q EventQuery) ([]*v1.Event, error)
	// DeleteEventsBefore removes events logged before the cutoff.
	DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

// StreakState is one user's streak of one type.
type StreakState struct {
	UserID         string
	StreakType     string
	Current        int
	Longest        int
	LastActivity   string // local day key; empty before the first activity
	GraceRemaining int
	UpdatedAt      time.Time
}

// StreakStore persists streak state.
type StreakStore interface {
	// UpdateStreak loads the state under a per-row lock, creating it with
	// initialGrace if missing, and calls fn. When fn reports a change the state
	// is written back before the lock is released.
	UpdateStreak(ctx context.Context, userID, streakType string, initialGrace int, fn func(*StreakState) (bool, error)) (StreakState, error)

	// GetStreak returns ErrNotFound for a streak that never started.
	GetStreak(ctx context.Context, userID, streakType string) (StreakState, error)

	// ResetGrace restores every streak's grace allotment. Returns rows touched.
	ResetGrace(ctx context.Context, grace int) (int64, error)
}

// MilestoneRecord is one awarded threshold of a cumulative counter.
type MilestoneRecord struct {
	UserID         string
	MilestoneType  string
	TargetEntityID string
	Value          int
	Points         int
	AwardedAt      time.Time
}

// MilestoneStore persists awarded milestones.
type MilestoneStore interface {
	// HighestMilestone returns the largest awarded value, or 0.
	HighestMilestone(ctx context.Context, userID, milestoneType, targetEntityID string) (int, error)
	// RecordMilestone returns ErrDuplicate if the threshold was already recorded.
	RecordMilestone(ctx context.Context, rec MilestoneRecord) error
}

// Task progress statuses.
const (
	TaskStatusActive    = "active"
	TaskStatusCompleted = "completed"
	TaskStatusExpired   = "expired"
)

// TaskProgress is one user's progress on one task instance.
type TaskProgress struct {
	UserID       string
	TaskSlug     string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	CurrentValue int
	TargetValue  int
	IsCompleted  bool
	CompletedAt  *time.Time
	Status       string
	UpdatedAt    time.Time
}

// TaskStore persists task progress and dynamic task definitions.
type TaskStore interface {
	// IncrementProgress creates the instance identified by (UserID, TaskSlug,
	// PeriodStart) if needed and adds delta, capped at TargetValue. Completed
	// or expired instances are left as they are; changed reports whether the
	// value moved.
	IncrementProgress(ctx context.Context, p TaskProgress, delta int, at time.Time) (TaskProgress, bool, error)

	// MarkCompleted flips is_completed exactly once. Returns ErrDuplicate if
	// the instance was already completed.
	MarkCompleted(ctx context.Context, userID, slug string, periodStart, at time.Time) error

	// ListProgress returns the user's instances whose period contains at.
	ListProgress(ctx context.Context, userID string, at time.Time) ([]TaskProgress, error)

	// ExpireTasks marks unfinished active instances of the given tasks whose
	// period ended at or before now as expired.
	ExpireTasks(ctx context.Context, slugs []string, now time.Time) (int64, error)

	SaveDefinition(ctx context.Context, def rules.TaskDefinition) error
	ListDefinitions(ctx context.Context) ([]rules.TaskDefinition, error)
}

// UserBadge is a user's state on one badge.
type UserBadge struct {
	UserID    string
	BadgeSlug string
	Progress  int
	Earned    bool
	EarnedAt  *time.Time
	UpdatedAt time.Time
}

// BadgeStore persists badge progress and awards.
type BadgeStore interface {
	ListUserBadges(ctx context.Context, userID string) ([]UserBadge, error)

	// RaiseBadgeProgress sets progress to max(current, progress). Earned badges are untouched.
	RaiseBadgeProgress(ctx context.Context, userID, slug string, progress int, at time.Time) (UserBadge, error)

	// AddBadgeProgress adds delta, capped at max. Earned badges are untouched.
	AddBadgeProgress(ctx context.Context, userID, slug string, delta, max int, at time.Time) (UserBadge, error)

	// EarnBadge flips earned exactly once. Returns ErrDuplicate if already earned.
	EarnBadge(ctx context.Context, userID, slug string, progress int, at time.Time) error
}

// CircleContribution is one member's contribution to a circle task instance.
type CircleContribution struct {
	CircleID    string
	UserID      string
	TaskSlug    string
	PeriodStart time.Time
	Amount      int
	CreatedAt   time.Time
}

// ContributionShare is one member's summed contribution.
type ContributionShare struct {
	UserID string
	Amount int
}

// CircleTaskCompletion records the moment a circle task instance reached its target.
type CircleTaskCompletion struct {
	CircleID    string
	TaskSlug    string
	PeriodStart time.Time
	CompletedBy string
	CompletedAt time.Time
	Total       int
}

// CircleTaskShare is a user's standing on one circle task instance.
type CircleTaskShare struct {
	CircleID    string
	TaskSlug    string
	PeriodStart time.Time
	UserAmount  int
	TotalAmount int
	Completion  *CircleTaskCompletion
}

// CircleStore persists circle contributions and completions.
type CircleStore interface {
	// AddContribution records c and returns the instance total after it.
	AddContribution(ctx context.Context, c CircleContribution) (int, error)
	ContributionShares(ctx context.Context, circleID, slug string, periodStart time.Time) ([]ContributionShare, error)
	// CompleteCircleTask returns ErrDuplicate if the instance was already completed.
	CompleteCircleTask(ctx context.Context, c CircleTaskCompletion) error
	// UserCircleTasks returns every instance the user contributed to.
	UserCircleTasks(ctx context.Context, userID string) ([]CircleTaskShare, error)
}

// Notification is a rendered notification record. Delivery is someone else's job.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Body      string
	Params    map[string]string
	CreatedAt time.Time
}

// NotificationStore persists notifications.
type NotificationStore interface {
	SaveNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
}

// ScoreSnapshot freezes a user's score at the end of a period.
type ScoreSnapshot struct {
	UserID      string
	PeriodType  string
	PeriodStart time.Time
	TotalScore  int
	PeriodScore int
	CreatedAt   time.Time
}

// SnapshotStore persists score snapshots.
type SnapshotStore interface {
	// CreateSnapshots snapshots every score for the period [start, end).
	// Existing snapshots of the same period are kept. Returns rows created.
	CreateSnapshots(ctx context.Context, periodType string, start, end, at time.Time) (int64, error)
	// ListSnapshots returns a period's snapshots ordered by period score, best first.
	ListSnapshots(ctx context.Context, periodType string, start time.Time, limit int) ([]ScoreSnapshot, error)
}

// Store is the full persistence surface of the engine.
type Store interface {
	Ledger
	EventLog
	StreakStore
	MilestoneStore
	TaskStore
	BadgeStore
	CircleStore
	NotificationStore
	SnapshotStore
	Close() error
}
