// Package idempotency derives the ledger keys that make every point award
// happen at most once per logical action.
package idempotency

import (
	"errors"
	"fmt"
	"strings"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
	"github.com/google/uuid"
)

var (
	// ErrMissingEntity is returned for per-entity rules dispatched without an entity id.
	ErrMissingEntity = errors.New("entity_id is required for per-entity rules")
	// ErrMissingCounterpart is returned for pair rules without a receiver in the context.
	ErrMissingCounterpart = errors.New("pair-limited rule needs a receiver in context")
)

// Scope says which limit a derived key enforces.
type Scope int

const (
	// ScopeUnique keys never collide; the rule is unlimited.
	ScopeUnique Scope = iota
	// ScopeEntity keys collide for the same (user, event, entity).
	ScopeEntity
	// ScopePair keys collide for the same (sender, receiver, day).
	ScopePair
	// ScopeDaily keys are numbered slots within one local day.
	ScopeDaily
)

func (s Scope) String() string {
	switch s {
	case ScopeEntity:
		return "entity"
	case ScopePair:
		return "pair"
	case ScopeDaily:
		return "daily"
	default:
		return "unique"
	}
}

// Key is a derived idempotency key.
type Key struct {
	Value string
	Scope Scope
	// Slot is the 1-based slot number of a daily key, or of DailySlot.
	Slot int
	// DailySlot is set on entity keys of rules that also carry a daily
	// limit. The award holds both keys.
	DailySlot string
}

// Keyer derives deterministic keys. Day-scoped keys use the Keyer's window.
type Keyer struct {
	window   timewindow.Window
	newNonce func() string
}

// New returns a Keyer bound to window.
func New(window timewindow.Window) Keyer {
	return Keyer{window: window, newNonce: uuid.NewString}
}

// Derive returns the key guarding one award of rule to userID.
//
// Precedence follows the eligibility checks: a per-entity limit keys on the
// entity, a pair limit on (sender, receiver, day), a daily limit on the first
// daily slot, and anything else gets a unique key.
func (k Keyer) Derive(rule rules.ScoringRule, userID, entityType, entityID string, ctx map[string]interface{}, at time.Time) (Key, error) {
	switch {
	case rule.PerEntityLimit > 0:
		if entityID == "" {
			return Key{}, ErrMissingEntity
		}
		return Key{Value: k.PerEntity(rule.EventType, userID, entityType, entityID), Scope: ScopeEntity}, nil
	case rule.DailyPairLimit > 0:
		receiver := v1.ContextString(ctx, pairKey(rule))
		if receiver == "" {
			return Key{}, fmt.Errorf("%w (%s)", ErrMissingCounterpart, pairKey(rule))
		}
		return Key{Value: k.Pair(rule.EventType, userID, receiver, at), Scope: ScopePair}, nil
	case rule.DailyLimit > 0:
		return k.DailySlot(rule.EventType, userID, at, 1), nil
	default:
		return Key{Value: k.Unique(rule.EventType, userID), Scope: ScopeUnique}, nil
	}
}

func pairKey(rule rules.ScoringRule) string {
	if rule.PairKey != "" {
		return rule.PairKey
	}
	return "receiver_id"
}

// PerEntity keys one award per (event, user, entity).
func (k Keyer) PerEntity(eventType, userID, entityType, entityID string) string {
	return join(eventType, userID, entityType, entityID)
}

// Pair keys one award per (event, sender, receiver, local day).
func (k Keyer) Pair(eventType, senderID, receiverID string, at time.Time) string {
	return join(eventType, senderID, receiverID, k.window.DayKey(at))
}

// DailySlot returns the key of the n-th award of eventType on the local day of at.
func (k Keyer) DailySlot(eventType, userID string, at time.Time, slot int) Key {
	return Key{
		Value: join(eventType, userID, k.window.DayKey(at), fmt.Sprintf("#%d", slot)),
		Scope: ScopeDaily,
		Slot:  slot,
	}
}

// WithDailySlot binds the n-th daily slot of eventType to an entity key.
func (k Keyer) WithDailySlot(key Key, eventType, userID string, at time.Time, slot int) Key {
	key.Slot = slot
	key.DailySlot = k.DailySlot(eventType, userID, at, slot).Value
	return key
}

// Unique returns a key that never collides.
func (k Keyer) Unique(eventType, userID string) string {
	return join(eventType, userID, k.newNonce())
}

// FollowAccepted keys the award of one participant of a follow. Both
// participants share the unordered pair and differ only by role.
func (k Keyer) FollowAccepted(followerID, followedID, role string) string {
	lo, hi := followerID, followedID
	if hi < lo {
		lo, hi = hi, lo
	}
	return join(rules.EventFollowAccepted, lo, hi, role)
}

// StreakMilestone keys the bonus for reaching threshold on the local day of at.
func (k Keyer) StreakMilestone(userID, streakType string, threshold int, at time.Time) string {
	return join(rules.EventStreakMilestone, userID, streakType, fmt.Sprint(threshold), k.window.DayKey(at))
}

// Milestone keys the bonus of one crossed threshold of a cumulative counter.
func (k Keyer) Milestone(userID, milestoneType, targetEntityID string, value int) string {
	return join(milestoneType, userID, targetEntityID, fmt.Sprint(value))
}

// TaskCompleted keys the reward of one task instance.
func (k Keyer) TaskCompleted(userID, slug string, periodStart time.Time) string {
	return join(rules.EventTaskCompleted, userID, slug, k.window.DayKey(periodStart))
}

// CircleTaskReward keys the reward of one contributor of a completed circle task.
func (k Keyer) CircleTaskReward(circleID, userID, slug string, periodStart time.Time) string {
	return join(rules.EventCircleTaskCompleted, circleID, userID, slug, k.window.DayKey(periodStart))
}

func join(parts ...string) string {
	return strings.Join(parts, ":")
}
