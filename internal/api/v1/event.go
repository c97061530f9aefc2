package v1

import (
	"fmt"
	"time"
)

// Event status values recorded in the event log.
const (
	// StatusAccepted marks an eligible event, whether it earned points or not.
	StatusAccepted = "accepted"
	// StatusDenied marks an event that hit a soft or hard eligibility denial.
	StatusDenied = "denied"
	// StatusExcluded marks an event from an account that never earns points (pro users).
	StatusExcluded = "excluded"
)

// Event is the atomic unit of the system: one user action submitted for scoring.
// It is never mutated after the dispatcher appends it to the event log.
type Event struct {
	// ID is assigned by the dispatcher when the event is logged.
	ID string `json:"id"`

	// Type is the scoring rule key (e.g. "daily_login", "exercise_completed").
	Type string `json:"event_type"`

	// UserID is the actor the event is attributed to.
	UserID string `json:"user_id"`

	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`

	// Context carries free-form event attributes (receiver_id, steps, is_sticky, ...).
	Context map[string]interface{} `json:"context,omitempty"`

	// OccurredAt is when the action happened. Defaults to the dispatch time.
	OccurredAt time.Time `json:"occurred_at"`

	// Points and Status are the scoring outcome, filled in by the dispatcher.
	Points int    `json:"points"`
	Status string `json:"status"`

	// LoggedAt is when the event reached the event log.
	LoggedAt time.Time `json:"logged_at"`
}

// Validate ensures the event has all required attributes.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// Payload is the dispatch input accompanying an event type.
type Payload struct {
	// UserID is optional; the dispatcher falls back to the identity provider.
	UserID     string                 `json:"user_id,omitempty"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	OccurredAt time.Time              `json:"occurred_at,omitempty"`
}

// ContextString returns a string-valued context attribute, or "" when absent.
func (p Payload) ContextString(key string) string {
	return ContextString(p.Context, key)
}

// ContextString reads key from ctx as a string. Numbers are formatted without a
// fractional part when they are integral.
func ContextString(ctx map[string]interface{}, key string) string {
	v, ok := ctx[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
