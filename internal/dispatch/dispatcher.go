// Package dispatch is the engine's entry point: it turns one typed event into
// points, streaks, milestones, task progress, badges and notifications.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/badges"
	"github.com/aevon-lab/scoreboard/internal/circle"
	"github.com/aevon-lab/scoreboard/internal/content"
	"github.com/aevon-lab/scoreboard/internal/core/idempotency"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/identity"
	"github.com/aevon-lab/scoreboard/internal/milestone"
	"github.com/aevon-lab/scoreboard/internal/notify"
	"github.com/aevon-lab/scoreboard/internal/scoring"
	"github.com/aevon-lab/scoreboard/internal/streak"
	"github.com/aevon-lab/scoreboard/internal/tasks"
)

// ErrUnauthenticated is returned when neither the payload nor the context
// names a user.
var ErrUnauthenticated = errors.New("no user to attribute the event to")

// alwaysEvaluate lists event types whose tasks advance even at zero points.
var alwaysEvaluate = map[string]bool{
	rules.EventDailyLogin:        true,
	rules.EventExerciseCompleted: true,
	rules.EventDietCompleted:     true,
}

// Components are the collaborators a Dispatcher orchestrates. Content and
// Notifier may be nil.
type Components struct {
	Rules      *rules.Store
	Keyer      idempotency.Keyer
	Scores     *scoring.Service
	Events     storage.EventLog
	Streaks    *streak.Tracker
	Milestones *milestone.Evaluator
	Tasks      *tasks.Tracker
	Circles    *circle.Tracker
	Badges     *badges.Engine
	Notifier   *notify.Emitter
	Directory  identity.Directory
	Content    content.Lookup
}

// Dispatcher is the EventDispatcher. It holds no per-user state; everything
// it learns during a dispatch lives in a Run.
type Dispatcher struct {
	Components

	mu        sync.RWMutex
	effects   map[string][]SideEffect
	listeners map[string][]Listener

	nowFn func() time.Time
}

// New builds a Dispatcher with the built-in side effects registered.
func New(c Components) *Dispatcher {
	d := &Dispatcher{
		Components: c,
		effects:    make(map[string][]SideEffect),
		listeners:  make(map[string][]Listener),
		nowFn:      time.Now,
	}
	d.RegisterSideEffect(rules.EventDailyLogin, StreakEffect)
	d.RegisterSideEffect(rules.EventCommentLiked, MilestoneEffect)
	return d
}

// Run is the state of one dispatch as it moves through the pipeline.
type Run struct {
	EventType string
	Rule      rules.ScoringRule
	UserID    string
	Profile   identity.Profile
	Payload   v1.Payload
	// Context is the payload context merged with entity_type and entity_id.
	Context map[string]interface{}
	At      time.Time
	Result  *v1.Result

	memo *identity.Memo
	// triggers are the event types logged for UserID during this run.
	triggers []string
	// gained is every point UserID received during this run.
	gained int
}

func (r *Run) request() scoring.Request {
	return scoring.Request{
		UserID:     r.UserID,
		EventType:  r.EventType,
		EntityType: r.Payload.EntityType,
		EntityID:   r.Payload.EntityID,
		Context:    r.Context,
		At:         r.At,
	}
}

func (r *Run) addBadge(b v1.BadgeInfo) {
	r.Result.Badges = append(r.Result.Badges, b)
	if r.Result.Badge == nil {
		first := b
		r.Result.Badge = &first
	}
}

func mergeContext(p v1.Payload) map[string]interface{} {
	out := make(map[string]interface{}, len(p.Context)+2)
	for k, v := range p.Context {
		out[k] = v
	}
	if p.EntityType != "" {
		out["entity_type"] = p.EntityType
	}
	if p.EntityID != "" {
		out["entity_id"] = p.EntityID
	}
	return out
}

// Dispatch scores one event. Eligibility denials are results, not errors:
// soft denials come back with Success=true and a flag, hard ones with
// Success=false. An error means nothing was awarded, except for
// ErrUnauthenticated it is always a storage or lookup failure. Stages after
// the award never fail the dispatch; their failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload v1.Payload) (v1.Result, error) {
	userID := payload.UserID
	if userID == "" {
		userID = identity.UserFrom(ctx)
	}
	if userID == "" {
		return v1.Result{EventType: eventType, Message: "Sign in to earn points."}, ErrUnauthenticated
	}

	rule, known := d.Rules.Rule(eventType)
	if !known {
		rule = rules.ScoringRule{EventType: eventType}
	}
	at := d.nowFn()
	payload.UserID = userID

	r := &Run{
		EventType: eventType,
		Rule:      rule,
		UserID:    userID,
		Payload:   payload,
		Context:   mergeContext(payload),
		At:        at,
		Result:    &v1.Result{EventType: eventType, Label: d.Rules.Label(eventType)},
		memo:      identity.NewMemo(d.Directory),
	}

	if eventType == "" || rule.Synthetic {
		return d.deny(ctx, r, scoring.ReasonInvalidInput, "event type cannot be dispatched")
	}

	profile, err := r.memo.Profile(ctx, userID)
	if err != nil {
		return *r.Result, err
	}
	r.Profile = profile

	if eventType == rules.EventFollowAccepted {
		return d.dispatchFollow(ctx, r)
	}
	if profile.IsPro {
		return d.exclude(ctx, r)
	}

	points := 0
	if known {
		req := r.request()
		points, err = d.Scores.Calculate(ctx, rule, req)
		if err != nil {
			return *r.Result, fmt.Errorf("calculate %s: %w", eventType, err)
		}
		elig, err := d.Scores.CanEarn(ctx, rule, req, points)
		if err != nil {
			return *r.Result, fmt.Errorf("eligibility of %s: %w", eventType, err)
		}
		if !elig.Allowed {
			return d.deny(ctx, r, elig.Reason, elig.Detail)
		}
		out, err := d.Scores.Award(ctx, rule, req, elig.Key, points, profile.CircleID)
		if err != nil {
			return *r.Result, err
		}
		if !out.Awarded {
			return d.deny(ctx, r, out.Denied, "")
		}
		r.Result.PointsEarned = out.Points
		r.gained = out.Points
	}

	d.logEvent(ctx, r, d.mainEvent(r, v1.StatusAccepted, points))
	d.runEffects(ctx, r)
	d.runListeners(ctx, r)
	d.trackTasks(ctx, r, points)
	d.trackCircle(ctx, r)
	d.evaluateBadges(ctx, r)

	r.Result.Success = true
	d.finish(ctx, r)
	d.notify(ctx, r)

	slog.Debug("[Dispatcher] Event dispatched",
		"user_id", userID,
		"event_type", eventType,
		"points", r.Result.PointsEarned,
		"total_score", r.Result.TotalScore)
	return *r.Result, nil
}

func (d *Dispatcher) mainEvent(r *Run, status string, points int) *v1.Event {
	return &v1.Event{
		Type:       r.EventType,
		UserID:     r.UserID,
		EntityType: r.Payload.EntityType,
		EntityID:   r.Payload.EntityID,
		Context:    r.Payload.Context,
		OccurredAt: r.Payload.OccurredAt,
		Points:     points,
		Status:     status,
	}
}

// logEvent appends ev to the event log. A failed append is logged; the
// award it describes stands.
func (d *Dispatcher) logEvent(ctx context.Context, r *Run, ev *v1.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.At
	}
	ev.LoggedAt = r.At
	if ev.UserID == r.UserID && ev.Status == v1.StatusAccepted {
		r.triggers = append(r.triggers, ev.Type)
	}
	if err := d.Events.AppendEvent(ctx, ev); err != nil {
		d.stageFailed(r, "event_log", err)
	}
}

func (d *Dispatcher) stageFailed(r *Run, stage string, err error) {
	slog.Error("[Dispatcher] Stage failed after award",
		"stage", stage,
		"user_id", r.UserID,
		"event_type", r.EventType,
		"error", err)
}

// deny finishes a dispatch that earns nothing. The event is still logged.
func (d *Dispatcher) deny(ctx context.Context, r *Run, reason scoring.Reason, detail string) (v1.Result, error) {
	if r.EventType != "" {
		d.logEvent(ctx, r, d.mainEvent(r, v1.StatusDenied, 0))
	}
	r.Result.Reason = string(reason)
	r.Result.Message = reason.Message()

	if !reason.Soft() {
		slog.Warn("[Dispatcher] Event rejected",
			"user_id", r.UserID,
			"event_type", r.EventType,
			"reason", reason,
			"detail", detail)
		return *r.Result, nil
	}

	r.Result.Success = true
	r.Result.Flag = reason.Flag()
	d.readScore(ctx, r)
	slog.Debug("[Dispatcher] Event earned nothing",
		"user_id", r.UserID,
		"event_type", r.EventType,
		"reason", reason)
	return *r.Result, nil
}

// exclude records an event from an account that never earns points.
func (d *Dispatcher) exclude(ctx context.Context, r *Run) (v1.Result, error) {
	d.logEvent(ctx, r, d.mainEvent(r, v1.StatusExcluded, 0))
	r.Result.Success = true
	r.Result.Flag = v1.FlagProUser
	r.Result.Message = "Professional accounts do not earn points."
	d.readScore(ctx, r)
	return *r.Result, nil
}

func (d *Dispatcher) readScore(ctx context.Context, r *Run) {
	score, err := d.Scores.Score(ctx, r.UserID, r.At)
	if err != nil {
		d.stageFailed(r, "score", err)
		return
	}
	r.Result.TotalScore = score.TotalScore
	r.Result.DailyScore = score.DailyScore
	r.Result.Level = scoring.LevelFor(d.Rules.Levels(), score.TotalScore)
}

// finish fills the score fields from the aggregate after every stage ran.
func (d *Dispatcher) finish(ctx context.Context, r *Run) {
	d.readScore(ctx, r)
	if r.gained > 0 {
		before := scoring.LevelFor(d.Rules.Levels(), r.Result.TotalScore-r.gained)
		r.Result.LevelUp = r.Result.Level > before
	}
	if r.Result.PointsEarned > 0 {
		r.Result.Message = fmt.Sprintf("%s: +%d points", r.Result.Label, r.Result.PointsEarned)
	} else {
		r.Result.Message = fmt.Sprintf("%s recorded", r.Result.Label)
	}
}

func (d *Dispatcher) notify(ctx context.Context, r *Run) {
	if d.Notifier == nil {
		return
	}
	payload := r.Payload
	payload.Context = r.Context
	if _, err := d.Notifier.Emit(ctx, notify.Input{
		EventType: r.EventType,
		UserID:    r.UserID,
		Payload:   payload,
		Result:    *r.Result,
	}); err != nil {
		slog.Warn("[Dispatcher] Notifications incomplete",
			"user_id", r.UserID,
			"event_type", r.EventType,
			"error", err)
	}
}
