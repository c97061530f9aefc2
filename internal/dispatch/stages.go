package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/content"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
)

// SideEffect runs after an event's own award is committed. Handlers write
// what they produce into r.Result.
type SideEffect func(ctx context.Context, d *Dispatcher, r *Run) error

// Listener is a hook fired after the side effects of an event type.
type Listener func(ctx context.Context, userID string, payload v1.Payload, result v1.Result) error

// RegisterSideEffect adds a post-award handler for eventType. Handlers run
// in registration order.
func (d *Dispatcher) RegisterSideEffect(eventType string, fx SideEffect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.effects[eventType] = append(d.effects[eventType], fx)
}

// Listen adds a listener for eventType. Listeners fire in registration order;
// one listener's error or panic does not affect the others or the dispatch.
func (d *Dispatcher) Listen(eventType string, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], l)
}

func (d *Dispatcher) runEffects(ctx context.Context, r *Run) {
	d.mu.RLock()
	effects := append([]SideEffect(nil), d.effects[r.EventType]...)
	d.mu.RUnlock()

	for _, fx := range effects {
		if err := fx(ctx, d, r); err != nil {
			d.stageFailed(r, "side_effect", err)
		}
	}
}

func (d *Dispatcher) runListeners(ctx context.Context, r *Run) {
	d.mu.RLock()
	listeners := append([]Listener(nil), d.listeners[r.EventType]...)
	d.mu.RUnlock()

	for i, l := range listeners {
		if err := callListener(ctx, l, r); err != nil {
			slog.Error("[Dispatcher] Listener failed",
				"event_type", r.EventType,
				"listener", i,
				"user_id", r.UserID,
				"error", err)
		}
	}
}

func callListener(ctx context.Context, l Listener, r *Run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panicked: %v", p)
		}
	}()
	return l(ctx, r.UserID, r.Payload, *r.Result)
}

// StreakEffect records the daily activity of streak-bearing rules and pays
// a bonus threshold the streak just crossed.
func StreakEffect(ctx context.Context, d *Dispatcher, r *Run) error {
	if !r.Rule.RequiresStreak {
		return nil
	}
	act, err := d.Streaks.RecordActivity(ctx, r.UserID, r.Rule.StreakType, r.At)
	if err != nil {
		return fmt.Errorf("record %s streak: %w", r.Rule.StreakType, err)
	}

	info := &v1.StreakInfo{
		Type:      r.Rule.StreakType,
		Current:   act.State.Current,
		Longest:   act.State.Longest,
		GraceUsed: act.GraceUsed,
	}
	r.Result.Streak = info
	if act.Bonus == nil {
		return nil
	}

	info.Milestone = act.Bonus.Value
	key := d.Keyer.StreakMilestone(r.UserID, r.Rule.StreakType, act.Bonus.Value, r.At)
	out, err := d.Scores.AwardBonus(ctx, r.UserID, rules.EventStreakMilestone, key, act.Bonus.Points, r.Profile.CircleID, r.At)
	if err != nil {
		return fmt.Errorf("streak bonus: %w", err)
	}
	if !out.Awarded {
		return nil
	}

	info.IsNewMilestone = true
	info.BonusPoints = out.Points
	r.Result.PointsEarned += out.Points
	r.gained += out.Points
	d.logEvent(ctx, r, &v1.Event{
		Type:    rules.EventStreakMilestone,
		UserID:  r.UserID,
		Context: map[string]interface{}{"streak_type": r.Rule.StreakType, "milestone": act.Bonus.Value},
		Points:  out.Points,
		Status:  v1.StatusAccepted,
	})
	return nil
}

// MilestoneEffect checks the liked comment's like count against the comment
// like schedule and pays a newly crossed threshold to the comment's author.
func MilestoneEffect(ctx context.Context, d *Dispatcher, r *Run) error {
	commentID := r.Payload.EntityID
	if d.Content == nil || commentID == "" {
		return nil
	}
	entityType := r.Payload.EntityType
	if entityType == "" {
		entityType = content.TypeComment
	}

	comment, err := d.Content.Entity(ctx, entityType, commentID)
	if errors.Is(err, content.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve comment %s: %w", commentID, err)
	}
	if comment.AuthorID == "" {
		return nil
	}
	// The like count always comes from the content platform, never from the
	// liker's payload.
	award, err := d.Milestones.CheckAndAward(ctx, comment.AuthorID, rules.MilestoneCommentLikes, commentID, comment.LikeCount, r.At)
	if err != nil || award == nil {
		return err
	}

	author, err := r.memo.Profile(ctx, comment.AuthorID)
	if err != nil {
		return err
	}
	info := &v1.MilestoneInfo{
		Type:           award.Type,
		TargetEntityID: commentID,
		Value:          award.Value,
		RecipientID:    comment.AuthorID,
	}
	r.Result.Milestone = info

	points := award.Points
	if author.IsPro {
		points = 0
	} else {
		key := d.Keyer.Milestone(comment.AuthorID, award.Type, commentID, award.Value)
		out, err := d.Scores.AwardBonus(ctx, comment.AuthorID, rules.EventCommentLikeMilestone, key, award.Points, author.CircleID, r.At)
		if err != nil {
			return fmt.Errorf("milestone bonus: %w", err)
		}
		points = out.Points
	}
	info.Points = points

	d.logEvent(ctx, r, &v1.Event{
		Type:       rules.EventCommentLikeMilestone,
		UserID:     comment.AuthorID,
		EntityType: entityType,
		EntityID:   commentID,
		Context:    map[string]interface{}{"milestone": award.Value, "liked_by": r.UserID},
		Points:     points,
		Status:     v1.StatusAccepted,
	})
	return nil
}

// trackTasks advances the user's tasks for point-earning events and the
// always-evaluated event types.
func (d *Dispatcher) trackTasks(ctx context.Context, r *Run, points int) {
	if points <= 0 && !alwaysEvaluate[r.EventType] {
		return
	}
	updates, err := d.Tasks.ProcessEvent(ctx, r.UserID, r.EventType, r.Context, r.Profile.CircleID, r.At)
	if err != nil {
		d.stageFailed(r, "tasks", err)
	}
	for _, u := range updates {
		r.Result.Tasks = append(r.Result.Tasks, u.Info())
		if u.JustCompleted {
			r.gained += u.RewardPoints
			d.logEvent(ctx, r, &v1.Event{
				Type:    rules.EventTaskCompleted,
				UserID:  r.UserID,
				Context: map[string]interface{}{"task_slug": u.Definition.Slug},
				Points:  u.RewardPoints,
				Status:  v1.StatusAccepted,
			})
		}
		if u.Badge != nil {
			r.addBadge(*u.Badge)
		}
	}
}

// trackCircle adds the user's contribution to their circle's tasks.
func (d *Dispatcher) trackCircle(ctx context.Context, r *Run) {
	if d.Circles == nil || r.Profile.CircleID == "" {
		return
	}
	progress, err := d.Circles.Contribute(ctx, r.UserID, r.Profile.CircleID, r.EventType, r.At)
	if err != nil {
		d.stageFailed(r, "circle", err)
	}
	for _, p := range progress {
		r.Result.Tasks = append(r.Result.Tasks, p.Info())
		if !p.JustCompleted {
			continue
		}
		r.gained += p.RewardPoints
		for _, member := range p.Rewarded {
			d.logEvent(ctx, r, &v1.Event{
				Type:    rules.EventCircleTaskCompleted,
				UserID:  member,
				Context: map[string]interface{}{"task_slug": p.Definition.Slug, "circle_id": r.Profile.CircleID},
				Points:  p.Definition.RewardScore,
				Status:  v1.StatusAccepted,
			})
		}
	}
}

func (d *Dispatcher) evaluateBadges(ctx context.Context, r *Run) {
	earned, err := d.Badges.ProcessEvent(ctx, r.UserID, r.triggers, r.At)
	if err != nil {
		d.stageFailed(r, "badges", err)
	}
	for _, b := range earned {
		r.addBadge(b)
	}
}
