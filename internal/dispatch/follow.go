package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/idempotency"
	"github.com/aevon-lab/scoreboard/internal/scoring"
)

// Follow participant roles.
const (
	RoleFollower = "follower"
	RoleFollowed = "followed"
)

// dispatchFollow awards both sides of an accepted follow. Each participant
// is checked and paid on their own; one being ineligible does not stop the
// other.
func (d *Dispatcher) dispatchFollow(ctx context.Context, r *Run) (v1.Result, error) {
	follower := r.Payload.ContextString("follower_id")
	followed := r.Payload.ContextString("followed_id")
	if follower == "" || followed == "" || follower == followed {
		return d.deny(ctx, r, scoring.ReasonInvalidInput, "follow_accepted needs distinct follower_id and followed_id")
	}

	r.Result.Success = true
	for _, side := range []struct{ user, counterpart, role string }{
		{follower, followed, RoleFollower},
		{followed, follower, RoleFollowed},
	} {
		part, err := d.awardParticipant(ctx, r, side.user, side.counterpart, side.role)
		if err != nil {
			return *r.Result, err
		}
		r.Result.Participants = append(r.Result.Participants, part)
	}

	if reason, ok := rejectedByAll(r.Result.Participants); ok {
		r.Result.Success = false
		r.Result.Reason = string(reason)
		r.Result.Message = reason.Message()
		slog.Warn("[Dispatcher] Follow rejected for both participants",
			"follower_id", follower,
			"followed_id", followed,
			"reason", reason)
		return *r.Result, nil
	}

	d.finish(ctx, r)
	d.notify(ctx, r)

	slog.Debug("[Dispatcher] Follow dispatched",
		"follower_id", follower,
		"followed_id", followed,
		"participants", len(r.Result.Participants))
	return *r.Result, nil
}

func (d *Dispatcher) awardParticipant(ctx context.Context, parent *Run, userID, counterpart, role string) (v1.ParticipantResult, error) {
	part := v1.ParticipantResult{UserID: userID, Role: role}

	payload := parent.Payload
	payload.UserID = userID
	payload.Context = make(map[string]interface{}, len(parent.Payload.Context)+2)
	for k, v := range parent.Payload.Context {
		payload.Context[k] = v
	}
	payload.Context["counterpart_id"] = counterpart
	payload.Context["role"] = role

	r := &Run{
		EventType: parent.EventType,
		Rule:      parent.Rule,
		UserID:    userID,
		Payload:   payload,
		Context:   mergeContext(payload),
		At:        parent.At,
		Result:    &v1.Result{EventType: parent.EventType, Label: parent.Result.Label},
		memo:      parent.memo,
	}

	profile, err := r.memo.Profile(ctx, userID)
	if err != nil {
		return part, err
	}
	r.Profile = profile

	points := 0
	status := v1.StatusAccepted
	switch {
	case profile.IsPro:
		status = v1.StatusExcluded
		part.Flag = v1.FlagProUser
	default:
		req := r.request()
		points, err = d.Scores.Calculate(ctx, r.Rule, req)
		if err != nil {
			return part, fmt.Errorf("calculate %s for %s: %w", r.EventType, role, err)
		}
		// The pair key replaces limit-derived keys, so only the cap and
		// feature flag are checked here.
		gate := r.Rule
		gate.PerEntityLimit, gate.DailyLimit, gate.DailyPairLimit = 0, 0, 0
		elig, err := d.Scores.CanEarn(ctx, gate, req, points)
		if err != nil {
			return part, fmt.Errorf("eligibility of %s for %s: %w", r.EventType, role, err)
		}
		if elig.Allowed {
			key := idempotency.Key{Value: d.Keyer.FollowAccepted(userID, counterpart, role), Scope: idempotency.ScopeEntity}
			out, err := d.Scores.Award(ctx, r.Rule, req, key, points, profile.CircleID)
			if err != nil {
				return part, err
			}
			if out.Awarded {
				part.PointsEarned = out.Points
				r.gained = out.Points
			} else {
				elig.Reason = out.Denied
			}
		}
		if part.PointsEarned == 0 && elig.Reason != scoring.ReasonNone {
			status = v1.StatusDenied
			part.Flag = elig.Reason.Flag()
			if !elig.Reason.Soft() {
				part.Reason = string(elig.Reason)
			}
		}
	}

	d.logEvent(ctx, r, d.mainEvent(r, status, part.PointsEarned))
	if status == v1.StatusAccepted {
		d.trackTasks(ctx, r, points)
		d.evaluateBadges(ctx, r)
	}

	d.readScore(ctx, r)
	part.TotalScore = r.Result.TotalScore
	part.DailyScore = r.Result.DailyScore

	if userID == parent.UserID {
		parent.Result.PointsEarned += part.PointsEarned
		parent.Result.Flag = part.Flag
		parent.Result.Tasks = append(parent.Result.Tasks, r.Result.Tasks...)
		for _, b := range r.Result.Badges {
			parent.addBadge(b)
		}
		parent.gained += r.gained
	}
	return part, nil
}

// rejectedByAll reports the shared hard denial when no participant was
// accepted.
func rejectedByAll(parts []v1.ParticipantResult) (scoring.Reason, bool) {
	if len(parts) == 0 {
		return scoring.ReasonNone, false
	}
	for _, p := range parts {
		if p.Reason == "" {
			return scoring.ReasonNone, false
		}
	}
	return scoring.Reason(parts[0].Reason), true
}
