// Package notify maps dispatch results onto notifications and hands them to a sink.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/content"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
)

// Notification types the emitter produces.
const (
	TypeStreakMilestone      = "streak_milestone"
	TypeStreakContinued      = "streak_continued"
	TypeFollowAccepted       = "follow_accepted"
	TypeNewFollower          = "new_follower"
	TypeHighfiveReceived     = "highfive_received"
	TypeCommentReply         = "comment_reply"
	TypeCommentOnContent     = "comment_on_content"
	TypeCommentLikeMilestone = "comment_like_milestone"
	TypeCommentLiked         = "comment_liked"
	TypeContentCompleted     = "content_completed"
	TypeCircleJoined         = "circle_joined"
	TypeRatingReceived       = "rating_received"
	TypeBadgeEarned          = "badge_earned"
	TypeTaskCompleted        = "task_completed"
	TypeLevelUp              = "level_up"
	TypeWeeklyRanking        = "weekly_ranking"
	TypeProfileViewsDigest   = "profile_views_digest"
)

// Sink creates notifications. Delivery is the sink's concern.
type Sink interface {
	Create(ctx context.Context, userID, notificationType string, params map[string]string) error
}

// Notice is one notification to create.
type Notice struct {
	UserID string
	Type   string
	Params map[string]string
}

// Input is what the emitter knows about one finished dispatch.
type Input struct {
	EventType string
	UserID    string
	Payload   v1.Payload
	Result    v1.Result
}

type mapper func(ctx context.Context, e *Emitter, in Input) ([]Notice, error)

// mappings is the event type to notification table.
var mappings = map[string]mapper{
	rules.EventDailyLogin:        loginNotices,
	rules.EventFollowAccepted:    followNotices,
	rules.EventHighfiveSent:      highfiveNotices,
	rules.EventCommentCreated:    commentNotices,
	rules.EventCommentLiked:      likeNotices,
	rules.EventBlogPointsClaimed: completedNotices,
	rules.EventDietCompleted:     completedNotices,
	rules.EventExerciseCompleted: completedNotices,
	rules.EventCircleJoined:      circleJoinedNotices,
	rules.EventRatingSubmitted:   ratingNotices,
}

// Emitter is the NotificationEmitter.
type Emitter struct {
	sink    Sink
	content content.Lookup
}

// NewEmitter builds an Emitter. lookup resolves the authors of commented,
// liked and rated content.
func NewEmitter(sink Sink, lookup content.Lookup) *Emitter {
	return &Emitter{sink: sink, content: lookup}
}

// Notices returns every notification a dispatch produces, without sending them.
func (e *Emitter) Notices(ctx context.Context, in Input) ([]Notice, error) {
	var out []Notice
	var errs []error
	if m, ok := mappings[in.EventType]; ok {
		notices, err := m(ctx, e, in)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, notices...)
	}
	if in.Result.Milestone != nil {
		out = append(out, Notice{
			UserID: in.Result.Milestone.RecipientID,
			Type:   TypeCommentLikeMilestone,
			Params: map[string]string{
				"milestone": strconv.Itoa(in.Result.Milestone.Value),
				"points":    strconv.Itoa(in.Result.Milestone.Points),
			},
		})
	}
	return append(out, rewardNotices(in)...), errors.Join(errs...)
}

// Emit creates the notifications of one dispatch. Failures are logged and
// returned joined; they never undo the dispatch.
func (e *Emitter) Emit(ctx context.Context, in Input) (int, error) {
	notices, err := e.Notices(ctx, in)
	errs := []error{err}

	sent := 0
	for _, n := range notices {
		if n.UserID == "" {
			continue
		}
		if err := e.sink.Create(ctx, n.UserID, n.Type, n.Params); err != nil {
			slog.Warn("[Notifier] Failed to create notification",
				"user_id", n.UserID,
				"type", n.Type,
				"error", err)
			errs = append(errs, fmt.Errorf("%s for %s: %w", n.Type, n.UserID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Send creates a single notification, as the digest jobs do.
func (e *Emitter) Send(ctx context.Context, n Notice) error {
	return e.sink.Create(ctx, n.UserID, n.Type, n.Params)
}

func (e *Emitter) author(ctx context.Context, entityType, entityID string) (content.Entity, bool, error) {
	if e.content == nil || entityID == "" {
		return content.Entity{}, false, nil
	}
	ent, err := e.content.Entity(ctx, entityType, entityID)
	if errors.Is(err, content.ErrNotFound) {
		return content.Entity{}, false, nil
	}
	if err != nil {
		return content.Entity{}, false, fmt.Errorf("resolve %s %s: %w", entityType, entityID, err)
	}
	return ent, ent.AuthorID != "", nil
}

func loginNotices(_ context.Context, _ *Emitter, in Input) ([]Notice, error) {
	s := in.Result.Streak
	switch {
	case s == nil:
		return nil, nil
	case s.IsNewMilestone:
		return []Notice{{UserID: in.UserID, Type: TypeStreakMilestone, Params: map[string]string{
			"streak": strconv.Itoa(s.Milestone),
			"points": strconv.Itoa(s.BonusPoints),
		}}}, nil
	case s.Current > 1:
		return []Notice{{UserID: in.UserID, Type: TypeStreakContinued, Params: map[string]string{
			"streak": strconv.Itoa(s.Current),
		}}}, nil
	}
	return nil, nil
}

func followNotices(_ context.Context, _ *Emitter, in Input) ([]Notice, error) {
	follower := in.Payload.ContextString("follower_id")
	followed := in.Payload.ContextString("followed_id")
	if follower == "" || followed == "" {
		return nil, nil
	}
	return []Notice{
		{UserID: follower, Type: TypeFollowAccepted, Params: map[string]string{"actor_id": followed}},
		{UserID: followed, Type: TypeNewFollower, Params: map[string]string{"actor_id": follower}},
	}, nil
}

func highfiveNotices(_ context.Context, _ *Emitter, in Input) ([]Notice, error) {
	receiver := in.Payload.ContextString("receiver_id")
	if receiver == "" || receiver == in.UserID || in.Result.Flag != "" {
		return nil, nil
	}
	return []Notice{{UserID: receiver, Type: TypeHighfiveReceived, Params: map[string]string{"actor_id": in.UserID}}}, nil
}

// commentNotices notifies the parent comment's author of a reply, or else the
// author of the commented content.
func commentNotices(ctx context.Context, e *Emitter, in Input) ([]Notice, error) {
	if parent := in.Payload.ContextString("parent_comment_id"); parent != "" {
		ent, ok, err := e.author(ctx, content.TypeComment, parent)
		if err != nil || !ok || ent.AuthorID == in.UserID {
			return nil, err
		}
		return []Notice{{UserID: ent.AuthorID, Type: TypeCommentReply, Params: map[string]string{
			"actor_id":   in.UserID,
			"comment_id": parent,
		}}}, nil
	}

	ent, ok, err := e.author(ctx, in.Payload.EntityType, in.Payload.EntityID)
	if err != nil || !ok || ent.AuthorID == in.UserID {
		return nil, err
	}
	return []Notice{{UserID: ent.AuthorID, Type: TypeCommentOnContent, Params: map[string]string{
		"actor_id":    in.UserID,
		"entity_type": ent.Type,
		"entity_slug": ent.Slug,
	}}}, nil
}

func likeNotices(ctx context.Context, e *Emitter, in Input) ([]Notice, error) {
	if in.Result.Flag != "" {
		return nil, nil
	}
	entityType := in.Payload.EntityType
	if entityType == "" {
		entityType = content.TypeComment
	}
	ent, ok, err := e.author(ctx, entityType, in.Payload.EntityID)
	if err != nil || !ok || ent.AuthorID == in.UserID {
		return nil, err
	}
	return []Notice{{UserID: ent.AuthorID, Type: TypeCommentLiked, Params: map[string]string{
		"actor_id":   in.UserID,
		"comment_id": in.Payload.EntityID,
	}}}, nil
}

func completedNotices(_ context.Context, _ *Emitter, in Input) ([]Notice, error) {
	if in.Result.PointsEarned <= 0 {
		return nil, nil
	}
	return []Notice{{UserID: in.UserID, Type: TypeContentCompleted, Params: map[string]string{
		"label":       in.Result.Label,
		"points":      strconv.Itoa(in.Result.PointsEarned),
		"entity_type": in.Payload.EntityType,
		"entity_id":   in.Payload.EntityID,
	}}}, nil
}

func circleJoinedNotices(_ context.Context, _ *Emitter, in Input) ([]Notice, error) {
	circleID := in.Payload.ContextString("circle_id")
	if circleID == "" {
		circleID = in.Payload.EntityID
	}
	return []Notice{{UserID: in.UserID, Type: TypeCircleJoined, Params: map[string]string{"circle_id": circleID}}}, nil
}

func ratingNotices(ctx context.Context, e *Emitter, in Input) ([]Notice, error) {
	ent, ok, err := e.author(ctx, in.Payload.EntityType, in.Payload.EntityID)
	if err != nil || !ok || ent.AuthorID == in.UserID {
		return nil, err
	}
	return []Notice{{UserID: ent.AuthorID, Type: TypeRatingReceived, Params: map[string]string{
		"actor_id":    in.UserID,
		"entity_slug": ent.Slug,
		"rating":      in.Payload.ContextString("rating"),
	}}}, nil
}

// rewardNotices covers outcomes any event type can produce.
func rewardNotices(in Input) []Notice {
	var out []Notice
	badges := in.Result.Badges
	if len(badges) == 0 && in.Result.Badge != nil {
		badges = []v1.BadgeInfo{*in.Result.Badge}
	}
	for _, b := range badges {
		out = append(out, Notice{UserID: in.UserID, Type: TypeBadgeEarned, Params: map[string]string{
			"badge_slug":  b.Slug,
			"badge_title": b.Title,
		}})
	}
	for _, t := range in.Result.Tasks {
		if !t.JustCompleted {
			continue
		}
		out = append(out, Notice{UserID: in.UserID, Type: TypeTaskCompleted, Params: map[string]string{
			"task_slug":  t.Slug,
			"task_title": t.Title,
			"points":     strconv.Itoa(t.RewardPoints),
		}})
	}
	if in.Result.LevelUp {
		out = append(out, Notice{UserID: in.UserID, Type: TypeLevelUp, Params: map[string]string{
			"level": strconv.Itoa(in.Result.Level),
		}})
	}
	return out
}
