package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/badges"
	"github.com/aevon-lab/scoreboard/internal/circle"
	"github.com/aevon-lab/scoreboard/internal/content"
	"github.com/aevon-lab/scoreboard/internal/core/idempotency"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/storage/memory"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
	"github.com/aevon-lab/scoreboard/internal/identity"
	"github.com/aevon-lab/scoreboard/internal/milestone"
	identitymocks "github.com/aevon-lab/scoreboard/internal/mocks/identity"
	notifymocks "github.com/aevon-lab/scoreboard/internal/mocks/notify"
	"github.com/aevon-lab/scoreboard/internal/notify"
	"github.com/aevon-lab/scoreboard/internal/scoring"
	"github.com/aevon-lab/scoreboard/internal/streak"
	"github.com/aevon-lab/scoreboard/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	window timewindow.Window
	keyer  idempotency.Keyer
	d      *Dispatcher
	now    time.Time

	// content is this fixture's own copy of comments; tests may edit it.
	content content.Static
}

type option func(*fixtureConfig)

type fixtureConfig struct {
	overrides string
	directory identity.Directory
	sink      notify.Sink
}

func withRules(yaml string) option {
	return func(c *fixtureConfig) { c.overrides = yaml }
}

func withDirectory(dir identity.Directory) option {
	return func(c *fixtureConfig) { c.directory = dir }
}

func withSink(s notify.Sink) option {
	return func(c *fixtureConfig) { c.sink = s }
}

var comments = content.Static{
	content.Key(content.TypeComment, "c1"): {AuthorID: "author", LikeCount: 2},
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	cfg := fixtureConfig{
		directory: identity.Static{
			"pro":   {IsPro: true},
			"carol": {CircleID: "c1"},
		},
	}
	for _, o := range opts {
		o(&cfg)
	}

	dir := t.TempDir()
	if cfg.overrides != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "override.yaml"), []byte(cfg.overrides), 0o600))
	}
	ruleStore, err := rules.Load(dir)
	require.NoError(t, err)

	lookup := content.Static{}
	for k, v := range comments {
		lookup[k] = v
	}

	store := memory.New()
	w := timewindow.New(time.UTC)
	keyer := idempotency.New(w)
	scores := scoring.NewService(store, ruleStore, keyer, w, scoring.ContentRewards(lookup))
	streaks := streak.NewTracker(store, ruleStore, w)
	engine := badges.NewEngine(store, store, store, streaks, ruleStore, w)
	taskTracker := tasks.NewTracker(store, ruleStore, scores, keyer, w, engine)

	sink := cfg.sink
	if sink == nil {
		sink = notify.NewStoreSink(store, ruleStore)
	}

	f := &fixture{store: store, window: w, keyer: keyer, now: monday, content: lookup}
	f.d = New(Components{
		Rules:      ruleStore,
		Keyer:      keyer,
		Scores:     scores,
		Events:     store,
		Streaks:    streaks,
		Milestones: milestone.NewEvaluator(store, ruleStore),
		Tasks:      taskTracker,
		Circles:    circle.NewTracker(store, taskTracker, scores, keyer),
		Badges:     engine,
		Notifier:   notify.NewEmitter(sink, lookup),
		Directory:  cfg.directory,
		Content:    lookup,
	})
	f.d.nowFn = func() time.Time { return f.now }
	return f
}

func (f *fixture) dispatch(t *testing.T, userID, eventType string, p v1.Payload) v1.Result {
	t.Helper()
	p.UserID = userID
	res, err := f.d.Dispatch(context.Background(), eventType, p)
	require.NoError(t, err)
	return res
}

func (f *fixture) total(t *testing.T, userID string) int {
	t.Helper()
	s, err := f.store.Score(context.Background(), userID, f.window.DayKey(f.now))
	require.NoError(t, err)
	return s.TotalScore
}

func badgeSlugs(res v1.Result) []string {
	var out []string
	for _, b := range res.Badges {
		out = append(out, b.Slug)
	}
	return out
}

func TestDispatch_FirstLogin(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "alice", rules.EventDailyLogin, v1.Payload{})
	assert.True(t, res.Success)
	assert.Equal(t, 5, res.PointsEarned)
	require.NotNil(t, res.Streak)
	assert.Equal(t, 1, res.Streak.Current)
	assert.False(t, res.Streak.IsNewMilestone)

	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "daily_login_task", res.Tasks[0].Slug)
	assert.True(t, res.Tasks[0].JustCompleted)

	assert.Contains(t, badgeSlugs(res), "first_login")
	require.NotNil(t, res.Badge)
	assert.Equal(t, 7, res.TotalScore)
	assert.Equal(t, 7, res.DailyScore)
	assert.Equal(t, 1, res.Level)
	assert.False(t, res.LevelUp)
	assert.Equal(t, "Daily login: +5 points", res.Message)

	again := f.dispatch(t, "alice", rules.EventDailyLogin, v1.Payload{})
	assert.True(t, again.Success)
	assert.Equal(t, 0, again.PointsEarned)
	assert.Equal(t, v1.FlagDailyLimitReached, again.Flag)
	assert.Equal(t, 7, again.TotalScore)
	assert.Empty(t, again.Badges)
}

func TestDispatch_StreakBonusPaidOnce(t *testing.T) {
	f := newFixture(t)

	var res v1.Result
	for day := 0; day < 7; day++ {
		f.now = monday.AddDate(0, 0, day)
		res = f.dispatch(t, "alice", rules.EventDailyLogin, v1.Payload{})
	}
	require.NotNil(t, res.Streak)
	assert.Equal(t, 7, res.Streak.Current)
	assert.True(t, res.Streak.IsNewMilestone)
	assert.Equal(t, 10, res.Streak.BonusPoints)
	assert.Equal(t, 15, res.PointsEarned)
	assert.Contains(t, badgeSlugs(res), "streak_7")
	assert.Equal(t, 7*(5+2)+10, f.total(t, "alice"))

	n, err := f.store.CountEvents(context.Background(), storage.EventQuery{
		UserID: "alice",
		Types:  []string{rules.EventStreakMilestone},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.now = monday.AddDate(0, 0, 7)
	res = f.dispatch(t, "alice", rules.EventDailyLogin, v1.Payload{})
	assert.Equal(t, 8, res.Streak.Current)
	assert.False(t, res.Streak.IsNewMilestone)
	assert.Equal(t, 5, res.PointsEarned)
}

func TestDispatch_PerEntityIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := v1.Payload{EntityType: "exercise", EntityID: "42"}

	first := f.dispatch(t, "alice", rules.EventExerciseCompleted, p)
	assert.Equal(t, 10, first.PointsEarned)

	second := f.dispatch(t, "alice", rules.EventExerciseCompleted, p)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.PointsEarned)
	assert.Equal(t, v1.FlagAlreadyEarned, second.Flag)
	assert.Equal(t, 10, second.TotalScore)

	denied, err := f.store.CountEvents(context.Background(), storage.EventQuery{UserID: "alice", Status: v1.StatusDenied})
	require.NoError(t, err)
	assert.Equal(t, 1, denied)
}

func TestDispatch_ConcurrentDuplicatesAwardOnce(t *testing.T) {
	f := newFixture(t)
	p := v1.Payload{UserID: "alice", EntityType: "exercise", EntityID: "7"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	awarded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.d.Dispatch(context.Background(), rules.EventExerciseCompleted, p)
			assert.NoError(t, err)
			if res.PointsEarned > 0 {
				mu.Lock()
				awarded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, awarded)
	assert.Equal(t, 10, f.total(t, "alice"))
}

func TestDispatch_DailyLimit(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		res := f.dispatch(t, "alice", rules.EventStepsLogged, v1.Payload{})
		assert.Equal(t, 2, res.PointsEarned, "log %d", i)
	}
	res := f.dispatch(t, "alice", rules.EventStepsLogged, v1.Payload{})
	assert.Equal(t, v1.FlagDailyLimitReached, res.Flag)
	assert.Equal(t, 0, res.PointsEarned)

	f.now = monday.AddDate(0, 0, 1)
	res = f.dispatch(t, "alice", rules.EventStepsLogged, v1.Payload{})
	assert.Equal(t, 2, res.PointsEarned)
	assert.Equal(t, 2, res.DailyScore)
	assert.Equal(t, 8, res.TotalScore)
}

func TestDispatch_HighfivePairLimit(t *testing.T) {
	f := newFixture(t)
	to := func(id string) v1.Payload {
		return v1.Payload{Context: map[string]interface{}{"receiver_id": id}}
	}

	assert.Equal(t, 1, f.dispatch(t, "alice", rules.EventHighfiveSent, to("bob")).PointsEarned)
	assert.Equal(t, v1.FlagAlreadySentToday, f.dispatch(t, "alice", rules.EventHighfiveSent, to("bob")).Flag)
	assert.Equal(t, 1, f.dispatch(t, "alice", rules.EventHighfiveSent, to("dave")).PointsEarned)

	missing := f.dispatch(t, "alice", rules.EventHighfiveSent, v1.Payload{})
	assert.False(t, missing.Success)
	assert.Equal(t, string(scoring.ReasonInvalidInput), missing.Reason)
}

func TestDispatch_DailyCap(t *testing.T) {
	f := newFixture(t, withRules(`
flags:
  enable_daily_score_cap: true
settings:
  daily_score_cap_value: 12
`))

	for i := 0; i < 6; i++ {
		res := f.dispatch(t, "alice", rules.EventCommentCreated, v1.Payload{})
		require.Equal(t, 2, res.PointsEarned, "comment %d", i)
	}
	res := f.dispatch(t, "alice", rules.EventCommentCreated, v1.Payload{})
	assert.True(t, res.Success)
	assert.Equal(t, v1.FlagDailyCapReached, res.Flag)
	assert.Equal(t, 12, res.DailyScore)
}

func TestDispatch_DailyCapBoundsTaskRewards(t *testing.T) {
	f := newFixture(t, withRules(`
flags:
  enable_daily_score_cap: true
settings:
  daily_score_cap_value: 5
`))

	res := f.dispatch(t, "alice", rules.EventDailyLogin, v1.Payload{})
	require.True(t, res.Success)
	assert.Equal(t, 5, res.DailyScore)

	var login *v1.TaskInfo
	for i := range res.Tasks {
		if res.Tasks[i].Slug == "daily_login_task" {
			login = &res.Tasks[i]
		}
	}
	require.NotNil(t, login)
	assert.True(t, login.JustCompleted, "the task still completes")
	assert.Zero(t, login.RewardPoints, "nothing is left under the cap")

	score, err := f.store.Score(context.Background(), "alice", f.window.DayKey(f.now))
	require.NoError(t, err)
	assert.Equal(t, 5, score.DailyScore)
}

func TestDispatch_FeatureFlagIsHardDenial(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "alice", "challenge_completed", v1.Payload{EntityType: "challenge", EntityID: "1"})
	assert.False(t, res.Success)
	assert.Equal(t, string(scoring.ReasonFeatureDisabled), res.Reason)
	assert.Empty(t, res.Flag)
}

func TestDispatch_ProUserIsExcluded(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "pro", rules.EventDailyLogin, v1.Payload{})
	assert.True(t, res.Success)
	assert.Equal(t, v1.FlagProUser, res.Flag)
	assert.Equal(t, 0, res.PointsEarned)
	assert.Nil(t, res.Streak)
	assert.Equal(t, 0, f.total(t, "pro"))

	n, err := f.store.CountEvents(context.Background(), storage.EventQuery{UserID: "pro", Status: v1.StatusExcluded})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatch_FollowAwardsBothParticipants(t *testing.T) {
	f := newFixture(t)
	p := v1.Payload{Context: map[string]interface{}{"follower_id": "alice", "followed_id": "bob"}}

	res := f.dispatch(t, "bob", rules.EventFollowAccepted, p)
	assert.True(t, res.Success)
	require.Len(t, res.Participants, 2)
	assert.Equal(t, v1.ParticipantResult{UserID: "alice", Role: RoleFollower, PointsEarned: 1, TotalScore: 16, DailyScore: 16}, res.Participants[0])
	assert.Equal(t, v1.ParticipantResult{UserID: "bob", Role: RoleFollowed, PointsEarned: 1, TotalScore: 16, DailyScore: 16}, res.Participants[1])
	assert.Equal(t, 1, res.PointsEarned)
	assert.Equal(t, 16, res.TotalScore)

	ctx := context.Background()
	for _, role := range []struct{ user, counterpart, role string }{
		{"alice", "bob", RoleFollower},
		{"bob", "alice", RoleFollowed},
	} {
		ok, err := f.store.HasEntry(ctx, f.keyer.FollowAccepted(role.user, role.counterpart, role.role))
		require.NoError(t, err)
		assert.True(t, ok, role.role)
	}

	again := f.dispatch(t, "bob", rules.EventFollowAccepted, p)
	require.Len(t, again.Participants, 2)
	for _, part := range again.Participants {
		assert.Equal(t, 0, part.PointsEarned)
		assert.Equal(t, v1.FlagAlreadyEarned, part.Flag)
	}
	assert.Equal(t, 16, f.total(t, "alice"))
}

func TestDispatch_FollowParticipantsAreIndependent(t *testing.T) {
	f := newFixture(t)
	p := v1.Payload{Context: map[string]interface{}{"follower_id": "alice", "followed_id": "pro"}}

	res := f.dispatch(t, "pro", rules.EventFollowAccepted, p)
	assert.True(t, res.Success)
	require.Len(t, res.Participants, 2)
	assert.Equal(t, 1, res.Participants[0].PointsEarned)
	assert.Equal(t, v1.FlagProUser, res.Participants[1].Flag)
	assert.Equal(t, 0, f.total(t, "pro"))
	assert.Equal(t, v1.FlagProUser, res.Flag)
}

const followBehindFlag = `
scoring_rules:
  follow_accepted:
    label: Follow accepted
    points: 1
    feature_flag: enable_follow_points
`

func TestDispatch_FollowRejectedForBothSides(t *testing.T) {
	f := newFixture(t, withRules(followBehindFlag))
	p := v1.Payload{Context: map[string]interface{}{"follower_id": "alice", "followed_id": "bob"}}

	res := f.dispatch(t, "bob", rules.EventFollowAccepted, p)
	assert.False(t, res.Success)
	assert.Equal(t, string(scoring.ReasonFeatureDisabled), res.Reason)
	assert.Empty(t, res.Flag)
	require.Len(t, res.Participants, 2)
	for _, part := range res.Participants {
		assert.Equal(t, string(scoring.ReasonFeatureDisabled), part.Reason, part.Role)
		assert.Empty(t, part.Flag, part.Role)
		assert.Zero(t, part.PointsEarned, part.Role)
	}
	assert.Equal(t, 0, f.total(t, "alice"))
	assert.Equal(t, 0, f.total(t, "bob"))

	for _, user := range []string{"alice", "bob"} {
		denied, err := f.store.CountEvents(context.Background(), storage.EventQuery{
			UserID: user,
			Types:  []string{rules.EventFollowAccepted},
			Status: v1.StatusDenied,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, denied, user)
	}
}

func TestDispatch_FollowHardDenialOnOneSide(t *testing.T) {
	f := newFixture(t, withRules(followBehindFlag))
	p := v1.Payload{Context: map[string]interface{}{"follower_id": "alice", "followed_id": "pro"}}

	res := f.dispatch(t, "pro", rules.EventFollowAccepted, p)
	assert.True(t, res.Success, "the pro side is excluded, not rejected")
	require.Len(t, res.Participants, 2)
	assert.Equal(t, string(scoring.ReasonFeatureDisabled), res.Participants[0].Reason)
	assert.Empty(t, res.Participants[1].Reason)
	assert.Equal(t, v1.FlagProUser, res.Participants[1].Flag)
}

func TestDispatch_FollowNeedsBothIDs(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "bob", rules.EventFollowAccepted, v1.Payload{Context: map[string]interface{}{"follower_id": "alice"}})
	assert.False(t, res.Success)
	assert.Equal(t, string(scoring.ReasonInvalidInput), res.Reason)
	assert.Empty(t, res.Participants)
}

func TestDispatch_BackdatedEventsDoNotEarnPeriodBadges(t *testing.T) {
	f := newFixture(t)

	var earned []string
	for i := 0; i < 12; i++ {
		res := f.dispatch(t, "alice", rules.EventExerciseCompleted, v1.Payload{
			EntityType: "exercise",
			EntityID:   fmt.Sprintf("ex-%d", i),
			OccurredAt: monday.AddDate(0, 0, -28+7*(i/3)+i%3),
		})
		require.True(t, res.Success)
		earned = append(earned, badgeSlugs(res)...)
	}
	assert.NotContains(t, earned, "weekly_warrior")

	events, err := f.store.ListEvents(context.Background(), storage.EventQuery{
		UserID: "alice",
		Types:  []string{rules.EventExerciseCompleted},
	})
	require.NoError(t, err)
	require.Len(t, events, 12)
	assert.True(t, events[0].OccurredAt.Before(monday), "client timestamp is kept on the row")
	assert.True(t, events[0].LoggedAt.Equal(monday))
}

func TestDispatch_CommentLikeMilestonePaysAuthor(t *testing.T) {
	f := newFixture(t)
	c1 := content.Key(content.TypeComment, "c1")
	like := func(liker string, stored int) v1.Result {
		f.content[c1] = content.Entity{AuthorID: "author", LikeCount: stored}
		return f.dispatch(t, liker, rules.EventCommentLiked, v1.Payload{EntityType: content.TypeComment, EntityID: "c1"})
	}

	// The stored like count is below the first threshold.
	res := like("liker0", 2)
	assert.Nil(t, res.Milestone)

	res = like("liker1", 3)
	assert.Equal(t, 1, res.PointsEarned)
	require.NotNil(t, res.Milestone)
	assert.Equal(t, 3, res.Milestone.Value)
	assert.Equal(t, 1, res.Milestone.Points)
	assert.Equal(t, "author", res.Milestone.RecipientID)

	res = like("liker2", 12)
	require.NotNil(t, res.Milestone)
	assert.Equal(t, 10, res.Milestone.Value)
	assert.Equal(t, 2, res.Milestone.Points)

	res = like("liker3", 12)
	assert.Nil(t, res.Milestone)

	assert.Equal(t, 3, f.total(t, "author"))
	assert.Equal(t, 1, f.total(t, "liker2"))

	n, err := f.store.CountEvents(context.Background(), storage.EventQuery{
		UserID: "author",
		Types:  []string{rules.EventCommentLikeMilestone},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDispatch_LikeCountComesFromContent(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "liker", rules.EventCommentLiked, v1.Payload{
		EntityType: content.TypeComment,
		EntityID:   "c1",
		Context:    map[string]interface{}{"like_count": 150},
	})
	assert.True(t, res.Success)
	assert.Nil(t, res.Milestone, "stored count is 2")
	assert.Equal(t, 0, f.total(t, "author"))
}

func TestDispatch_WeeklyTaskCompletes(t *testing.T) {
	f := newFixture(t)

	var res v1.Result
	for i, day := range []int{0, 2, 4} {
		f.now = monday.AddDate(0, 0, day)
		res = f.dispatch(t, "alice", rules.EventExerciseCompleted, v1.Payload{EntityType: "exercise", EntityID: string(rune('a' + i))})
	}

	var weekly *v1.TaskInfo
	for i := range res.Tasks {
		if res.Tasks[i].Slug == "weekly_workouts" {
			weekly = &res.Tasks[i]
		}
	}
	require.NotNil(t, weekly)
	assert.True(t, weekly.JustCompleted)
	assert.Equal(t, 20, weekly.RewardPoints)
	assert.Equal(t, 10, res.PointsEarned)
	assert.Equal(t, 3*10+20, res.TotalScore)

	ub, err := f.store.ListUserBadges(context.Background(), "alice")
	require.NoError(t, err)
	progress := map[string]int{}
	for _, b := range ub {
		progress[b.BadgeSlug] = b.Progress
	}
	assert.Equal(t, 10, progress["workout_regular"])
	assert.Equal(t, 5, progress["task_devotee"], "one completion of 20")
}

func TestDispatch_CircleMemberContributes(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "carol", rules.EventExerciseCompleted, v1.Payload{EntityType: "exercise", EntityID: "1"})
	var circleTask *v1.TaskInfo
	for i := range res.Tasks {
		if res.Tasks[i].TaskType == rules.TaskCircle {
			circleTask = &res.Tasks[i]
		}
	}
	require.NotNil(t, circleTask)
	assert.Equal(t, 1, circleTask.CurrentValue)
	assert.Equal(t, 50, circleTask.TargetValue)

	score, err := f.store.CircleScore(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 10, score)
}

func TestDispatch_UserFromContext(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Dispatch(context.Background(), rules.EventDailyLogin, v1.Payload{})
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	res, err := f.d.Dispatch(identity.WithUser(context.Background(), "alice"), rules.EventDailyLogin, v1.Payload{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.PointsEarned)
}

func TestDispatch_UnknownTypeIsRecorded(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "alice", "mystery_event", v1.Payload{})
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.PointsEarned)
	assert.Equal(t, "mystery_event recorded", res.Message)

	n, err := f.store.CountEvents(context.Background(), storage.EventQuery{Types: []string{"mystery_event"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatch_SyntheticTypesAreRejected(t *testing.T) {
	f := newFixture(t)

	for _, et := range []string{rules.EventTaskCompleted, rules.EventStreakMilestone, ""} {
		res := f.dispatch(t, "alice", et, v1.Payload{})
		assert.False(t, res.Success, et)
		assert.Equal(t, string(scoring.ReasonInvalidInput), res.Reason, et)
	}
	assert.Equal(t, 0, f.total(t, "alice"))
}

func TestDispatch_ListenersAreIsolated(t *testing.T) {
	f := newFixture(t)

	var got []string
	f.d.Listen("water_logged", func(context.Context, string, v1.Payload, v1.Result) error {
		panic("boom")
	})
	f.d.Listen("water_logged", func(context.Context, string, v1.Payload, v1.Result) error {
		return errors.New("listener down")
	})
	f.d.Listen("water_logged", func(_ context.Context, userID string, _ v1.Payload, res v1.Result) error {
		got = append(got, userID)
		assert.Equal(t, 1, res.PointsEarned)
		return nil
	})

	res := f.dispatch(t, "alice", "water_logged", v1.Payload{})
	assert.True(t, res.Success)
	assert.Equal(t, []string{"alice"}, got)
}

func TestDispatch_SideEffectFailureKeepsAward(t *testing.T) {
	f := newFixture(t)
	f.d.RegisterSideEffect("weight_logged", func(context.Context, *Dispatcher, *Run) error {
		return errors.New("effect failed")
	})

	res := f.dispatch(t, "alice", "weight_logged", v1.Payload{})
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.PointsEarned)
	assert.Equal(t, 3, f.total(t, "alice"))
}

func TestDispatch_DirectoryFailure(t *testing.T) {
	dir := identitymocks.NewDirectory(t)
	dir.EXPECT().Profile(mock.Anything, "alice").Return(identity.Profile{}, errors.New("directory down"))
	f := newFixture(t, withDirectory(dir))

	_, err := f.d.Dispatch(context.Background(), rules.EventDailyLogin, v1.Payload{UserID: "alice"})
	require.Error(t, err)
	assert.Equal(t, 0, f.total(t, "alice"))
}

func TestDispatch_SendsNotifications(t *testing.T) {
	sink := notifymocks.NewSink(t)
	sink.EXPECT().
		Create(mock.Anything, "bob", notify.TypeHighfiveReceived, map[string]string{"actor_id": "alice"}).
		Return(nil).
		Once()
	f := newFixture(t, withSink(sink))

	res := f.dispatch(t, "alice", rules.EventHighfiveSent, v1.Payload{Context: map[string]interface{}{"receiver_id": "bob"}})
	assert.True(t, res.Success)
}

func TestDispatch_StoresRenderedNotifications(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, "bob", rules.EventFollowAccepted, v1.Payload{Context: map[string]interface{}{"follower_id": "alice", "followed_id": "bob"}})

	ctx := context.Background()
	alice, err := f.store.ListNotifications(ctx, "alice", 10)
	require.NoError(t, err)
	require.NotEmpty(t, alice)
	assert.Equal(t, notify.TypeFollowAccepted, alice[0].Type)

	bob, err := f.store.ListNotifications(ctx, "bob", 10)
	require.NoError(t, err)
	var types []string
	for _, n := range bob {
		types = append(types, n.Type)
	}
	assert.Contains(t, types, notify.TypeNewFollower)
}
