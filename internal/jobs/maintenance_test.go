package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/idempotency"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/storage/memory"
	"github.com/aevon-lab/scoreboard/internal/core/timewindow"
	notifymocks "github.com/aevon-lab/scoreboard/internal/mocks/notify"
	"github.com/aevon-lab/scoreboard/internal/notify"
	"github.com/aevon-lab/scoreboard/internal/scoring"
	"github.com/aevon-lab/scoreboard/internal/streak"
	"github.com/aevon-lab/scoreboard/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	lastMonday = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	thisMonday = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
)

type viewCounts map[string]int

func (v viewCounts) ProfileViews(context.Context, time.Time, time.Time) (map[string]int, error) {
	return v, nil
}

func newMaintenance(t *testing.T, sink notify.Sink, views ProfileViewSource) (*Maintenance, *memory.Store) {
	t.Helper()
	ruleStore, err := rules.Defaults()
	require.NoError(t, err)

	store := memory.New()
	w := timewindow.New(time.UTC)
	keyer := idempotency.New(w)
	scores := scoring.NewService(store, ruleStore, keyer, w, nil)

	var notifier Notifier
	if sink != nil {
		notifier = notify.NewEmitter(sink, nil)
	}
	m := NewMaintenance(
		store,
		store,
		streak.NewTracker(store, ruleStore, w),
		tasks.NewTracker(store, ruleStore, scores, keyer, w, nil),
		notifier,
		views,
		w,
		Options{DigestSize: 2, Workers: 2},
	)
	m.nowFn = func() time.Time { return thisMonday.Add(5 * time.Minute) }
	return m, store
}

func award(t *testing.T, store *memory.Store, userID string, points int, at time.Time) {
	t.Helper()
	_, err := store.Award(context.Background(), storage.LedgerEntry{
		IdempotencyKey: userID + at.String(),
		UserID:         userID,
		EventType:      "test",
		Points:         points,
		CreatedAt:      at,
	}, at.Format(timewindow.DayLayout))
	require.NoError(t, err)
}

func TestMaintenance_WeeklySnapshotIsIdempotent(t *testing.T) {
	m, store := newMaintenance(t, nil, nil)
	ctx := context.Background()

	award(t, store, "alice", 40, lastMonday.AddDate(0, 0, -3))
	award(t, store, "alice", 10, lastMonday.Add(time.Hour))
	award(t, store, "bob", 25, lastMonday.AddDate(0, 0, 2))

	n, err := m.Snapshot(ctx, timewindow.Weekly, thisMonday)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = m.Snapshot(ctx, timewindow.Weekly, thisMonday)
	require.NoError(t, err)
	assert.Zero(t, n)

	snaps, err := store.ListSnapshots(ctx, timewindow.Weekly, lastMonday, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "bob", snaps[0].UserID)
	assert.Equal(t, 25, snaps[0].PeriodScore)
	assert.Equal(t, 50, snaps[1].TotalScore)
	assert.Equal(t, 10, snaps[1].PeriodScore)
}

func TestMaintenance_WeeklyRankingNotifiesTopUsers(t *testing.T) {
	sink := notifymocks.NewSink(t)
	sink.EXPECT().Create(mock.Anything, "bob", notify.TypeWeeklyRanking, map[string]string{"rank": "1", "score": "30"}).Return(nil).Once()
	sink.EXPECT().Create(mock.Anything, "alice", notify.TypeWeeklyRanking, map[string]string{"rank": "2", "score": "20"}).Return(nil).Once()

	m, store := newMaintenance(t, sink, nil)
	ctx := context.Background()
	award(t, store, "alice", 20, lastMonday.Add(time.Hour))
	award(t, store, "bob", 30, lastMonday.Add(2*time.Hour))
	award(t, store, "carol", 5, lastMonday.Add(3*time.Hour))

	_, err := m.Snapshot(ctx, timewindow.Weekly, thisMonday)
	require.NoError(t, err)

	sent, err := m.WeeklyRanking(ctx, thisMonday)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestMaintenance_DigestContinuesPastFailures(t *testing.T) {
	sink := notifymocks.NewSink(t)
	sink.EXPECT().Create(mock.Anything, "alice", notify.TypeProfileViewsDigest, map[string]string{"views": "4"}).Return(errors.New("smtp down")).Once()
	sink.EXPECT().Create(mock.Anything, "bob", notify.TypeProfileViewsDigest, map[string]string{"views": "1"}).Return(nil).Once()

	m, _ := newMaintenance(t, sink, viewCounts{"alice": 4, "bob": 1, "carol": 0})

	sent, err := m.ProfileViewDigest(context.Background(), thisMonday)
	require.Error(t, err)
	assert.Equal(t, 1, sent)
}

func TestMaintenance_CleanupEvents(t *testing.T) {
	m, store := newMaintenance(t, nil, nil)
	ctx := context.Background()

	for _, age := range []time.Duration{100 * 24 * time.Hour, 91 * 24 * time.Hour, 10 * 24 * time.Hour} {
		at := thisMonday.Add(-age)
		require.NoError(t, store.AppendEvent(ctx, &v1.Event{Type: "x", UserID: "alice", OccurredAt: at, LoggedAt: at, Status: v1.StatusAccepted}))
	}

	n, err := m.CleanupEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := store.CountEvents(ctx, storage.EventQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestMaintenance_Jobs(t *testing.T) {
	without, _ := newMaintenance(t, nil, nil)
	names := func(jobs []Job) []string {
		var out []string
		for _, j := range jobs {
			out = append(out, j.Name)
		}
		return out
	}
	assert.NotContains(t, names(without.Jobs()), "weekly_ranking_digest")

	with, _ := newMaintenance(t, notifymocks.NewSink(t), viewCounts{})
	got := names(with.Jobs())
	assert.Contains(t, got, "profile_views_digest")
	assert.Less(t, indexOf(got, "snapshot_weekly"), indexOf(got, "weekly_ranking_digest"))
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
