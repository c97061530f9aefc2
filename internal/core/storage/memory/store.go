// Package memory is an in-process storage.Store for tests and single-node
// runs without Postgres. It enforces the same uniqueness guards as the SQL
// schema.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/partition"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/google/uuid"
)

var _ storage.Store = (*Store)(nil)

type scoreRow struct {
	total     int
	daily     int
	day       string
	circleID  string
	updatedAt time.Time
}

type taskKey struct {
	userID string
	slug   string
	start  int64
}

type circleTaskKey struct {
	circleID string
	slug     string
	start    int64
}

type milestoneKey struct {
	userID, milestoneType, target string
	value                         int
}

type snapshotKey struct {
	userID, periodType string
	start              int64
}

// Store keeps every table in maps behind one mutex. Streak updates are
// additionally serialized per (user, streak type) stripe so the callback
// runs without holding the table lock.
type Store struct {
	mu sync.RWMutex

	events     []*v1.Event
	eventIDs   map[string]struct{}
	ledger     []storage.LedgerEntry
	ledgerKeys map[string]struct{}
	slotKeys   map[string]struct{}
	scores     map[string]*scoreRow
	circles    map[string]int

	streakLocks partition.Mutexes
	streaks     map[string]storage.StreakState

	milestones map[milestoneKey]storage.MilestoneRecord

	progress    map[taskKey]storage.TaskProgress
	definitions map[string]rules.TaskDefinition

	badges map[string]map[string]storage.UserBadge

	contributions []storage.CircleContribution
	completions   map[circleTaskKey]storage.CircleTaskCompletion

	notifications []storage.Notification
	snapshots     map[snapshotKey]storage.ScoreSnapshot
}

// New returns an empty store.
func New() *Store {
	return &Store{
		eventIDs:    make(map[string]struct{}),
		ledgerKeys:  make(map[string]struct{}),
		slotKeys:    make(map[string]struct{}),
		scores:      make(map[string]*scoreRow),
		circles:     make(map[string]int),
		streaks:     make(map[string]storage.StreakState),
		milestones:  make(map[milestoneKey]storage.MilestoneRecord),
		progress:    make(map[taskKey]storage.TaskProgress),
		definitions: make(map[string]rules.TaskDefinition),
		badges:      make(map[string]map[string]storage.UserBadge),
		completions: make(map[circleTaskKey]storage.CircleTaskCompletion),
		snapshots:   make(map[snapshotKey]storage.ScoreSnapshot),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) Award(_ context.Context, entry storage.LedgerEntry, day string) (storage.Score, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledgerKeys[entry.IdempotencyKey]; ok {
		return storage.Score{}, storage.ErrDuplicate
	}
	if entry.SlotKey != "" {
		if _, ok := s.slotKeys[entry.SlotKey]; ok {
			return storage.Score{}, storage.ErrSlotTaken
		}
		s.slotKeys[entry.SlotKey] = struct{}{}
	}
	s.ledgerKeys[entry.IdempotencyKey] = struct{}{}
	s.ledger = append(s.ledger, entry)

	row, ok := s.scores[entry.UserID]
	if !ok {
		row = &scoreRow{day: day}
		s.scores[entry.UserID] = row
	}
	if row.day != day {
		row.daily = 0
		row.day = day
	}
	row.total = floor(row.total + entry.Points)
	row.daily = floor(row.daily + entry.Points)
	if entry.CircleID != "" {
		row.circleID = entry.CircleID
		s.circles[entry.CircleID] = floor(s.circles[entry.CircleID] + entry.Points)
	}
	row.updatedAt = entry.CreatedAt

	return row.score(entry.UserID, day), nil
}

func floor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (r *scoreRow) score(userID, day string) storage.Score {
	daily := r.daily
	if r.day != day {
		daily = 0
	}
	return storage.Score{
		UserID:     userID,
		TotalScore: r.total,
		DailyScore: daily,
		CircleID:   r.circleID,
		UpdatedAt:  r.updatedAt,
	}
}

func (s *Store) HasEntry(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ledgerKeys[key]
	return ok, nil
}

func (s *Store) CountEntriesSince(_ context.Context, userID, eventType string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.ledger {
		if e.UserID == userID && e.EventType == eventType && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Score(_ context.Context, userID, day string) (storage.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.scores[userID]
	if !ok {
		return storage.Score{UserID: userID}, nil
	}
	return row.score(userID, day), nil
}

func (s *Store) TopScores(_ context.Context, day string, limit int) ([]storage.Score, error) {
	s.mu.RLock()
	out := make([]storage.Score, 0, len(s.scores))
	for id, row := range s.scores {
		out = append(out, row.score(id, day))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CircleScore(_ context.Context, circleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.circles[circleID], nil
}

// LedgerEntries returns a copy of the user's ledger in append order.
func (s *Store) LedgerEntries(userID string) []storage.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.LedgerEntry
	for _, e := range s.ledger {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) AppendEvent(_ context.Context, event *v1.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.eventIDs[event.ID]; ok {
		return storage.ErrDuplicate
	}
	s.eventIDs[event.ID] = struct{}{}

	stored := *event
	stored.Context = copyContext(event.Context)
	s.events = append(s.events, &stored)
	return nil
}

func copyContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}

func matches(e *v1.Event, q storage.EventQuery) bool {
	if e.UserID != q.UserID {
		return false
	}
	if len(q.Types) > 0 && !contains(q.Types, e.Type) {
		return false
	}
	if !q.Since.IsZero() && e.LoggedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !e.LoggedAt.Before(q.Until) {
		return false
	}
	if q.Status != "" && e.Status != q.Status {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (s *Store) CountEvents(_ context.Context, q storage.EventQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events {
		if matches(e, q) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListEvents(_ context.Context, q storage.EventQuery) ([]*v1.Event, error) {
	s.mu.RLock()
	var out []*v1.Event
	for _, e := range s.events {
		if matches(e, q) {
			c := *e
			c.Context = copyContext(e.Context)
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LoggedAt.Before(out[j].LoggedAt)
	})
	return out, nil
}

func (s *Store) DeleteEventsBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var deleted int64
	for _, e := range s.events {
		if e.LoggedAt.Before(before) {
			delete(s.eventIDs, e.ID)
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return deleted, nil
}

func streakKey(userID, streakType string) string {
	return userID + "|" + streakType
}

func (s *Store) UpdateStreak(
	_ context.Context,
	userID, streakType string,
	initialGrace int,
	fn func(*storage.StreakState) (bool, error),
) (storage.StreakState, error) {
	key := streakKey(userID, streakType)
	lock := s.streakLocks.For(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	state, ok := s.streaks[key]
	s.mu.RUnlock()
	if !ok {
		state = storage.StreakState{UserID: userID, StreakType: streakType, GraceRemaining: initialGrace}
	}

	changed, err := fn(&state)
	if err != nil {
		return storage.StreakState{}, err
	}
	if !changed && ok {
		return state, nil
	}

	s.mu.Lock()
	s.streaks[key] = state
	s.mu.Unlock()
	return state, nil
}

func (s *Store) GetStreak(_ context.Context, userID, streakType string) (storage.StreakState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.streaks[streakKey(userID, streakType)]
	if !ok {
		return storage.StreakState{}, storage.ErrNotFound
	}
	return state, nil
}

func (s *Store) ResetGrace(_ context.Context, grace int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for k, st := range s.streaks {
		if st.GraceRemaining == grace {
			continue
		}
		st.GraceRemaining = grace
		st.UpdatedAt = now
		s.streaks[k] = st
		n++
	}
	return n, nil
}

func (s *Store) HighestMilestone(_ context.Context, userID, milestoneType, target string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	highest := 0
	for k := range s.milestones {
		if k.userID == userID && k.milestoneType == milestoneType && k.target == target && k.value > highest {
			highest = k.value
		}
	}
	return highest, nil
}

func (s *Store) RecordMilestone(_ context.Context, rec storage.MilestoneRecord) error {
	key := milestoneKey{rec.UserID, rec.MilestoneType, rec.TargetEntityID, rec.Value}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.milestones[key]; ok {
		return storage.ErrDuplicate
	}
	s.milestones[key] = rec
	return nil
}

func (s *Store) IncrementProgress(_ context.Context, p storage.TaskProgress, delta int, at time.Time) (storage.TaskProgress, bool, error) {
	key := taskKey{p.UserID, p.TaskSlug, p.PeriodStart.UnixNano()}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.progress[key]
	if !ok {
		cur = storage.TaskProgress{
			UserID:      p.UserID,
			TaskSlug:    p.TaskSlug,
			PeriodStart: p.PeriodStart,
			PeriodEnd:   p.PeriodEnd,
			TargetValue: p.TargetValue,
			Status:      storage.TaskStatusActive,
		}
	} else if cur.IsCompleted || cur.Status != storage.TaskStatusActive {
		return cur, false, nil
	}

	cur.CurrentValue += delta
	if cur.CurrentValue > cur.TargetValue {
		cur.CurrentValue = cur.TargetValue
	}
	cur.UpdatedAt = at
	s.progress[key] = cur
	return cur, true, nil
}

func (s *Store) MarkCompleted(_ context.Context, userID, slug string, periodStart, at time.Time) error {
	key := taskKey{userID, slug, periodStart.UnixNano()}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.progress[key]
	if !ok || cur.IsCompleted {
		return storage.ErrDuplicate
	}
	completedAt := at
	cur.IsCompleted = true
	cur.CompletedAt = &completedAt
	cur.Status = storage.TaskStatusCompleted
	cur.UpdatedAt = at
	s.progress[key] = cur
	return nil
}

func (s *Store) ListProgress(_ context.Context, userID string, at time.Time) ([]storage.TaskProgress, error) {
	s.mu.RLock()
	var out []storage.TaskProgress
	for k, p := range s.progress {
		if k.userID == userID && !p.PeriodStart.After(at) && p.PeriodEnd.After(at) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TaskSlug < out[j].TaskSlug })
	return out, nil
}

func (s *Store) ExpireTasks(_ context.Context, slugs []string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, p := range s.progress {
		if p.Status != storage.TaskStatusActive || p.IsCompleted || p.PeriodEnd.After(now) || !contains(slugs, p.TaskSlug) {
			continue
		}
		p.Status = storage.TaskStatusExpired
		p.UpdatedAt = now
		s.progress[k] = p
		n++
	}
	return n, nil
}

func (s *Store) SaveDefinition(_ context.Context, def rules.TaskDefinition) error {
	if def.Slug == "" {
		return fmt.Errorf("task definition without slug")
	}
	def.Source = rules.SourceDynamic
	def.ScoringEventTypes = append([]string(nil), def.ScoringEventTypes...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.Slug] = def
	return nil
}

func (s *Store) ListDefinitions(_ context.Context) ([]rules.TaskDefinition, error) {
	s.mu.RLock()
	out := make([]rules.TaskDefinition, 0, len(s.definitions))
	for _, d := range s.definitions {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *Store) ListUserBadges(_ context.Context, userID string) ([]storage.UserBadge, error) {
	s.mu.RLock()
	out := make([]storage.UserBadge, 0, len(s.badges[userID]))
	for _, b := range s.badges[userID] {
		out = append(out, b)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeSlug < out[j].BadgeSlug })
	return out, nil
}

// userBadge returns the current row, creating an empty one. Caller holds mu.
func (s *Store) userBadge(userID, slug string) storage.UserBadge {
	if s.badges[userID] == nil {
		s.badges[userID] = make(map[string]storage.UserBadge)
	}
	b, ok := s.badges[userID][slug]
	if !ok {
		b = storage.UserBadge{UserID: userID, BadgeSlug: slug}
	}
	return b
}

func (s *Store) RaiseBadgeProgress(_ context.Context, userID, slug string, progress int, at time.Time) (storage.UserBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.userBadge(userID, slug)
	if b.Earned {
		return b, nil
	}
	if progress > b.Progress {
		b.Progress = progress
	}
	b.UpdatedAt = at
	s.badges[userID][slug] = b
	return b, nil
}

func (s *Store) AddBadgeProgress(_ context.Context, userID, slug string, delta, max int, at time.Time) (storage.UserBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.userBadge(userID, slug)
	if b.Earned {
		return b, nil
	}
	b.Progress += delta
	if b.Progress > max {
		b.Progress = max
	}
	b.UpdatedAt = at
	s.badges[userID][slug] = b
	return b, nil
}

func (s *Store) EarnBadge(_ context.Context, userID, slug string, progress int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.userBadge(userID, slug)
	if b.Earned {
		return storage.ErrDuplicate
	}
	earnedAt := at
	b.Earned = true
	b.EarnedAt = &earnedAt
	if progress > b.Progress {
		b.Progress = progress
	}
	b.UpdatedAt = at
	s.badges[userID][slug] = b
	return nil
}

func (s *Store) AddContribution(_ context.Context, c storage.CircleContribution) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributions = append(s.contributions, c)
	total := 0
	for _, x := range s.contributions {
		if x.CircleID == c.CircleID && x.TaskSlug == c.TaskSlug && x.PeriodStart.Equal(c.PeriodStart) {
			total += x.Amount
		}
	}
	return total, nil
}

func (s *Store) ContributionShares(_ context.Context, circleID, slug string, periodStart time.Time) ([]storage.ContributionShare, error) {
	s.mu.RLock()
	sums := make(map[string]int)
	for _, x := range s.contributions {
		if x.CircleID == circleID && x.TaskSlug == slug && x.PeriodStart.Equal(periodStart) {
			sums[x.UserID] += x.Amount
		}
	}
	s.mu.RUnlock()

	out := make([]storage.ContributionShare, 0, len(sums))
	for id, amount := range sums {
		out = append(out, storage.ContributionShare{UserID: id, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) CompleteCircleTask(_ context.Context, c storage.CircleTaskCompletion) error {
	key := circleTaskKey{c.CircleID, c.TaskSlug, c.PeriodStart.UnixNano()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.completions[key]; ok {
		return storage.ErrDuplicate
	}
	s.completions[key] = c
	return nil
}

func (s *Store) UserCircleTasks(_ context.Context, userID string) ([]storage.CircleTaskShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shares := make(map[circleTaskKey]*storage.CircleTaskShare)
	var order []circleTaskKey
	for _, x := range s.contributions {
		if x.UserID != userID {
			continue
		}
		key := circleTaskKey{x.CircleID, x.TaskSlug, x.PeriodStart.UnixNano()}
		if _, ok := shares[key]; !ok {
			shares[key] = &storage.CircleTaskShare{CircleID: x.CircleID, TaskSlug: x.TaskSlug, PeriodStart: x.PeriodStart}
			order = append(order, key)
		}
	}
	for _, x := range s.contributions {
		key := circleTaskKey{x.CircleID, x.TaskSlug, x.PeriodStart.UnixNano()}
		share, ok := shares[key]
		if !ok {
			continue
		}
		share.TotalAmount += x.Amount
		if x.UserID == userID {
			share.UserAmount += x.Amount
		}
	}

	out := make([]storage.CircleTaskShare, 0, len(order))
	for _, key := range order {
		share := *shares[key]
		if c, ok := s.completions[key]; ok {
			c := c
			share.Completion = &c
		}
		out = append(out, share)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

func (s *Store) SaveNotification(_ context.Context, n *storage.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	stored := *n
	stored.Params = make(map[string]string, len(n.Params))
	for k, v := range n.Params {
		stored.Params[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, stored)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, limit int) ([]storage.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID != userID {
			continue
		}
		out = append(out, s.notifications[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateSnapshots(_ context.Context, periodType string, start, end, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	periodScores := make(map[string]int)
	for _, e := range s.ledger {
		if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			periodScores[e.UserID] += e.Points
		}
	}

	var n int64
	for userID, row := range s.scores {
		key := snapshotKey{userID, periodType, start.UnixNano()}
		if _, ok := s.snapshots[key]; ok {
			continue
		}
		s.snapshots[key] = storage.ScoreSnapshot{
			UserID:      userID,
			PeriodType:  periodType,
			PeriodStart: start,
			TotalScore:  row.total,
			PeriodScore: periodScores[userID],
			CreatedAt:   at,
		}
		n++
	}
	return n, nil
}

func (s *Store) ListSnapshots(_ context.Context, periodType string, start time.Time, limit int) ([]storage.ScoreSnapshot, error) {
	s.mu.RLock()
	var out []storage.ScoreSnapshot
	for k, snap := range s.snapshots {
		if k.periodType == periodType && k.start == start.UnixNano() {
			out = append(out, snap)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodScore != out[j].PeriodScore {
			return out[i].PeriodScore > out[j].PeriodScore
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
