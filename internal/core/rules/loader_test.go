package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeRuleFile is a test helper that writes one rule YAML file into dir.
func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDefaults_Load(t *testing.T) {
	store, err := Defaults()
	require.NoError(t, err)

	login, ok := store.Rule(EventDailyLogin)
	require.True(t, ok)
	assert.Equal(t, PointsFixed, login.Points.Kind)
	assert.Equal(t, 5, login.Points.Fixed)
	assert.Equal(t, 1, login.DailyLimit)
	assert.True(t, login.RequiresStreak)
	assert.Equal(t, "login", login.StreakType)
	assert.NotEmpty(t, login.Fingerprint)

	blog, ok := store.Rule(EventBlogPointsClaimed)
	require.True(t, ok)
	assert.Equal(t, PointsSelect, blog.Points.Kind)
	assert.Equal(t, 15, blog.Points.Select("sticky"))
	assert.Equal(t, 5, blog.Points.Select("unknown"))

	exercise, ok := store.Rule(EventExerciseCompleted)
	require.True(t, ok)
	assert.Equal(t, PointsDynamic, exercise.Points.Kind)
	assert.Equal(t, 10, exercise.Points.Fallback)

	milestone, ok := store.Rule(EventStreakMilestone)
	require.True(t, ok)
	assert.True(t, milestone.Synthetic)

	assert.Len(t, store.StreakBonuses(), 5)
	assert.Equal(t, 500, store.Setting(SettingDailyScoreCap))
	assert.False(t, store.FlagEnabled(FlagDailyScoreCap))
	assert.Equal(t, 0, store.Levels()[0])

	types := map[ConditionType]bool{}
	for _, b := range store.Badges() {
		types[b.Condition.Type()] = true
	}
	for _, ct := range []ConditionType{
		CondCount, CondCountUniqueDays, CondStreak, CondConsecutiveWeeks, CondCountInPeriod,
		CondComeback, CondCircleContribution, CondCircleHero, CondCountUniqueUsers, CondTaskRewards,
	} {
		assert.True(t, types[ct], "no default badge uses %s", ct)
	}

	regular, ok := store.Badge("workout_regular")
	require.True(t, ok)
	assert.True(t, regular.ContributionOnly())
	devotee, ok := store.Badge("task_devotee")
	require.True(t, ok)
	assert.False(t, devotee.ContributionOnly())

	social, ok := store.Badge("social_butterfly")
	require.True(t, ok)
	cond, ok := social.Condition.Condition.(UniqueUsersCondition)
	require.True(t, ok)
	assert.Equal(t, "receiver_id", cond.KeyFor(EventHighfiveSent))
	assert.Equal(t, "counterpart_id", cond.KeyFor(EventFollowAccepted))

	tasks := store.StaticTasks()
	require.NotEmpty(t, tasks)
	for _, task := range tasks {
		assert.True(t, task.IsActive, task.Slug)
		assert.Equal(t, SourceStatic, task.Source)
	}

	_, ok = store.Template("streak_milestone")
	assert.True(t, ok)
}

func TestLoad_OverrideReplacesDefault(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "login.yaml", `
scoring_rules:
  daily_login:
    label: Check-in
    points: 7
    daily_limit: 1
flags:
  enable_daily_score_cap: true
`)

	store, err := Load(dir)
	require.NoError(t, err)

	login, ok := store.Rule(EventDailyLogin)
	require.True(t, ok)
	assert.Equal(t, 7, login.Points.Fixed)
	assert.False(t, login.RequiresStreak)
	assert.Equal(t, "Check-in", store.Label(EventDailyLogin))
	assert.True(t, store.FlagEnabled(FlagDailyScoreCap))

	// Untouched defaults survive.
	_, ok = store.Rule(EventHighfiveSent)
	assert.True(t, ok)

	defaults, err := Defaults()
	require.NoError(t, err)
	assert.NotEqual(t, defaults.Fingerprint(), store.Fingerprint())
}

func TestLoad_MissingDirIsValid(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	_, ok := store.Rule(EventDailyLogin)
	assert.True(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name: "duplicate rule across files",
			files: map[string]string{
				"a.yaml": "scoring_rules:\n  daily_login:\n    points: 1\n",
				"b.yaml": "scoring_rules:\n  daily_login:\n    points: 2\n",
			},
		},
		{
			name: "unknown condition type",
			files: map[string]string{
				"a.yaml": "badges:\n  x:\n    title: X\n    max_progress: 1\n    condition: {type: NOPE}\n",
			},
		},
		{
			name: "invalid condition",
			files: map[string]string{
				"a.yaml": "badges:\n  x:\n    title: X\n    max_progress: 1\n    condition: {type: COUNT, target: 1}\n",
			},
		},
		{
			name: "unknown reward badge",
			files: map[string]string{
				"a.yaml": `
tasks:
  t1:
    title: T
    task_type: daily
    target_value: 1
    scoring_event_types: [daily_login]
    badge_progress_contribution: 10
    reward_badge_id: missing
`,
			},
		},
		{
			name: "reward badge evaluated from history",
			files: map[string]string{
				"a.yaml": `
tasks:
  t1:
    title: T
    task_type: daily
    target_value: 1
    scoring_event_types: [daily_login]
    badge_progress_contribution: 10
    reward_badge_id: task_devotee
`,
			},
		},
		{
			name: "streak without type",
			files: map[string]string{
				"a.yaml": "scoring_rules:\n  x:\n    points: 1\n    requires_streak: true\n",
			},
		},
		{
			name: "bad points scalar",
			files: map[string]string{
				"a.yaml": "scoring_rules:\n  x:\n    points: lots\n",
			},
		},
		{
			name: "descending streak bonuses",
			files: map[string]string{
				"a.yaml": "streak_bonuses:\n  - {value: 7, points: 10}\n  - {value: 3, points: 5}\n",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				writeRuleFile(t, dir, name, content)
			}
			_, err := Load(dir)
			require.Error(t, err)
		})
	}
}

func TestPointsSpec_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PointsSpec
		wantErr bool
	}{
		{name: "fixed", input: "5", want: FixedPoints(5)},
		{name: "dynamic scalar", input: "dynamic", want: PointsSpec{Kind: PointsDynamic}},
		{name: "dynamic mapping", input: "{dynamic: true, fallback: 3}", want: PointsSpec{Kind: PointsDynamic, Fallback: 3}},
		{
			name:  "select",
			input: "{select_by: post_kind, choices: {sticky: 15}, default: sticky}",
			want: PointsSpec{
				Kind:          PointsSelect,
				SelectBy:      "post_kind",
				Choices:       map[string]int{"sticky": 15},
				DefaultChoice: "sticky",
			},
		},
		{name: "bad scalar", input: "many", wantErr: true},
		{name: "empty mapping", input: "{fallback: 3}", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got PointsSpec
			err := yaml.Unmarshal([]byte(tc.input), &got)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMilestoneSchedule_HighestAtOrBelow(t *testing.T) {
	store, err := Defaults()
	require.NoError(t, err)
	schedule, ok := store.Milestone(MilestoneCommentLikes)
	require.True(t, ok)

	tests := []struct {
		value     int
		wantFound bool
		want      Threshold
	}{
		{value: 2, wantFound: false},
		{value: 3, wantFound: true, want: Threshold{Value: 3, Points: 1}},
		{value: 12, wantFound: true, want: Threshold{Value: 10, Points: 2}},
		{value: 180, wantFound: true, want: Threshold{Value: 150, Points: 5}},
		{value: 200, wantFound: true, want: Threshold{Value: 200, Points: 5}},
		{value: 349, wantFound: true, want: Threshold{Value: 300, Points: 5}},
	}
	for _, tc := range tests {
		got, found := schedule.HighestAtOrBelow(tc.value)
		require.Equal(t, tc.wantFound, found, "value=%d", tc.value)
		if found {
			assert.Equal(t, tc.want, got, "value=%d", tc.value)
		}
	}
}

func TestStore_WithFlagOverrides(t *testing.T) {
	store, err := NewStore(Document{Flags: map[string]bool{"a": true}})
	require.NoError(t, err)

	over := store.WithFlagOverrides(map[string]bool{"a": false, "b": true})
	assert.False(t, over.FlagEnabled("a"))
	assert.True(t, over.FlagEnabled("b"))
	assert.True(t, store.FlagEnabled("a"))
	assert.False(t, store.FlagEnabled("b"))
}

func TestStore_LabelFallsBackToEventType(t *testing.T) {
	store, err := NewStore(Document{
		ScoringRules: map[string]ScoringRule{"water_logged": {Label: "Water", Points: FixedPoints(1)}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Water", store.Label("water_logged"))
	assert.Equal(t, "mystery_event", store.Label("mystery_event"))

	r, ok := store.Rule("water_logged")
	require.True(t, ok)
	assert.Equal(t, "water_logged", r.EventType)
}

func TestNotificationTemplate_Render(t *testing.T) {
	tpl := NotificationTemplate{Title: "{streak} day streak!", Body: "+{points} points, {missing}"}
	title, body := tpl.Render(map[string]string{"streak": "7", "points": "10"})
	assert.Equal(t, "7 day streak!", title)
	assert.Equal(t, "+10 points, {missing}", body)
}

func TestTaskDefinition_PeriodType(t *testing.T) {
	assert.Equal(t, "daily", TaskDefinition{TaskType: TaskDaily}.PeriodType())
	assert.Equal(t, "weekly", TaskDefinition{TaskType: TaskCircle}.PeriodType())
	assert.Equal(t, "monthly", TaskDefinition{TaskType: TaskCircle, Period: "monthly"}.PeriodType())
	assert.Equal(t, PeriodLifetime, TaskDefinition{TaskType: TaskMentor}.PeriodType())
}
