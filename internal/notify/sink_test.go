package notify

import (
	"context"
	"testing"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSink_RendersTemplate(t *testing.T) {
	ruleStore, err := rules.Defaults()
	require.NoError(t, err)
	store := memory.New()

	sink := NewStoreSink(store, ruleStore)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	sink.nowFn = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, sink.Create(ctx, "u1", TypeStreakMilestone, map[string]string{"streak": "7", "points": "10"}))

	got, err := store.ListNotifications(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "7 day streak!", got[0].Title)
	assert.Equal(t, "You earned 10 bonus points for your 7 day streak.", got[0].Body)
	assert.Equal(t, now, got[0].CreatedAt)
}

func TestStoreSink_UnknownType(t *testing.T) {
	ruleStore, err := rules.Defaults()
	require.NoError(t, err)
	err = NewStoreSink(memory.New(), ruleStore).Create(context.Background(), "u1", "carrier_pigeon", nil)
	require.Error(t, err)
}
