package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func istanbul(t *testing.T) Window {
	t.Helper()
	w, err := Load("Europe/Istanbul")
	require.NoError(t, err)
	return w
}

func TestWindow_DayBoundaryUsesZone(t *testing.T) {
	w := istanbul(t)

	// 22:30 UTC on Mar 1 is already Mar 2 in Istanbul (UTC+3).
	ts := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	require.Equal(t, "2026-03-02", w.DayKey(ts))
	require.Equal(t, "2026-03-01", New(time.UTC).DayKey(ts))

	start := w.DayStart(ts)
	require.Equal(t, time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC), start.UTC())
}

func TestWindow_Period(t *testing.T) {
	w := New(time.UTC)
	ts := time.Date(2026, 2, 11, 10, 35, 42, 0, time.UTC) // Wednesday

	tests := []struct {
		name      string
		period    string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name:      "daily",
			period:    Daily,
			wantStart: time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "weekly starts monday",
			period:    Weekly,
			wantStart: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monthly",
			period:    Monthly,
			wantStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{name: "unknown", period: "hourly", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := w.Period(tc.period, ts)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantStart, start)
			require.Equal(t, tc.wantEnd, end)
		})
	}
}

func TestWindow_WeekStartOnSunday(t *testing.T) {
	w := New(time.UTC)
	sunday := time.Date(2026, 2, 15, 23, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), w.WeekStart(sunday))
}

func TestWindow_DaysBetween(t *testing.T) {
	w := istanbul(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	require.Equal(t, 0, w.DaysBetween(base, base.Add(10*time.Hour)))
	require.Equal(t, 1, w.DaysBetween(base, base.Add(24*time.Hour)))
	require.Equal(t, 3, w.DaysBetween(base, base.Add(72*time.Hour)))
	require.Equal(t, -1, w.DaysBetween(base, base.Add(-24*time.Hour)))
}

func TestWindow_PreviousPeriodStart(t *testing.T) {
	w := New(time.UTC)
	ts := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	prev, err := w.PreviousPeriodStart(Monthly, ts)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), prev)

	prev, err = w.PreviousPeriodStart(Daily, ts)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), prev)
}

func TestLoad_InvalidZone(t *testing.T) {
	_, err := Load("Mars/Olympus")
	require.Error(t, err)

	w, err := Load("")
	require.NoError(t, err)
	require.Equal(t, time.UTC, w.Location())
}
