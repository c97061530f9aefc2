package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
)

// UpdateStreak runs fn against the streak row locked FOR UPDATE, creating the
// row first when the streak has never started.
func (a *Adapter) UpdateStreak(
	ctx context.Context,
	userID, streakType string,
	initialGrace int,
	fn func(*storage.StreakState) (bool, error),
) (storage.StreakState, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.StreakState{}, fmt.Errorf("update streak: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	state := storage.StreakState{UserID: userID, StreakType: streakType}
	err = scanStreak(tx.QueryRowContext(ctx, querySelectStreakForUpdate, userID, streakType), &state)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, queryInitStreak, userID, streakType, initialGrace, time.Now().UTC()); err != nil {
			return storage.StreakState{}, fmt.Errorf("update streak: init row: %w", err)
		}
		err = scanStreak(tx.QueryRowContext(ctx, querySelectStreakForUpdate, userID, streakType), &state)
	}
	if err != nil {
		return storage.StreakState{}, fmt.Errorf("update streak: read for update: %w", err)
	}

	changed, err := fn(&state)
	if err != nil {
		return storage.StreakState{}, err
	}
	if !changed {
		return state, nil
	}

	_, err = tx.ExecContext(ctx, queryUpdateStreak,
		userID,
		streakType,
		state.Current,
		state.Longest,
		state.LastActivity,
		state.GraceRemaining,
		state.UpdatedAt,
	)
	if err != nil {
		return storage.StreakState{}, fmt.Errorf("update streak: write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.StreakState{}, fmt.Errorf("update streak: commit: %w", err)
	}
	return state, nil
}

// GetStreak returns storage.ErrNotFound for a streak that never started.
func (a *Adapter) GetStreak(ctx context.Context, userID, streakType string) (storage.StreakState, error) {
	state := storage.StreakState{UserID: userID, StreakType: streakType}
	err := scanStreak(a.db.QueryRowContext(ctx, querySelectStreak, userID, streakType), &state)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.StreakState{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.StreakState{}, fmt.Errorf("failed to read streak: %w", err)
	}
	return state, nil
}

// ResetGrace restores every streak's weekly grace allotment.
func (a *Adapter) ResetGrace(ctx context.Context, grace int) (int64, error) {
	res, err := a.db.ExecContext(ctx, queryResetGrace, grace, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset streak grace: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reset count: %w", err)
	}
	return n, nil
}

func scanStreak(row scanner, state *storage.StreakState) error {
	return row.Scan(&state.Current, &state.Longest, &state.LastActivity, &state.GraceRemaining, &state.UpdatedAt)
}
