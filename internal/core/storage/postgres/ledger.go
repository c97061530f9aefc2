package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/google/uuid"
)

// Award appends the ledger entry and applies it to the user and circle
// aggregates in one transaction. A conflicting idempotency key rolls back
// with storage.ErrDuplicate and a taken slot key with storage.ErrSlotTaken.
func (a *Adapter) Award(ctx context.Context, entry storage.LedgerEntry, day string) (storage.Score, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Score{}, fmt.Errorf("award: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	err = tx.QueryRowContext(ctx, queryInsertLedgerEntry,
		entry.ID,
		entry.IdempotencyKey,
		entry.UserID,
		entry.EventType,
		entry.Points,
		entry.EntityType,
		entry.EntityID,
		entry.CircleID,
		entry.CreatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Score{}, storage.ErrDuplicate
	}
	if err != nil {
		return storage.Score{}, fmt.Errorf("award: insert ledger entry: %w", err)
	}

	if entry.SlotKey != "" {
		var slot string
		err = tx.QueryRowContext(ctx, queryInsertLedgerSlot, entry.SlotKey, id).Scan(&slot)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Score{}, storage.ErrSlotTaken
		}
		if err != nil {
			return storage.Score{}, fmt.Errorf("award: reserve slot: %w", err)
		}
	}

	score := storage.Score{UserID: entry.UserID}
	err = tx.QueryRowContext(ctx, queryUpsertUserScore,
		entry.UserID,
		entry.Points,
		day,
		entry.CircleID,
		entry.CreatedAt,
	).Scan(&score.TotalScore, &score.DailyScore, &score.CircleID, &score.UpdatedAt)
	if err != nil {
		return storage.Score{}, fmt.Errorf("award: upsert user score: %w", err)
	}

	if entry.CircleID != "" {
		if _, err := tx.ExecContext(ctx, queryUpsertCircleScore, entry.CircleID, entry.Points, entry.CreatedAt); err != nil {
			return storage.Score{}, fmt.Errorf("award: upsert circle score: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.Score{}, fmt.Errorf("award: commit: %w", err)
	}

	slog.Debug("[Postgres] Awarded points",
		"user_id", entry.UserID,
		"event_type", entry.EventType,
		"points", entry.Points,
		"key", entry.IdempotencyKey)
	return score, nil
}

// HasEntry reports whether the idempotency key was already used.
func (a *Adapter) HasEntry(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	if err := a.stmtHasEntry.QueryRowContext(ctx, idempotencyKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check ledger entry: %w", err)
	}
	return exists, nil
}

// CountEntriesSince counts the user's awards of eventType since the given time.
func (a *Adapter) CountEntriesSince(ctx context.Context, userID, eventType string, since time.Time) (int, error) {
	var n int
	if err := a.stmtCountEntries.QueryRowContext(ctx, userID, eventType, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}

// Score returns the user's aggregate for day; unknown users score zero.
func (a *Adapter) Score(ctx context.Context, userID, day string) (storage.Score, error) {
	score := storage.Score{UserID: userID}
	err := a.stmtSelectScore.QueryRowContext(ctx, userID, day).
		Scan(&score.TotalScore, &score.DailyScore, &score.CircleID, &score.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return score, nil
	}
	if err != nil {
		return storage.Score{}, fmt.Errorf("failed to read score: %w", err)
	}
	return score, nil
}

// TopScores returns the leaderboard head.
func (a *Adapter) TopScores(ctx context.Context, day string, limit int) ([]storage.Score, error) {
	rows, err := a.db.QueryContext(ctx, queryTopScores, day, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top scores: %w", err)
	}
	defer rows.Close()

	var out []storage.Score
	for rows.Next() {
		var s storage.Score
		if err := rows.Scan(&s.UserID, &s.TotalScore, &s.DailyScore, &s.CircleID, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}
	return out, nil
}

// CircleScore returns a circle's cumulative score; unknown circles score zero.
func (a *Adapter) CircleScore(ctx context.Context, circleID string) (int, error) {
	var total int
	err := a.db.QueryRowContext(ctx, querySelectCircleScore, circleID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read circle score: %w", err)
	}
	return total, nil
}
