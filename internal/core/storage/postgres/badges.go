package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
)

// ListUserBadges returns every badge row of the user.
func (a *Adapter) ListUserBadges(ctx context.Context, userID string) ([]storage.UserBadge, error) {
	rows, err := a.db.QueryContext(ctx, queryListUserBadges, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user badges: %w", err)
	}
	defer rows.Close()

	var out []storage.UserBadge
	for rows.Next() {
		b := storage.UserBadge{UserID: userID}
		if err := scanUserBadge(rows, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user badges: %w", err)
	}
	return out, nil
}

// RaiseBadgeProgress keeps the best known progress of an unearned badge.
func (a *Adapter) RaiseBadgeProgress(ctx context.Context, userID, slug string, progress int, at time.Time) (storage.UserBadge, error) {
	return a.writeBadgeProgress(ctx, userID, slug, queryRaiseBadgeProgress, userID, slug, progress, at)
}

// AddBadgeProgress adds delta to an unearned badge, capped at max.
func (a *Adapter) AddBadgeProgress(ctx context.Context, userID, slug string, delta, max int, at time.Time) (storage.UserBadge, error) {
	return a.writeBadgeProgress(ctx, userID, slug, queryAddBadgeProgress, userID, slug, delta, max, at)
}

// writeBadgeProgress runs a progress upsert. An earned badge is not updated by
// the upsert, so its stored row is read back instead.
func (a *Adapter) writeBadgeProgress(ctx context.Context, userID, slug, query string, args ...interface{}) (storage.UserBadge, error) {
	b := storage.UserBadge{UserID: userID}
	err := scanUserBadge(a.db.QueryRowContext(ctx, query, args...), &b)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storage.UserBadge{}, fmt.Errorf("failed to write badge progress: %w", err)
	}
	if err := scanUserBadge(a.db.QueryRowContext(ctx, querySelectUserBadge, userID, slug), &b); err != nil {
		return storage.UserBadge{}, fmt.Errorf("failed to read badge: %w", err)
	}
	return b, nil
}

// EarnBadge flips earned exactly once.
func (a *Adapter) EarnBadge(ctx context.Context, userID, slug string, progress int, at time.Time) error {
	var got string
	err := a.db.QueryRowContext(ctx, queryEarnBadge, userID, slug, progress, at).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to earn badge: %w", err)
	}
	return nil
}

func scanUserBadge(row scanner, b *storage.UserBadge) error {
	var earnedAt sql.NullTime
	if err := row.Scan(&b.BadgeSlug, &b.Progress, &b.Earned, &earnedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("failed to scan user badge row: %w", err)
	}
	b.EarnedAt = timePtr(earnedAt)
	return nil
}
