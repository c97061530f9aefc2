package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
)

// AddContribution records a contribution and returns the instance total.
func (a *Adapter) AddContribution(ctx context.Context, c storage.CircleContribution) (int, error) {
	var total int
	err := a.db.QueryRowContext(ctx, queryAddContribution,
		c.CircleID,
		c.UserID,
		c.TaskSlug,
		c.PeriodStart,
		c.Amount,
		c.CreatedAt,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to add circle contribution: %w", err)
	}
	return total, nil
}

// ContributionShares returns each member's summed contribution, largest first.
func (a *Adapter) ContributionShares(ctx context.Context, circleID, slug string, periodStart time.Time) ([]storage.ContributionShare, error) {
	rows, err := a.db.QueryContext(ctx, queryContributionShares, circleID, slug, periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query contribution shares: %w", err)
	}
	defer rows.Close()

	var out []storage.ContributionShare
	for rows.Next() {
		var s storage.ContributionShare
		if err := rows.Scan(&s.UserID, &s.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan contribution share: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contribution shares: %w", err)
	}
	return out, nil
}

// CompleteCircleTask records the completion of a circle task instance once.
func (a *Adapter) CompleteCircleTask(ctx context.Context, c storage.CircleTaskCompletion) error {
	var id string
	err := a.db.QueryRowContext(ctx, queryCompleteCircleTask,
		c.CircleID,
		c.TaskSlug,
		c.PeriodStart,
		c.CompletedBy,
		c.CompletedAt,
		c.Total,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to complete circle task: %w", err)
	}
	return nil
}

// UserCircleTasks returns the user's share of every instance they contributed to.
func (a *Adapter) UserCircleTasks(ctx context.Context, userID string) ([]storage.CircleTaskShare, error) {
	rows, err := a.db.QueryContext(ctx, queryUserCircleTasks, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user circle tasks: %w", err)
	}
	defer rows.Close()

	var out []storage.CircleTaskShare
	for rows.Next() {
		var (
			s           storage.CircleTaskShare
			completedBy sql.NullString
			completedAt sql.NullTime
			total       sql.NullInt64
		)
		err := rows.Scan(&s.CircleID, &s.TaskSlug, &s.PeriodStart, &s.UserAmount, &s.TotalAmount,
			&completedBy, &completedAt, &total)
		if err != nil {
			return nil, fmt.Errorf("failed to scan circle task share: %w", err)
		}
		if completedAt.Valid {
			s.Completion = &storage.CircleTaskCompletion{
				CircleID:    s.CircleID,
				TaskSlug:    s.TaskSlug,
				PeriodStart: s.PeriodStart,
				CompletedBy: completedBy.String,
				CompletedAt: completedAt.Time,
				Total:       int(total.Int64),
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circle task shares: %w", err)
	}
	return out, nil
}
