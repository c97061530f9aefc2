package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/lib/pq"
)

// IncrementProgress creates or advances a task instance. When the instance is
// already completed or expired the stored row is returned with changed=false.
func (a *Adapter) IncrementProgress(ctx context.Context, p storage.TaskProgress, delta int, at time.Time) (storage.TaskProgress, bool, error) {
	out := storage.TaskProgress{UserID: p.UserID, TaskSlug: p.TaskSlug, PeriodStart: p.PeriodStart}

	var completedAt sql.NullTime
	err := a.db.QueryRowContext(ctx, queryIncrementTaskProgress,
		p.UserID,
		p.TaskSlug,
		p.PeriodStart,
		p.PeriodEnd,
		delta,
		p.TargetValue,
		at,
	).Scan(&out.PeriodEnd, &out.CurrentValue, &out.TargetValue, &out.IsCompleted, &completedAt, &out.Status, &out.UpdatedAt)
	if err == nil {
		out.CompletedAt = timePtr(completedAt)
		return out, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storage.TaskProgress{}, false, fmt.Errorf("failed to increment task progress: %w", err)
	}

	err = a.db.QueryRowContext(ctx, querySelectTaskProgress, p.UserID, p.TaskSlug, p.PeriodStart).
		Scan(&out.PeriodEnd, &out.CurrentValue, &out.TargetValue, &out.IsCompleted, &completedAt, &out.Status, &out.UpdatedAt)
	if err != nil {
		return storage.TaskProgress{}, false, fmt.Errorf("failed to read task progress: %w", err)
	}
	out.CompletedAt = timePtr(completedAt)
	return out, false, nil
}

// MarkCompleted is a compare-and-set on is_completed.
func (a *Adapter) MarkCompleted(ctx context.Context, userID, slug string, periodStart, at time.Time) error {
	res, err := a.db.ExecContext(ctx, queryMarkTaskCompleted, userID, slug, periodStart, at)
	if err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}
	return rowsAffected(res, storage.ErrDuplicate)
}

// ListProgress returns the user's instances whose period contains at.
func (a *Adapter) ListProgress(ctx context.Context, userID string, at time.Time) ([]storage.TaskProgress, error) {
	rows, err := a.db.QueryContext(ctx, queryListTaskProgress, userID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to query task progress: %w", err)
	}
	defer rows.Close()

	var out []storage.TaskProgress
	for rows.Next() {
		var (
			p           storage.TaskProgress
			completedAt sql.NullTime
		)
		err := rows.Scan(&p.UserID, &p.TaskSlug, &p.PeriodStart, &p.PeriodEnd, &p.CurrentValue, &p.TargetValue,
			&p.IsCompleted, &completedAt, &p.Status, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task progress row: %w", err)
		}
		p.CompletedAt = timePtr(completedAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task progress: %w", err)
	}
	return out, nil
}

// ExpireTasks closes unfinished instances of the given tasks whose period has ended.
func (a *Adapter) ExpireTasks(ctx context.Context, slugs []string, now time.Time) (int64, error) {
	if len(slugs) == 0 {
		return 0, nil
	}
	res, err := a.db.ExecContext(ctx, queryExpireTasks, pq.Array(slugs), now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read expired task count: %w", err)
	}
	return n, nil
}

// SaveDefinition upserts a dynamic task definition.
func (a *Adapter) SaveDefinition(ctx context.Context, def rules.TaskDefinition) error {
	_, err := a.db.ExecContext(ctx, queryUpsertTaskDefinition,
		def.Slug,
		def.Title,
		def.TaskType,
		def.TargetValue,
		pq.Array(def.ScoringEventTypes),
		def.RewardScore,
		def.BadgeProgressContribution,
		def.RewardBadgeID,
		def.IsActive,
		def.ProgressField,
		def.Period,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save task definition %q: %w", def.Slug, err)
	}
	return nil
}

// ListDefinitions returns every stored (dynamic) task definition.
func (a *Adapter) ListDefinitions(ctx context.Context) ([]rules.TaskDefinition, error) {
	rows, err := a.db.QueryContext(ctx, queryListTaskDefinitions)
	if err != nil {
		return nil, fmt.Errorf("failed to query task definitions: %w", err)
	}
	defer rows.Close()

	var out []rules.TaskDefinition
	for rows.Next() {
		var def rules.TaskDefinition
		err := rows.Scan(&def.Slug, &def.Title, &def.TaskType, &def.TargetValue, pq.Array(&def.ScoringEventTypes),
			&def.RewardScore, &def.BadgeProgressContribution, &def.RewardBadgeID, &def.IsActive,
			&def.ProgressField, &def.Period)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task definition row: %w", err)
		}
		def.Source = rules.SourceDynamic
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task definitions: %w", err)
	}
	return out, nil
}
