package postgres

import (
	"context"
	"fmt"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
)

// HighestMilestone returns the largest awarded threshold, or 0.
func (a *Adapter) HighestMilestone(ctx context.Context, userID, milestoneType, targetEntityID string) (int, error) {
	var v int
	err := a.db.QueryRowContext(ctx, queryHighestMilestone, userID, milestoneType, targetEntityID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read highest milestone: %w", err)
	}
	return v, nil
}

// RecordMilestone records one threshold. The primary key makes it at-most-once;
// a lost race is storage.ErrDuplicate.
func (a *Adapter) RecordMilestone(ctx context.Context, rec storage.MilestoneRecord) error {
	res, err := a.db.ExecContext(ctx, queryRecordMilestone,
		rec.UserID,
		rec.MilestoneType,
		rec.TargetEntityID,
		rec.Value,
		rec.Points,
		rec.AwardedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record milestone: %w", err)
	}
	return rowsAffected(res, storage.ErrDuplicate)
}
