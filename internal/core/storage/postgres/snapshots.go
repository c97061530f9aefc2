package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
)

// CreateSnapshots freezes every aggregate for [start, end). Re-running for
// the same period creates nothing.
func (a *Adapter) CreateSnapshots(ctx context.Context, periodType string, start, end, at time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, queryCreateSnapshots, periodType, start, end, at)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s snapshots: %w", periodType, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot count: %w", err)
	}
	return n, nil
}

// ListSnapshots returns a period's snapshots, best period score first.
func (a *Adapter) ListSnapshots(ctx context.Context, periodType string, start time.Time, limit int) ([]storage.ScoreSnapshot, error) {
	rows, err := a.db.QueryContext(ctx, queryListSnapshots, periodType, start, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []storage.ScoreSnapshot
	for rows.Next() {
		var s storage.ScoreSnapshot
		if err := rows.Scan(&s.UserID, &s.PeriodType, &s.PeriodStart, &s.TotalScore, &s.PeriodScore, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}
