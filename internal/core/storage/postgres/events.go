package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/google/uuid"
)

// AppendEvent writes one event log row, assigning an ID if the event has none.
// Returns storage.ErrDuplicate if the ID was already logged.
func (a *Adapter) AppendEvent(ctx context.Context, event *v1.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	contextJSON, err := marshalContext(event.Context)
	if err != nil {
		return err
	}

	var id string
	err = a.stmtAppendEvent.QueryRowContext(ctx,
		event.ID,
		event.UserID,
		event.Type,
		event.EntityType,
		event.EntityID,
		contextJSON,
		event.Points,
		event.Status,
		event.OccurredAt,
		event.LoggedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// CountEvents counts the user's events matching q.
func (a *Adapter) CountEvents(ctx context.Context, q storage.EventQuery) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, queryCountEvents,
		q.UserID, textArray(q.Types), nullTime(q.Since), nullTime(q.Until), q.Status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// ListEvents returns the user's events matching q in occurrence order.
func (a *Adapter) ListEvents(ctx context.Context, q storage.EventQuery) ([]*v1.Event, error) {
	rows, err := a.db.QueryContext(ctx, queryListEvents,
		q.UserID, textArray(q.Types), nullTime(q.Since), nullTime(q.Until), q.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*v1.Event
	for rows.Next() {
		event, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// DeleteEventsBefore removes event log rows logged before the cutoff.
func (a *Adapter) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, queryDeleteEventsBefore, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted event count: %w", err)
	}
	return n, nil
}
