package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/lib/pq"
)

// marshalContext encodes an event context. A nil context is stored as {}.
func marshalContext(ctx map[string]interface{}) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	return data, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans one events row. Compatible with sql.Row and sql.Rows.
func scanEventRow(row scanner) (*v1.Event, error) {
	var evt v1.Event
	var contextJSON []byte

	err := row.Scan(
		&evt.ID,
		&evt.UserID,
		&evt.Type,
		&evt.EntityType,
		&evt.EntityID,
		&contextJSON,
		&evt.Points,
		&evt.Status,
		&evt.OccurredAt,
		&evt.LoggedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &evt.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}
	return &evt, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// textArray never yields SQL NULL, so cardinality() filters stay well defined.
func textArray(values []string) interface{} {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// rowsAffected maps "no row changed" to errIfNone.
func rowsAffected(res sql.Result, errIfNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return errIfNone
	}
	return nil
}
