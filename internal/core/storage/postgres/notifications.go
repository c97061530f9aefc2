package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/google/uuid"
)

// SaveNotification persists a rendered notification.
func (a *Adapter) SaveNotification(ctx context.Context, n *storage.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	params := n.Params
	if params == nil {
		params = map[string]string{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal notification params: %w", err)
	}

	_, err = a.db.ExecContext(ctx, querySaveNotification,
		n.ID, n.UserID, n.Type, n.Title, n.Body, paramsJSON, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's latest notifications, newest first.
func (a *Adapter) ListNotifications(ctx context.Context, userID string, limit int) ([]storage.Notification, error) {
	rows, err := a.db.QueryContext(ctx, queryListNotifications, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []storage.Notification
	for rows.Next() {
		var (
			n          storage.Notification
			paramsJSON []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &paramsJSON, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &n.Params); err != nil {
				return nil, fmt.Errorf("failed to unmarshal notification params: %w", err)
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return out, nil
}
