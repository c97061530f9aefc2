package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/scoreboard/internal/content"
	"github.com/aevon-lab/scoreboard/internal/identity"
)

// The platform owns user_profiles, content_entities and profile_views; the
// engine only reads them.

var (
	_ identity.Directory = (*Adapter)(nil)
	_ content.Lookup     = (*Adapter)(nil)
)

// Profile reads a user's role and circle. Unknown users get a zero profile.
func (a *Adapter) Profile(ctx context.Context, userID string) (identity.Profile, error) {
	p := identity.Profile{UserID: userID}
	err := a.db.QueryRowContext(ctx, querySelectProfile, userID).Scan(&p.IsPro, &p.CircleID)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return identity.Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	return p, nil
}

// Entity resolves a content entity.
func (a *Adapter) Entity(ctx context.Context, entityType, entityID string) (content.Entity, error) {
	e := content.Entity{Type: entityType, ID: entityID}
	err := a.db.QueryRowContext(ctx, querySelectEntity, entityType, entityID).
		Scan(&e.AuthorID, &e.Slug, &e.RewardPoints, &e.LikeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Entity{}, content.ErrNotFound
	}
	if err != nil {
		return content.Entity{}, fmt.Errorf("failed to read entity %s/%s: %w", entityType, entityID, err)
	}
	return e, nil
}

// ProfileViews counts profile views per viewed user in [since, until).
func (a *Adapter) ProfileViews(ctx context.Context, since, until time.Time) (map[string]int, error) {
	rows, err := a.db.QueryContext(ctx, queryProfileViews, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile views: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			n      int
		)
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan profile view row: %w", err)
		}
		out[userID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile views: %w", err)
	}
	return out, nil
}
