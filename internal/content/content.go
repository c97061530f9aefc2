// Package content resolves platform entities (posts, comments, workouts) the
// engine needs to know about but does not own.
package content

import (
	"context"
	"errors"
)

// TypeComment is the entity type of comments.
const TypeComment = "comment"

// ErrNotFound is returned for an entity the platform does not know.
var ErrNotFound = errors.New("entity not found")

// Entity is a post-like object.
type Entity struct {
	Type     string
	ID       string
	AuthorID string
	Slug     string
	// RewardPoints is the entity's own point value for "dynamic" scoring rules.
	RewardPoints int
	// LikeCount is the current like total (comments only).
	LikeCount int
}

// Lookup resolves entities by type and id.
type Lookup interface {
	Entity(ctx context.Context, entityType, entityID string) (Entity, error)
}

// Static is a fixed in-memory Lookup keyed by "type:id".
type Static map[string]Entity

// Key builds the Static map key for an entity.
func Key(entityType, entityID string) string {
	return entityType + ":" + entityID
}

func (s Static) Entity(_ context.Context, entityType, entityID string) (Entity, error) {
	e, ok := s[Key(entityType, entityID)]
	if !ok {
		return Entity{}, ErrNotFound
	}
	e.Type = entityType
	e.ID = entityID
	return e, nil
}
