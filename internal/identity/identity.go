// Package identity resolves who is acting and whether their account earns points.
package identity

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Profile is the slice of a platform account the engine cares about.
type Profile struct {
	UserID string
	// IsPro marks professional accounts. They are tracked but never earn points.
	IsPro bool
	// CircleID is the group the user currently belongs to, if any.
	CircleID string
}

// Directory looks up user profiles. Unknown users resolve to a zero Profile
// with UserID set, not an error.
type Directory interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

type ctxKey struct{}

// WithUser returns a context carrying the acting user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the acting user id carried by ctx, or "".
func UserFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Static is a fixed in-memory Directory.
type Static map[string]Profile

func (s Static) Profile(_ context.Context, userID string) (Profile, error) {
	p, ok := s[userID]
	if !ok {
		return Profile{UserID: userID}, nil
	}
	p.UserID = userID
	return p, nil
}

// Memo caches profile lookups for the lifetime of one dispatch. Concurrent
// lookups of the same user share a single Directory call.
type Memo struct {
	dir   Directory
	group singleflight.Group

	mu       sync.Mutex
	profiles map[string]Profile
}

// NewMemo wraps dir with a request-scoped cache.
func NewMemo(dir Directory) *Memo {
	return &Memo{dir: dir, profiles: make(map[string]Profile)}
}

func (m *Memo) Profile(ctx context.Context, userID string) (Profile, error) {
	m.mu.Lock()
	p, ok := m.profiles[userID]
	m.mu.Unlock()
	if ok {
		return p, nil
	}

	v, err, _ := m.group.Do(userID, func() (interface{}, error) {
		return m.dir.Profile(ctx, userID)
	})
	if err != nil {
		return Profile{}, fmt.Errorf("failed to resolve profile for %s: %w", userID, err)
	}
	p = v.(Profile)

	m.mu.Lock()
	m.profiles[userID] = p
	m.mu.Unlock()
	return p, nil
}

// IsPro reports whether the user has the professional role.
func (m *Memo) IsPro(ctx context.Context, userID string) (bool, error) {
	p, err := m.Profile(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.IsPro, nil
}
