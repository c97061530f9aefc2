package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
)

// StoreSink renders notifications from the rule templates and stores them.
type StoreSink struct {
	store storage.NotificationStore
	rules *rules.Store
	nowFn func() time.Time
}

var _ Sink = (*StoreSink)(nil)

// NewStoreSink builds a StoreSink.
func NewStoreSink(store storage.NotificationStore, ruleStore *rules.Store) *StoreSink {
	return &StoreSink{store: store, rules: ruleStore, nowFn: time.Now}
}

func (s *StoreSink) Create(ctx context.Context, userID, notificationType string, params map[string]string) error {
	tmpl, ok := s.rules.Template(notificationType)
	if !ok {
		return fmt.Errorf("no template for notification type %q", notificationType)
	}
	title, body := tmpl.Render(params)
	return s.store.SaveNotification(ctx, &storage.Notification{
		UserID:    userID,
		Type:      notificationType,
		Title:     title,
		Body:      body,
		Params:    params,
		CreatedAt: s.nowFn().UTC(),
	})
}
