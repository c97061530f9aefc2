package ingestion

import (
	"context"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// HeaderUserID names the authenticated caller when the payload carries no user_id.
const HeaderUserID = "X-User-ID"

// Dispatcher scores one event. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload v1.Payload) (v1.Result, error)
}

// TaskAdmin stores dynamic task definitions. *tasks.Tracker satisfies it.
type TaskAdmin interface {
	SaveDefinition(ctx context.Context, def rules.TaskDefinition) error
}

type Service struct {
	dispatcher       Dispatcher
	events           storage.EventLog
	tasks            TaskAdmin
	maxBodySizeBytes int
}

// NewService builds the HTTP ingestion adapter. taskAdmin may be nil, which
// leaves the task admin route unregistered.
func NewService(dispatcher Dispatcher, events storage.EventLog, taskAdmin TaskAdmin, maxBodySizeMB int) *Service {
	if dispatcher == nil {
		panic("ingestion: dispatcher must not be nil")
	}
	if events == nil {
		panic("ingestion: event log must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		dispatcher:       dispatcher,
		events:           events,
		tasks:            taskAdmin,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestHandler)
	r.GET("/v1/users/:user_id/events", s.ListEventsHandler)
	if s.tasks != nil {
		r.PUT("/v1/tasks/:slug", s.SaveTaskHandler)
	}
}
