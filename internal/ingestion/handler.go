package ingestion

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	httperr "github.com/aevon-lab/scoreboard/internal/core/errors"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/dispatch"
	"github.com/aevon-lab/scoreboard/internal/identity"
	"github.com/aevon-lab/scoreboard/internal/tasks"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed   = "Failed to read request body"
	msgInvalidJSON      = "Invalid JSON body"
	msgDispatchFailed   = "Failed to process event"
	msgUnauthenticated  = "No user to attribute the event to"
	defaultListLimit    = 100
	maxListLimit        = 1000
	maxRequestBodyLabel = "Request body exceeds maximum allowed size"
)

// EventRequest is the body of POST /v1/events.
type EventRequest struct {
	EventType string `json:"event_type" binding:"required"`
	v1.Payload
}

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles POST /v1/events. The event is scored synchronously
// and the Result is returned as the body.
func (s *Service) IngestHandler(c *gin.Context) {
	var req EventRequest
	if err := s.bindBody(c, &req); err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if user := c.GetHeader(HeaderUserID); user != "" {
		ctx = identity.WithUser(ctx, user)
	}

	res, err := s.dispatcher.Dispatch(ctx, req.EventType, req.Payload)
	switch {
	case errors.Is(err, dispatch.ErrUnauthenticated):
		writeError(c, &ingestionError{
			statusCode: http.StatusUnauthorized,
			errorType:  httperr.HttpUnauthenticatedError,
			message:    msgUnauthenticated,
		})
		return
	case err != nil:
		slog.Error("[Ingestion] Dispatch failed", "event_type", req.EventType, "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgDispatchFailed,
		})
		return
	case !res.Success:
		writeError(c, &ingestionError{
			statusCode: http.StatusUnprocessableEntity,
			errorType:  httperr.HttpEventRejectedError,
			message:    res.Message,
			details: map[string]interface{}{
				"event_type": res.EventType,
				"reason":     res.Reason,
			},
		})
		return
	}

	c.JSON(http.StatusOK, res)
}

// bindBody reads the size-limited request body and binds it into out.
func (s *Service) bindBody(c *gin.Context, out interface{}) *ingestionError {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpRequestTooLargeError,
			message:    maxRequestBodyLabel,
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if err := c.ShouldBindJSON(out); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
			details:    err.Error(),
		}
	}
	return nil
}

// ListEventsHandler handles GET /v1/users/:user_id/events
// Query parameters: start, end (RFC3339), type, status, limit. The most
// recent limit events are returned, oldest first.
func (s *Service) ListEventsHandler(c *gin.Context) {
	var uri struct {
		UserID string `uri:"user_id" binding:"required"`
	}
	var query struct {
		Start  time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
		End    time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
		Types  []string  `form:"type"`
		Status string    `form:"status"`
		Limit  int       `form:"limit"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		writeError(c, invalidQuery("Invalid path parameters", err.Error()))
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeError(c, invalidQuery("Invalid query parameters", err.Error()))
		return
	}
	if !query.Start.IsZero() && !query.End.IsZero() && !query.End.After(query.Start) {
		writeError(c, invalidQuery("end must be after start", nil))
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultListLimit
	}
	if query.Limit < 0 || query.Limit > maxListLimit {
		writeError(c, invalidQuery("limit out of range", map[string]interface{}{"max": maxListLimit}))
		return
	}

	events, err := s.events.ListEvents(c.Request.Context(), storage.EventQuery{
		UserID: uri.UserID,
		Types:  query.Types,
		Since:  query.Start,
		Until:  query.End,
		Status: query.Status,
	})
	if err != nil {
		slog.Error("[Ingestion] Failed to list events", "user_id", uri.UserID, "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to list events",
		})
		return
	}
	if len(events) > query.Limit {
		events = events[len(events)-query.Limit:]
	}
	if events == nil {
		events = []*v1.Event{}
	}
	c.JSON(http.StatusOK, events)
}

// SaveTaskHandler handles PUT /v1/tasks/:slug, creating or replacing a
// dynamic task definition.
func (s *Service) SaveTaskHandler(c *gin.Context) {
	var def rules.TaskDefinition
	if err := s.bindBody(c, &def); err != nil {
		writeError(c, err)
		return
	}
	def.Slug = c.Param("slug")
	if err := def.Validate(); err != nil {
		writeError(c, invalidQuery("Invalid task definition", err.Error()))
		return
	}

	if err := s.tasks.SaveDefinition(c.Request.Context(), def); err != nil {
		if errors.Is(err, tasks.ErrInvalidTask) {
			writeError(c, invalidQuery("Invalid task definition", err.Error()))
			return
		}
		if errors.Is(err, tasks.ErrStaticTask) {
			writeError(c, &ingestionError{
				statusCode: http.StatusConflict,
				errorType:  httperr.HttpInvalidQueryError,
				message:    "Static tasks cannot be changed",
			})
			return
		}
		slog.Error("[Ingestion] Failed to save task", "slug", def.Slug, "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to save task",
		})
		return
	}
	c.JSON(http.StatusOK, def)
}

func invalidQuery(message string, details interface{}) *ingestionError {
	return &ingestionError{
		statusCode: http.StatusBadRequest,
		errorType:  httperr.HttpInvalidQueryError,
		message:    message,
		details:    details,
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
