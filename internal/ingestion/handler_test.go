package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "github.com/aevon-lab/scoreboard/internal/api/v1"
	httperr "github.com/aevon-lab/scoreboard/internal/core/errors"
	"github.com/aevon-lab/scoreboard/internal/core/rules"
	"github.com/aevon-lab/scoreboard/internal/core/storage/memory"
	"github.com/aevon-lab/scoreboard/internal/dispatch"
	"github.com/aevon-lab/scoreboard/internal/identity"
	ingestionmocks "github.com/aevon-lab/scoreboard/internal/mocks/ingestion"
	"github.com/aevon-lab/scoreboard/internal/tasks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type taskAdminFunc func(ctx context.Context, def rules.TaskDefinition) error

func (f taskAdminFunc) SaveDefinition(ctx context.Context, def rules.TaskDefinition) error {
	return f(ctx, def)
}

func newRouter(t *testing.T, d Dispatcher, store *memory.Store, admin TaskAdmin) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if store == nil {
		store = memory.New()
	}
	svc := NewService(d, store, admin, 1)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestIngestHandler_Success(t *testing.T) {
	d := ingestionmocks.NewDispatcher(t)
	d.EXPECT().
		Dispatch(mock.Anything, "daily_login", mock.MatchedBy(func(p v1.Payload) bool {
			return p.UserID == "alice" && p.Context["source"] == "ios"
		})).
		Return(v1.Result{Success: true, EventType: "daily_login", PointsEarned: 5, TotalScore: 5, Message: "Daily login: +5 points"}, nil).
		Once()

	r := newRouter(t, d, nil, nil)
	resp := do(r, http.MethodPost, "/v1/events",
		[]byte(`{"event_type":"daily_login","user_id":"alice","context":{"source":"ios"}}`), nil)

	require.Equal(t, http.StatusOK, resp.Code)
	var res v1.Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, 5, res.PointsEarned)
	require.Equal(t, "Daily login: +5 points", res.Message)
}

func TestIngestHandler_UserHeader(t *testing.T) {
	d := ingestionmocks.NewDispatcher(t)
	d.EXPECT().
		Dispatch(mock.MatchedBy(func(ctx context.Context) bool {
			return identity.UserFrom(ctx) == "bob"
		}), "water_logged", mock.Anything).
		Return(v1.Result{Success: true, EventType: "water_logged"}, nil).
		Once()

	r := newRouter(t, d, nil, nil)
	resp := do(r, http.MethodPost, "/v1/events", []byte(`{"event_type":"water_logged"}`),
		map[string]string{HeaderUserID: "bob"})
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestIngestHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		result     v1.Result
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "unauthenticated",
			result:     v1.Result{EventType: "daily_login"},
			err:        dispatch.ErrUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantType:   httperr.HttpUnauthenticatedError,
		},
		{
			name:       "storage failure",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantType:   httperr.HttpInternalError,
		},
		{
			name:       "hard denial",
			result:     v1.Result{EventType: "daily_login", Reason: "FEATURE_DISABLED", Message: "This feature is not enabled"},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   httperr.HttpEventRejectedError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ingestionmocks.NewDispatcher(t)
			d.EXPECT().Dispatch(mock.Anything, "daily_login", mock.Anything).Return(tt.result, tt.err).Once()

			r := newRouter(t, d, nil, nil)
			resp := do(r, http.MethodPost, "/v1/events", []byte(`{"event_type":"daily_login","user_id":"alice"}`), nil)

			require.Equal(t, tt.wantStatus, resp.Code)
			var errResp httperr.ErrorResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
			require.Equal(t, tt.wantType, errResp.ErrorType)
		})
	}
}

func TestIngestHandler_DenialCarriesReason(t *testing.T) {
	d := ingestionmocks.NewDispatcher(t)
	d.EXPECT().Dispatch(mock.Anything, "comment_created", mock.Anything).
		Return(v1.Result{EventType: "comment_created", Reason: "INVALID_INPUT", Message: "Invalid event"}, nil).
		Once()

	r := newRouter(t, d, nil, nil)
	resp := do(r, http.MethodPost, "/v1/events", []byte(`{"event_type":"comment_created","user_id":"alice"}`), nil)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	var body struct {
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "Invalid event", body.Message)
	require.Equal(t, "INVALID_INPUT", body.Details["reason"])
}

func TestIngestHandler_SoftDenialIsOK(t *testing.T) {
	d := ingestionmocks.NewDispatcher(t)
	d.EXPECT().Dispatch(mock.Anything, "daily_login", mock.Anything).
		Return(v1.Result{Success: true, EventType: "daily_login", Reason: "DAILY_LIMIT", Flag: "daily_limit_reached"}, nil).
		Once()

	r := newRouter(t, d, nil, nil)
	resp := do(r, http.MethodPost, "/v1/events", []byte(`{"event_type":"daily_login","user_id":"alice"}`), nil)

	require.Equal(t, http.StatusOK, resp.Code)
	var res v1.Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	require.Equal(t, "daily_limit_reached", res.Flag)
	require.Zero(t, res.PointsEarned)
}

func TestIngestHandler_InvalidJSON(t *testing.T) {
	r := newRouter(t, ingestionmocks.NewDispatcher(t), nil, nil)

	for _, body := range []string{"not json", `{"user_id":"alice"}`} {
		resp := do(r, http.MethodPost, "/v1/events", []byte(body), nil)
		require.Equal(t, http.StatusBadRequest, resp.Code, body)

		var errResp httperr.ErrorResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
		require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
	}
}

func TestIngestHandler_BodyTooLarge(t *testing.T) {
	r := newRouter(t, ingestionmocks.NewDispatcher(t), nil, nil)

	large := fmt.Sprintf(`{"event_type":"daily_login","context":{"note":%q}}`, strings.Repeat("x", 1024*1024+1))
	resp := do(r, http.MethodPost, "/v1/events", []byte(large), nil)

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpRequestTooLargeError, errResp.ErrorType)
}

func TestListEventsHandler(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, typ := range []string{"daily_login", "water_logged", "water_logged", "steps_logged"} {
		require.NoError(t, store.AppendEvent(ctx, &v1.Event{
			Type:       typ,
			UserID:     "alice",
			OccurredAt: base.Add(time.Duration(i) * time.Hour),
			LoggedAt:   base.Add(time.Duration(i) * time.Hour),
			Status:     "accepted",
		}))
	}
	require.NoError(t, store.AppendEvent(ctx, &v1.Event{Type: "daily_login", UserID: "bob", OccurredAt: base, LoggedAt: base, Status: "accepted"}))

	r := newRouter(t, ingestionmocks.NewDispatcher(t), store, nil)

	t.Run("all of a user", func(t *testing.T) {
		resp := do(r, http.MethodGet, "/v1/users/alice/events", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)
		var events []v1.Event
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &events))
		require.Len(t, events, 4)
	})

	t.Run("type filter and limit keep the latest", func(t *testing.T) {
		resp := do(r, http.MethodGet, "/v1/users/alice/events?type=water_logged&limit=1", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)
		var events []v1.Event
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &events))
		require.Len(t, events, 1)
		require.True(t, base.Add(2*time.Hour).Equal(events[0].OccurredAt))
	})

	t.Run("unknown user is empty", func(t *testing.T) {
		resp := do(r, http.MethodGet, "/v1/users/nobody/events", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)
		require.JSONEq(t, `[]`, resp.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		resp := do(r, http.MethodGet, "/v1/users/alice/events?limit=5000", nil, nil)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("inverted range", func(t *testing.T) {
		resp := do(r, http.MethodGet,
			"/v1/users/alice/events?start=2026-03-03T00:00:00Z&end=2026-03-02T00:00:00Z", nil, nil)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestSaveTaskHandler(t *testing.T) {
	var saved []rules.TaskDefinition
	admin := taskAdminFunc(func(_ context.Context, def rules.TaskDefinition) error {
		if def.Slug == "daily_water" {
			return fmt.Errorf("%w: %s", tasks.ErrStaticTask, def.Slug)
		}
		if def.RewardBadgeID == "first_login" {
			return fmt.Errorf("%w: reward badge", tasks.ErrInvalidTask)
		}
		saved = append(saved, def)
		return nil
	})
	r := newRouter(t, ingestionmocks.NewDispatcher(t), nil, admin)

	body := []byte(`{"title":"Spring cleanup","task_type":"weekly","target_value":4,"scoring_event_types":["diet_logged"],"reward_score":12,"is_active":true}`)

	resp := do(r, http.MethodPut, "/v1/tasks/spring_cleanup", body, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, saved, 1)
	require.Equal(t, "spring_cleanup", saved[0].Slug)
	require.Equal(t, 4, saved[0].TargetValue)

	resp = do(r, http.MethodPut, "/v1/tasks/daily_water", body, nil)
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = do(r, http.MethodPut, "/v1/tasks/broken", []byte(`{"title":"Broken","task_type":"yearly"}`), nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(r, http.MethodPut, "/v1/tasks/login_badge",
		[]byte(`{"title":"Log in","task_type":"daily","target_value":1,"scoring_event_types":["daily_login"],"reward_badge_id":"first_login"}`), nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Len(t, saved, 1)
}

func TestSaveTaskHandler_NotRegisteredWithoutAdmin(t *testing.T) {
	r := newRouter(t, ingestionmocks.NewDispatcher(t), nil, nil)
	resp := do(r, http.MethodPut, "/v1/tasks/anything", []byte(`{}`), nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}
