package projection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type brokenLedger struct {
	*memory.Store
}

func (brokenLedger) TopScores(context.Context, string, int) ([]storage.Score, error) {
	return nil, errors.New("db failure")
}

func (brokenLedger) Score(context.Context, string, string) (storage.Score, error) {
	return storage.Score{}, errors.New("db failure")
}

func TestService_Handlers_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		url            string
		broken         bool
		expectedStatus int
	}{
		{name: "summary", url: "/v1/users/alice/summary", expectedStatus: http.StatusOK},
		{name: "summary store error returns 500", url: "/v1/users/alice/summary", broken: true, expectedStatus: http.StatusInternalServerError},
		{name: "leaderboard", url: "/v1/leaderboard?period=all_time&limit=5", expectedStatus: http.StatusOK},
		{name: "bad period returns 400", url: "/v1/leaderboard?period=hourly", expectedStatus: http.StatusBadRequest},
		{name: "bad limit returns 400", url: "/v1/leaderboard?limit=abc", expectedStatus: http.StatusBadRequest},
		{name: "leaderboard store error returns 500", url: "/v1/leaderboard", broken: true, expectedStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ledger storage.Ledger
			if tc.broken {
				ledger = brokenLedger{memory.New()}
			}
			f := newFixture(t, ledger)
			r := gin.New()
			f.svc.RegisterRoutes(r)

			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			if resp.Code != tc.expectedStatus {
				t.Logf("unexpected response body: %s", resp.Body.String())
			}
			require.Equal(t, tc.expectedStatus, resp.Code)
		})
	}
}

func TestService_HandleSummary_Body(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, nil)
	f.bonus(t, "alice", 12, wednesday)

	r := gin.New()
	f.svc.RegisterRoutes(r)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/users/alice/summary", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body UserSummary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "alice", body.UserID)
	require.Equal(t, 12, body.TotalScore)
}
