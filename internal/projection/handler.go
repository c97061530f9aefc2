package projection

import (
	"errors"
	"net/http"

	httperr "github.com/aevon-lab/scoreboard/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all projection API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/users/:user_id/summary", s.HandleSummary)
	r.GET("/v1/leaderboard", s.HandleLeaderboard)
}

// HandleSummary handles GET /v1/users/:user_id/summary
func (s *Service) HandleSummary(c *gin.Context) {
	var uri struct {
		UserID string `uri:"user_id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}

	summary, err := s.Summary(c.Request.Context(), uri.UserID)
	if err != nil {
		writeQueryError(c, "Failed to load user summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleLeaderboard handles GET /v1/leaderboard
// Query parameters: period (all_time|daily|weekly|monthly), limit
func (s *Service) HandleLeaderboard(c *gin.Context) {
	var query LeaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	board, err := s.Leaderboard(c.Request.Context(), query)
	if err != nil {
		writeQueryError(c, "Failed to load leaderboard", err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func writeQueryError(c *gin.Context, message string, err error) {
	if errors.Is(err, ErrInvalidQuery) {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   message,
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   message,
		Details:   err.Error(),
	})
}
