package controllers

import (
	"net/http"
	"strconv"

	"dancebattlez/apperrors"
	"dancebattlez/middlewares"
	"dancebattlez/models"
	"dancebattlez/services"

	"github.com/gin-gonic/gin"
)

var lifecycleService *services.LifecycleService

// SetupBattleController wires the lifecycle service into the package
// level handlers.
func SetupBattleController(s *services.LifecycleService) {
	lifecycleService = s
}

// abortWithError maps a service error onto its HTTP status with the
// cause in the body.
func abortWithError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{"cause": apperrors.CauseOf(err)})
}

// SubmitCalloutHandler handles POST /battle/callout.
func SubmitCalloutHandler(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Not logged in"})
		return
	}

	var req services.CalloutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "Invalid request body"})
		return
	}

	matchID, err := lifecycleService.SubmitCallout(c.Request.Context(), user, req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"matchId": matchID})
}

// SubmitReplyHandler handles POST /battle/response.
func SubmitReplyHandler(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Not logged in"})
		return
	}

	var req services.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "Invalid request body"})
		return
	}

	if err := lifecycleService.SubmitReply(c.Request.Context(), user, req); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// WithdrawHandler handles POST /battle/withdraw.
func WithdrawHandler(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Not logged in"})
		return
	}

	var req struct {
		MatchID string `json:"matchId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "Invalid request body"})
		return
	}

	if err := lifecycleService.Withdraw(c.Request.Context(), user, req.MatchID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListBattlesHandler handles GET /battle/list.
func ListBattlesHandler(c *gin.Context) {
	filter := models.MatchFilter{
		Search:         c.Query("search"),
		ShowTakeBacks:  c.Query("showTakeBacks") == "true",
		ShowIncomplete: c.Query("showIncomplete") == "true",
		ShowClosed:     c.Query("showClosed") == "true",
		Count:          queryInt(c, "count", 20),
		Page:           queryInt(c, "page", 1),
	}

	matches, pages, err := lifecycleService.List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "pages": pages})
}

// BattleDetailHandler handles GET /battle/:matchId.
func BattleDetailHandler(c *gin.Context) {
	detail, err := lifecycleService.Detail(c.Request.Context(), c.Param("matchId"), middlewares.CurrentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// SearchOpponentsHandler handles GET /battle/opponents.
func SearchOpponentsHandler(c *gin.Context) {
	cards, pages, err := lifecycleService.SearchOpponents(c.Request.Context(),
		c.Query("search"), queryInt(c, "count", 20), queryInt(c, "page", 1))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"battlers": cards, "pages": pages})
}

// ResponsesPendingHandler handles GET /battle/responses-pending.
func ResponsesPendingHandler(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Not logged in"})
		return
	}

	matches, err := lifecycleService.AwaitingMyReply(c.Request.Context(), user)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
