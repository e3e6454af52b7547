package controllers

import (
	"net/http"

	"dancebattlez/middlewares"
	"dancebattlez/models"
	"dancebattlez/services"

	"github.com/gin-gonic/gin"
)

// CastVoteHandler handles POST /vote.
func CastVoteHandler(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Not logged in"})
		return
	}

	var req services.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "Invalid request body"})
		return
	}

	if err := lifecycleService.CastVote(c.Request.Context(), user, req); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListVotesHandler handles GET /vote/list.
func ListVotesHandler(c *gin.Context) {
	matchID := c.Query("matchId")
	if matchID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "matchId is required"})
		return
	}

	filter := models.VoteFilter{
		Search: c.Query("search"),
		Count:  queryInt(c, "count", 20),
		Page:   queryInt(c, "page", 1),
	}

	votes, pages, match, err := lifecycleService.VoteList(c.Request.Context(), matchID, filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"votes":  votes,
		"pages":  pages,
		"aTotal": match.ATotal,
		"bTotal": match.BTotal,
	})
}
