package routes

import (
	"dancebattlez/controllers"
	"dancebattlez/middlewares"
	"dancebattlez/services"

	"github.com/gin-gonic/gin"
)

// SetupVoteRoutes mounts the voting endpoints.
func SetupVoteRoutes(router *gin.Engine, resolver *services.Resolver) {
	vote := router.Group("/vote")
	{
		vote.GET("/list", controllers.ListVotesHandler)
		vote.POST("", middlewares.AuthMiddleware(resolver), controllers.CastVoteHandler)
	}
}
