package routes

import (
	"dancebattlez/controllers"
	"dancebattlez/middlewares"
	"dancebattlez/services"

	"github.com/gin-gonic/gin"
)

// SetupBattleRoutes mounts the battle lifecycle endpoints.
func SetupBattleRoutes(router *gin.Engine, resolver *services.Resolver) {
	battle := router.Group("/battle")
	{
		battle.GET("/list", controllers.ListBattlesHandler)

		authed := battle.Group("")
		authed.Use(middlewares.AuthMiddleware(resolver))
		{
			authed.POST("/callout", controllers.SubmitCalloutHandler)
			authed.POST("/response", controllers.SubmitReplyHandler)
			authed.POST("/withdraw", controllers.WithdrawHandler)
			authed.GET("/opponents", controllers.SearchOpponentsHandler)
			authed.GET("/responses-pending", controllers.ResponsesPendingHandler)
		}

		admin := battle.Group("/admin")
		admin.Use(middlewares.AuthMiddleware(resolver), middlewares.AdminMiddleware())
		{
			admin.GET("/pending", middlewares.RBACMiddleware("battle", "read"), controllers.PendingVerificationHandler)
			admin.POST("/callout-verify", middlewares.RBACMiddleware("battle", "verify"), controllers.VerifyCalloutHandler)
			admin.POST("/reply-verify", middlewares.RBACMiddleware("battle", "verify"), controllers.VerifyReplyHandler)
			admin.POST("/finalize", middlewares.RBACMiddleware("battle", "finalize"), controllers.FinalizeHandler)
			admin.POST("/reconcile", middlewares.RBACMiddleware("battle", "reconcile"), controllers.ReconcileHandler)
		}

		// Registered last so the wildcard doesn't shadow the fixed paths.
		battle.GET("/:matchId", middlewares.OptionalAuthMiddleware(resolver), controllers.BattleDetailHandler)
	}
}
