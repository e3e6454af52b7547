package routes

import (
	"dancebattlez/controllers"
	"dancebattlez/middlewares"
	"dancebattlez/services"

	"github.com/gin-gonic/gin"
)

// SetupAdminRoutes mounts admin login and user administration.
func SetupAdminRoutes(router *gin.Engine, resolver *services.Resolver) {
	admin := router.Group("/admin")
	{
		admin.POST("/login", controllers.AdminLoginHandler)

		user := admin.Group("/user")
		user.Use(middlewares.AuthMiddleware(resolver), middlewares.AdminMiddleware())
		{
			user.POST("/roles", middlewares.RBACMiddleware("user", "roles"), controllers.SetRolesHandler)
			user.POST("/rebuild", middlewares.RBACMiddleware("user", "rebuild"), controllers.RebuildAggregatesHandler)
		}
	}
}
