package middlewares

import (
	"net/http"
	"strings"

	"dancebattlez/services"

	"github.com/gin-gonic/gin"
)

const authUserKey = "authUser"

// AuthMiddleware verifies the bearer token and stores the resolved user
// in the request context.
func AuthMiddleware(resolver *services.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := resolve(c, resolver)
		if !ok {
			return
		}
		c.Set(authUserKey, user)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves the bearer token when one is present
// and lets anonymous requests through. Read endpoints use it to
// personalize responses without requiring a login.
func OptionalAuthMiddleware(resolver *services.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		user, ok := resolve(c, resolver)
		if !ok {
			return
		}
		c.Set(authUserKey, user)
		c.Next()
	}
}

func resolve(c *gin.Context, resolver *services.Resolver) (*services.AuthUser, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Missing Authorization token"})
		c.Abort()
		return nil, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Invalid Authorization token format"})
		c.Abort()
		return nil, false
	}

	user, err := resolver.Resolve(c.Request.Context(), parts[1])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Invalid or expired token"})
		c.Abort()
		return nil, false
	}
	return user, true
}

// CurrentUser returns the resolved user set by the auth middleware, or
// nil on anonymous requests.
func CurrentUser(c *gin.Context) *services.AuthUser {
	v, exists := c.Get(authUserKey)
	if !exists {
		return nil
	}
	user, ok := v.(*services.AuthUser)
	if !ok {
		return nil
	}
	return user
}
