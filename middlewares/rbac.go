package middlewares

import (
	"fmt"
	"log"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	mongodbadapter "github.com/casbin/mongodb-adapter/v3"
	"github.com/gin-gonic/gin"
)

var enforcer *casbin.Enforcer

// InitCasbin initializes the Casbin enforcer with the MongoDB adapter.
// Policies persist in the casbin_rule collection; the model is loaded
// from rbac_model.conf with an inline fallback.
func InitCasbin(mongoURI string) error {
	adapter, err := mongodbadapter.NewAdapter(mongoURI)
	if err != nil {
		return fmt.Errorf("failed to create Casbin adapter: %w", err)
	}

	modelPaths := []string{"./rbac_model.conf", "../rbac_model.conf"}
	var enforcerErr error
	for _, modelPath := range modelPaths {
		enforcer, enforcerErr = casbin.NewEnforcer(modelPath, adapter)
		if enforcerErr == nil {
			log.Printf("Loaded Casbin model from: %s", modelPath)
			break
		}
	}
	if enforcerErr != nil {
		modelText := `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`
		m, err := model.NewModelFromString(modelText)
		if err != nil {
			return fmt.Errorf("failed to create Casbin model: %w", err)
		}
		enforcer, err = casbin.NewEnforcer(m, adapter)
		if err != nil {
			return fmt.Errorf("failed to create Casbin enforcer: %w", err)
		}
	}

	if err := enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	ensureDefaultPolicies()

	log.Println("Casbin RBAC initialized successfully")
	return nil
}

// ensureDefaultPolicies seeds the admin permissions. AddPolicy is
// idempotent, duplicates are not added.
func ensureDefaultPolicies() {
	policies := [][]string{
		{"admin", "battle", "verify"},
		{"admin", "battle", "finalize"},
		{"admin", "battle", "reconcile"},
		{"admin", "battle", "read"},
		{"admin", "user", "roles"},
		{"admin", "user", "rebuild"},
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			log.Printf("Failed to add policy %v: %v", p, err)
		}
	}
}

// AdminMiddleware requires an authenticated user holding the admin
// role. Must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.Admin {
			c.JSON(http.StatusForbidden, gin.H{"cause": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RBACMiddleware checks whether the caller's role is allowed the action
// on the resource.
func RBACMiddleware(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := enforcer.Enforce("admin", resource, action)
		if err != nil {
			log.Printf("Casbin enforce error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"cause": "Permission check failed"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"cause": "Insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}
