package controllers

import (
	"net/http"
	"time"

	"dancebattlez/config"
	"dancebattlez/services"
	"dancebattlez/stores"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

var (
	tallyService *services.TallyService
	authResolver *services.Resolver
	adminUsers   *stores.UserStore
	adminConfig  *config.Config
)

// SetupAdminController wires the dependencies for admin handlers.
func SetupAdminController(tally *services.TallyService, resolver *services.Resolver, users *stores.UserStore, cfg *config.Config) {
	tallyService = tally
	authResolver = resolver
	adminUsers = users
	adminConfig = cfg
}

// AdminLoginHandler handles POST /admin/login.
func AdminLoginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "Username and password are required"})
		return
	}

	user, err := adminUsers.GetByUsername(c.Request.Context(), req.Username)
	if err != nil || !user.IsAdmin() {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"cause": "Invalid credentials"})
		return
	}

	expiry := time.Duration(adminConfig.JWT.ExpiryHours) * time.Hour
	token, err := authResolver.IssueToken(user.ID, expiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"cause": "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresIn": int(expiry.Seconds())})
}

func bindMatchID(c *gin.Context) (string, bool) {
	var req struct {
		MatchID string `json:"matchId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "matchId is required"})
		return "", false
	}
	return req.MatchID, true
}

// VerifyCalloutHandler handles POST /battle/admin/callout-verify.
func VerifyCalloutHandler(c *gin.Context) {
	matchID, ok := bindMatchID(c)
	if !ok {
		return
	}
	if err := lifecycleService.VerifyCallout(c.Request.Context(), matchID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// VerifyReplyHandler handles POST /battle/admin/reply-verify.
func VerifyReplyHandler(c *gin.Context) {
	matchID, ok := bindMatchID(c)
	if !ok {
		return
	}
	if err := lifecycleService.VerifyReply(c.Request.Context(), matchID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PendingVerificationHandler handles GET /battle/admin/pending.
func PendingVerificationHandler(c *gin.Context) {
	matches, err := stores.NewMatchStore().PendingVerification(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// FinalizeHandler handles POST /battle/admin/finalize. Closes the
// voting window early when it is still running.
func FinalizeHandler(c *gin.Context) {
	matchID, ok := bindMatchID(c)
	if !ok {
		return
	}
	if err := tallyService.Finalize(c.Request.Context(), matchID, true); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReconcileHandler handles POST /battle/admin/reconcile.
func ReconcileHandler(c *gin.Context) {
	matchID, ok := bindMatchID(c)
	if !ok {
		return
	}
	if err := tallyService.RequestReconcile(c.Request.Context(), matchID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetRolesHandler handles POST /admin/user/roles. Role bits left out of
// the body are left unchanged.
func SetRolesHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Battler  *int   `json:"battler"`
		Voter    *int   `json:"voter"`
		Judge    *int   `json:"judge"`
		Admin    *int   `json:"admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "Invalid request body"})
		return
	}
	for _, bit := range []*int{req.Battler, req.Voter, req.Judge, req.Admin} {
		if bit != nil && *bit != 0 && *bit != 1 {
			c.JSON(http.StatusBadRequest, gin.H{"cause": "Role bits must be 0 or 1"})
			return
		}
	}

	err := adminUsers.SetRoles(c.Request.Context(), req.Username, req.Battler, req.Voter, req.Judge, req.Admin)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RebuildAggregatesHandler handles POST /admin/user/rebuild.
func RebuildAggregatesHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"cause": "username is required"})
		return
	}
	if err := tallyService.RebuildUserAggregates(c.Request.Context(), req.Username); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
