package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CurrentUserResponse wraps the authenticated user.
type CurrentUserResponse struct {
	Success bool  `json:"success"`
	User    *User `json:"user"`
}

// UserHandler serves user resources behind the authentication middleware.
type UserHandler struct {
	router *gin.RouterGroup
	logger *zap.Logger
}

// NewUserHandler registers user endpoints on a router group that already runs AuthMiddleware.
func NewUserHandler(router *gin.RouterGroup, logger *zap.Logger) *UserHandler {
	h := &UserHandler{router: router, logger: logger}
	h.router.GET("/get-user", h.ReadCurrentUser)
	return h
}

// ReadCurrentUser returns the authenticated user from context.
// @Summary      Get current user
// @Description  Fetch the record of the authenticated user
// @Tags         user
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} CurrentUserResponse
// @Failure      401 {object} map[string]interface{}
// @Router       /user/get-user [get]
func (h *UserHandler) ReadCurrentUser(c *gin.Context) {
	raw, exists := c.Get(ContextUserKey)
	u, ok := raw.(*User)
	if !exists || !ok {
		h.logger.Warn("get-user reached without authenticated user")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, CurrentUserResponse{Success: true, User: u})
}
