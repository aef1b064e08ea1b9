package authentication

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/br-cmd/MerNproject/internal/user"
)

// AuthMiddleware admits requests carrying a valid "Authorization: Bearer <access token>"
// and stores the resolved user under user.ContextUserKey.
func AuthMiddleware(service AuthenticationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			fail(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			fail(c, http.StatusUnauthorized, "Authorization header format must be Bearer <token>")
			return
		}

		u, err := service.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, ErrInvalidAccessToken) {
				logger.Debug("access token rejected", zap.Error(err))
				fail(c, http.StatusUnauthorized, "Invalid or expired access token")
				return
			}
			logger.Error("failed to authenticate request", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Internal server error.")
			return
		}

		c.Set(user.ContextUserKey, u)
		c.Next()
	}
}
