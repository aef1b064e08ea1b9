package authentication

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/br-cmd/MerNproject/internal/user"
)

// RefreshCookieName is the httpOnly cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest is the payload for logging in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest is the optional body of POST /auth/refresh when no cookie is sent.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	User        *user.User `json:"user,omitempty"`
	AccessToken string     `json:"accessToken,omitempty"`
}

// RefreshResponse carries the new access token.
type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
}

// MessageResponse is the body of logout and of every failed request.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CookieSettings controls how the refresh cookie is written.
type CookieSettings struct {
	Secure bool
	Path   string
}

// AuthHandler handles authentication-related HTTP endpoints.
type AuthHandler struct {
	router  *gin.RouterGroup
	service AuthenticationService
	cookie  CookieSettings
	logger  *zap.Logger
}

// NewAuthHandler registers the auth endpoints on the given router group (mounted at /auth).
func NewAuthHandler(router *gin.RouterGroup, service AuthenticationService, cookie CookieSettings, logger *zap.Logger) *AuthHandler {
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	h := &AuthHandler{router: router, service: service, cookie: cookie, logger: logger}
	h.router.POST("/register", h.Register)
	h.router.POST("/login", h.Login)
	h.router.GET("/logout", h.Logout)
	h.router.GET("/refresh", h.Refresh)
	h.router.POST("/refresh", h.Refresh)
	return h
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, MessageResponse{Success: false, Message: message})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string, maxAge time.Duration) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(RefreshCookieName, token, int(maxAge.Seconds()), h.cookie.Path, "", h.cookie.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(RefreshCookieName, "", -1, h.cookie.Path, "", h.cookie.Secure, true)
}

// Register godoc
// @Summary      Register
// @Description  Create an account and issue tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      RegisterRequest  true  "Account details"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  MessageResponse
// @Failure      500      {object}  MessageResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register payload", zap.Error(err))
		fail(c, http.StatusBadRequest, "All fields required")
		return
	}
	u, pair, err := h.service.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	switch {
	case err == nil:
		h.setRefreshCookie(c, pair.RefreshToken, h.service.RefreshTTL())
		c.JSON(http.StatusCreated, AuthResponse{
			Success:     true,
			Message:     "User registered successfully",
			User:        u,
			AccessToken: pair.AccessToken,
		})
	case errors.Is(err, user.ErrEmailAlreadyExists):
		fail(c, http.StatusBadRequest, "User already exists")
	case errors.Is(err, user.ErrMissingFields):
		fail(c, http.StatusBadRequest, "All fields required")
	case errors.Is(err, user.ErrInvalidEmailFormat):
		fail(c, http.StatusBadRequest, "Please enter a valid email address")
	case errors.Is(err, user.ErrPasswordTooShort),
		errors.Is(err, user.ErrPasswordTooLong),
		errors.Is(err, user.ErrPasswordHasOnlySpaces):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Register service failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Internal server error.")
	}
}

// Login godoc
// @Summary      Login
// @Description  Authenticate user, return the user and an access token, set the refresh cookie
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      LoginRequest  true  "Login credentials"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  MessageResponse
// @Failure      401      {object}  MessageResponse
// @Failure      500      {object}  MessageResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login payload", zap.Error(err))
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	u, pair, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		h.setRefreshCookie(c, pair.RefreshToken, h.service.RefreshTTL())
		c.JSON(http.StatusOK, AuthResponse{
			Success:     true,
			Message:     "Login successful",
			User:        u,
			AccessToken: pair.AccessToken,
		})
	case errors.Is(err, ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "Invalid credentials")
	default:
		h.logger.Error("Login service failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Internal server error.")
	}
}

// Refresh godoc
// @Summary      Refresh Token
// @Description  Rotate the refresh token cookie and issue a new access token
// @Tags         auth
// @Produce      json
// @Success      200      {object}  RefreshResponse
// @Failure      401      {object}  MessageResponse
// @Failure      500      {object}  MessageResponse
// @Router       /auth/refresh [get]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := h.refreshTokenFromRequest(c)
	pair, err := h.service.Refresh(c.Request.Context(), token)
	switch {
	case err == nil:
		h.setRefreshCookie(c, pair.RefreshToken, h.service.RefreshTTL())
		c.JSON(http.StatusOK, RefreshResponse{Success: true, AccessToken: pair.AccessToken})
	case errors.Is(err, ErrNoRefreshToken):
		fail(c, http.StatusUnauthorized, "No refresh token provided.")
	case errors.Is(err, ErrInvalidRefreshToken):
		h.clearRefreshCookie(c)
		fail(c, http.StatusUnauthorized, "Invalid or expired refresh token.")
	case errors.Is(err, ErrStaleRefreshToken):
		fail(c, http.StatusUnauthorized, "Invalid refresh token.")
	default:
		h.logger.Error("Token refresh failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Internal server error.")
	}
}

// refreshTokenFromRequest prefers the cookie and falls back to a JSON body on POST.
func (h *AuthHandler) refreshTokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(RefreshCookieName); err == nil && token != "" {
		return token
	}
	if c.Request.Method != http.MethodPost {
		return ""
	}
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

// Logout godoc
// @Summary      Logout
// @Description  Revoke the refresh token and clear the cookie
// @Tags         auth
// @Produce      json
// @Success      200      {object}  MessageResponse
// @Failure      500      {object}  MessageResponse
// @Router       /auth/logout [get]
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(RefreshCookieName)
	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		h.logger.Error("Logout service failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Internal server error.")
		return
	}
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Logged out successfully"})
}
