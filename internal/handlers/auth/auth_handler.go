package auth

import (
	"net/http"

	"fuelpoints-service/internal/domain/auth"
	"fuelpoints-service/internal/middleware"
	"fuelpoints-service/internal/pkg/ratelimit"
	"fuelpoints-service/internal/pkg/response"
	service "fuelpoints-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *service.Service
	limiter     *ratelimit.Limiter
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.Service, limiter *ratelimit.Limiter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		limiter:     limiter,
		logger:      logger,
	}
}

// Register creates a customer account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	u, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "account created", u)
}

// Login authenticates a user and issues an access token. Attempts are rate
// limited per IP and email.
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if h.limiter != nil {
		allowed, remaining, err := h.limiter.CheckLoginAttempt(c.Request.Context(), c.ClientIP(), req.Email)
		if err != nil {
			h.logger.Warn("login rate limit check failed", zap.Error(err))
		} else if !allowed {
			response.Error(c, http.StatusTooManyRequests, "too many login attempts", nil, map[string]interface{}{
				"remaining_attempts": remaining,
			})
			return
		}
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if h.limiter != nil {
		h.limiter.ResetLoginAttempts(c.Request.Context(), c.ClientIP(), req.Email)
	}

	response.Success(c, http.StatusOK, "login successful", resp)
}

// CreateStaff provisions station staff or admin accounts (super admin only).
func (h *AuthHandler) CreateStaff(c *gin.Context) {
	var req auth.CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	u, err := h.authService.CreateStaff(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "staff account created", u)
}

// GetMe returns the authenticated user's profile.
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	u, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "profile", u)
}
