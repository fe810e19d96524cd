package middleware

import (
	"net/http"
	"strings"

	"fuelpoints-service/internal/domain/auth"
	"fuelpoints-service/internal/pkg/jwt"
	"fuelpoints-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID    = "user_id"
	ctxRole      = "role"
	ctxStationID = "station_id"
	ctxJTI       = "jti"
)

type AuthMiddleware struct {
	verifier *jwt.Verifier
}

func NewAuthMiddleware(verifier *jwt.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Auth validates the bearer token and loads the caller's identity into the
// request context.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, auth.Role(claims.Role))
		c.Set(ctxStationID, claims.StationID)
		c.Set(ctxJTI, claims.ID)

		c.Next()
	}
}

// RequireRole allows only callers holding one of the given roles. Must run
// after Auth.
func (m *AuthMiddleware) RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := CallerRole(c)
		if !ok {
			response.Error(c, http.StatusForbidden, "authentication required", nil)
			return
		}
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Error(c, http.StatusForbidden, "insufficient permissions", nil, map[string]interface{}{
			"required_roles": roles,
		})
	}
}

// RequireRedeemer allows station staff and super admins, the roles that may
// process redemptions at the till.
func (m *AuthMiddleware) RequireRedeemer() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := CallerRole(c)
		if !ok || !auth.CanRedeem(role) {
			response.Forbidden(c, "station staff role required")
			return
		}
		c.Next()
	}
}

// RequireCampaignAdmin allows the roles that manage campaigns and raffles.
func (m *AuthMiddleware) RequireCampaignAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := CallerRole(c)
		if !ok || !auth.CanManageCampaigns(role) {
			response.Forbidden(c, "campaign admin role required")
			return
		}
		c.Next()
	}
}

// extractToken pulls the bearer token from the Authorization header, with a
// query-param fallback for websocket upgrades.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

// CallerID returns the authenticated user's ID.
func CallerID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// CallerRole returns the authenticated user's role.
func CallerRole(c *gin.Context) (auth.Role, bool) {
	v, exists := c.Get(ctxRole)
	if !exists {
		return "", false
	}
	role, ok := v.(auth.Role)
	return role, ok
}

// CallerStationID returns the station the caller is assigned to, empty for
// roles without a station.
func CallerStationID(c *gin.Context) string {
	v, exists := c.Get(ctxStationID)
	if !exists {
		return ""
	}
	id, _ := v.(string)
	return id
}
