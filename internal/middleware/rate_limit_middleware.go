package middleware

import (
	"net/http"

	"fuelpoints-service/internal/pkg/ratelimit"
	"fuelpoints-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// RedemptionRateLimit throttles redemption traffic per station terminal.
// Must run after Auth so the caller's station is known.
func RedemptionRateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		stationID := CallerStationID(c)
		if stationID == "" {
			// Admins redeeming without a station are not throttled.
			c.Next()
			return
		}
		ok, err := limiter.CheckRedemptionAttempt(c.Request.Context(), stationID)
		if err != nil {
			// Redis being down should not block the till.
			c.Next()
			return
		}
		if !ok {
			response.Error(c, http.StatusTooManyRequests, "redemption rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}
