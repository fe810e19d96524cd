package redemption

import (
	"net/http"
	"strconv"
	"time"

	"fuelpoints-service/internal/middleware"
	"fuelpoints-service/internal/pkg/response"
	service "fuelpoints-service/internal/service/redemption"

	"github.com/gin-gonic/gin"
)

type RedemptionHandler struct {
	redemptionService *service.Service
}

func NewRedemptionHandler(redemptionService *service.Service) *RedemptionHandler {
	return &RedemptionHandler{redemptionService: redemptionService}
}

// MultiplierRequest applies an ad-watch multiplier to a redemption.
type MultiplierRequest struct {
	Multiplier int `json:"multiplier" binding:"required,min=1"`
}

// VoidRequest reverses a redemption.
type VoidRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Redeem consumes a coupon at the till (station staff only). The employee is
// taken from the authenticated caller, not the payload.
func (h *RedemptionHandler) Redeem(c *gin.Context) {
	var req service.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	if employeeID, ok := middleware.CallerID(c); ok {
		req.EmployeeID = employeeID
	}
	if stationID := middleware.CallerStationID(c); stationID != "" {
		req.StationID = stationID
	}

	result, err := h.redemptionService.RedeemCoupon(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "coupon redeemed", result)
}

// ApplyMultiplier amplifies a redemption's tickets after an ad watch.
func (h *RedemptionHandler) ApplyMultiplier(c *gin.Context) {
	var req MultiplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.redemptionService.ApplyAdMultiplier(c.Request.Context(), c.Param("id"), req.Multiplier)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "multiplier applied", result)
}

// GetRedemption returns one redemption.
func (h *RedemptionHandler) GetRedemption(c *gin.Context) {
	rd, err := h.redemptionService.GetRedemption(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "redemption", rd)
}

// ListMine pages the authenticated user's redemption history.
func (h *RedemptionHandler) ListMine(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	redemptions, err := h.redemptionService.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "redemptions", redemptions)
}

// Void reverses a redemption (campaign admin only).
func (h *RedemptionHandler) Void(c *gin.Context) {
	var req VoidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	rd, err := h.redemptionService.Void(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "redemption voided", rd)
}

// Reconcile reports redemptions whose persisted tickets disagree with their
// expected count (campaign admin only). ?hours= bounds the lookback window.
func (h *RedemptionHandler) Reconcile(c *gin.Context) {
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if hours <= 0 {
		hours = 24
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))

	entries, err := h.redemptionService.Reconcile(c.Request.Context(),
		time.Now().Add(-time.Duration(hours)*time.Hour), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "reconciliation report", entries)
}
