package coupon

import (
	"net/http"
	"strconv"
	"time"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/domain/coupon"
	"fuelpoints-service/internal/pkg/response"
	service "fuelpoints-service/internal/service/coupon"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CouponHandler struct {
	couponService *service.Service
}

func NewCouponHandler(couponService *service.Service) *CouponHandler {
	return &CouponHandler{couponService: couponService}
}

// ValidateRequest previews a coupon against a purchase without consuming it.
type ValidateRequest struct {
	Code      string `json:"code" binding:"required"`
	UserID    string `json:"user_id"`
	StationID string `json:"station_id"`
	FuelType  string `json:"fuel_type"`
	Amount    string `json:"amount" binding:"required"`
}

// VoidRequest withdraws a coupon from circulation.
type VoidRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// GenerateBatch mints coupons for a campaign (campaign admin only).
func (h *CouponHandler) GenerateBatch(c *gin.Context) {
	var req campaign.GenerateCouponsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	coupons, err := h.couponService.GenerateBatch(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "coupons generated", coupons)
}

// GetByCode looks a coupon up by its printed code.
func (h *CouponHandler) GetByCode(c *gin.Context) {
	cp, err := h.couponService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "coupon", cp)
}

// ListByCampaign pages a campaign's coupons.
func (h *CouponHandler) ListByCampaign(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	coupons, err := h.couponService.ListByCampaign(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "coupons", coupons)
}

// Validate answers whether a coupon would apply to a purchase and previews
// the discount. A failing rule is a 200 with valid=false, not an error.
func (h *CouponHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "malformed amount", err)
		return
	}

	result, err := h.couponService.Validate(c.Request.Context(), req.Code, coupon.PurchaseContext{
		UserID:    req.UserID,
		StationID: req.StationID,
		FuelType:  req.FuelType,
		Amount:    amount,
		AsOf:      time.Now(),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "validation result", result)
}

// Void withdraws a coupon (campaign admin only).
func (h *CouponHandler) Void(c *gin.Context) {
	var req VoidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	cp, err := h.couponService.Void(c.Request.Context(), c.Param("code"), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "coupon voided", cp)
}
