package campaign

import (
	"net/http"
	"strconv"

	"fuelpoints-service/internal/domain/campaign"
	"fuelpoints-service/internal/pkg/response"
	service "fuelpoints-service/internal/service/campaign"

	"github.com/gin-gonic/gin"
)

type CampaignHandler struct {
	campaignService *service.Service
}

func NewCampaignHandler(campaignService *service.Service) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService}
}

// CreateCampaign creates a new campaign in DRAFT (campaign admin only).
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req campaign.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.campaignService.CreateCampaign(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "campaign created", result)
}

// ChangeStatus moves a campaign along its lifecycle (campaign admin only).
func (h *CampaignHandler) ChangeStatus(c *gin.Context) {
	var req campaign.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.campaignService.ChangeStatus(c.Request.Context(),
		c.Param("id"), campaign.Status(req.Status), req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "campaign status changed", result)
}

// GetCampaign returns one campaign.
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	result, err := h.campaignService.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "campaign", result)
}

// ListCampaigns pages campaigns; ?status= filters by lifecycle state.
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	result, err := h.campaignService.ListCampaigns(c.Request.Context(),
		campaign.Status(c.Query("status")), limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "campaigns", result)
}

// GetMetrics returns a campaign's generation and usage progress.
func (h *CampaignHandler) GetMetrics(c *gin.Context) {
	result, err := h.campaignService.GetMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "campaign metrics", result)
}
