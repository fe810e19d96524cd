package ticket

import (
	"net/http"
	"strconv"

	"fuelpoints-service/internal/middleware"
	"fuelpoints-service/internal/pkg/response"
	service "fuelpoints-service/internal/service/ticket"

	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	ticketService *service.Service
}

func NewTicketHandler(ticketService *service.Service) *TicketHandler {
	return &TicketHandler{ticketService: ticketService}
}

// TransferRequest moves a ticket to another user.
type TransferRequest struct {
	ToUserID string `json:"to_user_id" binding:"required"`
}

// ListMine pages the authenticated user's tickets; ?usable=true narrows to
// live raffle entries.
func (h *TicketHandler) ListMine(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	onlyUsable := c.Query("usable") == "true"

	tickets, err := h.ticketService.ListByOwner(c.Request.Context(), userID, onlyUsable, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "tickets", tickets)
}

// CountMine returns the caller's usable ticket count.
func (h *TicketHandler) CountMine(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	count, err := h.ticketService.CountUsable(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "usable ticket count", gin.H{"usable_count": count})
}

// GetTicket returns one ticket.
func (h *TicketHandler) GetTicket(c *gin.Context) {
	tk, err := h.ticketService.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "ticket", tk)
}

// Transfer hands one of the caller's tickets to another user.
func (h *TicketHandler) Transfer(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	tk, err := h.ticketService.Transfer(c.Request.Context(), c.Param("id"), userID, req.ToUserID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "ticket transferred", tk)
}
