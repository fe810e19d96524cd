package raffle

import (
	"net/http"
	"strconv"

	"fuelpoints-service/internal/domain/raffle"
	"fuelpoints-service/internal/middleware"
	"fuelpoints-service/internal/pkg/response"
	service "fuelpoints-service/internal/service/raffle"

	"github.com/gin-gonic/gin"
)

type RaffleHandler struct {
	raffleService *service.Service
}

func NewRaffleHandler(raffleService *service.Service) *RaffleHandler {
	return &RaffleHandler{raffleService: raffleService}
}

// CreateRaffle schedules a raffle with its prize tiers (campaign admin only).
func (h *RaffleHandler) CreateRaffle(c *gin.Context) {
	var req service.CreateRaffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	r, err := h.raffleService.CreateRaffle(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "raffle scheduled", r)
}

// GetRaffle returns one raffle.
func (h *RaffleHandler) GetRaffle(c *gin.Context) {
	r, err := h.raffleService.GetRaffle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "raffle", r)
}

// ListRaffles pages raffles; ?status= filters by lifecycle state.
func (h *RaffleHandler) ListRaffles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	raffles, err := h.raffleService.ListRaffles(c.Request.Context(),
		raffle.Status(c.Query("status")), limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "raffles", raffles)
}

// Open admits tickets into a scheduled raffle (campaign admin only).
func (h *RaffleHandler) Open(c *gin.Context) {
	r, err := h.raffleService.OpenRaffle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "raffle opened", r)
}

// Draw runs the draw and announces winners (campaign admin only).
func (h *RaffleHandler) Draw(c *gin.Context) {
	r, winners, err := h.raffleService.RunDraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "raffle drawn", gin.H{
		"raffle":  r,
		"winners": winners,
	})
}

// Settle closes a drawn raffle after prizes are handled (campaign admin only).
func (h *RaffleHandler) Settle(c *gin.Context) {
	r, err := h.raffleService.SettleRaffle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "raffle settled", r)
}

// Cancel withdraws a raffle before it is drawn (campaign admin only).
func (h *RaffleHandler) Cancel(c *gin.Context) {
	r, err := h.raffleService.CancelRaffle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "raffle cancelled", r)
}

// ListWinners returns a raffle's winners.
func (h *RaffleHandler) ListWinners(c *gin.Context) {
	winners, err := h.raffleService.ListWinners(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "winners", winners)
}

// ClaimPrize marks the caller's prize as claimed.
func (h *RaffleHandler) ClaimPrize(c *gin.Context) {
	userID, ok := middleware.CallerID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	w, err := h.raffleService.ClaimPrize(c.Request.Context(), c.Param("winner_id"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "prize claimed", w)
}
