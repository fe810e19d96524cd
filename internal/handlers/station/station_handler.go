package station

import (
	"net/http"
	"strconv"

	"fuelpoints-service/internal/domain/station"
	"fuelpoints-service/internal/pkg/response"
	service "fuelpoints-service/internal/service/station"

	"github.com/gin-gonic/gin"
)

type StationHandler struct {
	stationService *service.Service
}

func NewStationHandler(stationService *service.Service) *StationHandler {
	return &StationHandler{stationService: stationService}
}

// CreateRequest registers a station on the network.
type CreateRequest struct {
	Name      string   `json:"name" binding:"required"`
	Prefix    string   `json:"prefix" binding:"required"`
	City      string   `json:"city"`
	Address   string   `json:"address"`
	FuelTypes []string `json:"fuel_types"`
}

// SetActiveRequest toggles a station in or out of service.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// CreateStation registers a station (super admin only).
func (h *StationHandler) CreateStation(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	st, err := h.stationService.CreateStation(c.Request.Context(), station.CreateInput{
		Name:      req.Name,
		Prefix:    req.Prefix,
		City:      req.City,
		Address:   req.Address,
		FuelTypes: req.FuelTypes,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "station registered", st)
}

// GetStation returns one station.
func (h *StationHandler) GetStation(c *gin.Context) {
	st, err := h.stationService.GetStation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "station", st)
}

// ListStations pages the network; ?active=true narrows to open stations.
func (h *StationHandler) ListStations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	onlyActive := c.Query("active") == "true"

	stations, err := h.stationService.ListStations(c.Request.Context(), onlyActive, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "stations", stations)
}

// SetActive toggles a station's availability (super admin only).
func (h *StationHandler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	st, err := h.stationService.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "station updated", st)
}
