package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridelink/rideshare-backend/internal/middleware"
	"github.com/ridelink/rideshare-backend/internal/models"
	"github.com/ridelink/rideshare-backend/internal/services"
)

type TripHandler struct {
	tripService *services.TripService
}

func NewTripHandler(tripService *services.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// CreateTrip posts a trip on a route
// POST /api/v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	trip, err := h.tripService.Create(userCtx.UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, trip)
}

// GetTrip retrieves a trip
// GET /api/v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.tripService.GetByID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trip)
}

// GetMyTrips lists the caller's posted trips
// GET /api/v1/trips/mine
func (h *TripHandler) GetMyTrips(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	trips, err := h.tripService.ListByDriver(userCtx.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch trips"})
		return
	}

	c.JSON(http.StatusOK, trips)
}

// UpdateTrip updates a trip before departure
// PATCH /api/v1/trips/:id
func (h *TripHandler) UpdateTrip(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	trip, err := h.tripService.Update(userCtx.UserID, c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trip)
}

// StartTrip moves a scheduled trip to active
// POST /api/v1/trips/:id/start
func (h *TripHandler) StartTrip(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	trip, err := h.tripService.Start(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trip)
}

// CompleteTrip moves an active trip to completed
// POST /api/v1/trips/:id/complete
func (h *TripHandler) CompleteTrip(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	trip, err := h.tripService.Complete(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trip)
}

// CancelTrip cancels a trip before departure
// POST /api/v1/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CancelTripRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	trip, err := h.tripService.Cancel(userCtx.UserID, userCtx.Roles, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, trip)
}

// GetTripAvailability reports a trip's remaining seats
// GET /api/v1/trips/:id/availability
func (h *TripHandler) GetTripAvailability(c *gin.Context) {
	tripID := c.Param("id")

	remaining, err := h.tripService.RemainingSeats(tripID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id":         tripID,
		"remaining_seats": remaining,
	})
}

// SearchTrips finds bookable trips by route, time, price, seats and
// location filters
// GET /api/v1/trips/search
func (h *TripHandler) SearchTrips(c *gin.Context) {
	var filters models.TripSearchFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid search filters", "details": err.Error()})
		return
	}

	trips, err := h.tripService.SearchAvailable(filters)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": trips,
		"count": len(trips),
	})
}
