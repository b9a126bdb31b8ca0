package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridelink/rideshare-backend/internal/middleware"
	"github.com/ridelink/rideshare-backend/internal/models"
	"github.com/ridelink/rideshare-backend/internal/services"
)

type RequestHandler struct {
	requestService *services.RequestService
}

func NewRequestHandler(requestService *services.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// CreateRequest files a pending seat request on a trip
// POST /api/v1/requests
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateTripRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	request, err := h.requestService.Create(userCtx.UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// GetRequest retrieves a request visible to its parties
// GET /api/v1/requests/:id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	request, err := h.requestService.GetByID(userCtx.UserID, userCtx.Roles, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// GetMyRequests lists the caller's own requests, newest first
// GET /api/v1/requests/mine
func (h *RequestHandler) GetMyRequests(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	requests, err := h.requestService.ListMine(userCtx.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch requests"})
		return
	}

	c.JSON(http.StatusOK, requests)
}

// ApproveRequest accepts a pending request, reserving its seats
// POST /api/v1/requests/:id/approve
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	request, err := h.requestService.Approve(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// RejectRequest declines a pending request
// POST /api/v1/requests/:id/reject
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	request, err := h.requestService.Reject(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// CancelRequest withdraws the caller's own request
// POST /api/v1/requests/:id/cancel
func (h *RequestHandler) CancelRequest(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	request, err := h.requestService.Cancel(userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// GetTripRequests lists all requests on a trip for its driver
// GET /api/v1/trips/:id/requests
func (h *RequestHandler) GetTripRequests(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	requests, err := h.requestService.ListForTrip(userCtx.UserID, userCtx.Roles, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, requests)
}

// GetTripRequestStats aggregates a trip's requests by status
// GET /api/v1/trips/:id/requests/stats
func (h *RequestHandler) GetTripRequestStats(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	stats, err := h.requestService.StatsForTrip(userCtx.UserID, userCtx.Roles, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
