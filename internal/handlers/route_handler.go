package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ridelink/rideshare-backend/internal/middleware"
	"github.com/ridelink/rideshare-backend/internal/models"
	"github.com/ridelink/rideshare-backend/internal/services"
	"github.com/ridelink/rideshare-backend/pkg/geo"
)

type RouteHandler struct {
	routeService *services.RouteService
}

func NewRouteHandler(routeService *services.RouteService) *RouteHandler {
	return &RouteHandler{routeService: routeService}
}

// CreateRoute creates a custom route owned by the caller
// POST /api/v1/routes
func (h *RouteHandler) CreateRoute(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	route, err := h.routeService.Create(userCtx.UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, route)
}

// GetRoute retrieves an active route
// GET /api/v1/routes/:id
func (h *RouteHandler) GetRoute(c *gin.Context) {
	route, err := h.routeService.GetByID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, route)
}

// GetMyRoutes lists the caller's active routes
// GET /api/v1/routes/mine
func (h *RouteHandler) GetMyRoutes(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	routes, err := h.routeService.ListByCreator(userCtx.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch routes"})
		return
	}

	c.JSON(http.StatusOK, routes)
}

// UpdateRoute updates route metadata
// PATCH /api/v1/routes/:id
func (h *RouteHandler) UpdateRoute(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.UpdateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	route, err := h.routeService.Update(userCtx.UserID, userCtx.Roles, c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, route)
}

// DeleteRoute soft-deletes a route
// DELETE /api/v1/routes/:id
func (h *RouteHandler) DeleteRoute(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.routeService.Delete(userCtx.UserID, userCtx.Roles, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Route deleted"})
}

// AddStopPoint adds a stop to a route
// POST /api/v1/routes/:id/stops
func (h *RouteHandler) AddStopPoint(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateStopPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	stop, err := h.routeService.AddStopPoint(userCtx.UserID, userCtx.Roles, c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, stop)
}

// GetStopPoints lists a route's stops in order
// GET /api/v1/routes/:id/stops
func (h *RouteHandler) GetStopPoints(c *gin.Context) {
	stops, err := h.routeService.ListStopPoints(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stops)
}

// RemoveStopPoint deletes a stop and renumbers the remaining stops
// DELETE /api/v1/stops/:id
func (h *RouteHandler) RemoveStopPoint(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.routeService.RemoveStopPoint(userCtx.UserID, userCtx.Roles, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stop point removed"})
}

// FindNearby ranks active routes by distance from a point
// GET /api/v1/routes/nearby?lat=&lng=&radius_km=
func (h *RouteHandler) FindNearby(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat is required and must be a number"})
		return
	}

	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lng is required and must be a number"})
		return
	}

	radiusKm := 0.0
	if raw := c.Query("radius_km"); raw != "" {
		radiusKm, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius_km must be a number"})
			return
		}
	}

	matches, err := h.routeService.FindNearby(geo.Coordinate{Lat: lat, Lng: lng}, radiusKm)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, matches)
}

// SearchRoutes performs a text search across route names and locations
// GET /api/v1/routes/search?q=
func (h *RouteHandler) SearchRoutes(c *gin.Context) {
	routes, err := h.routeService.SearchByText(c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, routes)
}
