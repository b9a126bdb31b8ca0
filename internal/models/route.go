package models

import (
	"time"

	"github.com/ridelink/rideshare-backend/internal/apperrors"
	"github.com/ridelink/rideshare-backend/pkg/geo"
)

// RouteType distinguishes user-created routes from system-seeded ones
type RouteType string

const (
	RouteTypeCustom  RouteType = "custom"
	RouteTypeDefault RouteType = "default"
)

// Route represents a named path between two locations
type Route struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Description     *string   `json:"description,omitempty" db:"description"`
	StartLocation   string    `json:"start_location" db:"start_location"`
	EndLocation     string    `json:"end_location" db:"end_location"`
	StartLat        float64   `json:"start_lat" db:"start_lat"`
	StartLng        float64   `json:"start_lng" db:"start_lng"`
	EndLat          float64   `json:"end_lat" db:"end_lat"`
	EndLng          float64   `json:"end_lng" db:"end_lng"`
	DistanceKm      *float64  `json:"distance_km,omitempty" db:"distance_km"`
	DurationMinutes *int      `json:"duration_minutes,omitempty" db:"duration_minutes"`
	RouteType       RouteType `json:"route_type" db:"route_type"`
	IsPublic        bool      `json:"is_public" db:"is_public"`
	CreatedBy       *string   `json:"created_by,omitempty" db:"created_by"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// CreateRouteRequest represents the request to create a route
type CreateRouteRequest struct {
	Name          string  `json:"name" binding:"required"`
	Description   *string `json:"description,omitempty"`
	StartLocation string  `json:"start_location" binding:"required"`
	EndLocation   string  `json:"end_location" binding:"required"`
	StartLat      float64 `json:"start_lat" binding:"required"`
	StartLng      float64 `json:"start_lng" binding:"required"`
	EndLat        float64 `json:"end_lat" binding:"required"`
	EndLng        float64 `json:"end_lng" binding:"required"`
	IsPublic      *bool   `json:"is_public,omitempty"`
}

// UpdateRouteRequest represents the request to update a route
type UpdateRouteRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"is_public,omitempty"`
}

// Validate validates the create route request
func (r *CreateRouteRequest) Validate() error {
	if r.Name == "" {
		return apperrors.Validation("name is required")
	}
	if r.StartLocation == "" {
		return apperrors.Validation("start_location is required")
	}
	if r.EndLocation == "" {
		return apperrors.Validation("end_location is required")
	}
	if !geo.ValidLatLon(r.StartLat, r.StartLng) {
		return apperrors.Validation("start coordinates are out of range")
	}
	if !geo.ValidLatLon(r.EndLat, r.EndLng) {
		return apperrors.Validation("end coordinates are out of range")
	}
	return nil
}

// StartCoordinate returns the route's start point
func (r *Route) StartCoordinate() geo.Coordinate {
	return geo.Coordinate{Lat: r.StartLat, Lng: r.StartLng}
}

// EndCoordinate returns the route's end point
func (r *Route) EndCoordinate() geo.Coordinate {
	return geo.Coordinate{Lat: r.EndLat, Lng: r.EndLng}
}

// MinDistanceKm returns the distance from center to the nearer of the
// route's endpoints. Used for nearby-route ranking.
func (r *Route) MinDistanceKm(center geo.Coordinate) float64 {
	start := geo.DistanceKm(center, r.StartCoordinate())
	end := geo.DistanceKm(center, r.EndCoordinate())
	if start < end {
		return start
	}
	return end
}

// IsSystemOwned reports whether the route is a seeded default route.
// Default routes cannot be deleted by ordinary users.
func (r *Route) IsSystemOwned() bool {
	return r.RouteType == RouteTypeDefault
}

// RouteMatch is a route paired with its search distance
type RouteMatch struct {
	Route      Route   `json:"route"`
	DistanceKm float64 `json:"distance_km"`
}
