package models

import (
	"time"

	"github.com/ridelink/rideshare-backend/internal/apperrors"
	"github.com/ridelink/rideshare-backend/pkg/geo"
)

// StopPoint represents an ordered waypoint on a route. stop_order values
// for a route form a contiguous 1..N sequence; deletion renumbers the
// remaining stops to keep it contiguous.
type StopPoint struct {
	ID               string    `json:"id" db:"id"`
	RouteID          string    `json:"route_id" db:"route_id"`
	Name             string    `json:"name" db:"name"`
	Address          *string   `json:"address,omitempty" db:"address"`
	Lat              float64   `json:"lat" db:"lat"`
	Lng              float64   `json:"lng" db:"lng"`
	StopOrder        int       `json:"stop_order" db:"stop_order"`
	AllowPickup      bool      `json:"allow_pickup" db:"allow_pickup"`
	AllowDropoff     bool      `json:"allow_dropoff" db:"allow_dropoff"`
	MinutesFromStart *int      `json:"minutes_from_start,omitempty" db:"minutes_from_start"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// CreateStopPointRequest represents the request to add a stop to a route.
// StopOrder is optional; omitting it appends the stop at the end.
type CreateStopPointRequest struct {
	Name             string  `json:"name" binding:"required"`
	Address          *string `json:"address,omitempty"`
	Lat              float64 `json:"lat" binding:"required"`
	Lng              float64 `json:"lng" binding:"required"`
	StopOrder        *int    `json:"stop_order,omitempty"`
	AllowPickup      *bool   `json:"allow_pickup,omitempty"`
	AllowDropoff     *bool   `json:"allow_dropoff,omitempty"`
	MinutesFromStart *int    `json:"minutes_from_start,omitempty"`
}

// Validate validates the create stop point request
func (r *CreateStopPointRequest) Validate() error {
	if r.Name == "" {
		return apperrors.Validation("name is required")
	}
	if !geo.ValidLatLon(r.Lat, r.Lng) {
		return apperrors.Validation("stop coordinates are out of range")
	}
	if r.StopOrder != nil && *r.StopOrder < 1 {
		return apperrors.Validation("stop_order must be at least 1")
	}
	if r.MinutesFromStart != nil && *r.MinutesFromStart < 0 {
		return apperrors.Validation("minutes_from_start cannot be negative")
	}
	return nil
}

// Coordinate returns the stop's location
func (s *StopPoint) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: s.Lat, Lng: s.Lng}
}
