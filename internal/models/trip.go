package models

import (
	"time"

	"github.com/ridelink/rideshare-backend/internal/apperrors"
)

// TripStatus represents the lifecycle status of a trip
type TripStatus string

const (
	TripStatusScheduled TripStatus = "scheduled"
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

// tripTransitions is the allowed transition table. Terminal states have
// no outgoing edges.
var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusScheduled: {TripStatusActive, TripStatusCancelled},
	TripStatusActive:    {TripStatusCompleted, TripStatusCancelled},
}

// Trip represents a driver-scheduled instance of travel along a route
// with finite seat capacity.
type Trip struct {
	ID                 string     `json:"id" db:"id"`
	RouteID            string     `json:"route_id" db:"route_id"`
	DriverID           string     `json:"driver_id" db:"driver_id"`
	DepartureTime      time.Time  `json:"departure_time" db:"departure_time"`
	ArrivalTime        *time.Time `json:"arrival_time,omitempty" db:"arrival_time"`
	AvailableSeats     int        `json:"available_seats" db:"available_seats"`
	PricePerSeat       float64    `json:"price_per_seat" db:"price_per_seat"`
	Currency           string     `json:"currency" db:"currency"`
	Status             TripStatus `json:"status" db:"status"`
	CancellationReason *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// CreateTripRequest represents the request to post a trip on a route
type CreateTripRequest struct {
	RouteID        string     `json:"route_id" binding:"required"`
	DepartureTime  time.Time  `json:"departure_time" binding:"required"`
	ArrivalTime    *time.Time `json:"arrival_time,omitempty"`
	AvailableSeats int        `json:"available_seats" binding:"required,min=1"`
	PricePerSeat   float64    `json:"price_per_seat" binding:"min=0"`
	Currency       *string    `json:"currency,omitempty"`
}

// UpdateTripRequest represents the request to update a trip before departure
type UpdateTripRequest struct {
	DepartureTime  *time.Time `json:"departure_time,omitempty"`
	ArrivalTime    *time.Time `json:"arrival_time,omitempty"`
	AvailableSeats *int       `json:"available_seats,omitempty"`
	PricePerSeat   *float64   `json:"price_per_seat,omitempty"`
}

// CancelTripRequest carries an optional cancellation reason
type CancelTripRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// TripSearchFilters holds the optional filters for trip search.
// MinSeats is evaluated against remaining seats after aggregating
// approved requests, not against the capacity ceiling.
type TripSearchFilters struct {
	RouteID   *string    `form:"route_id"`
	DateFrom  *time.Time `form:"date_from"`
	DateTo    *time.Time `form:"date_to"`
	MaxPrice  *float64   `form:"max_price"`
	MinSeats  int        `form:"min_seats"`
	Lat       *float64   `form:"lat"`
	Lng       *float64   `form:"lng"`
	RadiusKm  *float64   `form:"radius_km"`
	Limit     int        `form:"limit"`
}

// Validate validates the create trip request
func (r *CreateTripRequest) Validate() error {
	if !r.DepartureTime.After(time.Now()) {
		return apperrors.Validation("departure_time must be in the future")
	}
	if r.ArrivalTime != nil && !r.ArrivalTime.After(r.DepartureTime) {
		return apperrors.Validation("arrival_time must be after departure_time")
	}
	if r.AvailableSeats < 1 {
		return apperrors.Validation("available_seats must be at least 1")
	}
	if r.PricePerSeat < 0 {
		return apperrors.Validation("price_per_seat cannot be negative")
	}
	return nil
}

// HasStarted reports whether the trip's departure time has passed.
// Status and time gate mutation independently: a trip past departure is
// immutable even if its stored status is still scheduled.
func (t *Trip) HasStarted(now time.Time) bool {
	return !now.Before(t.DepartureTime)
}

// IsTerminal reports whether the trip is in a terminal state
func (t *Trip) IsTerminal() bool {
	return t.Status == TripStatusCompleted || t.Status == TripStatusCancelled
}

// CanTransitionTo reports whether the status change is allowed by the
// trip lifecycle state machine.
func (t *Trip) CanTransitionTo(next TripStatus) bool {
	for _, allowed := range tripTransitions[t.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition applies a status change after checking the transition table
func (t *Trip) Transition(next TripStatus) error {
	if !t.CanTransitionTo(next) {
		return apperrors.InvalidStateTransition(string(t.Status), string(next))
	}
	t.Status = next
	return nil
}

// IsBookable reports whether the trip accepts new requests: scheduled,
// departure strictly in the future, and remaining seats above zero.
func (t *Trip) IsBookable(now time.Time, remainingSeats int) bool {
	return t.Status == TripStatusScheduled && now.Before(t.DepartureTime) && remainingSeats > 0
}

// TripWithAvailability is a trip joined with its computed remaining
// seats and the route endpoints used for location filtering.
type TripWithAvailability struct {
	Trip
	RemainingSeats int      `json:"remaining_seats" db:"remaining_seats"`
	RouteName      string   `json:"route_name" db:"route_name"`
	StartLocation  string   `json:"start_location" db:"start_location"`
	EndLocation    string   `json:"end_location" db:"end_location"`
	StartLat       float64  `json:"start_lat" db:"start_lat"`
	StartLng       float64  `json:"start_lng" db:"start_lng"`
	EndLat         float64  `json:"end_lat" db:"end_lat"`
	EndLng         float64  `json:"end_lng" db:"end_lng"`
	DistanceKm     *float64 `json:"distance_km,omitempty" db:"-"`
	DriverRating   *float64 `json:"driver_rating,omitempty" db:"-"`
}
