package models

import (
	"time"

	"github.com/ridelink/rideshare-backend/internal/apperrors"
)

// RequestStatus represents the lifecycle status of a trip request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// requestTransitions is the allowed transition table for requests.
// Approved requests can still be cancelled by the passenger, which
// releases their seats.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled},
	RequestStatusApproved: {RequestStatusCancelled},
}

// TripRequest represents a passenger's bid for seats on a trip. Requests
// are never physically deleted; total_price is frozen at creation time.
type TripRequest struct {
	ID             string        `json:"id" db:"id"`
	TripID         string        `json:"trip_id" db:"trip_id"`
	PassengerID    string        `json:"passenger_id" db:"passenger_id"`
	RequestedSeats int           `json:"requested_seats" db:"requested_seats"`
	PickupStopID   *string       `json:"pickup_stop_id,omitempty" db:"pickup_stop_id"`
	DropoffStopID  *string       `json:"dropoff_stop_id,omitempty" db:"dropoff_stop_id"`
	Message        *string       `json:"message,omitempty" db:"message"`
	TotalPrice     float64       `json:"total_price" db:"total_price"`
	Currency       string        `json:"currency" db:"currency"`
	Status         RequestStatus `json:"status" db:"status"`
	RespondedAt    *time.Time    `json:"responded_at,omitempty" db:"responded_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// CreateTripRequestRequest represents a passenger's request for seats
type CreateTripRequestRequest struct {
	TripID         string  `json:"trip_id" binding:"required"`
	RequestedSeats int     `json:"requested_seats" binding:"required,min=1"`
	PickupStopID   *string `json:"pickup_stop_id,omitempty"`
	DropoffStopID  *string `json:"dropoff_stop_id,omitempty"`
	Message        *string `json:"message,omitempty"`
}

// Validate validates the create trip request payload
func (r *CreateTripRequestRequest) Validate() error {
	if r.RequestedSeats < 1 {
		return apperrors.Validation("requested_seats must be at least 1")
	}
	return nil
}

// IsActive reports whether the request blocks another request from the
// same passenger on the same trip.
func (r *TripRequest) IsActive() bool {
	return r.Status == RequestStatusPending || r.Status == RequestStatusApproved
}

// CanTransitionTo reports whether the status change is allowed
func (r *TripRequest) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[r.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition applies a status change after checking the transition table
func (r *TripRequest) Transition(next RequestStatus) error {
	if !r.CanTransitionTo(next) {
		return apperrors.InvalidStateTransition(string(r.Status), string(next))
	}
	r.Status = next
	return nil
}

// RequestStats aggregates a trip's requests by status for the driver
// dashboard. It is informational only and plays no part in the capacity
// invariant.
type RequestStats struct {
	Status     RequestStatus `json:"status" db:"status"`
	Count      int           `json:"count" db:"count"`
	TotalSeats int           `json:"total_seats" db:"total_seats"`
	TotalValue float64       `json:"total_value" db:"total_value"`
}
