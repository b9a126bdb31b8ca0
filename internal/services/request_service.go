package services

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/ridelink/rideshare-backend/internal/apperrors"
	"github.com/ridelink/rideshare-backend/internal/config"
	"github.com/ridelink/rideshare-backend/internal/database"
	"github.com/ridelink/rideshare-backend/internal/models"
)

// RequestService owns the trip request ledger: creation, the
// driver's approve/reject decisions and passenger cancellation. Every
// status flip that consumes or releases seats goes through the capacity
// allocator; this service never touches approved totals directly.
type RequestService struct {
	requestRepo *database.TripRequestRepository
	tripRepo    *database.TripRepository
	stopRepo    *database.StopPointRepository
	capacity    *CapacityService
	cfg         config.BookingConfig
	logger      *logrus.Logger
	now         func() time.Time
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requestRepo *database.TripRequestRepository,
	tripRepo *database.TripRepository,
	stopRepo *database.StopPointRepository,
	capacity *CapacityService,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *RequestService {
	return &RequestService{
		requestRepo: requestRepo,
		tripRepo:    tripRepo,
		stopRepo:    stopRepo,
		capacity:    capacity,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Create files a pending seat request. The total price is computed and
// frozen here; later price changes on the trip do not touch existing
// requests. A passenger holds at most one active request per trip.
func (s *RequestService) Create(passengerID string, req *models.CreateTripRequestRequest) (*models.TripRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.RequestedSeats > s.cfg.MaxSeatsPerRequest {
		return nil, apperrors.Validation("requested_seats cannot exceed %d", s.cfg.MaxSeatsPerRequest)
	}

	trip, err := s.tripRepo.GetByID(req.TripID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("trip")
		}
		return nil, apperrors.Internal("failed to fetch trip", err)
	}

	if trip.DriverID == passengerID {
		return nil, apperrors.Permission("drivers cannot request seats on their own trip")
	}

	remaining, err := s.tripRepo.RemainingSeats(trip.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to compute remaining seats", err)
	}
	if !trip.IsBookable(s.now(), remaining) {
		if trip.HasStarted(s.now()) {
			return nil, apperrors.TripAlreadyStarted()
		}
		if trip.Status != models.TripStatusScheduled {
			return nil, apperrors.Validation("trip is not open for requests")
		}
		return nil, apperrors.SeatUnavailable("trip has no remaining seats")
	}
	if req.RequestedSeats > remaining {
		return nil, apperrors.SeatUnavailable("only %d seat(s) remaining, %d requested", remaining, req.RequestedSeats)
	}

	active, err := s.requestRepo.HasActiveRequest(trip.ID, passengerID)
	if err != nil {
		return nil, apperrors.Internal("failed to check existing requests", err)
	}
	if active {
		return nil, apperrors.DuplicateRequest("you already have an active request on this trip")
	}

	if err := s.validateStop(trip.RouteID, req.PickupStopID, true); err != nil {
		return nil, err
	}
	if err := s.validateStop(trip.RouteID, req.DropoffStopID, false); err != nil {
		return nil, err
	}

	request := &models.TripRequest{
		TripID:         trip.ID,
		PassengerID:    passengerID,
		RequestedSeats: req.RequestedSeats,
		PickupStopID:   req.PickupStopID,
		DropoffStopID:  req.DropoffStopID,
		Message:        req.Message,
		TotalPrice:     trip.PricePerSeat * float64(req.RequestedSeats),
		Currency:       trip.Currency,
		Status:         models.RequestStatusPending,
	}

	if err := s.requestRepo.Create(request); err != nil {
		// The partial unique index on active (trip, passenger) pairs
		// backstops the HasActiveRequest pre-check: two concurrent
		// creations can both pass it, but only one insert lands.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apperrors.DuplicateRequest("you already have an active request on this trip")
		}
		return nil, apperrors.Internal("failed to create trip request", err)
	}

	s.logger.WithFields(logrus.Fields{
		"request_id":   request.ID,
		"trip_id":      trip.ID,
		"passenger_id": passengerID,
		"seats":        request.RequestedSeats,
		"total_price":  request.TotalPrice,
	}).Info("Trip request created")

	return request, nil
}

// GetByID retrieves a request, visible only to its passenger, the
// trip's driver or an admin.
func (s *RequestService) GetByID(actorID string, roles []string, requestID string) (*models.TripRequest, error) {
	request, trip, err := s.loadRequestAndTrip(requestID)
	if err != nil {
		return nil, err
	}

	if request.PassengerID != actorID && trip.DriverID != actorID && !hasRole(roles, AdminRole) {
		return nil, apperrors.Permission("you are not a party to this request")
	}

	return request, nil
}

// Approve accepts a pending request. The capacity check and the status
// flip run in one transaction under the trip row lock, so two drivers'
// approvals (or two concurrent approvals of different requests) can
// never oversell the trip.
func (s *RequestService) Approve(driverID, requestID string) (*models.TripRequest, error) {
	request, trip, err := s.loadRequestAndTrip(requestID)
	if err != nil {
		return nil, err
	}

	if trip.DriverID != driverID {
		return nil, apperrors.Permission("only the trip's driver can approve requests")
	}
	if !request.CanTransitionTo(models.RequestStatusApproved) {
		return nil, apperrors.InvalidStateTransition(string(request.Status), string(models.RequestStatusApproved))
	}
	if trip.HasStarted(s.now()) {
		return nil, apperrors.TripAlreadyStarted()
	}
	if trip.Status != models.TripStatusScheduled {
		return nil, apperrors.Validation("trip is no longer accepting approvals")
	}

	_, err = s.capacity.Reserve(trip.ID, request.RequestedSeats, func(tx *sqlx.Tx) error {
		flipped, err := s.requestRepo.UpdateStatusTx(tx, requestID, models.RequestStatusPending, models.RequestStatusApproved)
		if err != nil {
			return err
		}
		if !flipped {
			return apperrors.InvalidStateTransition(string(request.Status), string(models.RequestStatusApproved))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	request.Status = models.RequestStatusApproved
	now := s.now()
	request.RespondedAt = &now

	s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"trip_id":    trip.ID,
		"seats":      request.RequestedSeats,
	}).Info("Trip request approved")

	return request, nil
}

// Reject declines a pending request. Rejecting holds no seats, so no
// capacity transaction is needed; the guarded update makes a repeated
// reject surface as an invalid transition rather than silently succeed.
func (s *RequestService) Reject(driverID, requestID string) (*models.TripRequest, error) {
	request, trip, err := s.loadRequestAndTrip(requestID)
	if err != nil {
		return nil, err
	}

	if trip.DriverID != driverID {
		return nil, apperrors.Permission("only the trip's driver can reject requests")
	}
	if !request.CanTransitionTo(models.RequestStatusRejected) {
		return nil, apperrors.InvalidStateTransition(string(request.Status), string(models.RequestStatusRejected))
	}

	flipped, err := s.requestRepo.UpdateStatus(requestID, models.RequestStatusPending, models.RequestStatusRejected)
	if err != nil {
		return nil, apperrors.Internal("failed to reject request", err)
	}
	if !flipped {
		return nil, apperrors.InvalidStateTransition(string(request.Status), string(models.RequestStatusRejected))
	}

	request.Status = models.RequestStatusRejected
	now := s.now()
	request.RespondedAt = &now

	s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"trip_id":    trip.ID,
	}).Info("Trip request rejected")

	return request, nil
}

// Cancel withdraws the passenger's own request. Cancelling an approved
// request releases its seats through the allocator; cancelling a pending
// one is a plain status flip.
func (s *RequestService) Cancel(passengerID, requestID string) (*models.TripRequest, error) {
	request, trip, err := s.loadRequestAndTrip(requestID)
	if err != nil {
		return nil, err
	}

	if request.PassengerID != passengerID {
		return nil, apperrors.Permission("only the requesting passenger can cancel")
	}
	if !request.CanTransitionTo(models.RequestStatusCancelled) {
		return nil, apperrors.InvalidStateTransition(string(request.Status), string(models.RequestStatusCancelled))
	}

	if request.Status == models.RequestStatusApproved {
		err = s.capacity.Release(trip.ID, request.RequestedSeats, func(tx *sqlx.Tx) error {
			flipped, err := s.requestRepo.UpdateStatusTx(tx, requestID, models.RequestStatusApproved, models.RequestStatusCancelled)
			if err != nil {
				return err
			}
			if !flipped {
				return apperrors.InvalidStateTransition(string(request.Status), string(models.RequestStatusCancelled))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		flipped, err := s.requestRepo.UpdateStatus(requestID, models.RequestStatusPending, models.RequestStatusCancelled)
		if err != nil {
			return nil, apperrors.Internal("failed to cancel request", err)
		}
		if !flipped {
			return nil, apperrors.InvalidStateTransition(string(request.Status), string(models.RequestStatusCancelled))
		}
	}

	request.Status = models.RequestStatusCancelled

	s.logger.WithFields(logrus.Fields{
		"request_id":   requestID,
		"trip_id":      trip.ID,
		"passenger_id": passengerID,
	}).Info("Trip request cancelled")

	return request, nil
}

// ListForTrip lists all requests on a trip for its driver
func (s *RequestService) ListForTrip(driverID string, roles []string, tripID string) ([]models.TripRequest, error) {
	trip, err := s.tripRepo.GetByID(tripID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("trip")
		}
		return nil, apperrors.Internal("failed to fetch trip", err)
	}

	if trip.DriverID != driverID && !hasRole(roles, AdminRole) {
		return nil, apperrors.Permission("only the trip's driver can list its requests")
	}

	return s.requestRepo.GetByTripID(tripID)
}

// ListMine lists the caller's own requests, newest first
func (s *RequestService) ListMine(passengerID string) ([]models.TripRequest, error) {
	return s.requestRepo.GetByPassengerID(passengerID)
}

// StatsForTrip aggregates a trip's requests by status for its driver
func (s *RequestService) StatsForTrip(driverID string, roles []string, tripID string) ([]models.RequestStats, error) {
	trip, err := s.tripRepo.GetByID(tripID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("trip")
		}
		return nil, apperrors.Internal("failed to fetch trip", err)
	}

	if trip.DriverID != driverID && !hasRole(roles, AdminRole) {
		return nil, apperrors.Permission("only the trip's driver can view request stats")
	}

	return s.requestRepo.GetStatsByTripID(tripID)
}

func (s *RequestService) loadRequestAndTrip(requestID string) (*models.TripRequest, *models.Trip, error) {
	request, err := s.requestRepo.GetByID(requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, apperrors.NotFound("trip request")
		}
		return nil, nil, apperrors.Internal("failed to fetch trip request", err)
	}

	trip, err := s.tripRepo.GetByID(request.TripID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, apperrors.NotFound("trip")
		}
		return nil, nil, apperrors.Internal("failed to fetch trip", err)
	}

	return request, trip, nil
}

// validateStop checks that an optional pickup/dropoff stop belongs to
// the trip's route and allows that direction of boarding.
func (s *RequestService) validateStop(routeID string, stopID *string, pickup bool) error {
	if stopID == nil {
		return nil
	}

	stop, err := s.stopRepo.GetByID(*stopID)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperrors.NotFound("stop point")
		}
		return apperrors.Internal("failed to fetch stop point", err)
	}

	if stop.RouteID != routeID {
		return apperrors.Validation("stop point does not belong to the trip's route")
	}
	if pickup && !stop.AllowPickup {
		return apperrors.Validation("stop point does not allow pickup")
	}
	if !pickup && !stop.AllowDropoff {
		return apperrors.Validation("stop point does not allow dropoff")
	}

	return nil
}
