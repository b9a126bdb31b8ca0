package services

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/ridelink/rideshare-backend/internal/apperrors"
	"github.com/ridelink/rideshare-backend/internal/database"
)

// TxStep is a unit of work executed inside the allocator's transaction,
// after the capacity check has passed and while the trip row lock is
// still held. The request-status flip runs here so check and commit are
// one atomic step.
type TxStep func(tx *sqlx.Tx) error

// Reservation is the outcome of a successful seat reservation
type Reservation struct {
	TripID    string `json:"trip_id"`
	Seats     int    `json:"seats"`
	Remaining int    `json:"remaining"`
}

// CapacityService is the single writer of approved seat totals. It keeps
// the invariant sum(approved seats) <= available_seats for every trip by
// serializing capacity-changing operations on a trip behind a row lock.
// No other component may flip a request into or out of approved.
type CapacityService struct {
	db          database.DB
	requestRepo *database.TripRequestRepository
	retries     int
	logger      *logrus.Logger
}

// NewCapacityService creates a new CapacityService
func NewCapacityService(db database.DB, requestRepo *database.TripRequestRepository, retries int, logger *logrus.Logger) *CapacityService {
	if retries < 1 {
		retries = 1
	}
	return &CapacityService{
		db:          db,
		requestRepo: requestRepo,
		retries:     retries,
		logger:      logger,
	}
}

// Reserve atomically checks that the trip has at least `seats` remaining
// and runs the commit step in the same transaction. Remaining seats are
// aggregated fresh from approved requests under the lock, never read
// from a cached column. Lock contention is retried a bounded number of
// times before surfacing as a seat-unavailable error.
func (s *CapacityService) Reserve(tripID string, seats int, commit TxStep) (*Reservation, error) {
	if seats < 1 {
		return nil, apperrors.Validation("seats must be at least 1")
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		reservation, err := s.reserveOnce(tripID, seats, commit)
		if err == nil {
			return reservation, nil
		}
		if !isRetryableConflict(err) {
			return nil, err
		}

		lastErr = err
		s.logger.WithFields(logrus.Fields{
			"trip_id": tripID,
			"seats":   seats,
			"attempt": attempt,
		}).Warn("Seat reservation hit a serialization conflict, retrying")
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}

	s.logger.WithError(lastErr).WithField("trip_id", tripID).Error("Seat reservation retries exhausted")
	return nil, apperrors.SeatUnavailable("could not reserve %d seat(s): persistent contention on trip", seats)
}

// Release returns previously reserved seats inside one transaction with
// the caller's status flip. It takes the same trip row lock as Reserve,
// so concurrent reserve/release on a trip are linearized.
func (s *CapacityService) Release(tripID string, seats int, commit TxStep) error {
	if seats < 1 {
		return apperrors.Validation("seats must be at least 1")
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err := s.releaseOnce(tripID, commit)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"trip_id": tripID,
				"seats":   seats,
			}).Info("Released seats")
			return nil
		}
		if !isRetryableConflict(err) {
			return err
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}

	return apperrors.Conflict("could not release seats: persistent contention on trip", lastErr)
}

func (s *CapacityService) reserveOnce(tripID string, seats int, commit TxStep) (*Reservation, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, apperrors.Internal("failed to begin reservation transaction", err)
	}
	defer tx.Rollback()

	availableSeats, err := s.lockTrip(tx, tripID)
	if err != nil {
		return nil, err
	}

	approved, err := s.requestRepo.ApprovedSeatsTx(tx, tripID)
	if err != nil {
		return nil, err
	}

	remaining := availableSeats - approved
	if remaining < seats {
		return nil, apperrors.SeatUnavailable("only %d seat(s) remaining, %d requested", remaining, seats)
	}

	if commit != nil {
		if err := commit(tx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":   tripID,
		"seats":     seats,
		"remaining": remaining - seats,
	}).Info("Reserved seats")

	return &Reservation{TripID: tripID, Seats: seats, Remaining: remaining - seats}, nil
}

func (s *CapacityService) releaseOnce(tripID string, commit TxStep) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return apperrors.Internal("failed to begin release transaction", err)
	}
	defer tx.Rollback()

	if _, err := s.lockTrip(tx, tripID); err != nil {
		return err
	}

	if commit != nil {
		if err := commit(tx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// lockTrip takes the row lock that serializes capacity changes for a
// trip and returns its capacity ceiling.
func (s *CapacityService) lockTrip(tx *sqlx.Tx, tripID string) (int, error) {
	var availableSeats int
	err := tx.QueryRow(`SELECT available_seats FROM trips WHERE id = $1 FOR UPDATE`, tripID).Scan(&availableSeats)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperrors.NotFound("trip")
		}
		return 0, err
	}
	return availableSeats, nil
}

// isRetryableConflict reports whether the error is a Postgres
// serialization failure or deadlock that a fresh attempt can resolve.
func isRetryableConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
