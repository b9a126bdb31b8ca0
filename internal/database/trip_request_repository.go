package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/ridelink/rideshare-backend/internal/models"
)

// TripRequestRepository handles database operations for the
// trip_requests table. Status flips that consume or release seats are
// exposed as Tx variants so the capacity allocator can run them inside
// its locked transaction.
type TripRequestRepository struct {
	db DB
}

// NewTripRequestRepository creates a new TripRequestRepository
func NewTripRequestRepository(db DB) *TripRequestRepository {
	return &TripRequestRepository{db: db}
}

const tripRequestColumns = `id, trip_id, passenger_id, requested_seats,
	   pickup_stop_id, dropoff_stop_id, message, total_price, currency,
	   status, responded_at, created_at, updated_at`

// Create creates a new trip request
func (r *TripRequestRepository) Create(request *models.TripRequest) error {
	query := `
		INSERT INTO trip_requests (
			id, trip_id, passenger_id, requested_seats,
			pickup_stop_id, dropoff_stop_id, message, total_price, currency, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING created_at, updated_at
	`

	if request.ID == "" {
		request.ID = uuid.New().String()
	}

	err := r.db.QueryRow(
		query,
		request.ID, request.TripID, request.PassengerID, request.RequestedSeats,
		request.PickupStopID, request.DropoffStopID, request.Message,
		request.TotalPrice, request.Currency, request.Status,
	).Scan(&request.CreatedAt, &request.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create trip request: %w", err)
	}

	return nil
}

// GetByID retrieves a trip request by ID
func (r *TripRequestRepository) GetByID(requestID string) (*models.TripRequest, error) {
	query := `SELECT ` + tripRequestColumns + ` FROM trip_requests WHERE id = $1`

	return r.scanRequest(r.db.QueryRow(query, requestID))
}

// GetByTripID retrieves all requests on a trip
func (r *TripRequestRepository) GetByTripID(tripID string) ([]models.TripRequest, error) {
	query := `SELECT ` + tripRequestColumns + `
		FROM trip_requests
		WHERE trip_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRequests(rows)
}

// GetByPassengerID retrieves all requests made by a passenger
func (r *TripRequestRepository) GetByPassengerID(passengerID string) ([]models.TripRequest, error) {
	query := `SELECT ` + tripRequestColumns + `
		FROM trip_requests
		WHERE passenger_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, passengerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRequests(rows)
}

// HasActiveRequest reports whether the passenger already holds a pending
// or approved request on the trip. At most one active request may exist
// per (trip, passenger) pair.
func (r *TripRequestRepository) HasActiveRequest(tripID, passengerID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM trip_requests
			WHERE trip_id = $1 AND passenger_id = $2
			  AND status IN ('pending', 'approved')
		)
	`

	var exists bool
	err := r.db.QueryRow(query, tripID, passengerID).Scan(&exists)
	return exists, err
}

// ApprovedSeatsTx sums the seats of approved requests on a trip inside
// the caller's transaction. Used under the trip row lock.
func (r *TripRequestRepository) ApprovedSeatsTx(tx *sqlx.Tx, tripID string) (int, error) {
	query := `
		SELECT COALESCE(SUM(requested_seats), 0)
		FROM trip_requests
		WHERE trip_id = $1 AND status = 'approved'
	`

	var seats int
	err := tx.QueryRow(query, tripID).Scan(&seats)
	return seats, err
}

// UpdateStatusTx flips a request's status inside the caller's
// transaction, guarded by the expected current status. Returns false
// when the request was not in that state.
func (r *TripRequestRepository) UpdateStatusTx(tx *sqlx.Tx, requestID string, from, to models.RequestStatus) (bool, error) {
	query := `
		UPDATE trip_requests
		SET status = $3, responded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := tx.Exec(query, requestID, from, to)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// UpdateStatus flips a request's status outside any capacity-changing
// path (reject, cancel of a pending request).
func (r *TripRequestRepository) UpdateStatus(requestID string, from, to models.RequestStatus) (bool, error) {
	query := `
		UPDATE trip_requests
		SET status = $3, responded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.Exec(query, requestID, from, to)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// GetStatsByTripID aggregates count, seat sum and value sum of a trip's
// requests grouped by status.
func (r *TripRequestRepository) GetStatsByTripID(tripID string) ([]models.RequestStats, error) {
	query := `
		SELECT status,
			   COUNT(*) AS count,
			   COALESCE(SUM(requested_seats), 0) AS total_seats,
			   COALESCE(SUM(total_price), 0) AS total_value
		FROM trip_requests
		WHERE trip_id = $1
		GROUP BY status
		ORDER BY status
	`

	rows, err := r.db.Query(query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []models.RequestStats{}
	for rows.Next() {
		var s models.RequestStats
		if err := rows.Scan(&s.Status, &s.Count, &s.TotalSeats, &s.TotalValue); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// scanRequest scans a single trip request
func (r *TripRequestRepository) scanRequest(row scanner) (*models.TripRequest, error) {
	request := &models.TripRequest{}
	var pickupStopID sql.NullString
	var dropoffStopID sql.NullString
	var message sql.NullString
	var respondedAt sql.NullTime

	err := row.Scan(
		&request.ID, &request.TripID, &request.PassengerID, &request.RequestedSeats,
		&pickupStopID, &dropoffStopID, &message, &request.TotalPrice, &request.Currency,
		&request.Status, &respondedAt, &request.CreatedAt, &request.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	if pickupStopID.Valid {
		request.PickupStopID = &pickupStopID.String
	}
	if dropoffStopID.Valid {
		request.DropoffStopID = &dropoffStopID.String
	}
	if message.Valid {
		request.Message = &message.String
	}
	if respondedAt.Valid {
		request.RespondedAt = &respondedAt.Time
	}

	return request, nil
}

// scanRequests scans multiple trip requests from rows
func (r *TripRequestRepository) scanRequests(rows *sql.Rows) ([]models.TripRequest, error) {
	requests := []models.TripRequest{}

	for rows.Next() {
		var request models.TripRequest
		var pickupStopID sql.NullString
		var dropoffStopID sql.NullString
		var message sql.NullString
		var respondedAt sql.NullTime

		err := rows.Scan(
			&request.ID, &request.TripID, &request.PassengerID, &request.RequestedSeats,
			&pickupStopID, &dropoffStopID, &message, &request.TotalPrice, &request.Currency,
			&request.Status, &respondedAt, &request.CreatedAt, &request.UpdatedAt,
		)

		if err != nil {
			return nil, err
		}

		if pickupStopID.Valid {
			request.PickupStopID = &pickupStopID.String
		}
		if dropoffStopID.Valid {
			request.DropoffStopID = &dropoffStopID.String
		}
		if message.Valid {
			request.Message = &message.String
		}
		if respondedAt.Valid {
			request.RespondedAt = &respondedAt.Time
		}

		requests = append(requests, request)
	}

	return requests, rows.Err()
}
