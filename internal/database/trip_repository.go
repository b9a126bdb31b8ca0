package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ridelink/rideshare-backend/internal/models"
)

// TripRepository handles database operations for the trips table
type TripRepository struct {
	db DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `id, route_id, driver_id, departure_time, arrival_time,
	   available_seats, price_per_seat, currency, status,
	   cancellation_reason, cancelled_at, created_at, updated_at`

// Create creates a new trip
func (r *TripRepository) Create(trip *models.Trip) error {
	query := `
		INSERT INTO trips (
			id, route_id, driver_id, departure_time, arrival_time,
			available_seats, price_per_seat, currency, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING created_at, updated_at
	`

	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}

	err := r.db.QueryRow(
		query,
		trip.ID, trip.RouteID, trip.DriverID, trip.DepartureTime, trip.ArrivalTime,
		trip.AvailableSeats, trip.PricePerSeat, trip.Currency, trip.Status,
	).Scan(&trip.CreatedAt, &trip.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}

	return nil
}

// GetByID retrieves a trip by ID
func (r *TripRepository) GetByID(tripID string) (*models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	return r.scanTrip(r.db.QueryRow(query, tripID))
}

// GetByDriverID retrieves all trips posted by a driver
func (r *TripRepository) GetByDriverID(driverID string) ([]models.Trip, error) {
	query := `SELECT ` + tripColumns + `
		FROM trips
		WHERE driver_id = $1
		ORDER BY departure_time DESC`

	rows, err := r.db.Query(query, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTrips(rows)
}

// GetByRouteID retrieves all trips posted against a route
func (r *TripRepository) GetByRouteID(routeID string) ([]models.Trip, error) {
	query := `SELECT ` + tripColumns + `
		FROM trips
		WHERE route_id = $1
		ORDER BY departure_time DESC`

	rows, err := r.db.Query(query, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTrips(rows)
}

// RemainingSeats computes available_seats minus the sum of approved
// request seats, fresh from the request ledger. The value is never
// cached on the trip row.
func (r *TripRepository) RemainingSeats(tripID string) (int, error) {
	query := `
		SELECT t.available_seats - COALESCE((
			SELECT SUM(tr.requested_seats)
			FROM trip_requests tr
			WHERE tr.trip_id = t.id AND tr.status = 'approved'
		), 0)
		FROM trips t
		WHERE t.id = $1
	`

	var remaining int
	err := r.db.QueryRow(query, tripID).Scan(&remaining)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("trip not found")
		}
		return 0, err
	}

	return remaining, nil
}

// Update updates a trip's mutable fields before departure
func (r *TripRepository) Update(trip *models.Trip) error {
	query := `
		UPDATE trips
		SET departure_time = $2, arrival_time = $3, available_seats = $4,
			price_per_seat = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		query,
		trip.ID, trip.DepartureTime, trip.ArrivalTime, trip.AvailableSeats,
		trip.PricePerSeat,
	).Scan(&trip.UpdatedAt)

	return err
}

// UpdateStatus updates the status of a trip. The expected current status
// guards against concurrent lifecycle changes; zero rows means the trip
// was not in that state.
func (r *TripRepository) UpdateStatus(tripID string, from, to models.TripStatus) (bool, error) {
	query := `
		UPDATE trips
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.Exec(query, tripID, from, to)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// Cancel cancels a trip with an optional reason
func (r *TripRepository) Cancel(tripID string, reason *string) (bool, error) {
	query := `
		UPDATE trips
		SET status = 'cancelled',
			cancellation_reason = $2,
			cancelled_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'active')
	`

	result, err := r.db.Exec(query, tripID, reason)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// SearchAvailable finds bookable trips matching the filters. Seat
// availability is a HAVING-style check: remaining seats are evaluated
// after aggregating approved requests, never against the raw capacity
// column. Location filtering is done by the caller over the returned
// route coordinates.
func (r *TripRepository) SearchAvailable(filters models.TripSearchFilters) ([]models.TripWithAvailability, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT t.id, t.route_id, t.driver_id, t.departure_time, t.arrival_time,
			   t.available_seats, t.price_per_seat, t.currency, t.status,
			   t.cancellation_reason, t.cancelled_at, t.created_at, t.updated_at,
			   t.available_seats - COALESCE(SUM(tr.requested_seats), 0) AS remaining_seats,
			   r.name AS route_name, r.start_location, r.end_location,
			   r.start_lat, r.start_lng, r.end_lat, r.end_lng
		FROM trips t
		JOIN routes r ON r.id = t.route_id AND r.is_active = true
		LEFT JOIN trip_requests tr ON tr.trip_id = t.id AND tr.status = 'approved'
		WHERE t.status = 'scheduled'
		  AND t.departure_time > NOW()
	`)

	args := []interface{}{}
	idx := 1

	if filters.RouteID != nil {
		sb.WriteString(fmt.Sprintf(" AND t.route_id = $%d", idx))
		args = append(args, *filters.RouteID)
		idx++
	}
	if filters.DateFrom != nil {
		sb.WriteString(fmt.Sprintf(" AND t.departure_time >= $%d", idx))
		args = append(args, *filters.DateFrom)
		idx++
	}
	if filters.DateTo != nil {
		sb.WriteString(fmt.Sprintf(" AND t.departure_time <= $%d", idx))
		args = append(args, *filters.DateTo)
		idx++
	}
	if filters.MaxPrice != nil {
		sb.WriteString(fmt.Sprintf(" AND t.price_per_seat <= $%d", idx))
		args = append(args, *filters.MaxPrice)
		idx++
	}

	minSeats := filters.MinSeats
	if minSeats < 1 {
		minSeats = 1
	}
	sb.WriteString(fmt.Sprintf(`
		GROUP BY t.id, r.name, r.start_location, r.end_location,
				 r.start_lat, r.start_lng, r.end_lat, r.end_lng
		HAVING t.available_seats - COALESCE(SUM(tr.requested_seats), 0) >= $%d
		ORDER BY t.departure_time
	`, idx))
	args = append(args, minSeats)
	idx++

	if filters.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", idx))
		args = append(args, filters.Limit)
	}

	rows, err := r.db.Query(sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := []models.TripWithAvailability{}
	for rows.Next() {
		var trip models.TripWithAvailability
		var arrivalTime sql.NullTime
		var cancellationReason sql.NullString
		var cancelledAt sql.NullTime

		err := rows.Scan(
			&trip.ID, &trip.RouteID, &trip.DriverID, &trip.DepartureTime, &arrivalTime,
			&trip.AvailableSeats, &trip.PricePerSeat, &trip.Currency, &trip.Status,
			&cancellationReason, &cancelledAt, &trip.CreatedAt, &trip.UpdatedAt,
			&trip.RemainingSeats,
			&trip.RouteName, &trip.StartLocation, &trip.EndLocation,
			&trip.StartLat, &trip.StartLng, &trip.EndLat, &trip.EndLng,
		)
		if err != nil {
			return nil, err
		}

		if arrivalTime.Valid {
			trip.ArrivalTime = &arrivalTime.Time
		}
		if cancellationReason.Valid {
			trip.CancellationReason = &cancellationReason.String
		}
		if cancelledAt.Valid {
			trip.CancelledAt = &cancelledAt.Time
		}

		trips = append(trips, trip)
	}

	return trips, rows.Err()
}

// HasApprovedRequests reports whether any request on the trip has been
// approved. Seat capacity becomes immutable once true.
func (r *TripRepository) HasApprovedRequests(tripID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM trip_requests
			WHERE trip_id = $1 AND status = 'approved'
		)
	`

	var exists bool
	err := r.db.QueryRow(query, tripID).Scan(&exists)
	return exists, err
}

// scanTrip scans a single trip
func (r *TripRepository) scanTrip(row scanner) (*models.Trip, error) {
	trip := &models.Trip{}
	var arrivalTime sql.NullTime
	var cancellationReason sql.NullString
	var cancelledAt sql.NullTime

	err := row.Scan(
		&trip.ID, &trip.RouteID, &trip.DriverID, &trip.DepartureTime, &arrivalTime,
		&trip.AvailableSeats, &trip.PricePerSeat, &trip.Currency, &trip.Status,
		&cancellationReason, &cancelledAt, &trip.CreatedAt, &trip.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	if arrivalTime.Valid {
		trip.ArrivalTime = &arrivalTime.Time
	}
	if cancellationReason.Valid {
		trip.CancellationReason = &cancellationReason.String
	}
	if cancelledAt.Valid {
		trip.CancelledAt = &cancelledAt.Time
	}

	return trip, nil
}

// scanTrips scans multiple trips from rows
func (r *TripRepository) scanTrips(rows *sql.Rows) ([]models.Trip, error) {
	trips := []models.Trip{}

	for rows.Next() {
		var trip models.Trip
		var arrivalTime sql.NullTime
		var cancellationReason sql.NullString
		var cancelledAt sql.NullTime

		err := rows.Scan(
			&trip.ID, &trip.RouteID, &trip.DriverID, &trip.DepartureTime, &arrivalTime,
			&trip.AvailableSeats, &trip.PricePerSeat, &trip.Currency, &trip.Status,
			&cancellationReason, &cancelledAt, &trip.CreatedAt, &trip.UpdatedAt,
		)

		if err != nil {
			return nil, err
		}

		if arrivalTime.Valid {
			trip.ArrivalTime = &arrivalTime.Time
		}
		if cancellationReason.Valid {
			trip.CancellationReason = &cancellationReason.String
		}
		if cancelledAt.Valid {
			trip.CancelledAt = &cancelledAt.Time
		}

		trips = append(trips, trip)
	}

	return trips, rows.Err()
}
