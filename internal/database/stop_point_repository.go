package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ridelink/rideshare-backend/internal/models"
)

// StopPointRepository handles database operations for the stop_points
// table. Operations that change stop_order run inside a transaction with
// a row lock on the owning route, so concurrent renumbering passes on
// the same route cannot interleave.
type StopPointRepository struct {
	db DB
}

// NewStopPointRepository creates a new StopPointRepository
func NewStopPointRepository(db DB) *StopPointRepository {
	return &StopPointRepository{db: db}
}

const stopPointColumns = `id, route_id, name, address, lat, lng, stop_order,
	   allow_pickup, allow_dropoff, minutes_from_start, created_at, updated_at`

// GetByID retrieves a stop point by ID
func (r *StopPointRepository) GetByID(stopID string) (*models.StopPoint, error) {
	query := `SELECT ` + stopPointColumns + ` FROM stop_points WHERE id = $1`

	return r.scanStopPoint(r.db.QueryRow(query, stopID))
}

// GetByRouteID retrieves all stops of a route ordered by stop_order
func (r *StopPointRepository) GetByRouteID(routeID string) ([]models.StopPoint, error) {
	query := `SELECT ` + stopPointColumns + `
		FROM stop_points
		WHERE route_id = $1
		ORDER BY stop_order`

	rows, err := r.db.Query(query, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanStopPoints(rows)
}

// MaxOrder returns the highest stop_order on a route, 0 when the route
// has no stops yet.
func (r *StopPointRepository) MaxOrder(routeID string) (int, error) {
	query := `SELECT COALESCE(MAX(stop_order), 0) FROM stop_points WHERE route_id = $1`

	var maxOrder int
	err := r.db.QueryRow(query, routeID).Scan(&maxOrder)
	return maxOrder, err
}

// Insert adds a stop at the given order. When the order lands inside the
// existing sequence, subsequent stops are shifted up by one first so the
// sequence stays contiguous. The whole operation holds a lock on the
// route row.
func (r *StopPointRepository) Insert(stop *models.StopPoint) error {
	if stop.ID == "" {
		stop.ID = uuid.New().String()
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var routeID string
	if err := tx.QueryRow(`SELECT id FROM routes WHERE id = $1 FOR UPDATE`, stop.RouteID).Scan(&routeID); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("route not found")
		}
		return fmt.Errorf("failed to lock route: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE stop_points
		SET stop_order = stop_order + 1, updated_at = NOW()
		WHERE route_id = $1 AND stop_order >= $2
	`, stop.RouteID, stop.StopOrder)
	if err != nil {
		return fmt.Errorf("failed to shift stop orders: %w", err)
	}

	err = tx.QueryRow(`
		INSERT INTO stop_points (
			id, route_id, name, address, lat, lng, stop_order,
			allow_pickup, allow_dropoff, minutes_from_start
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING created_at, updated_at
	`,
		stop.ID, stop.RouteID, stop.Name, stop.Address, stop.Lat, stop.Lng, stop.StopOrder,
		stop.AllowPickup, stop.AllowDropoff, stop.MinutesFromStart,
	).Scan(&stop.CreatedAt, &stop.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert stop point: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stop insert: %w", err)
	}

	return nil
}

// Delete removes a stop and renumbers the remaining stops of its route
// into a contiguous 1..N sequence ordered by their prior stop_order. The
// delete and the renumbering pass commit atomically under a route lock.
func (r *StopPointRepository) Delete(stopID string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var routeID string
	err = tx.QueryRow(`
		SELECT r.id
		FROM routes r
		JOIN stop_points sp ON sp.route_id = r.id
		WHERE sp.id = $1
		FOR UPDATE OF r
	`, stopID).Scan(&routeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("stop point not found")
		}
		return fmt.Errorf("failed to lock route: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM stop_points WHERE id = $1`, stopID)
	if err != nil {
		return fmt.Errorf("failed to delete stop point: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("stop point not found")
	}

	_, err = tx.Exec(`
		UPDATE stop_points sp
		SET stop_order = seq.rn, updated_at = NOW()
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY stop_order) AS rn
			FROM stop_points
			WHERE route_id = $1
		) seq
		WHERE sp.id = seq.id AND sp.stop_order <> seq.rn
	`, routeID)
	if err != nil {
		return fmt.Errorf("failed to renumber stop points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stop delete: %w", err)
	}

	return nil
}

// scanStopPoint scans a single stop point
func (r *StopPointRepository) scanStopPoint(row scanner) (*models.StopPoint, error) {
	stop := &models.StopPoint{}
	var address sql.NullString
	var minutesFromStart sql.NullInt64

	err := row.Scan(
		&stop.ID, &stop.RouteID, &stop.Name, &address, &stop.Lat, &stop.Lng, &stop.StopOrder,
		&stop.AllowPickup, &stop.AllowDropoff, &minutesFromStart, &stop.CreatedAt, &stop.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	if address.Valid {
		stop.Address = &address.String
	}
	if minutesFromStart.Valid {
		minutes := int(minutesFromStart.Int64)
		stop.MinutesFromStart = &minutes
	}

	return stop, nil
}

// scanStopPoints scans multiple stop points from rows
func (r *StopPointRepository) scanStopPoints(rows *sql.Rows) ([]models.StopPoint, error) {
	stops := []models.StopPoint{}

	for rows.Next() {
		var stop models.StopPoint
		var address sql.NullString
		var minutesFromStart sql.NullInt64

		err := rows.Scan(
			&stop.ID, &stop.RouteID, &stop.Name, &address, &stop.Lat, &stop.Lng, &stop.StopOrder,
			&stop.AllowPickup, &stop.AllowDropoff, &minutesFromStart, &stop.CreatedAt, &stop.UpdatedAt,
		)

		if err != nil {
			return nil, err
		}

		if address.Valid {
			stop.Address = &address.String
		}
		if minutesFromStart.Valid {
			minutes := int(minutesFromStart.Int64)
			stop.MinutesFromStart = &minutes
		}

		stops = append(stops, stop)
	}

	return stops, rows.Err()
}
