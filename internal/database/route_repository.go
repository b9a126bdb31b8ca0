package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ridelink/rideshare-backend/internal/models"
)

// RouteRepository handles database operations for the routes table
type RouteRepository struct {
	db DB
}

// NewRouteRepository creates a new RouteRepository
func NewRouteRepository(db DB) *RouteRepository {
	return &RouteRepository{db: db}
}

const routeColumns = `id, name, description, start_location, end_location,
	   start_lat, start_lng, end_lat, end_lng,
	   distance_km, duration_minutes, route_type, is_public,
	   created_by, is_active, created_at, updated_at`

// Create creates a new route
func (r *RouteRepository) Create(route *models.Route) error {
	query := `
		INSERT INTO routes (
			id, name, description, start_location, end_location,
			start_lat, start_lng, end_lat, end_lng,
			distance_km, duration_minutes, route_type, is_public,
			created_by, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING created_at, updated_at
	`

	if route.ID == "" {
		route.ID = uuid.New().String()
	}

	err := r.db.QueryRow(
		query,
		route.ID, route.Name, route.Description, route.StartLocation, route.EndLocation,
		route.StartLat, route.StartLng, route.EndLat, route.EndLng,
		route.DistanceKm, route.DurationMinutes, route.RouteType, route.IsPublic,
		route.CreatedBy, route.IsActive,
	).Scan(&route.CreatedAt, &route.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create route: %w", err)
	}

	return nil
}

// GetByID retrieves a route by ID
func (r *RouteRepository) GetByID(routeID string) (*models.Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes WHERE id = $1`

	return r.scanRoute(r.db.QueryRow(query, routeID))
}

// GetActiveByID retrieves a route that is still active
func (r *RouteRepository) GetActiveByID(routeID string) (*models.Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes WHERE id = $1 AND is_active = true`

	return r.scanRoute(r.db.QueryRow(query, routeID))
}

// GetAllActive retrieves all active routes, ordered by id for stable
// iteration in the nearby search.
func (r *RouteRepository) GetAllActive() ([]models.Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes WHERE is_active = true ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRoutes(rows)
}

// GetByCreator retrieves all active routes created by a user
func (r *RouteRepository) GetByCreator(userID string) ([]models.Route, error) {
	query := `SELECT ` + routeColumns + `
		FROM routes
		WHERE created_by = $1 AND is_active = true
		ORDER BY created_at DESC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRoutes(rows)
}

// SearchByText performs a case-insensitive substring match across name,
// description and the start/end location labels.
func (r *RouteRepository) SearchByText(term string) ([]models.Route, error) {
	query := `SELECT ` + routeColumns + `
		FROM routes
		WHERE is_active = true
		  AND (name ILIKE $1
			OR COALESCE(description, '') ILIKE $1
			OR start_location ILIKE $1
			OR end_location ILIKE $1)
		ORDER BY name`

	rows, err := r.db.Query(query, "%"+term+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRoutes(rows)
}

// Update updates a route's mutable fields
func (r *RouteRepository) Update(route *models.Route) error {
	query := `
		UPDATE routes
		SET name = $2, description = $3, is_public = $4,
			distance_km = $5, duration_minutes = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		query,
		route.ID, route.Name, route.Description, route.IsPublic,
		route.DistanceKm, route.DurationMinutes,
	).Scan(&route.UpdatedAt)

	return err
}

// Deactivate soft-deletes a route. Routes are never physically removed.
func (r *RouteRepository) Deactivate(routeID string) error {
	query := `
		UPDATE routes
		SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND is_active = true
	`

	result, err := r.db.Exec(query, routeID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return fmt.Errorf("route not found")
	}

	return nil
}

// scanRoute scans a single route
func (r *RouteRepository) scanRoute(row scanner) (*models.Route, error) {
	route := &models.Route{}
	var description sql.NullString
	var distanceKm sql.NullFloat64
	var durationMinutes sql.NullInt64
	var createdBy sql.NullString

	err := row.Scan(
		&route.ID, &route.Name, &description, &route.StartLocation, &route.EndLocation,
		&route.StartLat, &route.StartLng, &route.EndLat, &route.EndLng,
		&distanceKm, &durationMinutes, &route.RouteType, &route.IsPublic,
		&createdBy, &route.IsActive, &route.CreatedAt, &route.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	if description.Valid {
		route.Description = &description.String
	}
	if distanceKm.Valid {
		route.DistanceKm = &distanceKm.Float64
	}
	if durationMinutes.Valid {
		minutes := int(durationMinutes.Int64)
		route.DurationMinutes = &minutes
	}
	if createdBy.Valid {
		route.CreatedBy = &createdBy.String
	}

	return route, nil
}

// scanRoutes scans multiple routes from rows
func (r *RouteRepository) scanRoutes(rows *sql.Rows) ([]models.Route, error) {
	routes := []models.Route{}

	for rows.Next() {
		var route models.Route
		var description sql.NullString
		var distanceKm sql.NullFloat64
		var durationMinutes sql.NullInt64
		var createdBy sql.NullString

		err := rows.Scan(
			&route.ID, &route.Name, &description, &route.StartLocation, &route.EndLocation,
			&route.StartLat, &route.StartLng, &route.EndLat, &route.EndLng,
			&distanceKm, &durationMinutes, &route.RouteType, &route.IsPublic,
			&createdBy, &route.IsActive, &route.CreatedAt, &route.UpdatedAt,
		)

		if err != nil {
			return nil, err
		}

		if description.Valid {
			route.Description = &description.String
		}
		if distanceKm.Valid {
			route.DistanceKm = &distanceKm.Float64
		}
		if durationMinutes.Valid {
			minutes := int(durationMinutes.Int64)
			route.DurationMinutes = &minutes
		}
		if createdBy.Valid {
			route.CreatedBy = &createdBy.String
		}

		routes = append(routes, route)
	}

	return routes, rows.Err()
}
