package services

import (
	"database/sql"

	"github.com/sirupsen/logrus"
	"github.com/ridelink/rideshare-backend/internal/apperrors"
	"github.com/ridelink/rideshare-backend/internal/config"
	"github.com/ridelink/rideshare-backend/internal/database"
	"github.com/ridelink/rideshare-backend/internal/models"
	"github.com/ridelink/rideshare-backend/pkg/geo"
	"github.com/ridelink/rideshare-backend/pkg/mapping"
)

// AdminRole is the role string granted by the identity service to
// platform administrators.
const AdminRole = "admin"

// RouteService owns route and stop point management plus route
// discovery (nearby and text search).
type RouteService struct {
	routeRepo *database.RouteRepository
	stopRepo  *database.StopPointRepository
	mapper    mapping.Provider
	cfg       config.GeoConfig
	logger    *logrus.Logger
}

// NewRouteService creates a new RouteService
func NewRouteService(
	routeRepo *database.RouteRepository,
	stopRepo *database.StopPointRepository,
	mapper mapping.Provider,
	cfg config.GeoConfig,
	logger *logrus.Logger,
) *RouteService {
	return &RouteService{
		routeRepo: routeRepo,
		stopRepo:  stopRepo,
		mapper:    mapper,
		cfg:       cfg,
		logger:    logger,
	}
}

// Create creates a custom route owned by the caller. Distance and
// duration estimates come from the mapping provider; the provider being
// down is not a reason to refuse the route.
func (s *RouteService) Create(userID string, req *models.CreateRouteRequest) (*models.Route, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	route := &models.Route{
		Name:          req.Name,
		Description:   req.Description,
		StartLocation: req.StartLocation,
		EndLocation:   req.EndLocation,
		StartLat:      req.StartLat,
		StartLng:      req.StartLng,
		EndLat:        req.EndLat,
		EndLng:        req.EndLng,
		RouteType:     models.RouteTypeCustom,
		IsPublic:      isPublic,
		CreatedBy:     &userID,
		IsActive:      true,
	}

	estimate, err := s.mapper.Estimate(route.StartCoordinate(), route.EndCoordinate())
	if err != nil {
		s.logger.WithError(err).Warn("Mapping provider estimate failed, leaving route estimates empty")
	} else {
		route.DistanceKm = &estimate.DistanceKm
		route.DurationMinutes = &estimate.DurationMinutes
	}

	if err := s.routeRepo.Create(route); err != nil {
		return nil, apperrors.Internal("failed to create route", err)
	}

	s.logger.WithFields(logrus.Fields{
		"route_id":   route.ID,
		"created_by": userID,
	}).Info("Route created")

	return route, nil
}

// GetByID retrieves an active route
func (s *RouteService) GetByID(routeID string) (*models.Route, error) {
	route, err := s.routeRepo.GetActiveByID(routeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("route")
		}
		return nil, apperrors.Internal("failed to fetch route", err)
	}
	return route, nil
}

// ListByCreator lists the caller's active routes
func (s *RouteService) ListByCreator(userID string) ([]models.Route, error) {
	return s.routeRepo.GetByCreator(userID)
}

// Update updates route metadata; only an editor may do this
func (s *RouteService) Update(userID string, roles []string, routeID string, req *models.UpdateRouteRequest) (*models.Route, error) {
	route, err := s.GetByID(routeID)
	if err != nil {
		return nil, err
	}

	if !s.CanEdit(route, userID, roles) {
		return nil, apperrors.Permission("only the route's creator or an admin can edit it")
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, apperrors.Validation("name cannot be empty")
		}
		route.Name = *req.Name
	}
	if req.Description != nil {
		route.Description = req.Description
	}
	if req.IsPublic != nil {
		route.IsPublic = *req.IsPublic
	}

	if err := s.routeRepo.Update(route); err != nil {
		return nil, apperrors.Internal("failed to update route", err)
	}

	return route, nil
}

// Delete soft-deletes a route. System default routes stay; ordinary
// users cannot remove them.
func (s *RouteService) Delete(userID string, roles []string, routeID string) error {
	route, err := s.GetByID(routeID)
	if err != nil {
		return err
	}

	if route.IsSystemOwned() && !hasRole(roles, AdminRole) {
		return apperrors.Permission("default routes cannot be deleted")
	}

	if !s.CanEdit(route, userID, roles) {
		return apperrors.Permission("only the route's creator or an admin can delete it")
	}

	if err := s.routeRepo.Deactivate(routeID); err != nil {
		return apperrors.Internal("failed to deactivate route", err)
	}

	s.logger.WithFields(logrus.Fields{
		"route_id": routeID,
		"user_id":  userID,
	}).Info("Route deactivated")

	return nil
}

// CanEdit reports whether the user may modify the route: its creator or
// an admin. Route type deliberately plays no part here.
func (s *RouteService) CanEdit(route *models.Route, userID string, roles []string) bool {
	if hasRole(roles, AdminRole) {
		return true
	}
	return route.CreatedBy != nil && *route.CreatedBy == userID
}

// AddStopPoint adds a stop to a route. An omitted stop_order appends at
// the end; an explicit order inserts there and shifts later stops up.
func (s *RouteService) AddStopPoint(userID string, roles []string, routeID string, req *models.CreateStopPointRequest) (*models.StopPoint, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	route, err := s.GetByID(routeID)
	if err != nil {
		return nil, err
	}

	if !s.CanEdit(route, userID, roles) {
		return nil, apperrors.Permission("only the route's creator or an admin can add stops")
	}

	maxOrder, err := s.stopRepo.MaxOrder(routeID)
	if err != nil {
		return nil, apperrors.Internal("failed to determine stop order", err)
	}

	order := maxOrder + 1
	if req.StopOrder != nil {
		if *req.StopOrder > maxOrder+1 {
			return nil, apperrors.Validation("stop_order %d leaves a gap; route has %d stop(s)", *req.StopOrder, maxOrder)
		}
		order = *req.StopOrder
	}

	allowPickup := true
	if req.AllowPickup != nil {
		allowPickup = *req.AllowPickup
	}
	allowDropoff := true
	if req.AllowDropoff != nil {
		allowDropoff = *req.AllowDropoff
	}

	stop := &models.StopPoint{
		RouteID:          routeID,
		Name:             req.Name,
		Address:          req.Address,
		Lat:              req.Lat,
		Lng:              req.Lng,
		StopOrder:        order,
		AllowPickup:      allowPickup,
		AllowDropoff:     allowDropoff,
		MinutesFromStart: req.MinutesFromStart,
	}

	if err := s.stopRepo.Insert(stop); err != nil {
		return nil, apperrors.Internal("failed to add stop point", err)
	}

	return stop, nil
}

// RemoveStopPoint deletes a stop and renumbers the route's remaining
// stops into a contiguous sequence.
func (s *RouteService) RemoveStopPoint(userID string, roles []string, stopID string) error {
	stop, err := s.stopRepo.GetByID(stopID)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperrors.NotFound("stop point")
		}
		return apperrors.Internal("failed to fetch stop point", err)
	}

	route, err := s.GetByID(stop.RouteID)
	if err != nil {
		return err
	}

	if !s.CanEdit(route, userID, roles) {
		return apperrors.Permission("only the route's creator or an admin can remove stops")
	}

	if err := s.stopRepo.Delete(stopID); err != nil {
		return apperrors.Internal("failed to remove stop point", err)
	}

	return nil
}

// ListStopPoints lists a route's stops in order
func (s *RouteService) ListStopPoints(routeID string) ([]models.StopPoint, error) {
	if _, err := s.GetByID(routeID); err != nil {
		return nil, err
	}
	return s.stopRepo.GetByRouteID(routeID)
}

// FindNearby returns active routes whose nearer endpoint lies within
// radiusKm of center, ranked ascending by that distance.
func (s *RouteService) FindNearby(center geo.Coordinate, radiusKm float64) ([]models.RouteMatch, error) {
	if !geo.ValidLatLon(center.Lat, center.Lng) {
		return nil, apperrors.Validation("center coordinates are out of range")
	}

	if radiusKm <= 0 {
		radiusKm = s.cfg.DefaultRadiusKm
	}
	if radiusKm > s.cfg.MaxRadiusKm {
		radiusKm = s.cfg.MaxRadiusKm
	}

	routes, err := s.routeRepo.GetAllActive()
	if err != nil {
		return nil, apperrors.Internal("failed to fetch routes", err)
	}

	byID := make(map[string]models.Route, len(routes))
	matches := make([]geo.Match, 0, len(routes))
	for _, route := range routes {
		byID[route.ID] = route
		matches = append(matches, geo.Match{ID: route.ID, DistanceKm: route.MinDistanceKm(center)})
	}

	ranked := geo.Rank(matches, radiusKm)

	results := make([]models.RouteMatch, 0, len(ranked))
	for _, m := range ranked {
		results = append(results, models.RouteMatch{Route: byID[m.ID], DistanceKm: m.DistanceKm})
	}

	return results, nil
}

// SearchByText performs a case-insensitive substring search across
// route names, descriptions and location labels.
func (s *RouteService) SearchByText(term string) ([]models.Route, error) {
	if len(term) < 2 {
		return []models.Route{}, nil
	}
	return s.routeRepo.SearchByText(term)
}

func hasRole(roles []string, want string) bool {
	for _, role := range roles {
		if role == want {
			return true
		}
	}
	return false
}
