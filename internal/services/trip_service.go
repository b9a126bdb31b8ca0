package services

import (
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ridelink/rideshare-backend/internal/apperrors"
	"github.com/ridelink/rideshare-backend/internal/config"
	"github.com/ridelink/rideshare-backend/internal/database"
	"github.com/ridelink/rideshare-backend/internal/models"
	"github.com/ridelink/rideshare-backend/pkg/geo"
)

// RatingProvider is the external rating service collaborator. Scores
// are attached to search results for display; they play no part in
// capacity logic. A nil provider disables enrichment.
type RatingProvider interface {
	DriverRating(driverID string) (*float64, error)
}

// TripService owns the trip lifecycle and availability queries
type TripService struct {
	tripRepo  *database.TripRepository
	routeRepo *database.RouteRepository
	geoCfg    config.GeoConfig
	booking   config.BookingConfig
	ratings   RatingProvider
	logger    *logrus.Logger
	now       func() time.Time
}

// NewTripService creates a new TripService
func NewTripService(
	tripRepo *database.TripRepository,
	routeRepo *database.RouteRepository,
	geoCfg config.GeoConfig,
	booking config.BookingConfig,
	ratings RatingProvider,
	logger *logrus.Logger,
) *TripService {
	return &TripService{
		tripRepo:  tripRepo,
		routeRepo: routeRepo,
		geoCfg:    geoCfg,
		booking:   booking,
		ratings:   ratings,
		logger:    logger,
		now:       time.Now,
	}
}

// Create posts a trip on an active route. Departure must be strictly in
// the future.
func (s *TripService) Create(driverID string, req *models.CreateTripRequest) (*models.Trip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	_, err := s.routeRepo.GetActiveByID(req.RouteID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("route")
		}
		return nil, apperrors.Internal("failed to fetch route", err)
	}

	currency := s.booking.DefaultCurrency
	if req.Currency != nil && *req.Currency != "" {
		currency = *req.Currency
	}

	trip := &models.Trip{
		RouteID:        req.RouteID,
		DriverID:       driverID,
		DepartureTime:  req.DepartureTime,
		ArrivalTime:    req.ArrivalTime,
		AvailableSeats: req.AvailableSeats,
		PricePerSeat:   req.PricePerSeat,
		Currency:       currency,
		Status:         models.TripStatusScheduled,
	}

	if err := s.tripRepo.Create(trip); err != nil {
		return nil, apperrors.Internal("failed to create trip", err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":   trip.ID,
		"route_id":  trip.RouteID,
		"driver_id": driverID,
		"seats":     trip.AvailableSeats,
	}).Info("Trip created")

	return trip, nil
}

// GetByID retrieves a trip
func (s *TripService) GetByID(tripID string) (*models.Trip, error) {
	trip, err := s.tripRepo.GetByID(tripID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("trip")
		}
		return nil, apperrors.Internal("failed to fetch trip", err)
	}
	return trip, nil
}

// ListByDriver lists all trips posted by a driver
func (s *TripService) ListByDriver(driverID string) ([]models.Trip, error) {
	return s.tripRepo.GetByDriverID(driverID)
}

// Update changes a trip before departure. Status and departure time
// gate the mutation independently: a trip past its departure is frozen
// even if its stored status never moved off scheduled. Seat capacity
// may only change while no request has been approved.
func (s *TripService) Update(driverID, tripID string, req *models.UpdateTripRequest) (*models.Trip, error) {
	trip, err := s.GetByID(tripID)
	if err != nil {
		return nil, err
	}

	if trip.DriverID != driverID {
		return nil, apperrors.Permission("only the trip's driver can update it")
	}
	if trip.IsTerminal() {
		return nil, apperrors.InvalidStateTransition(string(trip.Status), string(trip.Status))
	}
	if trip.HasStarted(s.now()) {
		return nil, apperrors.TripAlreadyStarted()
	}

	if req.DepartureTime != nil {
		if !req.DepartureTime.After(s.now()) {
			return nil, apperrors.Validation("departure_time must be in the future")
		}
		trip.DepartureTime = *req.DepartureTime
	}
	if req.ArrivalTime != nil {
		if !req.ArrivalTime.After(trip.DepartureTime) {
			return nil, apperrors.Validation("arrival_time must be after departure_time")
		}
		trip.ArrivalTime = req.ArrivalTime
	}
	if req.PricePerSeat != nil {
		if *req.PricePerSeat < 0 {
			return nil, apperrors.Validation("price_per_seat cannot be negative")
		}
		trip.PricePerSeat = *req.PricePerSeat
	}
	if req.AvailableSeats != nil {
		if *req.AvailableSeats < 1 {
			return nil, apperrors.Validation("available_seats must be at least 1")
		}
		hasApproved, err := s.tripRepo.HasApprovedRequests(tripID)
		if err != nil {
			return nil, apperrors.Internal("failed to check approved requests", err)
		}
		if hasApproved {
			return nil, apperrors.Validation("available_seats cannot change after requests have been approved")
		}
		trip.AvailableSeats = *req.AvailableSeats
	}

	if err := s.tripRepo.Update(trip); err != nil {
		return nil, apperrors.Internal("failed to update trip", err)
	}

	return trip, nil
}

// Start moves a scheduled trip to active
func (s *TripService) Start(driverID, tripID string) (*models.Trip, error) {
	return s.transition(driverID, tripID, models.TripStatusActive)
}

// Complete moves an active trip to completed
func (s *TripService) Complete(driverID, tripID string) (*models.Trip, error) {
	return s.transition(driverID, tripID, models.TripStatusCompleted)
}

func (s *TripService) transition(driverID, tripID string, next models.TripStatus) (*models.Trip, error) {
	trip, err := s.GetByID(tripID)
	if err != nil {
		return nil, err
	}

	if trip.DriverID != driverID {
		return nil, apperrors.Permission("only the trip's driver can change its status")
	}

	from := trip.Status
	if err := trip.Transition(next); err != nil {
		return nil, err
	}

	updated, err := s.tripRepo.UpdateStatus(tripID, from, next)
	if err != nil {
		return nil, apperrors.Internal("failed to update trip status", err)
	}
	if !updated {
		// Lost a race with another lifecycle change.
		return nil, apperrors.InvalidStateTransition(string(from), string(next))
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id": tripID,
		"from":    from,
		"to":      next,
	}).Info("Trip status changed")

	return trip, nil
}

// Cancel cancels a trip before its departure time. Past departure the
// trip is frozen regardless of stored status; admins are bound by the
// same rule.
func (s *TripService) Cancel(actorID string, roles []string, tripID string, reason *string) (*models.Trip, error) {
	trip, err := s.GetByID(tripID)
	if err != nil {
		return nil, err
	}

	if trip.DriverID != actorID && !hasRole(roles, AdminRole) {
		return nil, apperrors.Permission("only the trip's driver or an admin can cancel it")
	}
	if trip.HasStarted(s.now()) {
		return nil, apperrors.TripAlreadyStarted()
	}
	if !trip.CanTransitionTo(models.TripStatusCancelled) {
		return nil, apperrors.InvalidStateTransition(string(trip.Status), string(models.TripStatusCancelled))
	}

	cancelled, err := s.tripRepo.Cancel(tripID, reason)
	if err != nil {
		return nil, apperrors.Internal("failed to cancel trip", err)
	}
	if !cancelled {
		return nil, apperrors.InvalidStateTransition(string(trip.Status), string(models.TripStatusCancelled))
	}

	trip.Status = models.TripStatusCancelled
	trip.CancellationReason = reason

	s.logger.WithFields(logrus.Fields{
		"trip_id":  tripID,
		"actor_id": actorID,
	}).Info("Trip cancelled")

	return trip, nil
}

// RemainingSeats computes the trip's remaining capacity fresh from the
// request ledger.
func (s *TripService) RemainingSeats(tripID string) (int, error) {
	if _, err := s.GetByID(tripID); err != nil {
		return 0, err
	}
	remaining, err := s.tripRepo.RemainingSeats(tripID)
	if err != nil {
		return 0, apperrors.Internal("failed to compute remaining seats", err)
	}
	return remaining, nil
}

// HasAvailableSeats reports whether the trip can still seat n passengers
func (s *TripService) HasAvailableSeats(tripID string, n int) (bool, error) {
	remaining, err := s.RemainingSeats(tripID)
	if err != nil {
		return false, err
	}
	return remaining >= n, nil
}

// SearchAvailable finds bookable trips. The repository applies the
// status, departure and post-aggregation seat filters; the location
// filter ranks the survivors by route endpoint distance here.
func (s *TripService) SearchAvailable(filters models.TripSearchFilters) ([]models.TripWithAvailability, error) {
	trips, err := s.tripRepo.SearchAvailable(filters)
	if err != nil {
		return nil, apperrors.Internal("failed to search trips", err)
	}

	if filters.Lat != nil && filters.Lng != nil {
		center := geo.Coordinate{Lat: *filters.Lat, Lng: *filters.Lng}
		if !geo.ValidLatLon(center.Lat, center.Lng) {
			return nil, apperrors.Validation("search coordinates are out of range")
		}

		radius := s.geoCfg.DefaultRadiusKm
		if filters.RadiusKm != nil && *filters.RadiusKm > 0 {
			radius = *filters.RadiusKm
		}
		if radius > s.geoCfg.MaxRadiusKm {
			radius = s.geoCfg.MaxRadiusKm
		}

		byID := make(map[string]models.TripWithAvailability, len(trips))
		matches := make([]geo.Match, 0, len(trips))
		for _, trip := range trips {
			byID[trip.ID] = trip
			start := geo.DistanceKm(center, geo.Coordinate{Lat: trip.StartLat, Lng: trip.StartLng})
			end := geo.DistanceKm(center, geo.Coordinate{Lat: trip.EndLat, Lng: trip.EndLng})
			min := start
			if end < min {
				min = end
			}
			matches = append(matches, geo.Match{ID: trip.ID, DistanceKm: min})
		}

		ranked := geo.Rank(matches, radius)
		filtered := make([]models.TripWithAvailability, 0, len(ranked))
		for _, m := range ranked {
			trip := byID[m.ID]
			distance := m.DistanceKm
			trip.DistanceKm = &distance
			filtered = append(filtered, trip)
		}
		trips = filtered
	}

	if s.ratings != nil {
		for i := range trips {
			rating, err := s.ratings.DriverRating(trips[i].DriverID)
			if err != nil {
				s.logger.WithError(err).Warn("Rating lookup failed, omitting driver rating")
				continue
			}
			trips[i].DriverRating = rating
		}
	}

	return trips, nil
}
