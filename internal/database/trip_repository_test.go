package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ridelink/rideshare-backend/internal/models"
)

func tripRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "route_id", "driver_id", "departure_time", "arrival_time",
		"available_seats", "price_per_seat", "currency", "status",
		"cancellation_reason", "cancelled_at", "created_at", "updated_at",
	})
}

func TestTripCreate(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTripRepository(mockDB)

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		departure := now.Add(24 * time.Hour)

		trip := &models.Trip{
			RouteID:        "route-1",
			DriverID:       "driver-1",
			DepartureTime:  departure,
			AvailableSeats: 4,
			PricePerSeat:   250,
			Currency:       "KES",
			Status:         models.TripStatusScheduled,
		}

		mock.ExpectQuery(`INSERT INTO trips`).
			WithArgs(sqlmock.AnyArg(), "route-1", "driver-1", departure, nil, 4, 250.0, "KES", models.TripStatusScheduled).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		err := repo.Create(trip)
		require.NoError(t, err)
		assert.NotEmpty(t, trip.ID)
		assert.Equal(t, now, trip.CreatedAt)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		trip := &models.Trip{RouteID: "route-1", DriverID: "driver-1", Status: models.TripStatusScheduled}

		mock.ExpectQuery(`INSERT INTO trips`).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(trip)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create trip")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTripRemainingSeats(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTripRepository(mockDB)

	t.Run("Aggregates Approved Requests", func(t *testing.T) {
		mock.ExpectQuery(`SELECT t.available_seats - COALESCE`).
			WithArgs("trip-1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}).AddRow(2))

		remaining, err := repo.RemainingSeats("trip-1")
		require.NoError(t, err)
		assert.Equal(t, 2, remaining)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Trip Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT t.available_seats - COALESCE`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}))

		_, err := repo.RemainingSeats("missing")
		assert.Error(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTripUpdateStatus(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTripRepository(mockDB)

	t.Run("Guarded Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE trips`).
			WithArgs("trip-1", models.TripStatusScheduled, models.TripStatusActive).
			WillReturnResult(sqlmock.NewResult(0, 1))

		updated, err := repo.UpdateStatus("trip-1", models.TripStatusScheduled, models.TripStatusActive)
		require.NoError(t, err)
		assert.True(t, updated)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Wrong Current Status", func(t *testing.T) {
		mock.ExpectExec(`UPDATE trips`).
			WithArgs("trip-1", models.TripStatusScheduled, models.TripStatusActive).
			WillReturnResult(sqlmock.NewResult(0, 0))

		updated, err := repo.UpdateStatus("trip-1", models.TripStatusScheduled, models.TripStatusActive)
		require.NoError(t, err)
		assert.False(t, updated)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTripCancelGuard(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTripRepository(mockDB)

	t.Run("Already Terminal", func(t *testing.T) {
		reason := "no longer travelling"

		mock.ExpectExec(`UPDATE trips`).
			WithArgs("trip-1", reason).
			WillReturnResult(sqlmock.NewResult(0, 0))

		cancelled, err := repo.Cancel("trip-1", &reason)
		require.NoError(t, err)
		assert.False(t, cancelled)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTripSearchAvailable(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTripRepository(mockDB)

	searchRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "route_id", "driver_id", "departure_time", "arrival_time",
			"available_seats", "price_per_seat", "currency", "status",
			"cancellation_reason", "cancelled_at", "created_at", "updated_at",
			"remaining_seats",
			"route_name", "start_location", "end_location",
			"start_lat", "start_lng", "end_lat", "end_lng",
		})
	}

	t.Run("Defaults To One Remaining Seat", func(t *testing.T) {
		now := time.Now()
		departure := now.Add(2 * time.Hour)

		mock.ExpectQuery(`HAVING t.available_seats - COALESCE`).
			WithArgs(1).
			WillReturnRows(searchRows().AddRow(
				"trip-1", "route-1", "driver-1", departure, nil,
				4, 300.0, "KES", "scheduled",
				nil, nil, now, now,
				2,
				"CBD - Westlands", "Nairobi CBD", "Westlands",
				-1.2864, 36.8172, -1.2683, 36.8111,
			))

		trips, err := repo.SearchAvailable(models.TripSearchFilters{})
		require.NoError(t, err)
		require.Len(t, trips, 1)
		assert.Equal(t, "trip-1", trips[0].ID)
		assert.Equal(t, 2, trips[0].RemainingSeats)
		assert.Equal(t, "CBD - Westlands", trips[0].RouteName)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Applies Filters In Order", func(t *testing.T) {
		routeID := "route-1"
		maxPrice := 500.0

		mock.ExpectQuery(`HAVING t.available_seats - COALESCE`).
			WithArgs(routeID, maxPrice, 3, 10).
			WillReturnRows(searchRows())

		trips, err := repo.SearchAvailable(models.TripSearchFilters{
			RouteID:  &routeID,
			MaxPrice: &maxPrice,
			MinSeats: 3,
			Limit:    10,
		})
		require.NoError(t, err)
		assert.Empty(t, trips)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTripHasApprovedRequests(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTripRepository(mockDB)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := repo.HasApprovedRequests("trip-1")
	require.NoError(t, err)
	assert.True(t, has)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripGetByDriverID(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTripRepository(mockDB)

	now := time.Now()
	departure := now.Add(6 * time.Hour)

	mock.ExpectQuery(`SELECT (.+) FROM trips`).
		WithArgs("driver-1").
		WillReturnRows(tripRows().AddRow(
			"trip-1", "route-1", "driver-1", departure, nil,
			4, 250.0, "KES", "scheduled",
			nil, nil, now, now,
		))

	trips, err := repo.GetByDriverID("driver-1")
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, models.TripStatusScheduled, trips[0].Status)
	assert.Nil(t, trips[0].ArrivalTime)

	assert.NoError(t, mock.ExpectationsWereMet())
}
