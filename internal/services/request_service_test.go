package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ridelink/rideshare-backend/internal/apperrors"
	"github.com/ridelink/rideshare-backend/internal/config"
	"github.com/ridelink/rideshare-backend/internal/database"
	"github.com/ridelink/rideshare-backend/internal/models"
)

func newRequestService(db database.DB) *RequestService {
	requestRepo := database.NewTripRequestRepository(db)
	tripRepo := database.NewTripRepository(db)
	stopRepo := database.NewStopPointRepository(db)
	capacity := NewCapacityService(db, requestRepo, 3, quietLogger())
	cfg := config.BookingConfig{MaxSeatsPerRequest: 8, ReserveRetries: 3, DefaultCurrency: "KES"}

	return NewRequestService(requestRepo, tripRepo, stopRepo, capacity, cfg, quietLogger())
}

func tripColumns() []string {
	return []string{
		"id", "route_id", "driver_id", "departure_time", "arrival_time",
		"available_seats", "price_per_seat", "currency", "status",
		"cancellation_reason", "cancelled_at", "created_at", "updated_at",
	}
}

func requestColumns() []string {
	return []string{
		"id", "trip_id", "passenger_id", "requested_seats",
		"pickup_stop_id", "dropoff_stop_id", "message", "total_price", "currency",
		"status", "responded_at", "created_at", "updated_at",
	}
}

func scheduledTripRow(tripID, driverID string, seats int, price float64) *sqlmock.Rows {
	now := time.Now()
	departure := now.Add(6 * time.Hour)
	return sqlmock.NewRows(tripColumns()).AddRow(
		tripID, "route-1", driverID, departure, nil,
		seats, price, "KES", "scheduled",
		nil, nil, now, now,
	)
}

func pendingRequestRow(requestID, tripID, passengerID string, seats int, price float64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(requestColumns()).AddRow(
		requestID, tripID, passengerID, seats,
		nil, nil, nil, price, "KES",
		"pending", nil, now, now,
	)
}

func expectGetTrip(mock sqlmock.Sqlmock, tripID string, rows *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT (.+) FROM trips WHERE id = \$1`).
		WithArgs(tripID).
		WillReturnRows(rows)
}

func expectGetRequest(mock sqlmock.Sqlmock, requestID string, rows *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT (.+) FROM trip_requests WHERE id = \$1`).
		WithArgs(requestID).
		WillReturnRows(rows)
}

func TestRequestCreate(t *testing.T) {
	t.Run("Freezes Price At Creation", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)
		now := time.Now()

		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))
		mock.ExpectQuery(`SELECT t.available_seats - COALESCE`).
			WithArgs("trip-1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}).AddRow(4))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("trip-1", "passenger-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`INSERT INTO trip_requests`).
			WithArgs(sqlmock.AnyArg(), "trip-1", "passenger-1", 2, nil, nil, nil, 600.0, "KES", models.RequestStatusPending).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		request, err := svc.Create("passenger-1", &models.CreateTripRequestRequest{
			TripID:         "trip-1",
			RequestedSeats: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, 600.0, request.TotalPrice)
		assert.Equal(t, "KES", request.Currency)
		assert.Equal(t, models.RequestStatusPending, request.Status)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Driver Cannot Request Own Trip", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))

		_, err := svc.Create("driver-1", &models.CreateTripRequestRequest{
			TripID:         "trip-1",
			RequestedSeats: 1,
		})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindPermission))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Active Request Blocked", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))
		mock.ExpectQuery(`SELECT t.available_seats - COALESCE`).
			WithArgs("trip-1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}).AddRow(4))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("trip-1", "passenger-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := svc.Create("passenger-1", &models.CreateTripRequestRequest{
			TripID:         "trip-1",
			RequestedSeats: 1,
		})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindDuplicateRequest))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Concurrent Duplicate Caught By Unique Index", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		// Pre-check passes (the rival insert has not committed yet),
		// then the unique index rejects this insert.
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))
		mock.ExpectQuery(`SELECT t.available_seats - COALESCE`).
			WithArgs("trip-1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}).AddRow(4))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("trip-1", "passenger-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`INSERT INTO trip_requests`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_trip_requests_active"})

		_, err := svc.Create("passenger-1", &models.CreateTripRequestRequest{
			TripID:         "trip-1",
			RequestedSeats: 1,
		})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindDuplicateRequest))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Seats Above Remaining Rejected", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))
		mock.ExpectQuery(`SELECT t.available_seats - COALESCE`).
			WithArgs("trip-1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}).AddRow(1))

		_, err := svc.Create("passenger-1", &models.CreateTripRequestRequest{
			TripID:         "trip-1",
			RequestedSeats: 2,
		})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindSeatUnavailable))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Seats Above Per Request Cap Rejected", func(t *testing.T) {
		db, _ := newTestDB(t)
		svc := newRequestService(db)

		_, err := svc.Create("passenger-1", &models.CreateTripRequestRequest{
			TripID:         "trip-1",
			RequestedSeats: 9,
		})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindValidation))
	})

	t.Run("Cancelled Trip Not Bookable", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)
		now := time.Now()
		departure := now.Add(6 * time.Hour)

		expectGetTrip(mock, "trip-1", sqlmock.NewRows(tripColumns()).AddRow(
			"trip-1", "route-1", "driver-1", departure, nil,
			4, 300.0, "KES", "cancelled",
			nil, nil, now, now,
		))
		mock.ExpectQuery(`SELECT t.available_seats - COALESCE`).
			WithArgs("trip-1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}).AddRow(4))

		_, err := svc.Create("passenger-1", &models.CreateTripRequestRequest{
			TripID:         "trip-1",
			RequestedSeats: 1,
		})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindValidation))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRequestApprove(t *testing.T) {
	t.Run("Reserves Seats And Flips Status Atomically", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetRequest(mock, "req-1", pendingRequestRow("req-1", "trip-1", "passenger-1", 2, 600))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))

		mock.ExpectBegin()
		expectReserveChecks(mock, "trip-1", 4, 0)
		mock.ExpectExec(`UPDATE trip_requests`).
			WithArgs("req-1", models.RequestStatusPending, models.RequestStatusApproved).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		request, err := svc.Approve("driver-1", "req-1")
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusApproved, request.Status)
		assert.NotNil(t, request.RespondedAt)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Only The Driver May Approve", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetRequest(mock, "req-1", pendingRequestRow("req-1", "trip-1", "passenger-1", 2, 600))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))

		_, err := svc.Approve("someone-else", "req-1")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindPermission))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insufficient Seats Leave Request Pending", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetRequest(mock, "req-1", pendingRequestRow("req-1", "trip-1", "passenger-1", 3, 900))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))

		mock.ExpectBegin()
		expectReserveChecks(mock, "trip-1", 4, 2)
		mock.ExpectRollback()

		_, err := svc.Approve("driver-1", "req-1")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindSeatUnavailable))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Approving A Rejected Request Fails", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)
		now := time.Now()

		expectGetRequest(mock, "req-1", sqlmock.NewRows(requestColumns()).AddRow(
			"req-1", "trip-1", "passenger-1", 2,
			nil, nil, nil, 600.0, "KES",
			"rejected", now, now, now,
		))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))

		_, err := svc.Approve("driver-1", "req-1")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidStateTransition))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRequestReject(t *testing.T) {
	t.Run("Rejects Pending Request", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetRequest(mock, "req-1", pendingRequestRow("req-1", "trip-1", "passenger-1", 2, 600))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))
		mock.ExpectExec(`UPDATE trip_requests`).
			WithArgs("req-1", models.RequestStatusPending, models.RequestStatusRejected).
			WillReturnResult(sqlmock.NewResult(0, 1))

		request, err := svc.Reject("driver-1", "req-1")
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusRejected, request.Status)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Second Reject Is An Invalid Transition", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)
		now := time.Now()

		expectGetRequest(mock, "req-1", sqlmock.NewRows(requestColumns()).AddRow(
			"req-1", "trip-1", "passenger-1", 2,
			nil, nil, nil, 600.0, "KES",
			"rejected", now, now, now,
		))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))

		_, err := svc.Reject("driver-1", "req-1")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidStateTransition))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRequestCancel(t *testing.T) {
	t.Run("Cancelling Approved Request Releases Seats", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)
		now := time.Now()

		expectGetRequest(mock, "req-1", sqlmock.NewRows(requestColumns()).AddRow(
			"req-1", "trip-1", "passenger-1", 2,
			nil, nil, nil, 600.0, "KES",
			"approved", now, now, now,
		))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT available_seats FROM trips WHERE id = \$1 FOR UPDATE`).
			WithArgs("trip-1").
			WillReturnRows(sqlmock.NewRows([]string{"available_seats"}).AddRow(4))
		mock.ExpectExec(`UPDATE trip_requests`).
			WithArgs("req-1", models.RequestStatusApproved, models.RequestStatusCancelled).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		request, err := svc.Cancel("passenger-1", "req-1")
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusCancelled, request.Status)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Cancelling Pending Request Skips The Allocator", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetRequest(mock, "req-1", pendingRequestRow("req-1", "trip-1", "passenger-1", 2, 600))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))
		mock.ExpectExec(`UPDATE trip_requests`).
			WithArgs("req-1", models.RequestStatusPending, models.RequestStatusCancelled).
			WillReturnResult(sqlmock.NewResult(0, 1))

		request, err := svc.Cancel("passenger-1", "req-1")
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusCancelled, request.Status)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Only The Passenger May Cancel", func(t *testing.T) {
		db, mock := newTestDB(t)
		svc := newRequestService(db)

		expectGetRequest(mock, "req-1", pendingRequestRow("req-1", "trip-1", "passenger-1", 2, 600))
		expectGetTrip(mock, "trip-1", scheduledTripRow("trip-1", "driver-1", 4, 300))

		_, err := svc.Cancel("driver-1", "req-1")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindPermission))

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
