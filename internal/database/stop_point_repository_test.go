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

func TestStopPointInsert(t *testing.T) {
	t.Run("Shifts Later Stops Inside Transaction", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewStopPointRepository(mockDB)

		now := time.Now()
		stop := &models.StopPoint{
			RouteID:      "route-1",
			Name:         "Museum Hill",
			Lat:          -1.2741,
			Lng:          36.8147,
			StopOrder:    2,
			AllowPickup:  true,
			AllowDropoff: true,
		}

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM routes WHERE id = \$1 FOR UPDATE`).
			WithArgs("route-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("route-1"))
		mock.ExpectExec(`UPDATE stop_points`).
			WithArgs("route-1", 2).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery(`INSERT INTO stop_points`).
			WithArgs(sqlmock.AnyArg(), "route-1", "Museum Hill", nil, -1.2741, 36.8147, 2, true, true, nil).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectCommit()

		err := repo.Insert(stop)
		require.NoError(t, err)
		assert.NotEmpty(t, stop.ID)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Route Not Found Rolls Back", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewStopPointRepository(mockDB)

		stop := &models.StopPoint{RouteID: "missing", Name: "Nowhere", StopOrder: 1}

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM routes WHERE id = \$1 FOR UPDATE`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := repo.Insert(stop)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "route not found")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStopPointDelete(t *testing.T) {
	t.Run("Renumbers Remaining Stops", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewStopPointRepository(mockDB)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE OF r`).
			WithArgs("stop-2").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("route-1"))
		mock.ExpectExec(`DELETE FROM stop_points WHERE id = \$1`).
			WithArgs("stop-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`ROW_NUMBER\(\) OVER \(ORDER BY stop_order\)`).
			WithArgs("route-1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := repo.Delete("stop-2")
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing Stop Rolls Back", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewStopPointRepository(mockDB)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE OF r`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := repo.Delete("missing")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "stop point not found")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Renumber Failure Rolls Back", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := NewStopPointRepository(mockDB)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE OF r`).
			WithArgs("stop-2").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("route-1"))
		mock.ExpectExec(`DELETE FROM stop_points WHERE id = \$1`).
			WithArgs("stop-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`ROW_NUMBER\(\) OVER \(ORDER BY stop_order\)`).
			WithArgs("route-1").
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		err := repo.Delete("stop-2")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to renumber")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStopPointMaxOrder(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewStopPointRepository(mockDB)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(stop_order\), 0\)`).
		WithArgs("route-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))

	maxOrder, err := repo.MaxOrder("route-1")
	require.NoError(t, err)
	assert.Equal(t, 3, maxOrder)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStopPointGetByRouteID(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewStopPointRepository(mockDB)

	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM stop_points`).
		WithArgs("route-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "route_id", "name", "address", "lat", "lng", "stop_order",
			"allow_pickup", "allow_dropoff", "minutes_from_start", "created_at", "updated_at",
		}).
			AddRow("stop-1", "route-1", "CBD", nil, -1.2864, 36.8172, 1, true, false, nil, now, now).
			AddRow("stop-2", "route-1", "Westlands", "Waiyaki Way", -1.2683, 36.8111, 2, true, true, 15, now, now))

	stops, err := repo.GetByRouteID("route-1")
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, 1, stops[0].StopOrder)
	assert.Nil(t, stops[0].Address)
	require.NotNil(t, stops[1].MinutesFromStart)
	assert.Equal(t, 15, *stops[1].MinutesFromStart)

	assert.NoError(t, mock.ExpectationsWereMet())
}
