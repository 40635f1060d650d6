package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestSeedAvailability_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	from := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO caravel.availability_days").
		WithArgs("car_01", model.DayAvailable, from, to).
		WillReturnResult(sqlmock.NewResult(0, 5))

	err = ds.SeedAvailability(context.Background(), "car_01", from, to)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAvailabilityRange_Hold(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	from := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE caravel.availability_days").
		WithArgs("car_01", from, to, model.DayPendingConfirmation, "bkg_1", pq.Array(model.HoldSourceStatuses), "bkg_1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	rowsAffected, err := ds.UpdateAvailabilityRange(context.Background(), "car_01", from, to, model.DayPendingConfirmation, model.HoldSourceStatuses, "bkg_1", "bkg_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), rowsAffected)
}

func TestUpdateAvailabilityRange_ReleaseGuardedByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	from := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	// The release statement must skip days another booking owns, so the WHERE
	// clause carries the owner alongside the status filter.
	mock.ExpectExec(`booking_id IS NULL OR booking_id = \$7`).
		WithArgs("car_01", from, to, model.DayAvailable, "", pq.Array(model.ReleaseSourceStatuses), "bkg_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rowsAffected, err := ds.UpdateAvailabilityRange(context.Background(), "car_01", from, to, model.DayAvailable, model.ReleaseSourceStatuses, "", "bkg_1")
	assert.NoError(t, err)
	// All three days now belong to the rebooked rental; nothing changes.
	assert.Equal(t, int64(0), rowsAffected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAvailabilityRange_MaintenanceUntouched(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	from := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	// All three days are under a maintenance block, which is not in the
	// allowed source set, so no rows change.
	mock.ExpectExec("UPDATE caravel.availability_days").
		WithArgs("car_01", from, to, model.DayBooked, "bkg_1", pq.Array(model.ReleaseSourceStatuses), "bkg_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rowsAffected, err := ds.UpdateAvailabilityRange(context.Background(), "car_01", from, to, model.DayBooked, model.ReleaseSourceStatuses, "bkg_1", "bkg_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), rowsAffected)
}

func TestUpdateAvailabilityRange_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	from := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE caravel.availability_days").
		WillReturnError(sql.ErrConnDone)

	_, err = ds.UpdateAvailabilityRange(context.Background(), "car_01", from, to, model.DayBooked, model.HoldSourceStatuses, "bkg_1", "bkg_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}

// memoryCache is a map-backed stand-in for the Redis read cache.
type memoryCache struct {
	entries map[string]interface{}
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]interface{})}
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.entries[key] = value
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string, data interface{}) error {
	stored, ok := m.entries[key]
	if !ok {
		return nil
	}
	switch dst := data.(type) {
	case *string:
		if v, ok := stored.(string); ok {
			*dst = v
		}
	case *[]model.AvailabilityDay:
		if v, ok := stored.([]model.AvailabilityDay); ok {
			*dst = v
		}
	}
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	delete(m.entries, key)
	return nil
}

func TestGetAvailability_InvalidationForcesFreshRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db, Cache: newMemoryCache()}
	from := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC)

	calendarRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"car_id", "date", "status", "booking_id", "updated_at"}).
			AddRow("car_01", from, model.DayBooked, "bkg_1", time.Now())
	}

	// First read fills the cache, second is served from it, and after the
	// generation drops the third goes back to the table.
	mock.ExpectQuery("SELECT .* FROM caravel.availability_days").WillReturnRows(calendarRows())
	mock.ExpectQuery("SELECT .* FROM caravel.availability_days").WillReturnRows(calendarRows())

	for i := 0; i < 2; i++ {
		days, err := ds.GetAvailability(context.Background(), "car_01", from, to)
		assert.NoError(t, err)
		assert.Len(t, days, 1)
	}

	assert.NoError(t, ds.InvalidateAvailability(context.Background(), "car_01"))

	days, err := ds.GetAvailability(context.Background(), "car_01", from, to)
	assert.NoError(t, err)
	assert.Len(t, days, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAvailability_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	from := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"car_id", "date", "status", "booking_id", "updated_at"}).
		AddRow("car_01", from, model.DayBooked, "bkg_1", time.Now()).
		AddRow("car_01", to, model.DayAvailable, "", time.Now())

	mock.ExpectQuery("SELECT .* FROM caravel.availability_days").
		WithArgs("car_01", from, to).
		WillReturnRows(rows)

	days, err := ds.GetAvailability(context.Background(), "car_01", from, to)
	assert.NoError(t, err)
	assert.Len(t, days, 2)
	assert.Equal(t, model.DayBooked, days[0].Status)
	assert.Equal(t, "bkg_1", days[0].BookingID)
	assert.Equal(t, model.DayAvailable, days[1].Status)
}
