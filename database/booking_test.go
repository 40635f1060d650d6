package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testBooking() *model.Booking {
	now := time.Now()
	return &model.Booking{
		BookingID:     model.GenerateUUIDWithPrefix("bkg"),
		CarID:         "car_01",
		CustomerID:    "cus_01",
		StartDate:     time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		Status:        model.StatusPendingPayment,
		PaymentStatus: model.PaymentStatusPending,
		ContractStatus: model.ContractStatusNone,
		TotalPrice:    decimal.NewFromInt(420),
		Deposit:       decimal.NewFromInt(100),
		Currency:      "USD",
		CreatedAt:     now,
		UpdatedAt:     now,
		MetaData: map[string]interface{}{
			"channel": "web",
		},
	}
}

func bookingRows(bkg *model.Booking) *sqlmock.Rows {
	metaDataJSON, _ := json.Marshal(bkg.MetaData)
	return sqlmock.NewRows([]string{
		"booking_id", "car_id", "customer_id", "start_date", "end_date", "status",
		"payment_status", "contract_status", "total_price", "deposit", "currency",
		"payment_order_ref", "contract_ref", "side_effects_pending", "created_at", "updated_at", "meta_data",
	}).AddRow(
		bkg.BookingID, bkg.CarID, bkg.CustomerID, bkg.StartDate, bkg.EndDate, bkg.Status,
		bkg.PaymentStatus, bkg.ContractStatus, bkg.TotalPrice.String(), bkg.Deposit.String(), bkg.Currency,
		bkg.PaymentOrderRef, bkg.ContractRef, bkg.SideEffectsPending, bkg.CreatedAt, bkg.UpdatedAt, metaDataJSON,
	)
}

func TestCreateBooking_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	bkg := testBooking()

	mock.ExpectExec("INSERT INTO caravel.bookings").
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateBooking(context.Background(), bkg)
	assert.NoError(t, err)
	assert.Equal(t, bkg.BookingID, created.BookingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO caravel.bookings").
		WillReturnError(sql.ErrConnDone)

	_, err = ds.CreateBooking(context.Background(), testBooking())
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}

func TestGetBooking_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	bkg := testBooking()

	mock.ExpectQuery("SELECT .* FROM caravel.bookings WHERE booking_id =").
		WithArgs(bkg.BookingID).
		WillReturnRows(bookingRows(bkg))

	got, err := ds.GetBooking(context.Background(), bkg.BookingID)
	assert.NoError(t, err)
	assert.Equal(t, bkg.BookingID, got.BookingID)
	assert.Equal(t, model.StatusPendingPayment, got.Status)
	assert.True(t, got.TotalPrice.Equal(bkg.TotalPrice))
	assert.Equal(t, "web", got.MetaData["channel"])
}

func TestGetBooking_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM caravel.bookings WHERE booking_id =").
		WithArgs("bkg_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetBooking(context.Background(), "bkg_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestGetBookingByPaymentOrderRef_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	bkg := testBooking()
	bkg.PaymentOrderRef = "ord_77"

	mock.ExpectQuery("SELECT .* FROM caravel.bookings WHERE payment_order_ref =").
		WithArgs("ord_77").
		WillReturnRows(bookingRows(bkg))

	got, err := ds.GetBookingByPaymentOrderRef(context.Background(), "ord_77")
	assert.NoError(t, err)
	assert.Equal(t, bkg.BookingID, got.BookingID)
	assert.Equal(t, "ord_77", got.PaymentOrderRef)
}

func TestUpdateBookingStatus_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE caravel.bookings").
		WithArgs("bkg_1", model.StatusPendingPayment, model.StatusPendingContract).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rowsAffected, err := ds.UpdateBookingStatus(context.Background(), "bkg_1", model.StatusPendingPayment, model.StatusPendingContract)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), rowsAffected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBookingStatus_GuardMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	// Another writer got there first: the expected status no longer matches,
	// so the UPDATE touches zero rows.
	mock.ExpectExec("UPDATE caravel.bookings").
		WithArgs("bkg_1", model.StatusPendingPayment, model.StatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rowsAffected, err := ds.UpdateBookingStatus(context.Background(), "bkg_1", model.StatusPendingPayment, model.StatusCancelled)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), rowsAffected)
}

func TestUpdateBookingPaymentStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE caravel.bookings").
		WithArgs("bkg_missing", model.PaymentStatusCaptured).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateBookingPaymentStatus(context.Background(), "bkg_missing", model.PaymentStatusCaptured)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestGetBookingsWithPendingSideEffects(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	bkg := testBooking()
	bkg.SideEffectsPending = true

	mock.ExpectQuery("SELECT .* FROM caravel.bookings WHERE side_effects_pending = TRUE").
		WithArgs(50).
		WillReturnRows(bookingRows(bkg))

	bookings, err := ds.GetBookingsWithPendingSideEffects(context.Background(), 50)
	assert.NoError(t, err)
	assert.Len(t, bookings, 1)
	assert.True(t, bookings[0].SideEffectsPending)
}

func TestClearSideEffectsPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE caravel.bookings").
		WithArgs("bkg_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.ClearSideEffectsPending(context.Background(), "bkg_1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
