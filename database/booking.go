package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

const bookingColumns = `booking_id, car_id, customer_id, start_date, end_date, status, payment_status, contract_status, total_price, deposit, currency, payment_order_ref, contract_ref, side_effects_pending, created_at, updated_at, meta_data`

func (d Datasource) CreateBooking(ctx context.Context, bkg *model.Booking) (*model.Booking, error) {
	ctx, span := otel.Tracer("booking.database").Start(ctx, "Saving booking to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(bkg.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO caravel.bookings(booking_id,car_id,customer_id,start_date,end_date,status,payment_status,contract_status,total_price,deposit,currency,payment_order_ref,contract_ref,side_effects_pending,created_at,updated_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		bkg.BookingID, bkg.CarID, bkg.CustomerID, bkg.StartDate, bkg.EndDate, bkg.Status, bkg.PaymentStatus, bkg.ContractStatus, bkg.TotalPrice, bkg.Deposit, bkg.Currency, bkg.PaymentOrderRef, bkg.ContractRef, bkg.SideEffectsPending, bkg.CreatedAt, bkg.UpdatedAt, metaDataJSON,
	)

	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record booking", err)
	}

	return bkg, nil
}

func scanBooking(row *sql.Row) (*model.Booking, error) {
	bkg := &model.Booking{}
	var metaDataJSON []byte
	err := row.Scan(&bkg.BookingID, &bkg.CarID, &bkg.CustomerID, &bkg.StartDate, &bkg.EndDate, &bkg.Status, &bkg.PaymentStatus, &bkg.ContractStatus, &bkg.TotalPrice, &bkg.Deposit, &bkg.Currency, &bkg.PaymentOrderRef, &bkg.ContractRef, &bkg.SideEffectsPending, &bkg.CreatedAt, &bkg.UpdatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &bkg.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return bkg, nil
}

func (d Datasource) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM caravel.bookings
		WHERE booking_id = $1
	`, id)

	bkg, err := scanBooking(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Booking with ID '%s' not found", id), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking", err)
	}
	return bkg, nil
}

func (d Datasource) GetBookingByPaymentOrderRef(ctx context.Context, orderRef string) (*model.Booking, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM caravel.bookings
		WHERE payment_order_ref = $1
	`, orderRef)

	bkg, err := scanBooking(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No booking correlated to payment order '%s'", orderRef), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking", err)
	}
	return bkg, nil
}

func (d Datasource) GetBookingByContractRef(ctx context.Context, contractRef string) (*model.Booking, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM caravel.bookings
		WHERE contract_ref = $1
	`, contractRef)

	bkg, err := scanBooking(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No booking correlated to contract submission '%s'", contractRef), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking", err)
	}
	return bkg, nil
}

// UpdateBookingStatus performs the guarded status write. The WHERE clause
// carries the expected current status, so of two racing writers only one can
// see a row to update. side_effects_pending is raised in the same statement;
// the side-effect runner lowers it once the effects have been applied.
func (d Datasource) UpdateBookingStatus(ctx context.Context, id, expectedCurrent, newStatus string) (int64, error) {
	ctx, span := otel.Tracer("booking.database").Start(ctx, "Guarded status update")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.bookings
		SET status = $3, side_effects_pending = TRUE, updated_at = NOW()
		WHERE booking_id = $1 AND status = $2
	`, id, expectedCurrent, newStatus)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update booking status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected, nil
}

func (d Datasource) UpdateBookingPaymentStatus(ctx context.Context, id, paymentStatus string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.bookings
		SET payment_status = $2, updated_at = NOW()
		WHERE booking_id = $1
	`, id, paymentStatus)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payment status", err)
	}
	return requireRowAffected(result, id)
}

func (d Datasource) UpdateBookingContractStatus(ctx context.Context, id, contractStatus string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.bookings
		SET contract_status = $2, updated_at = NOW()
		WHERE booking_id = $1
	`, id, contractStatus)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update contract status", err)
	}
	return requireRowAffected(result, id)
}

func (d Datasource) SetBookingPaymentOrderRef(ctx context.Context, id, orderRef string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.bookings
		SET payment_order_ref = $2, updated_at = NOW()
		WHERE booking_id = $1
	`, id, orderRef)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to set payment order ref", err)
	}
	return requireRowAffected(result, id)
}

func (d Datasource) SetBookingContractRef(ctx context.Context, id, contractRef string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.bookings
		SET contract_ref = $2, updated_at = NOW()
		WHERE booking_id = $1
	`, id, contractRef)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to set contract ref", err)
	}
	return requireRowAffected(result, id)
}

func (d Datasource) ClearSideEffectsPending(ctx context.Context, id string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.bookings
		SET side_effects_pending = FALSE, updated_at = NOW()
		WHERE booking_id = $1
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to clear side effects flag", err)
	}
	return nil
}

func (d Datasource) GetBookingsWithPendingSideEffects(ctx context.Context, limit int) ([]*model.Booking, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM caravel.bookings
		WHERE side_effects_pending = TRUE
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve bookings with pending side effects", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		bkg := &model.Booking{}
		var metaDataJSON []byte
		err = rows.Scan(&bkg.BookingID, &bkg.CarID, &bkg.CustomerID, &bkg.StartDate, &bkg.EndDate, &bkg.Status, &bkg.PaymentStatus, &bkg.ContractStatus, &bkg.TotalPrice, &bkg.Deposit, &bkg.Currency, &bkg.PaymentOrderRef, &bkg.ContractRef, &bkg.SideEffectsPending, &bkg.CreatedAt, &bkg.UpdatedAt, &metaDataJSON)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan booking data", err)
		}
		if len(metaDataJSON) > 0 {
			if err := json.Unmarshal(metaDataJSON, &bkg.MetaData); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
			}
		}
		bookings = append(bookings, bkg)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over bookings", err)
	}
	return bookings, nil
}

func requireRowAffected(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Booking with ID '%s' not found", id), nil)
	}
	return nil
}
