package database

import (
	"context"
	"database/sql"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

// CreateDisputeIfAbsent inserts a dispute for the booking unless one already
// exists. Returns the stored dispute either way, with created reporting
// whether this call inserted it.
func (d Datasource) CreateDisputeIfAbsent(ctx context.Context, dispute *model.Dispute) (*model.Dispute, bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO caravel.disputes(dispute_id,booking_id,reason,opened_by,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (booking_id) DO NOTHING
	`, dispute.DisputeID, dispute.BookingID, dispute.Reason, dispute.OpenedBy, dispute.CreatedAt)
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create dispute", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	stored, err := d.GetDisputeByBookingID(ctx, dispute.BookingID)
	if err != nil {
		return nil, false, err
	}
	return stored, rowsAffected > 0, nil
}

func (d Datasource) GetDisputeByBookingID(ctx context.Context, bookingID string) (*model.Dispute, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT dispute_id, booking_id, reason, opened_by, created_at
		FROM caravel.disputes
		WHERE booking_id = $1
	`, bookingID)

	dispute := &model.Dispute{}
	err := row.Scan(&dispute.DisputeID, &dispute.BookingID, &dispute.Reason, &dispute.OpenedBy, &dispute.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Dispute not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve dispute", err)
	}
	return dispute, nil
}
