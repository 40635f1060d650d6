package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

const deadLetterColumns = `dead_letter_id, source_record_id, webhook_type, webhook_id, payload, COALESCE(booking_id, ''), final_error, attempt_count, failed_permanently_at, requeued_at, COALESCE(requeued_by, '')`

func (d Datasource) CreateDeadLetterItem(ctx context.Context, item *model.DeadLetterItem) (*model.DeadLetterItem, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO caravel.dead_letter_items(dead_letter_id,source_record_id,webhook_type,webhook_id,payload,booking_id,final_error,attempt_count,failed_permanently_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, item.DeadLetterID, item.SourceRecordID, item.WebhookType, item.WebhookID, []byte(item.Payload), item.BookingID, item.FinalError, item.AttemptCount, item.FailedPermanentlyAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create dead letter item", err)
	}
	return item, nil
}

func scanDeadLetterItem(scan func(dest ...interface{}) error) (*model.DeadLetterItem, error) {
	item := &model.DeadLetterItem{}
	var payload []byte
	var requeuedAt sql.NullTime
	err := scan(&item.DeadLetterID, &item.SourceRecordID, &item.WebhookType, &item.WebhookID, &payload, &item.BookingID, &item.FinalError, &item.AttemptCount, &item.FailedPermanentlyAt, &requeuedAt, &item.RequeuedBy)
	if err != nil {
		return nil, err
	}
	item.Payload = payload
	if requeuedAt.Valid {
		item.RequeuedAt = &requeuedAt.Time
	}
	return item, nil
}

func (d Datasource) GetDeadLetterItem(ctx context.Context, id string) (*model.DeadLetterItem, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+deadLetterColumns+`
		FROM caravel.dead_letter_items
		WHERE dead_letter_id = $1
	`, id)

	item, err := scanDeadLetterItem(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Dead letter item with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve dead letter item", err)
	}
	return item, nil
}

func (d Datasource) GetDeadLetterItems(ctx context.Context, limit, offset int) ([]*model.DeadLetterItem, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+deadLetterColumns+`
		FROM caravel.dead_letter_items
		ORDER BY failed_permanently_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve dead letter items", err)
	}
	defer rows.Close()

	var items []*model.DeadLetterItem
	for rows.Next() {
		item, err := scanDeadLetterItem(rows.Scan)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan dead letter item", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over dead letter items", err)
	}
	return items, nil
}

// MarkDeadLetterRequeued stamps the requeue audit fields. The snapshot itself
// is never deleted or otherwise mutated.
func (d Datasource) MarkDeadLetterRequeued(ctx context.Context, id, actorID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.dead_letter_items
		SET requeued_at = NOW(), requeued_by = $2
		WHERE dead_letter_id = $1
	`, id, actorID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark dead letter item requeued", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Dead letter item with ID '%s' not found", id), nil)
	}
	return nil
}
