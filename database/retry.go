package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

const webhookColumns = `record_id, webhook_type, webhook_id, payload, attempt_count, max_attempts, status, COALESCE(last_error, ''), next_retry_at, created_at, updated_at`

func (d Datasource) CreateWebhookRecord(ctx context.Context, record *model.WebhookRetryRecord) (*model.WebhookRetryRecord, error) {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO caravel.webhook_retry_records(record_id,webhook_type,webhook_id,payload,attempt_count,max_attempts,status,next_retry_at,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, record.RecordID, record.WebhookType, record.WebhookID, []byte(record.Payload), record.AttemptCount, record.MaxAttempts, record.Status, record.NextRetryAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record webhook event", err)
	}
	return record, nil
}

func scanWebhookRecord(scan func(dest ...interface{}) error) (*model.WebhookRetryRecord, error) {
	record := &model.WebhookRetryRecord{}
	var payload []byte
	var nextRetryAt sql.NullTime
	err := scan(&record.RecordID, &record.WebhookType, &record.WebhookID, &payload, &record.AttemptCount, &record.MaxAttempts, &record.Status, &record.LastError, &nextRetryAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	record.Payload = payload
	if nextRetryAt.Valid {
		record.NextRetryAt = &nextRetryAt.Time
	}
	return record, nil
}

func (d Datasource) GetWebhookRecord(ctx context.Context, id string) (*model.WebhookRetryRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+webhookColumns+`
		FROM caravel.webhook_retry_records
		WHERE record_id = $1
	`, id)

	record, err := scanWebhookRecord(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Webhook record with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve webhook record", err)
	}
	return record, nil
}

func (d Datasource) GetWebhookRecordByProviderID(ctx context.Context, webhookType, webhookID string) (*model.WebhookRetryRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+webhookColumns+`
		FROM caravel.webhook_retry_records
		WHERE webhook_type = $1 AND webhook_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, webhookType, webhookID)

	record, err := scanWebhookRecord(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No webhook record for %s event '%s'", webhookType, webhookID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve webhook record", err)
	}
	return record, nil
}

// GetDueWebhookRetries returns a bounded batch of pending records whose
// next_retry_at has passed, oldest first.
func (d Datasource) GetDueWebhookRetries(ctx context.Context, limit int) ([]*model.WebhookRetryRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+webhookColumns+`
		FROM caravel.webhook_retry_records
		WHERE status = $1 AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC
		LIMIT $2
	`, model.RetryStatusPending, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due retries", err)
	}
	defer rows.Close()

	var records []*model.WebhookRetryRecord
	for rows.Next() {
		record, err := scanWebhookRecord(rows.Scan)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan webhook record", err)
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over due retries", err)
	}
	return records, nil
}

func (d Datasource) MarkWebhookRecordProcessing(ctx context.Context, id string) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.webhook_retry_records
		SET status = $2, next_retry_at = NULL, updated_at = NOW()
		WHERE record_id = $1 AND status = $3
	`, id, model.RetryStatusProcessing, model.RetryStatusPending)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark webhook record processing", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected, nil
}

func (d Datasource) MarkWebhookRecordSucceeded(ctx context.Context, id string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.webhook_retry_records
		SET status = $2, next_retry_at = NULL, last_error = NULL, updated_at = NOW()
		WHERE record_id = $1 AND status <> $3
	`, id, model.RetryStatusSucceeded, model.RetryStatusDeadLetter)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark webhook record succeeded", err)
	}
	return nil
}

// RescheduleWebhookRecord returns a failed attempt to the pending pool with
// its attempt count and next retry time advanced.
func (d Datasource) RescheduleWebhookRecord(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, lastError string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.webhook_retry_records
		SET status = $2, attempt_count = $3, next_retry_at = $4, last_error = $5, updated_at = NOW()
		WHERE record_id = $1
	`, id, model.RetryStatusPending, attemptCount, nextRetryAt, lastError)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reschedule webhook record", err)
	}
	return nil
}

func (d Datasource) MarkWebhookRecordDeadLettered(ctx context.Context, id string, attemptCount int, lastError string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.webhook_retry_records
		SET status = $2, attempt_count = $3, next_retry_at = NULL, last_error = $4, updated_at = NOW()
		WHERE record_id = $1
	`, id, model.RetryStatusDeadLetter, attemptCount, lastError)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to dead-letter webhook record", err)
	}
	return nil
}
