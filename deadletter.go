/*
Copyright 2026 Caravel Rentals Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package caravel

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/internal/notification"
	"github.com/caravel-rentals/caravel/model"
)

// moveToDeadLetter snapshots an exhausted retry record into the dead-letter
// store and pages the on-call channel. The snapshot is append-only: nothing
// ever mutates or deletes it apart from the requeue stamp.
func (c *Caravel) moveToDeadLetter(ctx context.Context, record *model.WebhookRetryRecord, bookingID string, attempt int, cause error) error {
	if err := c.datasource.MarkWebhookRecordDeadLettered(ctx, record.RecordID, attempt, cause.Error()); err != nil {
		return err
	}

	item := &model.DeadLetterItem{
		DeadLetterID:        model.GenerateUUIDWithPrefix("dlq"),
		SourceRecordID:      record.RecordID,
		WebhookType:         record.WebhookType,
		WebhookID:           record.WebhookID,
		Payload:             record.Payload,
		BookingID:           bookingID,
		FinalError:          cause.Error(),
		AttemptCount:        attempt,
		FailedPermanentlyAt: time.Now(),
	}
	if _, err := c.datasource.CreateDeadLetterItem(ctx, item); err != nil {
		return err
	}

	c.recordEvent(ctx, bookingID, model.EventWebhookDeadLettered, model.ActorSystem, "", map[string]interface{}{
		"webhook_type":   record.WebhookType,
		"record_id":      record.RecordID,
		"dead_letter_id": item.DeadLetterID,
		"attempts":       attempt,
		"error":          cause.Error(),
	})
	notification.NotifyError(fmt.Errorf("webhook %s/%s dead-lettered after %d attempts: %w", record.WebhookType, record.WebhookID, attempt, cause))
	return nil
}

// GetDeadLetterItems lists dead-letter snapshots, newest failures first.
func (c *Caravel) GetDeadLetterItems(ctx context.Context, limit, offset int) ([]*model.DeadLetterItem, error) {
	if limit <= 0 {
		limit = 20
	}
	return c.datasource.GetDeadLetterItems(ctx, limit, offset)
}

// RequeueDeadLetterItem puts a dead-lettered event back in play by creating
// a fresh retry record with a zeroed attempt counter. The snapshot itself
// only gains a requeue stamp; an already-requeued item cannot be requeued
// again.
func (c *Caravel) RequeueDeadLetterItem(ctx context.Context, deadLetterID, actorID string) (*model.WebhookRetryRecord, error) {
	ctx, span := otel.Tracer("caravel.retry").Start(ctx, "Requeueing dead letter item")
	defer span.End()

	item, err := c.datasource.GetDeadLetterItem(ctx, deadLetterID)
	if err != nil {
		return nil, err
	}
	if item.RequeuedAt != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Dead letter item '%s' was already requeued at %s", deadLetterID, item.RequeuedAt.Format(time.RFC3339)), nil)
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &model.WebhookRetryRecord{
		RecordID:     model.GenerateUUIDWithPrefix("whr"),
		WebhookType:  item.WebhookType,
		WebhookID:    item.WebhookID,
		Payload:      item.Payload,
		AttemptCount: 0,
		MaxAttempts:  cfg.WebhookRetry.MaxAttempts,
		Status:       model.RetryStatusPending,
		NextRetryAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := c.datasource.CreateWebhookRecord(ctx, record)
	if err != nil {
		return nil, err
	}

	if err := c.datasource.MarkDeadLetterRequeued(ctx, deadLetterID, actorID); err != nil {
		return nil, err
	}

	c.recordEvent(ctx, item.BookingID, model.EventDeadLetterRequeued, model.ActorAdmin, actorID, map[string]interface{}{
		"dead_letter_id": deadLetterID,
		"new_record_id":  created.RecordID,
		"webhook_type":   item.WebhookType,
	})

	// Kick a sweep so the operator sees the replay land without waiting for
	// the next scheduler tick.
	if c.queue != nil {
		if err := c.queue.EnqueueRetrySweep(ctx); err != nil {
			logrus.Errorf("failed to enqueue sweep after requeue of %s: %v", deadLetterID, err)
		}
	}
	return created, nil
}
