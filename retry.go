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
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/internal/apierror"
	redlock "github.com/caravel-rentals/caravel/internal/lock"
	"github.com/caravel-rentals/caravel/model"
)

const retrySweepLockKey = "caravel:lock:retry-sweep"

// RetrySweepResult summarizes one pass over the due retry queue.
type RetrySweepResult struct {
	Processed    int `json:"processed"`
	Succeeded    int `json:"succeeded"`
	Rescheduled  int `json:"rescheduled"`
	DeadLettered int `json:"dead_lettered"`
	Skipped      int `json:"skipped"`
}

// RecordIncomingEvent durably stores a provider webhook for asynchronous
// processing and returns immediately. Events are de-duplicated on the
// provider's own event id: a replayed delivery returns the existing record
// with created=false and changes nothing.
func (c *Caravel) RecordIncomingEvent(ctx context.Context, webhookType, webhookID string, payload json.RawMessage) (*model.WebhookRetryRecord, bool, error) {
	ctx, span := otel.Tracer("caravel.retry").Start(ctx, "Recording incoming webhook")
	defer span.End()

	if webhookType != model.WebhookTypePayment && webhookType != model.WebhookTypeContract {
		return nil, false, apierror.NewAPIError(apierror.ErrBadRequest, "Unknown webhook type", nil)
	}
	if webhookID == "" {
		return nil, false, apierror.NewAPIError(apierror.ErrBadRequest, "Webhook event id is required", nil)
	}

	existing, err := c.datasource.GetWebhookRecordByProviderID(ctx, webhookType, webhookID)
	if err == nil {
		return existing, false, nil
	}
	if !apierror.IsCode(err, apierror.ErrNotFound) {
		return nil, false, err
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	record := &model.WebhookRetryRecord{
		RecordID:     model.GenerateUUIDWithPrefix("whr"),
		WebhookType:  webhookType,
		WebhookID:    webhookID,
		Payload:      payload,
		AttemptCount: 0,
		MaxAttempts:  cfg.WebhookRetry.MaxAttempts,
		Status:       model.RetryStatusPending,
		NextRetryAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := c.datasource.CreateWebhookRecord(ctx, record)
	if err != nil {
		return nil, false, err
	}

	c.recordEvent(ctx, "", model.EventWebhookReceived, model.ActorProvider, webhookID, map[string]interface{}{
		"webhook_type": webhookType,
		"record_id":    created.RecordID,
	})
	return created, true, nil
}

// ProcessDueRetries runs one sweep over the due retry queue. A Redis lock
// keeps concurrent sweeps (scheduler tick racing a manual trigger) from
// working the same batch; if the lock is held the sweep yields.
func (c *Caravel) ProcessDueRetries(ctx context.Context, limit int) (RetrySweepResult, error) {
	ctx, span := otel.Tracer("caravel.retry").Start(ctx, "Processing due webhook retries")
	defer span.End()

	var result RetrySweepResult
	if limit <= 0 {
		limit = 50
	}

	locker := redlock.NewLocker(c.redis, retrySweepLockKey, model.GenerateUUIDWithPrefix("lock"))
	if err := locker.Lock(ctx, 5*time.Minute); err != nil {
		logrus.Infof("retry sweep already running, yielding: %v", err)
		return result, nil
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release retry sweep lock: %v", err)
		}
	}()

	due, err := c.datasource.GetDueWebhookRetries(ctx, limit)
	if err != nil {
		return result, err
	}

	for _, record := range due {
		claimed, err := c.datasource.MarkWebhookRecordProcessing(ctx, record.RecordID)
		if err != nil {
			return result, err
		}
		if claimed == 0 {
			result.Skipped++
			continue
		}
		result.Processed++

		switch c.processRecord(ctx, record) {
		case model.RetryStatusSucceeded:
			result.Succeeded++
		case model.RetryStatusPending:
			result.Rescheduled++
		case model.RetryStatusDeadLetter:
			result.DeadLettered++
		}
	}
	return result, nil
}

// processRecord attempts the record once and settles it into succeeded,
// pending (rescheduled) or dead_letter. Returns the status the record
// landed in.
func (c *Caravel) processRecord(ctx context.Context, record *model.WebhookRetryRecord) string {
	attempt := record.AttemptCount + 1
	bookingID, err := c.handleWebhook(ctx, record)
	if err == nil {
		if markErr := c.datasource.MarkWebhookRecordSucceeded(ctx, record.RecordID); markErr != nil {
			logrus.Errorf("failed to mark webhook record %s succeeded: %v", record.RecordID, markErr)
		}
		c.recordEvent(ctx, bookingID, model.EventWebhookProcessed, model.ActorProvider, record.WebhookID, map[string]interface{}{
			"webhook_type": record.WebhookType,
			"record_id":    record.RecordID,
			"attempt":      attempt,
		})
		return model.RetryStatusSucceeded
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) || attempt >= record.MaxAttempts {
		if dlErr := c.moveToDeadLetter(ctx, record, bookingID, attempt, err); dlErr != nil {
			logrus.Errorf("failed to dead-letter webhook record %s: %v", record.RecordID, dlErr)
		}
		return model.RetryStatusDeadLetter
	}

	nextRetryAt := time.Now().Add(c.nextBackoff(attempt))
	if schedErr := c.datasource.RescheduleWebhookRecord(ctx, record.RecordID, attempt, nextRetryAt, err.Error()); schedErr != nil {
		logrus.Errorf("failed to reschedule webhook record %s: %v", record.RecordID, schedErr)
		return model.RetryStatusFailed
	}
	c.recordEvent(ctx, bookingID, model.EventWebhookRetryScheduled, model.ActorSystem, "", map[string]interface{}{
		"webhook_type":  record.WebhookType,
		"record_id":     record.RecordID,
		"attempt":       attempt,
		"next_retry_at": nextRetryAt,
		"error":         err.Error(),
	})
	return model.RetryStatusPending
}

// nextBackoff computes the delay before the given attempt retries:
// exponential in the attempt number with full-base jitter, capped by
// configuration so a long outage cannot push retries out indefinitely.
func (c *Caravel) nextBackoff(attempt int) time.Duration {
	cfg, err := config.Fetch()
	if err != nil {
		return time.Minute
	}

	base := time.Duration(cfg.WebhookRetry.BaseBackoffSeconds) * time.Second
	max := time.Duration(cfg.WebhookRetry.MaxBackoffSeconds) * time.Second

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(base)))
	if delay+jitter > max {
		return max
	}
	return delay + jitter
}
