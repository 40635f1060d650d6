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
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/internal/request"
	"github.com/caravel-rentals/caravel/model"
)

// ErrEmailRateLimited is returned when a recipient has hit the hourly send
// cap. Callers treat it as a drop, not a retryable failure.
var ErrEmailRateLimited = errors.New("recipient email rate limit exceeded")

// Mailer delivers booking emails. The rate limit lives behind this interface
// so the worker and tests share it.
type Mailer interface {
	Send(ctx context.Context, payload EmailPayload) error
}

// EmailMailer posts emails to the configured delivery endpoint, enforcing a
// per-recipient hourly cap through a shared Redis counter so the cap holds
// across replicas.
type EmailMailer struct {
	conf  config.EmailConfig
	redis redis.UniversalClient
}

func NewEmailMailer(conf config.EmailConfig, redisClient redis.UniversalClient) *EmailMailer {
	return &EmailMailer{conf: conf, redis: redisClient}
}

// Send checks the recipient's hourly counter and posts the email. The
// counter is incremented before the send, so a crashed delivery still counts
// against the cap rather than under it.
func (m *EmailMailer) Send(ctx context.Context, payload EmailPayload) error {
	if m.conf.Url == "" {
		logrus.Warnf("email delivery endpoint not configured, dropping notification %s", payload.NotificationID)
		return nil
	}

	allowed, err := m.allowSend(ctx, payload.Recipient)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrEmailRateLimited
	}

	body, err := request.ToJsonReq(map[string]interface{}{
		"to":      payload.Recipient,
		"subject": payload.Subject,
		"body":    payload.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.conf.Url, body)
	if err != nil {
		return err
	}
	for key, value := range m.conf.Headers {
		req.Header.Set(key, value)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response, 0)
	if err != nil {
		return errors.Wrap(err, "failed to deliver email")
	}
	if resp.StatusCode >= 400 {
		return errors.Errorf("email delivery endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// allowSend increments the recipient's counter for the current hour bucket
// and reports whether the send is still under the cap. INCR plus a TTL on
// first touch keeps the window self-cleaning.
func (m *EmailMailer) allowSend(ctx context.Context, recipient string) (bool, error) {
	key := fmt.Sprintf("caravel:email:%s:%s", recipient, time.Now().UTC().Format("2006010215"))

	count, err := m.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to bump email rate counter")
	}
	if count == 1 {
		if err := m.redis.Expire(ctx, key, time.Hour).Err(); err != nil {
			logrus.Errorf("failed to set TTL on email rate counter %s: %v", key, err)
		}
	}
	return count <= int64(m.conf.MaxPerRecipientPerHour), nil
}

// queueBookingEmail enqueues a lifecycle email for the booking's customer.
// Bookings without a customer email on file are skipped quietly.
func (c *Caravel) queueBookingEmail(ctx context.Context, booking *model.Booking, kind, body string) error {
	recipient, _ := booking.MetaData["customer_email"].(string)
	if recipient == "" {
		return nil
	}

	payload := EmailPayload{
		// Deterministic id: replaying the side effect yields the same task
		// id, which asynq deduplicates.
		NotificationID: fmt.Sprintf("%s:%s", booking.BookingID, kind),
		BookingID:      booking.BookingID,
		Recipient:      recipient,
		Subject:        fmt.Sprintf("Your Caravel booking is %s", kind),
		Body:           body,
	}
	return c.queue.EnqueueNotification(ctx, payload)
}

// SendQueuedEmail is the worker-side delivery path. Outcomes land in the
// booking event log; a rate-limited drop is terminal, not retried.
func (c *Caravel) SendQueuedEmail(ctx context.Context, payload EmailPayload) error {
	err := c.mailer.Send(ctx, payload)
	if err != nil {
		c.recordEvent(ctx, payload.BookingID, model.EventEmailSendFailed, model.ActorSystem, "", map[string]interface{}{
			"notification_id": payload.NotificationID,
			"recipient":       payload.Recipient,
			"error":           err.Error(),
		})
		if errors.Is(err, ErrEmailRateLimited) {
			logrus.Warnf("email to %s dropped, hourly cap reached", payload.Recipient)
			return nil
		}
		return err
	}

	c.recordEvent(ctx, payload.BookingID, model.EventEmailSent, model.ActorSystem, "", map[string]interface{}{
		"notification_id": payload.NotificationID,
		"recipient":       payload.Recipient,
	})
	return nil
}
