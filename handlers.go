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
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

// paymentWebhookPayload is the payment provider's event body.
type paymentWebhookPayload struct {
	EventID  string `json:"event_id"`
	Event    string `json:"event"`
	OrderRef string `json:"order_ref"`
}

// contractWebhookPayload is the contract provider's event body.
type contractWebhookPayload struct {
	EventID       string `json:"event_id"`
	Event         string `json:"event"`
	SubmissionRef string `json:"submission_ref"`
}

// handleWebhook applies one stored provider event to its booking. The
// returned booking id (possibly empty when correlation failed) feeds the
// event log and the dead-letter snapshot. Errors wrapped as permanent skip
// the retry ladder and dead-letter immediately; everything else is treated
// as transient.
func (c *Caravel) handleWebhook(ctx context.Context, record *model.WebhookRetryRecord) (string, error) {
	switch record.WebhookType {
	case model.WebhookTypePayment:
		return c.handlePaymentWebhook(ctx, record.Payload)
	case model.WebhookTypeContract:
		return c.handleContractWebhook(ctx, record.Payload)
	}
	return "", backoff.Permanent(fmt.Errorf("unknown webhook type %q", record.WebhookType))
}

func (c *Caravel) handlePaymentWebhook(ctx context.Context, payload json.RawMessage) (string, error) {
	var event paymentWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", backoff.Permanent(fmt.Errorf("malformed payment webhook payload: %w", err))
	}
	if event.OrderRef == "" {
		return "", backoff.Permanent(fmt.Errorf("payment webhook %s carries no order reference", event.EventID))
	}

	// An order reference that matches no booking will not start matching on a
	// later attempt; only the lookup itself failing is worth retrying.
	booking, err := c.datasource.GetBookingByPaymentOrderRef(ctx, event.OrderRef)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			return "", backoff.Permanent(fmt.Errorf("payment webhook %s matches no booking: %w", event.EventID, err))
		}
		return "", err
	}

	switch event.Event {
	case "payment.authorized":
		if err := c.datasource.UpdateBookingPaymentStatus(ctx, booking.BookingID, model.PaymentStatusAuthorized); err != nil {
			return booking.BookingID, err
		}
		if booking.Status == model.StatusPendingPayment {
			if _, err := c.RequestTransition(ctx, booking.BookingID, model.StatusPendingContract, model.ActorProvider, event.EventID); err != nil {
				return booking.BookingID, classifyTransitionError(err)
			}
		}
		return booking.BookingID, nil

	case "payment.captured":
		return booking.BookingID, c.datasource.UpdateBookingPaymentStatus(ctx, booking.BookingID, model.PaymentStatusCaptured)

	case "payment.denied":
		if err := c.datasource.UpdateBookingPaymentStatus(ctx, booking.BookingID, model.PaymentStatusDenied); err != nil {
			return booking.BookingID, err
		}
		if booking.Status == model.StatusPendingPayment {
			if _, err := c.RequestTransition(ctx, booking.BookingID, model.StatusFailed, model.ActorProvider, event.EventID); err != nil {
				return booking.BookingID, classifyTransitionError(err)
			}
		}
		return booking.BookingID, nil

	case "payment.refunded":
		return booking.BookingID, c.datasource.UpdateBookingPaymentStatus(ctx, booking.BookingID, model.PaymentStatusRefunded)
	}

	return booking.BookingID, backoff.Permanent(fmt.Errorf("unknown payment event %q", event.Event))
}

func (c *Caravel) handleContractWebhook(ctx context.Context, payload json.RawMessage) (string, error) {
	var event contractWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", backoff.Permanent(fmt.Errorf("malformed contract webhook payload: %w", err))
	}
	if event.SubmissionRef == "" {
		return "", backoff.Permanent(fmt.Errorf("contract webhook %s carries no submission reference", event.EventID))
	}

	booking, err := c.datasource.GetBookingByContractRef(ctx, event.SubmissionRef)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			return "", backoff.Permanent(fmt.Errorf("contract webhook %s matches no booking: %w", event.EventID, err))
		}
		return "", err
	}

	switch event.Event {
	case "contract.signed":
		if err := c.datasource.UpdateBookingContractStatus(ctx, booking.BookingID, model.ContractStatusSigned); err != nil {
			return booking.BookingID, err
		}
		if booking.Status == model.StatusContractPendingSignature {
			if _, err := c.RequestTransition(ctx, booking.BookingID, model.StatusUpcoming, model.ActorProvider, event.EventID); err != nil {
				return booking.BookingID, classifyTransitionError(err)
			}
		}
		return booking.BookingID, nil

	case "contract.expired":
		if err := c.datasource.UpdateBookingContractStatus(ctx, booking.BookingID, model.ContractStatusExpired); err != nil {
			return booking.BookingID, err
		}
		// An expired signature request falls back to pending_contract so the
		// send_contract effect issues a fresh one.
		if booking.Status == model.StatusContractPendingSignature {
			if _, err := c.RequestTransition(ctx, booking.BookingID, model.StatusPendingContract, model.ActorProvider, event.EventID); err != nil {
				return booking.BookingID, classifyTransitionError(err)
			}
		}
		return booking.BookingID, nil
	}

	return booking.BookingID, backoff.Permanent(fmt.Errorf("unknown contract event %q", event.Event))
}

// classifyTransitionError decides how a failed transition affects the retry
// ladder. A lost race resolves itself on the next attempt; an illegal
// transition (the booking moved somewhere this event can never apply to)
// will not, so it dead-letters for a human.
func classifyTransitionError(err error) error {
	if apierror.IsCode(err, apierror.ErrInvalidTransition) {
		return backoff.Permanent(err)
	}
	return err
}
