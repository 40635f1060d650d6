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

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/internal/request"
	"github.com/caravel-rentals/caravel/model"
)

// PaymentProvider is the outbound surface of the payment provider. The
// inbound direction (webhooks) comes through the retry engine.
type PaymentProvider interface {
	CreateOrder(ctx context.Context, booking *model.Booking) (string, error)
	RefundOrder(ctx context.Context, orderRef string) error
}

// providerError marks a provider call that failed with an HTTP status. 5xx
// responses and transport failures are retryable; 4xx responses are not.
type providerError struct {
	Provider   string
	StatusCode int
}

func (e *providerError) Error() string {
	return fmt.Sprintf("%s provider returned status %d", e.Provider, e.StatusCode)
}

// PaymentClient talks to the payment provider's REST API.
type PaymentClient struct {
	conf config.ProviderConfig
}

func NewPaymentClient(conf config.ProviderConfig) *PaymentClient {
	return &PaymentClient{conf: conf}
}

// CreateOrder opens a payment order covering the booking's total price plus
// deposit and returns the provider's order reference. Transient failures are
// retried briefly in-line; anything that survives the retries is surfaced to
// the caller, which leaves the side effect pending for the reconciliation
// sweep.
func (p *PaymentClient) CreateOrder(ctx context.Context, booking *model.Booking) (string, error) {
	payload := map[string]interface{}{
		"reference": booking.BookingID,
		"amount":    booking.TotalPrice,
		"deposit":   booking.Deposit,
		"currency":  booking.Currency,
		"customer":  booking.CustomerID,
	}

	var response struct {
		OrderRef string `json:"order_ref"`
	}

	operation := func() error {
		return p.call(ctx, http.MethodPost, "/v1/orders", payload, &response)
	}
	if err := backoff.Retry(operation, providerBackOff(ctx)); err != nil {
		return "", errors.Wrap(err, "failed to create payment order")
	}
	return response.OrderRef, nil
}

// RefundOrder asks the provider to refund a captured or authorized order.
func (p *PaymentClient) RefundOrder(ctx context.Context, orderRef string) error {
	var response struct {
		Status string `json:"status"`
	}

	operation := func() error {
		return p.call(ctx, http.MethodPost, fmt.Sprintf("/v1/orders/%s/refund", orderRef), map[string]interface{}{}, &response)
	}
	if err := backoff.Retry(operation, providerBackOff(ctx)); err != nil {
		return errors.Wrapf(err, "failed to refund payment order %s", orderRef)
	}
	return nil
}

func (p *PaymentClient) call(ctx context.Context, method, path string, payload, response interface{}) error {
	body, err := request.ToJsonReq(payload)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.conf.BaseURL+path, body)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.conf.APIKey)

	resp, err := request.Call(req, response, time.Duration(p.conf.TimeoutSeconds)*time.Second)
	if err != nil {
		if resp != nil && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	if resp.StatusCode >= 500 {
		return &providerError{Provider: "payment", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(&providerError{Provider: "payment", StatusCode: resp.StatusCode})
	}
	return nil
}

// providerBackOff is the short in-line retry used during adapter calls.
// The webhook retry engine owns the long game; this only papers over blips.
func providerBackOff(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(policy, 2), ctx)
}
