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

// ContractProvider is the outbound surface of the e-signature provider.
type ContractProvider interface {
	SendContract(ctx context.Context, booking *model.Booking) (string, error)
	VoidContract(ctx context.Context, contractRef string) error
}

// ContractClient talks to the contract provider's REST API.
type ContractClient struct {
	conf config.ProviderConfig
}

func NewContractClient(conf config.ProviderConfig) *ContractClient {
	return &ContractClient{conf: conf}
}

// SendContract sends the rental agreement out for signature and returns the
// provider's submission reference.
func (c *ContractClient) SendContract(ctx context.Context, booking *model.Booking) (string, error) {
	payload := map[string]interface{}{
		"reference":  booking.BookingID,
		"customer":   booking.CustomerID,
		"car":        booking.CarID,
		"start_date": booking.StartDate.Format("2006-01-02"),
		"end_date":   booking.EndDate.Format("2006-01-02"),
	}

	var response struct {
		SubmissionRef string `json:"submission_ref"`
	}

	operation := func() error {
		return c.call(ctx, http.MethodPost, "/v1/submissions", payload, &response)
	}
	if err := backoff.Retry(operation, providerBackOff(ctx)); err != nil {
		return "", errors.Wrap(err, "failed to send rental contract")
	}
	return response.SubmissionRef, nil
}

// VoidContract cancels an outstanding signature request, used when a booking
// is cancelled before the customer signs.
func (c *ContractClient) VoidContract(ctx context.Context, contractRef string) error {
	var response struct {
		Status string `json:"status"`
	}

	operation := func() error {
		return c.call(ctx, http.MethodPost, fmt.Sprintf("/v1/submissions/%s/void", contractRef), map[string]interface{}{}, &response)
	}
	if err := backoff.Retry(operation, providerBackOff(ctx)); err != nil {
		return errors.Wrapf(err, "failed to void contract %s", contractRef)
	}
	return nil
}

func (c *ContractClient) call(ctx context.Context, method, path string, payload, response interface{}) error {
	body, err := request.ToJsonReq(payload)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.conf.BaseURL+path, body)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.conf.APIKey)

	resp, err := request.Call(req, response, time.Duration(c.conf.TimeoutSeconds)*time.Second)
	if err != nil {
		if resp != nil && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	if resp.StatusCode >= 500 {
		return &providerError{Provider: "contract", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(&providerError{Provider: "contract", StatusCode: resp.StatusCode})
	}
	return nil
}
