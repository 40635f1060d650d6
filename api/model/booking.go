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
package model

import (
	"time"

	"github.com/caravel-rentals/caravel/model"
	"github.com/shopspring/decimal"
)

// CreateBooking is the request body for opening a new booking.
type CreateBooking struct {
	CarID      string                 `json:"car_id"`
	CustomerID string                 `json:"customer_id"`
	StartDate  string                 `json:"start_date"`
	EndDate    string                 `json:"end_date"`
	TotalPrice decimal.Decimal        `json:"total_price"`
	Deposit    decimal.Decimal        `json:"deposit"`
	Currency   string                 `json:"currency"`
	MetaData   map[string]interface{} `json:"meta_data,omitempty"`
}

// ToBooking converts a validated request into a domain booking.
func (b *CreateBooking) ToBooking() (*model.Booking, error) {
	startDate, err := time.Parse("2006-01-02", b.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := time.Parse("2006-01-02", b.EndDate)
	if err != nil {
		return nil, err
	}
	return &model.Booking{
		CarID:      b.CarID,
		CustomerID: b.CustomerID,
		StartDate:  startDate,
		EndDate:    endDate,
		TotalPrice: b.TotalPrice,
		Deposit:    b.Deposit,
		Currency:   b.Currency,
		MetaData:   b.MetaData,
	}, nil
}

// TransitionRequest asks for a booking status change.
type TransitionRequest struct {
	Target string `json:"target"`
}

// OpenDisputeRequest opens a dispute against a booking.
type OpenDisputeRequest struct {
	Reason string `json:"reason"`
}

// RequeueDeadLetterRequest replays a dead-lettered webhook.
type RequeueDeadLetterRequest struct {
	ActorID string `json:"actor_id"`
}

// MaintenanceRequest blocks or frees a maintenance window on a car.
type MaintenanceRequest struct {
	CarID     string `json:"car_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}
