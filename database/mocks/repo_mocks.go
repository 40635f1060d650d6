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
package mocks

import (
	"context"
	"time"

	"github.com/caravel-rentals/caravel/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Booking methods

func (m *MockDataSource) CreateBooking(ctx context.Context, bkg *model.Booking) (*model.Booking, error) {
	args := m.Called(ctx, bkg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockDataSource) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockDataSource) GetBookingByPaymentOrderRef(ctx context.Context, orderRef string) (*model.Booking, error) {
	args := m.Called(ctx, orderRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockDataSource) GetBookingByContractRef(ctx context.Context, contractRef string) (*model.Booking, error) {
	args := m.Called(ctx, contractRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockDataSource) UpdateBookingStatus(ctx context.Context, id, expectedCurrent, newStatus string) (int64, error) {
	args := m.Called(ctx, id, expectedCurrent, newStatus)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) UpdateBookingPaymentStatus(ctx context.Context, id, paymentStatus string) error {
	args := m.Called(ctx, id, paymentStatus)
	return args.Error(0)
}

func (m *MockDataSource) UpdateBookingContractStatus(ctx context.Context, id, contractStatus string) error {
	args := m.Called(ctx, id, contractStatus)
	return args.Error(0)
}

func (m *MockDataSource) SetBookingPaymentOrderRef(ctx context.Context, id, orderRef string) error {
	args := m.Called(ctx, id, orderRef)
	return args.Error(0)
}

func (m *MockDataSource) SetBookingContractRef(ctx context.Context, id, contractRef string) error {
	args := m.Called(ctx, id, contractRef)
	return args.Error(0)
}

func (m *MockDataSource) ClearSideEffectsPending(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) GetBookingsWithPendingSideEffects(ctx context.Context, limit int) ([]*model.Booking, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Booking), args.Error(1)
}

// Availability methods

func (m *MockDataSource) SeedAvailability(ctx context.Context, carID string, from, to time.Time) error {
	args := m.Called(ctx, carID, from, to)
	return args.Error(0)
}

func (m *MockDataSource) UpdateAvailabilityRange(ctx context.Context, carID string, from, to time.Time, target string, allowedSource []string, bookingID, owner string) (int64, error) {
	args := m.Called(ctx, carID, from, to, target, allowedSource, bookingID, owner)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) InvalidateAvailability(ctx context.Context, carID string) error {
	args := m.Called(ctx, carID)
	return args.Error(0)
}

func (m *MockDataSource) GetAvailability(ctx context.Context, carID string, from, to time.Time) ([]model.AvailabilityDay, error) {
	args := m.Called(ctx, carID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AvailabilityDay), args.Error(1)
}

// Webhook retry methods

func (m *MockDataSource) CreateWebhookRecord(ctx context.Context, record *model.WebhookRetryRecord) (*model.WebhookRetryRecord, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WebhookRetryRecord), args.Error(1)
}

func (m *MockDataSource) GetWebhookRecord(ctx context.Context, id string) (*model.WebhookRetryRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WebhookRetryRecord), args.Error(1)
}

func (m *MockDataSource) GetWebhookRecordByProviderID(ctx context.Context, webhookType, webhookID string) (*model.WebhookRetryRecord, error) {
	args := m.Called(ctx, webhookType, webhookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WebhookRetryRecord), args.Error(1)
}

func (m *MockDataSource) GetDueWebhookRetries(ctx context.Context, limit int) ([]*model.WebhookRetryRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WebhookRetryRecord), args.Error(1)
}

func (m *MockDataSource) MarkWebhookRecordProcessing(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) MarkWebhookRecordSucceeded(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) RescheduleWebhookRecord(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, lastError string) error {
	args := m.Called(ctx, id, attemptCount, nextRetryAt, lastError)
	return args.Error(0)
}

func (m *MockDataSource) MarkWebhookRecordDeadLettered(ctx context.Context, id string, attemptCount int, lastError string) error {
	args := m.Called(ctx, id, attemptCount, lastError)
	return args.Error(0)
}

// Dead letter methods

func (m *MockDataSource) CreateDeadLetterItem(ctx context.Context, item *model.DeadLetterItem) (*model.DeadLetterItem, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeadLetterItem), args.Error(1)
}

func (m *MockDataSource) GetDeadLetterItem(ctx context.Context, id string) (*model.DeadLetterItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeadLetterItem), args.Error(1)
}

func (m *MockDataSource) GetDeadLetterItems(ctx context.Context, limit, offset int) ([]*model.DeadLetterItem, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DeadLetterItem), args.Error(1)
}

func (m *MockDataSource) MarkDeadLetterRequeued(ctx context.Context, id, actorID string) error {
	args := m.Called(ctx, id, actorID)
	return args.Error(0)
}

// Booking event methods

func (m *MockDataSource) RecordBookingEvent(ctx context.Context, event *model.BookingEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDataSource) GetBookingEvents(ctx context.Context, bookingID string, limit, offset int) ([]model.BookingEvent, error) {
	args := m.Called(ctx, bookingID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BookingEvent), args.Error(1)
}

// Dispute methods

func (m *MockDataSource) CreateDisputeIfAbsent(ctx context.Context, d *model.Dispute) (*model.Dispute, bool, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Dispute), args.Bool(1), args.Error(2)
}

func (m *MockDataSource) GetDisputeByBookingID(ctx context.Context, bookingID string) (*model.Dispute, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Dispute), args.Error(1)
}
