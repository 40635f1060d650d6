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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/database/mocks"
	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

func newRetryTestCaravel(t *testing.T, mockDS *mocks.MockDataSource) (*Caravel, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		WebhookRetry: config.WebhookRetryConfig{
			MaxAttempts:        5,
			BaseBackoffSeconds: 30,
			MaxBackoffSeconds:  3600,
		},
	})

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &Caravel{datasource: mockDS, redis: client}, mr
}

func dueRecord(webhookType string, payload string, attemptCount int) *model.WebhookRetryRecord {
	now := time.Now()
	return &model.WebhookRetryRecord{
		RecordID:     "whr_test123",
		WebhookType:  webhookType,
		WebhookID:    "evt_1",
		Payload:      json.RawMessage(payload),
		AttemptCount: attemptCount,
		MaxAttempts:  5,
		Status:       model.RetryStatusPending,
		NextRetryAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestRecordIncomingEventStoresPendingRecord(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	payload := json.RawMessage(`{"event_id":"evt_1","event":"payment.authorized","order_ref":"ord_1"}`)

	mockDS.On("GetWebhookRecordByProviderID", mock.Anything, model.WebhookTypePayment, "evt_1").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Webhook record not found", nil))
	mockDS.On("CreateWebhookRecord", mock.Anything, mock.MatchedBy(func(r *model.WebhookRetryRecord) bool {
		return r.WebhookType == model.WebhookTypePayment && r.AttemptCount == 0 && r.Status == model.RetryStatusPending && r.MaxAttempts == 5
	})).Return(dueRecord(model.WebhookTypePayment, string(payload), 0), nil)
	mockDS.On("RecordBookingEvent", mock.Anything, mock.Anything).Return(nil)

	record, created, err := caravel.RecordIncomingEvent(context.Background(), model.WebhookTypePayment, "evt_1", payload)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RetryStatusPending, record.Status)
	mockDS.AssertExpectations(t)
}

func TestRecordIncomingEventDeduplicatesOnProviderID(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	existing := dueRecord(model.WebhookTypePayment, `{}`, 2)
	mockDS.On("GetWebhookRecordByProviderID", mock.Anything, model.WebhookTypePayment, "evt_1").Return(existing, nil)

	record, created, err := caravel.RecordIncomingEvent(context.Background(), model.WebhookTypePayment, "evt_1", json.RawMessage(`{}`))
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.RecordID, record.RecordID)
	mockDS.AssertNotCalled(t, "CreateWebhookRecord", mock.Anything, mock.Anything)
}

func TestRecordIncomingEventRejectsUnknownType(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	_, _, err := caravel.RecordIncomingEvent(context.Background(), "telemetry", "evt_1", json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrBadRequest))
}

func TestProcessDueRetriesContractSignedAdvancesBooking(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	record := dueRecord(model.WebhookTypeContract, `{"event_id":"evt_1","event":"contract.signed","submission_ref":"sub_1"}`, 0)
	booking := activeBooking(model.StatusContractPendingSignature)
	booking.ContractRef = "sub_1"

	mockDS.On("GetDueWebhookRetries", mock.Anything, 50).Return([]*model.WebhookRetryRecord{record}, nil)
	mockDS.On("MarkWebhookRecordProcessing", mock.Anything, record.RecordID).Return(int64(1), nil)
	mockDS.On("GetBookingByContractRef", mock.Anything, "sub_1").Return(booking, nil)
	mockDS.On("UpdateBookingContractStatus", mock.Anything, booking.BookingID, model.ContractStatusSigned).Return(nil)
	mockDS.On("GetBooking", mock.Anything, booking.BookingID).Return(booking, nil)
	mockDS.On("UpdateBookingStatus", mock.Anything, booking.BookingID, model.StatusContractPendingSignature, model.StatusUpcoming).Return(int64(1), nil)
	// Entering upcoming confirms the calendar hold.
	mockDS.On("UpdateAvailabilityRange", mock.Anything, booking.CarID, mock.Anything, mock.Anything, model.DayBooked, model.ReleaseSourceStatuses, booking.BookingID, booking.BookingID).Return(int64(4), nil)
	mockDS.On("ClearSideEffectsPending", mock.Anything, booking.BookingID).Return(nil)
	mockDS.On("MarkWebhookRecordSucceeded", mock.Anything, record.RecordID).Return(nil)
	mockDS.On("RecordBookingEvent", mock.Anything, mock.Anything).Return(nil)

	result, err := caravel.ProcessDueRetries(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	mockDS.AssertExpectations(t)
}

func TestProcessDueRetriesReschedulesTransientFailure(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	record := dueRecord(model.WebhookTypePayment, `{"event_id":"evt_1","event":"payment.authorized","order_ref":"ord_1"}`, 0)

	mockDS.On("GetDueWebhookRetries", mock.Anything, 50).Return([]*model.WebhookRetryRecord{record}, nil)
	mockDS.On("MarkWebhookRecordProcessing", mock.Anything, record.RecordID).Return(int64(1), nil)
	// The booking store is briefly unreachable; the event must come back later.
	mockDS.On("GetBookingByPaymentOrderRef", mock.Anything, "ord_1").
		Return(nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking", nil))
	mockDS.On("RescheduleWebhookRecord", mock.Anything, record.RecordID, 1, mock.MatchedBy(func(next time.Time) bool {
		delay := time.Until(next)
		return delay > 25*time.Second && delay <= 2*60*time.Second
	}), mock.Anything).Return(nil)
	mockDS.On("RecordBookingEvent", mock.Anything, mock.Anything).Return(nil)

	result, err := caravel.ProcessDueRetries(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Rescheduled)
	assert.Equal(t, 0, result.DeadLettered)
	mockDS.AssertExpectations(t)
}

func TestProcessDueRetriesExhaustsLadderAcrossSweeps(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	// The same event fails every sweep: four reschedules climb the ladder,
	// the fifth attempt dead-letters, and the record never comes back due.
	for attempt := 0; attempt < 5; attempt++ {
		record := dueRecord(model.WebhookTypePayment, `{"event_id":"evt_1","event":"payment.authorized","order_ref":"ord_1"}`, attempt)
		mockDS.On("GetDueWebhookRetries", mock.Anything, 50).Return([]*model.WebhookRetryRecord{record}, nil).Once()
	}
	mockDS.On("MarkWebhookRecordProcessing", mock.Anything, "whr_test123").Return(int64(1), nil)
	mockDS.On("GetBookingByPaymentOrderRef", mock.Anything, "ord_1").
		Return(nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking", nil))
	for attempt := 1; attempt < 5; attempt++ {
		mockDS.On("RescheduleWebhookRecord", mock.Anything, "whr_test123", attempt, mock.Anything, mock.Anything).Return(nil).Once()
	}
	mockDS.On("MarkWebhookRecordDeadLettered", mock.Anything, "whr_test123", 5, mock.Anything).Return(nil).Once()
	mockDS.On("CreateDeadLetterItem", mock.Anything, mock.MatchedBy(func(item *model.DeadLetterItem) bool {
		return item.SourceRecordID == "whr_test123" && item.AttemptCount == 5
	})).Return(&model.DeadLetterItem{DeadLetterID: "dlq_1"}, nil).Once()
	mockDS.On("RecordBookingEvent", mock.Anything, mock.Anything).Return(nil)

	var total RetrySweepResult
	for sweep := 0; sweep < 5; sweep++ {
		result, err := caravel.ProcessDueRetries(context.Background(), 0)
		assert.NoError(t, err)
		total.Rescheduled += result.Rescheduled
		total.DeadLettered += result.DeadLettered
	}

	assert.Equal(t, 4, total.Rescheduled)
	assert.Equal(t, 1, total.DeadLettered)
	mockDS.AssertExpectations(t)
}

func TestProcessDueRetriesDeadLettersAfterMaxAttempts(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	// Fifth attempt of five; another transient failure exhausts the ladder.
	record := dueRecord(model.WebhookTypePayment, `{"event_id":"evt_1","event":"payment.authorized","order_ref":"ord_1"}`, 4)

	mockDS.On("GetDueWebhookRetries", mock.Anything, 50).Return([]*model.WebhookRetryRecord{record}, nil)
	mockDS.On("MarkWebhookRecordProcessing", mock.Anything, record.RecordID).Return(int64(1), nil)
	mockDS.On("GetBookingByPaymentOrderRef", mock.Anything, "ord_1").
		Return(nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking", nil))
	mockDS.On("MarkWebhookRecordDeadLettered", mock.Anything, record.RecordID, 5, mock.Anything).Return(nil)
	mockDS.On("CreateDeadLetterItem", mock.Anything, mock.MatchedBy(func(item *model.DeadLetterItem) bool {
		return item.SourceRecordID == record.RecordID && item.AttemptCount == 5
	})).Return(&model.DeadLetterItem{DeadLetterID: "dlq_1"}, nil)
	mockDS.On("RecordBookingEvent", mock.Anything, mock.Anything).Return(nil)

	result, err := caravel.ProcessDueRetries(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.DeadLettered)
	mockDS.AssertNotCalled(t, "RescheduleWebhookRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestProcessDueRetriesDeadLettersUnknownCorrelationImmediately(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	record := dueRecord(model.WebhookTypePayment, `{"event_id":"evt_1","event":"payment.authorized","order_ref":"ord_gone"}`, 0)

	mockDS.On("GetDueWebhookRetries", mock.Anything, 50).Return([]*model.WebhookRetryRecord{record}, nil)
	mockDS.On("MarkWebhookRecordProcessing", mock.Anything, record.RecordID).Return(int64(1), nil)
	// No booking carries this order reference; retrying cannot fix that.
	mockDS.On("GetBookingByPaymentOrderRef", mock.Anything, "ord_gone").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Booking not found", nil))
	mockDS.On("MarkWebhookRecordDeadLettered", mock.Anything, record.RecordID, 1, mock.Anything).Return(nil)
	mockDS.On("CreateDeadLetterItem", mock.Anything, mock.MatchedBy(func(item *model.DeadLetterItem) bool {
		return item.SourceRecordID == record.RecordID && item.AttemptCount == 1
	})).Return(&model.DeadLetterItem{DeadLetterID: "dlq_1"}, nil)
	mockDS.On("RecordBookingEvent", mock.Anything, mock.Anything).Return(nil)

	result, err := caravel.ProcessDueRetries(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.DeadLettered)
	assert.Equal(t, 0, result.Rescheduled)
	mockDS.AssertNotCalled(t, "RescheduleWebhookRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestProcessDueRetriesDeadLettersMalformedPayloadImmediately(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	record := dueRecord(model.WebhookTypePayment, `{not json`, 0)

	mockDS.On("GetDueWebhookRetries", mock.Anything, 50).Return([]*model.WebhookRetryRecord{record}, nil)
	mockDS.On("MarkWebhookRecordProcessing", mock.Anything, record.RecordID).Return(int64(1), nil)
	mockDS.On("MarkWebhookRecordDeadLettered", mock.Anything, record.RecordID, 1, mock.Anything).Return(nil)
	mockDS.On("CreateDeadLetterItem", mock.Anything, mock.Anything).Return(&model.DeadLetterItem{DeadLetterID: "dlq_1"}, nil)
	mockDS.On("RecordBookingEvent", mock.Anything, mock.Anything).Return(nil)

	result, err := caravel.ProcessDueRetries(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.DeadLettered)
	mockDS.AssertNotCalled(t, "RescheduleWebhookRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDueRetriesSkipsRecordsClaimedElsewhere(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	record := dueRecord(model.WebhookTypePayment, `{}`, 0)

	mockDS.On("GetDueWebhookRetries", mock.Anything, 50).Return([]*model.WebhookRetryRecord{record}, nil)
	mockDS.On("MarkWebhookRecordProcessing", mock.Anything, record.RecordID).Return(int64(0), nil)

	result, err := caravel.ProcessDueRetries(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Processed)
}

func TestProcessDueRetriesYieldsWhenSweepLockHeld(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, mr := newRetryTestCaravel(t, mockDS)

	// Another sweep holds the lock.
	mr.Set(retrySweepLockKey, "someone-else")

	result, err := caravel.ProcessDueRetries(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, RetrySweepResult{}, result)
	mockDS.AssertNotCalled(t, "GetDueWebhookRetries", mock.Anything, mock.Anything)
}

func TestNextBackoffDoublesAndStaysUnderCap(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	caravel, _ := newRetryTestCaravel(t, mockDS)

	base := 30 * time.Second
	max := 3600 * time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		delay := caravel.nextBackoff(attempt)
		assert.GreaterOrEqual(t, delay, base, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, max, "attempt %d", attempt)
	}

	// Later attempts wait at least as long as the un-jittered early ones.
	assert.GreaterOrEqual(t, caravel.nextBackoff(4), 4*base)
}
