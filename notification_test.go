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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jarcoal/httpmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/database/mocks"
	"github.com/caravel-rentals/caravel/model"
)

type stubMailer struct {
	err  error
	sent []EmailPayload
}

func (m *stubMailer) Send(_ context.Context, payload EmailPayload) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, payload)
	return nil
}

func TestEmailMailerEnforcesHourlyCap(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	defer mr.Close()

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", "http://localhost:5005/email",
		httpmock.NewStringResponder(200, `{"status":"sent"}`))

	config.MockConfig(&config.Configuration{})
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mailer := NewEmailMailer(config.EmailConfig{
		Url:                    "http://localhost:5005/email",
		MaxPerRecipientPerHour: 2,
	}, client)

	payload := EmailPayload{
		NotificationID: "bkg_1:confirmed",
		BookingID:      "bkg_1",
		Recipient:      "customer@example.com",
		Subject:        "Your Caravel booking is confirmed",
		Body:           "See you soon.",
	}

	assert.NoError(t, mailer.Send(context.Background(), payload))
	assert.NoError(t, mailer.Send(context.Background(), payload))
	assert.ErrorIs(t, mailer.Send(context.Background(), payload), ErrEmailRateLimited)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestEmailMailerCapIsPerRecipient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	defer mr.Close()

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", "http://localhost:5005/email",
		httpmock.NewStringResponder(200, `{"status":"sent"}`))

	config.MockConfig(&config.Configuration{})
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mailer := NewEmailMailer(config.EmailConfig{
		Url:                    "http://localhost:5005/email",
		MaxPerRecipientPerHour: 1,
	}, client)

	first := EmailPayload{NotificationID: "bkg_1:confirmed", Recipient: "a@example.com"}
	second := EmailPayload{NotificationID: "bkg_2:confirmed", Recipient: "b@example.com"}

	assert.NoError(t, mailer.Send(context.Background(), first))
	assert.NoError(t, mailer.Send(context.Background(), second))
	assert.ErrorIs(t, mailer.Send(context.Background(), first), ErrEmailRateLimited)
}

func TestSendQueuedEmailRecordsOutcome(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	mockDS := new(mocks.MockDataSource)
	mailer := &stubMailer{}
	caravel := &Caravel{datasource: mockDS, mailer: mailer}

	mockDS.On("RecordBookingEvent", mock.Anything, mock.MatchedBy(func(e *model.BookingEvent) bool {
		return e.EventType == model.EventEmailSent
	})).Return(nil)

	payload := EmailPayload{NotificationID: "bkg_1:confirmed", BookingID: "bkg_1", Recipient: "customer@example.com"}
	assert.NoError(t, caravel.SendQueuedEmail(context.Background(), payload))
	assert.Len(t, mailer.sent, 1)
	mockDS.AssertExpectations(t)
}

func TestSendQueuedEmailDropsRateLimitedSends(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	mockDS := new(mocks.MockDataSource)
	caravel := &Caravel{datasource: mockDS, mailer: &stubMailer{err: ErrEmailRateLimited}}

	mockDS.On("RecordBookingEvent", mock.Anything, mock.MatchedBy(func(e *model.BookingEvent) bool {
		return e.EventType == model.EventEmailSendFailed
	})).Return(nil)

	payload := EmailPayload{NotificationID: "bkg_1:confirmed", BookingID: "bkg_1", Recipient: "customer@example.com"}
	// A dropped email is terminal: the queue must not retry it.
	assert.NoError(t, caravel.SendQueuedEmail(context.Background(), payload))
	mockDS.AssertExpectations(t)
}

func TestQueueBookingEmailSkipsBookingsWithoutRecipient(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	caravel := &Caravel{}

	booking := activeBooking(model.StatusUpcoming)
	err := caravel.queueBookingEmail(context.Background(), booking, "confirmed", "body")
	assert.NoError(t, err)
}
