/*
Copyright 2024 Caravel Rentals Authors.

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

package database

import (
	"context"
	"time"

	"github.com/caravel-rentals/caravel/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	booking
	availability
	webhookRetry
	deadLetter
	bookingEvent
	dispute
}

// booking defines methods for handling bookings.
type booking interface {
	CreateBooking(ctx context.Context, bkg *model.Booking) (*model.Booking, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	GetBookingByPaymentOrderRef(ctx context.Context, orderRef string) (*model.Booking, error)
	GetBookingByContractRef(ctx context.Context, contractRef string) (*model.Booking, error)
	// UpdateBookingStatus applies a compare-and-swap write: the status column
	// is only updated when it still equals expectedCurrent. Returns the number
	// of rows affected so the caller can distinguish a lost race from success.
	UpdateBookingStatus(ctx context.Context, id, expectedCurrent, newStatus string) (int64, error)
	UpdateBookingPaymentStatus(ctx context.Context, id, paymentStatus string) error
	UpdateBookingContractStatus(ctx context.Context, id, contractStatus string) error
	SetBookingPaymentOrderRef(ctx context.Context, id, orderRef string) error
	SetBookingContractRef(ctx context.Context, id, contractRef string) error
	ClearSideEffectsPending(ctx context.Context, id string) error
	GetBookingsWithPendingSideEffects(ctx context.Context, limit int) ([]*model.Booking, error)
}

// availability defines methods for the per-car, per-day occupancy ledger.
type availability interface {
	SeedAvailability(ctx context.Context, carID string, from, to time.Time) error
	// UpdateAvailabilityRange conditionally moves every day in [from, to] to
	// target, but only rows whose current status is in allowedSource. A
	// non-empty owner further restricts the write to days held for that
	// booking (or ownerless days), so a replayed effect cannot touch days
	// another booking has since claimed. Returns the number of rows changed.
	UpdateAvailabilityRange(ctx context.Context, carID string, from, to time.Time, target string, allowedSource []string, bookingID, owner string) (int64, error)
	GetAvailability(ctx context.Context, carID string, from, to time.Time) ([]model.AvailabilityDay, error)
	// InvalidateAvailability drops the car's read-cache generation so the next
	// calendar read goes back to the table.
	InvalidateAvailability(ctx context.Context, carID string) error
}

// webhookRetry defines methods for the durable retry queue of provider events.
type webhookRetry interface {
	CreateWebhookRecord(ctx context.Context, record *model.WebhookRetryRecord) (*model.WebhookRetryRecord, error)
	GetWebhookRecord(ctx context.Context, id string) (*model.WebhookRetryRecord, error)
	GetWebhookRecordByProviderID(ctx context.Context, webhookType, webhookID string) (*model.WebhookRetryRecord, error)
	GetDueWebhookRetries(ctx context.Context, limit int) ([]*model.WebhookRetryRecord, error)
	// MarkWebhookRecordProcessing only succeeds while the record is pending;
	// returns rows affected so concurrent sweeps cannot double-claim.
	MarkWebhookRecordProcessing(ctx context.Context, id string) (int64, error)
	MarkWebhookRecordSucceeded(ctx context.Context, id string) error
	RescheduleWebhookRecord(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, lastError string) error
	MarkWebhookRecordDeadLettered(ctx context.Context, id string, attemptCount int, lastError string) error
}

// deadLetter defines methods for the append-only dead-letter store.
type deadLetter interface {
	CreateDeadLetterItem(ctx context.Context, item *model.DeadLetterItem) (*model.DeadLetterItem, error)
	GetDeadLetterItem(ctx context.Context, id string) (*model.DeadLetterItem, error)
	GetDeadLetterItems(ctx context.Context, limit, offset int) ([]*model.DeadLetterItem, error)
	MarkDeadLetterRequeued(ctx context.Context, id, actorID string) error
}

// bookingEvent defines methods for the append-only audit log.
type bookingEvent interface {
	RecordBookingEvent(ctx context.Context, event *model.BookingEvent) error
	GetBookingEvents(ctx context.Context, bookingID string, limit, offset int) ([]model.BookingEvent, error)
}

// dispute defines methods for dispute records.
type dispute interface {
	// CreateDisputeIfAbsent inserts unless the booking already has a dispute;
	// the bool reports whether this call created the record.
	CreateDisputeIfAbsent(ctx context.Context, d *model.Dispute) (*model.Dispute, bool, error)
	GetDisputeByBookingID(ctx context.Context, bookingID string) (*model.Dispute, error)
}
