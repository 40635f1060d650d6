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
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/internal/notification"
	"github.com/caravel-rentals/caravel/model"
)

// sideEffect is one unit of work that must run after a booking enters a
// status. Effects are idempotent so a reconciliation sweep can replay them.
type sideEffect struct {
	Name string
	Run  func(c *Caravel, ctx context.Context, booking *model.Booking) error
}

// sideEffectTable maps each status to the effects that run on entry.
// Verification, notifications and provider calls all hang off this table;
// adding behavior to a transition means adding a row here, not editing the
// transition logic.
var sideEffectTable = map[string][]sideEffect{
	model.StatusPendingPayment: {
		{Name: "create_payment_order", Run: (*Caravel).effectCreatePaymentOrder},
	},
	model.StatusPendingContract: {
		{Name: "send_contract", Run: (*Caravel).effectSendContract},
	},
	model.StatusUpcoming: {
		{Name: "confirm_dates", Run: (*Caravel).confirmDates},
		{Name: "email_booking_confirmed", Run: (*Caravel).effectEmailBookingConfirmed},
	},
	// Re-asserting the calendar is harmless when the upcoming effect already
	// ran, and repairs it when that effect was lost.
	model.StatusActive: {
		{Name: "confirm_dates", Run: (*Caravel).confirmDates},
	},
	model.StatusCompleted: {
		{Name: "release_future_dates", Run: (*Caravel).releaseFutureDates},
	},
	model.StatusCancelled: {
		{Name: "void_contract", Run: (*Caravel).effectVoidContract},
		{Name: "refund_payment", Run: (*Caravel).effectRefundPayment},
		{Name: "release_dates", Run: (*Caravel).releaseDates},
		{Name: "invalidate_availability", Run: (*Caravel).effectInvalidateAvailability},
		{Name: "email_booking_cancelled", Run: (*Caravel).effectEmailBookingCancelled},
	},
	model.StatusFailed: {
		{Name: "release_dates", Run: (*Caravel).releaseDates},
		{Name: "invalidate_availability", Run: (*Caravel).effectInvalidateAvailability},
	},
	model.StatusDisputed: {
		{Name: "notify_dispute", Run: (*Caravel).effectNotifyDispute},
	},
}

func (c *Caravel) sideEffectsFor(status string) []sideEffect {
	return sideEffectTable[status]
}

// CreateBooking validates the request, seeds and holds the availability
// calendar, and records the booking in pending_customer_action.
func (c *Caravel) CreateBooking(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	ctx, span := otel.Tracer("caravel.booking").Start(ctx, "Creating booking")
	defer span.End()

	if booking.CarID == "" || booking.CustomerID == "" {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Car and customer are required", nil)
	}
	if booking.EndDate.Before(booking.StartDate) {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "End date cannot be before start date", nil)
	}
	if booking.StartDate.Before(time.Now().Truncate(24 * time.Hour)) {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Start date cannot be in the past", nil)
	}

	booking.BookingID = model.GenerateUUIDWithPrefix("bkg")
	booking.Status = model.StatusPendingCustomerAction
	booking.PaymentStatus = model.PaymentStatusPending
	booking.ContractStatus = model.ContractStatusNone
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	if err := c.datasource.SeedAvailability(ctx, booking.CarID, booking.StartDate, booking.EndDate); err != nil {
		return nil, err
	}
	if err := c.holdDates(ctx, booking); err != nil {
		return nil, err
	}

	created, err := c.datasource.CreateBooking(ctx, booking)
	if err != nil {
		if rbErr := c.releaseDates(ctx, booking); rbErr != nil {
			logrus.Errorf("failed to release hold after booking create failure %s: %v", booking.BookingID, rbErr)
		}
		return nil, err
	}

	c.recordEvent(ctx, created.BookingID, model.EventBookingCreated, model.ActorSystem, "", map[string]interface{}{
		"car_id":     created.CarID,
		"start_date": created.StartDate.Format("2006-01-02"),
		"end_date":   created.EndDate.Format("2006-01-02"),
	})
	return created, nil
}

// GetBooking returns a single booking by id.
func (c *Caravel) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return c.datasource.GetBooking(ctx, id)
}

// RequestTransition moves a booking to the target status. The write is
// guarded on the status the caller observed, so of two concurrent requests
// exactly one lands; the loser gets a conflict and must re-read. Side
// effects run after the write; a failed effect leaves the booking flagged
// for the reconciliation sweep rather than rolling the transition back.
func (c *Caravel) RequestTransition(ctx context.Context, bookingID, target, actor, actorID string) (*model.Booking, error) {
	ctx, span := otel.Tracer("caravel.booking").Start(ctx, "Requesting booking transition")
	defer span.End()

	booking, err := c.datasource.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	// Replayed provider events often re-request the state the booking is
	// already in. Treat that as a no-op rather than a rejection.
	if booking.Status == target {
		return booking, nil
	}

	if !model.CanTransition(booking.Status, target) {
		c.recordEvent(ctx, bookingID, model.EventTransitionRejected, actor, actorID, map[string]interface{}{
			"from": booking.Status,
			"to":   target,
		})
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Cannot move booking from '%s' to '%s'", booking.Status, target), map[string]interface{}{
			"allowed_transitions": model.AllowedTransitions[booking.Status],
		})
	}

	rowsAffected, err := c.datasource.UpdateBookingStatus(ctx, bookingID, booking.Status, target)
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		// Zero rows means either the booking vanished or another writer
		// changed the status first. Re-read to tell them apart.
		if _, getErr := c.datasource.GetBooking(ctx, bookingID); getErr != nil {
			return nil, getErr
		}
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Booking '%s' was modified concurrently, retry with fresh state", bookingID), nil)
	}

	c.recordEvent(ctx, bookingID, model.EventStatusChanged, actor, actorID, map[string]interface{}{
		"from": booking.Status,
		"to":   target,
	})

	booking.Status = target
	booking.SideEffectsPending = true
	c.runSideEffects(ctx, booking)
	return booking, nil
}

// runSideEffects executes the dispatch table entries for the booking's
// current status. The first failure stops the run and leaves
// side_effects_pending raised; effects are idempotent, so the sweep re-runs
// the whole list.
func (c *Caravel) runSideEffects(ctx context.Context, booking *model.Booking) {
	for _, effect := range c.sideEffectsFor(booking.Status) {
		if err := effect.Run(c, ctx, booking); err != nil {
			logrus.Errorf("side effect %s failed for booking %s: %v", effect.Name, booking.BookingID, err)
			c.recordEvent(ctx, booking.BookingID, model.EventSideEffectFailed, model.ActorSystem, "", map[string]interface{}{
				"effect": effect.Name,
				"status": booking.Status,
				"error":  err.Error(),
			})
			notification.NotifyError(fmt.Errorf("side effect %s failed for booking %s: %w", effect.Name, booking.BookingID, err))
			return
		}
	}
	if err := c.datasource.ClearSideEffectsPending(ctx, booking.BookingID); err != nil {
		logrus.Errorf("failed to clear side effect flag for booking %s: %v", booking.BookingID, err)
		return
	}
	booking.SideEffectsPending = false
}

// ReconcileSideEffects sweeps bookings whose side effects did not complete
// and replays them from the dispatch table. Returns the number of bookings
// fully repaired.
func (c *Caravel) ReconcileSideEffects(ctx context.Context, limit int) (int, error) {
	ctx, span := otel.Tracer("caravel.booking").Start(ctx, "Reconciling pending side effects")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	pending, err := c.datasource.GetBookingsWithPendingSideEffects(ctx, limit)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, booking := range pending {
		c.runSideEffects(ctx, booking)
		if !booking.SideEffectsPending {
			repaired++
			c.recordEvent(ctx, booking.BookingID, model.EventSideEffectReplayed, model.ActorSystem, "", map[string]interface{}{
				"status": booking.Status,
			})
		}
	}
	return repaired, nil
}

// OpenDispute records a dispute against the booking and moves it to
// disputed. Opening twice is safe: the second call finds the existing
// dispute and the transition no-ops.
func (c *Caravel) OpenDispute(ctx context.Context, bookingID, reason, actorID string) (*model.Dispute, error) {
	if reason == "" {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Dispute reason is required", nil)
	}

	booking, err := c.datasource.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(booking.Status, model.StatusDisputed) && booking.Status != model.StatusDisputed {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Cannot dispute a booking in status '%s'", booking.Status), map[string]interface{}{
			"allowed_transitions": model.AllowedTransitions[booking.Status],
		})
	}

	dispute, created, err := c.datasource.CreateDisputeIfAbsent(ctx, &model.Dispute{
		DisputeID: model.GenerateUUIDWithPrefix("dsp"),
		BookingID: bookingID,
		Reason:    reason,
		OpenedBy:  actorID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if created {
		c.recordEvent(ctx, bookingID, model.EventDisputeOpened, model.ActorAdmin, actorID, map[string]interface{}{
			"reason": reason,
		})
	}

	if _, err := c.RequestTransition(ctx, bookingID, model.StatusDisputed, model.ActorAdmin, actorID); err != nil {
		return nil, err
	}
	return dispute, nil
}

func (c *Caravel) effectCreatePaymentOrder(ctx context.Context, booking *model.Booking) error {
	if booking.PaymentOrderRef != "" {
		return nil
	}
	orderRef, err := c.payment.CreateOrder(ctx, booking)
	if err != nil {
		return err
	}
	if err := c.datasource.SetBookingPaymentOrderRef(ctx, booking.BookingID, orderRef); err != nil {
		return err
	}
	booking.PaymentOrderRef = orderRef
	return nil
}

// effectSendContract sends the rental agreement and immediately walks the
// booking on to contract_pending_signature; pending_contract only exists
// until the provider acknowledges the submission.
func (c *Caravel) effectSendContract(ctx context.Context, booking *model.Booking) error {
	if booking.ContractRef == "" {
		contractRef, err := c.contract.SendContract(ctx, booking)
		if err != nil {
			return err
		}
		if err := c.datasource.SetBookingContractRef(ctx, booking.BookingID, contractRef); err != nil {
			return err
		}
		if err := c.datasource.UpdateBookingContractStatus(ctx, booking.BookingID, model.ContractStatusSent); err != nil {
			return err
		}
		booking.ContractRef = contractRef
		booking.ContractStatus = model.ContractStatusSent
	}

	rowsAffected, err := c.datasource.UpdateBookingStatus(ctx, booking.BookingID, model.StatusPendingContract, model.StatusContractPendingSignature)
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		c.recordEvent(ctx, booking.BookingID, model.EventStatusChanged, model.ActorSystem, "", map[string]interface{}{
			"from": model.StatusPendingContract,
			"to":   model.StatusContractPendingSignature,
		})
		booking.Status = model.StatusContractPendingSignature
	}
	return nil
}

func (c *Caravel) effectVoidContract(ctx context.Context, booking *model.Booking) error {
	if booking.ContractRef == "" || booking.ContractStatus != model.ContractStatusSent {
		return nil
	}
	return c.contract.VoidContract(ctx, booking.ContractRef)
}

func (c *Caravel) effectRefundPayment(ctx context.Context, booking *model.Booking) error {
	if booking.PaymentOrderRef == "" {
		return nil
	}
	if booking.PaymentStatus != model.PaymentStatusAuthorized && booking.PaymentStatus != model.PaymentStatusCaptured {
		return nil
	}
	if err := c.payment.RefundOrder(ctx, booking.PaymentOrderRef); err != nil {
		return err
	}
	if err := c.datasource.UpdateBookingPaymentStatus(ctx, booking.BookingID, model.PaymentStatusRefunded); err != nil {
		return err
	}
	booking.PaymentStatus = model.PaymentStatusRefunded
	return nil
}

func (c *Caravel) effectEmailBookingConfirmed(ctx context.Context, booking *model.Booking) error {
	return c.queueBookingEmail(ctx, booking, "confirmed",
		fmt.Sprintf("Your booking %s is confirmed for %s to %s.", booking.BookingID, booking.StartDate.Format("2006-01-02"), booking.EndDate.Format("2006-01-02")))
}

func (c *Caravel) effectEmailBookingCancelled(ctx context.Context, booking *model.Booking) error {
	return c.queueBookingEmail(ctx, booking, "cancelled",
		fmt.Sprintf("Your booking %s has been cancelled.", booking.BookingID))
}

func (c *Caravel) effectNotifyDispute(ctx context.Context, booking *model.Booking) error {
	notification.NotifyError(fmt.Errorf("booking %s entered dispute", booking.BookingID))
	return nil
}

// effectInvalidateAvailability drops the car's calendar read cache after its
// days were handed back, so callers do not see the freed range as taken.
func (c *Caravel) effectInvalidateAvailability(ctx context.Context, booking *model.Booking) error {
	return c.datasource.InvalidateAvailability(ctx, booking.CarID)
}
