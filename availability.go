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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

// holdDates places a tentative hold on every rental day of the booking. The
// write only touches days that are currently free (or already held), so a
// fully successful hold changes exactly one row per rental day. Anything
// less means some day is booked or under maintenance: the partial hold is
// rolled back and a conflict is returned.
func (c *Caravel) holdDates(ctx context.Context, booking *model.Booking) error {
	wanted := int64(len(booking.RentalDates()))

	changed, err := c.datasource.UpdateAvailabilityRange(ctx, booking.CarID, booking.StartDate, booking.EndDate, model.DayPendingConfirmation, model.HoldSourceStatuses, booking.BookingID, booking.BookingID)
	if err != nil {
		return err
	}
	if changed < wanted {
		if _, rbErr := c.datasource.UpdateAvailabilityRange(ctx, booking.CarID, booking.StartDate, booking.EndDate, model.DayAvailable, []string{model.DayPendingConfirmation}, "", booking.BookingID); rbErr != nil {
			logrus.Errorf("failed to roll back partial hold for booking %s: %v", booking.BookingID, rbErr)
		}
		return apierror.NewAPIError(apierror.ErrConflict, "Requested dates are not available", nil)
	}
	return nil
}

// confirmDates promotes the booking's hold to booked. Idempotent: days
// already booked for this booking are in the allowed source set.
func (c *Caravel) confirmDates(ctx context.Context, booking *model.Booking) error {
	_, err := c.datasource.UpdateAvailabilityRange(ctx, booking.CarID, booking.StartDate, booking.EndDate, model.DayBooked, model.ReleaseSourceStatuses, booking.BookingID, booking.BookingID)
	return err
}

// releaseDates frees the booking's days again. Maintenance blocks are not in
// the allowed source set and survive untouched; the owner guard keeps a
// replayed release off days another booking has since taken.
func (c *Caravel) releaseDates(ctx context.Context, booking *model.Booking) error {
	_, err := c.datasource.UpdateAvailabilityRange(ctx, booking.CarID, booking.StartDate, booking.EndDate, model.DayAvailable, model.ReleaseSourceStatuses, "", booking.BookingID)
	return err
}

// releaseFutureDates frees only the days from tomorrow onward, used when a
// rental completes: past days stay booked in the historical calendar.
func (c *Caravel) releaseFutureDates(ctx context.Context, booking *model.Booking) error {
	from := time.Now().AddDate(0, 0, 1).Truncate(24 * time.Hour)
	if from.After(booking.EndDate) {
		return nil
	}
	if from.Before(booking.StartDate) {
		from = booking.StartDate
	}
	_, err := c.datasource.UpdateAvailabilityRange(ctx, booking.CarID, from, booking.EndDate, model.DayAvailable, model.ReleaseSourceStatuses, "", booking.BookingID)
	return err
}

// GetCarAvailability returns the calendar for a car over [from, to].
func (c *Caravel) GetCarAvailability(ctx context.Context, carID string, from, to time.Time) ([]model.AvailabilityDay, error) {
	if to.Before(from) {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "End date cannot be before start date", nil)
	}
	return c.datasource.GetAvailability(ctx, carID, from, to)
}

// SetMaintenance blocks a range of days for servicing. Only free days can be
// taken; days held or booked for a customer have to be resolved first.
func (c *Caravel) SetMaintenance(ctx context.Context, carID string, from, to time.Time) (int64, error) {
	if err := c.datasource.SeedAvailability(ctx, carID, from, to); err != nil {
		return 0, err
	}
	return c.datasource.UpdateAvailabilityRange(ctx, carID, from, to, model.DayMaintenance, []string{model.DayAvailable}, "", "")
}

// ClearMaintenance lifts maintenance blocks in the range.
func (c *Caravel) ClearMaintenance(ctx context.Context, carID string, from, to time.Time) (int64, error) {
	return c.datasource.UpdateAvailabilityRange(ctx, carID, from, to, model.DayAvailable, []string{model.DayMaintenance}, "", "")
}
