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

	"github.com/caravel-rentals/caravel/model"
)

// recordEvent appends to the booking event log. The log is best effort
// relative to the state change it describes: a failed append is logged and
// swallowed rather than failing the operation it documents.
func (c *Caravel) recordEvent(ctx context.Context, bookingID, eventType, actor, actorID string, details map[string]interface{}) {
	event := &model.BookingEvent{
		EventID:   model.GenerateUUIDWithPrefix("evt"),
		BookingID: bookingID,
		EventType: eventType,
		Actor:     actor,
		ActorID:   actorID,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if err := c.datasource.RecordBookingEvent(ctx, event); err != nil {
		logrus.Errorf("failed to record %s event for booking %s: %v", eventType, bookingID, err)
	}
}

// GetBookingEvents returns the audit log for a booking, newest first.
func (c *Caravel) GetBookingEvents(ctx context.Context, bookingID string, limit, offset int) ([]model.BookingEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	if _, err := c.datasource.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return c.datasource.GetBookingEvents(ctx, bookingID, limit, offset)
}
