package database

import (
	"context"
	"encoding/json"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

// RecordBookingEvent appends one row to the audit log. Events are never
// updated or deleted.
func (d Datasource) RecordBookingEvent(ctx context.Context, event *model.BookingEvent) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal event details", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO caravel.booking_events(event_id,booking_id,event_type,actor,actor_id,details,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, event.EventID, event.BookingID, event.EventType, event.Actor, event.ActorID, detailsJSON, event.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record booking event", err)
	}
	return nil
}

func (d Datasource) GetBookingEvents(ctx context.Context, bookingID string, limit, offset int) ([]model.BookingEvent, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT event_id, booking_id, event_type, actor, COALESCE(actor_id, ''), details, created_at
		FROM caravel.booking_events
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, bookingID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking events", err)
	}
	defer rows.Close()

	var events []model.BookingEvent
	for rows.Next() {
		var event model.BookingEvent
		var detailsJSON []byte
		if err := rows.Scan(&event.EventID, &event.BookingID, &event.EventType, &event.Actor, &event.ActorID, &detailsJSON, &event.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan booking event", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal event details", err)
			}
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over booking events", err)
	}
	return events, nil
}
