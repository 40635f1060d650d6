package model

import "time"

// Availability day statuses.
const (
	DayAvailable           = "available"
	DayPendingConfirmation = "pending_confirmation"
	DayBooked              = "booked"
	DayMaintenance         = "maintenance"
)

// AvailabilityDay is one (car, date) cell of the occupancy calendar.
// A date can be booked for at most one active booking at a time; writes are
// conditioned on the prior status so a stale side effect never overwrites an
// operator-set maintenance block.
type AvailabilityDay struct {
	ID        int64     `json:"-"`
	CarID     string    `json:"car_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	BookingID string    `json:"booking_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HoldSourceStatuses is the set of statuses a hold may overwrite.
var HoldSourceStatuses = []string{DayAvailable, DayPendingConfirmation}

// ReleaseSourceStatuses is the set of statuses a release may overwrite.
// Maintenance is deliberately excluded from both sets.
var ReleaseSourceStatuses = []string{DayBooked, DayPendingConfirmation}
