package model

import "time"

// Actors recorded against booking events.
const (
	ActorSystem   = "system"
	ActorAdmin    = "admin"
	ActorProvider = "provider"
)

// Booking event types. Every state transition and every webhook processing
// outcome appends exactly one event; this log is the audit trail used for
// reconciliation.
const (
	EventBookingCreated        = "booking_created"
	EventStatusChanged         = "status_changed"
	EventTransitionRejected    = "transition_rejected"
	EventSideEffectFailed      = "side_effect_failed"
	EventSideEffectReplayed    = "side_effect_replayed"
	EventWebhookReceived       = "webhook_received"
	EventWebhookProcessed      = "webhook_processed"
	EventWebhookRetryScheduled = "webhook_retry_scheduled"
	EventWebhookDeadLettered   = "webhook_dead_lettered"
	EventDeadLetterRequeued    = "dead_letter_requeued"
	EventEmailSent             = "email_sent"
	EventEmailSendFailed       = "email_send_failed"
	EventDisputeOpened         = "dispute_opened"
)

// BookingEvent is an append-only audit record.
type BookingEvent struct {
	ID        int64                  `json:"-"`
	EventID   string                 `json:"id"`
	BookingID string                 `json:"booking_id"`
	EventType string                 `json:"event_type"`
	Actor     string                 `json:"actor"`
	ActorID   string                 `json:"actor_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
