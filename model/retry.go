package model

import (
	"encoding/json"
	"time"
)

// Webhook retry record statuses. A record moves
// pending -> processing -> {succeeded | pending (retry) | dead_letter};
// once dead_letter it is immutable except through an explicit requeue, which
// creates a fresh pending record rather than mutating the snapshot.
const (
	RetryStatusPending    = "pending"
	RetryStatusProcessing = "processing"
	RetryStatusSucceeded  = "succeeded"
	RetryStatusFailed     = "failed"
	RetryStatusDeadLetter = "dead_letter"
)

// Webhook types accepted from providers.
const (
	WebhookTypePayment  = "payment"
	WebhookTypeContract = "contract"
)

// WebhookRetryRecord is a provider event pending (re)processing. Records are
// de-duplicated on (WebhookType, WebhookID), the provider's own event id.
type WebhookRetryRecord struct {
	ID           int64           `json:"-"`
	RecordID     string          `json:"id"`
	WebhookType  string          `json:"webhook_type"`
	WebhookID    string          `json:"webhook_id"`
	Payload      json.RawMessage `json:"payload"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
	Status       string          `json:"status"`
	LastError    string          `json:"last_error,omitempty"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DeadLetterItem is an immutable snapshot of a retry record that exhausted
// its attempts or failed permanently. Kept for audit; requeueing creates a
// new retry record and only stamps RequeuedAt here.
type DeadLetterItem struct {
	ID                 int64           `json:"-"`
	DeadLetterID       string          `json:"id"`
	SourceRecordID     string          `json:"source_record_id"`
	WebhookType        string          `json:"webhook_type"`
	WebhookID          string          `json:"webhook_id"`
	Payload            json.RawMessage `json:"payload"`
	BookingID          string          `json:"booking_id,omitempty"`
	FinalError         string          `json:"final_error"`
	AttemptCount       int             `json:"attempt_count"`
	FailedPermanentlyAt time.Time      `json:"failed_permanently_at"`
	RequeuedAt         *time.Time      `json:"requeued_at,omitempty"`
	RequeuedBy         string          `json:"requeued_by,omitempty"`
}
