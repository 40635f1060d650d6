package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Overall booking statuses. The transition table below is the single source
// of truth for which moves between them are legal.
const (
	StatusPendingCustomerAction    = "pending_customer_action"
	StatusPendingPayment           = "pending_payment"
	StatusPendingContract          = "pending_contract"
	StatusContractPendingSignature = "contract_pending_signature"
	StatusUpcoming                 = "upcoming"
	StatusActive                   = "active"
	StatusPostRental               = "post_rental"
	StatusCompleted                = "completed"
	StatusCancelled                = "cancelled"
	StatusFailed                   = "failed"
	StatusDisputed                 = "disputed"
)

// Payment statuses, advanced only by payment provider events.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusDenied     = "denied"
	PaymentStatusRefunded   = "refunded"
)

// Contract statuses, advanced only by contract provider events.
const (
	ContractStatusNone    = "none"
	ContractStatusSent    = "sent"
	ContractStatusSigned  = "signed"
	ContractStatusExpired = "expired"
)

// AllowedTransitions maps each overall status to the set of statuses a
// booking may move to next. Terminal statuses map to an empty slice.
var AllowedTransitions = map[string][]string{
	StatusPendingCustomerAction:    {StatusPendingPayment, StatusCancelled},
	StatusPendingPayment:           {StatusPendingContract, StatusCancelled, StatusFailed},
	StatusPendingContract:          {StatusContractPendingSignature, StatusCancelled},
	StatusContractPendingSignature: {StatusUpcoming, StatusPendingContract, StatusCancelled},
	StatusUpcoming:                 {StatusActive, StatusCancelled},
	StatusActive:                   {StatusPostRental, StatusDisputed},
	StatusPostRental:               {StatusCompleted, StatusDisputed},
	StatusCompleted:                {StatusDisputed},
	StatusCancelled:                {},
	StatusFailed:                   {},
	StatusDisputed:                 {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether moving from current to target is legal.
func CanTransition(current, target string) bool {
	for _, allowed := range AllowedTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a booking in the given status accepts no
// further transitions.
func IsTerminalStatus(status string) bool {
	return len(AllowedTransitions[status]) == 0
}

type Booking struct {
	ID                 int64                  `json:"-"`
	BookingID          string                 `json:"id"`
	CarID              string                 `json:"car_id"`
	CustomerID         string                 `json:"customer_id"`
	StartDate          time.Time              `json:"start_date"`
	EndDate            time.Time              `json:"end_date"`
	Status             string                 `json:"status"`
	PaymentStatus      string                 `json:"payment_status"`
	ContractStatus     string                 `json:"contract_status"`
	TotalPrice         decimal.Decimal        `json:"total_price"`
	Deposit            decimal.Decimal        `json:"deposit"`
	Currency           string                 `json:"currency"`
	PaymentOrderRef    string                 `json:"payment_order_ref,omitempty"`
	ContractRef        string                 `json:"contract_ref,omitempty"`
	SideEffectsPending bool                   `json:"-"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
	MetaData           map[string]interface{} `json:"meta_data,omitempty"`
}

// RentalDates returns every calendar day in [StartDate, EndDate], inclusive.
func (b *Booking) RentalDates() []time.Time {
	var dates []time.Time
	start := b.StartDate.Truncate(24 * time.Hour)
	end := b.EndDate.Truncate(24 * time.Hour)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// Dispute is the record behind the disputed status. At most one exists per
// booking.
type Dispute struct {
	ID        int64     `json:"-"`
	DisputeID string    `json:"id"`
	BookingID string    `json:"booking_id"`
	Reason    string    `json:"reason"`
	OpenedBy  string    `json:"opened_by"`
	CreatedAt time.Time `json:"created_at"`
}
