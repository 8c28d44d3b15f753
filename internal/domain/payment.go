package domain

import "time"

type PaymentStatus string

const (
	// PaymentCleared means the funds were confirmed by the payment
	// provider and count toward the collected amount.
	PaymentCleared PaymentStatus = "cleared"
	// PaymentPending means the payment is recorded but not yet
	// confirmed (e.g. awaiting mobile-money confirmation).
	PaymentPending PaymentStatus = "pending"
)

// Payment is a recorded student payment. Payments are immutable once
// recorded; the engine only ever reads them.
type Payment struct {
	ID          string        `json:"id"`
	StudentID   string        `json:"student_id"`
	CenterID    string        `json:"center_id"`
	TrackID     string        `json:"track_id"`
	AmountMinor int64         `json:"amount_minor"`
	Currency    string        `json:"currency"`
	PaidAt      time.Time     `json:"paid_at"`
	Method      string        `json:"method"`
	Status      PaymentStatus `json:"status"`
}
