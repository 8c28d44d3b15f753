package domain

import "time"

type ReviewReason string

const (
	ReviewNoActiveContract ReviewReason = "NO_ACTIVE_CONTRACT"
	ReviewRateUnavailable  ReviewReason = "RATE_UNAVAILABLE"
)

// ReviewItem is a failed settlement generation parked for an operator
// to look at. The next batch run retries the same (center, period)
// automatically; resolved items are kept for the record.
type ReviewItem struct {
	ID          string       `json:"id"`
	CenterID    string       `json:"center_id"`
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	Reason      ReviewReason `json:"reason"`
	Detail      string       `json:"detail"`
	CreatedAt   time.Time    `json:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
}
