package domain

import "time"

type ContractStatus string

const (
	ContractPending   ContractStatus = "pending"
	ContractActive    ContractStatus = "active"
	ContractSuspended ContractStatus = "suspended"
	ContractExpired   ContractStatus = "expired"
)

type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// Contract holds the negotiated revenue-share terms for one center.
// The write path validates that the two share percentages sum to
// exactly 100 and that active date ranges never overlap per center.
// Date ranges are half-open: a contract is in force on [StartDate,
// EndDate), the same convention settlement periods use.
type Contract struct {
	ID                  string         `json:"id"`
	CenterID            string         `json:"center_id" validate:"required"`
	TabseraSharePct     int            `json:"tabsera_share_pct" validate:"min=0,max=100"`
	CenterSharePct      int            `json:"center_share_pct" validate:"min=0,max=100"`
	Frequency           Frequency      `json:"settlement_frequency" validate:"oneof=monthly quarterly"`
	DueDay              int            `json:"due_day" validate:"min=1,max=31"`
	SettlementCurrency  string         `json:"settlement_currency" validate:"required,len=3"`
	StartDate           time.Time      `json:"start_date" validate:"required"`
	EndDate             time.Time      `json:"end_date" validate:"required"`
	AutoRenew           bool           `json:"auto_renew"`
	SuspendAfterOverdue int            `json:"suspend_after_overdue" validate:"min=1"`
	Status              ContractStatus `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
}

// Covers reports whether the contract's date range spans the whole
// period [start, end).
func (c *Contract) Covers(start, end time.Time) bool {
	return !c.StartDate.After(start) && !c.EndDate.Before(end)
}

// InForce reports whether the contract's date range contains t.
func (c *Contract) InForce(t time.Time) bool {
	return !c.StartDate.After(t) && c.EndDate.After(t)
}
