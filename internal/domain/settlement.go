package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementPaid    SettlementStatus = "paid"
	SettlementOverdue SettlementStatus = "overdue"
)

// CanTransition reports whether a settlement may move from s to next.
// paid is terminal; pending may become paid or overdue; overdue may
// only become paid.
func (s SettlementStatus) CanTransition(next SettlementStatus) bool {
	switch s {
	case SettlementPending:
		return next == SettlementPaid || next == SettlementOverdue
	case SettlementOverdue:
		return next == SettlementPaid
	default:
		return false
	}
}

// RateSnapshot records the exchange rates (units per USD) that were
// used to compute a settlement, keyed by currency code. Later rate
// corrections never change a generated settlement.
type RateSnapshot map[string]decimal.Decimal

// Settlement is one center's financial record for one period. All
// amounts are int64 minor units of the contract's settlement
// currency. Unique per (CenterID, PeriodStart, PeriodEnd).
type Settlement struct {
	ID                string           `json:"id"`
	CenterID          string           `json:"center_id"`
	PeriodStart       time.Time        `json:"period_start"`
	PeriodEnd         time.Time        `json:"period_end"`
	Currency          string           `json:"currency"`
	GrossRevenue      int64            `json:"gross_revenue"`
	TabseraAmount     int64            `json:"tabsera_amount"`
	CenterAmount      int64            `json:"center_amount"`
	CollectedAmount   int64            `json:"collected_amount"`
	PendingAmount     int64            `json:"pending_amount"`
	CollectionRatePct int              `json:"collection_rate_pct"`
	Status            SettlementStatus `json:"status"`
	DueDate           time.Time        `json:"due_date"`
	GeneratedAt       time.Time        `json:"generated_at"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	PaymentRef        string           `json:"payment_ref,omitempty"`
	RateSnapshot      RateSnapshot     `json:"exchange_rate_snapshot,omitempty"`
}

// CheckInvariants verifies the arithmetic invariants that must hold
// for every settlement. A violation is a programming error, not a
// recoverable condition.
func (s *Settlement) CheckInvariants() error {
	if s.TabseraAmount+s.CenterAmount != s.GrossRevenue {
		return fmt.Errorf("settlement %s: split %d+%d != gross %d",
			s.ID, s.TabseraAmount, s.CenterAmount, s.GrossRevenue)
	}
	if s.CollectedAmount+s.PendingAmount != s.GrossRevenue {
		return fmt.Errorf("settlement %s: collected %d + pending %d != gross %d",
			s.ID, s.CollectedAmount, s.PendingAmount, s.GrossRevenue)
	}
	if s.CollectionRatePct < 0 || s.CollectionRatePct > 100 {
		return fmt.Errorf("settlement %s: collection rate %d%% out of range",
			s.ID, s.CollectionRatePct)
	}
	return nil
}

type AuditAction string

const (
	AuditGenerated   AuditAction = "generated"
	AuditRegenerated AuditAction = "regenerated"
	AuditPaid        AuditAction = "paid"
	AuditOverdue     AuditAction = "overdue"
)

// AuditEntry is one line of a settlement's append-only audit trail,
// keyed by (SettlementID, Seq).
type AuditEntry struct {
	SettlementID string      `json:"settlement_id"`
	Seq          int         `json:"seq"`
	Action       AuditAction `json:"action"`
	Actor        string      `json:"actor"`
	Note         string      `json:"note,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
