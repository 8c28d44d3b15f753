package settlement

import (
	"fmt"
	"time"

	"github.com/tabsera/settlement/internal/currency"
	"github.com/tabsera/settlement/internal/domain"
	"github.com/tabsera/settlement/internal/registry"
	"github.com/tabsera/settlement/internal/repository"
)

// CollectionSnapshot is the live collection picture of a period that
// has not been closed yet.
type CollectionSnapshot struct {
	CenterID          string    `json:"center_id"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	Currency          string    `json:"currency"`
	GrossRevenue      int64     `json:"gross_revenue"`
	CollectedAmount   int64     `json:"collected_amount"`
	PendingAmount     int64     `json:"pending_amount"`
	CollectionRatePct int       `json:"collection_rate_pct"`
	AsOf              time.Time `json:"as_of"`
}

// Tracker exposes the advisory collection projection for open
// periods. It recomputes from the live payment ledger on every call
// and never touches a settlement row.
type Tracker struct {
	registry  *registry.Registry
	payments  *repository.PaymentRepo
	converter *currency.Converter
	now       func() time.Time
}

func NewTracker(
	reg *registry.Registry,
	payments *repository.PaymentRepo,
	converter *currency.Converter,
	now func() time.Time,
) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{registry: reg, payments: payments, converter: converter, now: now}
}

// Snapshot computes the center's current-period collection figures.
// When periodStart/periodEnd are zero the contract's period
// containing now is used.
func (t *Tracker) Snapshot(centerID string, periodStart, periodEnd time.Time) (*CollectionSnapshot, error) {
	asOf := t.now().UTC()

	contract, err := t.registry.ActiveContract(centerID, asOf)
	if err != nil {
		return nil, err
	}
	if periodStart.IsZero() || periodEnd.IsZero() {
		periodStart, periodEnd = PeriodFor(contract.Frequency, asOf)
	}

	payments, err := t.payments.ListForPeriod(centerID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("list payments for center %s: %w", centerID, err)
	}

	var gross, collected int64
	for i := range payments {
		p := &payments[i]
		amount, _, err := t.converter.Convert(p.AmountMinor, p.Currency, contract.SettlementCurrency, periodEnd)
		if err != nil {
			return nil, fmt.Errorf("convert payment %s (center %s, stage collection view): %w",
				p.ID, centerID, err)
		}
		gross += amount
		if p.Status == domain.PaymentCleared {
			collected += amount
		}
	}

	return &CollectionSnapshot{
		CenterID:          centerID,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		Currency:          contract.SettlementCurrency,
		GrossRevenue:      gross,
		CollectedAmount:   collected,
		PendingAmount:     gross - collected,
		CollectionRatePct: collectionRatePct(collected, gross),
		AsOf:              asOf,
	}, nil
}
