package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one point-in-time entry of the admin-maintained
// rate table. Rates are expressed as local currency units per 1 USD,
// keyed by (Currency, EffectiveDate).
type ExchangeRate struct {
	Currency      string          `json:"currency"`
	RatePerUSD    decimal.Decimal `json:"rate_per_usd"`
	EffectiveDate time.Time       `json:"effective_date"`
}
