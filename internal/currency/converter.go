// Package currency normalizes payment amounts into a contract's
// settlement currency using the point-in-time exchange-rate table.
package currency

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tabsera/settlement/internal/repository"
)

// RateUnavailableError reports a currency with no rate entry at or
// before the requested date. It aborts only the affected center's
// settlement, never a whole batch.
type RateUnavailableError struct {
	Currency string
	AsOf     time.Time
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("no exchange rate for %s on or before %s",
		e.Currency, e.AsOf.Format("2006-01-02"))
}

// Converter converts minor-unit amounts between currencies. Rates are
// stored as local units per 1 USD; a conversion routes through that
// common base.
type Converter struct {
	rates *repository.RateRepo
}

func NewConverter(rates *repository.RateRepo) *Converter {
	return &Converter{rates: rates}
}

// BaseCurrency is the common base the rate table is expressed
// against. Its rate is 1 by definition and needs no table entry.
const BaseCurrency = "USD"

var one = decimal.NewFromInt(1)

// RateFor returns the most recent rate (units per USD) for the
// currency with effective date <= asOf.
func (c *Converter) RateFor(currency string, asOf time.Time) (decimal.Decimal, error) {
	if currency == BaseCurrency {
		return one, nil
	}
	rate, err := c.rates.Latest(currency, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lookup rate for %s: %w", currency, err)
	}
	if rate == nil {
		return decimal.Zero, &RateUnavailableError{Currency: currency, AsOf: asOf}
	}
	if rate.RatePerUSD.IsZero() {
		return decimal.Zero, fmt.Errorf("zero exchange rate for %s on %s",
			currency, rate.EffectiveDate.Format("2006-01-02"))
	}
	return rate.RatePerUSD, nil
}

// Convert converts a minor-unit amount from one currency to another
// using rates in effect at asOf, rounding half-up to a whole minor
// unit. The rates actually used are returned so the caller can
// snapshot them.
func (c *Converter) Convert(amountMinor int64, from, to string, asOf time.Time) (int64, map[string]decimal.Decimal, error) {
	if from == to {
		return amountMinor, nil, nil
	}

	fromRate, err := c.RateFor(from, asOf)
	if err != nil {
		return 0, nil, err
	}
	toRate, err := c.RateFor(to, asOf)
	if err != nil {
		return 0, nil, err
	}

	converted := decimal.NewFromInt(amountMinor).
		Div(fromRate).
		Mul(toRate).
		Round(0).
		IntPart()

	used := map[string]decimal.Decimal{from: fromRate, to: toRate}
	return converted, used, nil
}
