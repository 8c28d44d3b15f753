package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tabsera/settlement/internal/domain"
)

type RateRepo struct {
	db *sql.DB
}

func NewRateRepo(db *sql.DB) *RateRepo {
	return &RateRepo{db: db}
}

func (r *RateRepo) Insert(rate *domain.ExchangeRate) error {
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO exchange_rates (currency, rate_per_usd, effective_date)
		 VALUES (?,?,?)`,
		rate.Currency, rate.RatePerUSD.String(), rate.EffectiveDate.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert rate: %w", err)
	}
	return nil
}

func (r *RateRepo) BulkInsert(rates []domain.ExchangeRate) (int, error) {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR REPLACE INTO exchange_rates (currency, rate_per_usd, effective_date)
		 VALUES (?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range rates {
		rate := &rates[i]
		res, err := stmt.Exec(
			rate.Currency, rate.RatePerUSD.String(), rate.EffectiveDate.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Latest returns the most recent rate entry for the currency with
// effective date <= asOf, or nil when no such entry exists.
func (r *RateRepo) Latest(currency string, asOf time.Time) (*domain.ExchangeRate, error) {
	row := r.db.QueryRow(
		`SELECT currency, rate_per_usd, effective_date FROM exchange_rates
		 WHERE currency = ? AND effective_date <= ?
		 ORDER BY effective_date DESC LIMIT 1`,
		currency, asOf.Format(time.RFC3339),
	)

	var rate domain.ExchangeRate
	var rateStr, effDate string
	err := row.Scan(&rate.Currency, &rateStr, &effDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan rate: %w", err)
	}

	rate.RatePerUSD, err = decimal.NewFromString(rateStr)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q for %s: %w", rateStr, currency, err)
	}
	rate.EffectiveDate, _ = time.Parse(time.RFC3339, effDate)

	return &rate, nil
}

// ImportExists checks whether a rate file with the given hash has
// already been imported (idempotency check).
func (r *RateRepo) ImportExists(hash string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM rate_imports WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

func (r *RateRepo) RecordImport(hash string, recordCount int, at time.Time) error {
	_, err := r.db.Exec(
		"INSERT INTO rate_imports (file_hash, record_count, imported_at) VALUES (?,?,?)",
		hash, recordCount, at.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}
