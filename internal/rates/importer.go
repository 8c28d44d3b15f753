// Package rates imports the admin-maintained exchange-rate table
// from CSV uploads.
package rates

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tabsera/settlement/internal/domain"
	"github.com/tabsera/settlement/internal/repository"
)

// ImportResult is returned from a successful import.
type ImportResult struct {
	RecordsImported int  `json:"records_imported"`
	AlreadyImported bool `json:"already_imported"`
}

// Importer ingests rate files idempotently: re-uploading the same
// file is a no-op, detected by content hash.
type Importer struct {
	rates *repository.RateRepo
	now   func() time.Time
}

func NewImporter(rates *repository.RateRepo, now func() time.Time) *Importer {
	if now == nil {
		now = time.Now
	}
	return &Importer{rates: rates, now: now}
}

// ImportCSV parses a rate file with columns
// currency,rate_per_usd,effective_date and stores the entries.
func (im *Importer) ImportCSV(data []byte) (*ImportResult, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := im.rates.ImportExists(hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		return &ImportResult{AlreadyImported: true}, nil
	}

	entries, err := parseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse rates csv: %w", err)
	}

	inserted, err := im.rates.BulkInsert(entries)
	if err != nil {
		return nil, fmt.Errorf("insert rates: %w", err)
	}
	if err := im.rates.RecordImport(hash, inserted, im.now().UTC()); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}

	log.Printf("[rates] Imported %d exchange-rate entries", inserted)
	return &ImportResult{RecordsImported: inserted}, nil
}

func parseCSV(data []byte) ([]domain.ExchangeRate, error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	header := records[0]
	if len(header) < 3 || !strings.EqualFold(header[0], "currency") {
		return nil, fmt.Errorf("unexpected header %v, want currency,rate_per_usd,effective_date", header)
	}

	var entries []domain.ExchangeRate
	for i, rec := range records[1:] {
		if len(rec) < 3 {
			return nil, fmt.Errorf("row %d: %d columns, want 3", i+2, len(rec))
		}

		rate, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("row %d: rate %q: %w", i+2, rec[1], err)
		}
		if rate.Sign() <= 0 {
			return nil, fmt.Errorf("row %d: rate %s must be positive", i+2, rate)
		}

		effDate, err := time.Parse("2006-01-02", strings.TrimSpace(rec[2]))
		if err != nil {
			return nil, fmt.Errorf("row %d: effective date %q: %w", i+2, rec[2], err)
		}

		entries = append(entries, domain.ExchangeRate{
			Currency:      strings.ToUpper(strings.TrimSpace(rec[0])),
			RatePerUSD:    rate,
			EffectiveDate: effDate,
		})
	}
	return entries, nil
}
