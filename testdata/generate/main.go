// Command generate produces deterministic seed data: partner-center
// contracts, six months of student payments and a matching
// exchange-rate table.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/tabsera/settlement/internal/domain"
)

type center struct {
	id          string
	currency    string
	payCurrency string
	tabseraPct  int
	frequency   domain.Frequency
	dueDay      int
}

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Payments span 2024-01-01 to 2024-07-01.
	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	dayRange := int(endDate.Sub(startDate).Hours() / 24)

	centers := []center{
		{"CTR-NBO-001", "USD", "KES", 30, domain.FrequencyMonthly, 15},
		{"CTR-NBO-002", "KES", "KES", 25, domain.FrequencyMonthly, 10},
		{"CTR-LOS-001", "USD", "NGN", 35, domain.FrequencyMonthly, 31},
		{"CTR-LOS-002", "NGN", "NGN", 40, domain.FrequencyQuarterly, 20},
		{"CTR-CPT-001", "USD", "ZAR", 30, domain.FrequencyQuarterly, 5},
		{"CTR-CPT-002", "ZAR", "ZAR", 33, domain.FrequencyMonthly, 28},
	}

	var contracts []domain.Contract
	for i, c := range centers {
		contracts = append(contracts, domain.Contract{
			ID:                  fmt.Sprintf("CON-%03d", i+1),
			CenterID:            c.id,
			TabseraSharePct:     c.tabseraPct,
			CenterSharePct:      100 - c.tabseraPct,
			Frequency:           c.frequency,
			DueDay:              c.dueDay,
			SettlementCurrency:  c.currency,
			StartDate:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:             time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			AutoRenew:           i%2 == 0,
			SuspendAfterOverdue: 3,
			Status:              domain.ContractActive,
			CreatedAt:           time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC),
		})
	}
	writeJSONFile(filepath.Join(baseDir, "contracts.json"), contracts)
	fmt.Printf("Generated %d contracts -> contracts.json\n", len(contracts))

	methods := []string{"mpesa", "card", "bank_transfer", "ussd"}

	var payments []domain.Payment
	for _, c := range centers {
		count := 40 + rng.Intn(30)
		for i := 1; i <= count; i++ {
			day := rng.Intn(dayRange)
			hour := rng.Intn(24)
			minute := rng.Intn(60)
			paidAt := startDate.AddDate(0, 0, day).Add(
				time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute,
			)

			// Course fees between 20 and 320 USD-equivalent, in the
			// center's local payment currency.
			amountMinor := int64(2000 + rng.Intn(30000))
			amountMinor = localizeMinor(amountMinor, c.payCurrency)

			// 85% cleared, 15% still pending confirmation.
			status := domain.PaymentCleared
			if rng.Float64() > 0.85 {
				status = domain.PaymentPending
			}

			payments = append(payments, domain.Payment{
				ID:          fmt.Sprintf("PAY-%s-%04d", c.id, i),
				StudentID:   fmt.Sprintf("STU-%04d", rng.Intn(2000)+1),
				CenterID:    c.id,
				TrackID:     fmt.Sprintf("TRK-%03d", rng.Intn(12)+1),
				AmountMinor: amountMinor,
				Currency:    c.payCurrency,
				PaidAt:      paidAt,
				Method:      methods[rng.Intn(len(methods))],
				Status:      status,
			})
		}
	}
	writeJSONFile(filepath.Join(baseDir, "payments.json"), payments)
	fmt.Printf("Generated %d payments -> payments.json\n", len(payments))

	generateRatesCSV(baseDir)
	fmt.Println("Test data generation complete.")
}

// localizeMinor scales a USD-cent amount into the payment currency's
// minor units using rough corridor rates; exact conversion happens in
// the engine against the rate table.
func localizeMinor(usdCents int64, currency string) int64 {
	switch currency {
	case "KES":
		return usdCents * 129
	case "NGN":
		return usdCents * 1580
	case "ZAR":
		return usdCents * 18
	default:
		return usdCents
	}
}

func generateRatesCSV(baseDir string) {
	filePath := filepath.Join(baseDir, "rates.csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"currency", "rate_per_usd", "effective_date"})

	// One entry per currency per month; mild drift month to month.
	type monthRate struct {
		currency string
		rates    []string
	}
	table := []monthRate{
		{"KES", []string{"129.50", "130.10", "129.80", "131.20", "130.60", "129.90", "130.40"}},
		{"NGN", []string{"1580.00", "1595.00", "1610.00", "1590.00", "1605.00", "1620.00", "1612.00"}},
		{"ZAR", []string{"18.60", "18.75", "18.50", "18.90", "18.65", "18.80", "18.70"}},
	}

	count := 0
	for _, mr := range table {
		for m, rate := range mr.rates {
			effDate := time.Date(2024, time.Month(m+1), 1, 0, 0, 0, 0, time.UTC)
			w.Write([]string{mr.currency, rate, effDate.Format("2006-01-02")})
			count++
		}
	}

	fmt.Printf("Generated %d rate entries -> rates.csv\n", count)
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	candidates := []string{"testdata", "./testdata"}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
