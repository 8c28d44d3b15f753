package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tabsera/settlement/internal/api"
	"github.com/tabsera/settlement/internal/config"
	"github.com/tabsera/settlement/internal/currency"
	"github.com/tabsera/settlement/internal/domain"
	"github.com/tabsera/settlement/internal/rates"
	"github.com/tabsera/settlement/internal/registry"
	"github.com/tabsera/settlement/internal/repository"
	"github.com/tabsera/settlement/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	contractRepo := repository.NewContractRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)
	rateRepo := repository.NewRateRepo(db)
	settRepo := repository.NewSettlementRepo(db)
	revRepo := repository.NewReviewRepo(db)

	// Create services.
	reg := registry.New(contractRepo)
	converter := currency.NewConverter(rateRepo)
	generator := settlement.NewGenerator(reg, paymentRepo, settRepo, revRepo, converter, nil)
	tracker := settlement.NewTracker(reg, paymentRepo, converter, nil)
	lifecycle := settlement.NewLifecycle(settRepo, reg, nil, nil)
	importer := rates.NewImporter(rateRepo, nil)

	// Seed contracts, payments and rates if the DB is empty.
	if err := seedIfEmpty(cfg.SeedDir, contractRepo, paymentRepo, importer); err != nil {
		log.Printf("WARNING: Failed to seed data: %v", err)
	}

	// Time-driven overdue sweep.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := lifecycle.SweepOverdue(time.Now().UTC()); err != nil {
				log.Printf("WARNING: overdue sweep failed: %v", err)
			}
		}
	}()

	// Create router.
	router := api.NewRouter(reg, settRepo, revRepo, generator, tracker, lifecycle, importer)

	log.Printf("Tabsera Settlement & Revenue-Sharing Engine")
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("API base: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/contracts")
	log.Printf("  GET    /api/v1/centers/{id}/contract")
	log.Printf("  GET    /api/v1/centers/{id}/collection")
	log.Printf("  POST   /api/v1/rates/import")
	log.Printf("  POST   /api/v1/settlements/generate")
	log.Printf("  GET    /api/v1/settlements")
	log.Printf("  GET    /api/v1/settlements/overdue")
	log.Printf("  GET    /api/v1/settlements/export")
	log.Printf("  GET    /api/v1/settlements/{id}")
	log.Printf("  POST   /api/v1/settlements/{id}/mark-paid")
	log.Printf("  GET    /api/v1/review-queue")
	log.Printf("  GET    /api/v1/dashboard")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func seedIfEmpty(
	seedDir string,
	contractRepo *repository.ContractRepo,
	paymentRepo *repository.PaymentRepo,
	importer *rates.Importer,
) error {
	count, err := contractRepo.Count()
	if err != nil {
		return fmt.Errorf("count contracts: %w", err)
	}
	if count > 0 {
		log.Printf("Database already has %d contracts, skipping seed", count)
		return nil
	}
	log.Println("Database is empty, seeding from testdata...")

	dir := findSeedDir(seedDir)

	var contracts []domain.Contract
	if err := readJSONFile(filepath.Join(dir, "contracts.json"), &contracts); err != nil {
		return err
	}
	for i := range contracts {
		if err := contractRepo.Insert(&contracts[i]); err != nil {
			return fmt.Errorf("seed contract %s: %w", contracts[i].ID, err)
		}
	}
	log.Printf("Seeded %d contracts", len(contracts))

	var payments []domain.Payment
	if err := readJSONFile(filepath.Join(dir, "payments.json"), &payments); err != nil {
		return err
	}
	inserted, err := paymentRepo.BulkInsert(payments)
	if err != nil {
		return fmt.Errorf("seed payments: %w", err)
	}
	log.Printf("Seeded %d payments (out of %d in file)", inserted, len(payments))

	ratesCSV, err := os.ReadFile(filepath.Join(dir, "rates.csv"))
	if err != nil {
		return fmt.Errorf("read rates.csv: %w", err)
	}
	result, err := importer.ImportCSV(ratesCSV)
	if err != nil {
		return fmt.Errorf("seed rates: %w", err)
	}
	log.Printf("Seeded %d exchange-rate entries", result.RecordsImported)

	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

func findSeedDir(configured string) string {
	candidates := []string{configured, "testdata"}

	// Also try relative to the executable.
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata"),
			filepath.Join(dir, "..", "..", "testdata"),
		)
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return configured
}
