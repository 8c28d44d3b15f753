// Package settlement implements the settlement engine: period
// closing, the live collection view, the settlement state machine and
// batch export.
package settlement

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabsera/settlement/internal/currency"
	"github.com/tabsera/settlement/internal/domain"
	"github.com/tabsera/settlement/internal/registry"
	"github.com/tabsera/settlement/internal/repository"
)

// Generator closes settlement periods: it aggregates a center's
// payments over a period, applies the contract split and persists the
// resulting settlement exactly once per (center, period) key.
type Generator struct {
	registry    *registry.Registry
	payments    *repository.PaymentRepo
	settlements *repository.SettlementRepo
	reviews     *repository.ReviewRepo
	converter   *currency.Converter
	now         func() time.Time
}

// NewGenerator creates a generator. A nil now falls back to time.Now;
// tests inject a fixed clock.
func NewGenerator(
	reg *registry.Registry,
	payments *repository.PaymentRepo,
	settlements *repository.SettlementRepo,
	reviews *repository.ReviewRepo,
	converter *currency.Converter,
	now func() time.Time,
) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		registry:    reg,
		payments:    payments,
		settlements: settlements,
		reviews:     reviews,
		converter:   converter,
		now:         now,
	}
}

// Generate produces the settlement for one center and period. It is
// idempotent: an existing settlement is returned unchanged, except
// that a still-pending settlement of a period that has not ended yet
// may be recomputed from the live payment ledger. Once the period has
// ended the first generated figures are frozen.
func (g *Generator) Generate(centerID string, periodStart, periodEnd time.Time) (*domain.Settlement, error) {
	existing, err := g.settlements.GetByKey(centerID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("lookup settlement for center %s period %s: %w",
			centerID, periodStart.Format("2006-01-02"), err)
	}

	if existing != nil {
		if existing.Status != domain.SettlementPending || !g.now().Before(periodEnd) {
			return existing, nil
		}
		return g.recompute(existing)
	}

	comp, err := g.compute(centerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	s := &domain.Settlement{
		ID:                uuid.NewString(),
		CenterID:          centerID,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		Currency:          comp.currency,
		GrossRevenue:      comp.gross,
		TabseraAmount:     comp.tabsera,
		CenterAmount:      comp.center,
		CollectedAmount:   comp.collected,
		PendingAmount:     comp.pending,
		CollectionRatePct: comp.ratePct,
		Status:            domain.SettlementPending,
		DueDate:           DueDate(periodEnd, comp.dueDay),
		GeneratedAt:       g.now().UTC(),
		RateSnapshot:      comp.snapshot,
	}
	if err := s.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("generate center %s period %s: %w",
			centerID, periodStart.Format("2006-01-02"), err)
	}

	inserted, err := g.settlements.InsertIfAbsent(s)
	if err != nil {
		return nil, fmt.Errorf("persist settlement for center %s period %s: %w",
			centerID, periodStart.Format("2006-01-02"), err)
	}
	if !inserted {
		// Lost a race with a concurrent Generate for the same key;
		// the winner's row is authoritative.
		return g.settlements.GetByKey(centerID, periodStart, periodEnd)
	}

	if err := g.settlements.AppendAudit(s.ID, domain.AuditGenerated, "system", "", g.now().UTC()); err != nil {
		return nil, fmt.Errorf("audit settlement %s: %w", s.ID, err)
	}
	if err := g.reviews.ResolveForKey(centerID, periodStart, periodEnd, g.now().UTC()); err != nil {
		log.Printf("[generator] WARNING: resolve review items for center %s: %v", centerID, err)
	}

	log.Printf("[generator] Generated settlement %s: center=%s period=%s..%s gross=%d split=%d/%d collected=%d%%",
		s.ID, centerID, periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02"),
		s.GrossRevenue, s.TabseraAmount, s.CenterAmount, s.CollectionRatePct)

	return s, nil
}

// recompute refreshes a still-open settlement from the live ledger.
func (g *Generator) recompute(s *domain.Settlement) (*domain.Settlement, error) {
	comp, err := g.compute(s.CenterID, s.PeriodStart, s.PeriodEnd)
	if err != nil {
		return nil, err
	}

	s.Currency = comp.currency
	s.GrossRevenue = comp.gross
	s.TabseraAmount = comp.tabsera
	s.CenterAmount = comp.center
	s.CollectedAmount = comp.collected
	s.PendingAmount = comp.pending
	s.CollectionRatePct = comp.ratePct
	s.GeneratedAt = g.now().UTC()
	s.RateSnapshot = comp.snapshot

	if err := s.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("recompute settlement %s: %w", s.ID, err)
	}
	if err := g.settlements.UpdateAmounts(s); err != nil {
		return nil, fmt.Errorf("recompute settlement %s: %w", s.ID, err)
	}
	if err := g.settlements.AppendAudit(s.ID, domain.AuditRegenerated, "system", "", g.now().UTC()); err != nil {
		return nil, fmt.Errorf("audit settlement %s: %w", s.ID, err)
	}
	return s, nil
}

type computation struct {
	currency  string
	dueDay    int
	gross     int64
	tabsera   int64
	center    int64
	collected int64
	pending   int64
	ratePct   int
	snapshot  domain.RateSnapshot
}

// compute aggregates the period's payments in the contract currency
// and applies the split. Rates are taken as of periodEnd so a
// settlement uses one rate per currency; the rates used are returned
// for snapshotting.
func (g *Generator) compute(centerID string, periodStart, periodEnd time.Time) (*computation, error) {
	contract, err := g.registry.ActiveContractForPeriod(centerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	payments, err := g.payments.ListForPeriod(centerID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("list payments for center %s period %s: %w",
			centerID, periodStart.Format("2006-01-02"), err)
	}

	var gross, collected int64
	snapshot := domain.RateSnapshot{}

	for i := range payments {
		p := &payments[i]
		amount, used, err := g.converter.Convert(p.AmountMinor, p.Currency, contract.SettlementCurrency, periodEnd)
		if err != nil {
			return nil, fmt.Errorf("convert payment %s (center %s, period %s, stage aggregation): %w",
				p.ID, centerID, periodStart.Format("2006-01-02"), err)
		}
		for cur, rate := range used {
			snapshot[cur] = rate
		}
		gross += amount
		if p.Status == domain.PaymentCleared {
			collected += amount
		}
	}

	// Floor the platform share; the remainder goes to the center so
	// the two amounts always sum exactly to gross.
	tabsera := gross * int64(contract.TabseraSharePct) / 100

	return &computation{
		currency:  contract.SettlementCurrency,
		dueDay:    contract.DueDay,
		gross:     gross,
		tabsera:   tabsera,
		center:    gross - tabsera,
		collected: collected,
		pending:   gross - collected,
		ratePct:   collectionRatePct(collected, gross),
		snapshot:  snapshot,
	}, nil
}

// collectionRatePct is the rounded share of gross already collected,
// defined as 100 for an empty period.
func collectionRatePct(collected, gross int64) int {
	if gross == 0 {
		return 100
	}
	return int(math.Round(float64(collected) / float64(gross) * 100))
}

// CenterFailure records one center's failed generation in a batch run.
type CenterFailure struct {
	CenterID    string    `json:"center_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Reason      string    `json:"reason"`
}

// BatchResult summarises one batch close run.
type BatchResult struct {
	Generated []domain.Settlement `json:"generated"`
	Failures  []CenterFailure     `json:"failures"`
}

// CloseCompletedPeriods generates settlements for the most recently
// ended period of every center with an active contract, one worker
// per center. Centers never share mutable state, so failures are
// isolated: a center with a missing rate or contract lands in the
// review queue and the rest of the batch completes. Re-invoking the
// batch is safe because generation is idempotent.
func (g *Generator) CloseCompletedPeriods(asOf time.Time) (*BatchResult, error) {
	contracts, err := g.registry.ListActive(asOf)
	if err != nil {
		return nil, fmt.Errorf("list active contracts: %w", err)
	}

	result := &BatchResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range contracts {
		c := contracts[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			start, end := LastClosedPeriod(c.Frequency, asOf)

			s, err := g.Generate(c.CenterID, start, end)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[generator] WARNING: center %s period %s..%s: %v",
					c.CenterID, start.Format("2006-01-02"), end.Format("2006-01-02"), err)
				g.enqueueReview(c.CenterID, start, end, err)
				result.Failures = append(result.Failures, CenterFailure{
					CenterID:    c.CenterID,
					PeriodStart: start,
					PeriodEnd:   end,
					Reason:      err.Error(),
				})
				return
			}
			result.Generated = append(result.Generated, *s)
		}()
	}
	wg.Wait()

	sort.Slice(result.Generated, func(i, j int) bool {
		return result.Generated[i].CenterID < result.Generated[j].CenterID
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].CenterID < result.Failures[j].CenterID
	})

	log.Printf("[generator] Batch close as of %s: generated=%d failed=%d",
		asOf.Format("2006-01-02"), len(result.Generated), len(result.Failures))

	return result, nil
}

func (g *Generator) enqueueReview(centerID string, periodStart, periodEnd time.Time, cause error) {
	item := &domain.ReviewItem{
		ID:          uuid.NewString(),
		CenterID:    centerID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Reason:      reviewReason(cause),
		Detail:      cause.Error(),
		CreatedAt:   g.now().UTC(),
	}
	if err := g.reviews.Insert(item); err != nil {
		log.Printf("[generator] WARNING: enqueue review item for center %s: %v", centerID, err)
	}
}

func reviewReason(err error) domain.ReviewReason {
	var noContract *registry.NoActiveContractError
	if errors.As(err, &noContract) {
		return domain.ReviewNoActiveContract
	}
	return domain.ReviewRateUnavailable
}
