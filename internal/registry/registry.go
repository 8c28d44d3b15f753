// Package registry owns validated access to per-center revenue-share
// contracts. The settlement engine reads contracts through it; the
// write path enforces the contract invariants before anything is
// persisted.
package registry

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tabsera/settlement/internal/domain"
	"github.com/tabsera/settlement/internal/repository"
)

// InvariantError names the contract field that violates a write-time
// invariant. Offending writes are rejected, never coerced.
type InvariantError struct {
	Field  string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("contract invariant violation: %s: %s", e.Field, e.Reason)
}

// NoActiveContractError reports that a center has no active contract
// covering the requested date or period.
type NoActiveContractError struct {
	CenterID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

func (e *NoActiveContractError) Error() string {
	if e.PeriodEnd.IsZero() {
		return fmt.Sprintf("no active contract for center %s as of %s",
			e.CenterID, e.PeriodStart.Format("2006-01-02"))
	}
	return fmt.Sprintf("no active contract for center %s covering %s..%s",
		e.CenterID, e.PeriodStart.Format("2006-01-02"), e.PeriodEnd.Format("2006-01-02"))
}

type Registry struct {
	contracts *repository.ContractRepo
	validate  *validator.Validate
	now       func() time.Time
}

func New(contracts *repository.ContractRepo) *Registry {
	return &Registry{
		contracts: contracts,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Create validates and stores a new contract. The ID is assigned
// here; a zero status defaults to active.
func (r *Registry) Create(c *domain.Contract) (*domain.Contract, error) {
	if c.Status == "" {
		c.Status = domain.ContractActive
	}

	if err := r.checkInvariants(c); err != nil {
		return nil, err
	}

	if c.Status == domain.ContractActive {
		overlap, err := r.contracts.HasOverlappingActive(c.CenterID, c.StartDate, c.EndDate, c.ID)
		if err != nil {
			return nil, fmt.Errorf("check overlap for center %s: %w", c.CenterID, err)
		}
		if overlap {
			return nil, &InvariantError{
				Field:  "startDate/endDate",
				Reason: fmt.Sprintf("date range overlaps an existing active contract for center %s", c.CenterID),
			}
		}
	}

	c.ID = uuid.NewString()
	c.CreatedAt = r.now().UTC()
	if err := r.contracts.Insert(c); err != nil {
		return nil, fmt.Errorf("store contract for center %s: %w", c.CenterID, err)
	}

	log.Printf("[registry] Created contract %s for center %s (%d/%d split, %s, due day %d)",
		c.ID, c.CenterID, c.TabseraSharePct, c.CenterSharePct, c.Frequency, c.DueDay)
	return c, nil
}

func (r *Registry) checkInvariants(c *domain.Contract) error {
	if err := r.validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &InvariantError{
				Field:  verrs[0].Field(),
				Reason: fmt.Sprintf("failed %q validation", verrs[0].Tag()),
			}
		}
		return fmt.Errorf("validate contract: %w", err)
	}

	if c.TabseraSharePct+c.CenterSharePct != 100 {
		return &InvariantError{
			Field: "tabseraSharePct/centerSharePct",
			Reason: fmt.Sprintf("shares sum to %d, must be exactly 100",
				c.TabseraSharePct+c.CenterSharePct),
		}
	}
	if !c.EndDate.After(c.StartDate) {
		return &InvariantError{
			Field:  "endDate",
			Reason: "end date must be after start date",
		}
	}
	return nil
}

// ActiveContract returns the center's active contract as of the given
// date.
func (r *Registry) ActiveContract(centerID string, asOf time.Time) (*domain.Contract, error) {
	c, err := r.contracts.GetActiveForDate(centerID, asOf)
	if err != nil {
		return nil, fmt.Errorf("lookup contract for center %s: %w", centerID, err)
	}
	if c == nil {
		return nil, &NoActiveContractError{CenterID: centerID, PeriodStart: asOf}
	}
	return c, nil
}

// ActiveContractForPeriod returns the active contract that covers the
// whole period [start, end). A contract active for only part of the
// period does not qualify; generation must not fall back to a stale
// or partially-covering contract.
func (r *Registry) ActiveContractForPeriod(centerID string, start, end time.Time) (*domain.Contract, error) {
	c, err := r.contracts.GetActiveForDate(centerID, start)
	if err != nil {
		return nil, fmt.Errorf("lookup contract for center %s: %w", centerID, err)
	}
	if c == nil || !c.Covers(start, end) {
		return nil, &NoActiveContractError{CenterID: centerID, PeriodStart: start, PeriodEnd: end}
	}
	return c, nil
}

// ListActive returns every contract active at the given instant.
func (r *Registry) ListActive(asOf time.Time) ([]domain.Contract, error) {
	return r.contracts.ListActive(asOf)
}
