package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tabsera/settlement/internal/domain"
)

type ContractRepo struct {
	db *sql.DB
}

func NewContractRepo(db *sql.DB) *ContractRepo {
	return &ContractRepo{db: db}
}

func (r *ContractRepo) Insert(c *domain.Contract) error {
	_, err := r.db.Exec(
		`INSERT INTO contracts
		(id, center_id, tabsera_share_pct, center_share_pct, frequency, due_day,
		 settlement_currency, start_date, end_date, auto_renew,
		 suspend_after_overdue, status, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CenterID, c.TabseraSharePct, c.CenterSharePct, string(c.Frequency),
		c.DueDay, c.SettlementCurrency, c.StartDate.Format(time.RFC3339),
		c.EndDate.Format(time.RFC3339), boolToInt(c.AutoRenew),
		c.SuspendAfterOverdue, string(c.Status), c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (r *ContractRepo) GetByID(id string) (*domain.Contract, error) {
	row := r.db.QueryRow("SELECT * FROM contracts WHERE id = ?", id)
	return scanContract(row)
}

// GetActiveForDate returns the active contract whose [start, end)
// range contains asOf, or nil when the center has none.
func (r *ContractRepo) GetActiveForDate(centerID string, asOf time.Time) (*domain.Contract, error) {
	row := r.db.QueryRow(
		`SELECT * FROM contracts
		 WHERE center_id = ? AND status = ? AND start_date <= ? AND end_date > ?
		 ORDER BY start_date DESC LIMIT 1`,
		centerID, string(domain.ContractActive),
		asOf.Format(time.RFC3339), asOf.Format(time.RFC3339),
	)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// HasOverlappingActive reports whether the center already has an
// active contract whose [start, end) range intersects the given one.
// An existing contract id may be excluded (for updates).
func (r *ContractRepo) HasOverlappingActive(centerID string, start, end time.Time, excludeID string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM contracts
		 WHERE center_id = ? AND status = ? AND id != ?
		   AND start_date < ? AND end_date > ?`,
		centerID, string(domain.ContractActive), excludeID,
		end.Format(time.RFC3339), start.Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("overlap check: %w", err)
	}
	return count > 0, nil
}

// ListActive returns all contracts active as of the given instant,
// one per center by construction (no overlapping actives).
func (r *ContractRepo) ListActive(asOf time.Time) ([]domain.Contract, error) {
	rows, err := r.db.Query(
		`SELECT * FROM contracts
		 WHERE status = ? AND start_date <= ? AND end_date > ?
		 ORDER BY center_id`,
		string(domain.ContractActive),
		asOf.Format(time.RFC3339), asOf.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		c, err := scanContractRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func (r *ContractRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM contracts").Scan(&count)
	return count, err
}

// --- helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type contractScanner interface {
	Scan(dest ...any) error
}

func scanContractFrom(sc contractScanner) (*domain.Contract, error) {
	var c domain.Contract
	var freq, status, startDate, endDate, createdAt string
	var autoRenew int

	err := sc.Scan(
		&c.ID, &c.CenterID, &c.TabseraSharePct, &c.CenterSharePct, &freq,
		&c.DueDay, &c.SettlementCurrency, &startDate, &endDate, &autoRenew,
		&c.SuspendAfterOverdue, &status, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.Frequency = domain.Frequency(freq)
	c.Status = domain.ContractStatus(status)
	c.AutoRenew = autoRenew != 0
	c.StartDate, _ = time.Parse(time.RFC3339, startDate)
	c.EndDate, _ = time.Parse(time.RFC3339, endDate)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &c, nil
}

func scanContract(row *sql.Row) (*domain.Contract, error) {
	return scanContractFrom(row)
}

func scanContractRows(rows *sql.Rows) (*domain.Contract, error) {
	return scanContractFrom(rows)
}
