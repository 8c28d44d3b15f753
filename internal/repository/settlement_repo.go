package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tabsera/settlement/internal/domain"
)

type SettlementRepo struct {
	db *sql.DB
}

func NewSettlementRepo(db *sql.DB) *SettlementRepo {
	return &SettlementRepo{db: db}
}

// InsertIfAbsent inserts the settlement unless one already exists for
// the (center_id, period_start, period_end) key. The unique index is
// the concurrency guard: a racing duplicate insert collapses into a
// no-op and the caller re-reads the winning row.
func (r *SettlementRepo) InsertIfAbsent(s *domain.Settlement) (bool, error) {
	snapshot, err := marshalSnapshot(s.RateSnapshot)
	if err != nil {
		return false, err
	}

	res, err := r.db.Exec(
		`INSERT OR IGNORE INTO settlements
		(id, center_id, period_start, period_end, currency, gross_revenue,
		 tabsera_amount, center_amount, collected_amount, pending_amount,
		 collection_rate_pct, status, due_date, generated_at, paid_at,
		 payment_ref, rate_snapshot)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.CenterID, s.PeriodStart.Format(time.RFC3339),
		s.PeriodEnd.Format(time.RFC3339), s.Currency, s.GrossRevenue,
		s.TabseraAmount, s.CenterAmount, s.CollectedAmount, s.PendingAmount,
		s.CollectionRatePct, string(s.Status), s.DueDate.Format(time.RFC3339),
		s.GeneratedAt.Format(time.RFC3339), formatNullableTime(s.PaidAt),
		s.PaymentRef, snapshot,
	)
	if err != nil {
		return false, fmt.Errorf("insert settlement: %w", err)
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

// UpdateAmounts recomputes the monetary fields of a still-open
// settlement. Guarded on status = pending so a finalized row can
// never be rewritten.
func (r *SettlementRepo) UpdateAmounts(s *domain.Settlement) error {
	snapshot, err := marshalSnapshot(s.RateSnapshot)
	if err != nil {
		return err
	}

	res, err := r.db.Exec(
		`UPDATE settlements SET
			gross_revenue = ?, tabsera_amount = ?, center_amount = ?,
			collected_amount = ?, pending_amount = ?, collection_rate_pct = ?,
			generated_at = ?, rate_snapshot = ?
		 WHERE id = ? AND status = ?`,
		s.GrossRevenue, s.TabseraAmount, s.CenterAmount,
		s.CollectedAmount, s.PendingAmount, s.CollectionRatePct,
		s.GeneratedAt.Format(time.RFC3339), snapshot,
		s.ID, string(domain.SettlementPending),
	)
	if err != nil {
		return fmt.Errorf("update amounts: %w", err)
	}
	ra, _ := res.RowsAffected()
	if ra == 0 {
		return fmt.Errorf("settlement %s is not pending, amounts are frozen", s.ID)
	}
	return nil
}

func (r *SettlementRepo) GetByID(id string) (*domain.Settlement, error) {
	row := r.db.QueryRow("SELECT * FROM settlements WHERE id = ?", id)
	s, err := scanSettlementFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SettlementRepo) GetByKey(centerID string, periodStart, periodEnd time.Time) (*domain.Settlement, error) {
	row := r.db.QueryRow(
		"SELECT * FROM settlements WHERE center_id = ? AND period_start = ? AND period_end = ?",
		centerID, periodStart.Format(time.RFC3339), periodEnd.Format(time.RFC3339),
	)
	s, err := scanSettlementFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

type SettlementFilter struct {
	CenterID string
	Status   string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

func (r *SettlementRepo) List(f SettlementFilter) ([]domain.Settlement, int, error) {
	where, args := buildSettlementWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM settlements"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT * FROM settlements" + where + " ORDER BY period_start DESC, center_id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var settlements []domain.Settlement
	for rows.Next() {
		s, err := scanSettlementFrom(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		settlements = append(settlements, *s)
	}
	return settlements, total, rows.Err()
}

// ListDuePending returns pending settlements whose due date has
// passed, for the overdue sweep.
func (r *SettlementRepo) ListDuePending(now time.Time) ([]domain.Settlement, error) {
	rows, err := r.db.Query(
		"SELECT * FROM settlements WHERE status = ? AND due_date < ? ORDER BY due_date",
		string(domain.SettlementPending), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var settlements []domain.Settlement
	for rows.Next() {
		s, err := scanSettlementFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		settlements = append(settlements, *s)
	}
	return settlements, rows.Err()
}

// MarkOverdue flips a pending settlement to overdue. Returns false
// when the row was not pending (already swept or paid meanwhile).
func (r *SettlementRepo) MarkOverdue(id string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE settlements SET status = ? WHERE id = ? AND status = ?",
		string(domain.SettlementOverdue), id, string(domain.SettlementPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark overdue: %w", err)
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

// MarkPaid finalizes a settlement. Guarded at the SQL level so paid
// stays terminal even under concurrent admin actions.
func (r *SettlementRepo) MarkPaid(id, paymentRef string, paidAt time.Time) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE settlements SET status = ?, paid_at = ?, payment_ref = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(domain.SettlementPaid), paidAt.Format(time.RFC3339), paymentRef,
		id, string(domain.SettlementPending), string(domain.SettlementOverdue),
	)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

// ConsecutiveOverdue counts the center's most recent settlements that
// are all overdue, newest first, stopping at the first settlement in
// any other state.
func (r *SettlementRepo) ConsecutiveOverdue(centerID string) (int, error) {
	rows, err := r.db.Query(
		"SELECT status FROM settlements WHERE center_id = ? ORDER BY period_start DESC",
		centerID,
	)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, fmt.Errorf("scan: %w", err)
		}
		if domain.SettlementStatus(status) != domain.SettlementOverdue {
			break
		}
		count++
	}
	return count, rows.Err()
}

// AppendAudit adds the next entry to a settlement's audit trail. Seq
// assignment and insert share one transaction so entries never collide.
func (r *SettlementRepo) AppendAudit(settlementID string, action domain.AuditAction, actor, note string, at time.Time) error {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	var seq int
	err = sqlTx.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entries WHERE settlement_id = ?",
		settlementID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	_, err = sqlTx.Exec(
		`INSERT INTO audit_entries (settlement_id, seq, action, actor, note, created_at)
		 VALUES (?,?,?,?,?,?)`,
		settlementID, seq, string(action), actor, note, at.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *SettlementRepo) ListAudit(settlementID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(
		"SELECT * FROM audit_entries WHERE settlement_id = ? ORDER BY seq",
		settlementID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var action, createdAt string
		var note sql.NullString
		if err := rows.Scan(&e.SettlementID, &e.Seq, &action, &e.Actor, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Action = domain.AuditAction(action)
		e.Note = note.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SettlementStats holds aggregate settlement figures for the dashboard.
type SettlementStats struct {
	Total          int
	Pending        int
	Paid           int
	Overdue        int
	GrossTotal     int64
	CollectedTotal int64
	PendingTotal   int64
}

func (r *SettlementRepo) GetStats() (*SettlementStats, error) {
	s := &SettlementStats{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status='pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='paid' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='overdue' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(gross_revenue), 0),
			COALESCE(SUM(collected_amount), 0),
			COALESCE(SUM(pending_amount), 0)
		FROM settlements
	`).Scan(&s.Total, &s.Pending, &s.Paid, &s.Overdue,
		&s.GrossTotal, &s.CollectedTotal, &s.PendingTotal)
	return s, err
}

// CenterVolume is one center's settlement rollup for the dashboard.
type CenterVolume struct {
	CenterID     string `json:"center_id"`
	Settlements  int    `json:"settlements"`
	GrossRevenue int64  `json:"gross_revenue"`
	Overdue      int    `json:"overdue"`
}

func (r *SettlementRepo) GetVolumeByCenter() ([]CenterVolume, error) {
	rows, err := r.db.Query(`
		SELECT center_id, COUNT(*),
			COALESCE(SUM(gross_revenue), 0),
			COALESCE(SUM(CASE WHEN status='overdue' THEN 1 ELSE 0 END), 0)
		FROM settlements GROUP BY center_id ORDER BY center_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CenterVolume
	for rows.Next() {
		var cv CenterVolume
		if err := rows.Scan(&cv.CenterID, &cv.Settlements, &cv.GrossRevenue, &cv.Overdue); err != nil {
			return nil, err
		}
		result = append(result, cv)
	}
	return result, rows.Err()
}

// --- helpers ---

func buildSettlementWhere(f SettlementFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.CenterID != "" {
		clauses = append(clauses, "center_id = ?")
		args = append(args, f.CenterID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "period_start >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "period_end <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func marshalSnapshot(snap domain.RateSnapshot) (string, error) {
	if len(snap) == 0 {
		return "", nil
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal rate snapshot: %w", err)
	}
	return string(b), nil
}

type settlementScanner interface {
	Scan(dest ...any) error
}

func scanSettlementFrom(sc settlementScanner) (*domain.Settlement, error) {
	var s domain.Settlement
	var status, periodStart, periodEnd, dueDate, generatedAt string
	var paidAtNull, paymentRefNull, snapshotNull sql.NullString

	err := sc.Scan(
		&s.ID, &s.CenterID, &periodStart, &periodEnd, &s.Currency,
		&s.GrossRevenue, &s.TabseraAmount, &s.CenterAmount, &s.CollectedAmount,
		&s.PendingAmount, &s.CollectionRatePct, &status, &dueDate, &generatedAt,
		&paidAtNull, &paymentRefNull, &snapshotNull,
	)
	if err != nil {
		return nil, err
	}

	s.Status = domain.SettlementStatus(status)
	s.PeriodStart, _ = time.Parse(time.RFC3339, periodStart)
	s.PeriodEnd, _ = time.Parse(time.RFC3339, periodEnd)
	s.DueDate, _ = time.Parse(time.RFC3339, dueDate)
	s.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)

	if paidAtNull.Valid {
		t, _ := time.Parse(time.RFC3339, paidAtNull.String)
		s.PaidAt = &t
	}
	if paymentRefNull.Valid {
		s.PaymentRef = paymentRefNull.String
	}
	if snapshotNull.Valid && snapshotNull.String != "" {
		if err := json.Unmarshal([]byte(snapshotNull.String), &s.RateSnapshot); err != nil {
			return nil, fmt.Errorf("unmarshal rate snapshot: %w", err)
		}
	}

	return &s, nil
}
