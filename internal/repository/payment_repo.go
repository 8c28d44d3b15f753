package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tabsera/settlement/internal/domain"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) Insert(p *domain.Payment) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO payments
		(id, student_id, center_id, track_id, amount_minor, currency, paid_at, method, status)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.StudentID, p.CenterID, p.TrackID, p.AmountMinor, p.Currency,
		p.PaidAt.Format(time.RFC3339), p.Method, string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) BulkInsert(payments []domain.Payment) (int, error) {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO payments
		(id, student_id, center_id, track_id, amount_minor, currency, paid_at, method, status)
		VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range payments {
		p := &payments[i]
		res, err := stmt.Exec(
			p.ID, p.StudentID, p.CenterID, p.TrackID, p.AmountMinor, p.Currency,
			p.PaidAt.Format(time.RFC3339), p.Method, string(p.Status),
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

func (r *PaymentRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM payments").Scan(&count)
	return count, err
}

// ListForPeriod returns the center's payments with paid_at in
// [start, end), oldest first.
func (r *PaymentRepo) ListForPeriod(centerID string, start, end time.Time) ([]domain.Payment, error) {
	rows, err := r.db.Query(
		`SELECT * FROM payments
		 WHERE center_id = ? AND paid_at >= ? AND paid_at < ?
		 ORDER BY paid_at`,
		centerID, start.Format(time.RFC3339), end.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(rows *sql.Rows) (*domain.Payment, error) {
	var p domain.Payment
	var paidAt, status string

	err := rows.Scan(
		&p.ID, &p.StudentID, &p.CenterID, &p.TrackID, &p.AmountMinor,
		&p.Currency, &paidAt, &p.Method, &status,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PaymentStatus(status)
	p.PaidAt, _ = time.Parse(time.RFC3339, paidAt)

	return &p, nil
}
