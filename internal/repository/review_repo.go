package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tabsera/settlement/internal/domain"
)

type ReviewRepo struct {
	db *sql.DB
}

func NewReviewRepo(db *sql.DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

func (r *ReviewRepo) Insert(item *domain.ReviewItem) error {
	_, err := r.db.Exec(
		`INSERT INTO review_queue
		(id, center_id, period_start, period_end, reason, detail, created_at, resolved_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		item.ID, item.CenterID, item.PeriodStart.Format(time.RFC3339),
		item.PeriodEnd.Format(time.RFC3339), string(item.Reason), item.Detail,
		item.CreatedAt.Format(time.RFC3339), formatNullableTime(item.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert review item: %w", err)
	}
	return nil
}

// ListOpen returns unresolved review items, oldest first.
func (r *ReviewRepo) ListOpen() ([]domain.ReviewItem, error) {
	rows, err := r.db.Query(
		"SELECT * FROM review_queue WHERE resolved_at IS NULL ORDER BY created_at",
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var items []domain.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ResolveForKey marks all open items for the (center, period) key as
// resolved, called when a retried generation finally succeeds.
func (r *ReviewRepo) ResolveForKey(centerID string, periodStart, periodEnd time.Time, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE review_queue SET resolved_at = ?
		 WHERE center_id = ? AND period_start = ? AND period_end = ? AND resolved_at IS NULL`,
		at.Format(time.RFC3339), centerID,
		periodStart.Format(time.RFC3339), periodEnd.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("resolve review items: %w", err)
	}
	return nil
}

func scanReviewItem(rows *sql.Rows) (*domain.ReviewItem, error) {
	var item domain.ReviewItem
	var reason, periodStart, periodEnd, createdAt string
	var resolvedAtNull sql.NullString

	err := rows.Scan(
		&item.ID, &item.CenterID, &periodStart, &periodEnd, &reason,
		&item.Detail, &createdAt, &resolvedAtNull,
	)
	if err != nil {
		return nil, err
	}

	item.Reason = domain.ReviewReason(reason)
	item.PeriodStart, _ = time.Parse(time.RFC3339, periodStart)
	item.PeriodEnd, _ = time.Parse(time.RFC3339, periodEnd)
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if resolvedAtNull.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAtNull.String)
		item.ResolvedAt = &t
	}

	return &item, nil
}
