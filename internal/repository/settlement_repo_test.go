package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tabsera/settlement/internal/domain"
)

func newTestSettlementRepo(t *testing.T) *SettlementRepo {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettlementRepo(db)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testSettlement(id, centerID string, start, end time.Time) *domain.Settlement {
	return &domain.Settlement{
		ID:                id,
		CenterID:          centerID,
		PeriodStart:       start,
		PeriodEnd:         end,
		Currency:          "USD",
		GrossRevenue:      100000,
		TabseraAmount:     30000,
		CenterAmount:      70000,
		CollectedAmount:   100000,
		CollectionRatePct: 100,
		Status:            domain.SettlementPending,
		DueDate:           end.AddDate(0, 0, 14),
		GeneratedAt:       end,
		RateSnapshot:      domain.RateSnapshot{"KES": decimal.NewFromInt(130)},
	}
}

func TestInsertIfAbsentDuplicateKey(t *testing.T) {
	repo := newTestSettlementRepo(t)
	s := testSettlement("S1", "CTR-A", date(2024, 1, 1), date(2024, 2, 1))

	inserted, err := repo.InsertIfAbsent(s)
	if err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}
	if !inserted {
		t.Fatal("first insert reported not inserted")
	}

	// Same (center, period) key under a different id collapses.
	dup := testSettlement("S2", "CTR-A", date(2024, 1, 1), date(2024, 2, 1))
	inserted, err = repo.InsertIfAbsent(dup)
	if err != nil {
		t.Fatalf("duplicate InsertIfAbsent: %v", err)
	}
	if inserted {
		t.Error("duplicate key insert reported inserted")
	}

	got, err := repo.GetByKey("CTR-A", date(2024, 1, 1), date(2024, 2, 1))
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if got.ID != "S1" {
		t.Errorf("winning row = %s, want S1", got.ID)
	}
}

func TestRateSnapshotRoundTrip(t *testing.T) {
	repo := newTestSettlementRepo(t)
	s := testSettlement("S1", "CTR-A", date(2024, 1, 1), date(2024, 2, 1))

	if _, err := repo.InsertIfAbsent(s); err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}
	got, err := repo.GetByID("S1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rate, ok := got.RateSnapshot["KES"]; !ok || !rate.Equal(decimal.NewFromInt(130)) {
		t.Errorf("snapshot = %v, want KES 130", got.RateSnapshot)
	}
}

func TestUpdateAmountsFrozenWhenNotPending(t *testing.T) {
	repo := newTestSettlementRepo(t)
	s := testSettlement("S1", "CTR-A", date(2024, 1, 1), date(2024, 2, 1))
	if _, err := repo.InsertIfAbsent(s); err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}

	if _, err := repo.MarkPaid("S1", "REF-1", date(2024, 2, 10)); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	s.GrossRevenue = 999999
	if err := repo.UpdateAmounts(s); err == nil {
		t.Fatal("UpdateAmounts on a paid settlement succeeded, want error")
	}

	got, _ := repo.GetByID("S1")
	if got.GrossRevenue != 100000 {
		t.Errorf("gross = %d, want untouched 100000", got.GrossRevenue)
	}
}

func TestMarkOverdueOnlyPending(t *testing.T) {
	repo := newTestSettlementRepo(t)
	s := testSettlement("S1", "CTR-A", date(2024, 1, 1), date(2024, 2, 1))
	if _, err := repo.InsertIfAbsent(s); err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}

	ok, err := repo.MarkOverdue("S1")
	if err != nil || !ok {
		t.Fatalf("MarkOverdue = %v, %v; want true", ok, err)
	}

	// Second flip is a no-op.
	ok, err = repo.MarkOverdue("S1")
	if err != nil {
		t.Fatalf("second MarkOverdue: %v", err)
	}
	if ok {
		t.Error("second MarkOverdue reported a row change")
	}
}

func TestMarkPaidGuard(t *testing.T) {
	repo := newTestSettlementRepo(t)
	s := testSettlement("S1", "CTR-A", date(2024, 1, 1), date(2024, 2, 1))
	if _, err := repo.InsertIfAbsent(s); err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}

	ok, err := repo.MarkPaid("S1", "REF-1", date(2024, 2, 10))
	if err != nil || !ok {
		t.Fatalf("MarkPaid = %v, %v; want true", ok, err)
	}

	// Paid is terminal at the SQL level too.
	ok, err = repo.MarkPaid("S1", "REF-2", date(2024, 2, 11))
	if err != nil {
		t.Fatalf("second MarkPaid: %v", err)
	}
	if ok {
		t.Error("second MarkPaid modified a paid settlement")
	}

	got, _ := repo.GetByID("S1")
	if got.PaymentRef != "REF-1" {
		t.Errorf("paymentRef = %s, want REF-1", got.PaymentRef)
	}
}

func TestConsecutiveOverdue(t *testing.T) {
	repo := newTestSettlementRepo(t)

	// Jan overdue, Feb paid, Mar and Apr overdue. Newest-first the
	// streak is 2, broken by the paid February settlement.
	months := []struct {
		id     string
		start  time.Month
		status domain.SettlementStatus
	}{
		{"S1", time.January, domain.SettlementOverdue},
		{"S2", time.February, domain.SettlementPaid},
		{"S3", time.March, domain.SettlementOverdue},
		{"S4", time.April, domain.SettlementOverdue},
	}
	for _, m := range months {
		s := testSettlement(m.id, "CTR-A", date(2024, m.start, 1), date(2024, m.start+1, 1))
		if _, err := repo.InsertIfAbsent(s); err != nil {
			t.Fatalf("insert %s: %v", m.id, err)
		}
		switch m.status {
		case domain.SettlementOverdue:
			if _, err := repo.MarkOverdue(m.id); err != nil {
				t.Fatalf("mark %s overdue: %v", m.id, err)
			}
		case domain.SettlementPaid:
			if _, err := repo.MarkPaid(m.id, "REF", date(2024, m.start+1, 10)); err != nil {
				t.Fatalf("mark %s paid: %v", m.id, err)
			}
		}
	}

	count, err := repo.ConsecutiveOverdue("CTR-A")
	if err != nil {
		t.Fatalf("ConsecutiveOverdue: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	if count, _ := repo.ConsecutiveOverdue("CTR-UNKNOWN"); count != 0 {
		t.Errorf("unknown center count = %d, want 0", count)
	}
}

func TestAppendAuditSequence(t *testing.T) {
	repo := newTestSettlementRepo(t)
	s := testSettlement("S1", "CTR-A", date(2024, 1, 1), date(2024, 2, 1))
	if _, err := repo.InsertIfAbsent(s); err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}

	actions := []domain.AuditAction{domain.AuditGenerated, domain.AuditOverdue, domain.AuditPaid}
	for _, a := range actions {
		if err := repo.AppendAudit("S1", a, "system", "", date(2024, 2, 1)); err != nil {
			t.Fatalf("AppendAudit %s: %v", a, err)
		}
	}

	entries, err := repo.ListAudit("S1")
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i+1 {
			t.Errorf("entry %d seq = %d, want %d", i, e.Seq, i+1)
		}
		if e.Action != actions[i] {
			t.Errorf("entry %d action = %s, want %s", i, e.Action, actions[i])
		}
	}
}

func TestListFilters(t *testing.T) {
	repo := newTestSettlementRepo(t)

	for _, row := range []struct {
		id, center string
		start      time.Month
	}{
		{"S1", "CTR-A", time.January},
		{"S2", "CTR-A", time.February},
		{"S3", "CTR-B", time.January},
	} {
		s := testSettlement(row.id, row.center, date(2024, row.start, 1), date(2024, row.start+1, 1))
		if _, err := repo.InsertIfAbsent(s); err != nil {
			t.Fatalf("insert %s: %v", row.id, err)
		}
	}
	if _, err := repo.MarkOverdue("S3"); err != nil {
		t.Fatalf("mark overdue: %v", err)
	}

	got, total, err := repo.List(SettlementFilter{CenterID: "CTR-A"})
	if err != nil {
		t.Fatalf("List by center: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Errorf("center filter: total=%d len=%d, want 2/2", total, len(got))
	}

	got, total, err = repo.List(SettlementFilter{Status: string(domain.SettlementOverdue)})
	if err != nil {
		t.Fatalf("List by status: %v", err)
	}
	if total != 1 || got[0].ID != "S3" {
		t.Errorf("status filter: total=%d, want the one overdue row", total)
	}

	from := date(2024, 2, 1)
	got, total, err = repo.List(SettlementFilter{From: &from})
	if err != nil {
		t.Fatalf("List by from: %v", err)
	}
	if total != 1 || got[0].ID != "S2" {
		t.Errorf("from filter: total=%d, want only February", total)
	}

	// Pagination.
	got, total, err = repo.List(SettlementFilter{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	if total != 3 || len(got) != 2 {
		t.Errorf("page 1: total=%d len=%d, want 3/2", total, len(got))
	}
	got, _, err = repo.List(SettlementFilter{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("page 2: len=%d, want 1", len(got))
	}
}

func TestListDuePending(t *testing.T) {
	repo := newTestSettlementRepo(t)

	s1 := testSettlement("S1", "CTR-A", date(2024, 1, 1), date(2024, 2, 1))
	s1.DueDate = date(2024, 2, 10)
	s2 := testSettlement("S2", "CTR-B", date(2024, 1, 1), date(2024, 2, 1))
	s2.DueDate = date(2024, 2, 20)
	for _, s := range []*domain.Settlement{s1, s2} {
		if _, err := repo.InsertIfAbsent(s); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	due, err := repo.ListDuePending(date(2024, 2, 15))
	if err != nil {
		t.Fatalf("ListDuePending: %v", err)
	}
	if len(due) != 1 || due[0].ID != "S1" {
		t.Errorf("due = %+v, want only S1", due)
	}
}
