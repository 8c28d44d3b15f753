package settlement

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"testing"

	"github.com/tabsera/settlement/internal/domain"
)

func TestWriteCSV(t *testing.T) {
	settlements := []domain.Settlement{
		{
			ID:                "S1",
			CenterID:          "CTR-A",
			PeriodStart:       date(2024, 1, 1),
			PeriodEnd:         date(2024, 2, 1),
			Currency:          "USD",
			GrossRevenue:      490000,
			TabseraAmount:     245000,
			CenterAmount:      245000,
			CollectedAmount:   426000,
			PendingAmount:     64000,
			CollectionRatePct: 87,
			Status:            domain.SettlementPending,
			DueDate:           date(2024, 2, 15),
		},
		{
			ID:                "S2",
			CenterID:          "CTR-B",
			PeriodStart:       date(2024, 1, 1),
			PeriodEnd:         date(2024, 4, 1),
			Currency:          "NGN",
			GrossRevenue:      101,
			TabseraAmount:     33,
			CenterAmount:      68,
			CollectionRatePct: 100,
			CollectedAmount:   101,
			Status:            domain.SettlementPaid,
			DueDate:           date(2024, 4, 20),
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, settlements); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d rows, want header + 2 records", len(records))
	}

	wantHeader := []string{
		"center", "period", "gross", "tabsera_amount", "center_amount",
		"collection_rate_pct", "status", "due_date",
	}
	if !reflect.DeepEqual(records[0], wantHeader) {
		t.Errorf("header = %v, want %v", records[0], wantHeader)
	}

	want := []string{"CTR-A", "2024-01-01/2024-02-01", "490000", "245000", "245000", "87", "pending", "2024-02-15"}
	if !reflect.DeepEqual(records[1], want) {
		t.Errorf("record = %v, want %v", records[1], want)
	}
	if records[2][6] != "paid" || records[2][1] != "2024-01-01/2024-04-01" {
		t.Errorf("second record = %v", records[2])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d rows, want header only", len(records))
	}
}
