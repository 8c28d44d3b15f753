package settlement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/tabsera/settlement/internal/domain"
)

// exportHeader fixes the CSV column order consumed by downstream
// finance tooling; do not reorder.
var exportHeader = []string{
	"center", "period", "gross", "tabsera_amount", "center_amount",
	"collection_rate_pct", "status", "due_date",
}

// WriteCSV writes a settlement batch as CSV. Amounts are minor
// currency units; the period is an ISO interval (start/end, end
// exclusive).
func WriteCSV(w io.Writer, settlements []domain.Settlement) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range settlements {
		s := &settlements[i]
		period := s.PeriodStart.Format("2006-01-02") + "/" + s.PeriodEnd.Format("2006-01-02")
		record := []string{
			s.CenterID,
			period,
			strconv.FormatInt(s.GrossRevenue, 10),
			strconv.FormatInt(s.TabseraAmount, 10),
			strconv.FormatInt(s.CenterAmount, 10),
			strconv.Itoa(s.CollectionRatePct),
			string(s.Status),
			s.DueDate.Format("2006-01-02"),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write settlement %s: %w", s.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
