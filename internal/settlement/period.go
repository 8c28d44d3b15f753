package settlement

import (
	"time"

	"github.com/tabsera/settlement/internal/domain"
)

// PeriodFor returns the calendar-anchored settlement period [start,
// end) containing t for the given frequency: the calendar month for
// monthly contracts, the calendar quarter for quarterly ones. Bounds
// are midnight UTC.
func PeriodFor(freq domain.Frequency, t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	year, month, _ := t.Date()

	if freq == domain.FrequencyQuarterly {
		month = time.Month((int(month)-1)/3*3 + 1)
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0)
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// LastClosedPeriod returns the most recent period that has fully
// ended as of the given instant.
func LastClosedPeriod(freq domain.Frequency, asOf time.Time) (time.Time, time.Time) {
	curStart, _ := PeriodFor(freq, asOf)
	months := 1
	if freq == domain.FrequencyQuarterly {
		months = 3
	}
	return curStart.AddDate(0, -months, 0), curStart
}

// DueDate returns the contract's due day in the month in which the
// period ends (periodEnd is exclusive, so for a January period ending
// Feb 1 the due date lands in February). A due day beyond the
// month's length clips to the last day of the month. The same rule
// applies to monthly and quarterly periods.
func DueDate(periodEnd time.Time, dueDay int) time.Time {
	periodEnd = periodEnd.UTC()
	year, month, _ := periodEnd.Date()

	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dueDay > lastDay {
		dueDay = lastDay
	}
	return time.Date(year, month, dueDay, 0, 0, 0, 0, time.UTC)
}
