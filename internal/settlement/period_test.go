package settlement

import (
	"testing"
	"time"

	"github.com/tabsera/settlement/internal/domain"
)

func TestPeriodFor(t *testing.T) {
	tests := []struct {
		name      string
		freq      domain.Frequency
		t         time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "monthly mid-month",
			freq:      domain.FrequencyMonthly,
			t:         time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			wantStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monthly first instant",
			freq:      domain.FrequencyMonthly,
			t:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monthly december rolls the year",
			freq:      domain.FrequencyMonthly,
			t:         time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
			wantStart: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "quarterly q1",
			freq:      domain.FrequencyQuarterly,
			t:         time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "quarterly q4",
			freq:      domain.FrequencyQuarterly,
			t:         time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := PeriodFor(tt.freq, tt.t)
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("PeriodFor(%s, %s) = %s..%s, want %s..%s",
					tt.freq, tt.t, start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestLastClosedPeriod(t *testing.T) {
	asOf := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)

	start, end := LastClosedPeriod(domain.FrequencyMonthly, asOf)
	if !start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!end.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly: got %s..%s, want Jan 2024", start, end)
	}

	start, end = LastClosedPeriod(domain.FrequencyQuarterly, asOf)
	if !start.Equal(time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)) ||
		!end.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("quarterly: got %s..%s, want Q4 2023", start, end)
	}
}

func TestDueDate(t *testing.T) {
	tests := []struct {
		name      string
		periodEnd time.Time
		dueDay    int
		want      time.Time
	}{
		{
			name:      "january period due in february",
			periodEnd: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			dueDay:    15,
			want:      time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "due day 31 clips to leap february",
			periodEnd: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			dueDay:    31,
			want:      time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "due day 31 clips to non-leap february",
			periodEnd: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
			dueDay:    31,
			want:      time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "due day 31 clips to april 30",
			periodEnd: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			dueDay:    31,
			want:      time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "quarterly period uses month of period end",
			periodEnd: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			dueDay:    20,
			want:      time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DueDate(tt.periodEnd, tt.dueDay)
			if !got.Equal(tt.want) {
				t.Errorf("DueDate(%s, %d) = %s, want %s",
					tt.periodEnd.Format("2006-01-02"), tt.dueDay,
					got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}
