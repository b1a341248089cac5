package transform

import (
	"fmt"
	"time"
)

// WindowStats describes the trailing window applied to a run.
type WindowStats struct {
	MaxDate time.Time
	Cutoff  time.Time
	Kept    int
	Removed int
}

// FilterWindow keeps the sales dated on or after max(order_date) minus years
// calendar years. The window is anchored to the data, not the wall clock.
func FilterWindow(sales []Sale, years int) ([]Sale, WindowStats, error) {
	if years < 1 {
		return nil, WindowStats{}, validationError(StageWindow, fmt.Sprintf("years to analyze must be >= 1, got %d", years))
	}
	if len(sales) == 0 {
		return nil, WindowStats{}, emptyInputError(StageWindow, "no joined sales rows to analyze")
	}

	maxDate := sales[0].OrderDate
	for _, s := range sales[1:] {
		if s.OrderDate.After(maxDate) {
			maxDate = s.OrderDate
		}
	}
	cutoff := SubtractYears(maxDate, years)

	kept := make([]Sale, 0, len(sales))
	for _, s := range sales {
		if !s.OrderDate.Before(cutoff) {
			kept = append(kept, s)
		}
	}

	stats := WindowStats{
		MaxDate: maxDate,
		Cutoff:  cutoff,
		Kept:    len(kept),
		Removed: len(sales) - len(kept),
	}
	if len(kept) == 0 {
		return nil, stats, emptyInputError(StageWindow, "analysis window contains no sales")
	}
	return kept, stats, nil
}

// SubtractYears moves t back n calendar years. Feb 29 lands on Feb 28 when the
// target year is not a leap year, instead of rolling into March.
func SubtractYears(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	target := year - n
	if month == time.February && day == 29 && !isLeap(target) {
		day = 28
	}
	return time.Date(target, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
