// This file implements the per-frequency strategies that decide how many times
// a fixed expense falls due inside a month.

package core

import (
	"fmt"
	"time"
)

// OccurrenceCounter is the strategy interface for one frequency type.
type OccurrenceCounter interface {
	// Occurrences returns how many due dates of a schedule starting at start
	// fall inside period.
	Occurrences(start Date, period MonthRange) int
}

// WeeklyCounter implements OccurrenceCounter for weekly fixed expenses.
type WeeklyCounter struct{}

// Occurrences counts start + 7k days that land in the period.
func (WeeklyCounter) Occurrences(start Date, period MonthRange) int {
	if start.IsZero() || !start.Before(period.End) {
		return 0
	}
	first := start.Time
	if first.Before(period.Start) {
		weeks := int(period.Start.Sub(first).Hours()/24+6) / 7
		first = first.AddDate(0, 0, weeks*7)
	}
	n := 0
	for d := first; d.Before(period.End); d = d.AddDate(0, 0, 7) {
		n++
	}
	return n
}

// MonthlyCounter implements OccurrenceCounter for monthly fixed expenses.
type MonthlyCounter struct{}

// Occurrences is 1 for every month from the start date's month on. A start day
// past the end of a short month is clamped to its last day.
func (MonthlyCounter) Occurrences(start Date, period MonthRange) int {
	if start.IsZero() {
		return 0
	}
	due := clampedDay(period.Start.Year(), period.Start.Month(), start.Day())
	if due.Before(start.Time) {
		return 0
	}
	return 1
}

// YearlyCounter implements OccurrenceCounter for yearly fixed expenses.
type YearlyCounter struct{}

// Occurrences is 1 when the period is the anniversary month of start.
func (YearlyCounter) Occurrences(start Date, period MonthRange) int {
	if start.IsZero() || period.Start.Month() != start.Time.Month() {
		return 0
	}
	if period.Start.Year() < start.Year() {
		return 0
	}
	return 1
}

func clampedDay(year int, month time.Month, day int) time.Time {
	lastDayOfMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDayOfMonth {
		day = lastDayOfMonth
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

var occurrenceCounters = map[Frequency]OccurrenceCounter{
	Weekly:  WeeklyCounter{},
	Monthly: MonthlyCounter{},
	Yearly:  YearlyCounter{},
}

// GetOccurrenceCounter returns the strategy for a frequency.
func GetOccurrenceCounter(frequency Frequency) (OccurrenceCounter, error) {
	counter, ok := occurrenceCounters[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFrequency, frequency)
	}
	return counter, nil
}

// RegisterOccurrenceCounter adds or replaces the strategy for a frequency.
// It is not safe to call concurrently with lookups.
func RegisterOccurrenceCounter(frequency Frequency, counter OccurrenceCounter) {
	occurrenceCounters[frequency] = counter
}

// FixedExpenseTotals sums what the fixed expenses cost in period and how much
// of that is already marked paid. Unknown frequencies contribute nothing.
func FixedExpenseTotals(list []FixedExpense, period MonthRange) (planned, paid float64) {
	for _, fe := range list {
		counter, err := GetOccurrenceCounter(fe.Frequency)
		if err != nil {
			continue
		}
		n := counter.Occurrences(fe.StartDate, period)
		if n == 0 {
			continue
		}
		amount := AmountFloat(fe.Amount) * float64(n)
		planned += amount
		if fe.Paid {
			paid += amount
		}
	}
	return planned, paid
}

// DueIn reports whether fe falls due at least once in period.
func (fe FixedExpense) DueIn(period MonthRange) bool {
	counter, err := GetOccurrenceCounter(fe.Frequency)
	if err != nil {
		return false
	}
	return counter.Occurrences(fe.StartDate, period) > 0
}
