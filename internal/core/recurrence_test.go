package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(label string) MonthRange {
	return MonthRangeUTC(label, time.Time{})
}

func TestWeeklyCounter_Occurrences(t *testing.T) {
	counter := WeeklyCounter{}

	tests := []struct {
		name   string
		start  Date
		period MonthRange
		want   int
	}{
		{"starts before month, Mondays of Dec 2025", NewDate(2025, 11, 3), month("2025-12"), 5},
		{"starts mid month", NewDate(2025, 12, 20), month("2025-12"), 2},
		{"starts after month", NewDate(2026, 1, 5), month("2025-12"), 0},
		{"february non leap", NewDate(2025, 1, 6), month("2025-02"), 4},
		{"zero start", Date{}, month("2025-02"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, counter.Occurrences(tt.start, tt.period))
		})
	}
}

func TestMonthlyCounter_Occurrences(t *testing.T) {
	counter := MonthlyCounter{}

	tests := []struct {
		name   string
		start  Date
		period MonthRange
		want   int
	}{
		{"start month", NewDate(2024, 1, 10), month("2024-01"), 1},
		{"later month", NewDate(2024, 1, 10), month("2024-06"), 1},
		{"before start", NewDate(2024, 1, 10), month("2023-12"), 0},
		{"day 31 in february", NewDate(2024, 1, 31), month("2024-02"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, counter.Occurrences(tt.start, tt.period))
		})
	}
}

func TestYearlyCounter_Occurrences(t *testing.T) {
	counter := YearlyCounter{}

	assert.Equal(t, 1, counter.Occurrences(NewDate(2024, 3, 15), month("2024-03")))
	assert.Equal(t, 1, counter.Occurrences(NewDate(2024, 3, 15), month("2026-03")))
	assert.Equal(t, 0, counter.Occurrences(NewDate(2024, 3, 15), month("2025-04")))
	assert.Equal(t, 0, counter.Occurrences(NewDate(2024, 3, 15), month("2023-03")))
}

func TestGetOccurrenceCounter(t *testing.T) {
	for _, f := range []Frequency{Weekly, Monthly, Yearly} {
		c, err := GetOccurrenceCounter(f)
		require.NoError(t, err)
		assert.NotNil(t, c)
	}

	_, err := GetOccurrenceCounter("daily")
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestRegisterOccurrenceCounter(t *testing.T) {
	custom := Frequency("biweekly")
	RegisterOccurrenceCounter(custom, WeeklyCounter{})
	defer delete(occurrenceCounters, custom)

	c, err := GetOccurrenceCounter(custom)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestFixedExpenseTotals(t *testing.T) {
	list := []FixedExpense{
		{Name: "Kira", Amount: decimal.NewFromInt(1500), Frequency: Monthly, StartDate: NewDate(2025, 1, 1), Paid: true},
		{Name: "Spor", Amount: decimal.NewFromInt(100), Frequency: Weekly, StartDate: NewDate(2025, 11, 3)},
		{Name: "Sigorta", Amount: decimal.NewFromInt(900), Frequency: Yearly, StartDate: NewDate(2025, 6, 1)},
		{Name: "Eski", Amount: decimal.NewFromInt(50), Frequency: "daily", StartDate: NewDate(2025, 1, 1)},
	}

	planned, paid := FixedExpenseTotals(list, month("2025-12"))
	assert.Equal(t, 2000.0, planned)
	assert.Equal(t, 1500.0, paid)

	assert.True(t, list[2].DueIn(month("2026-06")))
	assert.False(t, list[2].DueIn(month("2025-12")))
}
