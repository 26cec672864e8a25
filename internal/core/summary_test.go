package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func tx(kind TransactionType, category string, amount int64) Transaction {
	return Transaction{Type: kind, Category: category, Amount: decimal.NewFromInt(amount)}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	got := Summarize([]Transaction{
		tx(Income, "Maaş", 1000),
		tx(Expense, "Beslenme", 250),
		tx(Expense, "Ulaşım", 50),
	})
	assert.Equal(t, Summary{IncomeTotal: 1000, ExpenseTotal: 300, NetTotal: 700}, got)
}

func TestSummarizeIgnoresAmountSign(t *testing.T) {
	got := Summarize([]Transaction{
		tx(Expense, "Beslenme", -40),
		tx("transfer", "x", 999),
	})
	assert.Equal(t, Summary{ExpenseTotal: 40, NetTotal: -40}, got)
}

func TestExpensesByCategory(t *testing.T) {
	got := ExpensesByCategory([]Transaction{
		tx(Expense, "Beslenme", 100),
		tx(Income, "Maaş", 5000),
		tx(Expense, "Ulaşım", 30),
		tx(Expense, "Beslenme", 20),
	})
	assert.Equal(t, []CategoryAmount{
		{Category: "Beslenme", Amount: 120},
		{Category: "Ulaşım", Amount: 30},
	}, got)
}

func TestSummaryReport(t *testing.T) {
	month := MonthRangeUTC("2025-03", fixedNow)
	r := Summary{IncomeTotal: 10.005, ExpenseTotal: 3.333, NetTotal: 6.672}.Report(month)
	assert.Equal(t, "2025-03", r.Month)
	assert.InDelta(t, 3.33, r.ExpenseTotal, 1e-9)
	assert.InDelta(t, 6.67, r.NetTotal, 1e-9)
}
