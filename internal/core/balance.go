package core

import "time"

// SmartBalanceInput carries the figures for one budgeting period. Period must
// be the same range that selected the transactions behind ExpenseTotal.
type SmartBalanceInput struct {
	TotalMoney           float64
	ExpenseTotal         float64
	PlannedFixedExpenses float64
	FixedExpensesPaid    float64
	Period               MonthRange
	Now                  time.Time
}

type SmartBalance struct {
	CurrentBalance         float64 `json:"currentBalance"`
	RemainingFixedExpenses float64 `json:"remainingFixedExpenses"`
	RemainingDaysInMonth   int     `json:"remainingDaysInMonth"`
	TodaySpendableLimit    float64 `json:"todaySpendableLimit"`
}

// CalculateSmartBalance derives how much can be spent per remaining day once
// the unpaid fixed expenses are set aside. A negative limit means overspending.
func CalculateSmartBalance(in SmartBalanceInput) SmartBalance {
	totalMoney := finite(in.TotalMoney)
	expenseTotal := finite(in.ExpenseTotal)
	planned := finite(in.PlannedFixedExpenses)
	paid := finite(in.FixedExpensesPaid)

	period := in.Period
	if period.Start.IsZero() {
		period = MonthOf(in.Now)
	}
	days := period.RemainingDays(in.Now)

	remainingFixed := max(0, planned-paid)
	current := totalMoney - expenseTotal

	return SmartBalance{
		CurrentBalance:         current,
		RemainingFixedExpenses: remainingFixed,
		RemainingDaysInMonth:   days,
		TodaySpendableLimit:    (current - remainingFixed) / float64(days),
	}
}

func (b SmartBalance) InDebt() bool {
	return b.TodaySpendableLimit < 0
}
