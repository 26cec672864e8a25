package core

// Summary holds the income/expense totals of a set of transactions.
type Summary struct {
	IncomeTotal  float64 `json:"incomeTotal"`
	ExpenseTotal float64 `json:"expenseTotal"`
	NetTotal     float64 `json:"netTotal"`
}

// Summarize reduces transactions into totals in one pass. The transaction type
// decides the direction; the sign of Amount is ignored.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, tx := range txs {
		amount := AmountFloat(tx.Amount.Abs())
		switch tx.Type {
		case Income:
			s.IncomeTotal += amount
		case Expense:
			s.ExpenseTotal += amount
		}
	}
	s.NetTotal = s.IncomeTotal - s.ExpenseTotal
	return s
}

// ExpensesByCategory folds expense transactions into per-category amounts,
// preserving first-seen order.
func ExpensesByCategory(txs []Transaction) []CategoryAmount {
	index := make(map[string]int)
	var out []CategoryAmount
	for _, tx := range txs {
		if tx.Type != Expense {
			continue
		}
		i, ok := index[tx.Category]
		if !ok {
			i = len(out)
			index[tx.Category] = i
			out = append(out, CategoryAmount{Category: tx.Category})
		}
		out[i].Amount += AmountFloat(tx.Amount)
	}
	return out
}

// Report converts a summary into the persisted monthly snapshot shape.
func (s Summary) Report(month MonthRange) MonthlyReport {
	return MonthlyReport{
		Month:        month.Label,
		IncomeTotal:  round2(s.IncomeTotal),
		ExpenseTotal: round2(s.ExpenseTotal),
		NetTotal:     round2(s.NetTotal),
	}
}
